// Package session declares the cryptographic session contract the peer
// link controller drives but does not implement (spec.md §1, §6). A real
// implementation performs a Noise-style handshake and AEAD framing of a
// single peer's traffic; this package only describes the shape the
// controller needs, so the controller can be built and tested against
// session/sessionmock without a real handshake engine.
package session

import (
	"errors"
)

// State mirrors the four-stage handshake plus Established that the
// cryptographic engine tracks internally (spec.md §4.1). The controller
// copies this into its own Peer.state on every valid inbound frame.
type State int

const (
	New State = iota
	Handshake1
	Handshake2
	Handshake3
	Established
)

func (s State) String() string {
	switch s {
	case New:
		return "new"
	case Handshake1:
		return "handshake1"
	case Handshake2:
		return "handshake2"
	case Handshake3:
		return "handshake3"
	case Established:
		return "established"
	default:
		return "unknown"
	}
}

// AuthType identifies the kind of pre-shared credential installed with
// SetAuth/AddUser.
type AuthType int

const (
	AuthPassword AuthType = iota
)

// ReplayStats surfaces a session's replay protector counters for
// PeerStats (spec.md §6).
type ReplayStats struct {
	Duplicates         uint64
	LostPackets        uint64
	ReceivedOutOfRange uint64
}

// Mode selects whether a session is wrapped with a known remote public key
// (outbound) or must learn it from the handshake (inbound), spec.md §6.
type Mode int

const (
	ModeOutbound Mode = iota
	ModeInbound
)

// ErrUndeliverable is returned by Send when a frame could not be handed to
// the transport. Per spec.md §4.7 the controller downgrades a
// session-originated Undeliverable to success; for a peer already past
// unresponsiveAfter it reports meshswitch.ErrUndeliverable to the switch.
var ErrUndeliverable = errors.New("session: undeliverable")

// ErrRejected is returned by Deliver on an inbound-mode session when the
// first frame handed to it after Wrap is not a valid handshake message —
// spec.md §4.4's "session rejected first frame from unknown source".
var ErrRejected = errors.New("session: rejected")

// SwitchInDeliverer receives frames the session has decrypted and
// authenticated, in decrypt order (spec.md §5 Ordering).
type SwitchInDeliverer interface {
	DeliverSwitchIn(frame []byte)
}

// ExternalOutDeliverer receives frames the session has encrypted, ready
// for the link layer to prepend an lladdr and transmit.
type ExternalOutDeliverer interface {
	DeliverExternalOut(frame []byte)
}

// Session is one peer's authenticated, encrypted channel (spec.md §6).
// The controller owns exactly one Session per Peer and never reaches
// inside it; it only calls these methods and feeds it frames.
type Session interface {
	// Send submits a plaintext frame for encryption. The ciphertext is
	// delivered asynchronously to the ExternalOutDeliverer passed to Wrap.
	Send(plaintext []byte) error
	// Deliver hands a raw inbound frame (still encrypted, or still a
	// handshake message) to the session. Decrypted application frames are
	// delivered to the SwitchInDeliverer passed to Wrap.
	Deliver(frame []byte) error

	State() State
	HerPublicKey() [32]byte
	// User returns the credential label the remote authenticated with, if
	// any (spec.md §6 getUser, used for PeerStats).
	User() (string, bool)
	ReplayProtector() ReplayStats

	// SetAuth installs a pre-shared credential (spec.md §6 setAuth), used
	// both at Wrap time and later for beacon password rotation.
	SetAuth(password []byte, authType AuthType) error

	// Close releases any resources the session holds. Idempotent.
	Close()
}

// Factory creates sessions; the controller holds exactly one (spec.md §3
// Controller.ca).
type Factory interface {
	// Wrap creates a session. herPublicKey is nil for ModeInbound, where
	// the remote key is learned from the handshake.
	Wrap(mode Mode, herPublicKey *[32]byte, requireAuth bool, switchIn SwitchInDeliverer, externalOut ExternalOutDeliverer) (Session, error)

	// AddUser registers a pre-shared credential as an accepted inbound
	// credential for any session this factory wraps (spec.md §6 addUser),
	// used to install the controller's own beacon password.
	AddUser(password []byte, authType AuthType, label string) error
}
