// Package meshswitch declares the path-labelled forwarding fabric the peer
// link controller plugs into (spec.md §1, §6). The switch itself — route
// computation, path selection, multi-hop forwarding — is out of scope; the
// controller only ever registers, swaps and removes interface slots on it.
package meshswitch

import (
	"context"
	"errors"
)

// ErrOutOfSpace is returned by AddInterface when the switch has no free
// slot (spec.md §6 addInterface OUT_OF_SPACE).
var ErrOutOfSpace = errors.New("switch: out of space")

// ErrInternal signals a switch-side invariant violation. The controller
// does not abort on it: BootstrapPeer reports it as INTERNAL, and the
// link admission paths log it and drop the new peer.
var ErrInternal = errors.New("switch: internal error")

// ErrUndeliverable is returned by Receiver.DeliverFromSwitch when the peer
// cannot currently carry traffic (spec.md §4.7 step 2/4); the switch should
// treat this as a transient routing signal, not an interface failure.
var ErrUndeliverable = errors.New("switch: undeliverable")

// Receiver is how the switch hands a peer the frames it routes to it (a
// peer's decrypted inbound frames go the other way, through the Handle
// returned by AddInterface; Receiver is the switch-facing side the
// controller implements to receive outbound-from-switch traffic).
type Receiver interface {
	// DeliverFromSwitch is called by the switch with a frame it has routed
	// to this peer. The controller's Peer.switchOut path (spec.md §4.7)
	// starts here. A returned ErrUndeliverable means the frame could not
	// be encrypted and sent right now.
	DeliverFromSwitch(frame []byte) error
}

// Handle is the owned slot a Peer holds while it exists (spec.md §3
// Peer.switchHandle). Exactly one Handle exists per live Peer; Remove
// releases it.
type Handle interface {
	// PathLabel is the 64-bit forwarding tag assigned at registration.
	PathLabel() uint64
	// Send hands a decrypted inbound frame to the switch for a forwarding
	// decision (the peer->switch direction, spec.md §2 data flow).
	Send(frame []byte) error
	// Remove unregisters the interface and frees its path label. Idempotent.
	Remove()
}

// Switch is the external switch contract (spec.md §6).
type Switch interface {
	// AddInterface registers a new interface at the given priority,
	// returning a Handle bound to a freshly assigned path label, or
	// ErrOutOfSpace/ErrInternal.
	AddInterface(receiver Receiver, priority int) (Handle, error)

	// SwapInterfaces exchanges a and b's path labels and backing slot
	// contents in place — used by relocation (spec.md §4.1) to transplant
	// a surviving Peer onto the path label of the Peer it is replacing.
	// The caller must remove whichever Handle it no longer needs after
	// the swap; SwapInterfaces itself never removes anything.
	SwapInterfaces(a, b Handle)
}

// PingResponse is what a successful switch-ping reports back (spec.md §4.6).
type PingResponse struct {
	ProtocolVersion uint32
	PathLabel       uint64
}

// ErrPingTimeout is returned by Pinger.Ping when no response arrives
// within its context's deadline.
var ErrPingTimeout = errors.New("switch: ping timeout")

// ErrIncompatibleVersion is returned when a ping response reports a
// protocol version the controller does not accept (spec.md §4.6).
var ErrIncompatibleVersion = errors.New("switch: incompatible protocol version")

// Pinger is the switch-ping client (spec.md §3 Controller.pinger): it
// drives the request/response exchange spec.md §4.6 uses both to learn a
// peer's protocol version and path, and to opportunistically provoke the
// switch to learn an as-yet-unrouted peer (spec.md §4.1 admission guard).
type Pinger interface {
	Ping(ctx context.Context, handle Handle) (PingResponse, error)
}
