// Package sessionmock is a deterministic, non-cryptographic stand-in for
// session.Factory/session.Session, grounded in spec.md §6's contract
// rather than any real handshake engine. It exists so linkctl's peer,
// link and controller tests can drive every spec.md §4.1 transition
// (Unauthenticated → Handshake1 → … → Established) without a real Noise
// handshake, the same way the teacher's state/mock.go hand-writes
// deterministic fixtures instead of pulling in a generated mock.
package sessionmock

import (
	"sync"

	"github.com/meshwire/linkctl/session"
)

// handshakeMagic prefixes a handshake-stage frame. Real frames (once
// Established) are tagged 'E' by Send/Deliver to simulate "encryption"
// without doing any: the tag lets tests assert a frame actually passed
// through the session rather than being forwarded untouched.
const handshakeMagic = "MOCKHS"

// HandshakeFrame builds the next handshake message a test should deliver
// to advance a mock session one step, carrying the sender's public key so
// the receiving mock can learn it the way a real handshake would.
func HandshakeFrame(pubKey [32]byte) []byte {
	out := make([]byte, 0, len(handshakeMagic)+32)
	out = append(out, handshakeMagic...)
	out = append(out, pubKey[:]...)
	return out
}

// Factory is a session.Factory that wraps Sessions.
type Factory struct {
	mu           sync.Mutex
	AddUserCalls []AddUserCall

	// RejectNextInbound, when set, makes the next inbound-mode session
	// this factory wraps reject its first delivered frame, then clears
	// itself. Lets a test simulate spec.md §4.4's spurious-peer rejection
	// without reaching into the session after admission already consumed it.
	RejectNextInbound bool
}

type AddUserCall struct {
	Password []byte
	AuthType session.AuthType
	Label    string
}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Wrap(mode session.Mode, herPublicKey *[32]byte, requireAuth bool, switchIn session.SwitchInDeliverer, externalOut session.ExternalOutDeliverer) (session.Session, error) {
	s := &Session{
		mode:        mode,
		state:       session.New,
		switchIn:    switchIn,
		externalOut: externalOut,
	}
	if herPublicKey != nil {
		s.herKey = *herPublicKey
	}

	f.mu.Lock()
	if mode == session.ModeInbound && f.RejectNextInbound {
		s.RejectFirst = true
		f.RejectNextInbound = false
	}
	f.mu.Unlock()

	return s, nil
}

func (f *Factory) AddUser(password []byte, authType session.AuthType, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AddUserCalls = append(f.AddUserCalls, AddUserCall{Password: password, AuthType: authType, Label: label})
	return nil
}

// Session is a deterministic session.Session. Deliver advances through
// the handshake states on handshakeMagic-prefixed frames and forwards
// 'E'-tagged application frames to switchIn in any state, Established or
// not.
type Session struct {
	mu sync.Mutex

	mode   session.Mode
	state  session.State
	herKey [32]byte

	password []byte
	authType session.AuthType
	user     string
	hasUser  bool
	replay   session.ReplayStats

	switchIn    session.SwitchInDeliverer
	externalOut session.ExternalOutDeliverer

	// RejectFirst simulates spec.md §4.4: the very first frame handed to
	// an inbound-mode session is spurious and the session refuses it.
	RejectFirst bool
	seenFirst   bool

	closed bool
}

func (s *Session) Send(plaintext []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return session.ErrUndeliverable
	}
	out := make([]byte, 0, len(plaintext)+1)
	out = append(out, 'E')
	out = append(out, plaintext...)
	s.externalOut.DeliverExternalOut(out)
	return nil
}

func (s *Session) Deliver(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return session.ErrUndeliverable
	}

	first := !s.seenFirst
	s.seenFirst = true
	if s.RejectFirst && first {
		return session.ErrRejected
	}

	if len(frame) >= len(handshakeMagic) && string(frame[:len(handshakeMagic)]) == handshakeMagic {
		switch s.state {
		case session.New:
			s.state = session.Handshake1
		case session.Handshake1:
			s.state = session.Handshake2
		case session.Handshake2:
			s.state = session.Handshake3
		case session.Handshake3:
			s.state = session.Established
		}
		if len(frame) >= len(handshakeMagic)+32 {
			copy(s.herKey[:], frame[len(handshakeMagic):len(handshakeMagic)+32])
		}
		if s.externalOut != nil {
			s.externalOut.DeliverExternalOut(HandshakeFrame(s.herKey))
		}
		return nil
	}

	if len(frame) < 1 || frame[0] != 'E' {
		return session.ErrUndeliverable
	}
	s.switchIn.DeliverSwitchIn(frame[1:])
	return nil
}

func (s *Session) State() session.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState forces a state, bypassing the handshake-frame walk. Useful for
// tests that only care about the state machine above the session.
func (s *Session) SetState(state session.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Session) HerPublicKey() [32]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.herKey
}

func (s *Session) SetHerPublicKey(key [32]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.herKey = key
}

func (s *Session) User() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user, s.hasUser
}

func (s *Session) SetUser(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
	s.hasUser = true
}

func (s *Session) ReplayProtector() session.ReplayStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replay
}

func (s *Session) SetReplayProtector(stats session.ReplayStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replay = stats
}

func (s *Session) SetAuth(password []byte, authType session.AuthType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.password = append([]byte(nil), password...)
	s.authType = authType
	return nil
}

func (s *Session) Password() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.password
}

func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
