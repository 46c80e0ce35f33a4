package linkctl

import (
	"net/netip"
	"time"

	"github.com/meshwire/linkctl/meshswitch"
	"github.com/meshwire/linkctl/session"
	"github.com/meshwire/linkctl/state"
)

// PeerState is the per-peer state machine (spec.md §4.1). The four
// non-final states and Established mirror the cryptographic session's own
// state one-to-one; Unresponsive is controller-only and overrides the
// session's view while liveness is considered lost.
type PeerState int

const (
	Unauthenticated PeerState = iota
	Handshake1
	Handshake2
	Handshake3
	Established
	Unresponsive
)

func (s PeerState) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Handshake1:
		return "handshake1"
	case Handshake2:
		return "handshake2"
	case Handshake3:
		return "handshake3"
	case Established:
		return "established"
	case Unresponsive:
		return "unresponsive"
	default:
		return "unknown"
	}
}

func peerStateFromSession(s session.State) PeerState {
	switch s {
	case session.Handshake1:
		return Handshake1
	case session.Handshake2:
		return Handshake2
	case session.Handshake3:
		return Handshake3
	case session.Established:
		return Established
	default:
		return Unauthenticated
	}
}

// LLAddr is an opaque, byte-compared link-layer address (spec.md §3).
type LLAddr string

func LLAddrFromBytes(b []byte) LLAddr { return LLAddr(b) }
func (a LLAddr) Bytes() []byte        { return []byte(a) }

// Peer is one authenticated or half-open neighbor on one link (spec.md §3).
type Peer struct {
	link  *LinkInterface
	scope *state.Scope

	lladdr LLAddr
	key    state.PublicKey
	ip6    netip.Addr

	peerState       PeerState
	protocolVersion uint32

	timeOfLastMessage time.Time
	timeOfLastPing    time.Time
	// pingCount is the single shared counter spec.md §9 calls out: the
	// pre-Established admission guard and the Unresponsive ping throttle
	// each apply their own modulus to it rather than keeping separate
	// fields, matching the original's layout.
	pingCount uint64

	isIncoming bool
	// speculative is set only for peers admitted by the §4.4 unknown-source
	// path: their very first session rejection destroys them silently.
	// It is cleared after the first successful Deliver.
	speculative bool

	bytesIn  uint64
	bytesOut uint64

	sess   session.Session
	handle meshswitch.Handle
}

func (p *Peer) State() PeerState { return p.peerState }

// HandleExternalIn is the inbound path for a frame this LinkInterface has
// already stripped its lladdr header from (spec.md §2 "transport →
// LinkInterface → Peer.externalIn → session decrypt → Peer.switchIn →
// switch").
func (p *Peer) HandleExternalIn(payload []byte) {
	ctl := p.link.ctl

	err := p.sess.Deliver(payload)
	if err != nil {
		if p.speculative {
			// spec.md §4.4: the session immediately rejected the first
			// frame from an unknown source — the frame was spurious.
			ctl.env.Log.Debug("rejected speculative peer's first frame", "lladdr", p.lladdr)
			p.link.removePeer(p)
			p.scope.Close()
			return
		}
		ctl.env.Log.Debug("session rejected inbound frame", "lladdr", p.lladdr, "error", err)
		return
	}

	p.speculative = false
	now := ctl.clock.Now()
	p.timeOfLastMessage = now
	p.bytesIn += uint64(len(payload))
	p.syncStateAfterInbound()
}

// syncStateAfterInbound copies the session's state into peerState and runs
// the Established-transition actions (spec.md §4.1's transition table).
func (p *Peer) syncStateAfterInbound() {
	ctl := p.link.ctl
	sessState := p.sess.State()

	if p.peerState == Unresponsive {
		// spec.md §4.1 + §9 open question: recovering from Unresponsive
		// does not re-publish a Peer event.
		if sessState == session.Established {
			p.peerState = Established
		}
		return
	}

	prev := p.peerState
	p.peerState = peerStateFromSession(sessState)

	if prev != Established && p.peerState == Established {
		p.key = p.sess.HerPublicKey()
		p.ip6 = state.DeriveIP6(p.key)
		ctl.relocate(p)
		ctl.publishPeer(p)
	}
}

// DeliverSwitchIn is the session's callback for decrypted inbound frames
// (session.SwitchInDeliverer). It applies the pre-Established admission
// guard (spec.md §4.1) before handing the frame to the switch.
func (p *Peer) DeliverSwitchIn(frame []byte) {
	ctl := p.link.ctl
	if p.peerState != Established && !isTerminateHere(frame) {
		p.pingCount++
		if p.pingCount%state.PreEstablishedPingEvery != 0 {
			ctl.opportunisticPing(p)
		}
		return
	}
	if err := p.handle.Send(frame); err != nil {
		ctl.env.Log.Debug("switch rejected inbound frame", "lladdr", p.lladdr, "error", err)
	}
}

// DeliverExternalOut is the session's callback for frames it wants sent
// over the transport — handshake messages and encrypted application
// frames alike (session.ExternalOutDeliverer).
func (p *Peer) DeliverExternalOut(frame []byte) {
	if err := p.link.sendTo(p.lladdr, frame); err != nil {
		p.link.ctl.env.Log.Debug("transport send failed", "lladdr", p.lladdr, "error", err)
	}
}

// DeliverFromSwitch is the outbound data path (spec.md §4.7): the switch
// hands this Peer a frame to send. Steps 1-4 of §4.7 are implemented here
// exactly in the order the spec lists them.
func (p *Peer) DeliverFromSwitch(frame []byte) error {
	ctl := p.link.ctl
	now := ctl.clock.Now()

	p.bytesOut += uint64(len(frame))

	if !p.timeOfLastMessage.IsZero() && now.Sub(p.timeOfLastMessage) > ctl.tuning.UnresponsiveAfter {
		// Clone into a scratch buffer before handing to the session: the
		// session may mangle it freely on this error path (spec.md §9
		// preserves this clone though its original motivation is unclear).
		clone := append([]byte(nil), frame...)
		_ = p.sess.Send(clone)
		return meshswitch.ErrUndeliverable
	}

	if err := p.sess.Send(frame); err != nil {
		// Transient transport undeliverability must not kill the peer
		// (spec.md §4.7 step 4, §7).
		ctl.env.Log.Debug("session send reported undeliverable", "lladdr", p.lladdr, "error", err)
	}
	return nil
}

// isTerminateHere reads the switch header's next-hop direction bit
// (spec.md §4.1: byte offset state.SwitchHeaderTerminateOffset equals 1
// means "terminate here"). A short frame is conservatively not terminal.
func isTerminateHere(frame []byte) bool {
	if len(frame) <= state.SwitchHeaderTerminateOffset {
		return false
	}
	return frame[state.SwitchHeaderTerminateOffset] == 1
}

// destroy publishes Peer-Gone then releases p's scope, which in turn
// removes it from its link's map, releases its switch slot and closes its
// session (spec.md §3 Lifecycle, §5 cancellation). Not idempotent: a
// second call finds the scope already closed but still publishes Peer-Gone
// again, so callers check liveness first.
func (p *Peer) destroy() {
	p.link.ctl.env.Log.Debug("destroying peer", "lladdr", p.lladdr, "scope", p.scope.ID())
	p.link.ctl.publishPeerGone(p)
	p.scope.Close()
}
