package linkctl

import (
	"encoding/binary"

	"github.com/meshwire/linkctl/session"
	"github.com/meshwire/linkctl/state"
)

// Transport is the external link-layer deliverer a LinkInterface is bound
// to (spec.md §1 "link-layer transports ... out of scope"). Frames handed
// to Send and produced by the transport for DeliverInbound both carry the
// lladdr header encodeFrame/decodeFrame describe.
type Transport interface {
	Send(frame []byte) error
}

const flagBroadcast byte = 1 << 0

// encodeFrame builds the wire frame a LinkInterface exchanges with its
// transport: a 1-byte flags field, a 1-byte address length, the address,
// then the payload (spec.md §4.2/§6 "preceded on the wire by a link-layer
// address frame whose flags field has the broadcast bit set").
func encodeFrame(flags byte, addr LLAddr, payload []byte) []byte {
	buf := make([]byte, 2+len(addr)+len(payload))
	buf[0] = flags
	buf[1] = byte(len(addr))
	copy(buf[2:], addr)
	copy(buf[2+len(addr):], payload)
	return buf
}

// decodeFrame parses encodeFrame's format. ok is false for runt frames
// (spec.md §4.2: length < lladdr header, or length < declared lladdr size).
func decodeFrame(frame []byte) (flags byte, addr LLAddr, payload []byte, ok bool) {
	if len(frame) < 2 {
		return 0, "", nil, false
	}
	addrLen := int(frame[1])
	if len(frame) < 2+addrLen {
		return 0, "", nil, false
	}
	return frame[0], LLAddr(frame[2 : 2+addrLen]), frame[2+addrLen:], true
}

// EncodeFrame and DecodeFrame expose the on-wire frame codec to Transport
// implementations living outside this package: a real transport has to
// read the embedded lladdr to route an outbound unicast frame (or rewrite
// it with the medium's own notion of "sender address" on the way in, the
// way transport/udp does), and flags/addrLen are otherwise opaque to it.
func EncodeFrame(broadcast bool, addr LLAddr, payload []byte) []byte {
	var flags byte
	if broadcast {
		flags = flagBroadcast
	}
	return encodeFrame(flags, addr, payload)
}

func DecodeFrame(frame []byte) (broadcast bool, addr LLAddr, payload []byte, ok bool) {
	flags, a, p, k := decodeFrame(frame)
	return flags&flagBroadcast != 0, a, p, k
}

// LinkInterface is one registered link-layer transport (spec.md §3).
type LinkInterface struct {
	ctl   *Controller
	scope *state.Scope

	name       string
	ifNum      int
	peers      map[LLAddr]*Peer
	beaconMode state.BeaconMode
	transport  Transport
}

func (l *LinkInterface) Name() string             { return l.name }
func (l *LinkInterface) IfNum() int                { return l.ifNum }
func (l *LinkInterface) BeaconMode() state.BeaconMode { return l.beaconMode }

func (l *LinkInterface) sendTo(addr LLAddr, payload []byte) error {
	return l.transport.Send(encodeFrame(0, addr, payload))
}

func (l *LinkInterface) removePeer(p *Peer) {
	if l.peers[p.lladdr] == p {
		delete(l.peers, p.lladdr)
	}
}

// DeliverInbound is the transport-facing entry point for one raw frame
// arriving on ifNum's link (spec.md §2 inbound data flow). Transports call
// this from their own read loop; it runs synchronously on the controller's
// event loop before returning, matching spec.md §5's synchronous handler
// model.
func (c *Controller) DeliverInbound(ifNum int, frame []byte) {
	_, _ = c.DispatchWait(func(ctl *Controller) (any, error) {
		if ifNum >= 0 && ifNum < len(ctl.links) {
			ctl.links[ifNum].deliverInbound(frame)
		}
		return nil, nil
	})
}

// deliverInbound is the inbound demux for one raw frame arriving on this
// link (spec.md §4.2). Reached only via Controller.DeliverInbound, which
// runs it on the event loop.
func (l *LinkInterface) deliverInbound(frame []byte) {
	flags, addr, payload, ok := decodeFrame(frame)
	if !ok {
		l.ctl.env.Log.Debug("dropped runt frame", "link", l.name, "len", len(frame))
		return
	}
	if flags&flagBroadcast != 0 {
		l.handleBeacon(addr, payload)
		return
	}
	if p, hit := l.peers[addr]; hit {
		p.HandleExternalIn(payload)
		return
	}
	l.handleUnknownSource(addr, payload)
}

// handleUnknownSource implements spec.md §4.4: an inbound non-broadcast
// frame from an lladdr this link has never seen.
func (l *LinkInterface) handleUnknownSource(addr LLAddr, payload []byte) {
	ctl := l.ctl
	scope := state.NewScope(l.scope)
	p := &Peer{
		link:        l,
		scope:       scope,
		lladdr:      addr,
		isIncoming:  true,
		speculative: true,
		peerState:   Unauthenticated,
	}

	sess, err := ctl.factory.Wrap(session.ModeInbound, nil, false, p, p)
	if err != nil {
		ctl.env.Log.Debug("failed to wrap inbound session", "link", l.name, "error", err)
		scope.Close()
		return
	}
	p.sess = sess

	handle, err := ctl.sw.AddInterface(p, 0)
	if err != nil {
		ctl.env.Log.Debug("switch rejected unknown-source peer", "link", l.name, "error", err)
		sess.Close()
		scope.Close()
		return
	}
	p.handle = handle
	scope.OnClose(func() { handle.Remove() })
	scope.OnClose(func() { sess.Close() })

	l.peers[addr] = p
	scope.OnClose(func() { l.removePeer(p) })

	ctl.env.Log.Debug("admitted unknown-source peer", "link", l.name, "lladdr", addr, "scope", scope.ID())
	// Seed timeOfLastMessage as every admission path does; a successful
	// first Deliver then advances it to now.
	p.timeOfLastMessage = ctl.clock.Now().Add(-ctl.tuning.PingAfter - 1)
	p.HandleExternalIn(payload)
}

// beaconPayload is the fixed-size advertisement every Send-mode link
// broadcasts (spec.md §6).
type beaconPayload struct {
	publicKey state.PublicKey
	version   uint32
	password  []byte
}

func encodeBeacon(b beaconPayload) []byte {
	buf := make([]byte, state.BeaconSize)
	copy(buf[0:state.BeaconPublicKeySize], b.publicKey[:])
	binary.BigEndian.PutUint32(buf[state.BeaconPublicKeySize:state.BeaconPublicKeySize+state.BeaconVersionSize], b.version)
	copy(buf[state.BeaconPublicKeySize+state.BeaconVersionSize:], b.password)
	return buf
}

func decodeBeacon(buf []byte) (beaconPayload, bool) {
	if len(buf) < state.BeaconSize {
		return beaconPayload{}, false
	}
	var b beaconPayload
	copy(b.publicKey[:], buf[0:state.BeaconPublicKeySize])
	b.version = binary.BigEndian.Uint32(buf[state.BeaconPublicKeySize : state.BeaconPublicKeySize+state.BeaconVersionSize])
	b.password = append([]byte(nil), buf[state.BeaconPublicKeySize+state.BeaconVersionSize:state.BeaconSize]...)
	return b, true
}

// sendBeacon emits one beacon on this link, addressed to the broadcast
// lladdr (spec.md §4.3 Send).
func (l *LinkInterface) sendBeacon() {
	payload := encodeBeacon(beaconPayload{
		publicKey: l.ctl.localPub,
		version:   l.ctl.protocolVersion,
		password:  l.ctl.beaconPassword,
	})
	frame := encodeFrame(flagBroadcast, "", payload)
	if err := l.transport.Send(frame); err != nil {
		l.ctl.env.Log.Debug("beacon send failed", "link", l.name, "error", err)
	}
}

// handleBeacon implements spec.md §4.3 Accept. addr is the sender's real
// lladdr — the broadcast flag marks how the frame was addressed on the
// wire, it does not replace the sender's own address.
func (l *LinkInterface) handleBeacon(addr LLAddr, payload []byte) {
	ctl := l.ctl
	if l.beaconMode == state.BeaconOff {
		return
	}
	b, ok := decodeBeacon(payload)
	if !ok {
		ctl.env.Log.Debug("dropped runt beacon", "link", l.name)
		return
	}
	if b.publicKey == ctl.localPub {
		return
	}
	ip6 := state.DeriveIP6(b.publicKey)
	if !state.IsMeshAddress(ip6) {
		ctl.env.Log.Debug("dropped beacon with invalid mesh address", "link", l.name)
		return
	}
	if b.version != ctl.protocolVersion {
		ctl.env.Log.Debug("dropped beacon with incompatible version", "link", l.name, "version", b.version)
		return
	}

	if p, hit := l.peers[addr]; hit {
		if err := p.sess.SetAuth(b.password, session.AuthPassword); err != nil {
			ctl.env.Log.Debug("failed to rotate peer password", "link", l.name, "error", err)
		}
		return
	}

	l.admitBeaconPeer(addr, b)
}

func (l *LinkInterface) admitBeaconPeer(addr LLAddr, b beaconPayload) {
	ctl := l.ctl
	scope := state.NewScope(l.scope)
	p := &Peer{
		link:       l,
		scope:      scope,
		lladdr:     addr,
		key:        b.publicKey,
		ip6:        state.DeriveIP6(b.publicKey),
		isIncoming: true,
		peerState:  Unauthenticated,
	}

	herKey := b.publicKey
	sess, err := ctl.factory.Wrap(session.ModeOutbound, (*[32]byte)(&herKey), false, p, p)
	if err != nil {
		ctl.env.Log.Debug("failed to wrap beacon-accepted session", "link", l.name, "error", err)
		scope.Close()
		return
	}
	if err := sess.SetAuth(b.password, session.AuthPassword); err != nil {
		ctl.env.Log.Debug("failed to seat beacon password", "link", l.name, "error", err)
	}
	p.sess = sess

	handle, err := ctl.sw.AddInterface(p, 0)
	if err != nil {
		ctl.env.Log.Debug("switch rejected beacon-accepted peer", "link", l.name, "error", err)
		sess.Close()
		scope.Close()
		return
	}
	p.handle = handle
	scope.OnClose(func() { handle.Remove() })
	scope.OnClose(func() { sess.Close() })

	l.peers[addr] = p
	scope.OnClose(func() { l.removePeer(p) })

	ctl.env.Log.Debug("admitted beacon peer", "link", l.name, "lladdr", addr, "scope", scope.ID())

	// spec.md §4.3: seed timeOfLastMessage so the first ping tick treats
	// this peer as lazy and probes it immediately.
	p.timeOfLastMessage = ctl.clock.Now().Add(-ctl.tuning.PingAfter - 1)

	// Note: the Peer event publish spec.md §4.3 mentions fires once the
	// peer actually reaches Established via the general §4.1 transition
	// rule (syncStateAfterInbound) — publishing here too would double the
	// single PEER event the §8 round-trip scenario expects.
}
