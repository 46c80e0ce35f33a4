package linkctl

import (
	"errors"

	"github.com/meshwire/linkctl/meshswitch"
	"github.com/meshwire/linkctl/session"
	"github.com/meshwire/linkctl/state"
)

// PeerStats is the admin-facing snapshot of one Peer (spec.md §6).
type PeerStats struct {
	LLAddr             LLAddr
	IfNum              int
	Key                state.PublicKey
	IP6                string
	State              PeerState
	TimeOfLastMessage  int64
	BytesIn, BytesOut  uint64
	IsIncoming         bool
	User               string
	Duplicates         uint64
	LostPackets        uint64
	ReceivedOutOfRange uint64
}

// newIfaceLocked registers a LinkInterface under transport, to be called
// either during NewController (before the loop starts) or from inside a
// Dispatch-ed admin call.
func (c *Controller) newIfaceLocked(name string, mode state.BeaconMode) (int, error) {
	if err := state.NameValidator(name); err != nil {
		return 0, err
	}
	ifNum := len(c.links)
	l := &LinkInterface{
		ctl:        c,
		scope:      state.NewScope(c.scope),
		name:       name,
		ifNum:      ifNum,
		peers:      make(map[LLAddr]*Peer),
		beaconMode: mode,
	}
	c.links = append(c.links, l)
	return ifNum, nil
}

// BindTransport attaches the transport for an already-registered
// LinkInterface. Separated from newIface because transports are wired by
// the caller (cmd/run.go), not by config alone.
func (c *Controller) BindTransport(ifNum int, transport Transport) error {
	_, err := c.DispatchWait(func(ctl *Controller) (any, error) {
		if ifNum < 0 || ifNum >= len(ctl.links) {
			return nil, ErrBadIfNum
		}
		ctl.links[ifNum].transport = transport
		return nil, nil
	})
	return err
}

// NewIface registers a new LinkInterface (spec.md §6 newIface). scope
// binds the interface's destruction to the caller's lifetime.
func (c *Controller) NewIface(name string, mode state.BeaconMode, scope *state.Scope) (int, error) {
	res, err := c.DispatchWait(func(ctl *Controller) (any, error) {
		ifNum, err := ctl.newIfaceLocked(name, mode)
		if err != nil {
			return nil, err
		}
		l := ctl.links[ifNum]
		scope.OnClose(func() {
			ctl.Dispatch(func(ctl *Controller) error {
				ctl.destroyLink(l)
				return nil
			})
		})
		return ifNum, nil
	})
	if err != nil {
		return 0, err
	}
	return res.(int), nil
}

// destroyLink tears down every Peer on l then releases l's own scope
// (spec.md §3 invariant: destroying a LinkInterface destroys every Peer
// on it).
func (c *Controller) destroyLink(l *LinkInterface) {
	for _, p := range l.peers {
		p.destroy()
	}
	l.scope.Close()
}

// BootstrapPeer implements spec.md §4.5.
func (c *Controller) BootstrapPeer(ifNum int, key state.PublicKey, lladdr LLAddr, password []byte, scope *state.Scope) error {
	_, err := c.DispatchWait(func(ctl *Controller) (any, error) {
		if ifNum < 0 || ifNum >= len(ctl.links) {
			return nil, ErrBadIfNum
		}
		l := ctl.links[ifNum]
		if err := state.ValidateRemoteKey(ctl.localPub, key); err != nil {
			return nil, ErrBadKey
		}
		if scope.Closed() {
			return nil, ErrInvalidState
		}

		pscope := state.NewScope(l.scope)
		p := &Peer{
			link:       l,
			scope:      pscope,
			lladdr:     lladdr,
			key:        key,
			ip6:        state.DeriveIP6(key),
			isIncoming: false,
			peerState:  Unauthenticated,
		}

		herKey := key
		sess, err := ctl.factory.Wrap(session.ModeOutbound, (*[32]byte)(&herKey), true, p, p)
		if err != nil {
			pscope.Close()
			return nil, ErrInternal
		}
		if err := sess.SetAuth(password, session.AuthPassword); err != nil {
			sess.Close()
			pscope.Close()
			return nil, ErrInternal
		}
		p.sess = sess

		handle, err := ctl.sw.AddInterface(p, 0)
		if err != nil {
			sess.Close()
			pscope.Close()
			if errors.Is(err, meshswitch.ErrOutOfSpace) {
				return nil, ErrOutOfSpace
			}
			return nil, ErrInternal
		}
		p.handle = handle
		pscope.OnClose(func() { handle.Remove() })
		pscope.OnClose(func() { sess.Close() })

		l.peers[lladdr] = p
		pscope.OnClose(func() { l.removePeer(p) })

		scope.OnClose(func() {
			ctl.Dispatch(func(ctl *Controller) error {
				if !pscope.Closed() {
					p.destroy()
				}
				return nil
			})
		})

		// spec.md §4.5: seed timeOfLastMessage so the first tick pings it,
		// then immediately issue one switch-ping to learn version/path.
		p.timeOfLastMessage = ctl.clock.Now().Add(-ctl.tuning.PingAfter - 1)
		ctl.opportunisticPing(p)

		return nil, nil
	})
	return err
}

// BeaconState implements spec.md §6 beaconState.
func (c *Controller) BeaconState(ifNum int, mode state.BeaconMode) error {
	_, err := c.DispatchWait(func(ctl *Controller) (any, error) {
		if ifNum < 0 || ifNum >= len(ctl.links) {
			return nil, ErrNoSuchIface
		}
		l := ctl.links[ifNum]
		wasSend := l.beaconMode == state.BeaconSend
		l.beaconMode = mode
		if mode == state.BeaconSend && !wasSend {
			// Transitioning to Send emits one beacon immediately (§4.3).
			l.sendBeacon()
		}
		return nil, nil
	})
	return err
}

// DisconnectPeer implements spec.md §6 disconnectPeer.
func (c *Controller) DisconnectPeer(key state.PublicKey) error {
	_, err := c.DispatchWait(func(ctl *Controller) (any, error) {
		for _, l := range ctl.links {
			for _, p := range l.peers {
				if p.key == key {
					p.destroy()
					return nil, nil
				}
			}
		}
		return nil, ErrNotFound
	})
	return err
}

// GetPeerStats implements spec.md §6 getPeerStats: a point-in-time
// snapshot across every LinkInterface.
func (c *Controller) GetPeerStats() ([]PeerStats, error) {
	res, err := c.DispatchWait(func(ctl *Controller) (any, error) {
		var stats []PeerStats
		for _, l := range ctl.links {
			for _, p := range l.peers {
				user, _ := p.sess.User()
				replay := p.sess.ReplayProtector()
				stats = append(stats, PeerStats{
					LLAddr:             p.lladdr,
					IfNum:              l.ifNum,
					Key:                p.key,
					IP6:                p.ip6.String(),
					State:              p.peerState,
					TimeOfLastMessage:  p.timeOfLastMessage.UnixMilli(),
					BytesIn:            p.bytesIn,
					BytesOut:           p.bytesOut,
					IsIncoming:         p.isIncoming,
					User:               user,
					Duplicates:         replay.Duplicates,
					LostPackets:        replay.LostPackets,
					ReceivedOutOfRange: replay.ReceivedOutOfRange,
				})
			}
		}
		return stats, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]PeerStats), nil
}
