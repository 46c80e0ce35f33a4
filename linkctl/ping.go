package linkctl

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/meshwire/linkctl/meshswitch"
	"github.com/meshwire/linkctl/state"
)

// tickPings is the ping tick (spec.md §4.6), fired every PingInterval.
func tickPings(c *Controller) error {
	now := c.clock.Now()
	for _, l := range c.links {
		c.tickLinkPing(l, now)
	}
	return nil
}

// tickBeacons is the beacon tick (spec.md §4.3 Send), fired every
// BeaconInterval.
func tickBeacons(c *Controller) error {
	for _, l := range c.links {
		if l.beaconMode == state.BeaconSend {
			l.sendBeacon()
		}
	}
	return nil
}

// tickLinkPing visits at most one candidate Peer on l, chosen by scanning
// a snapshot of its peer map starting at a uniformly random offset
// (spec.md §9: deliberate, prevents a peer at the head of the map from
// monopolizing ping slots). Snapshotting also sidesteps the
// iteration-vs-mutation hazard spec.md §5 calls out.
func (c *Controller) tickLinkPing(l *LinkInterface, now time.Time) {
	if len(l.peers) == 0 {
		return
	}
	addrs := make([]LLAddr, 0, len(l.peers))
	for addr := range l.peers {
		addrs = append(addrs, addr)
	}
	start := c.rng.IntN(len(addrs))
	for i := 0; i < len(addrs); i++ {
		addr := addrs[(start+i)%len(addrs)]
		p, ok := l.peers[addr]
		if !ok {
			continue
		}
		if c.visitPingCandidate(p, now) {
			return
		}
	}
}

// visitPingCandidate applies spec.md §4.6 to a single peer. It returns
// true if p met the silence criteria and an action (forget/ping/mark
// unresponsive) was taken — the caller stops scanning the link either way
// once one candidate is found.
func (c *Controller) visitPingCandidate(p *Peer, now time.Time) bool {
	if now.Before(p.timeOfLastMessage.Add(c.tuning.PingAfter)) {
		return false
	}
	if now.Before(p.timeOfLastPing.Add(c.tuning.PingAfter)) {
		return false
	}

	if p.isIncoming && !now.Before(p.timeOfLastMessage.Add(c.tuning.ForgetAfter)) {
		p.destroy()
		return true
	}

	if !now.Before(p.timeOfLastMessage.Add(c.tuning.UnresponsiveAfter)) {
		if p.peerState != Unresponsive {
			p.peerState = Unresponsive
			c.publishPeerGone(p)
		}
		shouldPing := p.pingCount%state.UnresponsivePingEvery == 0
		p.pingCount++
		if shouldPing {
			c.sendPing(p)
		}
		return true
	}

	// Lazy: silent longer than pingAfter but not yet unresponsiveAfter.
	p.pingCount++
	c.sendPing(p)
	return true
}

// sendPing issues one switch-ping for p, off the loop goroutine, and
// dispatches the result back onto it. Concurrent pings to the same path
// label are deduped via pingInFlight, which also bounds how long a lost
// response can wedge a peer out of future pings.
func (c *Controller) sendPing(p *Peer) {
	label := p.handle.PathLabel()
	if c.pingInFlight.Get(label) != nil {
		return
	}
	c.pingInFlight.Set(label, struct{}{}, ttlcache.DefaultTTL)

	go func() {
		ctx, cancel := context.WithTimeout(c.env.Context, c.tuning.PingTimeout)
		defer cancel()
		resp, err := c.pinger.Ping(ctx, p.handle)
		c.Dispatch(func(ctl *Controller) error {
			ctl.handlePingResult(p, label, resp, err)
			return nil
		})
	}()
}

// opportunisticPing is the pre-Established admission guard's and
// bootstrapPeer's one-off switch-ping (spec.md §4.1, §4.5); it shares
// sendPing's dedup/timeout machinery with the regular tick.
func (c *Controller) opportunisticPing(p *Peer) {
	c.sendPing(p)
}

func (c *Controller) handlePingResult(p *Peer, label uint64, resp meshswitch.PingResponse, err error) {
	if p.scope.Closed() {
		return
	}
	if err != nil {
		c.env.Log.Debug("ping failed", "label", label, "error", err)
		return
	}
	if resp.PathLabel != label {
		c.env.Log.Debug("ping response path label mismatch", "want", label, "got", resp.PathLabel)
		return
	}
	if resp.ProtocolVersion != c.protocolVersion {
		c.env.Log.Debug("ping response incompatible version", "version", resp.ProtocolVersion)
		return
	}

	p.protocolVersion = resp.ProtocolVersion
	p.timeOfLastPing = c.clock.Now()
	if p.peerState == Established {
		c.publishPeer(p)
	}
}
