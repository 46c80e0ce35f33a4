// Package linkctl implements the peer link controller: per-peer
// authenticated sessions, liveness tracking, beacon admission, and the
// bridge between a link-layer transport and a packet switch.
package linkctl

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/meshwire/linkctl/eventbus"
	"github.com/meshwire/linkctl/meshswitch"
	"github.com/meshwire/linkctl/session"
	"github.com/meshwire/linkctl/state"
)

// resolvedTuning is state.Tuning with every field dereferenced, so the hot
// paths (ping tick, outbound data path) never nil-check.
type resolvedTuning struct {
	UnresponsiveAfter time.Duration
	PingAfter         time.Duration
	PingInterval      time.Duration
	PingTimeout       time.Duration
	ForgetAfter       time.Duration
	BeaconInterval    time.Duration
}

func resolveTuning(t state.Tuning) resolvedTuning {
	r := t.Resolve()
	return resolvedTuning{
		UnresponsiveAfter: *r.UnresponsiveAfter,
		PingAfter:         *r.PingAfter,
		PingInterval:      *r.PingInterval,
		PingTimeout:       *r.PingTimeout,
		ForgetAfter:       *r.ForgetAfter,
		BeaconInterval:    *r.BeaconInterval,
	}
}

// Controller is the root of the peer link controller (spec.md §3).
type Controller struct {
	env      *state.Env
	dispatch chan func(*Controller) error
	scope    *state.Scope

	links []*LinkInterface

	factory session.Factory
	sw      meshswitch.Switch
	pinger  meshswitch.Pinger
	bus     eventbus.Bus

	clock Clock
	rng   RNG

	localKey        state.PrivateKey
	localPub        state.PublicKey
	beaconPassword  []byte
	protocolVersion uint32

	tuning resolvedTuning

	// pingInFlight dedupes concurrent opportunistic/tick pings to the same
	// path label; entries expire on their own after PingTimeout so a lost
	// response can't wedge a peer out of future pings forever.
	pingInFlight *ttlcache.Cache[uint64, struct{}]
}

// Options gathers the external collaborators and config a Controller is
// built from (spec.md §6 external interfaces).
type Options struct {
	Env             *state.Env
	Config          state.Config
	Factory         session.Factory
	Switch          meshswitch.Switch
	Pinger          meshswitch.Pinger
	Bus             eventbus.Bus
	Clock           Clock
	RNG             RNG
	ProtocolVersion uint32
}

// NewController builds a Controller from opts, generates its beacon
// password, and registers that password as an accepted inbound credential
// with the session factory (spec.md §6 addUser).
func NewController(opts Options) (*Controller, error) {
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.RNG == nil {
		opts.RNG = systemRNG{}
	}

	password := make([]byte, state.BeaconPasswordLen)
	if _, err := rand.Read(password); err != nil {
		return nil, fmt.Errorf("generate beacon password: %w", err)
	}

	tuning := resolveTuning(opts.Config.Tuning)

	c := &Controller{
		env:             opts.Env,
		dispatch:        make(chan func(*Controller) error),
		scope:           state.NewScope(nil),
		factory:         opts.Factory,
		sw:              opts.Switch,
		pinger:          opts.Pinger,
		bus:             opts.Bus,
		clock:           opts.Clock,
		rng:             opts.RNG,
		localKey:        opts.Config.Key,
		localPub:        opts.Config.Key.Pubkey(),
		beaconPassword:  password,
		protocolVersion: opts.ProtocolVersion,
		tuning:          tuning,
		pingInFlight: ttlcache.New[uint64, struct{}](
			ttlcache.WithTTL[uint64, struct{}](tuning.PingTimeout),
		),
	}
	go c.pingInFlight.Start()
	c.scope.OnClose(func() { c.pingInFlight.Stop() })

	if err := c.factory.AddUser(password, session.AuthPassword, "beacon"); err != nil {
		return nil, fmt.Errorf("register beacon password: %w", err)
	}

	for _, lc := range opts.Config.Links {
		if _, err := c.newIfaceLocked(lc.Name, lc.BeaconMode); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Env exposes the controller's ambient handle (context, cancel, logger) to
// callers that need to observe shutdown or log alongside the controller,
// such as an admin IPC listener bound to the same lifetime.
func (c *Controller) Env() *state.Env { return c.env }

// Start begins the ping tick, beacon tick, and event-bus request listener,
// then runs the controller's event loop until its context is cancelled.
// Production entry point; tests that want tick behavior on a simulated
// clock should call RunLoop and invoke TickPings/TickBeacons directly
// instead, since RepeatTask schedules on wall-clock time.
func (c *Controller) Start() {
	c.RepeatTask(tickPings, c.tuning.PingInterval)
	c.RepeatTask(tickBeacons, c.tuning.BeaconInterval)
	c.RunLoop()
}

// RunLoop starts the event-bus request listener and runs the event loop
// until the controller's context is cancelled, without starting any
// wall-clock-driven periodic task.
func (c *Controller) RunLoop() {
	go c.serveEnumerateRequests()
	c.MainLoop()
}

// TickPings runs one ping tick synchronously on the event loop (spec.md
// §4.6). Exported so tests can drive it against a simulated clock instead
// of waiting on the real PingInterval.
func (c *Controller) TickPings() {
	_, _ = c.DispatchWait(func(ctl *Controller) (any, error) {
		return nil, tickPings(ctl)
	})
}

// TickBeacons runs one beacon tick synchronously on the event loop
// (spec.md §4.3 Send).
func (c *Controller) TickBeacons() {
	_, _ = c.DispatchWait(func(ctl *Controller) (any, error) {
		return nil, tickBeacons(ctl)
	})
}

// serveEnumerateRequests bridges the bus's request channel onto the loop
// goroutine (spec.md §4.8, §5 "event-bus message" handlers run on the
// loop like everything else).
func (c *Controller) serveEnumerateRequests() {
	for {
		select {
		case req, ok := <-c.bus.Requests():
			if !ok {
				return
			}
			c.Dispatch(func(ctl *Controller) error {
				ctl.handleEnumerate(req.PathfinderID)
				return nil
			})
		case <-c.env.Context.Done():
			return
		}
	}
}

func (c *Controller) handleEnumerate(pathfinderID uint32) {
	for _, l := range c.links {
		for _, p := range l.peers {
			if p.peerState == Established {
				c.bus.Publish(peerEvent(eventbus.Peer, pathfinderID, p))
			}
		}
	}
}

func peerEvent(kind eventbus.Kind, pathfinderID uint32, p *Peer) eventbus.PeerEvent {
	return eventbus.PeerEvent{
		Kind:            kind,
		PathfinderID:    pathfinderID,
		IP6:             p.ip6,
		PublicKey:       p.key,
		Path:            p.handle.PathLabel(),
		Metric:          eventbus.DirectMetric,
		ProtocolVersion: p.protocolVersion,
	}
}

// publishPeer proactively notifies every pathfinder of a peer coming up
// or changing (spec.md §4.8).
func (c *Controller) publishPeer(p *Peer) {
	c.bus.Publish(peerEvent(eventbus.Peer, eventbus.Broadcast, p))
}

// publishPeerGone notifies every pathfinder a peer is gone (spec.md §3
// invariant: published exactly once per Peer destruction/Unresponsive
// transition).
func (c *Controller) publishPeerGone(p *Peer) {
	c.bus.Publish(peerEvent(eventbus.PeerGone, eventbus.Broadcast, p))
}
