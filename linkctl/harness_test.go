package linkctl

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshwire/linkctl/eventbus"
	"github.com/meshwire/linkctl/linkctl/testutil"
	"github.com/meshwire/linkctl/meshswitch/switchmock"
	"github.com/meshwire/linkctl/session/sessionmock"
	"github.com/meshwire/linkctl/state"
)

// harness wires a Controller to the deterministic mocks/fixtures every
// test in this package needs, the way the teacher's SampleNetwork wires a
// CentralCfg for its own tests.
type harness struct {
	t         *testing.T
	ctl       *Controller
	clock     *testutil.Clock
	rng       *testutil.RNG
	factory   *sessionmock.Factory
	sw        *switchmock.Switch
	pinger    *switchmock.Pinger
	bus       *eventbus.InProcess
	transport *testutil.Transport
	ifNum     int
	localKey  state.PrivateKey
}

func newHarness(t *testing.T, beaconMode state.BeaconMode) *harness {
	t.Helper()

	ctx, cancel := context.WithCancelCause(context.Background())
	t.Cleanup(func() { cancel(context.Canceled) })

	env := &state.Env{
		Context: ctx,
		Cancel:  cancel,
		Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	clock := testutil.NewClock(time.Unix(1_700_000_000, 0))
	rng := testutil.NewRNG(0)
	factory := sessionmock.NewFactory()
	sw := switchmock.NewSwitch(0)
	pinger := switchmock.NewPinger()
	bus := eventbus.NewInProcess(8)

	key := state.GenerateKey()

	ctl, err := NewController(Options{
		Env:             env,
		Config:          state.Config{Id: "node", Key: key},
		Factory:         factory,
		Switch:          sw,
		Pinger:          pinger,
		Bus:             bus,
		Clock:           clock,
		RNG:             rng,
		ProtocolVersion: 22,
	})
	require.NoError(t, err)

	go ctl.RunLoop()

	transport := testutil.NewTransport()
	ifNum, err := ctl.NewIface("eth0", beaconMode, state.NewScope(nil))
	require.NoError(t, err)
	require.NoError(t, ctl.BindTransport(ifNum, transport))

	return &harness{
		t:         t,
		ctl:       ctl,
		clock:     clock,
		rng:       rng,
		factory:   factory,
		sw:        sw,
		pinger:    pinger,
		bus:       bus,
		transport: transport,
		ifNum:     ifNum,
		localKey:  key,
	}
}

func (h *harness) link() *LinkInterface {
	res, err := h.ctl.DispatchWait(func(ctl *Controller) (any, error) {
		return ctl.links[h.ifNum], nil
	})
	require.NoError(h.t, err)
	return res.(*LinkInterface)
}

func (h *harness) peer(addr LLAddr) *Peer {
	res, err := h.ctl.DispatchWait(func(ctl *Controller) (any, error) {
		return ctl.links[h.ifNum].peers[addr], nil
	})
	require.NoError(h.t, err)
	p, _ := res.(*Peer)
	return p
}

func (h *harness) peerCount() int {
	res, err := h.ctl.DispatchWait(func(ctl *Controller) (any, error) {
		return len(ctl.links[h.ifNum].peers), nil
	})
	require.NoError(h.t, err)
	return res.(int)
}

func (h *harness) peerByKey(key state.PublicKey) *Peer {
	res, err := h.ctl.DispatchWait(func(ctl *Controller) (any, error) {
		for _, p := range ctl.links[h.ifNum].peers {
			if p.key == key {
				return p, nil
			}
		}
		return nil, nil
	})
	require.NoError(h.t, err)
	p, _ := res.(*Peer)
	return p
}

func (h *harness) anyPeer() *Peer {
	res, err := h.ctl.DispatchWait(func(ctl *Controller) (any, error) {
		for _, p := range ctl.links[h.ifNum].peers {
			return p, nil
		}
		return nil, nil
	})
	require.NoError(h.t, err)
	p, _ := res.(*Peer)
	return p
}
