package linkctl

import (
	"testing"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshwire/linkctl/meshswitch"
	"github.com/meshwire/linkctl/meshswitch/switchmock"
	"github.com/meshwire/linkctl/session/sessionmock"
	"github.com/meshwire/linkctl/state"
)

func establish(h *harness, addr LLAddr, key state.PublicKey) *Peer {
	frame := sessionmock.HandshakeFrame(key)
	h.ctl.DeliverInbound(h.ifNum, encodeFrame(0, addr, frame))
	for i := 0; i < 3; i++ {
		h.ctl.DeliverInbound(h.ifNum, encodeFrame(0, addr, frame))
	}
	return h.peer(addr)
}

func TestHandshakeWalksThroughAllStates(t *testing.T) {
	h := newHarness(t, state.BeaconOff)
	remoteKey := state.GenerateKey().Pubkey()
	frame := sessionmock.HandshakeFrame(remoteKey)

	h.ctl.DeliverInbound(h.ifNum, encodeFrame(0, "peer1", frame))
	assert.Equal(t, Handshake1, h.peer("peer1").State())

	h.ctl.DeliverInbound(h.ifNum, encodeFrame(0, "peer1", frame))
	assert.Equal(t, Handshake2, h.peer("peer1").State())

	h.ctl.DeliverInbound(h.ifNum, encodeFrame(0, "peer1", frame))
	assert.Equal(t, Handshake3, h.peer("peer1").State())

	h.ctl.DeliverInbound(h.ifNum, encodeFrame(0, "peer1", frame))
	p := h.peer("peer1")
	assert.Equal(t, Established, p.State())
	assert.Equal(t, remoteKey, p.key)
}

func TestPreEstablishedFrameIsNotForwardedToSwitch(t *testing.T) {
	h := newHarness(t, state.BeaconOff)
	remoteKey := state.GenerateKey().Pubkey()
	handshake := sessionmock.HandshakeFrame(remoteKey)
	h.ctl.DeliverInbound(h.ifNum, encodeFrame(0, "peer1", handshake))
	p := h.peer("peer1")
	require.Equal(t, Handshake1, p.State())

	appFrame := append([]byte{'E'}, []byte{0, 0, 0, 0, 0, 0, 0, 0, 9, 9}...)
	h.ctl.DeliverInbound(h.ifNum, encodeFrame(0, "peer1", appFrame))

	assert.Empty(t, switchmock.Sent(p.handle))
}

func TestPreEstablishedTerminateHereBypassesGuard(t *testing.T) {
	h := newHarness(t, state.BeaconOff)
	remoteKey := state.GenerateKey().Pubkey()
	handshake := sessionmock.HandshakeFrame(remoteKey)
	h.ctl.DeliverInbound(h.ifNum, encodeFrame(0, "peer1", handshake))
	p := h.peer("peer1")
	require.Equal(t, Handshake1, p.State())

	header := make([]byte, state.SwitchHeaderTerminateOffset+1)
	header[state.SwitchHeaderTerminateOffset] = 1
	appFrame := append([]byte{'E'}, header...)
	h.ctl.DeliverInbound(h.ifNum, encodeFrame(0, "peer1", appFrame))

	assert.Len(t, switchmock.Sent(p.handle), 1)
}

func TestPreEstablishedGuardSkipsOnlyEverySeventhFrame(t *testing.T) {
	h := newHarness(t, state.BeaconOff)
	remoteKey := state.GenerateKey().Pubkey()
	handshake := sessionmock.HandshakeFrame(remoteKey)
	h.ctl.DeliverInbound(h.ifNum, encodeFrame(0, "peer1", handshake))
	p := h.peer("peer1")
	require.Equal(t, Handshake1, p.State())

	// Swap in a near-zero dedup window so each frame's ping attempt (or the
	// one skipped attempt) shows up as its own entry in h.pinger.Calls
	// instead of collapsing into whichever ping is already in flight.
	_, err := h.ctl.DispatchWait(func(ctl *Controller) (any, error) {
		ctl.pingInFlight.Stop()
		ctl.pingInFlight = ttlcache.New[uint64, struct{}](
			ttlcache.WithTTL[uint64, struct{}](time.Microsecond),
		)
		go ctl.pingInFlight.Start()
		return nil, nil
	})
	require.NoError(t, err)

	nonTerminate := append([]byte{'E'}, []byte{0, 0, 0, 0, 0, 0, 0, 0}...)
	for i := 0; i < int(state.PreEstablishedPingEvery); i++ {
		h.ctl.DeliverInbound(h.ifNum, encodeFrame(0, "peer1", nonTerminate))
		time.Sleep(2 * time.Millisecond)
	}

	want := int(state.PreEstablishedPingEvery) - 1
	require.Eventually(t, func() bool {
		return len(h.pinger.Calls) == want
	}, time.Second, time.Millisecond)
	for _, label := range h.pinger.Calls {
		assert.Equal(t, p.handle.PathLabel(), label)
	}
}

func TestOutboundDataPathSendsThroughSession(t *testing.T) {
	h := newHarness(t, state.BeaconOff)
	remoteKey := state.GenerateKey().Pubkey()
	p := establish(h, "peer1", remoteKey)
	require.Equal(t, Established, p.State())

	h.transport.Reset()
	err := h.sw.InjectFromSwitch(p.handle.PathLabel(), []byte("hello"))
	require.NoError(t, err)

	sent := h.transport.Sent()
	require.Len(t, sent, 1)
	_, addr, payload, ok := decodeFrame(sent[0])
	require.True(t, ok)
	assert.Equal(t, LLAddr("peer1"), addr)
	assert.Equal(t, append([]byte{'E'}, []byte("hello")...), payload)
}

func TestOutboundDataPathClonesAndReportsUndeliverableWhenStale(t *testing.T) {
	h := newHarness(t, state.BeaconOff)
	remoteKey := state.GenerateKey().Pubkey()
	p := establish(h, "peer1", remoteKey)
	require.Equal(t, Established, p.State())

	h.clock.Advance(h.ctl.tuning.UnresponsiveAfter + time.Millisecond)
	h.transport.Reset()

	err := h.sw.InjectFromSwitch(p.handle.PathLabel(), []byte("stale"))
	assert.ErrorIs(t, err, meshswitch.ErrUndeliverable)

	// The frame is still cloned through the session onto the transport
	// even though the switch is told it was undeliverable (spec.md §4.7).
	sent := h.transport.Sent()
	require.Len(t, sent, 1)
}
