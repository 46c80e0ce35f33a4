package linkctl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshwire/linkctl/state"
)

func TestBootstrapPeerRejectsBadIfNum(t *testing.T) {
	h := newHarness(t, state.BeaconOff)
	remoteKey := state.GenerateKey().Pubkey()
	err := h.ctl.BootstrapPeer(99, remoteKey, "remote1", []byte("pw"), state.NewScope(nil))
	assert.ErrorIs(t, err, ErrBadIfNum)
}

func TestBootstrapPeerRejectsBadKey(t *testing.T) {
	h := newHarness(t, state.BeaconOff)
	err := h.ctl.BootstrapPeer(h.ifNum, h.localKey.Pubkey(), "remote1", []byte("pw"), state.NewScope(nil))
	assert.ErrorIs(t, err, ErrBadKey)
}

func TestBootstrapPeerRejectsOutOfSpace(t *testing.T) {
	h := newHarness(t, state.BeaconOff)
	// Fill the switch's single slot with an already-bootstrapped peer, then
	// try a second one.
	firstKey := state.GenerateKey().Pubkey()
	require.NoError(t, h.ctl.BootstrapPeer(h.ifNum, firstKey, "remote1", []byte("pw"), state.NewScope(nil)))

	h.sw.SetCapacity(1)
	secondKey := state.GenerateKey().Pubkey()
	err := h.ctl.BootstrapPeer(h.ifNum, secondKey, "remote2", []byte("pw"), state.NewScope(nil))
	assert.ErrorIs(t, err, ErrOutOfSpace)
}

func TestBootstrapPeerSucceedsAndPingsImmediately(t *testing.T) {
	h := newHarness(t, state.BeaconOff)
	remoteKey := state.GenerateKey().Pubkey()
	require.NoError(t, h.ctl.BootstrapPeer(h.ifNum, remoteKey, "remote1", []byte("pw"), state.NewScope(nil)))

	p := h.peer("remote1")
	require.NotNil(t, p)
	assert.False(t, p.isIncoming)
	assert.Equal(t, remoteKey, p.key)

	require.Eventually(t, func() bool {
		return len(h.pinger.Calls) == 1
	}, time.Second, time.Millisecond)
}

func TestBootstrapPeerScopeCloseDestroysPeer(t *testing.T) {
	h := newHarness(t, state.BeaconOff)
	remoteKey := state.GenerateKey().Pubkey()
	callerScope := state.NewScope(nil)
	require.NoError(t, h.ctl.BootstrapPeer(h.ifNum, remoteKey, "remote1", []byte("pw"), callerScope))
	require.Equal(t, 1, h.peerCount())

	callerScope.Close()

	require.Eventually(t, func() bool {
		return h.peerCount() == 0
	}, time.Second, time.Millisecond)
}

func TestBeaconStateSendTransitionEmitsBeaconImmediately(t *testing.T) {
	h := newHarness(t, state.BeaconOff)
	h.transport.Reset()

	require.NoError(t, h.ctl.BeaconState(h.ifNum, state.BeaconSend))

	sent := h.transport.Sent()
	require.Len(t, sent, 1)
	flags, _, payload, ok := decodeFrame(sent[0])
	require.True(t, ok)
	assert.Equal(t, flagBroadcast, flags)
	b, ok := decodeBeacon(payload)
	require.True(t, ok)
	assert.Equal(t, h.localKey.Pubkey(), b.publicKey)
}

func TestBeaconStateUnknownIfaceFails(t *testing.T) {
	h := newHarness(t, state.BeaconOff)
	err := h.ctl.BeaconState(99, state.BeaconSend)
	assert.ErrorIs(t, err, ErrNoSuchIface)
}

func TestDisconnectPeerRemovesAndReportsNotFound(t *testing.T) {
	h := newHarness(t, state.BeaconOff)
	remoteKey := state.GenerateKey().Pubkey()
	require.NoError(t, h.ctl.BootstrapPeer(h.ifNum, remoteKey, "remote1", []byte("pw"), state.NewScope(nil)))
	require.Equal(t, 1, h.peerCount())

	require.NoError(t, h.ctl.DisconnectPeer(remoteKey))
	assert.Equal(t, 0, h.peerCount())

	err := h.ctl.DisconnectPeer(remoteKey)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetPeerStatsSnapshotsEveryLink(t *testing.T) {
	h := newHarness(t, state.BeaconOff)
	remoteKey := state.GenerateKey().Pubkey()
	require.NoError(t, h.ctl.BootstrapPeer(h.ifNum, remoteKey, "remote1", []byte("pw"), state.NewScope(nil)))

	stats, err := h.ctl.GetPeerStats()
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, remoteKey, stats[0].Key)
	assert.Equal(t, h.ifNum, stats[0].IfNum)
	assert.Equal(t, Unauthenticated, stats[0].State)
	assert.False(t, stats[0].IsIncoming)
}

func TestDestroyLinkDestroysEveryPeerOnIt(t *testing.T) {
	h := newHarness(t, state.BeaconOff)
	remoteKey := state.GenerateKey().Pubkey()
	require.NoError(t, h.ctl.BootstrapPeer(h.ifNum, remoteKey, "remote1", []byte("pw"), state.NewScope(nil)))
	require.Equal(t, 1, h.peerCount())

	_, err := h.ctl.DispatchWait(func(ctl *Controller) (any, error) {
		ctl.destroyLink(ctl.links[h.ifNum])
		return nil, nil
	})
	require.NoError(t, err)

	res, err := h.ctl.DispatchWait(func(ctl *Controller) (any, error) {
		return len(ctl.links[h.ifNum].peers), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.(int))
}

func TestEnumerateRequestPublishesEveryEstablishedPeer(t *testing.T) {
	h := newHarness(t, state.BeaconOff)
	remoteKey := state.GenerateKey().Pubkey()
	establish(h, "remote1", remoteKey)

	sub := h.bus.Subscribe(5)
	h.bus.Enumerate(5)

	require.Eventually(t, func() bool {
		select {
		case ev := <-sub:
			return ev.PublicKey == remoteKey
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}
