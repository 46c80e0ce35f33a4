package switchmock

import (
	"context"
	"testing"

	"github.com/meshwire/linkctl/meshswitch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopReceiver struct {
	frames [][]byte
}

func (n *noopReceiver) DeliverFromSwitch(frame []byte) error {
	n.frames = append(n.frames, frame)
	return nil
}

func TestAddInterfaceAssignsDistinctLabels(t *testing.T) {
	sw := NewSwitch(0)
	h1, err := sw.AddInterface(&noopReceiver{}, 0)
	require.NoError(t, err)
	h2, err := sw.AddInterface(&noopReceiver{}, 0)
	require.NoError(t, err)
	assert.NotEqual(t, h1.PathLabel(), h2.PathLabel())
}

func TestAddInterfaceOutOfSpace(t *testing.T) {
	sw := NewSwitch(1)
	_, err := sw.AddInterface(&noopReceiver{}, 0)
	require.NoError(t, err)
	_, err = sw.AddInterface(&noopReceiver{}, 0)
	assert.ErrorIs(t, err, meshswitch.ErrOutOfSpace)
}

func TestSwapInterfacesExchangesLabels(t *testing.T) {
	sw := NewSwitch(0)
	h1, _ := sw.AddInterface(&noopReceiver{}, 0)
	h2, _ := sw.AddInterface(&noopReceiver{}, 0)
	l1, l2 := h1.PathLabel(), h2.PathLabel()

	sw.SwapInterfaces(h1, h2)

	assert.Equal(t, l2, h1.PathLabel())
	assert.Equal(t, l1, h2.PathLabel())
}

func TestRemoveFreesLabel(t *testing.T) {
	sw := NewSwitch(0)
	h, _ := sw.AddInterface(&noopReceiver{}, 0)
	label := h.PathLabel()
	assert.True(t, sw.Registered(label))
	h.Remove()
	assert.False(t, sw.Registered(label))
}

func TestInjectFromSwitchDeliversToCurrentHolder(t *testing.T) {
	sw := NewSwitch(0)
	rec := &noopReceiver{}
	h, _ := sw.AddInterface(rec, 0)
	sw.InjectFromSwitch(h.PathLabel(), []byte("hi"))
	require.Len(t, rec.frames, 1)
	assert.Equal(t, "hi", string(rec.frames[0]))
}

func TestPingerReturnsConfiguredResponse(t *testing.T) {
	sw := NewSwitch(0)
	h, _ := sw.AddInterface(&noopReceiver{}, 0)
	pinger := NewPinger()
	pinger.SetResponse(h.PathLabel(), meshswitch.PingResponse{ProtocolVersion: 7, PathLabel: h.PathLabel()})

	resp, err := pinger.Ping(context.Background(), h)
	require.NoError(t, err)
	assert.EqualValues(t, 7, resp.ProtocolVersion)
}

func TestPingerDefaultsToTimeout(t *testing.T) {
	sw := NewSwitch(0)
	h, _ := sw.AddInterface(&noopReceiver{}, 0)
	pinger := NewPinger()

	_, err := pinger.Ping(context.Background(), h)
	assert.ErrorIs(t, err, meshswitch.ErrPingTimeout)
}
