package eventbus

import (
	"net/netip"
	"testing"

	"github.com/meshwire/linkctl/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent() PeerEvent {
	return PeerEvent{
		Kind:            Peer,
		PathfinderID:    Broadcast,
		IP6:             netip.MustParseAddr("fc00::1"),
		PublicKey:       state.PublicKey{1, 2, 3},
		Path:            0xdeadbeef,
		Metric:          DirectMetric,
		ProtocolVersion: 22,
	}
}

func TestPeerEventEncodeDecodeRoundTrip(t *testing.T) {
	ev := sampleEvent()
	buf := ev.Encode()
	assert.Len(t, buf, Size)

	got, ok := Decode(buf)
	require.True(t, ok)
	assert.Equal(t, ev, got)
}

func TestDecodeRejectsWrongSize(t *testing.T) {
	_, ok := Decode([]byte{1, 2, 3})
	assert.False(t, ok)
}

func TestEncodeFieldOffsets(t *testing.T) {
	ev := sampleEvent()
	ev.Kind = PeerGone
	buf := ev.Encode()

	assert.Equal(t, []byte{0, 0, 0, 1}, buf[0:4])
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, buf[4:8])
	assert.Equal(t, byte(0xfc), buf[8])
}
