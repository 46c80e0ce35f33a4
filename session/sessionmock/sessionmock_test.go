package sessionmock

import (
	"testing"

	"github.com/meshwire/linkctl/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	switchIn    [][]byte
	externalOut [][]byte
}

func (r *recorder) DeliverSwitchIn(frame []byte)    { r.switchIn = append(r.switchIn, frame) }
func (r *recorder) DeliverExternalOut(frame []byte) { r.externalOut = append(r.externalOut, frame) }

func TestHandshakeWalksAllFourStages(t *testing.T) {
	f := NewFactory()
	rec := &recorder{}
	key := [32]byte{1, 2, 3}
	s, err := f.Wrap(session.ModeInbound, nil, false, rec, rec)
	require.NoError(t, err)

	assert.Equal(t, session.New, s.State())
	for _, want := range []session.State{session.Handshake1, session.Handshake2, session.Handshake3, session.Established} {
		require.NoError(t, s.Deliver(HandshakeFrame(key)))
		assert.Equal(t, want, s.State())
	}
	assert.Equal(t, key, s.HerPublicKey())
	assert.Len(t, rec.externalOut, 4)
}

func TestApplicationFrameRoundTrip(t *testing.T) {
	f := NewFactory()
	rec := &recorder{}
	s, err := f.Wrap(session.ModeOutbound, &[32]byte{9}, false, rec, rec)
	require.NoError(t, err)
	s.(*Session).SetState(session.Established)

	require.NoError(t, s.Send([]byte("hello")))
	require.Len(t, rec.externalOut, 1)

	require.NoError(t, s.Deliver(rec.externalOut[0]))
	require.Len(t, rec.switchIn, 1)
	assert.Equal(t, "hello", string(rec.switchIn[0]))
}

func TestRejectFirstFrame(t *testing.T) {
	f := NewFactory()
	rec := &recorder{}
	s, err := f.Wrap(session.ModeInbound, nil, false, rec, rec)
	require.NoError(t, err)
	s.(*Session).RejectFirst = true

	err = s.Deliver([]byte("garbage"))
	assert.ErrorIs(t, err, session.ErrRejected)
}

func TestAddUserRecordsCall(t *testing.T) {
	f := NewFactory()
	require.NoError(t, f.AddUser([]byte("pw"), session.AuthPassword, "beacon"))
	require.Len(t, f.AddUserCalls, 1)
	assert.Equal(t, "beacon", f.AddUserCalls[0].Label)
}
