package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesBroadcast(t *testing.T) {
	b := NewInProcess(1)
	ch := b.Subscribe(1)

	b.Publish(PeerEvent{Kind: Peer, PathfinderID: Broadcast})

	select {
	case ev := <-ch:
		assert.Equal(t, Peer, ev.Kind)
	default:
		t.Fatal("expected a broadcast event")
	}
}

func TestPublishTargetedDeliversOnlyToMatchingSubscriber(t *testing.T) {
	b := NewInProcess(1)
	a := b.Subscribe(1)
	other := b.Subscribe(2)

	b.Publish(PeerEvent{Kind: Peer, PathfinderID: 1})

	select {
	case <-a:
	default:
		t.Fatal("expected subscriber 1 to receive the event")
	}
	select {
	case <-other:
		t.Fatal("subscriber 2 should not have received a targeted event")
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewInProcess(1)
	ch := b.Subscribe(1)
	b.Unsubscribe(1)

	_, open := <-ch
	assert.False(t, open)
}

func TestEnumerateQueuesRequest(t *testing.T) {
	b := NewInProcess(1)
	b.Enumerate(7)

	req := <-b.Requests()
	require.Equal(t, uint32(7), req.PathfinderID)
}
