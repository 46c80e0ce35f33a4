// Package eventbus declares the external routing-notification contract the
// controller publishes Peer/Peer-Gone events to (spec.md §6, §4.8). The
// pathfinders on the other end — path computation, metric aggregation — are
// out of scope; the controller only ever publishes and answers enumeration
// requests.
package eventbus

import (
	"encoding/binary"
	"net/netip"

	"github.com/meshwire/linkctl/state"
)

// Broadcast is the pathfinder id meaning "all subscribed pathfinders"
// (spec.md §6 pathfinder_id = 0xffffffff).
const Broadcast uint32 = 0xffffffff

// DirectMetric marks a peer event as describing a directly connected peer
// rather than a multi-hop route (spec.md §6 metric = 0xffffffff).
const DirectMetric uint32 = 0xffffffff

// Kind distinguishes a peer coming up from a peer going away.
type Kind uint32

const (
	Peer Kind = iota
	PeerGone
)

// PeerEvent is the wire-level payload published on the bus (spec.md §6).
type PeerEvent struct {
	Kind          Kind
	PathfinderID  uint32
	IP6           netip.Addr
	PublicKey     state.PublicKey
	Path          uint64
	Metric        uint32
	ProtocolVersion uint32
}

// Size is the encoded size of a PeerEvent, matching spec.md §6's literal
// byte layout: two leading u32s followed by a fixed 64-byte record.
const Size = 4 + 4 + 16 + 32 + 8 + 4 + 4

// Encode serializes e into the fixed-size wire format spec.md §6 describes.
func (e PeerEvent) Encode() []byte {
	buf := make([]byte, Size)
	binary.BigEndian.PutUint32(buf[0:4], uint32(e.Kind))
	binary.BigEndian.PutUint32(buf[4:8], e.PathfinderID)
	ip6 := e.IP6.As16()
	copy(buf[8:24], ip6[:])
	copy(buf[24:56], e.PublicKey[:])
	binary.BigEndian.PutUint64(buf[56:64], e.Path)
	binary.BigEndian.PutUint32(buf[64:68], e.Metric)
	binary.BigEndian.PutUint32(buf[68:72], e.ProtocolVersion)
	return buf
}

// Decode parses the wire format Encode produces.
func Decode(buf []byte) (PeerEvent, bool) {
	if len(buf) != Size {
		return PeerEvent{}, false
	}
	var e PeerEvent
	e.Kind = Kind(binary.BigEndian.Uint32(buf[0:4]))
	e.PathfinderID = binary.BigEndian.Uint32(buf[4:8])
	var ip6 [16]byte
	copy(ip6[:], buf[8:24])
	e.IP6 = netip.AddrFrom16(ip6)
	copy(e.PublicKey[:], buf[24:56])
	e.Path = binary.BigEndian.Uint64(buf[56:64])
	e.Metric = binary.BigEndian.Uint32(buf[64:68])
	e.ProtocolVersion = binary.BigEndian.Uint32(buf[68:72])
	return e, true
}

// EnumerateRequest is the single inbound message kind the controller
// listens for on the bus: "enumerate peers for pathfinder X" (spec.md §4.8).
type EnumerateRequest struct {
	PathfinderID uint32
}

// Bus is the external event-bus contract (spec.md §6). Publish is called by
// the controller whenever a Peer transitions in a way spec.md §4.8 says
// warrants notification; Subscribe registers a pathfinder to receive
// published events on the returned channel, and Enumerate queues its
// EnumerateRequest messages for the controller on Requests().
type Bus interface {
	// Publish delivers ev to every subscriber matching ev.PathfinderID
	// (or all subscribers, when it is Broadcast).
	Publish(ev PeerEvent)

	// Requests returns the channel the controller should receive
	// EnumerateRequest messages on.
	Requests() <-chan EnumerateRequest

	// Subscribe registers a pathfinder to receive published events. The
	// returned channel is closed when Unsubscribe is called.
	Subscribe(pathfinderID uint32) <-chan PeerEvent

	// Unsubscribe removes a pathfinder's subscription.
	Unsubscribe(pathfinderID uint32)

	// Enumerate is how a pathfinder asks the controller to replay one
	// Peer event per Established peer (spec.md §4.8); it is the
	// pathfinder-facing half of the Requests() channel.
	Enumerate(pathfinderID uint32)
}
