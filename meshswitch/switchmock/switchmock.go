// Package switchmock is a deterministic in-memory stand-in for
// meshswitch.Switch and meshswitch.Pinger, used by linkctl's tests the
// same way session/sessionmock stands in for the crypto engine.
package switchmock

import (
	"context"
	"sync"

	"github.com/meshwire/linkctl/meshswitch"
)

// Switch is a meshswitch.Switch backed by an in-memory label table.
// Capacity <= 0 means unlimited.
type Switch struct {
	mu        sync.Mutex
	capacity  int
	nextLabel uint64
	slots     map[uint64]*handle
}

func NewSwitch(capacity int) *Switch {
	return &Switch{capacity: capacity, slots: make(map[uint64]*handle)}
}

// SetCapacity changes the slot limit after construction, letting a test
// provoke ErrOutOfSpace on demand without rebuilding the whole harness.
func (s *Switch) SetCapacity(capacity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capacity = capacity
}

func (s *Switch) AddInterface(receiver meshswitch.Receiver, priority int) (meshswitch.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capacity > 0 && len(s.slots) >= s.capacity {
		return nil, meshswitch.ErrOutOfSpace
	}
	s.nextLabel++
	h := &handle{sw: s, label: s.nextLabel, receiver: receiver, priority: priority}
	s.slots[h.label] = h
	return h, nil
}

func (s *Switch) SwapInterfaces(a, b meshswitch.Handle) {
	ha, okA := a.(*handle)
	hb, okB := b.(*handle)
	if !okA || !okB {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ha.label, hb.label = hb.label, ha.label
	s.slots[ha.label] = ha
	s.slots[hb.label] = hb
}

// Registered reports whether label still refers to a live slot. Test
// helper for asserting relocation/removal bookkeeping.
func (s *Switch) Registered(label uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.slots[label]
	return ok
}

// InjectFromSwitch simulates the switch routing a frame to whatever
// interface currently holds label (the switch->peer direction).
func (s *Switch) InjectFromSwitch(label uint64, frame []byte) error {
	s.mu.Lock()
	h, ok := s.slots[label]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return h.receiver.DeliverFromSwitch(frame)
}

type handle struct {
	sw       *Switch
	label    uint64
	receiver meshswitch.Receiver
	priority int
	removed  bool

	mu   sync.Mutex
	sent [][]byte
}

func (h *handle) PathLabel() uint64 {
	h.sw.mu.Lock()
	defer h.sw.mu.Unlock()
	return h.label
}

func (h *handle) Send(frame []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, append([]byte(nil), frame...))
	return nil
}

// Sent returns every frame handed to the switch via Send, for assertions.
func (h *handle) Sent() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sent
}

func (h *handle) Remove() {
	h.sw.mu.Lock()
	defer h.sw.mu.Unlock()
	if h.removed {
		return
	}
	h.removed = true
	delete(h.sw.slots, h.label)
}

// Sent exposes handle.Sent() for a meshswitch.Handle known to be backed by
// this mock; it panics if handle is not one of ours, which is always a
// test-authoring error.
func Sent(h meshswitch.Handle) [][]byte {
	return h.(*handle).Sent()
}

// Pinger is a deterministic meshswitch.Pinger: tests pre-program the
// response (or error) a given path label should return.
type Pinger struct {
	mu        sync.Mutex
	responses map[uint64]meshswitch.PingResponse
	errs      map[uint64]error
	Calls     []uint64
}

func NewPinger() *Pinger {
	return &Pinger{
		responses: make(map[uint64]meshswitch.PingResponse),
		errs:      make(map[uint64]error),
	}
}

func (p *Pinger) SetResponse(label uint64, resp meshswitch.PingResponse) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses[label] = resp
	delete(p.errs, label)
}

func (p *Pinger) SetError(label uint64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[label] = err
	delete(p.responses, label)
}

func (p *Pinger) Ping(ctx context.Context, h meshswitch.Handle) (meshswitch.PingResponse, error) {
	label := h.PathLabel()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, label)
	if err, ok := p.errs[label]; ok {
		return meshswitch.PingResponse{}, err
	}
	if resp, ok := p.responses[label]; ok {
		return resp, nil
	}
	return meshswitch.PingResponse{}, meshswitch.ErrPingTimeout
}
