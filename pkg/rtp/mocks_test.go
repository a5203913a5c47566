package rtp

import (
	"errors"
	"net"
	"sync"
)

// mockAddr is a net.Addr that carries an arbitrary label, grounded on
// the teacher's MockTransport pattern (session_test.go) for exercising
// the Session without real sockets.
type mockAddr string

func (a mockAddr) Network() string { return "mock" }
func (a mockAddr) String() string  { return string(a) }

type sentPacket struct {
	remote net.Addr
	data   []byte
}

// mockChannel records every Send and lets a test deliver inbound bytes
// directly to the handler the Session registered at Bind time.
type mockChannel struct {
	mu      sync.Mutex
	local   net.Addr
	sent    []sentPacket
	handler PacketHandler
	closed  bool
}

func (c *mockChannel) Send(data []byte, remote net.Addr) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("mock: channel closed")
	}
	cp := append([]byte(nil), data...)
	c.sent = append(c.sent, sentPacket{remote: remote, data: cp})
	return nil
}

func (c *mockChannel) LocalAddr() net.Addr { return c.local }

func (c *mockChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// deliver hands data to the registered handler as if it arrived from
// origin. The Session's own dispatcher re-queues this onto a worker
// goroutine, so callers must synchronize on an observable side effect
// (an event, or a later Send) rather than assuming deliver is synchronous.
func (c *mockChannel) deliver(origin net.Addr, data []byte) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	h(origin, data)
}

func (c *mockChannel) snapshot() []sentPacket {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]sentPacket, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *mockChannel) sentTo(remote net.Addr) []sentPacket {
	var out []sentPacket
	for _, p := range c.snapshot() {
		if p.remote.String() == remote.String() {
			out = append(out, p)
		}
	}
	return out
}

// mockTransport binds one mockChannel per local address, keyed by the
// literal string passed to Bind, so a test can reach into either the
// data or control channel by the same string it configured on
// SessionConfig.LocalDataAddr/LocalControlAddr.
type mockTransport struct {
	mu       sync.Mutex
	channels map[string]*mockChannel
}

func newMockTransport() *mockTransport {
	return &mockTransport{channels: make(map[string]*mockChannel)}
}

func (t *mockTransport) Bind(localAddr string, handler PacketHandler) (Channel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := &mockChannel{local: mockAddr(localAddr), handler: handler}
	t.channels[localAddr] = ch
	return ch, nil
}

func (t *mockTransport) channel(localAddr string) *mockChannel {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.channels[localAddr]
}

// mockCodec wraps a real PacketCodec and lets a test force a decode
// error on demand, injecting malformed wire data without going through
// pion/rtcp's own validation.
type mockCodec struct {
	PacketCodec
	decodeDataErr    error
	decodeControlErr error
}

func (c *mockCodec) DecodeData(b []byte) (*DataPacket, error) {
	if c.decodeDataErr != nil {
		return nil, c.decodeDataErr
	}
	return c.PacketCodec.DecodeData(b)
}

func (c *mockCodec) DecodeControl(b []byte) (CompoundControlPacket, error) {
	if c.decodeControlErr != nil {
		return nil, c.decodeControlErr
	}
	return c.PacketCodec.DecodeControl(b)
}

// recordedEvent carries one EventListener callback, tagged by kind so
// tests can filter a shared channel for the event they're waiting on.
type recordedEvent struct {
	kind    string
	err     error
	p       *Participant
	oldSsrc uint32
	newSsrc uint32
}

// eventRecorder implements EventListener and funnels every callback
// onto a buffered channel, so tests wait on a channel receive instead
// of polling session internals.
type eventRecorder struct {
	ch chan recordedEvent
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{ch: make(chan recordedEvent, 64)}
}

func (r *eventRecorder) ParticipantJoinedFromData(_ *Session, p *Participant) {
	r.ch <- recordedEvent{kind: "joined_data", p: p}
}

func (r *eventRecorder) ParticipantJoinedFromControl(_ *Session, p *Participant) {
	r.ch <- recordedEvent{kind: "joined_control", p: p}
}

func (r *eventRecorder) ParticipantDataUpdated(_ *Session, p *Participant) {
	r.ch <- recordedEvent{kind: "updated", p: p}
}

func (r *eventRecorder) ParticipantLeft(_ *Session, p *Participant) {
	r.ch <- recordedEvent{kind: "left", p: p}
}

func (r *eventRecorder) ParticipantDeleted(_ *Session, p *Participant) {
	r.ch <- recordedEvent{kind: "deleted", p: p}
}

func (r *eventRecorder) ResolvedSsrcConflict(_ *Session, oldSsrc, newSsrc uint32) {
	r.ch <- recordedEvent{kind: "conflict", oldSsrc: oldSsrc, newSsrc: newSsrc}
}

func (r *eventRecorder) SessionTerminated(_ *Session, cause error) {
	r.ch <- recordedEvent{kind: "terminated", err: cause}
}
