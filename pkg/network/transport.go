package network

import (
	"context"
	"sync"

	"github.com/cuemby/holo/pkg/log"
	"github.com/cuemby/holo/pkg/metrics"
)

// transportQueueSize is the bounded channel capacity between a
// Transport and the State actor reading it; overflow drops the
// newest envelope and logs, per spec.md §5's backpressure policy,
// grounded on the teacher's events.Broker.broadcast non-blocking
// select/default drop.
const transportQueueSize = 512

// Transport is the boundary pkg/network's state machine is written
// against: anything that can send an Envelope and deliver a channel of
// arriving ones. Concrete transports (LoopbackTransport,
// grpcTransport) carry the websocket/TLS plumbing spec.md §1 excludes
// from the core; State never depends on either directly.
type Transport interface {
	Send(ctx context.Context, e Envelope) error
	Recv() <-chan Envelope
	Close() error
}

// LoopbackTransport is an in-process Transport backed by a pair of
// buffered channels, for tests and same-process multi-agent
// scenarios. Two LoopbackTransports returned by NewLoopbackPair are
// cross-wired: sending on one delivers on the other's Recv channel.
type LoopbackTransport struct {
	mu     sync.Mutex
	out    chan Envelope
	in     <-chan Envelope
	closed bool
}

// NewLoopbackPair returns two cross-wired LoopbackTransports.
func NewLoopbackPair() (a, b *LoopbackTransport) {
	abCh := make(chan Envelope, transportQueueSize)
	baCh := make(chan Envelope, transportQueueSize)
	a = &LoopbackTransport{out: abCh, in: baCh}
	b = &LoopbackTransport{out: baCh, in: abCh}
	return a, b
}

// Send delivers e to the paired transport's Recv channel, dropping it
// (and logging) if the peer's buffer is full rather than blocking.
func (t *LoopbackTransport) Send(ctx context.Context, e Envelope) error {
	select {
	case t.out <- e:
		metrics.NetworkMessagesTotal.WithLabelValues(string(e.Kind), "send").Inc()
		return nil
	default:
		log.WithComponent("network").Warn().
			Str("kind", string(e.Kind)).
			Msg("loopback transport queue full, dropping envelope")
		return nil
	}
}

// Recv returns the channel of envelopes arriving from the paired
// transport.
func (t *LoopbackTransport) Recv() <-chan Envelope {
	return t.in
}

// Close is a no-op: the channel pair is owned jointly by both ends and
// closing one side's send channel would panic the other's Send.
func (t *LoopbackTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}
