package notify

import (
	"context"
	"sync"
)

const subscriberBuffer = 64

// MemoryBroker is an in-process fan-out broker for single-node deployments
// and tests.
type MemoryBroker struct {
	mu     sync.Mutex
	subs   map[*memorySub]struct{}
	closed bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[*memorySub]struct{})}
}

type memorySub struct {
	broker *MemoryBroker
	ch     chan Event
	once   sync.Once
}

func (s *memorySub) Events() <-chan Event { return s.ch }

func (s *memorySub) Close() error {
	s.broker.remove(s)
	return nil
}

// Publish delivers the event to every live subscriber. Subscribers with full
// buffers miss the event rather than stall the publisher.
func (b *MemoryBroker) Publish(_ context.Context, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		select {
		case s.ch <- ev:
		default:
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(_ context.Context) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &memorySub{broker: b, ch: make(chan Event, subscriberBuffer)}
	if b.closed {
		close(s.ch)
		return s, nil
	}
	b.subs[s] = struct{}{}
	return s, nil
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for s := range b.subs {
		s.once.Do(func() { close(s.ch) })
		delete(b.subs, s)
	}
	return nil
}

func (b *MemoryBroker) remove(s *memorySub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		s.once.Do(func() { close(s.ch) })
	}
}
