package events

import (
	"sync"
	"sync/atomic"
)

type BusOption func(*Bus)

// WithDropHook is called for every event a subscriber was too slow to take.
func WithDropHook(fn func(Kind)) BusOption {
	return func(b *Bus) { b.onDrop = fn }
}

// Bus fans events out to subscribers without ever blocking the publisher.
// A subscriber whose buffer is full misses the event.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	nextID  uint64
	closed  bool
	dropped atomic.Uint64
	onDrop  func(Kind)
}

func NewBus(opts ...BusOption) *Bus {
	b := &Bus{subs: make(map[uint64]chan Event)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe returns a channel of future events and a cancel func that
// closes it. Subscribing to a closed bus yields a closed channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
			if b.onDrop != nil {
				b.onDrop(e.Kind)
			}
		}
	}
}

func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later publishes are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
