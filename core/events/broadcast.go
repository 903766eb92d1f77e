package events

import "sync"

const defaultSubscriberBuffer = 64

// Broadcaster delivers events to live subscribers. Slow subscribers drop
// events instead of blocking the host.
type Broadcaster struct {
	mu      sync.Mutex
	nextID  int
	subs    map[int]chan Event
	buffer  int
	dropped uint64
}

// NewBroadcaster creates a broadcaster whose subscriber channels hold buffer
// events.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Broadcaster{subs: make(map[int]chan Event), buffer: buffer}
}

// Subscribe registers a subscriber. The returned cancel func closes the
// channel and must be called once.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

// Emit implements the Emitter interface.
func (b *Broadcaster) Emit(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.dropped++
		}
	}
}

// Dropped reports how many deliveries were skipped because a subscriber was
// full.
func (b *Broadcaster) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
