package desk

import (
	"sync"
	"time"

	"trading-desk-go/internal/market"
)

// Snapshot is the state of the market after one tick.
type Snapshot struct {
	Tick   uint64         `json:"tick"`
	Time   time.Time      `json:"time"`
	Quotes []market.Quote `json:"quotes"`
}

// Broadcaster fans price snapshots out to subscribers.
// A subscriber that is not keeping up misses ticks; Publish never blocks.
type Broadcaster struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Snapshot
}

// NewBroadcaster creates a broadcaster with no subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Snapshot)}
}

// Subscribe registers a new subscriber. The returned func removes it and
// closes the channel; it is safe to call more than once.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Snapshot, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Snapshot, buffer)
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

// Publish delivers s to every subscriber with room in its buffer.
func (b *Broadcaster) Publish(s Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

// Len returns the number of subscribers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
