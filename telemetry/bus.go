package telemetry

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrBusClosed          = errors.New("telemetry bus closed")
	ErrSubscriberExists   = errors.New("subscriber already registered")
	ErrSubscriberNotFound = errors.New("subscriber not found")
	ErrNilChannel         = errors.New("nil subscriber channel")
)

// SubscriberStats tracks snapshot delivery for one subscriber.
type SubscriberStats struct {
	// Sent counts snapshots delivered to the channel.
	Sent uint64
	// Dropped counts snapshots discarded because the channel was full.
	Dropped uint64
}

type subscriber struct {
	id    string
	ch    chan<- Snapshot
	stats *SubscriberStats
}

// Bus fans snapshots out to registered subscribers with drop-new semantics:
// Publish never blocks; a full subscriber channel drops the sample and
// increments the subscriber's drop counter.
//
// Thread-safety: all methods are safe for concurrent use.
type Bus struct {
	mu             sync.RWMutex
	subscribers    map[string]*subscriber
	totalPublished uint64
	closed         bool

	latestMu sync.Mutex
	latest   *Snapshot
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string]*subscriber)}
}

// Subscribe registers a channel to receive snapshots. The caller owns the
// channel and its buffering policy; an unbuffered channel drops every sample
// the consumer isn't already waiting on.
func (b *Bus) Subscribe(id string, ch chan<- Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return ErrSubscriberExists
	}
	if ch == nil {
		return ErrNilChannel
	}

	b.subscribers[id] = &subscriber{id: id, ch: ch, stats: &SubscriberStats{}}
	return nil
}

// Unsubscribe removes a subscriber. The channel is not closed; the caller
// owns it.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[id]; !exists {
		return ErrSubscriberNotFound
	}
	delete(b.subscribers, id)
	return nil
}

// Publish distributes a snapshot to all subscribers without blocking.
func (b *Bus) Publish(snap Snapshot) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	atomic.AddUint64(&b.totalPublished, 1)
	b.setLatest(snap)

	for _, sub := range b.subscribers {
		select {
		case sub.ch <- snap:
			atomic.AddUint64(&sub.stats.Sent, 1)
		default:
			atomic.AddUint64(&sub.stats.Dropped, 1)
		}
	}
}

// Latest returns the most recently published snapshot, if any.
func (b *Bus) Latest() (Snapshot, bool) {
	b.latestMu.Lock()
	defer b.latestMu.Unlock()

	if b.latest == nil {
		return Snapshot{}, false
	}
	return *b.latest, true
}

// Stats returns delivery statistics for a subscriber.
func (b *Bus) Stats(id string) (SubscriberStats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	sub, exists := b.subscribers[id]
	if !exists {
		return SubscriberStats{}, ErrSubscriberNotFound
	}
	return SubscriberStats{
		Sent:    atomic.LoadUint64(&sub.stats.Sent),
		Dropped: atomic.LoadUint64(&sub.stats.Dropped),
	}, nil
}

// TotalPublished returns how many snapshots have passed through the bus.
func (b *Bus) TotalPublished() uint64 {
	return atomic.LoadUint64(&b.totalPublished)
}

// Close shuts the bus down. Further Publish calls are silent no-ops and
// further Subscribe calls fail with ErrBusClosed. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	b.subscribers = make(map[string]*subscriber)
}

// setLatest stores the newest sample under its own mutex so concurrent
// publishers (holding only the read lock) never race the pointer.
func (b *Bus) setLatest(snap Snapshot) {
	b.latestMu.Lock()
	b.latest = &snap
	b.latestMu.Unlock()
}
