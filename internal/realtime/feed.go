package realtime

import (
	"sync"

	"pert-dashboard/internal/domain"
)

// DefaultFeedCapacity is the number of events retained by a Feed.
const DefaultFeedCapacity = 50

// Feed is a bounded update history, newest first. Entries are never
// reordered after insertion; past capacity the oldest entry is evicted.
// Readers only ever receive copies.
type Feed struct {
	mu       sync.RWMutex
	capacity int
	events   []domain.UpdateEvent
}

// NewFeed creates a feed. A capacity outside 1..DefaultFeedCapacity uses
// DefaultFeedCapacity.
func NewFeed(capacity int) *Feed {
	if capacity <= 0 || capacity > DefaultFeedCapacity {
		capacity = DefaultFeedCapacity
	}
	return &Feed{
		capacity: capacity,
		events:   make([]domain.UpdateEvent, 0, capacity+1),
	}
}

// Append inserts the event at the head and drops the tail past capacity.
func (f *Feed) Append(e domain.UpdateEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = append(f.events, domain.UpdateEvent{})
	copy(f.events[1:], f.events)
	f.events[0] = e.Clone()

	if len(f.events) > f.capacity {
		f.events[f.capacity] = domain.UpdateEvent{}
		f.events = f.events[:f.capacity]
	}
}

// Clear empties the feed.
func (f *Feed) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.events {
		f.events[i] = domain.UpdateEvent{}
	}
	f.events = f.events[:0]
}

// Snapshot returns a copy of the feed, newest first.
func (f *Feed) Snapshot() []domain.UpdateEvent {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]domain.UpdateEvent, len(f.events))
	for i, e := range f.events {
		out[i] = e.Clone()
	}
	return out
}

// Len returns the current number of entries.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.events)
}

// Capacity returns the maximum number of retained entries.
func (f *Feed) Capacity() int {
	return f.capacity
}
