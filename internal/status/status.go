// Package status maintains the current sync snapshot and fans it out to
// subscribers. The snapshot is in-memory only; the sync engine is its sole
// writer.
package status

import (
	"sync"
	"time"

	"github.com/thisai/billsync/internal/models"
)

// Patch is a partial update to the status snapshot. Nil fields keep their
// current value.
type Patch struct {
	IsOnline     *bool
	IsSyncing    *bool
	PendingCount *int
	LastSyncTime *time.Time
	Error        *string
}

// Field helpers for building patches.
func Bool(v bool) *bool           { return &v }
func Int(v int) *int              { return &v }
func Str(v string) *string        { return &v }
func Time(v time.Time) *time.Time { return &v }

// Broadcaster holds the current snapshot and notifies listeners on every
// change, in subscription order.
type Broadcaster struct {
	mu        sync.Mutex
	current   models.SyncStatus
	nextID    int
	listeners map[int]func(models.SyncStatus)
	order     []int
}

// NewBroadcaster creates a broadcaster seeded with the initial snapshot.
func NewBroadcaster(initial models.SyncStatus) *Broadcaster {
	return &Broadcaster{
		current:   initial,
		listeners: map[int]func(models.SyncStatus){},
	}
}

// Current returns the latest snapshot.
func (b *Broadcaster) Current() models.SyncStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Subscribe registers a listener and immediately invokes it once with the
// current snapshot, so late subscribers are never stale. Returns an
// unsubscribe function.
func (b *Broadcaster) Subscribe(fn func(models.SyncStatus)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.order = append(b.order, id)
	current := b.current
	b.mu.Unlock()

	fn(current)

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		for i, v := range b.order {
			if v == id {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
	}
}

// Update merges the patch into the snapshot and notifies every listener.
// A listener unsubscribed mid-notification is skipped for the remainder of
// that notification.
func (b *Broadcaster) Update(p Patch) {
	b.mu.Lock()
	if p.IsOnline != nil {
		b.current.IsOnline = *p.IsOnline
	}
	if p.IsSyncing != nil {
		b.current.IsSyncing = *p.IsSyncing
	}
	if p.PendingCount != nil {
		b.current.PendingCount = *p.PendingCount
	}
	if p.LastSyncTime != nil {
		t := *p.LastSyncTime
		b.current.LastSyncTime = &t
	}
	if p.Error != nil {
		b.current.Error = *p.Error
	}
	snapshot := b.current
	ids := make([]int, len(b.order))
	copy(ids, b.order)
	b.mu.Unlock()

	for _, id := range ids {
		b.mu.Lock()
		fn, ok := b.listeners[id]
		b.mu.Unlock()
		if ok {
			fn(snapshot)
		}
	}
}
