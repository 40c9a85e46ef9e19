package channel

import (
	"context"
	"sync"
)

// DefaultFeedCapacity is the number of toasts kept per organization.
const DefaultFeedCapacity = 200

// Feed is the in-process in-app surface: a bounded ring of recent toasts per
// organization. When a ring is full the oldest toast is dropped.
type Feed struct {
	mu       sync.Mutex
	capacity int
	rings    map[string]*ring

	dropped int64
}

type ring struct {
	toasts []Toast
	head   int // next write position
	count  int
}

// NewFeed creates a feed keeping up to capacity toasts per organization.
func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = DefaultFeedCapacity
	}
	return &Feed{
		capacity: capacity,
		rings:    make(map[string]*ring),
	}
}

// Notify records toast in its organization's ring.
func (f *Feed) Notify(_ context.Context, toast Toast) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.rings[toast.OrganizationID]
	if !ok {
		r = &ring{toasts: make([]Toast, f.capacity)}
		f.rings[toast.OrganizationID] = r
	}
	if r.count == f.capacity {
		f.dropped++
	} else {
		r.count++
	}
	r.toasts[r.head] = toast
	r.head = (r.head + 1) % f.capacity
}

// Recent returns up to limit toasts visible to a recipient with the given
// clearance, newest first. A toast is visible when clearance <= its audience level.
func (f *Feed) Recent(organizationID string, clearance, limit int) []Toast {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.rings[organizationID]
	if !ok {
		return nil
	}
	var out []Toast
	for i := 1; i <= r.count; i++ {
		if limit > 0 && len(out) >= limit {
			break
		}
		t := r.toasts[(r.head-i+f.capacity)%f.capacity]
		if clearance <= t.AudienceLevel {
			out = append(out, t)
		}
	}
	return out
}

// Len returns the number of toasts held for an organization.
func (f *Feed) Len(organizationID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.rings[organizationID]; ok {
		return r.count
	}
	return 0
}

// Dropped returns the total number of toasts evicted by full rings.
func (f *Feed) Dropped() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}
