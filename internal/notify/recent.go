package notify

import (
	"context"
	"sync"
	"time"
)

// Recent keeps a bounded in-memory buffer of the most recently emitted
// events, oldest evicted first. It feeds the operator API.
type Recent struct {
	mu    sync.RWMutex
	buf   []Event
	limit int
}

func NewRecent(limit int) *Recent {
	if limit <= 0 {
		limit = 1000
	}
	return &Recent{limit: limit}
}

func (r *Recent) Publish(ctx context.Context, channel string, ev Event) error {
	ev.Channel = channel
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buf) < r.limit {
		r.buf = append(r.buf, ev)
		return nil
	}
	copy(r.buf, r.buf[1:])
	r.buf[len(r.buf)-1] = ev
	return nil
}

func (r *Recent) List(limit int) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 || limit > len(r.buf) {
		limit = len(r.buf)
	}
	out := make([]Event, 0, limit)
	start := len(r.buf) - limit
	if start < 0 {
		start = 0
	}
	for i := start; i < len(r.buf); i++ {
		out = append(out, r.buf[i])
	}
	return out
}

func (r *Recent) Since(ts time.Time) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Event, 0)
	for _, ev := range r.buf {
		if !ev.Timestamp.Before(ts) {
			out = append(out, ev)
		}
	}
	return out
}

func (r *Recent) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = nil
}
