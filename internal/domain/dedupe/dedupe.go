// Package dedupe drops repeated deliveries of the same room message.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Window defaults.
const (
	DefaultMaxSize = 1024
	DefaultTTL     = 30 * time.Second
)

// Deduper records publish ids for at-most-once handling.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen inside the window.
	SeenAndRecord(ctx context.Context, id string) bool
}

type entry struct {
	id   string
	seen time.Time
}

// window is a bounded FIFO of recent ids. Entries leave when the
// window is full or when they are older than ttl.
type window struct {
	mu      sync.Mutex
	order   *list.List
	index   map[string]*list.Element
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

// NewInMemoryDeduper creates a deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	w := &window{
		maxSize: DefaultMaxSize,
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.order = list.New()
	w.index = make(map[string]*list.Element)
	return w
}

func (w *window) SeenAndRecord(_ context.Context, id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.expire(now)
	if _, ok := w.index[id]; ok {
		return true
	}
	if w.maxSize > 0 && w.order.Len() >= w.maxSize {
		w.remove(w.order.Front())
	}
	w.index[id] = w.order.PushBack(&entry{id: id, seen: now})
	return false
}

// expire drops entries older than ttl. Must be called with w.mu held.
func (w *window) expire(now time.Time) {
	if w.ttl <= 0 {
		return
	}
	for el := w.order.Front(); el != nil; el = w.order.Front() {
		if now.Sub(el.Value.(*entry).seen) < w.ttl {
			return
		}
		w.remove(el)
	}
}

func (w *window) remove(el *list.Element) {
	e := w.order.Remove(el).(*entry)
	delete(w.index, e.id)
}
