package app

import "sync"

// ViewKind cached view of a sync client
type ViewKind string

const (
	// ViewThreadList organization thread list
	ViewThreadList ViewKind = "thread_list"
	// ViewThread currently open thread
	ViewThread ViewKind = "thread"
)

// Stale a cached view went stale because of a change on Topic
type Stale struct {
	Topic      string
	View       ViewKind
	Generation uint64
}

// InvalidationBus in-process fan-out of Stale notices to listeners.
// Listeners run synchronously on the publishing goroutine.
type InvalidationBus struct {
	mu        sync.RWMutex
	next      int
	listeners map[int]func(Stale)
}

// NewInvalidationBus create InvalidationBus
func NewInvalidationBus() *InvalidationBus {
	return &InvalidationBus{listeners: map[int]func(Stale){}}
}

// Subscribe register fn, the returned func removes it
func (b *InvalidationBus) Subscribe(fn func(Stale)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.listeners, id)
		})
	}
}

// Publish deliver s to every listener
func (b *InvalidationBus) Publish(s Stale) {
	b.mu.RLock()
	fns := make([]func(Stale), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(s)
	}
}
