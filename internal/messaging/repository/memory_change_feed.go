package repository

import (
	"context"
	"sync"

	"school_messaging_service/internal/messaging/domain"
	"school_messaging_service/pkg/metrics"
)

// MemoryChangeFeed in-process change feed. Each subscriber owns an
// unbounded queue drained by one goroutine, so a slow handler never
// blocks Publish and events of a topic keep publish order.
type MemoryChangeFeed struct {
	mu     sync.RWMutex
	topics map[string]map[*memorySubscription]struct{}
}

var _ domain.ChangeFeed = (*MemoryChangeFeed)(nil)

// NewMemoryChangeFeed create MemoryChangeFeed
func NewMemoryChangeFeed() *MemoryChangeFeed {
	return &MemoryChangeFeed{topics: map[string]map[*memorySubscription]struct{}{}}
}

// Publish ChangeFeed
func (f *MemoryChangeFeed) Publish(_ context.Context, event domain.ChangeEvent) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for s := range f.topics[event.Topic] {
		s.enqueue(event)
	}
	metrics.FeedEvents.WithLabelValues("publish", string(event.Entity)).Inc()
	return nil
}

// Subscribe ChangeFeed
func (f *MemoryChangeFeed) Subscribe(_ context.Context, topic string, handler func(domain.ChangeEvent)) (domain.Subscription, error) {
	s := &memorySubscription{
		feed:    f,
		topic:   topic,
		handler: handler,
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	f.mu.Lock()
	if f.topics[topic] == nil {
		f.topics[topic] = map[*memorySubscription]struct{}{}
	}
	f.topics[topic][s] = struct{}{}
	f.mu.Unlock()

	go s.run()
	return s, nil
}

// Subscribers active subscriptions of topic
func (f *MemoryChangeFeed) Subscribers(topic string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.topics[topic])
}

func (f *MemoryChangeFeed) remove(s *memorySubscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.topics[s.topic], s)
	if len(f.topics[s.topic]) == 0 {
		delete(f.topics, s.topic)
	}
}

type memorySubscription struct {
	feed    *MemoryChangeFeed
	topic   string
	handler func(domain.ChangeEvent)

	mu     sync.Mutex
	queue  []domain.ChangeEvent
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (s *memorySubscription) enqueue(event domain.ChangeEvent) {
	s.mu.Lock()
	s.queue = append(s.queue, event)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *memorySubscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
		}

		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			event := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case <-s.done:
				return
			default:
			}
			metrics.FeedEvents.WithLabelValues("deliver", string(event.Entity)).Inc()
			s.handler(event)
		}
	}
}

func (s *memorySubscription) Unsubscribe() {
	s.once.Do(func() {
		s.feed.remove(s)
		close(s.done)
	})
}
