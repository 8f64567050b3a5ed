// Package hub fans out per-topic updates to subscribers. Each subscriber owns
// a delivery goroutine and sees every published value in publish order.
package hub

import (
	"strings"
	"sync"
)

type Hub[T any] struct {
	mu     sync.Mutex
	topics map[string]map[uint64]*Subscription[T]
	nextID uint64
}

type Subscription[T any] struct {
	hub   *Hub[T]
	topic string
	id    uint64
	fn    func(T)

	mu     sync.Mutex
	queue  []T
	notify chan struct{}
	done   chan struct{}
	once   sync.Once
}

func New[T any]() *Hub[T] {
	return &Hub[T]{topics: make(map[string]map[uint64]*Subscription[T])}
}

// Subscribe registers fn for topic. Values in initial are delivered before
// anything published after this call returns.
func (h *Hub[T]) Subscribe(topic string, fn func(T), initial ...T) *Subscription[T] {
	topic = strings.TrimSpace(topic)
	sub := &Subscription[T]{
		hub:    h,
		topic:  topic,
		fn:     fn,
		queue:  append([]T(nil), initial...),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	sub.id = h.nextID
	h.nextID++
	subs := h.topics[topic]
	if subs == nil {
		subs = make(map[uint64]*Subscription[T])
		h.topics[topic] = subs
	}
	subs[sub.id] = sub
	h.mu.Unlock()

	go sub.run()
	if len(initial) > 0 {
		sub.signal()
	}
	return sub
}

func (h *Hub[T]) Publish(topic string, value T) {
	if h == nil {
		return
	}
	topic = strings.TrimSpace(topic)

	h.mu.Lock()
	subs := make([]*Subscription[T], 0, len(h.topics[topic]))
	for _, sub := range h.topics[topic] {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.enqueue(value)
	}
}

// Subscribers reports the live subscriptions for topic.
func (h *Hub[T]) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[strings.TrimSpace(topic)])
}

func (h *Hub[T]) unsubscribe(topic string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.topics[topic]
	if subs == nil {
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
}

// Close stops delivery. It is safe to call more than once and from inside
// the callback.
func (s *Subscription[T]) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.topic, s.id)
		close(s.done)
	})
}

func (s *Subscription[T]) enqueue(value T) {
	s.mu.Lock()
	s.queue = append(s.queue, value)
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription[T]) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
		}

		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			value := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case <-s.done:
				return
			default:
			}
			if s.fn != nil {
				s.fn(value)
			}
		}
	}
}
