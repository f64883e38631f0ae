package stream

import (
	"context"
	"sync"

	"taskhub.org/internal/tasks"
)

// Stream fan-outs task change events to all active subscribers (SSE/WebSocket
// clients). It implements tasks.Notifier.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan tasks.Event
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan tasks.Event)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan tasks.Event {
	ch := make(chan tasks.Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// TaskChanged fan-outs the event to all subscribers.
func (s *Stream) TaskChanged(ctx context.Context, event tasks.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- event:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
