package monitor

import "sync"

type subscriber struct {
	ch     chan Event
	mu     sync.Mutex
	closed bool
}

// subscriberBuffer leaves room for edge events queued behind a burst of
// metrics updates.
const subscriberBuffer = 16

func newSubscriber() *subscriber {
	return &subscriber{
		ch: make(chan Event, subscriberBuffer),
	}
}

func (s *subscriber) channel() <-chan Event {
	return s.ch
}

func (s *subscriber) send(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- event:
		return
	default:
		// Full: drop the oldest event.
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- event:
		default:
		}
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	close(s.ch)
	s.closed = true
}
