// Package notification buffers intelligent-mode disable events until the
// presentation layer drains them for display.
package notification

import (
	"sync"

	"github.com/sysintegral/aerator-go/internal/aeration"
)

// maxBuffered bounds the queue so a never-drained client cannot grow it
// without limit; oldest events are dropped first.
const maxBuffered = 100

// Store is an in-memory FIFO of disable events. It implements
// aeration.EventSink for the decision engine and is drained by the API layer.
type Store struct {
	mu     sync.Mutex
	events []aeration.DisableEvent
}

func NewStore() *Store {
	return &Store{}
}

// Publish appends an event, dropping the oldest when full.
func (s *Store) Publish(event aeration.DisableEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) >= maxBuffered {
		s.events = s.events[1:]
	}
	s.events = append(s.events, event)
}

// Drain returns all buffered events and empties the queue.
func (s *Store) Drain() []aeration.DisableEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.events
	s.events = nil
	return events
}

// Pending returns the number of buffered events without draining them.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
