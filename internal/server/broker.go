package server

import (
	"sync"
)

// Event types published for a job.
const (
	EventStatus       = "status"
	EventProgress     = "progress"
	EventIntermediate = "intermediate"
	EventDone         = "done"
)

// Event is a job update delivered to stream subscribers.
type Event struct {
	Type  string         `json:"type"`
	JobID string         `json:"job_id"`
	Data  map[string]any `json:"data,omitempty"`
}

// Broker fans job events out to subscribers. Slow subscribers miss events
// rather than block the solver.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{} // job id -> set of channels
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan Event]struct{}{}}
}

// Subscribe registers a buffered channel for the events of jobID.
func (b *Broker) Subscribe(jobID string) chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	if b.subs[jobID] == nil {
		b.subs[jobID] = map[chan Event]struct{}{}
	}
	b.subs[jobID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes ch and closes it.
func (b *Broker) Unsubscribe(jobID string, ch chan Event) {
	b.mu.Lock()
	if m := b.subs[jobID]; m != nil {
		if _, ok := m[ch]; ok {
			delete(m, ch)
			close(ch)
		}
		if len(m) == 0 {
			delete(b.subs, jobID)
		}
	}
	b.mu.Unlock()
}

// Publish delivers evt to the current subscribers of its job. Done events
// are never dropped for lack of buffer space: the oldest queued event makes
// room for them.
func (b *Broker) Publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[evt.JobID] {
		select {
		case ch <- evt:
			continue
		default:
		}
		if evt.Type != EventDone {
			continue
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- evt:
		default:
		}
	}
}

// Subscribers returns the number of subscribers of jobID.
func (b *Broker) Subscribers(jobID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[jobID])
}
