// internal/events/memory.go
package events

import (
	"context"
	"log"
	"sync"
)

// MemoryPublisher collects events in memory. Used by tests and as a
// stand-in when no broker is configured.
type MemoryPublisher struct {
	mu     sync.Mutex
	events map[string][]Event
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{events: make(map[string][]Event)}
}

func (p *MemoryPublisher) Publish(_ context.Context, topic string, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events[topic] = append(p.events[topic], event)
	return nil
}

// ByTopic returns a copy of the events published to topic so far.
func (p *MemoryPublisher) ByTopic(topic string) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events[topic]))
	copy(out, p.events[topic])
	return out
}

// LogPublisher writes events to the process log. Used when no broker URL is
// configured so the service still runs end to end.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, topic string, event Event) error {
	log.Printf("event %s loan=%s type=%s", topic, event.LoanID, event.EventType)
	return nil
}
