package stream

import (
	"context"
	"sync"

	"concilia/internal/sla"
)

// MemoryPublisher records events in process memory. It backs development
// runs without a broker and tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []sla.StatusEvent
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(_ context.Context, event sla.StatusEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (p *MemoryPublisher) Events() []sla.StatusEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sla.StatusEvent{}, p.events...)
}
