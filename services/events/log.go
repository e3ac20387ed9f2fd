package eventsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/learnwise/backend/core"
)

// LogPublisher writes the events to the application log at debug level.
type LogPublisher struct {
	logger core.Logger
}

var _ core.EventPublisher = (*LogPublisher)(nil)

func NewLogPublisher(logger core.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, events ...core.Event) error {
	for _, evt := range events {
		payload, err := json.Marshal(evt.Payload)
		if err != nil {
			return err
		}
		p.logger.Debug(fmt.Sprintf("event %s user=%s payload=%s", evt.Type, evt.UserID, payload))
	}
	return nil
}

// MemoryPublisher keeps the published events. Use it in tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []core.Event
}

var _ core.EventPublisher = (*MemoryPublisher)(nil)

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(_ context.Context, events ...core.Event) error {
	p.mu.Lock()
	p.events = append(p.events, events...)
	p.mu.Unlock()
	return nil
}

// Events returns a copy of the events published so far, optionally limited to the given types.
func (p *MemoryPublisher) Events(types ...string) []core.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	evts := make([]core.Event, 0, len(p.events))
	for _, evt := range p.events {
		if len(types) == 0 || contains(types, evt.Type) {
			evts = append(evts, evt)
		}
	}
	return evts
}

func (p *MemoryPublisher) Reset() {
	p.mu.Lock()
	p.events = nil
	p.mu.Unlock()
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
