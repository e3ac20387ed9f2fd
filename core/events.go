package core

import (
	"context"
	"time"
)

// Learning event types
const (
	EventAttemptRecorded  = "attempt.recorded"
	EventSessionCompleted = "session.completed"
	EventProgressUpdated  = "progress.updated"
	EventOfflineSynced    = "attempts.synced"
)

// Event is a learning event emitted by the services for downstream consumers.
type Event struct {
	Type       string                 `json:"type"`
	UserID     string                 `json:"user_id"`
	OccurredAt time.Time              `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

func NewEvent(typ, userID string, payload map[string]interface{}) Event {
	return Event{Type: typ, UserID: userID, OccurredAt: time.Now().UTC(), Payload: payload}
}

// EventPublisher is any service that can publish learning events. Publish must not block on slow consumers.
type EventPublisher interface {
	Publish(ctx context.Context, events ...Event) error
}
