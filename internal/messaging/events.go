package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	EventCreated = "product_created"
	EventUpdated = "product_updated"
	EventDeleted = "product_deleted"
)

// ProductEvent is published after every successful catalog write.
type ProductEvent struct {
	EventType string    `json:"event_type"`
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name,omitempty"`
	ActorID   string    `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`
}

// EventPublisher delivers product events to downstream consumers
type EventPublisher interface {
	Publish(ctx context.Context, event ProductEvent) error
}

// NopPublisher discards events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ProductEvent) error { return nil }

func (NopPublisher) Close() error { return nil }
