package service

import (
	"context"

	"github.com/cobra-poc/messaging-bridge/internal/sse"
	"github.com/cobra-poc/messaging-bridge/internal/worker"
)

const defaultActor = "system"

// Publisher delivers events to local subscribers of an incident event.
type Publisher interface {
	Publish(ctx context.Context, eventID string, event sse.Event) error
}

// Enqueuer accepts background jobs without blocking.
type Enqueuer interface {
	Enqueue(job worker.Job) error
}

func actorOrDefault(actor string) string {
	if actor == "" {
		return defaultActor
	}
	return actor
}

func strPtr(s string) *string {
	return &s
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
