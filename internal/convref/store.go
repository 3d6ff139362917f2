// Package convref keeps the proactive-messaging reference of every Teams
// conversation the bot has seen, keyed by conversation id.
package convref

import (
	"context"
	"errors"

	"github.com/cobra-poc/messaging-bridge/internal/model"
)

var ErrEmptyConversationID = errors.New("conversation id is required")

// Store is last-write-wins. AddOrUpdate must be called on every inbound turn
// because the service URL of a conversation can change.
type Store interface {
	AddOrUpdate(ctx context.Context, conversationID string, ref *model.ConversationReference) error
	// Get returns nil without error when nothing is stored or the id is empty.
	Get(ctx context.Context, conversationID string) (*model.ConversationReference, error)
	// GetAll returns a snapshot that later writes do not affect.
	GetAll(ctx context.Context) (map[string]model.ConversationReference, error)
	// Remove is a no-op for unknown ids.
	Remove(ctx context.Context, conversationID string) error
}

func clone(ref *model.ConversationReference) model.ConversationReference {
	c := *ref
	if ref.User != nil {
		user := *ref.User
		c.User = &user
	}
	return c
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
