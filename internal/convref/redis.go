package convref

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/cobra-poc/messaging-bridge/internal/model"
	redisclient "github.com/cobra-poc/messaging-bridge/internal/redis"
)

// RedisStore keeps references in a single Redis hash so they survive bot
// restarts and are shared between bot replicas.
type RedisStore struct {
	client *redisclient.Client
	key    string
}

func NewRedisStore(client *redisclient.Client) *RedisStore {
	return &RedisStore{
		client: client,
		key:    redisclient.ConversationReferencesKey,
	}
}

func (s *RedisStore) AddOrUpdate(ctx context.Context, conversationID string, ref *model.ConversationReference) error {
	if conversationID == "" {
		return ErrEmptyConversationID
	}
	if ref == nil {
		return nil
	}

	data, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("marshal conversation reference: %w", err)
	}

	added, err := s.client.HSet(ctx, s.key, conversationID, data).Result()
	if err != nil {
		return fmt.Errorf("store conversation reference: %w", err)
	}

	evt := log.Debug().
		Str("conversationId", conversationID).
		Str("serviceUrl", ref.ServiceURL)
	if added > 0 {
		evt.Msg("conversation reference added")
	} else {
		evt.Msg("conversation reference updated")
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, conversationID string) (*model.ConversationReference, error) {
	if conversationID == "" {
		return nil, nil
	}

	raw, err := s.client.HGet(ctx, s.key, conversationID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation reference: %w", err)
	}

	var ref model.ConversationReference
	if err := json.Unmarshal([]byte(raw), &ref); err != nil {
		return nil, fmt.Errorf("decode conversation reference: %w", err)
	}
	return &ref, nil
}

func (s *RedisStore) GetAll(ctx context.Context) (map[string]model.ConversationReference, error) {
	entries, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list conversation references: %w", err)
	}

	snapshot := make(map[string]model.ConversationReference, len(entries))
	for id, raw := range entries {
		var ref model.ConversationReference
		if err := json.Unmarshal([]byte(raw), &ref); err != nil {
			log.Warn().Err(err).Str("conversationId", id).Msg("skipping malformed conversation reference")
			continue
		}
		snapshot[id] = ref
	}
	return snapshot, nil
}

func (s *RedisStore) Remove(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return nil
	}
	if err := s.client.HDel(ctx, s.key, conversationID).Err(); err != nil {
		return fmt.Errorf("remove conversation reference: %w", err)
	}
	return nil
}
