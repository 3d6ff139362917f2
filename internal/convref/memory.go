package convref

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/cobra-poc/messaging-bridge/internal/model"
)

// MemoryStore loses every reference on restart; the persisted mapping row is
// the authority for proactive sends from the server side.
type MemoryStore struct {
	mu   sync.RWMutex
	refs map[string]model.ConversationReference
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		refs: make(map[string]model.ConversationReference),
	}
}

func (s *MemoryStore) AddOrUpdate(ctx context.Context, conversationID string, ref *model.ConversationReference) error {
	if conversationID == "" {
		return ErrEmptyConversationID
	}
	if ref == nil {
		return nil
	}

	s.mu.Lock()
	_, existed := s.refs[conversationID]
	s.refs[conversationID] = clone(ref)
	count := len(s.refs)
	s.mu.Unlock()

	evt := log.Debug().
		Str("conversationId", conversationID).
		Str("serviceUrl", ref.ServiceURL).
		Int("count", count)
	if existed {
		evt.Msg("conversation reference updated")
	} else {
		evt.Msg("conversation reference added")
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, conversationID string) (*model.ConversationReference, error) {
	if conversationID == "" {
		return nil, nil
	}

	s.mu.RLock()
	ref, ok := s.refs[conversationID]
	s.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	c := clone(&ref)
	return &c, nil
}

func (s *MemoryStore) GetAll(ctx context.Context) (map[string]model.ConversationReference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(map[string]model.ConversationReference, len(s.refs))
	for id, ref := range s.refs {
		snapshot[id] = clone(&ref)
	}
	return snapshot, nil
}

func (s *MemoryStore) Remove(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return nil
	}

	s.mu.Lock()
	_, existed := s.refs[conversationID]
	delete(s.refs, conversationID)
	s.mu.Unlock()

	if existed {
		log.Debug().Str("conversationId", conversationID).Msg("conversation reference removed")
	}
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.refs)
}
