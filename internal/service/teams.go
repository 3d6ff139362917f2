package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/cobra-poc/messaging-bridge/internal/audit"
	apperrors "github.com/cobra-poc/messaging-bridge/internal/errors"
	"github.com/cobra-poc/messaging-bridge/internal/model"
	"github.com/cobra-poc/messaging-bridge/internal/repository"
)

type StoreReferenceResult struct {
	Mapping *model.ChannelMapping
	Created bool
}

// TeamsBridgeService keeps the server-side copy of Teams conversation
// references that the bot relays after each activity.
type TeamsBridgeService struct {
	mappings repository.ChannelMappingRepository
}

func NewTeamsBridgeService(mappings repository.ChannelMappingRepository) *TeamsBridgeService {
	return &TeamsBridgeService{mappings: mappings}
}

// StoreConversationReference upserts the reference for a conversation. A
// conversation the server has never seen gets an unlinked mapping that a
// later channel creation can adopt. A disconnected conversation keeps its
// reference on the inactive mapping so reactivation picks it up.
func (s *TeamsBridgeService) StoreConversationReference(ctx context.Context, conversationID string, ref *model.ConversationReference, conversationName, actor string) (*StoreReferenceResult, error) {
	if conversationID == "" {
		return nil, apperrors.MissingRequired("conversationId")
	}
	if ref == nil {
		return nil, apperrors.MissingRequired("conversationReference")
	}
	if err := ref.Validate(); err != nil {
		return nil, apperrors.InvalidInput("conversationReference", err.Error())
	}
	actor = actorOrDefault(actor)

	raw, err := ref.MarshalString()
	if err != nil {
		return nil, fmt.Errorf("marshal conversation reference: %w", err)
	}

	mapping, err := s.mappings.FindActiveByExternalGroupID(ctx, model.PlatformTeams, conversationID)
	if err != nil {
		return nil, fmt.Errorf("find teams mapping: %w", err)
	}

	if mapping == nil {
		mapping, err = s.mappings.FindInactiveByExternalGroupID(ctx, model.PlatformTeams, conversationID)
		if err != nil {
			return nil, fmt.Errorf("find inactive teams mapping: %w", err)
		}
	}

	result := &StoreReferenceResult{}
	if mapping == nil {
		if conversationName == "" {
			conversationName = ref.Conversation.Name
		}
		mapping, err = s.mappings.Create(ctx, model.CreateChannelMappingParams{
			ID:                        uuid.NewString(),
			Platform:                  model.PlatformTeams,
			ExternalGroupID:           conversationID,
			ExternalGroupName:         conversationName,
			ConversationReferenceJSON: &raw,
			CreatedBy:                 actor,
		})
		if err != nil {
			return nil, fmt.Errorf("create teams mapping: %w", err)
		}
		result.Created = true
	} else {
		if err := s.mappings.UpdateConversationReference(ctx, mapping.ID, raw, actor); err != nil {
			return nil, fmt.Errorf("update conversation reference: %w", err)
		}
		mapping.ConversationReferenceJSON = &raw
	}
	result.Mapping = mapping

	log.Info().
		Str("mappingId", mapping.ID).
		Str("conversationId", conversationID).
		Bool("created", result.Created).
		Bool("active", mapping.IsActive).
		Msg("conversation reference stored")

	eventID := ""
	if mapping.EventID != nil {
		eventID = *mapping.EventID
	}
	audit.Log(ctx, audit.Event{
		Type:      audit.EventReferenceStored,
		Actor:     actor,
		EventID:   eventID,
		MappingID: mapping.ID,
		Platform:  string(model.PlatformTeams),
		Details:   map[string]interface{}{"created": result.Created},
	})

	return result, nil
}

// GetConversationReference returns nil when nothing is stored.
func (s *TeamsBridgeService) GetConversationReference(ctx context.Context, conversationID string) (*model.ChannelMapping, *model.ConversationReference, error) {
	mapping, err := s.LookupMapping(ctx, conversationID)
	if err != nil || mapping == nil || !mapping.HasConversationReference() {
		return mapping, nil, err
	}
	ref, err := model.ParseConversationReference(*mapping.ConversationReferenceJSON)
	if err != nil {
		log.Warn().Err(err).Str("mappingId", mapping.ID).Msg("stored conversation reference is malformed")
		return mapping, nil, nil
	}
	return mapping, ref, nil
}

// LookupMapping finds the active mapping for a Teams conversation.
func (s *TeamsBridgeService) LookupMapping(ctx context.Context, conversationID string) (*model.ChannelMapping, error) {
	if conversationID == "" {
		return nil, apperrors.MissingRequired("conversationId")
	}
	mapping, err := s.mappings.FindActiveByExternalGroupID(ctx, model.PlatformTeams, conversationID)
	if err != nil {
		return nil, fmt.Errorf("find teams mapping: %w", err)
	}
	return mapping, nil
}
