package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/cobra-poc/messaging-bridge/internal/audit"
	apperrors "github.com/cobra-poc/messaging-bridge/internal/errors"
	"github.com/cobra-poc/messaging-bridge/internal/model"
	"github.com/cobra-poc/messaging-bridge/internal/platform"
	"github.com/cobra-poc/messaging-bridge/internal/repository"
	"github.com/cobra-poc/messaging-bridge/internal/sse"
	"github.com/cobra-poc/messaging-bridge/internal/util"
)

type CreateChannelParams struct {
	EventID         string
	Platform        model.Platform
	GroupName       string
	ChannelName     string
	ExternalGroupID string
	CreatedBy       string
}

type CreateChannelResult struct {
	Mapping     *model.ChannelMapping `json:"mapping"`
	Channel     *model.ChatChannel    `json:"channel,omitempty"`
	Created     bool                  `json:"created"`
	Reactivated bool                  `json:"reactivated"`
}

type UnlinkResult struct {
	MappingID          string `json:"mappingId"`
	MappingDeactivated bool   `json:"mappingDeactivated"`
}

type InboundOutcome string

const (
	InboundDelivered            InboundOutcome = "delivered"
	InboundDuplicate            InboundOutcome = "duplicate"
	InboundIgnoredOwnBot        InboundOutcome = "ignored_own_bot"
	InboundIgnoredSystem        InboundOutcome = "ignored_system"
	InboundIgnoredEmpty         InboundOutcome = "ignored_empty"
	InboundIgnoredInactive      InboundOutcome = "ignored_inactive_mapping"
	InboundRejectedSecret       InboundOutcome = "rejected_secret"
	InboundIgnoredUnlinked      InboundOutcome = "ignored_unlinked"
	InboundIgnoredGroupMismatch InboundOutcome = "ignored_group_mismatch"
	InboundIgnoredNoChannel     InboundOutcome = "ignored_no_channel"
)

type InboundResult struct {
	Outcome    InboundOutcome      `json:"outcome"`
	Messages   []model.ChatMessage `json:"messages,omitempty"`
	Duplicates int                 `json:"duplicates"`
}

type BroadcastRequest struct {
	EventID    string
	SenderName string
	Text       string
	// ChannelID scopes delivery to the mapping linked to that channel.
	ChannelID *string
	MessageID *string
}

type BroadcastResult struct {
	Attempted int `json:"attempted"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

func (r *BroadcastResult) add(status model.DeliveryStatus) {
	r.Attempted++
	switch status {
	case model.DeliveryStatusSent:
		r.Sent++
	case model.DeliveryStatusSkipped:
		r.Skipped++
	default:
		r.Failed++
	}
}

// MessagingService coordinates channel mappings between incident events and
// external chat platforms.
type MessagingService struct {
	mappings   repository.ChannelMappingRepository
	channels   repository.ChatChannelRepository
	messages   repository.ChatMessageRepository
	events     repository.EventRepository
	deliveries repository.ExternalDeliveryRepository
	drivers    *platform.Registry
	publisher  Publisher
}

func NewMessagingService(
	mappings repository.ChannelMappingRepository,
	channels repository.ChatChannelRepository,
	messages repository.ChatMessageRepository,
	events repository.EventRepository,
	deliveries repository.ExternalDeliveryRepository,
	drivers *platform.Registry,
	publisher Publisher,
) *MessagingService {
	return &MessagingService{
		mappings:   mappings,
		channels:   channels,
		messages:   messages,
		events:     events,
		deliveries: deliveries,
		drivers:    drivers,
		publisher:  publisher,
	}
}

// CreateChannel connects an event to a platform. An active mapping is
// returned unchanged; a deactivated one is reactivated in place so the
// external group survives a disconnect. Only when neither exists is a new
// group provisioned.
func (s *MessagingService) CreateChannel(ctx context.Context, params CreateChannelParams) (*CreateChannelResult, error) {
	if params.EventID == "" {
		return nil, apperrors.MissingRequired("eventId")
	}
	if !params.Platform.Valid() {
		return nil, apperrors.PlatformUnsupported(string(params.Platform))
	}
	actor := actorOrDefault(params.CreatedBy)

	event, err := s.events.FindByID(ctx, params.EventID)
	if err != nil {
		return nil, fmt.Errorf("find event: %w", err)
	}
	if event == nil {
		return nil, apperrors.NotFound("Event")
	}

	driver, err := s.drivers.Get(params.Platform)
	if err != nil {
		return nil, err
	}

	active, err := s.mappings.FindActiveByEventAndPlatform(ctx, params.EventID, params.Platform)
	if err != nil {
		return nil, fmt.Errorf("find active mapping: %w", err)
	}
	if active != nil {
		log.Debug().
			Str("mappingId", active.ID).
			Str("eventId", params.EventID).
			Str("platform", string(params.Platform)).
			Msg("mapping already active")
		return &CreateChannelResult{Mapping: active, Channel: s.firstLinkedChannel(ctx, active.ID)}, nil
	}

	inactive, err := s.mappings.FindInactiveByEventAndPlatform(ctx, params.EventID, params.Platform)
	if err != nil {
		return nil, fmt.Errorf("find inactive mapping: %w", err)
	}
	if inactive != nil {
		return s.reactivate(ctx, inactive, event, params, actor)
	}

	if params.ExternalGroupID != "" {
		adopted, err := s.adoptUnlinked(ctx, event, params, actor)
		if err != nil || adopted != nil {
			return adopted, err
		}
	}

	mappingID := uuid.NewString()
	secret, err := util.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("generate webhook secret: %w", err)
	}

	provisioned, err := driver.Provision(ctx, platform.ProvisionRequest{
		MappingID:       mappingID,
		EventID:         event.ID,
		EventName:       event.Name,
		GroupName:       params.GroupName,
		ExternalGroupID: params.ExternalGroupID,
		WebhookSecret:   secret,
	})
	if err != nil {
		if apperrors.IsAppError(err) {
			return nil, err
		}
		return nil, apperrors.External(params.Platform.DisplayName(), err)
	}

	var secretHash *string
	if params.Platform == model.PlatformGroupMe {
		secretHash = strPtr(util.HashToken(secret))
	}

	mapping, err := s.mappings.Create(ctx, model.CreateChannelMappingParams{
		ID:                mappingID,
		EventID:           &event.ID,
		Platform:          params.Platform,
		ExternalGroupID:   provisioned.ExternalGroupID,
		ExternalGroupName: provisioned.ExternalGroupName,
		BotID:             optionalString(provisioned.BotID),
		WebhookSecret:     secretHash,
		CreatedBy:         actor,
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, apperrors.Conflict("An active mapping already exists for this event and platform")
		}
		return nil, fmt.Errorf("create mapping: %w", err)
	}

	channel, err := s.createLinkedChannel(ctx, event, mapping, params.ChannelName, actor)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("mappingId", mapping.ID).
		Str("eventId", event.ID).
		Str("platform", string(mapping.Platform)).
		Str("externalGroupId", mapping.ExternalGroupID).
		Msg("external channel created")

	audit.Log(ctx, audit.Event{
		Type:      audit.EventMappingCreated,
		Actor:     actor,
		EventID:   event.ID,
		MappingID: mapping.ID,
		ChannelID: channel.ID,
		Platform:  string(mapping.Platform),
		Details:   map[string]interface{}{"externalGroupId": mapping.ExternalGroupID},
	})
	s.publishMapping(ctx, event.ID, mapping, "created")

	return &CreateChannelResult{Mapping: mapping, Channel: channel, Created: true}, nil
}

func (s *MessagingService) reactivate(ctx context.Context, inactive *model.ChannelMapping, event *model.Event, params CreateChannelParams, actor string) (*CreateChannelResult, error) {
	var stray *model.ChannelMapping
	if inactive.Platform.RequiresConversationReference() && inactive.ExternalGroupID != "" {
		current, err := s.mappings.FindActiveByExternalGroupID(ctx, inactive.Platform, inactive.ExternalGroupID)
		if err != nil {
			return nil, fmt.Errorf("find mapping by external group: %w", err)
		}
		if current != nil && current.ID != inactive.ID {
			if current.LinkedToEvent() {
				return nil, apperrors.Conflict("External group is already linked to another event")
			}
			stray = current
		}
	}

	mapping, err := s.mappings.Reactivate(ctx, inactive.ID, actor)
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, apperrors.Conflict("An active mapping already exists for this event and platform")
		}
		return nil, fmt.Errorf("reactivate mapping: %w", err)
	}
	if mapping == nil {
		return nil, apperrors.NotFound("Mapping")
	}
	if stray != nil {
		if err := s.foldUnlinked(ctx, mapping, stray, actor); err != nil {
			return nil, err
		}
	}

	restored, err := s.channels.ReactivateByMappingID(ctx, mapping.ID, actor)
	if err != nil {
		return nil, fmt.Errorf("reactivate linked channels: %w", err)
	}

	var channel *model.ChatChannel
	if restored == 0 {
		channel, err = s.createLinkedChannel(ctx, event, mapping, params.ChannelName, actor)
		if err != nil {
			return nil, err
		}
	} else {
		channel = s.firstLinkedChannel(ctx, mapping.ID)
	}

	log.Info().
		Str("mappingId", mapping.ID).
		Str("eventId", event.ID).
		Str("platform", string(mapping.Platform)).
		Str("externalGroupId", mapping.ExternalGroupID).
		Int64("channelsRestored", restored).
		Msg("external channel reactivated")

	audit.Log(ctx, audit.Event{
		Type:      audit.EventMappingReactivated,
		Actor:     actor,
		EventID:   event.ID,
		MappingID: mapping.ID,
		Platform:  string(mapping.Platform),
		Details:   map[string]interface{}{"channelsRestored": restored},
	})
	s.publishMapping(ctx, event.ID, mapping, "reactivated")

	return &CreateChannelResult{Mapping: mapping, Channel: channel, Reactivated: true}, nil
}

// foldUnlinked retires an unlinked mapping registered for the same
// conversation while the reactivated one was inactive. Its reference is newer.
func (s *MessagingService) foldUnlinked(ctx context.Context, mapping, stray *model.ChannelMapping, actor string) error {
	if stray.HasConversationReference() {
		if err := s.mappings.UpdateConversationReference(ctx, mapping.ID, *stray.ConversationReferenceJSON, actor); err != nil {
			return fmt.Errorf("copy conversation reference: %w", err)
		}
		mapping.ConversationReferenceJSON = stray.ConversationReferenceJSON
	}
	if err := s.mappings.Deactivate(ctx, stray.ID, actor); err != nil {
		return fmt.Errorf("retire unlinked mapping: %w", err)
	}
	log.Info().
		Str("mappingId", mapping.ID).
		Str("retiredMappingId", stray.ID).
		Msg("unlinked duplicate mapping folded into reactivated mapping")
	return nil
}

// adoptUnlinked links a mapping that the Teams bot registered before any
// event claimed the conversation.
func (s *MessagingService) adoptUnlinked(ctx context.Context, event *model.Event, params CreateChannelParams, actor string) (*CreateChannelResult, error) {
	existing, err := s.mappings.FindActiveByExternalGroupID(ctx, params.Platform, params.ExternalGroupID)
	if err != nil {
		return nil, fmt.Errorf("find mapping by external group: %w", err)
	}
	if existing == nil {
		return nil, nil
	}
	if existing.LinkedToEvent() {
		return nil, apperrors.Conflict("External group is already linked to another event")
	}

	if err := s.mappings.SetEvent(ctx, existing.ID, event.ID, actor); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, apperrors.Conflict("An active mapping already exists for this event and platform")
		}
		return nil, fmt.Errorf("link mapping to event: %w", err)
	}
	existing.EventID = &event.ID

	channel, err := s.createLinkedChannel(ctx, event, existing, params.ChannelName, actor)
	if err != nil {
		return nil, err
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventMappingCreated,
		Actor:     actor,
		EventID:   event.ID,
		MappingID: existing.ID,
		ChannelID: channel.ID,
		Platform:  string(existing.Platform),
		Details:   map[string]interface{}{"adopted": true},
	})
	s.publishMapping(ctx, event.ID, existing, "created")

	return &CreateChannelResult{Mapping: existing, Channel: channel, Created: true}, nil
}

func (s *MessagingService) createLinkedChannel(ctx context.Context, event *model.Event, mapping *model.ChannelMapping, name, actor string) (*model.ChatChannel, error) {
	if name == "" {
		name = mapping.Platform.DisplayName()
		if mapping.ExternalGroupName != "" {
			name = mapping.Platform.DisplayName() + ": " + mapping.ExternalGroupName
		}
	}
	channel, err := s.channels.Create(ctx, model.CreateChatChannelParams{
		EventID:           event.ID,
		Name:              name,
		ExternalMappingID: &mapping.ID,
		CreatedBy:         actor,
	})
	if err != nil {
		return nil, fmt.Errorf("create linked channel: %w", err)
	}
	return channel, nil
}

func (s *MessagingService) firstLinkedChannel(ctx context.Context, mappingID string) *model.ChatChannel {
	channels, err := s.channels.FindActiveByMappingID(ctx, mappingID)
	if err != nil {
		log.Warn().Err(err).Str("mappingId", mappingID).Msg("failed to load linked channels")
		return nil
	}
	if len(channels) == 0 {
		return nil
	}
	return &channels[0]
}

// Deactivate disconnects a mapping of the event and its linked channels.
// Archiving the external group is best effort and never blocks the local
// deactivation.
func (s *MessagingService) Deactivate(ctx context.Context, eventID, mappingID string, archiveExternalGroup bool, actor string) error {
	actor = actorOrDefault(actor)

	mapping, err := s.mappings.FindByID(ctx, mappingID)
	if err != nil {
		return fmt.Errorf("find mapping: %w", err)
	}
	if mapping == nil || !mapping.BelongsTo(eventID) {
		return apperrors.NotFound("Mapping")
	}
	if !mapping.IsActive {
		log.Debug().Str("mappingId", mappingID).Msg("mapping already inactive")
		return nil
	}

	if archiveExternalGroup {
		s.archive(ctx, mapping)
	}

	if err := s.mappings.Deactivate(ctx, mapping.ID, actor); err != nil {
		return fmt.Errorf("deactivate mapping: %w", err)
	}
	closed, err := s.channels.DeactivateByMappingID(ctx, mapping.ID, actor)
	if err != nil {
		return fmt.Errorf("deactivate linked channels: %w", err)
	}

	log.Info().
		Str("mappingId", mapping.ID).
		Str("eventId", eventID).
		Str("platform", string(mapping.Platform)).
		Bool("archived", archiveExternalGroup).
		Int64("channelsDeactivated", closed).
		Msg("external channel deactivated")

	audit.Log(ctx, audit.Event{
		Type:      audit.EventMappingDeactivated,
		Actor:     actor,
		EventID:   eventID,
		MappingID: mapping.ID,
		Platform:  string(mapping.Platform),
		Details:   map[string]interface{}{"archive": archiveExternalGroup},
	})
	mapping.IsActive = false
	s.publishMapping(ctx, eventID, mapping, "deactivated")
	return nil
}

func (s *MessagingService) archive(ctx context.Context, mapping *model.ChannelMapping) {
	driver, err := s.drivers.Get(mapping.Platform)
	if err != nil {
		log.Warn().Err(err).Str("mappingId", mapping.ID).Msg("no driver to archive external group")
		return
	}
	if err := driver.Archive(ctx, mapping); err != nil {
		log.Warn().
			Err(err).
			Str("mappingId", mapping.ID).
			Str("platform", string(mapping.Platform)).
			Str("externalGroupId", mapping.ExternalGroupID).
			Msg("failed to archive external group, continuing with deactivation")
	}
}

// UnlinkChannel detaches a local channel. The mapping itself is deactivated
// only once no active channel references it.
func (s *MessagingService) UnlinkChannel(ctx context.Context, eventID, channelID string, actor string) (*UnlinkResult, error) {
	actor = actorOrDefault(actor)

	channel, err := s.channels.FindByID(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("find channel: %w", err)
	}
	if channel == nil || channel.EventID != eventID {
		return nil, apperrors.NotFound("Channel")
	}
	if !channel.IsLinked() {
		return nil, apperrors.ValidationError("Channel is not linked to an external channel")
	}
	mappingID := *channel.ExternalMappingID

	if err := s.channels.ClearMapping(ctx, channel.ID, actor); err != nil {
		return nil, fmt.Errorf("unlink channel: %w", err)
	}

	remaining, err := s.channels.CountActiveByMappingID(ctx, mappingID)
	if err != nil {
		return nil, fmt.Errorf("count linked channels: %w", err)
	}

	result := &UnlinkResult{MappingID: mappingID}
	if remaining == 0 {
		if err := s.mappings.Deactivate(ctx, mappingID, actor); err != nil {
			return nil, fmt.Errorf("deactivate mapping: %w", err)
		}
		result.MappingDeactivated = true
	}

	log.Info().
		Str("channelId", channel.ID).
		Str("mappingId", mappingID).
		Int("remainingChannels", remaining).
		Bool("mappingDeactivated", result.MappingDeactivated).
		Msg("channel unlinked")

	audit.Log(ctx, audit.Event{
		Type:      audit.EventChannelUnlinked,
		Actor:     actor,
		EventID:   channel.EventID,
		MappingID: mappingID,
		ChannelID: channel.ID,
		Details:   map[string]interface{}{"mappingDeactivated": result.MappingDeactivated},
	})
	return result, nil
}

// LinkChannel attaches a channel of the event to an active mapping. Only
// platforms with channel fan-in accept more than one linked channel.
func (s *MessagingService) LinkChannel(ctx context.Context, eventID, channelID, mappingID, actor string) error {
	actor = actorOrDefault(actor)

	channel, err := s.channels.FindByID(ctx, channelID)
	if err != nil {
		return fmt.Errorf("find channel: %w", err)
	}
	if channel == nil || !channel.IsActive || channel.EventID != eventID {
		return apperrors.NotFound("Channel")
	}

	mapping, err := s.mappings.FindByID(ctx, mappingID)
	if err != nil {
		return fmt.Errorf("find mapping: %w", err)
	}
	if mapping == nil || !mapping.IsActive {
		return apperrors.NotFound("Mapping")
	}

	if mapping.LinkedToEvent() && !mapping.BelongsTo(channel.EventID) {
		return apperrors.ValidationError("Mapping belongs to a different event")
	}
	if channel.IsLinked() {
		if *channel.ExternalMappingID == mapping.ID {
			return nil
		}
		return apperrors.Conflict("Channel is already linked to another external channel")
	}
	if !mapping.Platform.SupportsChannelFanIn() {
		count, err := s.channels.CountActiveByMappingID(ctx, mapping.ID)
		if err != nil {
			return fmt.Errorf("count linked channels: %w", err)
		}
		if count > 0 {
			return apperrors.Conflict(fmt.Sprintf("%s supports only one linked channel", mapping.Platform.DisplayName()))
		}
	}

	if !mapping.LinkedToEvent() {
		if err := s.mappings.SetEvent(ctx, mapping.ID, channel.EventID, actor); err != nil {
			if repository.IsUniqueViolation(err) {
				return apperrors.Conflict("An active mapping already exists for this event and platform")
			}
			return fmt.Errorf("link mapping to event: %w", err)
		}
	}
	if err := s.channels.LinkMapping(ctx, channel.ID, mapping.ID, actor); err != nil {
		return fmt.Errorf("link channel: %w", err)
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventChannelLinked,
		Actor:     actor,
		EventID:   channel.EventID,
		MappingID: mapping.ID,
		ChannelID: channel.ID,
		Platform:  string(mapping.Platform),
	})
	return nil
}

func (s *MessagingService) ListMappings(ctx context.Context, eventID string) ([]model.ChannelMapping, error) {
	mappings, err := s.mappings.FindActiveByEventID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	return mappings, nil
}

// ProcessInboundWebhook records a message received from an external platform
// in every destination channel, at most once per external message id.
func (s *MessagingService) ProcessInboundWebhook(ctx context.Context, mappingID string, msg model.InboundMessage) (*InboundResult, error) {
	logger := log.With().
		Str("mappingId", mappingID).
		Str("externalMessageId", msg.ExternalMessageID).
		Logger()

	if msg.Kind == model.InboundKindSystem {
		logger.Debug().Msg("ignoring system notice")
		return &InboundResult{Outcome: InboundIgnoredSystem}, nil
	}
	if util.IsBlank(msg.Text) && msg.AttachmentURL == "" {
		logger.Debug().Msg("ignoring empty message")
		return &InboundResult{Outcome: InboundIgnoredEmpty}, nil
	}

	mapping, err := s.mappings.FindByID(ctx, mappingID)
	if err != nil {
		return nil, fmt.Errorf("find mapping: %w", err)
	}
	if mapping == nil || !mapping.IsActive {
		logger.Debug().Msg("webhook for inactive or unknown mapping")
		return &InboundResult{Outcome: InboundIgnoredInactive}, nil
	}
	if mapping.SentByOwnBot(msg) {
		logger.Debug().Str("senderId", msg.SenderID).Msg("ignoring echo of own bot")
		return &InboundResult{Outcome: InboundIgnoredOwnBot}, nil
	}

	if mapping.WebhookSecret != nil && !util.MatchesTokenHash(msg.WebhookSecret, *mapping.WebhookSecret) {
		logger.Warn().
			Str("platform", string(mapping.Platform)).
			Str("secret", util.MaskSecret(msg.WebhookSecret)).
			Msg("webhook secret mismatch")
		return &InboundResult{Outcome: InboundRejectedSecret}, nil
	}

	if !mapping.LinkedToEvent() {
		logger.Warn().Str("platform", string(mapping.Platform)).Msg("mapping not linked to an event, dropping message")
		return &InboundResult{Outcome: InboundIgnoredUnlinked}, nil
	}
	eventID := *mapping.EventID

	if msg.ExternalGroupID != mapping.ExternalGroupID {
		logger.Warn().
			Str("expectedGroupId", mapping.ExternalGroupID).
			Str("receivedGroupId", msg.ExternalGroupID).
			Msg("external group mismatch, dropping message")
		return &InboundResult{Outcome: InboundIgnoredGroupMismatch}, nil
	}

	targets, err := s.inboundTargets(ctx, mapping, eventID)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		logger.Warn().Str("eventId", eventID).Msg("no destination channel for inbound message")
		return &InboundResult{Outcome: InboundIgnoredNoChannel}, nil
	}

	sentAt := msg.Timestamp
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}
	senderName := msg.SenderName
	if util.IsBlank(senderName) {
		senderName = "Unknown"
	}

	result := &InboundResult{}
	for _, channel := range targets {
		created, err := s.messages.Create(ctx, model.CreateChatMessageParams{
			ChannelID:         channel.ID,
			EventID:           eventID,
			SenderName:        senderName,
			Text:              msg.Text,
			AttachmentURL:     optionalString(msg.AttachmentURL),
			Source:            string(mapping.Platform),
			ExternalMessageID: optionalString(msg.ExternalMessageID),
			ExternalSenderID:  optionalString(msg.SenderID),
			SentAt:            sentAt,
			CreatedBy:         string(mapping.Platform),
		})
		if err != nil {
			return nil, fmt.Errorf("create inbound message: %w", err)
		}
		if created == nil {
			result.Duplicates++
			logger.Debug().Str("channelId", channel.ID).Msg("duplicate webhook delivery ignored")
			continue
		}

		result.Messages = append(result.Messages, *created)
		s.publishMessage(ctx, created)
	}

	if len(result.Messages) == 0 {
		result.Outcome = InboundDuplicate
		return result, nil
	}

	result.Outcome = InboundDelivered
	logger.Info().
		Str("eventId", eventID).
		Str("platform", string(mapping.Platform)).
		Int("channels", len(result.Messages)).
		Int("duplicates", result.Duplicates).
		Msg("inbound message bridged")
	return result, nil
}

func (s *MessagingService) inboundTargets(ctx context.Context, mapping *model.ChannelMapping, eventID string) ([]model.ChatChannel, error) {
	linked, err := s.channels.FindActiveByMappingID(ctx, mapping.ID)
	if err != nil {
		return nil, fmt.Errorf("find linked channels: %w", err)
	}
	if len(linked) > 0 {
		if mapping.Platform.SupportsChannelFanIn() {
			return linked, nil
		}
		return linked[:1], nil
	}

	fallback, err := s.channels.FindDefaultByEventID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("find default channel: %w", err)
	}
	if fallback == nil {
		return nil, nil
	}
	return []model.ChatChannel{*fallback}, nil
}

// BroadcastToExternalChannels delivers a local message to every active
// mapping in scope. Each mapping succeeds or fails on its own; failures are
// recorded for redelivery and never returned.
func (s *MessagingService) BroadcastToExternalChannels(ctx context.Context, req BroadcastRequest) BroadcastResult {
	var result BroadcastResult

	targets, channelName, multiChannel := s.broadcastTargets(ctx, req)
	if len(targets) == 0 {
		return result
	}

	eventName := ""
	if event, err := s.events.FindByID(ctx, req.EventID); err == nil && event != nil {
		eventName = event.Name
	}

	for i := range targets {
		mapping := &targets[i]
		out := platform.OutboundMessage{
			SenderName:   req.SenderName,
			Text:         req.Text,
			EventName:    eventName,
			ChannelName:  channelName,
			MultiChannel: multiChannel,
		}

		deliveryID := s.recordDelivery(ctx, mapping, req)
		result.add(s.deliver(ctx, mapping, out, deliveryID))
	}

	log.Info().
		Str("eventId", req.EventID).
		Int("attempted", result.Attempted).
		Int("sent", result.Sent).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Msg("outbound broadcast finished")
	return result
}

func (s *MessagingService) broadcastTargets(ctx context.Context, req BroadcastRequest) ([]model.ChannelMapping, string, bool) {
	if req.ChannelID == nil {
		mappings, err := s.mappings.FindActiveByEventID(ctx, req.EventID)
		if err != nil {
			log.Error().Err(err).Str("eventId", req.EventID).Msg("failed to load mappings for broadcast")
			return nil, "", false
		}
		return mappings, "", false
	}

	channel, err := s.channels.FindByID(ctx, *req.ChannelID)
	if err != nil {
		log.Error().Err(err).Str("channelId", *req.ChannelID).Msg("failed to load channel for broadcast")
		return nil, "", false
	}
	if channel == nil || !channel.IsLinked() {
		return nil, "", false
	}

	mapping, err := s.mappings.FindByID(ctx, *channel.ExternalMappingID)
	if err != nil {
		log.Error().Err(err).Str("mappingId", *channel.ExternalMappingID).Msg("failed to load mapping for broadcast")
		return nil, "", false
	}
	if mapping == nil || !mapping.IsActive {
		return nil, "", false
	}

	multiChannel := false
	if mapping.Platform.SupportsChannelFanIn() {
		count, err := s.channels.CountActiveByMappingID(ctx, mapping.ID)
		if err == nil && count > 1 {
			multiChannel = true
		}
	}
	return []model.ChannelMapping{*mapping}, channel.Name, multiChannel
}

func (s *MessagingService) recordDelivery(ctx context.Context, mapping *model.ChannelMapping, req BroadcastRequest) string {
	if s.deliveries == nil {
		return ""
	}
	d, err := s.deliveries.Create(ctx, model.CreateExternalDeliveryParams{
		MappingID:  mapping.ID,
		EventID:    req.EventID,
		ChannelID:  req.ChannelID,
		MessageID:  req.MessageID,
		SenderName: req.SenderName,
		Text:       req.Text,
	})
	if err != nil {
		log.Warn().Err(err).Str("mappingId", mapping.ID).Msg("failed to record delivery")
		return ""
	}
	return d.ID
}

// deliver sends to one mapping and records the outcome. A panicking driver
// is contained here so sibling mappings still receive the message.
func (s *MessagingService) deliver(ctx context.Context, mapping *model.ChannelMapping, out platform.OutboundMessage, deliveryID string) (status model.DeliveryStatus) {
	logger := log.With().
		Str("mappingId", mapping.ID).
		Str("platform", string(mapping.Platform)).
		Str("deliveryId", deliveryID).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("platform delivery panicked")
			s.markFailed(ctx, deliveryID, fmt.Sprintf("panic: %v", r))
			status = model.DeliveryStatusFailed
		}
	}()

	if mapping.Platform.RequiresConversationReference() && !mapping.HasConversationReference() {
		logger.Warn().Msg("no conversation reference stored yet, skipping delivery")
		s.markSkipped(ctx, deliveryID, platform.ErrMissingReference.Error())
		return model.DeliveryStatusSkipped
	}

	driver, err := s.drivers.Get(mapping.Platform)
	if err != nil {
		logger.Error().Err(err).Msg("no driver for platform")
		s.markSkipped(ctx, deliveryID, err.Error())
		return model.DeliveryStatusSkipped
	}

	start := time.Now()
	err = driver.Send(ctx, mapping, out)
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, platform.ErrMissingReference):
		logger.Warn().Msg("no conversation reference stored yet, skipping delivery")
		s.markSkipped(ctx, deliveryID, err.Error())
		return model.DeliveryStatusSkipped
	case err != nil:
		logger.Error().Err(err).Dur("elapsed", elapsed).Msg("outbound delivery failed")
		s.markFailed(ctx, deliveryID, err.Error())
		return model.DeliveryStatusFailed
	}

	logger.Debug().Dur("elapsed", elapsed).Msg("outbound delivery sent")
	if deliveryID != "" {
		if err := s.deliveries.MarkSent(ctx, deliveryID); err != nil {
			logger.Warn().Err(err).Msg("failed to mark delivery sent")
		}
	}
	return model.DeliveryStatusSent
}

// Redeliver retries one failed delivery recorded by an earlier broadcast.
func (s *MessagingService) Redeliver(ctx context.Context, delivery model.ExternalDelivery) error {
	mapping, err := s.mappings.FindByID(ctx, delivery.MappingID)
	if err != nil {
		return fmt.Errorf("find mapping: %w", err)
	}
	if mapping == nil || !mapping.IsActive {
		s.markSkipped(ctx, delivery.ID, "mapping inactive")
		return nil
	}

	out := platform.OutboundMessage{
		SenderName: delivery.SenderName,
		Text:       delivery.Text,
	}
	if event, err := s.events.FindByID(ctx, delivery.EventID); err == nil && event != nil {
		out.EventName = event.Name
	}
	if delivery.ChannelID != nil {
		if channel, err := s.channels.FindByID(ctx, *delivery.ChannelID); err == nil && channel != nil {
			out.ChannelName = channel.Name
			if mapping.Platform.SupportsChannelFanIn() {
				count, err := s.channels.CountActiveByMappingID(ctx, mapping.ID)
				out.MultiChannel = err == nil && count > 1
			}
		}
	}

	status := s.deliver(ctx, mapping, out, delivery.ID)
	if status == model.DeliveryStatusFailed {
		return fmt.Errorf("redelivery %s to mapping %s failed", delivery.ID, mapping.ID)
	}
	return nil
}

func (s *MessagingService) markFailed(ctx context.Context, deliveryID, reason string) {
	if deliveryID == "" {
		return
	}
	if err := s.deliveries.MarkFailed(ctx, deliveryID, util.Truncate(reason, 1000)); err != nil {
		log.Warn().Err(err).Str("deliveryId", deliveryID).Msg("failed to mark delivery failed")
	}
}

func (s *MessagingService) markSkipped(ctx context.Context, deliveryID, reason string) {
	if deliveryID == "" {
		return
	}
	if err := s.deliveries.MarkSkipped(ctx, deliveryID, reason); err != nil {
		log.Warn().Err(err).Str("deliveryId", deliveryID).Msg("failed to mark delivery skipped")
	}
}

func (s *MessagingService) publishMessage(ctx context.Context, msg *model.ChatMessage) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, msg.EventID, sse.NewEvent(sse.EventTypeMessage, msg.ToSSEEventData())); err != nil {
		log.Warn().Err(err).Str("messageId", msg.ID).Msg("failed to publish message to subscribers")
	}
}

func (s *MessagingService) publishMapping(ctx context.Context, eventID string, mapping *model.ChannelMapping, action string) {
	if s.publisher == nil {
		return
	}
	data, _ := json.Marshal(map[string]any{
		"action":  action,
		"mapping": mapping,
	})
	if err := s.publisher.Publish(ctx, eventID, sse.NewEvent(sse.EventTypeMapping, data)); err != nil {
		log.Warn().Err(err).Str("mappingId", mapping.ID).Msg("failed to publish mapping change")
	}
}
