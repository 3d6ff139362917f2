package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/cobra-poc/messaging-bridge/internal/errors"
	"github.com/cobra-poc/messaging-bridge/internal/model"
	"github.com/cobra-poc/messaging-bridge/internal/repository"
	"github.com/cobra-poc/messaging-bridge/internal/sse"
	"github.com/cobra-poc/messaging-bridge/internal/util"
	"github.com/cobra-poc/messaging-bridge/internal/worker"
)

const (
	defaultMessagePageSize = 50
	maxMessagePageSize     = 200
	maxMessageLength       = 4000
)

// Broadcaster fans a local message out to external platforms.
type Broadcaster interface {
	BroadcastToExternalChannels(ctx context.Context, req BroadcastRequest) BroadcastResult
}

type SendMessageParams struct {
	EventID       string
	ChannelID     string
	SenderName    string
	Text          string
	AttachmentURL string
	CreatedBy     string
}

type MessagePage struct {
	Messages []model.ChatMessage `json:"messages"`
	Total    int                 `json:"total"`
	Limit    int                 `json:"limit"`
	Offset   int                 `json:"offset"`
}

type ChatService struct {
	channels    repository.ChatChannelRepository
	messages    repository.ChatMessageRepository
	publisher   Publisher
	broadcaster Broadcaster
	queue       Enqueuer
}

func NewChatService(
	channels repository.ChatChannelRepository,
	messages repository.ChatMessageRepository,
	publisher Publisher,
	broadcaster Broadcaster,
	queue Enqueuer,
) *ChatService {
	return &ChatService{
		channels:    channels,
		messages:    messages,
		publisher:   publisher,
		broadcaster: broadcaster,
		queue:       queue,
	}
}

// SendMessage stores a locally authored message and hands the external
// fan-out to the worker pool. The caller never waits on platform APIs.
func (s *ChatService) SendMessage(ctx context.Context, params SendMessageParams) (*model.ChatMessage, error) {
	if util.IsBlank(params.Text) {
		return nil, apperrors.MissingRequired("text")
	}
	if util.IsBlank(params.SenderName) {
		return nil, apperrors.MissingRequired("senderName")
	}
	if len([]rune(params.Text)) > maxMessageLength {
		return nil, apperrors.InvalidInput("text", fmt.Sprintf("must be at most %d characters", maxMessageLength))
	}

	channel, err := s.channels.FindByID(ctx, params.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("find channel: %w", err)
	}
	if channel == nil || !channel.IsActive || channel.EventID != params.EventID {
		return nil, apperrors.NotFound("Channel")
	}

	msg, err := s.messages.Create(ctx, model.CreateChatMessageParams{
		ChannelID:     channel.ID,
		EventID:       channel.EventID,
		SenderName:    params.SenderName,
		Text:          params.Text,
		AttachmentURL: optionalString(params.AttachmentURL),
		Source:        model.MessageSourceLocal,
		SentAt:        time.Now().UTC(),
		CreatedBy:     actorOrDefault(params.CreatedBy),
	})
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	if msg == nil {
		return nil, apperrors.Internal("message was not stored")
	}

	log.Info().
		Str("messageId", msg.ID).
		Str("eventId", msg.EventID).
		Str("channelId", msg.ChannelID).
		Msg("local message stored")

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, msg.EventID, sse.NewEvent(sse.EventTypeMessage, msg.ToSSEEventData())); err != nil {
			log.Warn().Err(err).Str("messageId", msg.ID).Msg("failed to publish message to subscribers")
		}
	}

	s.enqueueBroadcast(channel, msg)
	return msg, nil
}

// enqueueBroadcast scopes the fan-out. Only an unlinked default channel
// speaks to every mapping of the event; any other channel reaches the
// mapping it is linked to, if any.
func (s *ChatService) enqueueBroadcast(channel *model.ChatChannel, msg *model.ChatMessage) {
	if s.broadcaster == nil || s.queue == nil {
		return
	}

	req := BroadcastRequest{
		EventID:    msg.EventID,
		SenderName: msg.SenderName,
		Text:       msg.Text,
		MessageID:  &msg.ID,
	}
	if !(channel.IsDefault && !channel.IsLinked()) {
		if !channel.IsLinked() {
			return
		}
		req.ChannelID = &channel.ID
	}

	err := s.queue.Enqueue(worker.Job{
		Name: "broadcast:" + msg.ID,
		Run: func(ctx context.Context) error {
			s.broadcaster.BroadcastToExternalChannels(ctx, req)
			return nil
		},
	})
	if err != nil {
		evt := log.Error()
		if errors.Is(err, worker.ErrStopped) {
			evt = log.Warn()
		}
		evt.Err(err).
			Str("messageId", msg.ID).
			Str("eventId", msg.EventID).
			Msg("failed to enqueue outbound broadcast")
	}
}

func (s *ChatService) ListMessages(ctx context.Context, eventID, channelID string, limit, offset int) (*MessagePage, error) {
	if limit <= 0 {
		limit = defaultMessagePageSize
	}
	if limit > maxMessagePageSize {
		limit = maxMessagePageSize
	}
	if offset < 0 {
		offset = 0
	}

	channel, err := s.channels.FindByID(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("find channel: %w", err)
	}
	if channel == nil || channel.EventID != eventID {
		return nil, apperrors.NotFound("Channel")
	}

	messages, err := s.messages.FindByChannelID(ctx, channelID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	total, err := s.messages.CountByChannelID(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	if messages == nil {
		messages = []model.ChatMessage{}
	}

	return &MessagePage{Messages: messages, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *ChatService) ListChannels(ctx context.Context, eventID string) ([]model.ChatChannel, error) {
	channels, err := s.channels.FindByEventID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return channels, nil
}
