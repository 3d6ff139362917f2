package teamsbot

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/cobra-poc/messaging-bridge/internal/cobraapi"
	"github.com/cobra-poc/messaging-bridge/internal/config"
	"github.com/cobra-poc/messaging-bridge/internal/convref"
	"github.com/cobra-poc/messaging-bridge/internal/retry"
)

// BridgeClient is the part of cobraapi.Client the relay depends on.
type BridgeClient interface {
	DeliverWebhook(ctx context.Context, mappingID string, payload *cobraapi.WebhookPayload) bool
	DeliverUnmappedMessage(ctx context.Context, conversationID string, payload *cobraapi.WebhookPayload) bool
	LookupMappingID(ctx context.Context, conversationID string) retry.Result[string]
	StoreConversationReference(ctx context.Context, envelope *cobraapi.ReferenceEnvelope) retry.Result[bool]
	GetConversationReference(ctx context.Context, conversationID string) retry.Result[*cobraapi.ReferenceEnvelope]
}

var _ BridgeClient = (*cobraapi.Client)(nil)

var ErrNoConversation = errors.New("activity has no conversation id")

type TurnOutcome string

const (
	TurnForwarded TurnOutcome = "forwarded"
	TurnUnmapped  TurnOutcome = "unmapped"
	TurnIgnored   TurnOutcome = "ignored"
	TurnFailed    TurnOutcome = "failed"
)

type Bot struct {
	store convref.Store
	api   BridgeClient
	appID string
	wg    sync.WaitGroup
}

// NewBot builds a bot. appID is the Microsoft App ID the bot is registered
// under; activities sent from it are never forwarded. Empty disables the
// check.
func NewBot(store convref.Store, api BridgeClient, appID string) *Bot {
	return &Bot{store: store, api: api, appID: appID}
}

// Dispatch handles a turn in the background so the Bot Framework channel
// gets its acknowledgement immediately.
func (b *Bot) Dispatch(activity *Activity) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), config.BotTurnTimeout)
		defer cancel()

		if _, err := b.HandleActivity(ctx, activity); err != nil {
			log.Error().
				Err(err).
				Str("activityId", activity.ID).
				Msg("failed to handle activity")
		}
	}()
}

// Wait blocks until every dispatched turn has finished.
func (b *Bot) Wait() {
	b.wg.Wait()
}

// HandleActivity refreshes the conversation reference, then forwards user
// messages to the bridge server.
func (b *Bot) HandleActivity(ctx context.Context, activity *Activity) (TurnOutcome, error) {
	conversationID := activity.Conversation.ID
	if conversationID == "" {
		return TurnIgnored, ErrNoConversation
	}

	ref := ReferenceFromActivity(activity)
	if err := b.store.AddOrUpdate(ctx, conversationID, ref); err != nil {
		log.Warn().Err(err).Str("conversationId", conversationID).Msg("failed to store conversation reference")
	}

	stored := b.api.StoreConversationReference(ctx, &cobraapi.ReferenceEnvelope{
		ConversationID:        conversationID,
		ConversationName:      activity.Conversation.Name,
		ConversationReference: ref,
	})
	if stored.Success && stored.Value {
		log.Info().Str("conversationId", conversationID).Msg("server created mapping for conversation")
	}

	if activity.Type != ActivityTypeMessage {
		log.Debug().
			Str("type", activity.Type).
			Str("conversationId", conversationID).
			Msg("ignoring non-message activity")
		return TurnIgnored, nil
	}
	if activity.FromBot() || activity.SentByApp(b.appID) {
		return TurnIgnored, nil
	}

	text := StripMentions(activity.Text, activity.Entities)
	payload := toPayload(activity, text, ref)
	if payload.Text == "" && payload.AttachmentURL == "" {
		return TurnIgnored, nil
	}

	lookup := b.api.LookupMappingID(ctx, conversationID)
	if lookup.Success && lookup.Value != "" {
		if b.api.DeliverWebhook(ctx, lookup.Value, payload) {
			return TurnForwarded, nil
		}
		return TurnFailed, nil
	}

	if b.api.DeliverUnmappedMessage(ctx, conversationID, payload) {
		return TurnForwarded, nil
	}

	log.Info().
		Str("conversationId", conversationID).
		Msg("message from conversation without an event link")
	return TurnUnmapped, nil
}
