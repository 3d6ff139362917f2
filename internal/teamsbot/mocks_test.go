package teamsbot

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/cobra-poc/messaging-bridge/internal/cobraapi"
	"github.com/cobra-poc/messaging-bridge/internal/model"
	"github.com/cobra-poc/messaging-bridge/internal/retry"
)

type mockBridge struct {
	mock.Mock
}

func (m *mockBridge) DeliverWebhook(ctx context.Context, mappingID string, payload *cobraapi.WebhookPayload) bool {
	return m.Called(ctx, mappingID, payload).Bool(0)
}

func (m *mockBridge) DeliverUnmappedMessage(ctx context.Context, conversationID string, payload *cobraapi.WebhookPayload) bool {
	return m.Called(ctx, conversationID, payload).Bool(0)
}

func (m *mockBridge) LookupMappingID(ctx context.Context, conversationID string) retry.Result[string] {
	return m.Called(ctx, conversationID).Get(0).(retry.Result[string])
}

func (m *mockBridge) StoreConversationReference(ctx context.Context, envelope *cobraapi.ReferenceEnvelope) retry.Result[bool] {
	return m.Called(ctx, envelope).Get(0).(retry.Result[bool])
}

func (m *mockBridge) GetConversationReference(ctx context.Context, conversationID string) retry.Result[*cobraapi.ReferenceEnvelope] {
	return m.Called(ctx, conversationID).Get(0).(retry.Result[*cobraapi.ReferenceEnvelope])
}

func instantPolicy() *retry.Policy {
	opts := retry.DefaultOptions()
	opts.MaxRetries = 2
	return retry.New(opts, retry.WithSleep(func(ctx context.Context, d time.Duration) error { return ctx.Err() }))
}

func userMessage(text string) *Activity {
	return &Activity{
		Type:         ActivityTypeMessage,
		ID:           "act-1",
		Timestamp:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		ServiceURL:   "https://smba.trafficmanager.net/amer/",
		ChannelID:    "msteams",
		From:         Account{ID: "29:user", Name: "Lee"},
		Conversation: model.ConversationAccount{ID: "19:ops@thread.tacv2", Name: "Ops", TenantID: "tenant-1"},
		Recipient:    Account{ID: "28:bot", Name: "COBRA"},
		Text:         text,
	}
}

func userRef() *model.ConversationReference {
	return ReferenceFromActivity(userMessage(""))
}
