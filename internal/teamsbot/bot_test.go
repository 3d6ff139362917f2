package teamsbot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cobra-poc/messaging-bridge/internal/cobraapi"
	"github.com/cobra-poc/messaging-bridge/internal/convref"
	"github.com/cobra-poc/messaging-bridge/internal/retry"
)

func TestBot_HandleActivity(t *testing.T) {
	ctx := context.Background()
	conversationID := "19:ops@thread.tacv2"

	t.Run("mapped conversation is forwarded to its mapping", func(t *testing.T) {
		store := convref.NewMemoryStore()
		api := new(mockBridge)
		bot := NewBot(store, api, "")

		api.On("StoreConversationReference", mock.Anything, mock.MatchedBy(func(e *cobraapi.ReferenceEnvelope) bool {
			return e.ConversationID == conversationID && e.ConversationReference.ServiceURL != ""
		})).Return(retry.Result[bool]{Success: true})
		api.On("LookupMappingID", mock.Anything, conversationID).Return(retry.Result[string]{Success: true, Value: "map-1"})
		api.On("DeliverWebhook", mock.Anything, "map-1", mock.MatchedBy(func(p *cobraapi.WebhookPayload) bool {
			return p.Text == "road closed" && p.SenderName == "Lee"
		})).Return(true)

		outcome, err := bot.HandleActivity(ctx, userMessage("<at>COBRA</at> road closed"))

		require.NoError(t, err)
		assert.Equal(t, TurnForwarded, outcome)
		api.AssertExpectations(t)

		ref, err := store.Get(ctx, conversationID)
		require.NoError(t, err)
		assert.Equal(t, "28:bot", ref.Bot.ID)
	})

	t.Run("unmapped conversation uses the conversation route", func(t *testing.T) {
		api := new(mockBridge)
		bot := NewBot(convref.NewMemoryStore(), api, "")

		api.On("StoreConversationReference", mock.Anything, mock.Anything).Return(retry.Result[bool]{Success: true, Value: true})
		api.On("LookupMappingID", mock.Anything, conversationID).Return(retry.Result[string]{Success: true})
		api.On("DeliverUnmappedMessage", mock.Anything, conversationID, mock.Anything).Return(false)

		outcome, err := bot.HandleActivity(ctx, userMessage("anyone there?"))

		require.NoError(t, err)
		assert.Equal(t, TurnUnmapped, outcome)
		api.AssertNotCalled(t, "DeliverWebhook", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("failed delivery", func(t *testing.T) {
		api := new(mockBridge)
		bot := NewBot(convref.NewMemoryStore(), api, "")

		api.On("StoreConversationReference", mock.Anything, mock.Anything).Return(retry.Result[bool]{})
		api.On("LookupMappingID", mock.Anything, conversationID).Return(retry.Result[string]{Success: true, Value: "map-1"})
		api.On("DeliverWebhook", mock.Anything, "map-1", mock.Anything).Return(false)

		outcome, err := bot.HandleActivity(ctx, userMessage("hello"))

		require.NoError(t, err)
		assert.Equal(t, TurnFailed, outcome)
	})

	t.Run("conversation update only refreshes the reference", func(t *testing.T) {
		store := convref.NewMemoryStore()
		api := new(mockBridge)
		bot := NewBot(store, api, "")
		api.On("StoreConversationReference", mock.Anything, mock.Anything).Return(retry.Result[bool]{Success: true})

		a := userMessage("")
		a.Type = ActivityTypeConversationUpdate

		outcome, err := bot.HandleActivity(ctx, a)

		require.NoError(t, err)
		assert.Equal(t, TurnIgnored, outcome)
		assert.Equal(t, 1, store.Len())
		api.AssertNotCalled(t, "LookupMappingID", mock.Anything, mock.Anything)
	})

	t.Run("bot messages and empty text are ignored", func(t *testing.T) {
		api := new(mockBridge)
		bot := NewBot(convref.NewMemoryStore(), api, "")
		api.On("StoreConversationReference", mock.Anything, mock.Anything).Return(retry.Result[bool]{Success: true})

		fromBot := userMessage("loop")
		fromBot.From.Role = "bot"
		outcome, err := bot.HandleActivity(ctx, fromBot)
		require.NoError(t, err)
		assert.Equal(t, TurnIgnored, outcome)

		outcome, err = bot.HandleActivity(ctx, userMessage("<at>COBRA</at>"))
		require.NoError(t, err)
		assert.Equal(t, TurnIgnored, outcome)

		api.AssertNotCalled(t, "LookupMappingID", mock.Anything, mock.Anything)
	})

	t.Run("echo from the configured app id is ignored", func(t *testing.T) {
		api := new(mockBridge)
		bot := NewBot(convref.NewMemoryStore(), api, "app-123")
		api.On("StoreConversationReference", mock.Anything, mock.Anything).Return(retry.Result[bool]{Success: true})

		echo := userMessage("[Dana] road closed")
		echo.From = Account{ID: "28:app-123", Name: "COBRA"}
		echo.Recipient = Account{ID: "28:other-recipient"}

		outcome, err := bot.HandleActivity(ctx, echo)

		require.NoError(t, err)
		assert.Equal(t, TurnIgnored, outcome)
		api.AssertNotCalled(t, "LookupMappingID", mock.Anything, mock.Anything)
	})

	t.Run("activity without conversation", func(t *testing.T) {
		bot := NewBot(convref.NewMemoryStore(), new(mockBridge), "")

		_, err := bot.HandleActivity(ctx, &Activity{Type: ActivityTypeMessage, Text: "x"})

		assert.ErrorIs(t, err, ErrNoConversation)
	})
}

func TestBot_Dispatch(t *testing.T) {
	store := convref.NewMemoryStore()
	api := new(mockBridge)
	bot := NewBot(store, api, "")
	api.On("StoreConversationReference", mock.Anything, mock.Anything).Return(retry.Result[bool]{Success: true})

	a := userMessage("")
	a.Type = ActivityTypeConversationUpdate
	bot.Dispatch(a)
	bot.Wait()

	assert.Equal(t, 1, store.Len())
}
