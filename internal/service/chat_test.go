package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/cobra-poc/messaging-bridge/internal/errors"
	"github.com/cobra-poc/messaging-bridge/internal/model"
	"github.com/cobra-poc/messaging-bridge/internal/worker"
)

type recordingBroadcaster struct {
	requests []BroadcastRequest
}

func (b *recordingBroadcaster) BroadcastToExternalChannels(ctx context.Context, req BroadcastRequest) BroadcastResult {
	b.requests = append(b.requests, req)
	return BroadcastResult{}
}

func newChatFixture() (*ChatService, *mockChannelRepo, *mockChatMessageRepo, *recordingBroadcaster, *inlineQueue, *recordingPublisher) {
	channels := new(mockChannelRepo)
	messages := new(mockChatMessageRepo)
	broadcaster := &recordingBroadcaster{}
	queue := &inlineQueue{}
	publisher := &recordingPublisher{}
	return NewChatService(channels, messages, publisher, broadcaster, queue), channels, messages, broadcaster, queue, publisher
}

func storedMessage(channelID string) *model.ChatMessage {
	return &model.ChatMessage{ID: "msg-1", ChannelID: channelID, EventID: "evt-1", SenderName: "Sam", Text: "hi", Source: model.MessageSourceLocal}
}

func TestChatService_SendMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("unlinked default channel broadcasts event wide", func(t *testing.T) {
		svc, channels, messages, broadcaster, queue, publisher := newChatFixture()
		channels.On("FindByID", mock.Anything, "general").Return(&model.ChatChannel{ID: "general", EventID: "evt-1", IsDefault: true, IsActive: true}, nil)
		messages.On("Create", mock.Anything, mock.MatchedBy(func(p model.CreateChatMessageParams) bool {
			return p.Source == model.MessageSourceLocal && p.ChannelID == "general" && p.CreatedBy == "sam@example.org"
		})).Return(storedMessage("general"), nil)

		msg, err := svc.SendMessage(ctx, SendMessageParams{EventID: "evt-1", ChannelID: "general", SenderName: "Sam", Text: "hi", CreatedBy: "sam@example.org"})

		require.NoError(t, err)
		assert.Equal(t, "msg-1", msg.ID)
		assert.Equal(t, []string{"broadcast:msg-1"}, queue.jobs)
		require.Len(t, broadcaster.requests, 1)
		assert.Nil(t, broadcaster.requests[0].ChannelID)
		assert.Equal(t, "msg-1", *broadcaster.requests[0].MessageID)
		assert.Len(t, publisher.events, 1)
	})

	t.Run("linked channel broadcasts to its mapping only", func(t *testing.T) {
		svc, channels, messages, broadcaster, _, _ := newChatFixture()
		channels.On("FindByID", mock.Anything, "ch-1").Return(linkedChannel("ch-1", "map-t"), nil)
		messages.On("Create", mock.Anything, mock.Anything).Return(storedMessage("ch-1"), nil)

		_, err := svc.SendMessage(ctx, SendMessageParams{EventID: "evt-1", ChannelID: "ch-1", SenderName: "Sam", Text: "hi"})

		require.NoError(t, err)
		require.Len(t, broadcaster.requests, 1)
		assert.Equal(t, "ch-1", *broadcaster.requests[0].ChannelID)
	})

	t.Run("unlinked ordinary channel stays local", func(t *testing.T) {
		svc, channels, messages, broadcaster, queue, _ := newChatFixture()
		channels.On("FindByID", mock.Anything, "side").Return(&model.ChatChannel{ID: "side", EventID: "evt-1", IsActive: true}, nil)
		messages.On("Create", mock.Anything, mock.Anything).Return(storedMessage("side"), nil)

		_, err := svc.SendMessage(ctx, SendMessageParams{EventID: "evt-1", ChannelID: "side", SenderName: "Sam", Text: "hi"})

		require.NoError(t, err)
		assert.Empty(t, queue.jobs)
		assert.Empty(t, broadcaster.requests)
	})

	t.Run("full queue does not fail the send", func(t *testing.T) {
		svc, channels, messages, broadcaster, queue, _ := newChatFixture()
		queue.err = worker.ErrQueueFull
		channels.On("FindByID", mock.Anything, "ch-1").Return(linkedChannel("ch-1", "map-t"), nil)
		messages.On("Create", mock.Anything, mock.Anything).Return(storedMessage("ch-1"), nil)

		msg, err := svc.SendMessage(ctx, SendMessageParams{EventID: "evt-1", ChannelID: "ch-1", SenderName: "Sam", Text: "hi"})

		require.NoError(t, err)
		assert.NotNil(t, msg)
		assert.Empty(t, broadcaster.requests)
	})

	t.Run("validation", func(t *testing.T) {
		svc, _, _, _, _, _ := newChatFixture()

		_, err := svc.SendMessage(ctx, SendMessageParams{EventID: "evt-1", ChannelID: "ch-1", SenderName: "Sam"})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeMissingRequired))

		_, err = svc.SendMessage(ctx, SendMessageParams{EventID: "evt-1", ChannelID: "ch-1", Text: "hi"})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeMissingRequired))
	})

	t.Run("channel of another event", func(t *testing.T) {
		svc, channels, _, _, _, _ := newChatFixture()
		channels.On("FindByID", mock.Anything, "ch-9").Return(&model.ChatChannel{ID: "ch-9", EventID: "evt-9", IsActive: true}, nil)

		_, err := svc.SendMessage(ctx, SendMessageParams{EventID: "evt-1", ChannelID: "ch-9", SenderName: "Sam", Text: "hi"})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
	})
}

func TestChatService_ListMessages(t *testing.T) {
	ctx := context.Background()

	t.Run("clamps the page size", func(t *testing.T) {
		svc, channels, messages, _, _, _ := newChatFixture()
		channels.On("FindByID", mock.Anything, "ch-1").Return(linkedChannel("ch-1", "map-t"), nil)
		messages.On("FindByChannelID", mock.Anything, "ch-1", 200, 0).Return(nil, nil)
		messages.On("CountByChannelID", mock.Anything, "ch-1").Return(0, nil)

		page, err := svc.ListMessages(ctx, "evt-1", "ch-1", 1000, -5)

		require.NoError(t, err)
		assert.Equal(t, 200, page.Limit)
		assert.Equal(t, 0, page.Offset)
		assert.NotNil(t, page.Messages)
	})

	t.Run("defaults the page size", func(t *testing.T) {
		svc, channels, messages, _, _, _ := newChatFixture()
		channels.On("FindByID", mock.Anything, "ch-1").Return(linkedChannel("ch-1", "map-t"), nil)
		messages.On("FindByChannelID", mock.Anything, "ch-1", 50, 10).Return([]model.ChatMessage{*storedMessage("ch-1")}, nil)
		messages.On("CountByChannelID", mock.Anything, "ch-1").Return(11, nil)

		page, err := svc.ListMessages(ctx, "evt-1", "ch-1", 0, 10)

		require.NoError(t, err)
		assert.Len(t, page.Messages, 1)
		assert.Equal(t, 11, page.Total)
	})
}
