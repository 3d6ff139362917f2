package handler

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/cobra-poc/messaging-bridge/internal/model"
	"github.com/cobra-poc/messaging-bridge/internal/service"
)

type mockMessaging struct {
	mock.Mock
}

func (m *mockMessaging) CreateChannel(ctx context.Context, params service.CreateChannelParams) (*service.CreateChannelResult, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.CreateChannelResult), args.Error(1)
}

func (m *mockMessaging) Deactivate(ctx context.Context, eventID, mappingID string, archiveExternalGroup bool, actor string) error {
	return m.Called(ctx, eventID, mappingID, archiveExternalGroup, actor).Error(0)
}

func (m *mockMessaging) UnlinkChannel(ctx context.Context, eventID, channelID string, actor string) (*service.UnlinkResult, error) {
	args := m.Called(ctx, eventID, channelID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.UnlinkResult), args.Error(1)
}

func (m *mockMessaging) LinkChannel(ctx context.Context, eventID, channelID, mappingID, actor string) error {
	return m.Called(ctx, eventID, channelID, mappingID, actor).Error(0)
}

func (m *mockMessaging) ListMappings(ctx context.Context, eventID string) ([]model.ChannelMapping, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ChannelMapping), args.Error(1)
}

func (m *mockMessaging) ProcessInboundWebhook(ctx context.Context, mappingID string, msg model.InboundMessage) (*service.InboundResult, error) {
	args := m.Called(ctx, mappingID, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.InboundResult), args.Error(1)
}

type mockChat struct {
	mock.Mock
}

func (m *mockChat) SendMessage(ctx context.Context, params service.SendMessageParams) (*model.ChatMessage, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChatMessage), args.Error(1)
}

func (m *mockChat) ListMessages(ctx context.Context, eventID, channelID string, limit, offset int) (*service.MessagePage, error) {
	args := m.Called(ctx, eventID, channelID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.MessagePage), args.Error(1)
}

func (m *mockChat) ListChannels(ctx context.Context, eventID string) ([]model.ChatChannel, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ChatChannel), args.Error(1)
}

type mockTeams struct {
	mock.Mock
}

func (m *mockTeams) StoreConversationReference(ctx context.Context, conversationID string, ref *model.ConversationReference, conversationName, actor string) (*service.StoreReferenceResult, error) {
	args := m.Called(ctx, conversationID, ref, conversationName, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.StoreReferenceResult), args.Error(1)
}

func (m *mockTeams) GetConversationReference(ctx context.Context, conversationID string) (*model.ChannelMapping, *model.ConversationReference, error) {
	args := m.Called(ctx, conversationID)
	var mapping *model.ChannelMapping
	var ref *model.ConversationReference
	if v := args.Get(0); v != nil {
		mapping = v.(*model.ChannelMapping)
	}
	if v := args.Get(1); v != nil {
		ref = v.(*model.ConversationReference)
	}
	return mapping, ref, args.Error(2)
}

func (m *mockTeams) LookupMapping(ctx context.Context, conversationID string) (*model.ChannelMapping, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChannelMapping), args.Error(1)
}

func linkedMapping(id string) *model.ChannelMapping {
	eventID := "evt-1"
	return &model.ChannelMapping{ID: id, EventID: &eventID, Platform: model.PlatformTeams, ExternalGroupID: "19:abc@thread.tacv2", IsActive: true}
}
