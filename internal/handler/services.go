package handler

import (
	"context"

	"github.com/cobra-poc/messaging-bridge/internal/model"
	"github.com/cobra-poc/messaging-bridge/internal/service"
)

type MessagingService interface {
	CreateChannel(ctx context.Context, params service.CreateChannelParams) (*service.CreateChannelResult, error)
	Deactivate(ctx context.Context, eventID, mappingID string, archiveExternalGroup bool, actor string) error
	UnlinkChannel(ctx context.Context, eventID, channelID string, actor string) (*service.UnlinkResult, error)
	LinkChannel(ctx context.Context, eventID, channelID, mappingID, actor string) error
	ListMappings(ctx context.Context, eventID string) ([]model.ChannelMapping, error)
	ProcessInboundWebhook(ctx context.Context, mappingID string, msg model.InboundMessage) (*service.InboundResult, error)
}

type ChatService interface {
	SendMessage(ctx context.Context, params service.SendMessageParams) (*model.ChatMessage, error)
	ListMessages(ctx context.Context, eventID, channelID string, limit, offset int) (*service.MessagePage, error)
	ListChannels(ctx context.Context, eventID string) ([]model.ChatChannel, error)
}

type TeamsBridgeService interface {
	StoreConversationReference(ctx context.Context, conversationID string, ref *model.ConversationReference, conversationName, actor string) (*service.StoreReferenceResult, error)
	GetConversationReference(ctx context.Context, conversationID string) (*model.ChannelMapping, *model.ConversationReference, error)
	LookupMapping(ctx context.Context, conversationID string) (*model.ChannelMapping, error)
}

var (
	_ MessagingService   = (*service.MessagingService)(nil)
	_ ChatService        = (*service.ChatService)(nil)
	_ TeamsBridgeService = (*service.TeamsBridgeService)(nil)
)
