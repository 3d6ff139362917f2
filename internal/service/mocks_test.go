package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/cobra-poc/messaging-bridge/internal/model"
	"github.com/cobra-poc/messaging-bridge/internal/platform"
	"github.com/cobra-poc/messaging-bridge/internal/sse"
	"github.com/cobra-poc/messaging-bridge/internal/worker"
)

type mockMappingRepo struct {
	mock.Mock
}

func (m *mockMappingRepo) FindByID(ctx context.Context, id string) (*model.ChannelMapping, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChannelMapping), args.Error(1)
}

func (m *mockMappingRepo) FindActiveByEventAndPlatform(ctx context.Context, eventID string, p model.Platform) (*model.ChannelMapping, error) {
	args := m.Called(ctx, eventID, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChannelMapping), args.Error(1)
}

func (m *mockMappingRepo) FindInactiveByEventAndPlatform(ctx context.Context, eventID string, p model.Platform) (*model.ChannelMapping, error) {
	args := m.Called(ctx, eventID, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChannelMapping), args.Error(1)
}

func (m *mockMappingRepo) FindActiveByEventID(ctx context.Context, eventID string) ([]model.ChannelMapping, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ChannelMapping), args.Error(1)
}

func (m *mockMappingRepo) FindActiveByExternalGroupID(ctx context.Context, p model.Platform, externalGroupID string) (*model.ChannelMapping, error) {
	args := m.Called(ctx, p, externalGroupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChannelMapping), args.Error(1)
}

func (m *mockMappingRepo) FindInactiveByExternalGroupID(ctx context.Context, p model.Platform, externalGroupID string) (*model.ChannelMapping, error) {
	args := m.Called(ctx, p, externalGroupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChannelMapping), args.Error(1)
}

func (m *mockMappingRepo) Create(ctx context.Context, params model.CreateChannelMappingParams) (*model.ChannelMapping, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChannelMapping), args.Error(1)
}

func (m *mockMappingRepo) Reactivate(ctx context.Context, id string, modifiedBy string) (*model.ChannelMapping, error) {
	args := m.Called(ctx, id, modifiedBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChannelMapping), args.Error(1)
}

func (m *mockMappingRepo) Deactivate(ctx context.Context, id string, modifiedBy string) error {
	return m.Called(ctx, id, modifiedBy).Error(0)
}

func (m *mockMappingRepo) SetEvent(ctx context.Context, id string, eventID string, modifiedBy string) error {
	return m.Called(ctx, id, eventID, modifiedBy).Error(0)
}

func (m *mockMappingRepo) UpdateConversationReference(ctx context.Context, id string, referenceJSON string, modifiedBy string) error {
	return m.Called(ctx, id, referenceJSON, modifiedBy).Error(0)
}

type mockChannelRepo struct {
	mock.Mock
}

func (m *mockChannelRepo) FindByID(ctx context.Context, id string) (*model.ChatChannel, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChatChannel), args.Error(1)
}

func (m *mockChannelRepo) FindByEventID(ctx context.Context, eventID string) ([]model.ChatChannel, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ChatChannel), args.Error(1)
}

func (m *mockChannelRepo) FindDefaultByEventID(ctx context.Context, eventID string) (*model.ChatChannel, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChatChannel), args.Error(1)
}

func (m *mockChannelRepo) FindActiveByMappingID(ctx context.Context, mappingID string) ([]model.ChatChannel, error) {
	args := m.Called(ctx, mappingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ChatChannel), args.Error(1)
}

func (m *mockChannelRepo) CountActiveByMappingID(ctx context.Context, mappingID string) (int, error) {
	args := m.Called(ctx, mappingID)
	return args.Int(0), args.Error(1)
}

func (m *mockChannelRepo) Create(ctx context.Context, params model.CreateChatChannelParams) (*model.ChatChannel, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChatChannel), args.Error(1)
}

func (m *mockChannelRepo) ReactivateByMappingID(ctx context.Context, mappingID string, modifiedBy string) (int64, error) {
	args := m.Called(ctx, mappingID, modifiedBy)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockChannelRepo) DeactivateByMappingID(ctx context.Context, mappingID string, modifiedBy string) (int64, error) {
	args := m.Called(ctx, mappingID, modifiedBy)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockChannelRepo) LinkMapping(ctx context.Context, id string, mappingID string, modifiedBy string) error {
	return m.Called(ctx, id, mappingID, modifiedBy).Error(0)
}

func (m *mockChannelRepo) ClearMapping(ctx context.Context, id string, modifiedBy string) error {
	return m.Called(ctx, id, modifiedBy).Error(0)
}

type mockChatMessageRepo struct {
	mock.Mock
}

func (m *mockChatMessageRepo) FindByID(ctx context.Context, id string) (*model.ChatMessage, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChatMessage), args.Error(1)
}

func (m *mockChatMessageRepo) FindByChannelID(ctx context.Context, channelID string, limit, offset int) ([]model.ChatMessage, error) {
	args := m.Called(ctx, channelID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ChatMessage), args.Error(1)
}

func (m *mockChatMessageRepo) CountByChannelID(ctx context.Context, channelID string) (int, error) {
	args := m.Called(ctx, channelID)
	return args.Int(0), args.Error(1)
}

func (m *mockChatMessageRepo) Create(ctx context.Context, params model.CreateChatMessageParams) (*model.ChatMessage, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChatMessage), args.Error(1)
}

type mockEventRepo struct {
	mock.Mock
}

func (m *mockEventRepo) FindByID(ctx context.Context, id string) (*model.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Event), args.Error(1)
}

type mockDeliveryRepo struct {
	mock.Mock
}

func (m *mockDeliveryRepo) Create(ctx context.Context, params model.CreateExternalDeliveryParams) (*model.ExternalDelivery, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ExternalDelivery), args.Error(1)
}

func (m *mockDeliveryRepo) MarkSent(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockDeliveryRepo) MarkFailed(ctx context.Context, id string, errorMsg string) error {
	return m.Called(ctx, id, errorMsg).Error(0)
}

func (m *mockDeliveryRepo) MarkSkipped(ctx context.Context, id string, reason string) error {
	return m.Called(ctx, id, reason).Error(0)
}

func (m *mockDeliveryRepo) ClaimRetryable(ctx context.Context, maxAttempts int, minAge, staleAfter time.Duration, limit int) ([]model.ExternalDelivery, error) {
	args := m.Called(ctx, maxAttempts, minAge, staleAfter, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ExternalDelivery), args.Error(1)
}

func (m *mockDeliveryRepo) ReleaseClaim(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockDeliveryRepo) CountByStatus(ctx context.Context, status model.DeliveryStatus) (int, error) {
	args := m.Called(ctx, status)
	return args.Int(0), args.Error(1)
}

type mockDriver struct {
	mock.Mock
	platform model.Platform
}

func (m *mockDriver) Platform() model.Platform {
	return m.platform
}

func (m *mockDriver) Provision(ctx context.Context, req platform.ProvisionRequest) (*platform.Provisioned, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*platform.Provisioned), args.Error(1)
}

func (m *mockDriver) Send(ctx context.Context, mapping *model.ChannelMapping, msg platform.OutboundMessage) error {
	return m.Called(ctx, mapping, msg).Error(0)
}

func (m *mockDriver) Archive(ctx context.Context, mapping *model.ChannelMapping) error {
	return m.Called(ctx, mapping).Error(0)
}

// panicDriver blows up on Send.
type panicDriver struct {
	mockDriver
}

func (d *panicDriver) Send(ctx context.Context, mapping *model.ChannelMapping, msg platform.OutboundMessage) error {
	panic("driver exploded")
}

type recordingPublisher struct {
	events []sse.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, eventID string, event sse.Event) error {
	p.events = append(p.events, event)
	return p.err
}

// inlineQueue runs jobs synchronously so tests can observe the fan-out.
type inlineQueue struct {
	jobs []string
	err  error
}

func (q *inlineQueue) Enqueue(job worker.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job.Name)
	return job.Run(context.Background())
}

type fixture struct {
	mappings   *mockMappingRepo
	channels   *mockChannelRepo
	messages   *mockChatMessageRepo
	events     *mockEventRepo
	deliveries *mockDeliveryRepo
	groupme    *mockDriver
	teams      *mockDriver
	publisher  *recordingPublisher
	svc        *MessagingService
}

func newFixture() *fixture {
	f := &fixture{
		mappings:   new(mockMappingRepo),
		channels:   new(mockChannelRepo),
		messages:   new(mockChatMessageRepo),
		events:     new(mockEventRepo),
		deliveries: new(mockDeliveryRepo),
		groupme:    &mockDriver{platform: model.PlatformGroupMe},
		teams:      &mockDriver{platform: model.PlatformTeams},
		publisher:  &recordingPublisher{},
	}
	f.svc = NewMessagingService(f.mappings, f.channels, f.messages, f.events, f.deliveries,
		platform.NewRegistry(f.groupme, f.teams), f.publisher)
	return f
}

func (f *fixture) assertExpectations(t mock.TestingT) {
	f.mappings.AssertExpectations(t)
	f.channels.AssertExpectations(t)
	f.messages.AssertExpectations(t)
	f.events.AssertExpectations(t)
	f.deliveries.AssertExpectations(t)
	f.groupme.AssertExpectations(t)
	f.teams.AssertExpectations(t)
}
