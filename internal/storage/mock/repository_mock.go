package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/BogdanMod/lego-bot-sub001/internal/model"
	"github.com/BogdanMod/lego-bot-sub001/internal/storage"
)

// --- BotRepo Mock ---

// BotRepoMock mocks the BotRepo interface
type BotRepoMock struct {
	mock.Mock
}

// FindBotByID mocks the FindBotByID method
func (m *BotRepoMock) FindBotByID(ctx context.Context, id string) (*model.Bot, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Bot), args.Error(1)
}

// --- UserStateRepo Mock ---

// UserStateRepoMock mocks the UserStateRepo interface
type UserStateRepoMock struct {
	mock.Mock
}

// GetUserState mocks the GetUserState method
func (m *UserStateRepoMock) GetUserState(ctx context.Context, botID string, userID int64) (*model.UserState, error) {
	args := m.Called(ctx, botID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UserState), args.Error(1)
}

// SaveUserState mocks the SaveUserState method
func (m *UserStateRepoMock) SaveUserState(ctx context.Context, botID string, userID int64, stateKey string, ttl time.Duration) error {
	args := m.Called(ctx, botID, userID, stateKey, ttl)
	return args.Error(0)
}

// DeleteExpiredUserStates mocks the DeleteExpiredUserStates method
func (m *UserStateRepoMock) DeleteExpiredUserStates(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// --- CustomerRepo Mock ---

// CustomerRepoMock mocks the CustomerRepo interface
type CustomerRepoMock struct {
	mock.Mock
}

// UpsertCustomer mocks the UpsertCustomer method
func (m *CustomerRepoMock) UpsertCustomer(ctx context.Context, customer model.Customer) (*model.Customer, error) {
	args := m.Called(ctx, customer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Customer), args.Error(1)
}

// FindCustomerByID mocks the FindCustomerByID method
func (m *CustomerRepoMock) FindCustomerByID(ctx context.Context, id string) (*model.Customer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Customer), args.Error(1)
}

// ListBroadcastRecipients mocks the ListBroadcastRecipients method
func (m *CustomerRepoMock) ListBroadcastRecipients(ctx context.Context, botID string) ([]model.Customer, error) {
	args := m.Called(ctx, botID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Customer), args.Error(1)
}

// --- EventRepo Mock ---

// EventRepoMock mocks the EventRepo interface
type EventRepoMock struct {
	mock.Mock
}

// InsertEventDedup mocks the InsertEventDedup method
func (m *EventRepoMock) InsertEventDedup(ctx context.Context, botID, sourceID string) (bool, error) {
	args := m.Called(ctx, botID, sourceID)
	return args.Bool(0), args.Error(1)
}

// CreateEntityWithEvent mocks the CreateEntityWithEvent method
func (m *EventRepoMock) CreateEntityWithEvent(ctx context.Context, p storage.EntityCreation) (*storage.EntityResult, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.EntityResult), args.Error(1)
}

// --- WebhookLogRepo Mock ---

// WebhookLogRepoMock mocks the WebhookLogRepo interface
type WebhookLogRepoMock struct {
	mock.Mock
}

// SaveWebhookLog mocks the SaveWebhookLog method
func (m *WebhookLogRepoMock) SaveWebhookLog(ctx context.Context, entry model.WebhookLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// FindWebhookLogsByBotID mocks the FindWebhookLogsByBotID method
func (m *WebhookLogRepoMock) FindWebhookLogsByBotID(ctx context.Context, botID string, limit int) ([]model.WebhookLog, error) {
	args := m.Called(ctx, botID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.WebhookLog), args.Error(1)
}

// --- BroadcastRepo Mock ---

// BroadcastRepoMock mocks the BroadcastRepo interface
type BroadcastRepoMock struct {
	mock.Mock
}

// CreateBroadcast mocks the CreateBroadcast method
func (m *BroadcastRepoMock) CreateBroadcast(ctx context.Context, b *model.Broadcast) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

// FindBroadcastByID mocks the FindBroadcastByID method
func (m *BroadcastRepoMock) FindBroadcastByID(ctx context.Context, id string) (*model.Broadcast, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Broadcast), args.Error(1)
}

// ListDueBroadcasts mocks the ListDueBroadcasts method
func (m *BroadcastRepoMock) ListDueBroadcasts(ctx context.Context, now time.Time) ([]model.Broadcast, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Broadcast), args.Error(1)
}

// UpdateBroadcastStatus mocks the UpdateBroadcastStatus method
func (m *BroadcastRepoMock) UpdateBroadcastStatus(ctx context.Context, id, status string) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

// StartBroadcast mocks the StartBroadcast method
func (m *BroadcastRepoMock) StartBroadcast(ctx context.Context, id string, total int) error {
	args := m.Called(ctx, id, total)
	return args.Error(0)
}

// FinishBroadcast mocks the FinishBroadcast method
func (m *BroadcastRepoMock) FinishBroadcast(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// CreateBroadcastMessages mocks the CreateBroadcastMessages method
func (m *BroadcastRepoMock) CreateBroadcastMessages(ctx context.Context, msgs []model.BroadcastMessage) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

// ListPendingBroadcastMessages mocks the ListPendingBroadcastMessages method
func (m *BroadcastRepoMock) ListPendingBroadcastMessages(ctx context.Context, broadcastID string, limit int) ([]model.BroadcastMessage, error) {
	args := m.Called(ctx, broadcastID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.BroadcastMessage), args.Error(1)
}

// MarkBroadcastMessagesSending mocks the MarkBroadcastMessagesSending method
func (m *BroadcastRepoMock) MarkBroadcastMessagesSending(ctx context.Context, ids []int64) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

// MarkBroadcastMessageSent mocks the MarkBroadcastMessageSent method
func (m *BroadcastRepoMock) MarkBroadcastMessageSent(ctx context.Context, id int64, platformMessageID int64) error {
	args := m.Called(ctx, id, platformMessageID)
	return args.Error(0)
}

// MarkBroadcastMessageFailed mocks the MarkBroadcastMessageFailed method
func (m *BroadcastRepoMock) MarkBroadcastMessageFailed(ctx context.Context, id int64, sendErr string) error {
	args := m.Called(ctx, id, sendErr)
	return args.Error(0)
}

// FindBroadcastMessageByPlatformMessageID mocks the FindBroadcastMessageByPlatformMessageID method
func (m *BroadcastRepoMock) FindBroadcastMessageByPlatformMessageID(ctx context.Context, botID string, platformMessageID int64) (*model.BroadcastMessage, error) {
	args := m.Called(ctx, botID, platformMessageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BroadcastMessage), args.Error(1)
}

// RegisterBroadcastClick mocks the RegisterBroadcastClick method
func (m *BroadcastRepoMock) RegisterBroadcastClick(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// RegisterBroadcastEngagement mocks the RegisterBroadcastEngagement method
func (m *BroadcastRepoMock) RegisterBroadcastEngagement(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}
