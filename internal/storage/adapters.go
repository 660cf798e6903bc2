package storage

import (
	"context"
	"time"

	"github.com/BogdanMod/lego-bot-sub001/internal/model"
)

// BotRepoAdapter adapts the PostgresRepo to the BotRepo interface
type BotRepoAdapter struct {
	postgres *PostgresRepo
}

// NewBotRepoAdapter creates a new bot repository adapter
func NewBotRepoAdapter(postgres *PostgresRepo) BotRepo {
	return &BotRepoAdapter{postgres: postgres}
}

func (a *BotRepoAdapter) FindBotByID(ctx context.Context, id string) (*model.Bot, error) {
	return a.postgres.FindBotByID(ctx, id)
}

// UserStateRepoAdapter adapts the PostgresRepo to the UserStateRepo interface
type UserStateRepoAdapter struct {
	postgres *PostgresRepo
}

// NewUserStateRepoAdapter creates a new user state repository adapter
func NewUserStateRepoAdapter(postgres *PostgresRepo) UserStateRepo {
	return &UserStateRepoAdapter{postgres: postgres}
}

func (a *UserStateRepoAdapter) GetUserState(ctx context.Context, botID string, userID int64) (*model.UserState, error) {
	return a.postgres.GetUserState(ctx, botID, userID)
}

func (a *UserStateRepoAdapter) SaveUserState(ctx context.Context, botID string, userID int64, stateKey string, ttl time.Duration) error {
	return a.postgres.SaveUserState(ctx, botID, userID, stateKey, ttl)
}

func (a *UserStateRepoAdapter) DeleteExpiredUserStates(ctx context.Context) (int64, error) {
	return a.postgres.DeleteExpiredUserStates(ctx)
}

// CustomerRepoAdapter adapts the PostgresRepo to the CustomerRepo interface
type CustomerRepoAdapter struct {
	postgres *PostgresRepo
}

// NewCustomerRepoAdapter creates a new customer repository adapter
func NewCustomerRepoAdapter(postgres *PostgresRepo) CustomerRepo {
	return &CustomerRepoAdapter{postgres: postgres}
}

func (a *CustomerRepoAdapter) UpsertCustomer(ctx context.Context, customer model.Customer) (*model.Customer, error) {
	return a.postgres.UpsertCustomer(ctx, customer)
}

func (a *CustomerRepoAdapter) FindCustomerByID(ctx context.Context, id string) (*model.Customer, error) {
	return a.postgres.FindCustomerByID(ctx, id)
}

func (a *CustomerRepoAdapter) ListBroadcastRecipients(ctx context.Context, botID string) ([]model.Customer, error) {
	return a.postgres.ListBroadcastRecipients(ctx, botID)
}

// EventRepoAdapter adapts the PostgresRepo to the EventRepo interface
type EventRepoAdapter struct {
	postgres *PostgresRepo
}

// NewEventRepoAdapter creates a new event repository adapter
func NewEventRepoAdapter(postgres *PostgresRepo) EventRepo {
	return &EventRepoAdapter{postgres: postgres}
}

func (a *EventRepoAdapter) InsertEventDedup(ctx context.Context, botID, sourceID string) (bool, error) {
	return a.postgres.InsertEventDedup(ctx, botID, sourceID)
}

func (a *EventRepoAdapter) CreateEntityWithEvent(ctx context.Context, p EntityCreation) (*EntityResult, error) {
	return a.postgres.CreateEntityWithEvent(ctx, p)
}

// WebhookLogRepoAdapter adapts the PostgresRepo to the WebhookLogRepo interface
type WebhookLogRepoAdapter struct {
	postgres *PostgresRepo
}

// NewWebhookLogRepoAdapter creates a new webhook log repository adapter
func NewWebhookLogRepoAdapter(postgres *PostgresRepo) WebhookLogRepo {
	return &WebhookLogRepoAdapter{postgres: postgres}
}

func (a *WebhookLogRepoAdapter) SaveWebhookLog(ctx context.Context, entry model.WebhookLog) error {
	return a.postgres.SaveWebhookLog(ctx, entry)
}

func (a *WebhookLogRepoAdapter) FindWebhookLogsByBotID(ctx context.Context, botID string, limit int) ([]model.WebhookLog, error) {
	return a.postgres.FindWebhookLogsByBotID(ctx, botID, limit)
}

// BroadcastRepoAdapter adapts the PostgresRepo to the BroadcastRepo interface
type BroadcastRepoAdapter struct {
	postgres *PostgresRepo
}

// NewBroadcastRepoAdapter creates a new broadcast repository adapter
func NewBroadcastRepoAdapter(postgres *PostgresRepo) BroadcastRepo {
	return &BroadcastRepoAdapter{postgres: postgres}
}

func (a *BroadcastRepoAdapter) CreateBroadcast(ctx context.Context, b *model.Broadcast) error {
	return a.postgres.CreateBroadcast(ctx, b)
}

func (a *BroadcastRepoAdapter) FindBroadcastByID(ctx context.Context, id string) (*model.Broadcast, error) {
	return a.postgres.FindBroadcastByID(ctx, id)
}

func (a *BroadcastRepoAdapter) ListDueBroadcasts(ctx context.Context, now time.Time) ([]model.Broadcast, error) {
	return a.postgres.ListDueBroadcasts(ctx, now)
}

func (a *BroadcastRepoAdapter) UpdateBroadcastStatus(ctx context.Context, id, status string) error {
	return a.postgres.UpdateBroadcastStatus(ctx, id, status)
}

func (a *BroadcastRepoAdapter) StartBroadcast(ctx context.Context, id string, total int) error {
	return a.postgres.StartBroadcast(ctx, id, total)
}

func (a *BroadcastRepoAdapter) FinishBroadcast(ctx context.Context, id string) error {
	return a.postgres.FinishBroadcast(ctx, id)
}

func (a *BroadcastRepoAdapter) CreateBroadcastMessages(ctx context.Context, msgs []model.BroadcastMessage) error {
	return a.postgres.CreateBroadcastMessages(ctx, msgs)
}

func (a *BroadcastRepoAdapter) ListPendingBroadcastMessages(ctx context.Context, broadcastID string, limit int) ([]model.BroadcastMessage, error) {
	return a.postgres.ListPendingBroadcastMessages(ctx, broadcastID, limit)
}

func (a *BroadcastRepoAdapter) MarkBroadcastMessagesSending(ctx context.Context, ids []int64) error {
	return a.postgres.MarkBroadcastMessagesSending(ctx, ids)
}

func (a *BroadcastRepoAdapter) MarkBroadcastMessageSent(ctx context.Context, id int64, platformMessageID int64) error {
	return a.postgres.MarkBroadcastMessageSent(ctx, id, platformMessageID)
}

func (a *BroadcastRepoAdapter) MarkBroadcastMessageFailed(ctx context.Context, id int64, sendErr string) error {
	return a.postgres.MarkBroadcastMessageFailed(ctx, id, sendErr)
}

func (a *BroadcastRepoAdapter) FindBroadcastMessageByPlatformMessageID(ctx context.Context, botID string, platformMessageID int64) (*model.BroadcastMessage, error) {
	return a.postgres.FindBroadcastMessageByPlatformMessageID(ctx, botID, platformMessageID)
}

func (a *BroadcastRepoAdapter) RegisterBroadcastClick(ctx context.Context, id int64) error {
	return a.postgres.RegisterBroadcastClick(ctx, id)
}

func (a *BroadcastRepoAdapter) RegisterBroadcastEngagement(ctx context.Context, id int64) (bool, error) {
	return a.postgres.RegisterBroadcastEngagement(ctx, id)
}
