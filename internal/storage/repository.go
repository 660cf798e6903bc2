package storage

import (
	"context"
	"time"

	"gorm.io/datatypes"

	"github.com/BogdanMod/lego-bot-sub001/internal/model"
)

// BotRepo defines bot definition lookup operations
type BotRepo interface {
	FindBotByID(ctx context.Context, id string) (*model.Bot, error)
}

// UserStateRepo defines per-user conversation position storage
type UserStateRepo interface {
	GetUserState(ctx context.Context, botID string, userID int64) (*model.UserState, error)
	SaveUserState(ctx context.Context, botID string, userID int64, stateKey string, ttl time.Duration) error
	DeleteExpiredUserStates(ctx context.Context) (int64, error)
}

// CustomerRepo defines customer profile storage operations
type CustomerRepo interface {
	UpsertCustomer(ctx context.Context, customer model.Customer) (*model.Customer, error)
	FindCustomerByID(ctx context.Context, id string) (*model.Customer, error)
	ListBroadcastRecipients(ctx context.Context, botID string) ([]model.Customer, error)
}

// EntityCreation describes one classified interaction to be recorded
// transactionally as a business entity plus its audit event.
type EntityCreation struct {
	Kind        model.EventKind
	BotID       string
	CustomerID  string
	Source      string
	Payload     datatypes.JSON
	DedupWindow time.Duration // Suppression window for lead/appointment rows
}

// EntityResult reports what CreateEntityWithEvent actually wrote.
type EntityResult struct {
	EntityType string
	EntityID   string
	EventID    int64
	Suppressed bool // A recent open entity already covered this interaction
}

// EventRepo defines the ingestion-side storage operations
type EventRepo interface {
	// InsertEventDedup claims a (bot, source) pair. It returns false when the
	// pair was already claimed by an earlier delivery.
	InsertEventDedup(ctx context.Context, botID, sourceID string) (bool, error)
	CreateEntityWithEvent(ctx context.Context, p EntityCreation) (*EntityResult, error)
}

// WebhookLogRepo defines outbound delivery audit storage
type WebhookLogRepo interface {
	SaveWebhookLog(ctx context.Context, entry model.WebhookLog) error
	FindWebhookLogsByBotID(ctx context.Context, botID string, limit int) ([]model.WebhookLog, error)
}

// BroadcastRepo defines broadcast fan-out storage operations
type BroadcastRepo interface {
	CreateBroadcast(ctx context.Context, b *model.Broadcast) error
	FindBroadcastByID(ctx context.Context, id string) (*model.Broadcast, error)
	ListDueBroadcasts(ctx context.Context, now time.Time) ([]model.Broadcast, error)
	UpdateBroadcastStatus(ctx context.Context, id, status string) error
	StartBroadcast(ctx context.Context, id string, total int) error
	FinishBroadcast(ctx context.Context, id string) error

	CreateBroadcastMessages(ctx context.Context, msgs []model.BroadcastMessage) error
	ListPendingBroadcastMessages(ctx context.Context, broadcastID string, limit int) ([]model.BroadcastMessage, error)
	MarkBroadcastMessagesSending(ctx context.Context, ids []int64) error
	MarkBroadcastMessageSent(ctx context.Context, id int64, platformMessageID int64) error
	MarkBroadcastMessageFailed(ctx context.Context, id int64, sendErr string) error
	FindBroadcastMessageByPlatformMessageID(ctx context.Context, botID string, platformMessageID int64) (*model.BroadcastMessage, error)
	RegisterBroadcastClick(ctx context.Context, id int64) error
	// RegisterBroadcastEngagement counts the first engagement only; it
	// reports whether this call was the one that counted.
	RegisterBroadcastEngagement(ctx context.Context, id int64) (bool, error)
}
