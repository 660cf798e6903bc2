package model

import (
	"time"
)

// Broadcast lifecycle statuses.
const (
	BroadcastStatusDraft     = "draft"
	BroadcastStatusScheduled = "scheduled"
	BroadcastStatusSending   = "sending"
	BroadcastStatusDone      = "done"
	BroadcastStatusCancelled = "cancelled"
)

// Per-recipient delivery statuses.
const (
	BroadcastMsgPending = "pending"
	BroadcastMsgSending = "sending"
	BroadcastMsgSent    = "sent"
	BroadcastMsgFailed  = "failed"
)

// Broadcast is one authored message fanned out to a bot's known user set,
// independent of per-user conversation state.
type Broadcast struct {
	ID          string     `json:"id" gorm:"primaryKey;type:text"`
	BotID       string     `json:"bot_id" gorm:"column:bot_id;type:text;index" validate:"required"`
	Message     string     `json:"message" gorm:"type:text" validate:"required"`
	ParseMode   string     `json:"parse_mode,omitempty" gorm:"column:parse_mode;type:text"`
	ButtonText  string     `json:"button_text,omitempty" gorm:"column:button_text;type:text"`
	ButtonURL   string     `json:"button_url,omitempty" gorm:"column:button_url;type:text"`
	Status      string     `json:"status" gorm:"type:text;default:draft"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty" gorm:"column:scheduled_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" gorm:"column:started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty" gorm:"column:finished_at"`
	TotalCount  int        `json:"total_count" gorm:"column:total_count"`
	SentCount   int        `json:"sent_count" gorm:"column:sent_count"`
	FailedCount int        `json:"failed_count" gorm:"column:failed_count"`
	CreatedAt   time.Time  `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the Broadcast model.
func (Broadcast) TableName() string {
	return "broadcasts"
}

// BroadcastMessage is one (broadcast, recipient) delivery row. Click and
// engagement tracking correlate back to it through the platform message ID;
// engagement is counted once per row.
type BroadcastMessage struct {
	ID                int64     `json:"-" gorm:"primaryKey;autoIncrement"`
	BroadcastID       string    `json:"broadcast_id" gorm:"column:broadcast_id;type:text;index" validate:"required"`
	BotID             string    `json:"bot_id" gorm:"column:bot_id;type:text;index" validate:"required"`
	CustomerID        string    `json:"customer_id" gorm:"column:customer_id;type:text" validate:"required"`
	ChatID            int64     `json:"chat_id" gorm:"column:chat_id"`
	Status            string    `json:"status" gorm:"type:text;default:pending"`
	PlatformMessageID int64     `json:"platform_message_id,omitempty" gorm:"column:platform_message_id;index"`
	ClickCount        int       `json:"click_count" gorm:"column:click_count"`
	EngagedCount      int       `json:"engaged_count" gorm:"column:engaged_count"`
	Error             string    `json:"error,omitempty" gorm:"type:text"`
	CreatedAt         time.Time `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt         time.Time `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the BroadcastMessage model.
func (BroadcastMessage) TableName() string {
	return "broadcast_messages"
}
