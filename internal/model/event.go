package model

import (
	"time"

	"gorm.io/datatypes"
)

// BotEvent is one append-only audit row per inbound update that reached the
// ingestion stage.
type BotEvent struct {
	ID         int64          `json:"-" gorm:"primaryKey;autoIncrement"`
	BotID      string         `json:"bot_id" gorm:"column:bot_id;type:text;index" validate:"required"`
	Type       string         `json:"type" gorm:"type:text"` // "lead", "order", "appointment", "interaction"
	EntityType string         `json:"entity_type,omitempty" gorm:"column:entity_type;type:text"`
	EntityID   string         `json:"entity_id,omitempty" gorm:"column:entity_id;type:text"`
	Status     string         `json:"status,omitempty" gorm:"type:text"`
	Payload    datatypes.JSON `json:"payload,omitempty" gorm:"type:jsonb"`
	CreatedAt  time.Time      `json:"created_at,omitempty" gorm:"autoCreateTime"`
}

// TableName specifies the table name for the BotEvent model.
func (BotEvent) TableName() string {
	return "bot_events"
}

// Audit event types recorded in BotEvent.Type.
const (
	EventTypeInteraction = "interaction"
)

// EventDedup enforces at-most-once ingestion per source event. Existence of
// the (bot_id, source_id) row means "already processed"; the insert conflict
// is the dedup signal, not an error.
type EventDedup struct {
	ID        int64     `json:"-" gorm:"primaryKey;autoIncrement"`
	BotID     string    `json:"bot_id" gorm:"column:bot_id;type:text;uniqueIndex:idx_event_dedup_bot_source,priority:1" validate:"required"`
	SourceID  string    `json:"source_id" gorm:"column:source_id;type:text;uniqueIndex:idx_event_dedup_bot_source,priority:2" validate:"required"`
	CreatedAt time.Time `json:"created_at,omitempty" gorm:"autoCreateTime"`
}

// TableName specifies the table name for the EventDedup model.
func (EventDedup) TableName() string {
	return "event_dedup"
}

// StreamEvent is the wire form published to the stream after a committed
// ingestion, consumed by external analytics and notification workers.
type StreamEvent struct {
	BotID      string         `json:"bot_id"`
	EventID    int64          `json:"event_id"`
	Type       string         `json:"type"`
	EntityType string         `json:"entity_type,omitempty"`
	EntityID   string         `json:"entity_id,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	Payload    datatypes.JSON `json:"payload,omitempty"`
}
