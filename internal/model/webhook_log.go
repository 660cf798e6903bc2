package model

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookLog records one outbound delivery attempt (not one logical send).
// Payload and response are PII-masked and size-capped before storage; the
// dashboard reads these rows for delivery diagnostics.
type WebhookLog struct {
	ID         int64          `json:"-" gorm:"primaryKey;autoIncrement"`
	BotID      string         `json:"bot_id" gorm:"column:bot_id;type:text;index"`
	URL        string         `json:"url" gorm:"type:text"`
	Method     string         `json:"method,omitempty" gorm:"type:text"`
	Payload    datatypes.JSON `json:"payload,omitempty" gorm:"type:jsonb"`
	StatusCode int            `json:"status_code,omitempty" gorm:"column:status_code"`
	Response   string         `json:"response,omitempty" gorm:"type:text"`
	Error      string         `json:"error,omitempty" gorm:"type:text"`
	Attempt    int            `json:"attempt" gorm:"column:attempt"` // 0-based retry counter
	CreatedAt  time.Time      `json:"created_at,omitempty" gorm:"autoCreateTime;index"`
}

// TableName specifies the table name for the WebhookLog model.
func (WebhookLog) TableName() string {
	return "webhook_logs"
}
