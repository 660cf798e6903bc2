package model

import (
	"time"

	"gorm.io/datatypes"
)

// Customer represents one end-user as seen by one bot. Unique on
// (bot_id, platform_user_id); upserted on every inbound event with
// first-non-null-wins semantics for the profile fields and an unconditional
// last_seen_at bump.
type Customer struct {
	ID             string         `json:"id" gorm:"primaryKey;type:text"`
	BotID          string         `json:"bot_id" gorm:"column:bot_id;type:text;uniqueIndex:idx_customers_bot_platform_user,priority:1" validate:"required"`
	PlatformUserID int64          `json:"platform_user_id" gorm:"column:platform_user_id;uniqueIndex:idx_customers_bot_platform_user,priority:2" validate:"required"`
	ChatID         int64          `json:"chat_id,omitempty" gorm:"column:chat_id"`
	FirstName      string         `json:"first_name,omitempty" gorm:"type:text"`
	LastName       string         `json:"last_name,omitempty" gorm:"type:text"`
	Username       string         `json:"username,omitempty" gorm:"type:text"`
	PhoneNumber    string         `json:"phone_number,omitempty" gorm:"type:text"`
	Email          string         `json:"email,omitempty" gorm:"type:text"`
	LastSeenAt     time.Time      `json:"last_seen_at" gorm:"column:last_seen_at"`
	LastMetadata   datatypes.JSON `json:"last_metadata,omitempty" gorm:"type:jsonb;column:last_metadata"`
	CreatedAt      time.Time      `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt      time.Time      `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the Customer model.
func (Customer) TableName() string {
	return "customers"
}

// FillFrom copies fields from src into previously-empty fields of c and
// reports whether anything changed. last_seen_at is handled by the caller.
func (c *Customer) FillFrom(src Customer) bool {
	changed := false
	if c.ChatID == 0 && src.ChatID != 0 {
		c.ChatID = src.ChatID
		changed = true
	}
	if c.FirstName == "" && src.FirstName != "" {
		c.FirstName = src.FirstName
		changed = true
	}
	if c.LastName == "" && src.LastName != "" {
		c.LastName = src.LastName
		changed = true
	}
	if c.Username == "" && src.Username != "" {
		c.Username = src.Username
		changed = true
	}
	if c.PhoneNumber == "" && src.PhoneNumber != "" {
		c.PhoneNumber = src.PhoneNumber
		changed = true
	}
	if c.Email == "" && src.Email != "" {
		c.Email = src.Email
		changed = true
	}
	return changed
}
