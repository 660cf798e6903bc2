package model

import (
	"time"
)

// UserState is the per (bot, end-user) conversation position. It is a cache
// of "where in the conversation", not a ledger: overwritten on every
// transition, silently expired by TTL, no explicit destroy.
type UserState struct {
	ID        int64     `json:"-" gorm:"primaryKey;autoIncrement"`
	BotID     string    `json:"bot_id" gorm:"column:bot_id;type:text;uniqueIndex:idx_user_states_bot_user,priority:1" validate:"required"`
	UserID    int64     `json:"user_id" gorm:"column:user_id;uniqueIndex:idx_user_states_bot_user,priority:2" validate:"required"`
	StateKey  string    `json:"state_key" gorm:"column:state_key;type:text" validate:"required"`
	ExpiresAt time.Time `json:"expires_at" gorm:"column:expires_at;index"`
	CreatedAt time.Time `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the UserState model.
func (UserState) TableName() string {
	return "user_states"
}

// Expired reports whether the stored position has outlived its TTL.
func (s *UserState) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
