package model

import (
	"time"

	"gorm.io/datatypes"
)

// EventKind classifies a conversational interaction into the business entity
// it should create, if any.
type EventKind string

const (
	KindNone        EventKind = ""
	KindLead        EventKind = "lead"
	KindOrder       EventKind = "order"
	KindAppointment EventKind = "appointment"
)

// ParseEventKind maps a schema annotation to a known kind; anything
// unrecognized is KindNone.
func ParseEventKind(s string) EventKind {
	switch EventKind(s) {
	case KindLead, KindOrder, KindAppointment:
		return EventKind(s)
	}
	return KindNone
}

// Entity status lifecycle. Only "new" matters to this core; the dashboard
// moves entities through the rest.
const (
	EntityStatusNew = "new"
)

// Lead is a captured sales contact for (bot, customer).
type Lead struct {
	ID         string         `json:"id" gorm:"primaryKey;type:text"`
	BotID      string         `json:"bot_id" gorm:"column:bot_id;type:text;index" validate:"required"`
	CustomerID string         `json:"customer_id" gorm:"column:customer_id;type:text;index" validate:"required"`
	Status     string         `json:"status" gorm:"type:text;default:new"`
	Source     string         `json:"source,omitempty" gorm:"type:text"` // state key or "request_contact"
	Payload    datatypes.JSON `json:"payload,omitempty" gorm:"type:jsonb"`
	CreatedAt  time.Time      `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt  time.Time      `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the Lead model.
func (Lead) TableName() string {
	return "leads"
}

// Appointment is a captured booking request for (bot, customer).
type Appointment struct {
	ID         string         `json:"id" gorm:"primaryKey;type:text"`
	BotID      string         `json:"bot_id" gorm:"column:bot_id;type:text;index" validate:"required"`
	CustomerID string         `json:"customer_id" gorm:"column:customer_id;type:text;index" validate:"required"`
	Status     string         `json:"status" gorm:"type:text;default:new"`
	Source     string         `json:"source,omitempty" gorm:"type:text"`
	Payload    datatypes.JSON `json:"payload,omitempty" gorm:"type:jsonb"`
	CreatedAt  time.Time      `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt  time.Time      `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the Appointment model.
func (Appointment) TableName() string {
	return "appointments"
}

// Order is a captured purchase intent for (bot, customer). Orders are not
// subject to the re-occurrence window: every classified order creates a row.
type Order struct {
	ID         string         `json:"id" gorm:"primaryKey;type:text"`
	BotID      string         `json:"bot_id" gorm:"column:bot_id;type:text;index" validate:"required"`
	CustomerID string         `json:"customer_id" gorm:"column:customer_id;type:text;index" validate:"required"`
	Status     string         `json:"status" gorm:"type:text;default:new"`
	Source     string         `json:"source,omitempty" gorm:"type:text"`
	Payload    datatypes.JSON `json:"payload,omitempty" gorm:"type:jsonb"`
	CreatedAt  time.Time      `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt  time.Time      `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the Order model.
func (Order) TableName() string {
	return "orders"
}
