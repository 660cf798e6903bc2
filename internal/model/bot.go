package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Bot is one configured bot: platform credentials, inbound webhook secret and
// the schema document the editor maintains. This service is a read-only
// consumer of the schema at request time.
type Bot struct {
	ID            string         `json:"id" gorm:"primaryKey;type:text"`
	Name          string         `json:"name,omitempty" gorm:"type:text"`
	Token         string         `json:"-" gorm:"type:text"` // platform API token
	WebhookSecret string         `json:"-" gorm:"column:webhook_secret;type:text"`
	SchemaDoc     datatypes.JSON `json:"schema,omitempty" gorm:"type:jsonb;column:schema_doc"`
	AdminChatIDs  datatypes.JSON `json:"admin_chat_ids,omitempty" gorm:"type:jsonb;column:admin_chat_ids"`
	Enabled       bool           `json:"enabled" gorm:"default:true"`
	CreatedAt     time.Time      `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt     time.Time      `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the Bot model.
func (Bot) TableName() string {
	return "bots"
}

// Schema parses the persisted schema document.
func (b *Bot) Schema() (*BotSchema, error) {
	return ParseSchema(b.SchemaDoc)
}

// Admins decodes the administrator chat ID list. A malformed document yields
// an empty list; notification is best effort anyway.
func (b *Bot) Admins() []int64 {
	if len(b.AdminChatIDs) == 0 {
		return nil
	}
	var ids []int64
	if err := json.Unmarshal(b.AdminChatIDs, &ids); err != nil {
		return nil
	}
	return ids
}
