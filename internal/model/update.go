package model

import (
	"fmt"
	"strings"
)

// PlatformUser identifies an end-user on the messaging platform.
type PlatformUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// ChatRef identifies the chat an update belongs to.
type ChatRef struct {
	ID int64 `json:"id"`
}

// SharedContact is the platform-native contact share payload.
type SharedContact struct {
	PhoneNumber string `json:"phone_number"`
	FirstName   string `json:"first_name,omitempty"`
	UserID      int64  `json:"user_id,omitempty"`
}

// IncomingMessage is a message in the platform update envelope.
type IncomingMessage struct {
	MessageID int64            `json:"message_id"`
	From      *PlatformUser    `json:"from,omitempty"`
	Chat      ChatRef          `json:"chat"`
	Text      string           `json:"text,omitempty"`
	Contact   *SharedContact   `json:"contact,omitempty"`
	ReplyTo   *IncomingMessage `json:"reply_to_message,omitempty"`
}

// CallbackQuery is a button-click event in the platform update envelope.
type CallbackQuery struct {
	ID      string           `json:"id"`
	From    PlatformUser     `json:"from"`
	Data    string           `json:"data"`
	Message *IncomingMessage `json:"message,omitempty"`
}

// Update is the platform's inbound update envelope: exactly one of Message,
// EditedMessage or CallbackQuery is set.
type Update struct {
	UpdateID      int64            `json:"update_id"`
	Message       *IncomingMessage `json:"message,omitempty"`
	EditedMessage *IncomingMessage `json:"edited_message,omitempty"`
	CallbackQuery *CallbackQuery   `json:"callback_query,omitempty"`
}

// From returns the originating user, regardless of update shape.
func (u *Update) From() *PlatformUser {
	switch {
	case u.CallbackQuery != nil:
		return &u.CallbackQuery.From
	case u.Message != nil:
		return u.Message.From
	case u.EditedMessage != nil:
		return u.EditedMessage.From
	}
	return nil
}

// ChatID returns the chat the reply should go to, or 0 when absent.
func (u *Update) ChatID() int64 {
	switch {
	case u.CallbackQuery != nil && u.CallbackQuery.Message != nil:
		return u.CallbackQuery.Message.Chat.ID
	case u.Message != nil:
		return u.Message.Chat.ID
	case u.EditedMessage != nil:
		return u.EditedMessage.Chat.ID
	}
	return 0
}

// Text returns the free-text payload of the update, if any.
func (u *Update) Text() string {
	switch {
	case u.Message != nil:
		return u.Message.Text
	case u.EditedMessage != nil:
		return u.EditedMessage.Text
	}
	return ""
}

// Contact returns the shared contact payload, if any.
func (u *Update) Contact() *SharedContact {
	if u.Message != nil {
		return u.Message.Contact
	}
	return nil
}

// SourceID is the platform-scoped identifier used for ingestion dedup. The
// platform guarantees update IDs are unique per bot.
func (u *Update) SourceID() string {
	return fmt.Sprintf("upd-%d", u.UpdateID)
}

// LooksLikeEmail is a cheap shape check used when the current state carries a
// request_email button. Full address validation is the integration's problem.
func LooksLikeEmail(text string) bool {
	text = strings.TrimSpace(text)
	at := strings.Index(text, "@")
	if at <= 0 || at == len(text)-1 {
		return false
	}
	if strings.ContainsAny(text, " \t\n") {
		return false
	}
	return strings.Contains(text[at+1:], ".")
}
