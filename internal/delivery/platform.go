package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/BogdanMod/lego-bot-sub001/internal/apperrors"
)

// InlineKeyboardButton is one rendered inline button. Exactly one of URL or
// CallbackData is set.
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	URL          string `json:"url,omitempty"`
	CallbackData string `json:"callback_data,omitempty"`
}

// InlineKeyboardMarkup is the rendered button grid attached to a message.
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// KeyboardButton is one key of a reply keyboard. Contact sharing only exists
// here; the platform rejects request_contact on inline buttons.
type KeyboardButton struct {
	Text           string `json:"text"`
	RequestContact bool   `json:"request_contact,omitempty"`
}

// ReplyKeyboardMarkup replaces the user's keyboard with custom keys. Presses
// arrive as plain text messages, not callbacks.
type ReplyKeyboardMarkup struct {
	Keyboard        [][]KeyboardButton `json:"keyboard"`
	ResizeKeyboard  bool               `json:"resize_keyboard,omitempty"`
	OneTimeKeyboard bool               `json:"one_time_keyboard,omitempty"`
}

// ReplyMarkup is either an *InlineKeyboardMarkup or a *ReplyKeyboardMarkup.
type ReplyMarkup interface {
	replyMarkup()
}

func (*InlineKeyboardMarkup) replyMarkup() {}
func (*ReplyKeyboardMarkup) replyMarkup() {}

// SendMessageParams describes one outgoing text message.
type SendMessageParams struct {
	ChatID      int64       `json:"chat_id"`
	Text        string      `json:"text"`
	ParseMode   string      `json:"parse_mode,omitempty"`
	ReplyMarkup ReplyMarkup `json:"reply_markup,omitempty"`
}

// SendPhotoParams describes one outgoing photo message.
type SendPhotoParams struct {
	ChatID      int64       `json:"chat_id"`
	Photo       string      `json:"photo"` // file ID or URL
	Caption     string      `json:"caption,omitempty"`
	ParseMode   string      `json:"parse_mode,omitempty"`
	ReplyMarkup ReplyMarkup `json:"reply_markup,omitempty"`
}

// InputMediaPhoto is one element of a media group.
type InputMediaPhoto struct {
	Type    string `json:"type"` // always "photo"
	Media   string `json:"media"`
	Caption string `json:"caption,omitempty"`
}

// SendMediaGroupParams describes an album of photos.
type SendMediaGroupParams struct {
	ChatID int64             `json:"chat_id"`
	Media  []InputMediaPhoto `json:"media"`
}

// PlatformClient talks to the messaging platform's bot API on behalf of a
// specific bot token.
type PlatformClient interface {
	SendMessage(ctx context.Context, token string, params SendMessageParams) (int64, error)
	SendPhoto(ctx context.Context, token string, params SendPhotoParams) (int64, error)
	SendMediaGroup(ctx context.Context, token string, params SendMediaGroupParams) ([]int64, error)
	AnswerCallbackQuery(ctx context.Context, token, callbackQueryID string) error
}

// APIClient is the HTTP implementation of PlatformClient.
type APIClient struct {
	baseURL string
	client  *http.Client
}

// NewAPIClient creates a platform API client against baseURL
// (e.g. "https://api.telegram.org").
func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type apiMessage struct {
	MessageID int64 `json:"message_id"`
}

type apiEnvelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
}

// SendMessage sends a text message and returns the platform message ID.
func (c *APIClient) SendMessage(ctx context.Context, token string, params SendMessageParams) (int64, error) {
	var msg apiMessage
	if err := c.call(ctx, token, "sendMessage", params, &msg); err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// SendPhoto sends a photo message and returns the platform message ID.
func (c *APIClient) SendPhoto(ctx context.Context, token string, params SendPhotoParams) (int64, error) {
	var msg apiMessage
	if err := c.call(ctx, token, "sendPhoto", params, &msg); err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// SendMediaGroup sends a photo album and returns the platform message IDs.
func (c *APIClient) SendMediaGroup(ctx context.Context, token string, params SendMediaGroupParams) ([]int64, error) {
	var msgs []apiMessage
	if err := c.call(ctx, token, "sendMediaGroup", params, &msgs); err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.MessageID)
	}
	return ids, nil
}

// AnswerCallbackQuery acknowledges a callback so the client stops its spinner.
func (c *APIClient) AnswerCallbackQuery(ctx context.Context, token, callbackQueryID string) error {
	payload := map[string]string{"callback_query_id": callbackQueryID}
	return c.call(ctx, token, "answerCallbackQuery", payload, nil)
}

func (c *APIClient) call(ctx context.Context, token, method string, params interface{}, result interface{}) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal %s params: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", apperrors.ErrDeliveryFailed, method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: failed to read %s response: %w", apperrors.ErrDeliveryFailed, method, err)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("%w: unparseable %s response: %w", apperrors.ErrDeliveryFailed, method, err)
	}
	if !envelope.OK {
		return fmt.Errorf("%w: %s: %s (code %d)", apperrors.ErrDeliveryFailed, method, envelope.Description, envelope.ErrorCode)
	}

	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("%w: unparseable %s result: %w", apperrors.ErrDeliveryFailed, method, err)
		}
	}
	return nil
}
