package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/BogdanMod/lego-bot-sub001/internal/config"
	"github.com/BogdanMod/lego-bot-sub001/internal/delivery"
	"github.com/BogdanMod/lego-bot-sub001/internal/model"
	"github.com/BogdanMod/lego-bot-sub001/internal/observer"
	"github.com/BogdanMod/lego-bot-sub001/internal/privacy"
	"github.com/BogdanMod/lego-bot-sub001/pkg/logger"
	"github.com/BogdanMod/lego-bot-sub001/pkg/utils"
)

// Notifier tells a bot's administrators about a freshly captured entity.
// Notification is strictly best effort: implementations log failures and
// never propagate them into the ingestion path.
type Notifier interface {
	NotifyEntity(ctx context.Context, bot *model.Bot, entityType, entityID string, customer *model.Customer)
}

// NoopNotifier silently drops notifications. Used when no link service is
// configured.
type NoopNotifier struct{}

var _ Notifier = (*NoopNotifier)(nil)

// NotifyEntity does nothing.
func (NoopNotifier) NotifyEntity(context.Context, *model.Bot, string, string, *model.Customer) {}

// NotificationService is the production Notifier: it resolves admin-panel
// deep links through the link service and pushes a two-button message to
// every admin chat.
type NotificationService struct {
	platform delivery.PlatformClient
	cfg      config.NotifierConfig
	client   *http.Client
}

var _ Notifier = (*NotificationService)(nil)

// NewNotificationService builds the admin notifier. The link service call is
// bounded by cfg.Timeout so a slow resolver cannot stall the caller.
func NewNotificationService(cfg config.NotifierConfig, platform delivery.PlatformClient) *NotificationService {
	return &NotificationService{
		platform: platform,
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

type linkRequest struct {
	BotID      string `json:"bot_id"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

type linkResponse struct {
	QuickViewURL string `json:"quick_view_url"`
	FullViewURL  string `json:"full_view_url"`
}

// NotifyEntity sends "new <entity>" messages to the bot's admin chats. When
// the link service is down or slow the message degrades to buttonless text
// rather than being dropped.
func (n *NotificationService) NotifyEntity(ctx context.Context, bot *model.Bot, entityType, entityID string, customer *model.Customer) {
	log := logger.FromContext(ctx).With(
		zap.String("bot_id", bot.ID),
		zap.String("entity_type", entityType),
		zap.String("entity_id", entityID),
	)

	admins := bot.Admins()
	if len(admins) == 0 {
		log.Debug("No admin chats configured, skipping notification")
		return
	}

	markup := n.resolveButtons(ctx, log, bot.ID, entityType, entityID)
	text := notificationText(entityType, customer)

	for _, chatID := range admins {
		params := delivery.SendMessageParams{
			ChatID: chatID,
			Text:   text,
		}
		// Assigning a nil *InlineKeyboardMarkup would serialize as a null
		// reply_markup instead of omitting it.
		if markup != nil {
			params.ReplyMarkup = markup
		}
		if _, err := n.platform.SendMessage(ctx, bot.Token, params); err != nil {
			observer.IncNotification(bot.ID, "error")
			log.Warn("Failed to notify admin chat",
				zap.Int64("chat_id", chatID),
				zap.Error(err),
			)
			continue
		}
		observer.IncNotification(bot.ID, "sent")
	}
}

// resolveButtons asks the link service for the quick/full view URLs. Any
// failure degrades to nil markup.
func (n *NotificationService) resolveButtons(ctx context.Context, log *zap.Logger, botID, entityType, entityID string) *delivery.InlineKeyboardMarkup {
	if n.cfg.LinkServiceURL == "" {
		return nil
	}

	reqCtx := ctx
	if n.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, n.cfg.Timeout)
		defer cancel()
	}

	body := utils.MustMarshalJSON(linkRequest{BotID: botID, EntityType: entityType, EntityID: entityID})

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, n.cfg.LinkServiceURL, bytes.NewReader(body))
	if err != nil {
		log.Warn("Failed to build link service request", zap.Error(err))
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		log.Warn("Link service unreachable, sending buttonless notification", zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn("Link service returned non-200", zap.Int("status", resp.StatusCode))
		return nil
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		log.Warn("Failed to read link service response", zap.Error(err))
		return nil
	}

	var links linkResponse
	if err := json.Unmarshal(respBody, &links); err != nil {
		log.Warn("Unparseable link service response", zap.Error(err))
		return nil
	}
	if links.QuickViewURL == "" || links.FullViewURL == "" {
		log.Warn("Link service response missing URLs")
		return nil
	}

	return &delivery.InlineKeyboardMarkup{
		InlineKeyboard: [][]delivery.InlineKeyboardButton{
			{
				{Text: "Quick view", URL: links.QuickViewURL},
				{Text: "Open in dashboard", URL: links.FullViewURL},
			},
		},
	}
}

func notificationText(entityType string, customer *model.Customer) string {
	who := "a customer"
	if customer != nil {
		switch {
		case customer.Username != "":
			who = "@" + customer.Username
		case customer.FirstName != "":
			who = customer.FirstName
		}
		if customer.PhoneNumber != "" {
			who += " (" + privacy.MaskPhoneNumber(customer.PhoneNumber) + ")"
		}
	}
	return fmt.Sprintf("New %s from %s", entityType, who)
}
