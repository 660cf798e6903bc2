package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BogdanMod/lego-bot-sub001/internal/apperrors"
	"github.com/BogdanMod/lego-bot-sub001/internal/delivery"
	"github.com/BogdanMod/lego-bot-sub001/internal/model"
	"github.com/BogdanMod/lego-bot-sub001/internal/observer"
	"github.com/BogdanMod/lego-bot-sub001/internal/storage"
	"github.com/BogdanMod/lego-bot-sub001/pkg/logger"
	"github.com/BogdanMod/lego-bot-sub001/pkg/utils"
)

// ConversationService drives the per-update conversation step: resolve the
// stored position, apply at most one transition, render the reached state and
// hand the interaction to ingestion.
type ConversationService struct {
	states     storage.UserStateRepo
	broadcasts storage.BroadcastRepo
	platform   delivery.PlatformClient
	webhooks   delivery.WebhookSender
	ingest     *IngestService
	stateTTL   time.Duration
}

// NewConversationService wires the conversation engine. broadcasts may be nil
// when click tracking is disabled.
func NewConversationService(
	states storage.UserStateRepo,
	broadcasts storage.BroadcastRepo,
	platform delivery.PlatformClient,
	webhooks delivery.WebhookSender,
	ingest *IngestService,
	stateTTL time.Duration,
) *ConversationService {
	return &ConversationService{
		states:     states,
		broadcasts: broadcasts,
		platform:   platform,
		webhooks:   webhooks,
		ingest:     ingest,
		stateTTL:   stateTTL,
	}
}

// transition is the outcome of resolving one update against the schema.
type transition struct {
	fromKey       string // Resolved position before the update
	toKey         string // Position after the update; equals fromKey on re-render
	contactShared bool
	email         string
	phone         string
}

// HandleUpdate processes one inbound platform update end to end. It applies
// at most one state transition per update regardless of the update shape.
func (s *ConversationService) HandleUpdate(ctx context.Context, bot *model.Bot, upd *model.Update) error {
	kind := updateKind(upd)
	observer.IncUpdatesReceived(bot.ID, kind)
	startTime := utils.Now()
	defer func() {
		observer.ObserveUpdateProcessingDuration(bot.ID, kind, time.Since(startTime))
	}()

	err := s.handle(ctx, bot, upd)
	if err != nil {
		observer.IncUpdatesFailed(bot.ID, kind)
	}
	return err
}

func (s *ConversationService) handle(ctx context.Context, bot *model.Bot, upd *model.Update) error {
	from := upd.From()
	chatID := upd.ChatID()
	log := logger.FromContext(ctx).With(zap.String("bot_id", bot.ID))

	if from == nil || chatID == 0 {
		log.Debug("Update carries no addressable sender, ignoring",
			zap.Int64("update_id", upd.UpdateID))
		return nil
	}
	log = log.With(zap.Int64("user_id", from.ID))

	schema, err := bot.Schema()
	if err != nil {
		log.Error("Bot schema is unparseable, dropping update", zap.Error(err))
		return fmt.Errorf("failed to parse schema for bot %s: %w", bot.ID, err)
	}

	storedKey := ""
	if state, err := s.states.GetUserState(ctx, bot.ID, from.ID); err == nil {
		storedKey = state.StateKey
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		// A read failure degrades to a fresh conversation rather than a
		// dropped update.
		log.Warn("Failed to load user state, falling back to initial state", zap.Error(err))
	}
	currentKey := schema.ResolveState(storedKey)
	current, ok := schema.StateOf(currentKey)
	if !ok {
		log.Error("Schema has no usable state", zap.String("initial_state", schema.InitialState))
		return fmt.Errorf("schema for bot %s resolves to no state", bot.ID)
	}

	if msg := upd.Message; msg != nil && msg.ReplyTo != nil {
		s.trackBroadcastReply(ctx, log, bot.ID, msg.ReplyTo.MessageID)
	}

	tr := s.resolveTransition(ctx, log, bot, schema, currentKey, current, upd)

	target, ok := schema.StateOf(tr.toKey)
	if !ok {
		// Dangling next_state in the schema: stay put and re-render
		log.Warn("Transition target missing from schema, re-rendering current state",
			zap.String("from", tr.fromKey),
			zap.String("target", tr.toKey))
		tr.toKey = currentKey
		target = current
	}

	if err := s.render(ctx, bot, chatID, tr.toKey, target); err != nil {
		return fmt.Errorf("failed to render state %q: %w", tr.toKey, err)
	}

	if err := s.states.SaveUserState(ctx, bot.ID, from.ID, tr.toKey, s.stateTTL); err != nil {
		// The reply already went out; losing the position costs a restart
		// from the initial state, not a failed update.
		log.Error("Failed to persist user state", zap.String("state_key", tr.toKey), zap.Error(err))
	}

	customer := customerFrom(bot.ID, from, chatID, tr)
	s.fireSideEffects(ctx, log, bot, schema, tr, target, customer)

	if _, err := s.ingest.Ingest(ctx, IngestInput{
		Bot:           bot,
		SourceID:      upd.SourceID(),
		Customer:      customer,
		StateKey:      tr.toKey,
		State:         &target,
		Text:          upd.Text(),
		ContactShared: tr.contactShared,
	}); err != nil {
		// The conversation already advanced; ingestion failures must not
		// surface as a failed delivery to the platform.
		log.Error("Ingestion failed for update", zap.String("source_id", upd.SourceID()), zap.Error(err))
	}

	return nil
}

// resolveTransition decides where the update moves the conversation. At most
// one transition per update; anything unresolvable re-renders the current
// state.
func (s *ConversationService) resolveTransition(ctx context.Context, log *zap.Logger, bot *model.Bot, schema *model.BotSchema, currentKey string, current model.State, upd *model.Update) transition {
	tr := transition{fromKey: currentKey, toKey: currentKey}

	if cb := upd.CallbackQuery; cb != nil {
		s.ackCallback(ctx, log, bot, cb)
		s.trackBroadcastClick(ctx, log, bot.ID, cb)

		if next, ok := matchCallback(schema, current, cb.Data); ok {
			tr.toKey = next
		} else {
			log.Debug("Callback data matches no transition, re-rendering",
				zap.String("state_key", currentKey),
				zap.String("data", cb.Data))
		}
		return tr
	}

	if contact := upd.Contact(); contact != nil {
		tr.phone = contact.PhoneNumber
		if next, ok := requestTarget(current, model.ButtonRequestContact); ok {
			tr.toKey = next
			tr.contactShared = true
		}
		return tr
	}

	if text := upd.Text(); text != "" {
		if next, ok := requestTarget(current, model.ButtonRequestEmail); ok && model.LooksLikeEmail(text) {
			tr.toKey = next
			tr.email = strings.TrimSpace(text)
			return tr
		}
		// Reply-keyboard key presses arrive as plain text carrying the key's
		// label. Only contact states render reply keyboards.
		if hasButtonKind(current.Buttons, model.ButtonRequestContact) {
			if next, ok := matchButtonLabel(current, text); ok {
				tr.toKey = next
				return tr
			}
		}
	}

	// Free text and anything else re-renders the current state
	return tr
}

// matchCallback resolves callback data against the current state's buttons.
// Matching is tolerant: the data may be the transition target itself, the
// button label, or any valid state key.
func matchCallback(schema *model.BotSchema, current model.State, data string) (string, bool) {
	data = strings.TrimSpace(data)
	if data == "" {
		return "", false
	}

	for _, b := range current.Buttons {
		target, ok := model.TransitionTarget(b)
		if !ok {
			continue
		}
		if data == target || strings.EqualFold(strings.TrimSpace(b.Label()), data) {
			return target, true
		}
	}
	if _, ok := schema.StateOf(data); ok {
		return data, true
	}
	return "", false
}

// matchButtonLabel resolves free text against the labels of the state's
// transitioning buttons.
func matchButtonLabel(current model.State, text string) (string, bool) {
	text = strings.TrimSpace(text)
	for _, b := range current.Buttons {
		target, ok := model.TransitionTarget(b)
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(b.Label()), text) {
			return target, true
		}
	}
	return "", false
}

// requestTarget finds the transition target of the first button of the given
// kind on the state.
func requestTarget(state model.State, kind model.ButtonKind) (string, bool) {
	for _, b := range state.Buttons {
		if b.Kind() != kind {
			continue
		}
		return model.TransitionTarget(b)
	}
	return "", false
}

// ackCallback stops the client-side spinner. Best effort.
func (s *ConversationService) ackCallback(ctx context.Context, log *zap.Logger, bot *model.Bot, cb *model.CallbackQuery) {
	if err := s.platform.AnswerCallbackQuery(ctx, bot.Token, cb.ID); err != nil {
		log.Debug("Failed to answer callback query", zap.String("callback_id", cb.ID), zap.Error(err))
	}
}

// trackBroadcastClick correlates a callback on a broadcast message back to
// its delivery row. Best effort; conversation handling never depends on it.
func (s *ConversationService) trackBroadcastClick(ctx context.Context, log *zap.Logger, botID string, cb *model.CallbackQuery) {
	if s.broadcasts == nil || cb.Message == nil {
		return
	}

	msg, err := s.broadcasts.FindBroadcastMessageByPlatformMessageID(ctx, botID, cb.Message.MessageID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			log.Warn("Broadcast click lookup failed", zap.Error(err))
		}
		return
	}

	if err := s.broadcasts.RegisterBroadcastClick(ctx, msg.ID); err != nil {
		log.Warn("Failed to register broadcast click", zap.Int64("message_id", msg.ID), zap.Error(err))
	}
	s.registerEngagement(ctx, log, msg)
}

// trackBroadcastReply counts a plain reply to a broadcast message as
// engagement. No click counter here; nothing was pressed.
func (s *ConversationService) trackBroadcastReply(ctx context.Context, log *zap.Logger, botID string, platformMessageID int64) {
	if s.broadcasts == nil {
		return
	}

	msg, err := s.broadcasts.FindBroadcastMessageByPlatformMessageID(ctx, botID, platformMessageID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			log.Warn("Broadcast reply lookup failed", zap.Error(err))
		}
		return
	}
	s.registerEngagement(ctx, log, msg)
}

func (s *ConversationService) registerEngagement(ctx context.Context, log *zap.Logger, msg *model.BroadcastMessage) {
	counted, err := s.broadcasts.RegisterBroadcastEngagement(ctx, msg.ID)
	if err != nil {
		log.Warn("Failed to register broadcast engagement", zap.Int64("message_id", msg.ID), zap.Error(err))
		return
	}
	if counted {
		log.Debug("Broadcast engagement counted",
			zap.String("broadcast_id", msg.BroadcastID),
			zap.Int64("message_id", msg.ID))
	}
}

// render sends the state's message, media and buttons to the chat. A media
// failure falls back to one plain-text retry so the conversation never goes
// silent over a dead file reference.
func (s *ConversationService) render(ctx context.Context, bot *model.Bot, chatID int64, stateKey string, state model.State) error {
	log := logger.FromContext(ctx).With(
		zap.String("bot_id", bot.ID),
		zap.String("state_key", stateKey),
	)
	markup := renderButtons(state.Buttons)

	switch {
	case len(state.MediaGroup) > 0:
		media := make([]delivery.InputMediaPhoto, 0, len(state.MediaGroup))
		for _, m := range state.MediaGroup {
			media = append(media, delivery.InputMediaPhoto{Type: "photo", Media: m})
		}
		if _, err := s.platform.SendMediaGroup(ctx, bot.Token, delivery.SendMediaGroupParams{
			ChatID: chatID,
			Media:  media,
		}); err != nil {
			log.Warn("Media group send failed, falling back to text", zap.Error(err))
		}
		// The caption and buttons always travel on a separate message; media
		// groups cannot carry reply markup.
		_, err := s.platform.SendMessage(ctx, bot.Token, delivery.SendMessageParams{
			ChatID:      chatID,
			Text:        state.Message,
			ParseMode:   state.ParseMode,
			ReplyMarkup: markup,
		})
		return err

	case state.Media != "":
		_, err := s.platform.SendPhoto(ctx, bot.Token, delivery.SendPhotoParams{
			ChatID:      chatID,
			Photo:       state.Media,
			Caption:     state.Message,
			ParseMode:   state.ParseMode,
			ReplyMarkup: markup,
		})
		if err == nil {
			return nil
		}
		log.Warn("Photo send failed, retrying as plain text", zap.Error(err))
		_, err = s.platform.SendMessage(ctx, bot.Token, delivery.SendMessageParams{
			ChatID:      chatID,
			Text:        state.Message,
			ParseMode:   state.ParseMode,
			ReplyMarkup: markup,
		})
		return err

	default:
		_, err := s.platform.SendMessage(ctx, bot.Token, delivery.SendMessageParams{
			ChatID:      chatID,
			Text:        state.Message,
			ParseMode:   state.ParseMode,
			ReplyMarkup: markup,
		})
		return err
	}
}

// renderButtons maps schema buttons onto platform markup, one button per
// row. States with a request_contact button render as a reply keyboard,
// since contact sharing only exists on reply-keyboard keys; everything else
// is an inline keyboard with the transition target as callback data.
func renderButtons(buttons model.ButtonList) delivery.ReplyMarkup {
	if len(buttons) == 0 {
		return nil
	}

	if hasButtonKind(buttons, model.ButtonRequestContact) {
		keys := make([][]delivery.KeyboardButton, 0, len(buttons))
		for _, b := range buttons {
			key := delivery.KeyboardButton{Text: b.Label()}
			if b.Kind() == model.ButtonRequestContact {
				key.RequestContact = true
			}
			keys = append(keys, []delivery.KeyboardButton{key})
		}
		return &delivery.ReplyKeyboardMarkup{
			Keyboard:        keys,
			ResizeKeyboard:  true,
			OneTimeKeyboard: true,
		}
	}

	rows := make([][]delivery.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		var btn delivery.InlineKeyboardButton
		switch concrete := b.(type) {
		case model.URLButton:
			btn = delivery.InlineKeyboardButton{Text: concrete.Text, URL: concrete.URL}
		case model.NavigationButton:
			btn = delivery.InlineKeyboardButton{Text: concrete.Text, CallbackData: concrete.NextState}
		case model.RequestEmailButton:
			btn = delivery.InlineKeyboardButton{Text: concrete.Text, CallbackData: concrete.NextState}
		default:
			continue
		}
		rows = append(rows, []delivery.InlineKeyboardButton{btn})
	}
	return &delivery.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func hasButtonKind(buttons model.ButtonList, kind model.ButtonKind) bool {
	for _, b := range buttons {
		if b.Kind() == kind {
			return true
		}
	}
	return false
}

// customerFrom builds the profile snapshot upserted for this update.
func customerFrom(botID string, from *model.PlatformUser, chatID int64, tr transition) model.Customer {
	return model.Customer{
		BotID:          botID,
		PlatformUserID: from.ID,
		ChatID:         chatID,
		FirstName:      from.FirstName,
		LastName:       from.LastName,
		Username:       from.Username,
		PhoneNumber:    tr.phone,
		Email:          tr.email,
	}
}

// integrationPayload is the wire shape posted to state webhooks and
// integrations.
type integrationPayload struct {
	BotID     string `json:"bot_id"`
	UserID    int64  `json:"user_id"`
	StateKey  string `json:"state_key"`
	Timestamp int64  `json:"timestamp"`
	User      struct {
		FirstName   string `json:"first_name,omitempty"`
		PhoneNumber string `json:"phone_number,omitempty"`
		Email       string `json:"email,omitempty"`
	} `json:"user"`
	Context struct {
		PreviousState string `json:"previous_state"`
		InitialState  string `json:"initial_state"`
	} `json:"context"`
}

// fireSideEffects dispatches the reached state's webhook and integration
// deliveries. Detached from the request: retries may outlive this update.
func (s *ConversationService) fireSideEffects(ctx context.Context, log *zap.Logger, bot *model.Bot, schema *model.BotSchema, tr transition, state model.State, customer model.Customer) {
	if state.Webhook == nil && state.Integration == nil {
		return
	}

	var payload integrationPayload
	payload.BotID = bot.ID
	payload.UserID = customer.PlatformUserID
	payload.StateKey = tr.toKey
	payload.Timestamp = utils.Now().Unix()
	payload.User.FirstName = customer.FirstName
	payload.User.PhoneNumber = customer.PhoneNumber
	payload.User.Email = customer.Email
	payload.Context.PreviousState = tr.fromKey
	payload.Context.InitialState = schema.InitialState

	body := utils.MustMarshalJSON(payload)

	sendCtx := logger.WithLogger(context.WithoutCancel(ctx), log)
	for _, cfg := range []*model.WebhookConfig{state.Webhook, state.Integration} {
		if cfg == nil {
			continue
		}
		whCfg := *cfg
		utils.SafeGo(func() {
			if err := s.webhooks.Send(sendCtx, bot.ID, whCfg, body); err != nil {
				log.Warn("State side-effect delivery failed",
					zap.String("url", whCfg.URL),
					zap.Error(err))
			}
		}, nil)
	}
}

func updateKind(upd *model.Update) string {
	switch {
	case upd.CallbackQuery != nil:
		return "callback_query"
	case upd.EditedMessage != nil:
		return "edited_message"
	case upd.Message != nil:
		return "message"
	}
	return "unknown"
}
