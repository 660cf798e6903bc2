package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/BogdanMod/lego-bot-sub001/internal/apperrors"
	"github.com/BogdanMod/lego-bot-sub001/internal/delivery"
	deliverymock "github.com/BogdanMod/lego-bot-sub001/internal/delivery/mock"
	"github.com/BogdanMod/lego-bot-sub001/internal/model"
	"github.com/BogdanMod/lego-bot-sub001/internal/storage"
	storagemock "github.com/BogdanMod/lego-bot-sub001/internal/storage/mock"
)

const testSchemaDoc = `{
	"version": 1,
	"initial_state": "start",
	"states": {
		"start": {
			"message": "Welcome! What can we do for you?",
			"buttons": [
				{"type": "navigation", "text": "Menu", "next_state": "menu"},
				{"type": "request_contact", "text": "Share contact", "next_state": "thanks"}
			]
		},
		"menu": {
			"message": "Pick an option",
			"buttons": [
				{"type": "navigation", "text": "Confirm", "next_state": "thanks"},
				{"type": "url", "text": "Our site", "url": "https://example.org"}
			]
		},
		"thanks": {
			"message": "Great, we will book your visit shortly!"
		}
	}
}`

type conversationFixture struct {
	svc        *ConversationService
	states     *storagemock.UserStateRepoMock
	broadcasts *storagemock.BroadcastRepoMock
	platform   *deliverymock.PlatformClientMock
	webhooks   *deliverymock.WebhookSenderMock
	events     *storagemock.EventRepoMock
	customers  *storagemock.CustomerRepoMock
}

func newConversationFixture(t *testing.T) *conversationFixture {
	t.Helper()
	f := &conversationFixture{
		states:     new(storagemock.UserStateRepoMock),
		broadcasts: new(storagemock.BroadcastRepoMock),
		platform:   new(deliverymock.PlatformClientMock),
		webhooks:   new(deliverymock.WebhookSenderMock),
		events:     new(storagemock.EventRepoMock),
		customers:  new(storagemock.CustomerRepoMock),
	}
	ingest := NewIngestService(f.events, f.customers,
		NewKeywordClassifier(testClassifierConfig()), nil, nil, 10*time.Minute)
	f.svc = NewConversationService(f.states, f.broadcasts, f.platform, f.webhooks, ingest, 30*24*time.Hour)
	return f
}

func (f *conversationFixture) bot() *model.Bot {
	return &model.Bot{
		ID:        "bot-1",
		Token:     "tok",
		SchemaDoc: datatypes.JSON(testSchemaDoc),
		Enabled:   true,
	}
}

func (f *conversationFixture) storedState(key string) {
	f.states.On("GetUserState", mock.Anything, "bot-1", int64(42)).
		Return(&model.UserState{BotID: "bot-1", UserID: 42, StateKey: key}, nil)
}

func (f *conversationFixture) noStoredState() {
	f.states.On("GetUserState", mock.Anything, "bot-1", int64(42)).
		Return(nil, apperrors.ErrNotFound)
}

func (f *conversationFixture) expectIngest(kind model.EventKind) {
	f.events.On("InsertEventDedup", mock.Anything, "bot-1", mock.Anything).Return(true, nil)
	f.customers.On("UpsertCustomer", mock.Anything, mock.Anything).
		Return(&model.Customer{ID: "cust-1", BotID: "bot-1", PlatformUserID: 42}, nil)
	f.events.On("CreateEntityWithEvent", mock.Anything, mock.MatchedBy(func(p storage.EntityCreation) bool {
		return p.Kind == kind
	})).Return(&storage.EntityResult{EventID: 1}, nil)
}

func callbackUpdate(data string, platformMessageID int64) *model.Update {
	return &model.Update{
		UpdateID: 7,
		CallbackQuery: &model.CallbackQuery{
			ID:   "cb-1",
			From: model.PlatformUser{ID: 42, FirstName: "Ada"},
			Data: data,
			Message: &model.IncomingMessage{
				MessageID: platformMessageID,
				Chat:      model.ChatRef{ID: 42},
			},
		},
	}
}

func textUpdate(text string) *model.Update {
	return &model.Update{
		UpdateID: 7,
		Message: &model.IncomingMessage{
			MessageID: 1,
			From:      &model.PlatformUser{ID: 42, FirstName: "Ada"},
			Chat:      model.ChatRef{ID: 42},
			Text:      text,
		},
	}
}

func TestHandleUpdate_CallbackTransitionCapturesAppointment(t *testing.T) {
	f := newConversationFixture(t)
	f.storedState("menu")
	f.platform.On("AnswerCallbackQuery", mock.Anything, "tok", "cb-1").Return(nil)
	f.broadcasts.On("FindBroadcastMessageByPlatformMessageID", mock.Anything, "bot-1", int64(5)).
		Return(nil, apperrors.ErrNotFound)
	f.platform.On("SendMessage", mock.Anything, "tok", mock.MatchedBy(func(p delivery.SendMessageParams) bool {
		return p.ChatID == 42 && strings.Contains(p.Text, "book your visit")
	})).Return(int64(100), nil)
	f.states.On("SaveUserState", mock.Anything, "bot-1", int64(42), "thanks", 30*24*time.Hour).Return(nil)
	// "book" in the reached state's message classifies the interaction
	f.expectIngest(model.KindAppointment)

	// Callback data matches the "Confirm" button label case-insensitively
	err := f.svc.HandleUpdate(context.Background(), f.bot(), callbackUpdate("confirm", 5))

	require.NoError(t, err)
	f.platform.AssertExpectations(t)
	f.states.AssertExpectations(t)
	f.events.AssertExpectations(t)
}

func TestHandleUpdate_CallbackByTargetStateKey(t *testing.T) {
	f := newConversationFixture(t)
	f.storedState("menu")
	f.platform.On("AnswerCallbackQuery", mock.Anything, "tok", "cb-1").Return(nil)
	f.broadcasts.On("FindBroadcastMessageByPlatformMessageID", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, apperrors.ErrNotFound)
	f.platform.On("SendMessage", mock.Anything, "tok", mock.MatchedBy(func(p delivery.SendMessageParams) bool {
		return strings.Contains(p.Text, "book your visit")
	})).Return(int64(100), nil)
	f.states.On("SaveUserState", mock.Anything, "bot-1", int64(42), "thanks", mock.Anything).Return(nil)
	f.expectIngest(model.KindAppointment)

	err := f.svc.HandleUpdate(context.Background(), f.bot(), callbackUpdate("thanks", 5))

	require.NoError(t, err)
	f.states.AssertExpectations(t)
}

func TestHandleUpdate_CyclicSchemaPerformsSingleTransition(t *testing.T) {
	f := newConversationFixture(t)
	bot := f.bot()
	bot.SchemaDoc = datatypes.JSON(`{
		"version": 1,
		"initial_state": "a",
		"states": {
			"a": {"message": "State A", "buttons": [{"type": "navigation", "text": "Go", "next_state": "b"}]},
			"b": {"message": "State B", "buttons": [{"type": "navigation", "text": "Back", "next_state": "a"}]}
		}
	}`)
	f.storedState("a")
	f.platform.On("AnswerCallbackQuery", mock.Anything, "tok", "cb-1").Return(nil)
	f.broadcasts.On("FindBroadcastMessageByPlatformMessageID", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, apperrors.ErrNotFound)
	f.platform.On("SendMessage", mock.Anything, "tok", mock.MatchedBy(func(p delivery.SendMessageParams) bool {
		return p.Text == "State B"
	})).Return(int64(100), nil)
	f.states.On("SaveUserState", mock.Anything, "bot-1", int64(42), "b", mock.Anything).Return(nil)
	f.expectIngest(model.KindNone)

	// b points back to a, but one update moves exactly one step
	err := f.svc.HandleUpdate(context.Background(), bot, callbackUpdate("b", 5))

	require.NoError(t, err)
	f.platform.AssertNumberOfCalls(t, "SendMessage", 1)
	f.states.AssertNumberOfCalls(t, "SaveUserState", 1)
}

func TestHandleUpdate_UnmatchedCallbackReRendersCurrentState(t *testing.T) {
	f := newConversationFixture(t)
	f.storedState("menu")
	f.platform.On("AnswerCallbackQuery", mock.Anything, "tok", "cb-1").Return(nil)
	f.broadcasts.On("FindBroadcastMessageByPlatformMessageID", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, apperrors.ErrNotFound)
	f.platform.On("SendMessage", mock.Anything, "tok", mock.MatchedBy(func(p delivery.SendMessageParams) bool {
		return strings.Contains(p.Text, "Pick an option")
	})).Return(int64(100), nil)
	f.states.On("SaveUserState", mock.Anything, "bot-1", int64(42), "menu", mock.Anything).Return(nil)
	f.expectIngest(model.KindNone)

	err := f.svc.HandleUpdate(context.Background(), f.bot(), callbackUpdate("bogus", 5))

	require.NoError(t, err)
	f.platform.AssertExpectations(t)
	f.states.AssertExpectations(t)
}

func TestHandleUpdate_FreeTextReRendersWithoutTransition(t *testing.T) {
	f := newConversationFixture(t)
	f.storedState("menu")
	f.platform.On("SendMessage", mock.Anything, "tok", mock.MatchedBy(func(p delivery.SendMessageParams) bool {
		return strings.Contains(p.Text, "Pick an option")
	})).Return(int64(100), nil)
	f.states.On("SaveUserState", mock.Anything, "bot-1", int64(42), "menu", mock.Anything).Return(nil)
	f.expectIngest(model.KindNone)

	err := f.svc.HandleUpdate(context.Background(), f.bot(), textUpdate("hello there"))

	require.NoError(t, err)
	f.platform.AssertNotCalled(t, "AnswerCallbackQuery", mock.Anything, mock.Anything, mock.Anything)
	f.states.AssertExpectations(t)
}

func TestHandleUpdate_FirstContactStartsAtInitialState(t *testing.T) {
	f := newConversationFixture(t)
	f.noStoredState()
	f.platform.On("SendMessage", mock.Anything, "tok", mock.MatchedBy(func(p delivery.SendMessageParams) bool {
		if !strings.Contains(p.Text, "Welcome") {
			return false
		}
		// The start state carries a request_contact button, so it renders a
		// reply keyboard: a plain key for the navigation and a contact key.
		markup, ok := p.ReplyMarkup.(*delivery.ReplyKeyboardMarkup)
		if !ok || len(markup.Keyboard) != 2 {
			return false
		}
		return markup.Keyboard[0][0].Text == "Menu" &&
			!markup.Keyboard[0][0].RequestContact &&
			markup.Keyboard[1][0].RequestContact
	})).Return(int64(100), nil)
	f.states.On("SaveUserState", mock.Anything, "bot-1", int64(42), "start", mock.Anything).Return(nil)
	f.expectIngest(model.KindNone)

	err := f.svc.HandleUpdate(context.Background(), f.bot(), textUpdate("/start"))

	require.NoError(t, err)
	f.platform.AssertExpectations(t)
}

func TestHandleUpdate_ContactShareTransitionsAndCapturesLead(t *testing.T) {
	f := newConversationFixture(t)
	f.storedState("start")
	f.platform.On("SendMessage", mock.Anything, "tok", mock.MatchedBy(func(p delivery.SendMessageParams) bool {
		return strings.Contains(p.Text, "book your visit")
	})).Return(int64(100), nil)
	f.states.On("SaveUserState", mock.Anything, "bot-1", int64(42), "thanks", mock.Anything).Return(nil)

	f.events.On("InsertEventDedup", mock.Anything, "bot-1", "upd-7").Return(true, nil)
	f.customers.On("UpsertCustomer", mock.Anything, mock.MatchedBy(func(c model.Customer) bool {
		return c.PhoneNumber == "+15551234567"
	})).Return(&model.Customer{ID: "cust-1"}, nil)
	f.events.On("CreateEntityWithEvent", mock.Anything, mock.MatchedBy(func(p storage.EntityCreation) bool {
		return p.Kind == model.KindLead && p.Source == "request_contact"
	})).Return(&storage.EntityResult{EntityType: "lead", EntityID: "lead-1", EventID: 2}, nil)

	upd := textUpdate("")
	upd.Message.Contact = &model.SharedContact{PhoneNumber: "+15551234567", UserID: 42}

	err := f.svc.HandleUpdate(context.Background(), f.bot(), upd)

	require.NoError(t, err)
	f.events.AssertExpectations(t)
	f.customers.AssertExpectations(t)
}

func TestHandleUpdate_DuplicateUpdateStillRepliesButSkipsIngestion(t *testing.T) {
	f := newConversationFixture(t)
	f.storedState("menu")
	f.platform.On("SendMessage", mock.Anything, "tok", mock.Anything).Return(int64(100), nil)
	f.states.On("SaveUserState", mock.Anything, "bot-1", int64(42), "menu", mock.Anything).Return(nil)
	f.events.On("InsertEventDedup", mock.Anything, "bot-1", "upd-7").Return(false, nil)

	err := f.svc.HandleUpdate(context.Background(), f.bot(), textUpdate("hi"))

	require.NoError(t, err)
	f.events.AssertNotCalled(t, "CreateEntityWithEvent", mock.Anything, mock.Anything)
	f.customers.AssertNotCalled(t, "UpsertCustomer", mock.Anything, mock.Anything)
}

func TestHandleUpdate_BrokenSchemaFailsWithoutSending(t *testing.T) {
	f := newConversationFixture(t)
	bot := f.bot()
	bot.SchemaDoc = datatypes.JSON(`{"initial_state": `)

	err := f.svc.HandleUpdate(context.Background(), bot, textUpdate("hi"))

	require.Error(t, err)
	f.platform.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleUpdate_MediaFailureFallsBackToPlainText(t *testing.T) {
	f := newConversationFixture(t)

	schema := map[string]interface{}{
		"version":       1,
		"initial_state": "photo",
		"states": map[string]interface{}{
			"photo": map[string]interface{}{
				"message": "Look at this",
				"media":   "https://cdn.example.org/dead-link.jpg",
			},
		},
	}
	doc, err := json.Marshal(schema)
	require.NoError(t, err)
	bot := f.bot()
	bot.SchemaDoc = doc

	f.noStoredState()
	f.platform.On("SendPhoto", mock.Anything, "tok", mock.Anything).
		Return(int64(0), errors.New("file not found"))
	f.platform.On("SendMessage", mock.Anything, "tok", mock.MatchedBy(func(p delivery.SendMessageParams) bool {
		return p.Text == "Look at this"
	})).Return(int64(100), nil)
	f.states.On("SaveUserState", mock.Anything, "bot-1", int64(42), "photo", mock.Anything).Return(nil)
	f.expectIngest(model.KindNone)

	err = f.svc.HandleUpdate(context.Background(), bot, textUpdate("hi"))

	require.NoError(t, err)
	f.platform.AssertExpectations(t)
}

func TestHandleUpdate_BroadcastCallbackCountsClickAndEngagement(t *testing.T) {
	f := newConversationFixture(t)
	f.storedState("menu")
	f.platform.On("AnswerCallbackQuery", mock.Anything, "tok", "cb-1").Return(nil)
	f.broadcasts.On("FindBroadcastMessageByPlatformMessageID", mock.Anything, "bot-1", int64(900)).
		Return(&model.BroadcastMessage{ID: 77, BroadcastID: "bc-1", BotID: "bot-1"}, nil)
	f.broadcasts.On("RegisterBroadcastClick", mock.Anything, int64(77)).Return(nil)
	f.broadcasts.On("RegisterBroadcastEngagement", mock.Anything, int64(77)).Return(true, nil)
	f.platform.On("SendMessage", mock.Anything, "tok", mock.Anything).Return(int64(100), nil)
	f.states.On("SaveUserState", mock.Anything, "bot-1", int64(42), "thanks", mock.Anything).Return(nil)
	f.expectIngest(model.KindAppointment)

	err := f.svc.HandleUpdate(context.Background(), f.bot(), callbackUpdate("thanks", 900))

	require.NoError(t, err)
	f.broadcasts.AssertExpectations(t)
}

func TestHandleUpdate_BroadcastReplyCountsEngagementWithoutClick(t *testing.T) {
	f := newConversationFixture(t)
	f.storedState("menu")
	f.broadcasts.On("FindBroadcastMessageByPlatformMessageID", mock.Anything, "bot-1", int64(900)).
		Return(&model.BroadcastMessage{ID: 77, BroadcastID: "bc-1", BotID: "bot-1"}, nil)
	f.broadcasts.On("RegisterBroadcastEngagement", mock.Anything, int64(77)).Return(true, nil)
	f.platform.On("SendMessage", mock.Anything, "tok", mock.Anything).Return(int64(100), nil)
	f.states.On("SaveUserState", mock.Anything, "bot-1", int64(42), "menu", mock.Anything).Return(nil)
	f.expectIngest(model.KindNone)

	upd := textUpdate("tell me more")
	upd.Message.ReplyTo = &model.IncomingMessage{MessageID: 900, Chat: model.ChatRef{ID: 42}}

	err := f.svc.HandleUpdate(context.Background(), f.bot(), upd)

	require.NoError(t, err)
	f.broadcasts.AssertExpectations(t)
	// A reply is engagement, not a click
	f.broadcasts.AssertNotCalled(t, "RegisterBroadcastClick", mock.Anything, mock.Anything)
}

func TestHandleUpdate_ReplyKeyboardKeyPressTransitionsByLabel(t *testing.T) {
	f := newConversationFixture(t)
	f.storedState("start")
	f.platform.On("SendMessage", mock.Anything, "tok", mock.MatchedBy(func(p delivery.SendMessageParams) bool {
		return strings.Contains(p.Text, "Pick an option")
	})).Return(int64(100), nil)
	f.states.On("SaveUserState", mock.Anything, "bot-1", int64(42), "menu", mock.Anything).Return(nil)
	f.expectIngest(model.KindNone)

	// Reply-keyboard keys come back as plain text carrying the key label
	err := f.svc.HandleUpdate(context.Background(), f.bot(), textUpdate("Menu"))

	require.NoError(t, err)
	f.platform.AssertExpectations(t)
	f.states.AssertExpectations(t)
}

func TestRenderButtons_ContactStateUsesReplyKeyboard(t *testing.T) {
	buttons := model.ButtonList{
		model.RequestContactButton{Text: "Share contact", NextState: "thanks"},
		model.NavigationButton{Text: "Skip", NextState: "menu"},
	}

	markup, ok := renderButtons(buttons).(*delivery.ReplyKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, markup.Keyboard, 2)
	assert.True(t, markup.Keyboard[0][0].RequestContact)
	assert.Equal(t, "Share contact", markup.Keyboard[0][0].Text)
	assert.False(t, markup.Keyboard[1][0].RequestContact)
	assert.True(t, markup.OneTimeKeyboard)
}

// waitSender records webhook sends and signals a channel, so tests can wait
// for the detached delivery goroutines.
type waitSender struct {
	mu    sync.Mutex
	sent  []model.WebhookConfig
	first chan struct{}
	once  sync.Once
}

func newWaitSender() *waitSender {
	return &waitSender{first: make(chan struct{})}
}

func (w *waitSender) Send(ctx context.Context, botID string, whCfg model.WebhookConfig, payload []byte) error {
	w.mu.Lock()
	w.sent = append(w.sent, whCfg)
	w.mu.Unlock()
	w.once.Do(func() { close(w.first) })
	return nil
}

func TestHandleUpdate_StateWebhookFiresWithIntegrationPayload(t *testing.T) {
	f := newConversationFixture(t)
	sender := newWaitSender()
	f.svc.webhooks = sender

	schema := map[string]interface{}{
		"version":       1,
		"initial_state": "hooked",
		"states": map[string]interface{}{
			"hooked": map[string]interface{}{
				"message": "Done",
				"webhook": map[string]interface{}{
					"url":     "https://hooks.example.org/x",
					"enabled": true,
				},
			},
		},
	}
	doc, err := json.Marshal(schema)
	require.NoError(t, err)
	bot := f.bot()
	bot.SchemaDoc = doc

	f.noStoredState()
	f.platform.On("SendMessage", mock.Anything, "tok", mock.Anything).Return(int64(100), nil)
	f.states.On("SaveUserState", mock.Anything, "bot-1", int64(42), "hooked", mock.Anything).Return(nil)
	f.expectIngest(model.KindNone)

	err = f.svc.HandleUpdate(context.Background(), bot, textUpdate("hi"))
	require.NoError(t, err)

	select {
	case <-sender.first:
	case <-time.After(2 * time.Second):
		t.Fatal("webhook delivery never fired")
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "https://hooks.example.org/x", sender.sent[0].URL)
}
