package usecase

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/BogdanMod/lego-bot-sub001/internal/config"
	"github.com/BogdanMod/lego-bot-sub001/internal/model"
	"github.com/BogdanMod/lego-bot-sub001/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
	os.Exit(m.Run())
}

func testClassifierConfig() config.ClassifierConfig {
	return config.ClassifierConfig{
		LeadKeywords:        []string{"price", "quote", "interested"},
		OrderKeywords:       []string{"order", "buy", "checkout"},
		AppointmentKeywords: []string{"appointment", "book", "schedule"},
	}
}

func TestClassify_TrackEventWinsOverKeywords(t *testing.T) {
	c := NewKeywordClassifier(testClassifierConfig())

	state := &model.State{
		Message:    "What would you like to order?",
		TrackEvent: "lead",
	}
	assert.Equal(t, model.KindLead, c.Classify(state, ""))
}

func TestClassify_UnknownTrackEventFallsBackToKeywords(t *testing.T) {
	c := NewKeywordClassifier(testClassifierConfig())

	state := &model.State{
		Message:    "Place your order now",
		TrackEvent: "promotion",
	}
	assert.Equal(t, model.KindOrder, c.Classify(state, ""))
}

func TestClassify_StateMessageKeyword(t *testing.T) {
	c := NewKeywordClassifier(testClassifierConfig())

	// The outgoing side of the conversation classifies, even when the user
	// only pressed a button and typed nothing.
	state := &model.State{Message: "Great, we will book your visit shortly!"}
	assert.Equal(t, model.KindAppointment, c.Classify(state, ""))
}

func TestClassify_ButtonLabelKeyword(t *testing.T) {
	c := NewKeywordClassifier(testClassifierConfig())

	state := &model.State{
		Message: "Anything else?",
		Buttons: model.ButtonList{
			model.NavigationButton{Text: "Get a quote", NextState: "quote"},
		},
	}
	assert.Equal(t, model.KindLead, c.Classify(state, ""))
}

func TestClassify_UserTextKeyword(t *testing.T) {
	c := NewKeywordClassifier(testClassifierConfig())

	state := &model.State{Message: "How can I help?"}
	assert.Equal(t, model.KindLead, c.Classify(state, "I'm interested in your offer"))
}

func TestClassify_CaseInsensitive(t *testing.T) {
	c := NewKeywordClassifier(testClassifierConfig())

	state := &model.State{Message: "BOOK NOW"}
	assert.Equal(t, model.KindAppointment, c.Classify(state, ""))
}

func TestClassify_SpecificKindBeatsLead(t *testing.T) {
	c := NewKeywordClassifier(testClassifierConfig())

	// "schedule" and "price" both present; the narrower intent wins
	state := &model.State{Message: "Schedule a call to discuss the price"}
	assert.Equal(t, model.KindAppointment, c.Classify(state, ""))
}

func TestClassify_NoMatch(t *testing.T) {
	c := NewKeywordClassifier(testClassifierConfig())

	assert.Equal(t, model.KindNone, c.Classify(&model.State{Message: "Hello there"}, "hi"))
	assert.Equal(t, model.KindNone, c.Classify(nil, ""))
}
