package usecase

import (
	"strings"

	"github.com/BogdanMod/lego-bot-sub001/internal/config"
	"github.com/BogdanMod/lego-bot-sub001/internal/model"
)

// Classifier decides which business entity, if any, an interaction maps to.
// state is the outgoing state reached by the interaction; text is the
// user-supplied free text, empty for pure button clicks.
type Classifier interface {
	Classify(state *model.State, text string) model.EventKind
}

// KeywordClassifier implements the default classification policy: an explicit
// track_event annotation on the state wins outright, otherwise the outgoing
// message, button labels and user text are scanned against the configured
// keyword tables.
type KeywordClassifier struct {
	lead        []string
	order       []string
	appointment []string
}

var _ Classifier = (*KeywordClassifier)(nil)

// NewKeywordClassifier builds a classifier from the configured keyword
// tables. Keywords are matched case-insensitively as substrings.
func NewKeywordClassifier(cfg config.ClassifierConfig) *KeywordClassifier {
	return &KeywordClassifier{
		lead:        lowerAll(cfg.LeadKeywords),
		order:       lowerAll(cfg.OrderKeywords),
		appointment: lowerAll(cfg.AppointmentKeywords),
	}
}

// Classify maps one interaction to an entity kind. The heuristic corpus is
// the outgoing side of the conversation, so a keyword in the state's message
// or button labels classifies even when the user only pressed a button.
func (c *KeywordClassifier) Classify(state *model.State, text string) model.EventKind {
	if state != nil {
		if kind := model.ParseEventKind(state.TrackEvent); kind != model.KindNone {
			return kind
		}
	}

	corpus := strings.ToLower(corpusOf(state, text))
	if corpus == "" {
		return model.KindNone
	}

	// Appointment and order keywords are checked before lead keywords: they
	// are narrower intents and a message mentioning both should produce the
	// more specific entity.
	switch {
	case containsAny(corpus, c.appointment):
		return model.KindAppointment
	case containsAny(corpus, c.order):
		return model.KindOrder
	case containsAny(corpus, c.lead):
		return model.KindLead
	}
	return model.KindNone
}

func corpusOf(state *model.State, text string) string {
	var sb strings.Builder
	if state != nil {
		sb.WriteString(state.Message)
		for _, b := range state.Buttons {
			sb.WriteString("\n")
			sb.WriteString(b.Label())
		}
	}
	if text != "" {
		sb.WriteString("\n")
		sb.WriteString(text)
	}
	return sb.String()
}

func containsAny(corpus string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(corpus, kw) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
