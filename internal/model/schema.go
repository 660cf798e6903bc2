package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ButtonKind discriminates the button variants on the wire.
type ButtonKind string

const (
	ButtonNavigation     ButtonKind = "navigation"
	ButtonURL            ButtonKind = "url"
	ButtonRequestContact ButtonKind = "request_contact"
	ButtonRequestEmail   ButtonKind = "request_email"
)

// Button is the closed set of button variants a state may carry. The concrete
// types are NavigationButton, URLButton, RequestContactButton and
// RequestEmailButton; rendering and transition resolution switch exhaustively
// over them.
type Button interface {
	Label() string
	Kind() ButtonKind
}

// NavigationButton moves the conversation to another state.
type NavigationButton struct {
	Text      string `json:"text" validate:"required"`
	NextState string `json:"next_state" validate:"required"`
}

func (b NavigationButton) Label() string    { return b.Text }
func (b NavigationButton) Kind() ButtonKind { return ButtonNavigation }

// URLButton opens an external link and never transitions.
type URLButton struct {
	Text string `json:"text" validate:"required"`
	URL  string `json:"url" validate:"required,url"`
}

func (b URLButton) Label() string    { return b.Text }
func (b URLButton) Kind() ButtonKind { return ButtonURL }

// RequestContactButton asks the platform to share the user's phone contact,
// then transitions.
type RequestContactButton struct {
	Text      string `json:"text" validate:"required"`
	NextState string `json:"next_state" validate:"required"`
}

func (b RequestContactButton) Label() string    { return b.Text }
func (b RequestContactButton) Kind() ButtonKind { return ButtonRequestContact }

// RequestEmailButton asks the user to type their email, then transitions.
type RequestEmailButton struct {
	Text      string `json:"text" validate:"required"`
	NextState string `json:"next_state" validate:"required"`
}

func (b RequestEmailButton) Label() string    { return b.Text }
func (b RequestEmailButton) Kind() ButtonKind { return ButtonRequestEmail }

// TransitionTarget returns the state a button leads to. URL buttons have no
// target.
func TransitionTarget(b Button) (string, bool) {
	switch btn := b.(type) {
	case NavigationButton:
		return btn.NextState, true
	case RequestContactButton:
		return btn.NextState, true
	case RequestEmailButton:
		return btn.NextState, true
	case URLButton:
		return "", false
	default:
		return "", false
	}
}

// ButtonList handles the tagged wire form of the button variants.
type ButtonList []Button

type buttonEnvelope struct {
	Type      ButtonKind `json:"type"`
	Text      string     `json:"text"`
	NextState string     `json:"next_state,omitempty"`
	URL       string     `json:"url,omitempty"`
}

// UnmarshalJSON decodes the tagged wire form into concrete variants. Unknown
// tags are rejected; the schema editor is the sole writer and only emits the
// four known kinds.
func (l *ButtonList) UnmarshalJSON(data []byte) error {
	var envelopes []buttonEnvelope
	if err := json.Unmarshal(data, &envelopes); err != nil {
		return err
	}
	buttons := make([]Button, 0, len(envelopes))
	for i, env := range envelopes {
		switch env.Type {
		case ButtonNavigation:
			buttons = append(buttons, NavigationButton{Text: env.Text, NextState: env.NextState})
		case ButtonURL:
			buttons = append(buttons, URLButton{Text: env.Text, URL: env.URL})
		case ButtonRequestContact:
			buttons = append(buttons, RequestContactButton{Text: env.Text, NextState: env.NextState})
		case ButtonRequestEmail:
			buttons = append(buttons, RequestEmailButton{Text: env.Text, NextState: env.NextState})
		default:
			return fmt.Errorf("unknown button type %q at index %d", env.Type, i)
		}
	}
	*l = buttons
	return nil
}

// MarshalJSON encodes the variants back into the tagged wire form.
func (l ButtonList) MarshalJSON() ([]byte, error) {
	envelopes := make([]buttonEnvelope, 0, len(l))
	for _, b := range l {
		env := buttonEnvelope{Type: b.Kind(), Text: b.Label()}
		switch btn := b.(type) {
		case NavigationButton:
			env.NextState = btn.NextState
		case RequestContactButton:
			env.NextState = btn.NextState
		case RequestEmailButton:
			env.NextState = btn.NextState
		case URLButton:
			env.URL = btn.URL
		}
		envelopes = append(envelopes, env)
	}
	return json.Marshal(envelopes)
}

// WebhookConfig describes one outbound integration endpoint. It is validated
// against the SSRF policy before every send, never cached as safe.
type WebhookConfig struct {
	URL           string            `json:"url" validate:"required,url"`
	Method        string            `json:"method,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	SigningSecret string            `json:"signing_secret,omitempty"`
	Enabled       bool              `json:"enabled"`
	RetryCount    int               `json:"retry_count,omitempty"`
	Timeout       time.Duration     `json:"timeout,omitempty"`
}

// State is one node of a bot schema: an outgoing message plus optional media,
// buttons and side effects.
type State struct {
	Message     string         `json:"message"`
	Media       string         `json:"media,omitempty"`
	MediaGroup  []string       `json:"media_group,omitempty"`
	ParseMode   string         `json:"parse_mode,omitempty"`
	Buttons     ButtonList     `json:"buttons,omitempty"`
	Webhook     *WebhookConfig `json:"webhook,omitempty"`
	Integration *WebhookConfig `json:"integration,omitempty"`
	// TrackEvent is an explicit schema annotation marking this state as a
	// business-event trigger ("lead", "order", "appointment"). It wins over
	// any heuristic classification.
	TrackEvent string `json:"track_event,omitempty"`
}

// BotSchema is the declarative conversation description loaded from the bot
// row. Immutable for the duration of a request.
type BotSchema struct {
	Version      int              `json:"version"`
	InitialState string           `json:"initial_state" validate:"required"`
	States       map[string]State `json:"states" validate:"required"`
}

// ParseSchema decodes a persisted schema document.
func ParseSchema(doc []byte) (*BotSchema, error) {
	var schema BotSchema
	if err := json.Unmarshal(doc, &schema); err != nil {
		return nil, fmt.Errorf("failed to decode bot schema: %w", err)
	}
	return &schema, nil
}

// StateOf looks up a state by key.
func (s *BotSchema) StateOf(key string) (State, bool) {
	state, ok := s.States[key]
	return state, ok
}

// ResolveState returns stored if it still keys into the schema, otherwise the
// initial state. Schema integrity is best effort; a dangling stored key falls
// back instead of failing the update.
func (s *BotSchema) ResolveState(stored string) string {
	if stored != "" {
		if _, ok := s.States[stored]; ok {
			return stored
		}
	}
	return s.InitialState
}

// Inconsistencies reports dangling references: an initial state missing from
// the state map, or buttons targeting unknown states. Callers log these and
// carry on; they are never hard failures.
func (s *BotSchema) Inconsistencies() []string {
	var problems []string
	if _, ok := s.States[s.InitialState]; !ok {
		problems = append(problems, fmt.Sprintf("initial state %q not found", s.InitialState))
	}
	for key, state := range s.States {
		for _, b := range state.Buttons {
			target, ok := TransitionTarget(b)
			if !ok {
				continue
			}
			if _, exists := s.States[target]; !exists {
				problems = append(problems, fmt.Sprintf("state %q button %q targets missing state %q", key, b.Label(), target))
			}
		}
	}
	return problems
}
