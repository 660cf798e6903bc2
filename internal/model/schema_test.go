package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSchemaDoc = `{
	"version": 3,
	"initial_state": "menu",
	"states": {
		"menu": {
			"message": "Welcome! Pick an option.",
			"buttons": [
				{"type": "navigation", "text": "About us", "next_state": "about"},
				{"type": "url", "text": "Our site", "url": "https://example.com"},
				{"type": "request_contact", "text": "Leave a request", "next_state": "thanks"}
			]
		},
		"about": {
			"message": "We make bots.",
			"buttons": [
				{"type": "navigation", "text": "Back", "next_state": "menu"}
			]
		},
		"thanks": {
			"message": "Thanks, we will call you back!",
			"track_event": "lead"
		}
	}
}`

func TestParseSchema(t *testing.T) {
	schema, err := ParseSchema([]byte(sampleSchemaDoc))
	require.NoError(t, err)

	assert.Equal(t, 3, schema.Version)
	assert.Equal(t, "menu", schema.InitialState)
	require.Len(t, schema.States, 3)

	menu, ok := schema.StateOf("menu")
	require.True(t, ok)
	require.Len(t, menu.Buttons, 3)

	nav, ok := menu.Buttons[0].(NavigationButton)
	require.True(t, ok)
	assert.Equal(t, "About us", nav.Text)
	assert.Equal(t, "about", nav.NextState)

	link, ok := menu.Buttons[1].(URLButton)
	require.True(t, ok)
	assert.Equal(t, "https://example.com", link.URL)

	contact, ok := menu.Buttons[2].(RequestContactButton)
	require.True(t, ok)
	assert.Equal(t, "thanks", contact.NextState)

	thanks, ok := schema.StateOf("thanks")
	require.True(t, ok)
	assert.Equal(t, "lead", thanks.TrackEvent)
}

func TestParseSchema_UnknownButtonType(t *testing.T) {
	doc := `{
		"version": 1,
		"initial_state": "a",
		"states": {
			"a": {"message": "hi", "buttons": [{"type": "teleport", "text": "go"}]}
		}
	}`
	_, err := ParseSchema([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "teleport")
}

func TestButtonListRoundTrip(t *testing.T) {
	buttons := ButtonList{
		NavigationButton{Text: "Go", NextState: "next"},
		URLButton{Text: "Open", URL: "https://example.org"},
		RequestEmailButton{Text: "Email me", NextState: "done"},
	}

	data, err := json.Marshal(buttons)
	require.NoError(t, err)

	var decoded ButtonList
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, buttons, decoded)
}

func TestTransitionTarget(t *testing.T) {
	tests := []struct {
		name   string
		button Button
		target string
		ok     bool
	}{
		{"navigation", NavigationButton{Text: "a", NextState: "s1"}, "s1", true},
		{"request_contact", RequestContactButton{Text: "b", NextState: "s2"}, "s2", true},
		{"request_email", RequestEmailButton{Text: "c", NextState: "s3"}, "s3", true},
		{"url has no target", URLButton{Text: "d", URL: "https://x.dev"}, "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			target, ok := TransitionTarget(tc.button)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.target, target)
		})
	}
}

func TestResolveState(t *testing.T) {
	schema, err := ParseSchema([]byte(sampleSchemaDoc))
	require.NoError(t, err)

	assert.Equal(t, "about", schema.ResolveState("about"), "valid stored key is kept")
	assert.Equal(t, "menu", schema.ResolveState(""), "empty stored key falls back to initial")
	assert.Equal(t, "menu", schema.ResolveState("deleted_state"), "dangling stored key falls back to initial")
}

func TestInconsistencies(t *testing.T) {
	doc := `{
		"version": 1,
		"initial_state": "gone",
		"states": {
			"a": {
				"message": "hi",
				"buttons": [{"type": "navigation", "text": "dangling", "next_state": "nowhere"}]
			}
		}
	}`
	schema, err := ParseSchema([]byte(doc))
	require.NoError(t, err)

	problems := schema.Inconsistencies()
	assert.Len(t, problems, 2)
}
