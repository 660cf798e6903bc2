package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPhoneNumber(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"with plus prefix", "+1234567890", "+******7890"},
		{"short with plus", "+1234", "+****"},
		{"without prefix", "1234567890", "******7890"},
		{"very short", "123", "***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MaskPhoneNumber(tt.input))
		})
	}
}

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"normal", "john.doe@example.com", "j*******@example.com"},
		{"single char local", "j@example.com", "*@example.com"},
		{"no at sign", "notanemail", "**********"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MaskEmail(tt.input))
		})
	}
}

func TestMaskText(t *testing.T) {
	in := `call me at +1234567890 or mail jane.roe@example.org please`
	out := MaskText(in)

	assert.NotContains(t, out, "1234567890")
	assert.NotContains(t, out, "jane.roe@")
	assert.Contains(t, out, "7890")            // last digits survive
	assert.Contains(t, out, "@example.org")    // domain survives
	assert.Contains(t, out, "call me at")      // surrounding text untouched
}

func TestMaskAndTruncate(t *testing.T) {
	t.Run("under limit unchanged", func(t *testing.T) {
		assert.Equal(t, "hello", MaskAndTruncate("hello", 100))
	})

	t.Run("over limit gets ellipsis", func(t *testing.T) {
		out := MaskAndTruncate("abcdefghij", 8)
		assert.Equal(t, "abcde...", out)
		assert.Len(t, out, 8)
	})

	t.Run("zero limit means no truncation", func(t *testing.T) {
		assert.Equal(t, "abcdefghij", MaskAndTruncate("abcdefghij", 0))
	})
}
