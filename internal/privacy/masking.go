package privacy

import (
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9 ().\-]{7,}[0-9]`)
)

// MaskPhoneNumber masks a phone number showing only the last 4 digits
// Example: "+1234567890" -> "+******7890"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}

	// Handle + prefix numbers specially
	if strings.HasPrefix(phone, "+") {
		if len(phone) == 1 { // Just "+"
			return phone
		}
		if len(phone) <= 5 { // "+1234" or shorter
			return "+" + strings.Repeat("*", len(phone)-1)
		}
		return "+" + strings.Repeat("*", len(phone)-5) + phone[len(phone)-4:]
	}

	// For numbers without + prefix
	if len(phone) <= 4 {
		return strings.Repeat("*", len(phone))
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}

// MaskEmail masks the local part of an email address, keeping its first
// character and the full domain.
// Example: "john.doe@example.com" -> "j*******@example.com"
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}

	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return maskString(email, 0)
	}

	local := email[:at]
	domain := email[at:]
	if len(local) == 1 {
		return "*" + domain
	}
	return local[:1] + strings.Repeat("*", len(local)-1) + domain
}

// MaskText replaces every email address and phone-shaped number inside
// free-form text with its masked form. Used before payloads reach logs or
// audit rows.
func MaskText(text string) string {
	if text == "" {
		return ""
	}
	masked := emailPattern.ReplaceAllStringFunc(text, MaskEmail)
	masked = phonePattern.ReplaceAllStringFunc(masked, MaskPhoneNumber)
	return masked
}

// MaskAndTruncate masks PII in text and caps its length. A truncated value
// gets an ellipsis marker so readers know the tail was dropped.
func MaskAndTruncate(text string, maxLen int) string {
	masked := MaskText(text)
	if maxLen <= 0 || len(masked) <= maxLen {
		return masked
	}
	if maxLen <= 3 {
		return masked[:maxLen]
	}
	return masked[:maxLen-3] + "..."
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}

	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}

	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}
