// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used for numbers captured without an international prefix.
const DefaultRegion = "US"

// NormalizeE164 formats a phone number to E.164. If parsing fails, it returns the trimmed input.
func NormalizeE164(input string) string {
	normalized, _ := Normalize(input)
	if normalized == "" {
		return strings.TrimSpace(input)
	}
	return normalized
}

// Normalize returns the E.164 form of input and whether it is a valid number.
func Normalize(input string) (string, bool) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", false
	}

	number, err := phonenumbers.Parse(trimmed, DefaultRegion)
	if err != nil {
		return "", false
	}
	if !phonenumbers.IsValidNumber(number) {
		return "", false
	}
	return phonenumbers.Format(number, phonenumbers.E164), true
}

// WhatsAppID strips the leading plus from an E.164 number, the form the Cloud API expects.
func WhatsAppID(input string) (string, bool) {
	normalized, ok := Normalize(input)
	if !ok {
		return "", false
	}
	return strings.TrimPrefix(normalized, "+"), true
}
