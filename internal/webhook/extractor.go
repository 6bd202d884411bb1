package webhook

import (
	"regexp"
	"strings"

	"leadsync_backend/platform/phone"
)

// ExtractedFields holds the fields extracted from raw form data via best-effort pattern matching.
type ExtractedFields struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

// Name joins the first and last name.
func (e ExtractedFields) Name() string {
	return strings.TrimSpace(e.FirstName + " " + e.LastName)
}

// ExtractFields performs best-effort field extraction from a flat string map of form data.
// It uses label matching to identify common fields across any form builder.
func ExtractFields(data map[string]string) ExtractedFields {
	var result ExtractedFields

	for key, value := range data {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		k := strings.ToLower(strings.TrimSpace(key))

		switch {
		case matchesAny(k, firstNamePatterns):
			result.FirstName = value
		case matchesAny(k, lastNamePatterns):
			result.LastName = value
		case matchesAny(k, fullNamePatterns):
			parts := strings.SplitN(value, " ", 2)
			result.FirstName = parts[0]
			if len(parts) > 1 {
				result.LastName = parts[1]
			}
		case matchesAny(k, emailPatterns):
			if emailRegex.MatchString(value) {
				result.Email = value
			}
		case matchesAny(k, phonePatterns):
			result.Phone = phone.NormalizeE164(value)
		}
	}

	return result
}

// Field label patterns
var (
	firstNamePatterns = []string{"first_name", "firstname", "first name", "given_name", "givenname", "fname"}
	lastNamePatterns  = []string{"last_name", "lastname", "last name", "family_name", "familyname", "surname", "lname"}
	fullNamePatterns  = []string{"name", "full_name", "fullname", "your_name", "your name"}
	emailPatterns     = []string{"email", "e-mail", "e_mail", "emailaddress", "email_address", "mail"}
	phonePatterns     = []string{"phone", "tel", "telephone", "phonenumber", "phone_number", "mobile", "whatsapp", "whatsapp_number", "contact"}
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

var labelNormalizer = strings.NewReplacer("-", "", "_", "", " ", "")

func matchesAny(label string, patterns []string) bool {
	// Normalize: strip spaces, dashes, underscores for fuzzy matching
	normalized := labelNormalizer.Replace(label)
	for _, p := range patterns {
		if normalized == labelNormalizer.Replace(p) {
			return true
		}
	}
	return false
}
