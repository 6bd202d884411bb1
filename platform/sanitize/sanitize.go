// Package sanitize cleans free text submitted by lead producers before it is
// stored, rendered into notifications or written to the CRM.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxNameLength bounds a stored lead name in runes.
const MaxNameLength = 200

var (
	htmlTagRegex    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// StripHTML removes all HTML tags from a string, making it safe for text-only display.
func StripHTML(s string) string {
	result := htmlTagRegex.ReplaceAllString(s, "")
	result = strings.ReplaceAll(result, "&lt;", "<")
	result = strings.ReplaceAll(result, "&gt;", ">")
	result = strings.ReplaceAll(result, "&amp;", "&")
	result = strings.ReplaceAll(result, "&quot;", "\"")
	result = strings.ReplaceAll(result, "&#39;", "'")
	// Entities may have hidden a tag.
	result = htmlTagRegex.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}

// Name strips markup, collapses whitespace and caps the length of a person's name.
func Name(s string) string {
	name := whitespaceRegex.ReplaceAllString(StripHTML(s), " ")
	if utf8.RuneCountInString(name) <= MaxNameLength {
		return name
	}
	return strings.TrimSpace(string([]rune(name)[:MaxNameLength]))
}
