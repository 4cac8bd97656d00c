package variables

import (
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// Interpolate replaces {{name}} placeholders in text with resolved variable
// values. Unknown placeholders render as empty strings so authored flows
// never leak raw template syntax to participants.
func Interpolate(text string, bag Bag) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		key := strings.TrimSpace(strings.Trim(match, "{}"))
		if value, found := ResolveString(bag, key); found {
			return value
		}
		return ""
	})
}
