package taxonomy

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// fallbackLabel is used for ids that contain no letters or digits at all.
const fallbackLabel = "Activity"

// Humanize turns an event id into a readable label: it splits on separators,
// title-cases each token and joins them with spaces ("custom_thing" -> "Custom Thing").
// It accepts any input and never returns an empty string.
func Humanize(eventID string) string {
	tokens := strings.FieldsFunc(eventID, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		return fallbackLabel
	}
	for i, tok := range tokens {
		first, size := utf8.DecodeRuneInString(tok)
		tokens[i] = string(unicode.ToUpper(first)) + strings.ToLower(tok[size:])
	}
	return strings.Join(tokens, " ")
}
