package chunker

import (
	"strings"
	"unicode/utf8"
)

// EstimateTokens gives a rough token count for logging and budgeting. It takes
// the larger of a word-based and a character-based guess, since loss runs are
// dense with numbers and codes that tokenize poorly.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	byWords := int(float64(len(strings.Fields(text))) * 1.33)
	byChars := utf8.RuneCountInString(text) / 4
	return max(byWords, byChars, 1)
}
