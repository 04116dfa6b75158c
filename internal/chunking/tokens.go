package chunking

import (
	"math"
	"unicode/utf8"
)

// DefaultCharsPerToken is the conservative character-to-token ratio used by
// the fallback estimator. It deliberately over-estimates.
const DefaultCharsPerToken = 3.5

// EstimateTokens estimates the token count of a text using the chars/3.5
// fallback. The empty string estimates to zero.
func EstimateTokens(text string) int {
	return EstimateTokensRatio(text, DefaultCharsPerToken)
}

// EstimateTokensRatio estimates tokens with an explicit ratio.
func EstimateTokensRatio(text string, charsPerToken float64) int {
	if text == "" {
		return 0
	}
	chars := utf8.RuneCountInString(text)
	return int(math.Ceil(float64(chars) / charsPerToken))
}
