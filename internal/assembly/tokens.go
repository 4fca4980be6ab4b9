package assembly

import "unicode/utf8"

// Token estimation uses a fixed characters-per-token heuristic. The same
// counter drives both assembly and truncation, so a context measured under
// budget is never re-flagged as over budget.
const charsPerToken = 4.0

// TokenCounter provides token estimation for context budget management.
type TokenCounter struct {
	charsPerToken float64
}

// NewTokenCounter creates a token counter with the default calibration.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{charsPerToken: charsPerToken}
}

// CountString estimates tokens in a string.
func (tc *TokenCounter) CountString(s string) int {
	if s == "" {
		return 0
	}
	// Use rune count for proper unicode handling
	runeCount := utf8.RuneCountInString(s)
	return int(float64(runeCount) / tc.charsPerToken)
}

// RuneBudget converts a token budget to its character equivalent.
func (tc *TokenCounter) RuneBudget(tokens int) int {
	return int(float64(tokens) * tc.charsPerToken)
}
