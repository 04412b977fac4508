package llm

import "strings"

// TokenCount returns the generated token count for a completion result.
// The backend-reported completion token count is preferred; when the backend
// does not report usage, the whitespace-delimited word count of the
// completion text is used instead. The fallback is an approximation, not a
// token-exact count, and callers must treat it as such.
func TokenCount(res *Result) int {
	if res == nil {
		return 0
	}
	if res.CompletionTokens > 0 {
		return res.CompletionTokens
	}
	return len(strings.Fields(res.Content))
}
