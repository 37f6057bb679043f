package ragkb

import "context"

// TokenCounter counts tokens in text for a specific model.
type TokenCounter interface {
	CountTokens(ctx context.Context, text string) (int, error)
}

// EstimateTokens approximates a token count as a quarter of the byte length,
// rounded up.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
