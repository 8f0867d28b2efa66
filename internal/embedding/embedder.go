// Package embedding turns query text into vectors for the semantic
// search strategy. The production implementation talks to a local
// Ollama instance behind a circuit breaker and a rate limiter; tests
// substitute a deterministic embedder.
package embedding

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the embedding provider cannot serve
// the request (circuit open, rate limited, or provider down). Semantic
// search fails fast with this error rather than queueing.
var ErrUnavailable = errors.New("embedding provider unavailable")

// Embedder produces a fixed-dimension vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
