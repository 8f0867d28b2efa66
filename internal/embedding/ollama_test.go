package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *OllamaClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOllamaClient(OllamaConfig{
		BaseURL:           srv.URL,
		Model:             "nomic-embed-text",
		RequestsPerSecond: 1000, // keep the limiter out of the way
	})
}

func TestEmbedSendsModelAndInput(t *testing.T) {
	var got embedRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(embedResponse{
			Embeddings: [][]float32{{0.1, 0.2, 0.3}},
		})
	})

	vec, err := c.Embed(context.Background(), "vector databases")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, "nomic-embed-text", got.Model)
	assert.Equal(t, "vector databases", got.Input)
}

func TestEmbedRejectsEmptyResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse{})
	})

	_, err := c.Embed(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no embeddings")
}

func TestEmbedSurfacesServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	})

	_, err := c.Embed(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

// Three consecutive failures trip the breaker; the next call is
// rejected without reaching the server and maps to ErrUnavailable.
func TestEmbedCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "down", http.StatusInternalServerError)
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := c.Embed(ctx, "q")
		require.Error(t, err)
	}
	assert.Equal(t, "open", c.BreakerState())

	_, err := c.Embed(ctx, "q")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 3, calls, "an open circuit must not reach the provider")
}

func TestHealthCheck(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	})
	assert.NoError(t, c.HealthCheck(context.Background()))

	down := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	})
	assert.Error(t, down.HealthCheck(context.Background()))
}

func TestBreakerExecuteHonorsContext(t *testing.T) {
	b := NewBreaker(BreakerConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Execute(ctx, func() (interface{}, error) {
		t.Fatal("fn must not run with a cancelled context")
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
