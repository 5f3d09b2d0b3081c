package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policyrag/internal/config"
)

func newClientFor(srv *httptest.Server, maxRetries int) *Client {
	return NewClient(config.LLMConfig{
		BaseURL:           srv.URL,
		APIKey:            "test-key",
		ChatModel:         "gpt-4o-mini",
		EmbeddingModel:    "text-embedding-3-small",
		EmbeddingDim:      2,
		RequestTimeoutSec: 5,
		MaxRetries:        maxRetries,
		RetryBackoffMs:    1,
	})
}

func embeddingsPayload(vectors ...[]float32) map[string]any {
	data := make([]map[string]any, len(vectors))
	for i, v := range vectors {
		data[i] = map[string]any{"object": "embedding", "index": i, "embedding": v}
	}
	return map[string]any{"object": "list", "data": data, "model": "text-embedding-3-small"}
}

func TestEmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(embeddingsPayload([]float32{1, 0}, []float32{0, 1}))
	}))
	defer srv.Close()

	c := newClientFor(srv, 0)
	vectors, err := c.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{1, 0}, vectors[0])
	assert.Equal(t, []float32{0, 1}, vectors[1])
}

func TestEmbedBatchDeadlinePreservedInChain(t *testing.T) {
	// Stall until the caller's context expires. The body must be drained
	// first: with unread body bytes the server skips the background read
	// that detects client disconnects, so r.Context() would never be
	// canceled and srv.Close would deadlock.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newClientFor(srv, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.EmbedBatch(ctx, []string{"text"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.ErrorIs(t, err, context.DeadlineExceeded,
		"deadline cause must survive the sentinel wrap so callers can classify timeouts")
}

func TestEmbedBatchRejectsWrongDimension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embeddingsPayload([]float32{1, 0, 0}))
	}))
	defer srv.Close()

	c := newClientFor(srv, 0) // configured for 2 dimensions
	_, err := c.EmbedBatch(context.Background(), []string{"text"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.Contains(t, err.Error(), "dimension")
}

func TestEmbedBatchCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embeddingsPayload([]float32{1, 0}))
	}))
	defer srv.Close()

	c := newClientFor(srv, 0)
	_, err := c.EmbedBatch(context.Background(), []string{"first", "second"})
	assert.ErrorIs(t, err, ErrEmbedding)
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := newClientFor(srv, 0)
	_, err := c.EmbedBatch(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmbedding)
}

func TestEmbedRetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(embeddingsPayload([]float32{0.5, 0.5}))
	}))
	defer srv.Close()

	c := newClientFor(srv, 2)
	vec, err := c.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, vec)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestEmbedExhaustsRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newClientFor(srv, 2)
	_, err := c.Embed(context.Background(), "text")
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "initial attempt plus two retries")
}

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		messages := req["messages"].([]any)
		require.Len(t, messages, 2)
		assert.Equal(t, "system", messages[0].(map[string]any)["role"])
		assert.Equal(t, "user", messages[1].(map[string]any)["role"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "  The grace period is 30 days.  "}},
			},
		})
	}))
	defer srv.Close()

	c := newClientFor(srv, 0)
	text, err := c.Complete(context.Background(), "system prompt", "user prompt")
	require.NoError(t, err)
	assert.Equal(t, "The grace period is 30 days.", text)
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	c := newClientFor(srv, 0)
	_, err := c.Complete(context.Background(), "", "user prompt")
	assert.ErrorIs(t, err, ErrGeneration)
}
