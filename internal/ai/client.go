// Package ai wraps the OpenAI-compatible embeddings and chat completion
// APIs behind the narrow surface the pipeline needs.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"policyrag/internal/config"
)

var (
	ErrEmbedding  = errors.New("embedding provider failed")
	ErrGeneration = errors.New("generation provider failed")
)

type Client struct {
	api            *openai.Client
	chatModel      string
	embedModel     string
	embedDim       int
	requestTimeout time.Duration
	maxRetries     int
	retryBackoff   time.Duration
}

func NewClient(cfg config.LLMConfig) *Client {
	oaiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oaiCfg.BaseURL = cfg.BaseURL
	}

	timeout := time.Duration(cfg.RequestTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	backoff := time.Duration(cfg.RetryBackoffMs) * time.Millisecond
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	return &Client{
		api:            openai.NewClientWithConfig(oaiCfg),
		chatModel:      cfg.ChatModel,
		embedModel:     cfg.EmbeddingModel,
		embedDim:       cfg.EmbeddingDim,
		requestTimeout: timeout,
		maxRetries:     cfg.MaxRetries,
		retryBackoff:   backoff,
	}
}

// Embed returns the embedding vector for one text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one embedding per input text, preserving input
// order. Transient provider failures are retried a bounded number of
// times before being reported as ErrEmbedding; the underlying cause
// stays in the wrap chain so callers can distinguish deadline hits.
// Vectors are checked against the configured dimension.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no input texts", ErrEmbedding)
	}

	var resp openai.EmbeddingResponse
	err := c.withRetry(ctx, func(callCtx context.Context) error {
		var callErr error
		resp, callErr = c.api.CreateEmbeddings(callCtx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(c.embedModel),
			Input: texts,
		})
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrEmbedding, len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at position %d", ErrEmbedding, i)
		}
		if c.embedDim > 0 && len(d.Embedding) != c.embedDim {
			return nil, fmt.Errorf("%w: embedding at position %d has dimension %d, configured %d", ErrEmbedding, i, len(d.Embedding), c.embedDim)
		}
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// Complete runs one chat completion with the given system and user
// messages and returns the trimmed response text.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: user},
	}
	if system != "" {
		messages = append([]openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
		}, messages...)
	}

	var resp openai.ChatCompletionResponse
	err := c.withRetry(ctx, func(callCtx context.Context) error {
		var callErr error
		resp, callErr = c.api.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model:       c.chatModel,
			Messages:    messages,
			Temperature: 0.1,
		})
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", ErrGeneration)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Ping verifies the provider endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	_, err := c.api.ListModels(callCtx)
	return err
}

// withRetry runs fn with a per-call timeout, retrying up to maxRetries
// times with a fixed short backoff. Context cancellation stops retrying.
func (c *Client) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryBackoff):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
		lastErr = fn(callCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return lastErr
}
