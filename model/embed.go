package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"secondbrain/config"
)

// EmbedderInterface turns text into a fixed-length vector.
// A nil vector with a nil error means there was nothing to embed.
type EmbedderInterface interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Embedder calls an OpenAI-compatible /embeddings endpoint.
type Embedder struct {
	client     *openai.Client
	model      string
	dimensions int
	timeout    time.Duration
	limiter    *TokenLimiter
	logger     *slog.Logger
}

// NewEmbedder builds an Embedder from cfg. A missing API key is a
// *ConfigError and the embedder is not created.
func NewEmbedder(cfg config.Embedding, logger *slog.Logger) (*Embedder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "embedder")

	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &ConfigError{Setting: "OPENAI_API_KEY", Reason: "api key is not configured"}
	}
	if cfg.Model == "" {
		return nil, &ConfigError{Setting: "EMBEDDING_MODEL", Reason: "model is not configured"}
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	e := &Embedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		timeout:    cfg.Timeout,
		logger:     logger,
	}

	if cfg.MaxTokens > 0 {
		limiter, err := NewTokenLimiter(cfg.Model, cfg.MaxTokens)
		if err != nil {
			logger.Warn("token limit disabled, encoding unavailable", "model", cfg.Model, "error", err)
		} else {
			e.limiter = limiter
		}
	}

	logger.Info("embedding provider configured", "model", cfg.Model, "base_url", clientCfg.BaseURL, "dimensions", cfg.Dimensions)
	return e, nil
}

// Embed returns the embedding of text. Blank text yields (nil, nil) without
// calling the provider.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	if e.limiter != nil {
		if truncated, n := e.limiter.Truncate(text); n > 0 {
			e.logger.Warn("input truncated to token limit", "dropped_tokens", n, "limit", e.limiter.Max())
			text = truncated
		}
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: text,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		perr := classify(err)
		e.logger.Error("embedding request failed", "status", perr.StatusCode, "error", perr)
		return nil, perr
	}

	if len(resp.Data) == 0 {
		return nil, &ProviderError{Body: "response contains no embedding"}
	}
	vec := resp.Data[0].Embedding
	if len(vec) == 0 {
		return nil, &ProviderError{Body: "response embedding is empty"}
	}
	if e.dimensions > 0 && len(vec) != e.dimensions {
		return nil, &ProviderError{Body: fmt.Sprintf("unexpected embedding length %d, want %d", len(vec), e.dimensions)}
	}

	e.logger.Debug("embedding generated", "length", len(vec), "took", time.Since(start))
	return vec, nil
}

// classify converts a go-openai error into a *ProviderError carrying the
// HTTP status and body when the provider answered.
func classify(err error) *ProviderError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{StatusCode: apiErr.HTTPStatusCode, Body: apiErrorBody(apiErr), Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		body := strings.TrimSpace(string(reqErr.Body))
		if body == "" && reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return &ProviderError{StatusCode: reqErr.HTTPStatusCode, Body: body, Err: err}
	}
	return &ProviderError{Err: err}
}

// apiErrorBody re-encodes the decoded error object of the provider so the
// type, code and param travel with the message.
func apiErrorBody(apiErr *openai.APIError) string {
	b, err := json.Marshal(apiErr)
	if err != nil {
		return apiErr.Message
	}
	return string(b)
}
