// Package embedding provides batch text embedders.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/kgchat-backend/internal/config"
)

// Embedder turns a batch of texts into vectors with one backend round trip. The result has one
// vector per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
	Model() string
}

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "embedding upstream http error"
	}
	if e.Body == "" {
		return fmt.Sprintf("embedding upstream http error: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("embedding upstream http error: status=%d body=%s", e.StatusCode, e.Body)
}

type apiKeyKey struct{}

// WithAPIKey attaches a caller-supplied provider key that overrides the configured one for
// requests made with the returned context.
func WithAPIKey(ctx context.Context, key string) context.Context {
	key = strings.TrimSpace(key)
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, apiKeyKey{}, key)
}

// APIKeyFrom returns the per-request key set by WithAPIKey, or "".
func APIKeyFrom(ctx context.Context) string {
	if v, ok := ctx.Value(apiKeyKey{}).(string); ok {
		return v
	}
	return ""
}

// New builds the embedder selected by cfg.Type.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "", "mock", "hash":
		return NewHashEmbedder(cfg.Dims), nil
	case "oai_http", "openai_http":
		return NewOAIClient(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding type %q", cfg.Type)
	}
}
