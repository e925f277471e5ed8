// Package rewrite improves free-text search queries before they are sent to
// the memory service. Any failure leaves the caller with the original query.
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/alucardeht/memvault/internal/logger"
)

var log = logger.ForComponent("rewrite")

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel   = "openai/gpt-4o-mini"

	systemPrompt = "Rewrite the user's search query for a memory retrieval system. " +
		"Output only the improved query, no explanation. Keep it concise and in the same language."
	maxTokens = 150
)

var ErrEmptyRewrite = errors.New("rewrite returned empty query")

type Rewriter interface {
	Rewrite(ctx context.Context, query string) (string, error)
}

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// ChatRewriter asks an OpenAI-compatible chat completion endpoint for a
// rewritten query.
type ChatRewriter struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

func NewChatRewriter(cfg Config) (*ChatRewriter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("rewrite api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"),
		option.WithMaxRetries(0),
	)

	return &ChatRewriter{client: client, model: cfg.Model, timeout: cfg.Timeout}, nil
}

func (r *ChatRewriter) Rewrite(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyRewrite
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(r.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(query),
		},
		MaxTokens: openai.Int(maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("rewrite query: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyRewrite
	}

	rewritten := strings.TrimSpace(resp.Choices[0].Message.Content)
	if rewritten == "" {
		return "", ErrEmptyRewrite
	}

	log.Debug("query rewritten", "query", query, "rewritten", rewritten)
	return rewritten, nil
}

// Apply returns the rewritten query, or query itself when r is nil or fails.
func Apply(ctx context.Context, r Rewriter, query string) string {
	if r == nil || strings.TrimSpace(query) == "" {
		return query
	}
	rewritten, err := r.Rewrite(ctx, query)
	if err != nil {
		log.Warn("query rewrite failed, using original", "error", err)
		return query
	}
	return rewritten
}
