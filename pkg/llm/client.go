// Package llm provides a resilient client for the external text-generation provider.
package llm

import (
	"context"
	"errors"
	"fmt"
	"lawchat-go/internal/config"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// Provider is the opaque generation capability. Implementations perform exactly one
// network call per Generate and must honour ctx cancellation.
type Provider interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}

// GenerateRequest 是一次生成调用的输入。
type GenerateRequest struct {
	SystemPersona   string
	Prompt          string
	MaxOutputTokens int
	Temperature     float64
	IdempotencyKey  string
}

// GenerateResult 是一次成功生成调用的输出。
type GenerateResult struct {
	Text       string
	TokensUsed int
}

// openAIProvider 调用 OpenAI 兼容的 chat/completions 接口（DeepSeek 等）。
type openAIProvider struct {
	client *openai.Client
	model  string
}

// NewProvider creates a provider for an OpenAI-compatible endpoint described by cfg.
func NewProvider(cfg config.LLMConfig) Provider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Transport: &idempotencyTransport{base: http.DefaultTransport}}
	return &openAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}
}

// Generate 发送一次非流式请求。超时由调用方通过 ctx 控制。
func (p *openAIProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPersona},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		MaxTokens:   req.MaxOutputTokens,
		Temperature: float32(req.Temperature),
	}

	resp, err := p.client.CreateChatCompletion(withIdempotencyKey(ctx, req.IdempotencyKey), chatReq)
	if err != nil {
		return nil, mapProviderError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{StatusCode: http.StatusBadGateway, Err: errors.New("provider returned no choices")}
	}
	return &GenerateResult{
		Text:       resp.Choices[0].Message.Content,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// mapProviderError 将 go-openai 的错误统一为 ProviderError，便于判断是否可重试。
func mapProviderError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return fmt.Errorf("failed to call chat api: %w", err)
}

type idempotencyKeyCtx struct{}

func withIdempotencyKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, idempotencyKeyCtx{}, key)
}

// idempotencyTransport 把 ctx 中的幂等键写入 Idempotency-Key 请求头，
// 重试时同一个逻辑请求始终携带相同的键。
type idempotencyTransport struct {
	base http.RoundTripper
}

func (t *idempotencyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if key, ok := req.Context().Value(idempotencyKeyCtx{}).(string); ok && key != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Idempotency-Key", key)
	}
	return t.base.RoundTrip(req)
}
