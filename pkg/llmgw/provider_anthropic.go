package llmgw

import (
	"context"
	"errors"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/oauth2"
)

// AnthropicProvider is an alternate backend that a ProviderFactory can
// return instead of OpenAIProvider. Neither cmd/chatserver nor cmd/chatctl
// selects it; both always build OpenAIProvider. Adapted from pkg/providers/claude_provider.go, trimmed of the
// tool-calling path (the gateway only ever needs chat/chat_json) and
// generalized to the simpler oauth2.TokenSource the ambient stack already
// pulls in via golang.org/x/oauth2, rather than the teacher's bespoke
// credential-refresh plumbing.
type AnthropicProvider struct {
	client *anthropic.Client
}

// NewAnthropicProvider constructs a provider authenticating with a static
// API key.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	client := anthropic.NewClient(option.WithAuthToken(apiKey))
	return &AnthropicProvider{client: &client}
}

// NewAnthropicProviderOAuth constructs a provider authenticating via an
// OAuth bearer token sourced from ts, mirroring the teacher's
// oauthBearerMiddleware but built on the standard oauth2.TokenSource
// contract instead of a hand-rolled refresh function.
func NewAnthropicProviderOAuth(ts oauth2.TokenSource) *AnthropicProvider {
	client := anthropic.NewClient(option.WithMiddleware(oauthBearerMiddleware(ts)))
	return &AnthropicProvider{client: &client}
}

func oauthBearerMiddleware(ts oauth2.TokenSource) option.Middleware {
	return func(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
		tok, err := ts.Token()
		if err != nil {
			return nil, err
		}
		req.Header.Del("X-Api-Key")
		req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
		req.Header.Set("anthropic-beta", "oauth-2025-04-20")
		return next(req)
	}
}

func (p *AnthropicProvider) SupportsJSONSchema() bool { return false }
func (p *AnthropicProvider) SupportsJSONObject() bool { return false }

// Complete sends messages to Claude. The gateway never requests
// FormatJSONSchema/FormatJSONObject from this provider (SupportsJSONSchema
// and SupportsJSONObject both return false), so chat_json against this
// provider relies entirely on the regex-extraction fallback rung, the same
// way original_source's _OpenRouterClient degrades for non-OpenAI backends.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (string, error) {
	var system []anthropic.TextBlockParam
	var messages []anthropic.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		Messages:    messages,
		MaxTokens:   4096,
		Temperature: anthropic.Float(req.Temperature),
	}
	if len(system) > 0 {
		params.System = system
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", classifyAnthropicError(err)
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.AsText().Text
		}
	}
	return content, nil
}

func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return &RateLimitError{Err: err}
		case http.StatusUnauthorized, http.StatusForbidden:
			return &AuthError{Err: err}
		}
	}
	return err
}
