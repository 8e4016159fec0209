// Package llmgw implements the LLM Gateway (C4): a single concurrency-safe
// capability exposing chat() and chat_json() over an OpenAI-compatible
// endpoint, with comma-separated API key rotation on rate limits.
package llmgw

import "context"

// Message is one chat turn fed to a provider.
type Message struct {
	Role    string
	Content string
}

// ResponseFormat selects how a provider should shape its output.
type ResponseFormat int

const (
	FormatText ResponseFormat = iota
	FormatJSONSchema
	FormatJSONObject
)

// Request bundles everything a single provider call needs.
type Request struct {
	Messages    []Message
	Model       string
	Temperature float64
	Format      ResponseFormat
	Schema      map[string]interface{}
	SchemaName  string
}

// RateLimitError is returned by a Provider when the upstream reports a
// rate limit (HTTP 429 or an equivalent SDK error), signalling the gateway
// to rotate keys and retry.
type RateLimitError struct {
	Err error
}

func (e *RateLimitError) Error() string { return "rate limited: " + e.Err.Error() }
func (e *RateLimitError) Unwrap() error { return e.Err }

// AuthError is returned for authentication failures (HTTP 401/403), which
// the gateway surfaces unchanged rather than retrying.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "auth error: " + e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// Provider is a single concrete backend (OpenAI-compatible, Anthropic, ...).
// The gateway constructs an ephemeral Provider per call with the currently
// selected API key, per spec's "each call opens an ephemeral client".
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
	SupportsJSONSchema() bool
	SupportsJSONObject() bool
}

// ProviderFactory builds a Provider bound to a specific API key.
type ProviderFactory func(apiKey string) Provider
