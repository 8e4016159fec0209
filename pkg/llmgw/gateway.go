package llmgw

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/sipeed/picoclaw/pkg/apperr"
	"github.com/sipeed/picoclaw/pkg/logger"
)

// ChatOptions configures one Chat/ChatJSON call.
type ChatOptions struct {
	Temperature float64
	Model       string
}

// Gateway is the single concurrency-safe LLM capability. Each call opens
// an ephemeral Provider bound to the currently-selected key — safe for
// concurrent use since no shared mutable client state is touched per call.
type Gateway struct {
	factory  ProviderFactory
	rotator  *KeyRotator
}

// New constructs a Gateway. factory builds a fresh Provider for a given key.
func New(factory ProviderFactory, rotator *KeyRotator) *Gateway {
	return &Gateway{factory: factory, rotator: rotator}
}

// Chat returns a plain-text completion.
func (g *Gateway) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	return g.call(ctx, Request{Messages: messages, Model: opts.Model, Temperature: opts.Temperature, Format: FormatText})
}

// ChatJSON tries strict JSON-schema mode, falls back to json_object mode,
// then to permissive extraction of the first {...} block, returning {} if
// nothing parses — the fallback ladder spec requires because providers
// differ in what response-format modes they support.
func (g *Gateway) ChatJSON(ctx context.Context, messages []Message, schema map[string]interface{}, name string, opts ChatOptions) (map[string]interface{}, error) {
	provider, key, err := g.currentProvider(ctx)
	if err != nil {
		return map[string]interface{}{}, err
	}

	if provider.SupportsJSONSchema() {
		text, callErr := g.attempt(ctx, provider, key, Request{
			Messages: messages, Model: opts.Model, Temperature: opts.Temperature,
			Format: FormatJSONSchema, Schema: schema, SchemaName: name,
		})
		if callErr == nil {
			if obj, ok := tryParseObject(text); ok {
				return obj, nil
			}
		}
	}

	if provider.SupportsJSONObject() {
		text, callErr := g.attempt(ctx, provider, key, Request{
			Messages: messages, Model: opts.Model, Temperature: opts.Temperature, Format: FormatJSONObject,
		})
		if callErr == nil {
			if obj, ok := tryParseObject(text); ok {
				return obj, nil
			}
		}
	}

	text, callErr := g.attempt(ctx, provider, key, Request{
		Messages: messages, Model: opts.Model, Temperature: opts.Temperature, Format: FormatText,
	})
	if callErr != nil {
		return map[string]interface{}{}, callErr
	}
	if obj, ok := tryParseObject(extractBraces(text)); ok {
		return obj, nil
	}

	logger.WarnCF("llm", "chat_json produced no parseable object", map[string]interface{}{"schema_name": name})
	return map[string]interface{}{}, nil
}

// call performs one request with key-rotation retry on rate limits, up to
// rotator.Len() attempts (or a single attempt with no rotator configured).
func (g *Gateway) call(ctx context.Context, req Request) (string, error) {
	provider, key, err := g.currentProvider(ctx)
	if err != nil {
		return "", err
	}
	return g.attempt(ctx, provider, key, req)
}

func (g *Gateway) currentProvider(ctx context.Context) (Provider, string, error) {
	key := ""
	if g.rotator != nil {
		key = g.rotator.Current(ctx)
	}
	return g.factory(key), key, nil
}

// attempt retries req against successive rotated keys while the provider
// reports RateLimitError, up to the number of configured keys.
func (g *Gateway) attempt(ctx context.Context, provider Provider, key string, req Request) (string, error) {
	maxAttempts := 1
	if g.rotator != nil && g.rotator.Len() > 1 {
		maxAttempts = g.rotator.Len()
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		text, err := provider.Complete(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err

		var rateErr *RateLimitError
		if !isRateLimit(err, &rateErr) {
			return "", apperr.New(apperr.KindUpstreamLLM, "llmgw.Complete", err)
		}

		logger.WarnCF("llm", "rate limited, rotating key", map[string]interface{}{"attempt": attempt + 1})
		if g.rotator != nil {
			g.rotator.Advance(ctx)
			key = g.rotator.Current(ctx)
			provider = g.factory(key)
		}
	}
	return "", apperr.New(apperr.KindUpstreamLLM, "llmgw.Complete", lastErr).WithFields(map[string]interface{}{"classification": "rate_limit"})
}

func isRateLimit(err error, target **RateLimitError) bool {
	re, ok := err.(*RateLimitError)
	if ok {
		*target = re
		return true
	}
	return false
}

func tryParseObject(text string) (map[string]interface{}, bool) {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

var braceRe = regexp.MustCompile(`(?s)\{.*\}`)

// extractBraces returns the first {...} block in text, or "" if none found.
func extractBraces(text string) string {
	m := braceRe.FindString(text)
	return m
}
