package llmgw

import (
	"context"
	"errors"
	"testing"
)

// fakeProvider is the deterministic test double the ambient stack calls for
// instead of hitting a real OpenAI/Anthropic endpoint.
type fakeProvider struct {
	key            string
	supportsSchema bool
	supportsObject bool
	rateLimitUntil int
	calls          *int
	response       string
	err            error
}

func (p *fakeProvider) SupportsJSONSchema() bool { return p.supportsSchema }
func (p *fakeProvider) SupportsJSONObject() bool { return p.supportsObject }

func (p *fakeProvider) Complete(ctx context.Context, req Request) (string, error) {
	*p.calls++
	if *p.calls <= p.rateLimitUntil {
		return "", &RateLimitError{Err: errors.New("429")}
	}
	if p.err != nil {
		return "", p.err
	}
	return p.response, nil
}

func TestKeyRotationAdvancesOnRateLimit(t *testing.T) {
	calls := 0
	seenKeys := []string{}
	factory := func(key string) Provider {
		seenKeys = append(seenKeys, key)
		return &fakeProvider{key: key, rateLimitUntil: 2, calls: &calls, response: `{"ok":true}`}
	}
	rotator := NewKeyRotator([]string{"k1", "k2", "k3"}, nil)
	g := New(factory, rotator)

	text, err := g.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, ChatOptions{})
	if err != nil {
		t.Fatalf("expected eventual success, got error: %v", err)
	}
	if text != `{"ok":true}` {
		t.Fatalf("unexpected response text: %q", text)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts (2 rate-limited + 1 success), got %d", calls)
	}
	if len(seenKeys) != 3 || seenKeys[0] != "k1" || seenKeys[1] != "k2" || seenKeys[2] != "k3" {
		t.Fatalf("expected distinct keys in rotation order, got %v", seenKeys)
	}
}

func TestKeyRotationGivesUpAfterExhaustingAllKeys(t *testing.T) {
	calls := 0
	factory := func(key string) Provider {
		return &fakeProvider{key: key, rateLimitUntil: 100, calls: &calls}
	}
	rotator := NewKeyRotator([]string{"k1", "k2"}, nil)
	g := New(factory, rotator)

	_, err := g.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, ChatOptions{})
	if err == nil {
		t.Fatal("expected error after exhausting all rotation keys")
	}
	if calls != 2 {
		t.Fatalf("expected exactly len(keys) attempts, got %d", calls)
	}
}

func TestChatJSONUsesSchemaModeWhenSupported(t *testing.T) {
	calls := 0
	factory := func(key string) Provider {
		return &fakeProvider{supportsSchema: true, supportsObject: true, calls: &calls, response: `{"answer":"yes"}`}
	}
	g := New(factory, nil)

	obj, err := g.ChatJSON(context.Background(), []Message{{Role: "user", Content: "hi"}}, map[string]interface{}{"type": "object"}, "reply", ChatOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obj["answer"] != "yes" {
		t.Fatalf("expected parsed schema-mode object, got %v", obj)
	}
	if calls != 1 {
		t.Fatalf("expected a single schema-mode call, got %d", calls)
	}
}

func TestChatJSONFallsBackToBraceExtractionWhenUnsupported(t *testing.T) {
	calls := 0
	factory := func(key string) Provider {
		return &fakeProvider{supportsSchema: false, supportsObject: false, calls: &calls, response: "sure thing, here you go: {\"answer\":\"no\"} thanks"}
	}
	g := New(factory, nil)

	obj, err := g.ChatJSON(context.Background(), []Message{{Role: "user", Content: "hi"}}, map[string]interface{}{"type": "object"}, "reply", ChatOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obj["answer"] != "no" {
		t.Fatalf("expected parsed object extracted from surrounding prose, got %v", obj)
	}
	if calls != 1 {
		t.Fatalf("expected a single text-mode call when neither json mode is supported, got %d", calls)
	}
}

func TestChatJSONReturnsEmptyObjectWhenNothingParses(t *testing.T) {
	calls := 0
	factory := func(key string) Provider {
		return &fakeProvider{calls: &calls, response: "no json here at all"}
	}
	g := New(factory, nil)

	obj, err := g.ChatJSON(context.Background(), []Message{{Role: "user", Content: "hi"}}, map[string]interface{}{"type": "object"}, "reply", ChatOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(obj) != 0 {
		t.Fatalf("expected empty object, got %v", obj)
	}
}

func TestSingleKeyDoesNotRotate(t *testing.T) {
	calls := 0
	factory := func(key string) Provider {
		return &fakeProvider{rateLimitUntil: 5, calls: &calls}
	}
	rotator := NewKeyRotator([]string{"only"}, nil)
	g := New(factory, rotator)

	_, err := g.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, ChatOptions{})
	if err == nil {
		t.Fatal("expected error since the single key stays rate-limited")
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 attempt with a single key, got %d", calls)
	}
}
