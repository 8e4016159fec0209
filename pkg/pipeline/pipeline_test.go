package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/sipeed/picoclaw/pkg/llmgw"
	"github.com/sipeed/picoclaw/pkg/memory"
	"github.com/sipeed/picoclaw/pkg/model"
	"github.com/sipeed/picoclaw/pkg/taskrunner"
)

// scriptedProvider returns a fixed response to every Complete call,
// regardless of prompt — enough to drive the pipeline's generate and
// judge steps deterministically without a real LLM.
type scriptedProvider struct {
	responses []string
	calls     int
}

func (p *scriptedProvider) SupportsJSONSchema() bool { return false }
func (p *scriptedProvider) SupportsJSONObject() bool { return false }
func (p *scriptedProvider) Complete(ctx context.Context, req llmgw.Request) (string, error) {
	i := p.calls
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	p.calls++
	return p.responses[i], nil
}

func gatewayWithResponses(responses ...string) *llmgw.Gateway {
	p := &scriptedProvider{responses: responses}
	return llmgw.New(func(string) llmgw.Provider { return p }, nil)
}

// failingProvider always errors Complete, simulating an upstream LLM
// outage for TestRunTurnDegradesInsteadOfAbortingOnGenerateFailure.
type failingProvider struct{ err error }

func (p *failingProvider) SupportsJSONSchema() bool { return false }
func (p *failingProvider) SupportsJSONObject() bool { return false }
func (p *failingProvider) Complete(ctx context.Context, req llmgw.Request) (string, error) {
	return "", p.err
}

func gatewayAlwaysFailing(err error) *llmgw.Gateway {
	p := &failingProvider{err: err}
	return llmgw.New(func(string) llmgw.Provider { return p }, nil)
}

func passDecision() string {
	b, _ := json.Marshal(map[string]interface{}{"action": "pass", "reasons": []string{}, "patch_instructions": ""})
	return string(b)
}

func reviseDecision() string {
	b, _ := json.Marshal(map[string]interface{}{"action": "revise", "reasons": []string{"has emoji"}, "patch_instructions": "remove the emoji"})
	return string(b)
}

func newTestPipeline(gw *llmgw.Gateway) *Pipeline {
	return &Pipeline{
		Store:  memory.NewInProcessStore(),
		Tools:  nil,
		Gateway: gw,
		Tasks:  taskrunner.New(),
		Config: Config{GenerateModel: "gen"}.Resolved(),
	}
}

func TestRunTurnPassesOnFirstJudgeEvaluation(t *testing.T) {
	gw := gatewayWithResponses("hello there", passDecision())
	p := newTestPipeline(gw)

	resp, err := p.RunTurn(context.Background(), "conv-1", "hi")
	if err != nil {
		t.Fatalf("RunTurn returned error: %v", err)
	}
	if resp.Answer != "hello there" {
		t.Fatalf("expected answer %q, got %q", "hello there", resp.Answer)
	}

	p.Tasks.Wait()

	state, err := p.Store.GetState(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state.MessageIndex != 1 {
		t.Fatalf("expected message_index 1, got %d", state.MessageIndex)
	}

	history, _ := p.Store.GetHistory(context.Background(), "conv-1")
	if len(history) != 2 {
		t.Fatalf("expected 2 history items (user, assistant), got %d", len(history))
	}
	if history[0].Role != model.RoleUser || history[1].Role != model.RoleAssistant {
		t.Fatalf("expected user-then-assistant ordering, got %v then %v", history[0].Role, history[1].Role)
	}
}

func TestRunTurnRevisesOnceThenPersists(t *testing.T) {
	gw := gatewayWithResponses("hello 😀", reviseDecision(), "revised hello", passDecision())
	p := newTestPipeline(gw)

	resp, err := p.RunTurn(context.Background(), "conv-2", "hi")
	if err != nil {
		t.Fatalf("RunTurn returned error: %v", err)
	}
	if resp.Answer != "revised hello" {
		t.Fatalf("expected revised answer, got %q", resp.Answer)
	}
}

func TestRunTurnLoopCapForcesPersistAfterTwoRevisions(t *testing.T) {
	gw := gatewayWithResponses(
		"draft", reviseDecision(), "draft2", reviseDecision(), "draft3", reviseDecision(),
	)
	p := newTestPipeline(gw)

	resp, err := p.RunTurn(context.Background(), "conv-3", "hi")
	if err != nil {
		t.Fatalf("RunTurn returned error: %v", err)
	}
	if resp.Answer != "draft3" {
		t.Fatalf("expected the loop to stop after 2 revisions with answer %q, got %q", "draft3", resp.Answer)
	}
}

func TestRunTurnDegradesInsteadOfAbortingOnGenerateFailure(t *testing.T) {
	gw := gatewayAlwaysFailing(errors.New("429 too many requests"))
	p := newTestPipeline(gw)

	resp, err := p.RunTurn(context.Background(), "conv-5", "hi")
	if err != nil {
		t.Fatalf("RunTurn should degrade rather than return an error, got: %v", err)
	}
	if !strings.Contains(resp.Answer, "rate limit") {
		t.Fatalf("expected a rate-limit-classified apology, got %q", resp.Answer)
	}

	p.Tasks.Wait()

	state, err := p.Store.GetState(context.Background(), "conv-5")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state.MessageIndex != 1 {
		t.Fatalf("expected message_index 1, got %d", state.MessageIndex)
	}

	history, _ := p.Store.GetHistory(context.Background(), "conv-5")
	if len(history) != 2 {
		t.Fatalf("expected user and degraded-assistant history items persisted, got %d", len(history))
	}
	if history[1].Content != resp.Answer {
		t.Fatalf("expected the persisted assistant item to match the degraded answer")
	}
}

func TestAppendUserAdvancesMessageIndexMonotonically(t *testing.T) {
	gw := gatewayWithResponses("a", passDecision(), "b", passDecision())
	p := newTestPipeline(gw)

	if _, err := p.RunTurn(context.Background(), "conv-4", "first"); err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if _, err := p.RunTurn(context.Background(), "conv-4", "second"); err != nil {
		t.Fatalf("second turn: %v", err)
	}

	state, _ := p.Store.GetState(context.Background(), "conv-4")
	if state.MessageIndex != 2 {
		t.Fatalf("expected message_index 2 after two turns, got %d", state.MessageIndex)
	}
}

func TestDialogTailDropsDuplicateTrailingUserMessage(t *testing.T) {
	history := []model.HistoryItem{
		{Role: model.RoleUser, Content: "earlier"},
		{Role: model.RoleAssistant, Content: "earlier reply"},
		{Role: model.RoleUser, Content: "current"},
	}
	tail := dialogTail(history, "current")
	if len(tail) != 2 {
		t.Fatalf("expected duplicate trailing user message dropped, got %d items", len(tail))
	}
	if tail[len(tail)-1].Content != "earlier reply" {
		t.Fatalf("expected tail to end on the prior assistant reply, got %q", tail[len(tail)-1].Content)
	}
}

func TestDialogTailCapsAtFourItems(t *testing.T) {
	var history []model.HistoryItem
	for i := 0; i < 10; i++ {
		history = append(history, model.HistoryItem{Role: model.RoleUser, Content: "msg"})
	}
	tail := dialogTail(history, "not a duplicate")
	if len(tail) != dialogTailSize {
		t.Fatalf("expected %d items, got %d", dialogTailSize, len(tail))
	}
}
