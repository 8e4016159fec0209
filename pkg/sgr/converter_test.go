package sgr

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/sipeed/picoclaw/pkg/llmgw"
	"github.com/sipeed/picoclaw/pkg/tools"
)

// scriptedStepProvider returns the step-indexed response it's configured
// with regardless of the prompt — Convert's three stages are strictly
// sequential, so a simple counter is enough to drive each one.
type scriptedStepProvider struct {
	responses []string
	calls     int
}

func (p *scriptedStepProvider) SupportsJSONSchema() bool { return false }
func (p *scriptedStepProvider) SupportsJSONObject() bool { return false }
func (p *scriptedStepProvider) Complete(ctx context.Context, req llmgw.Request) (string, error) {
	i := p.calls
	p.calls++
	return p.responses[i], nil
}

func gatewayForSteps(t *testing.T, step1 Step1ExtractIntents, step2 Step2GateAndCritique, step3 Step3ToolsAndTemplates) *llmgw.Gateway {
	t.Helper()
	r1, _ := json.Marshal(step1)
	r2, _ := json.Marshal(step2)
	r3, _ := json.Marshal(step3)
	p := &scriptedStepProvider{responses: []string{string(r1), string(r2), string(r3)}}
	return llmgw.New(func(string) llmgw.Provider { return p }, nil)
}

func TestConvertProducesAssembledAndValidatedScenario(t *testing.T) {
	gw := gatewayForSteps(t,
		Step1ExtractIntents{Intents: []Intent{{ID: "i1", Text: "Greet the user"}}},
		Step2GateAndCritique{Intents: []Intent{{ID: "i1", Text: "Greet the user"}}, UnconditionalIntents: []string{"i1"}},
		Step3ToolsAndTemplates{},
	)

	result, err := Convert(context.Background(), gw, nil, "Greet the user", "", true, Options{TraceDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Convert returned error: %v", err)
	}
	if len(result.Scenario.Code) == 0 {
		t.Fatal("expected a non-empty scenario code")
	}
	if result.Diagnostics.TraceID == "" {
		t.Fatal("expected a trace id")
	}
}

func TestConvertWritesTraceFilesPerStep(t *testing.T) {
	dir := t.TempDir()
	gw := gatewayForSteps(t,
		Step1ExtractIntents{Intents: []Intent{{ID: "i1", Text: "Say hi"}}},
		Step2GateAndCritique{Intents: []Intent{{ID: "i1", Text: "Say hi"}}, UnconditionalIntents: []string{"i1"}},
		Step3ToolsAndTemplates{},
	)

	result, err := Convert(context.Background(), gw, nil, "Say hi", "", true, Options{TraceDir: dir})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	traceDir := dir + "/" + result.Diagnostics.TraceID
	entries, err := os.ReadDir(traceDir)
	if err != nil {
		t.Fatalf("expected a trace directory at %s: %v", traceDir, err)
	}
	if len(entries) < 6 {
		t.Fatalf("expected request+response files for 3 steps (>=6 files), got %d", len(entries))
	}
}

func TestConvertFailsValidationWhenConditionalMarkerHasNoIfNode(t *testing.T) {
	gw := gatewayForSteps(t,
		Step1ExtractIntents{Intents: []Intent{{ID: "i1", Text: "Greet"}}},
		Step2GateAndCritique{Intents: []Intent{{ID: "i1", Text: "Greet"}}, UnconditionalIntents: []string{"i1"}},
		Step3ToolsAndTemplates{},
	)

	_, err := Convert(context.Background(), gw, nil, "Если пользователь поздоровается, поприветствуй", "", true, Options{TraceDir: t.TempDir()})
	if err == nil {
		t.Fatal("expected a validation failure")
	}
	convErr, ok := err.(*ConversionError)
	if !ok {
		t.Fatalf("expected *ConversionError, got %T", err)
	}
	if convErr.FailedStep != "10_static_validation" {
		t.Fatalf("expected failed_step 10_static_validation, got %s", convErr.FailedStep)
	}
}

func TestConvertReportsUnknownToolReferences(t *testing.T) {
	gw := gatewayForSteps(t,
		Step1ExtractIntents{Intents: []Intent{{ID: "i1", Text: "Mention the ticket id"}}},
		Step2GateAndCritique{Intents: []Intent{{ID: "i1", Text: "Ticket: {=@unknown_tool.id=}"}}, UnconditionalIntents: []string{"i1"}},
		Step3ToolsAndTemplates{},
	)

	result, err := Convert(context.Background(), gw, []tools.ToolSpec{}, "Mention the ticket id", "", true, Options{TraceDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	refs, ok := result.Diagnostics.TemplateRefs["unknown_tools"].([]string)
	if !ok || len(refs) != 1 || refs[0] != "unknown_tool" {
		t.Fatalf("expected unknown_tool flagged in diagnostics, got %+v", result.Diagnostics.TemplateRefs)
	}
}
