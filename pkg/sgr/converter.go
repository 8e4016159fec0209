package sgr

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"

	"github.com/sipeed/picoclaw/pkg/llmgw"
	"github.com/sipeed/picoclaw/pkg/logger"
	"github.com/sipeed/picoclaw/pkg/model"
	"github.com/sipeed/picoclaw/pkg/tools"
)

const defaultTimeout = 35 * time.Second

// Options configures one Convert call. Env-style defaults
// (SGR_TIMEOUT_S, SGR_TRACE_DIR, SGR_MODEL, SGR_LOG_PROMPTS) are read by
// the caller (cmd/chatserver's config loader) and passed in here rather
// than read from os.Getenv inside this package, so Convert stays
// unit-testable without environment mutation.
type Options struct {
	Timeout     time.Duration
	TraceDir    string
	Model       string
	LogPrompts  bool
	ChatOptions llmgw.ChatOptions
}

func (o Options) resolved() Options {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.TraceDir == "" {
		o.TraceDir = os.TempDir()
	}
	return o
}

// Result is a successful conversion's output.
type Result struct {
	Scenario    model.ScenarioDefinition
	Diagnostics Diagnostics
	Questions   []string
}

func schemaFor[T any]() map[string]interface{} {
	s, err := jsonschema.For[T](nil)
	if err != nil {
		return map[string]interface{}{"type": "object"}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return map[string]interface{}{"type": "object"}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return map[string]interface{}{"type": "object"}
	}
	return m
}

const step1System = `You extract atomic intents from a support-chat scenario author's free-form text.

Produce:
- normalized_text: the input, cleaned up.
- intents: a list of {id: "i1"/"i2"/..., text: "..."}, each ONE atomic imperative (one action per intent, never two joined by "and").
- questions: only if the input is genuinely under-specified — do not ask about something the text already answers.

Return STRICT JSON matching the schema, nothing else.`

const step2System = `You reshape extracted intents into unconditional actions and conditional gates.

- unconditional_intents: intent ids that always apply.
- conditions: {id: "c1"/"c2"/..., condition_text, then_intents: [...], else_intents: [...]} — one gate per distinct condition in the text.
- Strip intents that are merely "check whether X is true" from unconditional_intents/then_intents/else_intents — those describe the condition itself, not an action; fold them into condition_text instead.
- Keep the intents list as given; only partition their ids.

Return STRICT JSON matching the schema, nothing else.`

const step3System = `You match intents and templates to available tools for a support-chat scenario.

- tools_to_call: names of tools (from available_tools) whose result the scenario's texts or conditions need.
- missing_tools: any capability referenced that has no matching tool — {name, reason, input_schema, output_schema} with your best-guess schemas.
- templates: planned text nodes with template placeholders, each {id: "t1"/"t2"/..., target: "global"|"condition_then"|"condition_else", condition_id (required for condition_then/condition_else), text, depends_on_tool}. Use {=@tool.field=} to reference a tool's result field and {=dialog.name|age|message_index=} for dialog parameters.
- questions: only genuinely missing information; never ask "how do I determine X" (that belongs to conditions) or "what tool should I use" (that belongs to missing_tools).

Return STRICT JSON matching the schema, nothing else.`

// Convert runs the three LLM stages and the deterministic assembler,
// producing a ScenarioDefinition from free-form author text. strict
// rejects a condition whose then-branch resolves to no actions at all.
func Convert(ctx context.Context, gw *llmgw.Gateway, availableTools []tools.ToolSpec, text, nameHint string, strict bool, opts Options) (*Result, error) {
	opts = opts.resolved()
	traceID := strings.ReplaceAll(uuid.New().String(), "-", "")[:10]
	traceDir := filepath.Join(opts.TraceDir, traceID)
	if err := os.MkdirAll(traceDir, 0o755); err != nil {
		logger.WarnCF("sgr", "failed to create trace dir, continuing without persistence", map[string]interface{}{"trace_id": traceID, "error": err.Error()})
	}

	toolsJSON, _ := json.Marshal(availableTools)

	step1, raw1, err := callStep[Step1ExtractIntents](ctx, gw, opts, traceID, traceDir, "01_extract_intents",
		step1System, fmt.Sprintf("Author text:\n%s", text))
	if err != nil {
		return nil, &ConversionError{TraceID: traceID, FailedStep: "01_extract_intents", LastRawLLM: raw1, Err: err}
	}
	cleanStep1(&step1)

	step2, raw2, err := callStep[Step2GateAndCritique](ctx, gw, opts, traceID, traceDir, "02_gate_and_critique",
		step2System, fmt.Sprintf("Intents:\n%s", mustJSON(step1.Intents)))
	if err != nil {
		return nil, &ConversionError{TraceID: traceID, FailedStep: "02_gate_and_critique", LastRawLLM: raw2, Err: err}
	}
	cleanStep2(&step2)

	step3, raw3, err := callStep[Step3ToolsAndTemplates](ctx, gw, opts, traceID, traceDir, "03_tools_and_templates",
		step3System, fmt.Sprintf("Intents:\n%s\n\nConditions:\n%s\n\nAvailable tools:\n%s",
			mustJSON(step2.Intents), mustJSON(step2.Conditions), string(toolsJSON)))
	if err != nil {
		return nil, &ConversionError{TraceID: traceID, FailedStep: "03_tools_and_templates", LastRawLLM: raw3, Err: err}
	}
	cleanStep3(&step3)
	applyToolPolicy(&step2, &step3, availableTools)

	scenario, err := assemble(assembleInput{
		traceID:         traceID,
		inputText:       text,
		nameHint:        nameHint,
		explicitElseNoop: textHasExplicitNoopElse(text),
		strict:          strict,
		step2:           step2,
		step3:           step3,
	})
	if err != nil {
		return nil, &ConversionError{TraceID: traceID, FailedStep: "04_assemble_scenario", Err: err}
	}

	if err := validateScenario(scenario, text); err != nil {
		return nil, &ConversionError{TraceID: traceID, FailedStep: "10_static_validation", Err: err}
	}
	templateRefs := validateTemplateRefs(scenario, availableTools)

	questions := filterQuestions(append(append(append([]string{}, step1.Questions...), step2.Questions...), step3.Questions...))

	return &Result{
		Scenario:    scenario,
		Diagnostics: Diagnostics{TraceID: traceID, TemplateRefs: templateRefs},
		Questions:   questions,
	}, nil
}

// callStep runs one ChatJSON stage under a per-step timeout, persisting
// the request/response to traceDir per spec §4.9, and validates the
// result into T via JSON round-trip (ChatJSON already guarantees an
// object; this only maps field names).
func callStep[T any](ctx context.Context, gw *llmgw.Gateway, opts Options, traceID, traceDir, step, system, user string) (T, string, error) {
	var out T

	stepCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	schema := schemaFor[T]()
	messages := []llmgw.Message{{Role: "system", Content: system}, {Role: "user", Content: user}}

	writeTrace(traceDir, step+".request.json", map[string]interface{}{
		"trace_id": traceID, "model": opts.Model, "timeout_s": opts.Timeout.Seconds(), "messages": messages,
	})
	if opts.LogPrompts {
		logger.InfoCF("sgr", "sgr_step_start", map[string]interface{}{"trace_id": traceID, "step": step})
	}

	chatOpts := opts.ChatOptions
	chatOpts.Model = opts.Model
	data, err := gw.ChatJSON(stepCtx, messages, schema, step, chatOpts)
	raw, _ := json.Marshal(data)
	if err != nil {
		writeTrace(traceDir, step+".response.json", map[string]interface{}{"error": err.Error()})
		return out, string(raw), err
	}

	b, err := json.Marshal(data)
	if err != nil {
		return out, string(raw), err
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, string(raw), err
	}

	writeTrace(traceDir, step+".response.json", map[string]interface{}{"raw": string(raw), "validated_output": out})
	if opts.LogPrompts {
		logger.InfoCF("sgr", "sgr_step_end", map[string]interface{}{"trace_id": traceID, "step": step})
	}
	return out, string(raw), nil
}

func writeTrace(dir, name string, payload interface{}) {
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(filepath.Join(dir, name), b, 0o644); err != nil {
		logger.WarnCF("sgr", "failed to write trace file", map[string]interface{}{"file": name, "error": err.Error()})
	}
}

func mustJSON(v interface{}) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func textHasExplicitNoopElse(text string) bool {
	t := strings.ToLower(text)
	hasElseMarker := strings.Contains(t, "иначе") || strings.Contains(t, "а если") || strings.Contains(t, "если нет") || strings.Contains(t, "если не")
	if hasElseMarker && strings.Contains(t, "ничего") {
		return true
	}
	if strings.Contains(t, "ничего не") && (strings.Contains(t, "говор") || strings.Contains(t, "дел") || strings.Contains(t, "добав")) {
		return true
	}
	return false
}

func filterQuestions(questions []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, q := range questions {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		low := strings.ToLower(q)
		if strings.Contains(low, "как определ") || strings.Contains(low, "как провер") || strings.Contains(low, "как понят") {
			continue
		}
		if strings.Contains(low, "какой инструмент") || strings.Contains(low, "какой метод") || strings.Contains(low, "как получить") {
			continue
		}
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	return out
}
