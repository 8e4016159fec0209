// Package sgr implements the SGR Converter (C9): three sequential
// ChatJSON stages that turn free-form author text into a
// model.ScenarioDefinition, followed by a deterministic assembler and
// static validator. Grounded field-for-field on
// original_source/chat_app/sgr/langchain_chain/models.go (sic — .py) and
// pipeline.py.
package sgr

// Intent is one atomic imperative extracted from the author's text.
type Intent struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Step1ExtractIntents is the first stage's structured output: a
// normalized restatement of the input plus its atomic intents, with
// clarifying questions only when the input under-specifies something.
type Step1ExtractIntents struct {
	NormalizedText string   `json:"normalized_text"`
	Intents        []Intent `json:"intents"`
	Questions      []string `json:"questions"`
}

// ConditionGate is one conditional branch: a condition in the engine's
// own terms, plus the intent ids that belong to its then/else arms.
type ConditionGate struct {
	ID            string   `json:"id"`
	ConditionText string   `json:"condition_text"`
	ThenIntents   []string `json:"then_intents"`
	ElseIntents   []string `json:"else_intents"`
}

// Step2GateAndCritique reshapes Step 1's intents into unconditional
// actions and conditional gates, stripping intents that are merely
// "check whether X" (those become ConditionGate.ConditionText, not
// actions).
type Step2GateAndCritique struct {
	Intents              []Intent        `json:"intents"`
	UnconditionalIntents []string        `json:"unconditional_intents"`
	Conditions           []ConditionGate `json:"conditions"`
	Questions            []string        `json:"questions"`
}

// MissingTool documents a capability the author's text requires that
// isn't in the tool registry yet.
type MissingTool struct {
	Name         string                 `json:"name"`
	Reason       string                 `json:"reason"`
	InputSchema  map[string]interface{} `json:"input_schema"`
	OutputSchema map[string]interface{} `json:"output_schema"`
}

// TemplatePlan is one planned template-text node, scoped to the global
// program or to one branch of one condition.
type TemplatePlan struct {
	ID            string  `json:"id"`
	Target        string  `json:"target"` // "global" | "condition_then" | "condition_else"
	ConditionID   *string `json:"condition_id,omitempty"`
	Text          string  `json:"text"`
	DependsOnTool *string `json:"depends_on_tool,omitempty"`
}

// Step3ToolsAndTemplates matches intents to available tools and plans
// the template-text nodes the assembler will emit.
type Step3ToolsAndTemplates struct {
	ToolsToCall  []string       `json:"tools_to_call"`
	MissingTools []MissingTool  `json:"missing_tools"`
	Templates    []TemplatePlan `json:"templates"`
	Questions    []string       `json:"questions"`
}

// Diagnostics accumulates per-step trace metadata plus the static
// template/tool reference report, returned to the caller alongside a
// successful conversion.
type Diagnostics struct {
	TraceID      string                 `json:"trace_id"`
	TemplateRefs map[string]interface{} `json:"template_refs,omitempty"`
}

// ConversionError wraps a failed conversion with the trace id, the step
// that failed, and whatever diagnostics/raw LLM text had accumulated —
// spec §4.9's structured-failure contract, mapped to HTTP 422 by the
// host layer.
type ConversionError struct {
	TraceID      string
	FailedStep   string
	Diagnostics  map[string]interface{}
	LastRawLLM   string
	Err          error
}

func (e *ConversionError) Error() string {
	return "sgr convert failed at " + e.FailedStep + " (trace " + e.TraceID + "): " + e.Err.Error()
}

func (e *ConversionError) Unwrap() error { return e.Err }
