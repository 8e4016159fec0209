package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sipeed/picoclaw/pkg/llmgw"
	"github.com/sipeed/picoclaw/pkg/model"
)

// Decision is the closed enum condition-decide resolves a conditional
// block to.
type Decision string

const (
	DecisionIgnore  Decision = "ignore"
	DecisionTrue    Decision = "true"
	DecisionFalse   Decision = "false"
	DecisionUnknown Decision = "unknown"
)

var conditionDecideSystem = "You are the control-flow decision module for a support-chat scenario's conditional branch.\n" +
	"Decide whether the user's latest message is on-topic for the condition, and if so, whether the condition is true, false, or ambiguous.\n" +
	"You are deciding branch applicability from the latest user message and dialog_params, not \"truth in the outside world\".\n" +
	"Return STRICT JSON, nothing else, shaped as:\n" +
	"{\n" +
	"  \"decision\": \"ignore|true|false|unknown\",\n" +
	"  \"followup_question\": \"...\"\n" +
	"}\n" +
	"Rules:\n" +
	"- ignore: the message is not on the condition's topic at all.\n" +
	"- true: the message EXPLICITLY establishes the condition holds.\n" +
	"- false: the message EXPLICITLY establishes the condition does not hold, but stays on topic.\n" +
	"- unknown: on topic, but true/false can't be chosen with confidence.\n" +
	"- If the condition is about dialog parameters (e.g. dialog.message_index, or \"the first message\"),\n" +
	"  use dialog.message_index to decide and never pick ignore for being \"off topic\".\n" +
	"- A condition about the \"second/third/fourth message\" is a strict comparison of dialog.message_index to 2/3/4.\n" +
	"- A condition phrased as \"the user said/stated/mentioned ... that ...\" is a check of whether the user asserted that fact in their latest message.\n" +
	"  TRUE: the user asserts it in the latest message.\n" +
	"  FALSE: the user explicitly asserts the opposite in the latest message.\n" +
	"  UNKNOWN: only when the latest message genuinely leaves it unclear whether they asserted it.\n" +
	"  Do not require outside verification: the user's own words are enough for true/false.\n" +
	"- If the user's message explicitly states a time reference (e.g. \"today\") that matches the condition's meaning,\n" +
	"  do not pick unknown: pick true or false.\n" +
	"For unknown, ask only about clarifying the wording of the latest message (never request personal data).\n" +
	"Never ask for personal data or \"verification\" (e.g. date of birth, passport, phone, address, email, card number).\n" +
	"For unknown, write a short clarifying followup_question; otherwise leave it empty.\n"

var conditionDecideSchema = map[string]interface{}{
	"type":                 "object",
	"additionalProperties":  false,
	"required":             []string{"decision", "followup_question"},
	"properties": map[string]interface{}{
		"decision":           map[string]interface{}{"type": "string", "enum": []string{"ignore", "true", "false", "unknown"}},
		"followup_question":  map[string]interface{}{"type": "string"},
	},
}

func decideConditionViaLLM(ctx context.Context, gw *llmgw.Gateway, opts llmgw.ChatOptions, condition, userMessage string, messageIndex int, whenTrue, whenFalse []string, facts map[string]map[string]interface{}) (Decision, string) {
	factsPreview := map[string]interface{}{}
	if v, ok := facts["tool:get_user_data"]; ok {
		preview := map[string]interface{}{}
		if name, ok := v["name"]; ok {
			preview["name"] = name
		}
		if age, ok := v["age"]; ok {
			preview["age"] = age
		}
		factsPreview["tool:get_user_data"] = preview
	}

	dialogParams, _ := json.Marshal(map[string]interface{}{"message_index": messageIndex})
	previewJSON, _ := json.Marshal(factsPreview)
	trueJSON, _ := json.Marshal(truncate(whenTrue, 5))
	falseJSON, _ := json.Marshal(truncate(whenFalse, 5))

	user := fmt.Sprintf(
		"Condition:\n%s\n\ndialog_params:\n%s\n\nUser message:\n%s\n\nFacts:\n%s\n\nwhen_true branch (for context):\n%s\n\nwhen_false branch (for context):\n%s\n",
		condition, dialogParams, userMessage, previewJSON, trueJSON, falseJSON,
	)

	data, err := gw.ChatJSON(ctx, []llmgw.Message{
		{Role: "system", Content: conditionDecideSystem},
		{Role: "user", Content: user},
	}, conditionDecideSchema, "condition_decision", opts)
	if err != nil {
		return DecisionUnknown, ""
	}

	decision, _ := data["decision"].(string)
	switch Decision(decision) {
	case DecisionIgnore, DecisionTrue, DecisionFalse, DecisionUnknown:
	default:
		decision = string(DecisionUnknown)
	}

	followup := ""
	if v, ok := data["followup_question"].(string); ok {
		followup = strings.TrimSpace(v)
	}
	return Decision(decision), followup
}

func truncate(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

// DecideConditions resolves every conditional instruction block against
// the turn's user message via condition-decide, replacing the
// conditional blocks with the judge rule + applied branch text the
// decision selects. Returns the rewritten block list plus the per-source
// decisions scenario-summarize needs to compute its enable policy.
func DecideConditions(ctx context.Context, gw *llmgw.Gateway, opts llmgw.ChatOptions, userMessage string, messageIndex int, facts map[string]map[string]interface{}, blocks []model.InstructionBlock) ([]model.InstructionBlock, map[string][]string, []string) {
	var conditional []model.InstructionBlock
	for _, b := range blocks {
		if b.Kind == model.KindConditional && b.Target == model.TargetAgent {
			conditional = append(conditional, b)
		}
	}

	sourceSet := map[string]struct{}{}
	for _, b := range conditional {
		if src := strings.TrimSpace(b.Source); src != "" {
			sourceSet[src] = struct{}{}
		}
	}
	sourcesWithCondition := make([]string, 0, len(sourceSet))
	for src := range sourceSet {
		sourcesWithCondition = append(sourcesWithCondition, src)
	}
	sort.Strings(sourcesWithCondition)

	type outcome struct {
		decision Decision
		block    model.InstructionBlock
		applied  []model.InstructionBlock
	}
	outcomes := make([]outcome, len(conditional))

	g, gctx := errgroup.WithContext(ctx)
	for i, b := range conditional {
		i, b := i, b
		g.Go(func() error {
			outcomes[i] = decideOne(gctx, gw, opts, b, userMessage, messageIndex, facts)
			return nil
		})
	}
	_ = g.Wait()

	var newBlocks, appliedFromConditions []model.InstructionBlock
	scenarioDecisions := map[string][]string{}
	for _, o := range outcomes {
		src := strings.TrimSpace(o.block.Source)
		if src != "" {
			scenarioDecisions[src] = append(scenarioDecisions[src], string(o.decision))
		}
		if o.decision != DecisionIgnore {
			newBlocks = append(newBlocks, model.InstructionBlock{
				ID:       o.block.ID + ":decision",
				Source:   src,
				Target:   model.TargetJudge,
				Kind:     model.KindRule,
				Priority: o.block.Priority,
				Text: fmt.Sprintf(
					"Conditional block %s was evaluated as decision=%s. Verify the answer doesn't contradict this decision or state anything from the other branch.",
					o.block.ID, o.decision,
				),
			})
		}
		appliedFromConditions = append(appliedFromConditions, o.applied...)
	}

	keep := make([]model.InstructionBlock, 0, len(blocks))
	for _, b := range blocks {
		if b.Kind == model.KindConditional && b.Target == model.TargetAgent {
			continue
		}
		keep = append(keep, b)
	}
	out := append(keep, newBlocks...)
	out = append(out, appliedFromConditions...)

	return out, scenarioDecisions, sourcesWithCondition
}

func decideOne(ctx context.Context, gw *llmgw.Gateway, opts llmgw.ChatOptions, block model.InstructionBlock, userMessage string, messageIndex int, facts map[string]map[string]interface{}) struct {
	decision Decision
	block    model.InstructionBlock
	applied  []model.InstructionBlock
} {
	type result = struct {
		decision Decision
		block    model.InstructionBlock
		applied  []model.InstructionBlock
	}

	condition, _ := block.Payload["condition"].(string)
	if condition == "" {
		condition, _ = block.Payload["condition_text"].(string)
	}
	if condition == "" {
		condition = block.Text
	}
	if condition == "" {
		return result{decision: DecisionIgnore, block: block}
	}

	whenTrue := toStringSlice(block.Payload["when_true"])
	whenFalse := toStringSlice(block.Payload["when_false"])

	decision, followup := decideConditionViaLLM(ctx, gw, opts, condition, userMessage, messageIndex, whenTrue, whenFalse, facts)

	var applied []model.InstructionBlock
	switch decision {
	case DecisionTrue:
		for idx, txt := range whenTrue {
			applied = append(applied, model.InstructionBlock{
				ID: fmt.Sprintf("%s:applied:true:%d", block.ID, idx+1), Source: block.Source,
				Target: model.TargetAgent, Kind: model.KindRaw, Priority: block.Priority, Text: txt,
			})
		}
	case DecisionFalse:
		for idx, txt := range whenFalse {
			applied = append(applied, model.InstructionBlock{
				ID: fmt.Sprintf("%s:applied:false:%d", block.ID, idx+1), Source: block.Source,
				Target: model.TargetAgent, Kind: model.KindRaw, Priority: block.Priority, Text: txt,
			})
		}
	case DecisionUnknown:
		if followup != "" {
			applied = append(applied, model.InstructionBlock{
				ID: block.ID + ":applied:unknown:followup", Source: block.Source,
				Target: model.TargetAgent, Kind: model.KindRequired, Priority: block.Priority,
				Text: "At the end of your answer, ask this clarifying question (answer the user's main question first):\n" + followup,
			})
		}
	}

	return result{decision: decision, block: block, applied: applied}
}

func toStringSlice(v interface{}) []string {
	items, ok := v.([]string)
	if ok {
		return items
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		out = append(out, fmt.Sprintf("%v", r))
	}
	return out
}
