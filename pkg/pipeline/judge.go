package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/sipeed/picoclaw/pkg/llmgw"
	"github.com/sipeed/picoclaw/pkg/model"
)

var judgeEvaluateSchema = map[string]interface{}{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"action", "reasons", "patch_instructions"},
	"properties": map[string]interface{}{
		"action":             map[string]interface{}{"type": "string", "enum": []string{"pass", "revise"}},
		"reasons":            map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"patch_instructions": map[string]interface{}{"type": "string"},
	},
}

const judgeEvaluateSystem = `You review a draft support-chat answer before it is sent. Check it against the scenario judge rules and the retrieved context.

Reject (action=revise) if the answer:
- uses emoji,
- promises a future action or fact not grounded in context,
- contradicts a scenario judge rule,
- contradicts a fact the user or a tool has established.

Otherwise accept (action=pass). When rejecting, propose at most 1-2 point edits in patch_instructions — never ask for a full rewrite.

Return STRICT JSON: {"action": "pass|revise", "reasons": ["..."], "patch_instructions": "..."}`

// judgeEvaluate calls chat_json at temperature 0 with a strict
// {action, reasons, patch_instructions} schema, embedding the scenario
// judge rules, a facts summary, the required/agent texts, and the KB
// context spec §4.7 names.
func (p *Pipeline) judgeEvaluate(ctx context.Context, t *turn) (model.JudgeDecision, error) {
	user := fmt.Sprintf(
		"Draft answer:\n%s\n\nJudge rules:\n%s\n\nFacts:\n%s\n\nRequired instructions given to the answer:\n%s\n\nKnowledge-base context:\n%s\n",
		t.answer, judgeRuleTexts(t.tools), factsSummary(t.state, t.tools), requiredTexts(t.tools), renderChunks(t.chunks),
	)

	data, err := p.Gateway.ChatJSON(ctx, []llmgw.Message{
		{Role: "system", Content: judgeEvaluateSystem},
		{Role: "user", Content: user},
	}, judgeEvaluateSchema, "judge_decision", llmgw.ChatOptions{Temperature: 0, Model: p.Config.JudgeModel})
	if err != nil {
		return model.JudgeDecision{Action: model.JudgePass}, err
	}

	action, _ := data["action"].(string)
	if action != string(model.JudgeRevise) {
		action = string(model.JudgePass)
	}
	decision := model.JudgeDecision{Action: model.JudgeAction(action)}
	if raw, ok := data["reasons"].([]interface{}); ok {
		for _, r := range raw {
			decision.Reasons = append(decision.Reasons, fmt.Sprintf("%v", r))
		}
	}
	if patch, ok := data["patch_instructions"].(string); ok {
		decision.PatchInstructions = patch
	}
	return decision, nil
}

const judgeReviseSystem = `Apply the requested edits to the answer with minimal changes. Do not introduce any fact beyond what the context already supports. Keep every must-keep instruction unless it contradicts the context. Strip emoji. Strip any promise of a future action or outcome not grounded in context. Return only the revised answer text, nothing else.`

// judgeRevise calls chat at temperature 0.1 with the revise model,
// replacing the working answer with the revision and incrementing
// judge_attempts.
func (p *Pipeline) judgeRevise(ctx context.Context, t *turn, decision model.JudgeDecision) error {
	user := fmt.Sprintf(
		"Patch instructions:\n%s\n\nOriginal answer:\n%s\n\nFacts:\n%s\n\nMust-keep instructions:\n%s\n\nKnowledge-base context:\n%s\n",
		decision.PatchInstructions, t.answer, factsSummary(t.state, t.tools), requiredTexts(t.tools), renderChunks(t.chunks),
	)

	revised, err := p.Gateway.Chat(ctx, []llmgw.Message{
		{Role: "system", Content: judgeReviseSystem},
		{Role: "user", Content: user},
	}, llmgw.ChatOptions{Temperature: 0.1, Model: p.Config.ReviseModel})
	if err != nil {
		return err
	}

	t.answer = revised
	t.judgeAttempts++
	return nil
}

func judgeRuleTexts(tc *model.ToolsContext) string {
	if tc == nil {
		return "(none)"
	}
	var lines []string
	for _, b := range tc.InstructionBlocks {
		if b.Target == model.TargetJudge && b.Kind == model.KindRule {
			lines = append(lines, b.Text)
		}
	}
	if len(lines) == 0 {
		return "(none)"
	}
	return "- " + strings.Join(lines, "\n- ")
}

func requiredTexts(tc *model.ToolsContext) string {
	if tc == nil {
		return "(none)"
	}
	var lines []string
	for _, b := range tc.InstructionBlocks {
		if b.Target == model.TargetAgent && b.Kind == model.KindRequired {
			lines = append(lines, b.Text)
		}
	}
	if len(lines) == 0 {
		return "(none)"
	}
	return "- " + strings.Join(lines, "\n- ")
}

func factsSummary(state *model.ConversationState, tc *model.ToolsContext) string {
	parts := []string{}
	if state != nil && state.UserProfile.Name != "" {
		parts = append(parts, "name: "+state.UserProfile.Name)
	}
	if state != nil && state.UserProfile.Age != nil {
		parts = append(parts, fmt.Sprintf("age: %d", *state.UserProfile.Age))
	}
	if tc != nil {
		if v, ok := tc.Facts["tool:get_user_data"]; ok {
			for k, val := range v {
				parts = append(parts, fmt.Sprintf("%s: %v", k, val))
			}
		}
	}
	if len(parts) == 0 {
		return "(none known)"
	}
	return strings.Join(parts, "; ")
}
