package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sipeed/picoclaw/pkg/llmgw"
	"github.com/sipeed/picoclaw/pkg/logger"
	"github.com/sipeed/picoclaw/pkg/model"
	"github.com/sipeed/picoclaw/pkg/scenario"
)

// RunTurnV01 is the linear v0.1 handler named by spec §6's
// X-Agent-Pipeline-Version header contract, grounded on
// original_source/chat_app/pipelines/v0_1/orchestrator_v0_1.py's
// ChatOrchestrator.handle_chat: load state, append the user turn, retrieve,
// run every enabled scenario sequentially with its raw text rendered
// in-line (no condition-decide, no summarize-to-imperatives reduction —
// conditional blocks are simply skipped, since v0.1 never resolves them),
// build one single-pass prompt, generate once, persist. No judge loop, no
// background summary — the original orchestrator has neither.
func (p *Pipeline) RunTurnV01(ctx context.Context, conversationID, message string) (*Response, error) {
	t := &turn{conversationID: conversationID, userMessage: message}

	if err := p.loadState(ctx, t); err != nil {
		return nil, err
	}
	if err := p.appendUser(ctx, t); err != nil {
		return nil, err
	}
	p.backfillUserProfile(ctx, t)

	p.retrieve(ctx, t)

	contextParts, applied := p.runScenariosLinear(ctx, t)

	t.messages = buildV01Messages(t, strings.Join(contextParts, "\n\n"))

	answer, err := p.Gateway.Chat(ctx, t.messages, llmgw.ChatOptions{Temperature: 0.1, Model: p.Config.GenerateModel})
	if err != nil {
		logger.ErrorCF("pipeline", "v0.1 llm_generate failed, degrading to an apology", map[string]interface{}{
			"conversation_id": conversationID, "error": err.Error(),
		})
		answer = degradedAnswer(err)
	}
	t.answer = answer

	if err := p.persistAnswer(ctx, t); err != nil {
		return nil, err
	}

	return &Response{
		ConversationID:   t.conversationID,
		Answer:           t.answer,
		Chunks:           t.chunks,
		LastStepScenario: strings.Join(applied, ", "),
	}, nil
}

// backfillUserProfile reproduces handle_chat's first-message backfill: on
// the conversation's very first turn, if the profile is still empty, call
// get_user_data directly rather than waiting for a scenario to reference
// it.
func (p *Pipeline) backfillUserProfile(ctx context.Context, t *turn) {
	if t.state.MessageIndex != 1 || p.Tools == nil {
		return
	}
	if t.state.UserProfile.Name != "" && t.state.UserProfile.Age != nil {
		return
	}
	result := p.Tools.Call(ctx, "get_user_data", map[string]interface{}{"conversation_id": t.conversationID})
	if name, ok := result["name"].(string); ok && t.state.UserProfile.Name == "" {
		t.state.UserProfile.Name = name
	}
	if age, ok := toInt(result["age"]); ok && t.state.UserProfile.Age == nil {
		t.state.UserProfile.Age = &age
	}
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func (p *Pipeline) runScenariosLinear(ctx context.Context, t *turn) (contextParts, applied []string) {
	if p.Scenarios == nil {
		return nil, nil
	}
	now := time.Now()
	for _, def := range p.Scenarios.All() {
		if !def.Enabled {
			continue
		}
		result := scenario.RunMap(ctx, def, t.state, p.Tools)
		if result == nil {
			continue
		}

		var texts []string
		for _, block := range result.InstructionBlocks {
			if block.Kind == model.KindRaw && block.Text != "" {
				texts = append(texts, block.Text)
			}
		}
		if len(texts) == 0 {
			continue
		}

		contextParts = append(contextParts, strings.Join(texts, "\n"))
		applied = append(applied, def.Name)
		t.state.ScenarioRuns = append(t.state.ScenarioRuns, model.ScenarioRun{
			Name: def.Name, AtMessageIndex: t.state.MessageIndex, Timestamp: now,
		})
	}
	return contextParts, applied
}

// buildV01Messages is prompting_v0_1.PromptBuilder.build_prompt's shape:
// one system block with dialog params, scenario_context and kb context
// inline — no dialog_summary section, since v0.1 never summarizes.
func buildV01Messages(t *turn, scenarioContext string) []llmgw.Message {
	var b strings.Builder
	b.WriteString(systemPreamble)
	b.WriteString("\n\n## assistant_meta\nconversation_id: " + t.conversationID)
	b.WriteString(fmt.Sprintf("\n\n## dialog_params\nmessage_index: %d", t.state.MessageIndex))

	tail := dialogTail(t.history, t.userMessage)
	if len(tail) > 0 {
		b.WriteString("\n\n## dialog_tail")
		for _, item := range tail {
			b.WriteString(fmt.Sprintf("\n%s: %s", item.Role, item.Content))
		}
	}

	if scenarioContext != "" {
		b.WriteString("\n\n## scenario_context\n" + scenarioContext)
	}
	b.WriteString("\n\n## context\n" + renderChunks(t.chunks))

	return []llmgw.Message{
		{Role: "system", Content: b.String()},
		{Role: "user", Content: t.userMessage},
	}
}

// degradedAnswer mirrors orchestrator_v0_1.py's except-branch: a short
// apology whose stated reason narrows by upstream failure kind, so a
// v0.1 turn never aborts on an LLM error.
func degradedAnswer(err error) string {
	msg := strings.ToLower(err.Error())
	var reason string
	switch {
	case containsAny(msg, "401", "unauthorized", "invalid api key", "authentication"):
		reason = "a problem with the access token or authentication"
	case containsAny(msg, "429", "rate limit", "too many requests", "quota"):
		reason = "a temporary rate limit on the LLM service"
	case containsAny(msg, "timeout", "timed out", "connection", "network"):
		reason = "a network issue or connection timeout reaching the LLM service"
	default:
		reason = "an internal error on the LLM service side"
	}
	return fmt.Sprintf("I can't get an answer from the model right now, because of %s. Please try again shortly.", reason)
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
