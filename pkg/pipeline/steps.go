package pipeline

import (
	"context"
	"time"

	"github.com/sipeed/picoclaw/pkg/llmgw"
	"github.com/sipeed/picoclaw/pkg/logger"
	"github.com/sipeed/picoclaw/pkg/model"
	"github.com/sipeed/picoclaw/pkg/scenario"
	"github.com/sipeed/picoclaw/pkg/summarizer"
)

// loadState reads the conversation's durable state and history, and
// starts the turn with a fresh empty ToolsContext and a reset judge
// attempt counter — every turn begins judge_attempts at 0 regardless of
// what a prior turn left behind.
func (p *Pipeline) loadState(ctx context.Context, t *turn) error {
	state, err := p.Store.GetState(ctx, t.conversationID)
	if err != nil {
		return err
	}
	history, err := p.Store.GetHistory(ctx, t.conversationID)
	if err != nil {
		return err
	}
	t.state = state
	t.history = history
	t.tools = model.NewToolsContext()
	t.judgeAttempts = 0
	return nil
}

// appendUser advances message_index, appends the user's HistoryItem, and
// reloads the history snapshot so later steps (build_messages in
// particular) see the item they just appended in its proper position.
func (p *Pipeline) appendUser(ctx context.Context, t *turn) error {
	t.state.MessageIndex++
	item := model.HistoryItem{Role: model.RoleUser, Content: t.userMessage, Timestamp: time.Now()}
	if err := p.Store.AppendHistory(ctx, t.conversationID, item); err != nil {
		return err
	}
	history, err := p.Store.GetHistory(ctx, t.conversationID)
	if err != nil {
		return err
	}
	t.history = history
	return nil
}

// retrieve fetches knowledge-base chunks for the turn's user message.
// retrieval.Client never fails a turn on upstream trouble — it degrades
// to a local index or an empty slice internally — so this step has no
// error return.
func (p *Pipeline) retrieve(ctx context.Context, t *turn) {
	if p.Retrieval == nil {
		return
	}
	t.chunks = p.Retrieval.Search(ctx, t.userMessage)
}

// runScenarioEngine runs the scenario engine (C6) over every enabled
// scenario and stores its compiled ToolsContext for build_messages to
// consume.
func (p *Pipeline) runScenarioEngine(ctx context.Context, t *turn) {
	if p.Scenarios == nil {
		return
	}
	all := p.Scenarios.All()
	defs := make([]model.ScenarioDefinition, 0, len(all))
	for _, def := range all {
		defs = append(defs, def)
	}

	tc := scenario.Run(ctx, defs, t.state, p.Tools, p.Gateway, llmgw.ChatOptions{Model: p.Config.ConditionModel}, t.userMessage)
	if tc == nil {
		tc = model.NewToolsContext()
	}
	t.tools = tc

	now := time.Now()
	for _, a := range tc.Applied {
		t.state.ScenarioRuns = append(t.state.ScenarioRuns, model.ScenarioRun{
			Name:           a.Name,
			AtMessageIndex: t.state.MessageIndex,
			Timestamp:      now,
		})
	}
}

// generate calls llm_generate: a plain-text completion at temperature 0.1
// with the configured generate model. Per spec §7, a generation failure
// degrades to a user-facing apology rather than aborting the turn —
// append_user has already advanced message_index and persisted the
// user's history item, so aborting here would leave ConversationState
// out of step with history on this conversation. Same degradedAnswer
// classification v0.1 uses, so both pipeline versions apologize in the
// same terms.
func (p *Pipeline) generate(ctx context.Context, t *turn) {
	answer, err := p.Gateway.Chat(ctx, t.messages, llmgw.ChatOptions{Temperature: 0.1, Model: p.Config.GenerateModel})
	if err != nil {
		logger.ErrorCF("pipeline", "llm_generate failed, degrading to an apology", map[string]interface{}{"conversation_id": t.conversationID, "error": err.Error()})
		t.answer = degradedAnswer(err)
		t.degraded = true
		return
	}
	t.answer = answer
}

// persistAnswer appends the assistant's HistoryItem and saves state —
// the assistant item is appended only here, after the judge loop settles,
// per spec's P2 ordering guarantee (user before any assistant, assistant
// only after persist_answer).
func (p *Pipeline) persistAnswer(ctx context.Context, t *turn) error {
	item := model.HistoryItem{Role: model.RoleAssistant, Content: t.answer, Timestamp: time.Now()}
	if err := p.Store.AppendHistory(ctx, t.conversationID, item); err != nil {
		return err
	}
	return p.Store.SaveState(ctx, t.state)
}

// launchSummary schedules the Summarizer as fire-and-forget against the
// same conversation id via the detached task runner, so it outlives the
// turn's own context and its failure never surfaces to the caller.
func (p *Pipeline) launchSummary(t *turn) {
	if p.Tasks == nil {
		return
	}
	id := t.conversationID
	p.Tasks.Go("pipeline", "launch_summary", func(ctx context.Context) error {
		summarizer.Summarize(ctx, p.Store, p.Gateway, id, llmgw.ChatOptions{Model: p.Config.SummaryModel})
		return nil
	})
}
