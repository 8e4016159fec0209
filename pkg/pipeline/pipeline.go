// Package pipeline implements the Turn Pipeline v1.0 (C7): the fixed
// sequence that wires retrieval, scenario compilation, prompt assembly,
// generation, judge evaluation with a bounded revise loop, persistence and
// fire-and-forget summarization. Grounded on the teacher's
// pkg/agent/loop.go staged-method structure, generalized from "tool-calling
// iteration" to "retrieval → scenario → generate → judge" staging; no
// general-purpose graph engine, per spec's own design note that this is a
// fixed DAG with one bounded loop.
package pipeline

import (
	"context"

	"github.com/sipeed/picoclaw/pkg/llmgw"
	"github.com/sipeed/picoclaw/pkg/memory"
	"github.com/sipeed/picoclaw/pkg/model"
	"github.com/sipeed/picoclaw/pkg/registry"
	"github.com/sipeed/picoclaw/pkg/retrieval"
	"github.com/sipeed/picoclaw/pkg/scenario"
	"github.com/sipeed/picoclaw/pkg/summarizer"
	"github.com/sipeed/picoclaw/pkg/taskrunner"
)

const maxJudgeAttempts = 2

// Config holds the model names and sampling parameters the pipeline's LLM
// steps use. Left as plain fields rather than a generic options bag since
// every field is read exactly once, by exactly one step.
type Config struct {
	GenerateModel  string
	ConditionModel string
	JudgeModel     string
	ReviseModel    string
	SummaryModel   string
}

// Resolved cascades every unset per-role model to GenerateModel, per
// spec's "Defaults cascade: unset → llm_model."
func (c Config) Resolved() Config {
	if c.ConditionModel == "" {
		c.ConditionModel = c.GenerateModel
	}
	if c.JudgeModel == "" {
		c.JudgeModel = c.GenerateModel
	}
	if c.ReviseModel == "" {
		c.ReviseModel = c.GenerateModel
	}
	if c.SummaryModel == "" {
		c.SummaryModel = c.GenerateModel
	}
	return c
}

// Pipeline wires the components a turn touches. Every dependency is an
// interface or a concurrency-safe value, so Pipeline itself is safe for
// concurrent RunTurn calls across distinct conversation ids — ordering
// within one conversation id is the caller's responsibility (spec's
// "serialize on conversation id" requirement), not this type's.
type Pipeline struct {
	Store      memory.Store
	Scenarios  *registry.ScenarioRegistry
	Tools      scenario.ToolCaller
	Retrieval  *retrieval.Client
	Gateway    *llmgw.Gateway
	Tasks      *taskrunner.Runner
	Config     Config
}

// Response is what RunTurn returns to the caller, matching spec §4.7's
// Response shape exactly.
type Response struct {
	ConversationID  string        `json:"conversation_id"`
	Answer          string        `json:"answer"`
	Chunks          []model.Chunk `json:"chunks"`
	LastStepScenario string       `json:"last_step_scenario"`
}

// turn carries the mutable state one RunTurn call threads through its
// steps — load_state's ToolsContext, build_messages' prompt, the working
// answer, and the judge loop's attempt counter.
type turn struct {
	conversationID string
	userMessage    string

	state   *model.ConversationState
	history []model.HistoryItem
	chunks  []model.Chunk
	tools   *model.ToolsContext

	messages []llmgw.Message
	answer   string
	degraded bool

	judgeAttempts int
}

// RunTurn executes the fixed sequence: load_state → append_user →
// retrieval → scenario_engine → build_messages → llm_generate →
// judge_evaluate → (judge_revise → judge_evaluate)* → persist_answer →
// launch_summary. Turns against the same conversationID must be
// serialized by the caller; RunTurn does not serialize them itself.
func (p *Pipeline) RunTurn(ctx context.Context, conversationID, message string) (*Response, error) {
	t := &turn{conversationID: conversationID, userMessage: message}

	if err := p.loadState(ctx, t); err != nil {
		return nil, err
	}
	if err := p.appendUser(ctx, t); err != nil {
		return nil, err
	}

	p.retrieve(ctx, t)
	p.runScenarioEngine(ctx, t)
	p.buildMessages(t)

	p.generate(ctx, t)

	for !t.degraded {
		decision, err := p.judgeEvaluate(ctx, t)
		if err != nil {
			break
		}
		if decision.Action != model.JudgeRevise || t.judgeAttempts >= maxJudgeAttempts {
			break
		}
		if err := p.judgeRevise(ctx, t, decision); err != nil {
			break
		}
	}

	if err := p.persistAnswer(ctx, t); err != nil {
		return nil, err
	}
	p.launchSummary(t)

	return &Response{
		ConversationID:   t.conversationID,
		Answer:           t.answer,
		Chunks:           t.chunks,
		LastStepScenario: appliedNames(t.tools),
	}, nil
}

func appliedNames(tc *model.ToolsContext) string {
	if tc == nil {
		return ""
	}
	seen := map[string]struct{}{}
	var names []string
	for _, a := range tc.Applied {
		if _, ok := seen[a.Name]; ok {
			continue
		}
		seen[a.Name] = struct{}{}
		names = append(names, a.Name)
	}
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}
