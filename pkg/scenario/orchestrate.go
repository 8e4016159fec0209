package scenario

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/sipeed/picoclaw/pkg/llmgw"
	"github.com/sipeed/picoclaw/pkg/model"
)

// Run executes the full scenario engine for one turn: map every enabled
// scenario concurrently, reduce their results, resolve conditional
// blocks via condition-decide, then compress the surviving raw text
// into imperatives. This is the tools_subgraph the turn pipeline's
// runScenarioEngine stage invokes.
func Run(ctx context.Context, scenarios []model.ScenarioDefinition, conv *model.ConversationState, tools ToolCaller, gw *llmgw.Gateway, opts llmgw.ChatOptions, userMessage string) *model.ToolsContext {
	enabled := make([]model.ScenarioDefinition, 0, len(scenarios))
	for _, s := range scenarios {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}
	if len(enabled) == 0 {
		return model.NewToolsContext()
	}

	results := make([]*MapResult, len(enabled))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range enabled {
		i, s := i, s
		g.Go(func() error {
			results[i] = RunMap(gctx, s, conv, tools)
			return nil
		})
	}
	_ = g.Wait()

	reduced := Reduce(results)

	scenarioNames := make([]string, 0, len(results))
	for _, r := range results {
		if r != nil {
			scenarioNames = append(scenarioNames, r.ScenarioName)
		}
	}

	decidedBlocks, scenarioDecisions, sourcesWithCondition := DecideConditions(ctx, gw, opts, userMessage, conv.MessageIndex, reduced.Facts, reduced.InstructionBlocks)

	return SummarizeToImperatives(ctx, gw, opts, userMessage, conv.UserProfile, reduced.Facts, scenarioNames, sourcesWithCondition, scenarioDecisions, decidedBlocks)
}
