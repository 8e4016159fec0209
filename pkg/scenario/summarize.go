package scenario

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sipeed/picoclaw/pkg/llmgw"
	"github.com/sipeed/picoclaw/pkg/model"
)

var summarizeSystem = "You are the module that compresses a support-chat scenario into short imperative instructions for the main agent.\n" +
	"Input: scenario text fragments (already template-substituted) plus context about the user.\n" +
	"Output: short mandatory instructions, no explanations, no filler.\n" +
	"The instructions must preserve the scenario's meaning and be applicable when answering the current user message.\n" +
	"If the scenario adds nothing useful to the answer, return an empty list.\n" +
	"Return STRICT JSON:\n" +
	"{\n" +
	"  \"agent_imperatives\": [\"...\"],\n" +
	"  \"judge_rules\": [\"...\"]\n" +
	"}\n" +
	"Rules:\n" +
	"- agent_imperatives: 0..8 lines, each a short imperative command, no filler.\n" +
	"- judge_rules: 0..8 lines, rules for an LLM judge on how to check the answer, no filler.\n" +
	"- Do not repeat the scenario's source text verbatim; compress it if it is verbose.\n" +
	"- Do not invent new facts.\n" +
	"- If the user's name is known, require addressing them by name and state the name itself.\n" +
	"- Do not use emoji.\n"

var summarizeSchema = map[string]interface{}{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"agent_imperatives", "judge_rules"},
	"properties": map[string]interface{}{
		"agent_imperatives": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"judge_rules":       map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
	},
}

// enablePolicy returns, for each scenario name, whether its raw text
// should feed summarize-to-imperatives (enabledForSummarize) and whether
// anything of it should survive at all (enabledOverall). A scenario
// whose decisions are all "ignore" contributes nothing; one whose only
// resolved decision is "unknown" keeps its followup and judge-rule
// blocks but none of its raw text; one with no conditional blocks at
// all has its raw text summarized like a true/false scenario.
func enablePolicy(scenarioNames, sourcesWithCondition []string, scenarioDecisions map[string][]string) (forSummarize, overall map[string]bool) {
	withCondition := map[string]struct{}{}
	for _, s := range sourcesWithCondition {
		withCondition[s] = struct{}{}
	}

	forSummarize = map[string]bool{}
	overall = map[string]bool{}
	for _, name := range scenarioNames {
		dec := map[string]struct{}{}
		for _, d := range scenarioDecisions[name] {
			dec[d] = struct{}{}
		}
		_, hasTrue := dec[string(DecisionTrue)]
		_, hasFalse := dec[string(DecisionFalse)]
		_, hasUnknown := dec[string(DecisionUnknown)]
		_, hasCondition := withCondition[name]

		switch {
		case hasTrue || hasFalse:
			forSummarize[name] = true
			overall[name] = true
		case hasUnknown:
			overall[name] = true
		case !hasCondition:
			forSummarize[name] = true
			overall[name] = true
		}
	}
	return forSummarize, overall
}

// SummarizeToImperatives compresses every scenario's raw, agent-targeted
// text blocks into <=8 imperative lines and <=8 judge rules, dropping
// scenarios the decide step ruled out and falling back to the first
// three raw lines verbatim when the LLM returns nothing usable.
func SummarizeToImperatives(ctx context.Context, gw *llmgw.Gateway, opts llmgw.ChatOptions, userMessage string, profile model.UserProfile, facts map[string]map[string]interface{}, scenarioNames, sourcesWithCondition []string, scenarioDecisions map[string][]string, blocks []model.InstructionBlock) *model.ToolsContext {
	forSummarize, overall := enablePolicy(scenarioNames, sourcesWithCondition, scenarioDecisions)

	filtered := blocks
	if len(scenarioNames) > 0 {
		inScenarios := map[string]struct{}{}
		for _, n := range scenarioNames {
			inScenarios[n] = struct{}{}
		}

		filtered = filtered[:0:0]
		for _, b := range blocks {
			src := strings.TrimSpace(b.Source)
			_, inSet := inScenarios[src]
			if inSet && !overall[src] {
				continue
			}
			if inSet && overall[src] && !forSummarize[src] && b.Target == model.TargetAgent && b.Kind == model.KindRaw {
				continue
			}
			filtered = append(filtered, b)
		}
	}

	var rawBlocks []model.InstructionBlock
	for _, b := range filtered {
		if b.Target == model.TargetAgent && b.Kind == model.KindRaw && strings.TrimSpace(b.Text) != "" {
			rawBlocks = append(rawBlocks, b)
		}
	}

	if len(rawBlocks) == 0 {
		out := finalizeApplied(filtered, scenarioNames)
		out.Facts = facts
		return out
	}

	bySource := map[string][]string{}
	var order []string
	for _, b := range rawBlocks {
		src := strings.TrimSpace(b.Source)
		if src == "" {
			src = "unknown_scenario"
		}
		if len(scenarioNames) > 0 {
			if _, inSet := contains(scenarioNames, src); inSet && !forSummarize[src] {
				continue
			}
		}
		if _, ok := bySource[src]; !ok {
			order = append(order, src)
		}
		bySource[src] = append(bySource[src], strings.TrimSpace(b.Text))
	}

	type summarized struct {
		source       string
		imperatives  []string
		judgeRules   []string
	}
	results := make([]summarized, len(order))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range order {
		i, src, texts := i, src, bySource[src]
		g.Go(func() error {
			imperatives, rules := summarizeOne(gctx, gw, opts, src, userMessage, profile, texts)
			results[i] = summarized{source: src, imperatives: imperatives, judgeRules: rules}
			return nil
		})
	}
	_ = g.Wait()

	var keepBlocks []model.InstructionBlock
	for _, b := range filtered {
		if b.Target == model.TargetAgent && b.Kind == model.KindRaw {
			continue
		}
		keepBlocks = append(keepBlocks, b)
	}
	outBlocks := keepBlocks

	for _, r := range results {
		imperatives := r.imperatives
		if len(imperatives) == 0 {
			imperatives = truncate(bySource[r.source], 3)
		}
		for idx, text := range truncate(imperatives, 8) {
			outBlocks = append(outBlocks, model.InstructionBlock{
				ID: fmt.Sprintf("scenario:%s:imperative:%d", r.source, idx+1), Source: r.source,
				Target: model.TargetAgent, Kind: model.KindRequired, Priority: 10, Text: text,
			})
		}
		for idx, text := range truncate(r.judgeRules, 8) {
			outBlocks = append(outBlocks, model.InstructionBlock{
				ID: fmt.Sprintf("scenario:%s:judge_rule:summarized:%d", r.source, idx+1), Source: r.source,
				Target: model.TargetJudge, Kind: model.KindRule, Priority: 10, Text: text,
			})
		}
	}

	out := finalizeApplied(outBlocks, scenarioNames)
	out.Facts = facts
	return out
}

func summarizeOne(ctx context.Context, gw *llmgw.Gateway, opts llmgw.ChatOptions, source, userMessage string, profile model.UserProfile, texts []string) (imperatives, judgeRules []string) {
	var lines strings.Builder
	for i, t := range truncate(texts, 50) {
		fmt.Fprintf(&lines, "%d. %s\n", i+1, t)
	}

	age := ""
	if profile.Age != nil {
		age = fmt.Sprintf("%d", *profile.Age)
	}

	user := fmt.Sprintf(
		"Scenario: %s\n\nLatest user message:\n%s\n\nKnown facts about the user:\n- name: %s\n- age: %s\nScenario text fragments (after substitution):\n%s",
		source, userMessage, profile.Name, age, lines.String(),
	)

	data, err := gw.ChatJSON(ctx, []llmgw.Message{
		{Role: "system", Content: summarizeSystem},
		{Role: "user", Content: user},
	}, summarizeSchema, "scenario_imperatives", opts)
	if err != nil {
		return nil, nil
	}

	return cleanStrings(data["agent_imperatives"]), cleanStrings(data["judge_rules"])
}

func cleanStrings(v interface{}) []string {
	items := toStringSlice(v)
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func contains(items []string, target string) (int, bool) {
	for i, s := range items {
		if s == target {
			return i, true
		}
	}
	return -1, false
}

func finalizeApplied(blocks []model.InstructionBlock, scenarioNames []string) *model.ToolsContext {
	inScenarios := map[string]struct{}{}
	for _, n := range scenarioNames {
		inScenarios[n] = struct{}{}
	}

	appliedSet := map[string]struct{}{}
	for _, b := range blocks {
		src := strings.TrimSpace(b.Source)
		if src == "" {
			continue
		}
		if _, ok := inScenarios[src]; len(scenarioNames) > 0 && !ok {
			continue
		}
		if b.Target == model.TargetAgent && b.Kind == model.KindRequired {
			appliedSet[src] = struct{}{}
		}
	}

	applied := make([]string, 0, len(appliedSet))
	for s := range appliedSet {
		applied = append(applied, s)
	}
	sort.Strings(applied)

	appliedEntries := make([]model.AppliedEntry, len(applied))
	for i, s := range applied {
		appliedEntries[i] = model.AppliedEntry{Kind: "scenario", Name: s}
	}

	return &model.ToolsContext{Facts: map[string]map[string]interface{}{}, InstructionBlocks: blocks, Applied: appliedEntries}
}
