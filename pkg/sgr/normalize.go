package sgr

import (
	"regexp"
	"strings"

	"github.com/sipeed/picoclaw/pkg/scenario"
	"github.com/sipeed/picoclaw/pkg/tools"
)

var (
	emojiPattern  = regexp.MustCompile(`[\x{2600}-\x{27BF}\x{1F300}-\x{1FAFF}]+`)
	spacesPattern = regexp.MustCompile(`[ \t]+`)
	blankPattern  = regexp.MustCompile(`\n{3,}`)
)

// cleanText mirrors pipeline.py's _clean_text/_strip_emojis applied to
// every intent, condition, template and missing-tool reason the LLM
// stages hand back: normalize newlines, drop stray code fences and
// emoji, and collapse runs of whitespace.
func cleanText(s string) string {
	t := strings.ReplaceAll(s, "\r\n", "\n")
	t = strings.TrimSpace(t)
	t = strings.ReplaceAll(t, "```", "")
	t = strings.TrimSpace(t)
	t = emojiPattern.ReplaceAllString(t, "")
	t = strings.TrimSpace(t)
	t = spacesPattern.ReplaceAllString(t, " ")
	t = blankPattern.ReplaceAllString(t, "\n\n")
	return strings.TrimSpace(t)
}

func cleanStep1(step1 *Step1ExtractIntents) {
	step1.NormalizedText = cleanText(step1.NormalizedText)
	for i := range step1.Intents {
		step1.Intents[i].Text = cleanText(step1.Intents[i].Text)
	}
}

func cleanStep2(step2 *Step2GateAndCritique) {
	for i := range step2.Intents {
		step2.Intents[i].Text = cleanText(step2.Intents[i].Text)
	}
	for i := range step2.Conditions {
		step2.Conditions[i].ConditionText = cleanText(step2.Conditions[i].ConditionText)
	}
}

func cleanStep3(step3 *Step3ToolsAndTemplates) {
	for i := range step3.Templates {
		step3.Templates[i].Text = cleanText(step3.Templates[i].Text)
	}
	for i := range step3.MissingTools {
		step3.MissingTools[i].Reason = cleanText(step3.MissingTools[i].Reason)
	}
}

// extractToolRefs returns the tool names referenced by {=@tool=} or
// {=@tool.field=} placeholders in text, reusing the engine's own
// tokenizer (scenario.ExtractTemplateRefs) rather than a second regex.
func extractToolRefs(text string) []string {
	var refs []string
	for _, expr := range scenario.ExtractTemplateRefs(text) {
		if !strings.HasPrefix(expr, "@") {
			continue
		}
		name := strings.TrimSpace(strings.SplitN(expr[1:], ".", 2)[0])
		if name != "" {
			refs = append(refs, name)
		}
	}
	return refs
}

// applyToolPolicy is pipeline.py's "Hard policy: do not let LLM invent
// tool names" plus its auto-add pass, in order: first drop any
// tools_to_call/depends_on_tool name the LLM invented that isn't in
// availableTools, then walk every template and intent for {=@tool...=}
// references and force those tools into tools_to_call even if the LLM
// forgot to list them — so a template that depends on a tool's result
// always gets that tool actually scheduled, and a hallucinated tool name
// never survives into an assembled NodeTool.
func applyToolPolicy(step2 *Step2GateAndCritique, step3 *Step3ToolsAndTemplates, availableTools []tools.ToolSpec) {
	known := map[string]struct{}{}
	for _, spec := range availableTools {
		known[spec.Name] = struct{}{}
	}

	var filtered []string
	for _, name := range step3.ToolsToCall {
		if _, ok := known[name]; ok {
			filtered = append(filtered, name)
		}
	}
	step3.ToolsToCall = filtered

	for i, t := range step3.Templates {
		if t.DependsOnTool != nil {
			if _, ok := known[*t.DependsOnTool]; !ok {
				step3.Templates[i].DependsOnTool = nil
			}
		}
	}

	var missing []MissingTool
	for _, m := range step3.MissingTools {
		if strings.TrimSpace(m.Name) != "" {
			missing = append(missing, m)
		}
	}
	step3.MissingTools = missing

	var templates []TemplatePlan
	for _, t := range step3.Templates {
		if strings.TrimSpace(t.Text) != "" {
			templates = append(templates, t)
		}
	}
	step3.Templates = templates

	seen := map[string]struct{}{}
	var needed []string
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		needed = append(needed, name)
	}

	for _, name := range step3.ToolsToCall {
		add(name)
	}
	for _, t := range step3.Templates {
		if t.DependsOnTool != nil {
			add(*t.DependsOnTool)
		}
		for _, name := range extractToolRefs(t.Text) {
			add(name)
		}
	}
	for _, intent := range step2.Intents {
		for _, name := range extractToolRefs(intent.Text) {
			add(name)
		}
	}

	var finalTools []string
	for _, name := range needed {
		if _, ok := known[name]; ok {
			finalTools = append(finalTools, name)
		}
	}
	step3.ToolsToCall = finalTools
}
