package sgr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sipeed/picoclaw/pkg/model"
)

type assembleInput struct {
	traceID          string
	inputText        string
	nameHint         string
	explicitElseNoop bool
	strict           bool
	step2            Step2GateAndCritique
	step3            Step3ToolsAndTemplates
}

// assemble is Step 4: the deterministic assembler. Reproduces
// converter.py's _assemble_scenario ordering exactly — tool nodes first
// (the union step3 resolved), then one text node per line of each
// unconditional intent, then one text node per global template, then one
// if node per condition (children/else_children split into atomic
// per-line text nodes), finally one end node.
func assemble(in assembleInput) (model.ScenarioDefinition, error) {
	intentByID := map[string]Intent{}
	for _, i := range in.step2.Intents {
		intentByID[i.ID] = i
	}

	tools := dedupe(in.step3.ToolsToCall)
	var templatesGlobal, templatesThen, templatesElse []TemplatePlan
	for _, t := range in.step3.Templates {
		switch t.Target {
		case "global":
			templatesGlobal = append(templatesGlobal, t)
		case "condition_then":
			templatesThen = append(templatesThen, t)
		case "condition_else":
			templatesElse = append(templatesElse, t)
		}
	}

	var code []model.ScenarioNode
	next := 1

	for _, toolName := range tools {
		code = append(code, model.ScenarioNode{ID: strconv.Itoa(next), Type: model.NodeTool, Tool: toolName})
		next++
	}

	appendTextLines := func(text string) {
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			code = append(code, model.ScenarioNode{ID: strconv.Itoa(next), Type: model.NodeText, Text: line})
			next++
		}
	}

	for _, iid := range in.step2.UnconditionalIntents {
		if intent, ok := intentByID[iid]; ok && strings.TrimSpace(intent.Text) != "" {
			appendTextLines(strings.TrimSpace(intent.Text))
		}
	}
	for _, t := range templatesGlobal {
		if strings.TrimSpace(t.Text) != "" {
			appendTextLines(strings.TrimSpace(t.Text))
		}
	}

	for _, cond := range in.step2.Conditions {
		parentID := strconv.Itoa(next)
		next++

		conditionText := strings.TrimSpace(cond.ConditionText)
		if conditionText == "" {
			return model.ScenarioDefinition{}, fmt.Errorf("condition %s has empty condition_text", cond.ID)
		}

		var thenTexts []string
		for _, iid := range cond.ThenIntents {
			if intent, ok := intentByID[iid]; ok && strings.TrimSpace(intent.Text) != "" {
				thenTexts = append(thenTexts, strings.TrimSpace(intent.Text))
			}
		}
		for _, t := range templatesThen {
			if t.ConditionID != nil && *t.ConditionID == cond.ID && strings.TrimSpace(t.Text) != "" {
				thenTexts = append(thenTexts, strings.TrimSpace(t.Text))
			}
		}

		var elseTexts []string
		for _, iid := range cond.ElseIntents {
			if intent, ok := intentByID[iid]; ok && strings.TrimSpace(intent.Text) != "" {
				elseTexts = append(elseTexts, strings.TrimSpace(intent.Text))
			}
		}
		for _, t := range templatesElse {
			if t.ConditionID != nil && *t.ConditionID == cond.ID && strings.TrimSpace(t.Text) != "" {
				elseTexts = append(elseTexts, strings.TrimSpace(t.Text))
			}
		}

		children := atomicTextNodes(parentID, 1, thenTexts)
		if len(children) == 0 && in.strict {
			return model.ScenarioDefinition{}, fmt.Errorf("condition %s has no then-actions", cond.ID)
		}

		node := model.ScenarioNode{ID: parentID, Type: model.NodeIf, Condition: conditionText, Children: children}
		if len(elseTexts) > 0 {
			node.ElseChildren = atomicTextNodes(parentID, 2, elseTexts)
		} else if in.explicitElseNoop {
			node.ElseChildren = []model.ScenarioNode{}
		}
		code = append(code, node)
	}

	code = append(code, model.ScenarioNode{ID: strconv.Itoa(next), Type: model.NodeEnd})

	return model.ScenarioDefinition{
		Name:    scenarioName(in.nameHint, in.inputText, in.traceID),
		Code:    code,
		Enabled: true,
	}, nil
}

// atomicTextNodes splits each text into trimmed non-empty lines and
// emits one text node per line, skipping branch/index nesting entirely
// when there's exactly one resulting line (parentID.branchIndex rather
// than parentID.branchIndex.1).
func atomicTextNodes(parentID string, branchIndex int, texts []string) []model.ScenarioNode {
	var cleaned []string
	for _, t := range texts {
		for _, line := range strings.Split(t, "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				cleaned = append(cleaned, line)
			}
		}
	}
	if len(cleaned) == 0 {
		return nil
	}
	if len(cleaned) == 1 {
		return []model.ScenarioNode{{ID: fmt.Sprintf("%s.%d", parentID, branchIndex), Type: model.NodeText, Text: cleaned[0]}}
	}
	nodes := make([]model.ScenarioNode, 0, len(cleaned))
	for i, txt := range cleaned {
		nodes = append(nodes, model.ScenarioNode{ID: fmt.Sprintf("%s.%d.%d", parentID, branchIndex, i+1), Type: model.NodeText, Text: txt})
	}
	return nodes
}

func dedupe(items []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}

func scenarioName(nameHint, text, traceID string) string {
	if strings.TrimSpace(nameHint) != "" {
		return strings.TrimSpace(nameHint)
	}
	base := strings.TrimSpace(text)
	if base != "" {
		base = strings.Join(strings.Fields(base), " ")
		if len(base) > 72 {
			base = base[:72]
		}
		return base
	}
	return "sgr:" + traceID
}
