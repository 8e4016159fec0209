package sgr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sipeed/picoclaw/pkg/model"
	"github.com/sipeed/picoclaw/pkg/scenario"
	"github.com/sipeed/picoclaw/pkg/tools"
)

// validateScenario enforces spec §4.9's static validation: at least one
// actionable node, and — mirrored verbatim from converter.py's
// _contains_if as a detection heuristic, not translated — if the
// author's text contains the Russian conditional marker "если" the
// assembled scenario must contain an if node.
func validateScenario(s model.ScenarioDefinition, inputText string) error {
	if !hasActionableNodes(s.Code) {
		return fmt.Errorf("scenario has no actionable nodes (only end or empty actions)")
	}
	if strings.Contains(strings.ToLower(inputText), "если") && !containsIf(s.Code) {
		return fmt.Errorf("input contains 'если' but scenario has no if-nodes")
	}
	return nil
}

func hasActionableNodes(nodes []model.ScenarioNode) bool {
	for _, n := range nodes {
		switch n.Type {
		case model.NodeText, model.NodeTool, model.NodeIf:
			return true
		case model.NodeEnd:
			continue
		}
		if hasActionableNodes(n.Children) || hasActionableNodes(n.ElseChildren) {
			return true
		}
	}
	return false
}

func containsIf(nodes []model.ScenarioNode) bool {
	for _, n := range nodes {
		if n.Type == model.NodeIf {
			return true
		}
		if containsIf(n.Children) || containsIf(n.ElseChildren) {
			return true
		}
	}
	return false
}

// validateTemplateRefs walks every text node's {=EXPR=} placeholders
// (via scenario.ExtractTemplateRefs, the same tokenizer the engine
// renders with) and reports unknown tool references, unknown output
// fields, and any expression that isn't a known @tool or dialog.*
// lookup.
func validateTemplateRefs(s model.ScenarioDefinition, availableTools []tools.ToolSpec) map[string]interface{} {
	byName := map[string]tools.ToolSpec{}
	for _, t := range availableTools {
		byName[t.Name] = t
	}

	referenced := map[string]struct{}{}
	unknownTools := map[string]struct{}{}
	unknownFields := map[string]struct{}{}
	invalid := map[string]struct{}{}

	var visit func(nodes []model.ScenarioNode)
	visit = func(nodes []model.ScenarioNode) {
		for _, n := range nodes {
			if n.Type == model.NodeText && n.Text != "" {
				for _, expr := range scenario.ExtractTemplateRefs(n.Text) {
					if strings.HasPrefix(expr, "@") {
						inner := expr[1:]
						parts := strings.SplitN(inner, ".", 2)
						toolName := strings.TrimSpace(parts[0])
						if toolName == "" {
							continue
						}
						referenced[toolName] = struct{}{}
						spec, ok := byName[toolName]
						if !ok {
							unknownTools[toolName] = struct{}{}
							continue
						}
						if len(parts) == 2 {
							field := strings.TrimSpace(parts[1])
							if field != "" {
								if props, ok := spec.OutputSchema["properties"].(map[string]interface{}); ok {
									if _, ok := props[field]; !ok {
										unknownFields[toolName+"."+field] = struct{}{}
									}
								}
							}
						}
						continue
					}
					if strings.HasPrefix(expr, "dialog.") {
						continue
					}
					invalid[expr] = struct{}{}
				}
			}
			if n.Type == model.NodeIf {
				visit(n.Children)
				visit(n.ElseChildren)
			}
		}
	}
	visit(s.Code)

	return map[string]interface{}{
		"referenced_tools":     sortedKeys(referenced),
		"unknown_tools":        sortedKeys(unknownTools),
		"unknown_fields":       sortedKeys(unknownFields),
		"invalid_expressions":  sortedKeys(invalid),
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
