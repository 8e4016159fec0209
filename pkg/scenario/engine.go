package scenario

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/sipeed/picoclaw/pkg/model"
)

// ToolCaller is the subset of tools.Registry the scenario engine needs.
type ToolCaller interface {
	Call(ctx context.Context, name string, args map[string]interface{}) map[string]interface{}
}

// MapResult is one scenario's contribution to a turn: the facts it
// resolved and the instruction blocks it produced. Nil when the scenario
// was gated out or produced nothing at all.
type MapResult struct {
	ScenarioName      string
	Facts             map[string]map[string]interface{}
	InstructionBlocks []model.InstructionBlock
}

const judgeRuleText = "Verify that conditional scenario instructions were applied only on an explicit confirmation in the user's message. " +
	"Do not allow when_false to be applied by default when the situation is ambiguous."

var applyPolicy = map[string]interface{}{
	"relevance_gate": "If the message is not on the condition's topic, ignore this block entirely.",
	"true_gate":      "Treat the condition as TRUE only if the message explicitly establishes it holds.",
	"false_gate":     "Treat the condition as FALSE only if the message explicitly establishes it does not hold, while staying on topic.",
	"unknown_gate":   "If the topic is mentioned but TRUE/FALSE isn't clear, don't apply when_false by default — prefer ignoring the block.",
}

// mapper runs one scenario's node program against the turn's state.
type mapper struct {
	ctx      context.Context
	scenario model.ScenarioDefinition
	conv     *model.ConversationState
	tools    ToolCaller

	facts  map[string]map[string]interface{}
	blocks []model.InstructionBlock
}

// RunMap walks scenario's node program, resolving tools and rendering
// instruction blocks. Returns nil when the scenario is gated out by
// apply_only_message_index or produces neither facts nor blocks.
func RunMap(ctx context.Context, scenario model.ScenarioDefinition, conv *model.ConversationState, tools ToolCaller) *MapResult {
	if required, ok := scenario.ApplyOnlyMessageIndex(); ok && conv.MessageIndex != required {
		return nil
	}

	m := &mapper{
		ctx:      ctx,
		scenario: scenario,
		conv:     conv,
		tools:    tools,
		facts:    map[string]map[string]interface{}{},
		blocks:   []model.InstructionBlock{},
	}
	m.processNodes(scenario.Code)

	if len(m.blocks) == 0 && len(m.facts) == 0 {
		return nil
	}
	return &MapResult{ScenarioName: scenario.Name, Facts: m.facts, InstructionBlocks: m.blocks}
}

// processNodes walks nodes in dotted-id order; returns true if an `end`
// node was reached and execution of this scenario should stop.
func (m *mapper) processNodes(nodes []model.ScenarioNode) bool {
	sorted := make([]model.ScenarioNode, len(nodes))
	copy(sorted, nodes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return less(sortKey(sorted[i].ID), sortKey(sorted[j].ID))
	})

	for _, node := range sorted {
		switch node.Type {
		case model.NodeEnd:
			return true
		case model.NodeTool:
			if node.Tool != "" {
				m.ensureToolData(node.Tool)
			}
		case model.NodeText:
			if node.Text != "" {
				m.addTextBlock(node.ID, node.Text)
			}
		case model.NodeIf:
			if m.processIf(node) {
				return true
			}
		}
	}
	return false
}

func (m *mapper) processIf(node model.ScenarioNode) bool {
	decided := tryEvalMessageIndexCondition(node.Condition, m.conv.MessageIndex)
	if decided != nil {
		if *decided {
			return m.processNodes(node.Children)
		}
		return m.processNodes(node.ElseChildren)
	}
	m.addConditionalProgram(node)
	return false
}

func (m *mapper) ensureToolData(toolName string) {
	key := "tool:" + toolName
	if _, ok := m.facts[key]; ok {
		return
	}

	if toolName == "get_user_data" && m.conv.UserProfile.Name != "" && m.conv.UserProfile.Age != nil {
		m.facts[key] = map[string]interface{}{"name": m.conv.UserProfile.Name, "age": *m.conv.UserProfile.Age}
		return
	}

	result := m.tools.Call(m.ctx, toolName, map[string]interface{}{"conversation_id": m.conv.ConversationID})
	m.facts[key] = result

	if toolName == "get_user_data" {
		if m.conv.UserProfile.Name == "" {
			if name, ok := result["name"].(string); ok {
				m.conv.UserProfile.Name = name
			}
		}
		if m.conv.UserProfile.Age == nil {
			if age, ok := toInt(result["age"]); ok {
				m.conv.UserProfile.Age = &age
			}
		}
	}
}

func (m *mapper) dialogContext() DialogContext {
	return DialogContext{UserName: m.conv.UserProfile.Name, UserAge: m.conv.UserProfile.Age, MessageIndex: m.conv.MessageIndex}
}

func (m *mapper) toolResultsUnprefixed() map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{}, len(m.facts))
	for k, v := range m.facts {
		out[strings.TrimPrefix(k, "tool:")] = v
	}
	return out
}

func (m *mapper) addTextBlock(nodeID, text string) {
	rendered := renderTemplate(text, m.dialogContext(), m.toolResultsUnprefixed())
	m.blocks = append(m.blocks, model.InstructionBlock{
		ID:       "scenario:" + m.scenario.Name + ":text:" + nodeID,
		Source:   m.scenario.Name,
		Target:   model.TargetAgent,
		Kind:     model.KindRaw,
		Priority: 10,
		Text:     rendered,
		Payload:  map[string]interface{}{"node_id": nodeID, "node_type": "text"},
	})
}

func (m *mapper) addConditionalProgram(node model.ScenarioNode) {
	toolResults := m.toolResultsUnprefixed()
	dialog := m.dialogContext()

	trueTexts := collectTextChildren(node.Children, dialog, toolResults)
	falseTexts := collectTextChildren(node.ElseChildren, dialog, toolResults)

	m.blocks = append(m.blocks, model.InstructionBlock{
		ID:       "scenario:" + m.scenario.Name + ":if:" + node.ID,
		Source:   m.scenario.Name,
		Target:   model.TargetAgent,
		Kind:     model.KindConditional,
		Priority: 10,
		Payload: map[string]interface{}{
			"condition_id": node.ID,
			"condition":    node.Condition,
			"when_true":    trueTexts,
			"when_false":   falseTexts,
			"apply_policy": applyPolicy,
			"condition_text": node.Condition,
		},
	})

	m.blocks = append(m.blocks, model.InstructionBlock{
		ID:       "scenario:" + m.scenario.Name + ":judge_rule:if:" + node.ID,
		Source:   m.scenario.Name,
		Target:   model.TargetJudge,
		Kind:     model.KindRule,
		Priority: 10,
		Text:     judgeRuleText,
	})
}

func collectTextChildren(nodes []model.ScenarioNode, dialog DialogContext, toolResults map[string]map[string]interface{}) []string {
	texts := make([]string, 0, len(nodes))
	for _, child := range nodes {
		if child.Type == model.NodeText && child.Text != "" {
			texts = append(texts, renderTemplate(child.Text, dialog, toolResults))
		}
	}
	return texts
}

func sortKey(id string) []int {
	parts := strings.Split(id, ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			v = 0
		}
		out[i] = v
	}
	return out
}

func less(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
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
