// Package scenario implements the Scenario Engine (C6): per-scenario map
// execution over a branching node DAG, first-writer-wins fact reduction,
// LLM-backed condition-decide, and imperative-summary compression.
// Grounded on original_source/chat_app/pipelines/v1_0/subgraphs/scenario_engine.go
// and tools_subgraph.py.
package scenario

import (
	"fmt"
	"regexp"
	"strings"
)

var templatePattern = regexp.MustCompile(`\{=([^=]+)=\}`)

// DialogContext supplies the dialog.* template fields.
type DialogContext struct {
	UserName     string
	UserAge      *int
	MessageIndex int
}

// renderTemplate substitutes every {=EXPR=} placeholder in text. EXPR is
// either @tool or @tool.field (a tool-result lookup) or dialog.name,
// dialog.age, dialog.message_index. Anything else, or a lookup that
// resolves to nothing, becomes the literal string "finderror".
func renderTemplate(text string, dialog DialogContext, toolResults map[string]map[string]interface{}) string {
	return templatePattern.ReplaceAllStringFunc(text, func(match string) string {
		expr := strings.TrimSpace(templatePattern.FindStringSubmatch(match)[1])

		if strings.HasPrefix(expr, "@") {
			return renderToolExpr(expr[1:], toolResults)
		}
		if strings.HasPrefix(expr, "dialog.") {
			return renderDialogExpr(strings.TrimPrefix(expr, "dialog."), dialog)
		}
		return "finderror"
	})
}

// ExtractTemplateRefs returns every {=EXPR=} placeholder body found in
// text, trimmed. Exported so the SGR converter's static validation (C9)
// can check template/tool references against the same tokenizer the
// engine itself renders with, rather than a second regex.
func ExtractTemplateRefs(text string) []string {
	matches := templatePattern.FindAllStringSubmatch(text, -1)
	refs := make([]string, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, strings.TrimSpace(m[1]))
	}
	return refs
}

func renderToolExpr(inner string, toolResults map[string]map[string]interface{}) string {
	parts := strings.SplitN(inner, ".", 2)
	toolName := parts[0]
	data := toolResults[toolName]

	if len(parts) == 1 {
		if len(data) == 0 {
			return "finderror"
		}
		return fmt.Sprintf("%v", data)
	}
	value, ok := data[parts[1]]
	if !ok || value == nil {
		return "finderror"
	}
	return fmt.Sprintf("%v", value)
}

func renderDialogExpr(key string, dialog DialogContext) string {
	switch key {
	case "name":
		if dialog.UserName == "" {
			return "finderror"
		}
		return dialog.UserName
	case "age":
		if dialog.UserAge == nil {
			return "finderror"
		}
		return fmt.Sprintf("%d", *dialog.UserAge)
	case "message_index":
		return fmt.Sprintf("%d", dialog.MessageIndex)
	default:
		return "finderror"
	}
}

// tryEvalMessageIndexCondition best-effort evaluates conditions that
// reference dialog.message_index directly, including the two Russian
// fixed phrasings ("первое сообщение" / "не первое сообщение") the
// original scenarios were authored with. Returns nil when the condition
// can't be resolved deterministically and must fall through to the
// LLM condition-decide step instead.
func tryEvalMessageIndexCondition(condition string, messageIndex int) *bool {
	text := strings.TrimSpace(condition)
	if text == "" {
		return nil
	}
	lowered := strings.ToLower(text)

	truth := func(b bool) *bool { return &b }

	if strings.Contains(lowered, "не перв") && strings.Contains(lowered, "сообщ") {
		return truth(messageIndex != 1)
	}
	if strings.Contains(lowered, "перв") && strings.Contains(lowered, "сообщ") {
		return truth(messageIndex == 1)
	}

	m := messageIndexExprPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	op := m[1]
	var rhs int
	if _, err := fmt.Sscanf(m[2], "%d", &rhs); err != nil {
		return nil
	}

	switch op {
	case "==":
		return truth(messageIndex == rhs)
	case "!=":
		return truth(messageIndex != rhs)
	case "<":
		return truth(messageIndex < rhs)
	case "<=":
		return truth(messageIndex <= rhs)
	case ">":
		return truth(messageIndex > rhs)
	case ">=":
		return truth(messageIndex >= rhs)
	default:
		return nil
	}
}

var messageIndexExprPattern = regexp.MustCompile(`(?i)\b(?:dialog\.)?message_index\s*(==|!=|<=|>=|<|>)\s*(\d+)\b`)
