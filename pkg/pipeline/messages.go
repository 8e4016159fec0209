package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sipeed/picoclaw/pkg/llmgw"
	"github.com/sipeed/picoclaw/pkg/model"
)

const dialogTailSize = 4

const systemPreamble = `You are a support-chat agent. Priority order when sources conflict: context (the retrieved knowledge-base chunks) outranks tools_context (scenario-compiled instructions) outranks dialog_summary/dialog_tail (conversation memory).

Style rules:
- No emoji.
- Never promise a future action or outcome that isn't grounded in context.
- Answer the user's actual question before anything else (clarifying questions, if any, come last).
- Write in the user's language.`

// buildMessages constructs the turn's two-message prompt following spec
// §4.7's fixed template. Grounded on pkg/agent/context.go's BuildMessages,
// carrying forward its one non-obvious defensive behavior — stripping an
// orphaned leading entry before the prompt is built — generalized from
// "drop leading tool-role messages" to "drop a duplicate trailing user
// message from dialog_tail", since dialog_tail is built from history that
// already contains the message appended by append_user.
func (p *Pipeline) buildMessages(t *turn) {
	var b strings.Builder
	b.WriteString(systemPreamble)
	b.WriteString("\n\n## assistant_meta\nconversation_id: " + t.conversationID)
	b.WriteString(fmt.Sprintf("\n\n## dialog_params\nmessage_index: %d", t.state.MessageIndex))

	if t.state.Summary != "" {
		b.WriteString("\n\n## dialog_summary\n" + t.state.Summary)
	}

	tail := dialogTail(t.history, t.userMessage)
	if len(tail) > 0 {
		b.WriteString("\n\n## dialog_tail")
		for _, item := range tail {
			b.WriteString(fmt.Sprintf("\n%s: %s", item.Role, item.Content))
		}
	}

	b.WriteString("\n\n## context\n" + renderChunks(t.chunks))

	if tc := renderToolsContext(t.tools); tc != "" {
		b.WriteString("\n\n## tools_context\n" + tc)
	}

	t.messages = []llmgw.Message{
		{Role: "system", Content: b.String()},
		{Role: "user", Content: t.userMessage},
	}
}

// dialogTail returns the last dialogTailSize history items, dropping one
// trailing item if it duplicates the current user message verbatim — the
// item append_user itself appended a moment earlier.
func dialogTail(history []model.HistoryItem, currentMessage string) []model.HistoryItem {
	items := history
	if len(items) > 0 {
		last := items[len(items)-1]
		if last.Role == model.RoleUser && last.Content == currentMessage {
			items = items[:len(items)-1]
		}
	}
	if len(items) > dialogTailSize {
		items = items[len(items)-dialogTailSize:]
	}
	return items
}

func renderChunks(chunks []model.Chunk) string {
	if len(chunks) == 0 {
		return "(no relevant knowledge-base passages found)"
	}
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("%d. %s", i+1, c.Text))
	}
	return b.String()
}

func renderToolsContext(tc *model.ToolsContext) string {
	if tc == nil {
		return ""
	}
	var required, conditional []model.InstructionBlock
	for _, block := range tc.InstructionBlocks {
		if block.Target != model.TargetAgent {
			continue
		}
		if block.Kind == model.KindConditional {
			conditional = append(conditional, block)
		} else {
			required = append(required, block)
		}
	}
	if len(required) == 0 && len(conditional) == 0 {
		return ""
	}
	sortByPriority(required)
	sortByPriority(conditional)

	var b strings.Builder
	if len(required) > 0 {
		b.WriteString("required_blocks:")
		for _, block := range required {
			b.WriteString("\n- " + block.Text)
		}
	}
	if len(conditional) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("conditional_blocks:")
		for _, block := range conditional {
			b.WriteString("\n- " + block.Text + " (apply_policy: " + fmt.Sprintf("%v", block.Payload["apply_policy"]) + ")")
		}
	}
	return b.String()
}

func sortByPriority(blocks []model.InstructionBlock) {
	sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].Priority < blocks[j].Priority })
}
