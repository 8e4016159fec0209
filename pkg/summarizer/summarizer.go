// Package summarizer implements the Summarizer (C8): rebuilds a
// conversation's narrative summary from its recent history, fire-and-forget
// with respect to the turn that triggered it. Grounded on
// original_source/chat_app/pipelines/v1_0/summarizer_v1_0.py.
package summarizer

import (
	"context"

	"github.com/sipeed/picoclaw/pkg/llmgw"
	"github.com/sipeed/picoclaw/pkg/logger"
	"github.com/sipeed/picoclaw/pkg/memory"
	"github.com/sipeed/picoclaw/pkg/model"
)

const maxHistoryItems = 16

const summarySystemPrompt = "Ты переписываешь краткое содержание диалога с клиентом поддержки.\n" +
	"Пиши от первого лица в стиле «Вы спрашивали …, я объяснил …», 1–5 предложений.\n" +
	"Не используй эмодзи, не цитируй реплики с указанием ролей (user/assistant), не включай личные данные\n" +
	"и не цитируй оскорбительные высказывания пользователя.\n" +
	"Верни СТРОГО JSON: {\"summary\": \"...\"}"

var summarySchema = map[string]interface{}{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"summary"},
	"properties": map[string]interface{}{
		"summary": map[string]interface{}{"type": "string"},
	},
}

// Summarize rebuilds conversationID's narrative summary from its last 16
// history items and overwrites state.Summary. Errors are logged only —
// callers invoke this fire-and-forget and never see a return error.
func Summarize(ctx context.Context, store memory.Store, gw *llmgw.Gateway, conversationID string, opts llmgw.ChatOptions) {
	history, err := store.GetHistory(ctx, conversationID)
	if err != nil {
		logger.ErrorCF("summarizer", "failed to load history", map[string]interface{}{"conversation_id": conversationID, "error": err.Error()})
		return
	}
	if len(history) > maxHistoryItems {
		history = history[len(history)-maxHistoryItems:]
	}

	messages := []llmgw.Message{{Role: "system", Content: summarySystemPrompt}, {Role: "user", Content: renderTranscript(history)}}
	data, err := gw.ChatJSON(ctx, messages, summarySchema, "conversation_summary", opts)
	if err != nil {
		logger.ErrorCF("summarizer", "chat_json failed", map[string]interface{}{"conversation_id": conversationID, "error": err.Error()})
		return
	}

	summary, _ := data["summary"].(string)
	if summary == "" {
		return
	}

	state, err := store.GetState(ctx, conversationID)
	if err != nil {
		logger.ErrorCF("summarizer", "failed to load state", map[string]interface{}{"conversation_id": conversationID, "error": err.Error()})
		return
	}
	state.Summary = summary
	if err := store.SaveState(ctx, state); err != nil {
		logger.ErrorCF("summarizer", "failed to save state", map[string]interface{}{"conversation_id": conversationID, "error": err.Error()})
	}
}

func renderTranscript(history []model.HistoryItem) string {
	out := ""
	for _, item := range history {
		out += string(item.Role) + ": " + item.Content + "\n"
	}
	return out
}
