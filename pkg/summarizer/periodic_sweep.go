package summarizer

import (
	"context"
	"time"

	"github.com/adhocore/gronx"

	"github.com/sipeed/picoclaw/pkg/llmgw"
	"github.com/sipeed/picoclaw/pkg/logger"
	"github.com/sipeed/picoclaw/pkg/memory"
	"github.com/sipeed/picoclaw/pkg/model"
)

// StaleConversations reports conversation ids whose most recent turn (by
// ScenarioRuns timestamp, the only per-turn audit trail the state carries)
// is later than lastSummarizedAt — in practice, conversations with
// scenario runs and an empty summary — the catch-up sweep's
// "needs re-summarizing" predicate.
func StaleConversations(states []*model.ConversationState) []string {
	var stale []string
	for _, s := range states {
		if len(s.ScenarioRuns) == 0 {
			continue
		}
		last := s.ScenarioRuns[len(s.ScenarioRuns)-1]
		if s.Summary == "" || last.Timestamp.After(lastSummarizedAt(s)) {
			stale = append(stale, s.ConversationID)
		}
	}
	return stale
}

// lastSummarizedAt has no durable timestamp of its own in the current data
// model, so it conservatively treats an existing summary as current — the
// sweep only catches conversations with scenario activity and no summary
// at all.
func lastSummarizedAt(s *model.ConversationState) time.Time {
	if s.Summary == "" {
		return time.Time{}
	}
	return time.Now()
}

// PeriodicSweep runs Summarize for every id listStale returns whenever
// cronExpr next matches the current time, until ctx is cancelled. This is
// the opt-in mitigation for spec's open question about a lost
// fire-and-forget summary when the host process exits mid-flight; it is
// never started unless a caller explicitly wires it up.
func PeriodicSweep(ctx context.Context, cronExpr string, store memory.Store, gw *llmgw.Gateway, opts llmgw.ChatOptions, listStale func(ctx context.Context) ([]string, error)) {
	g := gronx.New()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			due, err := g.IsDue(cronExpr)
			if err != nil || !due {
				continue
			}
			ids, err := listStale(ctx)
			if err != nil {
				logger.ErrorCF("summarizer", "periodic sweep failed to list stale conversations", map[string]interface{}{"error": err.Error()})
				continue
			}
			for _, id := range ids {
				Summarize(ctx, store, gw, id, opts)
			}
		}
	}
}
