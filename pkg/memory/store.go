// Package memory implements per-conversation durable state (C1): a durable
// Redis-backed store and an in-process fallback behind one interface,
// selected once at process start.
package memory

import (
	"context"

	"github.com/sipeed/picoclaw/pkg/model"
)

// Store is the contract both implementations satisfy.
type Store interface {
	// GetState returns the conversation's state, creating a fresh one on
	// first access or on deserialization failure.
	GetState(ctx context.Context, id string) (*model.ConversationState, error)
	SaveState(ctx context.Context, state *model.ConversationState) error
	AppendHistory(ctx context.Context, id string, item model.HistoryItem) error
	GetHistory(ctx context.Context, id string) ([]model.HistoryItem, error)
	GetSummary(ctx context.Context, id string) (string, error)
}

func freshState(id string) *model.ConversationState {
	return &model.ConversationState{
		ConversationID: id,
		MessageIndex:   0,
		ScenarioRuns:   []model.ScenarioRun{},
	}
}
