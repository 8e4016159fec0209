package memory

import (
	"context"
	"sync"

	"github.com/sipeed/picoclaw/pkg/model"
)

// InProcessStore is the fallback implementation, used when the durable
// backend is unreachable at process start. Grounded on the teacher's
// mutex-guarded in-memory slice pattern (pkg/state's TopicMappingStore).
type InProcessStore struct {
	mu      sync.RWMutex
	states  map[string]*model.ConversationState
	history map[string][]model.HistoryItem
}

// NewInProcessStore returns an empty in-process store.
func NewInProcessStore() *InProcessStore {
	return &InProcessStore{
		states:  make(map[string]*model.ConversationState),
		history: make(map[string][]model.HistoryItem),
	}
}

func (s *InProcessStore) GetState(ctx context.Context, id string) (*model.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[id]; ok {
		copied := *st
		copied.ScenarioRuns = append([]model.ScenarioRun(nil), st.ScenarioRuns...)
		return &copied, nil
	}
	st := freshState(id)
	s.states[id] = st
	return st, nil
}

func (s *InProcessStore) SaveState(ctx context.Context, state *model.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *state
	copied.ScenarioRuns = append([]model.ScenarioRun(nil), state.ScenarioRuns...)
	s.states[state.ConversationID] = &copied
	return nil
}

func (s *InProcessStore) AppendHistory(ctx context.Context, id string, item model.HistoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[id] = append(s.history[id], item)
	return nil
}

func (s *InProcessStore) GetHistory(ctx context.Context, id string) ([]model.HistoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.HistoryItem(nil), s.history[id]...), nil
}

func (s *InProcessStore) GetSummary(ctx context.Context, id string) (string, error) {
	st, err := s.GetState(ctx, id)
	if err != nil {
		return "", err
	}
	return st.Summary, nil
}
