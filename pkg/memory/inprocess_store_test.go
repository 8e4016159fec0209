package memory

import (
	"context"
	"testing"

	"github.com/sipeed/picoclaw/pkg/model"
)

func TestInProcessStoreCreatesFreshStateOnFirstAccess(t *testing.T) {
	s := NewInProcessStore()
	st, err := s.GetState(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if st.ConversationID != "c1" || st.MessageIndex != 0 {
		t.Fatalf("unexpected fresh state: %+v", st)
	}
}

func TestInProcessStoreAppendHistoryOrdering(t *testing.T) {
	s := NewInProcessStore()
	ctx := context.Background()

	_ = s.AppendHistory(ctx, "c1", model.HistoryItem{Role: model.RoleUser, Content: "hi"})
	_ = s.AppendHistory(ctx, "c1", model.HistoryItem{Role: model.RoleAssistant, Content: "hello"})

	hist, err := s.GetHistory(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected 2 items, got %d", len(hist))
	}
	if hist[0].Role != model.RoleUser || hist[1].Role != model.RoleAssistant {
		t.Fatalf("unexpected ordering: %+v", hist)
	}
}

func TestInProcessStoreSaveStateIsIsolatedCopy(t *testing.T) {
	s := NewInProcessStore()
	ctx := context.Background()
	st, _ := s.GetState(ctx, "c1")
	st.MessageIndex = 5
	_ = s.SaveState(ctx, st)

	st.MessageIndex = 99 // mutate caller's copy after save
	reloaded, _ := s.GetState(ctx, "c1")
	if reloaded.MessageIndex != 5 {
		t.Fatalf("store should not alias caller's state, got MessageIndex=%d", reloaded.MessageIndex)
	}
}
