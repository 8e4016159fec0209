package pipeline

import (
	"strings"
	"testing"

	"github.com/sipeed/picoclaw/pkg/model"
)

func TestBuildMessagesNumbersChunksAndFallsBackToSentinel(t *testing.T) {
	if got := renderChunks(nil); !strings.Contains(got, "not found") {
		t.Fatalf("expected a not-found sentinel for no chunks, got %q", got)
	}
	chunks := []model.Chunk{{Text: "first passage"}, {Text: "second passage"}}
	got := renderChunks(chunks)
	if !strings.Contains(got, "1. first passage") || !strings.Contains(got, "2. second passage") {
		t.Fatalf("expected numbered chunks, got %q", got)
	}
}

func TestRenderToolsContextOrdersAgentBlocksByPriorityAndExcludesJudge(t *testing.T) {
	tc := &model.ToolsContext{InstructionBlocks: []model.InstructionBlock{
		{Target: model.TargetAgent, Kind: model.KindRequired, Priority: 2, Text: "second"},
		{Target: model.TargetAgent, Kind: model.KindRequired, Priority: 1, Text: "first"},
		{Target: model.TargetJudge, Kind: model.KindRule, Priority: 1, Text: "judge only, never in prompt"},
	}}
	got := renderToolsContext(tc)
	if strings.Index(got, "first") > strings.Index(got, "second") {
		t.Fatalf("expected lower-priority block first, got %q", got)
	}
	if strings.Contains(got, "judge only") {
		t.Fatalf("judge-targeted blocks must not leak into the agent-facing tools_context: %q", got)
	}
}

func TestRenderToolsContextEmptyWhenNoAgentBlocks(t *testing.T) {
	tc := &model.ToolsContext{InstructionBlocks: []model.InstructionBlock{
		{Target: model.TargetJudge, Kind: model.KindRule, Text: "x"},
	}}
	if got := renderToolsContext(tc); got != "" {
		t.Fatalf("expected empty tools_context, got %q", got)
	}
}
