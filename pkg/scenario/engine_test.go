package scenario

import (
	"context"
	"testing"

	"github.com/sipeed/picoclaw/pkg/model"
)

type fakeToolCaller struct {
	calls   []string
	results map[string]map[string]interface{}
}

func (f *fakeToolCaller) Call(ctx context.Context, name string, args map[string]interface{}) map[string]interface{} {
	f.calls = append(f.calls, name)
	return f.results[name]
}

func TestRunMapGatedByApplyOnlyMessageIndex(t *testing.T) {
	scenario := model.ScenarioDefinition{
		Name:    "greeting",
		Enabled: true,
		Meta:    map[string]interface{}{"apply_only_message_index": 1},
		Code:    []model.ScenarioNode{{ID: "1", Type: model.NodeText, Text: "hi"}},
	}
	conv := &model.ConversationState{MessageIndex: 2}

	result := RunMap(context.Background(), scenario, conv, &fakeToolCaller{})
	if result != nil {
		t.Fatalf("expected nil result when message_index gate doesn't match, got %+v", result)
	}
}

func TestRunMapOrdersNodesByDottedID(t *testing.T) {
	scenario := model.ScenarioDefinition{
		Name:    "order",
		Enabled: true,
		Code: []model.ScenarioNode{
			{ID: "2", Type: model.NodeText, Text: "second"},
			{ID: "10", Type: model.NodeText, Text: "tenth"},
			{ID: "1", Type: model.NodeText, Text: "first"},
		},
	}
	conv := &model.ConversationState{MessageIndex: 1}

	result := RunMap(context.Background(), scenario, conv, &fakeToolCaller{})
	if result == nil || len(result.InstructionBlocks) != 3 {
		t.Fatalf("expected 3 instruction blocks, got %+v", result)
	}
	if result.InstructionBlocks[0].Text != "first" || result.InstructionBlocks[1].Text != "second" || result.InstructionBlocks[2].Text != "tenth" {
		t.Fatalf("expected dotted-id numeric order first,second,tenth, got %v", result.InstructionBlocks)
	}
}

func TestRunMapStopsAtEndNode(t *testing.T) {
	scenario := model.ScenarioDefinition{
		Name:    "stop",
		Enabled: true,
		Code: []model.ScenarioNode{
			{ID: "1", Type: model.NodeText, Text: "before"},
			{ID: "2", Type: model.NodeEnd},
			{ID: "3", Type: model.NodeText, Text: "after"},
		},
	}
	conv := &model.ConversationState{MessageIndex: 1}

	result := RunMap(context.Background(), scenario, conv, &fakeToolCaller{})
	if result == nil || len(result.InstructionBlocks) != 1 || result.InstructionBlocks[0].Text != "before" {
		t.Fatalf("expected execution to stop at end node, got %+v", result)
	}
}

func TestRunMapIfWithDeterministicMessageIndexCondition(t *testing.T) {
	scenario := model.ScenarioDefinition{
		Name:    "branch",
		Enabled: true,
		Code: []model.ScenarioNode{
			{
				ID: "1", Type: model.NodeIf, Condition: "Это первое сообщение",
				Children:     []model.ScenarioNode{{ID: "1.1", Type: model.NodeText, Text: "welcome"}},
				ElseChildren: []model.ScenarioNode{{ID: "1.2", Type: model.NodeText, Text: "welcome back"}},
			},
		},
	}

	conv := &model.ConversationState{MessageIndex: 1}
	result := RunMap(context.Background(), scenario, conv, &fakeToolCaller{})
	if result == nil || len(result.InstructionBlocks) != 1 || result.InstructionBlocks[0].Text != "welcome" {
		t.Fatalf("expected the true branch to execute directly without an LLM gate, got %+v", result)
	}

	conv2 := &model.ConversationState{MessageIndex: 2}
	result2 := RunMap(context.Background(), scenario, conv2, &fakeToolCaller{})
	if result2 == nil || len(result2.InstructionBlocks) != 1 || result2.InstructionBlocks[0].Text != "welcome back" {
		t.Fatalf("expected the else branch to execute directly, got %+v", result2)
	}
}

func TestRunMapIfWithUnresolvableConditionEmitsConditionalBlock(t *testing.T) {
	scenario := model.ScenarioDefinition{
		Name:    "condition",
		Enabled: true,
		Code: []model.ScenarioNode{
			{
				ID: "1", Type: model.NodeIf, Condition: "Пользователь упомянул скидку",
				Children:     []model.ScenarioNode{{ID: "1.1", Type: model.NodeText, Text: "discount applies"}},
				ElseChildren: []model.ScenarioNode{{ID: "1.2", Type: model.NodeText, Text: "no discount"}},
			},
		},
	}
	conv := &model.ConversationState{MessageIndex: 1}

	result := RunMap(context.Background(), scenario, conv, &fakeToolCaller{})
	if result == nil || len(result.InstructionBlocks) != 2 {
		t.Fatalf("expected a conditional block plus a judge rule, got %+v", result)
	}
	if result.InstructionBlocks[0].Kind != model.KindConditional || result.InstructionBlocks[0].Target != model.TargetAgent {
		t.Fatalf("expected first block to be the agent-targeted conditional, got %+v", result.InstructionBlocks[0])
	}
	if result.InstructionBlocks[1].Kind != model.KindRule || result.InstructionBlocks[1].Target != model.TargetJudge {
		t.Fatalf("expected second block to be the judge rule, got %+v", result.InstructionBlocks[1])
	}
}

func TestRunMapResolvesGetUserDataFromProfileWithoutToolCall(t *testing.T) {
	age := 25
	scenario := model.ScenarioDefinition{
		Name:    "profile",
		Enabled: true,
		Code: []model.ScenarioNode{
			{ID: "1", Type: model.NodeTool, Tool: "get_user_data"},
			{ID: "2", Type: model.NodeText, Text: "hello {=dialog.name=}"},
		},
	}
	conv := &model.ConversationState{MessageIndex: 1, UserProfile: model.UserProfile{Name: "Дима", Age: &age}}
	caller := &fakeToolCaller{}

	result := RunMap(context.Background(), scenario, conv, caller)
	if len(caller.calls) != 0 {
		t.Fatalf("expected get_user_data to resolve from the already-known profile without a tool call, got calls=%v", caller.calls)
	}
	if result == nil || result.InstructionBlocks[0].Text != "hello Дима" {
		t.Fatalf("expected the profile name substituted in, got %+v", result)
	}
}

func TestRunMapCallsToolWhenProfileIncomplete(t *testing.T) {
	scenario := model.ScenarioDefinition{
		Name:    "profile",
		Enabled: true,
		Code: []model.ScenarioNode{
			{ID: "1", Type: model.NodeTool, Tool: "get_user_data"},
		},
	}
	conv := &model.ConversationState{MessageIndex: 1}
	caller := &fakeToolCaller{results: map[string]map[string]interface{}{
		"get_user_data": {"name": "Ольга", "age": 40},
	}}

	RunMap(context.Background(), scenario, conv, caller)
	if len(caller.calls) != 1 || caller.calls[0] != "get_user_data" {
		t.Fatalf("expected exactly one get_user_data call, got %v", caller.calls)
	}
	if conv.UserProfile.Name != "Ольга" || conv.UserProfile.Age == nil || *conv.UserProfile.Age != 40 {
		t.Fatalf("expected the conversation profile backfilled from the tool result, got %+v", conv.UserProfile)
	}
}
