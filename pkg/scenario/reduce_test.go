package scenario

import "testing"

func TestReduceFirstWriterWinsOnFactCollision(t *testing.T) {
	results := []*MapResult{
		{ScenarioName: "alpha", Facts: map[string]map[string]interface{}{"tool:get_user_data": {"name": "Alpha"}}},
		{ScenarioName: "beta", Facts: map[string]map[string]interface{}{"tool:get_user_data": {"name": "Beta"}}},
	}

	ctx := Reduce(results)
	if ctx.Facts["tool:get_user_data"]["name"] != "Alpha" {
		t.Fatalf("expected the alphabetically-first scenario's fact to win, got %v", ctx.Facts["tool:get_user_data"])
	}
}

func TestReduceSkipsNilResults(t *testing.T) {
	results := []*MapResult{nil, {ScenarioName: "only", Facts: map[string]map[string]interface{}{"x": {"y": 1}}}, nil}
	ctx := Reduce(results)
	if len(ctx.Facts) != 1 {
		t.Fatalf("expected nil (gated-out) results to be skipped, got %v", ctx.Facts)
	}
}

func TestReduceConcatenatesInstructionBlocks(t *testing.T) {
	results := []*MapResult{
		{ScenarioName: "a", InstructionBlocks: makeBlocks(2)},
		{ScenarioName: "b", InstructionBlocks: makeBlocks(1)},
	}
	ctx := Reduce(results)
	if len(ctx.InstructionBlocks) != 3 {
		t.Fatalf("expected concatenated blocks, got %d", len(ctx.InstructionBlocks))
	}
}
