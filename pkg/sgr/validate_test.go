package sgr

import (
	"testing"

	"github.com/sipeed/picoclaw/pkg/model"
	"github.com/sipeed/picoclaw/pkg/tools"
)

func TestValidateScenarioRejectsNoActionableNodes(t *testing.T) {
	s := model.ScenarioDefinition{Code: []model.ScenarioNode{{ID: "1", Type: model.NodeEnd}}}
	if err := validateScenario(s, "do something"); err == nil {
		t.Fatal("expected an error for a scenario with only an end node")
	}
}

func TestValidateScenarioRequiresIfNodeWhenInputHasConditionalMarker(t *testing.T) {
	s := model.ScenarioDefinition{Code: []model.ScenarioNode{{ID: "1", Type: model.NodeText, Text: "hello"}}}
	if err := validateScenario(s, "Если пользователь спросит — ответь приветом"); err == nil {
		t.Fatal("expected an error when input contains 'если' but scenario has no if node")
	}
}

func TestValidateScenarioAcceptsIfNodeWhenConditionalMarkerPresent(t *testing.T) {
	s := model.ScenarioDefinition{Code: []model.ScenarioNode{
		{ID: "1", Type: model.NodeIf, Condition: "x", Children: []model.ScenarioNode{{ID: "1.1", Type: model.NodeText, Text: "y"}}},
	}}
	if err := validateScenario(s, "Если пользователь спросит"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateTemplateRefsFlagsUnknownToolsAndFields(t *testing.T) {
	s := model.ScenarioDefinition{Code: []model.ScenarioNode{
		{ID: "1", Type: model.NodeText, Text: "Hi {=@get_user_data.name=}, ticket {=@unknown_tool.id=}, {=garbage=}"},
	}}
	available := []tools.ToolSpec{{
		Name:         "get_user_data",
		OutputSchema: map[string]interface{}{"properties": map[string]interface{}{"age": map[string]interface{}{"type": "integer"}}},
	}}
	refs := validateTemplateRefs(s, available)

	unknownTools := refs["unknown_tools"].([]string)
	if len(unknownTools) != 1 || unknownTools[0] != "unknown_tool" {
		t.Fatalf("expected unknown_tool flagged, got %v", unknownTools)
	}
	unknownFields := refs["unknown_fields"].([]string)
	if len(unknownFields) != 1 || unknownFields[0] != "get_user_data.name" {
		t.Fatalf("expected get_user_data.name flagged as an unknown field, got %v", unknownFields)
	}
	invalid := refs["invalid_expressions"].([]string)
	if len(invalid) != 1 || invalid[0] != "garbage" {
		t.Fatalf("expected 'garbage' flagged as invalid, got %v", invalid)
	}
}

func TestValidateTemplateRefsIgnoresDialogExpressions(t *testing.T) {
	s := model.ScenarioDefinition{Code: []model.ScenarioNode{
		{ID: "1", Type: model.NodeText, Text: "Hello {=dialog.name=}"},
	}}
	refs := validateTemplateRefs(s, nil)
	if invalid := refs["invalid_expressions"].([]string); len(invalid) != 0 {
		t.Fatalf("expected no invalid expressions, got %v", invalid)
	}
}
