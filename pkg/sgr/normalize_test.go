package sgr

import (
	"testing"

	"github.com/sipeed/picoclaw/pkg/tools"
)

func TestCleanTextStripsFencesEmojiAndCollapsesWhitespace(t *testing.T) {
	got := cleanText("Hello 👋  world```\r\n\n\n\nNext line")
	want := "Hello world\n\nNext line"
	if got != want {
		t.Fatalf("cleanText: got %q, want %q", got, want)
	}
}

func TestApplyToolPolicyDropsHallucinatedToolNames(t *testing.T) {
	step2 := Step2GateAndCritique{}
	step3 := Step3ToolsAndTemplates{ToolsToCall: []string{"get_user_data", "invented_tool"}}
	available := []tools.ToolSpec{{Name: "get_user_data"}}

	applyToolPolicy(&step2, &step3, available)

	if len(step3.ToolsToCall) != 1 || step3.ToolsToCall[0] != "get_user_data" {
		t.Fatalf("expected only get_user_data to survive, got %+v", step3.ToolsToCall)
	}
}

func TestApplyToolPolicyNullsUnknownDependsOnTool(t *testing.T) {
	unknown := "invented_tool"
	step2 := Step2GateAndCritique{}
	step3 := Step3ToolsAndTemplates{
		Templates: []TemplatePlan{{ID: "t1", Target: "global", Text: "x", DependsOnTool: &unknown}},
	}
	applyToolPolicy(&step2, &step3, nil)

	if step3.Templates[0].DependsOnTool != nil {
		t.Fatalf("expected unknown depends_on_tool nulled, got %v", *step3.Templates[0].DependsOnTool)
	}
}

func TestApplyToolPolicyAutoAddsToolReferencedByTemplateButNotListed(t *testing.T) {
	step2 := Step2GateAndCritique{}
	step3 := Step3ToolsAndTemplates{
		Templates: []TemplatePlan{{ID: "t1", Target: "global", Text: "Hi {=@get_user_data.name=}"}},
	}
	available := []tools.ToolSpec{{Name: "get_user_data"}}

	applyToolPolicy(&step2, &step3, available)

	if len(step3.ToolsToCall) != 1 || step3.ToolsToCall[0] != "get_user_data" {
		t.Fatalf("expected get_user_data auto-added from the template reference, got %+v", step3.ToolsToCall)
	}
}

func TestApplyToolPolicyAutoAddsToolReferencedByIntentButNotListed(t *testing.T) {
	step2 := Step2GateAndCritique{Intents: []Intent{{ID: "i1", Text: "Say {=@get_user_data.name=}"}}}
	step3 := Step3ToolsAndTemplates{}
	available := []tools.ToolSpec{{Name: "get_user_data"}}

	applyToolPolicy(&step2, &step3, available)

	if len(step3.ToolsToCall) != 1 || step3.ToolsToCall[0] != "get_user_data" {
		t.Fatalf("expected get_user_data auto-added from the intent reference, got %+v", step3.ToolsToCall)
	}
}

func TestApplyToolPolicyNeverAutoAddsAnUnknownTool(t *testing.T) {
	step2 := Step2GateAndCritique{Intents: []Intent{{ID: "i1", Text: "Say {=@invented_tool.name=}"}}}
	step3 := Step3ToolsAndTemplates{}

	applyToolPolicy(&step2, &step3, nil)

	if len(step3.ToolsToCall) != 0 {
		t.Fatalf("expected no tool auto-added when it isn't in availableTools, got %+v", step3.ToolsToCall)
	}
}

func TestApplyToolPolicyDropsMissingToolsAndTemplatesWithEmptyFields(t *testing.T) {
	step2 := Step2GateAndCritique{}
	step3 := Step3ToolsAndTemplates{
		MissingTools: []MissingTool{{Name: ""}, {Name: "award_points"}},
		Templates:    []TemplatePlan{{ID: "t1", Text: "  "}, {ID: "t2", Text: "keep me"}},
	}

	applyToolPolicy(&step2, &step3, nil)

	if len(step3.MissingTools) != 1 || step3.MissingTools[0].Name != "award_points" {
		t.Fatalf("expected only the named missing tool to survive, got %+v", step3.MissingTools)
	}
	if len(step3.Templates) != 1 || step3.Templates[0].Text != "keep me" {
		t.Fatalf("expected only the non-empty template to survive, got %+v", step3.Templates)
	}
}
