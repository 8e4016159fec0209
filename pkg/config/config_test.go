package config

import "testing"

func TestModelForCascades(t *testing.T) {
	c := &Config{LLMModel: "base-model"}
	for _, role := range []string{"condition", "judge", "revise", "summary", "sgr", "generate"} {
		if got := c.ModelFor(role); got != "base-model" {
			t.Errorf("ModelFor(%q) = %q, want base-model", role, got)
		}
	}
	c.JudgeModel = "judge-model"
	if got := c.ModelFor("judge"); got != "judge-model" {
		t.Errorf("ModelFor(judge) = %q, want judge-model", got)
	}
}

func TestOpenAIAPIKeysSplitsAndTrims(t *testing.T) {
	c := &Config{OpenAIAPIKey: " keyA ,keyB,, keyC"}
	got := c.OpenAIAPIKeys()
	want := []string{"keyA", "keyB", "keyC"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("key[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
