package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sipeed/picoclaw/pkg/model"
)

func TestAddGetRemove(t *testing.T) {
	r := New()
	r.Add(model.ScenarioDefinition{Name: "birthday", Enabled: true})

	def, ok := r.Get("birthday")
	if !ok || def.Name != "birthday" {
		t.Fatalf("expected to find birthday scenario, got %+v ok=%v", def, ok)
	}

	r.Remove("birthday")
	if _, ok := r.Get("birthday"); ok {
		t.Fatal("expected birthday to be removed")
	}
}

func TestAllReturnsDetachedSnapshot(t *testing.T) {
	r := New()
	r.Add(model.ScenarioDefinition{Name: "a", Enabled: true})

	snap := r.All()
	snap["b"] = model.ScenarioDefinition{Name: "b"}

	if _, ok := r.Get("b"); ok {
		t.Fatal("mutating a snapshot must not affect the registry")
	}
}

func TestLoadBootstrapFileDefaultsEnabledTrue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test_scenario.json")
	defs := []map[string]interface{}{
		{"name": "greet", "code": []interface{}{}},
	}
	raw, _ := json.Marshal(defs)
	if err := os.WriteFile(path, raw, 0644); err != nil {
		t.Fatal(err)
	}

	r := New()
	r.LoadBootstrapFile(path)

	def, ok := r.Get("greet")
	if !ok {
		t.Fatal("expected greet scenario to be loaded")
	}
	if !def.Enabled {
		t.Fatal("expected enabled to default to true")
	}
}

func TestLoadBootstrapFileMissingIsNonFatal(t *testing.T) {
	r := New()
	r.LoadBootstrapFile(filepath.Join(t.TempDir(), "missing.json"))
	if len(r.All()) != 0 {
		t.Fatal("expected empty registry after missing bootstrap file")
	}
}
