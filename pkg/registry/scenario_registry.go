// Package registry implements the Scenario Registry (C2): an in-memory
// name -> ScenarioDefinition map bootstrapped from one JSON file at
// startup, adapted from the teacher's TopicMappingStore copy-on-read and
// tolerant-load discipline (pkg/state/topic_mapping.go).
package registry

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/sipeed/picoclaw/pkg/logger"
	"github.com/sipeed/picoclaw/pkg/model"
)

// ScenarioRegistry is a process-wide, read-mostly store. Reads observe a
// detached snapshot; writes are full-replace-on-add (spec leaves concurrent
// same-name adds last-writer-wins — see DESIGN.md).
type ScenarioRegistry struct {
	mu        sync.RWMutex
	scenarios map[string]model.ScenarioDefinition
}

// New returns an empty registry.
func New() *ScenarioRegistry {
	return &ScenarioRegistry{scenarios: make(map[string]model.ScenarioDefinition)}
}

// Add inserts or replaces a scenario by name.
func (r *ScenarioRegistry) Add(def model.ScenarioDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scenarios[def.Name] = def
}

// Remove deletes a scenario by name. No-op if absent.
func (r *ScenarioRegistry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.scenarios, name)
}

// Get returns a scenario by name.
func (r *ScenarioRegistry) Get(name string) (model.ScenarioDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.scenarios[name]
	return def, ok
}

// All returns a detached snapshot of every registered scenario.
func (r *ScenarioRegistry) All() map[string]model.ScenarioDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]model.ScenarioDefinition, len(r.scenarios))
	for k, v := range r.scenarios {
		out[k] = v
	}
	return out
}

// LoadBootstrapFile attempts to load {storagePath}/test_scenario.json.
// Failures are logged and non-fatal — an absent or malformed bootstrap file
// simply leaves the registry empty.
func (r *ScenarioRegistry) LoadBootstrapFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.WarnCF("registry", "no bootstrap scenario file loaded", map[string]interface{}{
			"path": path, "error": err.Error(),
		})
		return
	}

	var defs []model.ScenarioDefinition
	if err := json.Unmarshal(data, &defs); err != nil {
		// Some bootstrap files hold a single definition rather than an array.
		var single model.ScenarioDefinition
		if err2 := json.Unmarshal(data, &single); err2 != nil {
			logger.WarnCF("registry", "failed to parse bootstrap scenario file", map[string]interface{}{
				"path": path, "error": err.Error(),
			})
			return
		}
		defs = []model.ScenarioDefinition{single}
	}

	for _, def := range defs {
		if def.Name == "" {
			continue
		}
		r.Add(def)
	}

	logger.InfoCF("registry", "loaded bootstrap scenarios", map[string]interface{}{
		"path": path, "count": len(defs),
	})
}
