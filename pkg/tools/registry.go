// Package tools implements the Tool Registry (C3): a name -> function
// mapping plus JSON-schema metadata, with exception-isolated invocation.
// Adapted from the teacher's ErrorResult/SilentResult split and the
// original source's blanket exception swallowing in tool_registry.py.
package tools

import (
	"context"

	"github.com/sipeed/picoclaw/pkg/logger"
)

// ToolSpec describes a tool for the SGR converter's available_tools surface.
type ToolSpec struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	InputSchema  map[string]interface{} `json:"input_schema,omitempty"`
	OutputSchema map[string]interface{} `json:"output_schema,omitempty"`
}

// Func is a tool implementation: given per-turn args, it returns a
// JSON-shaped result or an error. Errors never propagate past Call.
type Func func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error)

type entry struct {
	spec ToolSpec
	fn   Func
}

// Registry maps tool name to implementation.
type Registry struct {
	entries map[string]entry
}

// New returns an empty tool registry.
func New() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a tool under spec.Name.
func (r *Registry) Register(spec ToolSpec, fn Func) {
	r.entries[spec.Name] = entry{spec: spec, fn: fn}
}

// Get returns a tool's spec, if registered.
func (r *Registry) Get(name string) (ToolSpec, bool) {
	e, ok := r.entries[name]
	return e.spec, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.entries[name]
	return ok
}

// Call invokes a tool by name, isolating any error or panic into an empty
// result — a failing tool must never abort the scenario it's part of.
func (r *Registry) Call(ctx context.Context, name string, args map[string]interface{}) (result map[string]interface{}) {
	e, ok := r.entries[name]
	if !ok {
		logger.WarnCF("tools", "call to unknown tool", map[string]interface{}{"tool": name})
		return map[string]interface{}{}
	}

	result = map[string]interface{}{}
	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorCF("tools", "tool panicked", map[string]interface{}{"tool": name, "panic": rec})
			result = map[string]interface{}{}
		}
	}()

	out, err := e.fn(ctx, args)
	if err != nil {
		logger.WarnCF("tools", "tool call failed", map[string]interface{}{"tool": name, "error": err.Error()})
		return map[string]interface{}{}
	}
	if out == nil {
		return map[string]interface{}{}
	}
	return out
}

// Specs returns every registered tool's spec, for SGR's available_tools.
func (r *Registry) Specs() []ToolSpec {
	specs := make([]ToolSpec, 0, len(r.entries))
	for _, e := range r.entries {
		specs = append(specs, e.spec)
	}
	return specs
}
