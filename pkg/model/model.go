// Package model holds the data types shared by every component: per-turn
// conversation state, scenario DAGs, and the tools-context instruction
// blocks the scenario engine and turn pipeline pass between each other.
package model

import (
	"encoding/json"
	"time"
)

// Role is a closed enum of history-item roles.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// UserProfile holds the facts the get_user_data tool backfills.
type UserProfile struct {
	Name string `json:"name,omitempty"`
	Age  *int   `json:"age,omitempty"`
}

// ScenarioRun is one append-only audit entry recording that a scenario's
// compressed instructions were applied on a given turn.
type ScenarioRun struct {
	Name            string    `json:"name"`
	AtMessageIndex  int       `json:"at_message_index"`
	Timestamp       time.Time `json:"ts"`
}

// ConversationState is the durable per-conversation record. Created on
// first access; never deleted by the core.
type ConversationState struct {
	ConversationID string        `json:"conversation_id"`
	MessageIndex   int           `json:"message_index"`
	UserProfile    UserProfile   `json:"user_profile"`
	Summary        string        `json:"summary"`
	ScenarioRuns   []ScenarioRun `json:"scenario_runs"`
}

// HistoryItem is one message appended in strict arrival order. Never
// mutated or removed after being appended.
type HistoryItem struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Chunk is an opaque retrieval result.
type Chunk struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Score    *float64               `json:"score,omitempty"`
}

// NodeType is the closed enum of ScenarioNode.Type values.
type NodeType string

const (
	NodeText NodeType = "text"
	NodeTool NodeType = "tool"
	NodeIf   NodeType = "if"
	NodeEnd  NodeType = "end"
)

// ScenarioNode is a recursive node in a scenario's code sequence. Node ids
// are dotted-number strings that define execution order via lexicographic
// sort on their integer tuples.
type ScenarioNode struct {
	ID            string         `json:"id"`
	Type          NodeType       `json:"type"`
	Text          string         `json:"text,omitempty"`
	Tool          string         `json:"tool,omitempty"`
	Condition     string         `json:"condition,omitempty"`
	Children      []ScenarioNode `json:"children,omitempty"`
	ElseChildren  []ScenarioNode `json:"else_children,omitempty"`
}

// ScenarioDefinition is one author-written branching program.
type ScenarioDefinition struct {
	Name          string                 `json:"name"`
	Code          []ScenarioNode         `json:"code"`
	Meta          map[string]interface{} `json:"meta,omitempty"`
	Enabled       bool                   `json:"enabled"`
	Summary       string                 `json:"summary,omitempty"`
	AdminMessage  string                 `json:"admin_message,omitempty"`
}

// UnmarshalJSON defaults Enabled to true when the field is absent from the
// source document, matching the spec's "enabled (bool, default true)".
func (s *ScenarioDefinition) UnmarshalJSON(data []byte) error {
	type alias ScenarioDefinition
	aux := struct {
		Enabled *bool `json:"enabled"`
		*alias
	}{alias: (*alias)(s)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Enabled == nil {
		s.Enabled = true
	} else {
		s.Enabled = *aux.Enabled
	}
	return nil
}

// ApplyOnlyMessageIndex reads the meta.apply_only_message_index gate, if set.
func (s *ScenarioDefinition) ApplyOnlyMessageIndex() (int, bool) {
	if s.Meta == nil {
		return 0, false
	}
	raw, ok := s.Meta["apply_only_message_index"]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// InstructionBlockTarget is the closed enum of InstructionBlock.Target.
type InstructionBlockTarget string

const (
	TargetAgent InstructionBlockTarget = "agent"
	TargetJudge InstructionBlockTarget = "judge"
)

// InstructionBlockKind is the closed enum of InstructionBlock.Kind.
type InstructionBlockKind string

const (
	KindRequired    InstructionBlockKind = "required"
	KindConditional InstructionBlockKind = "conditional"
	KindRule        InstructionBlockKind = "rule"
	KindRaw         InstructionBlockKind = "raw"
)

// InstructionBlock is the normalized unit of guidance produced by the
// scenario engine, directed at either the generating LLM or the judge.
type InstructionBlock struct {
	ID       string                 `json:"id"`
	Source   string                 `json:"source"`
	Target   InstructionBlockTarget `json:"target"`
	Kind     InstructionBlockKind   `json:"kind"`
	Priority int                    `json:"priority"`
	Text     string                 `json:"text,omitempty"`
	Payload  map[string]interface{} `json:"payload,omitempty"`
}

// AppliedEntry records one scenario whose compressed instructions survived
// into the final prompt.
type AppliedEntry struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// ToolsContext is the per-turn, ephemeral aggregate the scenario engine
// builds and the turn pipeline consumes.
type ToolsContext struct {
	Facts             map[string]map[string]interface{} `json:"facts"`
	InstructionBlocks []InstructionBlock                 `json:"instruction_blocks"`
	Applied           []AppliedEntry                     `json:"applied"`
}

// NewToolsContext returns an empty, ready-to-use ToolsContext.
func NewToolsContext() *ToolsContext {
	return &ToolsContext{
		Facts:             map[string]map[string]interface{}{},
		InstructionBlocks: []InstructionBlock{},
		Applied:           []AppliedEntry{},
	}
}

// JudgeAction is the closed enum of JudgeDecision.Action.
type JudgeAction string

const (
	JudgePass   JudgeAction = "pass"
	JudgeRevise JudgeAction = "revise"
)

// JudgeDecision is the judge LLM's structured verdict on a draft answer.
type JudgeDecision struct {
	Action            JudgeAction `json:"action"`
	Reasons           []string    `json:"reasons"`
	PatchInstructions string      `json:"patch_instructions"`
}
