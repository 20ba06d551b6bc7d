// Package agents defines the contract between the orchestration engine
// and the per-section analysis agents. Agents are opaque to the engine:
// the only promise is the tagged success/failure result.
package agents

import (
	"context"
	"encoding/json"
)

// Options tune a single agent invocation.
type Options struct {
	// SkipPlanning skips the content-planning pass inside the agent.
	SkipPlanning bool
	// EnableEvaluation asks the agent to self-score its output.
	EnableEvaluation bool
}

// Result is the tagged outcome of one agent call. Ordinary failures are
// reported through Success=false and Error, not through a Go error.
type Result struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// SectionAgent produces the analysis content for one section of an
// audited entity. Implementations must not panic for ordinary failures;
// the orchestrator treats any panic or returned error as a failed call.
type SectionAgent interface {
	Execute(ctx context.Context, entityID string, sectionID string, opts Options) (Result, error)
}
