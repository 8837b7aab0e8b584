// Package trace provides the reasoning trace: an ordered, hierarchical log of
// the steps an orchestration run takes, with sanitized input/output snapshots.
package trace

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies a reasoning step.
type Kind string

const (
	KindToolCall  Kind = "tool_call"
	KindInference Kind = "inference"
	KindDecision  Kind = "decision"
)

// Phase names the orchestration phase a step belongs to.
type Phase string

const (
	PhaseRouting   Phase = "routing"
	PhaseAnalysis  Phase = "analysis"
	PhasePlanning  Phase = "planning"
	PhaseExecution Phase = "execution"
	PhaseSynthesis Phase = "synthesis"
)

// Step is a single entry in a reasoning trace. Snapshots are sanitized on
// the way in and steps are never removed.
type Step struct {
	ID           string    `json:"id"`
	ParentStepID string    `json:"parent_step_id,omitempty"`
	Agent        string    `json:"agent"`
	Phase        Phase     `json:"phase"`
	Kind         Kind      `json:"kind"`
	Description  string    `json:"description"`
	Input        any       `json:"input_snapshot,omitempty"`
	Output       any       `json:"output_snapshot,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Error        string    `json:"error,omitempty"`
}

// StepInfo carries the fields for recording a new step.
type StepInfo struct {
	Phase        Phase
	Kind         Kind
	Agent        string
	Description  string
	ParentStepID string
	Input        any
	Output       any
	Err          error
}

// Trace is the append-only step log for one orchestration run. It is owned by
// a single request flow and is not safe for concurrent appends.
type Trace struct {
	TraceID   string  `json:"trace_id"`
	AgentName string  `json:"agent_name"`
	Steps     []*Step `json:"steps"`
}

// New creates an empty trace owned by the named agent.
func New(agentName string) *Trace {
	return &Trace{
		TraceID:   uuid.NewString(),
		AgentName: agentName,
	}
}

// Record appends a step built from info and returns it. Input and output
// snapshots are sanitized before storage.
func (t *Trace) Record(info StepInfo) *Step {
	s := &Step{
		ID:           uuid.NewString(),
		ParentStepID: info.ParentStepID,
		Agent:        info.Agent,
		Phase:        info.Phase,
		Kind:         info.Kind,
		Description:  info.Description,
		Input:        Sanitize(info.Input, DefaultMaxItems),
		Output:       Sanitize(info.Output, DefaultMaxItems),
		Timestamp:    time.Now().UTC(),
	}
	if info.Err != nil {
		s.Error = info.Err.Error()
	}
	t.Steps = append(t.Steps, s)
	return s
}

// Merge appends the steps of a child trace produced by a capability
// invocation. Steps without a parent are re-parented under parentStepID so
// the combined trace stays hierarchical.
func (t *Trace) Merge(child *Trace, parentStepID string) {
	if child == nil {
		return
	}
	for _, s := range child.Steps {
		if s.ParentStepID == "" {
			s.ParentStepID = parentStepID
		}
		t.Steps = append(t.Steps, s)
	}
}

// Len returns the number of recorded steps.
func (t *Trace) Len() int {
	return len(t.Steps)
}
