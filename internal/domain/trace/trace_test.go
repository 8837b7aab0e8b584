package trace_test

import (
	"errors"
	"testing"

	"github.com/opsgate/sapguard/internal/domain/trace"
)

func TestRecord_AppendsInOrder(t *testing.T) {
	tr := trace.New("orchestrator")

	s1 := tr.Record(trace.StepInfo{Phase: trace.PhaseRouting, Kind: trace.KindDecision, Agent: "orchestrator", Description: "route"})
	s2 := tr.Record(trace.StepInfo{Phase: trace.PhaseExecution, Kind: trace.KindToolCall, Agent: "diagnostics", Description: "invoke", ParentStepID: s1.ID})

	if tr.Len() != 2 {
		t.Fatalf("len = %d", tr.Len())
	}
	if tr.Steps[0] != s1 || tr.Steps[1] != s2 {
		t.Error("steps out of order")
	}
	if s2.ParentStepID != s1.ID {
		t.Error("parent link lost")
	}
	if s1.ID == "" || s1.Timestamp.IsZero() {
		t.Error("id/timestamp not assigned")
	}
}

func TestRecord_SanitizesSnapshotsAndErrors(t *testing.T) {
	tr := trace.New("orchestrator")
	s := tr.Record(trace.StepInfo{
		Phase:       trace.PhaseExecution,
		Kind:        trace.KindToolCall,
		Agent:       "diagnostics",
		Description: "invoke",
		Input:       map[string]any{"api_key": "k", "sid": "X00"},
		Err:         errors.New("boom"),
	})

	in := s.Input.(map[string]any)
	if in["api_key"] != trace.Redacted {
		t.Errorf("input snapshot not sanitized: %v", in["api_key"])
	}
	if s.Error != "boom" {
		t.Errorf("error = %q", s.Error)
	}
}

func TestMerge_ReparentsOrphanSteps(t *testing.T) {
	parent := trace.New("orchestrator")
	anchor := parent.Record(trace.StepInfo{Phase: trace.PhaseRouting, Kind: trace.KindDecision, Agent: "orchestrator", Description: "dispatch"})

	child := trace.New("diagnostics")
	orphan := child.Record(trace.StepInfo{Phase: trace.PhaseExecution, Kind: trace.KindToolCall, Agent: "diagnostics", Description: "check"})
	nested := child.Record(trace.StepInfo{Phase: trace.PhaseExecution, Kind: trace.KindInference, Agent: "diagnostics", Description: "interpret", ParentStepID: orphan.ID})

	parent.Merge(child, anchor.ID)

	if parent.Len() != 3 {
		t.Fatalf("len = %d", parent.Len())
	}
	if orphan.ParentStepID != anchor.ID {
		t.Errorf("orphan step not re-parented: %q", orphan.ParentStepID)
	}
	if nested.ParentStepID != orphan.ID {
		t.Errorf("existing parent overwritten: %q", nested.ParentStepID)
	}
}

func TestMerge_NilChildIsNoop(t *testing.T) {
	tr := trace.New("orchestrator")
	tr.Merge(nil, "x")
	if tr.Len() != 0 {
		t.Errorf("len = %d", tr.Len())
	}
}
