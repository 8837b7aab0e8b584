package agents_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/opsgate/sapguard/internal/agents"
	"github.com/opsgate/sapguard/internal/domain/capability"
	"github.com/opsgate/sapguard/internal/domain/testplan"
	"github.com/opsgate/sapguard/internal/service"
)

func executorInput(t *testing.T, workspaceID string, req testplan.ExecutionRequest) string {
	t.Helper()
	tp := testplan.TestPlan{
		WorkspaceID: workspaceID,
		SAPSID:      "X00",
		SafeTests: []testplan.PlannedTest{
			{TestID: "t1", TestName: "replication status", TestGroup: "HANA"},
		},
		DestructiveTests: []testplan.PlannedTest{
			{TestID: "t3", TestName: "primary node kill", TestGroup: "HANA", Destructive: true},
		},
	}
	tp.Recompute()
	data, err := json.Marshal(map[string]any{"test_plan": tp, "request": req})
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func newExecutor(r *fakeRunner, gate service.ConfirmationGate) *agents.Executor {
	sel := service.NewExecutionSelector(r, nil, nil, nil, nil)
	return agents.NewExecutor(gate, sel, nil)
}

func TestExecutor_SafeSelectionRunsImmediately(t *testing.T) {
	r := &fakeRunner{}
	e := newExecutor(r, service.NewMemoryGate(time.Minute, nil))

	input := executorInput(t, "QA-WEEU-SAP02-Q01", testplan.ExecutionRequest{
		WorkspaceID: "QA-WEEU-SAP02-Q01",
		Mode:        testplan.ModeAllSafe,
	})
	res, err := e.Invoke(context.Background(), userMsg(input), capability.RunContext{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(r.calls) != 1 || r.calls[0] != "t1" {
		t.Fatalf("calls = %v, want only t1", r.calls)
	}
	if !strings.Contains(res.Content, "All tests completed") {
		t.Errorf("content = %q", res.Content)
	}
	results, ok := res.Structured.([]testplan.ExecutionResult)
	if !ok || len(results) != 1 {
		t.Fatalf("structured = %#v", res.Structured)
	}
}

func TestExecutor_DestructiveSelectionParked(t *testing.T) {
	r := &fakeRunner{}
	gate := service.NewMemoryGate(time.Minute, nil)
	e := newExecutor(r, gate)

	input := executorInput(t, "QA-WEEU-SAP02-Q01", testplan.ExecutionRequest{
		WorkspaceID:        "QA-WEEU-SAP02-Q01",
		Mode:               testplan.ModeSelected,
		TestsToRun:         []string{"t1", "t3"},
		IncludeDestructive: true,
	})
	res, err := e.Invoke(context.Background(), userMsg(input),
		capability.RunContext{ConversationID: "c1"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(r.calls) != 0 {
		t.Fatalf("calls = %v, nothing may run before confirmation", r.calls)
	}

	structured := res.Structured.(map[string]any)
	token, _ := structured["confirmation_id"].(string)
	if token == "" {
		t.Fatal("no confirmation id returned")
	}
	if !strings.Contains(res.Content, token) {
		t.Errorf("content does not mention the confirmation id: %q", res.Content)
	}

	pending, err := gate.Confirm(context.Background(), token)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if pending.ConversationID != "c1" {
		t.Errorf("conversation id = %q", pending.ConversationID)
	}
	if len(pending.Plan.Jobs) != 2 || !pending.Plan.HasDestructive() {
		t.Errorf("parked plan = %+v", pending.Plan)
	}
}

func TestExecutor_PRDDestructiveRefused(t *testing.T) {
	e := newExecutor(&fakeRunner{}, service.NewMemoryGate(time.Minute, nil))

	input := executorInput(t, "PRD-WEEU-SAP04-P00", testplan.ExecutionRequest{
		WorkspaceID:        "PRD-WEEU-SAP04-P00",
		Mode:               testplan.ModeSelected,
		TestsToRun:         []string{"t3"},
		IncludeDestructive: true,
	})
	_, err := e.Invoke(context.Background(), userMsg(input), capability.RunContext{})
	if !errors.Is(err, testplan.ErrSafetyViolation) {
		t.Fatalf("expected ErrSafetyViolation, got %v", err)
	}
}

func TestExecutor_IncludeDestructiveWithoutDestructiveSelection(t *testing.T) {
	r := &fakeRunner{}
	e := newExecutor(r, service.NewMemoryGate(time.Minute, nil))

	// Opt-in set, but the selection only names a safe test. Nothing to park.
	input := executorInput(t, "QA-WEEU-SAP02-Q01", testplan.ExecutionRequest{
		WorkspaceID:        "QA-WEEU-SAP02-Q01",
		Mode:               testplan.ModeSelected,
		TestsToRun:         []string{"t1"},
		IncludeDestructive: true,
	})
	_, err := e.Invoke(context.Background(), userMsg(input), capability.RunContext{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(r.calls) != 1 || r.calls[0] != "t1" {
		t.Fatalf("calls = %v, want immediate t1 run", r.calls)
	}
}

func TestExecutor_NoInput(t *testing.T) {
	e := newExecutor(&fakeRunner{}, service.NewMemoryGate(time.Minute, nil))
	if _, err := e.Invoke(context.Background(), userMsg("run the tests please"), capability.RunContext{}); err == nil {
		t.Fatal("expected error when no structured request present")
	}
}
