package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opsgate/sapguard/internal/domain/plan"
	"github.com/opsgate/sapguard/internal/domain/testplan"
	"github.com/opsgate/sapguard/internal/service"
)

func newPlanService(r *fakeRunner) (*service.PlanService, *service.MemoryGate) {
	gate := service.NewMemoryGate(time.Minute, nil)
	return service.NewPlanService(gate, r, nil, nil, nil), gate
}

const safeProposal = `{
	"target_id": "DEV-WEEU-SAP01-X00",
	"intent": "check replication",
	"jobs": [
		{"job_id": "t1", "title": "replication status", "capability_name": "HANA", "operation_name": "replication_status"}
	]
}`

const destructiveProposal = `{
	"target_id": "DEV-WEEU-SAP01-X00",
	"intent": "takeover drill",
	"jobs": [
		{"job_id": "t1", "capability_name": "HANA", "operation_name": "replication_status"},
		{"job_id": "t3", "capability_name": "HANA", "operation_name": "primary_kill", "destructive": true}
	]
}`

func TestSubmit_SafePlanExecutesImmediately(t *testing.T) {
	r := &fakeRunner{}
	svc, _ := newPlanService(r)

	out, err := svc.Submit(context.Background(), safeProposal, "c1", "corr1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.Gated || out.ConfirmationID != "" {
		t.Errorf("safe plan should not be gated: %+v", out)
	}
	if len(out.Results) != 1 || out.Results[0].Status != testplan.StatusSuccess {
		t.Errorf("results = %+v", out.Results)
	}
	if len(r.calls) != 1 || r.calls[0] != "t1" {
		t.Errorf("runner calls = %v", r.calls)
	}
}

func TestSubmit_DestructivePlanGated(t *testing.T) {
	r := &fakeRunner{}
	svc, _ := newPlanService(r)

	out, err := svc.Submit(context.Background(), destructiveProposal, "c1", "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !out.Gated || out.ConfirmationID == "" {
		t.Fatalf("destructive plan should be gated: %+v", out)
	}
	if len(r.calls) != 0 {
		t.Errorf("nothing should run before confirmation, calls = %v", r.calls)
	}

	status, results, err := svc.Decide(context.Background(), out.ConfirmationID, true)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if status != service.ConfirmStarted {
		t.Errorf("status = %s", status)
	}
	if len(results) != 2 {
		t.Errorf("results = %+v", results)
	}
	if len(r.calls) != 2 {
		t.Errorf("runner calls = %v", r.calls)
	}
}

const prdDestructiveProposal = `{
	"target_id": "PRD-WEEU-SAP04-P00",
	"intent": "takeover drill",
	"jobs": [
		{"job_id": "t3", "capability_name": "HANA", "operation_name": "primary_kill", "destructive": true}
	]
}`

func TestSubmit_DestructivePRDRefused(t *testing.T) {
	r := &fakeRunner{}
	svc, _ := newPlanService(r)

	_, err := svc.Submit(context.Background(), prdDestructiveProposal, "c1", "")
	if !errors.Is(err, testplan.ErrSafetyViolation) {
		t.Fatalf("expected ErrSafetyViolation, got %v", err)
	}
	if len(r.calls) != 0 {
		t.Errorf("no job may run against PRD, calls = %v", r.calls)
	}
}

func TestDecide_DestructivePRDPlanNeverExecutes(t *testing.T) {
	// A plan stored before the protection list changed must still be
	// refused when its token is confirmed.
	gate := service.NewMemoryGate(time.Minute, nil)
	r := &fakeRunner{}
	svc := service.NewPlanService(gate, r, nil, nil, nil)

	p := &plan.Plan{
		TargetID: "PRD-WEEU-SAP04-P00",
		Intent:   "takeover drill",
		Jobs:     []plan.Job{{ID: "t3", Capability: "HANA", Destructive: true}},
	}
	token, gated, err := gate.Submit(context.Background(), p, "", "")
	if err != nil || !gated {
		t.Fatalf("gate submit: gated=%v err=%v", gated, err)
	}

	_, _, err = svc.Decide(context.Background(), token, true)
	if !errors.Is(err, testplan.ErrSafetyViolation) {
		t.Fatalf("expected ErrSafetyViolation, got %v", err)
	}
	if len(r.calls) != 0 {
		t.Errorf("no job may run against PRD, calls = %v", r.calls)
	}
}

func TestDecide_CancelConsumesToken(t *testing.T) {
	r := &fakeRunner{}
	svc, _ := newPlanService(r)

	out, err := svc.Submit(context.Background(), destructiveProposal, "", "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	status, _, err := svc.Decide(context.Background(), out.ConfirmationID, false)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if status != service.ConfirmCancelled {
		t.Errorf("status = %s", status)
	}
	if len(r.calls) != 0 {
		t.Errorf("cancel must not execute, calls = %v", r.calls)
	}

	// The token is single-use; a later confirm must not run the plan.
	status, _, err = svc.Decide(context.Background(), out.ConfirmationID, true)
	if err != nil {
		t.Fatalf("stale confirm: %v", err)
	}
	if status != service.ConfirmNotFound {
		t.Errorf("status = %s", status)
	}
	if len(r.calls) != 0 {
		t.Errorf("stale token executed jobs: %v", r.calls)
	}
}

func TestDecide_UnknownToken(t *testing.T) {
	svc, _ := newPlanService(&fakeRunner{})

	status, _, err := svc.Decide(context.Background(), "no-such-token", true)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if status != service.ConfirmNotFound {
		t.Errorf("status = %s", status)
	}
}

func TestSubmit_InvalidProposal(t *testing.T) {
	svc, _ := newPlanService(&fakeRunner{})

	_, err := svc.Submit(context.Background(), "not a plan at all", "", "")
	if !errors.Is(err, plan.ErrInvalidPlan) {
		t.Fatalf("expected ErrInvalidPlan, got %v", err)
	}
}

func TestSubmit_JobFailureIsolated(t *testing.T) {
	r := &fakeRunner{errs: map[string]error{"t1": errors.New("host unreachable")}}
	gate := service.NewMemoryGate(time.Minute, nil)
	svc := service.NewPlanService(gate, r, nil, nil, nil)

	raw := `{"target_id": "DEV-WEEU-SAP01-X00", "jobs": [
		{"job_id": "t1", "capability_name": "HANA", "operation_name": "a"},
		{"job_id": "t2", "capability_name": "cluster", "operation_name": "b"}
	]}`
	out, err := svc.Submit(context.Background(), raw, "", "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(out.Results) != 2 {
		t.Fatalf("results = %+v", out.Results)
	}
	if out.Results[0].Status != testplan.StatusFailed || out.Results[0].ErrorMessage == "" {
		t.Errorf("first result should fail with message: %+v", out.Results[0])
	}
	if out.Results[1].Status != testplan.StatusSuccess {
		t.Errorf("second result should still run: %+v", out.Results[1])
	}
}
