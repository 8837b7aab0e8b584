package agents_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/opsgate/sapguard/internal/agents"
	"github.com/opsgate/sapguard/internal/domain/capability"
)

func TestDiagnostics_DefaultChecks(t *testing.T) {
	r := &fakeRunner{}
	d := agents.NewDiagnostics(r, nil)

	res, err := d.Invoke(context.Background(),
		userMsg(`{"workspace_id": "DEV-WEEU-SAP01-X00"}`), capability.RunContext{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(r.calls) != 3 {
		t.Fatalf("checks run = %v, want the 3 defaults", r.calls)
	}
	if !strings.Contains(res.Content, "All 3 checks passed") {
		t.Errorf("content = %q", res.Content)
	}
	if res.Trace == nil || res.Trace.Len() != 3 {
		t.Errorf("trace steps = %v, want one per check", res.Trace)
	}
}

func TestDiagnostics_ExplicitChecks(t *testing.T) {
	r := &fakeRunner{}
	d := agents.NewDiagnostics(r, nil)

	_, err := d.Invoke(context.Background(),
		userMsg(`{"workspace_id": "DEV-WEEU-SAP01-X00", "checks": ["replication_status"]}`),
		capability.RunContext{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(r.calls) != 1 || r.calls[0] != "replication_status" {
		t.Fatalf("calls = %v", r.calls)
	}
}

func TestDiagnostics_FailedCheckDoesNotAbort(t *testing.T) {
	r := &fakeRunner{errs: map[string]error{"cluster_status": errors.New("crm unreachable")}}
	d := agents.NewDiagnostics(r, nil)

	res, err := d.Invoke(context.Background(),
		userMsg(`{"workspace_id": "DEV-WEEU-SAP01-X00"}`), capability.RunContext{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(r.calls) != 3 {
		t.Fatalf("calls = %v, want all checks despite failure", r.calls)
	}
	if !strings.Contains(res.Content, "1 of 3 checks reported problems") {
		t.Errorf("content = %q", res.Content)
	}
}

func TestDiagnostics_MissingWorkspace(t *testing.T) {
	d := agents.NewDiagnostics(&fakeRunner{}, nil)
	if _, err := d.Invoke(context.Background(), userMsg("just checking in"), capability.RunContext{}); err == nil {
		t.Fatal("expected error without workspace_id")
	}
}
