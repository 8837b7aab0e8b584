package testplan_test

import (
	"testing"

	"github.com/opsgate/sapguard/internal/domain/testplan"
)

func TestDeriveEnvironment(t *testing.T) {
	cases := []struct {
		workspaceID string
		override    string
		want        string
	}{
		{"DEV-WEEU-SAP01-X00", "", "DEV"},
		{"prd-weeu-sap04-p00", "", "PRD"},
		{"X00", "", testplan.EnvUnknown},
		{"DEV-WEEU-X00", "", testplan.EnvUnknown},
		{"X00", "qa", "QA"},
		{"DEV-WEEU-SAP01-X00", "PRD", "PRD"},
	}

	for _, tc := range cases {
		got := testplan.DeriveEnvironment(tc.workspaceID, tc.override)
		if got != tc.want {
			t.Errorf("DeriveEnvironment(%q, %q) = %q, want %q", tc.workspaceID, tc.override, got, tc.want)
		}
	}
}

func TestRecompute(t *testing.T) {
	p := &testplan.TestPlan{
		SafeTests:        []testplan.PlannedTest{{TestID: "t1"}, {TestID: "t2"}},
		DestructiveTests: []testplan.PlannedTest{{TestID: "t3"}},
	}
	p.Recompute()
	if p.TotalTests != 3 {
		t.Errorf("TotalTests = %d, want 3", p.TotalTests)
	}

	p.DestructiveTests = nil
	p.Recompute()
	if p.TotalTests != 2 {
		t.Errorf("TotalTests after removal = %d, want 2", p.TotalTests)
	}
}

func TestFind(t *testing.T) {
	p := &testplan.TestPlan{
		SafeTests:        []testplan.PlannedTest{{TestID: "t1", TestName: "HANA status"}},
		DestructiveTests: []testplan.PlannedTest{{TestID: "t2", TestName: "node kill"}},
	}

	if got, ok := p.FindSafe("t1"); !ok || got.TestName != "HANA status" {
		t.Errorf("FindSafe(t1) = %+v, %v", got, ok)
	}
	if _, ok := p.FindSafe("t2"); ok {
		t.Error("FindSafe should not see destructive tests")
	}
	if got, ok := p.FindDestructive("t2"); !ok || got.TestName != "node kill" {
		t.Errorf("FindDestructive(t2) = %+v, %v", got, ok)
	}
	if _, ok := p.FindDestructive("missing"); ok {
		t.Error("FindDestructive should miss unknown ids")
	}
}
