// Package testplan defines the HA test planning and execution model:
// planned tests split into safe and destructive pools, execution requests,
// and per-test execution results.
package testplan

import "time"

// PlannedTest is a catalog entry selected for a workspace, enriched with the
// reason it applies.
type PlannedTest struct {
	TestID      string   `json:"test_id"`
	TestName    string   `json:"test_name"`
	TestGroup   string   `json:"test_group"`
	Description string   `json:"description"`
	Destructive bool     `json:"destructive"`
	Requires    []string `json:"requires,omitempty"`
	Reason      string   `json:"reason"`
}

// TestPlan holds the applicable tests for one workspace, partitioned by
// destructiveness. TotalTests mirrors the combined pool sizes; call
// Recompute after changing either list.
type TestPlan struct {
	WorkspaceID      string          `json:"workspace_id"`
	SAPSID           string          `json:"sap_sid"`
	Capabilities     map[string]bool `json:"capabilities,omitempty"`
	SafeTests        []PlannedTest   `json:"safe_tests"`
	DestructiveTests []PlannedTest   `json:"destructive_tests"`
	TotalTests       int             `json:"total_tests"`
}

// Recompute refreshes the TotalTests invariant.
func (p *TestPlan) Recompute() {
	p.TotalTests = len(p.SafeTests) + len(p.DestructiveTests)
}

// FindSafe returns the safe test with the given id.
func (p *TestPlan) FindSafe(id string) (PlannedTest, bool) {
	return find(p.SafeTests, id)
}

// FindDestructive returns the destructive test with the given id.
func (p *TestPlan) FindDestructive(id string) (PlannedTest, bool) {
	return find(p.DestructiveTests, id)
}

func find(tests []PlannedTest, id string) (PlannedTest, bool) {
	for _, t := range tests {
		if t.TestID == id {
			return t, true
		}
	}
	return PlannedTest{}, false
}

// Mode selects how tests are picked from a TestPlan.
type Mode string

const (
	ModeSingle   Mode = "single"
	ModeAllSafe  Mode = "all_safe"
	ModeSelected Mode = "selected"
)

// ExecutionRequest asks for a subset of a TestPlan to be run.
type ExecutionRequest struct {
	WorkspaceID        string   `json:"workspace_id"`
	Env                string   `json:"env,omitempty"`
	Mode               Mode     `json:"mode"`
	TestsToRun         []string `json:"tests_to_run,omitempty"`
	IncludeDestructive bool     `json:"include_destructive"`
}

// Status is the outcome of one executed test.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusPartial Status = "partial"
	StatusSkipped Status = "skipped"
)

// ExecutionResult is the per-test outcome reported back to the caller and
// published on the result subject.
type ExecutionResult struct {
	TestID       string         `json:"test_id"`
	TestGroup    string         `json:"test_group"`
	WorkspaceID  string         `json:"workspace_id"`
	Env          string         `json:"env"`
	Status       Status         `json:"status"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
	Hosts        []string       `json:"hosts,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
}
