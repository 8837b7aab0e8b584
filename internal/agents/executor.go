package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/opsgate/sapguard/internal/domain/capability"
	"github.com/opsgate/sapguard/internal/domain/conversation"
	"github.com/opsgate/sapguard/internal/domain/plan"
	"github.com/opsgate/sapguard/internal/domain/testplan"
	"github.com/opsgate/sapguard/internal/domain/trace"
	"github.com/opsgate/sapguard/internal/service"
)

// executeInput is the structured request the executor accepts.
type executeInput struct {
	TestPlan testplan.TestPlan         `json:"test_plan"`
	Request  testplan.ExecutionRequest `json:"request"`
}

// Executor runs tests from a previously built test plan. Destructive requests
// are never executed directly; they are parked behind a confirmation token
// that a human resolves out of band.
type Executor struct {
	gate     service.ConfirmationGate
	selector *service.ExecutionSelector
	log      *slog.Logger
}

// NewExecutor creates the test execution capability.
func NewExecutor(gate service.ConfirmationGate, selector *service.ExecutionSelector, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{gate: gate, selector: selector, log: log}
}

func (e *Executor) Name() string { return "test_executor" }

func (e *Executor) Description() string {
	return "Executes tests from an HA test plan. Input: test_plan and a request " +
		"with mode (single, all_safe, selected), tests_to_run, and " +
		"include_destructive. Destructive runs require human confirmation."
}

// Invoke selects and runs tests per the request. Safe selections execute
// immediately; a destructive selection returns a confirmation id instead of
// running anything.
func (e *Executor) Invoke(ctx context.Context, msgs []conversation.Message, rc capability.RunContext) (*capability.Result, error) {
	obj := lastInput(msgs)
	if obj == nil {
		return nil, fmt.Errorf("test_executor: no execution request found in input")
	}
	var in executeInput
	if err := decodeInto(obj, &in); err != nil {
		return nil, fmt.Errorf("test_executor: decode request: %w", err)
	}
	if in.Request.WorkspaceID == "" {
		in.Request.WorkspaceID = in.TestPlan.WorkspaceID
	}
	in.TestPlan.Recompute()

	env := testplan.DeriveEnvironment(in.Request.WorkspaceID, in.Request.Env)
	if in.Request.IncludeDestructive && e.selector.Protected(env) {
		return nil, fmt.Errorf("%w: destructive execution refused in %s", testplan.ErrSafetyViolation, env)
	}

	tr := trace.New(e.Name())

	if in.Request.IncludeDestructive {
		if destructive := e.destructiveSelection(&in); len(destructive) > 0 {
			return e.park(ctx, tr, rc, &in, destructive)
		}
	}

	results, err := e.selector.Execute(ctx, &in.TestPlan, in.Request)
	if err != nil {
		return nil, fmt.Errorf("test_executor: %w", err)
	}

	tr.Record(trace.StepInfo{
		Phase:       trace.PhaseExecution,
		Kind:        trace.KindToolCall,
		Agent:       e.Name(),
		Description: "tests executed",
		Input:       in.Request,
		Output:      map[string]any{"results": len(results)},
	})

	return &capability.Result{
		Content:    summarizeResults(in.Request.WorkspaceID, env, results),
		Trace:      tr,
		Structured: results,
	}, nil
}

// destructiveSelection resolves which destructive tests the request touches.
func (e *Executor) destructiveSelection(in *executeInput) []testplan.PlannedTest {
	switch in.Request.Mode {
	case testplan.ModeSelected, testplan.ModeSingle:
		ids := in.Request.TestsToRun
		if in.Request.Mode == testplan.ModeSingle && len(ids) > 1 {
			ids = ids[:1]
		}
		var out []testplan.PlannedTest
		for _, id := range ids {
			if t, ok := in.TestPlan.FindDestructive(id); ok {
				out = append(out, t)
			}
		}
		return out
	default:
		return nil
	}
}

// park stores the destructive selection behind a confirmation token. The safe
// part of the selection is parked together with it so a single confirmation
// runs the whole request.
func (e *Executor) park(ctx context.Context, tr *trace.Trace, rc capability.RunContext, in *executeInput, destructive []testplan.PlannedTest) (*capability.Result, error) {
	p := &plan.Plan{
		TargetID: in.Request.WorkspaceID,
		Intent:   fmt.Sprintf("HA test execution (%s mode)", in.Request.Mode),
	}
	for _, id := range in.Request.TestsToRun {
		if t, ok := in.TestPlan.FindSafe(id); ok {
			p.Jobs = append(p.Jobs, plan.Job{
				ID:         t.TestID,
				Title:      t.TestName,
				Capability: t.TestGroup,
			})
		}
	}
	for _, t := range destructive {
		p.Jobs = append(p.Jobs, plan.Job{
			ID:          t.TestID,
			Title:       t.TestName,
			Capability:  t.TestGroup,
			Destructive: true,
		})
	}

	token, gated, err := e.gate.Submit(ctx, p, rc.ConversationID, rc.CorrelationID)
	if err != nil {
		return nil, fmt.Errorf("test_executor: gate request: %w", err)
	}
	if !gated {
		// Cannot happen while the selection holds a destructive test.
		return nil, fmt.Errorf("test_executor: destructive request was not gated")
	}

	tr.Record(trace.StepInfo{
		Phase:       trace.PhaseExecution,
		Kind:        trace.KindDecision,
		Agent:       e.Name(),
		Description: "destructive execution parked for confirmation",
		Input:       in.Request,
		Output:      map[string]any{"confirmation_id": token, "jobs": len(p.Jobs)},
	})
	e.log.Info("destructive execution parked",
		"workspace_id", in.Request.WorkspaceID,
		"confirmation_id", token,
		"destructive", len(destructive),
	)

	names := make([]string, 0, len(destructive))
	for _, t := range destructive {
		names = append(names, t.TestName)
	}
	content := fmt.Sprintf(
		"This request includes %d destructive test(s): %s. Nothing was executed. "+
			"Confirm with id %s to proceed, or cancel it to abort.",
		len(destructive), strings.Join(names, ", "), token)

	return &capability.Result{
		Content:    content,
		Trace:      tr,
		Structured: map[string]any{"confirmation_id": token, "gated": true},
	}, nil
}

func summarizeResults(workspaceID, env string, results []testplan.ExecutionResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No tests matched the request for %s.", workspaceID)
	}

	var failed int
	var sb strings.Builder
	fmt.Fprintf(&sb, "Executed %d test(s) on %s (env %s):\n", len(results), workspaceID, env)
	for _, r := range results {
		if r.Status == testplan.StatusFailed {
			failed++
			fmt.Fprintf(&sb, "- %s: %s (%s)\n", r.TestID, r.Status, r.ErrorMessage)
			continue
		}
		fmt.Fprintf(&sb, "- %s: %s\n", r.TestID, r.Status)
	}
	if failed > 0 {
		fmt.Fprintf(&sb, "%d test(s) failed.", failed)
	} else {
		sb.WriteString("All tests completed.")
	}
	return sb.String()
}
