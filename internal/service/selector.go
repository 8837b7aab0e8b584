package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/opsgate/sapguard/internal/domain/testplan"
	"github.com/opsgate/sapguard/internal/port/messagequeue"
	"github.com/opsgate/sapguard/internal/port/runner"
)

// ExecutionSelector picks the concrete tests to run from a TestPlan and
// dispatches them to the execution backend, enforcing the protected
// environment block before any selection happens.
type ExecutionSelector struct {
	runner        runner.JobRunner
	queue         messagequeue.Queue
	protectedEnvs map[string]struct{}
	log           *slog.Logger
	resultCounter metric.Int64Counter
}

// NewExecutionSelector creates a selector. PRD is always protected, even if
// envs is empty. queue may be nil; results are then only returned, not
// published.
func NewExecutionSelector(r runner.JobRunner, queue messagequeue.Queue, envs []string, log *slog.Logger, meter metric.Meter) *ExecutionSelector {
	if log == nil {
		log = slog.Default()
	}

	s := &ExecutionSelector{
		runner:        r,
		queue:         queue,
		protectedEnvs: protectedSet(envs),
		log:           log,
	}
	if meter != nil {
		s.resultCounter, _ = meter.Int64Counter("sapguard.execution.results",
			metric.WithDescription("Executed tests by status"))
	}
	return s
}

// Protected reports whether destructive execution is refused in env.
func (s *ExecutionSelector) Protected(env string) bool {
	_, ok := s.protectedEnvs[strings.ToUpper(env)]
	return ok
}

// protectedSet builds the refused-environment set. PRD is always a member.
func protectedSet(envs []string) map[string]struct{} {
	set := map[string]struct{}{"PRD": {}}
	for _, e := range envs {
		set[strings.ToUpper(e)] = struct{}{}
	}
	return set
}

// Execute validates the request against the plan, selects tests by mode, and
// runs them one at a time. A failing test never blocks its siblings; an
// unexpected panic is converted into a single synthetic failed result.
func (s *ExecutionSelector) Execute(ctx context.Context, tp *testplan.TestPlan, req testplan.ExecutionRequest) (results []testplan.ExecutionResult, err error) {
	env := testplan.DeriveEnvironment(req.WorkspaceID, req.Env)

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("execution panicked", "workspace_id", req.WorkspaceID, "panic", r)
			results = []testplan.ExecutionResult{{
				WorkspaceID:  req.WorkspaceID,
				Env:          env,
				Status:       testplan.StatusFailed,
				StartedAt:    time.Now().UTC(),
				FinishedAt:   time.Now().UTC(),
				ErrorMessage: fmt.Sprintf("internal error: %v", r),
			}}
			err = nil
		}
	}()

	if req.WorkspaceID != tp.WorkspaceID {
		return nil, fmt.Errorf("%w: request %q, plan %q",
			testplan.ErrWorkspaceMismatch, req.WorkspaceID, tp.WorkspaceID)
	}

	// The hard safety rule comes before any selection and is unconditional.
	if _, protected := s.protectedEnvs[env]; protected && req.IncludeDestructive {
		s.log.Error("destructive execution refused",
			"workspace_id", req.WorkspaceID, "env", env)
		return nil, fmt.Errorf("%w: %s", testplan.ErrSafetyViolation, env)
	}

	selected := s.selectTests(tp, req, env)
	s.log.Info("tests selected",
		"workspace_id", req.WorkspaceID,
		"env", env,
		"mode", string(req.Mode),
		"count", len(selected),
	)

	for _, test := range selected {
		res := s.runOne(ctx, test, req.WorkspaceID, env)
		s.publishResult(ctx, res)
		results = append(results, res)
	}
	return results, nil
}

// selectTests resolves the requested mode against the plan's pools.
func (s *ExecutionSelector) selectTests(tp *testplan.TestPlan, req testplan.ExecutionRequest, env string) []testplan.PlannedTest {
	_, protected := s.protectedEnvs[env]

	switch req.Mode {
	case testplan.ModeSingle:
		if len(req.TestsToRun) == 0 {
			s.log.Warn("single mode with no test id", "workspace_id", req.WorkspaceID)
			return nil
		}
		id := req.TestsToRun[0]
		if t, ok := tp.FindSafe(id); ok {
			return []testplan.PlannedTest{t}
		}
		if t, ok := tp.FindDestructive(id); ok {
			if !req.IncludeDestructive {
				s.log.Warn("destructive test skipped without include_destructive", "test_id", id)
				return nil
			}
			// A destructive test never passes selection in a protected
			// env, independent of the request-level refusal above.
			if protected {
				s.log.Warn("destructive test skipped in protected env", "test_id", id, "env", env)
				return nil
			}
			return []testplan.PlannedTest{t}
		}
		s.log.Warn("requested test not in plan", "test_id", id, "workspace_id", req.WorkspaceID)
		return nil

	case testplan.ModeAllSafe:
		out := make([]testplan.PlannedTest, len(tp.SafeTests))
		copy(out, tp.SafeTests)
		return out

	case testplan.ModeSelected:
		var out []testplan.PlannedTest
		for _, id := range req.TestsToRun {
			if t, ok := tp.FindSafe(id); ok {
				out = append(out, t)
				continue
			}
			t, ok := tp.FindDestructive(id)
			if !ok {
				s.log.Warn("requested test not in plan", "test_id", id, "workspace_id", req.WorkspaceID)
				continue
			}
			if !req.IncludeDestructive {
				s.log.Warn("destructive test skipped without include_destructive", "test_id", id)
				continue
			}
			// A destructive test never passes selection in a protected
			// env, independent of the request-level refusal above.
			if protected {
				s.log.Warn("destructive test skipped in protected env", "test_id", id, "env", env)
				continue
			}
			out = append(out, t)
		}
		return out

	default:
		s.log.Warn("unknown execution mode", "mode", string(req.Mode))
		return nil
	}
}

// runOne dispatches a single test to the backend and converts the report
// into an ExecutionResult. Backend errors become failed results.
func (s *ExecutionSelector) runOne(ctx context.Context, test testplan.PlannedTest, workspaceID, env string) testplan.ExecutionResult {
	res := testplan.ExecutionResult{
		TestID:      test.TestID,
		TestGroup:   test.TestGroup,
		WorkspaceID: workspaceID,
		Env:         env,
		StartedAt:   time.Now().UTC(),
	}

	report, err := s.runner.RunJob(ctx, test.TestID, workspaceID, nil)
	res.FinishedAt = time.Now().UTC()

	switch {
	case err != nil:
		res.Status = testplan.StatusFailed
		res.ErrorMessage = err.Error()
		s.log.Error("test execution failed", "test_id", test.TestID, "error", err)
	case report.Error != "":
		res.Status = testplan.StatusFailed
		res.ErrorMessage = report.Error
		res.Hosts = report.Hosts
		res.Details = report.Details
	default:
		res.Status = reportStatus(report.Status)
		res.Hosts = report.Hosts
		res.Details = report.Details
	}

	if s.resultCounter != nil {
		s.resultCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", string(res.Status)),
			attribute.String("test_group", test.TestGroup),
		))
	}
	return res
}

func (s *ExecutionSelector) publishResult(ctx context.Context, res testplan.ExecutionResult) {
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		s.log.Error("marshal execution result", "test_id", res.TestID, "error", err)
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectExecutionResult, data); err != nil {
		s.log.Error("publish execution result", "test_id", res.TestID, "error", err)
	}
}

// reportStatus maps backend status strings onto the result enum, defaulting
// unknown values to partial so callers see the verbatim details.
func reportStatus(s string) testplan.Status {
	switch testplan.Status(strings.ToLower(s)) {
	case testplan.StatusSuccess, testplan.StatusFailed, testplan.StatusPartial, testplan.StatusSkipped:
		return testplan.Status(strings.ToLower(s))
	case "":
		return testplan.StatusSuccess
	default:
		return testplan.StatusPartial
	}
}
