package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opsgate/sapguard/internal/domain/plan"
	"github.com/opsgate/sapguard/internal/domain/testplan"
	"github.com/opsgate/sapguard/internal/port/messagequeue"
	"github.com/opsgate/sapguard/internal/port/runner"
)

// SubmitOutcome is the result of submitting a plan: either a confirmation
// token (destructive jobs present) or the immediate execution results.
type SubmitOutcome struct {
	ConfirmationID string                     `json:"confirmation_id,omitempty"`
	Gated          bool                       `json:"gated"`
	Results        []testplan.ExecutionResult `json:"results,omitempty"`
}

// ConfirmStatus reports what happened to a confirmation token.
type ConfirmStatus string

const (
	ConfirmStarted   ConfirmStatus = "started"
	ConfirmCancelled ConfirmStatus = "cancelled"
	ConfirmNotFound  ConfirmStatus = "not_found"
)

// PlanService owns the submit/confirm/execute lifecycle of action plans:
// normalization, protected-environment refusal, confirmation gating, and
// direct job dispatch to the execution backend.
type PlanService struct {
	gate          ConfirmationGate
	runner        runner.JobRunner
	queue         messagequeue.Queue
	protectedEnvs map[string]struct{}
	log           *slog.Logger
}

// NewPlanService creates the plan lifecycle service. PRD is always protected,
// even if envs is empty. queue may be nil.
func NewPlanService(gate ConfirmationGate, r runner.JobRunner, queue messagequeue.Queue, envs []string, log *slog.Logger) *PlanService {
	if log == nil {
		log = slog.Default()
	}
	return &PlanService{
		gate:          gate,
		runner:        r,
		queue:         queue,
		protectedEnvs: protectedSet(envs),
		log:           log,
	}
}

// Submit normalizes the raw proposal and either gates it behind a
// confirmation token or executes it immediately when all jobs are safe. A
// plan carrying destructive jobs into a protected environment is refused
// outright; no token is issued for it.
func (s *PlanService) Submit(ctx context.Context, raw any, conversationID, correlationID string) (*SubmitOutcome, error) {
	p, err := plan.Normalize(raw)
	if err != nil {
		return nil, err
	}
	if err := s.refuseProtected(p); err != nil {
		return nil, err
	}

	token, gated, err := s.gate.Submit(ctx, p, conversationID, correlationID)
	if err != nil {
		return nil, fmt.Errorf("gate plan: %w", err)
	}
	if gated {
		return &SubmitOutcome{ConfirmationID: token, Gated: true}, nil
	}

	results := s.executePlan(ctx, p)
	return &SubmitOutcome{Results: results}, nil
}

// Decide resolves a confirmation token: confirm=true executes the stored
// plan, confirm=false cancels it. Stale tokens report not_found.
func (s *PlanService) Decide(ctx context.Context, confirmationID string, confirm bool) (ConfirmStatus, []testplan.ExecutionResult, error) {
	if !confirm {
		if err := s.gate.Cancel(ctx, confirmationID); err != nil {
			if errors.Is(err, ErrConfirmationNotFound) {
				return ConfirmNotFound, nil, nil
			}
			return "", nil, err
		}
		s.publishPlanEvent(ctx, messagequeue.SubjectPlanCancelled, confirmationID, nil)
		return ConfirmCancelled, nil, nil
	}

	pending, err := s.gate.Confirm(ctx, confirmationID)
	if err != nil {
		if errors.Is(err, ErrConfirmationNotFound) {
			return ConfirmNotFound, nil, nil
		}
		return "", nil, err
	}

	// A stored plan can predate a change to the protection list; the
	// refusal holds at execution time too, consuming the token.
	if err := s.refuseProtected(pending.Plan); err != nil {
		return "", nil, err
	}

	s.publishPlanEvent(ctx, messagequeue.SubjectPlanConfirmed, confirmationID, pending.Plan)
	results := s.executePlan(ctx, pending.Plan)
	return ConfirmStarted, results, nil
}

// refuseProtected rejects plans that carry destructive jobs into a protected
// environment class. The check is unconditional; there is no override.
func (s *PlanService) refuseProtected(p *plan.Plan) error {
	env := testplan.DeriveEnvironment(p.TargetID, "")
	if _, protected := s.protectedEnvs[env]; protected && p.HasDestructive() {
		s.log.Error("destructive plan refused", "target_id", p.TargetID, "env", env)
		return fmt.Errorf("%w: %s", testplan.ErrSafetyViolation, env)
	}
	return nil
}

// executePlan dispatches every job in order. One job's failure never blocks
// its siblings; each job reports its own result.
func (s *PlanService) executePlan(ctx context.Context, p *plan.Plan) []testplan.ExecutionResult {
	results := make([]testplan.ExecutionResult, 0, len(p.Jobs))
	env := testplan.DeriveEnvironment(p.TargetID, "")

	for _, job := range p.Jobs {
		res := testplan.ExecutionResult{
			TestID:      job.ID,
			TestGroup:   job.Capability,
			WorkspaceID: p.TargetID,
			Env:         env,
			StartedAt:   time.Now().UTC(),
		}

		report, err := s.runner.RunJob(ctx, job.ID, p.TargetID, job.Arguments)
		res.FinishedAt = time.Now().UTC()

		switch {
		case err != nil:
			res.Status = testplan.StatusFailed
			res.ErrorMessage = err.Error()
			s.log.Error("job failed", "job_id", job.ID, "title", job.Title, "error", err)
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
		results = append(results, res)
	}
	return results
}

func (s *PlanService) publishPlanEvent(ctx context.Context, subject, confirmationID string, p *plan.Plan) {
	if s.queue == nil {
		return
	}
	payload := messagequeue.PlanEventPayload{ConfirmationID: confirmationID}
	if p != nil {
		payload.TargetID = p.TargetID
		payload.Intent = p.Intent
		payload.TotalJobs = len(p.Jobs)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.queue.Publish(ctx, subject, data); err != nil {
		s.log.Error("publish plan event", "subject", subject, "error", err)
	}
}
