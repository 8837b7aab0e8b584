package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/opsgate/sapguard/internal/logger"
	"github.com/opsgate/sapguard/internal/port/messagequeue"
	"github.com/opsgate/sapguard/internal/port/runner"
)

// JobRunner dispatches jobs to the remote execution backend over the jobs.run
// request/reply subject. A weighted semaphore caps how many jobs are in
// flight at once; the backend serializes per host on its side.
type JobRunner struct {
	queue   messagequeue.Queue
	timeout time.Duration
	sem     *semaphore.Weighted
}

// NewJobRunner creates a runner with the given per-job timeout and in-flight
// limit.
func NewJobRunner(queue messagequeue.Queue, timeout time.Duration, maxInFlight int64) *JobRunner {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &JobRunner{
		queue:   queue,
		timeout: timeout,
		sem:     semaphore.NewWeighted(maxInFlight),
	}
}

// RunJob sends one job to the backend and decodes its report. The call blocks
// while the in-flight limit is reached.
func (r *JobRunner) RunJob(ctx context.Context, jobID, workspaceID string, args map[string]any) (*runner.Report, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire job slot: %w", err)
	}
	defer r.sem.Release(1)

	payload := messagequeue.JobRunPayload{
		JobID:       jobID,
		WorkspaceID: workspaceID,
		Arguments:   args,
		Correlation: logger.CorrelationID(ctx),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}

	reqCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	reply, err := r.queue.Request(reqCtx, messagequeue.SubjectJobRun, data)
	if err != nil {
		return nil, fmt.Errorf("run job %s: %w", jobID, err)
	}

	var report messagequeue.JobReportPayload
	if err := json.Unmarshal(reply, &report); err != nil {
		return nil, fmt.Errorf("decode job report %s: %w", jobID, err)
	}

	return &runner.Report{
		Status:  report.Status,
		Hosts:   report.Hosts,
		Error:   report.Error,
		Details: report.Details,
	}, nil
}
