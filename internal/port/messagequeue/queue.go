// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Request sends a message and waits for the single reply.
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subject constants for the SAPGuard queue topology.
const (
	// SubjectJobRun is the request/reply subject the remote execution
	// backend serves: one job run request, one report reply.
	SubjectJobRun = "jobs.run"

	// SubjectExecutionResult carries finished ExecutionResults for
	// dashboards and audit consumers.
	SubjectExecutionResult = "executions.result"

	// SubjectPlanConfirmed announces a confirmed plan moving to execution.
	SubjectPlanConfirmed = "plans.confirmed"

	// SubjectPlanCancelled announces a cancelled pending plan.
	SubjectPlanCancelled = "plans.cancelled"
)
