// Package capability defines the capability ("agent") contract and the
// process-wide registry the orchestrator routes through.
package capability

import (
	"context"
	"time"

	"github.com/opsgate/sapguard/internal/domain/conversation"
	"github.com/opsgate/sapguard/internal/domain/trace"
)

// RunContext carries request-scoped state across a capability invocation:
// the owning trace, conversation identity, and correlation id. It is passed
// explicitly rather than stashed in goroutine-local storage so concurrent
// requests cannot leak into each other.
type RunContext struct {
	ConversationID string
	CorrelationID  string
	Trace          *trace.Trace
	Timeout        time.Duration
}

// Result is what a capability returns to the orchestration loop.
type Result struct {
	// Content is the capability's textual answer, appended to the
	// conversation for the next routing round.
	Content string

	// Trace is the capability's own reasoning trace, merged into the run
	// trace under the dispatching step.
	Trace *trace.Trace

	// Structured carries a machine-readable payload (a proposed plan, a
	// test plan) alongside the textual content.
	Structured any
}

// Capability is a named unit exposing one Invoke operation. Implementations
// must not assume exclusive access to shared mutable state beyond what the
// RunContext hands them.
type Capability interface {
	Name() string
	Description() string
	Invoke(ctx context.Context, msgs []conversation.Message, rc RunContext) (*Result, error)
}
