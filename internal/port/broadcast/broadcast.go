// Package broadcast defines the consumer-facing streaming event port.
// Events are purely observational: a nil Broadcaster is valid and all
// publishing helpers are nil-safe so absent consumers never affect control
// flow.
package broadcast

import "context"

// Event type constants for the streaming surface.
const (
	EventThinkingStart = "thinking_start"
	EventThinkingStep  = "thinking_step"
	EventThinkingEnd   = "thinking_end"
	EventContent       = "content"
	EventDone          = "done"
)

// ThinkingStartPayload opens a thinking sequence for one conversation turn.
type ThinkingStartPayload struct {
	ConversationID string `json:"conversation_id"`
	CorrelationID  string `json:"correlation_id,omitempty"`
}

// ThinkingStepPayload reports one orchestration step in flight.
type ThinkingStepPayload struct {
	ConversationID string `json:"conversation_id"`
	Agent          string `json:"agent"`
	Action         string `json:"action"`
	Status         string `json:"status"`
}

// ContentPayload carries a chunk of assistant content.
type ContentPayload struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}

// DonePayload closes a turn and hands over the accumulated reasoning trace.
type DonePayload struct {
	ConversationID string `json:"conversation_id"`
	ReasoningTrace any    `json:"reasoning_trace,omitempty"`
	Iterations     int    `json:"iterations"`
}

// Broadcaster is the port interface for pushing events to live consumers.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}

// Publish sends an event through b if it is non-nil.
func Publish(ctx context.Context, b Broadcaster, eventType string, payload any) {
	if b == nil {
		return
	}
	b.BroadcastEvent(ctx, eventType, payload)
}
