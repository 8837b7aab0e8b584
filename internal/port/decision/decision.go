// Package decision defines the decision-service port (interface).
// The decision service is an opaque collaborator: given conversation state
// and the callable capability surface, it returns terminal content or one or
// more capability-invocation requests.
package decision

import "context"

// Message is the wire-level chat message sent to the decision service.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CapabilitySpec describes one callable capability to the decision service.
type CapabilitySpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Routing is a single capability-invocation request returned by the service.
type Routing struct {
	AgentName  string `json:"agent_name"`
	AgentInput string `json:"agent_input"`
}

// Outcome is the decision service's answer for one round: terminal content,
// routing requests, or both (routings win).
type Outcome struct {
	Content  string
	Routings []Routing
}

// Decider is the port interface for the decision service.
type Decider interface {
	Decide(ctx context.Context, msgs []Message, caps []CapabilitySpec) (*Outcome, error)
}
