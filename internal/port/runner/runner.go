// Package runner defines the remote-execution backend port (interface).
// The backend owns how jobs actually run on target hosts; this core only
// consumes its reports.
package runner

import "context"

// Report is the backend's verdict for one executed job. Details is surfaced
// verbatim in execution results.
type Report struct {
	Status  string         `json:"status"`
	Hosts   []string       `json:"hosts,omitempty"`
	Error   string         `json:"error,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// JobRunner is the port interface for running one job against a workspace.
type JobRunner interface {
	RunJob(ctx context.Context, jobID, workspaceID string, args map[string]any) (*Report, error)
}
