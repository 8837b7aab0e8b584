package messagequeue

// JobRunPayload is the schema for jobs.run requests to the execution backend.
type JobRunPayload struct {
	JobID       string         `json:"job_id"`
	WorkspaceID string         `json:"workspace_id"`
	Arguments   map[string]any `json:"arguments,omitempty"`
	Correlation string         `json:"correlation_id,omitempty"`
}

// JobReportPayload is the schema for jobs.run replies from the backend.
type JobReportPayload struct {
	JobID   string         `json:"job_id"`
	Status  string         `json:"status"`
	Hosts   []string       `json:"hosts,omitempty"`
	Error   string         `json:"error,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// PlanEventPayload is the schema for plans.confirmed / plans.cancelled.
type PlanEventPayload struct {
	ConfirmationID string `json:"confirmation_id"`
	TargetID       string `json:"target_id"`
	Intent         string `json:"intent"`
	TotalJobs      int    `json:"total_jobs"`
}
