// Package plan defines the Job/Plan model for orchestrated SAP operations
// and the normalization pipeline that turns raw proposals into valid plans.
package plan

// Job is a single operation in a Plan, dispatched to one capability.
type Job struct {
	ID          string         `json:"job_id"`
	Title       string         `json:"title"`
	Capability  string         `json:"capability_name"`
	Operation   string         `json:"operation_name"`
	Arguments   map[string]any `json:"arguments"`
	Destructive bool           `json:"destructive"`
}

// Plan is an ordered list of jobs targeting one workspace or SAP system.
// A Plan is immutable once validated; re-planning produces a new Plan.
type Plan struct {
	TargetID string         `json:"target_id"`
	Intent   string         `json:"intent"`
	Jobs     []Job          `json:"jobs"`
	Metadata map[string]any `json:"metadata"`
}

// HasDestructive reports whether any job in the plan is flagged destructive.
func (p *Plan) HasDestructive() bool {
	for _, j := range p.Jobs {
		if j.Destructive {
			return true
		}
	}
	return false
}

// JobByID returns the job with the given id, if present.
func (p *Plan) JobByID(id string) (Job, bool) {
	for _, j := range p.Jobs {
		if j.ID == id {
			return j, true
		}
	}
	return Job{}, false
}
