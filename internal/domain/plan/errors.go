package plan

import "errors"

var (
	// ErrInvalidPlan is returned when a raw proposal cannot be parsed into a Plan.
	ErrInvalidPlan = errors.New("invalid plan proposal")

	// ErrJobNotObject is returned when a job entry in the proposal is not a JSON object.
	ErrJobNotObject = errors.New("job entry is not an object")

	// ErrDuplicateJobID is returned when two jobs in a proposal carry the same id.
	ErrDuplicateJobID = errors.New("duplicate job_id in plan")
)
