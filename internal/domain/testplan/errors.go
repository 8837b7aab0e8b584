package testplan

import "errors"

var (
	// ErrWorkspaceMismatch is returned when an execution request targets a
	// different workspace than the plan it was built from.
	ErrWorkspaceMismatch = errors.New("execution request workspace does not match test plan workspace")

	// ErrSafetyViolation is returned when destructive execution is requested
	// against a protected environment. It is never downgraded or retried.
	ErrSafetyViolation = errors.New("destructive execution blocked for protected environment")
)
