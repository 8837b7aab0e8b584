package testplan

import "strings"

// EnvUnknown is reported when the environment cannot be derived from the
// workspace id.
const EnvUnknown = "UNKNOWN"

// minWorkspaceSegments is the segment count of a fully-qualified workspace id
// ({ENV}-{REGION}-{VNET}-{SID}).
const minWorkspaceSegments = 4

// DeriveEnvironment resolves the environment class for a request. An explicit
// override wins; otherwise the first segment of a fully-qualified workspace id
// is used, and anything shorter derives to EnvUnknown.
func DeriveEnvironment(workspaceID, override string) string {
	if override != "" {
		return strings.ToUpper(override)
	}
	segments := strings.Split(workspaceID, "-")
	if len(segments) >= minWorkspaceSegments {
		return strings.ToUpper(segments[0])
	}
	return EnvUnknown
}
