package plan

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Normalize converts a raw proposal into a validated Plan.
//
// The input may be a JSON string (optionally wrapped in surrounding prose),
// raw bytes, a decoded map, or an existing *Plan. Missing job ids and titles
// are filled in, arguments default to an empty map and destructive to false.
// Re-running Normalize on an already-normalized plan changes no field except
// ids that were missing in the first place.
func Normalize(raw any) (*Plan, error) {
	obj, err := toObject(raw)
	if err != nil {
		return nil, err
	}

	p := &Plan{
		TargetID: stringField(obj, "target_id"),
		Intent:   stringField(obj, "intent"),
		Metadata: map[string]any{},
	}
	if md, ok := obj["metadata"].(map[string]any); ok {
		for k, v := range md {
			p.Metadata[k] = v
		}
	}

	rawJobs, ok := obj["jobs"].([]any)
	if !ok && obj["jobs"] != nil {
		return nil, fmt.Errorf("%w: jobs is not a list", ErrInvalidPlan)
	}

	seen := make(map[string]struct{}, len(rawJobs))
	for i, rj := range rawJobs {
		jobObj, ok := rj.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: job %d: %w", ErrInvalidPlan, i, ErrJobNotObject)
		}

		job := normalizeJob(jobObj, i)
		if _, dup := seen[job.ID]; dup {
			return nil, fmt.Errorf("%w: job %d: %w (%s)", ErrInvalidPlan, i, ErrDuplicateJobID, job.ID)
		}
		seen[job.ID] = struct{}{}
		p.Jobs = append(p.Jobs, job)
	}

	p.Metadata["total_jobs"] = len(p.Jobs)
	return p, nil
}

// normalizeJob fills defaults for a single job entry. Field spellings from
// both proposal dialects are accepted (plugin_name/function_name and
// plugin/function) and normalized to capability/operation.
func normalizeJob(obj map[string]any, index int) Job {
	job := Job{
		ID:         stringField(obj, "job_id"),
		Title:      stringField(obj, "title"),
		Capability: firstString(obj, "capability_name", "plugin_name", "plugin"),
		Operation:  firstString(obj, "operation_name", "function_name", "function"),
	}

	if job.ID == "" {
		job.ID = fmt.Sprintf("job-%d-%s", index+1, uuid.NewString()[:8])
	}
	if job.Title == "" {
		job.Title = job.Capability + "." + job.Operation
	}

	if args, ok := obj["arguments"].(map[string]any); ok && args != nil {
		job.Arguments = args
	} else {
		job.Arguments = map[string]any{}
	}

	if d, ok := obj["destructive"].(bool); ok {
		job.Destructive = d
	}
	return job
}

// toObject decodes the supported input shapes into a generic map.
func toObject(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil input", ErrInvalidPlan)
	case map[string]any:
		return v, nil
	case *Plan:
		return roundTrip(v)
	case Plan:
		return roundTrip(&v)
	case []byte:
		return parseJSON(string(v))
	case string:
		return parseJSON(v)
	case json.RawMessage:
		return parseJSON(string(v))
	default:
		return roundTrip(v)
	}
}

// parseJSON decodes a JSON object from s, tolerating surrounding prose by
// slicing from the first '{' to the last '}'.
func parseJSON(s string) (map[string]any, error) {
	body, ok := ExtractObject(s)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object found", ErrInvalidPlan)
	}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	return obj, nil
}

// ExtractObject locates the outermost JSON object in s by slicing from the
// first '{' to the last '}'. It does not validate the slice; callers
// unmarshal and treat failure as "no object".
func ExtractObject(s string) ([]byte, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return nil, false
	}
	return []byte(s[start : end+1]), true
}

func roundTrip(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	return obj, nil
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
