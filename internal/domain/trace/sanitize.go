package trace

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultMaxItems is the default list truncation threshold for snapshots.
const DefaultMaxItems = 5

// Redacted replaces values whose keys look secret-bearing.
const Redacted = "***REDACTED***"

// maxStringLen caps string snapshots before truncation.
const maxStringLen = 200

const truncatedSuffix = "... (truncated)"

// secretKeywords are matched case-insensitively as substrings of map keys.
var secretKeywords = []string{
	"password", "api_key", "secret", "token", "credential", "auth", "private_key",
}

// Sanitize prepares arbitrary nested data for storage in a trace snapshot:
// secret-looking map values are redacted, lists longer than maxItems are
// truncated with a trailing count marker, and long strings are cut at 200
// characters. Unknown types pass through unchanged. Sanitize is idempotent
// and never panics on any input.
func Sanitize(data any, maxItems int) any {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	switch v := data.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			if isSecretKey(k) {
				out[k] = Redacted
				continue
			}
			out[k] = Sanitize(val, maxItems)
		}
		return out
	case []any:
		return sanitizeList(v, maxItems)
	case []string:
		generic := make([]any, len(v))
		for i, s := range v {
			generic[i] = s
		}
		return sanitizeList(generic, maxItems)
	case string:
		return sanitizeString(v)
	default:
		return v
	}
}

func sanitizeList(list []any, maxItems int) []any {
	if len(list) <= maxItems {
		out := make([]any, len(list))
		for i, item := range list {
			out[i] = Sanitize(item, maxItems)
		}
		return out
	}

	// A previously truncated list is maxItems entries plus the marker;
	// leave it alone so sanitization stays idempotent.
	if len(list) == maxItems+1 {
		if s, ok := list[len(list)-1].(string); ok && isTruncationMarker(s) {
			out := make([]any, len(list))
			copy(out, list)
			return out
		}
	}

	out := make([]any, 0, maxItems+1)
	for _, item := range list[:maxItems] {
		out = append(out, Sanitize(item, maxItems))
	}
	out = append(out, fmt.Sprintf("... %d more items", len(list)-maxItems))
	return out
}

func sanitizeString(s string) string {
	if len(s) <= maxStringLen || strings.HasSuffix(s, truncatedSuffix) {
		return s
	}
	// Back off to a rune boundary so the cut never leaves invalid UTF-8.
	cut := maxStringLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncatedSuffix
}

func isSecretKey(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range secretKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func isTruncationMarker(s string) bool {
	return strings.HasPrefix(s, "... ") && strings.HasSuffix(s, " more items")
}
