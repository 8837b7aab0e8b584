package trace_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/opsgate/sapguard/internal/domain/trace"
)

func TestSanitize_RedactsSecretsAndTruncatesLists(t *testing.T) {
	in := map[string]any{
		"password": "x",
		"items":    []any{1, 2, 3, 4, 5, 6},
	}

	out, ok := trace.Sanitize(in, 5).(map[string]any)
	if !ok {
		t.Fatalf("expected map, got %T", trace.Sanitize(in, 5))
	}

	if out["password"] != trace.Redacted {
		t.Errorf("password = %v, want redacted", out["password"])
	}

	items, ok := out["items"].([]any)
	if !ok {
		t.Fatalf("items type %T", out["items"])
	}
	if len(items) != 6 {
		t.Fatalf("items length = %d, want 5 entries + marker", len(items))
	}
	if items[5] != "... 1 more items" {
		t.Errorf("marker = %v", items[5])
	}
}

func TestSanitize_SecretKeywordSubstrings(t *testing.T) {
	in := map[string]any{
		"API_KEY":         "k",
		"ClientSecret":    "s",
		"authorization":   "bearer x",
		"db_credential":   "c",
		"ssh_private_key": "p",
		"hostname":        "app01",
	}

	out := trace.Sanitize(in, 5).(map[string]any)
	for _, k := range []string{"API_KEY", "ClientSecret", "authorization", "db_credential", "ssh_private_key"} {
		if out[k] != trace.Redacted {
			t.Errorf("%s = %v, want redacted", k, out[k])
		}
	}
	if out["hostname"] != "app01" {
		t.Errorf("hostname should pass through, got %v", out["hostname"])
	}
}

func TestSanitize_TruncatesLongStrings(t *testing.T) {
	long := strings.Repeat("a", 500)
	out, ok := trace.Sanitize(long, 5).(string)
	if !ok {
		t.Fatal("expected string")
	}
	if !strings.HasSuffix(out, "... (truncated)") {
		t.Errorf("missing truncation suffix: %q", out[len(out)-30:])
	}
	if len(out) > 220 {
		t.Errorf("truncated string too long: %d", len(out))
	}
}

func TestSanitize_TruncationKeepsValidUTF8(t *testing.T) {
	// Each rune is 3 bytes, so byte 200 falls inside a rune.
	long := strings.Repeat("€", 100)
	out, ok := trace.Sanitize(long, 5).(string)
	if !ok {
		t.Fatal("expected string")
	}
	if !strings.HasSuffix(out, "... (truncated)") {
		t.Fatalf("missing truncation suffix: %q", out)
	}
	if !utf8.ValidString(out) {
		t.Errorf("truncated snapshot is not valid UTF-8: %q", out)
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	in := map[string]any{
		"token": "secret",
		"log":   strings.Repeat("x", 400),
		"hosts": []any{"a", "b", "c", "d", "e", "f", "g"},
	}

	once := trace.Sanitize(in, 5)
	twice := trace.Sanitize(once, 5)

	m1 := once.(map[string]any)
	m2 := twice.(map[string]any)

	if m1["log"] != m2["log"] {
		t.Error("string truncation not idempotent")
	}
	if len(m1["hosts"].([]any)) != len(m2["hosts"].([]any)) {
		t.Errorf("list truncation not idempotent: %d vs %d",
			len(m1["hosts"].([]any)), len(m2["hosts"].([]any)))
	}
}

func TestSanitize_ArbitraryInputNeverPanics(t *testing.T) {
	inputs := []any{
		nil,
		42,
		3.14,
		true,
		struct{ X int }{1},
		map[string]any{"nested": map[string]any{"deep": []any{map[string]any{"password": "x"}}}},
		[]string{"a", "b"},
		make(chan int),
	}

	for _, in := range inputs {
		// Sanitize must pass unknown types through without panicking.
		_ = trace.Sanitize(in, 5)
	}
}

func TestSanitize_NestedRedaction(t *testing.T) {
	in := map[string]any{
		"config": map[string]any{
			"db_password": "hunter2",
			"host":        "db01",
		},
	}
	out := trace.Sanitize(in, 5).(map[string]any)
	nested := out["config"].(map[string]any)
	if nested["db_password"] != trace.Redacted {
		t.Errorf("nested secret not redacted: %v", nested["db_password"])
	}
	if nested["host"] != "db01" {
		t.Errorf("nested value lost: %v", nested["host"])
	}
}
