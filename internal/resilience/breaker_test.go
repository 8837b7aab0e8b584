package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func failing() error { return errBoom }
func ok() error      { return nil }

func TestBreaker_OpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	for i := 0; i < 3; i++ {
		if err := b.Do(failing); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %s, want open", b.State())
	}
	if err := b.Do(ok); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	_ = b.Do(failing)
	_ = b.Do(failing)
	_ = b.Do(ok)
	_ = b.Do(failing)
	_ = b.Do(failing)

	if b.State() != StateClosed {
		t.Fatalf("state = %s, want closed", b.State())
	}
}

func TestBreaker_ProbesAfterCooldown(t *testing.T) {
	now := time.Now()
	b := NewBreaker(1, time.Minute)
	b.clock = func() time.Time { return now }

	_ = b.Do(failing)
	if b.State() != StateOpen {
		t.Fatalf("state = %s, want open", b.State())
	}

	// Before cooldown: rejected.
	if err := b.Do(ok); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}

	// After cooldown: a successful probe closes the circuit.
	now = now.Add(2 * time.Minute)
	if err := b.Do(ok); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %s, want closed", b.State())
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(1, time.Minute)
	b.clock = func() time.Time { return now }

	_ = b.Do(failing)
	now = now.Add(2 * time.Minute)

	if err := b.Do(failing); !errors.Is(err, errBoom) {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %s, want open after failed probe", b.State())
	}
}
