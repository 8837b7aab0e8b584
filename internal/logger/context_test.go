package logger_test

import (
	"context"
	"testing"

	"github.com/opsgate/sapguard/internal/logger"
)

func TestRequestID_RoundTrip(t *testing.T) {
	ctx := logger.WithRequestID(context.Background(), "req-1")
	if got := logger.RequestID(ctx); got != "req-1" {
		t.Errorf("RequestID = %q", got)
	}
	if got := logger.RequestID(context.Background()); got != "" {
		t.Errorf("unset RequestID = %q", got)
	}
}

func TestCorrelationID_IndependentOfRequestID(t *testing.T) {
	ctx := logger.WithRequestID(context.Background(), "req-1")
	ctx = logger.WithCorrelationID(ctx, "corr-9")

	if got := logger.CorrelationID(ctx); got != "corr-9" {
		t.Errorf("CorrelationID = %q", got)
	}
	if got := logger.RequestID(ctx); got != "req-1" {
		t.Errorf("RequestID = %q", got)
	}
}
