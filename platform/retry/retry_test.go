package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"offerboard_backend/platform/logger"
)

func fastPolicy() Policy {
	return Policy{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		Retryable:  IsTransient,
		Log:        logger.New("development"),
	}
}

func TestDoRecoversFromTransientErrors(t *testing.T) {
	attempts := 0
	err := fastPolicy().Do(context.Background(), "test op", func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return &StatusError{Status: http.StatusServiceUnavailable}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestDoAbortsOnPermanentError(t *testing.T) {
	attempts := 0
	permanent := errors.New("bad query")
	err := fastPolicy().Do(context.Background(), "test op", func(ctx context.Context) error {
		attempts++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error surfaced, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected no retries for a permanent error, got %d attempts", attempts)
	}
}

func TestDoExhaustsRetries(t *testing.T) {
	attempts := 0
	err := fastPolicy().Do(context.Background(), "test op", func(ctx context.Context) error {
		attempts++
		return &StatusError{Status: http.StatusBadGateway}
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 3 {
		t.Fatalf("expected initial attempt plus 2 retries, got %d", attempts)
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(&StatusError{Status: http.StatusServiceUnavailable}) {
		t.Fatal("expected 503 transient")
	}
	if !IsTransient(&StatusError{Status: http.StatusGatewayTimeout}) {
		t.Fatal("expected 504 transient")
	}
	if IsTransient(&StatusError{Status: http.StatusBadRequest}) {
		t.Fatal("expected 400 permanent")
	}
	if IsTransient(errors.New("parse failure")) {
		t.Fatal("expected plain errors permanent")
	}
	if !IsTransient(context.DeadlineExceeded) {
		t.Fatal("expected deadline exceeded transient")
	}
}
