package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestReconnect_SucceedsAfterFailures(t *testing.T) {
	config := &ReconnectConfig{MaxAttempts: 3, Backoff: 5 * time.Millisecond, Multiplier: 2.0, MaxBackoff: 20 * time.Millisecond}

	attempts := 0
	err := Reconnect(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("dial failed")
		}
		return nil
	}, config)

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestReconnect_GivesUp(t *testing.T) {
	config := &ReconnectConfig{MaxAttempts: 2, Backoff: time.Millisecond, Multiplier: 2.0}
	dialErr := errors.New("dial failed")

	err := Reconnect(context.Background(), func(context.Context) error {
		return dialErr
	}, config)

	if !errors.Is(err, dialErr) {
		t.Errorf("Expected wrapped dial error, got %v", err)
	}
}

func TestReconnect_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := Reconnect(ctx, func(context.Context) error {
		called = true
		return nil
	}, nil)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if called {
		t.Error("Expected no attempt with a cancelled context")
	}
}
