package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func fastReconnect(attempts int) ReconnectConfig {
	return ReconnectConfig{
		MaxAttempts: attempts,
		Backoff:     time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  4 * time.Millisecond,
	}
}

func TestReconnect_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Reconnect(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("refused")
		}
		return nil
	}, fastReconnect(5), zerolog.Nop())

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestReconnect_GivesUp(t *testing.T) {
	cause := errors.New("refused")
	calls := 0
	err := Reconnect(context.Background(), func() error {
		calls++
		return cause
	}, fastReconnect(4), zerolog.Nop())

	if !errors.Is(err, cause) {
		t.Errorf("Expected wrapped cause, got %v", err)
	}
	if calls != 4 {
		t.Errorf("Expected 4 calls, got %d", calls)
	}
}

func TestReconnect_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Reconnect(ctx, func() error {
		calls++
		cancel()
		return errors.New("refused")
	}, ReconnectConfig{MaxAttempts: 5, Backoff: time.Second, Multiplier: 2}, zerolog.Nop())

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}
