package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:      maxRetries,
		InitialInterval: time.Millisecond,
		MaxInterval:     10 * time.Millisecond,
		Multiplier:      2.0,
		JitterFactor:    0,
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", config.MaxRetries)
	}
	if config.InitialInterval != 1*time.Second {
		t.Errorf("InitialInterval = %v, want 1s", config.InitialInterval)
	}
	if config.MaxInterval != 30*time.Second {
		t.Errorf("MaxInterval = %v, want 30s", config.MaxInterval)
	}
	if config.Multiplier != 2.0 {
		t.Errorf("Multiplier = %f, want 2.0", config.Multiplier)
	}
	if config.JitterFactor != 0.1 {
		t.Errorf("JitterFactor = %f, want 0.1", config.JitterFactor)
	}
}

func TestDo_Success(t *testing.T) {
	attempts := 0
	result := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
		attempts++
		return nil
	})

	if result.Err != nil {
		t.Errorf("Err = %v, want nil", result.Err)
	}
	if result.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", result.Attempts)
	}
	if attempts != 1 {
		t.Errorf("Operation called %d times, want 1", attempts)
	}
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	attempts := 0
	result := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	if result.Err != nil {
		t.Errorf("Err = %v, want nil", result.Err)
	}
	if result.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", result.Attempts)
	}
}

func TestDo_MaxAttemptsExceeded(t *testing.T) {
	cause := errors.New("always fails")
	attempts := 0
	result := Do(context.Background(), fastConfig(2), func(ctx context.Context) error {
		attempts++
		return cause
	})

	if !errors.Is(result.Err, ErrMaxAttemptsExceeded) {
		t.Errorf("Err = %v, want ErrMaxAttemptsExceeded", result.Err)
	}
	if result.LastError != cause {
		t.Errorf("LastError = %v, want %v", result.LastError, cause)
	}
	// initial attempt plus 2 retries
	if attempts != 3 {
		t.Errorf("Operation called %d times, want 3", attempts)
	}
}

func TestDo_PermanentErrorStopsRetries(t *testing.T) {
	cause := errors.New("bad credentials")
	attempts := 0
	result := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		attempts++
		return Permanent(cause)
	})

	if result.Err != cause {
		t.Errorf("Err = %v, want %v", result.Err, cause)
	}
	if attempts != 1 {
		t.Errorf("Operation called %d times, want 1", attempts)
	}
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := Do(ctx, fastConfig(3), func(ctx context.Context) error {
		return errors.New("should not matter")
	})

	if !errors.Is(result.Err, ErrContextCanceled) {
		t.Errorf("Err = %v, want ErrContextCanceled", result.Err)
	}
}

func TestDo_CallbackInvokedBeforeEachWait(t *testing.T) {
	var callbacks []int
	Do(context.Background(), fastConfig(2), func(ctx context.Context) error {
		return errors.New("fail")
	})

	DoWithCallback(context.Background(), fastConfig(2), func(ctx context.Context) error {
		return errors.New("fail")
	}, func(attempt int, err error, next time.Duration) {
		callbacks = append(callbacks, attempt)
	})

	if len(callbacks) != 2 {
		t.Fatalf("callback invoked %d times, want 2", len(callbacks))
	}
	if callbacks[0] != 1 || callbacks[1] != 2 {
		t.Errorf("callback attempts = %v, want [1 2]", callbacks)
	}
}

func TestBackoffIntervalCapped(t *testing.T) {
	cfg := &Config{
		InitialInterval: time.Second,
		MaxInterval:     4 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0,
	}

	if got := backoffInterval(cfg, 0); got != time.Second {
		t.Errorf("attempt 0 interval = %v, want 1s", got)
	}
	if got := backoffInterval(cfg, 1); got != 2*time.Second {
		t.Errorf("attempt 1 interval = %v, want 2s", got)
	}
	if got := backoffInterval(cfg, 10); got != 4*time.Second {
		t.Errorf("attempt 10 interval = %v, want capped 4s", got)
	}
}
