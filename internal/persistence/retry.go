package persistence

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// RetryConfig holds the backoff settings of a RetryingStore.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig returns the settings used when none are configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// RetryingStore retries operations that fail with ErrUnavailable. Every
// store operation is idempotent, so repeating a write that may have landed is
// safe.
type RetryingStore struct {
	next   Store
	config RetryConfig
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetryingStore wraps next with exponential backoff.
func NewRetryingStore(next Store, config RetryConfig, logger *slog.Logger) *RetryingStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryingStore{next: next, config: config, logger: logger, sleep: sleepContext}
}

func (s *RetryingStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.withRetry(ctx, "get", key, func() error {
		var err error
		value, err = s.next.Get(ctx, key)
		return err
	})
	return value, err
}

func (s *RetryingStore) Set(ctx context.Context, key string, value []byte) error {
	return s.withRetry(ctx, "set", key, func() error {
		return s.next.Set(ctx, key, value)
	})
}

func (s *RetryingStore) Delete(ctx context.Context, key string) error {
	return s.withRetry(ctx, "delete", key, func() error {
		return s.next.Delete(ctx, key)
	})
}

func (s *RetryingStore) GetByPrefix(ctx context.Context, prefix string) ([]Entry, error) {
	var entries []Entry
	err := s.withRetry(ctx, "get_by_prefix", prefix, func() error {
		var err error
		entries, err = s.next.GetByPrefix(ctx, prefix)
		return err
	})
	return entries, err
}

func (s *RetryingStore) withRetry(ctx context.Context, op, key string, fn func() error) error {
	delay := s.config.InitialDelay
	var err error
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			s.logger.WarnContext(ctx, "retrying store operation",
				"operation", op,
				"key", key,
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
			if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
				return sleepErr
			}
			delay = time.Duration(float64(delay) * s.config.BackoffFactor)
			if s.config.MaxDelay > 0 && delay > s.config.MaxDelay {
				delay = s.config.MaxDelay
			}
		}

		err = fn()
		if err == nil || !errors.Is(err, ErrUnavailable) {
			return err
		}
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
