// Package provider bounds calls to the embedding and language model
// backends: every attempt gets its own timeout and a failed attempt is
// retried a fixed number of times before a typed *Error is returned.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"edital-assistant/internal/config"
)

// ErrUnavailable matches every *Error via errors.Is.
var ErrUnavailable = errors.New("provider unavailable")

// Error reports a backend call that still failed after all attempts.
type Error struct {
	Provider string
	Op       string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s failed after %d attempt(s): %v", e.Provider, e.Op, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrUnavailable }

type Policy struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

func PolicyFromConfig(cfg config.ProviderConfig) Policy {
	p := Policy{
		Timeout:    time.Duration(cfg.TimeoutSecs) * time.Second,
		RetryDelay: time.Duration(cfg.RetryDelayMs) * time.Millisecond,
	}
	if cfg.MaxRetries != nil {
		p.MaxRetries = *cfg.MaxRetries
	}
	return p
}

// Call runs fn under the policy. Cancellation of ctx by the caller stops
// retrying and is returned as is, not as a provider failure.
func Call[T any](ctx context.Context, p Policy, name, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := 1 + max(p.MaxRetries, 0)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		res, err := callOnce(ctx, p.Timeout, fn)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		lastErr = err
		log.Warn().Err(err).Str("provider", name).Str("op", op).Int("attempt", attempt).Msg("provider call failed")

		if attempt < attempts && p.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(p.RetryDelay):
			}
		}
	}
	return zero, &Error{Provider: name, Op: op, Attempts: attempts, Err: lastErr}
}

func callOnce[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}
