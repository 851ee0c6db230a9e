// Package retrymanager wraps a callable so transient failures are retried
// with exponential backoff plus jitter (spec §4.2). The algorithm is
// deterministic except for jitter, so both Sleep and RNG are injectable —
// production wiring uses a context-aware timer wait and math/rand, tests inject a fake clock
// and a fixed sequence.
package retrymanager

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/legout/flowerpower/internal/config"
)

// Classifier maps an error to the registered error-kind name used to match
// against RetryPolicy.RetryExceptions (spec §4.1's string-named exception
// kinds). Callers that don't care about fine-grained matching can pass
// AlwaysRetryable, which reports every error as "any".
type Classifier func(error) string

// AlwaysRetryable classifies every error as retryable.
func AlwaysRetryable(error) string { return "any" }

// Manager executes an operation under a RetryPolicy.
type Manager struct {
	policy     config.RetryPolicy
	classify   Classifier
	sleep      func(context.Context, time.Duration) error
	rng        func() float64
	logger     *slog.Logger
	contextTag string
}

// Option configures a Manager beyond the policy.
type Option func(*Manager)

// WithClassifier overrides how errors are matched against RetryExceptions.
func WithClassifier(c Classifier) Option { return func(m *Manager) { m.classify = c } }

// WithRNG overrides the jitter source; rng must return values in [0, 1).
func WithRNG(rng func() float64) Option { return func(m *Manager) { m.rng = rng } }

// WithSleep overrides the delay function. The default blocks on a timer
// but still honors context cancellation.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(m *Manager) { m.sleep = sleep }
}

// WithLogger attaches a logger; defaults to slog.Default().
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.logger = l } }

// New builds a Manager for the given policy and context name (used only for
// logging, spec §4.2's `context_name`).
func New(policy config.RetryPolicy, contextName string, opts ...Option) *Manager {
	m := &Manager{
		policy:     policy,
		classify:   AlwaysRetryable,
		sleep:      contextSleep,
		rng:        defaultRNG,
		logger:     slog.Default(),
		contextTag: contextName,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Execute runs operation, retrying on classified-retryable errors up to
// policy.MaxRetries times with exponential backoff plus jitter (spec §4.2's
// documented algorithm). onSuccess is invoked exactly once with the result
// on the attempt that succeeds; onFailure is invoked exactly once, on the
// terminal (non-retried or retries-exhausted) error. Callback panics/errors
// are logged and never mask the primary outcome.
func (m *Manager) Execute(ctx context.Context, operation func(context.Context) (any, error), onSuccess func(any), onFailure func(error)) (any, error) {
	start := time.Now()
	attempt := 0
	for {
		result, err := operation(ctx)
		if err == nil {
			m.safeCall(func() { onSuccess(result) })
			m.logger.Info("operation succeeded",
				slog.String("context", m.contextTag),
				slog.Int("attempts", attempt+1),
				slog.String("elapsed", time.Since(start).Round(time.Millisecond).String()))
			return result, nil
		}

		kind := m.classify(err)
		if !m.policy.Matches(kind) || attempt >= m.policy.MaxRetries {
			m.safeCall(func() { onFailure(err) })
			return nil, err
		}

		delay := m.backoffDelay(attempt)
		m.logger.Warn("operation failed, retrying",
			slog.String("context", m.contextTag),
			slog.Int("attempt", attempt+1),
			slog.String("delay", delay.Round(time.Millisecond).String()),
			slog.Any("error", err))
		if sleepErr := m.sleep(ctx, delay); sleepErr != nil {
			m.safeCall(func() { onFailure(err) })
			return nil, errors.Join(err, sleepErr)
		}
		attempt++
	}
}

// backoffDelay computes retry_delay * 2^attempt plus jitter in
// [0, base_delay*jitter_factor), exactly as spec §4.2 documents.
func (m *Manager) backoffDelay(attempt int) time.Duration {
	base := m.policy.RetryDelay * math.Pow(2, float64(attempt))
	jitter := base * m.policy.JitterFactor * m.rng()
	return time.Duration((base + jitter) * float64(time.Second))
}

func (m *Manager) safeCall(f func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("retry callback panicked", slog.String("context", m.contextTag), slog.Any("panic", r))
		}
	}()
	f()
}
