package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/vietddude/pushgate/internal/core/domain"
	"github.com/vietddude/pushgate/internal/metrics"
	"github.com/vietddude/pushgate/internal/transport"
)

// RetryPolicy defines retry behavior for whole-batch provider calls.
type RetryPolicy struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialDelay    time.Duration `yaml:"initial_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	BackoffMultiple float64       `yaml:"backoff_multiple"`
	AttemptTimeout  time.Duration `yaml:"attempt_timeout"`
}

// DefaultRetryPolicy follows the provider guidance: three attempts with
// 2s then 4s between them.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialDelay:    2 * time.Second,
		MaxDelay:        30 * time.Second,
		BackoffMultiple: 2.0,
		AttemptTimeout:  30 * time.Second,
	}
}

// Delay returns the wait after the given zero-based attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.BackoffMultiple, float64(attempt))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

// Retrier drives one batch through the transport until it is delivered,
// exhausted, or the transport turns out to be unusable.
type Retrier struct {
	transport transport.Transport
	policy    RetryPolicy

	// sleep is swapped out by tests to observe delays without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetrier(t transport.Transport, policy RetryPolicy) *Retrier {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.BackoffMultiple <= 0 {
		policy.BackoffMultiple = 2.0
	}
	return &Retrier{
		transport: t,
		policy:    policy,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// SendBatch delivers one batch, retrying whole-call transient failures
// with exponential backoff. Per-token failures reported by the provider
// are final and never retried. The returned error is non-nil only when
// the transport is unusable (wraps ErrTransportUnavailable) or the run
// context was canceled between attempts; in both cases the batch did
// not complete and the outcome is empty.
func (r *Retrier) SendBatch(ctx context.Context, batch []domain.Endpoint, n *domain.Notification) (domain.BatchOutcome, error) {
	if err := ctx.Err(); err != nil {
		return domain.BatchOutcome{}, err
	}

	var lastErr error
	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := r.policy.Delay(attempt - 1)
			metrics.BatchRetries.WithLabelValues(r.transport.Name()).Inc()
			slog.Warn("Retrying batch",
				"transport", r.transport.Name(),
				"attempt", attempt+1,
				"delay", delay,
				"error", lastErr)
			if err := r.sleep(ctx, delay); err != nil {
				return domain.BatchOutcome{}, err
			}
		}

		report, err := r.attempt(ctx, batch, n)
		if err == nil {
			return outcomeFor(batch, report), nil
		}
		if ClassifyError(err) == SeverityFatal {
			return domain.BatchOutcome{}, fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
		}
		lastErr = err
	}

	// Retries exhausted: the batch failed, but none of its tokens are
	// known to be invalid.
	slog.Error("Batch exhausted retries",
		"transport", r.transport.Name(),
		"size", len(batch),
		"attempts", r.policy.MaxAttempts,
		"error", lastErr)
	return domain.BatchOutcome{Attempted: len(batch), Failed: len(batch)}, nil
}

// attempt runs a single provider call. The call is detached from run
// cancellation so an in-flight attempt always completes; cancellation
// is honored between attempts.
func (r *Retrier) attempt(ctx context.Context, batch []domain.Endpoint, n *domain.Notification) (*transport.SendReport, error) {
	callCtx := context.WithoutCancel(ctx)
	if r.policy.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, r.policy.AttemptTimeout)
		defer cancel()
	}
	return r.transport.SendBatch(callCtx, batch, n)
}

// outcomeFor folds the provider's per-token verdicts into a batch tally.
// Tokens the provider left unanswered count as failed.
func outcomeFor(batch []domain.Endpoint, report *transport.SendReport) domain.BatchOutcome {
	out := domain.BatchOutcome{Attempted: len(batch)}
	for i, res := range report.Results {
		if i >= len(batch) {
			break
		}
		if res.Delivered {
			out.Delivered++
			continue
		}
		out.Failed++
		if ClassifyCode(res.ErrorCode) == SeverityPermanentInvalid {
			out.InvalidEndpoints = append(out.InvalidEndpoints, batch[i])
		}
	}
	if missing := len(batch) - len(report.Results); missing > 0 {
		out.Failed += missing
	}
	return out
}
