package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/pushgate/internal/core/domain"
	"github.com/vietddude/pushgate/internal/infra/storage"
	"github.com/vietddude/pushgate/internal/metrics"
	"github.com/vietddude/pushgate/internal/transport"
)

// ErrTransportUnavailable marks a provider-level failure no retry can
// fix. The dispatch run aborts: un-started batches never run, while
// already-completed batches keep their outcomes.
var ErrTransportUnavailable = errors.New("push transport unavailable")

// Config bounds a dispatch run.
type Config struct {
	// MaxBatchSize caps endpoints per provider call. Zero means use the
	// transport's own limit; the transport limit wins when smaller.
	MaxBatchSize int `yaml:"max_batch_size"`

	// MaxInFlight caps concurrently dispatched batches.
	MaxInFlight int `yaml:"max_in_flight"`

	Retry RetryPolicy `yaml:"retry"`
}

func DefaultConfig() Config {
	return Config{
		MaxBatchSize: 500,
		MaxInFlight:  4,
		Retry:        DefaultRetryPolicy(),
	}
}

// Engine turns one notification into provider deliveries: resolve the
// addressing, partition into batches, push every batch through the
// retrier, then reconcile tokens the provider reported dead.
type Engine struct {
	resolver  *Resolver
	retrier   *Retrier
	endpoints storage.EndpointStore
	transport transport.Transport
	cfg       Config
}

func NewEngine(endpoints storage.EndpointStore, t transport.Transport, cfg Config) *Engine {
	if cfg.MaxInFlight < 1 {
		cfg.MaxInFlight = 1
	}
	return &Engine{
		resolver:  NewResolver(endpoints),
		retrier:   NewRetrier(t, cfg.Retry),
		endpoints: endpoints,
		transport: t,
		cfg:       cfg,
	}
}

// batchSize returns the effective batch cap for the configured transport.
func (e *Engine) batchSize() int {
	size := e.cfg.MaxBatchSize
	limit := e.transport.MaxBatchSize()
	if size <= 0 || (limit > 0 && size > limit) {
		size = limit
	}
	if size <= 0 {
		size = 500
	}
	return size
}

// Dispatch delivers one notification to everything its addressing
// resolves to. The returned result covers completed batches only. The
// error is non-nil when the notification is rejected up front or the
// transport became unusable mid-run; cancellation is not an error and
// shows up as the Canceled flag instead.
func (e *Engine) Dispatch(ctx context.Context, n *domain.Notification) (*domain.DispatchResult, error) {
	if err := n.Validate(); err != nil {
		return nil, fmt.Errorf("invalid notification: %w", err)
	}

	start := time.Now()
	endpoints, err := e.resolver.Resolve(ctx, n.Addressing)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve addressing: %w", err)
	}

	result := &domain.DispatchResult{}
	if len(endpoints) == 0 {
		slog.Info("Dispatch resolved no endpoints",
			"notification", n.ID,
			"addressing", n.Addressing.String())
		return result, nil
	}

	batches := Partition(endpoints, e.batchSize())
	slog.Info("Dispatching notification",
		"notification", n.ID,
		"addressing", n.Addressing.String(),
		"endpoints", len(endpoints),
		"batches", len(batches),
		"transport", e.transport.Name())

	outcomes := make([]domain.BatchOutcome, len(batches))
	batchErrs := make([]error, len(batches))

	// runCtx stops un-started batches once any batch reports the
	// transport unusable; in-flight attempts still run to completion.
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	sem := make(chan struct{}, e.cfg.MaxInFlight)
	var wg sync.WaitGroup
	for i, batch := range batches {
		select {
		case <-runCtx.Done():
		case sem <- struct{}{}:
		}
		if runCtx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(i int, batch []domain.Endpoint) {
			defer wg.Done()
			defer func() { <-sem }()
			out, err := e.retrier.SendBatch(runCtx, batch, n)
			outcomes[i], batchErrs[i] = out, err
			if errors.Is(err, ErrTransportUnavailable) {
				stop()
			}
		}(i, batch)
	}
	wg.Wait()

	var fatal error
	for _, err := range batchErrs {
		if errors.Is(err, ErrTransportUnavailable) {
			fatal = err
			break
		}
	}
	for _, out := range outcomes {
		result.Merge(out)
	}
	result.Canceled = ctx.Err() != nil

	e.reconcile(context.WithoutCancel(ctx), result.InvalidEndpoints)

	metrics.DispatchDuration.WithLabelValues(e.transport.Name()).Observe(time.Since(start).Seconds())
	metrics.NotificationsSent.WithLabelValues(e.transport.Name()).Add(float64(result.Delivered))
	metrics.NotificationsFailed.WithLabelValues(e.transport.Name()).Add(float64(result.Failed))

	slog.Info("Dispatch finished",
		"notification", n.ID,
		"summary", result.Summary(),
		"invalid", len(result.InvalidEndpoints),
		"canceled", result.Canceled,
		"duration", time.Since(start))

	if fatal != nil {
		return result, fatal
	}
	return result, nil
}

// reconcile removes registrations the provider reported dead, matching
// the exact stored tuple. Failures are logged and swallowed:
// reconciliation never breaks a dispatch.
func (e *Engine) reconcile(ctx context.Context, invalid []domain.Endpoint) {
	for _, ep := range invalid {
		if ep.OwnerID == "" && ep.DeviceID == "" {
			// Raw-token sends are not backed by a stored registration.
			continue
		}
		if err := e.endpoints.Delete(ctx, ep.OwnerID, ep.DeviceID, ep.Token); err != nil {
			slog.Warn("Failed to remove invalid endpoint",
				"owner", ep.OwnerID,
				"device", ep.DeviceID,
				"error", err)
			continue
		}
		metrics.InvalidEndpointsRemoved.Inc()
		slog.Info("Removed invalid endpoint",
			"owner", ep.OwnerID,
			"device", ep.DeviceID)
	}
}
