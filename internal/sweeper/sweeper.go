// Package sweeper revalidates endpoints that have not been confirmed
// recently. Tokens rot silently: a device that reinstalls the app or
// goes offline for months keeps its row until a dispatch happens to hit
// it. The sweeper finds those rows proactively with provider dry runs.
package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vietddude/pushgate/internal/dispatch"
	"github.com/vietddude/pushgate/internal/infra/storage"
	"github.com/vietddude/pushgate/internal/metrics"
	"github.com/vietddude/pushgate/internal/transport"
)

// Config controls the background sweep.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// Interval between passes.
	Interval time.Duration `yaml:"interval"`

	// StaleAfter is how long an endpoint may go unconfirmed before a
	// pass revalidates it.
	StaleAfter time.Duration `yaml:"stale_after"`
}

func DefaultConfig() Config {
	return Config{
		Interval:   24 * time.Hour,
		StaleAfter: 30 * 24 * time.Hour,
	}
}

// Sweeper runs periodic validation passes over stale endpoints.
type Sweeper struct {
	cfg       Config
	endpoints storage.EndpointStore
	validator transport.TokenValidator
	log       *slog.Logger
}

// New builds a sweeper. Transports without dry-run support yield a
// sweeper whose passes are no-ops.
func New(cfg Config, endpoints storage.EndpointStore, t transport.Transport) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultConfig().StaleAfter
	}
	validator, _ := t.(transport.TokenValidator)
	return &Sweeper{
		cfg:       cfg,
		endpoints: endpoints,
		validator: validator,
		log:       slog.Default(),
	}
}

// Start runs the sweep loop until the context ends.
func (s *Sweeper) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		return
	}
	if s.validator == nil {
		s.log.Warn("Sweeper disabled: transport has no dry-run support")
		return
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	// Initial pass
	if _, _, err := s.Sweep(ctx); err != nil {
		s.log.Error("Sweep failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := s.Sweep(ctx); err != nil {
				s.log.Error("Sweep failed", "error", err)
			}
		}
	}
}

// Sweep runs one validation pass and reports how many endpoints were
// checked and how many were removed. Endpoints that validate get their
// confirmation time refreshed; endpoints whose token the provider
// reports dead are deleted by exact tuple. Transient provider trouble
// leaves the endpoint untouched for the next pass.
func (s *Sweeper) Sweep(ctx context.Context) (checked, removed int, err error) {
	if s.validator == nil {
		return 0, 0, errors.New("transport has no dry-run support")
	}

	cutoff := time.Now().Add(-s.cfg.StaleAfter)
	stale, err := s.endpoints.FindStale(ctx, cutoff)
	if err != nil {
		return 0, 0, err
	}
	if len(stale) == 0 {
		s.log.Debug("Sweep found nothing stale", "cutoff", cutoff)
		return 0, 0, nil
	}

	s.log.Info("Sweeping stale endpoints", "count", len(stale), "cutoff", cutoff)
	now := time.Now().UTC()

	for _, ep := range stale {
		if ctx.Err() != nil {
			return checked, removed, ctx.Err()
		}
		checked++
		metrics.SweepChecked.Inc()

		verr := s.validator.ValidateToken(ctx, ep.Token)
		if verr == nil {
			if terr := s.endpoints.Touch(ctx, ep.OwnerID, ep.DeviceID, now); terr != nil {
				s.log.Warn("Failed to refresh endpoint",
					"owner", ep.OwnerID, "device", ep.DeviceID, "error", terr)
			}
			continue
		}

		var tokenErr *transport.TokenError
		if errors.As(verr, &tokenErr) && dispatch.ClassifyCode(tokenErr.Code) == dispatch.SeverityPermanentInvalid {
			if derr := s.endpoints.Delete(ctx, ep.OwnerID, ep.DeviceID, ep.Token); derr != nil {
				s.log.Warn("Failed to remove stale endpoint",
					"owner", ep.OwnerID, "device", ep.DeviceID, "error", derr)
				continue
			}
			removed++
			metrics.SweepRemoved.Inc()
			s.log.Info("Removed stale endpoint",
				"owner", ep.OwnerID, "device", ep.DeviceID, "code", tokenErr.Code)
			continue
		}

		// Provider trouble, not a verdict on the token. Leave the row
		// for the next pass.
		s.log.Debug("Skipping endpoint on transient validation failure",
			"owner", ep.OwnerID, "device", ep.DeviceID, "error", verr)
	}

	s.log.Info("Sweep finished", "checked", checked, "removed", removed)
	return checked, removed, nil
}
