package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vietddude/pushgate/internal/core/domain"
	"github.com/vietddude/pushgate/internal/metrics"
)

// MirroredEndpoints wraps a primary EndpointStore with a write-through
// Mirror. Reads always hit the primary; a failed mirror write is logged
// and counted but never surfaces to callers.
type MirroredEndpoints struct {
	primary EndpointStore
	mirror  Mirror
}

var _ EndpointStore = (*MirroredEndpoints)(nil)

func NewMirroredEndpoints(primary EndpointStore, mirror Mirror) *MirroredEndpoints {
	return &MirroredEndpoints{primary: primary, mirror: mirror}
}

func (m *MirroredEndpoints) Upsert(ctx context.Context, ep domain.Endpoint) error {
	if err := m.primary.Upsert(ctx, ep); err != nil {
		return err
	}
	if err := m.mirror.Save(ctx, ep); err != nil {
		m.reportMirrorError("save", ep.OwnerID, ep.DeviceID, err)
	}
	return nil
}

func (m *MirroredEndpoints) Delete(ctx context.Context, ownerID, deviceID, token string) error {
	if err := m.primary.Delete(ctx, ownerID, deviceID, token); err != nil {
		return err
	}
	// A tuple delete is a no-op when the stored token differs, so sync
	// the mirror from whatever the primary holds now.
	ep, err := m.primary.Find(ctx, ownerID, deviceID)
	switch {
	case errors.Is(err, ErrEndpointNotFound):
		if err := m.mirror.Remove(ctx, ownerID, deviceID); err != nil {
			m.reportMirrorError("remove", ownerID, deviceID, err)
		}
	case err == nil:
		if err := m.mirror.Save(ctx, ep); err != nil {
			m.reportMirrorError("save", ownerID, deviceID, err)
		}
	default:
		m.reportMirrorError("sync", ownerID, deviceID, err)
	}
	return nil
}

func (m *MirroredEndpoints) Touch(ctx context.Context, ownerID, deviceID string, at time.Time) error {
	if err := m.primary.Touch(ctx, ownerID, deviceID, at); err != nil {
		return err
	}
	if ep, err := m.primary.Find(ctx, ownerID, deviceID); err == nil {
		if err := m.mirror.Save(ctx, ep); err != nil {
			m.reportMirrorError("save", ownerID, deviceID, err)
		}
	}
	return nil
}

func (m *MirroredEndpoints) Find(ctx context.Context, ownerID, deviceID string) (domain.Endpoint, error) {
	return m.primary.Find(ctx, ownerID, deviceID)
}

func (m *MirroredEndpoints) FindByOwner(ctx context.Context, ownerID string) ([]domain.Endpoint, error) {
	return m.primary.FindByOwner(ctx, ownerID)
}

func (m *MirroredEndpoints) FindByOwners(ctx context.Context, ownerIDs []string) ([]domain.Endpoint, error) {
	return m.primary.FindByOwners(ctx, ownerIDs)
}

func (m *MirroredEndpoints) FindAll(ctx context.Context) ([]domain.Endpoint, error) {
	return m.primary.FindAll(ctx)
}

func (m *MirroredEndpoints) FindStale(ctx context.Context, before time.Time) ([]domain.Endpoint, error) {
	return m.primary.FindStale(ctx, before)
}

func (m *MirroredEndpoints) CountByPlatform(ctx context.Context) (map[domain.Platform]int, error) {
	return m.primary.CountByPlatform(ctx)
}

func (m *MirroredEndpoints) reportMirrorError(op, ownerID, deviceID string, err error) {
	metrics.MirrorErrors.Inc()
	slog.Warn("Endpoint mirror write failed",
		"op", op,
		"owner", ownerID,
		"device", deviceID,
		"error", err)
}
