package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/pushgate/internal/core/domain"
)

var (
	// ErrEndpointNotFound is returned when a registration doesn't exist
	ErrEndpointNotFound = errors.New("endpoint not found")
)

// EndpointStore handles device registration storage. Lookups that match
// nothing return an empty slice, not an error.
type EndpointStore interface {
	// Upsert inserts a registration or rotates the token of an existing
	// (owner, device) pair
	Upsert(ctx context.Context, ep domain.Endpoint) error

	// Delete removes the registration matching the exact (owner, device,
	// token) tuple; deleting an absent tuple is a no-op
	Delete(ctx context.Context, ownerID, deviceID, token string) error

	// Find retrieves the registration of one (owner, device) pair,
	// or ErrEndpointNotFound
	Find(ctx context.Context, ownerID, deviceID string) (domain.Endpoint, error)

	// FindByOwner retrieves all endpoints registered to one owner
	FindByOwner(ctx context.Context, ownerID string) ([]domain.Endpoint, error)

	// FindByOwners retrieves all endpoints registered to any of the owners
	FindByOwners(ctx context.Context, ownerIDs []string) ([]domain.Endpoint, error)

	// FindAll retrieves every registered endpoint
	FindAll(ctx context.Context) ([]domain.Endpoint, error)

	// FindStale retrieves endpoints not confirmed since the given time
	FindStale(ctx context.Context, before time.Time) ([]domain.Endpoint, error)

	// Touch refreshes the confirmation time of an (owner, device) pair
	Touch(ctx context.Context, ownerID, deviceID string, at time.Time) error

	// CountByPlatform returns registration counts grouped by platform
	CountByPlatform(ctx context.Context) (map[domain.Platform]int, error)
}

// DispatchLogStore handles the dispatch history log
type DispatchLogStore interface {
	// Record appends one dispatch log row
	Record(ctx context.Context, rec *domain.DispatchRecord) error

	// Recent retrieves the most recent dispatch rows, newest first
	Recent(ctx context.Context, limit int) ([]*domain.DispatchRecord, error)
}

// Mirror is a best-effort secondary copy of the registration set, kept
// in a fast lookup store for other services to read.
type Mirror interface {
	// Save writes or overwrites one endpoint in the mirror
	Save(ctx context.Context, ep domain.Endpoint) error

	// Remove drops one (owner, device) entry from the mirror
	Remove(ctx context.Context, ownerID, deviceID string) error
}
