package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/pushgate/internal/core/domain"
	"github.com/vietddude/pushgate/internal/infra/storage"
)

// EndpointRepo implements storage.EndpointStore using PostgreSQL.
type EndpointRepo struct {
	db *DB
}

var _ storage.EndpointStore = (*EndpointRepo)(nil)

// NewEndpointRepo creates a new PostgreSQL endpoint repository.
func NewEndpointRepo(db *DB) *EndpointRepo {
	return &EndpointRepo{db: db}
}

// Upsert inserts a registration or rotates the stored token of an
// existing (owner, device) pair in place.
func (r *EndpointRepo) Upsert(ctx context.Context, ep domain.Endpoint) error {
	query := `
		INSERT INTO endpoints (owner_id, device_id, token, platform, last_confirmed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_id, device_id) DO UPDATE SET
			token = EXCLUDED.token,
			platform = EXCLUDED.platform,
			last_confirmed_at = EXCLUDED.last_confirmed_at
	`

	_, err := r.db.ExecContext(ctx, query,
		ep.OwnerID,
		ep.DeviceID,
		ep.Token,
		string(ep.Platform),
		ep.LastConfirmedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert endpoint: %w", err)
	}
	return nil
}

// Delete removes the registration matching the exact tuple. Rows whose
// token has rotated since are left alone; deleting nothing is a no-op.
func (r *EndpointRepo) Delete(ctx context.Context, ownerID, deviceID, token string) error {
	query := `DELETE FROM endpoints WHERE owner_id = $1 AND device_id = $2 AND token = $3`

	if _, err := r.db.ExecContext(ctx, query, ownerID, deviceID, token); err != nil {
		return fmt.Errorf("failed to delete endpoint: %w", err)
	}
	return nil
}

// Find retrieves the registration of one (owner, device) pair.
func (r *EndpointRepo) Find(ctx context.Context, ownerID, deviceID string) (domain.Endpoint, error) {
	query := `
		SELECT owner_id, device_id, token, platform, last_confirmed_at
		FROM endpoints
		WHERE owner_id = $1 AND device_id = $2
	`

	var ep domain.Endpoint
	err := r.db.GetContext(ctx, &ep, query, ownerID, deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Endpoint{}, storage.ErrEndpointNotFound
	}
	if err != nil {
		return domain.Endpoint{}, fmt.Errorf("failed to find endpoint: %w", err)
	}
	return ep, nil
}

// FindByOwner retrieves all endpoints registered to one owner.
func (r *EndpointRepo) FindByOwner(ctx context.Context, ownerID string) ([]domain.Endpoint, error) {
	query := `
		SELECT owner_id, device_id, token, platform, last_confirmed_at
		FROM endpoints
		WHERE owner_id = $1
		ORDER BY device_id
	`

	var eps []domain.Endpoint
	if err := r.db.SelectContext(ctx, &eps, query, ownerID); err != nil {
		return nil, fmt.Errorf("failed to find endpoints by owner: %w", err)
	}
	return eps, nil
}

// FindByOwners retrieves all endpoints registered to any of the owners.
func (r *EndpointRepo) FindByOwners(ctx context.Context, ownerIDs []string) ([]domain.Endpoint, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT owner_id, device_id, token, platform, last_confirmed_at
		FROM endpoints
		WHERE owner_id = ANY($1)
		ORDER BY owner_id, device_id
	`

	var eps []domain.Endpoint
	if err := r.db.SelectContext(ctx, &eps, query, pq.Array(ownerIDs)); err != nil {
		return nil, fmt.Errorf("failed to find endpoints by owners: %w", err)
	}
	return eps, nil
}

// FindAll retrieves every registered endpoint.
func (r *EndpointRepo) FindAll(ctx context.Context) ([]domain.Endpoint, error) {
	query := `
		SELECT owner_id, device_id, token, platform, last_confirmed_at
		FROM endpoints
		ORDER BY owner_id, device_id
	`

	var eps []domain.Endpoint
	if err := r.db.SelectContext(ctx, &eps, query); err != nil {
		return nil, fmt.Errorf("failed to find all endpoints: %w", err)
	}
	return eps, nil
}

// FindStale retrieves endpoints not confirmed since the given time,
// oldest first so the sweeper deals with the rustiest tokens first.
func (r *EndpointRepo) FindStale(ctx context.Context, before time.Time) ([]domain.Endpoint, error) {
	query := `
		SELECT owner_id, device_id, token, platform, last_confirmed_at
		FROM endpoints
		WHERE last_confirmed_at < $1
		ORDER BY last_confirmed_at
	`

	var eps []domain.Endpoint
	if err := r.db.SelectContext(ctx, &eps, query, before); err != nil {
		return nil, fmt.Errorf("failed to find stale endpoints: %w", err)
	}
	return eps, nil
}

// Touch refreshes the confirmation time of an (owner, device) pair.
func (r *EndpointRepo) Touch(ctx context.Context, ownerID, deviceID string, at time.Time) error {
	query := `UPDATE endpoints SET last_confirmed_at = $3 WHERE owner_id = $1 AND device_id = $2`

	if _, err := r.db.ExecContext(ctx, query, ownerID, deviceID, at); err != nil {
		return fmt.Errorf("failed to touch endpoint: %w", err)
	}
	return nil
}

// CountByPlatform returns registration counts grouped by platform.
func (r *EndpointRepo) CountByPlatform(ctx context.Context) (map[domain.Platform]int, error) {
	query := `SELECT platform, COUNT(*) AS n FROM endpoints GROUP BY platform`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count endpoints: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Platform]int)
	for rows.Next() {
		var platform string
		var n int
		if err := rows.Scan(&platform, &n); err != nil {
			return nil, fmt.Errorf("failed to scan platform count: %w", err)
		}
		counts[domain.Platform(platform)] = n
	}
	return counts, rows.Err()
}
