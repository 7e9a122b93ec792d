package postgres

import (
	"context"
	"fmt"

	"github.com/vietddude/pushgate/internal/core/domain"
	"github.com/vietddude/pushgate/internal/infra/storage"
)

// DispatchRepo implements storage.DispatchLogStore using PostgreSQL.
type DispatchRepo struct {
	db *DB
}

var _ storage.DispatchLogStore = (*DispatchRepo)(nil)

// NewDispatchRepo creates a new PostgreSQL dispatch log repository.
func NewDispatchRepo(db *DB) *DispatchRepo {
	return &DispatchRepo{db: db}
}

// Record appends one dispatch outcome to the log.
func (r *DispatchRepo) Record(ctx context.Context, rec *domain.DispatchRecord) error {
	query := `
		INSERT INTO dispatch_log (id, title, addressing, attempted, delivered, failed, invalid, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.Title,
		rec.Addressing,
		rec.Attempted,
		rec.Delivered,
		rec.Failed,
		rec.Invalid,
		string(rec.Status),
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record dispatch: %w", err)
	}
	return nil
}

// Recent returns the latest dispatch outcomes, newest first.
func (r *DispatchRepo) Recent(ctx context.Context, limit int) ([]*domain.DispatchRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT id, title, addressing, attempted, delivered, failed, invalid, status, created_at
		FROM dispatch_log
		ORDER BY created_at DESC
		LIMIT $1
	`

	var recs []*domain.DispatchRecord
	if err := r.db.SelectContext(ctx, &recs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to load recent dispatches: %w", err)
	}
	return recs, nil
}
