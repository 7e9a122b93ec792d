package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/pushgate/internal/core/domain"
	"github.com/vietddude/pushgate/internal/infra/storage"
)

// MemoryStorage keeps registrations and dispatch history in process.
// Used by tests and by deployments that run without a database.
type MemoryStorage struct {
	endpoints  map[string]domain.Endpoint
	dispatches []domain.DispatchRecord
	mu         sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		endpoints: make(map[string]domain.Endpoint),
	}
}

func key(ownerID, deviceID string) string {
	return ownerID + "\x00" + deviceID
}

// -----------------------------------------------------------------------------
// Endpoint Repository
// -----------------------------------------------------------------------------

type EndpointRepo struct {
	store *MemoryStorage
}

var _ storage.EndpointStore = (*EndpointRepo)(nil)

func NewEndpointRepo(store *MemoryStorage) *EndpointRepo {
	return &EndpointRepo{store: store}
}

func (r *EndpointRepo) Upsert(ctx context.Context, ep domain.Endpoint) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.endpoints[key(ep.OwnerID, ep.DeviceID)] = ep
	return nil
}

func (r *EndpointRepo) Delete(ctx context.Context, ownerID, deviceID, token string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	k := key(ownerID, deviceID)
	// Only the exact tuple is deleted; a rotated token survives.
	if cur, ok := r.store.endpoints[k]; ok && cur.Token == token {
		delete(r.store.endpoints, k)
	}
	return nil
}

func (r *EndpointRepo) Find(ctx context.Context, ownerID, deviceID string) (domain.Endpoint, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if ep, ok := r.store.endpoints[key(ownerID, deviceID)]; ok {
		return ep, nil
	}
	return domain.Endpoint{}, storage.ErrEndpointNotFound
}

func (r *EndpointRepo) FindByOwner(ctx context.Context, ownerID string) ([]domain.Endpoint, error) {
	return r.collect(func(ep domain.Endpoint) bool {
		return ep.OwnerID == ownerID
	}), nil
}

func (r *EndpointRepo) FindByOwners(ctx context.Context, ownerIDs []string) ([]domain.Endpoint, error) {
	owners := make(map[string]bool, len(ownerIDs))
	for _, id := range ownerIDs {
		owners[id] = true
	}
	return r.collect(func(ep domain.Endpoint) bool {
		return owners[ep.OwnerID]
	}), nil
}

func (r *EndpointRepo) FindAll(ctx context.Context) ([]domain.Endpoint, error) {
	return r.collect(func(domain.Endpoint) bool { return true }), nil
}

func (r *EndpointRepo) FindStale(ctx context.Context, before time.Time) ([]domain.Endpoint, error) {
	return r.collect(func(ep domain.Endpoint) bool {
		return ep.LastConfirmedAt.Before(before)
	}), nil
}

func (r *EndpointRepo) Touch(ctx context.Context, ownerID, deviceID string, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	k := key(ownerID, deviceID)
	if ep, ok := r.store.endpoints[k]; ok {
		ep.LastConfirmedAt = at
		r.store.endpoints[k] = ep
	}
	return nil
}

func (r *EndpointRepo) CountByPlatform(ctx context.Context) (map[domain.Platform]int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	counts := make(map[domain.Platform]int)
	for _, ep := range r.store.endpoints {
		counts[ep.Platform]++
	}
	return counts, nil
}

// collect filters endpoints and returns them ordered by (owner, device)
// so callers see a stable order, as the SQL store does.
func (r *EndpointRepo) collect(match func(domain.Endpoint) bool) []domain.Endpoint {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []domain.Endpoint
	for _, ep := range r.store.endpoints {
		if match(ep) {
			out = append(out, ep)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OwnerID != out[j].OwnerID {
			return out[i].OwnerID < out[j].OwnerID
		}
		return out[i].DeviceID < out[j].DeviceID
	})
	return out
}

// -----------------------------------------------------------------------------
// Dispatch Log Repository
// -----------------------------------------------------------------------------

type DispatchRepo struct {
	store *MemoryStorage
}

var _ storage.DispatchLogStore = (*DispatchRepo)(nil)

func NewDispatchRepo(store *MemoryStorage) *DispatchRepo {
	return &DispatchRepo{store: store}
}

func (r *DispatchRepo) Record(ctx context.Context, rec *domain.DispatchRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.dispatches = append(r.store.dispatches, *rec)
	return nil
}

func (r *DispatchRepo) Recent(ctx context.Context, limit int) ([]*domain.DispatchRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if limit <= 0 || limit > len(r.store.dispatches) {
		limit = len(r.store.dispatches)
	}
	out := make([]*domain.DispatchRecord, 0, limit)
	for i := len(r.store.dispatches) - 1; i >= 0 && len(out) < limit; i-- {
		rec := r.store.dispatches[i]
		out = append(out, &rec)
	}
	return out, nil
}
