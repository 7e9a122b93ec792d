package dispatch

import (
	"context"
	"fmt"

	"github.com/vietddude/pushgate/internal/core/domain"
	"github.com/vietddude/pushgate/internal/infra/storage"
)

// Resolver expands addressing into the concrete endpoints to deliver to.
type Resolver struct {
	endpoints storage.EndpointStore
}

func NewResolver(endpoints storage.EndpointStore) *Resolver {
	return &Resolver{endpoints: endpoints}
}

// Resolve returns the endpoints a notification targets, in store order.
// Owners with no registered devices resolve to an empty list, not an
// error. A token registered to several target owners is returned once
// per owner.
func (r *Resolver) Resolve(ctx context.Context, addr domain.Addressing) ([]domain.Endpoint, error) {
	switch addr.Mode {
	case domain.AddressSingleToken:
		// Raw tokens bypass the store; ownership is unknown.
		return []domain.Endpoint{{Token: addr.Token}}, nil
	case domain.AddressSingleUser:
		return r.endpoints.FindByOwner(ctx, addr.OwnerIDs[0])
	case domain.AddressMultipleUsers:
		return r.endpoints.FindByOwners(ctx, addr.OwnerIDs)
	case domain.AddressBroadcast:
		return r.endpoints.FindAll(ctx)
	default:
		return nil, fmt.Errorf("unknown addressing mode: %q", addr.Mode)
	}
}
