// Package transport defines the provider-facing side of the dispatcher.
// An implementation translates one batch of endpoints plus a notification
// into a single provider call and reports per-token verdicts back.
package transport

import (
	"context"
	"fmt"

	"github.com/vietddude/pushgate/internal/core/domain"
)

// TokenResult is the provider's verdict for a single token. Results come
// back index-aligned with the endpoints that were sent.
type TokenResult struct {
	Token     string
	Delivered bool
	ErrorCode string // provider error code when not delivered
}

// SendReport is the parsed provider response for one accepted batch call.
type SendReport struct {
	Results []TokenResult
}

// Delivered counts the tokens the provider accepted.
func (r *SendReport) Delivered() int {
	n := 0
	for _, res := range r.Results {
		if res.Delivered {
			n++
		}
	}
	return n
}

// Transport sends one notification to a batch of endpoints in a single
// provider call. SendBatch returns a report whenever the provider
// processed the call, even if individual tokens failed; a non-nil error
// means the whole call failed and no per-token verdicts exist.
type Transport interface {
	Name() string
	MaxBatchSize() int
	SendBatch(ctx context.Context, endpoints []domain.Endpoint, n *domain.Notification) (*SendReport, error)
}

// TokenValidator is implemented by transports that can check a single
// token without delivering anything (provider dry run). A nil return
// means the token is still live.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) error
}

// StatusError is a whole-call failure carrying the provider's HTTP status.
type StatusError struct {
	Transport string
	Status    int
	Body      string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Transport, e.Status, e.Body)
}

// TokenError is a single-token provider verdict surfaced as an error,
// used by validation dry runs.
type TokenError struct {
	Token string
	Code  string
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("token rejected: %s", e.Code)
}
