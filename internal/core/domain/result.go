package domain

import "fmt"

// BatchOutcome tallies a single batch after its retries settled.
// Attempted == Delivered + Failed; invalid endpoints are a subset of
// the failed ones.
type BatchOutcome struct {
	Attempted        int
	Delivered        int
	Failed           int
	InvalidEndpoints []Endpoint
}

// DispatchResult aggregates every completed batch of one dispatch run.
// Batches that never started (cancellation, transport failure) are not
// counted here.
type DispatchResult struct {
	Attempted        int        `json:"attempted"`
	Delivered        int        `json:"delivered"`
	Failed           int        `json:"failed"`
	InvalidEndpoints []Endpoint `json:"invalid_endpoints,omitempty"`
	Canceled         bool       `json:"canceled,omitempty"`
}

// Merge folds a batch outcome into the running totals.
func (r *DispatchResult) Merge(out BatchOutcome) {
	r.Attempted += out.Attempted
	r.Delivered += out.Delivered
	r.Failed += out.Failed
	r.InvalidEndpoints = append(r.InvalidEndpoints, out.InvalidEndpoints...)
}

// Summary renders the delivery line used in logs and status output.
func (r *DispatchResult) Summary() string {
	return fmt.Sprintf("sent to %d/%d devices", r.Delivered, r.Attempted)
}
