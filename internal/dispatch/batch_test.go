package dispatch

import (
	"fmt"
	"testing"

	"github.com/vietddude/pushgate/internal/core/domain"
)

func makeEndpoints(n int) []domain.Endpoint {
	eps := make([]domain.Endpoint, n)
	for i := range eps {
		eps[i] = domain.Endpoint{
			OwnerID:  "owner",
			DeviceID: fmt.Sprintf("dev-%04d", i),
			Token:    fmt.Sprintf("tok-%04d", i),
		}
	}
	return eps
}

func TestPartition_Shapes(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		size      int
		wantSizes []int
	}{
		{"empty", 0, 500, nil},
		{"single partial", 3, 500, []int{3}},
		{"exact fit", 500, 500, []int{500}},
		{"two full", 1000, 500, []int{500, 500}},
		{"full full partial", 1200, 500, []int{500, 500, 200}},
		{"size one", 4, 1, []int{1, 1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batches := Partition(makeEndpoints(tt.total), tt.size)
			if len(batches) != len(tt.wantSizes) {
				t.Fatalf("expected %d batches, got %d", len(tt.wantSizes), len(batches))
			}
			for i, want := range tt.wantSizes {
				if len(batches[i]) != want {
					t.Errorf("batch %d: expected size %d, got %d", i, want, len(batches[i]))
				}
			}
		})
	}
}

func TestPartition_OrderAndCoverage(t *testing.T) {
	eps := makeEndpoints(1200)
	batches := Partition(eps, 500)

	// Re-concatenating the batches must reproduce the input exactly:
	// every endpoint once, in order.
	idx := 0
	for bi, batch := range batches {
		for _, got := range batch {
			if got.Token != eps[idx].Token {
				t.Fatalf("batch %d: expected token %s at position %d, got %s",
					bi, eps[idx].Token, idx, got.Token)
			}
			idx++
		}
	}
	if idx != len(eps) {
		t.Errorf("expected %d endpoints covered, got %d", len(eps), idx)
	}
}

func TestPartition_NonPositiveSize(t *testing.T) {
	batches := Partition(makeEndpoints(3), 0)
	if len(batches) != 3 {
		t.Errorf("expected size 0 to degrade to batches of 1, got %d batches", len(batches))
	}
}
