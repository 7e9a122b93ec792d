package dispatch

import "github.com/vietddude/pushgate/internal/core/domain"

// Partition splits endpoints into consecutive batches of at most size
// elements. Order is preserved and every endpoint lands in exactly one
// batch; no endpoints means no batches. Batches share the backing array
// of the input slice.
func Partition(endpoints []domain.Endpoint, size int) [][]domain.Endpoint {
	if len(endpoints) == 0 {
		return nil
	}
	if size < 1 {
		size = 1
	}
	batches := make([][]domain.Endpoint, 0, (len(endpoints)+size-1)/size)
	for start := 0; start < len(endpoints); start += size {
		end := start + size
		if end > len(endpoints) {
			end = len(endpoints)
		}
		batches = append(batches, endpoints[start:end])
	}
	return batches
}
