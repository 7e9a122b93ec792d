package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/pushgate/internal/core/domain"
	"github.com/vietddude/pushgate/internal/transport"
)

// fastConfig keeps engine tests away from real backoff waits.
func fastConfig(batchSize int) Config {
	return Config{
		MaxBatchSize: batchSize,
		MaxInFlight:  1,
		Retry: RetryPolicy{
			MaxAttempts:     1,
			InitialDelay:    time.Millisecond,
			BackoffMultiple: 2.0,
		},
	}
}

func TestEngine_DispatchAllInvalid(t *testing.T) {
	store := &mockStore{endpoints: []domain.Endpoint{
		ep("u1", "d1", "tok-1"),
		ep("u1", "d2", "tok-2"),
		ep("u1", "d3", "tok-3"),
	}}
	tr := &scriptTransport{respond: func(call int, eps []domain.Endpoint) (*transport.SendReport, error) {
		return failReport(eps, "UNREGISTERED"), nil
	}}
	engine := NewEngine(store, tr, fastConfig(500))

	res, err := engine.Dispatch(context.Background(), domain.NewNotification("t", "b", domain.ToUser("u1")))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if res.Delivered != 0 || res.Failed != 3 || res.Attempted != 3 {
		t.Errorf("expected 0/3/3, got %d/%d/%d", res.Delivered, res.Failed, res.Attempted)
	}
	if len(res.InvalidEndpoints) != 3 {
		t.Fatalf("expected 3 invalid endpoints, got %d", len(res.InvalidEndpoints))
	}

	// Every dead token is reconciled exactly once, by full tuple.
	deleted := store.deletedTuples()
	if len(deleted) != 3 {
		t.Fatalf("expected 3 reconciliation deletes, got %d", len(deleted))
	}
	want := map[[3]string]bool{
		{"u1", "d1", "tok-1"}: true,
		{"u1", "d2", "tok-2"}: true,
		{"u1", "d3", "tok-3"}: true,
	}
	for _, tuple := range deleted {
		if !want[tuple] {
			t.Errorf("unexpected delete tuple %v", tuple)
		}
		delete(want, tuple)
	}

	// A second dispatch resolves nothing: reconciliation emptied the
	// owner and repeating it changes nothing.
	res2, err := engine.Dispatch(context.Background(), domain.NewNotification("t", "b", domain.ToUser("u1")))
	if err != nil {
		t.Fatalf("second Dispatch failed: %v", err)
	}
	if res2.Attempted != 0 {
		t.Errorf("expected empty second dispatch, got %+v", res2)
	}
	if got := len(store.deletedTuples()); got != 3 {
		t.Errorf("expected no further deletes, got %d", got)
	}
}

func TestEngine_EmptyResolveSkipsTransport(t *testing.T) {
	store := &mockStore{}
	tr := &scriptTransport{}
	engine := NewEngine(store, tr, fastConfig(500))

	res, err := engine.Dispatch(context.Background(), domain.NewNotification("t", "b", domain.ToUser("ghost")))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if res.Attempted != 0 || res.Delivered != 0 || res.Failed != 0 {
		t.Errorf("expected zero result, got %+v", res)
	}
	if tr.callCount() != 0 {
		t.Errorf("expected transport untouched, got %d calls", tr.callCount())
	}
}

func TestEngine_FatalAbortsRun(t *testing.T) {
	store := &mockStore{endpoints: []domain.Endpoint{
		ep("u1", "d0", "tok-0"), ep("u1", "d1", "tok-1"),
		ep("u1", "d2", "tok-2"), ep("u1", "d3", "tok-3"),
		ep("u1", "d4", "tok-4"), ep("u1", "d5", "tok-5"),
	}}
	tr := &scriptTransport{respond: func(call int, eps []domain.Endpoint) (*transport.SendReport, error) {
		if call == 1 {
			return nil, &transport.StatusError{Transport: "script", Status: 401}
		}
		return okReport(eps), nil
	}}
	engine := NewEngine(store, tr, fastConfig(2))

	res, err := engine.Dispatch(context.Background(), domain.NewNotification("t", "b", domain.ToUser("u1")))
	if !errors.Is(err, ErrTransportUnavailable) {
		t.Fatalf("expected ErrTransportUnavailable, got %v", err)
	}
	// Batch 1 completed before the transport died; batch 3 never ran.
	if tr.callCount() != 2 {
		t.Errorf("expected 2 transport calls, got %d", tr.callCount())
	}
	if res.Attempted != 2 || res.Delivered != 2 {
		t.Errorf("expected the completed batch in the result, got %+v", res)
	}
	if res.Canceled {
		t.Error("a transport failure is not a cancellation")
	}
}

func TestEngine_CanceledBeforeStart(t *testing.T) {
	store := &mockStore{endpoints: []domain.Endpoint{ep("u1", "d1", "tok-1")}}
	tr := &scriptTransport{}
	engine := NewEngine(store, tr, fastConfig(500))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := engine.Dispatch(ctx, domain.NewNotification("t", "b", domain.ToUser("u1")))
	if err != nil {
		t.Fatalf("cancellation is not an error, got %v", err)
	}
	if !res.Canceled {
		t.Error("expected the canceled flag")
	}
	if res.Attempted != 0 {
		t.Errorf("expected no batch to run, got %+v", res)
	}
	if tr.callCount() != 0 {
		t.Errorf("expected no transport calls, got %d", tr.callCount())
	}
}

func TestEngine_ReconcileFailureLogsOnly(t *testing.T) {
	store := &mockStore{
		endpoints: []domain.Endpoint{ep("u1", "d1", "tok-1"), ep("u1", "d2", "tok-2")},
		deleteErr: errors.New("db down"),
	}
	tr := &scriptTransport{respond: func(call int, eps []domain.Endpoint) (*transport.SendReport, error) {
		return failReport(eps, "NOT_FOUND"), nil
	}}
	engine := NewEngine(store, tr, fastConfig(500))

	res, err := engine.Dispatch(context.Background(), domain.NewNotification("t", "b", domain.ToUser("u1")))
	if err != nil {
		t.Fatalf("reconciliation trouble must not fail the dispatch, got %v", err)
	}
	if len(res.InvalidEndpoints) != 2 {
		t.Errorf("expected 2 invalid endpoints, got %d", len(res.InvalidEndpoints))
	}
	if got := len(store.deletedTuples()); got != 2 {
		t.Errorf("expected 2 delete attempts, got %d", got)
	}
}

func TestEngine_RawTokenSkipsReconcile(t *testing.T) {
	store := &mockStore{}
	tr := &scriptTransport{respond: func(call int, eps []domain.Endpoint) (*transport.SendReport, error) {
		return failReport(eps, "UNREGISTERED"), nil
	}}
	engine := NewEngine(store, tr, fastConfig(500))

	res, err := engine.Dispatch(context.Background(), domain.NewNotification("t", "b", domain.ToToken("raw-token")))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if len(res.InvalidEndpoints) != 1 {
		t.Errorf("expected the raw token reported invalid, got %d", len(res.InvalidEndpoints))
	}
	if got := len(store.deletedTuples()); got != 0 {
		t.Errorf("raw tokens have no stored tuple to delete, got %d deletes", got)
	}
}

func TestEngine_TransportLimitWins(t *testing.T) {
	store := &mockStore{endpoints: makeEndpoints(250)}
	tr := &scriptTransport{limit: 100}
	engine := NewEngine(store, tr, fastConfig(500))

	res, err := engine.Dispatch(context.Background(), domain.NewNotification("t", "b", domain.ToEveryone()))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if res.Delivered != 250 {
		t.Errorf("expected 250 delivered, got %d", res.Delivered)
	}
	if tr.callCount() != 3 {
		t.Fatalf("expected 3 batches under the transport limit, got %d", tr.callCount())
	}
	sizes := []int{len(tr.batches[0]), len(tr.batches[1]), len(tr.batches[2])}
	if sizes[0] != 100 || sizes[1] != 100 || sizes[2] != 50 {
		t.Errorf("expected batches 100/100/50, got %v", sizes)
	}
}

func TestEngine_RejectsInvalidNotification(t *testing.T) {
	store := &mockStore{endpoints: []domain.Endpoint{ep("u1", "d1", "tok-1")}}
	tr := &scriptTransport{}
	engine := NewEngine(store, tr, fastConfig(500))

	_, err := engine.Dispatch(context.Background(), domain.NewNotification("", "b", domain.ToUser("u1")))
	if err == nil {
		t.Fatal("expected validation error for empty title")
	}
	if tr.callCount() != 0 {
		t.Errorf("expected transport untouched, got %d calls", tr.callCount())
	}
}
