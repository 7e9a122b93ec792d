package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/pushgate/internal/core/domain"
	"github.com/vietddude/pushgate/internal/transport"
)

// scriptStep is one scripted provider response.
type scriptStep struct {
	report *transport.SendReport
	err    error
}

// scriptTransport answers SendBatch calls from a script, repeating the
// last step once the script runs out.
type scriptTransport struct {
	mu      sync.Mutex
	name    string
	limit   int
	script  []scriptStep
	respond func(call int, eps []domain.Endpoint) (*transport.SendReport, error)

	calls   int
	batches [][]domain.Endpoint
}

func (s *scriptTransport) Name() string {
	if s.name == "" {
		return "script"
	}
	return s.name
}

func (s *scriptTransport) MaxBatchSize() int {
	if s.limit == 0 {
		return 500
	}
	return s.limit
}

func (s *scriptTransport) SendBatch(ctx context.Context, eps []domain.Endpoint, n *domain.Notification) (*transport.SendReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := s.calls
	s.calls++
	s.batches = append(s.batches, append([]domain.Endpoint(nil), eps...))
	if s.respond != nil {
		return s.respond(call, eps)
	}
	if len(s.script) == 0 {
		return okReport(eps), nil
	}
	step := s.script[min(call, len(s.script)-1)]
	return step.report, step.err
}

func (s *scriptTransport) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func okReport(eps []domain.Endpoint) *transport.SendReport {
	report := &transport.SendReport{}
	for _, ep := range eps {
		report.Results = append(report.Results, transport.TokenResult{Token: ep.Token, Delivered: true})
	}
	return report
}

func failReport(eps []domain.Endpoint, code string) *transport.SendReport {
	report := &transport.SendReport{}
	for _, ep := range eps {
		report.Results = append(report.Results, transport.TokenResult{Token: ep.Token, ErrorCode: code})
	}
	return report
}

// recordSleeps replaces the retrier's sleep so tests observe backoff
// delays without waiting.
func recordSleeps(r *Retrier) *[]time.Duration {
	var delays []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return &delays
}

func testNotification() *domain.Notification {
	return domain.NewNotification("title", "body", domain.ToEveryone())
}

func TestRetrier_TransientThenSuccess(t *testing.T) {
	batch := makeEndpoints(4)
	tr := &scriptTransport{script: []scriptStep{
		{err: &transport.StatusError{Transport: "script", Status: 503}},
		{err: &transport.StatusError{Transport: "script", Status: 500}},
		{report: okReport(batch)},
	}}
	r := NewRetrier(tr, DefaultRetryPolicy())
	delays := recordSleeps(r)

	out, err := r.SendBatch(context.Background(), batch, testNotification())
	if err != nil {
		t.Fatalf("SendBatch failed: %v", err)
	}
	if out.Delivered != 4 || out.Failed != 0 || out.Attempted != 4 {
		t.Errorf("expected 4/0/4, got %d/%d/%d", out.Delivered, out.Failed, out.Attempted)
	}
	if tr.callCount() != 3 {
		t.Errorf("expected 3 attempts, got %d", tr.callCount())
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*delays) != len(want) {
		t.Fatalf("expected %d backoff waits, got %d", len(want), len(*delays))
	}
	for i, d := range *delays {
		if d != want[i] {
			t.Errorf("backoff %d: expected %v, got %v", i, want[i], d)
		}
	}
}

func TestRetrier_ExhaustedKeepsTokensValid(t *testing.T) {
	batch := makeEndpoints(3)
	tr := &scriptTransport{script: []scriptStep{
		{err: &transport.StatusError{Transport: "script", Status: 502}},
	}}
	r := NewRetrier(tr, DefaultRetryPolicy())
	recordSleeps(r)

	out, err := r.SendBatch(context.Background(), batch, testNotification())
	if err != nil {
		t.Fatalf("exhaustion is not an error, got: %v", err)
	}
	if tr.callCount() != 3 {
		t.Errorf("expected 3 attempts, got %d", tr.callCount())
	}
	if out.Attempted != 3 || out.Failed != 3 || out.Delivered != 0 {
		t.Errorf("expected 3 attempted all failed, got %+v", out)
	}
	// Exhaustion says nothing about token validity.
	if len(out.InvalidEndpoints) != 0 {
		t.Errorf("expected no invalid endpoints, got %d", len(out.InvalidEndpoints))
	}
}

func TestRetrier_FatalStopsImmediately(t *testing.T) {
	batch := makeEndpoints(2)
	tr := &scriptTransport{script: []scriptStep{
		{err: &transport.StatusError{Transport: "script", Status: 401}},
	}}
	r := NewRetrier(tr, DefaultRetryPolicy())
	delays := recordSleeps(r)

	out, err := r.SendBatch(context.Background(), batch, testNotification())
	if !errors.Is(err, ErrTransportUnavailable) {
		t.Fatalf("expected ErrTransportUnavailable, got %v", err)
	}
	if tr.callCount() != 1 {
		t.Errorf("expected 1 attempt, got %d", tr.callCount())
	}
	if len(*delays) != 0 {
		t.Errorf("expected no backoff waits, got %d", len(*delays))
	}
	if out.Attempted != 0 {
		t.Errorf("aborted batch must not report attempts, got %+v", out)
	}
}

func TestRetrier_PerTokenVerdicts(t *testing.T) {
	batch := makeEndpoints(4)
	report := &transport.SendReport{Results: []transport.TokenResult{
		{Token: batch[0].Token, Delivered: true},
		{Token: batch[1].Token, ErrorCode: "UNREGISTERED"},
		{Token: batch[2].Token, ErrorCode: "Unavailable"},
		{Token: batch[3].Token, ErrorCode: "NotRegistered"},
	}}
	tr := &scriptTransport{script: []scriptStep{{report: report}}}
	r := NewRetrier(tr, DefaultRetryPolicy())

	out, err := r.SendBatch(context.Background(), batch, testNotification())
	if err != nil {
		t.Fatalf("SendBatch failed: %v", err)
	}
	// Per-token failures are final: one call, no retries.
	if tr.callCount() != 1 {
		t.Errorf("expected 1 attempt, got %d", tr.callCount())
	}
	if out.Delivered != 1 || out.Failed != 3 {
		t.Errorf("expected 1 delivered 3 failed, got %d/%d", out.Delivered, out.Failed)
	}
	if len(out.InvalidEndpoints) != 2 {
		t.Fatalf("expected 2 invalid endpoints, got %d", len(out.InvalidEndpoints))
	}
	if out.InvalidEndpoints[0].Token != batch[1].Token || out.InvalidEndpoints[1].Token != batch[3].Token {
		t.Errorf("wrong invalid endpoints: %+v", out.InvalidEndpoints)
	}
}

func TestRetrier_CanceledDuringBackoff(t *testing.T) {
	batch := makeEndpoints(2)
	tr := &scriptTransport{script: []scriptStep{
		{err: &transport.StatusError{Transport: "script", Status: 500}},
	}}
	r := NewRetrier(tr, DefaultRetryPolicy())
	r.sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	out, err := r.SendBatch(context.Background(), batch, testNotification())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if tr.callCount() != 1 {
		t.Errorf("expected the in-flight attempt only, got %d", tr.callCount())
	}
	if out.Attempted != 0 {
		t.Errorf("canceled batch must not report attempts, got %+v", out)
	}
}

func TestRetrier_CanceledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := &scriptTransport{}
	r := NewRetrier(tr, DefaultRetryPolicy())

	_, err := r.SendBatch(ctx, makeEndpoints(1), testNotification())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if tr.callCount() != 0 {
		t.Errorf("expected no attempts after cancellation, got %d", tr.callCount())
	}
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := DefaultRetryPolicy()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	p.MaxDelay = 5 * time.Second
	if got := p.Delay(2); got != 5*time.Second {
		t.Errorf("expected delay capped at 5s, got %v", got)
	}
}
