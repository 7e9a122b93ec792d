package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vietddude/pushgate/internal/core/config"
	"github.com/vietddude/pushgate/internal/core/domain"
	"github.com/vietddude/pushgate/internal/infra/storage"
)

// fcmStub fakes the provider batch endpoint. Tokens prefixed "dead"
// come back as NotRegistered, everything else is accepted.
func fcmStub(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			RegistrationIDs []string `json:"registration_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		results := make([]map[string]string, len(req.RegistrationIDs))
		for i, token := range req.RegistrationIDs {
			if strings.HasPrefix(token, "dead") {
				results[i] = map[string]string{"error": "NotRegistered"}
			} else {
				results[i] = map[string]string{"message_id": "m1"}
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"results": results})
	}))
}

func testConfig(endpoint string) config.AppConfig {
	cfg := config.AppConfig{}
	cfg.Server.Port = 0
	cfg.Transport.Provider = "fcm"
	cfg.Transport.FCM.Endpoint = endpoint
	cfg.Transport.FCM.ServerKey = "test-key"
	return cfg
}

func TestApp_Lifecycle(t *testing.T) {
	provider := fcmStub(t)
	defer provider.Close()

	app, err := NewApp(testConfig(provider.URL))
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Let the server and sweeper goroutines spin up
	time.Sleep(100 * time.Millisecond)

	if err := app.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestApp_RegisterDispatchUnregister(t *testing.T) {
	provider := fcmStub(t)
	defer provider.Close()

	app, err := NewApp(testConfig(provider.URL))
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	ctx := context.Background()

	devices := []domain.Endpoint{
		{OwnerID: "user-1", DeviceID: "phone", Token: "tok-a", Platform: domain.PlatformAndroid},
		{OwnerID: "user-1", DeviceID: "tablet", Token: "tok-b", Platform: domain.PlatformIOS},
	}
	for _, ep := range devices {
		if err := app.Register(ctx, ep); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	res, err := app.Dispatch(ctx, domain.NewNotification("hi", "there", domain.ToUser("user-1")))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if res.Delivered != 2 {
		t.Errorf("expected 2 delivered, got %d", res.Delivered)
	}

	recs, err := app.DispatchLog().Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 dispatch record, got %d", len(recs))
	}
	if recs[0].Status != domain.DispatchStatusSent {
		t.Errorf("expected sent status, got %s", recs[0].Status)
	}
	if recs[0].Delivered != 2 {
		t.Errorf("expected record of 2 deliveries, got %d", recs[0].Delivered)
	}

	if err := app.Unregister(ctx, "user-1", "tablet", "tok-b"); err != nil {
		t.Fatalf("Unregister failed: %v", err)
	}

	res, err = app.Dispatch(ctx, domain.NewNotification("hi", "again", domain.ToUser("user-1")))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if res.Delivered != 1 {
		t.Errorf("expected 1 delivered after unregister, got %d", res.Delivered)
	}
}

func TestApp_DispatchRemovesDeadTokens(t *testing.T) {
	provider := fcmStub(t)
	defer provider.Close()

	app, err := NewApp(testConfig(provider.URL))
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	ctx := context.Background()

	if err := app.Register(ctx, domain.Endpoint{
		OwnerID: "user-2", DeviceID: "old-phone", Token: "dead-tok",
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	res, err := app.Dispatch(ctx, domain.NewNotification("hi", "bye", domain.ToUser("user-2")))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if len(res.InvalidEndpoints) != 1 {
		t.Fatalf("expected 1 invalid endpoint, got %d", len(res.InvalidEndpoints))
	}

	// The dead registration is reconciled away
	if _, err := app.Endpoints().Find(ctx, "user-2", "old-phone"); err != storage.ErrEndpointNotFound {
		t.Errorf("expected endpoint removed, got err=%v", err)
	}

	recs, _ := app.DispatchLog().Recent(ctx, 1)
	if len(recs) != 1 {
		t.Fatalf("expected 1 dispatch record, got %d", len(recs))
	}
	if recs[0].Invalid != 1 {
		t.Errorf("expected record with 1 invalid endpoint, got %d", recs[0].Invalid)
	}
}

func TestApp_RegisterValidation(t *testing.T) {
	provider := fcmStub(t)
	defer provider.Close()

	app, err := NewApp(testConfig(provider.URL))
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	ctx := context.Background()

	if err := app.Register(ctx, domain.Endpoint{OwnerID: "user-3"}); err == nil {
		t.Error("expected error for registration without device and token")
	}

	// Platform and confirmation time are defaulted
	if err := app.Register(ctx, domain.Endpoint{
		OwnerID: "user-3", DeviceID: "phone", Token: "tok",
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	ep, err := app.Endpoints().Find(ctx, "user-3", "phone")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if ep.Platform != domain.PlatformOther {
		t.Errorf("expected defaulted platform, got %s", ep.Platform)
	}
	if ep.LastConfirmedAt.IsZero() {
		t.Error("expected confirmation time to be set")
	}
}

func TestNewTransport_UnknownProvider(t *testing.T) {
	_, err := NewTransport(config.TransportConfig{Provider: "apns"})
	if err == nil {
		t.Error("expected error for unknown provider")
	}
}
