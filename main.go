package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/vietddude/pushgate/internal/core/domain"
	"github.com/vietddude/pushgate/internal/dispatch"
	"github.com/vietddude/pushgate/internal/infra/storage/memory"
	"github.com/vietddude/pushgate/internal/transport/fcm"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found")
	}

	FCM_SERVER_KEY := os.Getenv("FCM_SERVER_KEY")
	TEST_DEVICE_TOKEN := os.Getenv("TEST_DEVICE_TOKEN")
	if FCM_SERVER_KEY == "" {
		log.Fatalf("FCM_SERVER_KEY is not set")
	}
	if TEST_DEVICE_TOKEN == "" {
		log.Fatalf("TEST_DEVICE_TOKEN is not set")
	}

	ctx := context.Background()

	// 1. Create transport
	transport := fcm.New(fcm.Config{
		ServerKey: FCM_SERVER_KEY,
		Timeout:   30 * time.Second,
	})

	// 2. Register the test device in a throwaway store
	store := memory.NewMemoryStorage()
	endpoints := memory.NewEndpointRepo(store)
	err = endpoints.Upsert(ctx, domain.Endpoint{
		OwnerID:         "demo-user",
		DeviceID:        "demo-device",
		Token:           TEST_DEVICE_TOKEN,
		Platform:        domain.PlatformAndroid,
		LastConfirmedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Fatalf("Failed to register endpoint: %v", err)
	}

	// 3. Dry-run validate the token without delivering anything
	if err := transport.ValidateToken(ctx, TEST_DEVICE_TOKEN); err != nil {
		fmt.Printf("Token validation: %v\n", err)
	} else {
		fmt.Println("Token validation: OK")
	}

	// 4. Build the engine and dispatch a test notification
	engine := dispatch.NewEngine(endpoints, transport, dispatch.DefaultConfig())

	n := domain.NewNotification("Pushgate test", "Hello from pushgate", domain.ToUser("demo-user"))
	n.Data = map[string]string{"source": "demo"}

	fmt.Println("=== Dispatching test notification ===")
	res, err := engine.Dispatch(ctx, n)
	if err != nil {
		log.Fatalf("Dispatch failed: %v", err)
	}

	// 5. Show the outcome
	fmt.Printf("Notification %s: %s\n", n.ID, res.Summary())
	fmt.Printf("  attempted: %d\n", res.Attempted)
	fmt.Printf("  delivered: %d\n", res.Delivered)
	fmt.Printf("  failed:    %d\n", res.Failed)
	fmt.Printf("  invalid:   %d\n", len(res.InvalidEndpoints))

	// 6. A rich notification goes out as a data-only message
	rich := domain.NewNotification("Pushgate image test", "With picture", domain.ToToken(TEST_DEVICE_TOKEN))
	rich.ImageURL = "https://picsum.photos/600/400"

	res, err = engine.Dispatch(ctx, rich)
	if err != nil {
		log.Fatalf("Rich dispatch failed: %v", err)
	}
	fmt.Printf("Rich notification %s: %s\n", rich.ID, res.Summary())
}
