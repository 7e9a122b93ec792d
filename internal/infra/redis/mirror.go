package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/pushgate/internal/core/domain"
	"github.com/vietddude/pushgate/internal/infra/storage"
)

// DeviceMirror keeps a per-owner hash of registered devices in Redis so
// other services can look up a user's endpoints without touching the
// primary store. One hash per owner, one field per device.
type DeviceMirror struct {
	rdb *redis.Client
}

var _ storage.Mirror = (*DeviceMirror)(nil)

// NewDeviceMirror creates a Redis-backed endpoint mirror.
func NewDeviceMirror(client *Client) *DeviceMirror {
	return &DeviceMirror{rdb: client.rdb}
}

// mirrorEntry is the stored JSON per device.
type mirrorEntry struct {
	Token       string    `json:"token"`
	Platform    string    `json:"platform"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

func ownerKey(ownerID string) string {
	return fmt.Sprintf("endpoints:%s", ownerID)
}

// Save writes or overwrites one device entry in the owner's hash.
func (m *DeviceMirror) Save(ctx context.Context, ep domain.Endpoint) error {
	data, err := json.Marshal(mirrorEntry{
		Token:       ep.Token,
		Platform:    string(ep.Platform),
		ConfirmedAt: ep.LastConfirmedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal mirror entry: %w", err)
	}

	if err := m.rdb.HSet(ctx, ownerKey(ep.OwnerID), ep.DeviceID, data).Err(); err != nil {
		return fmt.Errorf("hset failed: %w", err)
	}
	return nil
}

// Remove drops one device entry from the owner's hash.
func (m *DeviceMirror) Remove(ctx context.Context, ownerID, deviceID string) error {
	if err := m.rdb.HDel(ctx, ownerKey(ownerID), deviceID).Err(); err != nil {
		return fmt.Errorf("hdel failed: %w", err)
	}
	return nil
}
