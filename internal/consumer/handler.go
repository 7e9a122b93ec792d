package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/vietddude/pushgate/internal/core/domain"
	"github.com/vietddude/pushgate/internal/metrics"
)

// Envelope types accepted on the intake queue.
const (
	TypeNotify     = "notify"
	TypeRegister   = "register"
	TypeUnregister = "unregister"
)

// Envelope is the JSON payload producers publish to the intake queue.
// Which fields matter depends on Type.
type Envelope struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`

	// notify
	Title       string            `json:"title,omitempty"`
	Body        string            `json:"body,omitempty"`
	Data        map[string]string `json:"data,omitempty"`
	ImageURL    string            `json:"image_url,omitempty"`
	Sound       string            `json:"sound,omitempty"`
	ClickAction string            `json:"click_action,omitempty"`
	Addressing  domain.Addressing `json:"addressing,omitempty"`

	// register / unregister
	OwnerID  string          `json:"owner_id,omitempty"`
	DeviceID string          `json:"device_id,omitempty"`
	Token    string          `json:"token,omitempty"`
	Platform domain.Platform `json:"platform,omitempty"`
}

// Service is the application surface the intake queue drives.
type Service interface {
	Dispatch(ctx context.Context, n *domain.Notification) (*domain.DispatchResult, error)
	Register(ctx context.Context, ep domain.Endpoint) error
	Unregister(ctx context.Context, ownerID, deviceID, token string) error
}

// EnvelopeHandler decodes intake envelopes and applies them to the
// service. Processing failures are redelivered up to the budget, then
// dead-lettered; undecodable payloads are dead-lettered immediately.
type EnvelopeHandler struct {
	svc           Service
	log           *slog.Logger
	maxDeliveries int
}

func NewEnvelopeHandler(svc Service, maxDeliveries int) *EnvelopeHandler {
	if maxDeliveries <= 0 {
		maxDeliveries = 5
	}
	return &EnvelopeHandler{
		svc:           svc,
		log:           slog.Default(),
		maxDeliveries: maxDeliveries,
	}
}

// Handle processes one delivery and settles it (ack, requeue or reject).
func (h *EnvelopeHandler) Handle(ctx context.Context, msg amqp.Delivery) error {
	var env Envelope
	if err := json.Unmarshal(msg.Body, &env); err != nil {
		metrics.QueueMessages.WithLabelValues("malformed", "rejected").Inc()
		h.log.Error("Failed to decode envelope", "error", err)
		_ = msg.Reject(false)
		return err
	}

	if err := h.process(ctx, &env); err != nil {
		requeue := deliveryAttempts(&msg) < h.maxDeliveries
		if requeue {
			metrics.QueueMessages.WithLabelValues(env.Type, "requeued").Inc()
			h.log.Warn("Envelope processing failed, requeued",
				"type", env.Type, "id", env.ID, "error", err)
		} else {
			metrics.QueueMessages.WithLabelValues(env.Type, "dead_lettered").Inc()
			h.log.Error("Envelope processing failed, dead-lettered",
				"type", env.Type, "id", env.ID, "error", err)
		}
		_ = msg.Nack(false, requeue)
		return err
	}

	metrics.QueueMessages.WithLabelValues(env.Type, "ok").Inc()
	return msg.Ack(false)
}

func (h *EnvelopeHandler) process(ctx context.Context, env *Envelope) error {
	switch env.Type {
	case TypeNotify:
		n := domain.NewNotification(env.Title, env.Body, env.Addressing)
		if env.ID != "" {
			n.ID = env.ID
		}
		n.Data = env.Data
		n.ImageURL = env.ImageURL
		n.Sound = env.Sound
		n.ClickAction = env.ClickAction

		res, err := h.svc.Dispatch(ctx, n)
		if err != nil {
			return err
		}
		h.log.Info("Queued notification dispatched",
			"notification", n.ID,
			"summary", res.Summary())
		return nil

	case TypeRegister:
		if env.OwnerID == "" || env.DeviceID == "" || env.Token == "" {
			return fmt.Errorf("register envelope missing owner/device/token")
		}
		return h.svc.Register(ctx, domain.Endpoint{
			OwnerID:  env.OwnerID,
			DeviceID: env.DeviceID,
			Token:    env.Token,
			Platform: env.Platform,
		})

	case TypeUnregister:
		if env.OwnerID == "" || env.DeviceID == "" {
			return fmt.Errorf("unregister envelope missing owner/device")
		}
		return h.svc.Unregister(ctx, env.OwnerID, env.DeviceID, env.Token)

	default:
		return fmt.Errorf("unknown envelope type: %q", env.Type)
	}
}

// deliveryAttempts counts prior deliveries of a message via the x-death
// header the dead-letter cycle maintains.
func deliveryAttempts(msg *amqp.Delivery) int {
	if msg.Headers == nil {
		if msg.Redelivered {
			return 1
		}
		return 0
	}
	if raw, ok := msg.Headers["x-death"]; ok {
		if deaths, ok := raw.([]interface{}); ok && len(deaths) > 0 {
			if table, ok := deaths[0].(amqp.Table); ok {
				if count, ok := table["count"].(int64); ok {
					return int(count)
				}
			}
		}
	}
	if msg.Redelivered {
		return 1
	}
	return 0
}
