package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vietddude/pushgate/internal/core/domain"
	"github.com/vietddude/pushgate/internal/transport"
)

const (
	// DefaultEndpoint is the FCM legacy batch send endpoint.
	DefaultEndpoint = "https://fcm.googleapis.com/fcm/send"

	// maxBatchSize is the hard cap FCM puts on registration_ids per call.
	maxBatchSize = 500
)

// Config holds FCM credentials and tuning.
type Config struct {
	Endpoint  string        `yaml:"endpoint"`
	ServerKey string        `yaml:"server_key"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Transport delivers notifications through Firebase Cloud Messaging.
type Transport struct {
	endpoint  string
	serverKey string
	client    *http.Client
}

var (
	_ transport.Transport      = (*Transport)(nil)
	_ transport.TokenValidator = (*Transport)(nil)
)

func New(cfg Config) *Transport {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Transport{
		endpoint:  endpoint,
		serverKey: cfg.ServerKey,
		client:    &http.Client{Timeout: timeout},
	}
}

func (t *Transport) Name() string { return "fcm" }

func (t *Transport) MaxBatchSize() int { return maxBatchSize }

// SendBatch pushes one notification to a batch of tokens in a single
// call. FCM answers one result per token, in request order.
func (t *Transport) SendBatch(ctx context.Context, endpoints []domain.Endpoint, n *domain.Notification) (*transport.SendReport, error) {
	if len(endpoints) == 0 {
		return &transport.SendReport{}, nil
	}

	tokens := make([]string, len(endpoints))
	for i, ep := range endpoints {
		tokens[i] = ep.Token
	}

	fcmResp, err := t.post(ctx, t.buildPayload(tokens, n))
	if err != nil {
		return nil, err
	}

	report := &transport.SendReport{}
	for i, res := range fcmResp.Results {
		token := ""
		if i < len(tokens) {
			token = tokens[i]
		}
		report.Results = append(report.Results, transport.TokenResult{
			Token:     token,
			Delivered: res.Error == "",
			ErrorCode: res.Error,
		})
	}
	return report, nil
}

// ValidateToken asks FCM to dry-run a delivery to one token. Nothing is
// delivered; a dead token comes back as a per-token error code.
func (t *Transport) ValidateToken(ctx context.Context, token string) error {
	payload := map[string]any{
		"registration_ids": []string{token},
		"dry_run":          true,
		"data":             map[string]string{"ping": "1"},
	}
	resp, err := t.post(ctx, payload)
	if err != nil {
		return err
	}
	if len(resp.Results) == 0 {
		return nil
	}
	if code := resp.Results[0].Error; code != "" {
		return &transport.TokenError{Token: token, Code: code}
	}
	return nil
}

// buildPayload renders the provider request. Notifications carrying an
// image go out as data-only messages so the client app draws the rich
// layout itself; plain ones use the standard notification block.
func (t *Transport) buildPayload(tokens []string, n *domain.Notification) map[string]any {
	payload := map[string]any{
		"registration_ids": tokens,
	}

	data := make(map[string]string, len(n.Data)+4)
	for k, v := range n.Data {
		data[k] = v
	}

	if n.ImageURL != "" {
		data["title"] = n.Title
		data["body"] = n.Body
		data["image"] = n.ImageURL
		if n.ClickAction != "" {
			data["click_action"] = n.ClickAction
		}
		payload["content_available"] = true
		payload["priority"] = "high"
		payload["time_to_live"] = 3600
	} else {
		notification := map[string]string{
			"title": n.Title,
			"body":  n.Body,
		}
		if n.Sound != "" {
			notification["sound"] = n.Sound
		}
		if n.ClickAction != "" {
			notification["click_action"] = n.ClickAction
		}
		payload["notification"] = notification
	}

	if len(data) > 0 {
		payload["data"] = data
	}
	return payload
}

func (t *Transport) post(ctx context.Context, payload any) (*fcmResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+t.serverKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &transport.StatusError{
			Transport: "fcm",
			Status:    resp.StatusCode,
			Body:      strings.TrimSpace(string(snippet)),
		}
	}

	var fcmResp fcmResponse
	if err := json.NewDecoder(resp.Body).Decode(&fcmResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &fcmResp, nil
}

type fcmResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}
