package expo

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
	// DefaultEndpoint is the Expo push API send endpoint.
	DefaultEndpoint = "https://exp.host/--/api/v2/push/send"

	// maxBatchSize is the hard cap Expo puts on recipients per call.
	maxBatchSize = 100
)

// Config holds Expo push API access and tuning.
type Config struct {
	Endpoint    string        `yaml:"endpoint"`
	AccessToken string        `yaml:"access_token"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Transport delivers notifications through the Expo push service.
// Expo has no dry-run API, so stale-token validation is not supported.
type Transport struct {
	endpoint    string
	accessToken string
	client      *http.Client
}

var _ transport.Transport = (*Transport)(nil)

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
		endpoint:    endpoint,
		accessToken: cfg.AccessToken,
		client:      &http.Client{Timeout: timeout},
	}
}

func (t *Transport) Name() string { return "expo" }

func (t *Transport) MaxBatchSize() int { return maxBatchSize }

// SendBatch pushes one message to a batch of recipients. Expo answers
// one ticket per recipient, in request order.
func (t *Transport) SendBatch(ctx context.Context, endpoints []domain.Endpoint, n *domain.Notification) (*transport.SendReport, error) {
	if len(endpoints) == 0 {
		return &transport.SendReport{}, nil
	}

	tokens := make([]string, len(endpoints))
	for i, ep := range endpoints {
		tokens[i] = ep.Token
	}

	msg := pushMessage{
		To:    tokens,
		Title: n.Title,
		Body:  n.Body,
		Sound: n.Sound,
	}
	if len(n.Data) > 0 || n.ImageURL != "" {
		data := make(map[string]string, len(n.Data)+1)
		for k, v := range n.Data {
			data[k] = v
		}
		if n.ImageURL != "" {
			data["image"] = n.ImageURL
		}
		msg.Data = data
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if t.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+t.accessToken)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &transport.StatusError{
			Transport: "expo",
			Status:    resp.StatusCode,
			Body:      strings.TrimSpace(string(snippet)),
		}
	}

	var pushResp pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&pushResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	report := &transport.SendReport{}
	for i, ticket := range pushResp.Data {
		token := ""
		if i < len(tokens) {
			token = tokens[i]
		}
		report.Results = append(report.Results, transport.TokenResult{
			Token:     token,
			Delivered: ticket.Status == "ok",
			ErrorCode: ticket.Details.Error,
		})
	}
	return report, nil
}

type pushMessage struct {
	To    []string          `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
	Sound string            `json:"sound,omitempty"`
}

type pushTicket struct {
	Status  string `json:"status"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
	Details struct {
		Error string `json:"error,omitempty"`
	} `json:"details,omitempty"`
}

type pushResponse struct {
	Data []pushTicket `json:"data"`
}
