// Package client provides the Go SDK for the enrollment webhook service:
// subscription management, delivery health inspection, and event dispatch.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Webhook mirrors a subscription resource as returned by the API.
type Webhook struct {
	ID        string          `json:"id"`
	URL       string          `json:"url"`
	Events    []string        `json:"events"`
	Options   WebhookOptions  `json:"options"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// WebhookOptions are the recognized per-webhook delivery settings.
type WebhookOptions struct {
	Headers        map[string]string `json:"headers,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
}

// RegisterWebhookRequest is the payload for RegisterWebhook.
type RegisterWebhookRequest struct {
	URL     string          `json:"url"`
	Events  []string        `json:"events"`
	Secret  string          `json:"secret,omitempty"`
	Options *WebhookOptions `json:"options,omitempty"`
}

// RegisterWebhookResult holds the new webhook id and its one-time secret.
type RegisterWebhookResult struct {
	WebhookID       string   `json:"webhook_id"`
	Secret          string   `json:"secret"`
	SupportedEvents []string `json:"supported_events"`
}

// UpdateWebhookRequest is a partial update; nil fields are left unchanged.
type UpdateWebhookRequest struct {
	URL     *string         `json:"url,omitempty"`
	Events  []string        `json:"events,omitempty"`
	Options *WebhookOptions `json:"options,omitempty"`
}

// CircuitStatus is the breaker view inside a delivery status response.
type CircuitStatus struct {
	State               string     `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	OpenedAt            *time.Time `json:"opened_at,omitempty"`
}

// HealthMetrics is the per-webhook delivery health view.
type HealthMetrics struct {
	TotalDeliveries      int64   `json:"total_deliveries"`
	SuccessfulDeliveries int64   `json:"successful_deliveries"`
	AverageLatencyMs     float64 `json:"average_latency"`
	HealthScore          float64 `json:"health_score"`
}

// DeliveryStatusResult is the response of GET /webhooks/{id}/delivery-status.
type DeliveryStatusResult struct {
	WebhookID      string        `json:"webhook_id"`
	DeliveryStatus string        `json:"delivery_status"`
	Circuit        CircuitStatus `json:"circuit"`
	HealthMetrics  HealthMetrics `json:"health_metrics"`
}

// DeliveryAttempt is one row of the per-webhook delivery audit trail.
type DeliveryAttempt struct {
	ID          string          `json:"id"`
	WebhookID   string          `json:"webhook_id"`
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	Status      string          `json:"status"`
	HTTPStatus  int             `json:"http_status,omitempty"`
	Error       string          `json:"error,omitempty"`
	LatencyMs   int64           `json:"latency_ms"`
	NextRetryAt *time.Time      `json:"next_retry_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// TestResult is the outcome of a synchronous test delivery.
type TestResult struct {
	Result     string `json:"result"`
	HTTPStatus int    `json:"http_status,omitempty"`
	Error      string `json:"error,omitempty"`
	LatencyMs  int64  `json:"latency_ms"`
}

// DispatchReport aggregates the fan-out outcome of one dispatched event.
type DispatchReport struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Matched   int    `json:"matched"`
	Delivered int    `json:"delivered"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
}

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("webhook API error (HTTP %d): %s", e.StatusCode, e.Message)
}

// Client is the SDK entry point.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout overrides the default 10s request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// New creates a Client for the service at baseURL, e.g.
//
//	c := client.New("https://hooks.enroll.example.com")
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// RegisterWebhook registers a new subscription. The returned secret is
// shown exactly once; store it.
func (c *Client) RegisterWebhook(ctx context.Context, req *RegisterWebhookRequest) (*RegisterWebhookResult, error) {
	var out RegisterWebhookResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/webhooks", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListWebhooks returns all active subscriptions.
func (c *Client) ListWebhooks(ctx context.Context) ([]Webhook, error) {
	var out struct {
		Webhooks []Webhook `json:"webhooks"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/webhooks", nil, &out); err != nil {
		return nil, err
	}
	return out.Webhooks, nil
}

// GetWebhook fetches a subscription by id.
func (c *Client) GetWebhook(ctx context.Context, id string) (*Webhook, error) {
	var out Webhook
	if err := c.do(ctx, http.MethodGet, "/api/v1/webhooks/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateWebhook applies a partial update.
func (c *Client) UpdateWebhook(ctx context.Context, id string, req *UpdateWebhookRequest) (*Webhook, error) {
	var out Webhook
	if err := c.do(ctx, http.MethodPut, "/api/v1/webhooks/"+id, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteWebhook soft-deletes a subscription. Idempotent.
func (c *Client) DeleteWebhook(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/webhooks/"+id, nil, nil)
}

// RotateSecret rotates the signing secret, returning the new one exactly
// once. The prior secret is invalid immediately.
func (c *Client) RotateSecret(ctx context.Context, id string) (string, error) {
	var out struct {
		NewSecret string `json:"new_secret"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/webhooks/"+id+"/rotate-secret", nil, &out); err != nil {
		return "", err
	}
	return out.NewSecret, nil
}

// DeliveryStatus returns breaker state and health metrics for a webhook.
func (c *Client) DeliveryStatus(ctx context.Context, id string) (*DeliveryStatusResult, error) {
	var out DeliveryStatusResult
	if err := c.do(ctx, http.MethodGet, "/api/v1/webhooks/"+id+"/delivery-status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListDeliveries returns the recent delivery attempts for a webhook.
func (c *Client) ListDeliveries(ctx context.Context, id string, limit int) ([]DeliveryAttempt, error) {
	path := fmt.Sprintf("/api/v1/webhooks/%s/deliveries?limit=%d", id, limit)
	var out struct {
		Deliveries []DeliveryAttempt `json:"deliveries"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Deliveries, nil
}

// TestWebhook triggers a synchronous test delivery.
func (c *Client) TestWebhook(ctx context.Context, id string) (*TestResult, error) {
	var out TestResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/webhooks/"+id+"/test", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SupportedEvents lists the event types the service recognizes.
func (c *Client) SupportedEvents(ctx context.Context) ([]string, error) {
	var out struct {
		SupportedEvents []string `json:"supported_events"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/events", nil, &out); err != nil {
		return nil, err
	}
	return out.SupportedEvents, nil
}

// DispatchEvent fans a domain event out to all matching subscriptions.
func (c *Client) DispatchEvent(ctx context.Context, event string, data json.RawMessage) (*DispatchReport, error) {
	body := map[string]any{"event": event, "data": data}
	var out DispatchReport
	if err := c.do(ctx, http.MethodPost, "/api/v1/events", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &apiErr)
		if apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
