package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newMockService(t *testing.T, wantMethod, wantPath string, status int, response string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != wantMethod || r.URL.Path != wantPath {
			t.Errorf("request = %s %s, want %s %s", r.Method, r.URL.Path, wantMethod, wantPath)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, response)
	}))
}

func TestRegisterWebhook(t *testing.T) {
	srv := newMockService(t, http.MethodPost, "/api/v1/webhooks", http.StatusCreated,
		`{"webhook_id":"7d2f8b1a-0000-0000-0000-000000000001","secret":"s3cr3t","supported_events":["enrollment.created"]}`)
	defer srv.Close()

	c := New(srv.URL)
	res, err := c.RegisterWebhook(context.Background(), &RegisterWebhookRequest{
		URL:    "https://hooks.example.com/enroll",
		Events: []string{"enrollment.created"},
	})
	if err != nil {
		t.Fatalf("RegisterWebhook: %v", err)
	}
	if res.WebhookID != "7d2f8b1a-0000-0000-0000-000000000001" || res.Secret != "s3cr3t" {
		t.Fatalf("result = %+v", res)
	}
}

func TestRegisterWebhookSendsJSONBody(t *testing.T) {
	var got RegisterWebhookRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"webhook_id":"x","secret":"y"}`)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.RegisterWebhook(context.Background(), &RegisterWebhookRequest{
		URL:    "https://hooks.example.com/enroll",
		Events: []string{"enrollment.created", "document.uploaded"},
		Options: &WebhookOptions{
			Headers: map[string]string{"X-Environment": "staging"},
		},
	})
	if err != nil {
		t.Fatalf("RegisterWebhook: %v", err)
	}
	if got.URL != "https://hooks.example.com/enroll" || len(got.Events) != 2 {
		t.Fatalf("server saw %+v", got)
	}
	if got.Options == nil || got.Options.Headers["X-Environment"] != "staging" {
		t.Fatalf("options not sent: %+v", got.Options)
	}
}

func TestListWebhooks(t *testing.T) {
	srv := newMockService(t, http.MethodGet, "/api/v1/webhooks", http.StatusOK,
		`{"webhooks":[{"id":"a","url":"https://one.example.com","events":["enrollment.created"],"active":true},
		              {"id":"b","url":"https://two.example.com","events":["document.uploaded"],"active":true}],"count":2}`)
	defer srv.Close()

	hooks, err := New(srv.URL).ListWebhooks(context.Background())
	if err != nil {
		t.Fatalf("ListWebhooks: %v", err)
	}
	if len(hooks) != 2 || hooks[0].ID != "a" || hooks[1].URL != "https://two.example.com" {
		t.Fatalf("hooks = %+v", hooks)
	}
}

func TestRotateSecret(t *testing.T) {
	srv := newMockService(t, http.MethodPost, "/api/v1/webhooks/abc/rotate-secret", http.StatusOK,
		`{"webhook_id":"abc","new_secret":"fresh"}`)
	defer srv.Close()

	secret, err := New(srv.URL).RotateSecret(context.Background(), "abc")
	if err != nil {
		t.Fatalf("RotateSecret: %v", err)
	}
	if secret != "fresh" {
		t.Fatalf("secret = %q, want fresh", secret)
	}
}

func TestDeliveryStatus(t *testing.T) {
	srv := newMockService(t, http.MethodGet, "/api/v1/webhooks/abc/delivery-status", http.StatusOK,
		`{"webhook_id":"abc","delivery_status":"suspended",
		  "circuit":{"state":"open","consecutive_failures":5},
		  "health_metrics":{"total_deliveries":20,"successful_deliveries":15,"average_latency":42.5,"health_score":0.75}}`)
	defer srv.Close()

	st, err := New(srv.URL).DeliveryStatus(context.Background(), "abc")
	if err != nil {
		t.Fatalf("DeliveryStatus: %v", err)
	}
	if st.DeliveryStatus != "suspended" || st.Circuit.State != "open" || st.Circuit.ConsecutiveFailures != 5 {
		t.Fatalf("status = %+v", st)
	}
	if st.HealthMetrics.HealthScore != 0.75 || st.HealthMetrics.AverageLatencyMs != 42.5 {
		t.Fatalf("metrics = %+v", st.HealthMetrics)
	}
}

func TestTestWebhookCircuitOpen(t *testing.T) {
	srv := newMockService(t, http.MethodPost, "/api/v1/webhooks/abc/test", http.StatusServiceUnavailable,
		`{"error":"Circuit breaker is open","result":"circuit_broken"}`)
	defer srv.Close()

	_, err := New(srv.URL).TestWebhook(context.Background(), "abc")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable || apiErr.Message != "Circuit breaker is open" {
		t.Fatalf("apiErr = %+v", apiErr)
	}
}

func TestDeleteWebhookNotFound(t *testing.T) {
	srv := newMockService(t, http.MethodDelete, "/api/v1/webhooks/missing", http.StatusNotFound,
		`{"error":"webhook not found"}`)
	defer srv.Close()

	err := New(srv.URL).DeleteWebhook(context.Background(), "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("StatusCode = %d, want 404", apiErr.StatusCode)
	}
}

func TestDispatchEvent(t *testing.T) {
	var got map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/events" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		io.WriteString(w, `{"event_id":"e1","event_type":"enrollment.created","matched":2,"delivered":2}`)
	}))
	defer srv.Close()

	report, err := New(srv.URL).DispatchEvent(context.Background(), "enrollment.created", json.RawMessage(`{"id":"abc"}`))
	if err != nil {
		t.Fatalf("DispatchEvent: %v", err)
	}
	if report.Matched != 2 || report.Delivered != 2 {
		t.Fatalf("report = %+v", report)
	}
	if string(got["event"]) != `"enrollment.created"` || string(got["data"]) != `{"id":"abc"}` {
		t.Fatalf("server saw %v", got)
	}
}

func TestErrorWithoutJSONBody(t *testing.T) {
	srv := newMockService(t, http.MethodGet, "/api/v1/events", http.StatusBadGateway, "upstream died")
	defer srv.Close()

	_, err := New(srv.URL).SupportedEvents(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Message != http.StatusText(http.StatusBadGateway) {
		t.Fatalf("Message = %q, want the HTTP status text fallback", apiErr.Message)
	}
}
