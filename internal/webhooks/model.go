package webhooks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType identifies a domain event that subscriptions can listen for.
// The set is closed: anything outside it is rejected at registration time.
type EventType string

const (
	EventEnrollmentCreated   EventType = "enrollment.created"
	EventEnrollmentUpdated   EventType = "enrollment.updated"
	EventEnrollmentCompleted EventType = "enrollment.completed"
	EventDocumentUploaded    EventType = "document.uploaded"
	EventDocumentProcessed   EventType = "document.processed"
	EventInterviewScheduled  EventType = "interview.scheduled"
	EventInterviewCompleted  EventType = "interview.completed"
)

// SupportedEvents returns all recognized event types in a stable order.
func SupportedEvents() []EventType {
	return []EventType{
		EventEnrollmentCreated,
		EventEnrollmentUpdated,
		EventEnrollmentCompleted,
		EventDocumentUploaded,
		EventDocumentProcessed,
		EventInterviewScheduled,
		EventInterviewCompleted,
	}
}

// Valid reports whether e is a recognized event type.
func (e EventType) Valid() bool {
	switch e {
	case EventEnrollmentCreated, EventEnrollmentUpdated, EventEnrollmentCompleted,
		EventDocumentUploaded, EventDocumentProcessed,
		EventInterviewScheduled, EventInterviewCompleted:
		return true
	}
	return false
}

// DeliveryOptions holds the recognized per-subscription delivery settings.
// Unknown keys are rejected at the JSON boundary rather than silently kept.
type DeliveryOptions struct {
	// Headers are extra HTTP headers added to every delivery.
	Headers map[string]string `json:"headers,omitempty"`
	// TimeoutSeconds overrides the worker's default delivery timeout.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// Subscription is a registered webhook endpoint.
type Subscription struct {
	ID        uuid.UUID       `json:"id"         db:"id"`
	URL       string          `json:"url"        db:"url"`
	Events    []EventType     `json:"events"     db:"events"`
	Secret    string          `json:"-"          db:"secret"` // returned once at registration / rotation, never echoed
	Options   DeliveryOptions `json:"options"    db:"options"`
	Active    bool            `json:"active"     db:"active"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Listens reports whether the subscription listens for the given event type.
func (s *Subscription) Listens(e EventType) bool {
	for _, ev := range s.Events {
		if ev == e {
			return true
		}
	}
	return false
}

// Event is a domain event to be fanned out to matching subscriptions.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Type       EventType       `json:"type"`
	Data       json.RawMessage `json:"data"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewEvent builds an Event with a fresh ID and timestamp.
func NewEvent(t EventType, data json.RawMessage) Event {
	return Event{
		ID:         uuid.New(),
		Type:       t,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	}
}

// AttemptStatus is the lifecycle state of a delivery attempt.
type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "pending"
	AttemptSuccess   AttemptStatus = "success"
	AttemptFailed    AttemptStatus = "failed"
	AttemptAbandoned AttemptStatus = "abandoned" // retry budget exhausted; kept for audit
)

// DeliveryAttempt records one logical delivery and its retry progress.
// Attempt increases monotonically; once Status is success or abandoned the
// row is terminal.
type DeliveryAttempt struct {
	ID          uuid.UUID       `json:"id"            db:"id"`
	WebhookID   uuid.UUID       `json:"webhook_id"    db:"webhook_id"`
	EventID     uuid.UUID       `json:"event_id"      db:"event_id"`
	EventType   EventType       `json:"event_type"    db:"event_type"`
	Payload     json.RawMessage `json:"payload"       db:"payload"`
	Attempt     int             `json:"attempt"       db:"attempt"`
	Status      AttemptStatus   `json:"status"        db:"status"`
	HTTPStatus  int             `json:"http_status,omitempty"   db:"http_status"`
	Error       string          `json:"error,omitempty"         db:"error"`
	LatencyMs   int64           `json:"latency_ms"    db:"latency_ms"`
	NextRetryAt *time.Time      `json:"next_retry_at,omitempty" db:"next_retry_at"`
	CreatedAt   time.Time       `json:"created_at"    db:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"  db:"completed_at"`
}

// HealthMetrics is the per-webhook rolling delivery health view.
type HealthMetrics struct {
	TotalDeliveries      int64   `json:"total_deliveries"`
	SuccessfulDeliveries int64   `json:"successful_deliveries"`
	AverageLatencyMs     float64 `json:"average_latency"`
	HealthScore          float64 `json:"health_score"`
}

// CreateSubscriptionRequest is the payload for registering a webhook.
type CreateSubscriptionRequest struct {
	URL     string           `json:"url"`
	Events  []EventType      `json:"events"`
	Secret  string           `json:"secret,omitempty"`
	Options *DeliveryOptions `json:"options,omitempty"`
}

// UpdateSubscriptionRequest is a partial update; nil fields are left unchanged.
type UpdateSubscriptionRequest struct {
	URL     *string          `json:"url,omitempty"`
	Events  []EventType      `json:"events,omitempty"`
	Options *DeliveryOptions `json:"options,omitempty"`
}
