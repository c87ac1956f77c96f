package webhooks

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler exposes the webhook management API over HTTP.
type Handler struct {
	registry   *Registry
	dispatcher *Dispatcher
	worker     *Worker
	attempts   AttemptStore
	limiter    *TestRateLimiter
	logger     *zap.Logger
}

// NewHandler creates a webhook Handler.
func NewHandler(registry *Registry, dispatcher *Dispatcher, worker *Worker, attempts AttemptStore, limiter *TestRateLimiter, logger *zap.Logger) *Handler {
	return &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		worker:     worker,
		attempts:   attempts,
		limiter:    limiter,
		logger:     logger,
	}
}

// Register registers all webhook routes on the given router group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	wh := rg.Group("/webhooks")
	{
		wh.POST("", h.CreateSubscription)
		wh.GET("", h.ListSubscriptions)
		wh.GET("/:id", h.GetSubscription)
		wh.PUT("/:id", h.UpdateSubscription)
		wh.DELETE("/:id", h.DeleteSubscription)
		wh.POST("/:id/rotate-secret", h.RotateSecret)
		wh.GET("/:id/delivery-status", h.DeliveryStatus)
		wh.GET("/:id/deliveries", h.ListDeliveries)
		wh.POST("/:id/test", h.TestDelivery)
	}
	rg.GET("/events", h.SupportedEventTypes)
	rg.POST("/events", h.DispatchEvent)
}

// CreateSubscription handles POST /webhooks.
func (h *Handler) CreateSubscription(c *gin.Context) {
	var req CreateSubscriptionRequest
	if err := decodeStrict(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.registry.Register(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	// The secret is returned here and never again unless rotated.
	c.JSON(http.StatusCreated, gin.H{
		"webhook_id":       sub.ID,
		"secret":           sub.Secret,
		"supported_events": SupportedEvents(),
	})
}

// ListSubscriptions handles GET /webhooks.
func (h *Handler) ListSubscriptions(c *gin.Context) {
	subs, err := h.registry.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	if subs == nil {
		subs = []*Subscription{}
	}
	c.JSON(http.StatusOK, gin.H{"webhooks": subs, "count": len(subs)})
}

// GetSubscription handles GET /webhooks/:id.
func (h *Handler) GetSubscription(c *gin.Context) {
	id, ok := h.webhookID(c)
	if !ok {
		return
	}
	sub, err := h.registry.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// UpdateSubscription handles PUT /webhooks/:id.
func (h *Handler) UpdateSubscription(c *gin.Context) {
	id, ok := h.webhookID(c)
	if !ok {
		return
	}

	var req UpdateSubscriptionRequest
	if err := decodeStrict(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.registry.Update(c.Request.Context(), id, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// DeleteSubscription handles DELETE /webhooks/:id. Deletion is soft and
// idempotent: deleting an already deleted webhook still returns 200.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	id, ok := h.webhookID(c)
	if !ok {
		return
	}
	if err := h.registry.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"webhook_id": id, "deleted": true})
}

// RotateSecret handles POST /webhooks/:id/rotate-secret.
func (h *Handler) RotateSecret(c *gin.Context) {
	id, ok := h.webhookID(c)
	if !ok {
		return
	}
	secret, err := h.registry.RotateSecret(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"webhook_id": id, "new_secret": secret})
}

// DeliveryStatus handles GET /webhooks/:id/delivery-status.
func (h *Handler) DeliveryStatus(c *gin.Context) {
	id, ok := h.webhookID(c)
	if !ok {
		return
	}
	sub, err := h.registry.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	circuit := h.worker.Breaker().Snapshot(id)
	metrics := h.worker.Metrics().Snapshot(id)

	c.JSON(http.StatusOK, gin.H{
		"webhook_id":      id,
		"delivery_status": deliveryStatusLabel(sub, circuit, metrics),
		"circuit":         circuit,
		"health_metrics":  metrics,
	})
}

// ListDeliveries handles GET /webhooks/:id/deliveries — the audit trail of
// recent delivery attempts, newest first.
func (h *Handler) ListDeliveries(c *gin.Context) {
	id, ok := h.webhookID(c)
	if !ok {
		return
	}
	if _, err := h.registry.Get(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	attempts, err := h.attempts.ListByWebhook(c.Request.Context(), id, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if attempts == nil {
		attempts = []*DeliveryAttempt{}
	}
	c.JSON(http.StatusOK, gin.H{"deliveries": attempts, "count": len(attempts)})
}

// TestDelivery handles POST /webhooks/:id/test — a synchronous trial
// delivery. The per-webhook rate limit is checked before anything else;
// a limited request never reaches the circuit breaker.
func (h *Handler) TestDelivery(c *gin.Context) {
	id, ok := h.webhookID(c)
	if !ok {
		return
	}
	sub, err := h.registry.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !sub.Active {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrNotFound.Error()})
		return
	}

	allowed := h.limiter.Allow(id)
	c.Header("X-RateLimit-Limit", strconv.Itoa(h.limiter.Limit()))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(h.limiter.Remaining(id)))
	if !allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded", "result": ResultRateLimited})
		return
	}

	event := NewEvent(sub.Events[0], json.RawMessage(`{"test":true}`))
	outcome := h.worker.Deliver(c.Request.Context(), sub, event)

	switch outcome.Result {
	case ResultDelivered:
		c.JSON(http.StatusOK, outcome)
	case ResultCircuitBroken:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Circuit breaker is open", "result": outcome.Result})
	default:
		c.JSON(http.StatusBadGateway, outcome)
	}
}

// SupportedEventTypes handles GET /events.
func (h *Handler) SupportedEventTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"supported_events": SupportedEvents()})
}

// dispatchRequest is the payload for the platform-internal event intake.
type dispatchRequest struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// DispatchEvent handles POST /events — fans a domain event out to all
// matching subscriptions and returns the aggregate report.
func (h *Handler) DispatchEvent(c *gin.Context) {
	var req dispatchRequest
	if err := decodeStrict(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Event.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": ErrInvalidEvents.Error()})
		return
	}
	if req.Data == nil {
		req.Data = json.RawMessage(`{}`)
	}

	report, err := h.dispatcher.Dispatch(c.Request.Context(), NewEvent(req.Event, req.Data))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) webhookID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook ID"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidURL), errors.Is(err, ErrInvalidEvents):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("webhook request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// decodeStrict decodes a JSON body rejecting unknown fields, so typos in
// option keys fail loudly instead of being silently dropped.
func decodeStrict(c *gin.Context, v any) error {
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func deliveryStatusLabel(sub *Subscription, circuit CircuitSnapshot, metrics HealthMetrics) string {
	switch {
	case !sub.Active:
		return "disabled"
	case circuit.State == CircuitOpen:
		return "suspended"
	case circuit.State == CircuitHalfOpen:
		return "recovering"
	case metrics.HealthScore < 0.5:
		return "degraded"
	default:
		return "healthy"
	}
}
