package webhooks

import "errors"

// Registry-level errors. Handlers map these to 4xx responses; everything
// else surfaces as a 500.
var (
	// ErrNotFound is returned when a webhook subscription does not exist.
	ErrNotFound = errors.New("webhook subscription not found")

	// ErrInvalidURL is returned when a subscription URL is not a valid
	// HTTPS endpoint.
	ErrInvalidURL = errors.New("webhook URL must be a valid https:// endpoint")

	// ErrInvalidEvents is returned when the event set is empty or contains
	// an unrecognized event type.
	ErrInvalidEvents = errors.New("webhook events must be a non-empty set of supported event types")
)
