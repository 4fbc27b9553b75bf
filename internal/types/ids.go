package types

import (
	"github.com/google/uuid"
)

// RequestID identifies one outbound request to the management service.
// Attached as X-Request-Id so server logs correlate with console actions.
type RequestID string

// NewRequestID generates a UUIDv7 request identifier.
// Time-ordered IDs keep correlated log lines sortable by issue time.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewRequestID() RequestID {
	return RequestID(uuid.Must(uuid.NewV7()).String())
}
