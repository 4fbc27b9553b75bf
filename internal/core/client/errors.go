package client

import "errors"

// ServerError is a structured failure reported by the management service as
// an {error: "..."} payload. Message carries the service's wording verbatim
// so the console can surface it unchanged; anything else that goes wrong on
// the wire is a plain transport error.
type ServerError struct {
	Op      string // operation that failed, e.g. "create_rule"
	Message string
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Message
}

// AsServerError unwraps err to a *ServerError if one is in the chain.
func AsServerError(err error) (*ServerError, bool) {
	var se *ServerError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
