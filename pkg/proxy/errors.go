package proxy

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoBackend is returned by Forward when the decision carries no backend.
var ErrNoBackend = errors.New("proxy: no backend selected")

// ErrResponseTooLarge is wrapped by the GatewayError returned when a backend
// body exceeds Options.MaxResponseBytes.
var ErrResponseTooLarge = errors.New("proxy: upstream response too large")

// Kind classifies gateway failures.
type Kind string

const (
	// KindBadGateway covers every transport failure and timeout on the
	// outbound call.
	KindBadGateway Kind = "bad_gateway"
)

// GatewayError reports a failed outbound call. It is surfaced to the client
// as a 502 with Detail included.
type GatewayError struct {
	Kind      Kind
	BackendID string
	Detail    string
	Err       error
}

func (e *GatewayError) Error() string {
	if e.BackendID == "" {
		return fmt.Sprintf("Bad Gateway: %s", e.Detail)
	}
	return fmt.Sprintf("Bad Gateway: %s: %s", e.BackendID, e.Detail)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// StatusCode is the HTTP status the client receives.
func (e *GatewayError) StatusCode() int {
	return http.StatusBadGateway
}
