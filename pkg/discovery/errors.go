package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// ErrorKind classifies why a probe failed.
type ErrorKind string

const (
	ErrorKindTimeout           ErrorKind = "timeout"
	ErrorKindConnectionRefused ErrorKind = "connection-refused"
	ErrorKindHostNotFound      ErrorKind = "host-not-found"
	ErrorKindHTTPStatus        ErrorKind = "http-status"
	ErrorKindOther             ErrorKind = "other"
)

const maxErrorDetail = 80

// ProbeError is a failed liveness probe. It stays scoped to one backend and
// one cycle and is only ever recorded in the snapshot.
type ProbeError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ProbeError) Error() string {
	switch e.Kind {
	case ErrorKindTimeout:
		return "timeout"
	case ErrorKindConnectionRefused:
		return "connection refused"
	case ErrorKindHostNotFound:
		return "host not found"
	case ErrorKindHTTPStatus:
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	if e.Err == nil {
		return "probe failed"
	}
	msg := e.Err.Error()
	if len(msg) > maxErrorDetail {
		msg = msg[:maxErrorDetail-3] + "..."
	}
	return msg
}

func (e *ProbeError) Unwrap() error { return e.Err }

func classifyTransportError(err error) *ProbeError {
	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &ProbeError{Kind: ErrorKindTimeout, Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &ProbeError{Kind: ErrorKindTimeout, Err: err}
	case errors.Is(err, syscall.ECONNREFUSED):
		return &ProbeError{Kind: ErrorKindConnectionRefused, Err: err}
	case errors.As(err, &dnsErr):
		return &ProbeError{Kind: ErrorKindHostNotFound, Err: err}
	default:
		return &ProbeError{Kind: ErrorKindOther, Err: err}
	}
}
