// ABOUTME: Normalized error type for backend calls
// ABOUTME: Callers match on Kind via errors.As, never on message strings

package api

import (
	"errors"
	"fmt"
)

// Kind classifies an adapter failure.
type Kind int

const (
	// KindHTTP is a non-2xx response from the backend.
	KindHTTP Kind = iota
	// KindTimeout is a request that exceeded the adapter timeout or deadline.
	KindTimeout
	// KindDecode is a 2xx response whose body could not be decoded.
	KindDecode
	// KindTransport is a connection-level failure (refused, DNS, reset).
	KindTransport
)

// String returns a short name for the kind.
func (k Kind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindTimeout:
		return "timeout"
	case KindDecode:
		return "decode"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Error is the normalized failure shape for all adapter operations.
type Error struct {
	Kind    Kind
	Op      string // operation name, e.g. "lead_messages"
	Status  int    // HTTP status for KindHTTP, zero otherwise
	Message string // best-effort detail from the backend
	Err     error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTP:
		if e.Message != "" {
			return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.Status, e.Message)
		}
		return fmt.Sprintf("%s: backend returned %d", e.Op, e.Status)
	case KindTimeout:
		return fmt.Sprintf("%s: request timed out", e.Op)
	case KindDecode:
		return fmt.Sprintf("%s: decoding response: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// IsTimeout reports whether err is an adapter timeout.
func IsTimeout(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == KindTimeout
}

// HTTPStatus returns the status code if err is a KindHTTP error, else zero.
func HTTPStatus(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Kind == KindHTTP {
		return apiErr.Status
	}
	return 0
}
