package practicum

import (
	"errors"
	"fmt"
)

// Kind classifies API client failures.
type Kind int

const (
	// KindTransport: the request never produced a response (dial, TLS, timeout, cancel).
	KindTransport Kind = iota + 1
	// KindHTTPStatus: the server answered with a non-2xx status.
	KindHTTPStatus
	// KindDecode: the body is not valid JSON.
	KindDecode
	// KindAPIReported: a 2xx body carrying "code"/"error" fields.
	KindAPIReported
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindHTTPStatus:
		return "http_status"
	case KindDecode:
		return "decode"
	case KindAPIReported:
		return "api_reported"
	default:
		return "unknown"
	}
}

type APIError struct {
	Kind       Kind
	StatusCode int
	// Code and Message are the API-reported "code" and "error" fields.
	Code    string
	Message string
	Err     error
}

func (e *APIError) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("homework API: unexpected status %d", e.StatusCode)
	case KindAPIReported:
		return fmt.Sprintf("homework API error: code=%s error=%s", e.Code, e.Message)
	case KindTransport:
		return fmt.Sprintf("homework API unreachable: %v", e.Err)
	case KindDecode:
		return fmt.Sprintf("homework API: invalid JSON body: %v", e.Err)
	}
	return "homework API error"
}

func (e *APIError) Unwrap() error { return e.Err }

// KindOf returns the Kind of an APIError anywhere in err's chain, or 0.
func KindOf(err error) Kind {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return 0
}
