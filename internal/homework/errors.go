package homework

import (
	"errors"
	"fmt"
)

// Kind classifies validation and formatting failures.
type Kind int

const (
	// KindType: a value has the wrong JSON type.
	KindType Kind = iota + 1
	// KindMissingKey: a required key is absent or null.
	KindMissingKey
	// KindEmpty: the homeworks list is empty (nothing to report).
	KindEmpty
	// KindUnknownStatus: status is not in the verdict table.
	KindUnknownStatus
)

func (k Kind) String() string {
	switch k {
	case KindType:
		return "type"
	case KindMissingKey:
		return "missing_key"
	case KindEmpty:
		return "empty"
	case KindUnknownStatus:
		return "unknown_status"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	// Key is the offending key (missing-key, type) when known.
	Key string
	// Status is the unrecognized value (unknown-status).
	Status string
	Msg    string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindMissingKey:
		return fmt.Sprintf("missing key %q in API response", e.Key)
	case KindUnknownStatus:
		return fmt.Sprintf("unknown homework status %q", e.Status)
	}
	if e.Msg != "" {
		return e.Msg
	}
	return e.Kind.String()
}

// Is matches on Kind so callers can test against the sentinel errors below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Key == "" || t.Key == e.Key)
}

var (
	ErrNoHomeworks   = &Error{Kind: KindEmpty, Msg: "homeworks list is empty"}
	ErrMissingKey    = &Error{Kind: KindMissingKey}
	ErrUnknownStatus = &Error{Kind: KindUnknownStatus}
)

// KindOf returns the Kind of a homework error anywhere in err's chain, or 0.
func KindOf(err error) Kind {
	var he *Error
	if errors.As(err, &he) {
		return he.Kind
	}
	return 0
}
