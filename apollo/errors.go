// ABOUTME: Error taxonomy for provider calls
// ABOUTME: Classifies failures as rate-limited, transient, or permanent for the sync loop
package apollo

import (
	"errors"
	"fmt"
)

// Kind is the failure class of a provider call.
type Kind int

const (
	// KindUnknown is the zero value and never returned by the client.
	KindUnknown Kind = iota
	// KindRateLimited means the provider throttled us (HTTP 429). Never retried.
	KindRateLimited
	// KindTransient covers 5xx, network errors, and timeouts.
	KindTransient
	// KindPermanent covers other non-2xx responses and undecodable bodies.
	KindPermanent
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Error is a classified provider failure.
type Error struct {
	Kind   Kind
	Op     string
	Status int
	Err    error

	// Exhausted is set on transient errors once the retry budget is spent.
	Exhausted bool
	Attempts  int
}

// ErrRateLimited matches any rate-limited *Error via errors.Is.
var ErrRateLimited = &Error{Kind: KindRateLimited}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Exhausted {
		msg = fmt.Sprintf("%s after %d attempts", msg, e.Attempts)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of a classified error, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is a classified error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func rateLimited(op string, status int) *Error {
	return &Error{Kind: KindRateLimited, Op: op, Status: status}
}

func transient(op string, status int, err error) *Error {
	return &Error{Kind: KindTransient, Op: op, Status: status, Err: err}
}

func permanent(op string, status int, err error) *Error {
	return &Error{Kind: KindPermanent, Op: op, Status: status, Err: err}
}
