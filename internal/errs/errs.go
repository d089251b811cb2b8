/**
 * Error Kinds.
 *
 * Defines the sentinel error kinds used across the capture, storage,
 * and scoring pipelines so callers can branch on failure class with
 * errors.Is/As instead of string matching.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package errs

import "fmt"

// Kind classifies an error for the purposes of recovery policy: swallow
// and count, retry, degrade, or fail fast.
type Kind string

const (
	// CaptureUnavailable means no usable interface or capture capability exists.
	CaptureUnavailable Kind = "capture_unavailable"
	// ParseError means a packet was malformed. Swallowed, counted.
	ParseError Kind = "parse_error"
	// CacheOverflow is non-fatal and triggers eviction.
	CacheOverflow Kind = "cache_overflow"
	// StoreTransient is a retryable storage error.
	StoreTransient Kind = "store_transient"
	// StoreFatal is a schema/IO error beyond retry; degrades write health.
	StoreFatal Kind = "store_fatal"
	// ScorerError causes the scorer to fall back to the safe level.
	ScorerError Kind = "scorer_error"
	// SubscriberError is isolated to one event-bus subscriber.
	SubscriberError Kind = "subscriber_error"
)

// Error wraps an underlying cause with a Kind so callers can switch on
// the failure class without parsing message text.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New constructs an *Error of the given kind for operation op.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
