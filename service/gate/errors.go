package gate

import "time"

// Kind identifies an expected authentication failure. All of these are
// returned as values; the gate never panics for an expected condition.
type Kind int

const (
	KindInvalidCredentials Kind = iota + 1
	KindAccountLocked
	KindAccountDisabled
	KindUnauthenticated
	KindSessionExpired
	KindForbidden
	KindRateLimited
	KindServiceUnavailable
)

// Error is a typed authentication failure. RetryAfter is populated only for
// the locked and rate-limited kinds; other kinds carry no detail that could
// aid account enumeration.
type Error struct {
	Kind       Kind
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindInvalidCredentials:
		return "invalid credentials"
	case KindAccountLocked:
		return "account is temporarily locked"
	case KindAccountDisabled:
		return "account is disabled"
	case KindUnauthenticated:
		return "not authenticated"
	case KindSessionExpired:
		return "session has expired"
	case KindForbidden:
		return "operation not permitted"
	case KindRateLimited:
		return "too many attempts"
	case KindServiceUnavailable:
		return "authentication service unavailable"
	}
	return "authentication error"
}

// Is matches any *Error of the same kind, so callers can compare against the
// exported sentinels with errors.Is regardless of RetryAfter.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials}
	ErrAccountDisabled    = &Error{Kind: KindAccountDisabled}
	ErrUnauthenticated    = &Error{Kind: KindUnauthenticated}
	ErrSessionExpired     = &Error{Kind: KindSessionExpired}
	ErrForbidden          = &Error{Kind: KindForbidden}
	ErrServiceUnavailable = &Error{Kind: KindServiceUnavailable}
)

// ErrAccountLockedFor returns an AccountLocked failure carrying the remaining
// lock duration.
func ErrAccountLockedFor(retryAfter time.Duration) *Error {
	return &Error{Kind: KindAccountLocked, RetryAfter: retryAfter}
}

// ErrRateLimitedFor returns a RateLimited failure carrying the wait duration.
func ErrRateLimitedFor(retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, RetryAfter: retryAfter}
}
