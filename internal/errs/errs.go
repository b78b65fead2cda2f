// Package errs implements the error taxonomy: a single Error type with
// one Kind per category in spec §7, and a pure Decide method that returns
// a RetryDecision from that Kind (and, for Integration errors, the status
// code and message), generalizing internal/util/retry.go's
// transient-pattern matching into a closed classification.
package errs

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind is the closed set of error categories.
type Kind int

const (
	Configuration Kind = iota
	IO
	Parse
	Storage
	Git
	Network
	RateLimited
	Integration
	Authentication
	NotFound
	LockConflict
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration"
	case IO:
		return "io"
	case Parse:
		return "parse"
	case Storage:
		return "storage"
	case Git:
		return "git"
	case Network:
		return "network"
	case RateLimited:
		return "rate_limited"
	case Integration:
		return "integration"
	case Authentication:
		return "authentication"
	case NotFound:
		return "not_found"
	case LockConflict:
		return "lock_conflict"
	default:
		return "unknown"
	}
}

// Error is the sum-type-shaped error every component returns.
type Error struct {
	Kind Kind
	Msg  string
	// RetryAfter carries the retry-after duration for RateLimited errors.
	RetryAfter time.Duration
	// StatusCode carries the HTTP status code for Integration errors
	// raised from a vendor API response, 0 if not applicable.
	StatusCode int
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Kind.String() + ": " + e.Msg + ": " + e.cause.Error()
	}
	return e.Kind.String() + ": " + e.Msg
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs an Error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap constructs an Error of kind wrapping err.
func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Msg: err.Error(), cause: err}
}

// RateLimitedAfter constructs a RateLimited error carrying a retry-after
// duration.
func RateLimitedAfter(msg string, after time.Duration) *Error {
	return &Error{Kind: RateLimited, Msg: msg, RetryAfter: after}
}

// RetryAction is the decision RetryDecision renders.
type RetryAction int

const (
	NoRetry RetryAction = iota
	Retry
	RetryAfterAction
)

// RetryDecision is the outcome of classifying an error for retry.
type RetryDecision struct {
	Action RetryAction
	After  time.Duration
}

var transientVocabulary = []string{"rate", "timeout", "connection", "temporarily unavailable"}

var retryAfterPattern = regexp.MustCompile(`(?i)retry[\s-]?after\s+(\d+)\s*(s|sec|secs|second|seconds)?\b`)

// ExtractRetryAfter looks for an embedded "retry after N seconds"
// message, returning the duration and true if found.
func ExtractRetryAfter(msg string) (time.Duration, bool) {
	m := retryAfterPattern.FindStringSubmatch(msg)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

func containsTransientVocabulary(msg string) bool {
	lower := strings.ToLower(msg)
	for _, word := range transientVocabulary {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

const defaultRetryAfter = 30 * time.Second

// Decide is the pure retry-classification function: Network errors and
// 5xx are always Retry; RateLimited carries its own (or a default)
// retry-after; Integration errors are classified by message vocabulary;
// every other kind is non-retriable.
func (e *Error) Decide() RetryDecision {
	switch e.Kind {
	case Network:
		return RetryDecision{Action: Retry}
	case RateLimited:
		after := e.RetryAfter
		if after <= 0 {
			if extracted, ok := ExtractRetryAfter(e.Msg); ok {
				after = extracted
			} else {
				after = defaultRetryAfter
			}
		}
		return RetryDecision{Action: RetryAfterAction, After: after}
	case Integration:
		if after, ok := ExtractRetryAfter(e.Msg); ok {
			return RetryDecision{Action: RetryAfterAction, After: after}
		}
		if e.StatusCode >= 500 {
			return RetryDecision{Action: Retry}
		}
		if e.StatusCode >= 400 {
			return RetryDecision{Action: NoRetry}
		}
		if containsTransientVocabulary(e.Msg) {
			return RetryDecision{Action: Retry}
		}
		return RetryDecision{Action: NoRetry}
	default:
		return RetryDecision{Action: NoRetry}
	}
}

// ClassifyHTTP converts an HTTP response outcome into an *Error with the
// classification spec §4.7/§8 requires: 429 -> RateLimited (retry-after
// from header or body), 5xx -> Integration (retriable), other 4xx ->
// Integration (non-retriable), connection/timeout transport errors are
// the caller's responsibility to wrap as Network before calling this.
func ClassifyHTTP(statusCode int, retryAfterHeader string, body string) *Error {
	switch {
	case statusCode == 429:
		after := defaultRetryAfter
		if retryAfterHeader != "" {
			if secs, err := strconv.Atoi(strings.TrimSpace(retryAfterHeader)); err == nil {
				after = time.Duration(secs) * time.Second
			}
		} else if extracted, ok := ExtractRetryAfter(body); ok {
			after = extracted
		}
		return RateLimitedAfter("rate limited", after)
	case statusCode == 401 || statusCode == 403:
		return New(Authentication, "authentication failed")
	case statusCode == 404:
		return New(NotFound, "resource not found")
	case statusCode >= 500:
		e := New(Integration, "server error: "+body)
		e.StatusCode = statusCode
		return e
	case statusCode >= 400:
		e := New(Integration, "client error (non-retriable): "+body)
		e.StatusCode = statusCode
		return e
	default:
		return nil
	}
}
