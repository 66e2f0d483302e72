package provider

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a fetch failure.
type Kind int

const (
	KindTransient Kind = iota + 1
	KindPermanent
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

var (
	// ErrTransient matches failures that may succeed on retry.
	ErrTransient = errors.New("transient fetch error")
	// ErrPermanent matches failures that will not succeed on retry.
	ErrPermanent = errors.New("permanent fetch error")
)

// FetchError is returned by every fetch path. errors.Is matches it against
// ErrTransient or ErrPermanent according to Kind.
type FetchError struct {
	Task       string
	Endpoint   string
	Kind       Kind
	Attempts   int
	StatusCode int
	RetryAfter time.Duration // from a 429 Retry-After header
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%s fetch %s", e.Kind, e.Endpoint)
	if e.Task != "" {
		msg += " for " + e.Task
	}
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" after %d attempt(s)", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() []error {
	var errs []error
	switch e.Kind {
	case KindTransient:
		errs = append(errs, ErrTransient)
	case KindPermanent:
		errs = append(errs, ErrPermanent)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Transient wraps err as a retryable failure.
func Transient(endpoint string, err error) *FetchError {
	return &FetchError{Endpoint: endpoint, Kind: KindTransient, Err: err}
}

// Permanent wraps err as a non-retryable failure.
func Permanent(endpoint string, err error) *FetchError {
	return &FetchError{Endpoint: endpoint, Kind: KindPermanent, Err: err}
}

// ClassifyStatus maps an HTTP status code to a failure kind: 429 and 5xx
// are transient, every other non-2xx code is permanent.
func ClassifyStatus(code int) Kind {
	switch {
	case code == 429, code >= 500:
		return KindTransient
	default:
		return KindPermanent
	}
}

// KindOf returns the kind of err. Unclassified errors are permanent.
func KindOf(err error) Kind {
	var fe *FetchError
	if errors.As(err, &fe) && fe.Kind != 0 {
		return fe.Kind
	}
	return KindPermanent
}
