package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/everstacklabs/modelwatch/internal/httpclient"
)

// Fetcher retrieves the raw metadata payload for one model from its source.
type Fetcher interface {
	// ProviderID returns the configured provider ID (e.g., "amazon-nova").
	ProviderID() string
	// Fetch retrieves the normalized metadata payload as JSON.
	Fetch(ctx context.Context) ([]byte, error)
}

// Class categorizes a fetch failure for retry purposes.
type Class int

const (
	// Transient failures are worth retrying: timeouts, network trouble,
	// rate limits, server errors.
	Transient Class = iota
	// Permanent failures will not improve on retry: client errors,
	// unparseable responses.
	Permanent
)

func (c Class) String() string {
	if c == Permanent {
		return "permanent"
	}
	return "transient"
}

// PermanentError marks a failure that retrying cannot fix, such as a
// response body the adapter could not parse.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanentf wraps a formatted error as permanent.
func Permanentf(format string, args ...any) error {
	return &PermanentError{Err: fmt.Errorf(format, args...)}
}

// Classify decides whether a fetch error is worth retrying.
func Classify(err error) Class {
	var perm *PermanentError
	if errors.As(err, &perm) {
		return Permanent
	}
	var se *httpclient.StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusRequestTimeout,
			se.StatusCode == http.StatusTooManyRequests,
			se.StatusCode >= 500:
			return Transient
		case se.StatusCode >= 400:
			return Permanent
		}
	}
	// Deadline, cancellation, DNS, connection resets: all transient.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Transient
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return Transient
	}
	return Transient
}

// Do runs one fetch attempt under a per-attempt timeout.
func Do(ctx context.Context, f Fetcher, timeout time.Duration) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return f.Fetch(attemptCtx)
}
