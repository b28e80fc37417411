package module

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUpstreamFetch marks a failed external call: network error, non-2xx
	// status or malformed payload
	ErrUpstreamFetch = errors.New("upstream fetch failed")
	// ErrAuthentication marks rejected credentials; the module is disabled
	// for the rest of the scan
	ErrAuthentication = errors.New("authentication rejected")
)

// UpstreamError describes one failed external call made by a module
type UpstreamError struct {
	Module string
	Source string
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("%s: fetch %s", e.Module, e.Source)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both ErrUpstreamFetch and the underlying cause
func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUpstreamFetch}
	}
	return []error{ErrUpstreamFetch, e.Err}
}

// Retry runs fn and, if it fails with an upstream fetch error, runs it once
// more after backoff. Authentication errors and cancellation are not retried.
func Retry(ctx context.Context, backoff time.Duration, fn func(context.Context) error) error {
	err := fn(ctx)
	if err == nil || !errors.Is(err, ErrUpstreamFetch) || errors.Is(err, ErrAuthentication) {
		return err
	}

	timer := time.NewTimer(backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return err
	case <-timer.C:
	}
	return fn(ctx)
}
