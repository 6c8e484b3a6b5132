// Package imgerr defines the error taxonomy shared by the resize engine.
//
// Every failure surfaced by the engine wraps one of the sentinels below so
// callers can classify it with errors.Is without depending on the failing
// component. Anything not wrapping a sentinel is an internal error.
package imgerr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned when the request itself is malformed:
	// unparseable URL, out-of-range dimensions, unknown output format.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is returned when the upstream could not provide the
	// original asset (non-success status or timeout).
	ErrNotFound = errors.New("not found")

	// ErrUnsupportedFormat is returned when the source image format or
	// bit depth cannot be processed.
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

// UpstreamStatusError carries the status code of a failed upstream fetch
// for diagnostics. It always classifies as ErrNotFound.
type UpstreamStatusError struct {
	StatusCode int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

func (e *UpstreamStatusError) Unwrap() error {
	return ErrNotFound
}
