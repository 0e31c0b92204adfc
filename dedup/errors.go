package dedup

import "errors"

var (
	// ErrValidation marks requests rejected before they touch the registry.
	ErrValidation = errors.New("invalid request")

	// ErrUpstream marks a unit of work that started and failed.
	ErrUpstream = errors.New("upstream execution failed")

	// ErrCancelled marks an owner execution aborted before resolution.
	ErrCancelled = errors.New("execution cancelled")

	// ErrClosed is returned once the coalescer has been shut down.
	ErrClosed = errors.New("coalescer is closed")
)
