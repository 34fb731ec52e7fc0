package tpl

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a path cannot be classified into any
	// FileType, when no loader can supply its content, or when the
	// underlying file vanished between a validity check and a read.
	ErrNotFound = errors.New("template not found")

	// ErrConfig marks setup-time programming errors: duplicate
	// registrations, invalid extension strings, and validation failures
	// during Finalize. These are never recoverable at runtime.
	ErrConfig = errors.New("configuration error")

	// ErrLocked is returned by mutating calls once Finalize has run.
	// It matches ErrConfig under errors.Is.
	ErrLocked = fmt.Errorf("%w: registry is finalized", ErrConfig)

	// ErrEngine marks failures inside a renderer, such as malformed
	// template syntax. Engine adapters wrap their errors with it; the
	// Manager propagates them unmodified.
	ErrEngine = errors.New("engine error")
)

func notFound(path string) error {
	return fmt.Errorf("%w: %q", ErrNotFound, path)
}

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}
