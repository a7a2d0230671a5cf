package capstore

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned for id <= 0 and for malformed records
	ErrInvalidArgument = errors.New("capstore: invalid argument")
	// ErrConflict is returned by Save when a cap with the same id exists
	ErrConflict = errors.New("capstore: conflict")
	// ErrNotFound is returned for unknown id or brand
	ErrNotFound = errors.New("capstore: not found")
	// ErrCorruption is returned when the index points outside of the heap
	ErrCorruption = errors.New("capstore: corruption")
	// ErrIO wraps errors from reading or writing backing files
	ErrIO = errors.New("capstore: i/o failure")
)

func ioError(op string, path string, err error) error {
	return fmt.Errorf("%w: %s '%s': %w", ErrIO, op, path, err)
}
