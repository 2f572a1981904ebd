// Package container holds the small owned data structures the solver is built
// on. None of them is safe for concurrent mutation; a frozen value may be read
// from many goroutines.
package container

import "errors"

var (
	// ErrIndexOutOfRange is returned by checked accessors for a bad index.
	ErrIndexOutOfRange = errors.New("container: index out of range")
	// ErrCapacityOverflow is returned when growing would overflow int.
	ErrCapacityOverflow = errors.New("container: capacity overflow")
	// ErrDuplicateKey is returned by Map.Insert for an existing key.
	ErrDuplicateKey = errors.New("container: duplicate key")
	// ErrEmpty is returned when popping or peeking an empty container.
	ErrEmpty = errors.New("container: empty")
	// ErrInvalidDimensions is returned by NewMatrix for a bad shape.
	ErrInvalidDimensions = errors.New("container: invalid dimensions")
)
