package agbsave

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidContainer means neither slot validates, or no header
	// could be found at all.
	ErrInvalidContainer = errors.New("invalid save container")

	// ErrInvalidSaveSize means a flat save has a size the container
	// cannot hold.
	ErrInvalidSaveSize = errors.New("invalid save size")

	// ErrIO wraps failures of the underlying container reads and writes.
	ErrIO = errors.New("container i/o")
)

func ioError(op string, off int64, err error) error {
	return fmt.Errorf("%w: %s at %#x: %w", ErrIO, op, off, err)
}
