package store

import (
	"errors"
	"fmt"
)

// ErrCorrupt matches any CorruptStoreError via errors.Is.
var ErrCorrupt = errors.New("store: corrupt artifact")

// CorruptStoreError is returned by Load when the durable artifact exists but
// cannot be parsed. It is never downgraded to an empty store.
type CorruptStoreError struct {
	Path string
	Err  error
}

func (e *CorruptStoreError) Error() string {
	return fmt.Sprintf("store: corrupt artifact %s: %v", e.Path, e.Err)
}

func (e *CorruptStoreError) Unwrap() error { return e.Err }

// Is reports true for ErrCorrupt.
func (e *CorruptStoreError) Is(target error) bool {
	return target == ErrCorrupt
}

func corrupt(path string, format string, args ...any) error {
	return &CorruptStoreError{Path: path, Err: fmt.Errorf(format, args...)}
}
