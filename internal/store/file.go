package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// codec translates between a Snapshot and one on-disk file format.
type codec interface {
	encode(w io.Writer, snap *Snapshot) error
	// decode returns a plain error on malformed input; FileBackend wraps it
	// in a CorruptStoreError.
	decode(r io.Reader) (*Snapshot, error)
	shape() Shape
}

// FileBackend persists the snapshot to a single file, rewriting it in full on
// every save via a temp file and rename.
type FileBackend struct {
	path  string
	codec codec
}

// NewFlatFile returns a backend storing full ingredient records as a JSON array.
func NewFlatFile(path string) *FileBackend {
	return &FileBackend{path: path, codec: flatCodec{}}
}

// NewDimensionalFile returns a backend storing assessments as CSV rows of
// ingredient,concern,safe,reason.
func NewDimensionalFile(path string) *FileBackend {
	return &FileBackend{path: path, codec: dimensionalCodec{}}
}

func (b *FileBackend) Path() string { return b.path }
func (b *FileBackend) Shape() Shape { return b.codec.shape() }
func (b *FileBackend) Close() error { return nil }

// Load reads and decodes the file. A missing or zero-length file is an empty
// dataset.
func (b *FileBackend) Load(_ context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return NewSnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", b.path, err)
	}
	if len(data) == 0 {
		return NewSnapshot(), nil
	}
	snap, err := b.codec.decode(bytes.NewReader(data))
	if err != nil {
		return nil, &CorruptStoreError{Path: b.path, Err: err}
	}
	return snap, nil
}

// Save encodes snap into a temp file next to the target, syncs it, and
// renames it over the target. A crash at any point leaves either the old or
// the new file, never a partial one.
func (b *FileBackend) Save(_ context.Context, snap *Snapshot) (retErr error) {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(b.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := b.codec.encode(tmp, snap); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
