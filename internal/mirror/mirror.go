package mirror

import (
	"context"
	"fmt"
	"io"
)

// Package mirror contains the blob-side companion of the item tree: a
// hierarchical byte store addressed by the same canonical relative paths the
// tree records carry. Every structural tree mutation pairs with exactly one
// mirror call, and the mirror layout must equal the tree layout at all times.

// Mirror is the hierarchical blob store interface. Paths are slash-separated
// relative paths rooted at the tenant partition (e.g. "company1/reports/q1.pdf").
type Mirror interface {
	// EnsureDirectory creates the directory at path, including any missing
	// ancestors. Idempotent.
	EnsureDirectory(ctx context.Context, path string) error

	// MoveEntry relocates a file or a whole directory from oldPath to newPath.
	MoveEntry(ctx context.Context, oldPath, newPath string) error

	// DeleteEntry removes the entry at path; directories are removed
	// recursively. Removing a missing entry is not an error.
	DeleteEntry(ctx context.Context, path string) error

	// Put writes file content at path using streaming I/O.
	Put(ctx context.Context, path string, r io.Reader, size int64, contentType string) error

	// Get retrieves file content at path as a streaming reader.
	Get(ctx context.Context, path string) (io.ReadCloser, error)
}

// Error wraps a failed blob operation with the operation name and the path it
// targeted, so a partially applied subtree mutation can name the node that
// stopped it.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("mirror %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func opErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Path: path, Err: err}
}
