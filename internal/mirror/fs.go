package mirror

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// fsMirror implements Mirror on the local filesystem under a fixed root
// directory, the way the original on-disk uploads tree is laid out.
type fsMirror struct {
	root string
}

// NewFS creates a filesystem-backed mirror rooted at the given directory,
// creating it if missing.
func NewFS(root string) (Mirror, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &fsMirror{root: abs}, nil
}

// abs maps a canonical relative path onto the disk, rejecting anything that
// would escape the root.
func (m *fsMirror) abs(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", fmt.Errorf("path escapes storage root: %q", path)
	}
	return filepath.Join(m.root, clean), nil
}

func (m *fsMirror) EnsureDirectory(_ context.Context, path string) error {
	abs, err := m.abs(path)
	if err != nil {
		return opErr("mkdir", path, err)
	}
	return opErr("mkdir", path, os.MkdirAll(abs, 0o755))
}

func (m *fsMirror) MoveEntry(_ context.Context, oldPath, newPath string) error {
	oldAbs, err := m.abs(oldPath)
	if err != nil {
		return opErr("move", oldPath, err)
	}
	newAbs, err := m.abs(newPath)
	if err != nil {
		return opErr("move", newPath, err)
	}
	if err := os.MkdirAll(filepath.Dir(newAbs), 0o755); err != nil {
		return opErr("move", newPath, err)
	}
	return opErr("move", oldPath, os.Rename(oldAbs, newAbs))
}

func (m *fsMirror) DeleteEntry(_ context.Context, path string) error {
	abs, err := m.abs(path)
	if err != nil {
		return opErr("delete", path, err)
	}
	return opErr("delete", path, os.RemoveAll(abs))
}

func (m *fsMirror) Put(_ context.Context, path string, r io.Reader, _ int64, _ string) error {
	abs, err := m.abs(path)
	if err != nil {
		return opErr("put", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return opErr("put", path, err)
	}
	f, err := os.Create(abs)
	if err != nil {
		return opErr("put", path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return opErr("put", path, err)
	}
	return opErr("put", path, f.Close())
}

func (m *fsMirror) Get(_ context.Context, path string) (io.ReadCloser, error) {
	abs, err := m.abs(path)
	if err != nil {
		return nil, opErr("get", path, err)
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, opErr("get", path, err)
	}
	return f, nil
}
