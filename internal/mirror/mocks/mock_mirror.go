package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

type MockMirror struct {
	mock.Mock
}

func (m *MockMirror) EnsureDirectory(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}

func (m *MockMirror) MoveEntry(ctx context.Context, oldPath, newPath string) error {
	args := m.Called(ctx, oldPath, newPath)
	return args.Error(0)
}

func (m *MockMirror) DeleteEntry(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}

func (m *MockMirror) Put(ctx context.Context, path string, r io.Reader, size int64, contentType string) error {
	args := m.Called(ctx, path, r, size, contentType)
	return args.Error(0)
}

func (m *MockMirror) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}
