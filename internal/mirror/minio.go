package mirror

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"docvault/internal/config"
)

// minioMirror implements Mirror on an S3-compatible backend (MinIO, AWS S3).
// The keyspace is flat, so directories are key prefixes: a directory exists
// as a zero-byte marker object with a trailing slash, and directory move and
// delete operate over every key under the prefix. Safe for concurrent use.
type minioMirror struct {
	client *minio.Client
	bucket string
}

// NewMinIO creates an S3-compatible mirror backed by MinIO. It validates
// connectivity and ensures the bucket exists (creates it if missing).
func NewMinIO(cfg config.MinIOConfig) (Mirror, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio credentials are required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	mm := &minioMirror{client: cli, bucket: cfg.Bucket}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return mm, nil
}

func dirMarker(path string) string {
	return strings.TrimSuffix(path, "/") + "/"
}

func (m *minioMirror) EnsureDirectory(ctx context.Context, path string) error {
	_, err := m.client.PutObject(ctx, m.bucket, dirMarker(path),
		bytes.NewReader(nil), 0, minio.PutObjectOptions{})
	return opErr("mkdir", path, err)
}

// MoveEntry relocates a single object, or every object under the directory
// prefix, via server-side copy followed by removal of the source.
func (m *minioMirror) MoveEntry(ctx context.Context, oldPath, newPath string) error {
	keys, err := m.keysFor(ctx, oldPath)
	if err != nil {
		return opErr("move", oldPath, err)
	}
	for _, key := range keys {
		newKey := newPath + strings.TrimPrefix(key, oldPath)
		_, err := m.client.CopyObject(ctx,
			minio.CopyDestOptions{Bucket: m.bucket, Object: newKey},
			minio.CopySrcOptions{Bucket: m.bucket, Object: key},
		)
		if err != nil {
			return opErr("move", key, err)
		}
		if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
			return opErr("move", key, err)
		}
	}
	return nil
}

// DeleteEntry removes the object at path, or every object under the
// directory prefix. Missing entries are not an error.
func (m *minioMirror) DeleteEntry(ctx context.Context, path string) error {
	keys, err := m.keysFor(ctx, path)
	if err != nil {
		return opErr("delete", path, err)
	}
	for _, key := range keys {
		if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
			return opErr("delete", key, err)
		}
	}
	return nil
}

// Put uploads file content using streaming I/O only (no local disk).
func (m *minioMirror) Put(ctx context.Context, path string, r io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, path, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return opErr("put", path, err)
}

// Get downloads file content as a ReadCloser.
func (m *minioMirror) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, opErr("get", path, err)
	}
	// GetObject is lazy; Stat forces the first request so a missing key
	// surfaces here rather than on first read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, opErr("get", path, err)
	}
	return obj, nil
}

// keysFor resolves a canonical path to the object keys it covers: the exact
// key if it exists, otherwise everything under the directory prefix.
func (m *minioMirror) keysFor(ctx context.Context, path string) ([]string, error) {
	var keys []string
	if _, err := m.client.StatObject(ctx, m.bucket, path, minio.StatObjectOptions{}); err == nil {
		keys = append(keys, path)
	}
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    dirMarker(path),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}
