// Package storage keeps sheet snapshots in S3-compatible object storage.
package storage

import (
	"context"
	"io"
)

// ObjectStore is the subset of object storage operations the archiver needs.
type ObjectStore interface {
	// EnsureBucketExists creates the bucket if it doesn't exist.
	EnsureBucketExists(ctx context.Context, bucket string) error

	// UploadFile stores reader under key.
	UploadFile(ctx context.Context, bucket, key, contentType string, reader io.Reader, size int64) error

	// DownloadFile opens the object at key.
	// The caller is responsible for closing the returned io.ReadCloser.
	DownloadFile(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// ListKeys returns the object keys under prefix in lexical order.
	ListKeys(ctx context.Context, bucket, prefix string) ([]string, error)
}

// Config defines the configuration interface for storage.
type Config interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	IsMinIOEnabled() bool
}
