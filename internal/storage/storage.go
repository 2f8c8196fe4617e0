// Package storage provides the S3-compatible object store client used to
// mirror run artifacts (reports, annotated frames) off the local data dir.
package storage

import (
	"context"
	"io"
	"time"
)

// PutOptions carries optional parameters for an upload. Size should be the
// exact byte count when known; -1 lets the backend buffer and chunk.
type PutOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Storage is the object-store client interface. Implementations stream
// content and never spool to local disk.
type Storage interface {
	// Put uploads an object under key.
	Put(ctx context.Context, key string, r io.Reader, opt PutOptions) (ObjectInfo, error)
	// Get returns an object's content as a streaming reader plus its info.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// PresignGet returns a time-limited URL for downloading the object
	// without credentials.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}
