package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
)

// fsStorage keeps objects as plain files under a root directory. It exists
// for local deployments without an S3 endpoint and for tests; content types
// and metadata are not persisted and are re-derived on read.
type fsStorage struct {
	root string
}

// NewFS returns filesystem-backed storage rooted at dir.
func NewFS(dir string) (Storage, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &fsStorage{root: dir}, nil
}

func (s *fsStorage) Put(ctx context.Context, key string, r io.Reader, opt PutOptions) (ObjectInfo, error) {
	p, err := s.objectPath(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return ObjectInfo{}, fmt.Errorf("create object dir: %w", err)
	}

	pending, err := renameio.NewPendingFile(p, renameio.WithPermissions(0o640))
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("stage object: %w", err)
	}
	defer pending.Cleanup()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(pending, h), r)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("write object: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return ObjectInfo{}, fmt.Errorf("commit object: %w", err)
	}

	return ObjectInfo{
		Key:          key,
		Size:         n,
		ETag:         hex.EncodeToString(h.Sum(nil)),
		ContentType:  opt.ContentType,
		LastModified: time.Now(),
		Metadata:     opt.Metadata,
	}, nil
}

func (s *fsStorage) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	p, err := s.objectPath(key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, ObjectInfo{}, fmt.Errorf("open object: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, ObjectInfo{}, fmt.Errorf("stat object: %w", err)
	}
	return f, ObjectInfo{
		Key:          key,
		Size:         st.Size(),
		ContentType:  ContentTypeFor(key),
		LastModified: st.ModTime(),
	}, nil
}

func (s *fsStorage) Delete(ctx context.Context, key string) error {
	p, err := s.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// PresignGet returns a file URL. Filesystem objects need no credentials, so
// the expiry is ignored.
func (s *fsStorage) PresignGet(ctx context.Context, key string, _ time.Duration) (string, error) {
	p, err := s.objectPath(key)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(abs), nil
}

// objectPath maps a slash-separated object key onto the root dir, rejecting
// keys that would escape it.
func (s *fsStorage) objectPath(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	rel := strings.TrimPrefix(clean, "/")
	return filepath.Join(s.root, filepath.FromSlash(rel)), nil
}
