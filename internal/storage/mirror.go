package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/formlab/formd/internal/config"
	"github.com/formlab/formd/internal/log"
	"github.com/formlab/formd/internal/metrics"
)

// Mirror copies run artifacts into an object store under a fixed key prefix.
// Uploads are plain PUTs; re-mirroring the same artifacts overwrites them.
type Mirror struct {
	store  Storage
	prefix string
	logger zerolog.Logger
}

// NewMirror builds a Mirror from the mirror settings. Callers check
// cfg.Enabled before constructing; a Mirror is always usable once returned.
func NewMirror(cfg config.MirrorSettings) (*Mirror, error) {
	store, err := NewMinIO(cfg)
	if err != nil {
		return nil, err
	}
	return NewMirrorWith(store, cfg.Prefix), nil
}

// NewMirrorWith wraps an existing Storage, for tests and non-S3 targets.
func NewMirrorWith(store Storage, prefix string) *Mirror {
	return &Mirror{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		logger: log.WithComponent("mirror"),
	}
}

// UploadFile streams one local file to the store under key.
func (m *Mirror) UploadFile(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		metrics.IncMirrorUpload("failure")
		return fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		metrics.IncMirrorUpload("failure")
		return fmt.Errorf("stat artifact: %w", err)
	}

	info, err := m.store.Put(ctx, m.key(key), f, PutOptions{
		Size:        st.Size(),
		ContentType: ContentTypeFor(localPath),
	})
	if err != nil {
		metrics.IncMirrorUpload("failure")
		m.logger.Warn().
			Err(err).
			Str("event", "mirror.upload_failed").
			Str("key", m.key(key)).
			Msg("artifact upload failed")
		return fmt.Errorf("upload artifact: %w", err)
	}

	metrics.IncMirrorUpload("success")
	m.logger.Debug().
		Str("event", "mirror.uploaded").
		Str("key", info.Key).
		Int64("bytes", info.Size).
		Msg("artifact uploaded")
	return nil
}

// UploadTree mirrors every regular file under dir, keyed by keyPrefix plus
// the file's path relative to dir. Individual upload failures do not abort
// the walk; they are reported in the returned error.
func (m *Mirror) UploadTree(ctx context.Context, keyPrefix, dir string) (int, error) {
	var uploaded int
	var failed []string

	walkErr := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		key := path.Join(keyPrefix, filepath.ToSlash(rel))
		if err := m.UploadFile(ctx, key, p); err != nil {
			failed = append(failed, rel)
		} else {
			uploaded++
		}
		return nil
	})
	if walkErr != nil {
		return uploaded, fmt.Errorf("walk artifacts: %w", walkErr)
	}
	if len(failed) > 0 {
		return uploaded, fmt.Errorf("upload %d of %d artifacts failed (first: %s)",
			len(failed), uploaded+len(failed), failed[0])
	}
	return uploaded, nil
}

func (m *Mirror) key(k string) string {
	if m.prefix == "" {
		return strings.TrimPrefix(k, "/")
	}
	return path.Join(m.prefix, strings.TrimPrefix(k, "/"))
}

// ContentTypeFor maps artifact extensions to MIME types. The set is fixed to
// what runs actually produce; stdlib mime consults /etc/mime.types and would
// make results host-dependent.
func ContentTypeFor(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".mp4":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}
