package api

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDataFile(t *testing.T, dataDir, rel, content string) string {
	t.Helper()
	path := filepath.Join(dataDir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
	return path
}

func TestFileServerServesArtifact(t *testing.T) {
	ts := newTestServer(t, nil)
	writeDataFile(t, ts.srv.cfg.DataDir, "metadata.csv", "id,exercise\nsquat1,squat\n")

	w := ts.do(http.MethodGet, "/files/metadata.csv")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "id,exercise\nsquat1,squat\n", w.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("ETag"))
}

func TestFileServerServesNestedOverlay(t *testing.T) {
	ts := newTestServer(t, nil)
	writeDataFile(t, ts.srv.cfg.DataDir, "processed/squat1/overlay_0.jpg", "jpegbytes")

	w := ts.do(http.MethodGet, "/files/processed/squat1/overlay_0.jpg")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jpegbytes", w.Body.String())
}

func TestFileServerNotFound(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(http.MethodGet, "/files/missing.csv")

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestFileServerBlocksTraversal(t *testing.T) {
	ts := newTestServer(t, nil)
	writeDataFile(t, ts.srv.cfg.DataDir, "metadata.csv", "data")

	paths := []string{
		"/files/../etc/passwd",
		"/files/..%2f..%2fetc%2fpasswd",
		"/files/%2e%2e/secret",
		"/files/%252e%252e/secret",
		"/files/a%00.csv",
	}
	for _, p := range paths {
		w := ts.do(http.MethodGet, p)
		assert.Contains(t, []int{http.StatusForbidden, http.StatusNotFound}, w.Code,
			"path %q should be rejected, got %d", p, w.Code)
		assert.NotEqual(t, http.StatusOK, w.Code, "path %q must not serve content", p)
	}
}

func TestFileServerBlocksDirectoryListing(t *testing.T) {
	ts := newTestServer(t, nil)
	writeDataFile(t, ts.srv.cfg.DataDir, "processed/squat1/frame_0.jpg", "x")

	w := ts.do(http.MethodGet, "/files/processed/")
	require.Equal(t, http.StatusForbidden, w.Code)

	// A directory path without trailing slash resolves to a dir, not a file.
	w = ts.do(http.MethodGet, "/files/processed")
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestFileServerBlocksSymlinkEscape(t *testing.T) {
	ts := newTestServer(t, nil)

	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("topsecret"), 0o640))

	link := filepath.Join(ts.srv.cfg.DataDir, "leak.txt")
	if err := os.Symlink(secret, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	w := ts.do(http.MethodGet, "/files/leak.txt")
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestFileServerETagRevalidation(t *testing.T) {
	ts := newTestServer(t, nil)
	writeDataFile(t, ts.srv.cfg.DataDir, "metadata.csv", "id\n")

	first := ts.do(http.MethodGet, "/files/metadata.csv")
	require.Equal(t, http.StatusOK, first.Code)
	etag := first.Header().Get("ETag")
	require.NotEmpty(t, etag)

	second := ts.do(http.MethodGet, "/files/metadata.csv", func(r *http.Request) {
		r.Header.Set("If-None-Match", etag)
	})
	require.Equal(t, http.StatusNotModified, second.Code)
	assert.Empty(t, second.Body.String())
}

func TestFileServerRejectsWriteMethods(t *testing.T) {
	ts := newTestServer(t, nil)
	writeDataFile(t, ts.srv.cfg.DataDir, "metadata.csv", "id\n")

	w := ts.do(http.MethodDelete, "/files/metadata.csv")
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestIsPathTraversal(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"metadata.csv", false},
		{"processed/squat1/frame_0.jpg", false},
		{"../secret", true},
		{"a/../../b", true},
		{"%2e%2e/x", true},
		{"%252e%252e/x", true},
		{"a%00b", true},
		{"%c0%ae%c0%ae/x", true},
		{"normal-file_2.json", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, isPathTraversal(tt.path), "path %q", tt.path)
		})
	}
}
