package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formlab/formd/internal/config"
)

func TestNewMinIOValidation(t *testing.T) {
	_, err := NewMinIO(config.MirrorSettings{})
	assert.ErrorContains(t, err, "endpoint")

	_, err = NewMinIO(config.MirrorSettings{Endpoint: "minio:9000"})
	assert.ErrorContains(t, err, "credentials")

	_, err = NewMinIO(config.MirrorSettings{Endpoint: "minio:9000", AccessKey: "a", SecretKey: "s"})
	assert.ErrorContains(t, err, "bucket")
}

func newFS(t *testing.T) (Storage, string) {
	t.Helper()
	root := t.TempDir()
	st, err := NewFS(root)
	require.NoError(t, err)
	return st, root
}

func TestFSStorageRoundtrip(t *testing.T) {
	st, _ := newFS(t)
	ctx := context.Background()

	body := "id,exercise,form\nsquat1,squat,good\n"
	info, err := st.Put(ctx, "runs/r1/report.csv", strings.NewReader(body), PutOptions{
		Size:        int64(len(body)),
		ContentType: "text/csv",
	})
	require.NoError(t, err)
	assert.Equal(t, "runs/r1/report.csv", info.Key)
	assert.EqualValues(t, len(body), info.Size)
	assert.Len(t, info.ETag, 64)

	rc, got, err := st.Get(ctx, "runs/r1/report.csv")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, body, string(data))
	assert.EqualValues(t, len(body), got.Size)
	assert.Equal(t, "text/csv", got.ContentType)
}

func TestFSStoragePutOverwrites(t *testing.T) {
	st, _ := newFS(t)
	ctx := context.Background()

	_, err := st.Put(ctx, "a.txt", strings.NewReader("one"), PutOptions{Size: 3})
	require.NoError(t, err)
	_, err = st.Put(ctx, "a.txt", strings.NewReader("two"), PutOptions{Size: 3})
	require.NoError(t, err)

	rc, _, err := st.Get(ctx, "a.txt")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestFSStorageKeysStayUnderRoot(t *testing.T) {
	st, root := newFS(t)
	ctx := context.Background()

	// Dot segments are normalized away rather than escaping the root.
	_, err := st.Put(ctx, "nested/../other.txt", strings.NewReader("x"), PutOptions{Size: 1})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "other.txt"))

	for _, key := range []string{"", ".", "..", "/"} {
		_, err := st.Put(ctx, key, strings.NewReader("x"), PutOptions{Size: 1})
		assert.Error(t, err, "key %q", key)
	}
}

func TestFSStorageDeleteMissingKey(t *testing.T) {
	st, _ := newFS(t)
	assert.NoError(t, st.Delete(context.Background(), "never/was/here.jpg"))
}

func TestFSStoragePresignGet(t *testing.T) {
	st, _ := newFS(t)
	ctx := context.Background()

	_, err := st.Put(ctx, "runs/r1/frame_0.jpg", strings.NewReader("jpg"), PutOptions{Size: 3})
	require.NoError(t, err)

	u, err := st.PresignGet(ctx, "runs/r1/frame_0.jpg", time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "file://"), "got %q", u)
	assert.True(t, strings.HasSuffix(u, "runs/r1/frame_0.jpg"), "got %q", u)
}

func TestMirrorUploadFilePrefixesKeys(t *testing.T) {
	st, root := newFS(t)
	m := NewMirrorWith(st, "formd/artifacts")

	local := filepath.Join(t.TempDir(), "report.csv")
	require.NoError(t, os.WriteFile(local, []byte("id,exercise\n"), 0o640))

	err := m.UploadFile(context.Background(), "runs/r1/report.csv", local)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "formd", "artifacts", "runs", "r1", "report.csv"))
	require.NoError(t, err)
	assert.Equal(t, "id,exercise\n", string(data))
}

func TestMirrorUploadFileMissingLocal(t *testing.T) {
	st, _ := newFS(t)
	m := NewMirrorWith(st, "")

	err := m.UploadFile(context.Background(), "runs/r1/report.csv", filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

func TestMirrorUploadTree(t *testing.T) {
	st, root := newFS(t)
	m := NewMirrorWith(st, "")

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "squat1"), 0o750))
	for _, p := range []string{"squat1/frame_0.jpg", "squat1/frame_1.jpg", "report.csv"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, filepath.FromSlash(p)), []byte(p), 0o640))
	}

	n, err := m.UploadTree(context.Background(), "runs/r1", dir)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, p := range []string{"runs/r1/squat1/frame_0.jpg", "runs/r1/squat1/frame_1.jpg", "runs/r1/report.csv"} {
		assert.FileExists(t, filepath.Join(root, filepath.FromSlash(p)))
	}
}

// flakyStore fails every Put whose key contains "bad".
type flakyStore struct {
	Storage
}

func (f *flakyStore) Put(ctx context.Context, key string, r io.Reader, opt PutOptions) (ObjectInfo, error) {
	if strings.Contains(key, "bad") {
		return ObjectInfo{}, assert.AnError
	}
	return f.Storage.Put(ctx, key, r, opt)
}

func TestMirrorUploadTreePartialFailure(t *testing.T) {
	inner, _ := newFS(t)
	m := NewMirrorWith(&flakyStore{Storage: inner}, "")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.jpg"), []byte("a"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.jpg"), []byte("b"), 0o640))

	n, err := m.UploadTree(context.Background(), "runs/r1", dir)
	assert.Equal(t, 1, n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")
}

func TestContentTypeFor(t *testing.T) {
	cases := map[string]string{
		"frame_0.jpg":     "image/jpeg",
		"frame_0.JPEG":    "image/jpeg",
		"overlay.png":     "image/png",
		"report.csv":      "text/csv",
		"result.json":     "application/json",
		"squat1.mp4":      "video/mp4",
		"notes.txt":       "application/octet-stream",
		"no-extension":    "application/octet-stream",
		"runs/r1/img.jpg": "image/jpeg",
	}
	for p, want := range cases {
		assert.Equal(t, want, ContentTypeFor(p), "path %s", p)
	}
}
