package dataset

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"image"
	"image/png"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tarball(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestEnsureFileDownloadsOnce(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, ensureFile(path, srv.URL, slog.Default()))
	require.NoError(t, ensureFile(path, srv.URL, slog.Default()))
	assert.Equal(t, 1, hits)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestEnsureFileBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	err := ensureFile(filepath.Join(t.TempDir(), "x"), srv.URL, slog.Default())
	assert.Error(t, err)
}

func TestUntar(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "faces.tgz")
	require.NoError(t, os.WriteFile(archive, tarball(t, map[string]string{"lfw/a/1.png": "img"}), 0644))
	require.NoError(t, untar(archive, dir))

	data, err := os.ReadFile(filepath.Join(dir, "lfw", "a", "1.png"))
	require.NoError(t, err)
	assert.Equal(t, "img", string(data))
}

func TestUntarRejectsEscapes(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.tgz")
	require.NoError(t, os.WriteFile(archive, tarball(t, map[string]string{"../evil": "x"}), 0644))
	assert.Error(t, untar(archive, filepath.Join(dir, "out")))
}

func TestLFWDownload(t *testing.T) {
	var face bytes.Buffer
	faceFile := filepath.Join(t.TempDir(), "face.png")
	writeTestPNG(t, faceFile)
	data, err := os.ReadFile(faceFile)
	require.NoError(t, err)
	face.Write(data)

	body := tarball(t, map[string]string{"lfw/alice/1.png": face.String(), "lfw/bob/1.png": face.String()})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "lfw")
	f, err := NewLFWFetcher(4, 4, WithDir(dir), WithDownload(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, f.Names())
	assert.Equal(t, 2, f.TotalExamples())
}

func writeTestPNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}
