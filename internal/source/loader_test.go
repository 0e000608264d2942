package source

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

const playlist = "#EXTM3U\n#EXTINF:-1,Test\nhttp://stream.example.com/1\n"

func newTestLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return logger
}

func gzipBytes(t *testing.T, data string) []byte {
	t.Helper()

	var buf bytes.Buffer

	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return buf.Bytes()
}

func xzBytes(t *testing.T, data string) []byte {
	t.Helper()

	var buf bytes.Buffer

	w, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return buf.Bytes()
}

func TestLoad_LocalFile(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(newTestLogger(), "")

	tests := []struct {
		name string
		data []byte
	}{
		{"plain", []byte(playlist)},
		{"gzip", gzipBytes(t, playlist)},
		{"xz", xzBytes(t, playlist)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".m3u")
			require.NoError(t, os.WriteFile(path, tt.data, 0o600))

			data, err := loader.Load(context.Background(), path)
			require.NoError(t, err)
			require.Equal(t, playlist, string(data))
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	loader := NewLoader(newTestLogger(), "")

	_, err := loader.Load(context.Background(), filepath.Join(t.TempDir(), "nope.m3u"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_CorruptGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.m3u.gz")
	require.NoError(t, os.WriteFile(path, []byte{0x1f, 0x8b, 0x00, 0x01}, 0o600))

	_, err := NewLoader(newTestLogger(), "").Load(context.Background(), path)
	require.ErrorContains(t, err, "gzip")
}

func TestLoad_Remote(t *testing.T) {
	var userAgent atomic.Value

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent.Store(r.Header.Get("User-Agent"))

		switch r.URL.Path {
		case "/plain.m3u":
			_, _ = w.Write([]byte(playlist))
		case "/encoded.m3u":
			w.Header().Set("Content-Encoding", "gzip")
			_, _ = w.Write(gzipBytes(t, playlist))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	loader := NewLoader(newTestLogger(), "m3uclean-test")

	data, err := loader.Load(context.Background(), server.URL+"/plain.m3u")
	require.NoError(t, err)
	require.Equal(t, playlist, string(data))
	require.Equal(t, "m3uclean-test", userAgent.Load())

	data, err = loader.Load(context.Background(), server.URL+"/encoded.m3u")
	require.NoError(t, err)
	require.Equal(t, playlist, string(data))

	_, err = loader.Load(context.Background(), server.URL+"/missing.m3u")
	require.ErrorContains(t, err, "unexpected status code: 404")
}

func TestIsRemote(t *testing.T) {
	require.True(t, IsRemote("http://example.com/a.m3u"))
	require.True(t, IsRemote("HTTPS://example.com/a.m3u"))
	require.False(t, IsRemote("/tmp/a.m3u"))
	require.False(t, IsRemote("playlist.m3u"))
}
