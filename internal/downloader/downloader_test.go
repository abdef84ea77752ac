package downloader

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dumphttp "github.com/thomasvonl/jsonpedia/internal/http"
)

const archiveName = "enwiki-latest-pages-articles1.xml-p1p41242.bz2"

func testData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 256)
	}
	return data
}

func testClient() *dumphttp.Client {
	opts := dumphttp.DefaultOptions()
	opts.RetryAttempts = 0
	return dumphttp.NewClient(opts)
}

// countingServer serves data and counts GET requests.
func countingServer(t *testing.T, data []byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("ETag", `"2026-10-01-abc"`)
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Write(data)
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func TestFetchBasic(t *testing.T) {
	data := testData(256 * 1024)
	server, hits := countingServer(t, data)

	fs := afero.NewMemMapFs()
	m := New(testClient(), Options{Fs: fs})

	res, err := m.Fetch(context.Background(), server.URL+"/"+archiveName, "work", archiveName)
	require.NoError(t, err)

	assert.False(t, res.Cached)
	assert.Equal(t, int64(len(data)), res.Bytes)
	assert.Equal(t, filepath.Join("work", archiveName), res.Path)
	assert.Equal(t, "2026-10-01-abc", res.ETag)
	assert.Equal(t, int32(1), hits.Load())

	got, err := afero.ReadFile(fs, res.Path)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	exists, err := afero.Exists(fs, res.Path+TempSuffix)
	require.NoError(t, err)
	assert.False(t, exists, "temp file should be renamed away")
}

func TestFetchIdempotent(t *testing.T) {
	data := testData(4096)
	server, hits := countingServer(t, data)

	fs := afero.NewMemMapFs()
	m := New(testClient(), Options{Fs: fs})
	ctx := context.Background()

	_, err := m.Fetch(ctx, server.URL+"/a", "work", archiveName)
	require.NoError(t, err)

	res, err := m.Fetch(ctx, server.URL+"/a", "work", archiveName)
	require.NoError(t, err)

	assert.True(t, res.Cached)
	assert.Empty(t, res.ETag)
	assert.Equal(t, int32(1), hits.Load(), "second fetch must not hit the network")

	got, err := afero.ReadFile(fs, res.Path)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestFetchExistingFileSkipsNetwork(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, filepath.Join("work", archiveName), []byte("cached"), 0o644))

	// No server at all: any request would fail.
	m := New(testClient(), Options{Fs: fs})
	res, err := m.Fetch(context.Background(), "http://127.0.0.1:1/never", "work", archiveName)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, int64(len("cached")), res.Bytes)
}

func TestFetchInterruptedLeavesOnlyTempFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, buf, err := w.(http.Hijacker).Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		defer conn.Close()
		writeTruncated(buf)
	}))
	defer server.Close()

	fs := afero.NewMemMapFs()
	m := New(testClient(), Options{Fs: fs})

	_, err := m.Fetch(context.Background(), server.URL+"/a", "work", archiveName)
	require.Error(t, err)

	var de *DownloadError
	require.True(t, errors.As(err, &de))
	assert.ErrorIs(t, err, ErrDownload)
	assert.Equal(t, filepath.Join("work", archiveName)+TempSuffix, de.Path)

	final, err := afero.Exists(fs, filepath.Join("work", archiveName))
	require.NoError(t, err)
	assert.False(t, final, "no file may exist under the final name")

	tmp, err := afero.Exists(fs, filepath.Join("work", archiveName)+TempSuffix)
	require.NoError(t, err)
	assert.True(t, tmp, "temp file is kept for inspection")
}

func writeTruncated(buf *bufio.ReadWriter) {
	buf.WriteString("HTTP/1.1 200 OK\r\nContent-Length: 100\r\nConnection: close\r\n\r\n")
	buf.WriteString("only ten b")
	buf.Flush()
}

func TestFetchRetriesAfterInterruptedRun(t *testing.T) {
	data := testData(1024)
	server, hits := countingServer(t, data)

	fs := afero.NewMemMapFs()
	tmp := filepath.Join("work", archiveName) + TempSuffix
	require.NoError(t, afero.WriteFile(fs, tmp, []byte("partial garbage from an earlier run"), 0o644))

	m := New(testClient(), Options{Fs: fs})
	res, err := m.Fetch(context.Background(), server.URL+"/a", "work", archiveName)
	require.NoError(t, err)

	assert.False(t, res.Cached)
	assert.Equal(t, int32(1), hits.Load())

	got, err := afero.ReadFile(fs, res.Path)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestFetchNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	m := New(testClient(), Options{Fs: afero.NewMemMapFs()})
	_, err := m.Fetch(context.Background(), server.URL+"/missing", "work", archiveName)

	assert.ErrorIs(t, err, ErrDownload)
	assert.ErrorIs(t, err, dumphttp.ErrNotFound)
}

func TestFetchContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	m := New(testClient(), Options{Fs: afero.NewMemMapFs()})
	_, err := m.Fetch(ctx, server.URL+"/slow", "work", archiveName)

	assert.ErrorIs(t, err, ErrDownload)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetchOSFilesystem(t *testing.T) {
	data := testData(2048)
	server, _ := countingServer(t, data)

	dir := filepath.Join(t.TempDir(), "nested", "work")
	m := New(testClient(), Options{Progress: true, ProgressOutput: io.Discard})

	res, err := m.Fetch(context.Background(), server.URL+"/a", dir, archiveName)
	require.NoError(t, err)

	got, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
