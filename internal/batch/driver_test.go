package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/thomasvonl/jsonpedia/internal/archive"
	"github.com/thomasvonl/jsonpedia/internal/downloader"
	dumphttp "github.com/thomasvonl/jsonpedia/internal/http"
	"github.com/thomasvonl/jsonpedia/internal/ingest"
	"github.com/thomasvonl/jsonpedia/internal/listing"
	"github.com/thomasvonl/jsonpedia/internal/logger"
	"github.com/thomasvonl/jsonpedia/internal/testutils"
)

const (
	testConfig  = "conf/default.properties"
	testWorkDir = "work"
)

type fakeLister struct {
	list  archive.List
	err   error
	calls int
}

func (f *fakeLister) Fetch(context.Context) (archive.List, error) {
	f.calls++
	return f.list, f.err
}

func newLister(t *testing.T, n int) *fakeLister {
	t.Helper()
	base, err := url.Parse("http://dumps.example.org/enwiki/latest/")
	require.NoError(t, err)

	var list archive.List
	for i := 1; i <= n; i++ {
		link, err := archive.NewLink(base, testutils.ArchiveName("enwiki", i))
		require.NoError(t, err)
		list = append(list, link)
	}
	list.Sort()
	return &fakeLister{list: list}
}

type fakeDownloader struct {
	fs    afero.Fs
	fail  map[string]error
	calls []string
}

func (f *fakeDownloader) Fetch(_ context.Context, url, dir, filename string) (downloader.Result, error) {
	f.calls = append(f.calls, filename)
	path := filepath.Join(dir, filename)
	if err := f.fail[filename]; err != nil {
		return downloader.Result{Path: path}, &downloader.DownloadError{URL: url, Path: path, Err: err}
	}
	if err := afero.WriteFile(f.fs, path, []byte(filename), 0o644); err != nil {
		return downloader.Result{}, err
	}
	return downloader.Result{Path: path, Bytes: int64(len(filename)), ETag: "etag-" + filename}, nil
}

type fakeIngester struct {
	fail  map[string]bool
	hook  func(inputPath string)
	calls []string
}

func (f *fakeIngester) Ingest(_ context.Context, configPath, inputPath string) error {
	f.calls = append(f.calls, inputPath)
	if f.hook != nil {
		f.hook(inputPath)
	}
	if f.fail[filepath.Base(inputPath)] {
		return &ingest.IngestionError{Input: inputPath, ExitCode: 1, LogPath: ingest.LogPath(inputPath)}
	}
	return nil
}

type recordingUploader struct {
	err   error
	paths []string
}

func (r *recordingUploader) Upload(_ context.Context, logPath string) (string, error) {
	r.paths = append(r.paths, logPath)
	if r.err != nil {
		return "", r.err
	}
	return "logs/" + filepath.Base(logPath), nil
}

type recordingInvoker struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *recordingInvoker) Invoke(_ context.Context, args []string, output io.Writer) (int, error) {
	r.mu.Lock()
	r.calls = append(r.calls, args)
	r.mu.Unlock()
	fmt.Fprintf(output, "loaded %s\n", args[1])
	return 0, nil
}

func workPath(n int) string {
	return filepath.Join(testWorkDir, testutils.ArchiveName("enwiki", n))
}

func TestRunEndToEnd(t *testing.T) {
	files := []testutils.TestFile{
		{Name: testutils.ArchiveName("enwiki", 10), Data: testutils.GenerateTestData(1024)},
		{Name: testutils.ArchiveName("enwiki", 1), Data: testutils.GenerateTestData(2048)},
		{Name: testutils.ArchiveName("enwiki", 2), Data: testutils.GenerateTestData(512)},
		{Name: testutils.ArchiveName("enwiki", 3), Data: testutils.GenerateTestData(256)},
	}
	server := testutils.StartDumpServer(t, files)

	opts := dumphttp.DefaultOptions()
	opts.RetryAttempts = 0
	client := dumphttp.NewClient(opts)

	fs := afero.NewMemMapFs()
	invoker := &recordingInvoker{}
	driver := NewDriver(
		listing.NewFetcher(client, server.ListingURL(), "enwiki"),
		downloader.New(client, downloader.Options{Fs: fs}),
		ingest.NewIngester(invoker, fs),
		Options{WorkDir: testWorkDir, RetainDownloads: true, Fs: fs},
	)

	res, err := driver.Run(context.Background(), testConfig, "0:1")
	require.NoError(t, err)

	assert.Equal(t, 4, res.Total)
	assert.Equal(t, archive.Range{Start: 0, End: 1}, res.Range)
	require.Len(t, res.Outcomes, 2)
	assert.Equal(t, 0, res.Failed())

	assert.Equal(t, 1, server.Requests(testutils.ArchiveName("enwiki", 1)))
	assert.Equal(t, 1, server.Requests(testutils.ArchiveName("enwiki", 2)))
	assert.Equal(t, 2, server.TotalRequests())

	assert.Equal(t, [][]string{
		{testConfig, workPath(1)},
		{testConfig, workPath(2)},
	}, invoker.calls)

	for i, n := range []int{1, 2} {
		assert.Equal(t, testutils.ArchiveName("enwiki", n), res.Outcomes[i].Filename)

		data, err := afero.ReadFile(fs, workPath(n))
		require.NoError(t, err)
		assert.Equal(t, files[n].Data, data)

		log, err := afero.ReadFile(fs, ingest.LogPath(workPath(n)))
		require.NoError(t, err)
		assert.Equal(t, "loaded "+workPath(n)+"\n", string(log))
	}

	// A second run reuses the downloaded archives.
	res, err = driver.Run(context.Background(), testConfig, "0:1")
	require.NoError(t, err)
	assert.Equal(t, 2, server.TotalRequests())
	assert.Len(t, invoker.calls, 4)
	for _, o := range res.Outcomes {
		assert.True(t, o.Cached)
	}
}

func TestRunToIndexOnly(t *testing.T) {
	fs := afero.NewMemMapFs()
	dl := &fakeDownloader{fs: fs}
	ing := &fakeIngester{}
	driver := NewDriver(newLister(t, 5), dl, ing, Options{WorkDir: testWorkDir, Fs: fs})

	res, err := driver.Run(context.Background(), testConfig, "3")
	require.NoError(t, err)

	assert.Len(t, res.Outcomes, 4)
	assert.Equal(t, []string{workPath(1), workPath(2), workPath(3), workPath(4)}, ing.calls)
}

func TestRunFailureIsolation(t *testing.T) {
	fs := afero.NewMemMapFs()
	dl := &fakeDownloader{fs: fs}
	ing := &fakeIngester{fail: map[string]bool{testutils.ArchiveName("enwiki", 2): true}}

	core, logs := observer.New(zap.InfoLevel)
	driver := NewDriver(newLister(t, 3), dl, ing, Options{
		WorkDir: testWorkDir,
		Fs:      fs,
		Logger:  logger.FromZap(zap.New(core)),
		RunID:   "run-1",
	})

	res, err := driver.Run(context.Background(), testConfig, "0:2")
	require.NoError(t, err)

	assert.Equal(t, []string{workPath(1), workPath(2), workPath(3)}, ing.calls)
	require.Len(t, res.Outcomes, 3)
	assert.NoError(t, res.Outcomes[0].Err)
	assert.ErrorIs(t, res.Outcomes[1].Err, ingest.ErrIngestion)
	assert.NoError(t, res.Outcomes[2].Err)
	assert.Equal(t, 1, res.Failed())

	assert.Equal(t, 1, logs.FilterMessage("Ingestion failed").Len())
	completed := logs.FilterMessage("Ingestion completed").All()
	require.Len(t, completed, 2)
	fields := completed[0].ContextMap()
	assert.Equal(t, "run-1", fields["run_id"])
	assert.Contains(t, fields, "elapsed")
	assert.Equal(t, 1, logs.FilterMessage("Retrieved latest articles links").Len())

	downloads := logs.FilterMessage("Download complete").All()
	require.Len(t, downloads, 3)
	assert.Equal(t, "etag-"+testutils.ArchiveName("enwiki", 1), downloads[0].ContextMap()["etag"])

	selected := logs.FilterMessage("Selected archives").All()
	require.Len(t, selected, 1)
	assert.Equal(t, false, selected[0].ContextMap()["retain_downloads"])
}

func TestRunDiscoveryEmpty(t *testing.T) {
	lister := &fakeLister{err: listing.ErrNoArchives}
	dl := &fakeDownloader{fs: afero.NewMemMapFs()}
	ing := &fakeIngester{}
	driver := NewDriver(lister, dl, ing, Options{WorkDir: testWorkDir})

	_, err := driver.Run(context.Background(), testConfig, "0")
	require.Error(t, err)
	assert.ErrorIs(t, err, listing.ErrDiscovery)
	assert.Empty(t, dl.calls)
	assert.Empty(t, ing.calls)
}

func TestRunInvalidRange(t *testing.T) {
	tests := []struct {
		name       string
		expr       string
		wantErr    error
		wantListed bool
	}{
		{name: "syntax", expr: "a:b", wantErr: archive.ErrParse},
		{name: "negative", expr: "-1", wantErr: archive.ErrParse},
		{name: "out of range", expr: "0:5", wantErr: archive.ErrIndex, wantListed: true},
		{name: "reversed", expr: "2:1", wantErr: archive.ErrReversedRange, wantListed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lister := newLister(t, 3)
			dl := &fakeDownloader{fs: afero.NewMemMapFs()}
			ing := &fakeIngester{}
			driver := NewDriver(lister, dl, ing, Options{WorkDir: testWorkDir})

			_, err := driver.Run(context.Background(), testConfig, tt.expr)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantListed, lister.calls == 1)
			assert.Empty(t, dl.calls)
			assert.Empty(t, ing.calls)
		})
	}
}

func TestRunDownloadErrorAborts(t *testing.T) {
	fs := afero.NewMemMapFs()
	dl := &fakeDownloader{
		fs:   fs,
		fail: map[string]error{testutils.ArchiveName("enwiki", 2): errors.New("connection reset")},
	}
	ing := &fakeIngester{}
	driver := NewDriver(newLister(t, 3), dl, ing, Options{WorkDir: testWorkDir, Fs: fs})

	res, err := driver.Run(context.Background(), testConfig, "0:2")
	require.Error(t, err)
	assert.ErrorIs(t, err, downloader.ErrDownload)

	var dlErr *downloader.DownloadError
	require.ErrorAs(t, err, &dlErr)
	assert.Equal(t, workPath(2), dlErr.Path)

	assert.Len(t, dl.calls, 2)
	assert.Equal(t, []string{workPath(1)}, ing.calls)
	assert.Len(t, res.Outcomes, 1)
}

func TestRunDeletesAfterIngest(t *testing.T) {
	fs := afero.NewMemMapFs()
	dl := &fakeDownloader{fs: fs}
	ing := &fakeIngester{fail: map[string]bool{testutils.ArchiveName("enwiki", 2): true}}
	driver := NewDriver(newLister(t, 2), dl, ing, Options{
		WorkDir:         testWorkDir,
		RetainDownloads: false,
		Fs:              fs,
	})

	_, err := driver.Run(context.Background(), testConfig, "0:1")
	require.NoError(t, err)

	exists, err := afero.Exists(fs, workPath(1))
	require.NoError(t, err)
	assert.False(t, exists, "ingested archive should be deleted")

	exists, err = afero.Exists(fs, workPath(2))
	require.NoError(t, err)
	assert.True(t, exists, "failed archive should be kept")
}

func TestRunRetainsDownloads(t *testing.T) {
	fs := afero.NewMemMapFs()
	driver := NewDriver(newLister(t, 1), &fakeDownloader{fs: fs}, &fakeIngester{}, Options{
		WorkDir:         testWorkDir,
		RetainDownloads: true,
		Fs:              fs,
	})

	_, err := driver.Run(context.Background(), testConfig, "0")
	require.NoError(t, err)

	exists, err := afero.Exists(fs, workPath(1))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRunArchivesLogs(t *testing.T) {
	fs := afero.NewMemMapFs()
	uploader := &recordingUploader{}
	ing := &fakeIngester{fail: map[string]bool{testutils.ArchiveName("enwiki", 1): true}}
	driver := NewDriver(newLister(t, 2), &fakeDownloader{fs: fs}, ing, Options{
		WorkDir: testWorkDir,
		Fs:      fs,
		Logs:    uploader,
	})

	_, err := driver.Run(context.Background(), testConfig, "0:1")
	require.NoError(t, err)
	assert.Equal(t, []string{ingest.LogPath(workPath(1)), ingest.LogPath(workPath(2))}, uploader.paths)
}

func TestRunLogUploadFailureIsNotFatal(t *testing.T) {
	fs := afero.NewMemMapFs()
	uploader := &recordingUploader{err: errors.New("bucket unavailable")}
	ing := &fakeIngester{}
	driver := NewDriver(newLister(t, 2), &fakeDownloader{fs: fs}, ing, Options{
		WorkDir: testWorkDir,
		Fs:      fs,
		Logs:    uploader,
	})

	res, err := driver.Run(context.Background(), testConfig, "0:1")
	require.NoError(t, err)
	assert.Len(t, ing.calls, 2)
	assert.Equal(t, 0, res.Failed())
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fs := afero.NewMemMapFs()
	ing := &fakeIngester{hook: func(string) { cancel() }}
	driver := NewDriver(newLister(t, 3), &fakeDownloader{fs: fs}, ing, Options{WorkDir: testWorkDir, Fs: fs})

	start := time.Now()
	_, err := driver.Run(ctx, testConfig, "0:2")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, ing.calls, 1)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestNewDriverRunID(t *testing.T) {
	a := NewDriver(&fakeLister{}, &fakeDownloader{}, &fakeIngester{}, Options{})
	b := NewDriver(&fakeLister{}, &fakeDownloader{}, &fakeIngester{}, Options{})
	assert.NotEmpty(t, a.RunID())
	assert.NotEqual(t, a.RunID(), b.RunID())

	c := NewDriver(&fakeLister{}, &fakeDownloader{}, &fakeIngester{}, Options{RunID: "fixed"})
	assert.Equal(t, "fixed", c.RunID())
}
