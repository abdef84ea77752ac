package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	dumphttp "github.com/thomasvonl/jsonpedia/internal/http"
	"github.com/thomasvonl/jsonpedia/internal/progress"
)

// TempSuffix marks a file that is still being downloaded.
const TempSuffix = "_DOWNLOADING"

// ErrDownload is wrapped by every DownloadError.
var ErrDownload = errors.New("downloader: download failed")

// DownloadError reports a failed archive download. The temporary file, if
// any, is left in place for inspection.
type DownloadError struct {
	URL  string
	Path string
	Err  error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s to %s: %v", e.URL, e.Path, e.Err)
}

func (e *DownloadError) Unwrap() []error {
	return []error{ErrDownload, e.Err}
}

// Getter fetches a URL. *http.Client implements it.
type Getter interface {
	Get(ctx context.Context, url string) (*dumphttp.Response, error)
}

// Options configures the downloader.
type Options struct {
	// Fs is the filesystem holding the working directory.
	// Default: the OS filesystem
	Fs afero.Fs

	// Progress enables periodic progress output.
	Progress bool

	// ProgressOutput receives progress output.
	// Default: os.Stderr
	ProgressOutput io.Writer
}

// Result describes a completed Fetch.
type Result struct {
	Path string
	// Cached is true when the file was already present and nothing was
	// downloaded.
	Cached bool
	Bytes  int64
	// ETag is the server's version tag of a downloaded archive, empty for
	// cached files.
	ETag string
}

// Manager downloads archives into a working directory, one at a time.
type Manager struct {
	client Getter
	opts   Options
}

// New creates a Manager.
func New(client Getter, opts Options) *Manager {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.ProgressOutput == nil {
		opts.ProgressOutput = os.Stderr
	}
	return &Manager{client: client, opts: opts}
}

// Fetch makes sure dir/filename exists. An existing regular file is
// accepted as is. Otherwise url is streamed to dir/filename_DOWNLOADING,
// which is renamed to dir/filename once complete, so a file under the
// final name is always whole.
func (m *Manager) Fetch(ctx context.Context, url, dir, filename string) (Result, error) {
	dest := filepath.Join(dir, filename)
	res := Result{Path: dest}

	if err := m.opts.Fs.MkdirAll(dir, 0o755); err != nil {
		return res, &DownloadError{URL: url, Path: dest, Err: fmt.Errorf("create work dir: %w", err)}
	}

	if info, err := m.opts.Fs.Stat(dest); err == nil && info.Mode().IsRegular() {
		res.Cached = true
		res.Bytes = info.Size()
		return res, nil
	}

	tmp := dest + TempSuffix
	n, etag, err := m.fetchTo(ctx, url, tmp, filename)
	res.Bytes = n
	res.ETag = etag
	if err != nil {
		return res, &DownloadError{URL: url, Path: tmp, Err: err}
	}

	if err := m.opts.Fs.Rename(tmp, dest); err != nil {
		return res, &DownloadError{URL: url, Path: dest, Err: fmt.Errorf("rename: %w", err)}
	}
	return res, nil
}

// fetchTo streams url into path, truncating any leftover from an earlier
// attempt.
func (m *Manager) fetchTo(ctx context.Context, url, path, name string) (int64, string, error) {
	resp, err := m.client.Get(ctx, url)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	f, err := m.opts.Fs.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, "", fmt.Errorf("create temp file: %w", err)
	}

	var body io.Reader = resp.Body
	if m.opts.Progress {
		reporter := progress.NewReporter(progress.Options{
			TotalSize: resp.ContentLength,
			Output:    m.opts.ProgressOutput,
			Name:      name,
		})
		reporter.Start()
		defer reporter.Stop()
		body = io.TeeReader(body, reporter)
	}

	n, err := io.Copy(f, body)
	if err != nil {
		f.Close()
		return n, "", fmt.Errorf("write: %w", err)
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		f.Close()
		return n, "", fmt.Errorf("size mismatch: expected %d, got %d", resp.ContentLength, n)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return n, "", fmt.Errorf("sync: %w", err)
	}
	if err := f.Close(); err != nil {
		return n, "", fmt.Errorf("close: %w", err)
	}
	return n, resp.ETag, nil
}
