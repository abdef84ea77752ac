package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/thomasvonl/jsonpedia/internal/archive"
	"github.com/thomasvonl/jsonpedia/internal/downloader"
	"github.com/thomasvonl/jsonpedia/internal/ingest"
	"github.com/thomasvonl/jsonpedia/internal/logger"
)

// Lister discovers the archives to load. *listing.Fetcher implements it.
type Lister interface {
	Fetch(ctx context.Context) (archive.List, error)
}

// Downloader places one archive in a directory. *downloader.Manager
// implements it.
type Downloader interface {
	Fetch(ctx context.Context, url, dir, filename string) (downloader.Result, error)
}

// Ingester runs the ingestion job for one archive. *ingest.Ingester
// implements it.
type Ingester interface {
	Ingest(ctx context.Context, configPath, inputPath string) error
}

// LogUploader archives an ingestion log. *logstore.Store implements it.
type LogUploader interface {
	Upload(ctx context.Context, logPath string) (string, error)
}

// Options configures a Driver.
type Options struct {
	// WorkDir receives archives and ingestion logs.
	WorkDir string

	// RetainDownloads keeps archives after a successful ingestion.
	RetainDownloads bool

	// Fs is the filesystem holding WorkDir. It must be the one the
	// Downloader writes to.
	// Default: the OS filesystem
	Fs afero.Fs

	// Logs, when set, receives every ingestion log.
	Logs LogUploader

	// Logger receives progress and outcome lines.
	// Default: logger.Nop()
	Logger logger.Logger

	// RunID tags every log line of a run.
	// Default: a random UUID
	RunID string
}

// WorkItem is one archive selected for loading.
type WorkItem struct {
	Index int
	Link  archive.Link
	Path  string
}

// Outcome records what happened to one WorkItem.
type Outcome struct {
	Index        int
	Filename     string
	Cached       bool
	Err          error
	DownloadTime time.Duration
	IngestTime   time.Duration
}

// Result summarizes a run.
type Result struct {
	RunID    string
	Total    int
	Range    archive.Range
	Outcomes []Outcome
}

// Failed returns the number of items whose ingestion failed.
func (r Result) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// Driver runs discovery, download and ingestion for a range of archives.
type Driver struct {
	lister     Lister
	downloader Downloader
	ingester   Ingester
	opts       Options
	log        logger.Logger
}

// NewDriver creates a Driver.
func NewDriver(lister Lister, dl Downloader, ing Ingester, opts Options) *Driver {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	return &Driver{
		lister:     lister,
		downloader: dl,
		ingester:   ing,
		opts:       opts,
		log:        opts.Logger.With(logger.String("run_id", opts.RunID)),
	}
}

// RunID returns the identifier attached to the driver's log lines.
func (d *Driver) RunID() string {
	return d.opts.RunID
}

// Run loads the archives selected by rangeExpr, passing configPath to
// every ingestion job. The range syntax is checked before discovery and
// its bounds right after it, so a bad range never starts a download.
//
// A failed download stops the run and is returned. A failed ingestion is
// logged and recorded in the Result, and the run continues with the next
// archive.
func (d *Driver) Run(ctx context.Context, configPath, rangeExpr string) (Result, error) {
	res := Result{RunID: d.opts.RunID}

	rng, err := archive.ParseRange(rangeExpr)
	if err != nil {
		return res, err
	}

	links, err := d.lister.Fetch(ctx)
	if err != nil {
		return res, err
	}
	res.Total = len(links)
	d.log.Info("Retrieved latest articles links", logger.Int("count", len(links)))
	d.log.Debug("Archive links", logger.Strings("hrefs", links.Hrefs()))

	if err := rng.Validate(len(links)); err != nil {
		return res, err
	}
	res.Range = rng
	d.log.Info("Selected archives",
		logger.String("range", rng.String()),
		logger.Int("count", rng.Len()),
		logger.Bool("retain_downloads", d.opts.RetainDownloads),
	)

	for _, i := range rng.Indices() {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		item := d.workItem(i, links[i])
		outcome, err := d.process(ctx, configPath, item)
		if err != nil {
			return res, err
		}
		res.Outcomes = append(res.Outcomes, outcome)
	}

	d.log.Info("Batch complete",
		logger.Int("processed", len(res.Outcomes)),
		logger.Int("failed", res.Failed()),
	)
	return res, nil
}

func (d *Driver) workItem(index int, link archive.Link) WorkItem {
	return WorkItem{
		Index: index,
		Link:  link,
		Path:  filepath.Join(d.opts.WorkDir, link.Filename()),
	}
}

// process downloads and ingests one item. Only errors that must stop the
// run are returned; ingestion failures go into the Outcome.
func (d *Driver) process(ctx context.Context, configPath string, item WorkItem) (Outcome, error) {
	filename := item.Link.Filename()
	log := d.log.With(logger.Int("index", item.Index), logger.String("file", filename))
	outcome := Outcome{Index: item.Index, Filename: filename}

	log.Info("Processing article", logger.String("url", item.Link.URL))

	start := time.Now()
	dl, err := d.downloader.Fetch(ctx, item.Link.URL, d.opts.WorkDir, filename)
	outcome.DownloadTime = time.Since(start)
	if err != nil {
		log.Error("Download failed", logger.Error(err))
		return outcome, err
	}
	outcome.Cached = dl.Cached
	if dl.Cached {
		log.Info("Archive already present, skipping download", logger.String("path", item.Path))
	} else {
		fields := []logger.Field{
			logger.Duration("elapsed", outcome.DownloadTime),
			logger.Int64("bytes", dl.Bytes),
		}
		if dl.ETag != "" {
			fields = append(fields, logger.String("etag", dl.ETag))
		}
		log.Info("Download complete", fields...)
	}

	if c, ok := d.ingester.(interface {
		CommandLine(configPath, inputPath string) []string
	}); ok {
		if argv := c.CommandLine(configPath, item.Path); argv != nil {
			log.Info("Executing command", logger.Strings("argv", argv))
		}
	}

	start = time.Now()
	err = d.ingester.Ingest(ctx, configPath, item.Path)
	outcome.IngestTime = time.Since(start)
	if ctxErr := ctx.Err(); ctxErr != nil {
		log.Warn("Ingestion interrupted", logger.Duration("elapsed", outcome.IngestTime))
		return outcome, ctxErr
	}
	outcome.Err = err
	if err != nil {
		log.Error("Ingestion failed",
			logger.Duration("elapsed", outcome.IngestTime),
			logger.Error(err),
		)
	} else {
		log.Info("Ingestion completed", logger.Duration("elapsed", outcome.IngestTime))
	}

	if err == nil && !d.opts.RetainDownloads {
		if rmErr := d.opts.Fs.Remove(item.Path); rmErr != nil {
			log.Warn("Failed to delete archive", logger.Error(rmErr))
		} else {
			log.Debug("Deleted archive", logger.String("path", item.Path))
		}
	}

	d.archiveLog(ctx, log, item.Path, err)
	return outcome, nil
}

func (d *Driver) archiveLog(ctx context.Context, log logger.Logger, inputPath string, ingestErr error) {
	if d.opts.Logs == nil {
		return
	}

	// A job that never started leaves no log behind.
	var ie *ingest.IngestionError
	if errors.As(ingestErr, &ie) && ie.ExitCode == -1 {
		if _, err := d.opts.Fs.Stat(ingest.LogPath(inputPath)); err != nil {
			return
		}
	}

	key, err := d.opts.Logs.Upload(ctx, ingest.LogPath(inputPath))
	if err != nil {
		log.Warn("Failed to archive ingestion log", logger.Error(fmt.Errorf("upload: %w", err)))
		return
	}
	log.Debug("Archived ingestion log", logger.String("key", key))
}
