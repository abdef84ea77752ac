package main

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/thomasvonl/jsonpedia/internal/batch"
	"github.com/thomasvonl/jsonpedia/internal/config"
	"github.com/thomasvonl/jsonpedia/internal/downloader"
	dumphttp "github.com/thomasvonl/jsonpedia/internal/http"
	"github.com/thomasvonl/jsonpedia/internal/ingest"
	"github.com/thomasvonl/jsonpedia/internal/listing"
	"github.com/thomasvonl/jsonpedia/internal/logger"
	"github.com/thomasvonl/jsonpedia/internal/logstore"
)

type loadFlags struct {
	settings          string
	workDir           string
	listingURL        string
	wiki              string
	logBucket         string
	logLevel          string
	deleteAfterIngest bool
	progress          bool
}

func newCommand(code *int) *cobra.Command {
	var flags loadFlags

	cmd := &cobra.Command{
		Use:   "wikiload [flags] <config-file> [<from-index>:]<to-index>",
		Short: "Download and ingest the latest Wikipedia article dumps",
		Long: `Download the latest multi-part article dumps and ingest them one by one.

Archives are numbered from 0 in natural order of their names. The range
selects archives <from-index> to <to-index>, both inclusive; <from-index>
defaults to 0. Archives already present in the work directory are not
downloaded again.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			*code = runLoad(cmd.Context(), flags, args[0], args[1], cmd.ErrOrStderr())
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.settings, "settings", "", "Loader settings file (YAML)")
	f.StringVar(&flags.workDir, "work-dir", "", "Directory for archives and ingestion logs (default \"work\")")
	f.StringVar(&flags.listingURL, "listing-url", "", "Dump listing page URL")
	f.StringVar(&flags.wiki, "wiki", "", "Wiki whose article dumps are loaded (default \"enwiki\")")
	f.StringVar(&flags.logBucket, "log-bucket", "", "Bucket URL receiving ingestion logs (e.g., s3://bucket/prefix)")
	f.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.BoolVar(&flags.deleteAfterIngest, "delete-after-ingest", false, "Delete each archive once it has been ingested")
	f.BoolVar(&flags.progress, "progress", false, "Show download progress")

	return cmd
}

// loadConfig resolves settings from defaults, the settings file, .env and
// the environment, then flags.
func loadConfig(flags loadFlags) (config.Config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(flags.settings)
	if err != nil {
		return config.Config{}, err
	}

	cfg = cfg.Merge(config.Config{
		ListingURL: flags.listingURL,
		Wiki:       flags.wiki,
		WorkDir:    flags.workDir,
		LogBucket:  flags.logBucket,
		LogLevel:   flags.logLevel,
		Progress:   flags.progress,
	})
	if flags.deleteAfterIngest {
		cfg.RetainDownloads = false
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runLoad(ctx context.Context, flags loadFlags, configFile, rangeExpr string, stderr io.Writer) int {
	cfg, err := loadConfig(flags)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	defer log.Sync()

	runID := uuid.NewString()
	fs := afero.NewOsFs()

	client := dumphttp.NewClient(httpOptions(cfg))
	fetcher := listing.NewFetcher(client, cfg.ListingURL, cfg.Wiki)
	manager := downloader.New(client, downloader.Options{
		Fs:             fs,
		Progress:       cfg.Progress,
		ProgressOutput: stderr,
	})
	ingester := ingest.NewIngester(newInvoker(cfg.Ingest), fs)

	opts := batch.Options{
		WorkDir:         cfg.WorkDir,
		RetainDownloads: cfg.RetainDownloads,
		Fs:              fs,
		Logger:          log,
		RunID:           runID,
	}
	if cfg.LogBucket != "" {
		store, err := logstore.Open(ctx, cfg.LogBucket, runID, fs)
		if err != nil {
			log.Error("Failed to open log bucket", logger.String("bucket", cfg.LogBucket), logger.Error(err))
			return ExitGeneralError
		}
		defer store.Close()
		opts.Logs = store
	}

	log.Info("Starting load",
		logger.String("run_id", runID),
		logger.String("listing_url", fetcher.URL()),
		logger.String("config", configFile),
		logger.String("range", rangeExpr),
		logger.String("work_dir", cfg.WorkDir),
	)

	driver := batch.NewDriver(fetcher, manager, ingester, opts)
	res, err := driver.Run(ctx, configFile, rangeExpr)
	if err != nil {
		log.Error("Load aborted", logger.String("run_id", runID), logger.Error(err))
		return exitCode(err)
	}

	if failed := res.Failed(); failed > 0 {
		log.Warn("Load finished with ingestion failures",
			logger.String("run_id", runID),
			logger.Int("failed", failed),
			logger.Int("processed", len(res.Outcomes)),
		)
	}
	return ExitSuccess
}

func httpOptions(cfg config.Config) dumphttp.Options {
	opts := dumphttp.DefaultOptions()
	opts.Timeout = cfg.HTTP.Timeout
	opts.RetryAttempts = cfg.HTTP.Retry.Attempts
	if cfg.HTTP.Retry.Backoff > 0 {
		opts.RetryBackoff = cfg.HTTP.Retry.Backoff
	}
	if cfg.HTTP.Retry.MaxBackoff > 0 {
		opts.RetryMaxBackoff = cfg.HTTP.Retry.MaxBackoff
	}
	if cfg.HTTP.UserAgent != "" {
		opts.UserAgent = cfg.HTTP.UserAgent
	}
	return opts
}

func newInvoker(job config.JobConfig) *ingest.ExecInvoker {
	inv := &ingest.ExecInvoker{
		Program:  job.Program,
		BaseArgs: job.Args,
		ArgsFlag: job.ArgsFlag,
	}
	if opts := ingest.JavaOpts(job.HeapSize, job.LogConfig); opts != "" {
		inv.Env = []string{"MAVEN_OPTS=" + opts}
	}
	return inv
}
