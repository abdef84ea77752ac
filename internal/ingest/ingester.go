package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/afero"
)

// LogSuffix is appended to the input path to name the job's log file.
const LogSuffix = ".log"

// ErrIngestion is wrapped by every IngestionError.
var ErrIngestion = errors.New("ingest: ingestion failed")

// IngestionError reports an ingestion job that exited non-zero or could
// not be started (ExitCode -1).
type IngestionError struct {
	Input    string
	ExitCode int
	LogPath  string
	Err      error
}

func (e *IngestionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ingest %s: %v (exit code %d, see %s)", e.Input, e.Err, e.ExitCode, e.LogPath)
	}
	return fmt.Sprintf("ingest %s: exit code %d (see %s)", e.Input, e.ExitCode, e.LogPath)
}

func (e *IngestionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrIngestion}
	}
	return []error{ErrIngestion, e.Err}
}

// Ingester runs the ingestion job for one archive at a time.
type Ingester struct {
	invoker Invoker
	fs      afero.Fs
}

// NewIngester returns an Ingester that runs jobs through invoker and
// writes their logs to fs. A nil fs means the OS filesystem.
func NewIngester(invoker Invoker, fs afero.Fs) *Ingester {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Ingester{invoker: invoker, fs: fs}
}

// LogPath returns the log file written for inputPath.
func LogPath(inputPath string) string {
	return inputPath + LogSuffix
}

// Ingest runs the job with arguments <configPath> <inputPath> and waits for
// it. Its stdout and stderr go to <inputPath>.log, replacing any log from
// an earlier run.
func (i *Ingester) Ingest(ctx context.Context, configPath, inputPath string) error {
	logPath := LogPath(inputPath)

	logFile, err := i.fs.Create(logPath)
	if err != nil {
		return &IngestionError{Input: inputPath, ExitCode: -1, LogPath: logPath, Err: fmt.Errorf("create log: %w", err)}
	}
	defer logFile.Close()

	code, err := i.invoker.Invoke(ctx, []string{configPath, inputPath}, logFile)
	if err != nil {
		return &IngestionError{Input: inputPath, ExitCode: code, LogPath: logPath, Err: err}
	}
	if code != 0 {
		return &IngestionError{Input: inputPath, ExitCode: code, LogPath: logPath}
	}
	return nil
}

// CommandLine returns the command Ingest would run for the given paths, or
// nil when the invoker cannot describe it.
func (i *Ingester) CommandLine(configPath, inputPath string) []string {
	d, ok := i.invoker.(interface{ CommandLine(args []string) []string })
	if !ok {
		return nil
	}
	return d.CommandLine([]string{configPath, inputPath})
}
