// Command wikiload downloads the latest multi-part Wikipedia article dumps
// and feeds each one to the ingestion job.
//
//	wikiload [flags] <config-file> [<from-index>:]<to-index>
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/thomasvonl/jsonpedia/internal/archive"
	"github.com/thomasvonl/jsonpedia/internal/downloader"
	"github.com/thomasvonl/jsonpedia/internal/listing"
)

// Exit codes
const (
	ExitSuccess         = 0
	ExitInvalidArgs     = 1
	ExitGeneralError    = 2
	ExitDiscoveryFailed = 3
	ExitRangeInvalid    = 4
	ExitDownloadFailed  = 5
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\n[wikiload] Received interrupt, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return execute(ctx, args, os.Stderr)
}

// execute parses args and runs the load. Usage problems are reported on
// stderr with ExitInvalidArgs.
func execute(ctx context.Context, args []string, stderr io.Writer) int {
	code := ExitSuccess
	cmd := newCommand(&code)
	if args == nil {
		// cobra falls back to os.Args for nil.
		args = []string{}
	}
	cmd.SetArgs(args)
	cmd.SetOut(stderr)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		fmt.Fprint(stderr, cmd.UsageString())
		return ExitInvalidArgs
	}
	return code
}

// exitCode maps a failed run to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, context.Canceled):
		return ExitGeneralError
	case errors.Is(err, archive.ErrParse),
		errors.Is(err, archive.ErrIndex),
		errors.Is(err, archive.ErrReversedRange):
		return ExitRangeInvalid
	case errors.Is(err, listing.ErrDiscovery):
		return ExitDiscoveryFailed
	case errors.Is(err, downloader.ErrDownload):
		return ExitDownloadFailed
	default:
		return ExitGeneralError
	}
}
