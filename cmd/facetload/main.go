// Command facetload runs the faceting job that copies documents from a
// loaded index into a faceted one.
//
//	facetload -s <source-URI> -d <destination-URI> -l <limit> -c <config-file>
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/thomasvonl/jsonpedia/internal/config"
	"github.com/thomasvonl/jsonpedia/internal/ingest"
	"github.com/thomasvonl/jsonpedia/internal/logger"
)

// Exit codes
const (
	ExitSuccess      = 0
	ExitInvalidArgs  = 1
	ExitGeneralError = 2
)

type facetFlags struct {
	settings    string
	source      string
	destination string
	limit       string
	config      string
}

// jobArgs returns the arguments forwarded to the faceting program.
func (f facetFlags) jobArgs() []string {
	return []string{"-s", f.source, "-d", f.destination, "-l", f.limit, "-c", f.config}
}

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
			fmt.Fprintln(os.Stderr, "\n[facetload] Received interrupt, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return execute(ctx, args, os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	code := ExitSuccess
	var flags facetFlags

	cmd := &cobra.Command{
		Use:           "facetload -s <source-URI> -d <destination-URI> -l <limit> -c <config-file>",
		Short:         "Run the faceting job over a loaded index",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			code = runFacet(cmd.Context(), flags, stdout, stderr)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.source, "source", "s", "", "Source index URI, host:port:index:lang (required)")
	f.StringVarP(&flags.destination, "destination", "d", "", "Destination index URI, host:port:index:lang (required)")
	f.StringVarP(&flags.limit, "limit", "l", "", "Maximum number of documents (required)")
	f.StringVarP(&flags.config, "config", "c", "", "Faceting configuration file (required)")
	f.StringVar(&flags.settings, "settings", "", "Loader settings file (YAML)")
	for _, name := range []string{"source", "destination", "limit", "config"} {
		_ = cmd.MarkFlagRequired(name)
	}

	if args == nil {
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

func runFacet(ctx context.Context, flags facetFlags, stdout, stderr io.Writer) int {
	// A missing .env file is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(flags.settings)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	if cfg.Facet.Program == "" {
		fmt.Fprintln(stderr, "Error: config: facet.program is required")
		return ExitInvalidArgs
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	defer log.Sync()

	inv := &ingest.ExecInvoker{
		Program:  cfg.Facet.Program,
		BaseArgs: cfg.Facet.Args,
		ArgsFlag: cfg.Facet.ArgsFlag,
	}
	if opts := ingest.JavaOpts(cfg.Facet.HeapSize, cfg.Facet.LogConfig); opts != "" {
		inv.Env = []string{"MAVEN_OPTS=" + opts}
	}

	jobArgs := flags.jobArgs()
	log.Info("Executing command", logger.Strings("argv", inv.CommandLine(jobArgs)))

	exitCode, err := inv.Invoke(ctx, jobArgs, stdout)
	if err != nil {
		log.Error("Faceting job failed to run", logger.Error(err))
		return ExitGeneralError
	}
	if exitCode != 0 {
		log.Error("Faceting job failed", logger.Int("exit_code", exitCode))
		return ExitGeneralError
	}
	log.Info("Faceting completed")
	return ExitSuccess
}
