package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

const waitDelay = 2 * time.Second

// Invoker runs the external job with args and returns its exit code.
// A non-nil error means the process could not be run at all; a process
// that ran and failed reports a non-zero exit code and a nil error.
type Invoker interface {
	Invoke(ctx context.Context, args []string, output io.Writer) (exitCode int, err error)
}

// ExecInvoker runs a program with os/exec.
//
// With ArgsFlag empty the job arguments are appended to BaseArgs. With
// ArgsFlag set they are joined by spaces into a single ArgsFlag+args
// argument, the form Maven's exec plugin expects:
//
//	mvn exec:java -Dexec.mainClass=com.machinelinking.cli.loader "-Dexec.args=conf/default.properties work/x.bz2"
type ExecInvoker struct {
	Program  string
	BaseArgs []string
	ArgsFlag string
	// Env is appended to the current environment.
	Env []string
	// Dir is the working directory of the process. Empty means the
	// current directory.
	Dir string
}

// CommandLine returns the argv that Invoke would run for args.
func (e *ExecInvoker) CommandLine(args []string) []string {
	argv := append([]string{e.Program}, e.BaseArgs...)
	if e.ArgsFlag != "" {
		return append(argv, e.ArgsFlag+strings.Join(args, " "))
	}
	return append(argv, args...)
}

// Invoke runs the program to completion, writing stdout and stderr to
// output. Cancelling ctx kills the process.
func (e *ExecInvoker) Invoke(ctx context.Context, args []string, output io.Writer) (int, error) {
	if e.Program == "" {
		return -1, errors.New("ingest: no program configured")
	}

	argv := e.CommandLine(args)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = output
	cmd.Stderr = output
	cmd.Dir = e.Dir
	if len(e.Env) > 0 {
		cmd.Env = append(os.Environ(), e.Env...)
	}

	// Children of a killed job may hold the output open.
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	if ctx.Err() != nil {
		return code, ctx.Err()
	}
	if exitErr != nil {
		return code, nil
	}
	return code, fmt.Errorf("run %s: %w", e.Program, err)
}

// JavaOpts builds a MAVEN_OPTS style value from a heap size such as "8g"
// and an optional log4j configuration file.
func JavaOpts(heapSize, logConfig string) string {
	var opts []string
	if heapSize != "" {
		opts = append(opts, "-Xms"+heapSize, "-Xmx"+heapSize)
	}
	if logConfig != "" {
		opts = append(opts, "-Dlog4j.configuration=file:"+logConfig)
	}
	return strings.Join(opts, " ")
}
