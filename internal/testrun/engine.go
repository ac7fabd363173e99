// Package testrun runs test files in isolated child processes and aggregates
// their results.
package testrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/morozRed/kiln/internal/shell"
)

const (
	DefaultTimeout = 30 * time.Second
	fileToken      = "{file}"
)

// Config describes how to run one test file.
type Config struct {
	// Command is a shell command line. "{file}" is replaced with the quoted
	// test file path; without it the path is appended.
	Command  string
	Dir      string
	Env      []string
	Parser   string
	Timeout  time.Duration
	Parallel int
}

// Options for one RunIsolated call.
type Options struct {
	Config Config
	// Notify is called after each file completes, in completion order, never
	// concurrently.
	Notify func(FileResult)
	// Output, when set, receives a copy of every child's output.
	Output io.Writer
}

// Engine runs test files.
type Engine struct {
	run func(ctx context.Context, cmd shell.Command) (shell.Result, error)
}

func NewEngine() *Engine {
	return &Engine{run: shell.Run}
}

// RunIsolated runs every file in its own process. A failing, hanging or
// crashing file only affects its own results. The run stops launching files
// when ctx is cancelled and returns ctx.Err().
func (e *Engine) RunIsolated(ctx context.Context, files []string, opts Options) (*ResultSet, error) {
	cfg := opts.Config
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, errors.New("test command is not configured")
	}
	parser, err := LookupParser(cfg.Parser)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = 1
	}

	var output io.Writer
	if opts.Output != nil {
		output = &lockedWriter{w: opts.Output}
	}

	start := time.Now()
	set := &ResultSet{Results: make([]Result, 0, len(files))}
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(cfg.Parallel)
	for _, file := range files {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			fr, err := e.runFile(ctx, file, cfg, parser, output)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			set.Results = append(set.Results, fr.Results...)
			if opts.Notify != nil {
				opts.Notify(fr)
			}
			return nil
		})
	}
	err = g.Wait()
	set.Elapsed = time.Since(start)
	if err != nil {
		return set, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return set, ctxErr
	}
	return set, nil
}

func (e *Engine) runFile(ctx context.Context, file string, cfg Config, parser Parser, output io.Writer) (FileResult, error) {
	if err := ctx.Err(); err != nil {
		return FileResult{}, err
	}

	fileCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	cmd := shell.Sh(CommandLine(cfg.Command, file))
	cmd.Dir = cfg.Dir
	cmd.Env = cfg.Env
	cmd.Stdout = output
	cmd.Stderr = output

	started := time.Now()
	run, err := e.run(fileCtx, cmd)
	elapsed := time.Since(started)
	fr := FileResult{File: file, Elapsed: elapsed, Output: run.Stdout + run.Stderr}

	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		fr.Results = []Result{{
			File:    file,
			Status:  Timeout,
			Elapsed: elapsed,
			Message: fmt.Sprintf("timed out after %s", cfg.Timeout),
		}}
		return fr, nil
	case ctx.Err() != nil:
		return FileResult{}, ctx.Err()
	default:
		fr.Results = []Result{{File: file, Status: Fail, Elapsed: elapsed, Message: err.Error()}}
		return fr, nil
	}

	results := parser.Parse(file, run)
	if len(results) == 0 {
		results = []Result{fromExitCode(file, run)}
	} else if run.ExitCode != 0 && !hasFailure(results) {
		// The runner crashed after reporting passing cases.
		results = append(results, Result{
			File:    file,
			Status:  Fail,
			Message: fmt.Sprintf("exited with code %d\n%s", run.ExitCode, failureOutput(run)),
		})
	}
	fr.Results = results
	return fr, nil
}

// CommandLine expands the configured command for file.
func CommandLine(command, file string) string {
	quoted := shellQuote(file)
	if strings.Contains(command, fileToken) {
		return strings.ReplaceAll(command, fileToken, quoted)
	}
	return command + " " + quoted
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func hasFailure(results []Result) bool {
	for _, r := range results {
		if r.Status == Fail || r.Status == Timeout {
			return true
		}
	}
	return false
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
