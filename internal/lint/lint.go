// Package lint runs an external linter over files changed since they last
// passed, and records the ones that pass.
package lint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/morozRed/kiln/internal/report"
	"github.com/morozRed/kiln/internal/shell"
	"github.com/morozRed/kiln/internal/tasks"
)

// Purpose is the change-cache tag for linted files.
const Purpose = "lint"

const (
	DefaultBatchSize = 50
	filesToken       = "{files}"
)

// Config describes the external linter.
type Config struct {
	// Command is a shell command line. "{files}" is replaced with the quoted
	// file list; without it the files are appended.
	Command string
	// Parser is "eslint" for `--format json` output, or "exit-code".
	Parser    string
	BatchSize int
	Dir       string
	Env       []string
}

// Cache is the part of the timestamp store the linter needs.
type Cache interface {
	FindNewer(files []string, purpose string) ([]string, error)
	MarkAllProcessed(files []string, purpose string, at time.Time)
}

// Request is one lint invocation.
type Request struct {
	Description string
	Files       []string
	Reporter    *report.Reporter
}

// Message is one problem reported for a file.
type Message struct {
	Line    int
	Column  int
	Rule    string
	Message string
	Error   bool
}

// FileReport is the linter's verdict for one file.
type FileReport struct {
	File     string
	Messages []Message
	// Output holds raw linter output when no structured messages exist.
	Output string
}

// Passed reports whether the file has no errors.
func (f FileReport) Passed() bool {
	if f.Output != "" {
		return false
	}
	for _, m := range f.Messages {
		if m.Error {
			return false
		}
	}
	return true
}

type Linter struct {
	cfg   Config
	cache Cache
	run   func(ctx context.Context, cmd shell.Command) (shell.Result, error)

	// Display renders file names in failure output.
	Display func(string) string
}

func New(cfg Config, cache Cache) *Linter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Parser == "" {
		cfg.Parser = "eslint"
	}
	return &Linter{cfg: cfg, cache: cache, run: shell.Run}
}

// Validate lints the files of req that changed since they last passed. Every
// file that passes is recorded; a lint TaskError is returned if any failed.
func (l *Linter) Validate(ctx context.Context, req Request) error {
	return req.Reporter.QuietStart("Linting "+req.Description, func(step *report.Step) error {
		files, err := l.cache.FindNewer(req.Files, Purpose)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return nil
		}
		if strings.TrimSpace(l.cfg.Command) == "" {
			return fmt.Errorf("lint command is not configured")
		}

		started := time.Now()
		reports, err := l.lint(ctx, files)
		if err != nil {
			return err
		}

		passing := make([]string, 0, len(reports))
		for _, r := range reports {
			if r.Passed() {
				step.Progress(".")
				passing = append(passing, r.File)
				continue
			}
			step.Footer(l.renderFailure(r))
		}
		l.cache.MarkAllProcessed(passing, Purpose, started)

		if len(passing) != len(reports) {
			return tasks.NewLintError("Lint failed")
		}
		return nil
	})
}

func (l *Linter) lint(ctx context.Context, files []string) ([]FileReport, error) {
	out := make([]FileReport, 0, len(files))
	for start := 0; start < len(files); start += l.cfg.BatchSize {
		end := min(start+l.cfg.BatchSize, len(files))
		batch, err := l.lintBatch(ctx, files[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (l *Linter) lintBatch(ctx context.Context, files []string) ([]FileReport, error) {
	cmd := shell.Sh(CommandLine(l.cfg.Command, files))
	cmd.Dir = l.cfg.Dir
	cmd.Env = l.cfg.Env
	result, err := l.run(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("run linter: %w", err)
	}

	if l.cfg.Parser == "eslint" {
		// A failing exit with no attributable error means the JSON could not
		// be matched to our files; fall back to exit-code attribution.
		if reports, ok := parseESLint(files, result.Stdout); ok && (result.ExitCode == 0 || anyFailed(reports)) {
			return reports, nil
		}
	}

	if result.ExitCode == 0 {
		reports := make([]FileReport, 0, len(files))
		for _, file := range files {
			reports = append(reports, FileReport{File: file})
		}
		return reports, nil
	}
	if len(files) == 1 {
		output := strings.TrimSpace(result.Stdout + "\n" + result.Stderr)
		if output == "" {
			output = fmt.Sprintf("linter exited with code %d", result.ExitCode)
		}
		return []FileReport{{File: files[0], Output: output}}, nil
	}

	// Without structured output a failing batch cannot be attributed, so
	// lint each file on its own.
	reports := make([]FileReport, 0, len(files))
	for _, file := range files {
		single, err := l.lintBatch(ctx, []string{file})
		if err != nil {
			return nil, err
		}
		reports = append(reports, single...)
	}
	return reports, nil
}

type eslintFile struct {
	FilePath string          `json:"filePath"`
	Messages []eslintMessage `json:"messages"`
}

type eslintMessage struct {
	RuleID   string `json:"ruleId"`
	Severity int    `json:"severity"` // 1=warning, 2=error
	Fatal    bool   `json:"fatal"`
	Message  string `json:"message"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
}

// parseESLint maps ESLint's JSON formatter output onto files. Paths are
// compared after resolving symlinks. Files missing from the output passed.
func parseESLint(files []string, stdout string) ([]FileReport, bool) {
	var raw []eslintFile
	if err := json.Unmarshal([]byte(strings.TrimSpace(stdout)), &raw); err != nil {
		return nil, false
	}

	byFile := make(map[string][]Message, len(raw))
	for _, f := range raw {
		key := canonicalPath(f.FilePath)
		for _, m := range f.Messages {
			byFile[key] = append(byFile[key], Message{
				Line:    m.Line,
				Column:  m.Column,
				Rule:    m.RuleID,
				Message: m.Message,
				Error:   m.Severity == 2 || m.Fatal,
			})
		}
	}

	reports := make([]FileReport, 0, len(files))
	for _, file := range files {
		reports = append(reports, FileReport{File: file, Messages: byFile[canonicalPath(file)]})
	}
	return reports, true
}

func canonicalPath(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return filepath.Clean(path)
}

func anyFailed(reports []FileReport) bool {
	for _, r := range reports {
		if !r.Passed() {
			return true
		}
	}
	return false
}

func (l *Linter) renderFailure(r FileReport) string {
	name := r.File
	if l.Display != nil {
		name = l.Display(r.File)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s failed\n", name)
	if r.Output != "" {
		b.WriteString(r.Output + "\n")
		return b.String()
	}

	lines := sourceLines(r.File)
	for _, m := range r.Messages {
		code := ""
		if m.Line > 0 && m.Line <= len(lines) {
			code = strings.TrimSpace(lines[m.Line-1])
		}
		message := m.Message
		if m.Rule != "" {
			message += " (" + m.Rule + ")"
		}
		fmt.Fprintf(&b, "%d: %s\n   %s\n", m.Line, code, message)
	}
	return b.String()
}

func sourceLines(file string) []string {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil
	}
	return strings.Split(string(data), "\n")
}

// CommandLine expands the configured command for files.
func CommandLine(command string, files []string) string {
	quoted := make([]string, 0, len(files))
	for _, file := range files {
		quoted = append(quoted, "'"+strings.ReplaceAll(file, "'", `'\''`)+"'")
	}
	list := strings.Join(quoted, " ")
	if strings.Contains(command, filesToken) {
		return strings.ReplaceAll(command, filesToken, list)
	}
	return command + " " + list
}
