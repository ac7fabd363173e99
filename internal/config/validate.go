package config

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"time"

	"github.com/morozRed/kiln/internal/glob"
	"github.com/morozRed/kiln/internal/testrun"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// BuiltinTasks are defined by kiln itself and cannot be redefined.
var BuiltinTasks = []string{"default", "clean", "quick", "version", "lint", "unittest"}

// ReservedNames are kiln subcommands; a task with one of these names could
// not be run from the command line.
var ReservedNames = []string{"affected", "completion", "doctor", "help", "install-hook", "last", "status", "tasks", "watch"}

var (
	lintParsers = []string{"eslint", "exit-code"}
	taskName    = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]*$`)
)

// Validate checks cfg for structural and semantic errors. It returns every
// problem found, empty when the config is valid.
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError

	validateGlobs("exclude", cfg.Exclude, &errs)
	validateGlobs("lint.include", cfg.Lint.Include, &errs)
	validateGlobs("lint.exclude", cfg.Lint.Exclude, &errs)
	validateGlobs("tests.include", cfg.Tests.Include, &errs)
	validateGlobs("tests.exclude", cfg.Tests.Exclude, &errs)
	validateGlobs("watch.globs", cfg.Watch.Globs, &errs)
	validateGlobs("watch.restart_globs", cfg.Watch.RestartGlobs, &errs)

	if !slices.Contains(lintParsers, cfg.Lint.Parser) {
		errs = append(errs, ValidationError{
			Field:   "lint.parser",
			Message: fmt.Sprintf("unknown parser %q (known: %v)", cfg.Lint.Parser, lintParsers),
		})
	}
	if cfg.Lint.BatchSize < 0 {
		errs = append(errs, ValidationError{Field: "lint.batch_size", Message: "must not be negative"})
	}

	if _, err := testrun.LookupParser(cfg.Tests.Parser); err != nil {
		errs = append(errs, ValidationError{Field: "tests.parser", Message: err.Error()})
	}
	if cfg.Tests.Command == "" {
		errs = append(errs, ValidationError{Field: "tests.command", Message: "is required"})
	}
	if cfg.Tests.Parallel < 0 {
		errs = append(errs, ValidationError{Field: "tests.parallel", Message: "must not be negative"})
	}
	validateDuration("tests.timeout", cfg.Tests.Timeout, &errs)
	validateDuration("watch.debounce", cfg.Watch.Debounce, &errs)

	names := make([]string, 0, len(cfg.Tasks))
	for name := range cfg.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		validateTask(cfg, name, cfg.Tasks[name], &errs)
	}

	return errs
}

func validateTask(cfg *Config, name string, task TaskConfig, errs *[]ValidationError) {
	prefix := fmt.Sprintf("tasks.%s", name)
	if !taskName.MatchString(name) {
		*errs = append(*errs, ValidationError{Field: prefix, Message: "task names must start with a letter or digit"})
	}
	if slices.Contains(BuiltinTasks, name) {
		*errs = append(*errs, ValidationError{Field: prefix, Message: "redefines a built-in task"})
	}
	if slices.Contains(ReservedNames, name) {
		*errs = append(*errs, ValidationError{Field: prefix, Message: "clashes with a kiln command"})
	}
	if task.Command == "" {
		*errs = append(*errs, ValidationError{Field: prefix + ".command", Message: "is required"})
	}
	validateGlobs(prefix+".inputs", task.Inputs, errs)
	for _, after := range task.After {
		if _, ok := cfg.Tasks[after]; ok || slices.Contains(BuiltinTasks, after) {
			continue
		}
		*errs = append(*errs, ValidationError{
			Field:   prefix + ".after",
			Message: fmt.Sprintf("references undefined task %q", after),
		})
	}
}

func validateGlobs(field string, patterns []string, errs *[]ValidationError) {
	for i, pattern := range patterns {
		if _, err := glob.Compile(pattern); err != nil {
			*errs = append(*errs, ValidationError{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Message: err.Error(),
			})
		}
	}
}

func validateDuration(field, value string, errs *[]ValidationError) {
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, ValidationError{Field: field, Message: fmt.Sprintf("invalid duration %q", value)})
		return
	}
	if d <= 0 {
		*errs = append(*errs, ValidationError{Field: field, Message: "must be positive"})
	}
}
