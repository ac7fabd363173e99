package config

import (
	"path/filepath"
	"time"
)

// Config is the top-level configuration read from kiln.yaml or kiln.toml.
type Config struct {
	// Root is the repository root; the directory holding the config file.
	Root string `yaml:"-" toml:"-"`
	// Path is the file the configuration was read from, empty for defaults.
	Path string `yaml:"-" toml:"-"`

	GeneratedDir    string                `yaml:"generated_dir" toml:"generated_dir"`
	Exclude         []string              `yaml:"exclude" toml:"exclude"`
	NodeVersionFile string                `yaml:"node_version_file" toml:"node_version_file"`
	NodeCommand     string                `yaml:"node_command" toml:"node_command"`
	Lint            LintConfig            `yaml:"lint" toml:"lint"`
	Tests           TestsConfig           `yaml:"tests" toml:"tests"`
	Tasks           map[string]TaskConfig `yaml:"tasks" toml:"tasks"`
	Watch           WatchConfig           `yaml:"watch" toml:"watch"`
	Notify          NotifyConfig          `yaml:"notify" toml:"notify"`
}

// LintConfig configures the external linter.
type LintConfig struct {
	Description string   `yaml:"description" toml:"description"`
	Command     string   `yaml:"command" toml:"command"`
	Include     []string `yaml:"include" toml:"include"`
	Exclude     []string `yaml:"exclude" toml:"exclude"`
	Parser      string   `yaml:"parser" toml:"parser"`
	BatchSize   int      `yaml:"batch_size" toml:"batch_size"`
}

// TestsConfig configures test discovery and the per-file test command.
type TestsConfig struct {
	Description string   `yaml:"description" toml:"description"`
	Command     string   `yaml:"command" toml:"command"`
	Include     []string `yaml:"include" toml:"include"`
	Exclude     []string `yaml:"exclude" toml:"exclude"`
	Parser      string   `yaml:"parser" toml:"parser"`
	Timeout     string   `yaml:"timeout" toml:"timeout"`
	Parallel    int      `yaml:"parallel" toml:"parallel"`
}

// TaskConfig is a custom command task. With Inputs it only runs when one of
// the matching files changed since its last success.
type TaskConfig struct {
	Description string   `yaml:"description" toml:"description"`
	Command     string   `yaml:"command" toml:"command"`
	Inputs      []string `yaml:"inputs" toml:"inputs"`
	After       []string `yaml:"after" toml:"after"`
}

// WatchConfig configures `kiln watch`.
type WatchConfig struct {
	Globs        []string `yaml:"globs" toml:"globs"`
	RestartGlobs []string `yaml:"restart_globs" toml:"restart_globs"`
	Debounce     string   `yaml:"debounce" toml:"debounce"`
}

// NotifyConfig holds commands started after each watch-mode build.
type NotifyConfig struct {
	Success     string `yaml:"success" toml:"success"`
	LintFailure string `yaml:"lint_failure" toml:"lint_failure"`
	Failure     string `yaml:"failure" toml:"failure"`
}

// GeneratedPath is the absolute generated directory.
func (c *Config) GeneratedPath() string {
	return c.Abs(c.GeneratedDir)
}

// IncrementalDir holds state kept between builds.
func (c *Config) IncrementalDir() string {
	return filepath.Join(c.GeneratedPath(), "incremental")
}

// TimestampDir holds change-cache records.
func (c *Config) TimestampDir() string {
	return filepath.Join(c.IncrementalDir(), "timestamps")
}

// ReportDir holds persisted test reports.
func (c *Config) ReportDir() string {
	return filepath.Join(c.IncrementalDir(), "reports")
}

// TestTimeout is the parsed per-file test timeout.
func (c *Config) TestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Tests.Timeout)
	if err != nil {
		return DefaultTestTimeout
	}
	return d
}

// WatchDebounce is the parsed watch debounce interval.
func (c *Config) WatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil {
		return DefaultDebounce
	}
	return d
}

// Abs resolves path against the repository root.
func (c *Config) Abs(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(c.Root, path)
}
