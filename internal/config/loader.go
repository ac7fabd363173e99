package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	DefaultGeneratedDir = "generated"
	DefaultTestTimeout  = 30 * time.Second
	DefaultDebounce     = 100 * time.Millisecond
	DefaultBatchSize    = 50
)

// FileNames are the config files LoadDefault looks for, in order.
var FileNames = []string{"kiln.yaml", "kiln.yml", "kiln.toml"}

// Load reads the configuration at path. The repository root is the file's
// directory. Unset fields get their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config TOML: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config YAML: %w", err)
		}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	cfg.Path = abs
	cfg.Root = filepath.Dir(abs)
	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault loads the first config file found in dir, or the defaults when
// there is none.
func LoadDefault(dir string) (*Config, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return Default(dir)
}

// Default returns the default configuration for a repository at root.
func Default(root string) (*Config, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	cfg := &Config{Root: abs}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.GeneratedDir == "" {
		cfg.GeneratedDir = DefaultGeneratedDir
	}
	if cfg.Exclude == nil {
		cfg.Exclude = []string{"node_modules/**", ".git/**", cfg.GeneratedDir + "/**"}
	}
	if cfg.NodeVersionFile == "" {
		cfg.NodeVersionFile = "package.json"
	}
	if cfg.NodeCommand == "" {
		cfg.NodeCommand = "node"
	}

	l := &cfg.Lint
	if l.Description == "" {
		l.Description = "source"
	}
	if l.Command == "" {
		l.Command = "npx eslint --format json {files}"
	}
	if l.Include == nil {
		l.Include = []string{"**/*.js", "**/*.jsx", "**/*.ts", "**/*.tsx"}
	}
	if l.Parser == "" {
		l.Parser = "eslint"
	}
	if l.BatchSize == 0 {
		l.BatchSize = DefaultBatchSize
	}

	t := &cfg.Tests
	if t.Description == "" {
		t.Description = "tests"
	}
	if t.Command == "" {
		t.Command = "node --test {file}"
	}
	if t.Include == nil {
		t.Include = []string{"**/_*_test.js", "**/_*_test.ts", "**/_*_test.tsx"}
	}
	if t.Parser == "" {
		t.Parser = "tap"
	}
	if t.Timeout == "" {
		t.Timeout = DefaultTestTimeout.String()
	}
	if t.Parallel == 0 {
		t.Parallel = 1
	}

	w := &cfg.Watch
	if w.Globs == nil {
		w.Globs = []string{"**"}
	}
	if w.RestartGlobs == nil {
		w.RestartGlobs = append(append([]string(nil), FileNames...), "package.json")
	}
	if w.Debounce == "" {
		w.Debounce = DefaultDebounce.String()
	}

	if cfg.Tasks == nil {
		cfg.Tasks = make(map[string]TaskConfig)
	}
}
