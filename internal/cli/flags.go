package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/morozRed/kiln/internal/config"
	"github.com/morozRed/kiln/internal/report"
	"github.com/spf13/cobra"
)

func OptionalStringFlag(cmd *cobra.Command, name string) (string, error) {
	if cmd == nil || cmd.Flags().Lookup(name) == nil {
		return "", nil
	}
	value, err := cmd.Flags().GetString(name)
	if err != nil {
		return "", fmt.Errorf("failed to read --%s flag: %w", name, err)
	}
	return strings.TrimSpace(value), nil
}

func OptionalBoolFlag(cmd *cobra.Command, name string, fallback bool) (bool, error) {
	if cmd == nil || cmd.Flags().Lookup(name) == nil {
		return fallback, nil
	}
	value, err := cmd.Flags().GetBool(name)
	if err != nil {
		return fallback, fmt.Errorf("failed to read --%s flag: %w", name, err)
	}
	return value, nil
}

// loadConfig reads the configuration selected by --config and --root. With
// validate set, an invalid configuration is a usage error.
func loadConfig(cmd *cobra.Command, validate bool) (*config.Config, error) {
	path, err := OptionalStringFlag(cmd, "config")
	if err != nil {
		return nil, err
	}
	root, err := OptionalStringFlag(cmd, "root")
	if err != nil {
		return nil, err
	}

	var cfg *config.Config
	switch {
	case path != "":
		cfg, err = config.Load(path)
	default:
		if root == "" {
			if root, err = resolveWorkingDirectory(); err != nil {
				return nil, err
			}
		}
		cfg, err = config.LoadDefault(root)
	}
	if err != nil {
		return nil, &UsageError{Err: err}
	}
	if path != "" && root != "" {
		if cfg.Root, err = filepath.Abs(root); err != nil {
			return nil, err
		}
	}

	if validate {
		if problems := config.Validate(cfg); len(problems) > 0 {
			return nil, &UsageError{Err: validationError(problems)}
		}
	}
	return cfg, nil
}

func newReporter(cmd *cobra.Command, quiet bool) (*report.Reporter, error) {
	debug, err := OptionalBoolFlag(cmd, "debug", false)
	if err != nil {
		return nil, err
	}
	if quiet {
		return report.New(cmd.ErrOrStderr(), cmd.ErrOrStderr(), debug), nil
	}
	return report.New(cmd.OutOrStdout(), cmd.ErrOrStderr(), debug), nil
}

func validationError(problems []config.ValidationError) error {
	lines := make([]string, 0, len(problems)+1)
	lines = append(lines, "invalid configuration:")
	for _, p := range problems {
		lines = append(lines, "  "+p.Error())
	}
	return fmt.Errorf("%s", strings.Join(lines, "\n"))
}
