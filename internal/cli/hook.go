package cli

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/morozRed/kiln/internal/fileutil"
	"github.com/spf13/cobra"
)

const (
	HookStart = "# >>> kiln quick hook >>>"
	HookEnd   = "# <<< kiln quick hook <<<"
)

func RunInstallHook(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}

	repoRoot, gitDir, err := ResolveGitPaths(cfg.Root)
	if err != nil {
		return err
	}

	hookPath := filepath.Join(gitDir, "hooks", "pre-commit")
	if err := os.MkdirAll(filepath.Dir(hookPath), 0755); err != nil {
		return fmt.Errorf("failed to create hook directory: %w", err)
	}

	existing := ""
	if data, err := os.ReadFile(hookPath); err == nil {
		existing = string(data)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read existing hook: %w", err)
	}

	projectDir, err := filepath.Rel(repoRoot, cfg.Root)
	if err != nil {
		return err
	}
	updated := UpsertKilnHook(existing, filepath.ToSlash(projectDir))
	changed, err := fileutil.WriteIfChanged(hookPath, []byte(updated))
	if err != nil {
		return fmt.Errorf("failed to write hook: %w", err)
	}
	if err := os.Chmod(hookPath, 0755); err != nil {
		return fmt.Errorf("failed to make hook executable: %w", err)
	}

	if !changed {
		fmt.Fprintf(cmd.OutOrStdout(), "Pre-commit hook at %s is up to date\n", hookPath)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Installed pre-commit hook at %s\n", hookPath)
	return nil
}

func ResolveGitPaths(workingDir string) (repoRoot string, gitDir string, err error) {
	repoRootOut, err := exec.Command("git", "-C", workingDir, "rev-parse", "--show-toplevel").Output()
	if err != nil {
		return "", "", fmt.Errorf("not inside a git repository")
	}

	gitDirOut, err := exec.Command("git", "-C", workingDir, "rev-parse", "--git-dir").Output()
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve git directory: %w", err)
	}

	repoRoot = strings.TrimSpace(string(repoRootOut))
	gitDir = strings.TrimSpace(string(gitDirOut))
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(workingDir, gitDir)
	}
	return repoRoot, gitDir, nil
}

// UpsertKilnHook adds the kiln block to a pre-commit hook, replacing an
// earlier block and keeping everything else.
func UpsertKilnHook(existingHook, projectDir string) string {
	if projectDir == "." {
		projectDir = ""
	}
	block := BuildKilnHookBlock(projectDir)

	if existingHook == "" {
		return "#!/bin/sh\n\n" + block + "\n"
	}

	start := strings.Index(existingHook, HookStart)
	end := strings.Index(existingHook, HookEnd)
	if start >= 0 && end >= start {
		end += len(HookEnd)
		return ensureTrailingNewline(existingHook[:start] + block + existingHook[end:])
	}

	base := ensureTrailingNewline(existingHook)
	if !strings.HasPrefix(base, "#!") {
		base = "#!/bin/sh\n" + base
	}
	return base + "\n" + block + "\n"
}

// BuildKilnHookBlock runs kiln quick from projectDir, relative to the
// repository root, and aborts the commit when the build fails.
func BuildKilnHookBlock(projectDir string) string {
	return fmt.Sprintf(
		"%s\nproject_dir=\"$(git rev-parse --show-toplevel)/%s\"\nif command -v kiln >/dev/null 2>&1; then\n  (cd \"$project_dir\" && kiln quick) || exit 1\nfi\n%s",
		HookStart,
		projectDir,
		HookEnd,
	)
}

func ensureTrailingNewline(text string) string {
	if strings.HasSuffix(text, "\n") {
		return text
	}
	return text + "\n"
}
