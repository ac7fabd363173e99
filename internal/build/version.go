package build

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/morozRed/kiln/internal/report"
	"github.com/morozRed/kiln/internal/shell"
	"github.com/morozRed/kiln/internal/tasks"
)

// versionCheck remembers a successful check for the life of the process.
type versionCheck struct {
	checked bool
}

func (b *Build) checkVersion(ctx context.Context) error {
	if b.version.checked {
		return nil
	}
	return b.reporter.Start("Checking Node.js version", func(*report.Step) error {
		expected, err := ExpectedNodeVersion(b.cfg.Abs(b.cfg.NodeVersionFile))
		if err != nil {
			return err
		}

		result, err := shell.Run(ctx, shell.Command{Name: b.cfg.NodeCommand, Args: []string{"--version"}, Dir: b.cfg.Root})
		if err != nil {
			return tasks.NewTaskError("Could not run %s: %v", b.cfg.NodeCommand, err)
		}
		actual := strings.TrimSpace(result.Stdout)
		if result.ExitCode != 0 || actual == "" {
			return tasks.NewTaskError("Could not determine Node version (%s --version exited with %d)", b.cfg.NodeCommand, result.ExitCode)
		}

		if expected != actual {
			return tasks.NewTaskError("Incorrect Node version. Expected %s, but was %s.", expected, actual)
		}
		b.version.checked = true
		return nil
	})
}

type packageJSON struct {
	Engines struct {
		Node string `json:"node"`
	} `json:"engines"`
}

// ExpectedNodeVersion reads engines.node from a package.json file and
// returns it with a leading "v", as node --version prints it.
func ExpectedNodeVersion(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", tasks.NewTaskError("Could not read %s: %v", path, err)
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return "", tasks.NewTaskError("Could not parse %s: %v", path, err)
	}
	version := strings.TrimSpace(pkg.Engines.Node)
	if version == "" {
		return "", tasks.NewTaskError("%s does not declare engines.node", path)
	}
	return "v" + strings.TrimPrefix(version, "v"), nil
}

