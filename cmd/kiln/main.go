package main

import (
	"os"

	"github.com/morozRed/kiln/internal/cli"
)

var version = "0.1.0-dev"

func main() {
	os.Exit(cli.Execute(cli.NewRootCommand(version), os.Args[1:], os.Stderr))
}
