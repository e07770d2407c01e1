package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Run with `go run ./cmd/prefixdb`

func main() {
	app := &cli.App{
		Name:     "PrefixDB Toolbox",
		HelpName: "prefixdb",
		Usage:    "A set of utilities to build, inspect and query IPv4 prefix databases",
		Flags:    []cli.Flag{},
		Commands: []*cli.Command{
			&importCommand,
			&searchCommand,
			&dumpCommand,
			&compactCommand,
			&catalogCommand,
			&benchCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
