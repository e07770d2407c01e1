package main

import (
	"fmt"

	"github.com/camelinx/prefixdb"
	"github.com/urfave/cli/v2"
)

var searchCommand = cli.Command{
	Action:    doSearch,
	Name:      "search",
	Usage:     "searches addresses in a database",
	ArgsUsage: "<address> [<address> ...]",
	Flags: []cli.Flag{
		&dbFileFlag,
	},
}

func doSearch(ctx *cli.Context) error {
	if ctx.NArg() == 0 {
		return fmt.Errorf("no address to search")
	}

	db, err := open(ctx.String(dbFileFlag.Name))
	if err != nil {
		return err
	}

	for _, address := range ctx.Args().Slice() {
		prefix, res, value, err := db.LookupPrefix(ctx.Context, address)
		switch {
		case err != nil:
			fmt.Printf("%-15.15s  invalid\n", address)
		case res == prefixdb.Match:
			fmt.Printf("%-15.15s  %-18s  %d\n", address, prefix, value)
		default:
			fmt.Printf("%-15.15s  -\n", address)
		}
	}
	return nil
}
