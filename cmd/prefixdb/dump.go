package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/camelinx/prefixdb"
	"github.com/urfave/cli/v2"
)

var dumpCommand = cli.Command{
	Action: doDump,
	Name:   "dump",
	Usage:  "prints all prefixes of a database as a list accepted by import",
	Flags: []cli.Flag{
		&dbFileFlag,
	},
}

func doDump(ctx *cli.Context) error {
	db, err := open(ctx.String(dbFileFlag.Name))
	if err != nil {
		return err
	}

	out := bufio.NewWriter(os.Stdout)
	err = db.Walk(ctx.Context, func(_ context.Context, key prefixdb.Key, value uint32) error {
		_, err := fmt.Fprintf(out, "%s %d\n", key, value)
		return err
	})
	if err != nil {
		return err
	}
	return out.Flush()
}
