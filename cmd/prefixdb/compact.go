package main

import (
	"log"

	"github.com/urfave/cli/v2"
)

var compactCommand = cli.Command{
	Action: doCompact,
	Name:   "compact",
	Usage:  "drops prefixes of a database that do not change any search result",
	Flags: []cli.Flag{
		&dbFileFlag,
	},
}

func doCompact(ctx *cli.Context) error {
	path := ctx.String(dbFileFlag.Name)
	db, err := open(path)
	if err != nil {
		return err
	}

	before := db.Len()
	dropped, err := db.Compact(ctx.Context)
	if err != nil {
		return err
	}
	log.Printf("Dropped %d of %d prefixes", dropped, before)

	if dropped == 0 {
		return nil
	}
	return db.SaveFile(ctx.Context, path)
}
