package main

import (
	"fmt"
	"log"

	"github.com/camelinx/prefixdb"
	"github.com/urfave/cli/v2"
)

var (
	listFileFlag = cli.StringFlag{
		Name:     "list",
		Usage:    "the text list of prefixes, one per line with an optional value",
		Required: true,
	}
	compactFlag = cli.BoolFlag{
		Name:  "compact",
		Usage: "drop redundant prefixes before saving",
	}
)

var importCommand = cli.Command{
	Action: doImport,
	Name:   "import",
	Usage:  "creates a database from a text prefixes list",
	Flags: []cli.Flag{
		&listFileFlag,
		&dbFileFlag,
		&compactFlag,
	},
}

func doImport(ctx *cli.Context) error {
	list := ctx.String(listFileFlag.Name)
	path := ctx.String(dbFileFlag.Name)

	db := prefixdb.New[uint32](serializer)

	log.Printf("Reading prefixes from %v ...", list)
	added, err := db.AddFile(ctx.Context, list, prefixdb.ParseUint32)
	if err != nil {
		return err
	}
	log.Printf("Added %d entries, %d distinct prefixes", added, db.Len())

	if ctx.Bool(compactFlag.Name) {
		dropped, err := db.Compact(ctx.Context)
		if err != nil {
			return err
		}
		log.Printf("Compaction dropped %d prefixes", dropped)
	}

	log.Printf("Saving database to %v ...", path)
	if err := db.SaveFile(ctx.Context, path); err != nil {
		return err
	}
	fmt.Printf("%s: %d prefixes, %d nodes\n", path, db.Len(), db.Nodes())
	return nil
}
