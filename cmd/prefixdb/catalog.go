package main

import (
	"fmt"
	"log"

	"github.com/camelinx/prefixdb/ldbstore"
	"github.com/urfave/cli/v2"
)

var catalogCommand = cli.Command{
	Name:  "catalog",
	Usage: "manages named databases kept in a LevelDB catalog",
	Subcommands: []*cli.Command{
		{
			Action: doCatalogList,
			Name:   "list",
			Usage:  "lists the databases of a catalog",
			Flags: []cli.Flag{
				&catalogDirFlag,
			},
		},
		{
			Action: doCatalogPut,
			Name:   "put",
			Usage:  "stores a database file in a catalog",
			Flags: []cli.Flag{
				&catalogDirFlag,
				&nameFlag,
				&dbFileFlag,
			},
		},
		{
			Action: doCatalogGet,
			Name:   "get",
			Usage:  "exports a database of a catalog to a file",
			Flags: []cli.Flag{
				&catalogDirFlag,
				&nameFlag,
				&dbFileFlag,
			},
		},
		{
			Action: doCatalogDelete,
			Name:   "delete",
			Usage:  "removes a database from a catalog",
			Flags: []cli.Flag{
				&catalogDirFlag,
				&nameFlag,
			},
		},
	},
}

// withCatalog runs fn on the catalog named by the command's flags.
func withCatalog(ctx *cli.Context, fn func(*ldbstore.Catalog[uint32]) error) (err error) {
	dir := ctx.String(catalogDirFlag.Name)
	catalog, err := ldbstore.Open[uint32](dir, serializer)
	if err != nil {
		return err
	}
	defer func() {
		if closeError := catalog.Close(); closeError != nil {
			if err == nil {
				err = closeError
			} else {
				log.Printf("Failure closing catalog: %v", closeError)
			}
		}
	}()
	return fn(catalog)
}

func doCatalogList(ctx *cli.Context) error {
	return withCatalog(ctx, func(catalog *ldbstore.Catalog[uint32]) error {
		names, err := catalog.Names()
		if err != nil {
			return err
		}
		for _, name := range names {
			stats, err := catalog.Stats(name)
			if err != nil {
				return err
			}
			fmt.Printf("%-24s  %10d prefixes  %10d nodes\n", name, stats.Prefixes, stats.Nodes)
		}
		return nil
	})
}

func doCatalogPut(ctx *cli.Context) error {
	return withCatalog(ctx, func(catalog *ldbstore.Catalog[uint32]) error {
		path := ctx.String(dbFileFlag.Name)
		db, err := open(path)
		if err != nil {
			return err
		}
		name := ctx.String(nameFlag.Name)
		log.Printf("Storing %v as %q ...", path, name)
		return catalog.Put(ctx.Context, name, db)
	})
}

func doCatalogGet(ctx *cli.Context) error {
	return withCatalog(ctx, func(catalog *ldbstore.Catalog[uint32]) error {
		name := ctx.String(nameFlag.Name)
		db, err := catalog.Get(name)
		if err != nil {
			return err
		}
		path := ctx.String(dbFileFlag.Name)
		log.Printf("Exporting %q to %v ...", name, path)
		return db.SaveFile(ctx.Context, path)
	})
}

func doCatalogDelete(ctx *cli.Context) error {
	return withCatalog(ctx, func(catalog *ldbstore.Catalog[uint32]) error {
		return catalog.Delete(ctx.String(nameFlag.Name))
	})
}
