package main

import (
	"github.com/camelinx/prefixdb"
	"github.com/urfave/cli/v2"
)

var (
	dbFileFlag = cli.StringFlag{
		Name:     "db",
		Usage:    "the database file",
		Required: true,
	}
	catalogDirFlag = cli.StringFlag{
		Name:     "catalog",
		Usage:    "the LevelDB catalog directory",
		Required: true,
	}
	nameFlag = cli.StringFlag{
		Name:     "name",
		Usage:    "the name of the database in the catalog",
		Required: true,
	}
)

// The toolbox works on databases labelling prefixes with 32 bit values,
// such as AS numbers. Lists without a value column get label 0.
var serializer = prefixdb.Uint32Serializer{}

func open(path string) (*prefixdb.DB[uint32], error) {
	return prefixdb.Open[uint32](path, serializer)
}
