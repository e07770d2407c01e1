package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/camelinx/prefixdb"
	"github.com/urfave/cli/v2"
)

var (
	prefixesFlag = cli.IntFlag{
		Name:  "prefixes",
		Usage: "the number of random prefixes to add",
		Value: 500000,
	}
	searchesFlag = cli.IntFlag{
		Name:  "searches",
		Usage: "the number of random addresses to search",
		Value: 500000,
	}
	seedFlag = cli.Int64Flag{
		Name:  "seed",
		Usage: "the seed of the random generator, 0 for a time based one",
	}
)

var benchCommand = cli.Command{
	Action: doBench,
	Name:   "bench",
	Usage:  "tests and benchmarks the prefix database on random data",
	Flags: []cli.Flag{
		&prefixesFlag,
		&searchesFlag,
		&seedFlag,
	},
}

func passFail(ok bool) string {
	if ok {
		return "pass"
	}
	return "fail"
}

func doBench(ctx *cli.Context) error {
	seed := ctx.Int64(seedFlag.Name)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	result := runBench(ctx.Context, benchConfig{
		prefixes: ctx.Int(prefixesFlag.Name),
		searches: ctx.Int(searchesFlag.Name),
		rand:     rand.New(rand.NewSource(seed)),
		dir:      os.TempDir(),
	})
	if !result.ok() {
		return fmt.Errorf("bench failed")
	}
	return nil
}

type benchConfig struct {
	prefixes int
	searches int
	rand     *rand.Rand
	dir      string
}

type benchResult struct {
	addStatus  prefixdb.ErrorCode
	saveStatus prefixdb.ErrorCode
	loadErr    error
	matched    int
	unmatched  int
}

func (r benchResult) ok() bool {
	return r.addStatus == prefixdb.OK && r.saveStatus == prefixdb.OK && r.loadErr == nil
}

// runBench adds random prefixes, saves and reloads the database and then
// searches random addresses, printing the outcome of every step.
func runBench(ctx context.Context, config benchConfig) benchResult {
	var result benchResult
	rnd := config.rand

	start := time.Now()
	db := prefixdb.New[uint32](serializer)
	fmt.Printf("allocate empty database   %s [%.06fs]\n", passFail(db != nil), time.Since(start).Seconds())

	start = time.Now()
	for i := 0; i < config.prefixes; i++ {
		prefix := fmt.Sprintf("%d.%d.%d.%d/%d",
			rnd.Intn(223)+1, rnd.Intn(223)+1, rnd.Intn(223)+1, rnd.Intn(223)+1, rnd.Intn(12)+16)
		result.addStatus |= db.Add(ctx, prefix, uint32(i))
	}
	elapsed := time.Since(start).Seconds()
	fmt.Printf("add %7d prefixes      %s [%.06fs] [%d prefixes/s]\n",
		config.prefixes, passFail(result.addStatus == prefixdb.OK), elapsed, int(float64(config.prefixes)/elapsed))

	path := filepath.Join(config.dir, fmt.Sprintf("bench-%d.pfdb", os.Getpid()))
	defer os.Remove(path)

	start = time.Now()
	result.saveStatus = db.Save(ctx, path)
	fmt.Printf("save database             %s [%.06fs]\n", passFail(result.saveStatus == prefixdb.OK), time.Since(start).Seconds())

	start = time.Now()
	loaded, err := open(path)
	result.loadErr = err
	fmt.Printf("load database             %s [%.06fs]\n", passFail(err == nil), time.Since(start).Seconds())
	if err != nil {
		return result
	}

	start = time.Now()
	for i := 0; i < config.searches; i++ {
		address := fmt.Sprintf("%d.%d.%d.%d", rnd.Intn(253)+1, rnd.Intn(253)+1, rnd.Intn(253)+1, rnd.Intn(253)+1)
		if _, found := loaded.Search(ctx, address); found {
			result.matched++
		} else {
			result.unmatched++
		}
	}
	elapsed = time.Since(start).Seconds()
	fmt.Printf("search %7d addresses  pass [%.06fs] [%d searches/s - %d matched - %d unmatched]\n",
		config.searches, elapsed, int(float64(config.searches)/elapsed), result.matched, result.unmatched)

	return result
}
