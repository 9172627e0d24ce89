// Command minesim is the thin external driver around package simulation
// (spec.md §1: "exit status, flags, and console output belong to the
// external driver"). It is grounded on LarryRuane-minesim/minesim.go's
// flag.Parse + init() wiring and final stats printout, restructured
// around urfave/cli/v2 and a simulation.Config in the go-ethereum-lineage
// `cmd/` style (see bingoer-srcd/cmd/runcore/main.go for the app-skeleton
// this follows: one *cli.App, a Before hook for process tuning, an
// Action that does the real work).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/larryruane/minesim/simulation"
)

// fileConfig mirrors simulation.Config's fields for TOML decoding. It is
// kept distinct from simulation.Config because MinerSelection is a
// function and cannot be represented in TOML.
type fileConfig struct {
	NodeCount      int
	OutboundPeers  int
	NPeer          int
	BlockInterval  float64
	HopDelayMillis float64
	PruneWatermark int
	RNGSeed        int64
	ProgressEvery  int
}

func main() {
	if _, err := maxprocs.Set(); err != nil {
		fmt.Fprintln(os.Stderr, "minesim: maxprocs:", err)
	}

	app := &cli.App{
		Name:  "minesim",
		Usage: "discrete-event simulator of a proof-of-work mining network",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a TOML config file"},
			&cli.IntFlag{Name: "nodes", Value: 1 << 15, Usage: "total node count"},
			&cli.Float64Flag{Name: "block-interval", Value: 300, Usage: "average block interval"},
			&cli.IntFlag{Name: "iterations", Value: 1_000_000, Usage: "iteration cap"},
			&cli.Int64Flag{Name: "seed", Value: -1, Usage: "RNG seed, -1 for a wall-clock-derived seed"},
			&cli.BoolFlag{Name: "trace", Usage: "print every chain event to stdout"},
			&cli.StringFlag{Name: "verbosity", Value: "info", Usage: "log level: trace, debug, info, warn, error"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "minesim:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	setVerbosity(c.String("verbosity"))

	cfg := simulation.DefaultConfig()
	if path := c.String("config"); path != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return fmt.Errorf("config file: %w", err)
		}
		applyFileConfig(&cfg, fc)
	}

	if c.IsSet("nodes") {
		cfg.NodeCount = c.Int("nodes")
	}
	if c.IsSet("block-interval") {
		cfg.BlockInterval = c.Float64("block-interval")
	}

	seed := c.Int64("seed")
	if !c.IsSet("seed") && cfg.RNGSeed != 0 {
		seed = cfg.RNGSeed
	}
	if seed == -1 {
		seed = time.Now().UnixNano()
	}
	cfg.RNGSeed = seed

	sim, err := simulation.New(cfg)
	if err != nil {
		return err
	}

	if c.Bool("trace") {
		ch := make(chan interface{}, 256)
		sub := sim.Events().Subscribe(ch)
		defer sub.Unsubscribe()
		go func() {
			for ev := range ch {
				fmt.Println(ev)
			}
		}()
	}

	iterations := c.Int("iterations")
	stats, err := sim.Run(context.Background(), iterations)
	if err != nil && err != context.Canceled {
		return err
	}

	printStats(seed, cfg, stats)
	return nil
}

func applyFileConfig(cfg *simulation.Config, fc fileConfig) {
	if fc.NodeCount != 0 {
		cfg.NodeCount = fc.NodeCount
	}
	if fc.OutboundPeers != 0 {
		cfg.OutboundPeers = fc.OutboundPeers
	}
	if fc.NPeer != 0 {
		cfg.NPeer = fc.NPeer
	}
	if fc.BlockInterval != 0 {
		cfg.BlockInterval = fc.BlockInterval
	}
	if fc.HopDelayMillis != 0 {
		cfg.HopDelayMillis = fc.HopDelayMillis
	}
	if fc.PruneWatermark != 0 {
		cfg.PruneWatermark = fc.PruneWatermark
	}
	if fc.RNGSeed != 0 {
		cfg.RNGSeed = fc.RNGSeed
	}
	if fc.ProgressEvery != 0 {
		cfg.ProgressEvery = fc.ProgressEvery
	}
}

func setVerbosity(level string) {
	var lvl slog.Level
	switch level {
	case "trace":
		lvl = log.LevelTrace
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	glog := log.NewGlogHandler(log.NewTerminalHandler(os.Stderr, false))
	glog.Verbosity(lvl)
	log.SetDefault(log.NewLogger(glog))
}

func printStats(seed int64, cfg simulation.Config, stats simulation.Stats) {
	fmt.Printf("seed-arg %d\n", seed)
	fmt.Printf("block-interval-arg %.2f\n", cfg.BlockInterval)
	fmt.Printf("total-simtime %.2f\n", stats.SimTime)
	fmt.Printf("max-reorg-depth %d\n", stats.MaxReorg)
	fmt.Printf("base-block-id %d\n", stats.BaseID)
	fmt.Printf("nblock %d\n", stats.NBlock)

	var totalMined, totalCredit int
	for _, m := range stats.PerMiner {
		totalMined += m.Mined
		totalCredit += m.Credit
	}
	fmt.Printf("mined-blocks %d\n", totalMined)
	if totalMined > 0 {
		fmt.Printf("total-stale %d\n", totalMined-totalCredit)
	}
	for _, m := range stats.PerMiner {
		stale := 0.0
		if m.Mined > 0 {
			stale = float64(m.Mined-m.Credit) * 100 / float64(m.Mined)
		}
		fmt.Printf("miner %d mined %d credit %d stale %.2f%%\n", m.Index, m.Mined, m.Credit, stale)
	}
}
