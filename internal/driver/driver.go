// Package driver implements the simulator's top-level loop (spec.md
// §4.7, Component G): drain every runnable task, pop the earliest
// event, advance virtual time, and dispatch its notify function. It is
// grounded on LarryRuane-minesim/minesim.go's main loop (the
// prune-on-single-tip check followed by heap.Pop/dispatch) and
// original_source/sim.c's `while (protothread_run(pt))` drain-then-pop
// shape.
package driver

import (
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/larryruane/minesim/internal/chain"
	"github.com/larryruane/minesim/internal/engine"
	"github.com/larryruane/minesim/internal/node"
	"github.com/larryruane/minesim/internal/sched"
)

// Driver owns nothing the other packages don't already own; it is pure
// orchestration over a World plus the node table, exactly the role
// minesim.go's main loop plays over its package-level g struct.
type Driver struct {
	sched *sched.Scheduler
	eng   *engine.Engine
	chain *chain.Chain
	world *node.World
	nodes []*node.Node

	pruneWatermark int
	log            log.Logger

	heapSize    metrics.GaugeFloat64
	readyTasks  metrics.Gauge
	reorgDepth  metrics.Histogram
	minedCount  metrics.Counter
	creditCount metrics.Counter

	progressEvery int
	processed     int
	lastReport    mclock.AbsTime
	clock         mclock.Clock
}

// Config bundles the pieces Driver needs but does not itself own.
type Config struct {
	Sched          *sched.Scheduler
	Eng            *engine.Engine
	Chain          *chain.Chain
	World          *node.World
	Nodes          []*node.Node
	PruneWatermark int
	Log            log.Logger
	Registry       metrics.Registry
	ProgressEvery  int
}

// New constructs a Driver, registering its metrics in cfg.Registry if
// non-nil (spec.md §4.9: metrics recording never fails or blocks, so a
// nil registry is also accepted and simply means nothing is registered).
func New(cfg Config) *Driver {
	d := &Driver{
		sched:          cfg.Sched,
		eng:            cfg.Eng,
		chain:          cfg.Chain,
		world:          cfg.World,
		nodes:          cfg.Nodes,
		pruneWatermark: cfg.PruneWatermark,
		log:            cfg.Log,
		progressEvery:  cfg.ProgressEvery,
		clock:          mclock.System{},
		heapSize:       metrics.NewGaugeFloat64(),
		readyTasks:     metrics.NewGauge(),
		reorgDepth:     metrics.NewHistogram(metrics.NewUniformSample(1028)),
		minedCount:     metrics.NewCounter(),
		creditCount:    metrics.NewCounter(),
	}
	if cfg.Registry != nil {
		cfg.Registry.Register("engine/heap/size", d.heapSize)
		cfg.Registry.Register("sched/tasks/ready", d.readyTasks)
		cfg.Registry.Register("chain/reorg/depth", d.reorgDepth)
		cfg.Registry.Register("chain/blocks/mined", d.minedCount)
		cfg.Registry.Register("chain/blocks/credited", d.creditCount)
	}
	d.lastReport = d.clock.Now()
	return d
}

// Step runs exactly one iteration of spec.md §4.7's driver loop body:
// drain all runnable tasks, then (if the heap isn't already empty) prune
// if warranted and dispatch the earliest event. It reports more=false
// once the heap is empty, meaning the simulation has quiesced.
func (d *Driver) Step() (more bool, err error) {
	for d.sched.RunOne() {
	}
	d.readyTasks.Update(int64(d.sched.ReadyLen()))
	d.heapSize.Update(float64(d.eng.Len()))

	if d.eng.Len() == 0 {
		return false, nil
	}

	if d.chain.NBlock() > d.pruneWatermark {
		d.prune()
	}

	id, ok := d.eng.Pop()
	if !ok {
		return false, nil
	}
	ev := *d.eng.Get(id)
	d.world.SetNow(ev.Time)
	d.log.Trace("dispatch", "event", id, "time", ev.Time)
	ev.Notify(d.eng, id)

	d.processed++
	if d.progressEvery > 0 && d.processed%d.progressEvery == 0 {
		now := d.clock.Now()
		elapsed := time.Duration(now - d.lastReport)
		d.lastReport = now
		d.log.Info("progress", "events", d.processed, "sim_time", ev.Time, "wall", elapsed)
	}
	return true, nil
}

// prune implements spec.md §4.6 by collecting every miner's current tip
// and delegating the arena-shifting algorithm to chain.Chain.Prune; the
// credit callback and the mined/credited counters are the only things
// this package adds on top.
func (d *Driver) prune() {
	var tips []chain.BlockID
	for _, n := range d.nodes {
		if n.IsMiner() {
			tips = append(tips, n.Tip)
		}
	}
	if len(tips) == 0 {
		return
	}
	oldBase, newBase := d.chain.Prune(tips, func(miner int) {
		d.nodes[miner].Credit++
		d.creditCount.Inc(1)
	})
	d.log.Debug("pruned", "oldBase", oldBase, "newBase", newBase, "nblock", d.chain.NBlock())
}

// ReorgObserved feeds a freshly computed reorg depth into the driver's
// histogram; internal/node calls this through World so internal/chain
// and internal/node stay unaware of internal/driver's existence (no
// import cycle).
func (d *Driver) ReorgObserved(depth int) {
	d.reorgDepth.Update(int64(depth))
}

// MinedObserved records a successful mining completion.
func (d *Driver) MinedObserved() {
	d.minedCount.Inc(1)
}
