// Package node implements the per-node cooperative task described in
// spec.md §4.5: peer-table construction, the mining lifecycle
// (start/stop/relay/switch), and stale-event discarding. It is grounded
// on LarryRuane-minesim/minesim.go's startMining/stopMining/relay and the
// reorg-depth walk in that teacher's main loop, generalized into a
// scheduler task per spec.md §4.2/§4.5 instead of being inlined into a
// flat event loop.
package node

import (
	"math"
	"math/rand"

	gethevent "github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"

	"github.com/larryruane/minesim/internal/chain"
	"github.com/larryruane/minesim/internal/engine"
	"github.com/larryruane/minesim/internal/sched"
)

// ChainEvent is sent on World.Feed for every externally interesting thing
// a node does; see SPEC_FULL.md §3/§6. It is an observability hook only —
// nothing in this package ever reads its own Feed.
type ChainEvent struct {
	// Kind is one of "mined", "reorg", or "switch".
	Kind string
	// NI is the node the event concerns.
	NI int
	// BlockID is the block mined or switched to.
	BlockID chain.BlockID
	// ReorgDepth is populated only when Kind == "reorg".
	ReorgDepth int
}

// World bundles the shared simulator state a node task needs to touch.
// It deliberately does not import the simulation package (which owns
// World's construction) to avoid an import cycle; simulation.Simulation
// builds one World and hands every node a pointer to it.
type World struct {
	Sched *sched.Scheduler
	Eng   *engine.Engine
	Chain *chain.Chain
	Rng   *rand.Rand

	BlockInterval float64

	// currentTime is the driver's current virtual time, set directly by
	// internal/driver.Driver.Step before each notify dispatch (mirrors
	// LarryRuane-minesim/minesim.go's g.currenttime field).
	currentTime float64

	// Nodes is the full node table, indexed by Node.Index. It is nil until
	// simulation.New finishes constructing every node, at which point it is
	// populated once; relay, relayNotify and delayNotify read it, and all
	// of them run after construction completes.
	Nodes []*Node

	// Feed, if non-nil, receives a ChainEvent for every mined block,
	// every reorg, and every tip switch (SPEC_FULL.md §6).
	Feed *gethevent.Feed

	Log log.Logger

	// OnMined and OnReorg, if non-nil, are invoked by the node task
	// alongside every mined block and every positive-depth reorg so that
	// internal/driver can feed its metrics.Counter/metrics.Histogram
	// without this package importing internal/driver (SPEC_FULL.md
	// §4.9). Both are optional instrumentation hooks, not control flow.
	OnMined func()
	OnReorg func(depth int)
}

// poisson draws a Poisson-distributed interval with the given average,
// the same inverse-CDF construction LarryRuane-minesim/minesim.go and
// original_source/sim.c both use.
func poisson(r *rand.Rand, average float64) float64 {
	return -math.Log(1.0-r.Float64()) * average
}

func (w *World) send(ev ChainEvent) {
	if w.Feed != nil {
		w.Feed.Send(ev)
	}
}

// Now returns the driver's current virtual time.
func (w *World) Now() float64 { return w.currentTime }

// SetNow is called by internal/driver.Driver.Step, once per dispatched
// event, to advance virtual time before invoking that event's notify
// function (spec.md §4.7 step 4: "set current_time = e.time").
func (w *World) SetNow(t float64) { w.currentTime = t }
