// Package simulation is the library-shaped facade spec.md §6 describes:
// it owns construction of every other package's state into one value,
// exposes Step/Run/Stats, and publishes an event.Feed of chain events for
// external observers. It is grounded on LarryRuane-minesim/minesim.go's
// init()+main() wiring (network file parsing, g struct construction,
// start-all-miners loop, final stats printout), generalized away from a
// single global g and a static network file into an explicit, repeatable
// constructor per SPEC_FULL.md §4.12.
package simulation

import "math/rand"

// Config carries every item in spec.md §6's "Configuration" table.
type Config struct {
	// NodeCount is the total number of nodes; must be even (spec.md §6).
	NodeCount int
	// OutboundPeers is the number of outbound connections each node
	// attempts during peer-graph construction.
	OutboundPeers int
	// NPeer is the peer-table capacity per node.
	NPeer int
	// BlockInterval is the average time between blocks, in the
	// simulation's arbitrary virtual time unit (seconds work well).
	BlockInterval float64
	// HopDelayMillis is the per-distance-unit relay delay.
	HopDelayMillis float64
	// PruneWatermark is the block-count threshold that triggers pruning.
	PruneWatermark int
	// MinerSelection returns node ni's hashrate; 0 means "not a miner".
	// If nil, DefaultMinerSelection is used.
	MinerSelection func(ni int) float64
	// RNGSeed seeds the deterministic stream consumed by every
	// randrange/poisson draw. The zero value is itself a valid,
	// reproducible seed (matching math/rand's own default stream) — there
	// is no "unset" sentinel distinct from 0, by design (spec.md §6:
	// "rng_seed — deterministic seed"; wall-clock seeding, if wanted, is
	// cmd/minesim's job, not this package's).
	RNGSeed int64

	// ProgressEvery, if > 0, makes internal/driver log.Info a progress
	// line every ProgressEvery dispatched events (SPEC_FULL.md §4.8).
	// Zero disables periodic progress logging.
	ProgressEvery int
}

// DefaultMinerSelection implements spec.md §6's default predicate: node 0
// is always a miner; every other node is a miner with hashrate 1 with
// probability 1/3000, and otherwise has no hashrate at all. It closes
// over r, so every call consumes one uniform draw (except node 0, which
// short-circuits without touching the RNG at all).
func DefaultMinerSelection(r *rand.Rand) func(ni int) float64 {
	return func(ni int) float64 {
		if ni == 0 {
			return 1
		}
		if r.Float64() < 1.0/3000.0 {
			return 1
		}
		return 0
	}
}

// DefaultConfig returns spec.md §6's defaults verbatim. MinerSelection is
// left nil here; New fills it in once the RNG exists, since the default
// predicate itself consumes RNG draws.
func DefaultConfig() Config {
	return Config{
		NodeCount:      1 << 15,
		OutboundPeers:  2,
		NPeer:          100,
		BlockInterval:  300,
		HopDelayMillis: 100,
		PruneWatermark: 1000,
		ProgressEvery:  10000,
	}
}

