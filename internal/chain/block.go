// Package chain implements the simulator's block arena and chain
// operations: allocation, the parent/height/miner/active bookkeeping
// described in spec.md §3, and the pruning-and-credit procedure of
// spec.md §4.6. It is grounded on LarryRuane-minesim/minesim.go's block
// type, getblock/getheight/validblock helpers, and the tips-map-driven
// prune step inlined in that teacher's main loop.
package chain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"
)

// BlockID identifies a block; genesis's parent is BlockID(0), which is
// never itself a valid id (spec.md §3: "the genesis block has parent 0").
type BlockID uint64

// Height is a block's distance from genesis. Heights are absolute, not
// relative to the arena's current base (spec.md §4.6: "getheight on still
// valid IDs remains correct").
type Height uint64

// NoMiner is the sentinel Block.Miner value used by genesis, which no
// node mined.
const NoMiner = -1

// Block is one entry in the arena. Active counts how many miners are
// currently mining directly on top of this block (spec.md §3 invariant:
// the sum of Active over all blocks equals the number of mining nodes).
type Block struct {
	Parent BlockID
	Height Height
	Miner  int
	Active int
}

// Chain owns the block arena and the small amount of global bookkeeping
// spec.md §3 groups under "Global chain state": the arena's base id, the
// count of distinct actively-mined tips, the running maximum reorg depth,
// and the sum of miner hashrates (needed by node.startMining's Poisson
// draw, but naturally owned alongside the rest of this state).
type Chain struct {
	blocks    []Block
	baseID    BlockID
	ntips     int
	maxReorg  int
	totalHash float64
	log       log.Logger
}

// Init creates the genesis block and returns a ready-to-use Chain. base
// is the arbitrary non-zero id assigned to genesis (spec.md §4.4
// "block_init... chooses a non-zero baseblockid"). logger is used for
// prune-run diagnostics (SPEC_FULL.md §4.8); a nil logger is replaced
// with the root logger, matching internal/engine and internal/sched.
func Init(base BlockID, logger log.Logger) *Chain {
	if base == 0 {
		panic("chain: base block id must be non-zero")
	}
	if logger == nil {
		logger = log.Root()
	}
	return &Chain{
		blocks: []Block{{Parent: 0, Height: 0, Miner: NoMiner, Active: 0}},
		baseID: base,
		log:    logger,
	}
}

// BaseID returns the block id of blocks[0].
func (c *Chain) BaseID() BlockID { return c.baseID }

// NBlock returns the number of blocks currently in the arena.
func (c *Chain) NBlock() int { return len(c.blocks) }

// NTips returns the number of distinct blocks with Active > 0 (spec.md §8
// invariant 4).
func (c *Chain) NTips() int { return c.ntips }

// MaxReorg returns the greatest reorg depth observed so far.
func (c *Chain) MaxReorg() int { return c.maxReorg }

// TotalHash returns the sum of all miners' hashrates added so far via
// AddHash.
func (c *Chain) TotalHash() float64 { return c.totalHash }

// AddHash adds h to the running total hashrate. simulation.New calls it
// once per node, before any node task runs, so every solve-time draw sees
// the complete total.
func (c *Chain) AddHash(h float64) { c.totalHash += h }

// ValidBlock reports whether id names a block currently in the arena
// (spec.md §4.4).
func (c *Chain) ValidBlock(id BlockID) bool {
	if id < c.baseID {
		return false
	}
	return int(id-c.baseID) < len(c.blocks)
}

// GetBlock returns a pointer to the block named by id. Precondition:
// ValidBlock(id); violating it is a ContractViolation (spec.md §7), so
// this panics rather than returning an error.
func (c *Chain) GetBlock(id BlockID) *Block {
	if !c.ValidBlock(id) {
		panic(fmt.Sprintf("chain: block id %d out of range [%d, %d)", id, c.baseID, c.baseID+BlockID(len(c.blocks))))
	}
	return &c.blocks[id-c.baseID]
}

// GetHeight is shorthand for GetBlock(id).Height.
func (c *Chain) GetHeight(id BlockID) Height {
	return c.GetBlock(id).Height
}

// Alloc appends a new block with the given parent/miner and returns its
// id. Height is computed from the parent, matching
// LarryRuane-minesim/minesim.go's "height++; g.blocks = append(...)".
// Go's append already amortizes growth the way spec.md §4.4's "growing
// the arena by doubling" intends; no separate manual growth routine is
// needed here the way the event arena (internal/engine) requires one,
// because blocks are never individually freed and reused — only bulk
// shifted by Prune.
func (c *Chain) Alloc(parent BlockID, miner int) BlockID {
	height := c.GetHeight(parent) + 1
	c.blocks = append(c.blocks, Block{Parent: parent, Height: height, Miner: miner})
	return c.baseID + BlockID(len(c.blocks)-1)
}

// StartMiningOn records that one more miner is now mining directly on
// top of tip, bumping NTips if this is the first (spec.md §4.5
// start_mining: "if it transitioned 0->1, increment ntips").
func (c *Chain) StartMiningOn(tip BlockID) {
	b := c.GetBlock(tip)
	b.Active++
	if b.Active == 1 {
		c.ntips++
	}
}

// StopMiningOn is StartMiningOn's inverse (spec.md §4.5 stop_mining).
func (c *Chain) StopMiningOn(tip BlockID) {
	b := c.GetBlock(tip)
	b.Active--
	if b.Active == 0 {
		c.ntips--
	}
}

// ReorgDepth implements the walk in spec.md §4.5: starting from the
// node's current tip (from) and the newly learned, strictly-better block
// (to), walk the better chain back to the current tip's height, then walk
// both chains in lockstep until they meet. It also folds the result into
// the running MaxReorg.
func (c *Chain) ReorgDepth(from, to BlockID) int {
	t := c.GetBlock(to)
	cur := c.GetBlock(from)
	for t.Height > cur.Height {
		t = c.GetBlock(t.Parent)
	}
	depth := 0
	for t != cur {
		depth++
		t = c.GetBlock(t.Parent)
		cur = c.GetBlock(cur.Parent)
	}
	if depth > c.maxReorg {
		c.maxReorg = depth
	}
	return depth
}

// Prune implements spec.md §4.6: given the current tip of every miner, it
// finds the oldest common ancestor, credits the miner of every block from
// that ancestor (included) back to the old base (not included) via the
// credit callback, then compacts the arena so the ancestor becomes the new
// blocks[0]. It returns the old and new base ids. Prune must only be
// called with at least one miner tip.
func (c *Chain) Prune(minerTips []BlockID, credit func(miner int)) (oldBase, newBase BlockID) {
	if len(minerTips) == 0 {
		panic("chain: Prune requires at least one miner tip")
	}
	minHeight := c.GetHeight(minerTips[0])
	for _, t := range minerTips[1:] {
		if h := c.GetHeight(t); h < minHeight {
			minHeight = h
		}
	}
	cursors := make([]BlockID, len(minerTips))
	copy(cursors, minerTips)
	for i, t := range cursors {
		for c.GetHeight(t) > minHeight {
			t = c.GetBlock(t).Parent
		}
		cursors[i] = t
	}
	for {
		allEqual := true
		for _, t := range cursors {
			if t != cursors[0] {
				allEqual = false
				break
			}
		}
		if allEqual {
			break
		}
		for i, t := range cursors {
			cursors[i] = c.GetBlock(t).Parent
		}
	}

	newBase = cursors[0]
	oldBase = c.baseID

	// Credit every block from newBase back to (but not including)
	// oldBase. Blocks before oldBase no longer exist in the arena — they
	// were credited and compacted away by an earlier Prune, or (on the
	// very first Prune) oldBase is genesis itself, so this is exactly
	// spec.md §4.6's "walk from newbaseblockid back to (but not
	// including) genesis".
	for b := newBase; b != oldBase; {
		blk := c.GetBlock(b)
		credit(blk.Miner)
		b = blk.Parent
	}

	keep := make([]Block, len(c.blocks)-int(newBase-oldBase))
	copy(keep, c.blocks[newBase-oldBase:])
	c.blocks = keep
	c.baseID = newBase
	c.log.Debug("pruned arena", "oldBase", oldBase, "newBase", newBase, "remaining", len(keep))
	return oldBase, newBase
}
