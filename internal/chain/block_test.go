package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const base BlockID = 1000

func TestInitCreatesGenesis(t *testing.T) {
	c := Init(base, nil)
	assert.Equal(t, base, c.BaseID())
	assert.Equal(t, 1, c.NBlock())
	g := c.GetBlock(base)
	assert.Equal(t, Height(0), g.Height)
	assert.Equal(t, NoMiner, g.Miner)
}

func TestAllocHeightIncrementsFromParent(t *testing.T) {
	c := Init(base, nil)
	b1 := c.Alloc(base, 0)
	b2 := c.Alloc(b1, 0)
	assert.Equal(t, Height(1), c.GetHeight(b1))
	assert.Equal(t, Height(2), c.GetHeight(b2))
}

func TestValidBlockBounds(t *testing.T) {
	c := Init(base, nil)
	b1 := c.Alloc(base, 0)
	assert.True(t, c.ValidBlock(base))
	assert.True(t, c.ValidBlock(b1))
	assert.False(t, c.ValidBlock(base-1))
	assert.False(t, c.ValidBlock(b1+100))
}

func TestStartStopMiningTracksNTips(t *testing.T) {
	c := Init(base, nil)
	c.StartMiningOn(base)
	assert.Equal(t, 1, c.NTips())
	c.StartMiningOn(base) // a second miner on the same tip
	assert.Equal(t, 1, c.NTips(), "ntips counts distinct active tips, not miners")
	c.StopMiningOn(base)
	assert.Equal(t, 1, c.NTips())
	c.StopMiningOn(base)
	assert.Equal(t, 0, c.NTips())
}

func TestReorgDepthCommonAncestor(t *testing.T) {
	c := Init(base, nil)
	// fork: base -> a1 -> a2 -> a3 (miner 0), base -> b1 -> b2 -> b3 -> b4 (miner 1)
	a1 := c.Alloc(base, 0)
	a2 := c.Alloc(a1, 0)
	a3 := c.Alloc(a2, 0)
	b1 := c.Alloc(base, 1)
	b2 := c.Alloc(b1, 1)
	b3 := c.Alloc(b2, 1)
	b4 := c.Alloc(b3, 1)
	_ = a3

	depth := c.ReorgDepth(a3, b4)
	assert.Equal(t, 3, depth)
	assert.Equal(t, 3, c.MaxReorg())
}

func TestReorgDepthZeroWhenSameChain(t *testing.T) {
	c := Init(base, nil)
	a1 := c.Alloc(base, 0)
	a2 := c.Alloc(a1, 0)
	assert.Equal(t, 0, c.ReorgDepth(a1, a2))
}

func TestPruneCreditsAndCompacts(t *testing.T) {
	c := Init(base, nil)
	var chain []BlockID
	cur := base
	for i := 0; i < 5; i++ {
		cur = c.Alloc(cur, i%2)
		chain = append(chain, cur)
	}
	newTip := chain[len(chain)-1]

	var credited []int
	oldBase, newBase := c.Prune([]BlockID{newTip}, func(miner int) {
		credited = append(credited, miner)
	})
	assert.Equal(t, base, oldBase)
	assert.Equal(t, newTip, newBase)
	assert.Equal(t, []int{0, 1, 0, 1, 0}, credited)
	assert.Equal(t, newTip, c.BaseID())
	assert.Equal(t, 1, c.NBlock(), "pruning to a single shared tip leaves only that block")
}

func TestPrunePicksOldestCommonAncestorAcrossForks(t *testing.T) {
	c := Init(base, nil)
	shared := c.Alloc(base, 0)
	a := c.Alloc(shared, 0)
	b := c.Alloc(shared, 1)

	oldBase, newBase := c.Prune([]BlockID{a, b}, func(miner int) {})
	assert.Equal(t, base, oldBase)
	assert.Equal(t, shared, newBase)
}

func TestPruneRequiresAtLeastOneTip(t *testing.T) {
	c := Init(base, nil)
	require.Panics(t, func() {
		c.Prune(nil, func(miner int) {})
	})
}

func TestGetBlockOutOfRangePanics(t *testing.T) {
	c := Init(base, nil)
	require.Panics(t, func() {
		c.GetBlock(base + 999)
	})
}
