package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larryruane/minesim/internal/chain"
)

func noopNotify(e *Engine, id EventID) {}

func TestAllocFreeRoundTrip(t *testing.T) {
	e := New(nil)
	a := e.Alloc()
	b := e.Alloc()
	assert.NotEqual(t, a, b)
	e.Free(a)
	c := e.Alloc()
	assert.Equal(t, a, c, "freeing then allocating should reuse the freed slot")
	_ = b
}

func TestArenaGrowsPastInitialCapacity(t *testing.T) {
	e := New(nil)
	ids := make([]EventID, 0, 10)
	for i := 0; i < 10; i++ {
		ids = append(ids, e.Alloc())
	}
	seen := make(map[EventID]bool)
	for _, id := range ids {
		assert.False(t, seen[id], "arena growth must not hand out the same id twice")
		seen[id] = true
	}
}

func TestPopReturnsEarliestFiringEvent(t *testing.T) {
	e := New(nil)
	times := []float64{5, 1, 3, 2, 4}
	for _, tm := range times {
		id := e.Alloc()
		e.Get(id).Notify = noopNotify
		e.Post(id, tm)
	}
	var popped []float64
	for e.Len() > 0 {
		id, ok := e.Pop()
		require.True(t, ok)
		popped = append(popped, e.Get(id).Time)
	}
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, popped)
}

func TestPopOnEmptyHeapReportsFalse(t *testing.T) {
	e := New(nil)
	_, ok := e.Pop()
	assert.False(t, ok)
}

func TestPendingReflectsCurrentTime(t *testing.T) {
	e := New(nil)
	id := e.Alloc()
	e.Post(id, 10)
	assert.True(t, e.Pending(id, 5))
	assert.False(t, e.Pending(id, 10))
	assert.False(t, e.Pending(id, 15))
}

func TestNewBlockMsgPayloadRoundTrip(t *testing.T) {
	e := New(nil)
	id := e.Alloc()
	*e.Get(id) = Event{
		Notify:  noopNotify,
		Payload: NewBlockMsg{NI: 3, Mining: true, BlockID: chain.BlockID(42)},
	}
	msg, ok := e.Get(id).Payload.(NewBlockMsg)
	require.True(t, ok)
	assert.Equal(t, 3, msg.NI)
	assert.True(t, msg.Mining)
	assert.Equal(t, chain.BlockID(42), msg.BlockID)
}
