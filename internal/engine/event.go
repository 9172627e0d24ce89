// Package engine implements the simulator's discrete-event arena and
// min-heap: an index-addressed pool of events with a freelist (so cross
// references are stable indices, never pointers, per spec.md §9 "Arenas +
// indices, not pointers"), ordered by absolute firing time. It is
// grounded directly on original_source/sim.c's event_alloc/event_post/
// event_free/heap_add/heap_pop.
package engine

import (
	"github.com/ethereum/go-ethereum/log"

	"github.com/larryruane/minesim/internal/chain"
)

// EventID indexes into an Engine's arena. NoEvent is never a valid id.
type EventID int

// NoEvent is the sentinel "no event" id, used for empty queue heads and
// the end of the freelist.
const NoEvent EventID = -1

// NotifyFunc is invoked by the driver when an event is popped off the
// heap (spec.md §4.7: "invoke the event's notify function"). It receives
// the firing event's id so the callback can inspect its Payload via
// Engine.Get.
type NotifyFunc func(e *Engine, id EventID)

// Payload is the event-specific data. The two variants below are exactly
// spec.md §3's Event payload variants.
type Payload interface {
	isPayload()
}

// Delay is a one-shot timer for node NI's delay channel (spec.md §4.5
// "delay macro").
type Delay struct {
	NI int
}

func (Delay) isPayload() {}

// NewBlockMsg is either a mining completion (Mining=true, recipient is
// the miner) or a peer delivery of BlockID to node NI (spec.md §3).
type NewBlockMsg struct {
	NI      int
	Mining  bool
	BlockID chain.BlockID
}

func (NewBlockMsg) isPayload() {}

// Event is one arena slot. Next is intrusive: it threads the arena
// freelist while the event is free, and threads a node's input queue
// while the event has been delivered there (spec.md §3: "never both").
type Event struct {
	Time    float64
	Notify  NotifyFunc
	Next    EventID
	Payload Payload
}

// Engine owns the event arena and the time-ordered heap over it.
type Engine struct {
	events []Event
	free   EventID

	heap []EventID

	// Ctx is an opaque handle the driver's owner stashes here so that
	// NotifyFunc callbacks — which only ever receive (*Engine, EventID) —
	// can reach the rest of the simulator (scheduler, chain, node table)
	// without this package importing anything above it. Engine never
	// reads it itself.
	Ctx interface{}

	log log.Logger
}

// New constructs an empty Engine that logs arena growth through logger
// (SPEC_FULL.md §4.8). A nil logger is replaced with the root logger.
func New(logger log.Logger) *Engine {
	if logger == nil {
		logger = log.Root()
	}
	return &Engine{free: NoEvent, log: logger}
}

// grow doubles the arena (from a minimum of 1) and threads the new slots
// onto the freelist, mirroring sim.c's event_alloc reallocation branch.
func (e *Engine) grow() {
	oldCap := len(e.events)
	newCap := oldCap * 2
	if newCap == 0 {
		newCap = 1
	}
	grown := make([]Event, newCap)
	copy(grown, e.events)
	for i := oldCap; i < newCap; i++ {
		next := EventID(i + 1)
		if i == newCap-1 {
			next = e.free
		}
		grown[i] = Event{Next: next}
	}
	e.events = grown
	e.free = EventID(oldCap)
	e.log.Trace("event arena grown", "from", oldCap, "to", newCap)
}

// Alloc returns a fresh event id, growing the arena if the freelist is
// exhausted.
func (e *Engine) Alloc() EventID {
	if e.free == NoEvent {
		e.grow()
	}
	id := e.free
	e.free = e.events[id].Next
	return id
}

// Free zeroes the event record and returns it to the freelist.
func (e *Engine) Free(id EventID) {
	e.events[id] = Event{Next: e.free}
	e.free = id
}

// Get returns a pointer to the event record for id. The caller must not
// retain this pointer across an Alloc/grow call (spec.md §9: arenas may
// be reallocated; reference by index instead).
func (e *Engine) Get(id EventID) *Event {
	return &e.events[id]
}

// Pending reports whether id's event has not yet fired as of currentTime
// (spec.md §3: "pending iff its time > current_time").
func (e *Engine) Pending(id EventID, currentTime float64) bool {
	return e.events[id].Time > currentTime
}

// Post sets id's firing time and inserts it into the heap. This port
// always heap-inserts (see SPEC_FULL.md §9's resolution of the
// event_post skip-heap open question), so Pending is a plain comparison
// with no special case for events whose time has already passed.
func (e *Engine) Post(id EventID, time float64) {
	e.events[id].Time = time
	e.heapAdd(id)
}

// Len reports the number of entries currently on the heap.
func (e *Engine) Len() int {
	return len(e.heap)
}
