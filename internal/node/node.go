package node

import (
	"unsafe"

	"github.com/larryruane/minesim/internal/chain"
	"github.com/larryruane/minesim/internal/engine"
	"github.com/larryruane/minesim/internal/sched"
)

// Peer is one outbound connection: node Peers[i].NI is reachable with
// one-way latency Peers[i].Delay seconds (spec.md §3 "Peer graph").
type Peer struct {
	NI    int
	Delay float64
}

// Node is one long-lived cooperative task per spec.md §3's Node type.
type Node struct {
	Thread sched.Thread

	world *World

	Index    int
	Hashrate float64
	Tip      chain.BlockID

	// QHead is the head of this node's input queue: either
	// engine.NoEvent or the id of the oldest undelivered event, linked
	// through Event.Next (spec.md §3).
	QHead      engine.EventID
	tail       engine.EventID
	DelayEvent engine.EventID

	Mined  int
	Credit int

	Peers []Peer

	started bool
	// sleeping is true between a call to startDelay and the delay
	// event's actual firing time; run checks it ahead of QHead on every
	// resumption, since a task can only ever suspend at the top of its
	// own loop, never mid-handler (spec.md §4.5 "delay macro").
	sleeping bool
}

// IsMiner reports whether this node has any hashrate.
func (n *Node) IsMiner() bool { return n.Hashrate > 0 }

// New constructs a node and registers its task with the scheduler, ready
// to run its setup phase. w must outlive the node.
func New(w *World, index int, hashrate float64) *Node {
	n := &Node{
		world:      w,
		Index:      index,
		Hashrate:   hashrate,
		QHead:      engine.NoEvent,
		tail:       engine.NoEvent,
		DelayEvent: engine.NoEvent,
	}
	w.Sched.Create(&n.Thread, n.run, w)
	return n
}

func (n *Node) qheadChannel() sched.Channel {
	return sched.Channel(unsafe.Pointer(&n.QHead))
}

func (n *Node) delayChannel() sched.Channel {
	return sched.Channel(unsafe.Pointer(&n.DelayEvent))
}

// run is the node's resumable task body (spec.md §4.5). Because every
// suspension point is checked at the top of this loop and everything the
// task needs to remember across a suspension already lives in Node's own
// fields, resuming is just re-entering this function and re-checking
// state — no extra state-machine bookkeeping beyond "has setup run yet"
// and "am I sleeping on a delay". A task can only suspend here, at the
// top of the loop, never from inside handle: that mirrors the C
// original's computed-goto resume points, which are likewise confined to
// the macro-expanded wait() call sites, not arbitrary call depths.
func (n *Node) run(env interface{}) sched.Status {
	w := env.(*World)
	if !n.started {
		n.started = true
		n.setup(w)
	}
	for {
		if n.sleeping {
			if w.Eng.Pending(n.DelayEvent, w.Now()) {
				w.Sched.Wait(&n.Thread, n.delayChannel())
				return sched.Wait
			}
			w.Eng.Free(n.DelayEvent)
			n.DelayEvent = engine.NoEvent
			n.sleeping = false
			continue
		}
		if n.QHead == engine.NoEvent {
			w.Sched.Wait(&n.Thread, n.qheadChannel())
			return sched.Wait
		}
		id := n.dequeue(w)
		n.handle(w, id)
	}
}

// dequeue unlinks and returns the oldest event on this node's input
// queue. QHead always names the oldest event and enqueue appends new
// arrivals at the tail, so the next event to process is QHead and the
// one after it is reached through Event.Next.
func (n *Node) dequeue(w *World) engine.EventID {
	id := n.QHead
	n.QHead = w.Eng.Get(id).Next
	return id
}

// enqueue appends id to the tail of this node's input queue. Unlike the
// scheduler's intrusive newest-at-head list, the input queue is a plain
// FIFO threaded through Event.Next with an O(1) tail pointer, since
// arrival order (not a "newest" concept) is all that matters here.
func (n *Node) enqueue(w *World, id engine.EventID) {
	w.Eng.Get(id).Next = engine.NoEvent
	if n.QHead == engine.NoEvent {
		n.QHead = id
		n.tail = id
		return
	}
	w.Eng.Get(n.tail).Next = id
	n.tail = id
}
