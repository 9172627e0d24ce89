package node

import "github.com/larryruane/minesim/internal/engine"

// relayNotify is the NotifyFunc for every NewBlockMsg event (spec.md
// §4.7/§4.5): enqueue it onto the target node's input queue and signal
// that node's qhead wait channel, waking it if it was suspended there.
// It never frees id itself — the receiving node's handle does that once
// it has read the payload, per spec.md §9's ownership rule.
func relayNotify(e *engine.Engine, id engine.EventID) {
	w := e.Ctx.(*World)
	msg := e.Get(id).Payload.(engine.NewBlockMsg)
	target := w.Nodes[msg.NI]
	target.enqueue(w, id)
	w.Sched.Signal(target.qheadChannel())
}

// delayNotify is the NotifyFunc for Delay events (spec.md §4.5 "delay
// macro"): it merely signals the sleeping node's delay channel. The
// event itself is freed by the waiter after it wakes and confirms the
// event is no longer pending, not here.
func delayNotify(e *engine.Engine, id engine.EventID) {
	w := e.Ctx.(*World)
	msg := e.Get(id).Payload.(engine.Delay)
	target := w.Nodes[msg.NI]
	w.Sched.Signal(target.delayChannel())
}

// startDelay arms a t-second wake-up (spec.md §4.5 "delay macro"): it
// allocates and posts the Delay event and marks the task as sleeping.
// The actual suspension happens back in run's loop, which must be the
// next thing this task's Entry does after calling startDelay — this
// port has no way to suspend from a nested call the way the C original's
// computed-goto wait() can, so startDelay only arms the state and the
// caller must return up to run immediately. It is not exercised by the
// core mining path (startMining schedules directly via the heap instead)
// but is kept as a general-purpose primitive for any node behavior built
// on top of this package, exactly as the teacher spec names it.
func (n *Node) startDelay(w *World, t float64) {
	n.DelayEvent = w.Eng.Alloc()
	*w.Eng.Get(n.DelayEvent) = engine.Event{
		Notify:  delayNotify,
		Payload: engine.Delay{NI: n.Index},
	}
	w.Eng.Post(n.DelayEvent, w.Now()+t)
	n.sleeping = true
}
