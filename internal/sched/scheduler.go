package sched

import (
	"errors"
	"unsafe"

	"github.com/ethereum/go-ethereum/log"
)

// Channel is an opaque wait-rendezvous identity. Equality is address
// equality; the value is never dereferenced (mirrors protothread.h's
// comment on pt_thread_s.channel: "if waiting (never dereferenced)").
// Callers typically pass the address of one of their own struct fields,
// e.g. Channel(unsafe.Pointer(&node.QHead)).
type Channel = unsafe.Pointer

// nwait is the number of wait-queue hash buckets, a power of two, matching
// PT_NWAIT in protothread.h.
const nwait = 1 << 16

// ErrNotScheduled is returned by Scheduler.Kill when the target task is
// currently on no queue (neither ready nor waiting) — spec.md §7.
var ErrNotScheduled = errors.New("sched: task is not scheduled")

// Status is the value an Entry function returns to tell the scheduler
// whether the task suspended (Wait) or finished for good (Done).
type Status int

const (
	// Wait means the task suspended itself via Wait/Yield and must be
	// resumed later at the point of suspension.
	Wait Status = iota
	// Done means the task has completed and must never be resumed again.
	Done
)

// Entry is a resumable task body. Per spec.md §4.2 "Resumable entry
// convention", an Entry is expected to pick up where it left off on each
// call; this port uses an explicit per-task state field (see node.Node)
// rather than the computed-goto trick protothread.h uses in C.
type Entry func(env interface{}) Status

// Thread is one scheduled task's bookkeeping record (pt_thread_s in the
// C original). It is always embedded in, or referenced by, the caller's
// own task struct.
type Thread struct {
	next    *Thread // intrusive link in the ready list or a wait bucket
	entry   Entry
	env     interface{}
	channel Channel // non-nil while on a wait queue
	atexit  func(env interface{})
	s       *Scheduler
}

// Scheduler is the single-threaded, non-preemptive dispatcher described in
// spec.md §4.2. Exactly one task is "running" at a time; every other task
// is either on the ready list or on exactly one wait bucket.
type Scheduler struct {
	ready        threadList
	wait         [nwait]threadList
	running      *Thread
	readyFunc    func(env interface{})
	readyFuncEnv interface{}
	log          log.Logger
}

// New constructs an empty Scheduler that logs through logger (SPEC_FULL.md
// §4.8: taken as a constructor argument, not a package-global, so
// multiple Schedulers in one process don't interleave log context). A
// nil logger is replaced with the root logger.
func New(logger log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Root()
	}
	return &Scheduler{log: logger}
}

// bucket returns the wait list for a channel, hashed the same way
// pt_get_wait_list does: (addr>>4) & (nwait-1).
func (s *Scheduler) bucket(ch Channel) *threadList {
	idx := (uintptr(ch) >> 4) & (nwait - 1)
	return &s.wait[idx]
}

// addReady links t onto the ready list, invoking the ready callback first
// if this transition is from completely idle (spec.md §4.2: "invoked
// whenever a task transitions ready AND the queue was previously empty
// AND no task is currently running"). Re-entrancy caution: the callback
// typically arranges for Scheduler.RunOne to be invoked again later (e.g.
// from an external event loop); it must not call RunOne synchronously
// from within itself while a task is running, since RunOne asserts no
// task is currently running.
func (s *Scheduler) addReady(t *Thread) {
	if s.readyFunc != nil && s.ready.empty() && s.running == nil {
		s.readyFunc(s.readyFuncEnv)
	}
	s.ready.linkNewest(t)
}

// Create registers a new task and places it on the ready list. thread is
// typically a field embedded in the caller's own task struct; env is
// passed to entry on every invocation.
func (s *Scheduler) Create(thread *Thread, entry Entry, env interface{}) {
	thread.entry = entry
	thread.env = env
	thread.channel = nil
	thread.s = s
	thread.next = nil
	s.addReady(thread)
}

// SetAtExit registers a function invoked once, when Kill removes thread.
func (s *Scheduler) SetAtExit(thread *Thread, f func(env interface{})) {
	thread.atexit = f
}

// SetReadyCallback installs a callback invoked when a task becomes ready
// and the ready queue was empty and nothing is running. Optional; a typical
// external driver uses it to reschedule itself. The callback fires at most
// once per idle->ready transition — it is the caller's job to re-arm
// whatever mechanism calls back into RunOne (spec.md §9 "ready_function
// re-entrancy").
func (s *Scheduler) SetReadyCallback(f func(env interface{}), env interface{}) {
	s.readyFunc = f
	s.readyFuncEnv = env
}

// RunOne dequeues the oldest ready task and runs it until it suspends or
// completes. Precondition: no task is currently running. Returns true if
// more ready tasks remain after this one yielded or completed.
func (s *Scheduler) RunOne() bool {
	if s.running != nil {
		panic("sched: RunOne called while a task is already running")
	}
	if s.ready.empty() {
		return false
	}
	t := s.ready.unlinkOldest()
	s.running = t
	status := t.entry(t.env)
	s.running = nil
	if status == Done {
		// Not returned to any queue; the caller's struct becomes
		// garbage once it drops its own reference.
		return !s.ready.empty()
	}
	return !s.ready.empty()
}

// enqueueWait backs Wait: it puts the running task on channel's wait
// bucket. enqueueYield backs Yield: it puts the running task straight back
// on the ready list.
func (s *Scheduler) enqueueWait(t *Thread, channel Channel) {
	if s.running != t {
		panic("sched: Wait/Yield called from a task that is not running")
	}
	t.channel = channel
	s.bucket(channel).linkNewest(t)
}

func (s *Scheduler) enqueueYield(t *Thread) {
	if s.running != t {
		panic("sched: Yield called from a task that is not running")
	}
	s.addReady(t)
}

// Wait suspends the currently running task on channel. Only callable from
// within that task's own Entry (via its thread handle).
func (s *Scheduler) Wait(thread *Thread, channel Channel) {
	s.enqueueWait(thread, channel)
}

// Yield suspends the currently running task and re-enters it onto the
// ready list directly (no channel).
func (s *Scheduler) Yield(thread *Thread) {
	s.enqueueYield(thread)
}

// Signal wakes the single oldest task waiting on channel, if any.
func (s *Scheduler) Signal(channel Channel) {
	s.wake(channel, true)
}

// Broadcast wakes every task waiting on channel, in insertion (oldest
// first) order.
func (s *Scheduler) Broadcast(channel Channel) {
	s.wake(channel, false)
}

func (s *Scheduler) wake(channel Channel, one bool) {
	wq := s.bucket(channel)
	if wq.empty() {
		return
	}
	prev := wq.head
	for {
		t := prev.next
		if t.channel != channel {
			// Different channel sharing this bucket; skip over it.
			prev = t
			if prev == wq.head {
				return
			}
			continue
		}
		wq.unlink(prev)
		t.channel = nil
		s.addReady(t)
		if one {
			return
		}
		if wq.empty() {
			return
		}
		// prev may now be stale if we just unlinked the bucket's
		// head predecessor; restart the scan from the new head.
		prev = wq.head
	}
}

// Kill administratively removes thread from whichever queue holds it
// (ready or a wait bucket) and invokes its at-exit hook, if any. It must
// not be called on the currently running task. Returns ErrNotScheduled if
// thread is on neither queue.
func (s *Scheduler) Kill(thread *Thread) error {
	if s.running == thread {
		panic("sched: Kill called on the running task")
	}
	if !s.ready.findAndUnlink(thread) {
		if thread.channel == nil || !s.bucket(thread.channel).findAndUnlink(thread) {
			return ErrNotScheduled
		}
	}
	thread.channel = nil
	if thread.atexit != nil {
		thread.atexit(thread.env)
	}
	s.log.Trace("killed task")
	return nil
}

// Running reports the currently running task's thread, or nil.
func (s *Scheduler) Running() *Thread {
	return s.running
}

// ReadyLen reports the number of ready tasks, for metrics/testing only.
func (s *Scheduler) ReadyLen() int {
	n := 0
	if !s.ready.empty() {
		n = 1
		for t := s.ready.head.next; t != s.ready.head; t = t.next {
			n++
		}
	}
	return n
}
