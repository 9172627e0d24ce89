// Package sched implements the simulator's cooperative task scheduler:
// a single-threaded, non-preemptive dispatcher where at most one task runs
// at a time and all suspension happens at explicit Wait/Yield call sites.
//
// The design is ported from original_source/protothread.{c,h}: an intrusive
// circular list (this file) backs both the ready queue and the per-channel
// wait queues, and pt_link/pt_unlink/pt_unlink_oldest/pt_find_and_unlink map
// directly onto linkNewest/unlink/unlinkOldest/findAndUnlink below.
package sched

// threadList is a circular singly-linked list of *Thread where the head
// field names the NEWEST element; head.next is the OLDEST. This shape
// gives O(1) link-as-newest and O(1) dequeue-oldest, matching
// protothread.h's documented layout (see spec.md §4.1).
type threadList struct {
	head *Thread
}

// linkNewest links t as the newest element of the list.
func (l *threadList) linkNewest(t *Thread) {
	if l.head != nil {
		t.next = l.head.next
		l.head.next = t
	} else {
		t.next = t
	}
	l.head = t
}

// unlink removes and returns the thread immediately following prev
// (prev == *l.head wise bookkeeping is handled internally), fixing up
// l.head if the removed element was the newest.
func (l *threadList) unlink(prev *Thread) *Thread {
	next := prev.next
	prev.next = next.next
	if next == prev {
		l.head = nil
	} else if next == l.head {
		l.head = prev
	}
	next.next = nil
	return next
}

// unlinkOldest removes and returns the oldest (last) thread in the list.
func (l *threadList) unlinkOldest() *Thread {
	return l.unlink(l.head)
}

// findAndUnlink scans the list for n and removes it, reporting whether it
// was found. O(n); used only on administrative paths (Kill).
func (l *threadList) findAndUnlink(n *Thread) bool {
	if l.head == nil {
		return false
	}
	prev := l.head
	for {
		t := prev.next
		if t == n {
			l.unlink(prev)
			return true
		}
		prev = t
		if prev == l.head {
			return false
		}
	}
}

func (l *threadList) empty() bool {
	return l.head == nil
}
