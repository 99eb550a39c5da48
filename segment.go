// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package aru

import (
	"sync/atomic"
	"time"
)

// segBack is a segment's back pointer together with its one-bit released
// marker, updated as a single unit behind a CAS loop. This stands in for
// the packed-pointer trick of stuffing a bit into the pointer itself: Go
// gives us no safe way to do that outside the runtime package, and the
// engine's own design notes license exactly this substitution.
type segBack struct {
	prev     *segment
	released bool
}

// segment is a gate.Version delimiting a contiguous, now-immutable prefix
// of the log. It owns the right to free the nodes in that prefix once it
// has itself been retired and every acquired reference to it has been
// given back.
type segment struct {
	// tail is the oldest node this segment is responsible for freeing.
	// Set at construction, never changed again.
	tail *node

	// head is the newest node this segment is responsible for freeing. It
	// stays nil for as long as this is the currently-installed segment,
	// and is set once, right after a successor segment has been
	// installed in its place.
	head atomic.Pointer[node]

	back segAtomicBack
	fwd  atomic.Pointer[segment]

	id        uint64
	createdAt time.Time
	engine    *Engine
}

// segAtomicBack is a tiny atomic.Pointer[segBack] wrapper so call sites
// read like they're mutating a {pointer, bool} pair rather than swapping
// whole records.
type segAtomicBack struct {
	p atomic.Pointer[segBack]
}

func newSegment(tail *node) *segment {
	s := &segment{tail: tail}
	s.back.p.Store(&segBack{})
	return s
}

// markReleasedAndCheckPredecessor sets this segment's released bit and
// reports whether its predecessor had already been freed (prev == nil) by
// the time it did so.
func (s *segment) markReleasedAndCheckPredecessor() (predecessorFreed bool) {
	for {
		old := s.back.p.Load()
		if old.released {
			return old.prev == nil
		}
		next := &segBack{prev: old.prev, released: true}
		if s.back.p.CompareAndSwap(old, next) {
			return old.prev == nil
		}
	}
}

// detachFromPredecessorOrJoinChain is called by a just-freed predecessor on
// its successor. It reports whether the caller should continue the
// reclamation chain into s itself, which happens only if s's own refcount
// had already reached zero (its released bit is already set) by the time
// the predecessor got here.
func (s *segment) detachFromPredecessorOrJoinChain() (shouldJoinChain bool) {
	for {
		old := s.back.p.Load()
		if old.released {
			return true
		}
		next := &segBack{prev: nil, released: false}
		if s.back.p.CompareAndSwap(old, next) {
			return false
		}
	}
}

// Release implements gate.Version. It runs exactly once, the instant this
// segment has both been superseded and had its last acquired reference
// given back. It frees this segment's node range and then walks forward,
// chaining into any successor that turns out to have already been
// released too.
func (s *segment) Release() {
	cur := s
	for {
		if !cur.markReleasedAndCheckPredecessor() {
			// Our predecessor hasn't freed its own range yet; its Release
			// will chain forward into us when it does.
			return
		}

		cur.freeNodes()
		if cur.engine != nil {
			cur.engine.forgetSegment(cur)
		}

		succ := cur.fwd.Load()
		if succ == nil {
			return
		}
		if !succ.detachFromPredecessorOrJoinChain() {
			return
		}
		cur = succ
	}
}

// freeNodes drops every node reference in [tail, head] so the garbage
// collector can reclaim them, and breaks the prev/next cycle between
// adjacent nodes along the way.
func (s *segment) freeNodes() {
	head := s.head.Load()
	n := s.tail
	for n != nil {
		next := n.next.Load()
		done := n == head
		n.prev = nil
		n.callback = nil
		n.arg = nil
		if s.engine != nil {
			s.engine.metrics.nodesFreed.Inc()
			remaining := s.engine.pending.Add(-1)
			s.engine.metrics.pendingNodes.Set(float64(remaining))
		}
		if done || head == nil {
			return
		}
		n = next
	}
}
