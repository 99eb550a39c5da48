// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package aru implements an embeddable engine that serializes
// caller-supplied callbacks against a logical shared object with
// reader/writer semantics, without requiring callers to hold a lock
// around the object themselves.
//
// Callers submit updates (mutually exclusive with everything else) and
// reads (may run concurrently with other reads, but wait for every prior
// update). Work runs synchronously, inline, on whichever caller goroutine
// happens to discover it has become eligible; there is no dedicated
// worker pool, and ordering follows submission order.
package aru

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/immutable"
	"github.com/go-kit/log"
	"github.com/joeycumines/go-catrate"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreamsxin/aru/internal/gate"
)

// Engine is the serialization primitive. The zero value is not usable;
// construct one with New.
type Engine struct {
	head atomic.Pointer[node]
	tail *gate.Gate

	tailMove atomic.Bool
	tailInit atomic.Bool

	closed  atomic.Bool
	pending atomic.Int64

	nextSegID atomic.Uint64

	logger       log.Logger
	reg          prometheus.Registerer
	metrics      *engineMetrics
	limiter      *catrate.Limiter
	limiterRates map[time.Duration]int
	maxPending   int64

	debugMu  sync.Mutex
	segments *immutable.SortedMap[uint64, SegmentInfo]
}

// New constructs a ready-to-use, empty Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger:       log.NewNopLogger(),
		limiterRates: map[time.Duration]int{time.Second: 1},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.metrics = newEngineMetrics(e.reg)
	e.limiter = catrate.NewLimiter(e.limiterRates)
	e.tail = gate.New()
	e.segments = &immutable.SortedMap[uint64, SegmentInfo]{}
	return e
}

// SubmitUpdate submits fn as an update: it will run exclusive of every
// other submitted update or read, in submission order. If status is
// non-nil, the engine writes StatusPending to it immediately and
// StatusDone once fn has returned.
func (e *Engine) SubmitUpdate(status *Status, fn func(any), arg any) {
	e.submit(kindUpdate, status, fn, arg)
}

// SubmitRead submits fn as a read: it may run concurrently with other
// reads, but only after every update submitted before it has completed.
// If status is non-nil, the engine writes StatusPending to it immediately
// and StatusDone once fn has returned.
func (e *Engine) SubmitRead(status *Status, fn func(any), arg any) {
	e.submit(kindRead, status, fn, arg)
}

func (e *Engine) submit(kind nodeKind, status *Status, fn func(any), arg any) {
	if e.closed.Load() {
		e.logSubmitAfterClose()
		return
	}
	if e.maxPending > 0 && e.pending.Load() >= e.maxPending {
		e.logAllocFailure()
		return
	}

	n := &node{callback: fn, arg: arg, statusOut: status, kind: kind}
	if status != nil {
		atomic.StoreUint32(status, StatusPending)
	}
	e.pending.Add(1)
	e.metrics.submitted.WithLabelValues(kind.String()).Inc()
	e.metrics.pendingNodes.Set(float64(e.pending.Load()))

	// Acquiring the tail-move right before the head-swap, with the full
	// fence sync/atomic's Swap itself provides, is what elects at most one
	// submitter per round as the tail mover: the submitter that swaps this
	// flag from false to true is the only one allowed to attempt a tail
	// advance until it clears the flag again at the end of its submission.
	wonTailMove := !e.tailMove.Swap(true)

	prevHead := e.head.Swap(n)
	if prevHead == nil {
		// The very first submission on a fresh engine: there is nothing to
		// link back to, and no tail segment has ever been installed. This
		// is the one place the engine creates a segment without holding
		// the tail-move right, because nobody else could possibly be
		// racing it here.
		e.tail.Install(e.newSegmentFor(n))
		e.tailInit.Store(true)
	} else {
		n.prev = prevHead
		prevHead.next.Store(n)
		// A second or later submitter may run ahead of the very first
		// submitter's own segment install above. It must wait, or it
		// would acquire a gate that has never had anything installed.
		for !e.tailInit.Load() {
			runtime.Gosched()
		}
	}

	ref := e.tail.Acquire()
	seg := ref.Version().(*segment)
	e.executeFromTail(seg, wonTailMove, n)
	e.tail.Release(ref)

	if wonTailMove {
		e.tailMove.Store(false)
	}
}

// executeFromTail runs the traversal described in the engine's component
// design: starting at the segment's tail-node, it executes every
// currently-eligible node it finds, stopping the instant it meets one that
// is not yet eligible. If it was this goroutine's turn to move the tail
// (wonTailMove) and the traversal advanced past at least one node, it
// installs a new tail segment bounded by the last node visited.
//
// inserted identifies the node this call's own submit just published, so
// the traversal knows when it has caught up to the fresh end of the log
// and a nil forward pointer means "nothing here yet" rather than "wait for
// it to appear". Sync passes nil: with no freshly-inserted node of its
// own, a nil forward pointer always means the current tip.
func (e *Engine) executeFromTail(seg *segment, wonTailMove bool, inserted *node) {
	cur := seg.tail
	prev := cur
	reachedInsertionPoint := inserted == nil

	for cur != nil {
		if !cur.isDone() {
			if !dependencyReady(cur, seg.tail) {
				break
			}
			if cur.tryClaim() {
				cur.callback(cur.arg)
				cur.markDone()
				e.metrics.executed.WithLabelValues(cur.kind.String()).Inc()
			} else {
				e.metrics.trylockMiss.Inc()
			}
		}

		if !reachedInsertionPoint && cur == inserted {
			reachedInsertionPoint = true
		}

		if reachedInsertionPoint {
			prev = cur
			cur = cur.next.Load()
			continue
		}

		// cur precedes our own insertion point, so some other submitter's
		// head-swap has already happened and its write of cur's forward
		// link is imminent; a nil forward pointer here is a narrow race window,
		// not the tip of the log.
		for cur.next.Load() == nil {
			runtime.Gosched()
		}
		prev = cur
		cur = cur.next.Load()
	}

	if wonTailMove && prev != seg.tail {
		e.advanceTail(seg, prev)
	}
}

// advanceTail installs a new tail segment bounded by boundary, the last
// node the caller's traversal advanced past, and retires seg.
func (e *Engine) advanceTail(seg *segment, boundary *node) {
	ns := e.newSegmentFor(boundary)
	ns.back.p.Store(&segBack{prev: seg})
	seg.fwd.Store(ns)
	e.tail.Install(ns)
	// Safe to set even though seg may already be retired: this goroutine
	// is still holding its own acquired reference on seg (released only
	// after this call returns), so seg's destructor cannot have run yet.
	seg.head.Store(boundary.prev)
	e.metrics.tailAdvances.Inc()
}

func (e *Engine) newSegmentFor(tail *node) *segment {
	s := newSegment(tail)
	s.id = e.nextSegID.Add(1)
	s.createdAt = time.Now()
	s.engine = e
	e.recordSegment(s)
	return s
}

// Sync drives one pass of the execute-from-tail traversal on the calling
// goroutine, without attempting a tail advance. It is useful for a
// goroutine that has no work of its own to submit but wants to help drain
// whatever is currently eligible, or that wants a best-effort bound on
// how stale its view of completed work can be.
func (e *Engine) Sync() error {
	if e.closed.Load() {
		return ErrClosed
	}
	ref := e.tail.Acquire()
	if ref == nil {
		return nil
	}
	seg := ref.Version().(*segment)
	e.executeFromTail(seg, false, nil)
	e.tail.Release(ref)
	return nil
}

// Close marks the engine closed; further SubmitUpdate/SubmitRead calls are
// dropped and logged rather than panicking. Close does not wait for
// in-flight work: calling it while any submitted node is not yet DONE is
// a precondition violation the engine does not detect.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	if p := e.pending.Load(); p > 0 {
		e.logQuiescenceWarning(p)
	}
	return nil
}
