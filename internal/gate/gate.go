// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package gate implements a single-installer, many-acquirer versioned
// reclamation gate: a single atomically-swappable slot that readers can
// acquire a refcounted handle to, and whose previous occupant is destroyed
// exactly once, only after the last outstanding handle to it is released.
//
// It generalizes the acquire/release/finalizer pattern used for state
// snapshots, to any caller-defined Version.
package gate

import "sync/atomic"

// Version is anything that can be installed into a Gate. Release is called
// exactly once, the moment the version has both been superseded by a later
// Install and had its last acquired reference given back.
type Version interface {
	Release()
}

// Gate holds the one currently-installed Version and tracks how many
// acquired references to it are outstanding.
type Gate struct {
	cur atomic.Pointer[cell]
}

type cell struct {
	version Version
	// refs starts at 1, representing the slot's own hold on the version
	// (the "install bias"). Install removes that bias from the outgoing
	// cell once a new one takes its place. The version's Release runs the
	// instant refs drops to zero, from whichever goroutine's release call
	// does it.
	refs atomic.Int32
}

// tryAcquire increments refs unless it has already reached zero, in which
// case the version is in the process of (or has finished) being released
// and must not be resurrected.
func (c *cell) tryAcquire() bool {
	for {
		v := c.refs.Load()
		if v <= 0 {
			return false
		}
		if c.refs.CompareAndSwap(v, v+1) {
			return true
		}
	}
}

func (c *cell) put() {
	if c.refs.Add(-1) == 0 {
		c.version.Release()
	}
}

// Ref is an acquired, refcounted handle on the version that was current at
// the time of Acquire. It must be passed to Gate.Release exactly once.
type Ref struct {
	cell *cell
}

// Version returns the handle's underlying Version.
func (r *Ref) Version() Version {
	return r.cell.version
}

// New returns an empty Gate. The gate holds no version until the first
// Install.
func New() *Gate {
	return &Gate{}
}

// Install swaps in v as the current version, retiring whatever was
// installed before (if anything). Install is not safe to call
// concurrently with itself; callers must externally serialize installers
// (the engine does this with its tail-move flag).
func (g *Gate) Install(v Version) {
	nc := &cell{version: v}
	nc.refs.Store(1)
	old := g.cur.Swap(nc)
	if old != nil {
		old.put()
	}
}

// Acquire returns a refcounted handle to the currently-installed version,
// or nil if nothing has ever been installed. The returned Ref must be
// passed to Release exactly once.
func (g *Gate) Acquire() *Ref {
	for {
		c := g.cur.Load()
		if c == nil {
			return nil
		}
		if c.tryAcquire() {
			return &Ref{cell: c}
		}
		// Lost the race: c was retired and fully drained between the load
		// and the acquire attempt. Reload and try whatever is current now.
	}
}

// Release gives back a Ref obtained from Acquire. If the referenced
// version has since been retired and this was its last outstanding
// reference, its Release method runs before this call returns.
func (g *Gate) Release(r *Ref) {
	if r == nil {
		return
	}
	r.cell.put()
}
