// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package aru

import (
	"time"

	"github.com/benbjohnson/immutable"
)

// SegmentInfo is a point-in-time snapshot of one tail segment, for
// operator introspection only. None of it is load-bearing for the
// engine's own correctness.
type SegmentInfo struct {
	ID        uint64
	CreatedAt time.Time
}

// DebugSegments returns a snapshot of every tail segment currently
// tracked by the engine, oldest first. The engine never preempts a stuck
// callback, so a wedged one can silently stall reclamation forever; this
// is the surface an operator uses to notice a segment whose node range
// stopped advancing. It takes debugMu, the same short mutex that segment
// creation on a tail advance and segment reclamation take.
func (e *Engine) DebugSegments() *immutable.SortedMap[uint64, SegmentInfo] {
	e.debugMu.Lock()
	defer e.debugMu.Unlock()
	return e.segments
}

func (e *Engine) recordSegment(s *segment) {
	e.debugMu.Lock()
	defer e.debugMu.Unlock()
	e.segments = e.segments.Set(s.id, SegmentInfo{ID: s.id, CreatedAt: s.createdAt})
	e.metrics.segmentsLive.Inc()
}

func (e *Engine) forgetSegment(s *segment) {
	e.debugMu.Lock()
	defer e.debugMu.Unlock()
	e.segments = e.segments.Delete(s.id)
	e.metrics.segmentsLive.Dec()
}
