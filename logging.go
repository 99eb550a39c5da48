// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package aru

import (
	"github.com/go-kit/log/level"
)

// logAllocFailure logs a submission rejected because WithMaxPending's
// bound on outstanding nodes was hit. The message is rate limited so a
// host spinning on a full engine gets one line per window rather than a
// log storm.
func (e *Engine) logAllocFailure() {
	e.metrics.allocFailures.Inc()
	if _, ok := e.limiter.Allow("alloc-failure"); ok {
		level.Error(e.logger).Log(
			"msg", "aru: submission dropped, max pending nodes exceeded",
			"max_pending", e.maxPending,
		)
	}
}

// logSubmitAfterClose logs the other drop-and-log path: a submission
// against an engine whose Close has already run.
func (e *Engine) logSubmitAfterClose() {
	if _, ok := e.limiter.Allow("submit-after-close"); ok {
		level.Error(e.logger).Log("msg", "aru: submission dropped, engine closed")
	}
}

// logQuiescenceWarning is an ambient diagnostic, not a contract check: the
// engine has no way to verify quiescence cheaply, so Close warns whenever
// any submitted node has not yet been reclaimed. That count includes
// completed nodes still held by the installed tail segment, so the warning
// alone does not mean any work is unfinished.
func (e *Engine) logQuiescenceWarning(pending int64) {
	if _, ok := e.limiter.Allow("close-not-quiescent"); ok {
		level.Warn(e.logger).Log(
			"msg", "aru: engine closed with outstanding nodes; undefined behavior if any are still pending",
			"pending", pending,
		)
	}
}
