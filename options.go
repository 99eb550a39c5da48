// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package aru

import (
	"time"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
)

// Option configures an Engine at construction time, mirroring the
// functional-options shape this corpus uses for Open(dir, opts...).
type Option func(*Engine)

// WithLogger sets the structured logger the engine uses for its three
// diagnostic-only, non-fatal log lines. The default is a no-op logger.
func WithLogger(l log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetricsRegisterer registers the engine's metrics against reg instead
// of leaving them unregistered.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) { e.reg = reg }
}

// WithDiagnosticRateLimit overrides the default rate at which the engine's
// drop-and-log paths may emit a message.
func WithDiagnosticRateLimit(rates map[time.Duration]int) Option {
	return func(e *Engine) { e.limiterRates = rates }
}

// WithMaxPending bounds the number of nodes that may be submitted and not
// yet reclaimed. Submissions beyond the bound are dropped and logged
// rather than left to grow the log without limit. A value of 0 (the
// default) means unbounded.
func WithMaxPending(n int64) Option {
	return func(e *Engine) { e.maxPending = n }
}
