// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package aru

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type engineMetrics struct {
	submitted     *prometheus.CounterVec
	executed      *prometheus.CounterVec
	trylockMiss   prometheus.Counter
	tailAdvances  prometheus.Counter
	allocFailures prometheus.Counter
	nodesFreed    prometheus.Counter
	segmentsLive  prometheus.Gauge
	pendingNodes  prometheus.Gauge
}

func newEngineMetrics(reg prometheus.Registerer) *engineMetrics {
	return &engineMetrics{
		submitted: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "aru_nodes_submitted_total",
			Help: "aru_nodes_submitted_total counts nodes submitted, labeled by kind (update or read).",
		}, []string{"kind"}),
		executed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "aru_nodes_executed_total",
			Help: "aru_nodes_executed_total counts callbacks actually invoked, labeled by kind.",
		}, []string{"kind"}),
		trylockMiss: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "aru_trylock_miss_total",
			Help: "aru_trylock_miss_total counts traversals that found a ready node already claimed by another goroutine.",
		}),
		tailAdvances: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "aru_tail_advances_total",
			Help: "aru_tail_advances_total counts how many times the tail segment boundary moved forward.",
		}),
		allocFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "aru_alloc_failures_total",
			Help: "aru_alloc_failures_total counts submissions dropped because WithMaxPending was exceeded.",
		}),
		nodesFreed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "aru_nodes_freed_total",
			Help: "aru_nodes_freed_total counts nodes reclaimed by a tail segment's destructor.",
		}),
		segmentsLive: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "aru_segments_live",
			Help: "aru_segments_live is the number of tail segments currently tracked, not yet reclaimed.",
		}),
		pendingNodes: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "aru_pending_nodes",
			Help: "aru_pending_nodes is the number of submitted nodes not yet reclaimed.",
		}),
	}
}
