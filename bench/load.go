// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package bench

import (
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
	loadbench "github.com/benmathews/bench"
	hdrwriter "github.com/benmathews/hdrhistogram-writer"

	"github.com/dreamsxin/aru"
)

// updateRequester drives one simulated client's worth of SubmitUpdate
// calls for loadbench's fixed-rate, fixed-connection-count load
// generator.
type updateRequester struct {
	engine *aru.Engine
}

func (r *updateRequester) Setup() error    { return nil }
func (r *updateRequester) Teardown() error { return nil }

func (r *updateRequester) Request() error {
	done := make(chan struct{})
	var status aru.Status
	r.engine.SubmitUpdate(&status, func(any) { close(done) }, nil)
	<-done
	return nil
}

type updateRequesterFactory struct {
	engine *aru.Engine
}

func (f *updateRequesterFactory) GetRequester(uint64) loadbench.Requester {
	return &updateRequester{engine: f.engine}
}

// RunSubmitUpdateLoad drives a fixed-rate, fixed-concurrency load of
// SubmitUpdate calls against engine for duration, and writes an HdrR
// percentile distribution report to reportPath. It is exported for use
// from a standalone load-testing command outside the `go test` benchmark
// loop, which is the shape benmathews/bench's rate-controlled runner is
// meant for (ordinary Go benchmarks have no notion of a target request
// rate).
func RunSubmitUpdateLoad(engine *aru.Engine, rate int64, connections uint64, duration time.Duration, reportPath string) (*hdrhistogram.Histogram, error) {
	b := loadbench.NewBenchmark(&updateRequesterFactory{engine: engine}, rate, connections, duration, time.Second)
	hist := b.Run()

	if reportPath != "" {
		if err := hdrwriter.WriteDistributionFile(hist, nil, 1.0, reportPath); err != nil {
			return hist, err
		}
	}
	return hist, nil
}
