// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package aru

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// waitDone polls status, the way a caller without a built-in completion
// wait has to: the engine deliberately exposes no blocking wait of its
// own. It is test-only plumbing: a real caller that cares about
// completion order submits dependent work instead of polling.
func waitDone(t *testing.T, status *Status) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for atomic.LoadUint32(status) != StatusDone {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for node to complete")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSingleUpdateRuns(t *testing.T) {
	e := New()
	defer e.Close()

	var ran bool
	var status Status
	e.SubmitUpdate(&status, func(any) { ran = true }, nil)
	waitDone(t, &status)
	require.True(t, ran)
}

func TestSequentialUpdatesRunInSubmissionOrder(t *testing.T) {
	e := New()
	defer e.Close()

	var mu sync.Mutex
	var order []int
	var last Status
	for i := 0; i < 50; i++ {
		i := i
		e.SubmitUpdate(&last, func(any) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}, nil)
	}
	waitDone(t, &last)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 50)
	for i, v := range order {
		require.Equal(t, i, v)
	}
}

func TestReadObservesPriorUpdate(t *testing.T) {
	e := New()
	defer e.Close()

	var counter int64
	var updateStatus, readStatus Status
	e.SubmitUpdate(&updateStatus, func(any) { atomic.AddInt64(&counter, 1) }, nil)

	var seen int64
	e.SubmitRead(&readStatus, func(any) { seen = atomic.LoadInt64(&counter) }, nil)

	waitDone(t, &readStatus)
	require.EqualValues(t, 1, seen, "read must observe every update submitted before it")
}

// TestConcurrentUpdatesAreMutuallyExclusive hammers a shared, unsynchronized
// counter from many goroutines' updates. If the engine ever let two updates
// run concurrently, inUpdate would be observed set to more than one, or the
// final count would drop increments.
func TestConcurrentUpdatesAreMutuallyExclusive(t *testing.T) {
	e := New()
	defer e.Close()

	const n = 2000
	var inUpdate int32
	var overlapDetected int32
	var counter int64

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			var status Status
			e.SubmitUpdate(&status, func(any) {
				if atomic.AddInt32(&inUpdate, 1) != 1 {
					atomic.StoreInt32(&overlapDetected, 1)
				}
				counter++
				atomic.AddInt32(&inUpdate, -1)
			}, nil)
			waitDone(t, &status)
		}()
	}
	wg.Wait()

	require.Zero(t, overlapDetected, "two updates ran concurrently")
	require.EqualValues(t, n, counter)
}

// TestConcurrentReadsCanOverlap checks that the engine at least permits
// reads to run concurrently; it does not require any particular scheduling,
// only that nothing in the engine serializes them against each other.
func TestConcurrentReadsCanOverlap(t *testing.T) {
	e := New()
	defer e.Close()

	const n = 64
	start := make(chan struct{})
	var concurrent int32
	var maxConcurrent int32

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			<-start
			var status Status
			e.SubmitRead(&status, func(any) {
				c := atomic.AddInt32(&concurrent, 1)
				for {
					m := atomic.LoadInt32(&maxConcurrent)
					if c <= m || atomic.CompareAndSwapInt32(&maxConcurrent, m, c) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&concurrent, -1)
			}, nil)
			waitDone(t, &status)
		}()
	}
	close(start)
	wg.Wait()

	require.Greater(t, atomic.LoadInt32(&maxConcurrent), int32(1), "no two reads ever ran concurrently")
}

// TestFirstSubmissionRace drives many goroutines at a brand new engine
// simultaneously, exercising the tail-init race on the very first node.
func TestFirstSubmissionRace(t *testing.T) {
	e := New()
	defer e.Close()

	const n = 200
	start := make(chan struct{})
	var ran int64

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			<-start
			var status Status
			e.SubmitUpdate(&status, func(any) { atomic.AddInt64(&ran, 1) }, nil)
			waitDone(t, &status)
		}()
	}
	close(start)
	wg.Wait()

	require.EqualValues(t, n, ran)
}

func TestQuiescentEngineReclaimsDownToOneSegment(t *testing.T) {
	e := New()
	defer e.Close()

	var last Status
	for i := 0; i < 500; i++ {
		e.SubmitUpdate(&last, func(any) {}, nil)
	}
	waitDone(t, &last)

	deadline := time.Now().Add(time.Second)
	for {
		if e.DebugSegments().Len() == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected exactly one surviving tail segment at quiescence, got %d", e.DebugSegments().Len())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestMaxPendingDropsAndLogsInsteadOfBlocking(t *testing.T) {
	e := New(WithMaxPending(1))
	defer e.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	var first Status
	// The submitter runs its own eligible node inline, so the blocking
	// first update is submitted from its own goroutine.
	go e.SubmitUpdate(&first, func(any) { close(started); <-block }, nil)
	<-started

	var second Status
	e.SubmitUpdate(&second, func(any) {}, nil)

	// second was dropped: its status cell was never touched.
	require.EqualValues(t, StatusPending, atomic.LoadUint32(&second))

	close(block)
	waitDone(t, &first)
}

func TestSyncDrainsWithoutNewSubmission(t *testing.T) {
	e := New()
	defer e.Close()

	var ran bool
	var status Status
	e.SubmitUpdate(&status, func(any) { ran = true }, nil)

	require.NoError(t, e.Sync())
	require.True(t, ran)
}

func TestSyncAfterCloseReturnsErrClosed(t *testing.T) {
	e := New()
	require.NoError(t, e.Close())
	require.ErrorIs(t, e.Sync(), ErrClosed)
}

func TestSubmitAfterCloseIsDroppedNotPanicked(t *testing.T) {
	e := New()
	require.NoError(t, e.Close())

	var status Status
	require.NotPanics(t, func() {
		e.SubmitUpdate(&status, func(any) {}, nil)
	})
	require.EqualValues(t, StatusPending, atomic.LoadUint32(&status))
}
