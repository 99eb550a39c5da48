// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package bench

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

var boltBucket = []byte("counter")

// runBoltBaselineBench is the comparison point for BenchmarkSubmitUpdate:
// a single bolt.DB write transaction per call is the traditional
// single-writer-lock-via-disk-transaction baseline the lock-free engine
// is meant to beat.
func runBoltBaselineBench(b *testing.B, concurrency int) {
	tmpDir, err := os.MkdirTemp("", "aru-bench-bolt-*")
	require.NoError(b, err)
	defer os.RemoveAll(tmpDir)

	db, err := bolt.Open(filepath.Join(tmpDir, "baseline.db"), 0o600, nil)
	require.NoError(b, err)
	defer db.Close()

	require.NoError(b, db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	}))

	hist := hdrhistogram.New(1, int64(time.Second), 3)
	var histMu sync.Mutex

	b.ResetTimer()

	var wg sync.WaitGroup
	perGoroutine := b.N / concurrency
	if perGoroutine == 0 {
		perGoroutine = 1
	}
	for g := 0; g < concurrency; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				start := time.Now()
				err := db.Update(func(tx *bolt.Tx) error {
					bkt := tx.Bucket(boltBucket)
					v := bkt.Get([]byte("n"))
					n := uint64(0)
					if len(v) == 8 {
						n = binary.BigEndian.Uint64(v)
					}
					n++
					next := make([]byte, 8)
					binary.BigEndian.PutUint64(next, n)
					return bkt.Put([]byte("n"), next)
				})
				if err != nil {
					b.Error(err)
					return
				}
				histMu.Lock()
				_ = hist.RecordValue(time.Since(start).Microseconds())
				histMu.Unlock()
			}
		}()
	}
	wg.Wait()
	b.StopTimer()

	b.ReportMetric(float64(hist.ValueAtQuantile(50)), "p50-us")
	b.ReportMetric(float64(hist.ValueAtQuantile(99)), "p99-us")
}
