package catalog

import (
	"math"
	"sync/atomic"
	"time"

	"legato/pkg/models"
)

// throughputAlpha is the EWMA smoothing factor for the files/sec gauge.
// Higher values weigh the latest bulk operation more.
const throughputAlpha = 0.3

// engineStats aggregates the engine's hot-path counters. Everything is
// atomic so bulk commits and concurrent readers never contend on a lock for
// bookkeeping.
type engineStats struct {
	totalOps       atomic.Uint64
	bulkOps        atomic.Uint64
	filesProcessed atomic.Uint64
	cacheHits      atomic.Uint64
	cacheMisses    atomic.Uint64

	throughputBits     atomic.Uint64 // float64 bits, EWMA files/sec
	peakThroughputBits atomic.Uint64
	peakMemory         atomic.Uint64
}

func (s *engineStats) recordOp() {
	s.totalOps.Add(1)
}

// recordBulk folds one bulk operation into the throughput EWMA.
func (s *engineStats) recordBulk(files int, elapsed time.Duration) {
	s.totalOps.Add(1)
	s.bulkOps.Add(1)
	s.filesProcessed.Add(uint64(files))

	if elapsed <= 0 || files == 0 {
		return
	}
	rate := float64(files) / elapsed.Seconds()
	for {
		old := s.throughputBits.Load()
		cur := math.Float64frombits(old)
		next := rate
		if cur != 0 {
			next = throughputAlpha*rate + (1-throughputAlpha)*cur
		}
		if s.throughputBits.CompareAndSwap(old, math.Float64bits(next)) {
			break
		}
	}
	for {
		old := s.peakThroughputBits.Load()
		if rate <= math.Float64frombits(old) {
			break
		}
		if s.peakThroughputBits.CompareAndSwap(old, math.Float64bits(rate)) {
			break
		}
	}
}

func (s *engineStats) recordCacheHit()  { s.cacheHits.Add(1) }
func (s *engineStats) recordCacheMiss() { s.cacheMisses.Add(1) }

// observeMemory updates the high-water mark for resident index+cache bytes.
func (s *engineStats) observeMemory(bytes uint64) {
	for {
		old := s.peakMemory.Load()
		if bytes <= old {
			return
		}
		if s.peakMemory.CompareAndSwap(old, bytes) {
			return
		}
	}
}

// snapshot renders the counters into the exported stats struct. totalFiles
// and memoryBytes are owned by the engine and passed in.
func (s *engineStats) snapshot(totalFiles int, memoryBytes uint64) models.EngineStats {
	hits := s.cacheHits.Load()
	misses := s.cacheMisses.Load()
	hitRate := 0.0
	if hits+misses > 0 {
		hitRate = float64(hits) / float64(hits+misses)
	}
	s.observeMemory(memoryBytes)
	return models.EngineStats{
		TotalFiles:          uint64(totalFiles),
		TotalOperations:     s.totalOps.Load(),
		BulkOperations:      s.bulkOps.Load(),
		TotalFilesProcessed: s.filesProcessed.Load(),
		CacheHits:           hits,
		CacheMisses:         misses,
		CacheHitRate:        hitRate,
		CurrentThroughput:   math.Float64frombits(s.throughputBits.Load()),
		PeakThroughput:      math.Float64frombits(s.peakThroughputBits.Load()),
		MemoryBytes:         memoryBytes,
		PeakMemoryBytes:     s.peakMemory.Load(),
	}
}
