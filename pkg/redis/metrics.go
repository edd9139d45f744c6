package redis

import (
	"sync/atomic"
	"time"
)

// Metrics tracks cache performance statistics
type Metrics struct {
	// Cache hit/miss counters
	cacheHits   atomic.Uint64
	cacheMisses atomic.Uint64
	cacheErrors atomic.Uint64

	// Operation counters
	getOperations   atomic.Uint64
	setOperations   atomic.Uint64
	flushOperations atomic.Uint64

	// Timing metrics (in nanoseconds)
	totalGetLatency   atomic.Uint64
	totalSetLatency   atomic.Uint64
	totalFlushLatency atomic.Uint64

	// Large value metrics
	compressionSaves  atomic.Uint64 // Bytes saved via compression
	compressedWrites  atomic.Uint64
	oversizedRejected atomic.Uint64

	// Invalidation metrics
	purgedKeys atomic.Uint64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordCacheHit increments the hit counter by n
func (m *Metrics) RecordCacheHit(n int) {
	m.cacheHits.Add(uint64(n))
}

// RecordCacheMiss increments the miss counter by n
func (m *Metrics) RecordCacheMiss(n int) {
	m.cacheMisses.Add(uint64(n))
}

// RecordCacheError increments cache error counter
func (m *Metrics) RecordCacheError() {
	m.cacheErrors.Add(1)
}

// RecordGet records a get operation with latency
func (m *Metrics) RecordGet(duration time.Duration) {
	m.getOperations.Add(1)
	m.totalGetLatency.Add(uint64(duration.Nanoseconds()))
}

// RecordSet records a set operation with latency
func (m *Metrics) RecordSet(duration time.Duration) {
	m.setOperations.Add(1)
	m.totalSetLatency.Add(uint64(duration.Nanoseconds()))
}

// RecordFlush records a namespace flush with latency
func (m *Metrics) RecordFlush(duration time.Duration) {
	m.flushOperations.Add(1)
	m.totalFlushLatency.Add(uint64(duration.Nanoseconds()))
}

// RecordCompression records one compressed write and the bytes it saved
func (m *Metrics) RecordCompression(bytesSaved uint64) {
	m.compressedWrites.Add(1)
	m.compressionSaves.Add(bytesSaved)
}

// RecordOversized increments the rejected oversized value counter
func (m *Metrics) RecordOversized() {
	m.oversizedRejected.Add(1)
}

// RecordPurged adds n to the purged stale key counter
func (m *Metrics) RecordPurged(n int) {
	m.purgedKeys.Add(uint64(n))
}

// GetSnapshot returns a snapshot of current metrics
func (m *Metrics) GetSnapshot() MetricsSnapshot {
	hits := m.cacheHits.Load()
	misses := m.cacheMisses.Load()
	total := hits + misses

	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	getOps := m.getOperations.Load()
	setOps := m.setOperations.Load()
	flushOps := m.flushOperations.Load()

	var avgGetLatency, avgSetLatency, avgFlushLatency time.Duration
	if getOps > 0 {
		avgGetLatency = time.Duration(m.totalGetLatency.Load() / getOps)
	}
	if setOps > 0 {
		avgSetLatency = time.Duration(m.totalSetLatency.Load() / setOps)
	}
	if flushOps > 0 {
		avgFlushLatency = time.Duration(m.totalFlushLatency.Load() / flushOps)
	}

	return MetricsSnapshot{
		CacheHits:             hits,
		CacheMisses:           misses,
		CacheErrors:           m.cacheErrors.Load(),
		CacheHitRate:          hitRate,
		GetOperations:         getOps,
		SetOperations:         setOps,
		FlushOperations:       flushOps,
		AvgGetLatency:         avgGetLatency,
		AvgSetLatency:         avgSetLatency,
		AvgFlushLatency:       avgFlushLatency,
		CompressionBytesSaved: m.compressionSaves.Load(),
		CompressedWrites:      m.compressedWrites.Load(),
		OversizedRejected:     m.oversizedRejected.Load(),
		PurgedKeys:            m.purgedKeys.Load(),
	}
}

// Reset resets all metrics counters
func (m *Metrics) Reset() {
	m.cacheHits.Store(0)
	m.cacheMisses.Store(0)
	m.cacheErrors.Store(0)
	m.getOperations.Store(0)
	m.setOperations.Store(0)
	m.flushOperations.Store(0)
	m.totalGetLatency.Store(0)
	m.totalSetLatency.Store(0)
	m.totalFlushLatency.Store(0)
	m.compressionSaves.Store(0)
	m.compressedWrites.Store(0)
	m.oversizedRejected.Store(0)
	m.purgedKeys.Store(0)
}

// MetricsSnapshot represents a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	// Cache metrics
	CacheHits    uint64
	CacheMisses  uint64
	CacheErrors  uint64
	CacheHitRate float64 // Percentage

	// Operation counts
	GetOperations   uint64
	SetOperations   uint64
	FlushOperations uint64

	// Latency metrics
	AvgGetLatency   time.Duration
	AvgSetLatency   time.Duration
	AvgFlushLatency time.Duration

	// Large value metrics
	CompressionBytesSaved uint64
	CompressedWrites      uint64
	OversizedRejected     uint64

	// Invalidation metrics
	PurgedKeys uint64
}
