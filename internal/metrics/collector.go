// Package metrics collects the small set of atomic counters each sink
// worker exposes for observability: messages written and dropped, errors,
// rotation and compression counts, and write latency.
package metrics

import (
	"sync/atomic"
	"time"
)

// Collector accumulates counters for a single sink. It is safe for
// concurrent use; every field is touched with atomic operations so the
// sink worker's hot write path never blocks on a mutex.
type Collector struct {
	written          uint64
	dropped          uint64
	errors           uint64
	rotations        uint64
	compressions     uint64
	bytesWritten     uint64
	writeCount       uint64
	totalWriteTimeNs int64
	maxWriteTimeNs   int64
	lastErrorUnixNs  int64
}

// New creates an empty Collector.
func New() *Collector {
	return &Collector{}
}

// TrackWritten increments the count of records successfully emitted.
func (c *Collector) TrackWritten() {
	atomic.AddUint64(&c.written, 1)
}

// TrackDropped increments the count of records dropped under backpressure.
func (c *Collector) TrackDropped() {
	atomic.AddUint64(&c.dropped, 1)
}

// TrackError increments the error count and records the time of the most
// recent failure.
func (c *Collector) TrackError() {
	atomic.AddUint64(&c.errors, 1)
	atomic.StoreInt64(&c.lastErrorUnixNs, time.Now().UnixNano())
}

// TrackRotation increments the rotation count.
func (c *Collector) TrackRotation() {
	atomic.AddUint64(&c.rotations, 1)
}

// TrackCompression increments the compression count.
func (c *Collector) TrackCompression() {
	atomic.AddUint64(&c.compressions, 1)
}

// TrackWrite records the size and duration of one IO write, updating the
// running total and maximum write latency.
func (c *Collector) TrackWrite(n int, d time.Duration) {
	atomic.AddUint64(&c.bytesWritten, uint64(n))
	atomic.AddUint64(&c.writeCount, 1)
	atomic.AddInt64(&c.totalWriteTimeNs, int64(d))
	for {
		max := atomic.LoadInt64(&c.maxWriteTimeNs)
		if int64(d) <= max {
			break
		}
		if atomic.CompareAndSwapInt64(&c.maxWriteTimeNs, max, int64(d)) {
			break
		}
	}
}

// Snapshot is a point-in-time read of a Collector's counters.
type Snapshot struct {
	Written          uint64
	Dropped          uint64
	Errors           uint64
	Rotations        uint64
	Compressions     uint64
	BytesWritten     uint64
	AverageWriteTime time.Duration
	MaxWriteTime     time.Duration
	LastError        time.Time
}

// Snapshot returns the current counter values.
func (c *Collector) Snapshot() Snapshot {
	writeCount := atomic.LoadUint64(&c.writeCount)
	var avg time.Duration
	if writeCount > 0 {
		avg = time.Duration(atomic.LoadInt64(&c.totalWriteTimeNs) / int64(writeCount))
	}
	var lastErr time.Time
	if ns := atomic.LoadInt64(&c.lastErrorUnixNs); ns != 0 {
		lastErr = time.Unix(0, ns)
	}
	return Snapshot{
		Written:          atomic.LoadUint64(&c.written),
		Dropped:          atomic.LoadUint64(&c.dropped),
		Errors:           atomic.LoadUint64(&c.errors),
		Rotations:        atomic.LoadUint64(&c.rotations),
		Compressions:     atomic.LoadUint64(&c.compressions),
		BytesWritten:     atomic.LoadUint64(&c.bytesWritten),
		AverageWriteTime: avg,
		MaxWriteTime:     time.Duration(atomic.LoadInt64(&c.maxWriteTimeNs)),
		LastError:        lastErr,
	}
}
