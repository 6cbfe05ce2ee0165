// Package batch implements the size- and time-bounded buffer shared by
// every sink worker: it coalesces formatted records before handing them to
// the sink's IO routine, per the BatchState invariants (buffered bytes stay
// under the hard cap; once a batch reaches its size, count or age threshold
// it is reported as due, and the worker flushes it before adding more).
package batch

import (
	"errors"
	"sync"
	"time"
)

// ErrOverflow is returned by Write when data does not fit under the
// buffer's hard cap, either on its own or on top of what is already
// buffered; the caller must flush and retry (or drop) rather than truncate.
var ErrOverflow = errors.New("batch: record exceeds buffer capacity")

// Config describes the thresholds for a single sink's batch.
type Config struct {
	// MaxBytes is the byte-size threshold. A batch is flushed once its
	// accumulated size reaches or exceeds this value.
	MaxBytes int
	// MaxCount, if non-zero, is an additional record-count threshold. A
	// batch flushes on whichever of MaxBytes or MaxCount is hit first; it
	// never replaces the byte threshold.
	MaxCount int
	// Interval is the age threshold: once the oldest buffered record has
	// waited this long, the batch must flush.
	Interval time.Duration
	// Capacity is the hard cap on buffered bytes; Write refuses to exceed
	// it even transiently.
	Capacity int
}

// Batcher accumulates formatted record bytes for one sink and reports when
// a flush is due. It does not perform IO itself; the sink worker calls
// Drain and hands the result to the sink.
type Batcher struct {
	mu       sync.Mutex
	cfg      Config
	buf      [][]byte
	size     int
	oldest   time.Time
	hasOldest bool
}

// New creates a Batcher for the given configuration.
func New(cfg Config) *Batcher {
	if cfg.Capacity <= 0 {
		cfg.Capacity = cfg.MaxBytes
	}
	return &Batcher{cfg: cfg}
}

// Write appends data to the batch. It reports whether the batch must be
// flushed now, per the byte or count thresholds. If data would push the
// buffered bytes past the hard cap, ErrOverflow is returned with mustFlush
// true: the caller can flush and call Write again. If data alone exceeds
// the hard cap, ErrOverflow is returned with mustFlush false, since a flush
// cannot make room for it. In both cases the batch is left untouched.
func (b *Batcher) Write(data []byte) (mustFlush bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(data) > b.cfg.Capacity {
		return false, ErrOverflow
	}
	if b.size+len(data) > b.cfg.Capacity {
		return true, ErrOverflow
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	b.buf = append(b.buf, cp)
	b.size += len(cp)
	if !b.hasOldest {
		b.oldest = time.Now()
		b.hasOldest = true
	}

	mustFlush = b.size >= b.cfg.MaxBytes
	if b.cfg.MaxCount > 0 && len(b.buf) >= b.cfg.MaxCount {
		mustFlush = true
	}
	return mustFlush, nil
}

// DueByAge reports whether the oldest buffered record has waited longer
// than the configured interval, for the sink worker's receive-timeout path.
func (b *Batcher) DueByAge() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.hasOldest || b.cfg.Interval <= 0 {
		return false
	}
	return time.Since(b.oldest) >= b.cfg.Interval
}

// RemainingInterval returns how long until the current batch becomes due
// by age, for the worker to use as its receive deadline. If the batch is
// empty or has no interval configured, it returns the full interval (or a
// long duration if none is set).
func (b *Batcher) RemainingInterval() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cfg.Interval <= 0 {
		return time.Hour
	}
	if !b.hasOldest {
		return b.cfg.Interval
	}
	remaining := b.cfg.Interval - time.Since(b.oldest)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Len reports the number of buffered records.
func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// Size reports the number of buffered bytes.
func (b *Batcher) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Drain returns the concatenated buffered bytes and resets the batch. It
// returns nil if the batch is empty.
func (b *Batcher) Drain() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buf) == 0 {
		return nil
	}
	out := make([]byte, 0, b.size)
	for _, chunk := range b.buf {
		out = append(out, chunk...)
	}
	b.buf = b.buf[:0]
	b.size = 0
	b.hasOldest = false
	return out
}
