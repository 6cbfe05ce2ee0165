package dispatch

import (
	"time"

	"github.com/relaylog/relay/internal/batch"
	"github.com/relaylog/relay/pkg/types"
)

// SyncBatchConfig is the batch configuration forced onto every sink when a
// Controller is installed in synchronous mode: every record is emitted
// promptly regardless of the sink's own configured thresholds.
var SyncBatchConfig = batch.Config{
	MaxBytes: 1,
	Interval: time.Millisecond,
	Capacity: 1024,
}

// SyncQueueCapacity is the per-worker channel capacity forced by
// synchronous mode.
const SyncQueueCapacity = 1024

// UDPBatchConfig is the batch configuration forced onto a UDP sink's worker
// regardless of sync mode: the framed protocol sends one record per
// datagram, so records are never coalesced into one Emit call.
var UDPBatchConfig = batch.Config{
	MaxBytes: 1,
	Interval: time.Millisecond,
	Capacity: 1024,
}

// ApplyUDPMode forces cfg to the no-batching override a UDP sink's worker
// always uses, independent of cfg.Sync: one record per datagram, never
// coalesced with another.
func ApplyUDPMode(cfg WorkerConfig) WorkerConfig {
	cfg.Batch = UDPBatchConfig
	return cfg
}

// Compressor is the subset of features.CompressionManager the controller
// waits on during shutdown, so queued compression jobs finish before the
// process exits.
type Compressor interface {
	QueueDepth() int
}

// Controller owns process-wide installation state: the Dispatcher, the
// registered workers, and the sinks' compression queues that must drain
// before Shutdown returns.
type Controller struct {
	dispatcher  *Dispatcher
	compressors []Compressor
}

// NewController creates a Controller around dispatcher.
func NewController(dispatcher *Dispatcher) *Controller {
	return &Controller{dispatcher: dispatcher}
}

// Dispatcher returns the controller's dispatcher.
func (c *Controller) Dispatcher() *Dispatcher { return c.dispatcher }

// TrackCompressor registers a sink's compression manager so Shutdown waits
// for its queue to drain.
func (c *Controller) TrackCompressor(comp Compressor) {
	c.compressors = append(c.compressors, comp)
}

// ApplySyncMode forces cfg to the synchronous-mode overrides when sync is
// true, per the dispatch contract: batch_size=1, batch_interval_ms=1,
// buffer_size=1024, applied uniformly to every sink regardless of its own
// configured batch thresholds.
func ApplySyncMode(cfg WorkerConfig, sync bool) WorkerConfig {
	if !sync {
		return cfg
	}
	cfg.Batch = SyncBatchConfig
	cfg.QueueCapacity = SyncQueueCapacity
	return cfg
}

// Shutdown sends a Shutdown command to every worker, waits for each to
// exit, then waits for any tracked compression queues to drain before
// returning. It is the only path that tears down an installed logger.
func (c *Controller) Shutdown() {
	workers := c.dispatcher.Workers()
	for _, w := range workers {
		w.Commands() <- types.Command{Kind: types.CmdShutdown}
	}
	for _, w := range workers {
		w.Wait()
	}

	deadline := time.Now().Add(5 * time.Second)
	for _, comp := range c.compressors {
		for comp.QueueDepth() > 0 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}
}
