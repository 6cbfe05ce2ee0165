// Package dispatch implements the broadcast dispatcher and per-sink
// workers: the fan-out from producer calls to N independently draining
// sink queues, and the batching/flush discipline each worker applies
// before handing bytes to its sink.
package dispatch

import (
	"time"

	"github.com/relaylog/relay/internal/batch"
	"github.com/relaylog/relay/internal/metrics"
	"github.com/relaylog/relay/pkg/sinkio"
	"github.com/relaylog/relay/pkg/types"
)

// Sink is the subset of sinkio.Sink a worker drives, plus the ability to
// render a record — every concrete sink (Terminal, File, Udp) implements
// this by embedding a Formatter or (for raw mode) passing message bytes
// through unchanged.
type Sink interface {
	sinkio.Sink
	Format(r *types.Record) []byte
}

// WorkerConfig configures one sink worker's channel and batcher.
type WorkerConfig struct {
	QueueCapacity int
	Batch         batch.Config
	FilterFunc    types.FilterFunc // optional per-sink filter, nil to accept everything
}

// Worker owns one sink's command channel, its Batcher, and the metrics
// collected for it. It runs its loop on its own goroutine.
type Worker struct {
	name       string
	sink       Sink
	batcher    *batch.Batcher
	filter     types.FilterFunc
	commands   chan types.Command
	metrics    *metrics.Collector
	errHandler types.ErrorHandler
	done       chan struct{}
}

// NewWorker creates a worker for sink, with its own bounded command
// channel and Batcher.
func NewWorker(name string, sink Sink, cfg WorkerConfig, errHandler types.ErrorHandler) *Worker {
	return &Worker{
		name:       name,
		sink:       sink,
		batcher:    batch.New(cfg.Batch),
		filter:     cfg.FilterFunc,
		commands:   make(chan types.Command, cfg.QueueCapacity),
		metrics:    metrics.New(),
		errHandler: errHandler,
		done:       make(chan struct{}),
	}
}

// Commands returns the worker's inbound command channel, used by the
// dispatcher's fan-out and its oldest-drop backpressure policy.
func (w *Worker) Commands() chan types.Command { return w.commands }

// Done returns a channel closed once the worker's loop has exited. The
// dispatcher treats an exited worker as "sink gone": it stops sending to
// it and removes it from the fan-out set, rather than risk a send on a
// channel nothing will ever drain again.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Metrics returns the worker's metrics collector.
func (w *Worker) Metrics() *metrics.Collector { return w.metrics }

// Stats returns a point-in-time snapshot for this sink, used by
// Logger.Metrics.
func (w *Worker) Stats() types.SinkStats {
	snap := w.metrics.Snapshot()
	return types.SinkStats{
		Name:          w.name,
		QueueDepth:    len(w.commands),
		QueueCapacity: cap(w.commands),
		Written:       snap.Written,
		Dropped:       snap.Dropped,
		Errors:        snap.Errors,
		LastError:     snap.LastError,
	}
}

// Run is the worker's main loop, per the dispatch contract: block for the
// next command bounded by the batcher's age deadline; on Write, render and
// buffer, flushing if a threshold is crossed; on Flush, emit-then-sync and
// signal completion; on Rotate/Compress, delegate to the sink; on
// Shutdown, drain, emit, sync, and exit; on receive timeout with a
// non-empty buffer, treat it as an age-triggered flush.
func (w *Worker) Run() {
	defer close(w.done)
	timer := time.NewTimer(w.batcher.RemainingInterval())
	defer timer.Stop()

	for {
		select {
		case cmd, ok := <-w.commands:
			if !ok {
				w.emitPending()
				w.sink.Close()
				return
			}
			if w.handle(cmd) {
				w.sink.Close()
				return
			}
			resetTimer(timer, w.batcher.RemainingInterval())

		case <-timer.C:
			if w.batcher.DueByAge() {
				w.emitPending()
			}
			resetTimer(timer, w.batcher.RemainingInterval())
		}
	}
}

// Wait blocks until the worker's loop has exited.
func (w *Worker) Wait() { <-w.done }

// handle processes one command. It returns true if the worker should exit.
func (w *Worker) handle(cmd types.Command) (shutdown bool) {
	switch cmd.Kind {
	case types.CmdWrite:
		w.handleWrite(cmd)
	case types.CmdFlush:
		w.emitPending()
		if err := w.sink.Sync(); err != nil {
			w.reportError("sync", err)
		}
		if cmd.Done != nil {
			close(cmd.Done)
		}
	case types.CmdRotate, types.CmdCompress:
		if err := w.sink.OnCommand(cmd); err != nil {
			w.reportError("command", err)
		}
	case types.CmdShutdown:
		w.drainAndExit()
		return true
	}
	return false
}

func (w *Worker) handleWrite(cmd types.Command) {
	defer cmd.Rec.Release()
	r := cmd.Rec.Value()

	if w.filter != nil && !w.filter(r) {
		return
	}

	data := w.sink.Format(r)
	mustFlush, err := w.batcher.Write(data)
	if err == batch.ErrOverflow {
		w.emitPending()
		if mustFlush {
			if _, err2 := w.batcher.Write(data); err2 != nil {
				w.reportError("write", err2)
				w.metrics.TrackDropped()
				return
			}
		} else {
			w.reportError("write", err)
			w.metrics.TrackDropped()
			return
		}
	}

	w.metrics.TrackWritten()
	if mustFlush {
		w.emitPending()
	}
}

func (w *Worker) emitPending() {
	data := w.batcher.Drain()
	if data == nil {
		return
	}
	start := time.Now()
	if err := w.sink.Emit(data); err != nil {
		w.reportError("emit", err)
		return
	}
	w.metrics.TrackWrite(len(data), time.Since(start))
}

// drainAndExit processes any commands already queued (bounded effort: it
// stops once the channel reports empty) before the final emit and sync.
func (w *Worker) drainAndExit() {
	for {
		select {
		case cmd, ok := <-w.commands:
			if !ok {
				break
			}
			if cmd.Kind == types.CmdWrite {
				w.handleWrite(cmd)
				continue
			}
			if cmd.Kind == types.CmdShutdown {
				continue
			}
			w.handle(cmd)
		default:
			w.emitPending()
			if err := w.sink.Sync(); err != nil {
				w.reportError("sync", err)
			}
			return
		}
	}
}

func (w *Worker) reportError(op string, err error) {
	w.metrics.TrackError()
	if w.errHandler != nil {
		w.errHandler(op, w.name, err.Error(), err)
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
