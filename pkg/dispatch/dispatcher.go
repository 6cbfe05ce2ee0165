package dispatch

import (
	"sync"

	"github.com/relaylog/relay/internal/atomicx"
	"github.com/relaylog/relay/internal/refc"
	"github.com/relaylog/relay/pkg/types"
)

// Dispatcher broadcasts records to every registered sink worker. It never
// blocks a producer on a slow sink: a full worker queue is drained of its
// oldest pending write to make room, so backpressure lands on that sink's
// own queue rather than stalling the caller.
type Dispatcher struct {
	level   *atomicx.Int32
	devMode *atomicx.Bool

	mu      sync.RWMutex
	workers []*Worker
}

// New creates a Dispatcher with the given initial level. Workers are
// registered with Register before the first Log call.
func New(level types.Level) *Dispatcher {
	return &Dispatcher{
		level:   atomicx.NewInt32(int32(level)),
		devMode: atomicx.NewBool(false),
	}
}

// Register adds a worker to the fan-out set and starts its loop.
func (d *Dispatcher) Register(w *Worker) {
	d.mu.Lock()
	d.workers = append(d.workers, w)
	d.mu.Unlock()
	go w.Run()
}

// Workers returns a snapshot of the currently registered workers, for
// Logger.Metrics and shutdown.
func (d *Dispatcher) Workers() []*Worker {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Worker, len(d.workers))
	copy(out, d.workers)
	return out
}

// SetLevel atomically updates the global filter level.
func (d *Dispatcher) SetLevel(level types.Level) {
	d.level.Store(int32(level))
}

// Level returns the current global filter level.
func (d *Dispatcher) Level() types.Level {
	return types.Level(d.level.Load())
}

// Enabled is a wait-free comparison against the global level.
func (d *Dispatcher) Enabled(level types.Level) bool {
	return level >= d.Level()
}

// SetDevMode toggles the blocking implicit-flush-after-every-log behavior.
func (d *Dispatcher) SetDevMode(on bool) {
	d.devMode.Store(on)
}

// DevMode reports whether dev-mode is enabled.
func (d *Dispatcher) DevMode() bool {
	return d.devMode.Load()
}

// Log publishes r to every registered sink worker, dropping it entirely if
// its level is below the global filter. In dev-mode, Log blocks until every
// sink has committed the record.
func (d *Dispatcher) Log(r *types.Record) {
	if !d.Enabled(r.Level) {
		return
	}

	handle := refc.New(r, nil)
	d.broadcast(func() types.Command {
		return types.Command{Kind: types.CmdWrite, Rec: handle.Acquire()}
	})
	handle.Release()

	if d.DevMode() {
		d.Flush()
	}
}

// Flush enqueues a Flush command on every worker. In dev-mode it blocks
// until each worker has acknowledged completion via a one-shot channel;
// otherwise it returns as soon as the commands are enqueued.
func (d *Dispatcher) Flush() {
	dev := d.DevMode()

	d.mu.RLock()
	workers := make([]*Worker, len(d.workers))
	copy(workers, d.workers)
	d.mu.RUnlock()

	var dones []chan struct{}
	for _, w := range workers {
		var done chan struct{}
		if dev {
			done = make(chan struct{})
			dones = append(dones, done)
		}
		d.sendOrDrop(w, types.Command{Kind: types.CmdFlush, Done: done})
	}
	for _, done := range dones {
		<-done
	}
}

// broadcast builds one Command per worker (via build, so each worker gets
// its own acquired reference) and sends it, applying the oldest-drop policy
// per worker.
func (d *Dispatcher) broadcast(build func() types.Command) {
	d.mu.RLock()
	workers := make([]*Worker, len(d.workers))
	copy(workers, d.workers)
	d.mu.RUnlock()

	for _, w := range workers {
		d.sendOrDrop(w, build())
	}
}

// sendOrDrop sends cmd to w's channel. If the channel is full, the oldest
// pending command is discarded (its Record reference released) to make
// room, so a slow sink loses its oldest backlog rather than stalling the
// producer. If the worker has exited, it is removed from the fan-out set
// and no error is surfaced; its command channel is never closed, since a
// send racing a close would panic; exit is signaled by Worker.Done instead.
func (d *Dispatcher) sendOrDrop(w *Worker, cmd types.Command) {
	select {
	case <-w.Done():
		d.remove(w)
		releaseIfWrite(cmd)
		return
	default:
	}

	select {
	case w.Commands() <- cmd:
		return
	case <-w.Done():
		d.remove(w)
		releaseIfWrite(cmd)
		return
	default:
	}

	select {
	case old, ok := <-w.Commands():
		if ok {
			releaseIfWrite(old)
			w.Metrics().TrackDropped()
		}
	default:
	}

	select {
	case w.Commands() <- cmd:
	case <-w.Done():
		d.remove(w)
		releaseIfWrite(cmd)
	default:
		releaseIfWrite(cmd)
		w.Metrics().TrackDropped()
	}
}

func releaseIfWrite(cmd types.Command) {
	if cmd.Kind == types.CmdWrite && cmd.Rec != nil {
		cmd.Rec.Release()
	}
}

// remove drops w from the fan-out set; used when its channel is observed
// closed, meaning the sink is gone.
func (d *Dispatcher) remove(w *Worker) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, cur := range d.workers {
		if cur == w {
			d.workers = append(d.workers[:i], d.workers[i+1:]...)
			return
		}
	}
}
