package dispatch

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/relaylog/relay/internal/batch"
	"github.com/relaylog/relay/pkg/types"
)

// fakeSink is an in-memory Sink used to observe what a worker emits.
type fakeSink struct {
	mu     sync.Mutex
	name   string
	buf    bytes.Buffer
	synced int
	closed bool
	cmds   []types.CommandKind
}

func newFakeSink(name string) *fakeSink { return &fakeSink{name: name} }

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Emit(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf.Write(data)
	return nil
}

func (f *fakeSink) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced++
	return nil
}

func (f *fakeSink) OnCommand(cmd types.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd.Kind)
	return nil
}

func (f *fakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSink) Format(r *types.Record) []byte {
	return []byte(r.Message + "\n")
}

func (f *fakeSink) contents() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buf.String()
}

func newTestWorker(name string, cfg WorkerConfig) (*Worker, *fakeSink) {
	sink := newFakeSink(name)
	return NewWorker(name, sink, cfg, nil), sink
}

func syncCfg() WorkerConfig {
	return WorkerConfig{QueueCapacity: 16, Batch: SyncBatchConfig}
}

func TestDispatcherLogDeliversToWorker(t *testing.T) {
	d := New(types.LevelInfo)
	w, sink := newTestWorker("s", syncCfg())
	d.Register(w)
	defer func() {
		w.Commands() <- types.Command{Kind: types.CmdShutdown}
		w.Wait()
	}()

	d.Log(&types.Record{Level: types.LevelInfo, Message: "hello"})
	d.Flush()

	waitFor(t, func() bool { return sink.contents() == "hello\n" })
}

func TestDispatcherFiltersBelowLevel(t *testing.T) {
	d := New(types.LevelWarn)
	w, sink := newTestWorker("s", syncCfg())
	d.Register(w)
	defer func() {
		w.Commands() <- types.Command{Kind: types.CmdShutdown}
		w.Wait()
	}()

	d.Log(&types.Record{Level: types.LevelInfo, Message: "dropped"})
	d.Flush()
	time.Sleep(20 * time.Millisecond)

	if sink.contents() != "" {
		t.Errorf("expected level below filter to be dropped, got %q", sink.contents())
	}
}

func TestDispatcherDevModeFlushBlocks(t *testing.T) {
	d := New(types.LevelInfo)
	d.SetDevMode(true)
	w, sink := newTestWorker("s", syncCfg())
	d.Register(w)
	defer func() {
		w.Commands() <- types.Command{Kind: types.CmdShutdown}
		w.Wait()
	}()

	d.Log(&types.Record{Level: types.LevelInfo, Message: "committed"})

	if sink.contents() != "committed\n" {
		t.Errorf("expected dev-mode Log to block until committed, got %q", sink.contents())
	}
}

func TestDispatcherOldestDropUnderBackpressure(t *testing.T) {
	d := New(types.LevelInfo)
	// A worker with no goroutine draining it: capacity 1 so the second Log
	// forces the oldest-drop path.
	sink := newFakeSink("slow")
	w := NewWorker("slow", sink, WorkerConfig{QueueCapacity: 1, Batch: batch.Config{MaxBytes: 1 << 20, Capacity: 1 << 20}}, nil)
	d.mu.Lock()
	d.workers = append(d.workers, w)
	d.mu.Unlock()
	// no w.Run() goroutine: channel never drains, exercising the drop path.

	d.Log(&types.Record{Level: types.LevelInfo, Message: "first"})
	d.Log(&types.Record{Level: types.LevelInfo, Message: "second"})

	if len(w.Commands()) != 1 {
		t.Fatalf("expected exactly one pending command after drop, got %d", len(w.Commands()))
	}
	pending := <-w.Commands()
	if pending.Rec.Value().Message != "second" {
		t.Errorf("expected the newest record to survive the drop, got %q", pending.Rec.Value().Message)
	}
	if w.Metrics().Snapshot().Dropped != 1 {
		t.Errorf("expected one dropped record tracked, got %d", w.Metrics().Snapshot().Dropped)
	}
}

func TestDispatcherRemovesClosedWorker(t *testing.T) {
	d := New(types.LevelInfo)
	sink := newFakeSink("gone")
	w := NewWorker("gone", sink, WorkerConfig{QueueCapacity: 1, Batch: SyncBatchConfig}, nil)
	d.mu.Lock()
	d.workers = append(d.workers, w)
	d.mu.Unlock()
	// No w.Run(): simulate an already-exited worker by closing its done
	// signal directly, the same way Run's deferred close does.
	close(w.done)

	d.Log(&types.Record{Level: types.LevelInfo, Message: "x"})

	if len(d.Workers()) != 0 {
		t.Errorf("expected exited worker to be removed from fan-out set, got %d workers", len(d.Workers()))
	}
}

func TestControllerShutdownDrainsAndSyncs(t *testing.T) {
	d := New(types.LevelInfo)
	w, sink := newTestWorker("s", syncCfg())
	d.Register(w)
	ctl := NewController(d)

	d.Log(&types.Record{Level: types.LevelInfo, Message: "final"})
	ctl.Shutdown()

	if sink.contents() != "final\n" {
		t.Errorf("expected shutdown to drain pending writes, got %q", sink.contents())
	}
	sink.mu.Lock()
	closed := sink.closed
	sink.mu.Unlock()
	if !closed {
		t.Error("expected sink to be closed after shutdown")
	}
}

func TestApplySyncModeOverridesBatch(t *testing.T) {
	cfg := WorkerConfig{QueueCapacity: 65536, Batch: batch.Config{MaxBytes: 1 << 20}}
	got := ApplySyncMode(cfg, true)
	if got.QueueCapacity != SyncQueueCapacity {
		t.Errorf("QueueCapacity = %d, want %d", got.QueueCapacity, SyncQueueCapacity)
	}
	if got.Batch != SyncBatchConfig {
		t.Errorf("Batch = %+v, want %+v", got.Batch, SyncBatchConfig)
	}

	unchanged := ApplySyncMode(cfg, false)
	if unchanged.QueueCapacity != 65536 {
		t.Error("expected non-sync mode to leave config untouched")
	}
}

func TestApplyUDPModeForcesNoBatchingRegardlessOfSync(t *testing.T) {
	async := WorkerConfig{QueueCapacity: 4096, Batch: batch.Config{MaxBytes: 8 * 1024}}
	got := ApplyUDPMode(async)
	if got.Batch != UDPBatchConfig {
		t.Errorf("Batch = %+v, want %+v", got.Batch, UDPBatchConfig)
	}

	sync := ApplySyncMode(async, true)
	gotFromSync := ApplyUDPMode(sync)
	if gotFromSync.Batch != UDPBatchConfig {
		t.Errorf("Batch after sync+udp = %+v, want %+v", gotFromSync.Batch, UDPBatchConfig)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
