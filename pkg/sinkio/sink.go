// Package sinkio implements the sink capability set: Terminal, File, and
// Udp. Each sink is a small emit/sync/command surface driven by a
// dispatch worker; sinks never see producers directly.
package sinkio

import "github.com/relaylog/relay/pkg/types"

// Sink is the capability every destination implements. The dispatch
// worker owns batching; a sink only knows how to emit already-formatted
// bytes, sync them, and react to control commands.
type Sink interface {
	// Name identifies the sink for stats and error reporting.
	Name() string
	// Emit writes formatted bytes to the destination.
	Emit(data []byte) error
	// Sync flushes any OS-level buffering (file sync, stdout flush, socket
	// send completion). It does not imply Emit was called first.
	Sync() error
	// OnCommand handles a non-write command (rotate, compress, shutdown).
	// CmdWrite is never passed here; the worker calls Emit for it instead.
	OnCommand(cmd types.Command) error
	// Close releases any OS resources held by the sink.
	Close() error
}
