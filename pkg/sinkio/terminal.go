package sinkio

import (
	"bufio"
	"io"
	"sync"

	"github.com/relaylog/relay/pkg/formatters"
	"github.com/relaylog/relay/pkg/types"
)

// TerminalSink writes formatted bytes to an output stream, normally
// os.Stdout. Colorization happens in the Formatter; the sink itself is
// unaware of color and just writes whatever bytes it is given.
type TerminalSink struct {
	mu     sync.Mutex
	name   string
	out    io.Writer
	flush  func() error
	writer *bufio.Writer
	isRaw  bool
	fmt    *formatters.Formatter
}

// NewTerminalSink creates a sink that writes to out. flush, if non-nil, is
// called by Sync after the internal buffer is flushed (e.g. an os.File's
// Sync method); it may be nil for writers with no OS-level flush.
func NewTerminalSink(name string, out io.Writer, flush func() error, isRaw bool, formatter *formatters.Formatter) *TerminalSink {
	return &TerminalSink{
		name:   name,
		out:    out,
		flush:  flush,
		writer: bufio.NewWriter(out),
		isRaw:  isRaw,
		fmt:    formatter,
	}
}

// Name implements Sink.
func (s *TerminalSink) Name() string { return s.name }

// Emit writes data to the buffered writer. The dispatch worker has already
// formatted the record (or, in raw mode, passed the message bytes
// verbatim) before calling Emit.
func (s *TerminalSink) Emit(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.writer.Write(data)
	return err
}

// Sync flushes the buffered writer and, if configured, the OS-level flush.
func (s *TerminalSink) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writer.Flush(); err != nil {
		return err
	}
	if s.flush != nil {
		return s.flush()
	}
	return nil
}

// OnCommand handles shutdown by flushing; rotate and compress do not apply
// to a terminal sink.
func (s *TerminalSink) OnCommand(cmd types.Command) error {
	switch cmd.Kind {
	case types.CmdShutdown, types.CmdFlush:
		return s.Sync()
	default:
		return nil
	}
}

// Close flushes any remaining bytes. The underlying writer (typically
// os.Stdout) is not closed, since the process owns its lifetime.
func (s *TerminalSink) Close() error {
	return s.Sync()
}

// IsRaw reports whether this sink bypasses the Formatter, per the sink's
// is_raw configuration.
func (s *TerminalSink) IsRaw() bool {
	return s.isRaw
}

// Format renders r through the sink's configured Formatter, or returns the
// message bytes verbatim when the sink is raw.
func (s *TerminalSink) Format(r *types.Record) []byte {
	if s.isRaw {
		out := make([]byte, 0, len(r.Message)+1)
		out = append(out, r.Message...)
		out = append(out, '\n')
		return out
	}
	return s.fmt.Format(r)
}
