package sinkio

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/relaylog/relay/pkg/features"
	"github.com/relaylog/relay/pkg/formatters"
	"github.com/relaylog/relay/pkg/types"
)

// DefaultFileBufferSize is the bufio.Writer size backing a FileSink.
const DefaultFileBufferSize = 32 * 1024

// DefaultCompressionThreads is the compression worker pool size a FileSink
// uses when FileSinkConfig.CompressionThreads is left unset.
const DefaultCompressionThreads = 2

// FileSinkConfig configures a FileSink.
type FileSinkConfig struct {
	Path        string
	MaxFileSize int64
	MaxFiles    int
	MaxAge      int64 // seconds; 0 disables age-based retention

	// CompressOnDrop governs only whether the live segment is additionally
	// archived at shutdown. Compression of retired segments on rotation is
	// unconditional and does not depend on this flag.
	CompressOnDrop     bool
	MaxArchives        int
	CompressionLevel   int // 1-9; 0 selects the package default
	CompressionThreads int // 0 selects the package default
	IsRaw              bool
	FormatConfig       formatters.FormatConfig
}

// FileSink is the rotating, compressing, process-safe file destination.
// It moves through Open (appending to the current segment), Rotating (the
// current segment is renamed out of the way before a write that would
// cross the size threshold), Compressing (a retired segment is hashed off
// to the compression worker pool), and Draining (on shutdown, buffered
// bytes are flushed and, if configured, the current segment is queued for
// compression before the sink reports done).
type FileSink struct {
	mu             sync.Mutex
	name           string
	path           string
	maxSize        int64
	isRaw          bool
	compressOnDrop bool
	fmt            *formatters.Formatter

	file   *os.File
	writer *bufio.Writer
	lock   *flock.Flock
	size   int64

	rotation    *features.RotationManager
	compression *features.CompressionManager
	recovery    *features.RecoveryPolicy
}

// NewFileSink opens cfg.Path for append and wires up its rotation and
// compression managers. Emit holds an advisory flock on a sidecar
// cfg.Path+".lock" file while it hands bytes to the sink's buffered writer;
// Sync and rotation write the buffer out to the file without taking that
// lock.
func NewFileSink(name string, cfg FileSinkConfig) (*FileSink, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	cleanPath := filepath.Clean(cfg.Path)
	file, err := os.OpenFile(cleanPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}

	rotation := features.NewRotationManager()
	rotation.SetMaxFiles(cfg.MaxFiles)
	if cfg.MaxAge > 0 {
		rotation.SetMaxAge(time.Duration(cfg.MaxAge) * time.Second)
	}

	// Compression of retired segments runs unconditionally: every rotation
	// enqueues its retired segment onto the CompressionQueue regardless of
	// compress_on_drop, which only governs whether the *live* segment is
	// additionally archived at shutdown.
	compression := features.NewCompressionManager()
	compression.SetMaxArchives(cfg.MaxArchives)

	threads := cfg.CompressionThreads
	if threads <= 0 {
		threads = DefaultCompressionThreads
	}
	compression.SetWorkers(threads)

	level := cfg.CompressionLevel
	if level <= 0 {
		level = features.DefaultCompressionLevel
	}
	compression.SetLevel(level)

	if err := compression.SetCompression(features.CompressionLZ4); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("configure compression: %w", err)
	}
	compression.Start()
	rotation.SetCompressionCallback(compression.QueueFile)

	sink := &FileSink{
		name:           name,
		path:           cleanPath,
		maxSize:        cfg.MaxFileSize,
		isRaw:          cfg.IsRaw,
		compressOnDrop: cfg.CompressOnDrop,
		fmt:            formatters.New(cfg.FormatConfig),
		file:           file,
		writer:         bufio.NewWriterSize(file, DefaultFileBufferSize),
		lock:           flock.New(cleanPath + ".lock"),
		size:           info.Size(),
		rotation:       rotation,
		compression:    compression,
		recovery:       features.NewRecoveryPolicy(),
	}
	rotation.AddLogPath(cleanPath)
	return sink, nil
}

// Name implements Sink.
func (s *FileSink) Name() string { return s.name }

// SetErrorHandler wires handler into the rotation manager, compression
// manager, and recovery policy, so every internal failure this sink
// produces reaches the same place.
func (s *FileSink) SetErrorHandler(handler types.ErrorHandler) {
	s.rotation.SetErrorHandler(handler)
	s.compression.SetErrorHandler(handler)
	s.recovery.SetErrorHandler(handler)
}

// Compressor exposes the sink's compression manager so the Lifecycle
// Controller can wait for its queue to drain on shutdown.
func (s *FileSink) Compressor() *features.CompressionManager {
	return s.compression
}

// Emit writes data to the current segment, rotating first if the write
// would cross the size threshold. Per the FileSegmentState invariant,
// bytes_written_in_current_file never exceeds max_file_size at any
// observation point between writes: a write that would cross it triggers
// rotation before the write is applied, so the new file receives it. The
// exception is a single write larger than max_file_size into an empty
// segment: it is applied as is, and that segment exceeds the threshold.
func (s *FileSink) Emit(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recovery.Disabled() {
		return fmt.Errorf("sink %s is disabled after a prior write failure", s.name)
	}

	if s.maxSize > 0 && s.size+int64(len(data)) > s.maxSize && s.size > 0 {
		if err := s.rotateLocked(); err != nil {
			return err
		}
	}

	if err := s.lock.Lock(); err != nil {
		s.recovery.OnWriteError(s.name, err)
		return fmt.Errorf("acquire file lock: %w", err)
	}
	defer s.lock.Unlock()

	n, err := s.writer.Write(data)
	s.size += int64(n)
	if err != nil {
		s.recovery.OnWriteError(s.name, err)
		return err
	}
	return nil
}

// Sync flushes the buffered writer and syncs the underlying file to disk.
func (s *FileSink) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncLocked()
}

func (s *FileSink) syncLocked() error {
	if err := s.writer.Flush(); err != nil {
		return err
	}
	return s.file.Sync()
}

// rotateLocked performs one rotation attempt, applying the retry-once
// policy on failure. Caller must hold s.mu.
func (s *FileSink) rotateLocked() error {
	_, err := s.rotation.RotateFile(s.path, s.writer)
	if err != nil {
		if s.recovery.OnRotateError(s.name, err) {
			_, err = s.rotation.RotateFile(s.path, s.writer)
			if err != nil {
				s.recovery.OnRotateError(s.name, err)
				return err
			}
		} else {
			return err
		}
	}
	s.recovery.OnRotateSuccess()

	if err := s.file.Close(); err != nil {
		return fmt.Errorf("closing rotated file handle: %w", err)
	}

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening new log segment: %w", err)
	}
	s.file = file
	s.writer = bufio.NewWriterSize(file, DefaultFileBufferSize)
	s.size = 0
	return nil
}

// OnCommand handles rotate, compress, flush and shutdown.
func (s *FileSink) OnCommand(cmd types.Command) error {
	switch cmd.Kind {
	case types.CmdRotate:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.rotateLocked()
	case types.CmdCompress:
		return s.compression.CompressFileSync(cmd.Path)
	case types.CmdFlush:
		return s.Sync()
	case types.CmdShutdown:
		return nil // draining is handled by Close
	default:
		return nil
	}
}

// Close drains the sink: flushes and syncs the current segment, then, if
// compress_on_drop is set, enqueues that live segment for compression
// instead of leaving it as a plain synced file (spec Invariant 5). It waits
// for any queued compression jobs, including that one, to finish before
// releasing the file handle.
func (s *FileSink) Close() error {
	s.mu.Lock()
	if err := s.syncLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.compressOnDrop {
		s.compression.QueueFile(s.path)
	}
	s.mu.Unlock()

	s.compression.Stop()
	return s.file.Close()
}

// IsRaw reports whether this sink bypasses the Formatter.
func (s *FileSink) IsRaw() bool { return s.isRaw }

// Format renders r through the sink's configured Formatter, or returns the
// message bytes verbatim when the sink is raw.
func (s *FileSink) Format(r *types.Record) []byte {
	if s.isRaw {
		out := make([]byte, 0, len(r.Message)+1)
		out = append(out, r.Message...)
		out = append(out, '\n')
		return out
	}
	return s.fmt.Format(r)
}

// Stats returns the sink's current file path and size, for diagnostics.
func (s *FileSink) Stats() (path string, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path, s.size
}
