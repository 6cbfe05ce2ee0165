// Package types holds the data model shared by every layer of the logger:
// the record and level types, the per-sink command union, and the small
// function types (filters, error handlers) that let higher packages plug
// into lower ones without an import cycle.
package types

import (
	"time"

	"github.com/relaylog/relay/internal/refc"
)

// Level identifies the severity of a Record. Levels are ordered so that
// Trace < Debug < Info < Warn < Error.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the upper-case name of the level, e.g. "INFO".
func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a case-insensitive level name, as used for RELAY_LOG.
func ParseLevel(s string) (Level, bool) {
	switch lower(s) {
	case "trace":
		return LevelTrace, true
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	default:
		return LevelInfo, false
	}
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Record is an immutable log event. It is created once at the log call
// site and shared by reference among every sink of a single broadcast; no
// field is mutated after construction.
type Record struct {
	Level     Level
	Target    string
	Message   string
	Module    string
	File      string
	Line      int
	AuthToken string
	AppID     string
	Fields    map[string]any
	Time      time.Time
}

// HasFile reports whether File/Line metadata was captured for this record.
func (r *Record) HasFile() bool {
	return r.File != ""
}

// CommandKind identifies the variant of a Command.
type CommandKind int

const (
	// CmdWrite carries a Record to be formatted and emitted.
	CmdWrite CommandKind = iota
	// CmdFlush asks the sink to emit its current batch and sync.
	CmdFlush
	// CmdRotate asks a file sink to rotate its current file.
	CmdRotate
	// CmdCompress asks a file sink to compress the segment at Path; the
	// file sink does so synchronously, on its worker goroutine.
	CmdCompress
	// CmdShutdown asks the sink worker to drain, flush and exit.
	CmdShutdown
)

// Command is the value carried on every per-sink channel. The Record
// payload is a reference-counted handle so broadcasting to N sinks costs
// N pointer bumps, not N copies of the record.
type Command struct {
	Kind CommandKind
	Rec  *refc.Handle[*Record]
	Path string        // for CmdCompress
	Done chan struct{} // for CmdFlush in dev-mode: closed once processed
}

// FilterFunc decides whether a record should reach a sink. It returns true
// to keep the record.
type FilterFunc func(r *Record) bool

// ErrorHandler receives internal failures that are never surfaced to
// producers: a sink failing to write, a worker channel closing, etc.
type ErrorHandler func(source, dest, message string, err error)

// ErrorKind enumerates the kinds of error the builder/install API can
// return. Producer-facing calls never return an error at all.
type ErrorKind int

const (
	ErrAlreadyInstalled ErrorKind = iota
	ErrConfigInvalid
	ErrIoFailed
	ErrNetworkFailed
	ErrChannelClosed
)

func (k ErrorKind) String() string {
	switch k {
	case ErrAlreadyInstalled:
		return "already_installed"
	case ErrConfigInvalid:
		return "config_invalid"
	case ErrIoFailed:
		return "io_failed"
	case ErrNetworkFailed:
		return "network_failed"
	case ErrChannelClosed:
		return "channel_closed"
	default:
		return "unknown"
	}
}

// LogError is returned by the builder/install API. It is never surfaced to
// producer-facing calls.
type LogError struct {
	Kind    ErrorKind
	Op      string
	Dest    string
	Message string
	Err     error
}

func (e *LogError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Kind.String()
}

func (e *LogError) Unwrap() error { return e.Err }

// SinkStats is a point-in-time snapshot of a single sink's counters, used
// by Logger.Metrics.
type SinkStats struct {
	Name          string
	QueueDepth    int
	QueueCapacity int
	Written       uint64
	Dropped       uint64
	Errors        uint64
	LastError     time.Time
}
