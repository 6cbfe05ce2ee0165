package relay

import (
	"os"
	"time"

	"github.com/relaylog/relay/pkg/formatters"
	"github.com/relaylog/relay/pkg/types"
)

// EnvLevel is the environment variable consulted at install time when the
// builder did not set an explicit level, this spec's RUST_LOG equivalent.
const EnvLevel = "RELAY_LOG"

// Defaults per the external interface: channel capacities, batch
// thresholds, and file sink retention parameters.
const (
	DefaultChannelCapacity = 65536
	UDPChannelCapacity     = 4096

	DefaultBatchBytesAsync    = 8 * 1024
	DefaultBatchBytesSync     = 1
	DefaultBatchIntervalAsync = 100 * time.Millisecond
	DefaultBatchIntervalSync  = time.Millisecond
	DefaultBufferSizeAsync    = 64 * 1024
	DefaultBufferSizeSync     = 1024

	DefaultMaxFileSize        = 10 * 1024 * 1024
	DefaultMaxCompressedFiles = 5
	DefaultCompressionLevel   = 4
	DefaultMinCompressThreads = 2
)

// SinkKind selects which concrete sink a SinkSpec describes.
type SinkKind int

const (
	SinkTerminal SinkKind = iota
	SinkFile
	SinkUDP
)

// TerminalConfig configures a terminal sink.
type TerminalConfig struct {
	Raw    bool
	Colors *formatters.ColorConfig
}

// FileConfig configures a rotating, compressing file sink.
type FileConfig struct {
	Path               string
	MaxFileSize        int64
	MaxCompressedFiles int
	MaxArchiveAge      time.Duration
	CompressOnDrop     bool

	// CompressionLevel is the LZ4 level (1-9) applied to every retired
	// segment; 0 selects DefaultCompressionLevel.
	CompressionLevel int
	// CompressionThreads sizes the compression worker pool; 0 selects
	// DefaultMinCompressThreads.
	CompressionThreads int

	Raw bool
}

// UDPConfig configures a UDP network sink.
type UDPConfig struct {
	Addr      string
	AuthToken string
	AppID     string
}

// SinkSpec describes one sink to install: its kind, its kind-specific
// configuration, its rendering configuration, and an optional filter chain
// entry beyond the global level filter.
type SinkSpec struct {
	Name         string
	Kind         SinkKind
	Terminal     *TerminalConfig
	File         *FileConfig
	UDP          *UDPConfig
	FormatConfig formatters.FormatConfig

	// SkipServerLogs, when true, drops records with no app_id: the server's
	// own diagnostic output rather than a tracked application's.
	SkipServerLogs bool
	Filter         types.FilterFunc
}

// Config is the top-level installation configuration for a Logger.
type Config struct {
	Level        types.Level
	DevMode      bool
	Sync         bool
	Sinks        []SinkSpec
	GlobalFields map[string]any
	ErrorHandler types.ErrorHandler
}

// DefaultConfig returns a Config with sensible defaults: level left unset
// (Validate takes it from RELAY_LOG, else Info), a single terminal sink,
// async mode, no dev-mode.
func DefaultConfig() *Config {
	return &Config{
		Level: levelUnset,
		Sinks: []SinkSpec{
			{
				Name:         "stdout",
				Kind:         SinkTerminal,
				Terminal:     &TerminalConfig{},
				FormatConfig: formatters.DefaultFormatConfig(),
			},
		},
	}
}

// Validate clamps or repairs impossible values and reports the ones it
// cannot: an empty sink set, a file sink with no path, or a UDP sink with
// no address are ConfigInvalid.
func (c *Config) Validate() error {
	if c.ErrorHandler == nil {
		c.ErrorHandler = defaultErrorHandler()
	}
	if c.Level == levelUnset {
		if lv, ok := types.ParseLevel(os.Getenv(EnvLevel)); ok {
			c.Level = lv
		} else {
			c.Level = types.LevelInfo
		}
	}
	if len(c.Sinks) == 0 {
		return newLogError(types.ErrConfigInvalid, "validate", "at least one sink is required", nil)
	}

	seen := make(map[string]bool, len(c.Sinks))
	for i := range c.Sinks {
		s := &c.Sinks[i]
		if s.Name == "" {
			return newLogError(types.ErrConfigInvalid, "validate", "sink name must not be empty", nil)
		}
		if seen[s.Name] {
			return newLogError(types.ErrConfigInvalid, "validate", "duplicate sink name "+s.Name, nil)
		}
		seen[s.Name] = true

		if s.FormatConfig.Template == "" {
			s.FormatConfig = formatters.DefaultFormatConfig()
		}

		switch s.Kind {
		case SinkTerminal:
			if s.Terminal == nil {
				s.Terminal = &TerminalConfig{}
			}
		case SinkFile:
			if s.File == nil || s.File.Path == "" {
				return newLogError(types.ErrConfigInvalid, "validate", "file sink "+s.Name+" requires a path", nil)
			}
			if s.File.MaxFileSize < 0 {
				s.File.MaxFileSize = DefaultMaxFileSize
			}
			if s.File.CompressOnDrop && s.File.MaxCompressedFiles <= 0 {
				s.File.MaxCompressedFiles = DefaultMaxCompressedFiles
			}
			if s.File.CompressionLevel <= 0 {
				s.File.CompressionLevel = DefaultCompressionLevel
			}
			if s.File.CompressionThreads <= 0 {
				s.File.CompressionThreads = DefaultMinCompressThreads
			}
		case SinkUDP:
			if s.UDP == nil || s.UDP.Addr == "" {
				return newLogError(types.ErrConfigInvalid, "validate", "udp sink "+s.Name+" requires an address", nil)
			}
		default:
			return newLogError(types.ErrConfigInvalid, "validate", "unknown sink kind for "+s.Name, nil)
		}
	}
	return nil
}

// channelCapacity returns the per-sink command channel capacity, per the
// external interface defaults (UDP gets a smaller queue than Terminal/File).
func (s SinkSpec) channelCapacity() int {
	if s.Kind == SinkUDP {
		return UDPChannelCapacity
	}
	return DefaultChannelCapacity
}

