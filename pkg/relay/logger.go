package relay

import (
	"fmt"
	"os"
	"runtime"

	"github.com/relaylog/relay/internal/batch"
	"github.com/relaylog/relay/pkg/dispatch"
	"github.com/relaylog/relay/pkg/features"
	"github.com/relaylog/relay/pkg/formatters"
	"github.com/relaylog/relay/pkg/sinkio"
	"github.com/relaylog/relay/pkg/types"
)

// Logger fans records out to every sink configured at New/Install time. It
// is safe for concurrent use by any number of producer goroutines.
type Logger struct {
	dispatcher *dispatch.Dispatcher
	controller *dispatch.Controller
	fields     map[string]any
	appID      string
}

// New builds a standalone Logger from cfg, without installing it as the
// process-wide default. Callers that only need one logger for tests or
// small tools can use this directly instead of Install/Global.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := dispatch.New(cfg.Level)
	d.SetDevMode(cfg.DevMode)
	ctl := dispatch.NewController(d)

	for _, spec := range cfg.Sinks {
		sink, comp, err := buildSink(spec, cfg.ErrorHandler)
		if err != nil {
			return nil, err
		}
		if comp != nil {
			ctl.TrackCompressor(comp)
		}

		wc := dispatch.WorkerConfig{
			QueueCapacity: spec.channelCapacity(),
			Batch: batch.Config{
				MaxBytes: DefaultBatchBytesAsync,
				Interval: DefaultBatchIntervalAsync,
				Capacity: DefaultBufferSizeAsync,
			},
			FilterFunc: buildFilter(spec),
		}
		wc = dispatch.ApplySyncMode(wc, cfg.Sync)
		if spec.Kind == SinkUDP {
			wc = dispatch.ApplyUDPMode(wc)
		}

		w := dispatch.NewWorker(spec.Name, sink, wc, cfg.ErrorHandler)
		d.Register(w)
	}

	return &Logger{dispatcher: d, controller: ctl, fields: cfg.GlobalFields}, nil
}

// buildFilter composes the sink's skip-server-logs flag with any explicit
// Filter into a features.FilterManager chain, or nil if neither is set —
// a sink with no filters configured skips the chain entirely rather than
// paying for an always-true one. skip_server_logs runs first so a caller
// disabling it by name later (FilterManager.SetEnabled) doesn't disturb the
// custom filter's evaluation order.
func buildFilter(spec SinkSpec) types.FilterFunc {
	if !spec.SkipServerLogs && spec.Filter == nil {
		return nil
	}
	fm := features.NewFilterManager()
	if spec.SkipServerLogs {
		_ = fm.AddFilter("skip_server_logs", 100, features.SkipServerLogs())
	}
	if spec.Filter != nil {
		_ = fm.AddFilter("custom", 0, spec.Filter)
	}
	return fm.Allow
}

// buildSink constructs the concrete sink for spec. It also returns the
// sink's compression manager, if any, so the caller can register it with
// the Lifecycle Controller's drain wait.
func buildSink(spec SinkSpec, errHandler types.ErrorHandler) (dispatch.Sink, dispatch.Compressor, error) {
	switch spec.Kind {
	case SinkTerminal:
		f := formatters.New(spec.FormatConfig)
		if spec.Terminal.Colors != nil {
			cfgWithColor := spec.FormatConfig
			cfgWithColor.Colors = spec.Terminal.Colors
			f = formatters.New(cfgWithColor)
		}
		sink := sinkio.NewTerminalSink(spec.Name, os.Stdout, nil, spec.Terminal.Raw, f)
		return sink, nil, nil

	case SinkFile:
		fc := spec.File
		var maxAgeSeconds int64
		if fc.MaxArchiveAge > 0 {
			maxAgeSeconds = int64(fc.MaxArchiveAge.Seconds())
		}
		sink, err := sinkio.NewFileSink(spec.Name, sinkio.FileSinkConfig{
			Path:               fc.Path,
			MaxFileSize:        fc.MaxFileSize,
			MaxAge:             maxAgeSeconds,
			CompressOnDrop:     fc.CompressOnDrop,
			MaxArchives:        fc.MaxCompressedFiles,
			CompressionLevel:   fc.CompressionLevel,
			CompressionThreads: fc.CompressionThreads,
			IsRaw:              fc.Raw,
			FormatConfig:       spec.FormatConfig,
		})
		if err != nil {
			return nil, nil, newLogError(types.ErrIoFailed, "open", "opening file sink "+spec.Name, err)
		}
		sink.SetErrorHandler(errHandler)
		return sink, sink.Compressor(), nil

	case SinkUDP:
		uc := spec.UDP
		sink, err := sinkio.NewUdpSink(spec.Name, uc.Addr, uc.AuthToken, uc.AppID)
		if err != nil {
			return nil, nil, newLogError(types.ErrNetworkFailed, "dial", "opening udp sink "+spec.Name, err)
		}
		return sink, nil, nil

	default:
		return nil, nil, newLogError(types.ErrConfigInvalid, "build", "unknown sink kind", nil)
	}
}

// Enabled reports whether a record at level would be dispatched to any
// sink, without allocating a Record.
func (l *Logger) Enabled(level types.Level) bool {
	return l.dispatcher.Enabled(level)
}

// SetLevel updates the global level filter.
func (l *Logger) SetLevel(level types.Level) {
	l.dispatcher.SetLevel(level)
}

// WithFields returns a Logger that merges extra into every record's
// fields, in addition to any fields already attached. The returned Logger
// shares the same dispatcher and sinks as l.
func (l *Logger) WithFields(extra map[string]any) *Logger {
	return &Logger{
		dispatcher: l.dispatcher,
		controller: l.controller,
		fields:     withFields(l.fields, extra),
		appID:      l.appID,
	}
}

// WithAppID returns a Logger that stamps every record with id as its
// app_id, the field the skip-server-logs filter keys on. The UDP sink does
// not read it: its frames carry the sink's configured app id. A Logger with
// no app_id attached
// is, by that filter's definition, the server's own diagnostic output.
func (l *Logger) WithAppID(id string) *Logger {
	return &Logger{
		dispatcher: l.dispatcher,
		controller: l.controller,
		fields:     l.fields,
		appID:      id,
	}
}

// Flush enqueues a Flush command on every sink; in dev-mode it blocks until
// every sink has committed its pending records.
func (l *Logger) Flush() {
	l.dispatcher.Flush()
}

// Close runs the Lifecycle Controller's teardown sequence: shutdown every
// worker, drain each sink's compression queue, and release resources.
func (l *Logger) Close() {
	l.controller.Shutdown()
}

// Metrics returns a point-in-time snapshot of every sink's counters.
func (l *Logger) Metrics() []types.SinkStats {
	workers := l.dispatcher.Workers()
	out := make([]types.SinkStats, len(workers))
	for i, w := range workers {
		out[i] = w.Stats()
	}
	return out
}

func (l *Logger) log(level Level, target, message string) {
	if !l.Enabled(level) {
		return
	}
	file, line := callerInfo(3)
	r := newRecord(level, target, message, "", file, line, l.appID, l.fields)
	l.dispatcher.Log(r)
}

// callerInfo returns the file path, as runtime.Caller reports it, and the
// line number skip frames above
// the call to callerInfo, or ("", 0) if it cannot be determined.
func callerInfo(skip int) (string, int) {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "", 0
	}
	return file, line
}

// Trace logs message at Trace level.
func (l *Logger) Trace(target, message string) { l.log(LevelTrace, target, message) }

// Debug logs message at Debug level.
func (l *Logger) Debug(target, message string) { l.log(LevelDebug, target, message) }

// Info logs message at Info level.
func (l *Logger) Info(target, message string) { l.log(LevelInfo, target, message) }

// Warn logs message at Warn level.
func (l *Logger) Warn(target, message string) { l.log(LevelWarn, target, message) }

// Error logs message at Error level.
func (l *Logger) Error(target, message string) { l.log(LevelError, target, message) }

// Tracef formats and logs at Trace level.
func (l *Logger) Tracef(target, format string, args ...any) {
	l.log(LevelTrace, target, fmt.Sprintf(format, args...))
}

// Debugf formats and logs at Debug level.
func (l *Logger) Debugf(target, format string, args ...any) {
	l.log(LevelDebug, target, fmt.Sprintf(format, args...))
}

// Infof formats and logs at Info level.
func (l *Logger) Infof(target, format string, args ...any) {
	l.log(LevelInfo, target, fmt.Sprintf(format, args...))
}

// Warnf formats and logs at Warn level.
func (l *Logger) Warnf(target, format string, args ...any) {
	l.log(LevelWarn, target, fmt.Sprintf(format, args...))
}

// Errorf formats and logs at Error level.
func (l *Logger) Errorf(target, format string, args ...any) {
	l.log(LevelError, target, fmt.Sprintf(format, args...))
}
