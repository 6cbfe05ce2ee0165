package relay

import "sync/atomic"

// global holds the process-wide installed Logger, if any. It is set
// exactly once by Install; subsequent attempts fail with AlreadyInstalled.
var global atomic.Pointer[Logger]

// Install builds a Logger from cfg and sets it as the process-wide
// default. It fails with AlreadyInstalled if a logger is already in
// place; the global logger must be installed from exactly one call site.
func Install(cfg *Config) (*Logger, error) {
	if !global.CompareAndSwap(nil, &installing) {
		return nil, errAlreadyInstalled
	}

	logger, err := New(cfg)
	if err != nil {
		global.Store(nil)
		return nil, err
	}
	global.Store(logger)
	return logger, nil
}

// installing is a placeholder pointer used to atomically claim the install
// slot before New has finished building the real Logger, so two concurrent
// Install calls cannot both proceed.
var installing Logger

// Global returns the process-wide installed Logger, or nil if none has
// been installed.
func Global() *Logger {
	l := global.Load()
	if l == &installing {
		return nil
	}
	return l
}

// Uninstall tears down and clears the process-wide logger, if any. It is
// meant for tests that install a logger per test case.
func Uninstall() {
	l := global.Swap(nil)
	if l != nil && l != &installing {
		l.Close()
	}
}

func withGlobal(fn func(*Logger)) {
	if l := Global(); l != nil {
		fn(l)
	}
}

// Trace logs message at Trace level on the global logger, if installed.
func Trace(target, message string) { withGlobal(func(l *Logger) { l.Trace(target, message) }) }

// Debug logs message at Debug level on the global logger, if installed.
func Debug(target, message string) { withGlobal(func(l *Logger) { l.Debug(target, message) }) }

// Info logs message at Info level on the global logger, if installed.
func Info(target, message string) { withGlobal(func(l *Logger) { l.Info(target, message) }) }

// Warn logs message at Warn level on the global logger, if installed.
func Warn(target, message string) { withGlobal(func(l *Logger) { l.Warn(target, message) }) }

// Error logs message at Error level on the global logger, if installed.
func Error(target, message string) { withGlobal(func(l *Logger) { l.Error(target, message) }) }

// Tracef formats and logs at Trace level on the global logger.
func Tracef(target, format string, args ...any) {
	withGlobal(func(l *Logger) { l.Tracef(target, format, args...) })
}

// Debugf formats and logs at Debug level on the global logger.
func Debugf(target, format string, args ...any) {
	withGlobal(func(l *Logger) { l.Debugf(target, format, args...) })
}

// Infof formats and logs at Info level on the global logger.
func Infof(target, format string, args ...any) {
	withGlobal(func(l *Logger) { l.Infof(target, format, args...) })
}

// Warnf formats and logs at Warn level on the global logger.
func Warnf(target, format string, args ...any) {
	withGlobal(func(l *Logger) { l.Warnf(target, format, args...) })
}

// Errorf formats and logs at Error level on the global logger.
func Errorf(target, format string, args ...any) {
	withGlobal(func(l *Logger) { l.Errorf(target, format, args...) })
}

// Flush flushes the global logger, if installed.
func Flush() { withGlobal(func(l *Logger) { l.Flush() }) }
