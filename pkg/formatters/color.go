package formatters

import "github.com/relaylog/relay/pkg/types"

// ANSI escape codes used by ColorConfig. Only a fixed palette is exposed;
// callers pick a name rather than composing raw codes.
const (
	ansiReset   = "\x1b[0m"
	ansiRed     = "\x1b[31m"
	ansiYellow  = "\x1b[33m"
	ansiGreen   = "\x1b[32m"
	ansiCyan    = "\x1b[36m"
	ansiGray    = "\x1b[90m"
	ansiBoldRed = "\x1b[1;31m"
)

// ColorConfig maps each level to an ANSI color applied to the {level}
// placeholder's substituted text. Enabled gates whether colors are emitted
// at all, so a formatter can be built once and toggled for non-tty output.
type ColorConfig struct {
	Enabled bool
	Trace   string
	Debug   string
	Info    string
	Warn    string
	Error   string
}

// DefaultColorConfig returns a conventional trace-to-error color ramp, with
// coloring disabled by default.
func DefaultColorConfig() ColorConfig {
	return ColorConfig{
		Enabled: false,
		Trace:   ansiGray,
		Debug:   ansiCyan,
		Info:    ansiGreen,
		Warn:    ansiYellow,
		Error:   ansiBoldRed,
	}
}

func (c *ColorConfig) codeFor(level types.Level) string {
	if c == nil || !c.Enabled {
		return ""
	}
	switch level {
	case types.LevelTrace:
		return c.Trace
	case types.LevelDebug:
		return c.Debug
	case types.LevelInfo:
		return c.Info
	case types.LevelWarn:
		return c.Warn
	case types.LevelError:
		return c.Error
	default:
		return ""
	}
}

// wrap surrounds s with the color code for level, followed by a reset, if
// coloring is enabled and a code is configured for that level.
func (c *ColorConfig) wrap(level types.Level, s string) string {
	code := c.codeFor(level)
	if code == "" {
		return s
	}
	return code + s + ansiReset
}
