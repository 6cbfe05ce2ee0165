// Package formatters renders a Record into formatted bytes according to a
// placeholder template and an optional ANSI color scheme. Sinks call
// Formatter.Format and are otherwise unaware of how the line is built.
package formatters

import "time"

// DefaultTemplate is the template used when none is configured, matching
// the placeholder set this package recognizes.
const DefaultTemplate = "{timestamp} [{level}] {target} {message}"

// DefaultTimestampFormat is a Go reference-time layout. Timestamp formats
// are passed to time.Time.Format as they are; strftime-style directives
// such as %Y are not translated and appear literally in the output.
const DefaultTimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// LevelStyle maps each level to the text label the formatter substitutes
// for the {level} placeholder.
type LevelStyle struct {
	Trace string
	Debug string
	Info  string
	Warn  string
	Error string
}

// DefaultLevelStyle labels levels with their upper-case names.
func DefaultLevelStyle() LevelStyle {
	return LevelStyle{
		Trace: "TRACE",
		Debug: "DEBUG",
		Info:  "INFO",
		Warn:  "WARN",
		Error: "ERROR",
	}
}

// FormatConfig configures a Formatter: the placeholder template, the
// per-level labels, the timestamp layout, and an optional color scheme.
type FormatConfig struct {
	Template        string
	TimestampFormat string
	Levels          LevelStyle
	Colors          *ColorConfig
	TimeZone        *time.Location
}

// DefaultFormatConfig returns a FormatConfig with the package defaults and
// no coloring.
func DefaultFormatConfig() FormatConfig {
	return FormatConfig{
		Template:        DefaultTemplate,
		TimestampFormat: DefaultTimestampFormat,
		Levels:          DefaultLevelStyle(),
		TimeZone:        time.UTC,
	}
}
