package relay

import "github.com/relaylog/relay/pkg/types"

// Level identifies the severity of a log record.
type Level = types.Level

const (
	LevelTrace = types.LevelTrace
	LevelDebug = types.LevelDebug
	LevelInfo  = types.LevelInfo
	LevelWarn  = types.LevelWarn
	LevelError = types.LevelError

	// levelUnset marks a Config whose Level has not been chosen (DefaultConfig
	// and LoadConfig start from it) so Validate knows to consult RELAY_LOG
	// before falling back to LevelInfo. A Config literal that omits Level
	// gets the zero value, LevelTrace, instead.
	levelUnset Level = -1
)

// ParseLevel parses a case-insensitive level name, as used for RELAY_LOG.
func ParseLevel(s string) (Level, bool) { return types.ParseLevel(s) }
