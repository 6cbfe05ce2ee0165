package relay

import (
	"time"

	"github.com/relaylog/relay/pkg/types"
)

// newRecord builds an immutable Record for the current call site. Time is
// stamped now; sinks that render a different timestamp representation do
// so from this single captured instant. appID is empty for a Logger with no
// tracked application attached, which is what the server-log skip filter
// treats as the server's own diagnostic output.
func newRecord(level types.Level, target, message, module, file string, line int, appID string, fields map[string]any) *types.Record {
	return &types.Record{
		Level:   level,
		Target:  target,
		Message: message,
		Module:  module,
		File:    file,
		Line:    line,
		AppID:   appID,
		Fields:  fields,
		Time:    time.Now(),
	}
}

func withFields(base map[string]any, extra map[string]any) map[string]any {
	if len(extra) == 0 {
		return base
	}
	merged := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
