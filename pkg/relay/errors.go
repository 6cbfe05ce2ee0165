package relay

import (
	"fmt"
	"os"
	"strings"

	"github.com/relaylog/relay/pkg/types"
)

// newLogError builds a *types.LogError for the builder/install API, the
// only surface that returns errors at all.
func newLogError(kind types.ErrorKind, op, message string, err error) *types.LogError {
	return &types.LogError{Kind: kind, Op: op, Message: message, Err: err}
}

// errAlreadyInstalled is returned by Install when a global logger is
// already in place.
var errAlreadyInstalled = newLogError(types.ErrAlreadyInstalled, "install", "a logger is already installed", nil)

// DefaultErrorHandler writes internal failures to stderr, matching the
// teacher's stderr handler used when the caller hasn't supplied one.
func DefaultErrorHandler(source, dest, message string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "relay: %s(%s): %s: %v\n", source, dest, message, err)
		return
	}
	fmt.Fprintf(os.Stderr, "relay: %s(%s): %s\n", source, dest, message)
}

// SilentErrorHandler discards every internal failure notification. It is
// selected automatically in test mode.
func SilentErrorHandler(source, dest, message string, err error) {}

// isTestMode reports whether the process is running under `go test`,
// matching the teacher's pattern of quieting default error output during
// its own test runs.
func isTestMode() bool {
	for _, arg := range os.Args {
		if strings.HasPrefix(arg, "-test.") {
			return true
		}
	}
	if exe, err := os.Executable(); err == nil {
		if strings.HasSuffix(exe, ".test") {
			return true
		}
	}
	return false
}

func defaultErrorHandler() types.ErrorHandler {
	if isTestMode() {
		return SilentErrorHandler
	}
	return DefaultErrorHandler
}
