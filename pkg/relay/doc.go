// Package relay is a high-throughput, thread-safe, multi-sink logging
// library. A single Logger fans records out to any number of independently
// configured sinks — terminal, rotating/compressed file, UDP — each
// draining on its own goroutine, without ever stalling the caller.
//
// Install a process-wide default with Install, or build a standalone
// Logger with New for tests and tools that don't want a global.
package relay
