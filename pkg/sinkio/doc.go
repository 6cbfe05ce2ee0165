// Package sinkio implements the concrete sink capability set — a small
// polymorphic contract (Emit, Sync, OnCommand, Close) selected at install
// time. TerminalSink, FileSink, and UdpSink are its three variants.
package sinkio
