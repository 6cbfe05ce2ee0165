package sinkio

import (
	"net"
	"testing"
	"time"

	"github.com/relaylog/relay/pkg/types"
)

func TestUdpSinkFormatAndEmit(t *testing.T) {
	addr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	server, err := net.ListenUDP("udp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer server.Close()

	sink, err := NewUdpSink("udp", server.LocalAddr().String(), "t", "a")
	if err != nil {
		t.Fatalf("NewUdpSink() error: %v", err)
	}
	defer sink.Close()

	r := &types.Record{Level: types.LevelInfo, Target: "x", Message: "hi", Time: time.Unix(0, 0)}
	if err := sink.Emit(sink.Format(r)); err != nil {
		t.Fatalf("Emit() error: %v", err)
	}

	server.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 256)
	n, _, err := server.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP() error: %v", err)
	}
	if n == 0 {
		t.Fatal("expected a non-empty datagram")
	}
}

func TestUdpSinkResolveError(t *testing.T) {
	if _, err := NewUdpSink("udp", "not a valid address", "t", "a"); err == nil {
		t.Error("expected error resolving an invalid address")
	}
}

func TestUdpSinkCloseIsIdempotentSafe(t *testing.T) {
	addr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	server, err := net.ListenUDP("udp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer server.Close()

	sink, err := NewUdpSink("udp", server.LocalAddr().String(), "t", "a")
	if err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}
