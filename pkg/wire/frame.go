// Package wire implements the binary datagram format the UDP sink sends:
// one record per datagram, little-endian throughout, binary-compatible
// with an external receiver that this package does not implement.
package wire

import (
	"encoding/binary"
	"errors"

	"github.com/relaylog/relay/pkg/types"
)

// ErrTruncated is returned by Decode when the input ends before a field
// declared by an earlier length prefix or flag has been fully read.
var ErrTruncated = errors.New("wire: frame truncated")

const (
	flagFile = 1 << 0
	flagLine = 1 << 1
)

// Frame is the decoded form of one datagram, used by tests and by any
// future receiver-side tooling.
type Frame struct {
	AuthToken string
	AppID     string
	Level     types.Level
	Target    string
	Message   string
	File      string
	HasFile   bool
	Line      uint32
	HasLine   bool
	UnixNanos uint64
}

// Encode renders r as one datagram, prefixed with the auth token and app id
// from configuration. Layout: length-prefixed auth_token; length-prefixed
// app_id; level u8; length-prefixed target; length-prefixed message; one
// flags byte (bit0 = file present, bit1 = line present); optional
// length-prefixed file; optional line u32; unix_nanos u64. All integers
// little-endian.
func Encode(r *types.Record, authToken, appID string) []byte {
	size := 4 + len(authToken) + 4 + len(appID) + 1 + 4 + len(r.Target) + 4 + len(r.Message) + 1 + 8
	hasFile := r.HasFile()
	if hasFile {
		size += 4 + len(r.File)
	}
	hasLine := hasFile
	if hasLine {
		size += 4
	}

	buf := make([]byte, 0, size)
	buf = appendString(buf, authToken)
	buf = appendString(buf, appID)
	buf = append(buf, byte(r.Level))
	buf = appendString(buf, r.Target)
	buf = appendString(buf, r.Message)

	var flags byte
	if hasFile {
		flags |= flagFile
	}
	if hasLine {
		flags |= flagLine
	}
	buf = append(buf, flags)
	if hasFile {
		buf = appendString(buf, r.File)
	}
	if hasLine {
		var lb [4]byte
		binary.LittleEndian.PutUint32(lb[:], uint32(r.Line))
		buf = append(buf, lb[:]...)
	}

	var nb [8]byte
	binary.LittleEndian.PutUint64(nb[:], uint64(r.Time.UnixNano()))
	buf = append(buf, nb[:]...)
	return buf
}

// Decode parses a datagram produced by Encode.
func Decode(data []byte) (Frame, error) {
	var f Frame
	rest := data

	token, rest, err := readString(rest)
	if err != nil {
		return f, err
	}
	f.AuthToken = token

	app, rest, err := readString(rest)
	if err != nil {
		return f, err
	}
	f.AppID = app

	if len(rest) < 1 {
		return f, ErrTruncated
	}
	f.Level = types.Level(rest[0])
	rest = rest[1:]

	target, rest, err := readString(rest)
	if err != nil {
		return f, err
	}
	f.Target = target

	message, rest, err := readString(rest)
	if err != nil {
		return f, err
	}
	f.Message = message

	if len(rest) < 1 {
		return f, ErrTruncated
	}
	flags := rest[0]
	rest = rest[1:]

	if flags&flagFile != 0 {
		file, r2, err := readString(rest)
		if err != nil {
			return f, err
		}
		f.File = file
		f.HasFile = true
		rest = r2
	}
	if flags&flagLine != 0 {
		if len(rest) < 4 {
			return f, ErrTruncated
		}
		f.Line = binary.LittleEndian.Uint32(rest[:4])
		f.HasLine = true
		rest = rest[4:]
	}

	if len(rest) < 8 {
		return f, ErrTruncated
	}
	f.UnixNanos = binary.LittleEndian.Uint64(rest[:8])
	return f, nil
}

func appendString(buf []byte, s string) []byte {
	var lb [4]byte
	binary.LittleEndian.PutUint32(lb[:], uint32(len(s)))
	buf = append(buf, lb[:]...)
	return append(buf, s...)
}

func readString(data []byte) (string, []byte, error) {
	if len(data) < 4 {
		return "", nil, ErrTruncated
	}
	n := binary.LittleEndian.Uint32(data[:4])
	data = data[4:]
	if uint64(len(data)) < uint64(n) {
		return "", nil, ErrTruncated
	}
	return string(data[:n]), data[n:], nil
}
