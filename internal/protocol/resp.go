// Package protocol implements RESP encoding and a per-connection framer
// that turns a byte stream into command frames.
package protocol

import (
	"fmt"
	"strings"
)

// Command is a single parsed command frame: the command name followed by
// its arguments, exactly as received on the wire.
type Command struct {
	Args []string
}

// Name returns the command's uppercased name, or "" for an empty frame.
func (c *Command) Name() string {
	if c == nil || len(c.Args) == 0 {
		return ""
	}
	return strings.ToUpper(c.Args[0])
}

func EncodeSimpleString(s string) []byte {
	return []byte(fmt.Sprintf("+%s\r\n", s))
}

// EncodeError formats an error reply. Callers pass the full message
// including its tag (ERR, READONLY, ...).
func EncodeError(msg string) []byte {
	return []byte(fmt.Sprintf("-%s\r\n", msg))
}

func EncodeInteger(n int64) []byte {
	return []byte(fmt.Sprintf(":%d\r\n", n))
}

// EncodeBulkString encodes a present bulk string.
func EncodeBulkString(s string) []byte {
	return []byte(fmt.Sprintf("$%d\r\n%s\r\n", len(s), s))
}

func EncodeNullBulkString() []byte {
	return []byte("$-1\r\n")
}

func EncodeNullArray() []byte {
	return []byte("*-1\r\n")
}

// EncodeArray encodes a RESP array whose elements are plain bulk strings.
func EncodeArray(items []string) []byte {
	out := []byte(fmt.Sprintf("*%d\r\n", len(items)))
	for _, item := range items {
		out = append(out, EncodeBulkString(item)...)
	}
	return out
}

// EncodeRawArray wraps a list of already-encoded RESP values in an array
// header. Used by EXEC to return the queued commands' replies verbatim.
func EncodeRawArray(items [][]byte) []byte {
	out := []byte(fmt.Sprintf("*%d\r\n", len(items)))
	for _, item := range items {
		out = append(out, item...)
	}
	return out
}

// EncodeCommand canonically re-serializes a command as a RESP array of
// bulk strings. This is the exact byte form propagated to replicas, so its
// length is the unit master_repl_offset advances by.
func EncodeCommand(args []string) []byte {
	return EncodeArray(args)
}

// EncodeRawFile frames a raw byte payload the way PSYNC's RDB transfer
// does: a bulk-string length header with no trailing CRLF after the bytes.
func EncodeRawFile(data []byte) []byte {
	out := []byte(fmt.Sprintf("$%d\r\n", len(data)))
	return append(out, data...)
}
