package evaluator

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"redisgo/internal/protocol"
	"redisgo/internal/storage"
)

const xreadPollInterval = 10 * time.Millisecond

func handleXAdd(e *Evaluator, sess *Session, name string, args []string) []byte {
	if len(args) < 4 || len(args)%2 != 0 {
		return protocol.EncodeError("ERR wrong number of arguments for 'xadd' command")
	}

	key, idStr := args[0], args[1]
	id, err := storage.ParseStreamID(idStr)
	if err != nil {
		return protocol.EncodeError("ERR Invalid stream ID specified as stream command argument")
	}

	fieldValues := args[2:]
	attrs := make([]storage.FieldValue, 0, len(fieldValues)/2)
	for i := 0; i < len(fieldValues); i += 2 {
		attrs = append(attrs, storage.FieldValue{Field: fieldValues[i], Value: fieldValues[i+1]})
	}

	e.mu.Lock()
	gotID, err := e.streams.XAdd(key, id, attrs)
	e.mu.Unlock()

	if err != nil {
		switch err {
		case storage.ErrIDIsZero:
			return protocol.EncodeError(fmt.Sprintf("ERR The ID specified in XADD %s", err))
		case storage.ErrIDTooSmall:
			return protocol.EncodeError(fmt.Sprintf("ERR The ID specified in XADD %s", err))
		default:
			return protocol.EncodeError(fmt.Sprintf("ERR %v", err))
		}
	}

	e.propagate(name, args)
	return protocol.EncodeBulkString(gotID.String())
}

func handleXRange(e *Evaluator, sess *Session, name string, args []string) []byte {
	if len(args) != 3 {
		return protocol.EncodeError("ERR wrong number of arguments for 'xrange' command")
	}

	start, err := storage.ParseStreamID(args[1])
	if err != nil {
		return protocol.EncodeError("ERR Invalid stream ID specified as stream command argument")
	}
	end, err := storage.ParseStreamID(args[2])
	if err != nil {
		return protocol.EncodeError("ERR Invalid stream ID specified as stream command argument")
	}

	e.mu.Lock()
	entries := e.streams.XRange(args[0], start, end)
	e.mu.Unlock()

	return encodeStreamEntries(entries)
}

// handleXRead implements XREAD [BLOCK ms] STREAMS k1 ... kN id1 ... idN.
// Per the resolved open question, it returns the null bulk reply only
// when every requested stream is empty, not on the first empty one.
func handleXRead(e *Evaluator, sess *Session, name string, args []string) []byte {
	blockMs := -1
	idx := 0

	for idx < len(args) {
		switch strings.ToUpper(args[idx]) {
		case "BLOCK":
			if idx+1 >= len(args) {
				return protocol.EncodeError("ERR syntax error")
			}
			ms, err := strconv.Atoi(args[idx+1])
			if err != nil {
				return protocol.EncodeError("ERR timeout is not an integer or out of range")
			}
			blockMs = ms
			idx += 2
		case "STREAMS":
			idx++
			return xreadFromStreams(e, args[idx:], blockMs)
		default:
			return protocol.EncodeError("ERR syntax error")
		}
	}

	return protocol.EncodeError("ERR syntax error")
}

func xreadFromStreams(e *Evaluator, rest []string, blockMs int) []byte {
	if len(rest) == 0 || len(rest)%2 != 0 {
		return protocol.EncodeError("ERR Unbalanced XREAD list of streams: for each stream key an ID or '$' must be specified.")
	}

	n := len(rest) / 2
	keys := rest[:n]
	ids := make([]storage.StreamID, n)
	for i, s := range rest[n:] {
		id, err := storage.ParseStreamID(s)
		if err != nil {
			return protocol.EncodeError("ERR Invalid stream ID specified as stream command argument")
		}
		ids[i] = id
	}

	read := func() [][]storage.StreamEntry {
		e.mu.Lock()
		defer e.mu.Unlock()
		out := make([][]storage.StreamEntry, n)
		for i, k := range keys {
			out[i] = e.streams.XRead(k, ids[i], storage.StreamID{}, false)
		}
		return out
	}

	results := read()

	if blockMs >= 0 && !anyNonEmpty(results) {
		deadline := time.Now().Add(time.Duration(blockMs) * time.Millisecond)
		forever := blockMs == 0
		for {
			time.Sleep(xreadPollInterval)
			results = read()
			if anyNonEmpty(results) {
				break
			}
			if !forever && time.Now().After(deadline) {
				break
			}
		}
	}

	if !anyNonEmpty(results) {
		return protocol.EncodeNullBulkString()
	}

	nonEmpty := 0
	for _, r := range results {
		if len(r) > 0 {
			nonEmpty++
		}
	}

	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("*%d\r\n", nonEmpty))
	for i, r := range results {
		if len(r) == 0 {
			continue
		}
		buf.WriteString("*2\r\n")
		buf.Write(protocol.EncodeBulkString(keys[i]))
		buf.Write(encodeStreamEntries(r))
	}
	return buf.Bytes()
}

func anyNonEmpty(results [][]storage.StreamEntry) bool {
	for _, r := range results {
		if len(r) > 0 {
			return true
		}
	}
	return false
}

func encodeStreamEntries(entries []storage.StreamEntry) []byte {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("*%d\r\n", len(entries)))
	for _, ent := range entries {
		buf.WriteString("*2\r\n")
		buf.Write(protocol.EncodeBulkString(ent.ID.String()))
		buf.WriteString(fmt.Sprintf("*%d\r\n", len(ent.Attributes)*2))
		for _, fv := range ent.Attributes {
			buf.Write(protocol.EncodeBulkString(fv.Field))
			buf.Write(protocol.EncodeBulkString(fv.Value))
		}
	}
	return buf.Bytes()
}
