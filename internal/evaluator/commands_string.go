package evaluator

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"redisgo/internal/protocol"
	"redisgo/internal/storage"
)

func handlePing(e *Evaluator, sess *Session, name string, args []string) []byte {
	if len(args) > 1 {
		return protocol.EncodeError("ERR wrong number of arguments for 'ping' command")
	}
	if len(args) == 1 {
		return protocol.EncodeBulkString(args[0])
	}
	return protocol.EncodeSimpleString("PONG")
}

func handleEcho(e *Evaluator, sess *Session, name string, args []string) []byte {
	if len(args) != 1 {
		return protocol.EncodeError("ERR wrong number of arguments for 'echo' command")
	}
	return protocol.EncodeBulkString(args[0])
}

// handleSet implements SET k v [px ms]. Only the px TTL form is in
// scope; other Redis SET options (EX, NX, XX, GET) are out of scope.
func handleSet(e *Evaluator, sess *Session, name string, args []string) []byte {
	if len(args) != 2 && len(args) != 4 {
		return protocol.EncodeError("ERR wrong number of arguments for 'set' command")
	}

	key, value := args[0], args[1]
	var expiry *time.Time

	if len(args) == 4 {
		if !strings.EqualFold(args[2], "px") {
			return protocol.EncodeError("ERR syntax error")
		}
		ms, err := strconv.ParseInt(args[3], 10, 64)
		if err != nil {
			return protocol.EncodeError("ERR value is not an integer or out of range")
		}
		t := time.Now().Add(time.Duration(ms) * time.Millisecond)
		expiry = &t
	}

	e.mu.Lock()
	e.store.Set(key, value, expiry)
	e.mu.Unlock()

	e.propagate(name, args)
	return protocol.EncodeSimpleString("OK")
}

func handleGet(e *Evaluator, sess *Session, name string, args []string) []byte {
	if len(args) != 1 {
		return protocol.EncodeError("ERR wrong number of arguments for 'get' command")
	}

	e.mu.Lock()
	value, ok := e.store.Get(args[0])
	e.mu.Unlock()

	if !ok {
		return protocol.EncodeNullBulkString()
	}
	return protocol.EncodeBulkString(value)
}

func handleIncr(e *Evaluator, sess *Session, name string, args []string) []byte {
	if len(args) != 1 {
		return protocol.EncodeError("ERR wrong number of arguments for 'incr' command")
	}

	e.mu.Lock()
	value, err := e.store.Incr(args[0])
	e.mu.Unlock()

	if err != nil {
		return protocol.EncodeError(fmt.Sprintf("ERR %s", err))
	}
	e.propagate(name, args)
	return protocol.EncodeInteger(value)
}

func handleType(e *Evaluator, sess *Session, name string, args []string) []byte {
	if len(args) != 1 {
		return protocol.EncodeError("ERR wrong number of arguments for 'type' command")
	}

	e.mu.Lock()
	t := e.store.Type(args[0])
	if t == storage.NoneType && e.streams.Has(args[0]) {
		t = storage.StreamType
	}
	e.mu.Unlock()

	return protocol.EncodeSimpleString(t.String())
}

// handleKeys ignores its pattern argument, per §4.6, and returns every
// currently-live key.
func handleKeys(e *Evaluator, sess *Session, name string, args []string) []byte {
	e.mu.Lock()
	keys := e.store.Keys()
	e.mu.Unlock()

	return protocol.EncodeArray(keys)
}

func handleConfig(e *Evaluator, sess *Session, name string, args []string) []byte {
	if len(args) != 2 || !strings.EqualFold(args[0], "GET") {
		return protocol.EncodeError("ERR unsupported CONFIG subcommand")
	}

	switch strings.ToLower(args[1]) {
	case "dir":
		return protocol.EncodeArray([]string{"dir", e.dir})
	case "dbfilename":
		return protocol.EncodeArray([]string{"dbfilename", e.dbfilename})
	default:
		return protocol.EncodeError(fmt.Sprintf("ERR unknown configuration parameter '%s'", args[1]))
	}
}

// handleCommand stubs the COMMAND DOCS introspection call some clients
// issue on connect.
func handleCommand(e *Evaluator, sess *Session, name string, args []string) []byte {
	if len(args) == 1 && strings.EqualFold(args[0], "DOCS") {
		return protocol.EncodeSimpleString("not_implemented")
	}
	return protocol.EncodeError("ERR unsupported COMMAND subcommand")
}
