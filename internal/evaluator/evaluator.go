// Package evaluator dispatches parsed commands against the datastore,
// tracks per-connection transaction state, and drives replication
// fan-out and the event bus.
package evaluator

import (
	"bufio"
	"fmt"
	"strings"
	"sync"

	"redisgo/internal/eventbus"
	"redisgo/internal/protocol"
	"redisgo/internal/storage"
)

// Replicator is the subset of the replication manager the evaluator
// needs. Defined here rather than imported as a concrete type so this
// package and replication never import each other.
type Replicator interface {
	Role() string
	ReplID() string
	Offset() int64
	EmptyRDBPayload() []byte
	ActivateReplica(addr string) bool
	Propagate(args []string)
	UpdateAck(addr string, offset int64)
	Wait(n int, timeoutMs int) int
}

// Session holds everything specific to one connection: its write
// handle, peer address, and transaction buffer. The connection server
// owns its lifetime; the evaluator only ever borrows it for the
// duration of one Handle call.
type Session struct {
	Addr          string
	Writer        *bufio.Writer
	IsReplica     bool
	ListeningPort int
	Tx            Transaction
}

// Transaction is the per-connection MULTI/EXEC state machine: {Idle,
// InTx}, modeled directly rather than keyed by connection identity.
type Transaction struct {
	Open  bool
	Queue []*protocol.Command
}

func NewSession(addr string, w *bufio.Writer) *Session {
	return &Session{Addr: addr, Writer: w}
}

// CommandFunc executes one dispatched command. name is the uppercased
// command name; args excludes it.
type CommandFunc func(e *Evaluator, sess *Session, name string, args []string) []byte

// Evaluator is constructed once per server process and shared across
// all connections; e.mu serializes datastore access, matching the
// single-logical-mutator discipline in §5.
type Evaluator struct {
	mu      sync.Mutex
	store   *storage.Store
	streams *storage.Streams
	bus     *eventbus.Bus
	repl    Replicator

	dir        string
	dbfilename string

	commands map[string]CommandFunc
}

// Config carries the values the evaluator needs but doesn't own: the
// RDB directory/filename pair surfaced via CONFIG GET.
type Config struct {
	Dir        string
	DBFilename string
}

func New(store *storage.Store, streams *storage.Streams, bus *eventbus.Bus, repl Replicator, cfg Config) *Evaluator {
	e := &Evaluator{
		store:      store,
		streams:    streams,
		bus:        bus,
		repl:       repl,
		dir:        cfg.Dir,
		dbfilename: cfg.DBFilename,
	}
	e.registerCommands()
	return e
}

func (e *Evaluator) registerCommands() {
	e.commands = map[string]CommandFunc{
		"PING":    handlePing,
		"ECHO":    handleEcho,
		"SET":     handleSet,
		"GET":     handleGet,
		"INCR":    handleIncr,
		"TYPE":    handleType,
		"KEYS":    handleKeys,
		"CONFIG":  handleConfig,
		"COMMAND": handleCommand,

		"XADD":   handleXAdd,
		"XRANGE": handleXRange,
		"XREAD":  handleXRead,

		"MULTI":   handleMulti,
		"EXEC":    handleExec,
		"DISCARD": handleDiscard,

		"INFO":    handleInfo,
		"REPLCONF": handleReplConf,
		"PSYNC":   handlePSync,
		"WAIT":    handleWait,
	}
}

// Handle dispatches one parsed command frame for sess. A nil return
// means no reply should be written: either the handler already wrote
// directly to sess.Writer (PSYNC), or no reply is expected (REPLCONF
// ACK).
func (e *Evaluator) Handle(sess *Session, cmd *protocol.Command) []byte {
	if cmd == nil || len(cmd.Args) == 0 {
		return protocol.EncodeError("ERR empty command")
	}

	name := strings.ToUpper(cmd.Args[0])
	args := cmd.Args[1:]

	if sess.Tx.Open && name != "EXEC" && name != "DISCARD" && name != "MULTI" {
		sess.Tx.Queue = append(sess.Tx.Queue, cmd)
		return protocol.EncodeSimpleString("QUEUED")
	}

	fn, ok := e.commands[name]
	if !ok {
		return protocol.EncodeError(fmt.Sprintf("ERR Unsupported command: %s", name))
	}
	return fn(e, sess, name, args)
}

// ApplyReplicated runs a command received on the replication link. Used
// only on the replica side, where replies are discarded.
func (e *Evaluator) ApplyReplicated(args []string) []byte {
	if len(args) == 0 {
		return nil
	}
	name := strings.ToUpper(args[0])
	fn, ok := e.commands[name]
	if !ok {
		return nil
	}
	return fn(e, &Session{}, name, args[1:])
}

// propagate forwards a successfully-applied mutation to the replication
// engine for fan-out, reserialized canonically.
func (e *Evaluator) propagate(name string, args []string) {
	if e.repl == nil {
		return
	}
	full := make([]string, 0, len(args)+1)
	full = append(full, name)
	full = append(full, args...)
	e.repl.Propagate(full)
}
