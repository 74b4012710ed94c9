package evaluator

import (
	"fmt"
	"strconv"
	"strings"

	"redisgo/internal/eventbus"
	"redisgo/internal/protocol"
)

// handleInfo reports the replication section only; the other INFO
// sections the teacher's server exposes (server, memory, persistence,
// ...) are out of scope here. master_replid/master_repl_offset are
// only meaningful for a master, per the data model.
func handleInfo(e *Evaluator, sess *Session, name string, args []string) []byte {
	if e.repl == nil {
		return protocol.EncodeBulkString("# Replication\r\nrole:master\r\n")
	}

	var b strings.Builder
	b.WriteString("# Replication\r\n")
	b.WriteString(fmt.Sprintf("role:%s\r\n", e.repl.Role()))
	if e.repl.Role() == "master" {
		b.WriteString(fmt.Sprintf("master_replid:%s\r\n", e.repl.ReplID()))
		b.WriteString(fmt.Sprintf("master_repl_offset:%d\r\n", e.repl.Offset()))
	}
	return protocol.EncodeBulkString(b.String())
}

// handleReplConf handles the handshake subcommands a connecting replica
// sends (LISTENING-PORT, CAPA) and the ACK a live replica sends back in
// response to GETACK.
func handleReplConf(e *Evaluator, sess *Session, name string, args []string) []byte {
	if len(args) < 1 {
		return protocol.EncodeError("ERR wrong number of arguments for 'replconf' command")
	}

	switch strings.ToUpper(args[0]) {
	case "LISTENING-PORT":
		if len(args) != 2 {
			return protocol.EncodeError("ERR wrong number of arguments for 'replconf' command")
		}
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return protocol.EncodeError("ERR invalid listening-port")
		}
		sess.ListeningPort = port
		if e.bus != nil {
			e.bus.Publish(eventbus.ReplicaConnected, eventbus.ReplicaConnectedEvent{
				Addr:   sess.Addr,
				Port:   port,
				Writer: sess.Writer,
			})
		}
		return protocol.EncodeSimpleString("OK")

	case "CAPA":
		if e.bus != nil {
			e.bus.Publish(eventbus.ReplicaCapabilities, eventbus.ReplicaCapabilitiesEvent{
				Addr:         sess.Addr,
				Capabilities: args[1:],
			})
		}
		return protocol.EncodeSimpleString("OK")

	case "GETACK":
		return nil

	case "ACK":
		if len(args) != 2 {
			return protocol.EncodeError("ERR wrong number of arguments for 'replconf' command")
		}
		offset, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return nil
		}
		if e.repl != nil {
			e.repl.UpdateAck(sess.Addr, offset)
		}
		return nil

	default:
		return protocol.EncodeError("ERR unsupported REPLCONF subcommand")
	}
}

// handlePSync answers PSYNC ? -1 with FULLRESYNC followed by the RDB
// snapshot, writing both directly to the connection rather than
// returning an encoded reply, then marks the connection as a live
// replica so future writes are propagated to it.
func handlePSync(e *Evaluator, sess *Session, name string, args []string) []byte {
	if e.repl == nil {
		return protocol.EncodeError("ERR this instance is not a master")
	}

	header := protocol.EncodeSimpleString(fmt.Sprintf("FULLRESYNC %s %d", e.repl.ReplID(), e.repl.Offset()))
	if _, err := sess.Writer.Write(header); err != nil {
		return nil
	}
	if _, err := sess.Writer.Write(protocol.EncodeRawFile(e.repl.EmptyRDBPayload())); err != nil {
		return nil
	}
	if err := sess.Writer.Flush(); err != nil {
		return nil
	}

	sess.IsReplica = true
	e.repl.ActivateReplica(sess.Addr)
	return nil
}

// handleWait implements WAIT numreplicas timeout, per §4.7 resolved via
// 10ms polling rather than a GETACK round-trip invoked per call.
func handleWait(e *Evaluator, sess *Session, name string, args []string) []byte {
	if len(args) != 2 {
		return protocol.EncodeError("ERR wrong number of arguments for 'wait' command")
	}
	if e.repl == nil {
		return protocol.EncodeInteger(0)
	}

	n, err := strconv.Atoi(args[0])
	if err != nil {
		return protocol.EncodeError("ERR value is not an integer or out of range")
	}
	timeoutMs, err := strconv.Atoi(args[1])
	if err != nil {
		return protocol.EncodeError("ERR value is not an integer or out of range")
	}

	count := e.repl.Wait(n, timeoutMs)
	return protocol.EncodeInteger(int64(count))
}
