package evaluator

import (
	"strings"

	"redisgo/internal/protocol"
)

func handleMulti(e *Evaluator, sess *Session, name string, args []string) []byte {
	if len(args) != 0 {
		return protocol.EncodeError("ERR wrong number of arguments for 'multi' command")
	}
	if sess.Tx.Open {
		return protocol.EncodeError("ERR MULTI calls can not be nested")
	}
	sess.Tx.Open = true
	sess.Tx.Queue = nil
	return protocol.EncodeSimpleString("OK")
}

func handleDiscard(e *Evaluator, sess *Session, name string, args []string) []byte {
	if len(args) != 0 {
		return protocol.EncodeError("ERR wrong number of arguments for 'discard' command")
	}
	if !sess.Tx.Open {
		return protocol.EncodeError("ERR DISCARD without MULTI")
	}
	sess.Tx.Open = false
	sess.Tx.Queue = nil
	return protocol.EncodeSimpleString("OK")
}

// handleExec runs the queued commands in order and wraps their replies in
// a single array reply. Each queued command is dispatched through the same
// command table used outside a transaction, so it still propagates to
// replicas if it mutates the dataset.
func handleExec(e *Evaluator, sess *Session, name string, args []string) []byte {
	if len(args) != 0 {
		return protocol.EncodeError("ERR wrong number of arguments for 'exec' command")
	}
	if !sess.Tx.Open {
		return protocol.EncodeError("ERR EXEC without MULTI")
	}

	queued := sess.Tx.Queue
	sess.Tx.Open = false
	sess.Tx.Queue = nil

	replies := make([][]byte, 0, len(queued))
	for _, cmd := range queued {
		qname := strings.ToUpper(cmd.Args[0])
		qargs := cmd.Args[1:]
		fn, ok := e.commands[qname]
		if !ok {
			replies = append(replies, protocol.EncodeError("ERR Unsupported command: "+qname))
			continue
		}
		replies = append(replies, fn(e, sess, qname, qargs))
	}

	return protocol.EncodeRawArray(replies)
}
