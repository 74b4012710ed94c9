package evaluator

import (
	"bufio"
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redisgo/internal/eventbus"
	"redisgo/internal/protocol"
	"redisgo/internal/storage"
)

func newTestEvaluator() *Evaluator {
	return New(storage.NewStore(), storage.NewStreams(), eventbus.New(), nil, Config{Dir: ".", DBFilename: "dump.rdb"})
}

func newTestSession() (*Session, *bytes.Buffer) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	return NewSession("127.0.0.1:9999", w), &buf
}

func run(e *Evaluator, sess *Session, args ...string) []byte {
	return e.Handle(sess, &protocol.Command{Args: args})
}

func TestPingAndEcho(t *testing.T) {
	e := newTestEvaluator()
	sess, _ := newTestSession()

	assert.Equal(t, "+PONG\r\n", string(run(e, sess, "PING")))
	assert.Equal(t, "$5\r\nhello\r\n", string(run(e, sess, "ECHO", "hello")))
}

func TestSetGetScenario(t *testing.T) {
	e := newTestEvaluator()
	sess, _ := newTestSession()

	assert.Equal(t, "+OK\r\n", string(run(e, sess, "SET", "foo", "bar")))
	assert.Equal(t, "$3\r\nbar\r\n", string(run(e, sess, "GET", "foo")))
	assert.Equal(t, "$-1\r\n", string(run(e, sess, "GET", "missing")))
}

func TestSetWithPXExpires(t *testing.T) {
	e := newTestEvaluator()
	sess, _ := newTestSession()

	assert.Equal(t, "+OK\r\n", string(run(e, sess, "SET", "x", "1", "px", "1")))
	// lazy expiry: the key is gone well within test runtime budget since
	// px is 1ms; poll rather than a fixed sleep to stay fast and robust.
	deadlinePoll(t, func() bool {
		return string(run(e, sess, "GET", "x")) == "$-1\r\n"
	})
}

func deadlinePoll(t *testing.T, cond func() bool) {
	t.Helper()
	for i := 0; i < 200; i++ {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestIncr(t *testing.T) {
	e := newTestEvaluator()
	sess, _ := newTestSession()

	assert.Equal(t, ":1\r\n", string(run(e, sess, "INCR", "counter")))
	assert.Equal(t, ":2\r\n", string(run(e, sess, "INCR", "counter")))

	run(e, sess, "SET", "nope", "abc")
	assert.Equal(t, "-ERR value is not an integer or out of range\r\n", string(run(e, sess, "INCR", "nope")))
}

func TestTypeCommand(t *testing.T) {
	e := newTestEvaluator()
	sess, _ := newTestSession()

	assert.Equal(t, "+none\r\n", string(run(e, sess, "TYPE", "missing")))
	run(e, sess, "SET", "s", "v")
	assert.Equal(t, "+string\r\n", string(run(e, sess, "TYPE", "s")))
	run(e, sess, "XADD", "strm", "1-1", "a", "1")
	assert.Equal(t, "+stream\r\n", string(run(e, sess, "TYPE", "strm")))
}

// Scenario 4 from the spec: XADD id ordering and the exact error text.
func TestXAddScenario(t *testing.T) {
	e := newTestEvaluator()
	sess, _ := newTestSession()

	assert.Equal(t, "$3\r\n1-1\r\n", string(run(e, sess, "XADD", "s", "1-1", "a", "1")))
	assert.Equal(t,
		"-ERR The ID specified in XADD is equal or smaller than the target stream top item\r\n",
		string(run(e, sess, "XADD", "s", "1-1", "a", "2")))
	assert.Equal(t,
		"-ERR The ID specified in XADD must be greater than 0-0\r\n",
		string(run(e, sess, "XADD", "s", "0-0", "a", "3")))
}

func TestXRangeInclusive(t *testing.T) {
	e := newTestEvaluator()
	sess, _ := newTestSession()

	run(e, sess, "XADD", "s", "1-1", "a", "1")
	run(e, sess, "XADD", "s", "2-1", "a", "2")

	reply := string(run(e, sess, "XRANGE", "s", "1-1", "2-1"))
	assert.Contains(t, reply, "1-1")
	assert.Contains(t, reply, "2-1")
}

func TestXReadReturnsNilOnlyWhenAllStreamsEmpty(t *testing.T) {
	e := newTestEvaluator()
	sess, _ := newTestSession()

	run(e, sess, "XADD", "a", "1-1", "f", "v")

	reply := run(e, sess, "XREAD", "streams", "a", "b", "0-0", "0-0")
	assert.NotEqual(t, "$-1\r\n", string(reply))
	assert.Contains(t, string(reply), "a")

	nilReply := run(e, sess, "XREAD", "streams", "b", "0-0")
	assert.Equal(t, "$-1\r\n", string(nilReply))
}

// Scenario 5 from the spec: MULTI/EXEC.
func TestTransactionScenario(t *testing.T) {
	e := newTestEvaluator()
	sess, _ := newTestSession()

	assert.Equal(t, "+OK\r\n", string(run(e, sess, "MULTI")))
	assert.Equal(t, "+QUEUED\r\n", string(run(e, sess, "SET", "k", "1")))
	assert.Equal(t, "+QUEUED\r\n", string(run(e, sess, "INCR", "k")))
	assert.Equal(t, "*2\r\n+OK\r\n:2\r\n", string(run(e, sess, "EXEC")))
}

func TestExecWithoutMultiErrors(t *testing.T) {
	e := newTestEvaluator()
	sess, _ := newTestSession()
	assert.Equal(t, "-ERR EXEC without MULTI\r\n", string(run(e, sess, "EXEC")))
}

func TestDiscardWithoutMultiErrors(t *testing.T) {
	e := newTestEvaluator()
	sess, _ := newTestSession()
	assert.Equal(t, "-ERR DISCARD without MULTI\r\n", string(run(e, sess, "DISCARD")))
}

func TestDiscardClearsQueue(t *testing.T) {
	e := newTestEvaluator()
	sess, _ := newTestSession()

	run(e, sess, "MULTI")
	run(e, sess, "SET", "k", "1")
	assert.Equal(t, "+OK\r\n", string(run(e, sess, "DISCARD")))

	_, ok := e.store.Get("k")
	assert.False(t, ok, "queued command must not apply once discarded")
}

func TestMultiCannotNest(t *testing.T) {
	e := newTestEvaluator()
	sess, _ := newTestSession()

	run(e, sess, "MULTI")
	assert.Equal(t, "-ERR MULTI calls can not be nested\r\n", string(run(e, sess, "MULTI")))
}

func TestConfigGet(t *testing.T) {
	e := newTestEvaluator()
	sess, _ := newTestSession()

	reply := string(run(e, sess, "CONFIG", "GET", "dir"))
	assert.Equal(t, "*2\r\n$3\r\ndir\r\n$1\r\n.\r\n", reply)
}

func TestUnknownCommand(t *testing.T) {
	e := newTestEvaluator()
	sess, _ := newTestSession()

	reply := string(run(e, sess, "NOTACOMMAND"))
	assert.Equal(t, "-ERR Unsupported command: NOTACOMMAND\r\n", reply)
}

func TestKeysIgnoresPatternReturnsAllLiveKeys(t *testing.T) {
	e := newTestEvaluator()
	sess, _ := newTestSession()

	run(e, sess, "SET", "a", "1")
	run(e, sess, "SET", "b", "2")

	reply := string(run(e, sess, "KEYS", "*"))
	assert.Contains(t, reply, "a")
	assert.Contains(t, reply, "b")
}

func TestInfoWithoutReplicatorReportsMaster(t *testing.T) {
	e := newTestEvaluator()
	sess, _ := newTestSession()

	reply := string(run(e, sess, "INFO"))
	require.Contains(t, reply, "role:master")
}
