package replication

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"redisgo/internal/protocol"
	"redisgo/internal/rdb"
)

// Client is the replica side of the link: it dials the configured
// master, performs the handshake, ingests the bootstrap RDB, and then
// continuously applies the propagated command stream.
type Client struct {
	host    string
	port    int
	ourPort int

	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
}

// NewClient prepares (but does not connect) a replica client for the
// given master address. ourPort is advertised via REPLCONF
// listening-port so the master can record where to reach us.
func NewClient(host string, port int, ourPort int) *Client {
	return &Client{host: host, port: port, ourPort: ourPort}
}

// Bootstrap performs the full handshake against the master and returns
// the parsed snapshot records to load into the datastore before serving
// any client traffic, per the decision in §9 to complete replica
// bootstrap before starting the accept loop.
func (c *Client) Bootstrap() ([]rdb.Record, error) {
	addr := net.JoinHostPort(c.host, strconv.Itoa(c.port))
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connecting to master: %w", err)
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.writer = bufio.NewWriter(conn)

	if err := c.handshake(); err != nil {
		conn.Close()
		return nil, err
	}

	payload, err := c.receiveSnapshot()
	if err != nil {
		conn.Close()
		return nil, err
	}

	reader := rdb.NewReaderFromBytes(payload)
	records, err := reader.Load()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("parsing bootstrap snapshot: %w", err)
	}
	return records, nil
}

func (c *Client) handshake() error {
	if err := c.send([]string{"PING"}); err != nil {
		return fmt.Errorf("handshake PING: %w", err)
	}
	if _, err := c.readLine(); err != nil {
		return fmt.Errorf("handshake PING reply: %w", err)
	}

	if err := c.send([]string{"REPLCONF", "listening-port", strconv.Itoa(c.ourPort)}); err != nil {
		return fmt.Errorf("handshake REPLCONF listening-port: %w", err)
	}
	if _, err := c.readLine(); err != nil {
		return fmt.Errorf("handshake REPLCONF listening-port reply: %w", err)
	}

	if err := c.send([]string{"REPLCONF", "capa", "psync2"}); err != nil {
		return fmt.Errorf("handshake REPLCONF capa: %w", err)
	}
	if _, err := c.readLine(); err != nil {
		return fmt.Errorf("handshake REPLCONF capa reply: %w", err)
	}

	if err := c.send([]string{"PSYNC", "?", "-1"}); err != nil {
		return fmt.Errorf("handshake PSYNC: %w", err)
	}
	resp, err := c.readLine()
	if err != nil {
		return fmt.Errorf("handshake PSYNC reply: %w", err)
	}
	if !strings.HasPrefix(resp, "+FULLRESYNC") {
		return fmt.Errorf("unexpected PSYNC reply: %q", resp)
	}
	log.Printf("[REPLICATION] %s", resp)
	return nil
}

func (c *Client) receiveSnapshot() ([]byte, error) {
	header, err := c.readLine()
	if err != nil {
		return nil, fmt.Errorf("reading RDB length header: %w", err)
	}
	if !strings.HasPrefix(header, "$") {
		return nil, fmt.Errorf("expected bulk length header, got %q", header)
	}
	declared, err := strconv.Atoi(header[1:])
	if err != nil {
		return nil, fmt.Errorf("invalid RDB length %q: %w", header, err)
	}
	return protocol.ReadRawFile(c.reader, declared)
}

func (c *Client) send(args []string) error {
	if _, err := c.writer.Write(protocol.EncodeCommand(args)); err != nil {
		return err
	}
	return c.writer.Flush()
}

func (c *Client) readLine() (string, error) {
	return protocol.ReadLine(c.reader)
}

// Stream reads the propagated command stream until the connection
// closes, applying each frame via apply. The applied-offset counter
// increments by the raw bytes consumed from the master socket for each
// frame, including REPLCONF GETACK itself — but the ACK sent in
// response to a GETACK reports the offset as it stood immediately
// before that frame was counted, per §4.7.
func (c *Client) Stream(apply func(args []string) []byte, onOffset func(int64)) error {
	framer := protocol.NewFramer()
	readBuf := make([]byte, 4096)
	var applied int64

	// The handshake and RDB transfer read through the buffered c.reader,
	// which may have already pulled in the leading bytes of the first
	// propagated command along with the tail of the $<len>\r\n<rdb>
	// payload. Drain whatever's left in that buffer into the framer
	// before reading any more off the wire, or those bytes are stranded
	// and the replica silently drops its first write(s).
	if buffered := c.reader.Buffered(); buffered > 0 {
		leftover := make([]byte, buffered)
		if _, err := io.ReadFull(c.reader, leftover); err != nil {
			return fmt.Errorf("draining buffered replication bytes: %w", err)
		}
		framer.Feed(leftover)
	}

	for {
		for {
			cmd, consumed, ok, err := framer.Next()
			if err != nil {
				return fmt.Errorf("replication stream protocol error: %w", err)
			}
			if !ok {
				break
			}

			if isGetAck(cmd) {
				if err := c.sendAck(applied); err != nil {
					return fmt.Errorf("sending REPLCONF ACK: %w", err)
				}
				applied += int64(consumed)
				onOffset(applied)
				continue
			}

			apply(cmd.Args)
			applied += int64(consumed)
			onOffset(applied)
		}

		n, err := c.reader.Read(readBuf)
		if err != nil {
			return err
		}
		framer.Feed(readBuf[:n])
	}
}

func isGetAck(cmd *protocol.Command) bool {
	return len(cmd.Args) >= 2 &&
		strings.EqualFold(cmd.Args[0], "REPLCONF") &&
		strings.EqualFold(cmd.Args[1], "GETACK")
}

func (c *Client) sendAck(offset int64) error {
	return c.send([]string{"REPLCONF", "ACK", strconv.FormatInt(offset, 10)})
}

// Close releases the master connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
