// Package replication implements the master and replica sides of the
// asynchronous replication link: the handshake, RDB bootstrap, write
// propagation, offset accounting, and WAIT quorum polling.
package replication

import (
	"bufio"
	"crypto/rand"
	"fmt"
	"log"
	"sync"
	"time"

	"redisgo/internal/eventbus"
	"redisgo/internal/protocol"
)

// Role is a server's position in the replication topology. Redis spells
// the replica role "slave" on the wire (REPLCONF, INFO); kept as-is so
// INFO output matches what a real client expects.
type Role string

const (
	RoleMaster  Role = "master"
	RoleReplica Role = "slave"
)

// pollInterval is the fixed sleep between WAIT polling iterations.
const pollInterval = 10 * time.Millisecond

// ReplicaConfig is the master's view of one connected follower: its
// reported listening port, negotiated capabilities, and last
// acknowledged offset.
type ReplicaConfig struct {
	Addr         string
	Port         int
	Capabilities []string
	Offset       int64
	Online       bool

	writerMu sync.Mutex
	writer   *bufio.Writer
}

func (rc *ReplicaConfig) send(data []byte) error {
	rc.writerMu.Lock()
	defer rc.writerMu.Unlock()
	if _, err := rc.writer.Write(data); err != nil {
		return err
	}
	return rc.writer.Flush()
}

// Manager owns both the master-side replica registry and, when acting
// as a replica, is paired with a Client (see replica.go) that handles
// the outbound connection. A single Manager only ever plays one role at
// a time; offset bookkeeping differs accordingly.
type Manager struct {
	mu     sync.Mutex
	role   Role
	replID string
	offset int64

	replicas map[string]*ReplicaConfig
}

// NewManager creates a replication manager for the given role. The
// replication id is generated once and held for the process lifetime,
// per the master_replid invariant.
func NewManager(role Role) *Manager {
	return &Manager{
		role:     role,
		replID:   generateReplID(),
		replicas: make(map[string]*ReplicaConfig),
	}
}

func generateReplID() string {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%040d", time.Now().UnixNano())
	}
	return fmt.Sprintf("%x", b)
}

func (m *Manager) Role() string { return string(m.role) }
func (m *Manager) ReplID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replID
}

func (m *Manager) Offset() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offset
}

// SetOffset is used by the replica side to record its applied offset in
// the field Offset reports.
func (m *Manager) SetOffset(n int64) {
	m.mu.Lock()
	m.offset = n
	m.mu.Unlock()
}

// EmptyRDBPayload returns the canned snapshot shipped during FULLRESYNC.
func (m *Manager) EmptyRDBPayload() []byte {
	return emptyRDBPayload
}

// Subscribe wires the replica lifecycle events the evaluator publishes
// into the replica registry: REPLCONF listening-port creates the
// ReplicaConfig, REPLCONF capa fills in its capability set.
func (m *Manager) Subscribe(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.ReplicaConnected, func(e interface{}) {
		ev, ok := e.(eventbus.ReplicaConnectedEvent)
		if !ok {
			return
		}
		m.mu.Lock()
		m.replicas[ev.Addr] = &ReplicaConfig{
			Addr:   ev.Addr,
			Port:   ev.Port,
			writer: ev.Writer,
		}
		m.mu.Unlock()
		log.Printf("[REPLICATION] replica registered: %s (listening port %d)", ev.Addr, ev.Port)
	})

	bus.Subscribe(eventbus.ReplicaCapabilities, func(e interface{}) {
		ev, ok := e.(eventbus.ReplicaCapabilitiesEvent)
		if !ok {
			return
		}
		m.mu.Lock()
		if rc, exists := m.replicas[ev.Addr]; exists {
			rc.Capabilities = append(rc.Capabilities, ev.Capabilities...)
		}
		m.mu.Unlock()
	})
}

// ActivateReplica marks a previously-registered peer as an active
// replication sink, called once its FULLRESYNC has been sent.
func (m *Manager) ActivateReplica(addr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rc, ok := m.replicas[addr]
	if !ok {
		return false
	}
	rc.Online = true
	rc.Offset = m.offset
	log.Printf("[REPLICATION] replica online: %s", addr)
	return true
}

// RemoveReplica drops a peer from the registry, called on disconnect.
func (m *Manager) RemoveReplica(addr string) {
	m.mu.Lock()
	delete(m.replicas, addr)
	m.mu.Unlock()
}

// Propagate reserializes a mutating command canonically and fans it out
// to every online replica, advancing master_repl_offset by the
// serialized length. Per §5, this must complete before the next frame
// from the originating client is processed; callers invoke it
// synchronously from the evaluator.
func (m *Manager) Propagate(args []string) {
	if m.role != RoleMaster {
		return
	}

	encoded := protocol.EncodeCommand(args)

	m.mu.Lock()
	m.offset += int64(len(encoded))
	online := make([]*ReplicaConfig, 0, len(m.replicas))
	for _, rc := range m.replicas {
		if rc.Online {
			online = append(online, rc)
		}
	}
	m.mu.Unlock()

	for _, rc := range online {
		if err := rc.send(encoded); err != nil {
			log.Printf("[REPLICATION] write to replica %s failed: %v", rc.Addr, err)
		}
	}
}

// PingReplicas sends REPLCONF GETACK * to every online replica so their
// acknowledged offsets (consulted by Wait) advance even when no client
// traffic is flowing. It is the "keepalive ACK pinger" cooperative task
// from §5, run on a fixed interval by the connection server.
func (m *Manager) PingReplicas() {
	m.Propagate([]string{"REPLCONF", "GETACK", "*"})
}

// UpdateAck records a replica's self-reported applied offset, received
// via REPLCONF ACK on the replication link.
func (m *Manager) UpdateAck(addr string, offset int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rc, ok := m.replicas[addr]; ok {
		rc.Offset = offset
	}
}

// Wait polls until at least n online replicas have acknowledged the
// current master_repl_offset, or timeoutMs elapses (0 disables the
// timeout, matching the semantics of XREAD's block ms), and returns the
// count observed at exit. Wait never issues its own GETACK: it relies
// entirely on the background pinger (PingReplicas, run on a fixed
// interval by the connection server) to refresh rc.Offset, so a call can
// lag the true replica state by up to two ping intervals.
func (m *Manager) Wait(n int, timeoutMs int) int {
	target := m.Offset()
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	forever := timeoutMs <= 0

	for {
		count := m.countCaughtUp(target)
		if count >= n {
			return count
		}
		if !forever && time.Now().After(deadline) {
			return count
		}
		time.Sleep(pollInterval)
	}
}

func (m *Manager) countCaughtUp(target int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, rc := range m.replicas {
		if rc.Online && rc.Offset >= target {
			count++
		}
	}
	return count
}

// ReplicaCount reports the number of currently online replicas.
func (m *Manager) ReplicaCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, rc := range m.replicas {
		if rc.Online {
			count++
		}
	}
	return count
}
