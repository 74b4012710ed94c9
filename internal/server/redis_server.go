// Package server wires the datastore, command evaluator, and
// replication engine together behind a TCP accept loop, following the
// construction and shutdown sequencing of the server this was adapted
// from.
package server

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"redisgo/internal/eventbus"
	"redisgo/internal/evaluator"
	"redisgo/internal/protocol"
	"redisgo/internal/replication"
	"redisgo/internal/storage"
)

// replicaPingInterval is how often a master sends REPLCONF GETACK * to
// its replicas to refresh their acknowledged offsets.
const replicaPingInterval = 1 * time.Second

// Server accepts client connections, frames their commands, and
// dispatches them through the shared evaluator.
type Server struct {
	config *Config

	store   *storage.Store
	streams *storage.Streams
	bus     *eventbus.Bus
	repl    *replication.Manager
	eval    *evaluator.Evaluator

	listener net.Listener

	connections   sync.Map
	connIDCounter atomic.Int64

	wg           sync.WaitGroup
	shutdownChan chan struct{}
	mu           sync.Mutex
	isShutdown   bool
	ready        chan struct{}
}

// New constructs a Server, loading whatever starting dataset the
// configuration calls for: an on-disk RDB snapshot for a master, or a
// full handshake against the configured master for a replica. Replica
// bootstrap completes before the accept loop starts, so no client can
// observe a replica that hasn't yet caught up.
func New(cfg *Config) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	store := storage.NewStore()
	streams := storage.NewStreams()
	bus := eventbus.New()

	role := replication.RoleMaster
	if cfg.IsReplica() {
		role = replication.RoleReplica
	}
	repl := replication.NewManager(role)
	repl.Subscribe(bus)

	eval := evaluator.New(store, streams, bus, repl, evaluator.Config{
		Dir:        cfg.Dir,
		DBFilename: cfg.DBFilename,
	})

	s := &Server{
		config:       cfg,
		store:        store,
		streams:      streams,
		bus:          bus,
		repl:         repl,
		eval:         eval,
		shutdownChan: make(chan struct{}),
		ready:        make(chan struct{}),
	}

	if cfg.IsReplica() {
		if err := s.bootstrapFromMaster(); err != nil {
			return nil, fmt.Errorf("replica bootstrap: %w", err)
		}
	} else if err := s.loadRDB(); err != nil {
		return nil, fmt.Errorf("loading RDB snapshot: %w", err)
	}

	return s, nil
}

func (s *Server) bootstrapFromMaster() error {
	client := replication.NewClient(s.config.ReplicaOfHost, s.config.ReplicaOfPort, s.config.Port)
	records, err := client.Bootstrap()
	if err != nil {
		return err
	}
	for _, rec := range records {
		s.store.Set(rec.Key, rec.Value, rec.Expiry)
	}
	log.Printf("[REPLICATION] bootstrapped %d keys from %s:%d", len(records), s.config.ReplicaOfHost, s.config.ReplicaOfPort)

	s.wg.Add(1)
	go s.runReplicaStream(client)
	return nil
}

// runReplicaStream applies the master's propagated write stream for the
// lifetime of the connection, tracking the applied byte offset so WAIT
// on the master side can observe this replica's progress via REPLCONF
// ACK.
func (s *Server) runReplicaStream(client *replication.Client) {
	defer s.wg.Done()
	defer client.Close()

	err := client.Stream(func(args []string) []byte {
		return s.eval.ApplyReplicated(args)
	}, func(offset int64) {
		s.repl.SetOffset(offset)
	})
	if err != nil {
		log.Printf("[REPLICATION] stream from master ended: %v", err)
	}
}

// Start begins listening and serving connections until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("starting listener: %w", err)
	}
	s.listener = listener
	log.Printf("[SERVER] listening on %s (role=%s)", addr, s.repl.Role())
	close(s.ready)

	go s.acceptConnections(ctx)
	if !s.config.IsReplica() {
		s.wg.Add(1)
		go s.runReplicaPinger(ctx)
	}

	<-ctx.Done()
	return nil
}

// runReplicaPinger periodically nudges every online replica for a fresh
// REPLCONF ACK, so WAIT's quorum polling observes progress even on an
// otherwise idle master.
func (s *Server) runReplicaPinger(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(replicaPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdownChan:
			return
		case <-ticker.C:
			s.repl.PingReplicas()
		}
	}
}

// Ready closes once the listener is bound, so callers (tests, health
// checks) can wait for Start to become ready to accept instead of
// polling.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr reports the listener's bound address. Valid only after Ready
// has closed.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

func (s *Server) acceptConnections(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdownChan:
			return
		default:
		}

		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			shuttingDown := s.isShutdown
			s.mu.Unlock()
			if shuttingDown {
				return
			}
			log.Printf("[SERVER] accept error: %v", err)
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()

	connID := s.connIDCounter.Add(1)
	s.connections.Store(connID, conn)
	defer s.connections.Delete(connID)
	defer conn.Close()

	writer := bufio.NewWriter(conn)
	sess := evaluator.NewSession(conn.RemoteAddr().String(), writer)
	defer func() {
		if sess.IsReplica {
			s.repl.RemoveReplica(sess.Addr)
		}
	}()

	reader := bufio.NewReader(conn)
	framer := protocol.NewFramer()
	readBuf := make([]byte, 4096)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		for {
			cmd, _, ok, err := framer.Next()
			if err != nil {
				writer.Write(protocol.EncodeError(fmt.Sprintf("ERR Protocol error: %s", err)))
				writer.Flush()
				return
			}
			if !ok {
				break
			}

			reply := s.eval.Handle(sess, cmd)
			if reply == nil {
				continue
			}
			if _, err := writer.Write(reply); err != nil {
				return
			}
			if err := writer.Flush(); err != nil {
				return
			}
		}

		n, err := reader.Read(readBuf)
		if err != nil {
			return
		}
		framer.Feed(readBuf[:n])
	}
}

// Shutdown stops accepting new connections and waits (up to a grace
// period) for in-flight connections to close.
func (s *Server) Shutdown() {
	s.mu.Lock()
	if s.isShutdown {
		s.mu.Unlock()
		return
	}
	s.isShutdown = true
	s.mu.Unlock()

	log.Println("[SERVER] shutting down")
	close(s.shutdownChan)

	if s.listener != nil {
		s.listener.Close()
	}

	s.connections.Range(func(_, value interface{}) bool {
		if conn, ok := value.(net.Conn); ok {
			conn.Close()
		}
		return true
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[SERVER] all connections closed")
	case <-time.After(5 * time.Second):
		log.Println("[SERVER] shutdown grace period elapsed, forcing exit")
	}
}

