package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"redisgo/internal/server"
)

func main() {
	dir := flag.String("dir", ".", "directory containing the RDB file")
	dbfilename := flag.String("dbfilename", "dump.rdb", "RDB snapshot filename")
	port := flag.Int("port", 6379, "port to listen on")
	replicaof := flag.String("replicaof", "", `upstream master as "<host> <port>"; if absent this node runs as a master`)
	flag.Parse()

	cfg := &server.Config{
		Host:       "127.0.0.1",
		Port:       *port,
		Dir:        *dir,
		DBFilename: *dbfilename,
	}

	if *replicaof != "" {
		host, portStr, err := parseReplicaOf(*replicaof)
		if err != nil {
			log.Fatalf("invalid --replicaof: %v", err)
		}
		cfg.ReplicaOfHost = host
		cfg.ReplicaOfPort = portStr
	}

	srv, err := server.New(cfg)
	if err != nil {
		log.Fatalf("server init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("[SERVER] shutting down")
		cancel()
		srv.Shutdown()
	}()

	log.Printf("[SERVER] starting on %s:%d", cfg.Host, cfg.Port)
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

// parseReplicaOf splits the "<host> <port>" form --replicaof expects.
func parseReplicaOf(s string) (string, int, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return "", 0, &replicaOfFormatError{s}
	}
	port, err := strconv.Atoi(fields[1])
	if err != nil {
		return "", 0, &replicaOfFormatError{s}
	}
	return fields[0], port, nil
}

type replicaOfFormatError struct{ value string }

func (e *replicaOfFormatError) Error() string {
	return `expected "<host> <port>", got "` + e.value + `"`
}
