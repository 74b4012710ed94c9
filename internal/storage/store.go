// Package storage holds the in-memory state the evaluator mutates: a
// string key/value table with lazy TTL expiration, and an append-only
// stream store (see stream.go).
package storage

import "time"

// Store is the string KV table. The evaluator serializes all access to
// it per the single-mutator-at-a-time concurrency model, so Store itself
// carries no internal locking.
type Store struct {
	data map[string]*Value
}

// ValueType distinguishes what kind of value a key currently holds, for
// the TYPE command.
type ValueType int

const (
	StringType ValueType = iota
	StreamType
	NoneType
)

func (t ValueType) String() string {
	switch t {
	case StringType:
		return "string"
	case StreamType:
		return "stream"
	default:
		return "none"
	}
}

// Value is a stored string, with an optional absolute expiry.
type Value struct {
	Data      string
	ExpiresAt *time.Time
}

func NewStore() *Store {
	return &Store{data: make(map[string]*Value)}
}

func (s *Store) deleteKey(key string) {
	delete(s.data, key)
}
