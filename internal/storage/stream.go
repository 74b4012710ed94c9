package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// StreamID is a stream entry id, the pair (ms, seq) serialized on the
// wire as "ms-seq" and totally ordered lexicographically on that pair.
type StreamID struct {
	Ms  uint64
	Seq uint64
}

func (id StreamID) String() string {
	return fmt.Sprintf("%d-%d", id.Ms, id.Seq)
}

// Less reports whether id sorts strictly before other.
func (id StreamID) Less(other StreamID) bool {
	if id.Ms != other.Ms {
		return id.Ms < other.Ms
	}
	return id.Seq < other.Seq
}

func (id StreamID) isZero() bool { return id.Ms == 0 && id.Seq == 0 }

// ParseStreamID parses the "<ms>-<seq>" grammar.
func ParseStreamID(s string) (StreamID, error) {
	ms, seq, found := strings.Cut(s, "-")
	msVal, err := strconv.ParseUint(ms, 10, 64)
	if err != nil {
		return StreamID{}, fmt.Errorf("invalid stream id %q", s)
	}
	if !found {
		return StreamID{Ms: msVal}, nil
	}
	seqVal, err := strconv.ParseUint(seq, 10, 64)
	if err != nil {
		return StreamID{}, fmt.Errorf("invalid stream id %q", s)
	}
	return StreamID{Ms: msVal, Seq: seqVal}, nil
}

// FieldValue is one (field, value) pair attached to a stream entry.
type FieldValue struct {
	Field string
	Value string
}

// StreamEntry is an immutable, appended-once record in a Stream.
type StreamEntry struct {
	ID         StreamID
	Attributes []FieldValue
}

// Stream is an append-only, id-ordered sequence of entries.
type Stream struct {
	entries []StreamEntry
}

func newStream() *Stream {
	return &Stream{}
}

func (st *Stream) top() (StreamID, bool) {
	if len(st.entries) == 0 {
		return StreamID{}, false
	}
	return st.entries[len(st.entries)-1].ID, true
}

// Streams holds the key -> Stream mapping. Kept separate from the
// string Store: lazy TTL expiration never applies to streams (§4.4),
// so the two tables have genuinely different lifecycles and don't
// belong behind one Get/Set pair.
type Streams struct {
	byKey map[string]*Stream
}

func NewStreams() *Streams {
	return &Streams{byKey: make(map[string]*Stream)}
}

// Has reports whether a stream exists under key, for TYPE.
func (s *Streams) Has(key string) bool {
	_, ok := s.byKey[key]
	return ok
}

// XAdd appends an entry with the given id and attributes. The id must
// be strictly greater than the stream's current top id, and (0,0) is
// always rejected, regardless of whether the stream already exists.
func (s *Streams) XAdd(key string, id StreamID, attrs []FieldValue) (StreamID, error) {
	if id.isZero() {
		return StreamID{}, ErrIDIsZero
	}

	st, exists := s.byKey[key]
	if !exists {
		st = newStream()
		s.byKey[key] = st
	} else if top, ok := st.top(); ok && !top.Less(id) {
		return StreamID{}, ErrIDTooSmall
	}

	st.entries = append(st.entries, StreamEntry{ID: id, Attributes: attrs})
	return id, nil
}

// XRange returns entries with id in [start, end], inclusive on both
// ends, in insertion (and therefore id) order.
func (s *Streams) XRange(key string, start, end StreamID) []StreamEntry {
	st, ok := s.byKey[key]
	if !ok {
		return nil
	}

	var out []StreamEntry
	for _, e := range st.entries {
		if e.ID.Less(start) {
			continue
		}
		if end.Less(e.ID) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// XRead returns entries strictly after afterID. When hasTop is true,
// entries with id > top are excluded: top is the id captured at the
// start of a blocking read, so a read that unblocks after new data
// arrived for other streams still only reports what existed at the
// moment it was satisfied.
func (s *Streams) XRead(key string, afterID StreamID, top StreamID, hasTop bool) []StreamEntry {
	st, ok := s.byKey[key]
	if !ok {
		return nil
	}

	var out []StreamEntry
	for _, e := range st.entries {
		if !afterID.Less(e.ID) {
			continue
		}
		if hasTop && top.Less(e.ID) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// LastID returns the id of the most recently added entry, a value XRead
// accepts as its top bound. The evaluator's XREAD does not call it and
// reads without a top bound.
func (s *Streams) LastID(key string) (StreamID, bool) {
	st, ok := s.byKey[key]
	if !ok {
		return StreamID{}, false
	}
	return st.top()
}
