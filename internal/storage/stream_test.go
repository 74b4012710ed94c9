package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustID(t *testing.T, s string) StreamID {
	t.Helper()
	id, err := ParseStreamID(s)
	require.NoError(t, err)
	return id
}

func TestParseStreamID(t *testing.T) {
	id, err := ParseStreamID("12-5")
	require.NoError(t, err)
	assert.Equal(t, StreamID{Ms: 12, Seq: 5}, id)
	assert.Equal(t, "12-5", id.String())

	_, err = ParseStreamID("not-numeric")
	assert.Error(t, err)
}

func TestXAddRejectsZeroID(t *testing.T) {
	s := NewStreams()
	_, err := s.XAdd("s", StreamID{0, 0}, nil)
	assert.ErrorIs(t, err, ErrIDIsZero)
}

func TestXAddRejectsNonIncreasingID(t *testing.T) {
	s := NewStreams()
	_, err := s.XAdd("s", mustID(t, "1-1"), []FieldValue{{Field: "a", Value: "1"}})
	require.NoError(t, err)

	_, err = s.XAdd("s", mustID(t, "1-1"), []FieldValue{{Field: "a", Value: "2"}})
	assert.ErrorIs(t, err, ErrIDTooSmall)

	_, err = s.XAdd("s", mustID(t, "1-0"), nil)
	assert.ErrorIs(t, err, ErrIDTooSmall)
}

func TestXAddOrdersEntriesByID(t *testing.T) {
	s := NewStreams()
	id1, err := s.XAdd("s", mustID(t, "1-1"), []FieldValue{{Field: "a", Value: "1"}})
	require.NoError(t, err)
	id2, err := s.XAdd("s", mustID(t, "1-2"), []FieldValue{{Field: "a", Value: "2"}})
	require.NoError(t, err)

	assert.True(t, id1.Less(id2))
}

func TestXRangeIsInclusiveOnBothEnds(t *testing.T) {
	s := NewStreams()
	_, _ = s.XAdd("s", mustID(t, "1-1"), []FieldValue{{Field: "a", Value: "1"}})
	_, _ = s.XAdd("s", mustID(t, "2-1"), []FieldValue{{Field: "a", Value: "2"}})
	_, _ = s.XAdd("s", mustID(t, "3-1"), []FieldValue{{Field: "a", Value: "3"}})

	entries := s.XRange("s", mustID(t, "1-1"), mustID(t, "2-1"))
	require.Len(t, entries, 2)
	assert.Equal(t, "1-1", entries[0].ID.String())
	assert.Equal(t, "2-1", entries[1].ID.String())
}

func TestXReadReturnsOnlyEntriesStrictlyAfter(t *testing.T) {
	s := NewStreams()
	_, _ = s.XAdd("s", mustID(t, "1-1"), []FieldValue{{Field: "a", Value: "1"}})
	_, _ = s.XAdd("s", mustID(t, "2-1"), []FieldValue{{Field: "a", Value: "2"}})

	entries := s.XRead("s", mustID(t, "1-1"), StreamID{}, false)
	require.Len(t, entries, 1)
	assert.Equal(t, "2-1", entries[0].ID.String())
}

func TestXReadRespectsTopBound(t *testing.T) {
	s := NewStreams()
	_, _ = s.XAdd("s", mustID(t, "1-1"), nil)
	top, _ := s.LastID("s")
	_, _ = s.XAdd("s", mustID(t, "2-1"), nil)

	entries := s.XRead("s", StreamID{}, top, true)
	require.Len(t, entries, 1)
	assert.Equal(t, "1-1", entries[0].ID.String())
}
