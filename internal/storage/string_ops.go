package storage

import (
	"strconv"
	"time"
)

// Set stores a string value, replacing any prior entry under key.
// expiry is an absolute wall-clock time, or nil for no TTL.
func (s *Store) Set(key, value string, expiry *time.Time) {
	s.data[key] = &Value{Data: value, ExpiresAt: expiry}
}

// Get retrieves a key's string value. A non-nil expiry in the past
// deletes the entry lazily and reports it absent, matching the
// original datastore's __getitem__ check.
func (s *Store) Get(key string) (string, bool) {
	val, exists := s.data[key]
	if !exists {
		return "", false
	}
	if val.ExpiresAt != nil && time.Now().After(*val.ExpiresAt) {
		s.deleteKey(key)
		return "", false
	}
	return val.Data, true
}

// Type reports what kind of value, if any, lives under key: "string" if
// the string table holds it, "stream" if a stream exists under that
// key (checked by the caller via Streams), or "none".
func (s *Store) Type(key string) ValueType {
	if _, ok := s.Get(key); ok {
		return StringType
	}
	return NoneType
}

// Keys returns all currently-live keys; expired entries are filtered
// lazily as they're encountered.
func (s *Store) Keys() []string {
	now := time.Now()
	keys := make([]string, 0, len(s.data))
	for key, val := range s.data {
		if val.ExpiresAt != nil && now.After(*val.ExpiresAt) {
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// Incr increments the base-10 integer value of a key by 1, treating an
// absent key as 0. Returns ErrNotAnInteger if the current value doesn't
// parse as an integer.
func (s *Store) Incr(key string) (int64, error) {
	current, ok := s.Get(key)

	var value int64
	if ok {
		parsed, err := strconv.ParseInt(current, 10, 64)
		if err != nil {
			return 0, ErrNotAnInteger
		}
		value = parsed
	}

	value++
	s.Set(key, strconv.FormatInt(value, 10), nil)
	return value, nil
}
