package storage

import "errors"

var (
	// ErrNotAnInteger is returned by Incr when the current value doesn't
	// parse as a base-10 integer.
	ErrNotAnInteger = errors.New("value is not an integer or out of range")

	// ErrIDIsZero is returned by XAdd when the supplied entry id is (0,0),
	// which is rejected unconditionally regardless of stream state.
	ErrIDIsZero = errors.New("must be greater than 0-0")

	// ErrIDTooSmall is returned by XAdd when the supplied entry id is not
	// strictly greater than the stream's current top id.
	ErrIDTooSmall = errors.New("is equal or smaller than the target stream top item")
)
