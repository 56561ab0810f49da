package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested key does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrUnavailable is returned when the backing store is temporarily
	// unable to serve a request. Callers may retry.
	ErrUnavailable = errors.New("persistence: store unavailable")
	// ErrCorrupt is returned when a stored value cannot be decoded.
	ErrCorrupt = errors.New("persistence: corrupt record")
)
