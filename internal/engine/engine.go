// Package engine defines the storage-engine contract shared by the
// built-in log-structured engine and the LevelDB-backed alternate engine.
package engine

import "errors"

// Sentinel errors surfaced across both engine realizations and the server.
var (
	// ErrKeyNotFound is returned by Remove when the key is absent. Get
	// reports absence through its bool return instead of this error.
	ErrKeyNotFound = errors.New("key not found")

	// ErrCorrupt indicates a log record failed to decode, or a frozen
	// generation file did not decode fully on open.
	ErrCorrupt = errors.New("corrupt log")

	// ErrBadArgument marks an invalid caller-supplied value, such as an
	// unrecognized engine name.
	ErrBadArgument = errors.New("bad argument")
)

// Name identifies which engine realization owns a data directory.
type Name string

const (
	Builtin  Name = "builtin"
	LevelDB  Name = "alternate"
)

// Stats is a read-only snapshot of engine state, used by the server's
// Stats response and the client's stats subcommand.
type Stats struct {
	Engine      Name
	Keys        int
	Uncompacted uint64
	Generations int
}

// Engine is the shareable handle contract of spec §4.B. A handle is cheap
// to Clone and every clone refers to the same logical store; no operation
// requires exclusive external access to the handle. Concurrent Gets never
// block each other; a Set or Remove is linearizable with respect to
// subsequent Gets on any handle derived from the same Open call.
type Engine interface {
	// Get returns the current value for key and whether it was present.
	Get(key string) (value string, found bool, err error)

	// Set upserts key to value, overwriting any previous value.
	Set(key, value string) error

	// Remove deletes key. It returns ErrKeyNotFound if the key is absent.
	Remove(key string) error

	// Stats reports a snapshot of engine state for operability.
	Stats() (Stats, error)

	// Clone returns a cheaply duplicated handle to the same logical store,
	// safe to use concurrently with the original and with other clones.
	Clone() Engine

	// Close releases the handle. The last Close on a given Open flushes
	// buffers and releases underlying files.
	Close() error
}
