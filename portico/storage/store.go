// Package storage defines the key/value storage trait consumed by the
// engine and the gate, the build-time backend registry, and the snapshot
// codec used by backup/restore.
package storage

import "io"

// BackendKind identifies a storage backend implementation. Which kinds
// are actually linked into a build is decided by build tags; see
// registry.go.
type BackendKind string

const (
	// KindMem is the in-memory backend, present in every build.
	KindMem BackendKind = "mem"
	// KindBadger is the log-structured file backend (default build).
	KindBadger BackendKind = "badger"
	// KindSQLite is the single-file embedded backend (portico_sqlite tag).
	KindSQLite BackendKind = "sqlite"
	// KindNone marks a build with no file-backed backend compiled in.
	KindNone BackendKind = "none"
)

// Options are the backend knobs recognized at open time.
type Options struct {
	ReadOnly        bool
	CreateIfMissing bool
	CacheSize       int // bytes; 0 means backend default
}

// Store is a transactional key/value store. One Store instance is
// exclusively owned by one database handle; it is never shared.
type Store interface {
	// Kind reports the backend kind this store was opened with.
	Kind() BackendKind

	// Path is the storage location, or "" for in-memory stores.
	Path() string

	// Transact begins a transaction. Read transactions see a consistent
	// snapshot; write transactions are serialized by the backend.
	Transact(write bool) (Tx, error)

	// Checkpoint streams a consistent dump of every key/value pair as
	// length-prefixed records (see snapshot.go for the record format).
	Checkpoint(w io.Writer) error

	// Close releases the store. Callers must not use the store afterward.
	Close() error
}

// Tx is a storage transaction. Every Tx must be finished with exactly one
// Commit or Rollback call.
type Tx interface {
	Get(key []byte) ([]byte, bool, error)
	Put(key, value []byte) error
	Delete(key []byte) error

	// Scan iterates keys in [lower, upper) in ascending key order. A nil
	// bound is unbounded on that side.
	Scan(lower, upper []byte) (Iterator, error)

	Commit() error
	Rollback() error
}

// Iterator provides sequential access to scanned pairs.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() ([]byte, error)
	Close() error
}
