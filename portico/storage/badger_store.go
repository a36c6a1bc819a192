//go:build !portico_sqlite && !portico_nostore

package storage

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/porticolabs/portico/portico"
)

func init() {
	Register(KindBadger, openBadger)
}

// BadgerStore is the log-structured file backend, built on BadgerDB.
type BadgerStore struct {
	db   *badger.DB
	path string
}

func openBadger(path string, opts Options) (Store, error) {
	if path == "" {
		return nil, portico.NewDiagnostic(portico.CategoryStorageInit,
			"storage::empty_path", "badger backend requires a directory path")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) && !opts.CreateIfMissing {
		return nil, portico.NewDiagnostic(portico.CategoryStorageInit,
			"storage::path_missing", "database %q does not exist and create_if_missing is false", path)
	}

	bopts := badger.DefaultOptions(path)
	bopts.Logger = nil
	bopts.ReadOnly = opts.ReadOnly
	// Store small values in the LSM tree; the engine's rows are small.
	bopts.ValueThreshold = 1 << 10
	if opts.CacheSize > 0 {
		bopts.BlockCacheSize = int64(opts.CacheSize)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, portico.NewDiagnostic(portico.CategoryStorageInit,
			"storage::badger_open", "failed to open badger store at %q", path).WithCause(err)
	}

	return &BadgerStore{db: db, path: path}, nil
}

func (s *BadgerStore) Kind() BackendKind { return KindBadger }
func (s *BadgerStore) Path() string      { return s.path }

func (s *BadgerStore) Transact(write bool) (Tx, error) {
	return &badgerTx{txn: s.db.NewTransaction(write)}, nil
}

// Checkpoint dumps every pair from a single snapshot-isolated transaction.
func (s *BadgerStore) Checkpoint(w io.Writer) error {
	return s.db.View(func(txn *badger.Txn) error {
		iopts := badger.DefaultIteratorOptions
		iopts.PrefetchSize = 1000
		it := txn.NewIterator(iopts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				return writeRecord(w, item.Key(), val)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

type badgerTx struct {
	txn  *badger.Txn
	done bool
}

func (tx *badgerTx) Get(key []byte) ([]byte, bool, error) {
	item, err := tx.txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (tx *badgerTx) Put(key, value []byte) error {
	return tx.txn.Set(append([]byte(nil), key...), append([]byte(nil), value...))
}

func (tx *badgerTx) Delete(key []byte) error {
	err := tx.txn.Delete(append([]byte(nil), key...))
	if err == badger.ErrKeyNotFound {
		return nil
	}
	return err
}

func (tx *badgerTx) Scan(lower, upper []byte) (Iterator, error) {
	iopts := badger.DefaultIteratorOptions
	iopts.PrefetchSize = 1000
	it := tx.txn.NewIterator(iopts)
	biter := &badgerIterator{it: it, upper: upper, first: true, lower: lower}
	return biter, nil
}

func (tx *badgerTx) Commit() error {
	if tx.done {
		return fmt.Errorf("transaction already finished")
	}
	tx.done = true
	return tx.txn.Commit()
}

func (tx *badgerTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.txn.Discard()
	return nil
}

type badgerIterator struct {
	it    *badger.Iterator
	lower []byte
	upper []byte
	first bool
}

func (b *badgerIterator) Next() bool {
	if b.first {
		b.first = false
		if b.lower != nil {
			b.it.Seek(b.lower)
		} else {
			b.it.Rewind()
		}
	} else {
		b.it.Next()
	}
	if !b.it.Valid() {
		return false
	}
	if b.upper != nil && bytes.Compare(b.it.Item().Key(), b.upper) >= 0 {
		return false
	}
	return true
}

func (b *badgerIterator) Key() []byte {
	return b.it.Item().KeyCopy(nil)
}

func (b *badgerIterator) Value() ([]byte, error) {
	return b.it.Item().ValueCopy(nil)
}

func (b *badgerIterator) Close() error {
	b.it.Close()
	return nil
}
