package storage

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync"
)

func init() {
	Register(KindMem, func(path string, opts Options) (Store, error) {
		return NewMemStore(), nil
	})
}

// MemStore is the in-memory backend. It is present in every build and is
// selected with the "mem" location marker. Readers run concurrently;
// a write transaction holds the store lock for its lifetime, so writers
// are serialized.
type MemStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func (s *MemStore) Kind() BackendKind { return KindMem }
func (s *MemStore) Path() string      { return "" }

// Transact begins a transaction. Read transactions hold the read lock
// until finished; write transactions buffer mutations and apply them on
// Commit while holding the write lock.
func (s *MemStore) Transact(write bool) (Tx, error) {
	if write {
		s.mu.Lock()
	} else {
		s.mu.RLock()
	}
	return &memTx{
		store:   s,
		write:   write,
		pending: make(map[string][]byte),
		deleted: make(map[string]bool),
	}, nil
}

// Checkpoint dumps every pair in key order.
func (s *MemStore) Checkpoint(w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := writeRecord(w, []byte(k), s.data[k]); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	return nil
}

// replaceContents swaps in a fully staged data set. Used by restore.
func (s *MemStore) replaceContents(data map[string][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
}

type memTx struct {
	store   *MemStore
	write   bool
	done    bool
	pending map[string][]byte
	deleted map[string]bool
}

func (tx *memTx) Get(key []byte) ([]byte, bool, error) {
	if tx.done {
		return nil, false, fmt.Errorf("transaction already finished")
	}
	k := string(key)
	if tx.write {
		if tx.deleted[k] {
			return nil, false, nil
		}
		if v, ok := tx.pending[k]; ok {
			return append([]byte(nil), v...), true, nil
		}
	}
	v, ok := tx.store.data[k]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (tx *memTx) Put(key, value []byte) error {
	if tx.done {
		return fmt.Errorf("transaction already finished")
	}
	if !tx.write {
		return fmt.Errorf("put on read-only transaction")
	}
	k := string(key)
	delete(tx.deleted, k)
	tx.pending[k] = append([]byte(nil), value...)
	return nil
}

func (tx *memTx) Delete(key []byte) error {
	if tx.done {
		return fmt.Errorf("transaction already finished")
	}
	if !tx.write {
		return fmt.Errorf("delete on read-only transaction")
	}
	k := string(key)
	delete(tx.pending, k)
	tx.deleted[k] = true
	return nil
}

func (tx *memTx) Scan(lower, upper []byte) (Iterator, error) {
	if tx.done {
		return nil, fmt.Errorf("transaction already finished")
	}
	var pairs []memPair
	add := func(k string, v []byte) {
		kb := []byte(k)
		if lower != nil && bytes.Compare(kb, lower) < 0 {
			return
		}
		if upper != nil && bytes.Compare(kb, upper) >= 0 {
			return
		}
		pairs = append(pairs, memPair{key: kb, value: append([]byte(nil), v...)})
	}
	for k, v := range tx.store.data {
		if tx.write {
			if _, pending := tx.pending[k]; pending || tx.deleted[k] {
				continue
			}
		}
		add(k, v)
	}
	if tx.write {
		for k, v := range tx.pending {
			add(k, v)
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		return bytes.Compare(pairs[i].key, pairs[j].key) < 0
	})
	return &memIterator{pairs: pairs, pos: -1}, nil
}

func (tx *memTx) Commit() error {
	if tx.done {
		return fmt.Errorf("transaction already finished")
	}
	tx.done = true
	if !tx.write {
		tx.store.mu.RUnlock()
		return nil
	}
	for k := range tx.deleted {
		delete(tx.store.data, k)
	}
	for k, v := range tx.pending {
		tx.store.data[k] = v
	}
	tx.store.mu.Unlock()
	return nil
}

func (tx *memTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	if tx.write {
		tx.store.mu.Unlock()
	} else {
		tx.store.mu.RUnlock()
	}
	return nil
}

type memPair struct {
	key   []byte
	value []byte
}

type memIterator struct {
	pairs []memPair
	pos   int
}

func (it *memIterator) Next() bool {
	it.pos++
	return it.pos < len(it.pairs)
}

func (it *memIterator) Key() []byte {
	return it.pairs[it.pos].key
}

func (it *memIterator) Value() ([]byte, error) {
	return it.pairs[it.pos].value, nil
}

func (it *memIterator) Close() error { return nil }
