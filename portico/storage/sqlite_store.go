//go:build portico_sqlite

package storage

import (
	"database/sql"
	"fmt"
	"io"
	"os"

	_ "modernc.org/sqlite"

	"github.com/porticolabs/portico/portico"
)

func init() {
	Register(KindSQLite, openSQLite)
}

// SQLiteStore is the single-file embedded backend. All pairs live in one
// table with BLOB keys and values, mirroring the layout the engine's
// original storage uses for its SQLite engine.
type SQLiteStore struct {
	db       *sql.DB
	path     string
	readOnly bool
}

const sqliteSchema = `
create table if not exists portico
(
    k BLOB primary key,
    v BLOB
) without rowid;
`

func openSQLite(path string, opts Options) (Store, error) {
	if path == "" {
		return nil, portico.NewDiagnostic(portico.CategoryStorageInit,
			"storage::empty_path", "sqlite backend requires a file path")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) && !opts.CreateIfMissing {
		return nil, portico.NewDiagnostic(portico.CategoryStorageInit,
			"storage::path_missing", "database %q does not exist and create_if_missing is false", path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, portico.NewDiagnostic(portico.CategoryStorageInit,
			"storage::sqlite_open", "failed to open sqlite store at %q", path).WithCause(err)
	}
	// One writer at a time; readers share it through database/sql.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"pragma journal_mode = WAL;",
		"pragma busy_timeout = 5000;",
	}
	if opts.CacheSize > 0 {
		// sqlite takes negative cache_size as kibibytes
		pragmas = append(pragmas, fmt.Sprintf("pragma cache_size = %d;", -(opts.CacheSize / 1024)))
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, portico.NewDiagnostic(portico.CategoryStorageInit,
				"storage::sqlite_pragma", "failed to configure sqlite store").WithCause(err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, portico.NewDiagnostic(portico.CategoryStorageInit,
			"storage::sqlite_schema", "failed to initialize sqlite store at %q (corrupt or incompatible file?)", path).WithCause(err)
	}

	return &SQLiteStore{db: db, path: path, readOnly: opts.ReadOnly}, nil
}

func (s *SQLiteStore) Kind() BackendKind { return KindSQLite }
func (s *SQLiteStore) Path() string      { return s.path }

func (s *SQLiteStore) Transact(write bool) (Tx, error) {
	if write && s.readOnly {
		return nil, fmt.Errorf("store is read-only")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin sqlite transaction: %w", err)
	}
	return &sqliteTx{tx: tx, write: write}, nil
}

// Checkpoint dumps every pair in key order from a single transaction.
func (s *SQLiteStore) Checkpoint(w io.Writer) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows, err := tx.Query("select k, v from portico order by k")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}
		if err := writeRecord(w, k, v); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteTx struct {
	tx    *sql.Tx
	write bool
	done  bool
}

func (t *sqliteTx) Get(key []byte) ([]byte, bool, error) {
	var v []byte
	err := t.tx.QueryRow("select v from portico where k = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (t *sqliteTx) Put(key, value []byte) error {
	if !t.write {
		return fmt.Errorf("put on read-only transaction")
	}
	_, err := t.tx.Exec(
		"insert into portico(k, v) values (?, ?) on conflict(k) do update set v = excluded.v",
		key, value)
	return err
}

func (t *sqliteTx) Delete(key []byte) error {
	if !t.write {
		return fmt.Errorf("delete on read-only transaction")
	}
	_, err := t.tx.Exec("delete from portico where k = ?", key)
	return err
}

// Scan materializes the matching range so the underlying cursor does not
// outlive other statements on the same transaction.
func (t *sqliteTx) Scan(lower, upper []byte) (Iterator, error) {
	query := "select k, v from portico"
	var args []interface{}
	switch {
	case lower != nil && upper != nil:
		query += " where k >= ? and k < ?"
		args = []interface{}{lower, upper}
	case lower != nil:
		query += " where k >= ?"
		args = []interface{}{lower}
	case upper != nil:
		query += " where k < ?"
		args = []interface{}{upper}
	}
	query += " order by k"

	rows, err := t.tx.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []memPair
	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		pairs = append(pairs, memPair{key: k, value: v})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &memIterator{pairs: pairs, pos: -1}, nil
}

func (t *sqliteTx) Commit() error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	t.done = true
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}
