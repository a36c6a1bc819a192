package engine

import (
	"bufio"
	"bytes"

	"github.com/golang/snappy"

	"github.com/porticolabs/portico/portico"
	"github.com/porticolabs/portico/portico/storage"
)

// ExportRelation materializes a stored relation in full: its column list
// and every row, in stored key order.
func ExportRelation(store storage.Store, name string) (*Relation, error) {
	tx, err := store.Transact(false)
	if err != nil {
		return nil, portico.NewDiagnostic(portico.CategoryIO,
			"eval::begin_transaction", "cannot begin storage transaction").WithCause(err)
	}
	defer tx.Rollback()

	cols, err := relationMeta(tx, name)
	if err != nil {
		return nil, wrapIO(err)
	}
	if cols == nil {
		return nil, portico.NewDiagnostic(portico.CategoryEval,
			"eval::relation_not_found", "stored relation %q does not exist", name)
	}

	rel := NewRelation(cols...)
	prefix := rowPrefix(name)
	it, err := tx.Scan(prefix, prefixSuccessor(prefix))
	if err != nil {
		return nil, wrapIO(err)
	}
	defer it.Close()
	for it.Next() {
		val, err := it.Value()
		if err != nil {
			return nil, wrapIO(err)
		}
		row, err := decodeRow(val)
		if err != nil {
			return nil, wrapIO(err)
		}
		rel.Append(row)
	}
	return rel, nil
}

// ImportRelations puts rows into existing stored relations inside one
// transaction, so a failed import leaves every target untouched. Rows
// merge with the current contents keyed on the full tuple, like a :put,
// so re-importing the same dump is idempotent. Each relation's arity
// must match its incoming columns.
func ImportRelations(store storage.Store, rels map[string]*Relation) error {
	tx, err := store.Transact(true)
	if err != nil {
		return portico.NewDiagnostic(portico.CategoryIO,
			"eval::begin_transaction", "cannot begin storage transaction").WithCause(err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	for name, rel := range rels {
		cols, err := relationMeta(tx, name)
		if err != nil {
			return wrapIO(err)
		}
		if cols == nil {
			return portico.NewDiagnostic(portico.CategoryEval,
				"eval::relation_not_found", "stored relation %q does not exist", name)
		}
		if len(rel.Columns) != len(cols) {
			return portico.NewDiagnostic(portico.CategoryEval,
				"eval::arity_mismatch",
				"import has %d columns but relation %q has %d", len(rel.Columns), name, len(cols))
		}

		for _, row := range rel.Rows {
			if len(row) != len(cols) {
				return portico.NewDiagnostic(portico.CategoryEval,
					"eval::arity_mismatch",
					"import row has %d values but relation %q has %d columns", len(row), name, len(cols))
			}
			key, err := rowKey(name, row)
			if err != nil {
				return portico.NewDiagnostic(portico.CategoryEval,
					"eval::unstorable_value", "row contains a value that cannot be stored").
					WithCause(err)
			}
			encoded, err := encodeRow(row)
			if err != nil {
				return wrapIO(err)
			}
			if err := tx.Put(key, encoded); err != nil {
				return wrapIO(err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		committed = true
		return portico.NewDiagnostic(portico.CategoryIO,
			"eval::commit", "storage commit failed").WithCause(err)
	}
	committed = true
	return nil
}

// ImportFromSnapshot copies the named relations out of a snapshot file
// into the store, leaving every other stored relation untouched. The
// snapshot's backend kind does not matter here: payload records carry
// the row codec, which is identical across backends. A named relation
// missing from the store is created with the snapshot's columns; one
// that exists must have the same arity.
func ImportFromSnapshot(store storage.Store, src string, names []string) error {
	_, rc, err := storage.ReadHeader(src)
	if err != nil {
		return err
	}
	defer rc.Close()

	metaKeys := make(map[string][]byte, len(names))
	rowPrefixes := make(map[string][]byte, len(names))
	for _, name := range names {
		metaKeys[name] = metaKey(name)
		rowPrefixes[name] = rowPrefix(name)
	}

	// Collect the wanted records first; the snapshot is a single forward
	// stream, so the store transaction only opens once staging succeeds.
	metas := make(map[string][]string, len(names))
	type record struct{ k, v []byte }
	rows := make(map[string][]record, len(names))

	payload := snappy.NewReader(bufio.NewReader(rc))
	err = storage.ReadRecords(payload, func(k, v []byte) error {
		for name, mk := range metaKeys {
			if bytes.Equal(k, mk) {
				row, err := decodeRow(v)
				if err != nil {
					return err
				}
				cols := make([]string, len(row))
				for i, cv := range row {
					s, ok := cv.(string)
					if !ok {
						return portico.NewDiagnostic(portico.CategoryInternal,
							"eval::corrupt_meta", "relation %q has corrupt metadata", name)
					}
					cols[i] = s
				}
				metas[name] = cols
				return nil
			}
		}
		for name, rp := range rowPrefixes {
			if bytes.HasPrefix(k, rp) {
				rows[name] = append(rows[name], record{
					k: append([]byte(nil), k...),
					v: append([]byte(nil), v...),
				})
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return wrapIO(err)
	}

	for _, name := range names {
		if metas[name] == nil {
			return portico.NewDiagnostic(portico.CategoryEval,
				"eval::relation_not_found", "snapshot does not contain stored relation %q", name)
		}
	}

	tx, err := store.Transact(true)
	if err != nil {
		return portico.NewDiagnostic(portico.CategoryIO,
			"eval::begin_transaction", "cannot begin storage transaction").WithCause(err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	for _, name := range names {
		existing, err := relationMeta(tx, name)
		if err != nil {
			return wrapIO(err)
		}
		if existing == nil {
			if err := putRelationMeta(tx, name, metas[name]); err != nil {
				return wrapIO(err)
			}
		} else if len(existing) != len(metas[name]) {
			return portico.NewDiagnostic(portico.CategoryEval,
				"eval::arity_mismatch",
				"snapshot relation %q has %d columns but the store has %d",
				name, len(metas[name]), len(existing))
		}
		for _, rec := range rows[name] {
			if err := tx.Put(rec.k, rec.v); err != nil {
				return wrapIO(err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		committed = true
		return portico.NewDiagnostic(portico.CategoryIO,
			"eval::commit", "storage commit failed").WithCause(err)
	}
	committed = true
	return nil
}
