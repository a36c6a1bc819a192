package gate

import (
	"github.com/porticolabs/portico/portico"
	"github.com/porticolabs/portico/portico/engine"
)

// ExportRelations dumps the named stored relations in full, bypassing
// the script layer. The result maps each relation name to its columns
// and rows in host shape, ready for JSON serialization.
func (d *DB) ExportRelations(names []string) (map[string]*NamedRows, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, errClosed()
	}

	out := make(map[string]*NamedRows, len(names))
	err := d.withUnlocked(func() error {
		for _, name := range names {
			rel, err := engine.ExportRelation(d.store, name)
			if err != nil {
				return err
			}
			out[name] = hostRows(rel)
		}
		return nil
	})
	if err != nil {
		return nil, portico.AsDiagnostic(err)
	}
	return out, nil
}

// ImportRelations loads rows into existing stored relations from a dump
// in the ExportRelations shape. All relations load in one transaction:
// a failure anywhere leaves every target untouched.
func (d *DB) ImportRelations(data map[string]*NamedRows) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return errClosed()
	}
	if d.cfg.ReadOnly {
		return portico.NewDiagnostic(portico.CategoryEval, "eval::read_only_handle",
			"handle was opened read-only; writes are not permitted")
	}

	rels := make(map[string]*engine.Relation, len(data))
	for name, rows := range data {
		rel := engine.NewRelation(rows.Headers...)
		for _, hostRow := range rows.Rows {
			row := make([]portico.Value, len(hostRow))
			for i, cell := range hostRow {
				v, err := marshalValue(name, cell)
				if err != nil {
					return err
				}
				row[i] = v
			}
			rel.Append(row)
		}
		rels[name] = rel
	}

	err := d.withUnlocked(func() error {
		return engine.ImportRelations(d.store, rels)
	})
	if err != nil {
		return portico.AsDiagnostic(err)
	}
	return nil
}

// ImportFromBackup copies the named relations out of a snapshot file
// into this database, leaving every other stored relation alone. Unlike
// Restore it never replaces the store, so it works across backend kinds
// and runs concurrently with queries.
func (d *DB) ImportFromBackup(src string, names []string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return errClosed()
	}
	if d.cfg.ReadOnly {
		return portico.NewDiagnostic(portico.CategoryEval, "eval::read_only_handle",
			"handle was opened read-only; writes are not permitted")
	}

	err := d.withUnlocked(func() error {
		return engine.ImportFromSnapshot(d.store, src, names)
	})
	if err != nil {
		return portico.AsDiagnostic(err)
	}
	return nil
}
