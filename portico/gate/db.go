// Package gate is the embedding surface of portico: a thread-safe
// database handle that hosts open, run scripts against, snapshot, and
// close. All engine and storage details stay behind it; hosts see only
// plain Go values and diagnostics.
package gate

import (
	"sync"
	"time"

	"github.com/porticolabs/portico/portico"
	"github.com/porticolabs/portico/portico/engine"
	"github.com/porticolabs/portico/portico/storage"
)

// Mode selects the effect budget of a single Run call.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

// DB is a handle to one database. It is safe for concurrent use: Run
// and Backup proceed in parallel under the read lock, while Close and
// Restore take the write lock and so wait for every in-flight call to
// drain before they act.
type DB struct {
	mu     sync.RWMutex
	store  storage.Store
	eng    engine.Engine
	kind   storage.BackendKind
	path   string
	cfg    *Config
	host   HostLock
	events collector
	closed bool
}

// Open opens (or creates) the database at path on the given backend.
// An unsupported kind fails with an unsupported-backend diagnostic
// naming the kinds this build carries.
func Open(kind storage.BackendKind, path string, cfg *Config) (*DB, error) {
	if cfg == nil {
		cfg = defaultConfig()
	}
	start := time.Now()
	// Opening a file backend blocks on disk and lock acquisition, so it
	// runs inside the host's unlocked window like every other blocking
	// gateway call.
	var store storage.Store
	err := runUnlocked(cfg.Host, func() error {
		var openErr error
		store, openErr = storage.Open(kind, path, cfg.storageOptions())
		return openErr
	})
	if err != nil {
		return nil, portico.AsDiagnostic(err)
	}
	d := &DB{
		store: store,
		eng:   engine.New(),
		kind:  kind,
		path:  path,
		cfg:   cfg,
		host:  cfg.Host,
	}
	if d.host == nil {
		d.host = NoHostLock{}
	}
	d.events.setHandler(cfg.OnEvent)
	d.events.emit(HandleOpened, start, map[string]interface{}{
		"backend": string(kind),
		"path":    path,
	})
	return d, nil
}

// Run executes one script statement and returns its result rows. Calls
// overlap freely with other Run and Backup calls; a Close or Restore in
// progress makes Run fail with a handle-closed diagnostic rather than
// observe a half-swapped store.
func (d *DB) Run(script string, params map[string]any, mode Mode) (*NamedRows, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, errClosed()
	}
	if mode == ReadWrite && d.cfg.ReadOnly {
		return nil, portico.NewDiagnostic(portico.CategoryEval, "eval::read_only_handle",
			"handle was opened read-only; writes are not permitted")
	}

	engParams, err := marshalParams(params)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	d.events.emit(QueryInvoked, start, map[string]interface{}{"mode": mode})
	var rel *engine.Relation
	err = d.withUnlocked(func() error {
		var execErr error
		rel, execErr = d.eng.Execute(script, engParams, mode == ReadOnly, d.store)
		return execErr
	})
	if err != nil {
		d.events.emit(QueryFailed, start, map[string]interface{}{"error": err.Error()})
		return nil, portico.AsDiagnostic(err)
	}

	out := hostRows(rel)
	d.events.emit(QueryComplete, start, map[string]interface{}{"rows": len(out.Rows)})
	return out, nil
}

// Backup writes a point-in-time snapshot of the store to dest. It runs
// under the read lock, so queries keep flowing while the snapshot
// streams out.
func (d *DB) Backup(dest string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return errClosed()
	}
	start := time.Now()
	err := d.withUnlocked(func() error {
		return storage.WriteSnapshot(d.store, dest)
	})
	if err != nil {
		return portico.AsDiagnostic(err)
	}
	d.events.emit(BackupComplete, start, map[string]interface{}{"dest": dest})
	return nil
}

// Restore replaces the database contents with the snapshot at src. The
// snapshot is staged in full before the live store is touched, so a
// failure partway leaves the original contents intact: the handle ends
// up on either the original data or the fully restored data, never a
// mix. Restore drains in-flight calls first and blocks new ones.
func (d *DB) Restore(src string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errClosed()
	}
	if d.cfg.ReadOnly {
		return portico.NewDiagnostic(portico.CategoryEval, "eval::read_only_handle",
			"handle was opened read-only; restore is not permitted")
	}
	start := time.Now()
	err := d.withUnlocked(func() error {
		staged, err := storage.StageRestore(d.kind, d.path, src, d.cfg.storageOptions())
		if err != nil {
			return err
		}
		// File backends swap by renaming directories, so the live store
		// must release its locks first. A failed swap renames the
		// original back; reopening it returns the handle to the
		// pre-restore contents.
		if d.kind != storage.KindMem {
			if err := d.store.Close(); err != nil {
				staged.Abort()
				return err
			}
		}
		swapped, err := staged.Commit(d.store)
		if err != nil {
			staged.Abort()
			if d.kind != storage.KindMem {
				reopened, reopenErr := storage.Open(d.kind, d.path, d.cfg.storageOptions())
				if reopenErr != nil {
					d.closed = true
					return portico.NewDiagnostic(portico.CategoryIO, "restore::reopen",
						"restore failed and the original store could not be reopened").
						WithCause(reopenErr)
				}
				d.store = reopened
			}
			return err
		}
		d.store = swapped
		return nil
	})
	if err != nil {
		return portico.AsDiagnostic(err)
	}
	d.events.emit(RestoreComplete, start, map[string]interface{}{"src": src})
	return nil
}

// Close drains in-flight calls, releases the store, and marks the
// handle closed. Closing twice is a no-op; every other method on a
// closed handle fails with a handle-closed diagnostic.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	start := time.Now()
	d.closed = true
	err := d.withUnlocked(d.store.Close)
	d.events.emit(HandleClosed, start, nil)
	if err != nil {
		return portico.AsDiagnostic(err)
	}
	return nil
}

// Kind reports the backend this handle was opened on.
func (d *DB) Kind() storage.BackendKind { return d.kind }

// Path reports the filesystem location of the store, empty for mem.
func (d *DB) Path() string { return d.path }

func errClosed() error {
	return portico.NewDiagnostic(portico.CategoryHandleClosed, "handle::closed",
		"operation on a closed database handle")
}
