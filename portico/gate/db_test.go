package gate

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/porticolabs/portico/portico"
	"github.com/porticolabs/portico/portico/engine"
	"github.com/porticolabs/portico/portico/storage"
)

func openMem(t *testing.T) *DB {
	t.Helper()
	db, err := Open(storage.KindMem, "", nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenAndRun(t *testing.T) {
	db := openMem(t)

	_, err := db.Run(":create items {col}", nil, ReadWrite)
	require.NoError(t, err)

	res, err := db.Run(`?[col] <- [[1], [2], [3]] :put items {col}`, nil, ReadWrite)
	require.NoError(t, err)
	assert.Equal(t, []string{"status"}, res.Headers)

	res, err = db.Run(`?[col] := *items[col]`, nil, ReadOnly)
	require.NoError(t, err)
	assert.Equal(t, []string{"col"}, res.Headers)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, int64(1), res.Rows[0][0])
	assert.Equal(t, int64(2), res.Rows[1][0])
	assert.Equal(t, int64(3), res.Rows[2][0])
}

func TestOpenUnsupportedBackend(t *testing.T) {
	_, err := Open(storage.BackendKind("rocksdb"), "/tmp/x", nil)
	require.Error(t, err)
	d := portico.AsDiagnostic(err)
	require.NotNil(t, d)
	assert.Equal(t, portico.CategoryUnsupportedBackend, d.Category)
}

func TestClose(t *testing.T) {
	t.Run("Idempotent", func(t *testing.T) {
		db := openMem(t)
		require.NoError(t, db.Close())
		require.NoError(t, db.Close())
	})

	t.Run("RunAfterCloseFails", func(t *testing.T) {
		db := openMem(t)
		require.NoError(t, db.Close())

		_, err := db.Run("::relations", nil, ReadOnly)
		require.Error(t, err)
		d := portico.AsDiagnostic(err)
		require.NotNil(t, d)
		assert.Equal(t, portico.CategoryHandleClosed, d.Category)
	})

	t.Run("BackupAfterCloseFails", func(t *testing.T) {
		db := openMem(t)
		require.NoError(t, db.Close())
		err := db.Backup(filepath.Join(t.TempDir(), "s"))
		require.Error(t, err)
		assert.Equal(t, portico.CategoryHandleClosed, portico.AsDiagnostic(err).Category)
	})
}

func TestReadOnlyHandle(t *testing.T) {
	db, err := Open(storage.KindMem, "", &Config{ReadOnly: true})
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Run(":create t {x}", nil, ReadWrite)
	require.Error(t, err)
	d := portico.AsDiagnostic(err)
	require.NotNil(t, d)
	assert.Equal(t, "eval::read_only_handle", d.Code)

	err = db.Restore(filepath.Join(t.TempDir(), "snap"))
	require.Error(t, err)
	assert.Equal(t, "eval::read_only_handle", portico.AsDiagnostic(err).Code)
}

func TestReadOnlyModeOnWritableHandle(t *testing.T) {
	db := openMem(t)

	_, err := db.Run(":create t {x}", nil, ReadOnly)
	require.Error(t, err)
	assert.Equal(t, "eval::write_in_read_only_mode", portico.AsDiagnostic(err).Code)
}

func TestParamFidelity(t *testing.T) {
	db := openMem(t)

	// An int64 parameter reads back as int64, not float64.
	res, err := db.Run(`?[v] <- [[$n]]`, map[string]any{"n": int64(7)}, ReadOnly)
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.Rows[0][0])

	res, err = db.Run(`?[v] <- [[$f]]`, map[string]any{"f": 7.5}, ReadOnly)
	require.NoError(t, err)
	assert.Equal(t, 7.5, res.Rows[0][0])
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	db := openMem(t)

	_, err := db.Run(":create counts {k, n}", nil, ReadWrite)
	require.NoError(t, err)
	_, err = db.Run(`?[k, n] <- [["base", 0]] :put counts {k, n}`, nil, ReadWrite)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := db.Run(`?[k, n] := *counts[k, n]`, nil, ReadOnly)
			assert.NoError(t, err)
			assert.NotEmpty(t, res.Rows)
		}()
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := db.Run(`?[k, n] <- [[$k, $n]] :put counts {k, n}`,
				map[string]any{"k": "w", "n": i}, ReadWrite)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	res, err := db.Run(`?[k, n] := *counts[k, n]`, nil, ReadOnly)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Rows)
}

func TestFailedWriteLeavesHandleUsable(t *testing.T) {
	db := openMem(t)

	_, err := db.Run(":create t {x}", nil, ReadWrite)
	require.NoError(t, err)

	_, err = db.Run(`?[x] <- [[1]] :put missing {x}`, nil, ReadWrite)
	require.Error(t, err)
	d := portico.AsDiagnostic(err)
	require.NotNil(t, d)
	assert.False(t, d.PartialEffects)

	// The handle keeps working after a failed statement.
	_, err = db.Run(`?[x] <- [[1]] :put t {x}`, nil, ReadWrite)
	require.NoError(t, err)
	res, err := db.Run(`?[x] := *t[x]`, nil, ReadOnly)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 1)
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	db := openMem(t)

	_, err := db.Run(":create t {x}", nil, ReadWrite)
	require.NoError(t, err)
	_, err = db.Run(`?[x] <- [["keep"]] :put t {x}`, nil, ReadWrite)
	require.NoError(t, err)

	snap := filepath.Join(t.TempDir(), "snap.portico")
	require.NoError(t, db.Backup(snap))

	// Mutate after the snapshot, then restore: the mutation vanishes.
	_, err = db.Run(`?[x] <- [["extra"]] :put t {x}`, nil, ReadWrite)
	require.NoError(t, err)
	require.NoError(t, db.Restore(snap))

	res, err := db.Run(`?[x] := *t[x]`, nil, ReadOnly)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "keep", res.Rows[0][0])
}

func TestRestoreIncompatibleLeavesDataIntact(t *testing.T) {
	db := openMem(t)

	_, err := db.Run(":create t {x}", nil, ReadWrite)
	require.NoError(t, err)
	_, err = db.Run(`?[x] <- [["precious"]] :put t {x}`, nil, ReadWrite)
	require.NoError(t, err)

	junk := filepath.Join(t.TempDir(), "junk")
	require.NoError(t, writeJunkFile(junk))

	err = db.Restore(junk)
	require.Error(t, err)
	assert.Equal(t, portico.CategoryIncompatibleSnapshot, portico.AsDiagnostic(err).Category)

	res, err := db.Run(`?[x] := *t[x]`, nil, ReadOnly)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "precious", res.Rows[0][0])
}

func TestEvents(t *testing.T) {
	var mu sync.Mutex
	var names []string
	cfg := &Config{OnEvent: func(e Event) {
		mu.Lock()
		names = append(names, e.Name)
		mu.Unlock()
	}}

	db, err := Open(storage.KindMem, "", cfg)
	require.NoError(t, err)
	_, err = db.Run("::relations", nil, ReadOnly)
	require.NoError(t, err)
	_, err = db.Run("nonsense ~ ~", nil, ReadOnly)
	require.Error(t, err)
	require.NoError(t, db.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, names, HandleOpened)
	assert.Contains(t, names, QueryInvoked)
	assert.Contains(t, names, QueryComplete)
	assert.Contains(t, names, QueryFailed)
	assert.Contains(t, names, HandleClosed)
}

func TestHostLockAdapter(t *testing.T) {
	var mu sync.Mutex
	unlocks, relocks := 0, 0
	host := &countingHost{mu: &mu, unlocks: &unlocks, relocks: &relocks}
	count := func() (int, int) {
		mu.Lock()
		defer mu.Unlock()
		return unlocks, relocks
	}

	// Every blocking call releases the host lock: open, run, close.
	db, err := Open(storage.KindMem, "", &Config{Host: host})
	require.NoError(t, err)
	u, r := count()
	assert.Equal(t, 1, u, "open must run in the host's unlocked window")
	assert.Equal(t, 1, r)

	_, err = db.Run("::relations", nil, ReadOnly)
	require.NoError(t, err)
	u, r = count()
	assert.Equal(t, 2, u)
	assert.Equal(t, 2, r)

	require.NoError(t, db.Close())
	u, r = count()
	assert.Equal(t, 3, u, "close must run in the host's unlocked window")
	assert.Equal(t, 3, r)
	assert.Equal(t, u, r, "every unlock must be paired with a relock")
}

type countingHost struct {
	mu      *sync.Mutex
	unlocks *int
	relocks *int
}

func (h *countingHost) Unlock() {
	h.mu.Lock()
	*h.unlocks++
	h.mu.Unlock()
}

func (h *countingHost) Relock() {
	h.mu.Lock()
	*h.relocks++
	h.mu.Unlock()
}

func TestPanicSurfacesAsDiagnostic(t *testing.T) {
	engine.RegisterFixedRule("always_panics", func(input *engine.Relation, args []portico.Value) (*engine.Relation, error) {
		panic("deliberate test panic")
	})

	db := openMem(t)
	_, err := db.Run(":create edges {f, t, w}", nil, ReadWrite)
	require.NoError(t, err)

	_, err = db.Run(`?[a] <~ always_panics(*edges)`, nil, ReadOnly)
	require.Error(t, err)
	d := portico.AsDiagnostic(err)
	require.NotNil(t, d)
	assert.Equal(t, "internal::panic", d.Code)

	// The handle survives the panic.
	_, err = db.Run("::relations", nil, ReadOnly)
	assert.NoError(t, err)
}

func writeJunkFile(path string) error {
	return os.WriteFile(path, []byte("definitely not a snapshot, just junk bytes padding"), 0o644)
}
