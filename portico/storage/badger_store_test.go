//go:build !portico_sqlite && !portico_nostore

package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/porticolabs/portico/portico"
)

func TestBadgerStore(t *testing.T) {
	t.Run("DurabilityAcrossReopen", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "db")

		s, err := Open(KindBadger, dir, Options{CreateIfMissing: true})
		require.NoError(t, err)
		fillStore(t, s, map[string]string{"persist": "yes"})
		require.NoError(t, s.Close())

		s, err = Open(KindBadger, dir, Options{})
		require.NoError(t, err)
		defer s.Close()
		assert.Equal(t, map[string]string{"persist": "yes"}, dumpStore(t, s))
	})

	t.Run("EmptyPathRejected", func(t *testing.T) {
		_, err := Open(KindBadger, "", Options{CreateIfMissing: true})
		require.Error(t, err)
		d := portico.AsDiagnostic(err)
		require.NotNil(t, d)
		assert.Equal(t, portico.CategoryStorageInit, d.Category)
		assert.Equal(t, "storage::empty_path", d.Code)
	})

	t.Run("MissingPathWithoutCreate", func(t *testing.T) {
		_, err := Open(KindBadger, filepath.Join(t.TempDir(), "nope"), Options{CreateIfMissing: false})
		require.Error(t, err)
		d := portico.AsDiagnostic(err)
		require.NotNil(t, d)
		assert.Equal(t, "storage::path_missing", d.Code)
	})

	t.Run("ScanRange", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "db")
		s, err := Open(KindBadger, dir, Options{CreateIfMissing: true})
		require.NoError(t, err)
		defer s.Close()

		fillStore(t, s, map[string]string{"a1": "v", "a2": "v", "b1": "v", "c1": "v"})

		tx, err := s.Transact(false)
		require.NoError(t, err)
		it, err := tx.Scan([]byte("a2"), []byte("c1"))
		require.NoError(t, err)
		var keys []string
		for it.Next() {
			keys = append(keys, string(it.Key()))
		}
		require.NoError(t, it.Close())
		require.NoError(t, tx.Rollback())

		assert.Equal(t, []string{"a2", "b1"}, keys)
	})

	t.Run("SnapshotRoundTripOnDisk", func(t *testing.T) {
		srcDir := filepath.Join(t.TempDir(), "src")
		s, err := Open(KindBadger, srcDir, Options{CreateIfMissing: true})
		require.NoError(t, err)
		fillStore(t, s, map[string]string{"x": "1", "y": "2"})

		snap := filepath.Join(t.TempDir(), "snap.portico")
		require.NoError(t, WriteSnapshot(s, snap))
		require.NoError(t, s.Close())

		liveDir := filepath.Join(t.TempDir(), "live")
		live, err := Open(KindBadger, liveDir, Options{CreateIfMissing: true})
		require.NoError(t, err)
		fillStore(t, live, map[string]string{"stale": "z"})

		staged, err := StageRestore(KindBadger, liveDir, snap, Options{CreateIfMissing: true})
		require.NoError(t, err)
		// File swap requires the live handle released first.
		require.NoError(t, live.Close())
		restored, err := staged.Commit(live)
		require.NoError(t, err)
		defer restored.Close()

		assert.Equal(t, map[string]string{"x": "1", "y": "2"}, dumpStore(t, restored))
	})
}
