//go:build portico_sqlite

package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/porticolabs/portico/portico"
)

func TestSQLiteStore(t *testing.T) {
	t.Run("DurabilityAcrossReopen", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "db.sqlite")

		s, err := Open(KindSQLite, path, Options{CreateIfMissing: true})
		require.NoError(t, err)
		fillStore(t, s, map[string]string{"persist": "yes"})
		require.NoError(t, s.Close())

		s, err = Open(KindSQLite, path, Options{})
		require.NoError(t, err)
		defer s.Close()
		assert.Equal(t, map[string]string{"persist": "yes"}, dumpStore(t, s))
	})

	t.Run("UpsertOverwrites", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "db.sqlite")
		s, err := Open(KindSQLite, path, Options{CreateIfMissing: true})
		require.NoError(t, err)
		defer s.Close()

		fillStore(t, s, map[string]string{"k": "old"})
		fillStore(t, s, map[string]string{"k": "new"})

		assert.Equal(t, map[string]string{"k": "new"}, dumpStore(t, s))
	})

	t.Run("RollbackDiscardsWrites", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "db.sqlite")
		s, err := Open(KindSQLite, path, Options{CreateIfMissing: true})
		require.NoError(t, err)
		defer s.Close()

		tx, err := s.Transact(true)
		require.NoError(t, err)
		require.NoError(t, tx.Put([]byte("ghost"), []byte("x")))
		require.NoError(t, tx.Rollback())

		assert.Empty(t, dumpStore(t, s))
	})

	t.Run("ReadOnlyRejectsWriteTx", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "db.sqlite")
		s, err := Open(KindSQLite, path, Options{CreateIfMissing: true})
		require.NoError(t, err)
		require.NoError(t, s.Close())

		s, err = Open(KindSQLite, path, Options{ReadOnly: true})
		require.NoError(t, err)
		defer s.Close()

		_, err = s.Transact(true)
		assert.Error(t, err)
	})

	t.Run("MissingPathWithoutCreate", func(t *testing.T) {
		_, err := Open(KindSQLite, filepath.Join(t.TempDir(), "nope.sqlite"), Options{CreateIfMissing: false})
		require.Error(t, err)
		d := portico.AsDiagnostic(err)
		require.NotNil(t, d)
		assert.Equal(t, "storage::path_missing", d.Code)
	})
}
