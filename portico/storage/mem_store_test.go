package storage

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore(t *testing.T) {
	t.Run("PutGetDelete", func(t *testing.T) {
		s := NewMemStore()
		defer s.Close()

		tx, err := s.Transact(true)
		require.NoError(t, err)
		require.NoError(t, tx.Put([]byte("a"), []byte("1")))
		require.NoError(t, tx.Put([]byte("b"), []byte("2")))
		require.NoError(t, tx.Commit())

		tx, err = s.Transact(false)
		require.NoError(t, err)
		v, found, err := tx.Get([]byte("a"))
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("1"), v)
		require.NoError(t, tx.Rollback())

		tx, err = s.Transact(true)
		require.NoError(t, err)
		require.NoError(t, tx.Delete([]byte("a")))
		require.NoError(t, tx.Commit())

		tx, err = s.Transact(false)
		require.NoError(t, err)
		_, found, err = tx.Get([]byte("a"))
		require.NoError(t, err)
		assert.False(t, found)
		require.NoError(t, tx.Rollback())
	})

	t.Run("RollbackDiscardsWrites", func(t *testing.T) {
		s := NewMemStore()
		defer s.Close()

		tx, err := s.Transact(true)
		require.NoError(t, err)
		require.NoError(t, tx.Put([]byte("ghost"), []byte("x")))
		require.NoError(t, tx.Rollback())

		tx, err = s.Transact(false)
		require.NoError(t, err)
		_, found, err := tx.Get([]byte("ghost"))
		require.NoError(t, err)
		assert.False(t, found)
		require.NoError(t, tx.Rollback())
	})

	t.Run("WriteTxSeesOwnWrites", func(t *testing.T) {
		s := NewMemStore()
		defer s.Close()

		tx, err := s.Transact(true)
		require.NoError(t, err)
		require.NoError(t, tx.Put([]byte("k"), []byte("v")))

		v, found, err := tx.Get([]byte("k"))
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("v"), v)

		require.NoError(t, tx.Delete([]byte("k")))
		_, found, err = tx.Get([]byte("k"))
		require.NoError(t, err)
		assert.False(t, found)
		require.NoError(t, tx.Rollback())
	})

	t.Run("ScanRange", func(t *testing.T) {
		s := NewMemStore()
		defer s.Close()

		tx, err := s.Transact(true)
		require.NoError(t, err)
		for _, k := range []string{"a1", "a2", "b1", "b2", "c1"} {
			require.NoError(t, tx.Put([]byte(k), []byte("v")))
		}
		require.NoError(t, tx.Commit())

		tx, err = s.Transact(false)
		require.NoError(t, err)
		it, err := tx.Scan([]byte("a2"), []byte("c1"))
		require.NoError(t, err)

		var keys []string
		for it.Next() {
			keys = append(keys, string(it.Key()))
		}
		require.NoError(t, it.Close())
		require.NoError(t, tx.Rollback())

		// lower inclusive, upper exclusive, keys in order
		assert.Equal(t, []string{"a2", "b1", "b2"}, keys)
	})

	t.Run("ScanSeesPendingWrites", func(t *testing.T) {
		s := NewMemStore()
		defer s.Close()

		tx, err := s.Transact(true)
		require.NoError(t, err)
		require.NoError(t, tx.Put([]byte("base"), []byte("1")))
		require.NoError(t, tx.Commit())

		tx, err = s.Transact(true)
		require.NoError(t, err)
		require.NoError(t, tx.Put([]byte("added"), []byte("2")))
		require.NoError(t, tx.Delete([]byte("base")))

		it, err := tx.Scan(nil, nil)
		require.NoError(t, err)
		var keys []string
		for it.Next() {
			keys = append(keys, string(it.Key()))
		}
		require.NoError(t, it.Close())
		require.NoError(t, tx.Rollback())

		assert.Equal(t, []string{"added"}, keys)
	})

	t.Run("ConcurrentReaders", func(t *testing.T) {
		s := NewMemStore()
		defer s.Close()

		tx, err := s.Transact(true)
		require.NoError(t, err)
		require.NoError(t, tx.Put([]byte("shared"), []byte("v")))
		require.NoError(t, tx.Commit())

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				rtx, err := s.Transact(false)
				assert.NoError(t, err)
				_, found, err := rtx.Get([]byte("shared"))
				assert.NoError(t, err)
				assert.True(t, found)
				assert.NoError(t, rtx.Rollback())
			}()
		}
		wg.Wait()
	})
}
