package engine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/porticolabs/portico/portico"
	"github.com/porticolabs/portico/portico/storage"
)

func TestExportRelation(t *testing.T) {
	store := storage.NewMemStore()
	defer store.Close()

	run(t, store, `:create friends {from, to}`, nil)
	run(t, store, `?[from, to] <- [["alice", "bob"], ["bob", "carol"]] :put friends {from, to}`, nil)

	t.Run("FullDump", func(t *testing.T) {
		rel, err := ExportRelation(store, "friends")
		require.NoError(t, err)
		assert.Equal(t, []string{"from", "to"}, rel.Columns)
		require.Len(t, rel.Rows, 2)
		assert.Equal(t, []portico.Value{"alice", "bob"}, rel.Rows[0])
		assert.Equal(t, []portico.Value{"bob", "carol"}, rel.Rows[1])
	})

	t.Run("MissingRelation", func(t *testing.T) {
		_, err := ExportRelation(store, "enemies")
		d := portico.AsDiagnostic(err)
		require.NotNil(t, d)
		assert.Equal(t, "eval::relation_not_found", d.Code)
	})
}

func TestImportRelations(t *testing.T) {
	t.Run("MergesLikePut", func(t *testing.T) {
		store := storage.NewMemStore()
		defer store.Close()
		run(t, store, `:create friends {from, to}`, nil)
		run(t, store, `?[from, to] <- [["alice", "bob"]] :put friends {from, to}`, nil)

		err := ImportRelations(store, map[string]*Relation{
			"friends": {
				Columns: []string{"from", "to"},
				Rows: [][]portico.Value{
					{"alice", "bob"}, // already present
					{"bob", "carol"},
				},
			},
		})
		require.NoError(t, err)

		rel := run(t, store, `?[f, v] := *friends[f, v]`, nil)
		assert.Len(t, rel.Rows, 2)
	})

	t.Run("MissingTargetRelation", func(t *testing.T) {
		store := storage.NewMemStore()
		defer store.Close()
		err := ImportRelations(store, map[string]*Relation{
			"friends": NewRelation("from", "to"),
		})
		d := portico.AsDiagnostic(err)
		require.NotNil(t, d)
		assert.Equal(t, "eval::relation_not_found", d.Code)
	})

	t.Run("ArityMismatchRollsBackEverything", func(t *testing.T) {
		store := storage.NewMemStore()
		defer store.Close()
		run(t, store, `:create good {x}`, nil)
		run(t, store, `:create bad {x, y}`, nil)

		err := ImportRelations(store, map[string]*Relation{
			"good": {Columns: []string{"x"}, Rows: [][]portico.Value{{int64(1)}}},
			"bad":  {Columns: []string{"x"}, Rows: [][]portico.Value{{int64(2)}}},
		})
		d := portico.AsDiagnostic(err)
		require.NotNil(t, d)
		assert.Equal(t, "eval::arity_mismatch", d.Code)

		rel := run(t, store, `?[x] := *good[x]`, nil)
		assert.Empty(t, rel.Rows, "a failed import must not leave rows in any target")
	})
}

func TestImportFromSnapshot(t *testing.T) {
	src := storage.NewMemStore()
	defer src.Close()
	run(t, src, `:create friends {from, to}`, nil)
	run(t, src, `?[from, to] <- [["alice", "bob"]] :put friends {from, to}`, nil)
	run(t, src, `:create scores {who, n}`, nil)
	run(t, src, `?[who, n] <- [["alice", 10]] :put scores {who, n}`, nil)

	snap := filepath.Join(t.TempDir(), "dump.snapshot")
	require.NoError(t, storage.WriteSnapshot(src, snap))

	t.Run("CopiesOnlyNamedRelations", func(t *testing.T) {
		dst := storage.NewMemStore()
		defer dst.Close()

		require.NoError(t, ImportFromSnapshot(dst, snap, []string{"friends"}))

		rel := run(t, dst, `?[f, v] := *friends[f, v]`, nil)
		require.Len(t, rel.Rows, 1)
		assert.Equal(t, []portico.Value{"alice", "bob"}, rel.Rows[0])

		d := runErr(t, dst, `?[w, n] := *scores[w, n]`, nil)
		assert.Equal(t, "eval::relation_not_found", d.Code)
	})

	t.Run("MergesIntoExistingRelation", func(t *testing.T) {
		dst := storage.NewMemStore()
		defer dst.Close()
		run(t, dst, `:create friends {from, to}`, nil)
		run(t, dst, `?[from, to] <- [["carol", "dan"]] :put friends {from, to}`, nil)

		require.NoError(t, ImportFromSnapshot(dst, snap, []string{"friends"}))

		rel := run(t, dst, `?[f, v] := *friends[f, v]`, nil)
		assert.Len(t, rel.Rows, 2)
	})

	t.Run("MissingRelationInSnapshot", func(t *testing.T) {
		dst := storage.NewMemStore()
		defer dst.Close()
		err := ImportFromSnapshot(dst, snap, []string{"enemies"})
		d := portico.AsDiagnostic(err)
		require.NotNil(t, d)
		assert.Equal(t, "eval::relation_not_found", d.Code)
	})
}
