package engine

import "github.com/porticolabs/portico/portico"

// Relation is a fully materialized query result: named columns and rows
// of typed values aligned to them. Row order is meaningful and preserved
// through marshaling.
type Relation struct {
	Columns []string
	Rows    [][]portico.Value
}

// NewRelation creates an empty relation with the given columns.
func NewRelation(columns ...string) *Relation {
	return &Relation{Columns: columns}
}

// Append adds a row. The row must match the column count; callers check
// arity before appending.
func (r *Relation) Append(row []portico.Value) {
	r.Rows = append(r.Rows, row)
}

// Size returns the row count.
func (r *Relation) Size() int {
	return len(r.Rows)
}

// statusRelation is the result shape of mutation and system operations.
func statusRelation(status string) *Relation {
	return &Relation{
		Columns: []string{"status"},
		Rows:    [][]portico.Value{{status}},
	}
}
