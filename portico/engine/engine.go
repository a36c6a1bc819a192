// Package engine contains the query engine consumed by the embedding
// gate. The gate depends only on the Engine interface and treats query
// text as opaque; the reference interpreter shipped here speaks a small
// stored-relation script surface and evaluates it against the storage
// trait.
package engine

import (
	"github.com/porticolabs/portico/portico"
	"github.com/porticolabs/portico/portico/storage"
)

// Engine is the core query engine's entry point: run a script with bound
// parameters against a store, producing either a materialized relation or
// a structured diagnostic error.
type Engine interface {
	Execute(script string, params map[string]portico.Value, readOnly bool, store storage.Store) (*Relation, error)
}

// Interp is the reference engine implementation.
type Interp struct{}

// New creates the reference engine.
func New() *Interp {
	return &Interp{}
}

// Execute parses and evaluates one script statement. On failure the
// returned error is always a *portico.Diagnostic carrying the script
// source for span rendering.
func (e *Interp) Execute(script string, params map[string]portico.Value, readOnly bool, store storage.Store) (*Relation, error) {
	stmt, err := Parse(script)
	if err != nil {
		return nil, portico.AsDiagnostic(err).WithSource(script)
	}
	rel, err := eval(stmt, params, readOnly, store)
	if err != nil {
		return nil, portico.AsDiagnostic(err).WithSource(script)
	}
	return rel, nil
}
