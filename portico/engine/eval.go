package engine

import (
	"github.com/porticolabs/portico/portico"
	"github.com/porticolabs/portico/portico/storage"
)

func eval(stmt *Statement, params map[string]portico.Value, readOnly bool, store storage.Store) (*Relation, error) {
	write := needsWrite(stmt)
	if write && readOnly {
		span := writeSpan(stmt)
		return nil, portico.NewDiagnostic(portico.CategoryEval,
			"eval::write_in_read_only_mode",
			"the query mutates stored relations but was submitted in read-only mode").
			WithSpan(span)
	}

	tx, err := store.Transact(write)
	if err != nil {
		return nil, portico.NewDiagnostic(portico.CategoryIO,
			"eval::begin_transaction", "cannot begin storage transaction").WithCause(err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	var rel *Relation
	switch stmt.Kind {
	case StmtCreate:
		rel, err = evalCreate(stmt, tx)
	case StmtSystem:
		rel, err = evalSystem(stmt, tx)
	case StmtQuery:
		rel, err = evalQuery(stmt, params, tx)
	}
	if err != nil {
		// The deferred rollback discards any mutations, so a failed
		// write never leaves partial effects behind.
		if d, ok := err.(*portico.Diagnostic); ok {
			d.PartialEffects = false
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		committed = true // the backend has already finalized the tx
		return nil, portico.NewDiagnostic(portico.CategoryIO,
			"eval::commit", "storage commit failed").WithCause(err)
	}
	committed = true
	return rel, nil
}

func needsWrite(stmt *Statement) bool {
	switch stmt.Kind {
	case StmtCreate:
		return true
	case StmtSystem:
		return stmt.SysVerb == "remove"
	case StmtQuery:
		return stmt.Op != nil
	}
	return false
}

func writeSpan(stmt *Statement) portico.Span {
	switch stmt.Kind {
	case StmtCreate:
		return stmt.CreateSpan
	case StmtSystem:
		return stmt.SysSpan
	case StmtQuery:
		if stmt.Op != nil {
			return stmt.Op.Span
		}
	}
	return portico.Span{Line: 1, Col: 1, End: 1}
}

// relationMeta loads a relation's column list, or nil if absent.
func relationMeta(tx storage.Tx, rel string) ([]string, error) {
	val, ok, err := tx.Get(metaKey(rel))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	row, err := decodeRow(val)
	if err != nil {
		return nil, err
	}
	cols := make([]string, len(row))
	for i, v := range row {
		s, ok := v.(string)
		if !ok {
			return nil, portico.NewDiagnostic(portico.CategoryInternal,
				"eval::corrupt_meta", "relation %q has corrupt metadata", rel)
		}
		cols[i] = s
	}
	return cols, nil
}

func putRelationMeta(tx storage.Tx, rel string, cols []string) error {
	row := make([]portico.Value, len(cols))
	for i, c := range cols {
		row[i] = c
	}
	encoded, err := encodeRow(row)
	if err != nil {
		return err
	}
	return tx.Put(metaKey(rel), encoded)
}

func evalCreate(stmt *Statement, tx storage.Tx) (*Relation, error) {
	existing, err := relationMeta(tx, stmt.CreateRel)
	if err != nil {
		return nil, wrapIO(err)
	}
	if existing != nil {
		return nil, portico.NewDiagnostic(portico.CategoryEval,
			"eval::relation_exists", "stored relation %q already exists", stmt.CreateRel).
			WithSpan(stmt.CreateSpan)
	}
	if err := putRelationMeta(tx, stmt.CreateRel, stmt.CreateCols); err != nil {
		return nil, wrapIO(err)
	}
	return statusRelation("OK"), nil
}

func evalSystem(stmt *Statement, tx storage.Tx) (*Relation, error) {
	switch stmt.SysVerb {
	case "relations":
		rel := NewRelation("name", "arity")
		it, err := tx.Scan([]byte{prefixMeta}, []byte{prefixMeta + 1})
		if err != nil {
			return nil, wrapIO(err)
		}
		defer it.Close()
		for it.Next() {
			name := string(it.Key()[1:])
			val, err := it.Value()
			if err != nil {
				return nil, wrapIO(err)
			}
			cols, err := decodeRow(val)
			if err != nil {
				return nil, wrapIO(err)
			}
			rel.Append([]portico.Value{name, int64(len(cols))})
		}
		return rel, nil

	case "columns":
		cols, err := relationMeta(tx, stmt.SysRel)
		if err != nil {
			return nil, wrapIO(err)
		}
		if cols == nil {
			return nil, missingRelation(stmt.SysRel, stmt.SysSpan)
		}
		rel := NewRelation("column")
		for _, c := range cols {
			rel.Append([]portico.Value{c})
		}
		return rel, nil

	case "remove":
		cols, err := relationMeta(tx, stmt.SysRel)
		if err != nil {
			return nil, wrapIO(err)
		}
		if cols == nil {
			return nil, missingRelation(stmt.SysRel, stmt.SysSpan)
		}
		if err := deleteRows(tx, stmt.SysRel); err != nil {
			return nil, wrapIO(err)
		}
		if err := tx.Delete(metaKey(stmt.SysRel)); err != nil {
			return nil, wrapIO(err)
		}
		return statusRelation("OK"), nil
	}
	// Unknown verbs are rejected by the parser.
	return nil, portico.NewDiagnostic(portico.CategoryInternal,
		"eval::unreachable", "unhandled system verb %q", stmt.SysVerb)
}

func evalQuery(stmt *Statement, params map[string]portico.Value, tx storage.Tx) (*Relation, error) {
	var (
		rel *Relation
		err error
	)
	switch stmt.Body {
	case BodyConst:
		rel, err = evalConstBody(stmt, params)
	case BodyScan:
		rel, err = evalScanBody(stmt, params, tx)
	case BodyAlgo:
		rel, err = evalAlgoBody(stmt, params, tx)
	}
	if err != nil {
		return nil, err
	}

	rel = dedupe(rel)

	if stmt.Op == nil {
		return rel, nil
	}
	if err := applyOp(stmt.Op, rel, tx); err != nil {
		return nil, err
	}
	return statusRelation("OK"), nil
}

func evalConstBody(stmt *Statement, params map[string]portico.Value) (*Relation, error) {
	rel := NewRelation(stmt.Head...)
	for _, termRow := range stmt.ConstRows {
		if len(termRow) != len(stmt.Head) {
			span := stmt.HeadSpans[0]
			if len(termRow) > 0 {
				span = termRow[0].Span
			}
			return nil, portico.NewDiagnostic(portico.CategoryEval,
				"eval::arity_mismatch",
				"row has %d values but the head declares %d columns", len(termRow), len(stmt.Head)).
				WithSpan(span)
		}
		row := make([]portico.Value, len(termRow))
		for i, term := range termRow {
			v, err := resolveTerm(term, params)
			if err != nil {
				return nil, err
			}
			row[i] = v
		}
		rel.Append(row)
	}
	return rel, nil
}

// resolveTerm produces the concrete value of a constant or parameter
// term, resolving nested list templates recursively.
func resolveTerm(term Term, params map[string]portico.Value) (portico.Value, error) {
	switch term.Kind {
	case TermParam:
		v, ok := params[term.Name]
		if !ok {
			return nil, portico.NewDiagnostic(portico.CategoryEval,
				"eval::param_missing", "no binding for parameter $%s", term.Name).
				WithSpan(term.Span)
		}
		return v, nil
	case TermConst:
		if tmpl, ok := term.Value.(listTemplate); ok {
			out := make(portico.List, len(tmpl))
			for i, elem := range tmpl {
				v, err := resolveTerm(elem, params)
				if err != nil {
					return nil, err
				}
				out[i] = v
			}
			return out, nil
		}
		return term.Value, nil
	default:
		return nil, portico.NewDiagnostic(portico.CategoryEval,
			"eval::unbound_variable", "variable %q is not allowed here", term.Name).
			WithSpan(term.Span)
	}
}

func evalScanBody(stmt *Statement, params map[string]portico.Value, tx storage.Tx) (*Relation, error) {
	cols, err := relationMeta(tx, stmt.ScanRel)
	if err != nil {
		return nil, wrapIO(err)
	}
	if cols == nil {
		return nil, missingRelation(stmt.ScanRel, stmt.ScanSpan)
	}
	if len(stmt.ScanArgs) != len(cols) {
		return nil, portico.NewDiagnostic(portico.CategoryEval,
			"eval::arity_mismatch",
			"relation %q has %d columns but the pattern binds %d", stmt.ScanRel, len(cols), len(stmt.ScanArgs)).
			WithSpan(stmt.ScanSpan)
	}

	rel := NewRelation(stmt.Head...)
	prefix := rowPrefix(stmt.ScanRel)
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
		bindings, ok, err := unify(stmt.ScanArgs, row, params)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		keep, err := applyFilters(stmt.Filters, bindings, params)
		if err != nil {
			return nil, err
		}
		if !keep {
			continue
		}
		out := make([]portico.Value, len(stmt.Head))
		for i, col := range stmt.Head {
			v, bound := bindings[col]
			if !bound {
				return nil, portico.NewDiagnostic(portico.CategoryEval,
					"eval::unbound_variable",
					"head variable %q is not bound by the rule body", col).
					WithSpan(stmt.HeadSpans[i])
			}
			out[i] = v
		}
		rel.Append(out)
	}
	return rel, nil
}

// unify matches one stored row against the scan pattern, binding
// variables positionally. "_" is a wildcard and binds nothing.
func unify(args []Term, row []portico.Value, params map[string]portico.Value) (map[string]portico.Value, bool, error) {
	bindings := make(map[string]portico.Value, len(args))
	for i, term := range args {
		switch term.Kind {
		case TermVar:
			if term.Name == "_" {
				continue
			}
			if prev, seen := bindings[term.Name]; seen {
				if portico.CompareValues(prev, row[i]) != 0 {
					return nil, false, nil
				}
				continue
			}
			bindings[term.Name] = row[i]
		default:
			want, err := resolveTerm(term, params)
			if err != nil {
				return nil, false, err
			}
			if portico.CompareValues(want, row[i]) != 0 {
				return nil, false, nil
			}
		}
	}
	return bindings, true, nil
}

func applyFilters(filters []Filter, bindings map[string]portico.Value, params map[string]portico.Value) (bool, error) {
	for _, f := range filters {
		left, err := filterOperand(f.Left, bindings, params)
		if err != nil {
			return false, err
		}
		right, err := filterOperand(f.Right, bindings, params)
		if err != nil {
			return false, err
		}
		c := portico.CompareValues(left, right)
		ok := false
		switch f.Op {
		case "==":
			ok = c == 0
		case "!=":
			ok = c != 0
		case "<":
			ok = c < 0
		case "<=":
			ok = c <= 0
		case ">":
			ok = c > 0
		case ">=":
			ok = c >= 0
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func filterOperand(term Term, bindings map[string]portico.Value, params map[string]portico.Value) (portico.Value, error) {
	if term.Kind == TermVar {
		v, ok := bindings[term.Name]
		if !ok {
			return nil, portico.NewDiagnostic(portico.CategoryEval,
				"eval::unbound_variable", "filter variable %q is not bound by the rule body", term.Name).
				WithSpan(term.Span)
		}
		return v, nil
	}
	return resolveTerm(term, params)
}

func evalAlgoBody(stmt *Statement, params map[string]portico.Value, tx storage.Tx) (*Relation, error) {
	rule, ok := LookupFixedRule(stmt.AlgoName)
	if !ok {
		return nil, portico.NewDiagnostic(portico.CategoryEval,
			"eval::unknown_algorithm",
			"fixed rule %q is not available in this build (available: %v)",
			stmt.AlgoName, FixedRuleNames()).
			WithSpan(stmt.AlgoSpan)
	}

	cols, err := relationMeta(tx, stmt.AlgoRel)
	if err != nil {
		return nil, wrapIO(err)
	}
	if cols == nil {
		return nil, missingRelation(stmt.AlgoRel, stmt.AlgoSpan)
	}
	input := NewRelation(cols...)
	prefix := rowPrefix(stmt.AlgoRel)
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
		input.Append(row)
	}

	args := make([]portico.Value, len(stmt.AlgoArgs))
	for i, term := range stmt.AlgoArgs {
		v, err := resolveTerm(term, params)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	out, err := rule(input, args)
	if err != nil {
		if d, ok := err.(*portico.Diagnostic); ok {
			return nil, d.WithSpan(stmt.AlgoSpan)
		}
		return nil, portico.NewDiagnostic(portico.CategoryEval,
			"eval::algorithm_failed", "fixed rule %q failed", stmt.AlgoName).
			WithSpan(stmt.AlgoSpan).WithCause(err)
	}
	if len(out.Columns) != len(stmt.Head) {
		return nil, portico.NewDiagnostic(portico.CategoryEval,
			"eval::arity_mismatch",
			"fixed rule %q produces %d columns but the head declares %d",
			stmt.AlgoName, len(out.Columns), len(stmt.Head)).
			WithSpan(stmt.AlgoSpan)
	}
	// Rename to the head's column names
	out.Columns = append([]string(nil), stmt.Head...)
	return out, nil
}

func applyOp(op *RelOp, rel *Relation, tx storage.Tx) error {
	cols, err := relationMeta(tx, op.Rel)
	if err != nil {
		return wrapIO(err)
	}
	if cols == nil {
		return missingRelation(op.Rel, op.Span)
	}
	if len(op.Cols) != len(cols) {
		return portico.NewDiagnostic(portico.CategoryEval,
			"eval::arity_mismatch",
			"op lists %d columns but relation %q has %d", len(op.Cols), op.Rel, len(cols)).
			WithSpan(op.Span)
	}
	if len(rel.Columns) != len(cols) {
		return portico.NewDiagnostic(portico.CategoryEval,
			"eval::arity_mismatch",
			"query produces %d columns but relation %q has %d", len(rel.Columns), op.Rel, len(cols)).
			WithSpan(op.Span)
	}

	if op.Verb == "replace" {
		if err := deleteRows(tx, op.Rel); err != nil {
			return wrapIO(err)
		}
	}

	for _, row := range rel.Rows {
		key, err := rowKey(op.Rel, row)
		if err != nil {
			return portico.NewDiagnostic(portico.CategoryEval,
				"eval::unstorable_value", "row contains a value that cannot be stored").
				WithSpan(op.Span).WithCause(err)
		}
		switch op.Verb {
		case "put", "replace":
			encoded, err := encodeRow(row)
			if err != nil {
				return wrapIO(err)
			}
			if err := tx.Put(key, encoded); err != nil {
				return wrapIO(err)
			}
		case "rm":
			if err := tx.Delete(key); err != nil {
				return wrapIO(err)
			}
		}
	}
	return nil
}

// deleteRows removes every row of a relation.
func deleteRows(tx storage.Tx, rel string) error {
	prefix := rowPrefix(rel)
	it, err := tx.Scan(prefix, prefixSuccessor(prefix))
	if err != nil {
		return err
	}
	var keys [][]byte
	for it.Next() {
		keys = append(keys, append([]byte(nil), it.Key()...))
	}
	it.Close()
	for _, k := range keys {
		if err := tx.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// dedupe removes duplicate rows, keeping first-occurrence order.
func dedupe(rel *Relation) *Relation {
	if len(rel.Rows) < 2 {
		return rel
	}
	seen := make(map[string]bool, len(rel.Rows))
	out := rel.Rows[:0]
	for _, row := range rel.Rows {
		key, err := encodeRow(row)
		if err != nil {
			// Values outside the storable algebra still flow through
			// results; skip dedup for them.
			out = append(out, row)
			continue
		}
		if seen[string(key)] {
			continue
		}
		seen[string(key)] = true
		out = append(out, row)
	}
	rel.Rows = out
	return rel
}

func missingRelation(rel string, span portico.Span) error {
	return portico.NewDiagnostic(portico.CategoryEval,
		"eval::relation_not_found", "stored relation %q does not exist", rel).
		WithSpan(span)
}

func wrapIO(err error) error {
	if d, ok := err.(*portico.Diagnostic); ok {
		return d
	}
	return portico.NewDiagnostic(portico.CategoryIO, "eval::storage", "storage operation failed").WithCause(err)
}
