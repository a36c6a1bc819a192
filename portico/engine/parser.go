package engine

import (
	"github.com/porticolabs/portico/portico"
)

// The script surface, one statement per Execute call:
//
//	:create rel {col1, col2}
//	?[cols] <- [[literal, $param, ...], ...] [op]
//	?[cols] := *rel[term, term, ...] [, filters] [op]
//	?[cols] <~ algo_name(*rel, arg, ...) [op]
//	::relations | ::columns rel | ::remove rel
//
// where op is ":put rel {cols}", ":replace rel {cols}" or ":rm rel {cols}".
// Literals are null, true, false, integers, floats, strings and nested
// lists. Filters compare a bound variable against a literal, parameter or
// other variable with ==, !=, <, <=, > or >=.

// TermKind distinguishes the three things that can appear in a binding
// or argument position.
type TermKind int

const (
	TermConst TermKind = iota
	TermVar
	TermParam
)

// Term is a constant, variable or parameter reference with its span.
type Term struct {
	Kind  TermKind
	Value portico.Value // TermConst
	Name  string        // TermVar / TermParam
	Span  portico.Span
}

// Filter is a comparison applied to each candidate row.
type Filter struct {
	Op    string // ==, !=, <, <=, >, >=
	Left  Term
	Right Term
	Span  portico.Span
}

// RelOp is a trailing mutation operation.
type RelOp struct {
	Verb string // put, replace, rm
	Rel  string
	Cols []string
	Span portico.Span
}

// StmtKind selects the statement variant.
type StmtKind int

const (
	StmtQuery StmtKind = iota
	StmtCreate
	StmtSystem
)

// BodyKind selects the rule body variant of a query statement.
type BodyKind int

const (
	BodyConst BodyKind = iota
	BodyScan
	BodyAlgo
)

// Statement is one parsed script statement.
type Statement struct {
	Kind StmtKind

	// StmtQuery
	Head      []string
	HeadSpans []portico.Span
	Body      BodyKind
	ConstRows [][]Term // BodyConst
	ScanRel   string   // BodyScan
	ScanSpan  portico.Span
	ScanArgs  []Term
	AlgoName  string // BodyAlgo
	AlgoSpan  portico.Span
	AlgoRel   string
	AlgoArgs  []Term
	Filters   []Filter
	Op        *RelOp

	// StmtCreate
	CreateRel  string
	CreateSpan portico.Span
	CreateCols []string

	// StmtSystem
	SysVerb string // relations, columns, remove
	SysRel  string
	SysSpan portico.Span
}

// Parse tokenizes and parses a single script statement.
func Parse(input string) (*Statement, error) {
	tokens, err := Lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Type != TokenEOF {
		return nil, p.errf(tok, "parser::trailing_input", "unexpected %q after end of statement", tok.Text)
	}
	return stmt, nil
}

type parser struct {
	tokens []Token
	pos    int
}

func (p *parser) peek() Token {
	return p.tokens[p.pos]
}

func (p *parser) next() Token {
	tok := p.tokens[p.pos]
	if tok.Type != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expectPunct(ch string) (Token, error) {
	tok := p.next()
	if tok.Type != TokenPunct || tok.Text != ch {
		return tok, p.errf(tok, "parser::unexpected_token", "expected %q, got %q", ch, tok.Text)
	}
	return tok, nil
}

func (p *parser) expectIdent() (Token, error) {
	tok := p.next()
	if tok.Type != TokenIdent {
		return tok, p.errf(tok, "parser::expected_name", "expected a name, got %q", tok.Text)
	}
	return tok, nil
}

func (p *parser) errf(tok Token, code, format string, args ...interface{}) error {
	d := portico.NewDiagnostic(portico.CategoryParse, code, format, args...)
	return d.WithSpan(tok.Span())
}

func (p *parser) parseStatement() (*Statement, error) {
	tok := p.peek()
	switch {
	case tok.Type == TokenOp && tok.Text == "::":
		return p.parseSystem()
	case tok.Type == TokenOp && tok.Text == ":":
		return p.parseCreate()
	case tok.Type == TokenPunct && tok.Text == "?":
		return p.parseQuery()
	case tok.Type == TokenEOF:
		return nil, p.errf(tok, "parser::empty_script", "script is empty")
	default:
		return nil, p.errf(tok, "parser::unexpected_token",
			"expected a query ('?[...]'), ':create' or a '::' system op, got %q", tok.Text)
	}
}

func (p *parser) parseSystem() (*Statement, error) {
	p.next() // ::
	verb, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	stmt := &Statement{Kind: StmtSystem, SysVerb: verb.Text, SysSpan: verb.Span()}
	switch verb.Text {
	case "relations":
		return stmt, nil
	case "columns", "remove":
		rel, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		stmt.SysRel = rel.Text
		stmt.SysSpan = rel.Span()
		return stmt, nil
	default:
		return nil, p.errf(verb, "parser::unknown_system_op", "unknown system op ::%s", verb.Text)
	}
}

func (p *parser) parseCreate() (*Statement, error) {
	p.next() // :
	verb, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if verb.Text != "create" {
		return nil, p.errf(verb, "parser::unexpected_token",
			"expected 'create' after ':', got %q", verb.Text)
	}
	rel, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	cols, _, err := p.parseColumnBlock()
	if err != nil {
		return nil, err
	}
	return &Statement{
		Kind:       StmtCreate,
		CreateRel:  rel.Text,
		CreateSpan: rel.Span(),
		CreateCols: cols,
	}, nil
}

// parseColumnBlock parses "{col, col, ...}".
func (p *parser) parseColumnBlock() ([]string, []portico.Span, error) {
	if _, err := p.expectPunct("{"); err != nil {
		return nil, nil, err
	}
	var (
		cols  []string
		spans []portico.Span
	)
	for {
		tok, err := p.expectIdent()
		if err != nil {
			return nil, nil, err
		}
		cols = append(cols, tok.Text)
		spans = append(spans, tok.Span())
		sep := p.next()
		if sep.Type == TokenPunct && sep.Text == "," {
			continue
		}
		if sep.Type == TokenPunct && sep.Text == "}" {
			return cols, spans, nil
		}
		return nil, nil, p.errf(sep, "parser::unexpected_token", "expected ',' or '}' in column list, got %q", sep.Text)
	}
}

func (p *parser) parseQuery() (*Statement, error) {
	p.next() // ?
	if _, err := p.expectPunct("["); err != nil {
		return nil, err
	}
	stmt := &Statement{Kind: StmtQuery}
	for {
		tok, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		stmt.Head = append(stmt.Head, tok.Text)
		stmt.HeadSpans = append(stmt.HeadSpans, tok.Span())
		sep := p.next()
		if sep.Type == TokenPunct && sep.Text == "," {
			continue
		}
		if sep.Type == TokenPunct && sep.Text == "]" {
			break
		}
		return nil, p.errf(sep, "parser::unexpected_token", "expected ',' or ']' in head, got %q", sep.Text)
	}

	body := p.next()
	if body.Type != TokenOp {
		return nil, p.errf(body, "parser::missing_body", "expected '<-', ':=' or '<~' after query head, got %q", body.Text)
	}
	var err error
	switch body.Text {
	case "<-":
		err = p.parseConstBody(stmt)
	case ":=":
		err = p.parseScanBody(stmt)
	case "<~":
		err = p.parseAlgoBody(stmt)
	default:
		return nil, p.errf(body, "parser::missing_body", "expected '<-', ':=' or '<~' after query head, got %q", body.Text)
	}
	if err != nil {
		return nil, err
	}

	// Optional trailing mutation op
	if tok := p.peek(); tok.Type == TokenOp && tok.Text == ":" {
		p.next()
		verb, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		switch verb.Text {
		case "put", "replace", "rm":
		default:
			return nil, p.errf(verb, "parser::unknown_op", "unknown relation op :%s", verb.Text)
		}
		rel, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		cols, _, err := p.parseColumnBlock()
		if err != nil {
			return nil, err
		}
		stmt.Op = &RelOp{Verb: verb.Text, Rel: rel.Text, Cols: cols, Span: rel.Span()}
	}
	return stmt, nil
}

// parseConstBody parses "[[...], [...]]".
func (p *parser) parseConstBody(stmt *Statement) error {
	stmt.Body = BodyConst
	if _, err := p.expectPunct("["); err != nil {
		return err
	}
	if tok := p.peek(); tok.Type == TokenPunct && tok.Text == "]" {
		p.next() // empty relation
		return nil
	}
	for {
		row, err := p.parseConstRow()
		if err != nil {
			return err
		}
		stmt.ConstRows = append(stmt.ConstRows, row)
		sep := p.next()
		if sep.Type == TokenPunct && sep.Text == "," {
			continue
		}
		if sep.Type == TokenPunct && sep.Text == "]" {
			return nil
		}
		return p.errf(sep, "parser::unexpected_token", "expected ',' or ']' between rows, got %q", sep.Text)
	}
}

func (p *parser) parseConstRow() ([]Term, error) {
	if _, err := p.expectPunct("["); err != nil {
		return nil, err
	}
	var row []Term
	if tok := p.peek(); tok.Type == TokenPunct && tok.Text == "]" {
		p.next()
		return row, nil
	}
	for {
		term, err := p.parseLiteralTerm()
		if err != nil {
			return nil, err
		}
		row = append(row, term)
		sep := p.next()
		if sep.Type == TokenPunct && sep.Text == "," {
			continue
		}
		if sep.Type == TokenPunct && sep.Text == "]" {
			return row, nil
		}
		return nil, p.errf(sep, "parser::unexpected_token", "expected ',' or ']' in row, got %q", sep.Text)
	}
}

// parseLiteralTerm parses a literal or parameter; no variables here.
func (p *parser) parseLiteralTerm() (Term, error) {
	tok := p.peek()
	switch tok.Type {
	case TokenString, TokenInt, TokenFloat, TokenBool, TokenNull:
		p.next()
		return Term{Kind: TermConst, Value: tok.Value, Span: tok.Span()}, nil
	case TokenParam:
		p.next()
		return Term{Kind: TermParam, Name: tok.Text[1:], Span: tok.Span()}, nil
	case TokenPunct:
		if tok.Text == "[" {
			return p.parseListLiteral()
		}
	}
	return Term{}, p.errf(tok, "parser::expected_literal", "expected a literal or parameter, got %q", tok.Text)
}

// parseListLiteral parses a nested list value. Parameters inside a list
// are resolved at eval time, so the elements stay as terms until then.
func (p *parser) parseListLiteral() (Term, error) {
	open, err := p.expectPunct("[")
	if err != nil {
		return Term{}, err
	}
	// Represent as a constant holding a List of already-constant values
	// when possible; parameters force eval-time assembly, which the
	// evaluator handles by re-walking the term tree.
	var elems []Term
	if tok := p.peek(); tok.Type == TokenPunct && tok.Text == "]" {
		p.next()
		return Term{Kind: TermConst, Value: portico.List{}, Span: open.Span()}, nil
	}
	for {
		elem, err := p.parseLiteralTerm()
		if err != nil {
			return Term{}, err
		}
		elems = append(elems, elem)
		sep := p.next()
		if sep.Type == TokenPunct && sep.Text == "," {
			continue
		}
		if sep.Type == TokenPunct && sep.Text == "]" {
			break
		}
		return Term{}, p.errf(sep, "parser::unexpected_token", "expected ',' or ']' in list, got %q", sep.Text)
	}

	allConst := true
	for _, e := range elems {
		if e.Kind != TermConst {
			allConst = false
			break
		}
	}
	if allConst {
		list := make(portico.List, len(elems))
		for i, e := range elems {
			list[i] = e.Value
		}
		return Term{Kind: TermConst, Value: list, Span: open.Span()}, nil
	}
	// Keep the element terms; eval substitutes parameters.
	return Term{Kind: TermConst, Value: listTemplate(elems), Span: open.Span()}, nil
}

// listTemplate marks a list literal that still contains parameters.
type listTemplate []Term

func (p *parser) parseScanBody(stmt *Statement) error {
	stmt.Body = BodyScan
	if _, err := p.expectPunct("*"); err != nil {
		return err
	}
	rel, err := p.expectIdent()
	if err != nil {
		return err
	}
	stmt.ScanRel = rel.Text
	stmt.ScanSpan = rel.Span()
	if _, err := p.expectPunct("["); err != nil {
		return err
	}
	for {
		term, err := p.parseBindingTerm()
		if err != nil {
			return err
		}
		stmt.ScanArgs = append(stmt.ScanArgs, term)
		sep := p.next()
		if sep.Type == TokenPunct && sep.Text == "," {
			continue
		}
		if sep.Type == TokenPunct && sep.Text == "]" {
			break
		}
		return p.errf(sep, "parser::unexpected_token", "expected ',' or ']' in bindings, got %q", sep.Text)
	}

	// Optional filters: ", term op term" repeated
	for {
		tok := p.peek()
		if tok.Type != TokenPunct || tok.Text != "," {
			return nil
		}
		p.next()
		left, err := p.parseFilterOperand()
		if err != nil {
			return err
		}
		opTok := p.next()
		if opTok.Type != TokenOp || !isComparison(opTok.Text) {
			return p.errf(opTok, "parser::expected_comparison", "expected a comparison operator, got %q", opTok.Text)
		}
		right, err := p.parseFilterOperand()
		if err != nil {
			return err
		}
		stmt.Filters = append(stmt.Filters, Filter{Op: opTok.Text, Left: left, Right: right, Span: opTok.Span()})
	}
}

func (p *parser) parseAlgoBody(stmt *Statement) error {
	stmt.Body = BodyAlgo
	name, err := p.expectIdent()
	if err != nil {
		return err
	}
	stmt.AlgoName = name.Text
	stmt.AlgoSpan = name.Span()
	if _, err := p.expectPunct("("); err != nil {
		return err
	}
	if _, err := p.expectPunct("*"); err != nil {
		return err
	}
	rel, err := p.expectIdent()
	if err != nil {
		return err
	}
	stmt.AlgoRel = rel.Text
	for {
		sep := p.next()
		if sep.Type == TokenPunct && sep.Text == ")" {
			return nil
		}
		if sep.Type != TokenPunct || sep.Text != "," {
			return p.errf(sep, "parser::unexpected_token", "expected ',' or ')' in algorithm arguments, got %q", sep.Text)
		}
		arg, err := p.parseLiteralTerm()
		if err != nil {
			return err
		}
		stmt.AlgoArgs = append(stmt.AlgoArgs, arg)
	}
}

// parseBindingTerm parses a scan binding: a variable, literal or param.
func (p *parser) parseBindingTerm() (Term, error) {
	tok := p.peek()
	if tok.Type == TokenIdent {
		p.next()
		return Term{Kind: TermVar, Name: tok.Text, Span: tok.Span()}, nil
	}
	return p.parseLiteralTerm()
}

func (p *parser) parseFilterOperand() (Term, error) {
	return p.parseBindingTerm()
}

func isComparison(op string) bool {
	switch op {
	case "==", "!=", "<", "<=", ">", ">=":
		return true
	}
	return false
}
