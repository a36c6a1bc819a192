package engine

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/porticolabs/portico/portico"
)

// TokenType identifies a lexical token in the script surface.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIdent
	TokenString
	TokenInt
	TokenFloat
	TokenParam // $name
	TokenPunct // single punctuation: ? [ ] { } ( ) , *
	TokenOp    // operators: :=, <-, <~, ::, ==, !=, <=, >=, <, >, :
	TokenBool
	TokenNull
)

// Token carries the lexeme plus its position for span reporting.
type Token struct {
	Type  TokenType
	Text  string
	Value portico.Value // decoded literal for String/Int/Float/Bool
	Pos   int           // byte offset
	Line  int           // 1-based
	Col   int           // 1-based
}

// Span converts a token to a diagnostic span.
func (t Token) Span() portico.Span {
	end := t.Pos + len(t.Text)
	if end == t.Pos {
		end = t.Pos + 1
	}
	return portico.Span{Start: t.Pos, End: end, Line: t.Line, Col: t.Col}
}

// Lexer tokenizes a script.
type Lexer struct {
	input string
	pos   int
	line  int
	col   int
}

// Lex tokenizes the entire input.
func Lex(input string) ([]Token, error) {
	l := &Lexer{input: input, line: 1, col: 1}
	var tokens []Token
	for {
		l.skipWhitespaceAndComments()
		if l.pos >= len(l.input) {
			tokens = append(tokens, Token{Type: TokenEOF, Pos: l.pos, Line: l.line, Col: l.col})
			return tokens, nil
		}
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
	}
}

func (l *Lexer) next() (Token, error) {
	startPos, startLine, startCol := l.pos, l.line, l.col
	mk := func(t TokenType, text string, v portico.Value) Token {
		return Token{Type: t, Text: text, Value: v, Pos: startPos, Line: startLine, Col: startCol}
	}

	ch := l.peek()
	switch {
	case ch == '"':
		str, err := l.readString()
		if err != nil {
			return Token{}, err
		}
		return mk(TokenString, l.input[startPos:l.pos], str), nil

	case ch == '$':
		l.advance()
		name := l.readIdent()
		if name == "" {
			return Token{}, l.errAt(startLine, startCol, startPos, "parameter marker '$' must be followed by a name")
		}
		return mk(TokenParam, "$"+name, nil), nil

	case isDigit(ch) || (ch == '-' && l.pos+1 < len(l.input) && isDigit(l.input[l.pos+1])):
		return l.readNumber(mk)

	case isIdentStart(ch):
		name := l.readIdent()
		switch name {
		case "true":
			return mk(TokenBool, name, true), nil
		case "false":
			return mk(TokenBool, name, false), nil
		case "null":
			return mk(TokenNull, name, nil), nil
		}
		return mk(TokenIdent, name, nil), nil

	default:
		// Multi-char operators first
		for _, op := range []string{"::", ":=", "<-", "<~", "==", "!=", "<=", ">="} {
			if strings.HasPrefix(l.input[l.pos:], op) {
				l.advance()
				l.advance()
				return mk(TokenOp, op, nil), nil
			}
		}
		switch ch {
		case ':', '<', '>':
			l.advance()
			return mk(TokenOp, string(ch), nil), nil
		case '?', '[', ']', '{', '}', '(', ')', ',', '*':
			l.advance()
			return mk(TokenPunct, string(ch), nil), nil
		}
		return Token{}, l.errAt(startLine, startCol, startPos, "unexpected character %q", ch)
	}
}

func (l *Lexer) readNumber(mk func(TokenType, string, portico.Value) Token) (Token, error) {
	start := l.pos
	if l.peek() == '-' {
		l.advance()
	}
	for l.pos < len(l.input) && isDigit(l.peek()) {
		l.advance()
	}
	isFloat := false
	if l.pos < len(l.input) && l.peek() == '.' {
		isFloat = true
		l.advance()
		for l.pos < len(l.input) && isDigit(l.peek()) {
			l.advance()
		}
	}
	if l.pos < len(l.input) && (l.peek() == 'e' || l.peek() == 'E') {
		isFloat = true
		l.advance()
		if l.pos < len(l.input) && (l.peek() == '+' || l.peek() == '-') {
			l.advance()
		}
		for l.pos < len(l.input) && isDigit(l.peek()) {
			l.advance()
		}
	}
	text := l.input[start:l.pos]
	if isFloat {
		var f float64
		if _, err := fmt.Sscanf(text, "%g", &f); err != nil {
			return Token{}, fmt.Errorf("invalid float literal %q: %w", text, err)
		}
		return mk(TokenFloat, text, f), nil
	}
	var i int64
	if _, err := fmt.Sscanf(text, "%d", &i); err != nil {
		return Token{}, fmt.Errorf("invalid integer literal %q: %w", text, err)
	}
	return mk(TokenInt, text, i), nil
}

func (l *Lexer) readString() (string, error) {
	startLine, startCol, startPos := l.line, l.col, l.pos
	l.advance() // opening quote
	var b strings.Builder
	for l.pos < len(l.input) {
		ch := l.peek()
		switch ch {
		case '"':
			l.advance()
			return b.String(), nil
		case '\\':
			l.advance()
			if l.pos >= len(l.input) {
				return "", l.errAt(startLine, startCol, startPos, "unterminated string literal")
			}
			esc := l.peek()
			l.advance()
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			default:
				return "", l.errAt(startLine, startCol, startPos, "unknown escape \\%c in string literal", esc)
			}
		default:
			b.WriteByte(ch)
			l.advance()
		}
	}
	return "", l.errAt(startLine, startCol, startPos, "unterminated string literal")
}

func (l *Lexer) readIdent() string {
	start := l.pos
	for l.pos < len(l.input) && isIdentPart(l.peek()) {
		l.advance()
	}
	return l.input[start:l.pos]
}

func (l *Lexer) skipWhitespaceAndComments() {
	for l.pos < len(l.input) {
		ch := l.peek()
		switch {
		case ch == '#':
			for l.pos < len(l.input) && l.peek() != '\n' {
				l.advance()
			}
		case unicode.IsSpace(rune(ch)):
			l.advance()
		default:
			return
		}
	}
}

func (l *Lexer) peek() byte {
	return l.input[l.pos]
}

func (l *Lexer) advance() {
	if l.input[l.pos] == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	l.pos++
}

func (l *Lexer) errAt(line, col, pos int, format string, args ...interface{}) error {
	d := portico.NewDiagnostic(portico.CategoryParse, "parser::lex", format, args...)
	return d.WithSpan(portico.Span{Start: pos, End: pos + 1, Line: line, Col: col})
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}
