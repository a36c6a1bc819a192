package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/porticolabs/portico/portico"
)

func lexTypes(t *testing.T, input string) []TokenType {
	t.Helper()
	tokens, err := Lex(input)
	require.NoError(t, err)
	types := make([]TokenType, len(tokens))
	for i, tok := range tokens {
		types[i] = tok.Type
	}
	return types
}

func TestLexer(t *testing.T) {
	t.Run("Operators", func(t *testing.T) {
		tokens, err := Lex(":= <- <~ :: == != <= >= < > :")
		require.NoError(t, err)
		var texts []string
		for _, tok := range tokens[:len(tokens)-1] {
			assert.Equal(t, TokenOp, tok.Type)
			texts = append(texts, tok.Text)
		}
		assert.Equal(t, []string{":=", "<-", "<~", "::", "==", "!=", "<=", ">=", "<", ">", ":"}, texts)
	})

	t.Run("Literals", func(t *testing.T) {
		tokens, err := Lex(`"hello" 42 -7 3.25 1e3 true false null`)
		require.NoError(t, err)
		require.Len(t, tokens, 9) // 8 literals + EOF

		assert.Equal(t, "hello", tokens[0].Value)
		assert.Equal(t, int64(42), tokens[1].Value)
		assert.Equal(t, int64(-7), tokens[2].Value)
		assert.Equal(t, float64(3.25), tokens[3].Value)
		assert.Equal(t, float64(1000), tokens[4].Value)
		assert.Equal(t, true, tokens[5].Value)
		assert.Equal(t, false, tokens[6].Value)
		assert.Equal(t, TokenNull, tokens[7].Type)
	})

	t.Run("StringEscapes", func(t *testing.T) {
		tokens, err := Lex(`"line\nbreak \"quoted\" tab\t"`)
		require.NoError(t, err)
		assert.Equal(t, "line\nbreak \"quoted\" tab\t", tokens[0].Value)
	})

	t.Run("Params", func(t *testing.T) {
		tokens, err := Lex("$name $other_1")
		require.NoError(t, err)
		assert.Equal(t, TokenParam, tokens[0].Type)
		assert.Equal(t, "$name", tokens[0].Text)
		assert.Equal(t, "$other_1", tokens[1].Text)
	})

	t.Run("Comments", func(t *testing.T) {
		types := lexTypes(t, "a # this comment runs to the end\nb")
		assert.Equal(t, []TokenType{TokenIdent, TokenIdent, TokenEOF}, types)
	})

	t.Run("LineColTracking", func(t *testing.T) {
		tokens, err := Lex("a\n  b")
		require.NoError(t, err)
		assert.Equal(t, 1, tokens[0].Line)
		assert.Equal(t, 1, tokens[0].Col)
		assert.Equal(t, 2, tokens[1].Line)
		assert.Equal(t, 3, tokens[1].Col)
	})

	t.Run("UnterminatedString", func(t *testing.T) {
		_, err := Lex(`"never closed`)
		require.Error(t, err)
		d := portico.AsDiagnostic(err)
		require.NotNil(t, d)
		assert.Equal(t, portico.CategoryParse, d.Category)
	})

	t.Run("UnexpectedCharacter", func(t *testing.T) {
		_, err := Lex("a @ b")
		require.Error(t, err)
		d := portico.AsDiagnostic(err)
		require.NotNil(t, d)
		assert.Equal(t, portico.CategoryParse, d.Category)
		require.NotEmpty(t, d.Spans)
		assert.Equal(t, 1, d.Spans[0].Line)
		assert.Equal(t, 3, d.Spans[0].Col)
	})

	t.Run("BareDollarRejected", func(t *testing.T) {
		_, err := Lex("$ 1")
		assert.Error(t, err)
	})
}
