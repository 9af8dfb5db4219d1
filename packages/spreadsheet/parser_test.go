package spreadsheet

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParserBasicFormulas(t *testing.T) {
	validFormulas := []string{
		"1+2",
		"A1",
		"$A$1",
		"SUM(A1:A10)",
		"SUM(B2:A1)",
		"SUM(A1:A1)",
		"SUM(A1:Z1000)",
		"sum(a1:b2, 3, C4)",
		"IF(A1>0, \"pos\", \"neg\")",
		"PI()",
		"-(-1)",
		"--1",
		"50%%",
		"1 != 2",
		"A1 <> B1",
		"(1+2)*3",
		".5+1e3+2.5E-2",
		`"Hello 世界"`,
		`"Test 😀 emoji"`,
		`CONCATENATE("Hello ", "世界")`,
		`"say ""hi"""`,
		"TRUE = FALSE",
		"LOG10(1)",
		"unknown_name + 1",
	}

	for _, formula := range validFormulas {
		t.Run(formula, func(t *testing.T) {
			_, err := ParseFormula(formula)
			assert.NoError(t, err)
		})
	}
}

func TestParserInvalidFormulas(t *testing.T) {
	invalidFormulas := []string{
		"",
		"   ",
		"SUM(",
		"A1:",
		`"hello`,
		"1+",
		"*1",
		"1 2",
		"(1",
		"1)",
		"1,2",
		"A1:B",
		"SUM(1,)",
		"()",
		"1 +* 2",
		"A$",
		"!1",
		"#",
		"1..2",
		"1e",
		"A1 B1",
	}

	for _, formula := range invalidFormulas {
		t.Run(formula, func(t *testing.T) {
			_, err := ParseFormula(formula)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrFormulaSyntax), "got %v", err)

			var spreadsheetErr *SpreadsheetError
			require.ErrorAs(t, err, &spreadsheetErr)
			assert.Equal(t, ErrorCodeSyntax, spreadsheetErr.ErrorCode)
		})
	}
}

func TestParserPrecedence(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"1+2*3", "(1+(2*3))"},
		{"1-2-3", "((1-2)-3)"},
		{"2^3^2", "(2^(3^2))"},
		{"(1+2)*3", "((1+2)*3)"},
		{"-A1", "-A1"},
		{"--1", "--1"},
		{"-2^2", "(-2^2)"},
		{"50%", "(50%)"},
		{"a1&\"x\"", `(A1&"x")`},
		{"1+2&3", `((1+2)&3)`},
		{"1+2=3", "((1+2)=3)"},
		{"1!=2", "(1<>2)"},
		{"$b$2", "B2"},
		{"sum(a1:b2, 3)", "SUM(A1:B2,3)"},
		{"SUM(B2:A1)", "SUM(A1:B2)"},
		{"log10(1)", "LOG10(1)"},
		{`"say ""hi"""`, `"say ""hi"""`},
		{"true", "TRUE"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			ast, err := ParseFormula(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ast.ToString())
		})
	}
}

func TestLexerTokens(t *testing.T) {
	tokens, err := NewLexer("SUM(A1:B2) - -3%").Tokenize()
	require.NoError(t, err)

	var types []TokenType
	var values []string
	for _, tok := range tokens {
		types = append(types, tok.Type)
		values = append(values, tok.Value)
	}
	assert.Equal(t, []TokenType{
		TokenFunction, TokenLeftParen, TokenRange, TokenRightParen,
		TokenBinaryOp, TokenUnaryPrefixOp, TokenNumber, TokenUnaryPostfixOp, TokenEOF,
	}, types)
	assert.Equal(t, []string{"SUM", "(", "A1:B2", ")", "-", "-", "3", "%", ""}, values)
}

func TestLexerStringEscapes(t *testing.T) {
	tokens, err := NewLexer(`"a""b"`).Tokenize()
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, TokenString, tokens[0].Type)
	assert.Equal(t, `a"b`, tokens[0].Value)
}

func TestLexerErrorPosition(t *testing.T) {
	_, err := NewLexer("1 + #").Tokenize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "position 4")
}

func TestFormulaTableInterning(t *testing.T) {
	ft := NewFormulaTable()
	a1 := Coordinate{Row: 0, Column: 0}
	b1 := Coordinate{Row: 0, Column: 1}

	first, err := ft.Intern(a1, "1+2")
	require.NoError(t, err)
	second, err := ft.Intern(b1, " 1+2 ")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, ft.Count())
	assert.Equal(t, 2, ft.GetReferenceCount("1+2"))

	ast, parseErr, ok := ft.Lookup(b1)
	require.True(t, ok)
	assert.NoError(t, parseErr)
	assert.Same(t, first, ast)

	// re-interning a different expression releases the old one
	_, err = ft.Intern(a1, "SUM(")
	assert.ErrorIs(t, err, ErrFormulaSyntax)
	assert.Equal(t, 1, ft.GetReferenceCount("1+2"))
	assert.Equal(t, 2, ft.Count())

	_, parseErr, ok = ft.Lookup(a1)
	require.True(t, ok)
	assert.ErrorIs(t, parseErr, ErrFormulaSyntax)

	assert.True(t, ft.Release(b1))
	assert.False(t, ft.Release(b1))
	assert.Equal(t, 0, ft.GetReferenceCount("1+2"))
	_, _, ok = ft.Lookup(b1)
	assert.False(t, ok)
}
