package specfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEval(t *testing.T) {
	terms := map[string]bool{"amd64": true, "debug": false}

	tests := []struct {
		expr string
		want bool
	}{
		{"", true},
		{"amd64", true},
		{"debug", false},
		{"!debug", true},
		{"amd64 and !debug", true},
		{"debug or amd64", true},
		{"debug and amd64", false},
		{"!(debug or amd64)", false},
		{"true", true},
		{"false", false},
		{"amd64 and (debug or true)", true},
		{"unknown-term", false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Eval(tt.expr, terms)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalPrecedence(t *testing.T) {
	// `!` binds tighter than `and`, which binds tighter than `or`.
	terms := map[string]bool{"a": true, "b": false, "c": true}
	got, err := Eval("a and b or c", terms)
	require.NoError(t, err)
	assert.True(t, got, "(a and b) or c == (true and false) or true == true")

	got, err = Eval("a or b and c", terms)
	require.NoError(t, err)
	assert.True(t, got, "a or (b and c) == true or (false and true) == true")
}

func TestEvalSyntaxErrors(t *testing.T) {
	tests := []string{
		"(",
		")",
		"a and",
		"and a",
		"a b",
		"a &&  b",
		"1abc",
	}

	for _, expr := range tests {
		t.Run(expr, func(t *testing.T) {
			_, err := Eval(expr, nil)
			require.ErrorIs(t, err, ErrFilterSyntax)
		})
	}
}
