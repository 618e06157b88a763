package compiler

import (
	"testing"

	"github.com/npillmayer/gopeg/ast"
	"github.com/npillmayer/gopeg/grammar"
)

func parseGrammar(t *testing.T, text string) *ast.Grammar {
	t.Helper()
	g, err := grammar.Parse(text, "test.peg")
	if err != nil {
		t.Fatalf("cannot parse grammar: %v", err)
	}
	return g
}
