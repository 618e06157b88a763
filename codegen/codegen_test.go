package codegen

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/npillmayer/gopeg/ast"
	"github.com/npillmayer/gopeg/bytecode"
	"github.com/npillmayer/gopeg/grammar"
	"github.com/npillmayer/gopeg/sourcemap"
	"github.com/npillmayer/schuko/tracing/gotestingadapter"
	"golang.org/x/exp/slices"
)

func parseGrammar(t *testing.T, text string) *ast.Grammar {
	t.Helper()
	g, err := grammar.Parse(text, "test.peg")
	if err != nil {
		t.Fatalf("cannot parse grammar: %v", err)
	}
	return g
}

func TestGenerateLiteral(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.codegen")
	defer teardown()
	//
	g := parseGrammar(t, `start = "a"`)
	prog, err := GenerateBytecode(g, Options{})
	if err != nil {
		t.Fatal(err)
	}
	want := []int{int(bytecode.MatchString), 0, 2, 2, int(bytecode.AcceptString), 0, int(bytecode.Fail), 0}
	if diff := cmp.Diff(want, prog.Rules[0].Code); diff != "" {
		t.Errorf("unexpected code (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a"}, prog.Literals); diff != "" {
		t.Errorf("unexpected literals:\n%s", diff)
	}
	if len(prog.Expectations) != 1 || prog.Expectations[0].Describe() != `"a"` {
		t.Errorf("expected a single literal expectation, have %v", prog.Expectations)
	}
	if diff := cmp.Diff([]int{0}, prog.StartRules); diff != "" {
		t.Errorf("unexpected start rules:\n%s", diff)
	}
	if tables, err := g.Tables(); err != nil || tables != prog {
		t.Errorf("generated program should be attached to the grammar")
	}
}

func TestStartRules(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.codegen")
	defer teardown()
	//
	text := "a = b c\nb = \"b\"\nc = \"c\""
	tests := []struct {
		names []string
		want  []int
	}{
		{nil, []int{0}},
		{[]string{"c", "b"}, []int{2, 1}},
		{[]string{"b", "*"}, []int{0, 1, 2}},
	}
	for _, tt := range tests {
		prog, err := GenerateBytecode(parseGrammar(t, text), Options{StartRules: tt.names})
		if err != nil {
			t.Errorf("%v: %v", tt.names, err)
			continue
		}
		if diff := cmp.Diff(tt.want, prog.StartRules); diff != "" {
			t.Errorf("%v: unexpected start rules:\n%s", tt.names, diff)
		}
	}
	if _, err := GenerateBytecode(parseGrammar(t, text), Options{StartRules: []string{"x"}}); err == nil {
		t.Errorf("expected unknown start rule to be rejected")
	}
	if _, err := GenerateBytecode(&ast.Grammar{}, Options{}); err == nil {
		t.Errorf("expected empty grammar to be rejected")
	}
}

func TestFunctionParams(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.codegen")
	defer teardown()
	//
	g := parseGrammar(t, `start = a:"a" &{ return a == "a" } b:"b" { return b } / "c" { return 1 } / "d" { return 1 }`)
	prog, err := GenerateBytecode(g, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(prog.Functions) != 3 {
		t.Fatalf("expected 3 functions, have %d", len(prog.Functions))
	}
	pred, act, one := prog.Functions[0], prog.Functions[1], prog.Functions[2]
	if pred.Kind != bytecode.PredicateFunc || act.Kind != bytecode.ActionFunc {
		t.Errorf("unexpected function kinds %s, %s", pred.Kind, act.Kind)
	}
	if diff := cmp.Diff([]string{"a"}, pred.Params); diff != "" {
		t.Errorf("unexpected predicate parameters:\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b"}, act.Params); diff != "" {
		t.Errorf("unexpected action parameters:\n%s", diff)
	}
	if len(one.Params) != 0 || strings.TrimSpace(one.Code) != "return 1" {
		t.Errorf("expected shared parameterless action, have %+v", one)
	}
	if act.Location.Start.Line != 1 || act.Location.Source != "test.peg" {
		t.Errorf("expected action location in test.peg, have %s", act.Location)
	}
}

func TestProgramFlags(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.codegen")
	defer teardown()
	//
	g := parseGrammar(t, "{{ import \"strings\" }}\n{ setup() }\nstart = \"a\"")
	prog, err := GenerateBytecode(g, Options{Trace: true, Cache: true})
	if err != nil {
		t.Fatal(err)
	}
	if !prog.Trace || !prog.Cache {
		t.Errorf("expected trace and cache flags to be set")
	}
	if prog.Initializer == nil || prog.Initializer.Kind != bytecode.InitializerFunc ||
		strings.TrimSpace(prog.Initializer.Code) != "setup()" {
		t.Errorf("unexpected initializer %+v", prog.Initializer)
	}
	if prog.TopLevel == nil || strings.TrimSpace(prog.TopLevel.Code) != `import "strings"` {
		t.Errorf("unexpected top-level code %+v", prog.TopLevel)
	}
}

func TestSourceMapInstructions(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.codegen")
	defer teardown()
	//
	text := `start = x:"a" { return x }`
	plain, err := GenerateBytecode(parseGrammar(t, text), Options{})
	if err != nil {
		t.Fatal(err)
	}
	mapped, err := GenerateBytecode(parseGrammar(t, text), Options{SourceMap: true})
	if err != nil {
		t.Fatal(err)
	}
	var b strings.Builder
	if err := bytecode.Disassemble(&b, mapped); err != nil {
		t.Fatal(err)
	}
	listing := b.String()
	for _, op := range []string{"SOURCE_MAP_PUSH", "SOURCE_MAP_POP", "SOURCE_MAP_LABEL_PUSH", "SOURCE_MAP_LABEL_POP"} {
		if !strings.Contains(listing, op) {
			t.Errorf("expected %s in listing:\n%s", op, listing)
		}
	}
	if len(mapped.Locations) == 0 {
		t.Errorf("expected source map locations to be pooled")
	}
	sites, err := bytecode.CallSites(mapped)
	if err != nil {
		t.Fatal(err)
	}
	if len(sites) != 1 || sites[0].Range.Start.Column != 16 {
		t.Fatalf("expected one call site at the action code, have %+v", sites)
	}
	if l, ok := sites[0].Label("x"); !ok || l.Location.Start.Column != 9 {
		t.Errorf("expected label x to be named at the call, have %+v", sites[0].Labels)
	}
	b.Reset()
	bytecode.Disassemble(&b, plain)
	if strings.Contains(b.String(), "SOURCE_MAP") {
		t.Errorf("expected no source map instructions without source maps")
	}
}

func TestNestedSourceRanges(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.codegen")
	defer teardown()
	//
	text := `start = x:"a" y:("b" / c:"c" &{ return c == "c", nil }) "d"|{ return 1, nil }| { return x, nil }`
	prog, err := GenerateBytecode(parseGrammar(t, text), Options{SourceMap: true})
	if err != nil {
		t.Fatal(err)
	}
	sites, err := bytecode.CallSites(prog)
	if err != nil {
		t.Fatal(err)
	}
	params := make(map[bytecode.FunctionKind][]string)
	for _, cs := range sites {
		f := prog.Functions[cs.Function]
		for _, p := range f.Params {
			if _, ok := cs.Label(p); !ok {
				t.Errorf("parameter %s of %s not named at its call", p, f.Code)
			}
		}
		params[f.Kind] = f.Params
	}
	if len(sites) != 3 {
		t.Errorf("expected calls of predicate, boundary and action, have %d", len(sites))
	}
	if diff := cmp.Diff([]string{"x", "y"}, params[bytecode.ActionFunc]); diff != "" {
		t.Errorf("unexpected action parameters:\n%s", diff)
	}
	if diff := cmp.Diff([]string{"x", "c"}, params[bytecode.PredicateFunc]); diff != "" {
		t.Errorf("unexpected predicate parameters:\n%s", diff)
	}
}

func TestRenderGo(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.codegen")
	defer teardown()
	//
	text := "start = n:num { return n }\nnum = $[0-9]+"
	prog, err := GenerateBytecode(parseGrammar(t, text), Options{SourceMap: true})
	if err != nil {
		t.Fatal(err)
	}
	sm := sourcemap.New("calc.go")
	src, err := RenderGo(prog, RenderOptions{
		Package:       "calc",
		File:          "calc.go",
		GrammarSource: "test.peg",
		GrammarText:   text,
		SourceMap:     sm,
	})
	if err != nil {
		t.Fatal(err)
	}
	out := string(src)
	if !strings.HasPrefix(out, Header+"\n") {
		t.Errorf("generated source must start with the header, is\n%s", out)
	}
	for _, want := range []string{
		"package calc",
		"func action0(c *vm.Context) (any, error) {",
		"n := c.Arg(0)",
		"/*line test.peg:1:",
		"var program = &bytecode.Program{",
		`Name: "num"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected generated source to contain %q, is\n%s", want, out)
		}
	}
	m := sm.Map()
	if diff := cmp.Diff([]string{"test.peg"}, m.Sources); diff != "" {
		t.Errorf("unexpected source map sources:\n%s", diff)
	}
	for _, name := range []string{"n", "action0", "start", "num"} {
		if !slices.Contains(m.Names, name) {
			t.Errorf("expected %q among source map names %v", name, m.Names)
		}
	}
	if !strings.Contains(out, "/*line test.peg:1:9*/ n := c.Arg(0)") {
		t.Errorf("expected parameter n to map to its label, is\n%s", out)
	}
}
