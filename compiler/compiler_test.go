package compiler

import (
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/npillmayer/gopeg/ast"
	"github.com/npillmayer/gopeg/bytecode"
	"github.com/npillmayer/gopeg/codegen"
	"github.com/npillmayer/gopeg/diag"
	"github.com/npillmayer/gopeg/vm"
	"github.com/npillmayer/schuko/tracing/gotestingadapter"
	"github.com/sergi/go-diff/diffmatchpatch"
)

func mustGenerate(t *testing.T, text string, opts *Options) *Output {
	t.Helper()
	out, err := Generate(text, opts)
	if err != nil {
		t.Fatalf("cannot compile grammar: %v", err)
	}
	return out
}

func parse(t *testing.T, p *vm.Parser, input string, opts ...vm.Option) any {
	t.Helper()
	result, err := p.Parse(input, opts...)
	if err != nil {
		t.Fatalf("cannot parse %q: %v", input, err)
	}
	return result
}

func syntaxError(t *testing.T, p *vm.Parser, input string) *vm.SyntaxError {
	t.Helper()
	result, err := p.Parse(input)
	if err == nil {
		t.Fatalf("expected %q not to match, have result %v", input, result)
	}
	var serr *vm.SyntaxError
	if !errors.As(err, &serr) {
		t.Fatalf("expected a syntax error for %q, have %v", input, err)
	}
	if result != nil {
		t.Errorf("expected no result alongside an error")
	}
	return serr
}

func TestOneOrMoreEndToEnd(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.compiler")
	defer teardown()
	//
	out := mustGenerate(t, `start = "a"+`, nil)
	result := parse(t, out.Parser, "aaa")
	if diff := cmp.Diff([]any{"a", "a", "a"}, result); diff != "" {
		t.Errorf("unexpected result (-want +got):\n%s", diff)
	}
	serr := syntaxError(t, out.Parser, "")
	if serr.Location.Start.Offset != 0 || serr.Found != nil {
		t.Errorf("expected failure at end of input at offset 0, have %v", serr)
	}
	if len(serr.Expected) != 1 || serr.Expected[0].Describe() != `"a"` {
		t.Errorf("expected \"a\" to be expected, have %v", serr.Expected)
	}
	if serr.Message != `Expected "a" but end of input found.` {
		t.Errorf("unexpected message %q", serr.Message)
	}
}

func TestOrderedChoice(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.compiler")
	defer teardown()
	//
	out := mustGenerate(t, `start = "a" / "ab"`, nil)
	serr := syntaxError(t, out.Parser, "ab")
	if serr.Location.Start.Offset != 1 {
		t.Errorf("expected failure at offset 1, have %d", serr.Location.Start.Offset)
	}
	if len(serr.Expected) != 1 || serr.Expected[0].Type != bytecode.ExpectEnd {
		t.Errorf("expected end of input to be expected, have %v", serr.Expected)
	}
	if result := parse(t, out.Parser, "a"); result != "a" {
		t.Errorf("expected first alternative to match, have %v", result)
	}
}

func TestMergedClassesKeepResults(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.compiler")
	defer teardown()
	//
	out := mustGenerate(t, `start = "x" / "y"`, nil)
	for input, want := range map[string]string{"x": "x", "y": "y"} {
		if result := parse(t, out.Parser, input); result != want {
			t.Errorf("expected %q for input %q, have %v", want, input, result)
		}
	}
	serr := syntaxError(t, out.Parser, "z")
	if diff := cmp.Diff([]string{"[xy]"}, describe(serr.Expected)); diff != "" {
		t.Errorf("unexpected expectations (-want +got):\n%s", diff)
	}
}

func TestRepetitionLaws(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.compiler")
	defer teardown()
	//
	out := mustGenerate(t, `start = "a"* "b"+`, nil)
	if diff := cmp.Diff([]any{[]any{}, []any{"b"}}, parse(t, out.Parser, "b")); diff != "" {
		t.Errorf("zero_or_more of no matches (-want +got):\n%s", diff)
	}
	serr := syntaxError(t, out.Parser, "aa")
	if serr.Location.Start.Offset != 2 {
		t.Errorf("expected one_or_more to fail where zero_or_more stopped, have offset %d",
			serr.Location.Start.Offset)
	}
	if diff := cmp.Diff([]string{`"a"`, `"b"`}, describe(serr.Expected)); diff != "" {
		t.Errorf("unexpected expectations (-want +got):\n%s", diff)
	}
}

func describe(expected []bytecode.Expectation) []string {
	var ds []string
	for _, e := range expected {
		ds = append(ds, e.Describe())
	}
	return ds
}

func TestDelimitedRepeated(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.compiler")
	defer teardown()
	//
	out := mustGenerate(t, `start = "a"|2..3, ","|`, nil)
	if diff := cmp.Diff([]any{"a", "a", "a"}, parse(t, out.Parser, "a,a,a")); diff != "" {
		t.Errorf("unexpected result (-want +got):\n%s", diff)
	}
	syntaxError(t, out.Parser, "a")
	syntaxError(t, out.Parser, "a,")
	prefix := mustGenerate(t, `start = "a"|2..3, ","| $.*`, nil)
	expected := []any{[]any{"a", "a", "a"}, ",a"}
	if diff := cmp.Diff(expected, parse(t, prefix.Parser, "a,a,a,a")); diff != "" {
		t.Errorf("expected repetition to stop after 3 matches (-want +got):\n%s", diff)
	}
}

func TestLookaheadIsZeroWidth(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.compiler")
	defer teardown()
	//
	out := mustGenerate(t, `start = &"ab" $("a" "b") !"c" .`, nil)
	if diff := cmp.Diff([]any{nil, "ab", nil, "d"}, parse(t, out.Parser, "abd")); diff != "" {
		t.Errorf("unexpected result (-want +got):\n%s", diff)
	}
	syntaxError(t, out.Parser, "abc")
}

var arithmetic = vm.Actions{
	"return n.(int) + m.(int), nil": func(c *vm.Context) (any, error) {
		return c.Label("n").(int) + c.Label("m").(int), nil
	},
	"return strconv.Atoi(d.(string))": func(c *vm.Context) (any, error) {
		return strconv.Atoi(c.Label("d").(string))
	},
	`return x == "a", nil`: func(c *vm.Context) (any, error) {
		return c.Label("x") == "a", nil
	},
}

func TestActionsAndLabels(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.compiler")
	defer teardown()
	//
	out := mustGenerate(t, `
start = n:num "+" m:num { return n.(int) + m.(int), nil }
num = d:$[0-9]+ { return strconv.Atoi(d.(string)) }
`, &Options{Actions: arithmetic})
	if result := parse(t, out.Parser, "12+30"); result != 42 {
		t.Errorf("expected 42, have %v", result)
	}
}

func TestDataDependentRepetition(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.compiler")
	defer teardown()
	//
	out := mustGenerate(t, `
start = n:num ":" @"x"|n|
num = d:$[0-9]+ { return strconv.Atoi(d.(string)) }
`, &Options{Actions: arithmetic})
	if diff := cmp.Diff([]any{"x", "x", "x"}, parse(t, out.Parser, "3:xxx")); diff != "" {
		t.Errorf("unexpected result (-want +got):\n%s", diff)
	}
	syntaxError(t, out.Parser, "3:xx")
	syntaxError(t, out.Parser, "3:xxxx")
}

func TestLabelScoping(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.compiler")
	defer teardown()
	//
	out := mustGenerate(t, `start = x:"a" &{ return x == "a", nil } "b" / y:"c" &{ return true, nil }`,
		&Options{Actions: arithmetic, StubActions: true})
	params := make(map[string][]string)
	for _, f := range out.Parser.Program().Functions {
		params[vm.Key(f.Code)] = f.Params
	}
	if diff := cmp.Diff([]string{"x"}, params[`return x == "a", nil`]); diff != "" {
		t.Errorf("label of the sequence must be visible (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"y"}, params["return true, nil"]); diff != "" {
		t.Errorf("labels of sibling alternatives must not be visible (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{"a", nil, "b"}, parse(t, out.Parser, "ab")); diff != "" {
		t.Errorf("unexpected result (-want +got):\n%s", diff)
	}
}

func TestMissingActions(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.compiler")
	defer teardown()
	//
	_, err := Generate(`start = "a" { return 1, nil }`, &Options{})
	var cerr *diag.CompileError
	if !errors.As(err, &cerr) || cerr.Stage != diag.StageGenerate {
		t.Fatalf("expected a generate stage compile error, have %v", err)
	}
	out := mustGenerate(t, `start = "a" { return 1, nil }`, &Options{StubActions: true})
	if result := parse(t, out.Parser, "a"); result != "a" {
		t.Errorf("expected stub to return the matched text, have %v", result)
	}
}

func TestTracing(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.compiler")
	defer teardown()
	//
	out := mustGenerate(t, "start = a \"b\"\na = \"a\"", &Options{Trace: true})
	rec := &vm.RecordingTracer{}
	parse(t, out.Parser, "ab", vm.WithTracer(rec))
	expected := []string{"rule.enter start", "rule.enter a", "rule.match a", "rule.match start"}
	if diff := cmp.Diff(expected, rec.Types()); diff != "" {
		t.Errorf("unexpected trace (-want +got):\n%s", diff)
	}
}

func TestDiagnosticsGating(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.compiler")
	defer teardown()
	//
	calls := 0
	ps := DefaultPasses()
	err := ps.Replace(diag.StageGenerate, "generateBytecode", Pass{
		Name: "generateBytecode",
		Run: func(g *ast.Grammar, s *Session) error {
			calls++
			return generateBytecode(g, s)
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	var reported []string
	opts := &Options{OnError: func(d diag.Diagnostic) { reported = append(reported, d.Message) }}
	g := parseGrammar(t, "start = undefined")
	_, err = Compile(g, ps, opts)
	var cerr *diag.CompileError
	if !errors.As(err, &cerr) || cerr.Stage != diag.StageCheck {
		t.Fatalf("expected check stage error, have %v", err)
	}
	if calls != 0 {
		t.Errorf("generator must not run for invalid grammars, ran %d times", calls)
	}
	if len(reported) != 1 || !strings.Contains(reported[0], `"undefined"`) {
		t.Errorf("expected error callback to be called once, have %v", reported)
	}
	g = parseGrammar(t, `start = "x"`)
	if _, err = Compile(g, ps, &Options{}); err != nil || calls != 1 {
		t.Errorf("expected generator to run once for a valid grammar, err = %v", err)
	}
}

func TestConfigErrors(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.compiler")
	defer teardown()
	//
	for _, opts := range []*Options{
		{Output: OutputSourceAndMap},
		{Output: OutputSourceWithInlineMap},
		{AllowedStartRules: []string{"nope"}},
		{Output: OutputKind(17)},
	} {
		_, err := Generate(`start = "x"`, opts)
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("expected configuration error for %+v, have %v", opts, err)
		}
	}
	if _, err := ParseOutputKind("source-and-map"); err != nil {
		t.Error(err)
	}
	if _, err := ParseOutputKind("binary"); err == nil {
		t.Errorf("expected unknown output kind to be rejected")
	}
}

func TestStartRules(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.compiler")
	defer teardown()
	//
	text := "a = \"a\"\nb = \"b\""
	out := mustGenerate(t, text, &Options{AllowedStartRules: []string{"*"}})
	if result := parse(t, out.Parser, "b", vm.StartRule("b")); result != "b" {
		t.Errorf("expected rule b to match, have %v", result)
	}
	out = mustGenerate(t, text, &Options{})
	if _, err := out.Parser.Parse("b", vm.StartRule("b")); err == nil || vm.IsSyntaxError(err) {
		t.Errorf("expected a runtime error for a start rule not allowed, have %v", err)
	}
	if len(out.Diagnostics) != 1 || out.Diagnostics[0].Severity != diag.SevWarning {
		t.Errorf("expected a warning for unused rule b, have %v", out.Diagnostics)
	}
}

func TestCustomPasses(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.compiler")
	defer teardown()
	//
	ps := DefaultPasses()
	lint := Pass{
		Name: "noShortNames",
		Run: func(g *ast.Grammar, s *Session) error {
			for _, r := range g.Rules {
				if len(r.Name) < 2 {
					loc := r.NameLocation
					s.Sink.Warning(diag.StageCheck, "rule name too short", &loc)
				}
			}
			return nil
		},
	}
	if err := ps.InsertBefore(diag.StageCheck, "reportUnusedRules", lint); err != nil {
		t.Fatal(err)
	}
	if err := ps.Remove(diag.StageTransform, "mergeCharacterClasses"); err != nil {
		t.Fatal(err)
	}
	if err := ps.Remove(diag.StageTransform, "mergeCharacterClasses"); err == nil {
		t.Errorf("expected removing a missing pass to fail")
	}
	names := ps.Names(diag.StageCheck)
	if names[len(names)-2] != "noShortNames" {
		t.Errorf("expected lint before the last check pass, have %v", names)
	}
	out, err := Compile(parseGrammar(t, `s = "x"`), ps, &Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Diagnostics) != 1 || out.Diagnostics[0].Message != "rule name too short" {
		t.Errorf("expected lint warning, have %v", out.Diagnostics)
	}
}

func TestSourceOutput(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.compiler")
	defer teardown()
	//
	text := `start = "a"+`
	out := mustGenerate(t, text, &Options{Output: OutputSource, Package: "calc"})
	src := string(out.Source)
	if !strings.HasPrefix(src, codegen.Header) {
		t.Errorf("expected generated source header, have %.40q", src)
	}
	for _, frag := range []string{"package calc", "func Parse(input string", "var program = &bytecode.Program{"} {
		if !strings.Contains(src, frag) {
			t.Errorf("expected source to contain %q", frag)
		}
	}
	out = mustGenerate(t, text, &Options{Output: OutputSourceAndMap, GrammarSource: "test.peg"})
	if out.SourceMap == nil || out.SourceMap.Version != 3 {
		t.Fatalf("expected a revision 3 source map, have %v", out.SourceMap)
	}
	if diff := cmp.Diff([]string{"test.peg"}, out.SourceMap.Sources); diff != "" {
		t.Errorf("unexpected sources (-want +got):\n%s", diff)
	}
	out = mustGenerate(t, text, &Options{Output: OutputSourceWithInlineMap, GrammarSource: "test.peg"})
	if !strings.Contains(string(out.Source), "//# sourceMappingURL=data:application/json") {
		t.Errorf("expected inline source map comment")
	}
}

func TestASTRoundTrip(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.compiler")
	defer teardown()
	//
	text := `
start = list end
list = item|1.., ","|
item "item" = $([a-z]+ ("-" [a-z]+)*) / "(" @list ")"
end = !.
`
	direct := mustGenerate(t, text, &Options{})
	astOut := mustGenerate(t, text, &Options{Output: OutputAST})
	if astOut.Parser != nil || astOut.Grammar == nil {
		t.Fatalf("expected AST output only")
	}
	data, err := ast.Marshal(astOut.Grammar)
	if err != nil {
		t.Fatal(err)
	}
	g, err := ast.Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	again, err := Compile(g, nil, &Options{})
	if err != nil {
		t.Fatalf("cannot compile AST output: %v", err)
	}
	want, have := printed(t, astOut.Grammar), printed(t, again.Grammar)
	if want != have {
		dmp := diffmatchpatch.New()
		diffs := dmp.DiffMain(want, have, false)
		t.Errorf("grammar changed in round trip:\n%s", dmp.DiffPrettyText(diffs))
	}
	for _, input := range []string{"a,b-c,(x,y)", "a-", "", "(a"} {
		r1, err1 := direct.Parser.Parse(input)
		r2, err2 := again.Parser.Parse(input)
		if diff := cmp.Diff(r1, r2); diff != "" {
			t.Errorf("%q: results differ (-direct +round trip):\n%s", input, diff)
		}
		if (err1 == nil) != (err2 == nil) || err1 != nil && err1.Error() != err2.Error() {
			t.Errorf("%q: errors differ: %v vs. %v", input, err1, err2)
		}
	}
}

func printed(t *testing.T, g *ast.Grammar) string {
	t.Helper()
	var b strings.Builder
	if err := ast.Print(&b, g); err != nil {
		t.Fatal(err)
	}
	return b.String()
}

func TestCache(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.compiler")
	defer teardown()
	//
	cache := NewCache(2)
	o1, err := cache.Generate(`start = "a"`, nil)
	if err != nil {
		t.Fatal(err)
	}
	o2, _ := cache.Generate(`start = "a"`, nil)
	if o1 != o2 {
		t.Errorf("expected second compile to be served from the cache")
	}
	o3, _ := cache.Generate(`start = "a"`, &Options{Trace: true})
	if o3 == o1 {
		t.Errorf("expected different options to compile anew")
	}
	if _, err := cache.Generate(`start = `, nil); err == nil {
		t.Errorf("expected syntax error in grammar")
	}
	if cache.Len() != 2 {
		t.Errorf("expected 2 cached outputs, have %d", cache.Len())
	}
}
