package vm_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/npillmayer/gopeg"
	"github.com/npillmayer/gopeg/compiler"
	"github.com/npillmayer/gopeg/diag"
	"github.com/npillmayer/gopeg/vm"
	"github.com/npillmayer/schuko/tracing/gotestingadapter"
)

func generate(t *testing.T, text string, opts *compiler.Options) *compiler.Output {
	t.Helper()
	out, err := compiler.Generate(text, opts)
	if err != nil {
		t.Fatalf("cannot compile grammar: %v", err)
	}
	return out
}

func TestMemoization(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.vm")
	defer teardown()
	//
	calls := 0
	actions := vm.Actions{
		"return count()": func(c *vm.Context) (any, error) {
			calls++
			return c.Text(), nil
		},
	}
	grammar := "start = a \"x\" / a \"y\"\na = \"a\" { return count() }"
	p := generate(t, grammar, &compiler.Options{Actions: actions}).Parser
	if _, err := p.Parse("ay"); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("expected rule a to be evaluated twice without memoization, was %d", calls)
	}
	calls = 0
	if _, err := p.Parse("ay", vm.Memoize(true)); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("expected rule a to be evaluated once with memoization, was %d", calls)
	}
	cached := generate(t, grammar, &compiler.Options{Actions: actions, Cache: true}).Parser
	calls = 0
	result, err := cached.Parse("ay")
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("expected program compiled with cache to memoize, rule a evaluated %d times", calls)
	}
	if diff := cmp.Diff([]any{"a", "y"}, result); diff != "" {
		t.Errorf("unexpected result (-want +got):\n%s", diff)
	}
	calls = 0
	if _, err := cached.Parse("ay", vm.Memoize(false)); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("expected Memoize(false) to switch caching off, rule a evaluated %d times", calls)
	}
}

func TestBoundaryValues(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.vm")
	defer teardown()
	//
	var bound any
	actions := vm.Actions{
		"return n": func(*vm.Context) (any, error) { return bound, nil },
	}
	p := generate(t, `start = "x"|{ return n }|`, &compiler.Options{Actions: actions}).Parser
	for _, b := range []any{2, int64(2), uint8(2), 2.0, "2"} {
		bound = b
		result, err := p.Parse("xx")
		if err != nil {
			t.Errorf("boundary %#v: %v", b, err)
			continue
		}
		if diff := cmp.Diff([]any{"x", "x"}, result); diff != "" {
			t.Errorf("boundary %#v: unexpected result (-want +got):\n%s", b, diff)
		}
	}
	for _, b := range []any{-1, 1.5, float32(2.5), "two", nil, uint64(1 << 63)} {
		bound = b
		_, err := p.Parse("xx")
		var rerr *vm.RuntimeError
		if !errors.As(err, &rerr) {
			t.Errorf("boundary %#v: expected runtime error, have %v", b, err)
			continue
		}
		if !strings.Contains(rerr.Message, "not a non-negative integer") {
			t.Errorf("boundary %#v: unexpected message %q", b, rerr.Message)
		}
		if diff := cmp.Diff([]string{"start"}, rerr.Rules); diff != "" {
			t.Errorf("boundary %#v: unexpected active rules:\n%s", b, diff)
		}
		if vm.IsSyntaxError(err) {
			t.Errorf("boundary %#v: runtime error mistaken for syntax error", b)
		}
	}
}

func TestContext(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.vm")
	defer teardown()
	//
	type info struct {
		Text, Rule, Input string
		Label, Missing    any
		Arg0, Arg5        any
		Labels            map[string]any
		Range             gopeg.Span
		Offset            int
		Start, End        gopeg.Position
	}
	actions := vm.Actions{
		"return info": func(c *vm.Context) (any, error) {
			loc := c.Location()
			return info{
				Text: c.Text(), Rule: c.Rule(), Input: c.Input(),
				Label: c.Label("w"), Missing: c.Label("zz"),
				Arg0: c.Arg(0), Arg5: c.Arg(5),
				Labels: c.Labels(),
				Range:  c.Range(), Offset: c.Offset(),
				Start: loc.Start, End: loc.End,
			}, nil
		},
	}
	grammar := "start = \"x\" @inner\ninner = \"(\" w:word \")\" { return info }\nword = $[a-z]+"
	p := generate(t, grammar, &compiler.Options{Actions: actions}).Parser
	result, err := p.Parse("x(ab)", vm.Source("in.txt"))
	if err != nil {
		t.Fatal(err)
	}
	want := info{
		Text: "(ab)", Rule: "inner", Input: "x(ab)",
		Label: "ab", Arg0: "ab",
		Labels: map[string]any{"w": "ab"},
		Range:  gopeg.Span{1, 5}, Offset: 1,
		Start: gopeg.Position{Offset: 1, Line: 1, Column: 2},
		End:   gopeg.Position{Offset: 5, Line: 1, Column: 6},
	}
	if diff := cmp.Diff(want, result); diff != "" {
		t.Errorf("unexpected context (-want +got):\n%s", diff)
	}
}

func TestUserCodeErrors(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.vm")
	defer teardown()
	//
	boom := errors.New("boom")
	actions := vm.Actions{
		"return check(v)": func(c *vm.Context) (any, error) {
			switch c.Label("v") {
			case "e":
				return nil, c.Error("bad value")
			case "x":
				return nil, c.Expected("digit")
			case "r":
				return nil, boom
			}
			return c.Label("v"), nil
		},
	}
	p := generate(t, `start = v:$. { return check(v) }`, &compiler.Options{Actions: actions}).Parser
	if v, err := p.Parse("1"); err != nil || v != "1" {
		t.Errorf("expected 1, have %v (%v)", v, err)
	}
	_, err := p.Parse("e")
	var serr *vm.SyntaxError
	if !errors.As(err, &serr) || serr.Message != "bad value" || serr.Expected != nil {
		t.Errorf("expected custom syntax error, have %v", err)
	}
	_, err = p.Parse("x")
	if !errors.As(err, &serr) || serr.Message != `Expected digit but "x" found.` {
		t.Errorf("expected syntax error with expectation, have %v", err)
	}
	_, err = p.Parse("r")
	var rerr *vm.RuntimeError
	if !errors.As(err, &rerr) || !errors.Is(err, boom) {
		t.Errorf("expected runtime error wrapping boom, have %v", err)
	}
	if rerr != nil && (rerr.Location == nil || rerr.Location.Start.Column != 15) {
		t.Errorf("expected runtime error located at the code block, have %v", rerr.Location)
	}
}

func TestStartRuleOption(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.vm")
	defer teardown()
	//
	out := generate(t, "a = \"a\"\nb = \"b\"\nc = \"c\"", &compiler.Options{
		AllowedStartRules: []string{"a", "b"},
	})
	p := out.Parser
	if diff := cmp.Diff([]string{"a", "b"}, p.StartRules()); diff != "" {
		t.Errorf("start rules differ:\n%s", diff)
	}
	if v, err := p.Parse("b", vm.StartRule("b")); err != nil || v != "b" {
		t.Errorf("expected b, have %v (%v)", v, err)
	}
	for _, rule := range []string{"c", "d"} {
		_, err := p.Parse("c", vm.StartRule(rule))
		var rerr *vm.RuntimeError
		if !errors.As(err, &rerr) || !strings.Contains(rerr.Message, "can't start parsing from rule") {
			t.Errorf("expected start rule %s to be rejected, have %v", rule, err)
		}
	}
}

func TestInitializerState(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.vm")
	defer teardown()
	//
	actions := vm.Actions{
		"setup": func(c *vm.Context) (any, error) {
			if _, ok := c.State()["n"]; !ok {
				c.State()["n"] = 41
			}
			return nil, nil
		},
		"return next": func(c *vm.Context) (any, error) {
			return c.State()["n"].(int) + 1, nil
		},
	}
	p := generate(t, "{ setup }\nstart = \"a\" { return next }", &compiler.Options{Actions: actions}).Parser
	if v, err := p.Parse("a"); err != nil || v != 42 {
		t.Errorf("expected 42, have %v (%v)", v, err)
	}
	if v, err := p.Parse("a", vm.WithState(map[string]any{"n": 1})); err != nil || v != 2 {
		t.Errorf("expected 2 with preset state, have %v (%v)", v, err)
	}
}

func TestBind(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.vm")
	defer teardown()
	//
	out := generate(t, `start = "a" &{ return ok } { return value }`, &compiler.Options{
		Output: compiler.OutputAST,
	})
	prog, err := out.Grammar.Tables()
	if err != nil {
		t.Fatal(err)
	}
	_, err = vm.Bind(prog, vm.Actions{"return ok": func(*vm.Context) (any, error) { return true, nil }}, false)
	var berr *vm.BindError
	if !errors.As(err, &berr) || len(berr.Missing) != 1 || berr.Missing[0].Code != " return value " {
		t.Errorf("expected the action to be reported missing, have %v", err)
	}
	if _, err = vm.New(prog, nil, nil); err == nil {
		t.Errorf("expected New to reject a wrong number of functions")
	}
	p, err := vm.Bind(prog, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	// the stubbed action sees no labels and returns the matched text
	if v, err := p.Parse("a"); err != nil || v != "a" {
		t.Errorf("expected stub result a, have %v (%v)", v, err)
	}
	if p.Program() != prog {
		t.Errorf("parser should execute the bound program")
	}
}

func TestCaseInsensitiveLiteral(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.vm")
	defer teardown()
	//
	p := generate(t, `start = "select"i " " "ÄÖ"i`, nil).Parser
	result, err := p.Parse("SeLeCt äö")
	if err != nil {
		t.Fatal(err)
	}
	// a case-insensitive literal yields the matched input
	if diff := cmp.Diff([]any{"SeLeCt", " ", "äö"}, result); diff != "" {
		t.Errorf("unexpected result (-want +got):\n%s", diff)
	}
}

func TestSyntaxErrorFormat(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.vm")
	defer teardown()
	//
	p := generate(t, `start = "a" [0-9] ("xx" / "yy")`, nil).Parser
	_, err := p.Parse("a1z", vm.Source("in.txt"))
	var serr *vm.SyntaxError
	if !errors.As(err, &serr) {
		t.Fatalf("expected syntax error, have %v", err)
	}
	if serr.Message != `Expected "xx" or "yy" but "z" found.` {
		t.Errorf("unexpected message %q", serr.Message)
	}
	if serr.Error() != `in.txt:1:3: Expected "xx" or "yy" but "z" found.` {
		t.Errorf("unexpected error string %q", serr.Error())
	}
	out := serr.Format(diag.SourceText{Source: "in.txt", Text: "a1z"})
	if !strings.Contains(out, "1 | a1z") || !strings.Contains(out, "^") {
		t.Errorf("expected an excerpt with underline, have\n%s", out)
	}
}
