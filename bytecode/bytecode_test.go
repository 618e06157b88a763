package bytecode

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/npillmayer/gopeg"
	"github.com/npillmayer/schuko/tracing/gotestingadapter"
)

// literalProgram returns a program for
//
//	start = "a"
func literalProgram() *Program {
	return &Program{
		Rules: []RuleCode{{
			Name: "start",
			Code: []int{int(MatchString), 0, 2, 2, int(AcceptString), 0, int(Fail), 0},
		}},
		StartRules:   []int{0},
		Literals:     []string{"a"},
		Expectations: []Expectation{{Type: ExpectLiteral, Text: "a"}},
	}
}

func TestPoolsDeduplicate(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.bytecode")
	defer teardown()
	//
	pools := NewPools()
	if i := pools.Literal("a"); i != 0 {
		t.Errorf("expected first literal at 0, is %d", i)
	}
	if i := pools.Literal("b"); i != 1 {
		t.Errorf("expected second literal at 1, is %d", i)
	}
	if i := pools.Literal("a"); i != 0 {
		t.Errorf("expected duplicate literal to share index 0, is %d", i)
	}
	c1 := pools.Class(Class{Parts: [][2]rune{{'a', 'z'}}})
	c2 := pools.Class(Class{Parts: [][2]rune{{'a', 'z'}}, IgnoreCase: true})
	c3 := pools.Class(Class{Parts: [][2]rune{{'a', 'z'}}})
	if c1 != c3 || c1 == c2 {
		t.Errorf("class indices wrong: %d, %d, %d", c1, c2, c3)
	}
	f1 := pools.Function(Function{Kind: ActionFunc, Code: "return 1"})
	f2 := pools.Function(Function{Kind: PredicateFunc, Code: "return 1"})
	f3 := pools.Function(Function{Kind: ActionFunc, Params: []string{}, Code: "return 1"})
	if f1 != f3 || f1 == f2 {
		t.Errorf("function indices wrong: %d, %d, %d", f1, f2, f3)
	}
	e1 := pools.Expectation(Expectation{Type: ExpectLiteral, Text: "a"})
	e2 := pools.Expectation(Expectation{Type: ExpectLiteral, Text: "a", IgnoreCase: true})
	if e1 == e2 {
		t.Errorf("expectations with different case sensitivity must not share an index")
	}
	loc := gopeg.Location{Source: "x.peg", Start: gopeg.Position{Offset: 1}, End: gopeg.Position{Offset: 3}}
	if pools.Location(loc) != pools.Location(loc) {
		t.Errorf("equal locations must share an index")
	}
	prog := &Program{}
	pools.Fill(prog)
	if diff := cmp.Diff([]string{"a", "b"}, prog.Literals); diff != "" {
		t.Errorf("literals differ (-want +got):\n%s", diff)
	}
	if len(prog.Classes) != 2 || len(prog.Functions) != 2 || len(prog.Expectations) != 2 {
		t.Errorf("unexpected pool sizes: %d classes, %d functions, %d expectations",
			len(prog.Classes), len(prog.Functions), len(prog.Expectations))
	}
	if len(prog.Locations) != 1 {
		t.Errorf("expected 1 location, have %d", len(prog.Locations))
	}
}

func TestDecode(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.bytecode")
	defer teardown()
	//
	code := literalProgram().Rules[0].Code
	in, err := Decode(code, 0)
	if err != nil {
		t.Fatal(err)
	}
	if in.Op != MatchString || in.Len != len(code) {
		t.Errorf("expected MATCH_STRING spanning all code, have %s with length %d", in.Op, in.Len)
	}
	if diff := cmp.Diff([]int{int(AcceptString), 0}, in.Then); diff != "" {
		t.Errorf("then-branch differs:\n%s", diff)
	}
	if diff := cmp.Diff([]int{int(Fail), 0}, in.Else); diff != "" {
		t.Errorf("else-branch differs:\n%s", diff)
	}
	call := []int{int(Call), 3, 2, 2, 0, 1}
	in, err = Decode(call, 0)
	if err != nil {
		t.Fatal(err)
	}
	if in.Len != 6 || len(in.Args) != 5 {
		t.Errorf("CALL with 2 parameters should have 5 operands, has %d (len %d)", len(in.Args), in.Len)
	}
	for _, bad := range [][]int{
		{int(opcodeCount)},
		{int(PopN)},
		{int(If), 3, 0},
		{int(WhileNotError), 5, int(Pop)},
	} {
		if _, err := Decode(bad, 0); err == nil {
			t.Errorf("expected decoding of %v to fail", bad)
		}
	}
}

func TestVerify(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.bytecode")
	defer teardown()
	//
	if err := Verify(literalProgram()); err != nil {
		t.Errorf("expected literal program to verify, have %v", err)
	}
	tests := []struct {
		name   string
		code   []int
		expect string
	}{
		{"two values", []int{int(PushNil), int(PushNil)}, "leaves 2 values"},
		{"underflow", []int{int(Pop), int(PushNil)}, "needs 1 stack values"},
		{"unbalanced", []int{int(PushNil), int(If), 1, 0, int(Pop)}, "move the stack differently"},
		{"bad literal", []int{int(AcceptString), 7}, "refers to literal #7"},
		{"loop", []int{int(PushNil), int(WhileNotError), 1, int(PushNil)}, "loop body"},
		{"pluck", []int{int(PushNil), int(Pluck), 1, 1, 3}, "PLUCK offset 3"},
	}
	for _, tt := range tests {
		prog := literalProgram()
		prog.Rules[0].Code = tt.code
		err := Verify(prog)
		if err == nil {
			t.Errorf("%s: expected verification to fail", tt.name)
			continue
		}
		if !strings.Contains(err.Error(), tt.expect) {
			t.Errorf("%s: expected error containing %q, have %q", tt.name, tt.expect, err.Error())
		}
	}
	prog := literalProgram()
	prog.StartRules = []int{4}
	if err := Verify(prog); err == nil {
		t.Errorf("expected out-of-range start rule to be rejected")
	}
}

func TestCallSites(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.bytecode")
	defer teardown()
	//
	action := gopeg.Location{Source: "g.peg", Start: gopeg.Position{Offset: 8, Line: 1, Column: 9}}
	label := gopeg.Location{Source: "g.peg", Start: gopeg.Position{Offset: 0, Line: 1, Column: 1}}
	prog := &Program{
		Rules: []RuleCode{{Name: "start", Code: []int{
			int(SourceMapLabelPush), 0, 0, 1, int(PushNil), int(SourceMapLabelPop), 0,
			int(SourceMapPush), 0, int(SourceMapLabelPush), 0, 0, 1,
			int(Call), 0, 1, 1, 0,
			int(SourceMapLabelPop), 0, int(SourceMapPop),
		}}},
		StartRules: []int{0},
		Literals:   []string{"x"},
		Functions:  []Function{{Kind: ActionFunc, Params: []string{"x"}, Code: "return x, nil"}},
		Locations:  []gopeg.Location{action, label},
	}
	if err := Verify(prog); err != nil {
		t.Fatal(err)
	}
	sites, err := CallSites(prog)
	if err != nil {
		t.Fatal(err)
	}
	if len(sites) != 1 || sites[0].Function != 0 || sites[0].Range != action {
		t.Fatalf("unexpected call sites %+v", sites)
	}
	if l, ok := sites[0].Label("x"); !ok || l.Slot != 0 || l.Location != label {
		t.Errorf("expected label x at slot 0, have %+v", l)
	}
	if _, ok := sites[0].Label("y"); ok {
		t.Errorf("expected no label y")
	}
	//
	for name, code := range map[string][]int{
		"open range":  {int(SourceMapPush), 0, int(PushNil)},
		"stray pop":   {int(PushNil), int(SourceMapPop)},
		"wrong label": {int(SourceMapLabelPush), 0, 0, 1, int(PushNil), int(SourceMapLabelPop), 1},
		"branch":      {int(PushNil), int(If), 2, 0, int(SourceMapPush), 0, int(SourceMapPop)},
	} {
		prog.Rules[0].Code = code
		if _, err := CallSites(prog); err == nil {
			t.Errorf("%s: expected unbalanced source map instructions to be rejected", name)
		}
	}
}

func TestDisassemble(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.bytecode")
	defer teardown()
	//
	var b strings.Builder
	if err := Disassemble(&b, literalProgram()); err != nil {
		t.Fatal(err)
	}
	listing := b.String()
	for _, want := range []string{
		`literal[0]     = "a"`,
		`expectation[0] = literal "a"`,
		"rule[0] start (start):",
		"  MATCH_STRING",
		"    ACCEPT_STRING",
		"  else\n",
		"    FAIL",
	} {
		if !strings.Contains(listing, want) {
			t.Errorf("expected listing to contain %q, is\n%s", want, listing)
		}
	}
}

func TestClassMatch(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.bytecode")
	defer teardown()
	//
	tests := []struct {
		class Class
		r     rune
		match bool
	}{
		{Class{Parts: [][2]rune{{'a', 'c'}}}, 'b', true},
		{Class{Parts: [][2]rune{{'a', 'c'}}}, 'B', false},
		{Class{Parts: [][2]rune{{'a', 'c'}}, IgnoreCase: true}, 'B', true},
		{Class{Parts: [][2]rune{{'a', 'c'}}, Inverted: true}, 'b', false},
		{Class{Parts: [][2]rune{{'a', 'c'}}, Inverted: true}, 'x', true},
		{Class{Parts: [][2]rune{{'k', 'k'}}, IgnoreCase: true}, 'K', true}, // Kelvin sign
		{Class{}, 'x', false},
		{Class{Inverted: true}, 'x', true},
	}
	for i, tt := range tests {
		if m := tt.class.Match(tt.r); m != tt.match {
			t.Errorf("%d: %s.Match(%q) = %v, expected %v", i, tt.class.String(), tt.r, m, tt.match)
		}
	}
}

func TestDescriptions(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg.bytecode")
	defer teardown()
	//
	c := Class{Parts: [][2]rune{{'a', 'z'}, {'-', '-'}, {']', ']'}}, Inverted: true, IgnoreCase: true}
	if s := c.String(); s != `[^a-z\-\]]i` {
		t.Errorf("unexpected class rendering %s", s)
	}
	tests := []struct {
		exp  Expectation
		desc string
	}{
		{Expectation{Type: ExpectLiteral, Text: "a\"b\n"}, `"a\"b\n"`},
		{Expectation{Type: ExpectClass, Parts: [][2]rune{{'0', '9'}}}, "[0-9]"},
		{Expectation{Type: ExpectAny}, "any character"},
		{EndOfInput, "end of input"},
		{Expectation{Type: ExpectOther, Description: "number"}, "number"},
	}
	for _, tt := range tests {
		if d := tt.exp.Describe(); d != tt.desc {
			t.Errorf("expected description %s, have %s", tt.desc, d)
		}
	}
	if s := LiteralEscape("\x01\t"); s != `\x01\t` {
		t.Errorf("unexpected escape %s", s)
	}
}
