package codegen

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/npillmayer/gopeg"
	"github.com/npillmayer/gopeg/bytecode"
	"github.com/npillmayer/gopeg/sourcemap"
	"golang.org/x/tools/imports"
)

// Header is the first line of every generated file.
const Header = "// Code generated by pegc. DO NOT EDIT."

// RenderOptions controls Go source generation.
type RenderOptions struct {
	Package       string            // package name of the generated file
	File          string            // name of the generated file, for source maps
	GrammarSource string            // name of the grammar, used if locations have no source
	GrammarText   string            // grammar text, embedded into source maps
	SourceMap     sourcemap.Builder // receives mappings if non-nil
}

// RenderGo renders a program as a Go source file. The file declares a
// package level variable Parser and a function Parse. User code is placed
// into functions of the form
//
//	func action3(c *vm.Context) (any, error) { <labels>; <code> }
//
// where every label in scope is available as a local variable. Code
// blocks of the top-level initializer are copied verbatim. Missing imports
// of user code are added automatically, as far as they can be resolved.
func RenderGo(prog *bytecode.Program, opts RenderOptions) ([]byte, error) {
	if opts.Package == "" {
		opts.Package = "parser"
	}
	if opts.File == "" {
		opts.File = "parser.go"
	}
	sites, err := bytecode.CallSites(prog)
	if err != nil {
		return nil, fmt.Errorf("codegen: %w", err)
	}
	r := &renderer{prog: prog, opts: opts, sites: make(map[int]bytecode.CallSite)}
	for _, cs := range sites {
		if _, ok := r.sites[cs.Function]; !ok {
			r.sites[cs.Function] = cs
		}
	}
	r.render()
	src, err := imports.Process(opts.File, []byte(r.b.String()), &imports.Options{
		Comments:  true,
		TabIndent: true,
		TabWidth:  8,
	})
	if err != nil {
		return nil, fmt.Errorf("codegen: generated source does not compile: %w", err)
	}
	if opts.SourceMap != nil {
		r.mapSource(src)
	}
	tracer().Infof("rendered %d bytes of Go source for package %s", len(src), opts.Package)
	return src, nil
}

type renderer struct {
	prog  *bytecode.Program
	opts  RenderOptions
	b     strings.Builder
	marks []mark                    // line directives, in order of emission
	sites map[int]bytecode.CallSite // first call site of each function
}

// mark records a line directive placed before user code, a label or a rule.
type mark struct {
	lines int    // number of additional lines covered
	name  string // function, label or rule name
}

func (r *renderer) printf(format string, args ...interface{}) {
	fmt.Fprintf(&r.b, format, args...)
}

func (r *renderer) render() {
	r.printf("%s\n", Header)
	if r.opts.GrammarSource != "" {
		r.printf("// Source: %s\n", r.opts.GrammarSource)
	}
	r.printf("\npackage %s\n\n", r.opts.Package)
	r.printf("import (\n\t%q\n\t%q\n\t%q\n)\n\n",
		"github.com/npillmayer/gopeg", "github.com/npillmayer/gopeg/bytecode", "github.com/npillmayer/gopeg/vm")
	if tl := r.prog.TopLevel; tl != nil {
		r.directive(tl.Location, tl.Code, "")
		r.printf("%s\n\n", tl.Code)
	}
	r.printf("// Parser is the compiled grammar.\n")
	r.printf("var Parser = vm.MustNew(program, []vm.Func{\n")
	for i, f := range r.prog.Functions {
		r.printf("\t%s,\n", funcName(i, f))
	}
	init := "nil"
	if r.prog.Initializer != nil {
		init = "initialize"
	}
	r.printf("}, %s)\n\n", init)
	r.printf("// SyntaxError is returned for input not matching the grammar.\n")
	r.printf("type SyntaxError = vm.SyntaxError\n\n")
	r.printf("// BuildMessage formats the message of a syntax error.\n")
	r.printf("var BuildMessage = vm.BuildMessage\n\n")
	r.printf("// Parse parses input with Parser.\n")
	r.printf("func Parse(input string, opts ...vm.Option) (any, error) {\n\treturn Parser.Parse(input, opts...)\n}\n\n")
	for i, f := range r.prog.Functions {
		r.function(funcName(i, f), f, r.sites[i])
	}
	if r.prog.Initializer != nil {
		r.function("initialize", *r.prog.Initializer, bytecode.CallSite{})
	}
	r.program()
}

func funcName(i int, f bytecode.Function) string {
	return fmt.Sprintf("%s%d", f.Kind, i)
}

// directive emits a line directive pointing to loc.
func (r *renderer) directive(loc gopeg.Location, code, name string) {
	if loc.Start.Line <= 0 {
		return
	}
	src := r.opts.GrammarSource
	if s, ok := loc.Source.(string); ok && s != "" {
		src = s
	}
	if src == "" {
		src = "grammar.peg"
	}
	r.printf("/*line %s:%d:%d*/ ", src, loc.Start.Line, loc.Start.Column)
	r.marks = append(r.marks, mark{lines: strings.Count(code, "\n"), name: name})
}

// function renders a code block. Parameters named at the call site map to
// their labels, the body maps to the code block under the function's name.
func (r *renderer) function(name string, f bytecode.Function, site bytecode.CallSite) {
	r.printf("func %s(c *vm.Context) (any, error) {\n", name)
	for i, p := range f.Params {
		r.printf("\t")
		if l, ok := site.Label(p); ok {
			r.directive(l.Location, "", p)
		}
		r.printf("%s := c.Arg(%d)\n", p, i)
	}
	if n := len(f.Params); n > 0 {
		blanks := strings.TrimSuffix(strings.Repeat("_, ", n), ", ")
		r.printf("\t%s = %s\n", blanks, strings.Join(f.Params, ", "))
	}
	code := strings.TrimSpace(f.Code)
	r.printf("\t")
	r.directive(f.Location, code, name)
	r.printf("%s\n}\n\n", code)
}

// --- Program tables --------------------------------------------------------

func (r *renderer) program() {
	p := r.prog
	r.printf("var program = &bytecode.Program{\n")
	r.printf("Rules: []bytecode.RuleCode{\n")
	for _, rule := range p.Rules {
		r.directive(rule.Location, "", rule.Name)
		r.printf("{Name: %q, Location: %s, Code: %s},\n", rule.Name, location(rule.Location), ints(rule.Code))
	}
	r.printf("},\n")
	r.printf("StartRules: %s,\n", ints(p.StartRules))
	r.printf("Literals: []string{")
	for _, l := range p.Literals {
		r.printf("%q, ", l)
	}
	r.printf("},\n")
	r.printf("Classes: []bytecode.Class{\n")
	for _, c := range p.Classes {
		r.printf("{Parts: %s, Inverted: %t, IgnoreCase: %t},\n", parts(c.Parts), c.Inverted, c.IgnoreCase)
	}
	r.printf("},\n")
	r.printf("Expectations: []bytecode.Expectation{\n")
	for _, e := range p.Expectations {
		r.printf("{Type: %q, Text: %q, IgnoreCase: %t, Parts: %s, Inverted: %t, Description: %q},\n",
			string(e.Type), e.Text, e.IgnoreCase, parts(e.Parts), e.Inverted, e.Description)
	}
	r.printf("},\n")
	r.printf("Functions: []bytecode.Function{\n")
	for _, f := range p.Functions {
		r.printf("%s,\n", function(f))
	}
	r.printf("},\n")
	r.printf("Locations: []gopeg.Location{\n")
	for _, l := range p.Locations {
		r.printf("%s,\n", location(l))
	}
	r.printf("},\n")
	if p.Initializer != nil {
		r.printf("Initializer: &%s,\n", function(*p.Initializer))
	}
	if p.TopLevel != nil {
		r.printf("TopLevel: &bytecode.CodeBlock{Code: %q, Location: %s},\n", p.TopLevel.Code, location(p.TopLevel.Location))
	}
	r.printf("Trace: %t,\nCache: %t,\n}\n", p.Trace, p.Cache)
}

func ints(code []int) string {
	var b strings.Builder
	b.WriteString("[]int{")
	for i, c := range code {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.Itoa(c))
	}
	b.WriteString("}")
	return b.String()
}

func parts(ps [][2]rune) string {
	if len(ps) == 0 {
		return "nil"
	}
	var b strings.Builder
	b.WriteString("[][2]rune{")
	for _, p := range ps {
		fmt.Fprintf(&b, "{%q, %q}, ", p[0], p[1])
	}
	b.WriteString("}")
	return b.String()
}

func function(f bytecode.Function) string {
	params := "nil"
	if len(f.Params) > 0 {
		qs := make([]string, len(f.Params))
		for i, p := range f.Params {
			qs[i] = strconv.Quote(p)
		}
		params = "[]string{" + strings.Join(qs, ", ") + "}"
	}
	return fmt.Sprintf("bytecode.Function{Kind: %d, Params: %s, Code: %q, Location: %s}",
		int(f.Kind), params, f.Code, location(f.Location))
}

func location(l gopeg.Location) string {
	src := "nil"
	if s, ok := l.Source.(string); ok {
		src = strconv.Quote(s)
	}
	pos := func(p gopeg.Position) string {
		return fmt.Sprintf("gopeg.Position{Offset: %d, Line: %d, Column: %d}", p.Offset, p.Line, p.Column)
	}
	return fmt.Sprintf("gopeg.Location{Source: %s, Start: %s, End: %s}", src, pos(l.Start), pos(l.End))
}

// --- Source maps -----------------------------------------------------------

var lineDirective = regexp.MustCompile(`/\*line (.+?):(\d+):(\d+)\*/`)

// mapSource finds the line directives in formatted source and adds a
// mapping for each of them, and for each line of multi-line user code.
func (r *renderer) mapSource(src []byte) {
	sm := r.opts.SourceMap
	if r.opts.GrammarSource != "" {
		sm.AddSource(r.opts.GrammarSource, r.opts.GrammarText)
	}
	k := 0
	for genLine, line := range strings.Split(string(src), "\n") {
		for _, m := range lineDirective.FindAllStringSubmatchIndex(line, -1) {
			if k >= len(r.marks) {
				return
			}
			source := line[m[2]:m[3]]
			l, _ := strconv.Atoi(line[m[4]:m[5]])
			c, _ := strconv.Atoi(line[m[6]:m[7]])
			mk := r.marks[k]
			k++
			sm.AddMapping(sourcemap.Mapping{
				GenLine:   genLine,
				GenColumn: m[1],
				Source:    source,
				Line:      l - 1,
				Column:    c - 1,
				Name:      mk.name,
			})
			for j := 1; j <= mk.lines; j++ {
				sm.AddMapping(sourcemap.Mapping{
					GenLine: genLine + j,
					Source:  source,
					Line:    l - 1 + j,
				})
			}
		}
	}
}
