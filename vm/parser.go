package vm

import (
	"fmt"

	"github.com/npillmayer/gopeg/bytecode"
	"github.com/npillmayer/schuko/gconf"
	"golang.org/x/text/cases"
)

// Parser is an executable grammar. Create one with New or Bind.
type Parser struct {
	prog     *bytecode.Program
	funcs    []Func
	init     Func
	literals [][]rune // literals as runes
	folded   []string // case-folded literals
}

// New creates a parser for a program. funcs[i] implements
// prog.Functions[i]; init implements prog.Initializer and may be nil if the
// program has no initializer.
func New(prog *bytecode.Program, funcs []Func, init Func) (*Parser, error) {
	if err := bytecode.Verify(prog); err != nil {
		return nil, err
	}
	if len(prog.Rules) == 0 || len(prog.StartRules) == 0 {
		return nil, fmt.Errorf("vm: program has no start rule")
	}
	if len(funcs) != len(prog.Functions) {
		return nil, fmt.Errorf("vm: program has %d functions, %d given", len(prog.Functions), len(funcs))
	}
	var missing []bytecode.Function
	for i, f := range funcs {
		if f == nil {
			missing = append(missing, prog.Functions[i])
		}
	}
	if prog.Initializer != nil && init == nil {
		missing = append(missing, *prog.Initializer)
	}
	if len(missing) > 0 {
		return nil, &BindError{Missing: missing}
	}
	p := &Parser{prog: prog, funcs: funcs, init: init}
	fold := cases.Fold()
	p.literals = make([][]rune, len(prog.Literals))
	p.folded = make([]string, len(prog.Literals))
	for i, l := range prog.Literals {
		p.literals[i] = []rune(l)
		p.folded[i] = fold.String(l)
	}
	tracer().Debugf("parser created: %d rules, %d functions", len(prog.Rules), len(funcs))
	return p, nil
}

// MustNew is like New, but panics on error. It is used by generated code.
func MustNew(prog *bytecode.Program, funcs []Func, init Func) *Parser {
	p, err := New(prog, funcs, init)
	if err != nil {
		panic(err)
	}
	return p
}

// Bind creates a parser, looking up the functions of a program in actions.
// If stub is true, code blocks without an entry are replaced by stubs:
// actions return their label bindings (or the matched text if there are no
// labels), predicates succeed and the initializer does nothing.
func Bind(prog *bytecode.Program, actions Actions, stub bool) (*Parser, error) {
	funcs := make([]Func, len(prog.Functions))
	for i, f := range prog.Functions {
		if fn, ok := actions[Key(f.Code)]; ok {
			funcs[i] = fn
		} else if stub {
			funcs[i] = Stub(f)
		}
	}
	var init Func
	if prog.Initializer != nil {
		if fn, ok := actions[Key(prog.Initializer.Code)]; ok {
			init = fn
		} else if stub {
			init = Stub(*prog.Initializer)
		}
	}
	return New(prog, funcs, init)
}

// Stub returns a replacement function for a code block.
func Stub(f bytecode.Function) Func {
	switch f.Kind {
	case bytecode.PredicateFunc:
		return func(*Context) (any, error) { return true, nil }
	case bytecode.InitializerFunc:
		return func(*Context) (any, error) { return nil, nil }
	case bytecode.BoundaryFunc:
		return func(*Context) (any, error) {
			return nil, fmt.Errorf("boundary code {%s} cannot be stubbed", abbreviate(f.Code, 30))
		}
	}
	return func(c *Context) (any, error) {
		if len(f.Params) == 0 {
			return c.Text(), nil
		}
		return c.Labels(), nil
	}
}

// Program returns the program a parser executes.
func (p *Parser) Program() *bytecode.Program {
	return p.prog
}

// StartRules returns the names of the rules a parse may start with. The
// first one is the default.
func (p *Parser) StartRules() []string {
	names := make([]string, len(p.prog.StartRules))
	for i, r := range p.prog.StartRules {
		names[i] = p.prog.Rules[r].Name
	}
	return names
}

// --- Parse options ---------------------------------------------------------

type parseConfig struct {
	startRule string
	tracer    Tracer
	memoize   *bool
	state     map[string]any
	source    any
}

// Option configures a single parse.
type Option func(*parseConfig)

// StartRule sets the rule to start parsing with. It must be one of the
// allowed start rules of the program.
func StartRule(name string) Option {
	return func(c *parseConfig) {
		c.startRule = name
	}
}

// WithTracer sets a receiver for trace events. Events are emitted only for
// programs compiled with tracing. Without this option, traced programs log
// to DefaultTracer.
func WithTracer(t Tracer) Option {
	return func(c *parseConfig) {
		c.tracer = t
	}
}

// Memoize switches memoization of rule results on or off, overriding the
// setting the program has been compiled with.
func Memoize(on bool) Option {
	return func(c *parseConfig) {
		c.memoize = &on
	}
}

// WithState sets the initial per-parse state, see Context.State.
func WithState(state map[string]any) Option {
	return func(c *parseConfig) {
		c.state = state
	}
}

// Source sets the source identifier used in locations.
func Source(src any) Option {
	return func(c *parseConfig) {
		c.source = src
	}
}

// Parse matches input against the grammar, starting with the default or
// the configured start rule. The whole input has to be matched.
//
// Parse returns either a result or an error, never both. Errors are of type
// *SyntaxError if the input does not match, *RuntimeError otherwise.
func (p *Parser) Parse(input string, opts ...Option) (result any, err error) {
	cfg := &parseConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	start := p.prog.StartRules[0]
	if cfg.startRule != "" {
		r, ok := p.prog.RuleIndex(cfg.startRule)
		if !ok || !p.prog.IsStartRule(r) {
			return nil, &RuntimeError{Message: fmt.Sprintf("can't start parsing from rule %q", cfg.startRule)}
		}
		start = r
	}
	m := newMachine(p, input, cfg)
	defer func() {
		if r := recover(); r != nil {
			tracer().Errorf("parser fault: %v", r)
			if gconf.GetBool("gopeg.vm.panic-on-fault") {
				panic(r)
			}
			result = nil
			err = &RuntimeError{Message: fmt.Sprintf("parser fault: %v", r)}
		}
	}()
	return m.parse(start)
}
