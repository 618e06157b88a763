package codegen

import (
	"fmt"
	"unicode/utf8"

	"github.com/npillmayer/gopeg"
	"github.com/npillmayer/gopeg/ast"
	"github.com/npillmayer/gopeg/bytecode"
	"github.com/npillmayer/gopeg/scope"
)

// Options controls bytecode generation.
type Options struct {
	StartRules []string // allowed start rules; empty means the first rule, "*" all rules
	Trace      bool     // emit trace events for rule calls
	Cache      bool     // memoize rule results
	SourceMap  bool     // emit source map instructions around user code and labels
}

// GenerateBytecode compiles a grammar into a program and stores it in
// g.Program. The grammar must have passed the check stage: undefined rules,
// unresolvable boundary labels or misplaced picks are reported as errors.
func GenerateBytecode(g *ast.Grammar, opts Options) (prog *bytecode.Program, err error) {
	if len(g.Rules) == 0 {
		return nil, fmt.Errorf("codegen: grammar has no rules")
	}
	gen := &generator{
		g:     g,
		opts:  opts,
		pools: bytecode.NewPools(),
	}
	gen.visitor = gen.buildVisitor()
	defer func() {
		if r := recover(); r != nil {
			switch e := r.(type) {
			case generatorError:
				prog, err = nil, e
			case *ast.UnknownKindError:
				prog, err = nil, fmt.Errorf("codegen: %w", e)
			default:
				panic(r)
			}
		}
	}()
	prog = &bytecode.Program{Trace: opts.Trace, Cache: opts.Cache}
	g.Reindex()
	for _, rule := range g.Rules {
		gen.rule = rule.Name
		gen.scopes = scope.NewScopeTree(rule.Name)
		code := gen.generate(rule.Expression, genContext{sp: -1})
		prog.Rules = append(prog.Rules, bytecode.RuleCode{
			Name:     rule.Name,
			Code:     code,
			Location: rule.Location,
		})
		tracer().P("rule", rule.Name).Debugf("compiled to %d code units", len(code))
	}
	if prog.StartRules, err = startRules(g, opts.StartRules); err != nil {
		return nil, err
	}
	if g.Initializer != nil {
		prog.Initializer = &bytecode.Function{
			Kind:     bytecode.InitializerFunc,
			Code:     g.Initializer.Code,
			Location: g.Initializer.CodeLocation,
		}
	}
	if g.TopLevelInitializer != nil {
		prog.TopLevel = &bytecode.CodeBlock{
			Code:     g.TopLevelInitializer.Code,
			Location: g.TopLevelInitializer.CodeLocation,
		}
	}
	gen.pools.Fill(prog)
	if err = bytecode.Verify(prog); err != nil {
		return nil, fmt.Errorf("codegen: generated invalid code: %w", err)
	}
	g.Program = prog
	return prog, nil
}

func startRules(g *ast.Grammar, names []string) ([]int, error) {
	if len(names) == 0 {
		return []int{0}, nil
	}
	var starts []int
	for _, name := range names {
		if name == "*" {
			starts = starts[:0]
			for i := range g.Rules {
				starts = append(starts, i)
			}
			return starts, nil
		}
		i, ok := g.RuleIndex(name)
		if !ok {
			return nil, fmt.Errorf("codegen: unknown start rule %q", name)
		}
		starts = append(starts, i)
	}
	return starts, nil
}

type generatorError struct {
	rule string
	msg  string
}

func (e generatorError) Error() string {
	return fmt.Sprintf("codegen: rule %q: %s", e.rule, e.msg)
}

// generator holds the state of a bytecode compile.
type generator struct {
	g       *ast.Grammar
	opts    Options
	pools   *bytecode.Pools
	scopes  *scope.ScopeTree // labels of the current rule
	rule    string
	visitor *ast.Visitor
}

// genContext is handed down the expression tree.
type genContext struct {
	sp     int         // stack index of the topmost value
	pluck  *[]int      // stack indices of picked elements of the enclosing sequence
	action *ast.Action // action to be called by the enclosing sequence
}

func (gen *generator) failf(format string, args ...interface{}) {
	panic(generatorError{rule: gen.rule, msg: fmt.Sprintf(format, args...)})
}

func (gen *generator) generate(e ast.Expression, c genContext) []int {
	return gen.visitor.Visit(e, c).([]int)
}

// generateScoped generates code for e within a new label scope.
func (gen *generator) generateScoped(e ast.Expression, c genContext) []int {
	var code []int
	gen.scopes.Within(string(e.Kind()), func(*scope.Scope) {
		code = gen.generate(e, c)
	})
	return code
}

func (gen *generator) buildVisitor() *ast.Visitor {
	h := func(f func(ast.Node, genContext) []int) ast.Handler {
		return func(v *ast.Visitor, n ast.Node, args ...any) any {
			return f(n, args[0].(genContext))
		}
	}
	return ast.Build(ast.Handlers{
		ast.KindNamed:       h(gen.named),
		ast.KindChoice:      h(gen.choice),
		ast.KindAction:      h(gen.action),
		ast.KindSequence:    h(gen.sequence),
		ast.KindLabeled:     h(gen.labeled),
		ast.KindText:        h(gen.text),
		ast.KindSimpleAnd:   h(gen.simplePredicate),
		ast.KindSimpleNot:   h(gen.simplePredicate),
		ast.KindOptional:    h(gen.optional),
		ast.KindZeroOrMore:  h(gen.zeroOrMore),
		ast.KindOneOrMore:   h(gen.oneOrMore),
		ast.KindRepeated:    h(gen.repeated),
		ast.KindGroup:       h(gen.group),
		ast.KindSemanticAnd: h(gen.semanticPredicate),
		ast.KindSemanticNot: h(gen.semanticPredicate),
		ast.KindRuleRef:     h(gen.ruleRef),
		ast.KindLiteral:     h(gen.literal),
		ast.KindClass:       h(gen.class),
		ast.KindAny:         h(gen.any),
	})
}

// --- Code building helpers -------------------------------------------------

func seq(parts ...[]int) []int {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	code := make([]int, 0, n)
	for _, p := range parts {
		code = append(code, p...)
	}
	return code
}

func op(o bytecode.Opcode, args ...int) []int {
	return append([]int{int(o)}, args...)
}

// cond builds a conditional instruction with its branches.
func cond(o bytecode.Opcode, args []int, then, els []int) []int {
	return seq(op(o, args...), []int{len(then), len(els)}, then, els)
}

func loop(o bytecode.Opcode, body []int) []int {
	return seq(op(o), []int{len(body)}, body)
}

// call builds a CALL of function fn, popping n values, with the values of
// tags as arguments; sp is the stack index of the topmost value.
func call(fn, n int, tags []*scope.Tag, sp int) []int {
	code := op(bytecode.Call, fn, n, len(tags))
	for _, t := range tags {
		code = append(code, sp-t.Slot)
	}
	return code
}

func names(tags []*scope.Tag) []string {
	ns := make([]string, len(tags))
	for i, t := range tags {
		ns[i] = t.Name()
	}
	return ns
}

// function adds a code block with the labels currently in scope as
// parameters and returns its index and the parameter tags.
func (gen *generator) function(kind bytecode.FunctionKind, code string, loc gopeg.Location) (int, []*scope.Tag) {
	tags := gen.scopes.Current().Visible()
	f := bytecode.Function{Kind: kind, Params: names(tags), Code: code, Location: loc}
	return gen.pools.Function(f), tags
}

// sourceMapped wraps a call of user code at loc into a source range. Within
// the range every parameter label is named with its stack slot.
func (gen *generator) sourceMapped(loc gopeg.Location, tags []*scope.Tag, code []int) []int {
	if !gen.opts.SourceMap {
		return code
	}
	var push, pop []int
	for i, t := range tags {
		push = seq(push, gen.labelPush(t.Slot, t.Name(), t.Location))
		pop = seq(pop, op(bytecode.SourceMapLabelPop, tags[len(tags)-1-i].Slot))
	}
	l := gen.pools.Location(loc)
	return seq(op(bytecode.SourceMapPush, l), push, code, pop, op(bytecode.SourceMapPop))
}

func (gen *generator) labelPush(slot int, label string, loc gopeg.Location) []int {
	return op(bytecode.SourceMapLabelPush, slot, gen.pools.Literal(label), gen.pools.Location(loc))
}

// --- Expressions -----------------------------------------------------------

func (gen *generator) named(n ast.Node, c genContext) []int {
	named := n.(*ast.Named)
	exp := gen.pools.Expectation(bytecode.Expectation{
		Type:        bytecode.ExpectOther,
		Description: named.Name,
	})
	return seq(
		op(bytecode.SilentFailsOn),
		gen.generate(named.Expression, c),
		op(bytecode.SilentFailsOff),
		cond(bytecode.IfError, nil, seq(op(bytecode.Pop), op(bytecode.Fail, exp)), nil),
	)
}

func (gen *generator) choice(n ast.Node, c genContext) []int {
	alts := n.(*ast.Choice).Alternatives
	codes := make([][]int, len(alts))
	for i, alt := range alts {
		codes[i] = gen.generateScoped(alt, genContext{sp: c.sp})
	}
	code := codes[len(codes)-1]
	for i := len(codes) - 2; i >= 0; i-- {
		code = seq(codes[i], cond(bytecode.IfError, nil, seq(op(bytecode.Pop), code), nil))
	}
	return code
}

func (gen *generator) action(n ast.Node, c genContext) []int {
	a := n.(*ast.Action)
	var code []int
	gen.scopes.Within("action", func(*scope.Scope) {
		sq, isSeq := a.Expression.(*ast.Sequence)
		if isSeq && len(sq.Elements) > 0 {
			// the sequence calls the action with its elements on the stack
			code = gen.generate(a.Expression, genContext{sp: c.sp, action: a})
			return
		}
		expr := gen.generate(a.Expression, genContext{sp: c.sp + 1})
		fn, tags := gen.function(bytecode.ActionFunc, a.Code, a.CodeLocation)
		code = seq(
			op(bytecode.PushCurrPos),
			expr,
			cond(bytecode.IfNotError, nil, seq(
				op(bytecode.LoadSavedPos, 1),
				gen.sourceMapped(a.CodeLocation, tags, call(fn, 1, tags, c.sp+2)),
			), nil),
			op(bytecode.Nip),
		)
	})
	return code
}

func (gen *generator) sequence(n ast.Node, c genContext) []int {
	s := n.(*ast.Sequence)
	var pluck []int
	var elements func(i int, cc genContext) []int
	elements = func(i int, cc genContext) []int {
		if i < len(s.Elements) {
			el := gen.generate(s.Elements[i], genContext{sp: cc.sp, pluck: &pluck})
			failure := op(bytecode.Pop)
			if i > 0 {
				failure = op(bytecode.PopN, i+1)
			}
			rest := elements(i+1, genContext{sp: cc.sp + 1, action: cc.action})
			return seq(el, cond(bytecode.IfNotError, nil, rest,
				seq(failure, op(bytecode.PopCurrPos), op(bytecode.PushFailed))))
		}
		return gen.sequenceEnd(cc, len(s.Elements), pluck)
	}
	return seq(op(bytecode.PushCurrPos), elements(0, genContext{sp: c.sp + 1, action: c.action}))
}

// sequenceEnd reduces the matched elements of a sequence to its result.
func (gen *generator) sequenceEnd(cc genContext, count int, pluck []int) []int {
	if len(pluck) > 0 {
		code := op(bytecode.Pluck, count+1, len(pluck))
		for _, slot := range pluck {
			code = append(code, cc.sp-slot)
		}
		return code
	}
	if cc.action != nil {
		fn, tags := gen.function(bytecode.ActionFunc, cc.action.Code, cc.action.CodeLocation)
		return seq(
			op(bytecode.LoadSavedPos, count),
			gen.sourceMapped(cc.action.CodeLocation, tags, call(fn, count+1, tags, cc.sp)),
		)
	}
	return seq(op(bytecode.Wrap, count), op(bytecode.Nip))
}

func (gen *generator) labeled(n ast.Node, c genContext) []int {
	l := n.(*ast.Labeled)
	slot := c.sp + 1
	if l.Pick {
		if c.pluck == nil {
			gen.failf("pick (@) outside of a sequence at %s", l.Location)
		}
		*c.pluck = append(*c.pluck, slot)
	}
	code := gen.generateScoped(l.Expression, genContext{sp: c.sp})
	if l.Label == "" {
		return code
	}
	tag, _ := gen.scopes.Current().DefineTag(l.Label)
	tag.At(l.LabelLocation).Slot = slot
	if gen.opts.SourceMap {
		code = seq(gen.labelPush(slot, l.Label, l.LabelLocation), code, op(bytecode.SourceMapLabelPop, slot))
	}
	return code
}

func (gen *generator) text(n ast.Node, c genContext) []int {
	t := n.(*ast.Prefixed)
	return seq(
		op(bytecode.PushCurrPos),
		gen.generateScoped(t.Expression, genContext{sp: c.sp + 1}),
		cond(bytecode.IfNotError, nil, seq(op(bytecode.Pop), op(bytecode.Text)), op(bytecode.Nip)),
	)
}

func (gen *generator) simplePredicate(n ast.Node, c genContext) []int {
	p := n.(*ast.Prefixed)
	negative := p.Op == ast.KindSimpleNot
	test := bytecode.IfNotError
	onMatch := seq(op(bytecode.Pop), op(bytecode.PopCurrPos), op(bytecode.PushNil))
	onFail := seq(op(bytecode.Pop), op(bytecode.Pop), op(bytecode.PushFailed))
	if negative {
		test = bytecode.IfError
		onMatch = seq(op(bytecode.Pop), op(bytecode.Pop), op(bytecode.PushNil))
		onFail = seq(op(bytecode.Pop), op(bytecode.PopCurrPos), op(bytecode.PushFailed))
	}
	return seq(
		op(bytecode.PushCurrPos),
		op(bytecode.SilentFailsOn),
		gen.generateScoped(p.Expression, genContext{sp: c.sp + 1}),
		op(bytecode.SilentFailsOff),
		cond(test, nil, onMatch, onFail),
	)
}

func (gen *generator) optional(n ast.Node, c genContext) []int {
	o := n.(*ast.Suffixed)
	return seq(
		gen.generateScoped(o.Expression, genContext{sp: c.sp}),
		cond(bytecode.IfError, nil, seq(op(bytecode.Pop), op(bytecode.PushNil)), nil),
	)
}

func (gen *generator) zeroOrMore(n ast.Node, c genContext) []int {
	z := n.(*ast.Suffixed)
	expr := gen.generateScoped(z.Expression, genContext{sp: c.sp + 1})
	return seq(
		op(bytecode.PushEmptyArray),
		expr,
		loop(bytecode.WhileNotError, seq(op(bytecode.Append), expr)),
		op(bytecode.Pop),
	)
}

func (gen *generator) oneOrMore(n ast.Node, c genContext) []int {
	o := n.(*ast.Suffixed)
	expr := gen.generateScoped(o.Expression, genContext{sp: c.sp + 1})
	return seq(
		op(bytecode.PushEmptyArray),
		expr,
		cond(bytecode.IfNotError, nil,
			seq(loop(bytecode.WhileNotError, seq(op(bytecode.Append), expr)), op(bytecode.Pop)),
			seq(op(bytecode.Pop), op(bytecode.Pop), op(bytecode.PushFailed))),
	)
}

// repeated compiles e|min..max, delim|. Stack layout while looping:
// [boundary values of code boundaries…] start-pos result-array element.
func (gen *generator) repeated(n ast.Node, c genContext) []int {
	r := n.(*ast.Repeated)
	sp := c.sp
	var pre []int
	slots := make(map[*ast.Boundary]int)
	fnBoundaries := 0
	for _, b := range []*ast.Boundary{&r.Max, r.Min} {
		if b == nil || b.Type != ast.BoundaryFunction {
			continue
		}
		fn, tags := gen.function(bytecode.BoundaryFunc, b.Code, b.Location)
		pre = seq(pre, op(bytecode.UpdateSavedPos), gen.sourceMapped(b.Location, tags, call(fn, 0, tags, sp)))
		sp++
		slots[b] = sp
		fnBoundaries++
	}
	arr := sp + 2 // stack index of the result array
	// test builds a boundary check against the length of the result array
	test := func(b *ast.Boundary, constOp, dynOp bytecode.Opcode, then, els []int) []int {
		switch b.Type {
		case ast.BoundaryConstant:
			return cond(constOp, []int{b.Value}, then, els)
		case ast.BoundaryVariable:
			tag, _ := gen.scopes.Current().ResolveTag(b.Name)
			if tag == nil || tag.Slot < 0 {
				gen.failf("repetition boundary refers to unknown label %q", b.Name)
			}
			return cond(dynOp, []int{arr - tag.Slot}, then, els)
		}
		return cond(dynOp, []int{arr - slots[b]}, then, els)
	}
	withMax := func(code []int) []int {
		if r.Max.IsUnbounded() {
			return code
		}
		return test(&r.Max, bytecode.IfGe, bytecode.IfGeDynamic, op(bytecode.PushFailed), code)
	}
	first := gen.generateScoped(r.Expression, genContext{sp: arr})
	body := seq(op(bytecode.Append), withMax(first))
	if r.Delimiter != nil {
		delim := gen.generateScoped(r.Delimiter, genContext{sp: arr + 1})
		next := gen.generateScoped(r.Expression, genContext{sp: arr + 1})
		body = seq(op(bytecode.Append), withMax(seq(
			op(bytecode.PushCurrPos),
			delim,
			cond(bytecode.IfNotError, nil,
				seq(op(bytecode.Pop), next, cond(bytecode.IfError, nil,
					seq(op(bytecode.Pop), op(bytecode.PopCurrPos), op(bytecode.PushFailed)),
					op(bytecode.Nip))),
				seq(op(bytecode.Pop), op(bytecode.Pop), op(bytecode.PushFailed))),
		)))
	}
	code := seq(
		pre,
		op(bytecode.PushCurrPos),
		op(bytecode.PushEmptyArray),
		withMax(first),
		loop(bytecode.WhileNotError, body),
		op(bytecode.Pop),
	)
	lo := r.MinBoundary()
	if lo.Type == ast.BoundaryConstant && lo.Value <= 0 {
		code = seq(code, op(bytecode.Nip))
	} else {
		code = seq(code, test(lo, bytecode.IfLt, bytecode.IfLtDynamic,
			seq(op(bytecode.Pop), op(bytecode.PopCurrPos), op(bytecode.PushFailed)),
			op(bytecode.Nip)))
	}
	for i := 0; i < fnBoundaries; i++ {
		code = seq(code, op(bytecode.Nip))
	}
	return code
}

func (gen *generator) group(n ast.Node, c genContext) []int {
	return gen.generateScoped(n.(*ast.Group).Expression, genContext{sp: c.sp})
}

func (gen *generator) semanticPredicate(n ast.Node, c genContext) []int {
	p := n.(*ast.SemanticPredicate)
	fn, tags := gen.function(bytecode.PredicateFunc, p.Code, p.CodeLocation)
	success, failure := op(bytecode.PushNil), op(bytecode.PushFailed)
	if p.Op == ast.KindSemanticNot {
		success, failure = failure, success
	}
	return seq(
		op(bytecode.UpdateSavedPos),
		gen.sourceMapped(p.CodeLocation, tags, call(fn, 0, tags, c.sp)),
		cond(bytecode.If, nil, seq(op(bytecode.Pop), success), seq(op(bytecode.Pop), failure)),
	)
}

func (gen *generator) ruleRef(n ast.Node, c genContext) []int {
	ref := n.(*ast.RuleRef)
	i, ok := gen.g.RuleIndex(ref.Name)
	if !ok {
		gen.failf("reference to undefined rule %q", ref.Name)
	}
	return op(bytecode.Rule, i)
}

func (gen *generator) literal(n ast.Node, c genContext) []int {
	l := n.(*ast.Literal)
	if l.Value == "" {
		return op(bytecode.PushEmptyString)
	}
	lit := gen.pools.Literal(l.Value)
	exp := gen.pools.Expectation(bytecode.Expectation{
		Type:       bytecode.ExpectLiteral,
		Text:       l.Value,
		IgnoreCase: l.IgnoreCase,
	})
	if l.IgnoreCase {
		return cond(bytecode.MatchStringIC, []int{lit},
			op(bytecode.AcceptN, utf8.RuneCountInString(l.Value)), op(bytecode.Fail, exp))
	}
	return cond(bytecode.MatchString, []int{lit}, op(bytecode.AcceptString, lit), op(bytecode.Fail, exp))
}

func (gen *generator) class(n ast.Node, c genContext) []int {
	cl := n.(*ast.Class)
	parts := make([][2]rune, len(cl.Parts))
	for i, p := range cl.Parts {
		parts[i] = [2]rune{p.Low, p.High}
	}
	cls := gen.pools.Class(bytecode.Class{Parts: parts, Inverted: cl.Inverted, IgnoreCase: cl.IgnoreCase})
	exp := gen.pools.Expectation(bytecode.Expectation{
		Type:       bytecode.ExpectClass,
		Parts:      parts,
		Inverted:   cl.Inverted,
		IgnoreCase: cl.IgnoreCase,
	})
	return cond(bytecode.MatchCharClass, []int{cls}, op(bytecode.AcceptN, 1), op(bytecode.Fail, exp))
}

func (gen *generator) any(n ast.Node, c genContext) []int {
	exp := gen.pools.Expectation(bytecode.Expectation{Type: bytecode.ExpectAny})
	return cond(bytecode.MatchAny, nil, op(bytecode.AcceptN, 1), op(bytecode.Fail, exp))
}
