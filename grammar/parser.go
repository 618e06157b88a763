package grammar

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/npillmayer/gopeg"
	"github.com/npillmayer/gopeg/ast"
	"github.com/npillmayer/gopeg/diag"
)

// Error is an error in grammar text.
type Error struct {
	Message  string
	Location gopeg.Location
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Location, e.Message)
}

// Format renders the error with an excerpt of the grammar text.
func (e *Error) Format(sources ...diag.SourceText) string {
	return diag.Excerpt("error", e.Message, &e.Location, sources)
}

// Parse reads grammar text. source identifies the text in locations.
func Parse(text string, source any) (*ast.Grammar, error) {
	p := &parser{
		text:   text,
		source: source,
		lines:  gopeg.NewLineIndex(text, false),
	}
	toks, err := tokenize(text)
	if err != nil {
		var lerr *lexError
		if errors.As(err, &lerr) {
			return nil, p.errorAt(lerr.offset, lerr.offset+1, lerr.msg)
		}
		return nil, err
	}
	p.toks = toks
	g, err := p.grammar()
	if err != nil {
		return nil, err
	}
	tracer().Infof("parsed grammar %v with %d rules", source, len(g.Rules))
	return g, nil
}

// MustParse is like Parse, but panics on error.
func MustParse(text string) *ast.Grammar {
	g, err := Parse(text, nil)
	if err != nil {
		panic(err)
	}
	return g
}

type parser struct {
	text   string
	source any
	lines  *gopeg.LineIndex
	toks   []*Token
	pos    int
	noBar  int // > 0 while parsing a delimiter, where "|" closes the repetition
}

// bailout carries a syntax error up the recursive descent.
type bailout struct {
	err *Error
}

func (p *parser) loc(from, to int) gopeg.Location {
	return gopeg.Location{
		Source: p.source,
		Start:  p.lines.PositionIn(p.text, from),
		End:    p.lines.PositionIn(p.text, to),
	}
}

func (p *parser) tokLoc(t *Token) gopeg.Location {
	return p.loc(t.span.From(), t.span.To())
}

func (p *parser) errorAt(from, to int, msg string) *Error {
	return &Error{Message: msg, Location: p.loc(from, to)}
}

func (p *parser) fail(t *Token, format string, args ...interface{}) {
	panic(bailout{p.errorAt(t.span.From(), t.span.To(), fmt.Sprintf(format, args...))})
}

func (p *parser) peek() *Token {
	return p.toks[p.pos]
}

func (p *parser) peekAt(n int) *Token {
	if p.pos+n < len(p.toks) {
		return p.toks[p.pos+n]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) next() *Token {
	t := p.toks[p.pos]
	if t.typ != EOF {
		p.pos++
	}
	return t
}

func (p *parser) is(typ gopeg.TokType) bool {
	return p.peek().typ == typ
}

func (p *parser) accept(typ gopeg.TokType) (*Token, bool) {
	if p.is(typ) {
		return p.next(), true
	}
	return nil, false
}

func (p *parser) expect(typ gopeg.TokType, what string) *Token {
	t := p.peek()
	if t.typ != typ {
		p.fail(t, "expected %s, found %s", what, describe(t))
	}
	return p.next()
}

func describe(t *Token) string {
	if t.typ == EOF {
		return "end of grammar"
	}
	return fmt.Sprintf("%q", t.lexeme)
}

// prev returns the end offset of the last consumed token.
func (p *parser) prev() int {
	if p.pos == 0 {
		return 0
	}
	return p.toks[p.pos-1].span.To()
}

// span returns the location from offset from to the end of the last token.
func (p *parser) span(from int) gopeg.Location {
	return p.loc(from, p.prev())
}

// --- Grammar ---------------------------------------------------------------

func (p *parser) grammar() (g *ast.Grammar, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			g, err = nil, b.err
		}
	}()
	g = &ast.Grammar{}
	if t, ok := p.accept(TopCode); ok {
		g.TopLevelInitializer = p.codeBlock(t, true)
	}
	if t, ok := p.accept(Code); ok {
		g.Initializer = p.codeBlock(t, false)
	}
	for !p.is(EOF) {
		g.Rules = append(g.Rules, p.rule())
	}
	if len(g.Rules) == 0 {
		p.fail(p.peek(), "grammar has no rules")
	}
	g.Location = p.loc(0, len(p.text))
	return g, nil
}

func (p *parser) codeBlock(t *Token, top bool) *ast.CodeBlock {
	cb := &ast.CodeBlock{TopLevel: top, Code: t.value.(string)}
	cb.Location = p.tokLoc(t)
	inset := 1
	if top {
		inset = 2
	}
	cb.CodeLocation = p.loc(t.span.From()+inset, t.span.To()-inset)
	return cb
}

func (p *parser) rule() *ast.Rule {
	name := p.expect(Ident, "rule name")
	r := &ast.Rule{Name: name.lexeme, NameLocation: p.tokLoc(name)}
	var display *Token
	if t, ok := p.accept(String); ok {
		display = t
	}
	p.expect('=', `"="`)
	expr := p.choice()
	if display != nil {
		n := &ast.Named{Name: p.stringValue(display), Expression: expr}
		n.Location = p.span(display.span.From())
		expr = n
	}
	r.Expression = expr
	p.accept(';')
	r.Location = p.span(name.span.From())
	tracer().Debugf("rule %s = %s", r.Name, ast.String(r.Expression))
	return r
}

// startsRule is true if the upcoming tokens begin a new rule definition.
func (p *parser) startsRule() bool {
	if !p.is(Ident) {
		return false
	}
	switch p.peekAt(1).typ {
	case '=':
		return true
	case String:
		return p.peekAt(2).typ == '='
	}
	return false
}

func (p *parser) choice() ast.Expression {
	from := p.peek().span.From()
	alts := []ast.Expression{p.action()}
	for {
		if _, ok := p.accept('/'); !ok {
			break
		}
		alts = append(alts, p.action())
	}
	if len(alts) == 1 {
		return alts[0]
	}
	c := &ast.Choice{Alternatives: alts}
	c.Location = p.span(from)
	return c
}

func (p *parser) action() ast.Expression {
	from := p.peek().span.From()
	expr := p.sequence()
	t, ok := p.accept(Code)
	if !ok {
		return expr
	}
	a := &ast.Action{Expression: expr, Code: t.value.(string)}
	a.CodeLocation = p.loc(t.span.From()+1, t.span.To()-1)
	a.Location = p.span(from)
	return a
}

// startsElement is true if the next token may begin a sequence element.
func (p *parser) startsElement() bool {
	switch p.peek().typ {
	case Ident:
		return !p.startsRule()
	case String, Class, '.', '(', '@', '$', '&', '!':
		return true
	}
	return false
}

func (p *parser) sequence() ast.Expression {
	from := p.peek().span.From()
	if !p.startsElement() {
		p.fail(p.peek(), "expected expression, found %s", describe(p.peek()))
	}
	var elements []ast.Expression
	for p.startsElement() {
		elements = append(elements, p.labeled())
	}
	if len(elements) == 1 {
		if l, ok := elements[0].(*ast.Labeled); !ok || !l.Pick {
			return elements[0]
		}
	}
	s := &ast.Sequence{Elements: elements}
	s.Location = p.span(from)
	return s
}

func (p *parser) labeled() ast.Expression {
	from := p.peek().span.From()
	pick := false
	if _, ok := p.accept('@'); ok {
		pick = true
	}
	if p.is(Ident) && p.peekAt(1).typ == ':' {
		name := p.next()
		p.next()
		l := &ast.Labeled{Label: name.lexeme, LabelLocation: p.tokLoc(name), Pick: pick}
		l.Expression = p.prefixed()
		l.Location = p.span(from)
		return l
	}
	expr := p.prefixed()
	if !pick {
		return expr
	}
	l := &ast.Labeled{Pick: true, Expression: expr}
	l.Location = p.span(from)
	return l
}

func (p *parser) prefixed() ast.Expression {
	t := p.peek()
	from := t.span.From()
	var op ast.Kind
	switch t.typ {
	case '$':
		op = ast.KindText
	case '&':
		op = ast.KindSimpleAnd
	case '!':
		op = ast.KindSimpleNot
	default:
		return p.suffixed()
	}
	p.next()
	if code, ok := p.accept(Code); ok {
		kind := ast.KindSemanticAnd
		switch op {
		case ast.KindSimpleNot:
			kind = ast.KindSemanticNot
		case ast.KindText:
			p.fail(code, "code block is not allowed after $")
		}
		codeLoc := p.loc(code.span.From()+1, code.span.To()-1)
		return ast.NewSemanticPredicate(kind, code.value.(string), codeLoc, p.span(from))
	}
	expr := p.suffixed()
	return ast.NewPrefixed(op, expr, p.span(from))
}

func (p *parser) suffixed() ast.Expression {
	from := p.peek().span.From()
	expr := p.primary()
	switch p.peek().typ {
	case '?':
		p.next()
		return ast.NewSuffixed(ast.KindOptional, expr, p.span(from))
	case '*':
		p.next()
		return ast.NewSuffixed(ast.KindZeroOrMore, expr, p.span(from))
	case '+':
		p.next()
		return ast.NewSuffixed(ast.KindOneOrMore, expr, p.span(from))
	case '|':
		if p.noBar == 0 {
			return p.repeated(expr, from)
		}
	}
	return expr
}

// repeated parses `|n|`, `|min..max|` and `|min..max, delimiter|`. Either
// boundary of a range may be omitted.
func (p *parser) repeated(expr ast.Expression, from int) ast.Expression {
	p.expect('|', `"|"`)
	r := &ast.Repeated{Expression: expr}
	var first *ast.Boundary
	if !p.is(DotDot) {
		first = p.boundary()
	}
	if _, ok := p.accept(DotDot); ok {
		r.Min = first
		if r.Min == nil {
			r.Min = &ast.Boundary{Type: ast.BoundaryConstant, Value: 0}
		}
		if p.is(',') || p.is('|') {
			r.Max = ast.Boundary{Type: ast.BoundaryConstant, Value: ast.Unbounded}
		} else {
			r.Max = *p.boundary()
		}
	} else {
		if first == nil {
			p.fail(p.peek(), "expected repetition count")
		}
		r.Max = *first
	}
	if _, ok := p.accept(','); ok {
		p.noBar++
		r.Delimiter = p.choice()
		p.noBar--
	}
	p.expect('|', `"|"`)
	r.Location = p.span(from)
	return r
}

func (p *parser) boundary() *ast.Boundary {
	t := p.next()
	b := &ast.Boundary{Location: p.tokLoc(t)}
	switch t.typ {
	case Int:
		n, err := strconv.Atoi(t.lexeme)
		if err != nil {
			p.fail(t, "invalid repetition count %s", t.lexeme)
		}
		b.Type, b.Value = ast.BoundaryConstant, n
	case Ident:
		b.Type, b.Name = ast.BoundaryVariable, t.lexeme
	case Code:
		b.Type, b.Code = ast.BoundaryFunction, t.value.(string)
		b.Location = p.loc(t.span.From()+1, t.span.To()-1)
	default:
		p.fail(t, "expected repetition boundary, found %s", describe(t))
	}
	return b
}

func (p *parser) primary() ast.Expression {
	t := p.next()
	loc := p.tokLoc(t)
	switch t.typ {
	case String:
		l := &ast.Literal{Value: p.stringValue(t), IgnoreCase: p.ignoreCase(t)}
		l.Location = p.span(t.span.From())
		return l
	case Class:
		c := p.class(t)
		c.IgnoreCase = p.ignoreCase(t)
		c.Location = p.span(t.span.From())
		return c
	case '.':
		a := &ast.Any{}
		a.Location = loc
		return a
	case Ident:
		ref := &ast.RuleRef{Name: t.lexeme}
		ref.Location = loc
		return ref
	case '(':
		noBar := p.noBar
		p.noBar = 0
		expr := p.choice()
		p.noBar = noBar
		p.expect(')', `")"`)
		g := &ast.Group{Expression: expr}
		g.Location = p.span(t.span.From())
		return g
	}
	p.fail(t, "expected expression, found %s", describe(t))
	return nil
}

// ignoreCase consumes an `i` directly following a literal or class.
func (p *parser) ignoreCase(t *Token) bool {
	next := p.peek()
	if next.typ == Ident && next.lexeme == "i" && next.span.From() == t.span.To() {
		p.next()
		return true
	}
	return false
}

func (p *parser) stringValue(t *Token) string {
	s, err := unquote(t.lexeme)
	if err != nil {
		p.fail(t, "invalid string literal: %v", err)
	}
	return s
}

func (p *parser) class(t *Token) *ast.Class {
	c, err := parseClass(t.lexeme)
	if err != nil {
		p.fail(t, "invalid character class: %v", err)
	}
	return c
}
