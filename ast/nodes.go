package ast

import (
	"errors"
	"fmt"

	"github.com/npillmayer/gopeg"
	"github.com/npillmayer/gopeg/bytecode"
)

// Kind is the tag of a node variant.
type Kind string

// Node kinds. The string values are part of the wire format of the AST.
const (
	KindGrammar             Kind = "grammar"
	KindTopLevelInitializer Kind = "top_level_initializer"
	KindInitializer         Kind = "initializer"
	KindRule                Kind = "rule"
	KindNamed               Kind = "named"
	KindChoice              Kind = "choice"
	KindAction              Kind = "action"
	KindSequence            Kind = "sequence"
	KindLabeled             Kind = "labeled"
	KindText                Kind = "text"
	KindSimpleAnd           Kind = "simple_and"
	KindSimpleNot           Kind = "simple_not"
	KindOptional            Kind = "optional"
	KindZeroOrMore          Kind = "zero_or_more"
	KindOneOrMore           Kind = "one_or_more"
	KindRepeated            Kind = "repeated"
	KindGroup               Kind = "group"
	KindSemanticAnd         Kind = "semantic_and"
	KindSemanticNot         Kind = "semantic_not"
	KindRuleRef             Kind = "rule_ref"
	KindLiteral             Kind = "literal"
	KindClass               Kind = "class"
	KindAny                 Kind = "any"
)

var knownKinds = map[Kind]bool{
	KindGrammar: true, KindTopLevelInitializer: true, KindInitializer: true,
	KindRule: true, KindNamed: true, KindChoice: true, KindAction: true,
	KindSequence: true, KindLabeled: true, KindText: true, KindSimpleAnd: true,
	KindSimpleNot: true, KindOptional: true, KindZeroOrMore: true,
	KindOneOrMore: true, KindRepeated: true, KindGroup: true,
	KindSemanticAnd: true, KindSemanticNot: true, KindRuleRef: true,
	KindLiteral: true, KindClass: true, KindAny: true,
}

// IsKnown is true for the kinds defined by this package.
func (k Kind) IsKnown() bool {
	return knownKinds[k]
}

// --- Match results ---------------------------------------------------------

// MatchResult is the statically inferred matching behaviour of a node.
type MatchResult int8

const (
	NeverMatch     MatchResult = -1 // node fails for every input
	SometimesMatch MatchResult = 0  // node may succeed or fail
	AlwaysMatch    MatchResult = 1  // node succeeds for every input
)

func (m MatchResult) String() string {
	switch m {
	case NeverMatch:
		return "never"
	case AlwaysMatch:
		return "always"
	}
	return "sometimes"
}

// --- Nodes -----------------------------------------------------------------

// Node is the interface all AST nodes implement.
type Node interface {
	Kind() Kind
	Loc() gopeg.Location
	Match() (MatchResult, bool)
	SetMatch(MatchResult)
}

// Expression is a node which may appear within a rule body.
type Expression interface {
	Node
	isExpression()
}

// Base is embedded into every node type. It carries the source location
// and the inferred match result, if any.
type Base struct {
	Location gopeg.Location
	match    *MatchResult
}

// Loc returns the source location of a node.
func (b *Base) Loc() gopeg.Location {
	return b.Location
}

// Match returns the inferred match result and true, or false if inference
// has not yet run for this node.
func (b *Base) Match() (MatchResult, bool) {
	if b.match == nil {
		return SometimesMatch, false
	}
	return *b.match, true
}

// SetMatch sets the inferred match result.
func (b *Base) SetMatch(m MatchResult) {
	b.match = &m
}

// Grammar is the root of an AST.
type Grammar struct {
	Base
	TopLevelInitializer *CodeBlock
	Initializer         *CodeBlock
	Rules               []*Rule
	Program             *bytecode.Program // set by the bytecode generator
	index               map[string]int
}

// CodeBlock is an initializer code block.
type CodeBlock struct {
	Base
	TopLevel     bool
	Code         string
	CodeLocation gopeg.Location
}

// Rule is a named grammar rule.
type Rule struct {
	Base
	Name         string
	NameLocation gopeg.Location
	Expression   Expression
}

// Named wraps an expression with a display name for error messages.
type Named struct {
	Base
	Name       string
	Expression Expression
}

// Choice is an ordered choice between alternatives.
type Choice struct {
	Base
	Alternatives []Expression
}

// Action is an expression followed by a code block.
type Action struct {
	Base
	Expression   Expression
	Code         string
	CodeLocation gopeg.Location
}

// Sequence is a list of elements which have to match one after another.
type Sequence struct {
	Base
	Elements []Expression
}

// Labeled binds the result of an expression to a label. Label is empty for
// an unnamed pick (`@e`).
type Labeled struct {
	Base
	Label         string
	LabelLocation gopeg.Location
	Pick          bool
	Expression    Expression
}

// Prefixed is one of text, simple_and and simple_not.
type Prefixed struct {
	Base
	Op         Kind
	Expression Expression
}

// Suffixed is one of optional, zero_or_more and one_or_more.
type Suffixed struct {
	Base
	Op         Kind
	Expression Expression
}

// BoundaryType tells how the value of a repetition boundary is determined.
type BoundaryType string

const (
	BoundaryConstant BoundaryType = "constant" // literal count
	BoundaryVariable BoundaryType = "variable" // value of a label
	BoundaryFunction BoundaryType = "function" // result of a code block
)

// Unbounded is the Value of a constant maximum without limit.
const Unbounded = -1

// Boundary is the minimum or maximum of a repeated expression.
type Boundary struct {
	Type     BoundaryType
	Value    int // for constants; Unbounded for open maximum
	Name     string
	Code     string
	Location gopeg.Location
}

// IsUnbounded is true for an open constant maximum.
func (b *Boundary) IsUnbounded() bool {
	return b.Type == BoundaryConstant && b.Value == Unbounded
}

func (b *Boundary) String() string {
	switch b.Type {
	case BoundaryVariable:
		return b.Name
	case BoundaryFunction:
		return "{" + b.Code + "}"
	}
	if b.Value == Unbounded {
		return ""
	}
	return fmt.Sprintf("%d", b.Value)
}

// Repeated is a repetition with explicit boundaries and an optional delimiter.
// A nil Min means "same as Max" (exact count).
type Repeated struct {
	Base
	Min        *Boundary
	Max        Boundary
	Delimiter  Expression
	Expression Expression
}

// MinBoundary returns the effective minimum.
func (r *Repeated) MinBoundary() *Boundary {
	if r.Min == nil {
		return &r.Max
	}
	return r.Min
}

// Group is a parenthesized expression, opening a new label scope.
type Group struct {
	Base
	Expression Expression
}

// SemanticPredicate is one of semantic_and and semantic_not.
type SemanticPredicate struct {
	Base
	Op           Kind
	Code         string
	CodeLocation gopeg.Location
}

// RuleRef references a rule by name.
type RuleRef struct {
	Base
	Name string
}

// Literal matches a fixed string.
type Literal struct {
	Base
	Value      string
	IgnoreCase bool
}

// ClassPart is a single character (Low == High) or a character range.
type ClassPart struct {
	Low, High rune
}

// IsSingle is true if a part denotes a single character.
func (p ClassPart) IsSingle() bool {
	return p.Low == p.High
}

// Class matches a single character out of a set.
type Class struct {
	Base
	Parts      []ClassPart
	Inverted   bool
	IgnoreCase bool
}

// Any matches one input unit.
type Any struct {
	Base
}

// --- Kinds -----------------------------------------------------------------

func (g *Grammar) Kind() Kind { return KindGrammar }
func (c *CodeBlock) Kind() Kind {
	if c.TopLevel {
		return KindTopLevelInitializer
	}
	return KindInitializer
}
func (r *Rule) Kind() Kind              { return KindRule }
func (n *Named) Kind() Kind             { return KindNamed }
func (c *Choice) Kind() Kind            { return KindChoice }
func (a *Action) Kind() Kind            { return KindAction }
func (s *Sequence) Kind() Kind          { return KindSequence }
func (l *Labeled) Kind() Kind           { return KindLabeled }
func (p *Prefixed) Kind() Kind          { return p.Op }
func (s *Suffixed) Kind() Kind          { return s.Op }
func (r *Repeated) Kind() Kind          { return KindRepeated }
func (g *Group) Kind() Kind             { return KindGroup }
func (p *SemanticPredicate) Kind() Kind { return p.Op }
func (r *RuleRef) Kind() Kind           { return KindRuleRef }
func (l *Literal) Kind() Kind           { return KindLiteral }
func (c *Class) Kind() Kind             { return KindClass }
func (a *Any) Kind() Kind               { return KindAny }

func (*Named) isExpression()             {}
func (*Choice) isExpression()            {}
func (*Action) isExpression()            {}
func (*Sequence) isExpression()          {}
func (*Labeled) isExpression()           {}
func (*Prefixed) isExpression()          {}
func (*Suffixed) isExpression()          {}
func (*Repeated) isExpression()          {}
func (*Group) isExpression()             {}
func (*SemanticPredicate) isExpression() {}
func (*RuleRef) isExpression()           {}
func (*Literal) isExpression()           {}
func (*Class) isExpression()             {}
func (*Any) isExpression()               {}

// --- Constructors ----------------------------------------------------------

// NewPrefixed creates a text, simple_and or simple_not node.
func NewPrefixed(op Kind, e Expression, loc gopeg.Location) *Prefixed {
	if op != KindText && op != KindSimpleAnd && op != KindSimpleNot {
		panic(fmt.Sprintf("not a prefix operator: %s", op))
	}
	return &Prefixed{Base: Base{Location: loc}, Op: op, Expression: e}
}

// NewSuffixed creates an optional, zero_or_more or one_or_more node.
func NewSuffixed(op Kind, e Expression, loc gopeg.Location) *Suffixed {
	if op != KindOptional && op != KindZeroOrMore && op != KindOneOrMore {
		panic(fmt.Sprintf("not a suffix operator: %s", op))
	}
	return &Suffixed{Base: Base{Location: loc}, Op: op, Expression: e}
}

// NewSemanticPredicate creates a semantic_and or semantic_not node.
func NewSemanticPredicate(op Kind, code string, codeLoc, loc gopeg.Location) *SemanticPredicate {
	if op != KindSemanticAnd && op != KindSemanticNot {
		panic(fmt.Sprintf("not a semantic predicate: %s", op))
	}
	return &SemanticPredicate{Base: Base{Location: loc}, Op: op, Code: code, CodeLocation: codeLoc}
}

// --- Grammar helpers -------------------------------------------------------

// ErrNotGenerated is returned when side tables are read before generation.
var ErrNotGenerated = errors.New("grammar tables not generated yet")

// Tables returns the generated program with its constant tables. It fails
// if the bytecode generator did not run yet.
func (g *Grammar) Tables() (*bytecode.Program, error) {
	if g.Program == nil {
		return nil, ErrNotGenerated
	}
	return g.Program, nil
}

// RuleIndex returns the slot of a rule in g.Rules. The index is built on
// first use; passes which change the rule list call Reindex.
func (g *Grammar) RuleIndex(name string) (int, bool) {
	if g.index == nil {
		g.Reindex()
	}
	i, ok := g.index[name]
	return i, ok
}

// Rule finds a rule by name, or returns nil.
func (g *Grammar) Rule(name string) *Rule {
	if i, ok := g.RuleIndex(name); ok {
		return g.Rules[i]
	}
	return nil
}

// Reindex rebuilds the name → slot index. With duplicate rule names the
// first definition wins.
func (g *Grammar) Reindex() {
	g.index = make(map[string]int, len(g.Rules))
	for i, r := range g.Rules {
		if _, dup := g.index[r.Name]; !dup {
			g.index[r.Name] = i
		}
	}
}

// RemoveRules deletes all rules for which drop returns true and rebuilds
// the index. It returns the removed rules.
func (g *Grammar) RemoveRules(drop func(*Rule) bool) []*Rule {
	var kept, removed []*Rule
	for _, r := range g.Rules {
		if drop(r) {
			removed = append(removed, r)
		} else {
			kept = append(kept, r)
		}
	}
	g.Rules = kept
	g.Reindex()
	if len(removed) > 0 {
		tracer().Debugf("removed %d rules", len(removed))
	}
	return removed
}

// RuleNames returns the names of all rules in declaration order.
func (g *Grammar) RuleNames() []string {
	names := make([]string, len(g.Rules))
	for i, r := range g.Rules {
		names[i] = r.Name
	}
	return names
}
