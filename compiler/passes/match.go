package passes

import (
	"fmt"

	"github.com/npillmayer/gopeg/ast"
	"github.com/npillmayer/gopeg/diag"
)

// maxInferenceRounds bounds the fixpoint iteration per rule.
const maxInferenceRounds = 6

// InferenceMatchResult classifies every node of the grammar as always,
// sometimes or never matching, storing the result with the node.
func InferenceMatchResult(g *ast.Grammar, cfg *Config, sink *diag.Sink) error {
	inf := &inference{g: g, sink: sink}
	inf.visitor = ast.Build(ast.Handlers{
		ast.KindRule:        inf.rule,
		ast.KindNamed:       inf.expression,
		ast.KindChoice:      inf.choice,
		ast.KindAction:      inf.expression,
		ast.KindSequence:    inf.sequence,
		ast.KindLabeled:     inf.expression,
		ast.KindText:        inf.expression,
		ast.KindSimpleAnd:   inf.expression,
		ast.KindSimpleNot:   inf.simpleNot,
		ast.KindOptional:    inf.always,
		ast.KindZeroOrMore:  inf.always,
		ast.KindOneOrMore:   inf.expression,
		ast.KindRepeated:    inf.repeated,
		ast.KindGroup:       inf.expression,
		ast.KindSemanticAnd: inf.sometimes,
		ast.KindSemanticNot: inf.sometimes,
		ast.KindRuleRef:     inf.ruleRef,
		ast.KindLiteral:     inf.literal,
		ast.KindClass:       inf.class,
		ast.KindAny:         inf.sometimes,
	})
	forAllRules(g, func(r *ast.Rule) {
		inf.infer(r)
	})
	return nil
}

type inference struct {
	g       *ast.Grammar
	sink    *diag.Sink
	visitor *ast.Visitor
}

func (inf *inference) infer(n ast.Node) ast.MatchResult {
	return inf.visitor.Visit(n).(ast.MatchResult)
}

func (inf *inference) set(n ast.Node, m ast.MatchResult) any {
	n.SetMatch(m)
	return m
}

func (inf *inference) rule(v *ast.Visitor, n ast.Node, args ...any) any {
	r := n.(*ast.Rule)
	if m, ok := r.Match(); ok {
		return m
	}
	// recursive references see a preliminary "sometimes"
	r.SetMatch(ast.SometimesMatch)
	for count := 1; ; count++ {
		old, _ := r.Match()
		m := inf.infer(r.Expression)
		r.SetMatch(m)
		if m == old {
			return m
		}
		if count > maxInferenceRounds {
			inf.sink.Error(diag.StageCheck,
				fmt.Sprintf("Infinity cycle detected when trying to evaluate node match result of rule %q", r.Name),
				locp(r.Location))
			return m
		}
	}
}

func (inf *inference) expression(v *ast.Visitor, n ast.Node, args ...any) any {
	return inf.set(n, inf.infer(ast.Inner(n.(ast.Expression))))
}

func (inf *inference) always(v *ast.Visitor, n ast.Node, args ...any) any {
	inf.infer(ast.Inner(n.(ast.Expression)))
	return inf.set(n, ast.AlwaysMatch)
}

func (inf *inference) sometimes(v *ast.Visitor, n ast.Node, args ...any) any {
	return inf.set(n, ast.SometimesMatch)
}

func (inf *inference) simpleNot(v *ast.Visitor, n ast.Node, args ...any) any {
	return inf.set(n, -inf.infer(ast.Inner(n.(ast.Expression))))
}

// elements combines the results of choice alternatives or sequence
// elements. A choice always matches if one of its alternatives does.
func (inf *inference) elements(es []ast.Expression, forChoice bool) ast.MatchResult {
	always, never := 0, 0
	for _, e := range es {
		switch inf.infer(e) {
		case ast.AlwaysMatch:
			always++
		case ast.NeverMatch:
			never++
		}
	}
	if always == len(es) || forChoice && always > 0 {
		return ast.AlwaysMatch
	}
	if forChoice {
		if never == len(es) {
			return ast.NeverMatch
		}
		return ast.SometimesMatch
	}
	if never > 0 {
		return ast.NeverMatch
	}
	return ast.SometimesMatch
}

func (inf *inference) choice(v *ast.Visitor, n ast.Node, args ...any) any {
	return inf.set(n, inf.elements(n.(*ast.Choice).Alternatives, true))
}

func (inf *inference) sequence(v *ast.Visitor, n ast.Node, args ...any) any {
	return inf.set(n, inf.elements(n.(*ast.Sequence).Elements, false))
}

func (inf *inference) repeated(v *ast.Visitor, n ast.Node, args ...any) any {
	r := n.(*ast.Repeated)
	match := inf.infer(r.Expression)
	dmatch := ast.NeverMatch
	if r.Delimiter != nil {
		dmatch = inf.infer(r.Delimiter)
	}
	lo := r.MinBoundary()
	if lo.Type != ast.BoundaryConstant || r.Max.Type != ast.BoundaryConstant {
		return inf.set(n, ast.SometimesMatch)
	}
	if r.Max.Value == 0 || !r.Max.IsUnbounded() && lo.Value > r.Max.Value {
		return inf.set(n, ast.NeverMatch)
	}
	delimited := r.Delimiter != nil && lo.Value >= 2
	switch {
	case match == ast.NeverMatch:
		if lo.Value == 0 {
			return inf.set(n, ast.AlwaysMatch)
		}
		return inf.set(n, ast.NeverMatch)
	case match == ast.AlwaysMatch:
		if delimited {
			return inf.set(n, dmatch)
		}
		return inf.set(n, ast.AlwaysMatch)
	case delimited:
		if dmatch == ast.NeverMatch {
			return inf.set(n, ast.NeverMatch)
		}
		return inf.set(n, ast.SometimesMatch)
	case lo.Value == 0:
		return inf.set(n, ast.AlwaysMatch)
	}
	return inf.set(n, ast.SometimesMatch)
}

func (inf *inference) ruleRef(v *ast.Visitor, n ast.Node, args ...any) any {
	r := inf.g.Rule(n.(*ast.RuleRef).Name)
	if r == nil {
		return inf.set(n, ast.SometimesMatch)
	}
	return inf.set(n, inf.infer(r))
}

func (inf *inference) literal(v *ast.Visitor, n ast.Node, args ...any) any {
	if n.(*ast.Literal).Value == "" {
		return inf.set(n, ast.AlwaysMatch)
	}
	return inf.set(n, ast.SometimesMatch)
}

func (inf *inference) class(v *ast.Visitor, n ast.Node, args ...any) any {
	if c := n.(*ast.Class); len(c.Parts) == 0 && !c.Inverted {
		return inf.set(n, ast.NeverMatch)
	}
	return inf.set(n, ast.SometimesMatch)
}

// ReportUselessPredicates warns about predicates whose outcome is known in
// advance, and about optional parts which can never match.
func ReportUselessPredicates(g *ast.Grammar, cfg *Config, sink *diag.Sink) error {
	forAllRules(g, func(r *ast.Rule) {
		ast.Walk(r, func(n ast.Node) bool {
			var inner ast.Expression
			switch n := n.(type) {
			case *ast.Prefixed:
				if n.Op == ast.KindText {
					return true
				}
				inner = n.Expression
			case *ast.Suffixed:
				if n.Op == ast.KindOneOrMore {
					return true
				}
				inner = n.Expression
			default:
				return true
			}
			m, ok := inner.Match()
			if !ok || m == ast.SometimesMatch {
				return true
			}
			switch n.Kind() {
			case ast.KindSimpleAnd, ast.KindSimpleNot:
				outcome := "succeeds"
				if (m == ast.AlwaysMatch) != (n.Kind() == ast.KindSimpleAnd) {
					outcome = "fails"
				}
				sink.Warning(diag.StageCheck,
					fmt.Sprintf("Predicate always %s because its expression %s matches", outcome, m),
					locp(n.Loc()))
			default:
				if m == ast.NeverMatch {
					sink.Warning(diag.StageCheck,
						fmt.Sprintf("Expression of %s never matches", describe(n.Kind())),
						locp(n.Loc()))
				}
			}
			return true
		})
	})
	return nil
}

func describe(k ast.Kind) string {
	switch k {
	case ast.KindOptional:
		return "optional"
	case ast.KindZeroOrMore:
		return "repetition"
	}
	return string(k)
}
