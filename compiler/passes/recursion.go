package passes

import (
	"fmt"
	"strings"

	"github.com/npillmayer/gopeg/ast"
	"github.com/npillmayer/gopeg/diag"
	"golang.org/x/exp/slices"
)

// consumption answers whether expressions consume input whenever they
// succeed. Results for rules are cached; a rule reached again while its
// own body is being analysed counts as not consuming.
type consumption struct {
	g       *ast.Grammar
	rules   map[string]bool
	pending map[string]bool
}

func newConsumption(g *ast.Grammar) *consumption {
	return &consumption{
		g:       g,
		rules:   make(map[string]bool),
		pending: make(map[string]bool),
	}
}

func (c *consumption) always(e ast.Expression) bool {
	switch n := e.(type) {
	case *ast.RuleRef:
		if v, ok := c.rules[n.Name]; ok {
			return v
		}
		r := c.g.Rule(n.Name)
		if r == nil || c.pending[n.Name] {
			return false
		}
		c.pending[n.Name] = true
		v := c.always(r.Expression)
		delete(c.pending, n.Name)
		c.rules[n.Name] = v
		return v
	case *ast.Choice:
		for _, a := range n.Alternatives {
			if !c.always(a) {
				return false
			}
		}
		return true
	case *ast.Sequence:
		for _, el := range n.Elements {
			if c.always(el) {
				return true
			}
		}
		return false
	case *ast.Named, *ast.Action, *ast.Labeled, *ast.Group:
		return c.always(ast.Inner(e))
	case *ast.Prefixed:
		if n.Op == ast.KindText {
			return c.always(n.Expression)
		}
		return false
	case *ast.Suffixed:
		if n.Op == ast.KindOneOrMore {
			return c.always(n.Expression)
		}
		return false
	case *ast.Repeated:
		lo := n.MinBoundary()
		if lo.Type == ast.BoundaryConstant && lo.Value > 0 {
			return c.always(n.Expression)
		}
		return false
	case *ast.SemanticPredicate:
		return false
	case *ast.Literal:
		return n.Value != ""
	case *ast.Class, *ast.Any:
		return true
	}
	return false
}

// ReportInfiniteRecursion reports left recursion: a rule calling itself
// before any input has been consumed. Notes mark each call along the cycle.
func ReportInfiniteRecursion(g *ast.Grammar, cfg *Config, sink *diag.Sink) error {
	cons := newConsumption(g)
	reported := make(map[string]bool)
	var visitedRules []string
	var backtrace []*ast.RuleRef
	var visitor *ast.Visitor
	visitor = ast.Build(ast.Handlers{
		ast.KindRule: func(v *ast.Visitor, n ast.Node, args ...any) any {
			r := n.(*ast.Rule)
			visitedRules = append(visitedRules, r.Name)
			v.Visit(r.Expression)
			visitedRules = visitedRules[:len(visitedRules)-1]
			return nil
		},
		ast.KindSequence: func(v *ast.Visitor, n ast.Node, args ...any) any {
			for _, el := range n.(*ast.Sequence).Elements {
				v.Visit(el)
				if cons.always(el) {
					break
				}
			}
			return nil
		},
		ast.KindRepeated: func(v *ast.Visitor, n ast.Node, args ...any) any {
			r := n.(*ast.Repeated)
			v.Visit(r.Expression)
			// the delimiter runs after the first match; it only starts a
			// cycle if the expression may match without consuming
			if r.Delimiter != nil && !cons.always(r.Expression) {
				v.Visit(r.Delimiter)
			}
			return nil
		},
		ast.KindRuleRef: func(v *ast.Visitor, n ast.Node, args ...any) any {
			ref := n.(*ast.RuleRef)
			backtrace = append(backtrace, ref)
			defer func() { backtrace = backtrace[:len(backtrace)-1] }()
			if i := indexOf(visitedRules, ref.Name); i >= 0 {
				cycle := append(append([]string{}, visitedRules[i:]...), ref.Name)
				// a cycle is found once per rule on it; report it only once
				members := append([]string{}, cycle[:len(cycle)-1]...)
				slices.Sort(members)
				key := strings.Join(members, ",")
				if reported[key] {
					return nil
				}
				reported[key] = true
				rep := sink.Report(diag.SevError, diag.StageCheck,
					fmt.Sprintf("Possible infinite loop when parsing (left recursion: %s)",
						strings.Join(cycle, " -> ")),
					locp(ref.Location))
				for j, step := range backtrace[i:] {
					rep.WithNote(step.Location, fmt.Sprintf("step %d: call of %q without input consumption", j+1, step.Name))
				}
				rep.Emit()
				return nil
			}
			if r := g.Rule(ref.Name); r != nil {
				v.Visit(r)
			}
			return nil
		},
	}, ast.DescendByDefault)
	forAllRules(g, func(r *ast.Rule) {
		visitor.Visit(r)
	})
	return nil
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

// ReportInfiniteRepetition reports repetitions without an upper bound of
// expressions which may succeed without consuming input.
func ReportInfiniteRepetition(g *ast.Grammar, cfg *Config, sink *diag.Sink) error {
	cons := newConsumption(g)
	const msg = "Possible infinite loop when parsing (repetition used with an expression that may not consume any input)"
	forAllRules(g, func(r *ast.Rule) {
		ast.Walk(r, func(n ast.Node) bool {
			switch n := n.(type) {
			case *ast.Suffixed:
				if n.Op != ast.KindOptional && !cons.always(n.Expression) {
					sink.Error(diag.StageCheck, msg, locp(n.Location))
				}
			case *ast.Repeated:
				if !n.Max.IsUnbounded() {
					break
				}
				if n.Delimiter == nil && !cons.always(n.Expression) ||
					n.Delimiter != nil && !cons.always(n.Delimiter) && !cons.always(n.Expression) {
					sink.Error(diag.StageCheck, msg, locp(n.Location))
				}
			}
			return true
		})
	})
	return nil
}
