package passes

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/npillmayer/gopeg/ast"
	"github.com/npillmayer/gopeg/diag"
	"github.com/npillmayer/gopeg/scope"
	"golang.org/x/exp/slices"
)

// ReportUndefinedRules reports references to rules which do not exist. If
// a rule with a similar name exists, a note suggests it.
func ReportUndefinedRules(g *ast.Grammar, cfg *Config, sink *diag.Sink) error {
	names := g.RuleNames()
	forAllRules(g, func(r *ast.Rule) {
		ast.Walk(r, func(n ast.Node) bool {
			ref, ok := n.(*ast.RuleRef)
			if !ok {
				return true
			}
			if _, found := g.RuleIndex(ref.Name); found {
				return true
			}
			rep := sink.Report(diag.SevError, diag.StageCheck,
				fmt.Sprintf("Rule %q is not defined", ref.Name), locp(ref.Location))
			if best := closest(ref.Name, names); best != "" {
				rep.WithNote(g.Rule(best).NameLocation, fmt.Sprintf("did you mean %q?", best))
			}
			rep.Emit()
			return true
		})
	})
	return nil
}

// closest finds the name with the smallest edit distance to name, if the
// distance is small compared to the length of name.
func closest(name string, names []string) string {
	best, dist := "", len(name)/3+2
	for _, n := range names {
		d := levenshtein.ComputeDistance(strings.ToLower(name), strings.ToLower(n))
		if d < dist {
			best, dist = n, d
		}
	}
	return best
}

// ReportDuplicateRules reports rules defined more than once.
func ReportDuplicateRules(g *ast.Grammar, cfg *Config, sink *diag.Sink) error {
	first := make(map[string]*ast.Rule)
	forAllRules(g, func(r *ast.Rule) {
		if orig, dup := first[r.Name]; dup {
			sink.Report(diag.SevError, diag.StageCheck,
				fmt.Sprintf("Rule %q is already defined", r.Name), locp(r.NameLocation)).
				WithNote(orig.NameLocation, "original rule location").
				Emit()
			return
		}
		first[r.Name] = r
	})
	return nil
}

// ReportDuplicateLabels reports labels bound twice within the same scope.
// Labels of outer scopes may be shadowed.
func ReportDuplicateLabels(g *ast.Grammar, cfg *Config, sink *diag.Sink) error {
	w := newLabelWalker()
	w.label = func(l *ast.Labeled, sc *scope.Scope) bool {
		if orig := sc.ResolveLocal(l.Label); orig != nil {
			sink.Report(diag.SevError, diag.StageCheck,
				fmt.Sprintf("Label %q is already defined", l.Label), locp(l.LabelLocation)).
				WithNote(orig.Location, "original label location").
				Emit()
			return false
		}
		return true
	}
	forAllRules(g, w.walk)
	return nil
}

// ReportReservedWords reports labels which collide with reserved words.
func ReportReservedWords(g *ast.Grammar, cfg *Config, sink *diag.Sink) error {
	reserved := cfg.reservedWords()
	forAllRules(g, func(r *ast.Rule) {
		ast.Walk(r, func(n ast.Node) bool {
			if l, ok := n.(*ast.Labeled); ok && l.Label != "" && slices.Contains(reserved, l.Label) {
				sink.Error(diag.StageCheck,
					fmt.Sprintf("Label %q is a reserved word", l.Label), locp(l.LabelLocation))
			}
			return true
		})
	})
	return nil
}

// ReportInvalidRepeated reports repetitions with boundaries which can never
// be satisfied, and boundaries referring to labels not in scope.
func ReportInvalidRepeated(g *ast.Grammar, cfg *Config, sink *diag.Sink) error {
	w := newLabelWalker()
	w.node = func(n ast.Node, sc *scope.Scope) {
		r, ok := n.(*ast.Repeated)
		if !ok {
			return
		}
		for _, b := range []*ast.Boundary{r.Min, &r.Max} {
			if b == nil {
				continue
			}
			switch b.Type {
			case ast.BoundaryVariable:
				if tag, _ := sc.ResolveTag(b.Name); tag == nil {
					sink.Error(diag.StageCheck,
						fmt.Sprintf("Label %q used as repetition boundary is not defined", b.Name),
						locp(b.Location))
				}
			case ast.BoundaryFunction:
				if strings.TrimSpace(b.Code) == "" {
					sink.Error(diag.StageCheck, "Repetition boundary has empty code", locp(b.Location))
				}
			}
		}
		lo := r.MinBoundary()
		if r.Max.Type != ast.BoundaryConstant {
			return
		}
		if r.Max.Value == 0 {
			sink.Error(diag.StageCheck,
				"The maximum count of repetitions of the rule must be > 0", locp(r.Location))
		} else if lo.Type == ast.BoundaryConstant && !r.Max.IsUnbounded() && lo.Value > r.Max.Value {
			sink.Error(diag.StageCheck,
				fmt.Sprintf("The maximum count of repetitions of the rule must be >= %d", lo.Value),
				locp(r.Location))
		}
	}
	forAllRules(g, w.walk)
	return nil
}

// ReportIncorrectPlucking reports picks (@) which cannot be honoured: in a
// sequence with an action, whose result is the action's, and on semantic
// predicates, which have no value.
func ReportIncorrectPlucking(g *ast.Grammar, cfg *Config, sink *diag.Sink) error {
	forAllRules(g, func(r *ast.Rule) {
		ast.Walk(r, func(n ast.Node) bool {
			switch n := n.(type) {
			case *ast.Action:
				if sq, ok := n.Expression.(*ast.Sequence); ok {
					for _, el := range sq.Elements {
						if l, ok := el.(*ast.Labeled); ok && l.Pick {
							sink.Report(diag.SevError, diag.StageCheck,
								`"@" cannot be used with an action block`, locp(l.Location)).
								WithNote(n.CodeLocation, "action block location").
								Emit()
						}
					}
				}
			case *ast.Labeled:
				if _, ok := n.Expression.(*ast.SemanticPredicate); ok && n.Pick {
					sink.Error(diag.StageCheck,
						`"@" cannot be used on a semantic predicate`, locp(n.Location))
				}
			}
			return true
		})
	})
	return nil
}
