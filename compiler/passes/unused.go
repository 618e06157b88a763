package passes

import (
	"fmt"

	"github.com/emirpasic/gods/lists/arraylist"
	"github.com/emirpasic/gods/sets/treeset"
	"github.com/npillmayer/gopeg/ast"
	"github.com/npillmayer/gopeg/diag"
)

// reachable returns the names of all rules reachable from the start rules.
func reachable(g *ast.Grammar, cfg *Config) *treeset.Set {
	seen := treeset.NewWithStringComparator()
	work := arraylist.New()
	for _, r := range StartRules(g, cfg) {
		work.Add(r)
	}
	for !work.Empty() {
		v, _ := work.Get(work.Size() - 1)
		work.Remove(work.Size() - 1)
		r := v.(*ast.Rule)
		if seen.Contains(r.Name) {
			continue
		}
		seen.Add(r.Name)
		ast.Walk(r, func(n ast.Node) bool {
			if ref, ok := n.(*ast.RuleRef); ok && !seen.Contains(ref.Name) {
				if target := g.Rule(ref.Name); target != nil {
					work.Add(target)
				}
			}
			return true
		})
	}
	tracer().Debugf("%d of %d rules reachable", seen.Size(), len(g.Rules))
	return seen
}

// ReportUnusedRules warns about rules which cannot be reached from any
// allowed start rule.
func ReportUnusedRules(g *ast.Grammar, cfg *Config, sink *diag.Sink) error {
	used := reachable(g, cfg)
	forAllRules(g, func(r *ast.Rule) {
		if !used.Contains(r.Name) {
			sink.Warning(diag.StageCheck,
				fmt.Sprintf("Rule %q is not referenced", r.Name), locp(r.NameLocation))
		}
	})
	return nil
}

// RemoveUnusedRules deletes unreachable rules if cfg.RemoveUnusedRules is
// set. Every removal is reported as info.
func RemoveUnusedRules(g *ast.Grammar, cfg *Config, sink *diag.Sink) error {
	if cfg == nil || !cfg.RemoveUnusedRules {
		return nil
	}
	used := reachable(g, cfg)
	removed := g.RemoveRules(func(r *ast.Rule) bool {
		return !used.Contains(r.Name)
	})
	for _, r := range removed {
		sink.Info(diag.StageTransform,
			fmt.Sprintf("Removing unused rule %q", r.Name), locp(r.NameLocation))
	}
	return nil
}
