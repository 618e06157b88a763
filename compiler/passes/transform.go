package passes

import (
	"unicode/utf8"

	"github.com/npillmayer/gopeg/ast"
	"github.com/npillmayer/gopeg/diag"
	"golang.org/x/exp/slices"
)

// RemoveProxyRules replaces references to rules whose body is a single rule
// reference by references to the target. Proxies are removed unless they
// are start rules.
func RemoveProxyRules(g *ast.Grammar, cfg *Config, sink *diag.Sink) error {
	var starts []string
	for _, r := range StartRules(g, cfg) {
		starts = append(starts, r.Name)
	}
	proxies := make(map[*ast.Rule]bool)
	forAllRules(g, func(r *ast.Rule) {
		ref, ok := r.Expression.(*ast.RuleRef)
		if !ok || ref.Name == r.Name {
			return
		}
		tracer().Debugf("rule %s is a proxy for %s", r.Name, ref.Name)
		renameRefs(g, r.Name, ref.Name)
		if !slices.Contains(starts, r.Name) {
			proxies[r] = true
		}
	})
	if len(proxies) > 0 {
		g.RemoveRules(func(r *ast.Rule) bool { return proxies[r] })
	}
	return nil
}

func renameRefs(g *ast.Grammar, from, to string) {
	ast.Walk(g, func(n ast.Node) bool {
		if ref, ok := n.(*ast.RuleRef); ok && ref.Name == from {
			ref.Name = to
		}
		return true
	})
}

// InlineTrivialGroups replaces groups by their inner expression, unless
// removing the group would change label scoping.
func InlineTrivialGroups(g *ast.Grammar, cfg *Config, sink *diag.Sink) error {
	var inline func(e ast.Expression) ast.Expression
	inline = func(e ast.Expression) ast.Expression {
		ast.Replace(e, inline)
		if grp, ok := e.(*ast.Group); ok {
			switch grp.Expression.(type) {
			case *ast.Labeled, *ast.Sequence:
				return e
			}
			return grp.Expression
		}
		return e
	}
	ast.Replace(g, inline)
	return nil
}

// NormalizeNamed collapses nested display names to the outermost one.
func NormalizeNamed(g *ast.Grammar, cfg *Config, sink *diag.Sink) error {
	ast.Walk(g, func(n ast.Node) bool {
		if named, ok := n.(*ast.Named); ok {
			for {
				inner, ok := named.Expression.(*ast.Named)
				if !ok {
					break
				}
				named.Expression = inner.Expression
			}
		}
		return true
	})
	return nil
}

// MergeCharacterClasses merges adjacent alternatives of a choice which
// match a single character into one class. A choice left with a single
// alternative is replaced by it.
func MergeCharacterClasses(g *ast.Grammar, cfg *Config, sink *diag.Sink) error {
	var merge func(e ast.Expression) ast.Expression
	merge = func(e ast.Expression) ast.Expression {
		ast.Replace(e, merge)
		ch, ok := e.(*ast.Choice)
		if !ok {
			return e
		}
		var alts []ast.Expression
		for _, a := range ch.Alternatives {
			if len(alts) > 0 {
				if merged := mergeClasses(alts[len(alts)-1], a); merged != nil {
					alts[len(alts)-1] = merged
					continue
				}
			}
			alts = append(alts, a)
		}
		if len(alts) < len(ch.Alternatives) {
			tracer().Debugf("merged %d choice alternatives into classes",
				len(ch.Alternatives)-len(alts))
		}
		if len(alts) == 1 {
			return alts[0]
		}
		ch.Alternatives = alts
		return ch
	}
	ast.Replace(g, merge)
	return nil
}

// asClass returns a single-character expression as a class, or nil.
func asClass(e ast.Expression) *ast.Class {
	switch n := e.(type) {
	case *ast.Class:
		if n.Inverted {
			return nil
		}
		return n
	case *ast.Literal:
		if utf8.RuneCountInString(n.Value) != 1 {
			return nil
		}
		r, _ := utf8.DecodeRuneInString(n.Value)
		c := &ast.Class{
			Parts:      []ast.ClassPart{{Low: r, High: r}},
			IgnoreCase: n.IgnoreCase,
		}
		c.Location = n.Location
		return c
	}
	return nil
}

func mergeClasses(a, b ast.Expression) *ast.Class {
	ca, cb := asClass(a), asClass(b)
	if ca == nil || cb == nil || ca.IgnoreCase != cb.IgnoreCase {
		return nil
	}
	parts := make([]ast.ClassPart, 0, len(ca.Parts)+len(cb.Parts))
	parts = append(append(parts, ca.Parts...), cb.Parts...)
	merged := &ast.Class{Parts: parts, IgnoreCase: ca.IgnoreCase}
	merged.Location = ca.Location
	merged.Location.End = cb.Location.End
	merged.SetMatch(ast.SometimesMatch)
	return merged
}
