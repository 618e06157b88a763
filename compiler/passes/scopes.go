package passes

import (
	"github.com/npillmayer/gopeg/ast"
	"github.com/npillmayer/gopeg/scope"
)

// labelWalker traverses rule bodies and keeps label scopes the same way the
// bytecode generator does: sequences bind labels in the current scope,
// every other compound expression opens a new scope for its children, and
// a label is not visible within its own expression.
type labelWalker struct {
	scopes  *scope.ScopeTree
	visitor *ast.Visitor
	// node is called for every expression before its children are visited.
	node func(n ast.Node, sc *scope.Scope)
	// label is called for a label before it is bound. It returns false to
	// suppress binding.
	label func(l *ast.Labeled, sc *scope.Scope) bool
}

func newLabelWalker() *labelWalker {
	w := &labelWalker{}
	handlers := ast.Handlers{}
	for _, k := range expressionKinds {
		handlers[k] = w.visit
	}
	w.visitor = ast.Build(handlers)
	return w
}

// walk traverses a rule with a fresh scope tree.
func (w *labelWalker) walk(r *ast.Rule) {
	w.scopes = scope.NewScopeTree(r.Name)
	w.visitor.Visit(r.Expression)
}

func (w *labelWalker) scoped(e ast.Expression) {
	if e == nil {
		return
	}
	w.scopes.Within(string(e.Kind()), func(*scope.Scope) {
		w.visitor.Visit(e)
	})
}

func (w *labelWalker) visit(v *ast.Visitor, n ast.Node, args ...any) any {
	if w.node != nil {
		w.node(n, w.scopes.Current())
	}
	switch n := n.(type) {
	case *ast.Sequence:
		for _, el := range n.Elements {
			v.Visit(el)
		}
	case *ast.Named:
		v.Visit(n.Expression)
	case *ast.Labeled:
		w.scoped(n.Expression)
		if n.Label == "" {
			break
		}
		sc := w.scopes.Current()
		if w.label == nil || w.label(n, sc) {
			tag, _ := sc.DefineTag(n.Label)
			tag.At(n.LabelLocation)
		}
	case *ast.Action:
		w.scopes.Within("action", func(*scope.Scope) {
			v.Visit(n.Expression)
		})
	default:
		for _, ch := range ast.Children(n) {
			w.scoped(ch.(ast.Expression))
		}
	}
	return nil
}
