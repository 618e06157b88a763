package ast

import "fmt"

// Handler is a visit function for a single kind of node. It receives the
// visitor, so it is able to recurse into the children of the node, and any
// extra arguments given to Visit.
type Handler func(v *Visitor, node Node, args ...any) any

// Handlers maps node kinds to handlers.
type Handlers map[Kind]Handler

// UnknownKindError is raised (as a panic) if a visitor is invoked on a node
// with a kind tag it does not know.
type UnknownKindError struct {
	Kind Kind
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("visitor: unknown node kind %q", string(e.Kind))
}

// Visitor dispatches nodes to handlers by kind.
//
// Kinds without a handler are visited with a default handler. By default
// this is a no-op, i.e. no traversal happens below such nodes. With option
// DescendByDefault, the default handler visits all children instead.
type Visitor struct {
	handlers Handlers
	fallback Handler
}

// Option configures a visitor.
type Option func(*Visitor)

// DescendByDefault lets nodes without a handler be traversed, forwarding
// the extra arguments to the children.
func DescendByDefault(v *Visitor) {
	v.fallback = descend
}

// Build creates a visitor from a handler map.
func Build(handlers Handlers, opts ...Option) *Visitor {
	v := &Visitor{
		handlers: handlers,
		fallback: noop,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Visit looks up the handler for a node and calls it with the node and
// args. It does not traverse the tree by itself. Visiting nil returns nil.
func (v *Visitor) Visit(node Node, args ...any) any {
	if node == nil {
		return nil
	}
	kind := node.Kind()
	if h, ok := v.handlers[kind]; ok && h != nil {
		return h(v, node, args...)
	}
	if !kind.IsKnown() {
		panic(&UnknownKindError{Kind: kind})
	}
	return v.fallback(v, node, args...)
}

// VisitChildren visits all children of a node, in order, and returns nil.
func (v *Visitor) VisitChildren(node Node, args ...any) {
	for _, ch := range Children(node) {
		v.Visit(ch, args...)
	}
}

func noop(*Visitor, Node, ...any) any {
	return nil
}

func descend(v *Visitor, node Node, args ...any) any {
	v.VisitChildren(node, args...)
	return nil
}

// Children returns the direct children of a node in source order. For a
// repeated node, the delimiter follows the repeated expression.
func Children(node Node) []Node {
	switch n := node.(type) {
	case *Grammar:
		var ch []Node
		if n.TopLevelInitializer != nil {
			ch = append(ch, n.TopLevelInitializer)
		}
		if n.Initializer != nil {
			ch = append(ch, n.Initializer)
		}
		for _, r := range n.Rules {
			ch = append(ch, r)
		}
		return ch
	case *Rule:
		return single(n.Expression)
	case *Named:
		return single(n.Expression)
	case *Choice:
		return list(n.Alternatives)
	case *Action:
		return single(n.Expression)
	case *Sequence:
		return list(n.Elements)
	case *Labeled:
		return single(n.Expression)
	case *Prefixed:
		return single(n.Expression)
	case *Suffixed:
		return single(n.Expression)
	case *Repeated:
		ch := single(n.Expression)
		if n.Delimiter != nil {
			ch = append(ch, n.Delimiter)
		}
		return ch
	case *Group:
		return single(n.Expression)
	}
	return nil
}

func single(e Expression) []Node {
	if e == nil {
		return nil
	}
	return []Node{e}
}

func list(es []Expression) []Node {
	ch := make([]Node, 0, len(es))
	for _, e := range es {
		ch = append(ch, e)
	}
	return ch
}

// Walk calls f for node and every node below it, in pre-order. If f returns
// false, the children of a node are skipped.
func Walk(node Node, f func(Node) bool) {
	if node == nil || !f(node) {
		return
	}
	for _, ch := range Children(node) {
		Walk(ch, f)
	}
}

// Inner returns the single wrapped expression of nodes with exactly one
// child expression, or nil for other nodes.
func Inner(e Expression) Expression {
	switch n := e.(type) {
	case *Named:
		return n.Expression
	case *Action:
		return n.Expression
	case *Labeled:
		return n.Expression
	case *Prefixed:
		return n.Expression
	case *Suffixed:
		return n.Expression
	case *Group:
		return n.Expression
	case *Repeated:
		return n.Expression
	}
	return nil
}

// Replace substitutes the child expressions of node, calling f for each of
// them. It is used by transforming passes to rewrite trees in place.
func Replace(node Node, f func(Expression) Expression) {
	switch n := node.(type) {
	case *Grammar:
		for _, r := range n.Rules {
			r.Expression = f(r.Expression)
		}
	case *Rule:
		n.Expression = f(n.Expression)
	case *Named:
		n.Expression = f(n.Expression)
	case *Choice:
		for i, a := range n.Alternatives {
			n.Alternatives[i] = f(a)
		}
	case *Action:
		n.Expression = f(n.Expression)
	case *Sequence:
		for i, el := range n.Elements {
			n.Elements[i] = f(el)
		}
	case *Labeled:
		n.Expression = f(n.Expression)
	case *Prefixed:
		n.Expression = f(n.Expression)
	case *Suffixed:
		n.Expression = f(n.Expression)
	case *Repeated:
		n.Expression = f(n.Expression)
		if n.Delimiter != nil {
			n.Delimiter = f(n.Delimiter)
		}
	case *Group:
		n.Expression = f(n.Expression)
	}
}
