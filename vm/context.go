package vm

import (
	"strings"

	"github.com/npillmayer/gopeg"
	"github.com/npillmayer/gopeg/bytecode"
)

// Func is a user code block bound to a program function. Actions return
// the value of their expression, predicates a truthy value, boundaries a
// non-negative integer. The per-parse initializer's result is ignored.
//
// Returning a *SyntaxError created by Context.Error or Context.Expected
// fails the parse with this error. Any other error aborts the parse with a
// *RuntimeError.
type Func func(c *Context) (any, error)

// Actions maps code blocks, by their trimmed code text, to functions.
type Actions map[string]Func

// Key returns the lookup key for a code block.
func Key(code string) string {
	return strings.TrimSpace(code)
}

// Context gives user code access to labels and to the matched input.
type Context struct {
	m     *machine
	fn    *bytecode.Function
	args  []any
	start int
	end   int
}

// Label returns the value bound to a label, or nil if the label is not in
// scope.
func (c *Context) Label(name string) any {
	if c.fn == nil {
		return nil
	}
	for i, p := range c.fn.Params {
		if p == name {
			return c.args[i]
		}
	}
	return nil
}

// Arg returns the value of the i-th label in scope, in binding order.
func (c *Context) Arg(i int) any {
	if i < 0 || i >= len(c.args) {
		return nil
	}
	return c.args[i]
}

// Labels returns all labels in scope with their values.
func (c *Context) Labels() map[string]any {
	labels := make(map[string]any)
	if c.fn != nil {
		for i, p := range c.fn.Params {
			labels[p] = c.args[i]
		}
	}
	return labels
}

// Text returns the input matched by the current expression. For
// predicates and boundaries this is empty.
func (c *Context) Text() string {
	return string(c.m.input[c.start:c.end])
}

// Offset returns the start offset of the matched input.
func (c *Context) Offset() int {
	return c.start
}

// Range returns the offsets of the matched input.
func (c *Context) Range() gopeg.Span {
	return gopeg.Span{c.start, c.end}
}

// Location returns the location of the matched input.
func (c *Context) Location() gopeg.Location {
	return c.m.location(c.start, c.end)
}

// Input returns the complete input of the parse.
func (c *Context) Input() string {
	return string(c.m.input)
}

// Rule returns the name of the innermost active rule.
func (c *Context) Rule() string {
	if f := c.m.frames.Current(); f != nil {
		return f.Name
	}
	return ""
}

// State returns the per-parse state map. It is shared by all code blocks of
// a parse and is typically initialized by the per-parse initializer.
func (c *Context) State() map[string]any {
	return c.m.state
}

// Error creates a syntax error at the location of the matched input.
// Return it from an action to fail the parse with a custom message.
func (c *Context) Error(msg string) error {
	return NewSyntaxError(msg, nil, nil, c.Location())
}

// Expected creates a syntax error stating that desc was expected at the
// location of the matched input.
func (c *Context) Expected(desc string) error {
	exp := []bytecode.Expectation{{Type: bytecode.ExpectOther, Description: desc}}
	found := c.Text()
	return NewSyntaxError(BuildMessage(exp, &found), exp, &found, c.Location())
}
