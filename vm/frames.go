package vm

import (
	"fmt"
)

// This module implements a stack of rule frames.
// Rule frames represent active rule invocations of a parse and are used for
// trace nesting and for access to the current rule from user code.

// ruleFrame is a frame for an active rule invocation.
type ruleFrame struct {
	Rule   int // rule index
	Name   string
	Start  int // input position at rule entry
	Parent *ruleFrame
}

func (rf *ruleFrame) String() string {
	return fmt.Sprintf("<frame %s @%d>", rf.Name, rf.Start)
}

// ---------------------------------------------------------------------------

// frameStack is a (call-)stack of rule frames.
type frameStack struct {
	tos   *ruleFrame
	depth int
}

// Current gets the current rule frame (TOS), or nil for an empty stack.
func (fs *frameStack) Current() *ruleFrame {
	return fs.tos
}

// Depth returns the number of frames on the stack.
func (fs *frameStack) Depth() int {
	return fs.depth
}

// Push pushes a new frame as TOS, having the recent TOS as its parent.
func (fs *frameStack) Push(rule int, name string, start int) *ruleFrame {
	f := &ruleFrame{Rule: rule, Name: name, Start: start, Parent: fs.tos}
	fs.tos = f
	fs.depth++
	return f
}

// Pop pops the top-most frame. Returns the popped frame.
func (fs *frameStack) Pop() *ruleFrame {
	if fs.tos == nil {
		panic("attempt to pop rule frame from empty call stack")
	}
	f := fs.tos
	fs.tos = f.Parent
	fs.depth--
	return f
}

// Path returns the names of all active rules, outermost first.
func (fs *frameStack) Path() []string {
	names := make([]string, fs.depth)
	i := fs.depth - 1
	for f := fs.tos; f != nil; f = f.Parent {
		names[i] = f.Name
		i--
	}
	return names
}
