package bytecode

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/npillmayer/gopeg"
)

// Program is a compiled grammar: rule code plus shared constant tables.
type Program struct {
	Rules        []RuleCode
	StartRules   []int // indices into Rules; the first one is the default
	Literals     []string
	Classes      []Class
	Expectations []Expectation
	Functions    []Function
	Locations    []gopeg.Location
	Initializer  *Function // per-parse initializer, if any
	TopLevel     *CodeBlock
	Trace        bool // rule calls emit trace events
	Cache        bool // rule results are memoized
}

// RuleCode is the compiled code of a rule.
type RuleCode struct {
	Name     string
	Code     []int
	Location gopeg.Location
}

// CodeBlock is verbatim code attached to a program.
type CodeBlock struct {
	Code     string
	Location gopeg.Location
}

// RuleIndex finds a rule by name.
func (p *Program) RuleIndex(name string) (int, bool) {
	for i, r := range p.Rules {
		if r.Name == name {
			return i, true
		}
	}
	return -1, false
}

// IsStartRule is true if rule r may be used to start a parse.
func (p *Program) IsStartRule(r int) bool {
	for _, s := range p.StartRules {
		if s == r {
			return true
		}
	}
	return false
}

// --- Character classes -----------------------------------------------------

// Class is a compiled character class.
type Class struct {
	Parts      [][2]rune
	Inverted   bool
	IgnoreCase bool
}

// Match tests a character against a class.
func (c *Class) Match(r rune) bool {
	in := c.contains(r)
	if !in && c.IgnoreCase {
		for f := unicode.SimpleFold(r); f != r && !in; f = unicode.SimpleFold(f) {
			in = c.contains(f)
		}
	}
	return in != c.Inverted
}

func (c *Class) contains(r rune) bool {
	for _, p := range c.Parts {
		if r >= p[0] && r <= p[1] {
			return true
		}
	}
	return false
}

func (c *Class) String() string {
	var b strings.Builder
	b.WriteByte('[')
	if c.Inverted {
		b.WriteByte('^')
	}
	for _, p := range c.Parts {
		b.WriteString(classEscape(p[0]))
		if p[0] != p[1] {
			b.WriteByte('-')
			b.WriteString(classEscape(p[1]))
		}
	}
	b.WriteByte(']')
	if c.IgnoreCase {
		b.WriteByte('i')
	}
	return b.String()
}

// --- Expectations ----------------------------------------------------------

// ExpectationType classifies expectation descriptors.
type ExpectationType string

const (
	ExpectLiteral ExpectationType = "literal"
	ExpectClass   ExpectationType = "class"
	ExpectAny     ExpectationType = "any"
	ExpectEnd     ExpectationType = "end"
	ExpectOther   ExpectationType = "other"
)

// Expectation describes what was expected at a failure position.
type Expectation struct {
	Type        ExpectationType
	Text        string    // literal text
	IgnoreCase  bool      // literal or class
	Parts       [][2]rune // class parts
	Inverted    bool      // class
	Description string    // other
}

// EndOfInput is the expectation recorded when a parse does not consume the
// whole input.
var EndOfInput = Expectation{Type: ExpectEnd}

// Describe returns a human readable description of an expectation.
func (e Expectation) Describe() string {
	switch e.Type {
	case ExpectLiteral:
		return `"` + LiteralEscape(e.Text) + `"`
	case ExpectClass:
		c := Class{Parts: e.Parts, Inverted: e.Inverted}
		return c.String()
	case ExpectAny:
		return "any character"
	case ExpectEnd:
		return "end of input"
	}
	return e.Description
}

// LiteralEscape escapes a string for display within double quotes.
func LiteralEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case 0:
			b.WriteString(`\0`)
		case '\t':
			b.WriteString(`\t`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\x%02X`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

func classEscape(r rune) string {
	switch r {
	case '\\', ']', '^', '-':
		return `\` + string(r)
	case 0:
		return `\0`
	case '\t':
		return `\t`
	case '\n':
		return `\n`
	case '\r':
		return `\r`
	}
	if r < 0x20 || r == 0x7f {
		return fmt.Sprintf(`\x%02X`, r)
	}
	return string(r)
}

// --- Functions -------------------------------------------------------------

// Function is a user code block: an action, a semantic predicate, a
// repetition boundary or the per-parse initializer.
type Function struct {
	Kind     FunctionKind
	Params   []string // labels in scope, in binding order
	Code     string
	Location gopeg.Location // location of the code
}

// FunctionKind tells how a function's result is used.
type FunctionKind int

const (
	ActionFunc FunctionKind = iota
	PredicateFunc
	BoundaryFunc
	InitializerFunc
)

func (k FunctionKind) String() string {
	switch k {
	case PredicateFunc:
		return "predicate"
	case BoundaryFunc:
		return "boundary"
	case InitializerFunc:
		return "initializer"
	}
	return "action"
}
