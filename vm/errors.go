package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/emirpasic/gods/sets/treeset"
	"github.com/npillmayer/gopeg"
	"github.com/npillmayer/gopeg/bytecode"
	"github.com/npillmayer/gopeg/diag"
)

// SyntaxError is the error returned if the input does not match the grammar.
type SyntaxError struct {
	Message  string
	Expected []bytecode.Expectation // nil for errors raised by actions via Context.Error
	Found    *string                // nil at end of input
	Location gopeg.Location
}

// NewSyntaxError creates a syntax error.
func NewSyntaxError(msg string, expected []bytecode.Expectation, found *string, loc gopeg.Location) *SyntaxError {
	return &SyntaxError{
		Message:  msg,
		Expected: expected,
		Found:    found,
		Location: loc,
	}
}

func (e *SyntaxError) Error() string {
	return e.Location.String() + ": " + e.Message
}

// Format renders the error with an excerpt of the input. Each source text
// is matched against the error's location source.
func (e *SyntaxError) Format(sources ...diag.SourceText) string {
	loc := e.Location
	return diag.Excerpt("error", e.Message, &loc, sources)
}

// BuildMessage formats an error message from a list of expectations and the
// input found at the failure position (nil for end of input):
//
//	Expected "a", [0-9], or end of input but "x" found.
//
// Descriptions are deduplicated and sorted.
func BuildMessage(expected []bytecode.Expectation, found *string) string {
	return fmt.Sprintf("Expected %s but %s found.", describeExpected(expected), describeFound(found))
}

func describeExpected(expected []bytecode.Expectation) string {
	set := treeset.NewWithStringComparator()
	for _, e := range expected {
		set.Add(e.Describe())
	}
	descs := make([]string, 0, set.Size())
	for _, d := range set.Values() {
		descs = append(descs, d.(string))
	}
	switch len(descs) {
	case 0:
		return "nothing"
	case 1:
		return descs[0]
	case 2:
		return descs[0] + " or " + descs[1]
	}
	return strings.Join(descs[:len(descs)-1], ", ") + ", or " + descs[len(descs)-1]
}

func describeFound(found *string) string {
	if found == nil {
		return "end of input"
	}
	return `"` + bytecode.LiteralEscape(*found) + `"`
}

// uniqueExpectations removes duplicate expectations, keeping the first
// occurrence of each.
func uniqueExpectations(expected []bytecode.Expectation) []bytecode.Expectation {
	seen := make(map[string]bool, len(expected))
	unique := expected[:0:0]
	for _, e := range expected {
		key := string(e.Type) + "\x00" + e.Describe()
		if !seen[key] {
			seen[key] = true
			unique = append(unique, e)
		}
	}
	return unique
}

// --- Runtime errors --------------------------------------------------------

// RuntimeError signals misuse of a parser or a broken grammar, as opposed to
// input not matching: an unknown start rule, a repetition boundary which is
// not a non-negative integer, or an error returned by user code.
type RuntimeError struct {
	Message  string
	Location *gopeg.Location
	Rules    []string // active rule invocations, outermost first
	Err      error
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString("runtime error")
	if e.Location != nil {
		b.WriteString(" at ")
		b.WriteString(e.Location.String())
	}
	if len(e.Rules) > 0 {
		b.WriteString(" in ")
		b.WriteString(strings.Join(e.Rules, " > "))
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsSyntaxError is true if err is or wraps a *SyntaxError.
func IsSyntaxError(err error) bool {
	var serr *SyntaxError
	return errors.As(err, &serr)
}

// BindError lists code blocks for which no function could be found.
type BindError struct {
	Missing []bytecode.Function
}

func (e *BindError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "no function bound for %d code block(s)", len(e.Missing))
	for i, f := range e.Missing {
		if i == 3 {
			b.WriteString(", …")
			break
		}
		fmt.Fprintf(&b, "; %s at %s: {%s}", f.Kind, f.Location, abbreviate(f.Code, 30))
	}
	return b.String()
}

func abbreviate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
