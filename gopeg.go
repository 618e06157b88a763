package gopeg

import (
	"fmt"
	"sort"
	"unicode/utf8"
)

// --- A general purpose interface for tokens --------------------------------

// TokType is a category type for a Token. We do not define any constants here, as
// it is up to applications to define them.
type TokType int

// Tokens represent input tokens. They are produced by the grammar lexer and
// reflect terminals of the grammar notation.
//
// An example would be a token for a string literal:
//
//	TokType = String      // identifier for this kind of tokens (application specific)
//	Lexeme  = `"abc"`     // lexeme how it appeared in the input stream
//	Value   = "abc"       // the unquoted string
//	Span    = 67…72       // occurred at byte position 67 in the input stream
type Token interface {
	TokType() TokType
	Lexeme() string
	Value() interface{}
	Span() Span
}

// --- Spans ------------------------------------------------------------

// Span is a small type for capturing a run of input. A span denotes a start
// position and the position just behind the end.
type Span [2]int // (x…y)

// From returns the start value of a span.
func (s Span) From() int {
	return s[0]
}

// To returns the end value of a span.
func (s Span) To() int {
	return s[1]
}

// Len returns the length of (x…y)
func (s Span) Len() int {
	return s[1] - s[0]
}

func (s Span) IsNull() bool {
	return s == Span{}
}

// Extend returns the smallest span covering s and other.
func (s Span) Extend(other Span) Span {
	if other[0] < s[0] {
		s[0] = other[0]
	}
	if other[1] > s[1] {
		s[1] = other[1]
	}
	return s
}

func (s Span) String() string {
	return fmt.Sprintf("(%d…%d)", s[0], s[1])
}

// --- Positions and locations ------------------------------------------

// Position is a point in a source text. Offset counts input units from the
// start of the text, Line and Column start at 1.
type Position struct {
	Offset int `msgpack:"offset" json:"offset"`
	Line   int `msgpack:"line" json:"line"`
	Column int `msgpack:"column" json:"column"`
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Location is a range within a source. Source is an opaque identifier
// supplied by the client (usually a file name).
type Location struct {
	Source any      `msgpack:"source" json:"source"`
	Start  Position `msgpack:"start" json:"start"`
	End    Position `msgpack:"end" json:"end"`
}

// Span returns the offset range of a location.
func (l Location) Span() Span {
	return Span{l.Start.Offset, l.End.Offset}
}

// IsZero is true for locations never set.
func (l Location) IsZero() bool {
	return l.Start.Line == 0 && l.End.Line == 0
}

func (l Location) String() string {
	if l.Source != nil {
		return fmt.Sprintf("%v:%d:%d", l.Source, l.Start.Line, l.Start.Column)
	}
	return fmt.Sprintf("%d:%d", l.Start.Line, l.Start.Column)
}

// --- Line index -------------------------------------------------------

// LineIndex maps offsets of a text to line/column positions. It may be
// constructed for byte offsets or for rune offsets.
type LineIndex struct {
	starts []int // offsets of line starts
	runes  bool
}

// NewLineIndex creates a line index for text. If runes is true, offsets are
// counted in runes, otherwise in bytes. Columns are always counted in runes.
func NewLineIndex(text string, runes bool) *LineIndex {
	li := &LineIndex{starts: []int{0}, runes: runes}
	off := 0
	for _, r := range text {
		if runes {
			off++
		} else {
			off += utf8.RuneLen(r)
		}
		if r == '\n' {
			li.starts = append(li.starts, off)
		}
	}
	return li
}

// Position returns the position for an offset. Column counting assumes that
// offsets are rune offsets; for byte-indexed line indices a text is required
// to count runes correctly, see PositionIn.
func (li *LineIndex) Position(offset int) Position {
	line := sort.Search(len(li.starts), func(i int) bool {
		return li.starts[i] > offset
	}) - 1
	if line < 0 {
		line = 0
	}
	return Position{
		Offset: offset,
		Line:   line + 1,
		Column: offset - li.starts[line] + 1,
	}
}

// PositionIn returns the position for a byte offset into text, counting
// columns in runes.
func (li *LineIndex) PositionIn(text string, offset int) Position {
	pos := li.Position(offset)
	if !li.runes && offset <= len(text) {
		start := li.starts[pos.Line-1]
		pos.Column = utf8.RuneCountInString(text[start:offset]) + 1
	}
	return pos
}

// Lines returns the number of lines indexed.
func (li *LineIndex) Lines() int {
	return len(li.starts)
}
