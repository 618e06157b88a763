package diag

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/npillmayer/gopeg"
)

// SourceText pairs a source identifier with its text, for rendering
// excerpts. Source is compared with Location.Source.
type SourceText struct {
	Source any
	Text   string
}

// Excerpt renders a message with an excerpt of the source line at loc,
// underlining the located range:
//
//	error: Expected "a" but "b" found.
//	 --> input:1:3
//	  |
//	1 | xxb
//	  |   ^
//
// If no source text matches loc.Source, only the header lines are rendered.
func Excerpt(kind, msg string, loc *gopeg.Location, sources []SourceText) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", kind, msg)
	if loc == nil {
		return b.String()
	}
	fmt.Fprintf(&b, "\n --> %s", loc.String())
	text, ok := findSource(loc.Source, sources)
	if !ok {
		return b.String()
	}
	lines := strings.Split(text, "\n")
	ln := loc.Start.Line
	if ln < 1 || ln > len(lines) {
		return b.String()
	}
	line := strings.TrimRight(lines[ln-1], "\r")
	num := fmt.Sprintf("%d", ln)
	gutter := strings.Repeat(" ", len(num))
	runes := []rune(line)
	col := clamp(loc.Start.Column-1, 0, len(runes))
	endCol := len(runes)
	if loc.End.Line == ln {
		endCol = clamp(loc.End.Column-1, col, len(runes))
	}
	pad := runewidth.StringWidth(string(runes[:col]))
	width := runewidth.StringWidth(string(runes[col:endCol]))
	if width < 1 {
		width = 1
	}
	fmt.Fprintf(&b, "\n%s |\n%s | %s\n%s | %s%s", gutter, num, line, gutter,
		strings.Repeat(" ", pad), strings.Repeat("^", width))
	return b.String()
}

func findSource(src any, sources []SourceText) (string, bool) {
	for _, s := range sources {
		if s.Source == src {
			return s.Text, true
		}
	}
	if len(sources) == 1 && src == nil {
		return sources[0].Text, true
	}
	return "", false
}

func clamp(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Format renders a diagnostic with excerpts for its location and notes.
func (d Diagnostic) Format(sources ...SourceText) string {
	var b strings.Builder
	b.WriteString(Excerpt(d.Severity.String(), d.Message, d.Location, sources))
	for _, n := range d.Notes {
		b.WriteString("\n")
		b.WriteString(Excerpt("note", n.Message, n.Location, sources))
	}
	return b.String()
}

// Format renders all diagnostics of a compile error.
func (e *CompileError) Format(sources ...SourceText) string {
	parts := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		parts[i] = d.Format(sources...)
	}
	return strings.Join(parts, "\n\n")
}
