package gopeg

import (
	"testing"

	"github.com/npillmayer/schuko/tracing/gotestingadapter"
)

func TestSpan(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg")
	defer teardown()
	//
	s := Span{3, 7}
	if s.From() != 3 || s.To() != 7 || s.Len() != 4 {
		t.Errorf("unexpected span accessors for %s", s)
	}
	if s.IsNull() || !(Span{}).IsNull() {
		t.Errorf("null span detection broken")
	}
	if e := s.Extend(Span{1, 5}); e != (Span{1, 7}) {
		t.Errorf("expected extended span (1…7), have %s", e)
	}
	if s.String() != "(3…7)" {
		t.Errorf("unexpected span rendering %s", s.String())
	}
}

func TestLineIndexBytes(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg")
	defer teardown()
	//
	text := "ab\nçd\n\nx"
	li := NewLineIndex(text, false)
	if li.Lines() != 4 {
		t.Fatalf("expected 4 lines, have %d", li.Lines())
	}
	tests := []struct {
		offset       int
		line, column int
	}{
		{0, 1, 1},
		{2, 1, 3},
		{3, 2, 1},
		{5, 2, 2}, // behind the 2-byte ç
		{7, 3, 1},
		{8, 4, 1},
		{9, 4, 2},
	}
	for _, tt := range tests {
		pos := li.PositionIn(text, tt.offset)
		if pos.Line != tt.line || pos.Column != tt.column || pos.Offset != tt.offset {
			t.Errorf("offset %d: expected %d:%d, have %s", tt.offset, tt.line, tt.column, pos)
		}
	}
}

func TestLineIndexRunes(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg")
	defer teardown()
	//
	li := NewLineIndex("çç\nx", true)
	pos := li.Position(3)
	if pos.Line != 2 || pos.Column != 1 {
		t.Errorf("expected rune offset 3 at 2:1, have %s", pos)
	}
	pos = li.Position(2)
	if pos.Line != 1 || pos.Column != 3 {
		t.Errorf("expected rune offset 2 at 1:3, have %s", pos)
	}
}

func TestLocation(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "gopeg")
	defer teardown()
	//
	var zero Location
	if !zero.IsZero() {
		t.Errorf("expected zero location")
	}
	l := Location{
		Source: "g.peg",
		Start:  Position{Offset: 4, Line: 2, Column: 1},
		End:    Position{Offset: 9, Line: 2, Column: 6},
	}
	if l.String() != "g.peg:2:1" {
		t.Errorf("unexpected location rendering %s", l)
	}
	if l.Span() != (Span{4, 9}) {
		t.Errorf("unexpected location span %s", l.Span())
	}
	l.Source = nil
	if l.String() != "2:1" {
		t.Errorf("unexpected location rendering %s", l)
	}
}
