package ast

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Print writes a grammar in grammar notation. The output parses back into
// an equivalent tree (modulo locations).
func Print(w io.Writer, g *Grammar) error {
	var b strings.Builder
	if g.TopLevelInitializer != nil {
		b.WriteString("{{")
		b.WriteString(g.TopLevelInitializer.Code)
		b.WriteString("}}\n\n")
	}
	if g.Initializer != nil {
		b.WriteString("{")
		b.WriteString(g.Initializer.Code)
		b.WriteString("}\n\n")
	}
	for i, r := range g.Rules {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(r.Name)
		e := r.Expression
		if n, ok := e.(*Named); ok {
			b.WriteString(" ")
			b.WriteString(strconv.Quote(n.Name))
			e = n.Expression
		}
		b.WriteString("\n  = ")
		b.WriteString(String(e))
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// String renders an expression in grammar notation.
func String(e Expression) string {
	var b strings.Builder
	writeExpr(&b, e, precChoice)
	return b.String()
}

const (
	precChoice = iota
	precAction
	precSequence
	precPrefix
	precSuffix
	precPrimary
)

func precedence(e Expression) int {
	switch n := e.(type) {
	case *Choice:
		if len(n.Alternatives) == 1 {
			return precedence(n.Alternatives[0])
		}
		return precChoice
	case *Action:
		return precAction
	case *Sequence:
		if len(n.Elements) == 1 {
			if l, ok := n.Elements[0].(*Labeled); ok && l.Pick {
				return precSequence
			}
			return precedence(n.Elements[0])
		}
		return precSequence
	case *Labeled, *Prefixed:
		return precPrefix
	case *Suffixed, *Repeated:
		return precSuffix
	case *Named:
		return precChoice
	}
	return precPrimary
}

func writeExpr(b *strings.Builder, e Expression, min int) {
	if precedence(e) < min {
		b.WriteString("(")
		writeExpr(b, e, precChoice)
		b.WriteString(")")
		return
	}
	switch n := e.(type) {
	case *Named:
		// named expressions only occur at rule level; inside, print the body
		writeExpr(b, n.Expression, min)
	case *Choice:
		for i, a := range n.Alternatives {
			if i > 0 {
				b.WriteString(" / ")
			}
			writeExpr(b, a, precAction)
		}
	case *Action:
		writeExpr(b, n.Expression, precSequence)
		b.WriteString(" {")
		b.WriteString(n.Code)
		b.WriteString("}")
	case *Sequence:
		for i, el := range n.Elements {
			if i > 0 {
				b.WriteString(" ")
			}
			writeExpr(b, el, precPrefix)
		}
	case *Labeled:
		if n.Pick {
			b.WriteString("@")
		}
		if n.Label != "" {
			b.WriteString(n.Label)
			b.WriteString(":")
		}
		writeExpr(b, n.Expression, precPrefix)
	case *Prefixed:
		switch n.Op {
		case KindText:
			b.WriteString("$")
		case KindSimpleAnd:
			b.WriteString("&")
		case KindSimpleNot:
			b.WriteString("!")
		}
		writeExpr(b, n.Expression, precSuffix)
	case *Suffixed:
		writeExpr(b, n.Expression, precPrimary)
		switch n.Op {
		case KindOptional:
			b.WriteString("?")
		case KindZeroOrMore:
			b.WriteString("*")
		case KindOneOrMore:
			b.WriteString("+")
		}
	case *Repeated:
		writeExpr(b, n.Expression, precPrimary)
		b.WriteString("|")
		if n.Min == nil {
			b.WriteString(n.Max.String())
		} else {
			b.WriteString(n.Min.String())
			b.WriteString("..")
			b.WriteString(n.Max.String())
		}
		if n.Delimiter != nil {
			b.WriteString(", ")
			writeExpr(b, n.Delimiter, precChoice)
		}
		b.WriteString("|")
	case *Group:
		b.WriteString("(")
		writeExpr(b, n.Expression, precChoice)
		b.WriteString(")")
	case *SemanticPredicate:
		if n.Op == KindSemanticAnd {
			b.WriteString("&{")
		} else {
			b.WriteString("!{")
		}
		b.WriteString(n.Code)
		b.WriteString("}")
	case *RuleRef:
		b.WriteString(n.Name)
	case *Literal:
		b.WriteString(strconv.Quote(n.Value))
		if n.IgnoreCase {
			b.WriteString("i")
		}
	case *Class:
		b.WriteString(ClassString(n))
	case *Any:
		b.WriteString(".")
	default:
		fmt.Fprintf(b, "<%s>", e.Kind())
	}
}

// ClassString renders a character class in bracket notation.
func ClassString(c *Class) string {
	var b strings.Builder
	b.WriteString("[")
	if c.Inverted {
		b.WriteString("^")
	}
	for _, p := range c.Parts {
		b.WriteString(classEscape(p.Low))
		if !p.IsSingle() {
			b.WriteString("-")
			b.WriteString(classEscape(p.High))
		}
	}
	b.WriteString("]")
	if c.IgnoreCase {
		b.WriteString("i")
	}
	return b.String()
}

func classEscape(r rune) string {
	switch r {
	case '\\', ']', '^', '-', '[':
		return "\\" + string(r)
	case '\n':
		return `\n`
	case '\r':
		return `\r`
	case '\t':
		return `\t`
	}
	if r < 0x20 || r == 0x7f {
		return fmt.Sprintf(`\x%02X`, r)
	}
	return string(r)
}
