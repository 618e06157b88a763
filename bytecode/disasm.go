package bytecode

import (
	"fmt"
	"io"
	"strings"
)

// Disassemble writes a listing of a program: constant tables first, then
// the code of every rule with nested branches indented.
func Disassemble(w io.Writer, p *Program) error {
	var b strings.Builder
	for i, l := range p.Literals {
		fmt.Fprintf(&b, "literal[%d]     = \"%s\"\n", i, LiteralEscape(l))
	}
	for i, c := range p.Classes {
		fmt.Fprintf(&b, "class[%d]       = %s\n", i, c.String())
	}
	for i, e := range p.Expectations {
		fmt.Fprintf(&b, "expectation[%d] = %s %s\n", i, e.Type, e.Describe())
	}
	for i, f := range p.Functions {
		fmt.Fprintf(&b, "function[%d]    = %s(%s) at %s\n", i, f.Kind, strings.Join(f.Params, ", "), f.Location)
	}
	for i, r := range p.Rules {
		start := ""
		if p.IsStartRule(i) {
			start = " (start)"
		}
		fmt.Fprintf(&b, "\nrule[%d] %s%s:\n", i, r.Name, start)
		if err := disassemble(&b, p, r.Code, 1); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func disassemble(b *strings.Builder, p *Program, code []int, level int) error {
	indent := strings.Repeat("  ", level)
	for ip := 0; ip < len(code); {
		in, err := Decode(code, ip)
		if err != nil {
			return err
		}
		fmt.Fprintf(b, "%s%-20s", indent, in.Op)
		for _, a := range in.Args {
			fmt.Fprintf(b, " %d", a)
		}
		switch in.Op {
		case MatchString, MatchStringIC, AcceptString:
			fmt.Fprintf(b, "  ; \"%s\"", LiteralEscape(p.Literals[in.Args[0]]))
		case MatchCharClass:
			fmt.Fprintf(b, "  ; %s", p.Classes[in.Args[0]].String())
		case Fail:
			fmt.Fprintf(b, "  ; %s", p.Expectations[in.Args[0]].Describe())
		case Rule:
			fmt.Fprintf(b, "  ; %s", p.Rules[in.Args[0]].Name)
		}
		b.WriteString("\n")
		sh := shapes[in.Op]
		if sh.cond {
			if err := disassemble(b, p, in.Then, level+1); err != nil {
				return err
			}
			if len(in.Else) > 0 {
				fmt.Fprintf(b, "%selse\n", indent)
				if err := disassemble(b, p, in.Else, level+1); err != nil {
					return err
				}
			}
		} else if sh.loop {
			if err := disassemble(b, p, in.Then, level+1); err != nil {
				return err
			}
		}
		ip += in.Len
	}
	return nil
}
