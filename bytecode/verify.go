package bytecode

import (
	"fmt"
)

// Verify checks the code of all rules of a program: instructions decode,
// constant indices are in range, both branches of every conditional move
// the stack pointer in the same way, loop bodies are stack-neutral, every
// rule leaves exactly one value on the stack, and source map instructions
// nest.
func Verify(p *Program) error {
	for i, r := range p.Rules {
		v := verifier{prog: p, rule: r.Name}
		depth, err := v.run(r.Code, 0)
		if err != nil {
			return err
		}
		if depth != 1 {
			return fmt.Errorf("bytecode: rule %q (#%d) leaves %d values on the stack", r.Name, i, depth)
		}
	}
	if _, err := CallSites(p); err != nil {
		return err
	}
	for _, s := range p.StartRules {
		if s < 0 || s >= len(p.Rules) {
			return fmt.Errorf("bytecode: start rule index %d out of range", s)
		}
	}
	return nil
}

type verifier struct {
	prog *Program
	rule string
}

func (v *verifier) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("bytecode: rule %q: %s", v.rule, fmt.Sprintf(format, args...))
}

func (v *verifier) index(op Opcode, i, n int, table string) error {
	if i < 0 || i >= n {
		return v.errorf("%s refers to %s #%d of %d", op, table, i, n)
	}
	return nil
}

func (v *verifier) run(code []int, depth int) (int, error) {
	ip := 0
	for ip < len(code) {
		in, err := Decode(code, ip)
		if err != nil {
			return 0, v.errorf("%v", err)
		}
		if depth, err = v.step(in, depth); err != nil {
			return 0, err
		}
		if depth < 0 {
			return 0, v.errorf("stack underflow at %s (offset %d)", in.Op, ip)
		}
		ip += in.Len
	}
	return depth, nil
}

func (v *verifier) need(in Instr, depth, n int) error {
	if depth < n {
		return v.errorf("%s needs %d stack values, has %d", in.Op, n, depth)
	}
	return nil
}

func (v *verifier) step(in Instr, depth int) (int, error) {
	p := v.prog
	switch in.Op {
	case PushEmptyString, PushNil, PushFailed, PushEmptyArray, PushCurrPos:
		return depth + 1, nil
	case Pop, PopCurrPos:
		return depth - 1, v.need(in, depth, 1)
	case Nip, Append:
		return depth - 1, v.need(in, depth, 2)
	case PopN:
		return depth - in.Args[0], v.need(in, depth, in.Args[0])
	case Wrap:
		return depth - in.Args[0] + 1, v.need(in, depth, in.Args[0])
	case Text:
		return depth, v.need(in, depth, 1)
	case Pluck:
		n := in.Args[0]
		for _, off := range in.Args[2:] {
			if off < 0 || off >= n {
				return 0, v.errorf("PLUCK offset %d outside of %d popped values", off, n)
			}
		}
		return depth - n + 1, v.need(in, depth, n)
	case Call:
		if err := v.index(in.Op, in.Args[0], len(p.Functions), "function"); err != nil {
			return 0, err
		}
		for _, off := range in.Args[3:] {
			if off < 0 || off >= depth {
				return 0, v.errorf("CALL parameter offset %d outside of stack (depth %d)", off, depth)
			}
		}
		return depth - in.Args[1] + 1, v.need(in, depth, in.Args[1])
	case LoadSavedPos:
		if in.Args[0] >= depth {
			return 0, v.errorf("LOAD_SAVED_POS offset %d outside of stack (depth %d)", in.Args[0], depth)
		}
		return depth, nil
	case UpdateSavedPos, SilentFailsOn, SilentFailsOff, SourceMapPop:
		return depth, nil
	case SourceMapPush:
		return depth, v.index(in.Op, in.Args[0], len(p.Locations), "location")
	case SourceMapLabelPush, SourceMapLabelPop:
		return depth, nil
	case Rule:
		return depth + 1, v.index(in.Op, in.Args[0], len(p.Rules), "rule")
	case AcceptN:
		return depth + 1, nil
	case AcceptString:
		return depth + 1, v.index(in.Op, in.Args[0], len(p.Literals), "literal")
	case Fail:
		return depth + 1, v.index(in.Op, in.Args[0], len(p.Expectations), "expectation")
	case If, IfError, IfNotError, IfLt, IfGe:
		if err := v.need(in, depth, 1); err != nil {
			return 0, err
		}
		return v.branches(in, depth)
	case IfLtDynamic, IfGeDynamic:
		if err := v.need(in, depth, 1); err != nil {
			return 0, err
		}
		if in.Args[0] >= depth {
			return 0, v.errorf("%s offset %d outside of stack (depth %d)", in.Op, in.Args[0], depth)
		}
		return v.branches(in, depth)
	case MatchAny:
		return v.branches(in, depth)
	case MatchString, MatchStringIC:
		if err := v.index(in.Op, in.Args[0], len(p.Literals), "literal"); err != nil {
			return 0, err
		}
		return v.branches(in, depth)
	case MatchCharClass:
		if err := v.index(in.Op, in.Args[0], len(p.Classes), "class"); err != nil {
			return 0, err
		}
		return v.branches(in, depth)
	case WhileNotError:
		if err := v.need(in, depth, 1); err != nil {
			return 0, err
		}
		after, err := v.run(in.Then, depth)
		if err != nil {
			return 0, err
		}
		if after != depth {
			return 0, v.errorf("loop body of %s moves stack by %d", in.Op, after-depth)
		}
		return depth, nil
	}
	return 0, v.errorf("unhandled opcode %s", in.Op)
}

func (v *verifier) branches(in Instr, depth int) (int, error) {
	thenDepth, err := v.run(in.Then, depth)
	if err != nil {
		return 0, err
	}
	elseDepth, err := v.run(in.Else, depth)
	if err != nil {
		return 0, err
	}
	if thenDepth != elseDepth {
		return 0, v.errorf("branches of %s move the stack differently (%d vs %d)",
			in.Op, thenDepth-depth, elseDepth-depth)
	}
	return thenDepth, nil
}
