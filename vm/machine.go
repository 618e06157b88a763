package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"fortio.org/safecast"
	"github.com/npillmayer/gopeg"
	"github.com/npillmayer/gopeg/bytecode"
	"golang.org/x/text/cases"
)

// failMarker is the type of the failure value on the machine stack.
type failMarker struct{}

func (*failMarker) String() string { return "<FAILED>" }

// failed is pushed by expressions which did not match.
var failed any = &failMarker{}

type memoKey struct {
	rule, pos int
}

type memoEntry struct {
	end    int
	result any
}

// machine holds the state of a single parse.
type machine struct {
	p               *Parser
	prog            *bytecode.Program
	input           []rune
	pos             int // cursor
	savedPos        int // start of the expression user code refers to
	silent          int // > 0 suppresses recording of expectations
	maxFailPos      int
	maxFailExpected []bytecode.Expectation
	stack           []any
	memo            map[memoKey]memoEntry
	tracer          Tracer
	frames          frameStack
	lines           *gopeg.LineIndex
	source          any
	state           map[string]any
	fold            cases.Caser
}

func newMachine(p *Parser, input string, cfg *parseConfig) *machine {
	m := &machine{
		p:      p,
		prog:   p.prog,
		input:  []rune(input),
		stack:  make([]any, 0, 64),
		source: cfg.source,
		state:  cfg.state,
		fold:   cases.Fold(),
	}
	if m.state == nil {
		m.state = make(map[string]any)
	}
	memoize := p.prog.Cache
	if cfg.memoize != nil {
		memoize = *cfg.memoize
	}
	if memoize {
		m.memo = make(map[memoKey]memoEntry)
	}
	if p.prog.Trace {
		m.tracer = cfg.tracer
		if m.tracer == nil {
			m.tracer = DefaultTracer{}
		}
	}
	return m
}

// parse runs the per-parse initializer and the start rule, and checks
// that the complete input has been consumed.
func (m *machine) parse(start int) (any, error) {
	if m.p.init != nil {
		c := &Context{m: m, fn: m.prog.Initializer}
		if _, err := m.p.init(c); err != nil {
			return nil, m.userError(m.prog.Initializer, err)
		}
	}
	result, err := m.parseRule(start)
	if err != nil {
		return nil, err
	}
	if result != failed && m.pos == len(m.input) {
		return result, nil
	}
	if result != failed && m.pos < len(m.input) {
		m.fail(bytecode.EndOfInput)
	}
	return nil, m.syntaxError()
}

func (m *machine) syntaxError() *SyntaxError {
	expected := uniqueExpectations(m.maxFailExpected)
	var found *string
	var loc gopeg.Location
	if m.maxFailPos < len(m.input) {
		s := string(m.input[m.maxFailPos])
		found = &s
		loc = m.location(m.maxFailPos, m.maxFailPos+1)
	} else {
		loc = m.location(m.maxFailPos, m.maxFailPos)
	}
	return NewSyntaxError(BuildMessage(expected, found), expected, found, loc)
}

// fail records an expectation at the cursor, if the cursor is not behind
// the furthest failure position.
func (m *machine) fail(e bytecode.Expectation) {
	if m.pos < m.maxFailPos {
		return
	}
	if m.pos > m.maxFailPos {
		m.maxFailPos = m.pos
		m.maxFailExpected = m.maxFailExpected[:0]
	}
	m.maxFailExpected = append(m.maxFailExpected, e)
}

func (m *machine) location(start, end int) gopeg.Location {
	if m.lines == nil {
		m.lines = gopeg.NewLineIndex(string(m.input), true)
	}
	return gopeg.Location{
		Source: m.source,
		Start:  m.lines.Position(start),
		End:    m.lines.Position(end),
	}
}

// --- Rules -----------------------------------------------------------------

func (m *machine) parseRule(r int) (any, error) {
	rule := &m.prog.Rules[r]
	start := m.pos
	if m.tracer != nil {
		m.tracer.Trace(Event{
			Type:     RuleEnter,
			Rule:     rule.Name,
			Location: m.location(start, start),
			Depth:    m.frames.Depth(),
		})
	}
	if m.memo != nil {
		if e, ok := m.memo[memoKey{r, start}]; ok {
			m.pos = e.end
			m.traceExit(rule.Name, start, e.result)
			return e.result, nil
		}
	}
	m.frames.Push(r, rule.Name, start)
	base := len(m.stack)
	err := m.run(rule.Code)
	if rerr, ok := err.(*RuntimeError); ok && rerr.Rules == nil {
		rerr.Rules = m.frames.Path()
	}
	m.frames.Pop()
	if err != nil {
		return nil, err
	}
	result := m.stack[base]
	m.stack = m.stack[:base]
	if m.memo != nil {
		m.memo[memoKey{r, start}] = memoEntry{end: m.pos, result: result}
	}
	m.traceExit(rule.Name, start, result)
	return result, nil
}

func (m *machine) traceExit(name string, start int, result any) {
	if m.tracer == nil {
		return
	}
	ev := Event{Rule: name, Depth: m.frames.Depth()}
	if result == failed {
		ev.Type = RuleFail
		ev.Location = m.location(start, start)
	} else {
		ev.Type = RuleMatch
		ev.Result = result
		ev.Location = m.location(start, m.pos)
	}
	m.tracer.Trace(ev)
}

// --- Stack -----------------------------------------------------------------

func (m *machine) push(v any) {
	m.stack = append(m.stack, v)
}

func (m *machine) pop() any {
	n := len(m.stack) - 1
	v := m.stack[n]
	m.stack[n] = nil
	m.stack = m.stack[:n]
	return v
}

func (m *machine) popN(k int) {
	n := len(m.stack) - k
	for i := n; i < len(m.stack); i++ {
		m.stack[i] = nil
	}
	m.stack = m.stack[:n]
}

func (m *machine) top() any {
	return m.stack[len(m.stack)-1]
}

// peek returns the stack value at offset p from the top.
func (m *machine) peek(p int) any {
	return m.stack[len(m.stack)-1-p]
}

// --- Interpreter -----------------------------------------------------------

func (m *machine) run(code []int) error {
	var err error
	for ip := 0; ip < len(code); {
		switch op := bytecode.Opcode(code[ip]); op {
		case bytecode.PushEmptyString:
			m.push("")
			ip++
		case bytecode.PushNil:
			m.push(nil)
			ip++
		case bytecode.PushFailed:
			m.push(failed)
			ip++
		case bytecode.PushEmptyArray:
			m.push([]any{})
			ip++
		case bytecode.PushCurrPos:
			m.push(m.pos)
			ip++
		case bytecode.Pop:
			m.pop()
			ip++
		case bytecode.PopCurrPos:
			m.pos = m.pop().(int)
			ip++
		case bytecode.PopN:
			m.popN(code[ip+1])
			ip += 2
		case bytecode.Nip:
			v := m.pop()
			m.pop()
			m.push(v)
			ip++
		case bytecode.Append:
			v := m.pop()
			arr := m.pop().([]any)
			m.push(append(arr, v))
			ip++
		case bytecode.Wrap:
			n := code[ip+1]
			vals := make([]any, n)
			copy(vals, m.stack[len(m.stack)-n:])
			m.popN(n)
			m.push(vals)
			ip += 2
		case bytecode.Text:
			start := m.pop().(int)
			m.push(string(m.input[start:m.pos]))
			ip++
		case bytecode.Pluck:
			n, k := code[ip+1], code[ip+2]
			offsets := code[ip+3 : ip+3+k]
			var v any
			if k == 1 {
				v = m.peek(offsets[0])
			} else {
				vals := make([]any, k)
				for i, p := range offsets {
					vals[i] = m.peek(p)
				}
				v = vals
			}
			m.popN(n)
			m.push(v)
			ip += 3 + k
		case bytecode.If:
			ip, err = m.branch(code, ip, 0, truthy(m.top()))
		case bytecode.IfError:
			ip, err = m.branch(code, ip, 0, m.top() == failed)
		case bytecode.IfNotError:
			ip, err = m.branch(code, ip, 0, m.top() != failed)
		case bytecode.IfLt:
			ip, err = m.branch(code, ip, 1, len(m.top().([]any)) < code[ip+1])
		case bytecode.IfGe:
			ip, err = m.branch(code, ip, 1, len(m.top().([]any)) >= code[ip+1])
		case bytecode.IfLtDynamic, bytecode.IfGeDynamic:
			var bound int
			if bound, err = count(m.peek(code[ip+1])); err != nil {
				return err
			}
			n := len(m.top().([]any))
			if op == bytecode.IfLtDynamic {
				ip, err = m.branch(code, ip, 1, n < bound)
			} else {
				ip, err = m.branch(code, ip, 1, n >= bound)
			}
		case bytecode.WhileNotError:
			body := code[ip+2 : ip+2+code[ip+1]]
			for m.top() != failed {
				if err = m.run(body); err != nil {
					return err
				}
			}
			ip += 2 + len(body)
		case bytecode.MatchAny:
			ip, err = m.branch(code, ip, 0, m.pos < len(m.input))
		case bytecode.MatchString:
			ip, err = m.branch(code, ip, 1, m.matchLiteral(code[ip+1]))
		case bytecode.MatchStringIC:
			ip, err = m.branch(code, ip, 1, m.matchLiteralIC(code[ip+1]))
		case bytecode.MatchCharClass:
			cls := &m.prog.Classes[code[ip+1]]
			ip, err = m.branch(code, ip, 1, m.pos < len(m.input) && cls.Match(m.input[m.pos]))
		case bytecode.AcceptN:
			n := code[ip+1]
			m.push(string(m.input[m.pos : m.pos+n]))
			m.pos += n
			ip += 2
		case bytecode.AcceptString:
			lit := code[ip+1]
			m.push(m.prog.Literals[lit])
			m.pos += len(m.p.literals[lit])
			ip += 2
		case bytecode.Fail:
			m.push(failed)
			if m.silent == 0 {
				m.fail(m.prog.Expectations[code[ip+1]])
			}
			ip += 2
		case bytecode.LoadSavedPos:
			m.savedPos = m.peek(code[ip+1]).(int)
			ip += 2
		case bytecode.UpdateSavedPos:
			m.savedPos = m.pos
			ip++
		case bytecode.Call:
			f, n, pc := code[ip+1], code[ip+2], code[ip+3]
			var v any
			if v, err = m.call(f, code[ip+4:ip+4+pc]); err != nil {
				return err
			}
			m.popN(n)
			m.push(v)
			ip += 4 + pc
		case bytecode.Rule:
			var v any
			if v, err = m.parseRule(code[ip+1]); err != nil {
				return err
			}
			m.push(v)
			ip += 2
		case bytecode.SilentFailsOn:
			m.silent++
			ip++
		case bytecode.SilentFailsOff:
			m.silent--
			ip++
		case bytecode.SourceMapPush, bytecode.SourceMapLabelPop:
			ip += 2
		case bytecode.SourceMapPop:
			ip++
		case bytecode.SourceMapLabelPush:
			ip += 4
		default:
			return &RuntimeError{Message: fmt.Sprintf("invalid opcode %d", code[ip])}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// branch executes the then- or else-branch of a conditional instruction
// with nargs operands at ip, and returns the ip behind it.
func (m *machine) branch(code []int, ip, nargs int, cond bool) (int, error) {
	thenLen, elseLen := code[ip+1+nargs], code[ip+2+nargs]
	start := ip + 3 + nargs
	var err error
	if cond {
		err = m.run(code[start : start+thenLen])
	} else {
		err = m.run(code[start+thenLen : start+thenLen+elseLen])
	}
	return start + thenLen + elseLen, err
}

func (m *machine) matchLiteral(lit int) bool {
	l := m.p.literals[lit]
	if m.pos+len(l) > len(m.input) {
		return false
	}
	for i, r := range l {
		if m.input[m.pos+i] != r {
			return false
		}
	}
	return true
}

func (m *machine) matchLiteralIC(lit int) bool {
	n := len(m.p.literals[lit])
	if m.pos+n > len(m.input) {
		return false
	}
	return m.fold.String(string(m.input[m.pos:m.pos+n])) == m.p.folded[lit]
}

// --- User code -------------------------------------------------------------

func (m *machine) call(fi int, offsets []int) (any, error) {
	fn := &m.prog.Functions[fi]
	args := make([]any, len(offsets))
	for i, p := range offsets {
		args[i] = m.peek(p)
	}
	c := &Context{m: m, fn: fn, args: args, start: m.savedPos, end: m.pos}
	v, err := m.p.funcs[fi](c)
	if err != nil {
		return nil, m.userError(fn, err)
	}
	if fn.Kind == bytecode.PredicateFunc {
		return truthy(v), nil
	}
	return v, nil
}

func (m *machine) userError(fn *bytecode.Function, err error) error {
	if serr, ok := err.(*SyntaxError); ok {
		return serr
	}
	loc := fn.Location
	return &RuntimeError{Message: fmt.Sprintf("%s code failed", fn.Kind), Location: &loc, Err: err}
}

// truthy decides predicate results: nil, false, zero numbers and empty
// strings are false, everything else is true.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0 && !math.IsNaN(x)
	case string:
		return x != ""
	}
	return true
}

// count coerces a repetition boundary to a non-negative int.
func count(v any) (int, error) {
	var n int
	var err error
	switch x := v.(type) {
	case int:
		n = x
	case int8:
		n, err = safecast.Conv[int](x)
	case int16:
		n, err = safecast.Conv[int](x)
	case int32:
		n, err = safecast.Conv[int](x)
	case int64:
		n, err = safecast.Conv[int](x)
	case uint:
		n, err = safecast.Conv[int](x)
	case uint8:
		n, err = safecast.Conv[int](x)
	case uint16:
		n, err = safecast.Conv[int](x)
	case uint32:
		n, err = safecast.Conv[int](x)
	case uint64:
		n, err = safecast.Conv[int](x)
	case float32:
		n, err = safecast.Convert[int](x)
	case float64:
		n, err = safecast.Convert[int](x)
	case string:
		n, err = strconv.Atoi(strings.TrimSpace(x))
	default:
		return 0, boundaryError(v, nil)
	}
	if err != nil {
		return 0, boundaryError(v, err)
	}
	if n < 0 {
		return 0, boundaryError(v, nil)
	}
	return n, nil
}

func boundaryError(v any, err error) error {
	return &RuntimeError{
		Message: fmt.Sprintf("repetition boundary %#v is not a non-negative integer", v),
		Err:     err,
	}
}
