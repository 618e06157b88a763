package bytecode

import "fmt"

// Opcode is an instruction of the parsing machine.
type Opcode int

// Instructions. Stack effects are given as (popped → pushed).
const (
	PushEmptyString    Opcode = iota // ( → "")
	PushNil                          // ( → nil)
	PushFailed                       // ( → FAILED)
	PushEmptyArray                   // ( → [])
	PushCurrPos                      // ( → pos)
	Pop                              // (x → )
	PopCurrPos                       // (pos → ), cursor = pos
	PopN                             // n: (x1…xn → )
	Nip                              // (x y → y)
	Append                           // (arr x → arr+x)
	Wrap                             // n: (x1…xn → [x1…xn])
	Text                             // (pos → input[pos:cursor])
	Pluck                            // n k p1…pk: (x1…xn → v)
	If                               // t f: branch on truthy top
	IfError                          // t f: branch on top == FAILED
	IfNotError                       // t f: branch on top != FAILED
	IfLt                             // min t f: branch on len(top) < min
	IfGe                             // max t f: branch on len(top) >= max
	IfLtDynamic                      // p t f: branch on len(top) < stack[p]
	IfGeDynamic                      // p t f: branch on len(top) >= stack[p]
	WhileNotError                    // b: loop body while top != FAILED
	MatchAny                         // a f: branch on cursor < len(input)
	MatchString                      // lit a f: branch on input has literal at cursor
	MatchStringIC                    // lit a f: same, case-insensitive
	MatchCharClass                   // cls a f: branch on class matches input at cursor
	AcceptN                          // n: ( → input[cursor:cursor+n]), advance
	AcceptString                     // lit: ( → literal), advance
	Fail                             // exp: ( → FAILED), record expectation
	LoadSavedPos                     // p: savedPos = stack[p]
	UpdateSavedPos                   // savedPos = cursor
	Call                             // f n pc p1…ppc: (x1…xn → f(args))
	Rule                             // r: ( → result of rule r)
	SilentFailsOn                    // suppress expectation recording
	SilentFailsOff                   // re-enable expectation recording
	SourceMapPush                    // loc: open a source range
	SourceMapPop                     // close the innermost source range
	SourceMapLabelPush               // p label loc: name a stack slot
	SourceMapLabelPop                // p: drop the name of a stack slot
	opcodeCount
)

// shape describes the operand layout of an opcode.
type shape struct {
	name     string
	args     int  // fixed operands
	variadic int  // index of the operand holding a count of extra operands, or -1
	cond     bool // followed by then- and else-lengths
	loop     bool // followed by a body length
}

var shapes = [opcodeCount]shape{
	PushEmptyString:    {"PUSH_EMPTY_STRING", 0, -1, false, false},
	PushNil:            {"PUSH_NIL", 0, -1, false, false},
	PushFailed:         {"PUSH_FAILED", 0, -1, false, false},
	PushEmptyArray:     {"PUSH_EMPTY_ARRAY", 0, -1, false, false},
	PushCurrPos:        {"PUSH_CURR_POS", 0, -1, false, false},
	Pop:                {"POP", 0, -1, false, false},
	PopCurrPos:         {"POP_CURR_POS", 0, -1, false, false},
	PopN:               {"POP_N", 1, -1, false, false},
	Nip:                {"NIP", 0, -1, false, false},
	Append:             {"APPEND", 0, -1, false, false},
	Wrap:               {"WRAP", 1, -1, false, false},
	Text:               {"TEXT", 0, -1, false, false},
	Pluck:              {"PLUCK", 2, 1, false, false},
	If:                 {"IF", 0, -1, true, false},
	IfError:            {"IF_ERROR", 0, -1, true, false},
	IfNotError:         {"IF_NOT_ERROR", 0, -1, true, false},
	IfLt:               {"IF_LT", 1, -1, true, false},
	IfGe:               {"IF_GE", 1, -1, true, false},
	IfLtDynamic:        {"IF_LT_DYNAMIC", 1, -1, true, false},
	IfGeDynamic:        {"IF_GE_DYNAMIC", 1, -1, true, false},
	WhileNotError:      {"WHILE_NOT_ERROR", 0, -1, false, true},
	MatchAny:           {"MATCH_ANY", 0, -1, true, false},
	MatchString:        {"MATCH_STRING", 1, -1, true, false},
	MatchStringIC:      {"MATCH_STRING_IC", 1, -1, true, false},
	MatchCharClass:     {"MATCH_CHAR_CLASS", 1, -1, true, false},
	AcceptN:            {"ACCEPT_N", 1, -1, false, false},
	AcceptString:       {"ACCEPT_STRING", 1, -1, false, false},
	Fail:               {"FAIL", 1, -1, false, false},
	LoadSavedPos:       {"LOAD_SAVED_POS", 1, -1, false, false},
	UpdateSavedPos:     {"UPDATE_SAVED_POS", 0, -1, false, false},
	Call:               {"CALL", 3, 2, false, false},
	Rule:               {"RULE", 1, -1, false, false},
	SilentFailsOn:      {"SILENT_FAILS_ON", 0, -1, false, false},
	SilentFailsOff:     {"SILENT_FAILS_OFF", 0, -1, false, false},
	SourceMapPush:      {"SOURCE_MAP_PUSH", 1, -1, false, false},
	SourceMapPop:       {"SOURCE_MAP_POP", 0, -1, false, false},
	SourceMapLabelPush: {"SOURCE_MAP_LABEL_PUSH", 3, -1, false, false},
	SourceMapLabelPop:  {"SOURCE_MAP_LABEL_POP", 1, -1, false, false},
}

func (op Opcode) String() string {
	if op < 0 || op >= opcodeCount {
		return fmt.Sprintf("OP(%d)", int(op))
	}
	return shapes[op].name
}

// Valid is true for defined opcodes.
func (op Opcode) Valid() bool {
	return op >= 0 && op < opcodeCount
}

// Instr is a decoded instruction.
type Instr struct {
	Op   Opcode
	Args []int // fixed and variadic operands
	Then []int // then-branch or loop body
	Else []int // else-branch
	Len  int   // total length in code units
}

// Decode decodes the instruction at code[ip].
func Decode(code []int, ip int) (Instr, error) {
	if ip >= len(code) {
		return Instr{}, fmt.Errorf("bytecode: read beyond end of code at %d", ip)
	}
	op := Opcode(code[ip])
	if !op.Valid() {
		return Instr{}, fmt.Errorf("bytecode: invalid opcode %d at %d", code[ip], ip)
	}
	sh := shapes[op]
	n := 1 + sh.args
	if n > len(code)-ip {
		return Instr{}, fmt.Errorf("bytecode: truncated %s at %d", op, ip)
	}
	if sh.variadic >= 0 {
		n += code[ip+1+sh.variadic]
		if n > len(code)-ip {
			return Instr{}, fmt.Errorf("bytecode: truncated operands of %s at %d", op, ip)
		}
	}
	in := Instr{Op: op, Args: code[ip+1 : ip+n]}
	switch {
	case sh.cond:
		if ip+n+2 > len(code) {
			return Instr{}, fmt.Errorf("bytecode: truncated branch lengths of %s at %d", op, ip)
		}
		tl, el := code[ip+n], code[ip+n+1]
		start := ip + n + 2
		if tl < 0 || el < 0 || start+tl+el > len(code) {
			return Instr{}, fmt.Errorf("bytecode: branches of %s at %d exceed code", op, ip)
		}
		in.Then = code[start : start+tl]
		in.Else = code[start+tl : start+tl+el]
		in.Len = n + 2 + tl + el
	case sh.loop:
		if ip+n+1 > len(code) {
			return Instr{}, fmt.Errorf("bytecode: truncated body length of %s at %d", op, ip)
		}
		bl := code[ip+n]
		start := ip + n + 1
		if bl < 0 || start+bl > len(code) {
			return Instr{}, fmt.Errorf("bytecode: body of %s at %d exceeds code", op, ip)
		}
		in.Then = code[start : start+bl]
		in.Len = n + 1 + bl
	default:
		in.Len = n
	}
	return in, nil
}
