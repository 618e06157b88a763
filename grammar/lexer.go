package grammar

import (
	"fmt"
	"strings"
	"sync"

	"github.com/npillmayer/gopeg"
	"github.com/timtadh/lexmachine"
	"github.com/timtadh/lexmachine/machines"
)

// Token types. Punctuation tokens use their character value as type.
const (
	EOF gopeg.TokType = -1 - iota
	Ident
	Int
	String
	Class
	Code
	TopCode
	DotDot
)

var punctuation = []string{"=", "/", ":", "@", "$", "&", "!", "?", "*", "+",
	"(", ")", ".", "|", ",", ";"}

// Token is a token of grammar text. Span holds byte offsets.
type Token struct {
	typ    gopeg.TokType
	lexeme string
	value  interface{}
	span   gopeg.Span
}

var _ gopeg.Token = (*Token)(nil)

// TokType is part of interface gopeg.Token.
func (t *Token) TokType() gopeg.TokType {
	return t.typ
}

// Lexeme is part of interface gopeg.Token.
func (t *Token) Lexeme() string {
	return t.lexeme
}

// Value is part of interface gopeg.Token. Code tokens carry the code
// without braces; integers carry their lexeme.
func (t *Token) Value() interface{} {
	return t.value
}

// Span is part of interface gopeg.Token.
func (t *Token) Span() gopeg.Span {
	return t.span
}

func (t *Token) String() string {
	return fmt.Sprintf("<%s %q %s>", tokenName(t.typ), t.lexeme, t.span)
}

func tokenName(typ gopeg.TokType) string {
	switch typ {
	case EOF:
		return "end of grammar"
	case Ident:
		return "identifier"
	case Int:
		return "integer"
	case String:
		return "string literal"
	case Class:
		return "character class"
	case Code, TopCode:
		return "code block"
	case DotDot:
		return `".."`
	}
	return fmt.Sprintf("%q", string(rune(typ)))
}

// --- lexmachine adapter ----------------------------------------------------

// lmAdapter holds a compiled lexmachine lexer for grammar text.
type lmAdapter struct {
	Lexer *lexmachine.Lexer
}

var (
	lexerOnce sync.Once
	lexer     *lmAdapter
	lexerErr  error
)

// newLexer compiles the grammar lexer once.
func newLexer() (*lmAdapter, error) {
	lexerOnce.Do(func() {
		adapter := &lmAdapter{Lexer: lexmachine.NewLexer()}
		lx := adapter.Lexer
		lx.Add([]byte(`( |\t|\r|\n)+`), skip)
		lx.Add([]byte(`//[^\n]*`), skip)
		lx.Add([]byte(`/\*([^*]|\r|\n|(\*+([^*/]|\r|\n)))*\*+/`), skip)
		lx.Add([]byte(`([a-z]|[A-Z]|_)([a-z]|[A-Z]|[0-9]|_)*`), makeToken(Ident))
		lx.Add([]byte(`[0-9]+`), makeToken(Int))
		lx.Add([]byte(`"([^"\\]|\\(.|\n))*"`), makeToken(String))
		lx.Add([]byte(`'([^'\\]|\\(.|\n))*'`), makeToken(String))
		lx.Add([]byte(`\[([^\]\\]|\\(.|\n))*\]`), makeToken(Class))
		lx.Add([]byte(`\{`), scanCode)
		lx.Add([]byte(`\.\.`), makeToken(DotDot))
		for _, p := range punctuation {
			r := "\\" + strings.Join(strings.Split(p, ""), "\\")
			lx.Add([]byte(r), makeToken(gopeg.TokType(p[0])))
		}
		if err := lx.Compile(); err != nil {
			tracer().Errorf("error compiling DFA: %v", err)
			lexerErr = err
			return
		}
		lexer = adapter
	})
	return lexer, lexerErr
}

// skip is an action which ignores the scanned match.
func skip(*lexmachine.Scanner, *machines.Match) (interface{}, error) {
	return nil, nil
}

// makeToken is an action which wraps a scanned match into a token.
func makeToken(typ gopeg.TokType) lexmachine.Action {
	return func(s *lexmachine.Scanner, m *machines.Match) (interface{}, error) {
		lexeme := string(m.Bytes)
		return &Token{
			typ:    typ,
			lexeme: lexeme,
			value:  lexeme,
			span:   gopeg.Span{m.TC, m.TC + len(m.Bytes)},
		}, nil
	}
}

// scanCode is the action for '{'. Code blocks may contain nested braces,
// which the DFA cannot count, so the block is scanned here and the scanner
// is advanced past its end. A block opening with "{{" and closing with "}}"
// is a top-level code block.
func scanCode(s *lexmachine.Scanner, m *machines.Match) (interface{}, error) {
	text := s.Text
	start := m.TC
	end, err := closingBrace(text, start)
	if err != nil {
		return nil, err
	}
	s.TC = end
	tok := &Token{
		typ:    Code,
		lexeme: string(text[start:end]),
		value:  string(text[start+1 : end-1]),
		span:   gopeg.Span{start, end},
	}
	if start+1 < end && text[start+1] == '{' {
		if inner, err := closingBrace(text, start+1); err == nil && inner == end-1 {
			tok.typ = TopCode
			tok.value = string(text[start+2 : end-2])
		}
	}
	return tok, nil
}

// closingBrace returns the offset after the brace closing the one at
// text[open]. Go string, rune and comment literals are skipped.
func closingBrace(text []byte, open int) (int, error) {
	depth := 0
	for i := open; i < len(text); i++ {
		switch c := text[i]; c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, nil
			}
		case '"', '\'':
			for i++; i < len(text) && text[i] != c && text[i] != '\n'; i++ {
				if text[i] == '\\' {
					i++
				}
			}
		case '`':
			for i++; i < len(text) && text[i] != '`'; i++ {
			}
		case '/':
			if i+1 < len(text) && text[i+1] == '/' {
				for i < len(text) && text[i] != '\n' {
					i++
				}
			} else if i+1 < len(text) && text[i+1] == '*' {
				i += 2
				for i+1 < len(text) && !(text[i] == '*' && text[i+1] == '/') {
					i++
				}
				i++
			}
		}
	}
	return 0, &lexError{offset: open, msg: "unterminated code block"}
}

type lexError struct {
	offset int
	msg    string
}

func (e *lexError) Error() string {
	return fmt.Sprintf("%s at offset %d", e.msg, e.offset)
}

// tokenize splits grammar text into tokens, ending with an EOF token.
func tokenize(text string) ([]*Token, error) {
	lm, err := newLexer()
	if err != nil {
		return nil, err
	}
	scanner, err := lm.Lexer.Scanner([]byte(text))
	if err != nil {
		return nil, err
	}
	var toks []*Token
	for {
		tok, err, eof := scanner.Next()
		if err != nil {
			switch e := err.(type) {
			case *machines.UnconsumedInput:
				return toks, &lexError{offset: e.StartTC, msg: "unexpected character"}
			case *lexError:
				return toks, e
			}
			return toks, err
		}
		if eof {
			break
		}
		if tok == nil {
			continue
		}
		toks = append(toks, tok.(*Token))
	}
	toks = append(toks, &Token{typ: EOF, span: gopeg.Span{len(text), len(text)}})
	tracer().Debugf("grammar text has %d tokens", len(toks))
	return toks, nil
}
