package grammar

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/npillmayer/gopeg/ast"
)

// unquote removes the quotes of a string literal and resolves escapes.
// Both quote characters are accepted.
func unquote(lit string) (string, error) {
	if len(lit) < 2 || lit[0] != lit[len(lit)-1] || (lit[0] != '"' && lit[0] != '\'') {
		return "", fmt.Errorf("malformed literal %s", lit)
	}
	runes, err := unescape(lit[1 : len(lit)-1])
	if err != nil {
		return "", err
	}
	return string(runes), nil
}

// unescape resolves escape sequences: \n \r \t \b \f \v \0, \xHH, \uHHHH,
// \u{H…}, a backslash before a line break (which continues the line) and a
// backslash before any other character, which stands for that character.
func unescape(s string) ([]rune, error) {
	var out []rune
	for i := 0; i < len(s); {
		r, w := utf8.DecodeRuneInString(s[i:])
		i += w
		if r != '\\' {
			out = append(out, r)
			continue
		}
		if i >= len(s) {
			return nil, fmt.Errorf("trailing backslash")
		}
		r, w = utf8.DecodeRuneInString(s[i:])
		i += w
		switch r {
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'b':
			out = append(out, '\b')
		case 'f':
			out = append(out, '\f')
		case 'v':
			out = append(out, '\v')
		case '0':
			out = append(out, 0)
		case '\n':
		case '\r':
			if i < len(s) && s[i] == '\n' {
				i++
			}
		case 'x':
			v, n, err := hex(s[i:], 2)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
			i += n
		case 'u':
			if i < len(s) && s[i] == '{' {
				end := i + 1
				for end < len(s) && s[end] != '}' {
					end++
				}
				if end >= len(s) {
					return nil, fmt.Errorf("unterminated \\u{…} escape")
				}
				v, err := strconv.ParseUint(s[i+1:end], 16, 32)
				if err != nil || v > utf8.MaxRune {
					return nil, fmt.Errorf("invalid code point \\u{%s}", s[i+1:end])
				}
				out = append(out, rune(v))
				i = end + 1
				continue
			}
			v, n, err := hex(s[i:], 4)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
			i += n
		default:
			out = append(out, r)
		}
	}
	return out, nil
}

func hex(s string, n int) (rune, int, error) {
	if len(s) < n {
		return 0, 0, fmt.Errorf("incomplete hex escape")
	}
	v, err := strconv.ParseUint(s[:n], 16, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid hex escape %q", s[:n])
	}
	return rune(v), n, nil
}

// parseClass reads a character class lexeme such as `[^a-z\]_]`.
func parseClass(lit string) (*ast.Class, error) {
	if len(lit) < 2 || lit[0] != '[' || lit[len(lit)-1] != ']' {
		return nil, fmt.Errorf("malformed class %s", lit)
	}
	body := lit[1 : len(lit)-1]
	c := &ast.Class{}
	if len(body) > 0 && body[0] == '^' {
		c.Inverted = true
		body = body[1:]
	}
	runes, escaped, err := classRunes(body)
	if err != nil {
		return nil, err
	}
	for i := 0; i < len(runes); i++ {
		lo := runes[i]
		if i+2 < len(runes) && runes[i+1] == '-' && !escaped[i+1] {
			hi := runes[i+2]
			if hi < lo {
				return nil, fmt.Errorf("invalid character range %c-%c", lo, hi)
			}
			c.Parts = append(c.Parts, ast.ClassPart{Low: lo, High: hi})
			i += 2
			continue
		}
		c.Parts = append(c.Parts, ast.ClassPart{Low: lo, High: lo})
	}
	return c, nil
}

// classRunes resolves the escapes of a class body, remembering which runes
// were escaped, so that `\-` is not taken as a range operator.
func classRunes(body string) ([]rune, []bool, error) {
	var runes []rune
	var escaped []bool
	for i := 0; i < len(body); {
		r, w := utf8.DecodeRuneInString(body[i:])
		if r != '\\' {
			runes = append(runes, r)
			escaped = append(escaped, false)
			i += w
			continue
		}
		// find the extent of this escape and resolve it alone
		j := i + 1
		if j < len(body) {
			_, w2 := utf8.DecodeRuneInString(body[j:])
			j += w2
			switch body[i+1] {
			case 'x':
				j = min(i+4, len(body))
			case 'u':
				if j < len(body) && body[j] == '{' {
					for j < len(body) && body[j] != '}' {
						j++
					}
					j = min(j+1, len(body))
				} else {
					j = min(i+6, len(body))
				}
			}
		}
		rs, err := unescape(body[i:j])
		if err != nil {
			return nil, nil, err
		}
		for _, r := range rs {
			runes = append(runes, r)
			escaped = append(escaped, true)
		}
		i = j
	}
	return runes, escaped, nil
}
