package candid

import (
	"fmt"
	"strings"
	"unicode"
)

// Lexer for the Candid textual interface-description grammar.

type tokenType int

const (
	tokEOF tokenType = iota
	tokIdent
	tokNumber
	tokText
	tokEquals
	tokColon
	tokSemi
	tokComma
	tokLBrace
	tokRBrace
	tokLParen
	tokRParen
	tokArrow
)

func (t tokenType) String() string {
	switch t {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return "identifier"
	case tokNumber:
		return "number"
	case tokText:
		return "text literal"
	case tokEquals:
		return "'='"
	case tokColon:
		return "':'"
	case tokSemi:
		return "';'"
	case tokComma:
		return "','"
	case tokLBrace:
		return "'{'"
	case tokRBrace:
		return "'}'"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokArrow:
		return "'->'"
	default:
		return "token"
	}
}

type token struct {
	text string
	typ  tokenType
	line int
	col  int
}

type lexer struct {
	src  string
	pos  int
	line int
	col  int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1, col: 1}
}

func (l *lexer) errorf(format string, args ...any) error {
	return fmt.Errorf("%d:%d: %s", l.line, l.col, fmt.Sprintf(format, args...))
}

func (l *lexer) advance() byte {
	c := l.src[l.pos]
	l.pos++
	if c == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return c
}

func (l *lexer) peek() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) peekAt(off int) byte {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

// skipTrivia consumes whitespace and comments. Block comments nest, per the
// Candid grammar.
func (l *lexer) skipTrivia() error {
	for l.pos < len(l.src) {
		c := l.peek()
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.advance()
		case c == '/' && l.peekAt(1) == '/':
			for l.pos < len(l.src) && l.peek() != '\n' {
				l.advance()
			}
		case c == '/' && l.peekAt(1) == '*':
			l.advance()
			l.advance()
			depth := 1
			for depth > 0 {
				if l.pos >= len(l.src) {
					return l.errorf("unterminated block comment")
				}
				if l.peek() == '/' && l.peekAt(1) == '*' {
					l.advance()
					l.advance()
					depth++
				} else if l.peek() == '*' && l.peekAt(1) == '/' {
					l.advance()
					l.advance()
					depth--
				} else {
					l.advance()
				}
			}
		default:
			return nil
		}
	}
	return nil
}

func isIdentStart(c byte) bool {
	return c == '_' || unicode.IsLetter(rune(c))
}

func isIdentPart(c byte) bool {
	return c == '_' || unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c))
}

func (l *lexer) next() (token, error) {
	if err := l.skipTrivia(); err != nil {
		return token{}, err
	}
	if l.pos >= len(l.src) {
		return token{typ: tokEOF, line: l.line, col: l.col}, nil
	}

	line, col := l.line, l.col
	c := l.peek()

	switch {
	case c == '=':
		l.advance()
		return token{typ: tokEquals, text: "=", line: line, col: col}, nil
	case c == ':':
		l.advance()
		return token{typ: tokColon, text: ":", line: line, col: col}, nil
	case c == ';':
		l.advance()
		return token{typ: tokSemi, text: ";", line: line, col: col}, nil
	case c == ',':
		l.advance()
		return token{typ: tokComma, text: ",", line: line, col: col}, nil
	case c == '{':
		l.advance()
		return token{typ: tokLBrace, text: "{", line: line, col: col}, nil
	case c == '}':
		l.advance()
		return token{typ: tokRBrace, text: "}", line: line, col: col}, nil
	case c == '(':
		l.advance()
		return token{typ: tokLParen, text: "(", line: line, col: col}, nil
	case c == ')':
		l.advance()
		return token{typ: tokRParen, text: ")", line: line, col: col}, nil
	case c == '-':
		l.advance()
		if l.peek() != '>' {
			return token{}, l.errorf("expected '>' after '-'")
		}
		l.advance()
		return token{typ: tokArrow, text: "->", line: line, col: col}, nil
	case c == '"':
		return l.lexText(line, col)
	case unicode.IsDigit(rune(c)):
		return l.lexNumber(line, col)
	case isIdentStart(c):
		start := l.pos
		for l.pos < len(l.src) && isIdentPart(l.peek()) {
			l.advance()
		}
		return token{typ: tokIdent, text: l.src[start:l.pos], line: line, col: col}, nil
	default:
		return token{}, l.errorf("unexpected character %q", string(c))
	}
}

func (l *lexer) lexNumber(line, col int) (token, error) {
	start := l.pos
	if l.peek() == '0' && (l.peekAt(1) == 'x' || l.peekAt(1) == 'X') {
		l.advance()
		l.advance()
		for l.pos < len(l.src) && (isHexDigit(l.peek()) || l.peek() == '_') {
			l.advance()
		}
	} else {
		for l.pos < len(l.src) && (unicode.IsDigit(rune(l.peek())) || l.peek() == '_') {
			l.advance()
		}
	}
	return token{typ: tokNumber, text: l.src[start:l.pos], line: line, col: col}, nil
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func (l *lexer) lexText(line, col int) (token, error) {
	l.advance() // opening quote
	var b strings.Builder
	for {
		if l.pos >= len(l.src) {
			return token{}, l.errorf("unterminated text literal")
		}
		c := l.advance()
		switch c {
		case '"':
			return token{typ: tokText, text: b.String(), line: line, col: col}, nil
		case '\\':
			if l.pos >= len(l.src) {
				return token{}, l.errorf("unterminated escape sequence")
			}
			esc := l.advance()
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '"', '\\', '\'':
				b.WriteByte(esc)
			default:
				return token{}, l.errorf("unknown escape \\%s", string(esc))
			}
		default:
			b.WriteByte(c)
		}
	}
}

// lexAll tokenizes the whole source up front; interface documents are small
// enough that the simplicity beats streaming.
func lexAll(src string) ([]token, error) {
	l := newLexer(src)
	var toks []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.typ == tokEOF {
			return toks, nil
		}
	}
}
