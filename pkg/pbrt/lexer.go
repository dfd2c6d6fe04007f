package pbrt

import (
	"strings"

	"github.com/tdewolff/parse/v2"
)

// StripComments removes '#' comments outside quoted strings. Newlines are
// kept so line numbers in later errors match the original text.
func StripComments(src string) string {
	var b strings.Builder
	b.Grow(len(src))
	inQuotes := false
	inComment := false
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case inComment:
			if c == '\n' {
				inComment = false
				b.WriteByte(c)
			}
		case c == '"':
			inQuotes = !inQuotes
			b.WriteByte(c)
		case c == '\\' && inQuotes && i+1 < len(src):
			b.WriteByte(c)
			b.WriteByte(src[i+1])
			i++
		case c == '#' && !inQuotes:
			inComment = true
		case c == '\n':
			// pbrt strings never span lines
			inQuotes = false
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

type tokenType int

const (
	tokEOF tokenType = iota
	tokIdent
	tokString
	tokNumber
	tokLBracket
	tokRBracket
	tokError
)

func (t tokenType) String() string {
	switch t {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return "identifier"
	case tokString:
		return "string"
	case tokNumber:
		return "number"
	case tokLBracket:
		return "'['"
	case tokRBracket:
		return "']'"
	default:
		return "invalid token"
	}
}

type token struct {
	typ    tokenType
	text   string // unquoted text for strings
	offset int
}

// lexer splits comment-free pbrt text into tokens
type lexer struct {
	r *parse.Input
}

func newLexer(src string) *lexer {
	return &lexer{r: parse.NewInputString(src)}
}

func (l *lexer) atEOF() bool {
	return l.r.Peek(0) == 0 && l.r.Err() != nil
}

func (l *lexer) skipSpace() {
	for !l.atEOF() {
		switch l.r.Peek(0) {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			l.r.Move(1)
		default:
			l.r.Skip()
			return
		}
	}
	l.r.Skip()
}

func (l *lexer) next() token {
	l.skipSpace()
	start := l.r.Offset()
	if l.atEOF() {
		return token{typ: tokEOF, offset: start}
	}

	c := l.r.Peek(0)
	switch {
	case c == '[':
		l.r.Move(1)
		l.r.Skip()
		return token{typ: tokLBracket, text: "[", offset: start}
	case c == ']':
		l.r.Move(1)
		l.r.Skip()
		return token{typ: tokRBracket, text: "]", offset: start}
	case c == '"':
		return l.lexString(start)
	case isNumberStart(c):
		for isNumberByte(l.r.Peek(0)) {
			l.r.Move(1)
		}
		return token{typ: tokNumber, text: string(l.r.Shift()), offset: start}
	case isIdentStart(c):
		for isIdentByte(l.r.Peek(0)) {
			l.r.Move(1)
		}
		return token{typ: tokIdent, text: string(l.r.Shift()), offset: start}
	}

	l.r.Move(1)
	return token{typ: tokError, text: string(l.r.Shift()), offset: start}
}

func (l *lexer) lexString(start int) token {
	l.r.Move(1)
	var b strings.Builder
	for {
		if l.atEOF() {
			l.r.Skip()
			return token{typ: tokError, text: "unterminated string", offset: start}
		}
		c := l.r.Peek(0)
		switch c {
		case '"':
			l.r.Move(1)
			l.r.Skip()
			return token{typ: tokString, text: b.String(), offset: start}
		case '\n':
			l.r.Skip()
			return token{typ: tokError, text: "unterminated string", offset: start}
		case '\\':
			l.r.Move(1)
			if l.atEOF() {
				continue
			}
			switch esc := l.r.Peek(0); esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(esc)
			}
			l.r.Move(1)
		default:
			b.WriteByte(c)
			l.r.Move(1)
		}
	}
}

func isNumberStart(c byte) bool {
	return (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.'
}

func isNumberByte(c byte) bool {
	return isNumberStart(c) || c == 'e' || c == 'E'
}

func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isIdentByte(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
