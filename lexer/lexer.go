// Package lexer implements TILT's lexer (spec component C1): source
// text in, a stream of positioned tokens out. There is no recovery —
// the first invalid byte is a fatal error with its byte offset
// (spec §4.1, §7).
package lexer

import (
	"strconv"
	"strings"

	"github.com/tiltlang/tilt/token"
)

// Error reports a lexical error at a byte offset into the source.
type Error struct {
	Offset  token.Pos
	Message string
}

func (e *Error) Error() string {
	return "lex error at offset " + strconv.Itoa(int(e.Offset)) + ": " + e.Message
}

// identStart/identCont classify bytes legal in TILT identifiers.
// Dots are identifier-legal so that operation mnemonics like "i32.add"
// lex as a single token (spec §4.1).
func identStart(b byte) bool {
	return b == '_' || b == '.' || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

func identCont(b byte) bool {
	return identStart(b) || ('0' <= b && b <= '9')
}

func isDigit(b byte) bool { return '0' <= b && b <= '9' }

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\r' || b == '\n' }

// Lexer scans a source buffer into tokens on demand. The source buffer
// is borrowed for the Lexer's lifetime (spec §3.5) — Token.Text slices
// directly into it wherever possible.
type Lexer struct {
	src string
	pos int
}

// New returns a Lexer over src. src is retained, not copied.
func New(src string) *Lexer {
	return &Lexer{src: src}
}

// Tokenize lexes src in full and returns every token including a
// trailing token.EOF, or the first lexical Error encountered.
func Tokenize(src string) ([]token.Token, error) {
	l := New(src)
	var toks []token.Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Kind == token.EOF {
			return toks, nil
		}
	}
}

func (l *Lexer) peek() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekAt(off int) byte {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *Lexer) skipTrivia() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case isSpace(c):
			l.pos++
		case c == '#':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		default:
			return
		}
	}
}

// Next returns the next token, or a lexical Error at the first
// unrecognized byte. At end of input it returns a token.EOF
// repeatedly.
func (l *Lexer) Next() (token.Token, error) {
	l.skipTrivia()
	start := l.pos

	if l.pos >= len(l.src) {
		return token.Token{Kind: token.EOF, Start: token.Pos(start), End: token.Pos(start)}, nil
	}

	c := l.src[l.pos]

	switch {
	case identStart(c):
		return l.lexIdent(start), nil
	case isDigit(c):
		return l.lexInt(start), nil
	case c == '-' && isDigit(l.peekAt(1)):
		return l.lexInt(start), nil
	case c == '"':
		return l.lexString(start)
	}

	switch c {
	case '{':
		l.pos++
		return l.simple(token.LBrace, start), nil
	case '}':
		l.pos++
		return l.simple(token.RBrace, start), nil
	case '(':
		l.pos++
		return l.simple(token.LParen, start), nil
	case ')':
		l.pos++
		return l.simple(token.RParen, start), nil
	case '[':
		l.pos++
		return l.simple(token.LBracket, start), nil
	case ']':
		l.pos++
		return l.simple(token.RBracket, start), nil
	case ':':
		l.pos++
		return l.simple(token.Colon, start), nil
	case ',':
		l.pos++
		return l.simple(token.Comma, start), nil
	case '=':
		l.pos++
		return l.simple(token.Equals, start), nil
	case '-':
		if l.peekAt(1) == '>' {
			l.pos += 2
			return l.simple(token.Arrow, start), nil
		}
	}

	return token.Token{}, &Error{Offset: token.Pos(start), Message: "unexpected byte " + strconv.QuoteRune(rune(c))}
}

func (l *Lexer) simple(kind token.Kind, start int) token.Token {
	return token.Token{Kind: kind, Start: token.Pos(start), End: token.Pos(l.pos)}
}

func (l *Lexer) lexIdent(start int) token.Token {
	l.pos++ // identStart byte already consumed by caller's classification
	for l.pos < len(l.src) && identCont(l.src[l.pos]) {
		l.pos++
	}
	text := l.src[start:l.pos]
	return token.Token{Kind: token.Lookup(text), Start: token.Pos(start), End: token.Pos(l.pos), Text: text}
}

func (l *Lexer) lexInt(start int) token.Token {
	if l.src[l.pos] == '-' {
		l.pos++
	}
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	text := l.src[start:l.pos]
	return token.Token{Kind: token.Int, Start: token.Pos(start), End: token.Pos(l.pos), Text: text}
}

func (l *Lexer) lexString(start int) (token.Token, error) {
	l.pos++ // opening quote
	var b strings.Builder
	for {
		if l.pos >= len(l.src) {
			return token.Token{}, &Error{Offset: token.Pos(start), Message: "unterminated string literal"}
		}
		c := l.src[l.pos]
		if c == '"' {
			l.pos++
			break
		}
		if c == '\\' {
			l.pos++
			if l.pos >= len(l.src) {
				return token.Token{}, &Error{Offset: token.Pos(l.pos), Message: "unterminated escape sequence"}
			}
			switch esc := l.src[l.pos]; esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			default:
				b.WriteByte(esc)
			}
			l.pos++
			continue
		}
		b.WriteByte(c)
		l.pos++
	}
	return token.Token{Kind: token.String, Start: token.Pos(start), End: token.Pos(l.pos), Text: b.String()}, nil
}
