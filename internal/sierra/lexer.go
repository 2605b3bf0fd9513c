package sierra

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokPunct
	tokArrow
)

type token struct {
	kind tokenKind
	text string
	line int
	col  int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return fmt.Sprintf("identifier %q", t.text)
	case tokNumber:
		return fmt.Sprintf("number %s", t.text)
	default:
		return fmt.Sprintf("%q", t.text)
	}
}

// ParseError reports a syntax error in the Sierra text.
type ParseError struct {
	Line int
	Col  int
	Msg  string
}

func (e *ParseError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("parse error at %d:%d: %s", e.Line, e.Col, e.Msg)
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

func (l *lexer) peekRune() (rune, int) {
	if l.pos >= len(l.src) {
		return 0, 0
	}
	return utf8.DecodeRuneInString(l.src[l.pos:])
}

func (l *lexer) advance(n int) {
	for i := 0; i < n && l.pos < len(l.src); {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		l.pos += size
		i += size
		if r == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
	}
}

func (l *lexer) skipSpaceAndComments() {
	for l.pos < len(l.src) {
		r, size := l.peekRune()
		switch {
		case unicode.IsSpace(r):
			l.advance(size)
		case r == '/' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '/':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.advance(1)
			}
		default:
			return
		}
	}
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func (l *lexer) next() (token, error) {
	l.skipSpaceAndComments()
	tok := token{line: l.line, col: l.col}
	if l.pos >= len(l.src) {
		tok.kind = tokEOF
		return tok, nil
	}
	r, size := l.peekRune()
	switch {
	case isIdentStart(r):
		start := l.pos
		for l.pos < len(l.src) {
			r, size = l.peekRune()
			if isIdentPart(r) {
				l.advance(size)
				continue
			}
			// Path separators stay inside the identifier: core::bool.
			if r == ':' && l.pos+2 < len(l.src) && l.src[l.pos+1] == ':' {
				nr, _ := utf8.DecodeRuneInString(l.src[l.pos+2:])
				if isIdentStart(nr) {
					l.advance(2)
					continue
				}
			}
			break
		}
		tok.kind = tokIdent
		tok.text = norm.NFC.String(l.src[start:l.pos])
		return tok, nil
	case unicode.IsDigit(r) || (r == '-' && l.pos+1 < len(l.src) && l.src[l.pos+1] >= '0' && l.src[l.pos+1] <= '9'):
		start := l.pos
		l.advance(size)
		for l.pos < len(l.src) && l.src[l.pos] >= '0' && l.src[l.pos] <= '9' {
			l.advance(1)
		}
		tok.kind = tokNumber
		tok.text = l.src[start:l.pos]
		return tok, nil
	case r == '-' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '>':
		l.advance(2)
		tok.kind = tokArrow
		tok.text = "->"
		return tok, nil
	}
	switch r {
	case '[', ']', '<', '>', '(', ')', '{', '}', ',', ';', ':', '=', '@':
		l.advance(size)
		tok.kind = tokPunct
		tok.text = string(r)
		return tok, nil
	}
	return tok, &ParseError{Line: l.line, Col: l.col, Msg: fmt.Sprintf("unexpected character %q", r)}
}

func tokenize(src string) ([]token, error) {
	l := newLexer(src)
	toks := make([]token, 0, len(src)/4)
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.kind == tokEOF {
			return toks, nil
		}
	}
}
