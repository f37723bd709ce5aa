package patch

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenType int

const (
	typeUnknown tokenType = iota
	typeInt
	typeFloat
	typeFreq
	typeDB
	typeIdent
	typeString
	typeAssign
	typeArrow
	typeTie
	typeRest
	typeChain
	typeLeftBrace
	typeRightBrace
	typeLeftBracket
	typeRightBracket
	typeLeftParen
	typeRightParen
	typeComma
	typeDot
	typeAt
	typeQuery
	typeSlash
	typeEOF
)

const eof = -1

var simpleTokens = map[rune]tokenType{
	'=': typeAssign,
	'{': typeLeftBrace,
	'}': typeRightBrace,
	'[': typeLeftBracket,
	']': typeRightBracket,
	'(': typeLeftParen,
	')': typeRightParen,
	',': typeComma,
	'@': typeAt,
	'?': typeQuery,
	'/': typeSlash,
}

type token struct {
	typ  tokenType
	pos  int
	text string
}

func lex(input string) ([]token, error) {
	l := &lexer{input: input}
	return l.lex()
}

type lexer struct {
	input string

	width int
	start int
	pos   int

	tokens []token
	err    error
}

func (l *lexer) lex() ([]token, error) {
	for {
		switch r := l.next(); {
		case r == eof:
			l.yieldToken(typeEOF)
			return l.tokens, l.err
		case unicode.IsLetter(r):
			l.lexIdentifier()
		case l.isNumber(r):
			l.lexNumber()
		case r == '-':
			l.lexDash()
		case r == '.':
			l.lexDot()
		case r == '_':
			l.lexUnderscore()
		case r == '+':
			l.lexPlus()
		case r == '"':
			l.lexString()
		case r == ' ' || r == '\t':
			l.ignoreSpace()
		default:
			if typ, ok := simpleTokens[r]; ok {
				l.yieldToken(typ)
			} else {
				l.invalidChar(r)
			}
		}
		if l.err != nil {
			return l.tokens, l.err
		}
	}
}

func (l *lexer) next() rune {
	if len(l.input) == l.pos {
		l.width = 0
		return eof
	}
	r, w := utf8.DecodeRuneInString(l.input[l.pos:])
	l.width = w
	l.pos += l.width
	return r
}

func (l *lexer) peek() rune {
	r := l.next()
	l.backup()
	return r
}

func (l *lexer) backup() {
	l.pos -= l.width
}

func (l *lexer) yieldToken(t tokenType) {
	s := l.input[l.start:l.pos]
	l.tokens = append(l.tokens, token{t, l.pos, s})
	l.start = l.pos
	l.width = 0
}

func (l *lexer) errorf(format string, args ...interface{}) {
	l.err = fmt.Errorf(format, args...)
}

func (l *lexer) invalidChar(r rune) {
	l.errorf("unexpected character: %#U", r)
}

func (l *lexer) ignoreSpace() {
	for {
		r := l.peek()
		if r != ' ' && r != '\t' {
			break
		}
		l.next()
	}
	l.start = l.pos
}

func (l *lexer) take(set string) int {
	var n int
	for strings.IndexRune(set, l.next()) >= 0 {
		n++
	}
	l.backup()
	return n
}

func (l *lexer) accept(set string) bool {
	if strings.IndexRune(set, l.next()) >= 0 {
		return true
	}
	l.backup()
	return false
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || isDigit(r) || r == '_'
}

func (l *lexer) lexIdentifier() {
	for {
		switch r := l.next(); {
		case isIdentRune(r):
		default:
			l.backup()
			l.yieldToken(typeIdent)
			return
		}
	}
}

const digits = "0123456789"

// lexNumber assumes input has been checked to contain at least one digit
// using isNumber. A number may carry an immediate Hz or dB suffix
// (case-insensitive), which changes the token type but stays in the text.
func (l *lexer) lexNumber() {
	// Back up to see a possible leading '-' or '.'
	l.backup()

	l.accept("-")
	l.take(digits)
	isFloat := l.accept(".")
	l.take(digits)

	typ := typeInt
	if isFloat {
		typ = typeFloat
	}
	if l.accept("hH") {
		if !l.accept("zZ") {
			l.errorf("malformed frequency literal")
			return
		}
		typ = typeFreq
	} else if l.accept("dD") {
		if !l.accept("bB") {
			l.errorf("malformed decibel literal")
			return
		}
		typ = typeDB
	}

	if r := l.peek(); isIdentRune(r) || r == '.' {
		l.next()
		l.invalidChar(r)
		return
	}
	l.yieldToken(typ)
}

func (l *lexer) isNumber(r rune) bool {
	if isDigit(r) {
		return true
	}
	return r == '.' && isDigit(l.peek())
}

// lexDash resolves '-' into an arrow, a negative number, or a tie.
func (l *lexer) lexDash() {
	switch r := l.peek(); {
	case r == '>':
		l.next()
		l.yieldToken(typeArrow)
	case isDigit(r):
		l.next()
		l.lexNumber()
	case r == '.':
		l.next()
		if isDigit(l.peek()) {
			l.lexNumber()
		} else {
			l.backup()
			l.yieldToken(typeTie)
		}
	default:
		l.yieldToken(typeTie)
	}
}

// lexDot resolves '.' into a leading-dot float or a member access dot.
func (l *lexer) lexDot() {
	if isDigit(l.peek()) {
		l.next()
		l.lexNumber()
		return
	}
	l.yieldToken(typeDot)
}

// lexUnderscore resolves '_' into an identifier or a rest.
func (l *lexer) lexUnderscore() {
	if isIdentRune(l.peek()) {
		l.lexIdentifier()
		return
	}
	l.yieldToken(typeRest)
}

func (l *lexer) lexPlus() {
	if l.peek() != '+' {
		l.invalidChar('+')
		return
	}
	l.next()
	l.yieldToken(typeChain)
}

func (l *lexer) lexString() {
	for {
		switch r := l.next(); {
		case r == '"':
			l.yieldToken(typeString)
			return
		case r == eof:
			l.errorf("unterminated string")
			return
		}
	}
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
