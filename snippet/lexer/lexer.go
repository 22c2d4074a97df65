package lexer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Error is a lexing failure with the position it was detected at.
type Error struct {
	Message string
	Pos     Position
}

func (e *Error) Error() string {
	if e.Pos.File == "" {
		return fmt.Sprintf("%s at %d:%d", e.Message, e.Pos.Row, e.Pos.Column)
	}
	return fmt.Sprintf("%s at %s:%d:%d", e.Message, e.Pos.File, e.Pos.Row, e.Pos.Column)
}

// Longest first, so that `===` is not read as `==` `=`
var operators = []string{
	">>>=", "===", "!==", "**=", "<<=", ">>=", ">>>", "...", "&&=", "||=", "??=",
	"=>", "&&", "||", "??", "==", "!=", "<=", ">=", "+=", "-=", "*=", "/=", "%=",
	"&=", "|=", "^=", "++", "--", "<<", ">>", "**",
}

// Keywords after which a `/` starts a regular expression rather than a division
var regexKeywords = map[string]struct{}{
	"return": {}, "typeof": {}, "instanceof": {}, "in": {}, "of": {}, "new": {}, "delete": {},
	"void": {}, "throw": {}, "case": {}, "do": {}, "else": {}, "yield": {}, "await": {},
}

type lexer struct {
	src string

	// position of the next unread rune
	runePosition Position

	// Token state tracking
	tokenPosition Position

	// last non-comment token, used to tell regex literals from divisions
	previous *Token
}

// Lex splits a JavaScript source into tokens. The returned slice always ends
// with an EOF token unless an error is returned.
func Lex(file string, src string) ([]*Token, error) {
	l := &lexer{
		src:          src,
		runePosition: Position{File: file, Column: 1, Row: 1},
	}

	tokens := make([]*Token, 0, len(src)/4)

	for {
		t, err := l.NextToken()
		if err != nil {
			return tokens, err
		}

		tokens = append(tokens, t)

		if t.Type == EOFToken {
			break
		}
	}

	return tokens, nil
}

func (l *lexer) atEOF() bool {
	return l.runePosition.Offset >= len(l.src)
}

// Peeks at the rune under the cursor without consuming it
func (l *lexer) currentRune() rune {
	if l.atEOF() {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.src[l.runePosition.Offset:])
	return r
}

// Peeks at the byte n positions after the cursor; all JS punctuation is ASCII
func (l *lexer) peekByte(n int) byte {
	if l.runePosition.Offset+n >= len(l.src) {
		return 0
	}
	return l.src[l.runePosition.Offset+n]
}

func (l *lexer) readRune() rune {
	if l.atEOF() {
		return 0
	}

	r, size := utf8.DecodeRuneInString(l.src[l.runePosition.Offset:])
	l.runePosition.Offset += size

	if r == '\n' {
		// the next rune is in column 1 of the next row
		l.runePosition.Column = 1
		l.runePosition.Row++
	} else {
		l.runePosition.Column++
	}

	return r
}

func (l *lexer) readRunes(n int) {
	for i := 0; i < n; i++ {
		l.readRune()
	}
}

// Consume all runes until the next non-whitespace character
func (l *lexer) consumeWhitespace() {
	for !l.atEOF() && unicode.IsSpace(l.currentRune()) {
		l.readRune()
	}
}

func (l *lexer) newToken(t TokenType) *Token {
	return &Token{
		Type:  t,
		Value: l.src[l.tokenPosition.Offset:l.runePosition.Offset],
		Start: l.tokenPosition,
		End:   l.runePosition,
	}
}

func (l *lexer) errorToken(message string) (*Token, error) {
	t := l.newToken(ErrorToken)
	return t, &Error{Message: message, Pos: t.Start}
}

func (l *lexer) NextToken() (*Token, error) {
	l.consumeWhitespace()

	// Copy the position of the first rune for this Token
	l.tokenPosition = l.runePosition

	// Have we reached the end of the file?
	if l.atEOF() {
		return l.newToken(EOFToken), nil
	}

	t, err := l.nextCodeToken()
	if err == nil && t.Type != CommentToken {
		l.previous = t
	}
	return t, err
}

func (l *lexer) nextCodeToken() (*Token, error) {
	r := l.currentRune()

	switch {
	case r == '/' && l.peekByte(1) == '/':
		return l.readLineComment(), nil

	case r == '/' && l.peekByte(1) == '*':
		return l.readBlockComment()

	case r == '/' && l.regexAllowed():
		return l.readRegexToken()

	case r == '"' || r == '\'':
		return l.readStringToken(r)

	case r == '`':
		return l.readTemplateToken()

	case unicode.IsDigit(r) || (r == '.' && isDigit(l.peekByte(1))):
		return l.readNumberToken(), nil

	case isIdentRune(r):
		return l.readIdentifierToken(), nil
	}

	for _, op := range operators {
		if strings.HasPrefix(l.src[l.runePosition.Offset:], op) {
			l.readRunes(len(op))
			if op == "=>" {
				return l.newToken(ArrowToken), nil
			}
			return l.newToken(PunctToken), nil
		}
	}

	l.readRune()

	switch r {
	case '(':
		return l.newToken(LeftParenthesesToken), nil
	case ')':
		return l.newToken(RightParenthesesToken), nil
	case '[':
		return l.newToken(LeftBracketToken), nil
	case ']':
		return l.newToken(RightBracketToken), nil
	case '{':
		return l.newToken(LeftBraceToken), nil
	case '}':
		return l.newToken(RightBraceToken), nil
	case ',':
		return l.newToken(CommaToken), nil
	case ';':
		return l.newToken(SemicolonToken), nil
	case '.':
		return l.newToken(PeriodToken), nil
	default:
		return l.newToken(PunctToken), nil
	}
}

// A `/` is a regex when it cannot be a division, i.e. when no operand precedes it
func (l *lexer) regexAllowed() bool {
	p := l.previous
	if p == nil {
		return true
	}

	switch p.Type {
	case NumberToken, StringToken, TemplateToken, RegexToken,
		RightParenthesesToken, RightBracketToken, RightBraceToken:
		return false

	case IdentToken:
		_, keyword := regexKeywords[p.Value]
		return keyword

	case PunctToken:
		return p.Value != "++" && p.Value != "--"

	default:
		return true
	}
}

func (l *lexer) readLineComment() *Token {
	for !l.atEOF() && l.currentRune() != '\n' {
		l.readRune()
	}

	return l.newToken(CommentToken)
}

func (l *lexer) readBlockComment() (*Token, error) {
	l.readRunes(2) // the opening /*

	for !l.atEOF() {
		if l.currentRune() == '*' && l.peekByte(1) == '/' {
			l.readRunes(2)
			return l.newToken(CommentToken), nil
		}
		l.readRune()
	}

	return l.errorToken("unterminated block comment")
}

func (l *lexer) readStringToken(exitRune rune) (*Token, error) {
	l.readRune() // the opening quote

	for !l.atEOF() {
		switch l.readRune() {
		case '\\':
			// Escaped rune, including line continuations
			l.readRune()

		case '\n':
			return l.errorToken("unterminated string literal")

		case exitRune:
			return l.newToken(StringToken), nil
		}
	}

	return l.errorToken("unterminated string literal")
}

// Template literals may span lines and nest code inside `${ }`; the code is
// lexed recursively so that braces and quotes inside it stay balanced.
func (l *lexer) readTemplateToken() (*Token, error) {
	start := l.tokenPosition
	previous := l.previous

	l.readRune() // the opening backtick

	for !l.atEOF() {
		switch r := l.currentRune(); {
		case r == '\\':
			l.readRunes(2)

		case r == '`':
			l.readRune()
			l.tokenPosition = start
			l.previous = previous
			return l.newToken(TemplateToken), nil

		case r == '$' && l.peekByte(1) == '{':
			l.readRunes(2)
			if err := l.skipSubstitution(); err != nil {
				l.tokenPosition = start
				return nil, err
			}

		default:
			l.readRune()
		}
	}

	l.tokenPosition = start
	return l.errorToken("unterminated template literal")
}

func (l *lexer) skipSubstitution() error {
	l.previous = nil
	depth := 1

	for {
		t, err := l.NextToken()
		if err != nil {
			return err
		}

		switch t.Type {
		case EOFToken:
			return &Error{Message: "unterminated template substitution", Pos: t.Start}
		case LeftBraceToken:
			depth++
		case RightBraceToken:
			depth--
			if depth == 0 {
				return nil
			}
		}
	}
}

func (l *lexer) readRegexToken() (*Token, error) {
	l.readRune() // the opening slash

	inClass := false
	for !l.atEOF() {
		switch l.readRune() {
		case '\\':
			l.readRune()

		case '\n':
			return l.errorToken("unterminated regular expression literal")

		case '[':
			inClass = true

		case ']':
			inClass = false

		case '/':
			if !inClass {
				// flags
				for !l.atEOF() && isIdentRune(l.currentRune()) {
					l.readRune()
				}
				return l.newToken(RegexToken), nil
			}
		}
	}

	return l.errorToken("unterminated regular expression literal")
}

func (l *lexer) readNumberToken() *Token {
	for !l.atEOF() {
		r := l.currentRune()

		switch {
		case isIdentRune(r) || unicode.IsDigit(r) || r == '.':
			l.readRune()

		case (r == '+' || r == '-') && l.exponentSign():
			l.readRune()

		default:
			return l.newToken(NumberToken)
		}
	}

	return l.newToken(NumberToken)
}

// Reports whether a sign under the cursor belongs to an exponent, as in `1e-5`
func (l *lexer) exponentSign() bool {
	literal := l.src[l.tokenPosition.Offset:l.runePosition.Offset]
	if strings.HasPrefix(literal, "0x") || strings.HasPrefix(literal, "0X") {
		return false
	}
	return strings.HasSuffix(literal, "e") || strings.HasSuffix(literal, "E")
}

func (l *lexer) readIdentifierToken() *Token {
	for !l.atEOF() && (isIdentRune(l.currentRune()) || unicode.IsDigit(l.currentRune())) {
		l.readRune()
	}

	return l.newToken(IdentToken)
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || r == '_' || r == '$'
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
