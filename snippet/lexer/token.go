package lexer

import "fmt"

type Position struct {
	File   string
	Column int
	Row    int

	// Offset is the byte offset into the source
	Offset int
}

type TokenType string

const (
	ErrorToken TokenType = "ERR"
	EOFToken   TokenType = "EOF"

	// Opaque spans; delimiters inside these never count towards nesting
	StringToken   TokenType = "STRING"
	TemplateToken TokenType = "TEMPLATE"
	RegexToken    TokenType = "REGEX"
	CommentToken  TokenType = "COMMENT"

	IdentToken  TokenType = "IDENT"
	NumberToken TokenType = "NUMBER"
	PunctToken  TokenType = "PUNCT" // any operator without a dedicated type

	LeftParenthesesToken  TokenType = "("
	RightParenthesesToken TokenType = ")"
	LeftBracketToken      TokenType = "["
	RightBracketToken     TokenType = "]"
	LeftBraceToken        TokenType = "{"
	RightBraceToken       TokenType = "}"
	CommaToken            TokenType = ","
	SemicolonToken        TokenType = ";"
	PeriodToken           TokenType = "."
	ArrowToken            TokenType = "=>"
)

type Token struct {
	Type TokenType

	// Value is the raw source text of the token, quotes and delimiters included
	Value string

	// Position
	Start Position
	End   Position
}

func (t *Token) Is(tokenType TokenType) bool {
	return t != nil && t.Type == tokenType
}

// IsIdent reports whether the token is the identifier (or keyword) name.
func (t *Token) IsIdent(name string) bool {
	return t != nil && t.Type == IdentToken && t.Value == name
}

// IsOpaque reports whether the token is a literal or comment span.
func (t *Token) IsOpaque() bool {
	switch t.Type {
	case StringToken, TemplateToken, RegexToken, CommentToken:
		return true
	default:
		return false
	}
}

func (t *Token) DisplayString() string {
	if t.Value == "" {
		return fmt.Sprintf("Token(`%s`)", t.Type)
	} else {
		return fmt.Sprintf("Token(`%s`, `%s`)", t.Type, t.Value)
	}
}

func (t *Token) String() string {
	if t.Value == "" {
		return fmt.Sprintf("Token(`%s`) @ %d:%d", t.Type, t.Start.Row, t.Start.Column)
	} else {
		return fmt.Sprintf("Token(`%s`, `%s`) @ %d:%d", t.Type, t.Value, t.Start.Row, t.Start.Column)
	}
}

// Significant drops comment tokens.
func Significant(tokens []*Token) []*Token {
	out := make([]*Token, 0, len(tokens))
	for _, t := range tokens {
		if t.Type != CommentToken {
			out = append(out, t)
		}
	}
	return out
}
