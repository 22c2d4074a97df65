package snippet

import (
	"dval/failure"
	"dval/snippet/lexer"
)

type parser struct {
	tokens         []*lexer.Token
	nextTokenIndex int
}

func newParser(file string, src string) (*parser, error) {
	tokens, err := lexer.Lex(file, src)
	if err != nil {
		if lexErr, ok := err.(*lexer.Error); ok {
			return nil, failure.New(failure.MalformedConstruct, "%s", lexErr.Message).At(lexErr.Pos.Row, lexErr.Pos.Column)
		}
		return nil, failure.Wrap(failure.MalformedConstruct, err, "unable to lex source")
	}

	return &parser{
		tokens:         lexer.Significant(tokens),
		nextTokenIndex: 0,
	}, nil
}

// Returns the next token
func (p *parser) next() *lexer.Token {
	t := p.tokens[p.nextTokenIndex]

	if t.Type != lexer.EOFToken {
		p.nextTokenIndex++
	}

	return t
}

// Peeks at the next token
func (p *parser) peek() *lexer.Token {
	return p.tokens[p.nextTokenIndex]
}

// Peeks n tokens ahead of the next token
func (p *parser) peekAt(n int) *lexer.Token {
	if p.nextTokenIndex+n >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.nextTokenIndex+n]
}

func (p *parser) peekIs(tokenType lexer.TokenType) bool {
	return p.peek().Type == tokenType
}

// Creates a parse error with the location information
func (p *parser) errorAt(atToken *lexer.Token, format string, args ...any) *failure.Error {
	return failure.New(failure.MalformedConstruct, format, args...).At(atToken.Start.Row, atToken.Start.Column)
}

// Creates a parse error with what we expected and what we got
func (p *parser) expectedError(expected lexer.TokenType, got *lexer.Token) *failure.Error {
	return p.errorAt(got, "expected %s got %s", expected, got.Type)
}

func (p *parser) expectedAndConsumeValue(tokenType lexer.TokenType) (*lexer.Token, error) {
	t := p.next()
	if t.Type != tokenType {
		return nil, p.expectedError(tokenType, t)
	}

	return t, nil
}

// findCalls returns the token index of every call to the dotted name, e.g.
// `$.when(` or `Description(`. Member calls (`x.Description(`) and function
// declarations (`function Description(`) are not calls of the name.
func (p *parser) findCalls(name []*lexer.Token) []int {
	found := make([]int, 0, 1)

	for i := 0; i+len(name) < len(p.tokens); i++ {
		if !matchesAt(p.tokens, i, name) || !p.tokens[i+len(name)].Is(lexer.LeftParenthesesToken) {
			continue
		}

		if i > 0 && (p.tokens[i-1].Is(lexer.PeriodToken) || p.tokens[i-1].IsIdent("function")) {
			continue
		}

		found = append(found, i)
	}

	return found
}

func matchesAt(tokens []*lexer.Token, at int, name []*lexer.Token) bool {
	for j, want := range name {
		got := tokens[at+j]
		if got.Type != want.Type || got.Value != want.Value {
			return false
		}
	}
	return true
}

var closerFor = map[lexer.TokenType]lexer.TokenType{
	lexer.LeftParenthesesToken: lexer.RightParenthesesToken,
	lexer.LeftBraceToken:       lexer.RightBraceToken,
	lexer.LeftBracketToken:     lexer.RightBracketToken,
}

// callArguments consumes a parenthesised argument list starting at the next
// token and returns the arguments split on top level commas, plus the closing
// parenthesis. Parenthesis, brace and bracket depth are tracked together: a
// `)` only closes the call once every `{` and `[` opened inside it is closed.
func (p *parser) callArguments() ([][]*lexer.Token, *lexer.Token, error) {
	open, err := p.expectedAndConsumeValue(lexer.LeftParenthesesToken)
	if err != nil {
		return nil, nil, err
	}

	stack := []*lexer.Token{open}
	args := make([][]*lexer.Token, 0)
	current := make([]*lexer.Token, 0)

	for {
		t := p.next()

		switch t.Type {
		case lexer.EOFToken:
			return nil, nil, p.errorAt(stack[len(stack)-1], "unbalanced delimiters: `%s` is never closed", stack[len(stack)-1].Value)

		case lexer.LeftParenthesesToken, lexer.LeftBraceToken, lexer.LeftBracketToken:
			stack = append(stack, t)

		case lexer.RightParenthesesToken, lexer.RightBraceToken, lexer.RightBracketToken:
			top := stack[len(stack)-1]
			if closerFor[top.Type] != t.Type {
				return nil, nil, p.errorAt(t, "unbalanced delimiters: unexpected `%s` while `%s` from %d:%d is open", t.Value, top.Value, top.Start.Row, top.Start.Column)
			}
			stack = stack[:len(stack)-1]

			if len(stack) == 0 {
				if len(current) > 0 {
					args = append(args, current)
				}
				return args, t, nil
			}

		case lexer.CommaToken:
			if len(stack) == 1 {
				args = append(args, current)
				current = make([]*lexer.Token, 0)
				continue
			}
		}

		current = append(current, t)
	}
}
