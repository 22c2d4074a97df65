// Package snippet finds the `$.when(...).done(function(...){...});` construct
// inside a valuation model and turns it into a standalone function.
package snippet

import (
	"strings"

	"dval/failure"
	"dval/snippet/lexer"
)

const (
	DefaultMarker            = "$.when"
	DefaultDescriptionMarker = "Description"
	DefaultFunctionName      = "_when_done"
)

// Chained calls which may carry the callback, in order of preference
var callbackMethods = []string{"done", "then"}

type Options struct {
	// File is only used in error positions
	File string

	Marker            string
	DescriptionMarker string
	FunctionName      string
}

func (o Options) withDefaults() Options {
	if o.Marker == "" {
		o.Marker = DefaultMarker
	}
	if o.DescriptionMarker == "" {
		o.DescriptionMarker = DefaultDescriptionMarker
	}
	if o.FunctionName == "" {
		o.FunctionName = DefaultFunctionName
	}
	return o
}

// Range is a half open byte range [Start, End) into a source
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r Range) Len() int {
	return r.End - r.Start
}

func (r Range) Of(src string) string {
	return src[r.Start:r.End]
}

type Construct struct {
	// Range covers the marker through the final `)`, and a trailing `;` when present
	Range Range

	// Body is the callback body, braces included
	Body Range

	Dependencies []string
	Parameters   []string
}

// Locate returns the range covered by the single construct opened by marker.
func Locate(src string, marker string) (Range, error) {
	c, err := locate(src, Options{Marker: marker}.withDefaults())
	if err != nil {
		return Range{}, err
	}
	return c.Range, nil
}

// Extract locates the construct and checks that the callback declares one
// parameter per dependency.
func Extract(src string, opts Options) (*Construct, error) {
	c, err := locate(src, opts.withDefaults())
	if err != nil {
		return nil, err
	}

	if len(c.Parameters) != len(c.Dependencies) {
		return nil, failure.New(
			failure.ArityMismatch,
			"callback declares %d parameters (%s) for %d dependencies (%s)",
			len(c.Parameters), strings.Join(c.Parameters, ", "),
			len(c.Dependencies), strings.Join(c.Dependencies, ", "),
		)
	}

	return c, nil
}

func Parameters(src string, marker string) ([]string, error) {
	c, err := locate(src, Options{Marker: marker}.withDefaults())
	if err != nil {
		return nil, err
	}
	return c.Parameters, nil
}

func Dependencies(src string, marker string) ([]string, error) {
	c, err := locate(src, Options{Marker: marker}.withDefaults())
	if err != nil {
		return nil, err
	}
	return c.Dependencies, nil
}

func markerTokens(marker string) ([]*lexer.Token, error) {
	tokens, err := lexer.Lex("", marker)
	if err != nil {
		return nil, failure.Wrap(failure.MalformedConstruct, err, "invalid construct marker %q", marker)
	}

	tokens = lexer.Significant(tokens)
	tokens = tokens[:len(tokens)-1] // EOF

	if len(tokens) == 0 {
		return nil, failure.New(failure.MalformedConstruct, "empty construct marker")
	}
	return tokens, nil
}

func locate(src string, opts Options) (*Construct, error) {
	name, err := markerTokens(opts.Marker)
	if err != nil {
		return nil, err
	}

	p, err := newParser(opts.File, src)
	if err != nil {
		return nil, err
	}

	calls := p.findCalls(name)
	switch len(calls) {
	case 0:
		return nil, failure.New(failure.NotFound, "construct marker `%s` not found", opts.Marker)
	case 1:
	default:
		second := p.tokens[calls[1]]
		return nil, p.errorAt(second, "construct marker `%s` appears %d times, expected once", opts.Marker, len(calls))
	}

	start := p.tokens[calls[0]]
	p.nextTokenIndex = calls[0] + len(name)

	depArgs, last, err := p.callArguments()
	if err != nil {
		return nil, err
	}

	c := &Construct{}
	if c.Dependencies, err = p.dependencies(depArgs); err != nil {
		return nil, err
	}

	// Walk the `.done(...)` chain; the construct ends at the last call
	chained := make(map[string][]*lexer.Token)
	for p.peekIs(lexer.PeriodToken) && p.peekAt(1).Is(lexer.IdentToken) && p.peekAt(2).Is(lexer.LeftParenthesesToken) {
		p.next()
		method := p.next()

		args, closing, err := p.callArguments()
		if err != nil {
			return nil, err
		}
		last = closing

		if _, seen := chained[method.Value]; !seen && len(args) > 0 {
			chained[method.Value] = args[0]
		}
	}

	var callback []*lexer.Token
	for _, method := range callbackMethods {
		if args, found := chained[method]; found {
			callback = args
			break
		}
	}
	if len(callback) == 0 {
		// also `.done(, fn)`, where the first argument is empty
		return nil, p.errorAt(start, "construct has no .%s(...) callback", callbackMethods[0])
	}

	end := last.End.Offset
	if p.peekIs(lexer.SemicolonToken) {
		end = p.next().End.Offset
	}
	c.Range = Range{Start: start.Start.Offset, End: end}

	if c.Parameters, c.Body, err = p.signature(callback); err != nil {
		return nil, err
	}

	return c, nil
}

// Each dependency argument is reduced to its leading identifier: `get_quote()` -> `get_quote`
func (p *parser) dependencies(args [][]*lexer.Token) ([]string, error) {
	names := make([]string, 0, len(args))

	for _, arg := range args {
		if len(arg) == 0 {
			// trailing comma
			continue
		}

		if !arg[0].Is(lexer.IdentToken) {
			return nil, p.errorAt(arg[0], "dependency must be a function name, got %s", arg[0].DisplayString())
		}
		names = append(names, arg[0].Value)
	}

	return names, nil
}

// signature reads `function [name](a, b) {...}`, `(a, b) => {...}` or `a => {...}`
func (p *parser) signature(callback []*lexer.Token) ([]string, Range, error) {
	first := callback[0]
	i := 0

	var params []string
	switch {
	case first.IsIdent("function"):
		i++
		if i < len(callback) && callback[i].Is(lexer.IdentToken) {
			i++
		}
		var err error
		if params, i, err = p.parameterList(callback, i); err != nil {
			return nil, Range{}, err
		}

	case first.Is(lexer.LeftParenthesesToken):
		var err error
		if params, i, err = p.parameterList(callback, i); err != nil {
			return nil, Range{}, err
		}
		if i >= len(callback) || !callback[i].Is(lexer.ArrowToken) {
			return nil, Range{}, p.errorAt(first, "callback is not a function")
		}
		i++

	case first.Is(lexer.IdentToken) && len(callback) > 1 && callback[1].Is(lexer.ArrowToken):
		params = []string{first.Value}
		i = 2

	default:
		return nil, Range{}, p.errorAt(first, "callback signature not found, got %s", first.DisplayString())
	}

	if i >= len(callback) || !callback[i].Is(lexer.LeftBraceToken) {
		return nil, Range{}, p.errorAt(first, "callback body must be a block")
	}
	closing := callback[len(callback)-1]
	if i == len(callback)-1 || !closing.Is(lexer.RightBraceToken) {
		return nil, Range{}, p.errorAt(closing, "unexpected %s after callback body", closing.DisplayString())
	}

	// The opening brace must be the one closed by the final token
	depth := 0
	for _, t := range callback[i : len(callback)-1] {
		switch t.Type {
		case lexer.LeftBraceToken, lexer.LeftParenthesesToken, lexer.LeftBracketToken:
			depth++
		case lexer.RightBraceToken, lexer.RightParenthesesToken, lexer.RightBracketToken:
			depth--
			if depth == 0 {
				return nil, Range{}, p.errorAt(t, "unexpected tokens after callback body")
			}
		}
	}

	return params, Range{Start: callback[i].Start.Offset, End: closing.End.Offset}, nil
}

// parameterList reads `(a, b, c)` from tokens[at:], returning the index after `)`
func (p *parser) parameterList(tokens []*lexer.Token, at int) ([]string, int, error) {
	if at >= len(tokens) || !tokens[at].Is(lexer.LeftParenthesesToken) {
		return nil, at, p.errorAt(tokens[0], "callback parameter list not found")
	}
	at++

	params := make([]string, 0)
	expectName := true

	for ; at < len(tokens); at++ {
		t := tokens[at]

		switch {
		case t.Is(lexer.RightParenthesesToken):
			return params, at + 1, nil

		case expectName && t.Is(lexer.IdentToken):
			params = append(params, t.Value)
			expectName = false

		case !expectName && t.Is(lexer.CommaToken):
			expectName = true

		default:
			return nil, at, p.errorAt(t, "unsupported callback parameter %s", t.DisplayString())
		}
	}

	return nil, at, p.errorAt(tokens[0], "callback parameter list is never closed")
}
