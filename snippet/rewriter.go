package snippet

import (
	"errors"
	"strings"

	"dval/failure"
)

// Function is a rewritten program in which the construct has become a
// declaration of Name taking no arguments.
type Function struct {
	Name   string
	Source string

	// Construct is nil when the source held no construct to rewrite
	Construct *Construct
}

// Rewrite masks description calls and replaces the construct with
// `function <Name>() {body}`. A source without the construct is returned
// unchanged apart from masking, so rewriting is idempotent.
func Rewrite(src string, opts Options) (Function, error) {
	opts = opts.withDefaults()
	fn := Function{Name: opts.FunctionName, Source: src}

	masked, err := MaskCalls(src, opts.DescriptionMarker)
	if err != nil {
		return fn, err
	}
	fn.Source = masked

	c, err := locate(masked, opts)
	if errors.Is(err, failure.ErrNotFound) {
		return fn, nil
	} else if err != nil {
		return fn, err
	}

	var b strings.Builder
	b.Grow(len(masked))
	b.WriteString(masked[:c.Range.Start])
	b.WriteString("function ")
	b.WriteString(opts.FunctionName)
	b.WriteString("() ")
	b.WriteString(c.Body.Of(masked))
	b.WriteString(masked[c.Range.End:])

	fn.Source = b.String()
	fn.Construct = c
	return fn, nil
}

// MaskCalls replaces the arguments of every call to name with an empty
// string literal, so `Description(`...`)` becomes `Description('')`.
func MaskCalls(src string, name string) (string, error) {
	nameTokens, err := markerTokens(name)
	if err != nil {
		return src, err
	}

	p, err := newParser("", src)
	if err != nil {
		return src, err
	}

	var b strings.Builder
	written := 0

	for _, at := range p.findCalls(nameTokens) {
		open := p.tokens[at+len(nameTokens)]
		if open.Start.Offset < written {
			// nested inside a call we already masked
			continue
		}

		p.nextTokenIndex = at + len(nameTokens)
		_, closing, err := p.callArguments()
		if err != nil {
			return src, err
		}

		b.WriteString(src[written:open.End.Offset])
		b.WriteString("''")
		written = closing.Start.Offset
	}

	if written == 0 {
		return src, nil
	}

	b.WriteString(src[written:])
	return b.String(), nil
}
