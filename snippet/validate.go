package snippet

import (
	"errors"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/file"
	jsparser "github.com/dop251/goja/parser"

	"dval/failure"
)

// Parse parses src as an ECMAScript program. Syntax errors are reported as
// MalformedConstruct at the first offending position.
func Parse(filename string, src string) (*ast.Program, error) {
	program, err := jsparser.ParseFile(&file.FileSet{}, filename, src, 0)
	if err == nil {
		return program, nil
	}

	var list jsparser.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		first := list[0]
		return nil, failure.New(failure.MalformedConstruct, "%s", first.Message).At(first.Position.Line, first.Position.Column)
	}

	var single *jsparser.Error
	if errors.As(err, &single) {
		return nil, failure.New(failure.MalformedConstruct, "%s", single.Message).At(single.Position.Line, single.Position.Column)
	}

	return nil, failure.Wrap(failure.MalformedConstruct, err, "unable to parse %s", filename)
}

func Validate(filename string, src string) error {
	_, err := Parse(filename, src)
	return err
}
