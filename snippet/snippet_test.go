package snippet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dval/failure"
	"dval/snippet/lexer"
)

const model = `// Discounted free cash flow
var INPUT = Input({MIN: 5, MAX: 10});

$.when(get_quote(), get_profile()).done(
  function(quote, profile){
    var context = [];
    if (quote[0].price > 0) { context.push({a: ")"}); }
    print(quote[0].price, "Price", "$");
    _SetEstimatedValue(quote[0].price, profile[0].currency);
  });

Description(` + "`" + `This model {is} (unbalanced
  and spans lines` + "`" + `);
`

func TestLocateCoversConstruct(t *testing.T) {
	r, err := Locate(model, DefaultMarker)
	require.NoError(t, err)

	text := r.Of(model)
	assert.True(t, strings.HasPrefix(text, "$.when(get_quote()"))
	assert.True(t, strings.HasSuffix(text, "});"))
}

func TestLocateDepthAtEnd(t *testing.T) {
	fixtures := []string{
		model,
		"$.when(a()).done(function(x){ if (x) { return {y: [1, (2)]}; } });",
		"$.when(a(), b()).done((x, y) => { var f = function(){ return ')'; }; f(); })",
		"$.when(a()).done(x => { /* } ) */ x(); }).fail(function(){});",
	}

	for _, src := range fixtures {
		r, err := Locate(src, DefaultMarker)
		require.NoError(t, err, src)

		tokens, err := lexer.Lex("", r.Of(src))
		require.NoError(t, err)

		braces, parens := 0, 0
		for _, token := range lexer.Significant(tokens) {
			switch token.Type {
			case lexer.LeftBraceToken:
				braces++
			case lexer.RightBraceToken:
				braces--
			case lexer.LeftParenthesesToken:
				parens++
			case lexer.RightParenthesesToken:
				parens--
			}
			require.GreaterOrEqual(t, braces, 0, src)
			require.GreaterOrEqual(t, parens, 0, src)
		}
		assert.Equal(t, 0, braces, src)
		assert.Equal(t, 0, parens, src)
	}
}

func TestLocateNotFound(t *testing.T) {
	for _, src := range []string{
		"",
		"var x = 1;",
		"// $.when(a()).done(function(x){});",
		"var s = '$.when(a()).done(function(x){})';",
		"jQuery.when(a()).done(function(x){});",
	} {
		_, err := Locate(src, DefaultMarker)
		assert.ErrorIs(t, err, failure.ErrNotFound, src)
	}
}

func TestLocateMalformed(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"never closed", "$.when(a()).done(function(x){ x();"},
		{"brace closes paren", "$.when(a()).done(function(x){ x(}) );"},
		{"unterminated literal", "$.when(a()).done(function(x){ var s = 'abc });"},
		{"no callback", "$.when(a(), b());"},
		{"empty callback argument", "$.when(get_quote()).done(, function(quote){ x(); });"},
		{"empty callback call", "$.when(get_quote()).done();"},
		{"twice", "$.when(a()).done(function(x){});\n$.when(b()).done(function(y){});"},
		{"expression body", "$.when(a()).done(x => x + 1);"},
		{"destructured parameter", "$.when(a()).done(function({price}){});"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Locate(tt.src, DefaultMarker)
			require.ErrorIs(t, err, failure.ErrMalformedConstruct)
		})
	}
}

func TestLocateReportsPosition(t *testing.T) {
	_, err := Locate("var a = 1;\n$.when(a()).done(function(x){\n  x(;\n", DefaultMarker)

	var f *failure.Error
	require.ErrorAs(t, err, &f)
	assert.Equal(t, failure.MalformedConstruct, f.Kind)
	assert.Equal(t, 3, f.Line)
}

func TestExtract(t *testing.T) {
	c, err := Extract(model, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"get_quote", "get_profile"}, c.Dependencies)
	assert.Equal(t, []string{"quote", "profile"}, c.Parameters)
	assert.Len(t, c.Parameters, len(c.Dependencies))

	body := c.Body.Of(model)
	assert.True(t, strings.HasPrefix(body, "{\n    var context"))
	assert.True(t, strings.HasSuffix(body, "}"))
}

func TestSignatureForms(t *testing.T) {
	tests := []struct {
		src    string
		params []string
	}{
		{"$.when(a(), b()).done(function(x, y){});", []string{"x", "y"}},
		{"$.when(a(), b()).done(function named(x, y){});", []string{"x", "y"}},
		{"$.when(a(), b()).done((x, y) => {});", []string{"x", "y"}},
		{"$.when(a()).done(x => {});", []string{"x"}},
		{"$.when().done(function(){});", []string{}},
		{"$.when(a,).then(function(x){});", []string{"x"}},
	}

	for _, tt := range tests {
		c, err := Extract(tt.src, Options{})
		require.NoError(t, err, tt.src)
		assert.Equal(t, tt.params, c.Parameters, tt.src)
	}
}

func TestExtractArityMismatch(t *testing.T) {
	_, err := Extract("$.when(get_quote(), get_profile()).done(function(quote){});", Options{})
	assert.ErrorIs(t, err, failure.ErrArityMismatch)

	// the individual extractors do not enforce arity
	params, err := Parameters("$.when(get_quote(), get_profile()).done(function(quote){});", DefaultMarker)
	require.NoError(t, err)
	assert.Equal(t, []string{"quote"}, params)

	deps, err := Dependencies("$.when(get_quote(), get_profile()).done(function(quote){});", DefaultMarker)
	require.NoError(t, err)
	assert.Equal(t, []string{"get_quote", "get_profile"}, deps)
}

func TestCustomMarker(t *testing.T) {
	c, err := Extract("jQuery.when(fetch_a()).done(function(a){ a(); });", Options{Marker: "jQuery.when"})
	require.NoError(t, err)
	assert.Equal(t, []string{"fetch_a"}, c.Dependencies)
}

func TestMaskCalls(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"absent", "var x = 1;", "var x = 1;"},
		{"empty arguments", "Description();", "Description('');"},
		{"string", `Description("a ) b");`, "Description('');"},
		{"unbalanced template", "Description(`{ ( [\n`);x();", "Description('');x();"},
		{"nested calls", "Description(Description('a') + f(')'));", "Description('');"},
		{"several", "Description('a'); y(); Description('b');", "Description(''); y(); Description('');"},
		{"definition untouched", "function Description(text){ return ''; }", "function Description(text){ return ''; }"},
		{"member call untouched", "x.Description('a');", "x.Description('a');"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MaskCalls(tt.src, DefaultDescriptionMarker)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMaskCallsUnbalanced(t *testing.T) {
	_, err := MaskCalls("Description('a'", DefaultDescriptionMarker)
	assert.ErrorIs(t, err, failure.ErrMalformedConstruct)
}

func TestRewrite(t *testing.T) {
	fn, err := Rewrite(model, Options{})
	require.NoError(t, err)
	require.NotNil(t, fn.Construct)

	assert.Equal(t, DefaultFunctionName, fn.Name)
	assert.NotContains(t, fn.Source, "$.when")
	assert.NotContains(t, fn.Source, "unbalanced")
	assert.Contains(t, fn.Source, "function _when_done() {\n    var context = [];")
	assert.Contains(t, fn.Source, "Description('');")
	assert.True(t, strings.HasPrefix(fn.Source, "// Discounted free cash flow\nvar INPUT"))

	require.NoError(t, Validate("model.js", fn.Source))
}

func TestRewriteIsIdempotent(t *testing.T) {
	once, err := Rewrite(model, Options{})
	require.NoError(t, err)

	twice, err := Rewrite(once.Source, Options{})
	require.NoError(t, err)

	assert.Nil(t, twice.Construct)
	assert.Equal(t, once.Source, twice.Source)
}

func TestRewriteNamedFunction(t *testing.T) {
	fn, err := Rewrite("$.when(a()).done((x) => { x(); });", Options{FunctionName: "valuate"})
	require.NoError(t, err)
	assert.Equal(t, "function valuate() { x(); }", fn.Source)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate("ok.js", "function f(){ return `a ${1 + 2}`; }"))

	err := Validate("bad.js", "var x = ;\n")
	require.ErrorIs(t, err, failure.ErrMalformedConstruct)

	var f *failure.Error
	require.ErrorAs(t, err, &f)
	assert.Equal(t, 1, f.Line)
}
