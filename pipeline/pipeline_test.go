package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dval/failure"
	"dval/sandbox"
)

const valuation = `
Description(` + "`" + `Values the company at its quote (and not a cent more)` + "`" + `);

$.when(get_quote(), get_profile()).done(
  function(quote, profile){
    var input = Input({MULTIPLIER: 1});
    print(profile[0].companyName, 'Company');
    _SetEstimatedValue(quote[0].price * input.MULTIPLIER, profile[0].currency);
  });
`

type stubSource struct {
	values []any
	err    error

	calls  int
	ticker string
	deps   []string
}

func (s *stubSource) Fetch(ctx context.Context, ticker string, deps []string) ([]any, error) {
	s.calls++
	s.ticker = ticker
	s.deps = deps
	return s.values, s.err
}

func quoteSource() *stubSource {
	return &stubSource{
		values: []any{
			[]any{map[string]any{"symbol": "AAPL", "price": 100.0}},
			[]any{map[string]any{"companyName": "Apple", "currency": "USD"}},
		},
	}
}

func newTestPipeline(source DataSource) *Pipeline {
	return New(Options{
		Source:    source,
		Evaluator: sandbox.Options{Timeout: 2 * time.Second},
	})
}

func TestRun(t *testing.T) {
	source := quoteSource()

	result, err := newTestPipeline(source).Run(context.Background(), valuation, Request{
		Ticker:    "AAPL",
		Overrides: sandbox.Overrides{"MULTIPLIER": 1.5},
	})
	require.NoError(t, err)

	assert.Equal(t, "AAPL", source.ticker)
	assert.Equal(t, []string{"get_quote", "get_profile"}, source.deps)

	assert.True(t, result.Reported)
	assert.Equal(t, 150.0, result.Value)
	assert.Equal(t, "USD", result.Currency)
	assert.Equal(t, []string{"Company: Apple"}, result.Logs)
}

func TestPreparedValuationIsReusable(t *testing.T) {
	source := quoteSource()
	p := newTestPipeline(source)

	prepared, err := p.Prepare(valuation)
	require.NoError(t, err)
	assert.Equal(t, []string{"quote", "profile"}, prepared.Construct.Parameters)
	assert.Contains(t, prepared.Function.Source, "function _when_done() {")
	assert.Contains(t, prepared.Function.Source, "Description('')")

	for i := 0; i < 2; i++ {
		result, err := p.Evaluate(context.Background(), prepared, Request{Ticker: "AAPL"})
		require.NoError(t, err)
		assert.Equal(t, 100.0, result.Value)
	}
	assert.Equal(t, 2, source.calls)
}

func TestRunFailures(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		source *stubSource
		want   error
	}{
		{
			name:   "no construct",
			src:    "var x = 1;",
			source: quoteSource(),
			want:   failure.ErrNotFound,
		},
		{
			name:   "more parameters than dependencies",
			src:    "$.when(get_quote()).done(function(quote, profile){});",
			source: quoteSource(),
			want:   failure.ErrArityMismatch,
		},
		{
			name:   "unknown dependency skipped by the source",
			src:    "$.when(get_quote(), get_nothing()).done(function(quote, nothing){});",
			source: &stubSource{values: []any{[]any{}}},
			want:   failure.ErrArityMismatch,
		},
		{
			name:   "snippet throws",
			src:    "$.when(get_quote()).done(function(quote){ throw new Error('bad'); });",
			source: &stubSource{values: []any{[]any{}}},
			want:   failure.ErrEvaluation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestPipeline(tt.source).Run(context.Background(), tt.src, Request{Ticker: "AAPL"})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRunDoesNotFetchWhenPreparationFails(t *testing.T) {
	source := quoteSource()

	_, err := newTestPipeline(source).Run(context.Background(), "$.when(get_quote()).done(", Request{Ticker: "AAPL"})
	assert.ErrorIs(t, err, failure.ErrMalformedConstruct)
	assert.Zero(t, source.calls)
}

func TestRunFetchError(t *testing.T) {
	broken := errors.New("connection refused")

	_, err := newTestPipeline(&stubSource{err: broken}).Run(context.Background(), valuation, Request{Ticker: "AAPL"})
	assert.ErrorIs(t, err, broken)

	_, err = newTestPipeline(nil).Run(context.Background(), valuation, Request{Ticker: "AAPL"})
	assert.Error(t, err)
}

func TestParseOverrides(t *testing.T) {
	tests := []struct {
		input string
		want  sandbox.Overrides
	}{
		{"", sandbox.Overrides{}},
		{"#", sandbox.Overrides{}},
		{"#MIN=51&MAX=52", sandbox.Overrides{"MIN": 51.0, "MAX": 52.0}},
		{"MIN=51", sandbox.Overrides{"MIN": 51.0}},
		{"_GROWTH=-2.5&&NAME=bull", sandbox.Overrides{"_GROWTH": -2.5, "NAME": "bull"}},
		{"EMPTY=", sandbox.Overrides{"EMPTY": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseOverrides(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseOverrides("#MIN")
	assert.Error(t, err)

	_, err = ParseOverrides("=5")
	assert.Error(t, err)
}
