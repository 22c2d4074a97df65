package failure

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMatchesItsSentinel(t *testing.T) {
	tests := []struct {
		kind     Kind
		sentinel error
	}{
		{NotFound, ErrNotFound},
		{MalformedConstruct, ErrMalformedConstruct},
		{ArityMismatch, ErrArityMismatch},
		{Timeout, ErrTimeout},
		{EvaluationError, ErrEvaluation},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := fmt.Errorf("stage: %w", New(tt.kind, "boom"))
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.kind, KindOf(err))

			for _, other := range tests {
				if other.kind != tt.kind {
					assert.NotErrorIs(t, err, other.sentinel)
				}
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "NotFound: marker `$.when` absent", New(NotFound, "marker `%s` absent", "$.when").Error())
	assert.Equal(t, "MalformedConstruct: unbalanced (line 3, col 7)", New(MalformedConstruct, "unbalanced").At(3, 7).Error())

	underlying := errors.New("connection reset")
	err := Wrap(EvaluationError, underlying, "helper failed")
	assert.Equal(t, "EvaluationError: helper failed: connection reset", err.Error())
	assert.ErrorIs(t, err, underlying)
	assert.ErrorIs(t, err, ErrEvaluation)
}

func TestErrorJSON(t *testing.T) {
	raw, err := json.Marshal(New(Timeout, "exceeded 2s"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"Timeout","message":"exceeded 2s"}`, string(raw))

	raw, err = json.Marshal(New(EvaluationError, "ReferenceError: x is not defined").At(4, 2))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"EvaluationError","message":"ReferenceError: x is not defined","line":4,"column":2}`, string(raw))
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}
