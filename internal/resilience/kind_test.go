package resilience

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind_Policy(t *testing.T) {
	tests := []struct {
		kind      Kind
		trips     bool
		transient bool
	}{
		{KindTransport, true, true},
		{KindTimeout, true, true},
		{KindParse, false, false},
		{KindCircuitOpen, false, true},
		{KindCanceled, false, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.trips, tt.kind.Trips())
			assert.Equal(t, tt.transient, tt.kind.Transient())
		})
	}
}

func TestClassify_ScorerFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"overloaded reply", &APIError{Status: StatusOverloaded, Err: eris.New("overloaded")}, KindTransport},
		{"bad request reply", &APIError{Status: 400, Err: eris.New("invalid model")}, KindTransport},
		{"scorer deadline", eris.Wrap(context.DeadlineExceeded, "secondary: create message"), KindTimeout},
		{"run canceled", context.Canceled, KindCanceled},
		{"breaker rejected", ErrCircuitOpen, KindCircuitOpen},
		{"unparseable verdict", &Failure{Kind: KindParse, Err: eris.New("not json")}, KindParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestAsFailure(t *testing.T) {
	parse := &Failure{Kind: KindParse, Err: eris.New("missing confidence")}
	assert.Same(t, parse, AsFailure(eris.Wrap(parse, "retry")))

	api := &APIError{Status: StatusOverloaded, Err: eris.New("overloaded")}
	f := AsFailure(api)
	assert.Equal(t, KindTransport, f.Kind)
	var got *APIError
	require.ErrorAs(t, f, &got)
	assert.Equal(t, StatusOverloaded, got.Status)
	assert.Equal(t, "escalation: transport: overloaded", f.Error())
}
