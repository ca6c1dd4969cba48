package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/pkg/firecrawl"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want model.FailureKind
	}{
		{
			name: "status 429 in text",
			err:  eris.Errorf("tavily: unexpected status 429: slow down"),
			want: model.FailureRateLimited,
		},
		{
			name: "status 401 in text",
			err:  eris.Errorf("brave: unexpected status 401: bad key"),
			want: model.FailureAuthFailed,
		},
		{
			name: "status 403 in text",
			err:  eris.Errorf("googlesearch: unexpected status 403: key not valid"),
			want: model.FailureAuthFailed,
		},
		{
			name: "status 500 in text",
			err:  eris.Errorf("jina: search unexpected status 500: boom"),
			want: model.FailureUnavailable,
		},
		{
			name: "firecrawl api error rate limited",
			err:  &firecrawl.APIError{StatusCode: 429, Body: "rate limit"},
			want: model.FailureRateLimited,
		},
		{
			name: "firecrawl api error auth",
			err:  &firecrawl.APIError{StatusCode: 401, Body: "unauthorized"},
			want: model.FailureAuthFailed,
		},
		{
			name: "deadline exceeded",
			err:  context.DeadlineExceeded,
			want: model.FailureTimeout,
		},
		{
			name: "wrapped deadline",
			err:  eris.Wrap(context.DeadlineExceeded, "perplexity: send request"),
			want: model.FailureTimeout,
		},
		{
			name: "net timeout",
			err:  timeoutErr{},
			want: model.FailureTimeout,
		},
		{
			name: "anything else",
			err:  errors.New("connection refused"),
			want: model.FailureUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Classify("test", tt.err)
			require.Error(t, got)

			var pe *Error
			require.ErrorAs(t, got, &pe)
			assert.Equal(t, tt.want, pe.Kind)
			assert.Equal(t, "test", pe.Provider)
		})
	}
}

func TestClassify_NilAndIdempotent(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Classify("test", nil))

	orig := &Error{Provider: "tavily", Kind: model.FailureRateLimited}
	assert.Same(t, orig, Classify("other", orig).(*Error))
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	err := &Error{Provider: "brave", Kind: model.FailureAuthFailed, Err: errors.New("401")}
	assert.Equal(t, model.FailureAuthFailed, KindOf(err))
	assert.Equal(t, model.FailureAuthFailed, KindOf(eris.Wrap(err, "outer")))
	assert.Equal(t, model.FailureUnavailable, KindOf(errors.New("unknown")))
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()

	inner := errors.New("boom")
	err := &Error{Provider: "jina", Kind: model.FailureUnavailable, Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "jina")
	assert.Contains(t, err.Error(), "unavailable")
	assert.Contains(t, err.Error(), "boom")
}
