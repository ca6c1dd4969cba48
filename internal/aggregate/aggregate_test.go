package aggregate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/provider"
	"github.com/sells-group/enrich-cli/internal/resilience"
)

type fakeProvider struct {
	name string
	fn   func(call int) ([]model.EvidenceItem, error)

	mu    sync.Mutex
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Search(_ context.Context, _ provider.Query) ([]model.EvidenceItem, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fn(call)
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func succeeding(name, snippet string) *fakeProvider {
	return &fakeProvider{name: name, fn: func(int) ([]model.EvidenceItem, error) {
		return []model.EvidenceItem{model.TextEvidence{Provider: name, Snippet: snippet}}, nil
	}}
}

func failing(name string, kind model.FailureKind) *fakeProvider {
	return &fakeProvider{name: name, fn: func(int) ([]model.EvidenceItem, error) {
		return nil, &provider.Error{Provider: name, Kind: kind, Err: errors.New("upstream says no")}
	}}
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Retry = config.RetryConfig{
		MaxAttempts:      2,
		InitialBackoffMs: 1,
		MaxBackoffMs:     2,
		Multiplier:       1.1,
	}
	cfg.RateLimit = config.RateLimitConfig{DefaultRPS: 1000, Burst: 10}
	cfg.Enrich.ProviderTimeoutSecs = 5
	return cfg
}

func newTestAggregator(providers ...provider.Provider) *Aggregator {
	reg := provider.NewRegistry()
	for _, p := range providers {
		reg.Register(p)
	}
	return New(reg, testConfig())
}

func bonanca() *model.Institution {
	return model.NewInstitution("Colégio Bonança", 2)
}

func TestGather_AllProvidersSucceed(t *testing.T) {
	t.Parallel()

	tavily := succeeding("tavily", "Telefone: 229 999 888")
	brave := succeeding("brave", "geral@colegiobonanca.pt")
	agg := newTestAggregator(tavily, brave)

	set := agg.Gather(context.Background(), bonanca())

	require.Len(t, set, 2)
	assert.Nil(t, set["tavily"].Failure)
	assert.Nil(t, set["brave"].Failure)
	assert.Len(t, set.Items(), 2)
	assert.False(t, set.AllFailed())
	assert.Empty(t, agg.FailureCounts())
}

func TestGather_PartialFailureKeepsSurvivors(t *testing.T) {
	t.Parallel()

	agg := newTestAggregator(
		succeeding("tavily", "Morada: Rua da Bonança 12, Vila Nova de Gaia"),
		failing("jina", model.FailureUnavailable),
	)

	set := agg.Gather(context.Background(), bonanca())

	require.Len(t, set, 2)
	assert.False(t, set.AllFailed())
	assert.Len(t, set.Items(), 1)

	require.NotNil(t, set["jina"].Failure)
	assert.Equal(t, model.FailureUnavailable, set["jina"].Failure.Kind)
	assert.Contains(t, set["jina"].Failure.Reason, "upstream says no")

	assert.Equal(t, map[string]int{"jina": 1}, agg.FailureCounts())
}

func TestGather_AllFailedIsValid(t *testing.T) {
	t.Parallel()

	agg := newTestAggregator(
		failing("tavily", model.FailureUnavailable),
		failing("brave", model.FailureUnavailable),
	)

	set := agg.Gather(context.Background(), bonanca())

	require.Len(t, set, 2)
	assert.True(t, set.AllFailed())
	assert.Len(t, set.Failures(), 2)
}

func TestGather_EmptyResultsAreNotFailures(t *testing.T) {
	t.Parallel()

	quiet := &fakeProvider{name: "brave", fn: func(int) ([]model.EvidenceItem, error) {
		return []model.EvidenceItem{}, nil
	}}
	agg := newTestAggregator(quiet)

	set := agg.Gather(context.Background(), bonanca())

	require.Len(t, set, 1)
	assert.Nil(t, set["brave"].Failure)
	assert.Empty(t, set["brave"].Items)
	assert.True(t, set.AllFailed())
	assert.Empty(t, agg.FailureCounts())
}

func TestGather_NoProviders(t *testing.T) {
	t.Parallel()

	agg := newTestAggregator()

	set := agg.Gather(context.Background(), bonanca())

	assert.Empty(t, set)
	assert.True(t, set.AllFailed())
}

func TestGather_RetriesRateLimited(t *testing.T) {
	t.Parallel()

	flaky := &fakeProvider{name: "tavily", fn: func(call int) ([]model.EvidenceItem, error) {
		if call == 1 {
			return nil, &provider.Error{Provider: "tavily", Kind: model.FailureRateLimited, Err: errors.New("status 429")}
		}
		return []model.EvidenceItem{model.TextEvidence{Provider: "tavily", Snippet: "4400-123 Vila Nova de Gaia"}}, nil
	}}
	agg := newTestAggregator(flaky)

	set := agg.Gather(context.Background(), bonanca())

	assert.Equal(t, 2, flaky.callCount())
	assert.Nil(t, set["tavily"].Failure)
	assert.Len(t, set["tavily"].Items, 1)
	assert.Empty(t, agg.FailureCounts())
}

func TestGather_RetriesTimeout(t *testing.T) {
	t.Parallel()

	slow := &fakeProvider{name: "firecrawl", fn: func(int) ([]model.EvidenceItem, error) {
		return nil, context.DeadlineExceeded
	}}
	agg := newTestAggregator(slow)

	set := agg.Gather(context.Background(), bonanca())

	assert.Equal(t, 2, slow.callCount())
	require.NotNil(t, set["firecrawl"].Failure)
	assert.Equal(t, model.FailureTimeout, set["firecrawl"].Failure.Kind)
}

func TestGather_DoesNotRetryUnavailable(t *testing.T) {
	t.Parallel()

	down := failing("jina", model.FailureUnavailable)
	agg := newTestAggregator(down)

	agg.Gather(context.Background(), bonanca())

	assert.Equal(t, 1, down.callCount())
}

func TestGather_AuthFailureLatchesProvider(t *testing.T) {
	t.Parallel()

	locked := failing("perplexity", model.FailureAuthFailed)
	agg := newTestAggregator(locked)

	set := agg.Gather(context.Background(), bonanca())

	// Never retried.
	assert.Equal(t, 1, locked.callCount())
	require.NotNil(t, set["perplexity"].Failure)
	assert.Equal(t, model.FailureAuthFailed, set["perplexity"].Failure.Kind)
	assert.Equal(t, []string{"perplexity"}, agg.Disabled())

	// Later institutions skip the provider without calling it.
	set = agg.Gather(context.Background(), model.NewInstitution("Escola da Ribeira", 3))

	assert.Equal(t, 1, locked.callCount())
	require.NotNil(t, set["perplexity"].Failure)
	assert.Equal(t, model.FailureAuthFailed, set["perplexity"].Failure.Kind)
	assert.Contains(t, set["perplexity"].Failure.Reason, "disabled")
}

func TestGather_LatchesAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	down := failing("brave", model.FailureUnavailable)
	agg := newTestAggregator(down)

	for i := 0; i < breakerThreshold; i++ {
		agg.Gather(context.Background(), bonanca())
	}
	require.Equal(t, breakerThreshold, down.callCount())
	assert.Equal(t, []string{"brave"}, agg.Disabled())

	set := agg.Gather(context.Background(), bonanca())

	assert.Equal(t, breakerThreshold, down.callCount())
	require.NotNil(t, set["brave"].Failure)
	assert.Equal(t, model.FailureUnavailable, set["brave"].Failure.Kind)
	assert.Contains(t, set["brave"].Failure.Reason, "disabled")
}

func TestGather_SuccessResetsFailureStreak(t *testing.T) {
	t.Parallel()

	var streak int
	flappy := &fakeProvider{name: "tavily", fn: func(int) ([]model.EvidenceItem, error) {
		streak++
		if streak%3 == 0 {
			return []model.EvidenceItem{model.TextEvidence{Provider: "tavily", Snippet: "ok"}}, nil
		}
		return nil, &provider.Error{Provider: "tavily", Kind: model.FailureUnavailable, Err: errors.New("status 503")}
	}}
	agg := newTestAggregator(flappy)

	// Two failures, one success, repeated: the streak never reaches the
	// threshold, so the provider stays enabled.
	for i := 0; i < breakerThreshold*3; i++ {
		agg.Gather(context.Background(), bonanca())
	}

	assert.Empty(t, agg.Disabled())
	assert.Equal(t, breakerThreshold*2, agg.FailureCounts()["tavily"])
}

func TestGather_CancelledContext(t *testing.T) {
	t.Parallel()

	p := succeeding("google", "Direção: Maria Santos")
	agg := newTestAggregator(p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	set := agg.Gather(ctx, bonanca())

	require.NotNil(t, set["google"].Failure)
	assert.Zero(t, p.callCount())

	// Cancellation does not poison the breaker: the provider answers the
	// next gather normally.
	set = agg.Gather(context.Background(), bonanca())

	assert.Nil(t, set["google"].Failure)
	assert.Equal(t, 1, p.callCount())
	assert.Empty(t, agg.Disabled())
}

func TestFailureCounts_AccumulateAcrossGathers(t *testing.T) {
	t.Parallel()

	down := failing("jina", model.FailureUnavailable)
	agg := newTestAggregator(down, succeeding("tavily", "ok"))

	agg.Gather(context.Background(), bonanca())
	agg.Gather(context.Background(), model.NewInstitution("Escola da Ribeira", 3))

	assert.Equal(t, map[string]int{"jina": 2}, agg.FailureCounts())
}

func TestRetryableFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "rate limited",
			err:  &provider.Error{Provider: "tavily", Kind: model.FailureRateLimited},
			want: true,
		},
		{
			name: "timeout",
			err:  &provider.Error{Provider: "tavily", Kind: model.FailureTimeout},
			want: true,
		},
		{
			name: "auth failed",
			err:  &provider.Error{Provider: "tavily", Kind: model.FailureAuthFailed},
			want: false,
		},
		{
			name: "server error",
			err:  &provider.Error{Provider: "tavily", Kind: model.FailureUnavailable, Err: errors.New("status 500")},
			want: false,
		},
		{
			name: "transient network failure",
			err: &provider.Error{
				Provider: "tavily",
				Kind:     model.FailureUnavailable,
				Err:      resilience.NewTransientError(errors.New("connection reset by peer"), 0),
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, retryableFailure(tt.err))
		})
	}
}

func TestQueryFor(t *testing.T) {
	t.Parallel()

	inst := bonanca()
	assert.Equal(t, provider.Query{Institution: "Colégio Bonança"}, queryFor(inst))

	inst.Extra["Concelho"] = "Gaia"
	assert.Equal(t, "Gaia", queryFor(inst).Locality)

	// Localidade wins over Concelho when both are present.
	inst.Extra["Localidade"] = "Vila Nova de Gaia"
	assert.Equal(t, "Vila Nova de Gaia", queryFor(inst).Locality)
}
