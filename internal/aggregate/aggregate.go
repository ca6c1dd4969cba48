// Package aggregate fans institution queries out to the configured search
// providers and folds the results into evidence sets. Failures never abort a
// gather: they become markers so consolidation can weigh partial evidence.
package aggregate

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/provider"
	"github.com/sells-group/enrich-cli/internal/resilience"
)

// breakerThreshold is the number of consecutive failed calls, after retries,
// that turns a provider off for the remainder of the run.
const breakerThreshold = 5

// defaultProviderTimeout bounds a single provider attempt when the config
// does not set one.
const defaultProviderTimeout = 30 * time.Second

// localityHeaders are the optional workbook columns consulted to narrow
// searches when institutions share a name.
var localityHeaders = []string{"Localidade", "Concelho"}

// Aggregator owns the per-run provider state. Rate limiters and breakers are
// shared across every institution: quotas are account-wide and an auth latch
// applies to the whole run, not one record.
type Aggregator struct {
	registry *provider.Registry
	retry    resilience.RetryConfig
	breakers *resilience.Breakers
	timeout  time.Duration

	rps   func(name string) float64
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	latched  map[string]model.FailureKind
	failures map[string]int
}

// New builds an aggregator over the registry using the run's retry, rate
// limit, and timeout settings.
func New(reg *provider.Registry, cfg *config.Config) *Aggregator {
	timeout := time.Duration(cfg.Enrich.ProviderTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	burst := cfg.RateLimit.Burst
	if burst < 1 {
		burst = 1
	}

	return &Aggregator{
		registry: reg,
		retry: resilience.RetryConfig{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialBackoff: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
			MaxBackoff:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
			Multiplier:     cfg.Retry.Multiplier,
			JitterFraction: cfg.Retry.JitterFraction,
			ShouldRetry:    retryableFailure,
		},
		breakers: resilience.NewBreakers(resilience.BreakerConfig{
			FailureThreshold: breakerThreshold,
			// Zero reset: a latched provider stays off for the rest of the run.
			ResetTimeout: 0,
		}),
		timeout:  timeout,
		rps:      cfg.ProviderRPS,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
		latched:  make(map[string]model.FailureKind),
		failures: make(map[string]int),
	}
}

// Gather queries every registered provider for inst concurrently and waits
// for all of them to settle. The returned set has one entry per provider,
// items on success and a failure marker otherwise. An all-failed set is a
// valid return; the caller decides what to do with it.
func (a *Aggregator) Gather(ctx context.Context, inst *model.Institution) model.EvidenceSet {
	providers := a.registry.All()
	q := queryFor(inst)

	results := make([]model.ProviderEvidence, len(providers))

	g, gCtx := errgroup.WithContext(ctx)
	for i, p := range providers {
		g.Go(func() error {
			results[i] = a.search(gCtx, p, q)
			return nil // One provider never fails the set.
		})
	}
	_ = g.Wait()

	set := make(model.EvidenceSet, len(providers))
	for i, p := range providers {
		set[p.Name()] = results[i]
		if results[i].Failure != nil {
			a.countFailure(p.Name())
		}
	}

	zap.L().Debug("aggregate: evidence gathered",
		zap.String("institution", inst.Name),
		zap.Int("providers", len(providers)),
		zap.Int("items", len(set.Items())),
		zap.Int("failures", len(set.Failures())),
	)
	return set
}

// search runs one provider's rate-limited, retried, breaker-guarded call.
func (a *Aggregator) search(ctx context.Context, p provider.Provider, q provider.Query) model.ProviderEvidence {
	name := p.Name()

	b := a.breakers.Get(name)
	if err := b.Allow(); err != nil {
		return model.ProviderEvidence{Failure: &model.ProviderFailure{
			Provider: name,
			Kind:     a.latchedKind(name),
			Reason:   "provider disabled for the remainder of the run",
		}}
	}

	rc := a.retry
	rc.OnRetry = resilience.RetryLogger(name, "search")

	items, err := resilience.DoVal(ctx, rc, func(ctx context.Context) ([]model.EvidenceItem, error) {
		if err := a.limiter(name).Wait(ctx); err != nil {
			return nil, provider.Classify(name, err)
		}
		callCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		items, err := p.Search(callCtx, q)
		if err != nil {
			return nil, provider.Classify(name, err)
		}
		return items, nil
	})
	if err != nil {
		return a.noteFailure(ctx, b, name, err)
	}

	b.Record(nil)
	return model.ProviderEvidence{Items: items}
}

// noteFailure feeds the final error into the breaker and builds the marker.
func (a *Aggregator) noteFailure(ctx context.Context, b *resilience.Breaker, name string, err error) model.ProviderEvidence {
	kind := provider.KindOf(err)

	switch {
	case kind == model.FailureAuthFailed:
		b.RecordFatal()
		a.setLatched(name, kind)
		zap.L().Error("aggregate: provider latched off, credentials rejected",
			zap.String("provider", name),
			zap.Error(err),
		)
	case ctx.Err() != nil:
		// Cancellation noise must not poison the breaker.
	default:
		b.Record(err)
		if b.Open() {
			a.setLatched(name, kind)
			zap.L().Error("aggregate: provider latched off after repeated failures",
				zap.String("provider", name),
				zap.Error(err),
			)
		}
	}

	zap.L().Warn("aggregate: provider search failed",
		zap.String("provider", name),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
	return model.ProviderEvidence{Failure: &model.ProviderFailure{
		Provider: name,
		Kind:     kind,
		Reason:   err.Error(),
	}}
}

// retryableFailure reports whether a classified provider error deserves
// another attempt. Rate limits and timeouts clear up on their own; auth
// failures never do, and hard upstream statuses were already retried inside
// the HTTP clients.
func retryableFailure(err error) bool {
	switch provider.KindOf(err) {
	case model.FailureRateLimited, model.FailureTimeout:
		return true
	case model.FailureAuthFailed:
		return false
	default:
		return resilience.IsTransient(err)
	}
}

// limiter returns the shared limiter for the named provider, creating it on
// first use.
func (a *Aggregator) limiter(name string) *rate.Limiter {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.limiters[name]
	if !ok {
		l = rate.NewLimiter(rate.Limit(a.rps(name)), a.burst)
		a.limiters[name] = l
	}
	return l
}

func (a *Aggregator) setLatched(name string, kind model.FailureKind) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.latched[name]; !ok {
		a.latched[name] = kind
	}
}

// latchedKind returns the failure kind that latched the provider, so skip
// markers report why the provider is off rather than a generic miss.
func (a *Aggregator) latchedKind(name string) model.FailureKind {
	a.mu.Lock()
	defer a.mu.Unlock()
	if kind, ok := a.latched[name]; ok {
		return kind
	}
	return model.FailureUnavailable
}

func (a *Aggregator) countFailure(name string) {
	a.mu.Lock()
	a.failures[name]++
	a.mu.Unlock()
}

// FailureCounts returns how many gathers each provider has failed so far,
// for the run summary.
func (a *Aggregator) FailureCounts() map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]int, len(a.failures))
	for k, v := range a.failures {
		out[k] = v
	}
	return out
}

// Disabled returns the providers latched off so far.
func (a *Aggregator) Disabled() []string {
	return a.breakers.OpenNames()
}

// queryFor builds the provider query for one record. The locality hint comes
// from the optional workbook columns when the sheet carries them.
func queryFor(inst *model.Institution) provider.Query {
	q := provider.Query{Institution: inst.Name}
	for _, h := range localityHeaders {
		if v := strings.TrimSpace(inst.Extra[h]); v != "" {
			q.Locality = v
			break
		}
	}
	return q
}
