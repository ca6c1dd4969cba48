// Package resilience provides retry and failure-latching patterns for
// external service calls.
package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrCircuitOpen is returned when a call is rejected because the breaker
// latched open.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// BreakerConfig controls breaker behavior.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive tripping failures before
	// the breaker opens. Default: 5. A fatal failure (see RecordFatal) opens
	// the breaker immediately regardless of the threshold.
	FailureThreshold int

	// ResetTimeout is how long the breaker stays open before allowing calls
	// again. Zero means it never resets: once open it stays open for the
	// life of the process, which is how auth failures are latched for the
	// remainder of a run.
	ResetTimeout time.Duration

	// ShouldTrip decides whether an error counts toward the threshold. If
	// nil, every non-nil error counts.
	ShouldTrip func(err error) bool

	// OnOpen is called once each time the breaker opens.
	OnOpen func()
}

// Breaker is a minimal two-state circuit breaker. Closed lets calls through;
// open rejects them until ResetTimeout elapses (or forever when the timeout
// is zero).
type Breaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	open     bool
	failures int
	openedAt time.Time

	nowFunc func() time.Time
}

// NewBreaker creates a breaker with the given config.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	return &Breaker{cfg: cfg, nowFunc: time.Now}
}

// Allow reports whether a call may proceed, returning ErrCircuitOpen when
// the breaker is latched.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return nil
	}
	if b.cfg.ResetTimeout > 0 && b.nowFunc().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		b.open = false
		b.failures = 0
		return nil
	}
	return ErrCircuitOpen
}

// Record feeds a call result into the breaker. A nil error or a non-tripping
// error resets the consecutive failure count.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	trips := b.cfg.ShouldTrip
	if trips == nil {
		trips = func(e error) bool { return e != nil }
	}

	if err == nil || !trips(err) {
		b.failures = 0
		return
	}

	b.failures++
	if !b.open && b.failures >= b.cfg.FailureThreshold {
		b.trip()
	}
}

// RecordFatal opens the breaker immediately. Used when a provider reports an
// auth failure: no retry or later attempt this run can succeed.
func (b *Breaker) RecordFatal() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		b.trip()
	}
}

// Open reports whether the breaker is currently rejecting calls.
func (b *Breaker) Open() bool {
	return b.Allow() != nil
}

func (b *Breaker) trip() {
	b.open = true
	b.openedAt = b.nowFunc()
	if b.cfg.OnOpen != nil {
		b.cfg.OnOpen()
	}
}

// Breakers manages one breaker per provider.
type Breakers struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      BreakerConfig
}

// NewBreakers creates a registry of per-provider breakers sharing cfg.
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{breakers: make(map[string]*Breaker), cfg: cfg}
}

// Get returns the breaker for the named provider, creating one if needed.
func (bs *Breakers) Get(name string) *Breaker {
	bs.mu.RLock()
	b, ok := bs.breakers[name]
	bs.mu.RUnlock()
	if ok {
		return b
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()
	if b, ok = bs.breakers[name]; ok {
		return b
	}
	b = NewBreaker(bs.cfg)
	bs.breakers[name] = b
	return b
}

// OpenNames returns the providers whose breakers are currently open.
func (bs *Breakers) OpenNames() []string {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	var names []string
	for name, b := range bs.breakers {
		if b.Open() {
			names = append(names, name)
		}
	}
	return names
}
