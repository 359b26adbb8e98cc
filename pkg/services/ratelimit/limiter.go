package ratelimit

import (
	"sync"
	"time"
)

// Config holds the token-bucket parameters applied to every repo unless a
// per-repo override says otherwise.
type Config struct {
	Capacity     int
	RefillPerSec float64
	IdleEviction time.Duration
}

// bucket is the per-repo token bucket. Tokens accumulate fractionally and
// are withdrawn in whole units. All mutation happens under the registry
// lock; no caller ever touches the fields directly.
type bucket struct {
	capacity     int
	refillPerSec float64
	tokens       float64
	lastRefill   time.Time
	lastUsed     time.Time
}

func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillPerSec
	if b.tokens > float64(b.capacity) {
		b.tokens = float64(b.capacity)
	}
	b.lastRefill = now
}

// Limiter is a per-repo token-bucket registry. Buckets are created lazily
// on first use and evicted after sitting idle past the configured horizon;
// a recreated bucket starts full, which is acceptable for a limiter that
// only bounds burst rate.
type Limiter struct {
	cfg       Config
	overrides map[string]Config
	now       func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type Option func(*Limiter)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithOverride installs repo-specific bucket parameters.
func WithOverride(repo string, cfg Config) Option {
	return func(l *Limiter) { l.overrides[repo] = cfg }
}

func NewLimiter(cfg Config, opts ...Option) *Limiter {
	l := &Limiter{
		cfg:       cfg,
		overrides: make(map[string]Config),
		now:       time.Now,
		buckets:   make(map[string]*bucket),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) configFor(repo string) Config {
	if cfg, ok := l.overrides[repo]; ok {
		return cfg
	}
	return l.cfg
}

// TryAcquire withdraws one token from the repo's bucket. It never blocks:
// the caller either gets a token now or is told to back off. Callers
// already retry with backoff, so queueing here would only add latency.
func (l *Limiter) TryAcquire(repo string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[repo]
	if !ok {
		cfg := l.configFor(repo)
		b = &bucket{
			capacity:     cfg.Capacity,
			refillPerSec: cfg.RefillPerSec,
			tokens:       float64(cfg.Capacity),
			lastRefill:   now,
		}
		l.buckets[repo] = b
	}

	b.refill(now)
	b.lastUsed = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Refill restores a repo's bucket to full capacity. Used by operators and
// tests; normal traffic relies on continuous refill.
func (l *Limiter) Refill(repo string) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[repo]
	if !ok {
		return
	}
	b.tokens = float64(b.capacity)
	b.lastRefill = now
}

// EvictIdle drops buckets that have not been touched within the eviction
// horizon and reports how many were removed. Dropped buckets are recreated
// lazily on the repo's next submission.
func (l *Limiter) EvictIdle() int {
	if l.cfg.IdleEviction <= 0 {
		return 0
	}
	cutoff := l.now().Add(-l.cfg.IdleEviction)

	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for repo, b := range l.buckets {
		if b.lastUsed.Before(cutoff) {
			delete(l.buckets, repo)
			evicted++
		}
	}
	return evicted
}
