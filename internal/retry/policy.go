package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/nao1215/headscrape/internal/model"
)

// Policy validation errors.
var (
	// ErrInvalidMaxRetries is returned when MaxRetries is negative.
	ErrInvalidMaxRetries = errors.New("max retries must not be negative")

	// ErrInvalidBaseDelay is returned when BaseDelay is not positive.
	ErrInvalidBaseDelay = errors.New("base delay must be positive")

	// ErrInvalidMaxDelay is returned when MaxDelay is below BaseDelay.
	ErrInvalidMaxDelay = errors.New("max delay must not be less than base delay")
)

// Config holds the retry parameters.
type Config struct {
	// MaxRetries is the number of retries after the first render call.
	MaxRetries int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the exponential delay.
	MaxDelay time.Duration

	// Jitter adds a random amount in [0, delay] to every delay. The jittered
	// delay may therefore exceed MaxDelay by at most MaxDelay.
	Jitter bool
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxRetries, c.MaxRetries)
	}
	if c.BaseDelay <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidBaseDelay, c.BaseDelay)
	}
	if c.MaxDelay < c.BaseDelay {
		return fmt.Errorf("%w: max %s < base %s", ErrInvalidMaxDelay, c.MaxDelay, c.BaseDelay)
	}
	return nil
}

// Policy is a validated retry configuration. Safe for concurrent use.
//
// A Policy answers two questions for a failed render call: may the attempt
// try again, and how long should it wait first. It does not run the loop
// itself.
//
// Design decision: the retry loop lives in the fetch attempt, not here.
// Between two render calls the attempt also advances proxy layers and
// notifies observers, so a generic "call f until it succeeds" helper would
// have to expose hooks for all of that. Keeping the Policy a pair of pure
// functions lets one instance be shared by every concurrent attempt and
// makes the delay sequence trivially testable.
//
// Design decision: jitter is opt-in and draws from an injectable source.
// Deterministic delays keep logs and tests readable; jitter is there for
// large batches where many attempts would otherwise retry in lockstep
// against the same proxy.
type Policy struct {
	cfg Config

	mu  sync.Mutex
	rnd *rand.Rand
}

// Option configures a Policy.
type Option func(*Policy)

// WithRand sets the jitter source.
func WithRand(r *rand.Rand) Option {
	return func(p *Policy) {
		p.rnd = r
	}
}

// New validates cfg and creates a Policy.
func New(cfg Config, opts ...Option) (*Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Policy{cfg: cfg}
	for _, opt := range opts {
		opt(p)
	}
	if p.rnd == nil {
		p.rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // jitter only
	}
	return p, nil
}

// Config returns the policy configuration.
func (p *Policy) Config() Config {
	return p.cfg
}

// MaxRetries returns the configured retry limit.
func (p *Policy) MaxRetries() int {
	return p.cfg.MaxRetries
}

// ShouldRetry reports whether a failure of the given kind, after attempt
// retries have already been made, earns another render call.
// Non-retryable kinds are never retried, even with budget left: an
// invalid target or a changed page layout fails the same way on every
// proxy, and retrying would only burn time and proxy traffic.
func (p *Policy) ShouldRetry(attempt int, kind model.ErrorKind) bool {
	if !kind.Retryable() {
		return false
	}
	return attempt < p.cfg.MaxRetries
}

// DelayFor returns the wait before retry n (zero based):
// min(MaxDelay, BaseDelay * 2^n), plus jitter when enabled.
// The first retry therefore waits BaseDelay. Large n saturates at MaxDelay
// instead of overflowing.
func (p *Policy) DelayFor(n int) time.Duration {
	d := p.backoff(n)
	if !p.cfg.Jitter || d <= 0 {
		return d
	}

	bound := int64(d)
	if bound < math.MaxInt64 {
		bound++
	}
	p.mu.Lock()
	j := time.Duration(p.rnd.Int64N(bound))
	p.mu.Unlock()

	if d > math.MaxInt64-j {
		return math.MaxInt64
	}
	return d + j
}

// backoff doubles BaseDelay n times, stopping at MaxDelay before the
// multiplication can overflow.
func (p *Policy) backoff(n int) time.Duration {
	d := p.cfg.BaseDelay
	for range max(n, 0) {
		if d > p.cfg.MaxDelay/2 {
			return p.cfg.MaxDelay
		}
		d *= 2
	}
	return min(d, p.cfg.MaxDelay)
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
