package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/nao1215/headscrape/internal/model"
)

func mustPolicy(t *testing.T, cfg Config, opts ...Option) *Policy {
	t.Helper()

	p, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New(%+v): %v", cfg, err)
	}
	return p
}

func TestNew(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		cfg  Config
		want error
	}{
		{"valid", Config{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second}, nil},
		{"zero retries", Config{BaseDelay: time.Second, MaxDelay: time.Second}, nil},
		{"negative retries", Config{MaxRetries: -1, BaseDelay: time.Second, MaxDelay: time.Second}, ErrInvalidMaxRetries},
		{"zero base", Config{MaxRetries: 1, MaxDelay: time.Second}, ErrInvalidBaseDelay},
		{"max below base", Config{MaxRetries: 1, BaseDelay: 2 * time.Second, MaxDelay: time.Second}, ErrInvalidMaxDelay},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := New(tc.cfg)
			if !errors.Is(err, tc.want) {
				t.Errorf("New() error = %v, expected %v", err, tc.want)
			}
		})
	}
}

func TestShouldRetry(t *testing.T) {
	t.Parallel()

	p := mustPolicy(t, Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Second})

	testCases := []struct {
		name    string
		attempt int
		kind    model.ErrorKind
		want    bool
	}{
		{"first retryable failure", 0, model.KindTimeout, true},
		{"below limit", 1, model.KindNetwork, true},
		{"at limit", 2, model.KindTimeout, false},
		{"past limit", 5, model.KindTimeout, false},
		{"schema mismatch never retried", 0, model.KindSchemaMismatch, false},
		{"invalid target never retried", 0, model.KindInvalidTarget, false},
		{"config never retried", 0, model.KindConfig, false},
		{"cancelled never retried", 0, model.KindCancelled, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := p.ShouldRetry(tc.attempt, tc.kind); got != tc.want {
				t.Errorf("ShouldRetry(%d, %v) = %v, expected %v", tc.attempt, tc.kind, got, tc.want)
			}
		})
	}

	t.Run("zero retries never retry", func(t *testing.T) {
		t.Parallel()

		p := mustPolicy(t, Config{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
		if p.ShouldRetry(0, model.KindTimeout) {
			t.Error("ShouldRetry(0, timeout) = true with MaxRetries 0")
		}
	})
}

func TestDelayFor(t *testing.T) {
	t.Parallel()

	t.Run("doubles up to the cap", func(t *testing.T) {
		t.Parallel()

		p := mustPolicy(t, Config{MaxRetries: 10, BaseDelay: time.Second, MaxDelay: 10 * time.Second})
		want := []time.Duration{
			time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
			10 * time.Second, 10 * time.Second,
		}
		for n, w := range want {
			if got := p.DelayFor(n); got != w {
				t.Errorf("DelayFor(%d) = %s, expected %s", n, got, w)
			}
		}
	})

	t.Run("one second base capped at eight", func(t *testing.T) {
		t.Parallel()

		p := mustPolicy(t, Config{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: 8 * time.Second})
		want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second}
		for n, w := range want {
			if got := p.DelayFor(n); got != w {
				t.Errorf("DelayFor(%d) = %s, expected %s", n, got, w)
			}
		}
	})

	t.Run("monotone and overflow safe", func(t *testing.T) {
		t.Parallel()

		p := mustPolicy(t, Config{MaxRetries: 100, BaseDelay: 1200 * time.Millisecond, MaxDelay: time.Duration(math.MaxInt64)})
		prev := time.Duration(0)
		for n := range 200 {
			d := p.DelayFor(n)
			if d < prev {
				t.Fatalf("DelayFor(%d) = %s < DelayFor(%d) = %s", n, d, n-1, prev)
			}
			if d <= 0 {
				t.Fatalf("DelayFor(%d) = %s overflowed", n, d)
			}
			prev = d
		}
	})

	t.Run("negative n is base delay", func(t *testing.T) {
		t.Parallel()

		p := mustPolicy(t, Config{BaseDelay: time.Second, MaxDelay: time.Minute})
		if got := p.DelayFor(-3); got != time.Second {
			t.Errorf("DelayFor(-3) = %s, expected 1s", got)
		}
	})

	t.Run("jitter stays within bounds", func(t *testing.T) {
		t.Parallel()

		p := mustPolicy(t,
			Config{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: 4 * time.Second, Jitter: true},
			WithRand(rand.New(rand.NewPCG(7, 11))),
		)
		for n := range 6 {
			base := min(time.Second<<n, 4*time.Second)
			for range 50 {
				d := p.DelayFor(n)
				if d < base || d > 2*base {
					t.Fatalf("DelayFor(%d) = %s, expected within [%s, %s]", n, d, base, 2*base)
				}
			}
		}
	})
}

func TestSleep(t *testing.T) {
	t.Parallel()

	t.Run("returns after the delay", func(t *testing.T) {
		t.Parallel()

		if err := Sleep(context.Background(), time.Millisecond); err != nil {
			t.Errorf("Sleep() = %v", err)
		}
	})

	t.Run("returns early on cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		start := time.Now()
		err := Sleep(ctx, time.Hour)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Sleep() = %v, expected context.Canceled", err)
		}
		if time.Since(start) > time.Second {
			t.Error("Sleep() did not return promptly after cancellation")
		}
	})
}
