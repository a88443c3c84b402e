package scheduler

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/headscrape/internal/fetch"
	"github.com/nao1215/headscrape/internal/model"
	"github.com/nao1215/headscrape/internal/proxy"
	"github.com/nao1215/headscrape/internal/retry"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// fetcherFunc adapts a function to Fetcher.
type fetcherFunc func(ctx context.Context, target string) model.ScrapeResult

func (f fetcherFunc) Fetch(ctx context.Context, target string) model.ScrapeResult {
	return f(ctx, target)
}

func TestRunBoundsConcurrency(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	f := fetcherFunc(func(_ context.Context, target string) model.ScrapeResult {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return model.NewSuccess(target, map[string]string{}, 1)
	})

	s := New(f, WithConcurrency(2), WithLogger(quiet))
	targets := []string{"https://a", "https://b", "https://c", "https://d", "https://e"}
	results := s.Run(context.Background(), targets)

	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency = %d, expected at most 2", got)
	}
	if len(results) != len(targets) {
		t.Fatalf("results = %d, expected %d", len(results), len(targets))
	}
}

func TestRunOneResultPerTargetInInputOrder(t *testing.T) {
	t.Parallel()

	f := fetcherFunc(func(_ context.Context, target string) model.ScrapeResult {
		if strings.Contains(target, "bad") {
			return model.NewFailure(target, model.KindSchemaMismatch, 1, nil)
		}
		// Vary completion order.
		time.Sleep(time.Duration(10-len(target)%10) * time.Millisecond)
		return model.NewSuccess(target, map[string]string{"source_url": target}, 1)
	})

	targets := []string{"https://x/1", "https://x/bad", "https://x/1", "https://x/22", "https://x/bad2", "https://x/333"}
	results := New(f, WithConcurrency(4), WithLogger(quiet)).Run(context.Background(), targets)

	if len(results) != len(targets) {
		t.Fatalf("results = %d, expected %d", len(results), len(targets))
	}
	for i, r := range results {
		if r.Target != targets[i] {
			t.Errorf("results[%d].Target = %q, expected %q", i, r.Target, targets[i])
		}
		if wantOK := !strings.Contains(targets[i], "bad"); r.OK() != wantOK {
			t.Errorf("results[%d].OK() = %v, expected %v", i, r.OK(), wantOK)
		}
	}
}

func TestRunCallbackIsSerialized(t *testing.T) {
	t.Parallel()

	f := fetcherFunc(func(_ context.Context, target string) model.ScrapeResult {
		return model.NewSuccess(target, map[string]string{}, 1)
	})

	var (
		active atomic.Int32
		seen   = make(map[int]bool)
		mu     sync.Mutex
	)
	cb := func(_ model.ScrapeResult, i int) {
		if active.Add(1) != 1 {
			t.Error("callback invoked concurrently")
		}
		time.Sleep(time.Millisecond)
		mu.Lock()
		seen[i] = true
		mu.Unlock()
		active.Add(-1)
	}

	targets := make([]string, 20)
	for i := range targets {
		targets[i] = "https://example.com/"
	}
	New(f, WithConcurrency(8), WithCallback(cb), WithLogger(quiet)).Run(context.Background(), targets)

	if len(seen) != len(targets) {
		t.Errorf("callback saw %d indexes, expected %d", len(seen), len(targets))
	}
}

func TestRunInOrderCallback(t *testing.T) {
	t.Parallel()

	// Later targets finish first.
	f := fetcherFunc(func(_ context.Context, target string) model.ScrapeResult {
		delay := map[string]time.Duration{
			"https://x/0": 30 * time.Millisecond,
			"https://x/1": 20 * time.Millisecond,
			"https://x/2": 10 * time.Millisecond,
			"https://x/3": 0,
		}[target]
		time.Sleep(delay)
		return model.NewSuccess(target, map[string]string{}, 1)
	})

	targets := []string{"https://x/0", "https://x/1", "https://x/2", "https://x/3"}

	testCases := []struct {
		name    string
		opts    []Option
		inOrder bool
	}{
		{"in order", []Option{WithInOrder()}, true},
		{"completion order", nil, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var (
				mu    sync.Mutex
				order []int
			)
			cb := func(r model.ScrapeResult, i int) {
				if r.Target != targets[i] {
					t.Errorf("callback index %d got target %q", i, r.Target)
				}
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
			}

			opts := append([]Option{WithConcurrency(4), WithCallback(cb), WithLogger(quiet)}, tc.opts...)
			New(f, opts...).Run(context.Background(), targets)

			if len(order) != len(targets) {
				t.Fatalf("callback calls = %d, expected %d", len(order), len(targets))
			}
			inputOrder := true
			for i, idx := range order {
				if idx != i {
					inputOrder = false
				}
			}
			if tc.inOrder && !inputOrder {
				t.Errorf("callback order = %v, expected input order", order)
			}
			if !tc.inOrder && order[0] != 3 {
				t.Errorf("callback order = %v, expected fastest target first", order)
			}
		})
	}
}

func TestRunCancellation(t *testing.T) {
	t.Parallel()

	t.Run("already cancelled", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		f := fetcherFunc(func(_ context.Context, target string) model.ScrapeResult {
			calls.Add(1)
			return model.NewSuccess(target, map[string]string{}, 1)
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		results := New(f, WithLogger(quiet)).Run(ctx, []string{"https://a", "https://b"})
		if calls.Load() != 0 {
			t.Errorf("fetcher called %d times after cancellation", calls.Load())
		}
		for i, r := range results {
			if r.Reason != model.KindCancelled {
				t.Errorf("results[%d].Reason = %v, expected cancelled", i, r.Reason)
			}
		}
	})

	t.Run("cancelled mid batch keeps finished results", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		f := fetcherFunc(func(ctx context.Context, target string) model.ScrapeResult {
			if target == "https://first" {
				return model.NewSuccess(target, map[string]string{}, 1)
			}
			cancel()
			<-ctx.Done()
			return model.NewCancelled(target, 1)
		})

		targets := []string{"https://first", "https://second", "https://third", "https://fourth"}
		results := New(f, WithConcurrency(1), WithLogger(quiet)).Run(ctx, targets)

		if !results[0].OK() {
			t.Errorf("results[0] = %+v, expected success", results[0])
		}
		for i := 1; i < len(results); i++ {
			if results[i].Reason != model.KindCancelled {
				t.Errorf("results[%d].Reason = %v, expected cancelled", i, results[i].Reason)
			}
			if results[i].Target != targets[i] {
				t.Errorf("results[%d].Target = %q, expected %q", i, results[i].Target, targets[i])
			}
		}
	})
}

func TestRunEndToEndWithFetcher(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	calls := map[string]int{}
	renderer := fetch.RendererFunc(func(_ context.Context, target string, _ proxy.Candidate, _ fetch.Options) (*fetch.Document, error) {
		mu.Lock()
		calls[target]++
		n := calls[target]
		mu.Unlock()

		if strings.HasSuffix(target, "/B") {
			if n == 1 {
				return nil, model.Errorf(model.KindTimeout, "navigation timeout")
			}
			return nil, model.Errorf(model.KindConnectionRefused, "net::ERR_CONNECTION_REFUSED")
		}
		return &fetch.Document{URL: target, Status: 200}, nil
	})
	extractor := fetch.ExtractorFunc(func(doc *fetch.Document) (map[string]string, error) {
		return map[string]string{"source_url": doc.URL}, nil
	})

	layers, err := proxy.NewLayerSet(nil)
	if err != nil {
		t.Fatal(err)
	}
	policy, err := retry.New(retry.Config{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	f, err := fetch.New(layers, policy, renderer, extractor, fetch.WithLogger(quiet))
	if err != nil {
		t.Fatal(err)
	}

	results := New(f, WithConcurrency(2), WithLogger(quiet)).Run(context.Background(), []string{"https://example.com/A", "https://example.com/B"})

	a, b := results[0], results[1]
	if !a.OK() || a.Attempts != 1 {
		t.Errorf("A = %+v, expected success after 1 attempt", a)
	}
	if b.OK() || b.Attempts != 2 || b.Reason != model.KindConnectionRefused {
		t.Errorf("B = %v after %d attempts, expected connection_refused after 2", b.Reason, b.Attempts)
	}
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	s := New(fetcherFunc(nil), WithConcurrency(0))
	if s.Concurrency() != DefaultConcurrency {
		t.Errorf("Concurrency() = %d, expected %d", s.Concurrency(), DefaultConcurrency)
	}
}
