package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"setfetch/internal/fetcher"
	"setfetch/internal/source"
)

func TestDelays_For(t *testing.T) {
	d := Delays{
		Rendered:  300 * time.Millisecond,
		API:       100 * time.Millisecond,
		Overrides: map[source.Source]time.Duration{source.HistoricalTrading: 0},
	}

	tests := []struct {
		src  source.Source
		want time.Duration
	}{
		{source.Factsheet, 300 * time.Millisecond},
		{source.CompanyHighlights, 100 * time.Millisecond},
		{source.RightsBenefits, 100 * time.Millisecond},
		{source.HistoricalTrading, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.src), func(t *testing.T) {
			if got := d.For(tt.src); got != tt.want {
				t.Errorf("For(%s) = %v, want %v", tt.src, got, tt.want)
			}
		})
	}
}

func TestDefaultDelays(t *testing.T) {
	d := DefaultDelays()
	if d.For(source.Factsheet) <= d.For(source.RightsBenefits) {
		t.Errorf("rendered delay %v should exceed API delay %v",
			d.For(source.Factsheet), d.For(source.RightsBenefits))
	}
}

func TestLimiter_Delay(t *testing.T) {
	l := New(Delays{
		Rendered:  2 * time.Second,
		API:       time.Second,
		Overrides: map[source.Source]time.Duration{source.RightsBenefits: 5 * time.Second},
	}, nil)

	tests := map[source.Source]time.Duration{
		source.Factsheet:         2 * time.Second,
		source.HistoricalTrading: time.Second,
		source.RightsBenefits:    5 * time.Second,
	}
	for src, want := range tests {
		if got := l.Delay(src); got != want {
			t.Errorf("Delay(%s) = %v, want %v", src, got, want)
		}
	}
}

func TestLimiter_Wait_SuspendsForDelay(t *testing.T) {
	l := New(Delays{API: 40 * time.Millisecond, Rendered: 40 * time.Millisecond}, nil)

	start := time.Now()
	if err := l.Wait(context.Background(), source.RightsBenefits); err != nil {
		t.Fatalf("Wait() returned unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("Wait() returned after %v, want at least 40ms", elapsed)
	}
}

func TestLimiter_Wait_ZeroDelay(t *testing.T) {
	l := New(Delays{}, nil)

	start := time.Now()
	for i := 0; i < 10; i++ {
		if err := l.Wait(context.Background(), source.Factsheet); err != nil {
			t.Fatalf("Wait() returned unexpected error: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Wait() with zero delay took %v", elapsed)
	}
}

func TestLimiter_Wait_SpacesConcurrentCallers(t *testing.T) {
	delay := 30 * time.Millisecond
	l := New(Delays{API: delay}, nil)

	var (
		mu    sync.Mutex
		times []time.Time
		wg    sync.WaitGroup
	)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Wait(context.Background(), source.CompanyHighlights); err != nil {
				t.Errorf("Wait() returned unexpected error: %v", err)
				return
			}
			mu.Lock()
			times = append(times, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(times) != 3 {
		t.Fatalf("got %d completions, want 3", len(times))
	}
	first, last := times[0], times[0]
	for _, ts := range times {
		if ts.Before(first) {
			first = ts
		}
		if ts.After(last) {
			last = ts
		}
	}
	// Three calls to one source need at least two gaps of one delay each
	if spread := last.Sub(first); spread < 2*delay-5*time.Millisecond {
		t.Errorf("calls spread over %v, want at least %v", spread, 2*delay)
	}
}

func TestLimiter_Wait_ContextCancellation(t *testing.T) {
	l := New(Delays{API: time.Second}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx, source.RightsBenefits); err == nil {
		t.Error("Wait() expected error for cancelled context, got nil")
	}
}

func TestThrottled(t *testing.T) {
	l := New(Delays{API: 20 * time.Millisecond}, nil)

	var calls int
	inner := fetcher.FetcherFunc(func(ctx context.Context, req fetcher.Request) fetcher.Outcome {
		calls++
		return fetcher.Success([]byte("ok"), fetcher.ContentJSON, 200, 1)
	})

	throttled := Throttled(l, inner)

	start := time.Now()
	out := throttled.Fetch(context.Background(), fetcher.Request{Source: source.RightsBenefits})
	if !out.Succeeded() {
		t.Fatalf("Fetch() failed: %v", out.Err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Fetch() did not pass through the limiter")
	}
	if calls != 1 {
		t.Errorf("inner fetcher called %d times, want 1", calls)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out = throttled.Fetch(ctx, fetcher.Request{Source: source.RightsBenefits})
	if out.Succeeded() {
		t.Fatal("Fetch() expected failure for cancelled context")
	}
	if out.Err.Type != fetcher.ErrorTypeCanceled {
		t.Errorf("Err.Type = %q, want %q", out.Err.Type, fetcher.ErrorTypeCanceled)
	}
	if calls != 1 {
		t.Errorf("inner fetcher called %d times after cancellation, want 1", calls)
	}
}
