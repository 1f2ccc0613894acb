package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bcdannyboy/optrisk/models"
)

func TestThrottledWaitsBeforeEveryCall(t *testing.T) {
	mock := NewMockProvider()
	th := NewThrottled(mock, time.Second)
	var waits []time.Duration
	th.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	ctx := context.Background()
	if _, err := th.GetQuote(ctx, "SPY"); err != nil {
		t.Fatal(err)
	}
	if _, err := th.GetOptionsChain(ctx, "SPY", 2); err != nil {
		t.Fatal(err)
	}
	if _, err := th.GetHistoricalPrices(ctx, "SPY", 30); err != nil {
		t.Fatal(err)
	}

	if len(waits) != 3 {
		t.Fatalf("waited %d times, want 3", len(waits))
	}
	for _, w := range waits {
		if w != time.Second {
			t.Errorf("waited %v, want 1s", w)
		}
	}
}

func TestThrottledWrapsFailures(t *testing.T) {
	mock := NewMockProvider()
	mock.Failing["NOPE"] = true
	th := NewThrottled(mock, 0)

	_, err := th.GetQuote(context.Background(), "NOPE")
	if !errors.Is(err, models.ErrUpstreamUnavailable) {
		t.Errorf("error = %v, want ErrUpstreamUnavailable", err)
	}
}

func TestThrottledHonoursCancellation(t *testing.T) {
	mock := NewMockProvider()
	th := NewThrottled(mock, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := th.GetOptionsChain(ctx, "SPY", 1)
	if !errors.Is(err, models.ErrUpstreamUnavailable) {
		t.Errorf("error = %v, want ErrUpstreamUnavailable", err)
	}
	if mock.Calls() != 0 {
		t.Errorf("provider called %d times after cancellation", mock.Calls())
	}
}

func TestMockChain(t *testing.T) {
	mock := NewMockProvider()
	mock.SetPrice("SPY", 400)
	mock.now = func() time.Time { return time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC) }

	m := NewManager(mock)
	chain, err := m.GetOptionsChain(context.Background(), "SPY", 3)
	if err != nil {
		t.Fatal(err)
	}
	dates := chain.ExpirationDates()
	if len(dates) != 3 || dates[0] != "2026-01-12" {
		t.Fatalf("expirations = %v", dates)
	}
	for _, c := range chain[dates[0]] {
		if !c.Valid() {
			t.Errorf("mock contract %s is not a valid quote", c.Symbol)
		}
	}
	if got := len(chain[dates[0]]); got != 18 {
		t.Errorf("got %d contracts per expiration, want 18", got)
	}

	history, err := m.GetHistoricalPrices(context.Background(), "SPY", 60)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 60 || !history[0].Date.Before(history[59].Date) {
		t.Errorf("history not 60 ascending bars")
	}
}
