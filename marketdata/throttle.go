package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bcdannyboy/optrisk/models"
)

// Throttled waits a fixed delay before every upstream call and wraps any
// failure in models.ErrUpstreamUnavailable. Calls are serialised so the
// delay holds between consecutive requests. It does not retry.
type Throttled struct {
	provider Provider
	delay    time.Duration

	mu    sync.Mutex
	sleep func(ctx context.Context, d time.Duration) error
}

func NewThrottled(provider Provider, delay time.Duration) *Throttled {
	return &Throttled{provider: provider, delay: delay, sleep: sleepContext}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (t *Throttled) wait(ctx context.Context, op, symbol string) error {
	if err := t.sleep(ctx, t.delay); err != nil {
		return fmt.Errorf("%s %s %s: %v: %w", t.provider.Name(), op, symbol, err, models.ErrUpstreamUnavailable)
	}
	return nil
}

func (t *Throttled) wrap(op, symbol string, err error) error {
	return fmt.Errorf("%s %s %s: %v: %w", t.provider.Name(), op, symbol, err, models.ErrUpstreamUnavailable)
}

func (t *Throttled) GetQuote(ctx context.Context, symbol string) (models.Quote, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.wait(ctx, "quote", symbol); err != nil {
		return models.Quote{}, err
	}
	q, err := t.provider.GetQuote(ctx, symbol)
	if err != nil {
		return models.Quote{}, t.wrap("quote", symbol, err)
	}
	return q, nil
}

func (t *Throttled) GetOptionsChain(ctx context.Context, symbol string, maxExpirations int) (models.Chain, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.wait(ctx, "options chain", symbol); err != nil {
		return nil, err
	}
	chain, err := t.provider.GetOptionsChain(ctx, symbol, maxExpirations)
	if err != nil {
		return nil, t.wrap("options chain", symbol, err)
	}
	return chain, nil
}

func (t *Throttled) GetHistoricalPrices(ctx context.Context, symbol string, lookbackDays int) ([]models.PricePoint, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.wait(ctx, "history", symbol); err != nil {
		return nil, err
	}
	history, err := t.provider.GetHistoricalPrices(ctx, symbol, lookbackDays)
	if err != nil {
		return nil, t.wrap("history", symbol, err)
	}
	return history, nil
}

func (t *Throttled) Name() string {
	return t.provider.Name()
}
