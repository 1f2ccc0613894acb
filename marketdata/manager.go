package marketdata

import (
	"context"
	"time"

	"github.com/bcdannyboy/optrisk/logger"
	"github.com/bcdannyboy/optrisk/models"
)

// slowRequest is the duration above which a call is logged as slow.
const slowRequest = 5 * time.Second

// Manager wraps a provider with request logging.
type Manager struct {
	provider Provider
}

func NewManager(provider Provider) *Manager {
	return &Manager{provider: provider}
}

func (m *Manager) observe(op, symbol string, start time.Time, err error) {
	elapsed := time.Since(start)
	if err != nil {
		logger.Warn.Printf("%s %s %s failed after %v: %v", m.provider.Name(), op, symbol, elapsed, err)
		return
	}
	if elapsed > slowRequest {
		logger.Warn.Printf("SLOW REQUEST: %s %s %s took %v", m.provider.Name(), op, symbol, elapsed)
		return
	}
	logger.Debug.Printf("%s %s %s took %v", m.provider.Name(), op, symbol, elapsed)
}

func (m *Manager) GetQuote(ctx context.Context, symbol string) (models.Quote, error) {
	start := time.Now()
	q, err := m.provider.GetQuote(ctx, symbol)
	m.observe("quote", symbol, start, err)
	return q, err
}

func (m *Manager) GetOptionsChain(ctx context.Context, symbol string, maxExpirations int) (models.Chain, error) {
	start := time.Now()
	chain, err := m.provider.GetOptionsChain(ctx, symbol, maxExpirations)
	m.observe("options chain", symbol, start, err)
	if err == nil {
		logger.Verbose.Printf("%s options chain %s: %d contracts across %d expirations", m.provider.Name(), symbol, chain.Len(), len(chain))
	}
	return chain, err
}

func (m *Manager) GetHistoricalPrices(ctx context.Context, symbol string, lookbackDays int) ([]models.PricePoint, error) {
	start := time.Now()
	history, err := m.provider.GetHistoricalPrices(ctx, symbol, lookbackDays)
	m.observe("history", symbol, start, err)
	return history, err
}

func (m *Manager) Name() string {
	return m.provider.Name()
}

// Provider returns the underlying provider
func (m *Manager) Provider() Provider {
	return m.provider
}
