package marketdata

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/bcdannyboy/optrisk/models"
)

// MockProvider serves deterministic synthetic data. Symbols listed in
// Failing return an error.
type MockProvider struct {
	mu        sync.Mutex
	basePrice map[string]float64
	now       func() time.Time
	calls     int

	Failing map[string]bool
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		basePrice: make(map[string]float64),
		now:       time.Now,
		Failing:   make(map[string]bool),
	}
}

// SetPrice fixes the spot price served for symbol.
func (m *MockProvider) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.basePrice[symbol] = price
}

// Calls reports how many requests the mock has served.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockProvider) price(symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.Failing[symbol] {
		return 0, fmt.Errorf("symbol %s not found", symbol)
	}
	p, ok := m.basePrice[symbol]
	if !ok {
		// stable pseudo-price derived from the symbol
		p = 50
		for _, r := range symbol {
			p += float64(r % 50)
		}
		m.basePrice[symbol] = p
	}
	return p, nil
}

func (m *MockProvider) GetQuote(ctx context.Context, symbol string) (models.Quote, error) {
	p, err := m.price(symbol)
	if err != nil {
		return models.Quote{}, err
	}
	return models.Quote{Symbol: symbol, Price: p, Volume: 1000000, MarketCap: p * 1e9, Beta: 1}, nil
}

// GetOptionsChain lists weekly expirations with strikes every 5% from 80%
// to 120% of spot, implied volatility smiling away from the money.
func (m *MockProvider) GetOptionsChain(ctx context.Context, symbol string, maxExpirations int) (models.Chain, error) {
	spot, err := m.price(symbol)
	if err != nil {
		return nil, err
	}
	if maxExpirations <= 0 {
		maxExpirations = 4
	}
	today := m.now().Truncate(24 * time.Hour)
	chain := make(models.Chain, maxExpirations)
	for e := 1; e <= maxExpirations; e++ {
		exp := today.AddDate(0, 0, 7*e)
		days := 7 * e
		key := exp.Format(models.DateLayout)
		for i := -4; i <= 4; i++ {
			strike := math.Round(spot*(1+0.05*float64(i))*100) / 100
			iv := 0.25 + 0.02*math.Abs(float64(i))
			for _, t := range []models.OptionType{models.Call, models.Put} {
				mid := syntheticPremium(spot, strike, days, iv, t)
				chain[key] = append(chain[key], models.OptionContract{
					Symbol:            optionSymbol(symbol, exp, t, strike),
					Underlying:        symbol,
					Strike:            strike,
					Expiration:        exp,
					DaysToExpiry:      days,
					Type:              t,
					Bid:               math.Max(mid-0.05, 0),
					Ask:               mid + 0.05,
					Last:              mid,
					Volume:            int64(1000 / (1 + abs(i))),
					OpenInterest:      int64(5000 / (1 + abs(i))),
					ImpliedVolatility: iv,
				})
			}
		}
	}
	return chain, nil
}

// syntheticPremium is intrinsic value plus a time-value bump; good enough for
// demo data and independent of the pricing package.
func syntheticPremium(spot, strike float64, days int, iv float64, t models.OptionType) float64 {
	intrinsic := math.Max(spot-strike, 0)
	if t == models.Put {
		intrinsic = math.Max(strike-spot, 0)
	}
	timeValue := 0.4 * spot * iv * math.Sqrt(float64(days)/365) * math.Exp(-math.Abs(spot-strike)/(spot*iv))
	return math.Round((intrinsic+timeValue)*100) / 100
}

// optionSymbol builds an OCC-style contract symbol.
func optionSymbol(underlying string, exp time.Time, t models.OptionType, strike float64) string {
	cp := "C"
	if t == models.Put {
		cp = "P"
	}
	return fmt.Sprintf("%s%s%s%08.0f", underlying, exp.Format("060102"), cp, strike*1000)
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

// GetHistoricalPrices returns one bar per calendar day oscillating around
// the current price.
func (m *MockProvider) GetHistoricalPrices(ctx context.Context, symbol string, lookbackDays int) ([]models.PricePoint, error) {
	spot, err := m.price(symbol)
	if err != nil {
		return nil, err
	}
	today := m.now().Truncate(24 * time.Hour)
	history := make([]models.PricePoint, 0, lookbackDays)
	for d := lookbackDays; d > 0; d-- {
		c := spot * (1 + 0.03*math.Sin(float64(d)/5))
		history = append(history, models.PricePoint{
			Date:   today.AddDate(0, 0, -d),
			Open:   c * 0.998,
			High:   c * 1.01,
			Low:    c * 0.99,
			Close:  c,
			Volume: 1000000,
		})
	}
	return history, nil
}

func (m *MockProvider) Name() string {
	return "mock"
}
