// Package store keeps fetched market data in memory and refreshes it for a
// watchlist of symbols.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bcdannyboy/optrisk/models"
)

// DefaultUpdateFrequency is the refresh interval for new watchlist entries.
const DefaultUpdateFrequency = 24 * time.Hour

// VolatilityRecord is one day of volatility history for a symbol.
// Range estimators and the GARCH forecast are zero when the history lacks
// the bars they need.
type VolatilityRecord struct {
	Date                 time.Time `json:"date"`
	HistoricalVolatility float64   `json:"historical_volatility"`
	IVRank               float64   `json:"implied_volatility_rank"`
	Parkinson            float64   `json:"parkinson,omitempty"`
	GarmanKlass          float64   `json:"garman_klass,omitempty"`
	RogersSatchell       float64   `json:"rogers_satchell,omitempty"`
	YangZhang            float64   `json:"yang_zhang,omitempty"`
	GARCH                float64   `json:"garch,omitempty"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// WatchlistEntry tracks when a symbol was last refreshed.
type WatchlistEntry struct {
	Symbol          string        `json:"symbol"`
	LastUpdated     time.Time     `json:"last_updated"`
	UpdateFrequency time.Duration `json:"update_frequency"`
}

// Snapshot is the data held for one symbol.
type Snapshot struct {
	Symbol     string                  `json:"symbol"`
	Prices     []models.PricePoint     `json:"prices"`
	Volatility []VolatilityRecord      `json:"volatility"`
	Options    []models.OptionContract `json:"options"`
}

type optionKey struct {
	expiration string
	strike     float64
	optionType models.OptionType
}

// Memory is an in-memory store keyed the way the data is queried: prices
// and volatility by (symbol, date), option quotes by (symbol, expiration,
// strike, type).
type Memory struct {
	mu         sync.RWMutex
	prices     map[string]map[string]models.PricePoint
	volatility map[string]map[string]VolatilityRecord
	options    map[string]map[optionKey]models.OptionContract
	optionsAt  map[string]time.Time
	watchlist  map[string]*WatchlistEntry
	now        func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		prices:     make(map[string]map[string]models.PricePoint),
		volatility: make(map[string]map[string]VolatilityRecord),
		options:    make(map[string]map[optionKey]models.OptionContract),
		optionsAt:  make(map[string]time.Time),
		watchlist:  make(map[string]*WatchlistEntry),
		now:        time.Now,
	}
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// SavePrices upserts daily bars for symbol.
func (m *Memory) SavePrices(symbol string, history []models.PricePoint) {
	symbol = normalize(symbol)
	m.mu.Lock()
	defer m.mu.Unlock()

	byDate, ok := m.prices[symbol]
	if !ok {
		byDate = make(map[string]models.PricePoint)
		m.prices[symbol] = byDate
	}
	for _, p := range history {
		byDate[p.Date.Format(models.DateLayout)] = p
	}
}

// SaveVolatility upserts the volatility record for its date.
func (m *Memory) SaveVolatility(symbol string, rec VolatilityRecord) {
	symbol = normalize(symbol)
	m.mu.Lock()
	defer m.mu.Unlock()

	byDate, ok := m.volatility[symbol]
	if !ok {
		byDate = make(map[string]VolatilityRecord)
		m.volatility[symbol] = byDate
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = m.now()
	}
	byDate[rec.Date.Format(models.DateLayout)] = rec
}

// SaveOptions upserts every contract of the chain.
func (m *Memory) SaveOptions(symbol string, chain models.Chain) {
	symbol = normalize(symbol)
	m.mu.Lock()
	defer m.mu.Unlock()

	byKey, ok := m.options[symbol]
	if !ok {
		byKey = make(map[optionKey]models.OptionContract)
		m.options[symbol] = byKey
	}
	for exp, contracts := range chain {
		for _, c := range contracts {
			byKey[optionKey{expiration: exp, strike: c.Strike, optionType: c.Type}] = c
		}
	}
	m.optionsAt[symbol] = m.now()
}

// Prices returns the bars dated on or after since, oldest first.
func (m *Memory) Prices(symbol string, since time.Time) []models.PricePoint {
	symbol = normalize(symbol)
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.PricePoint
	for _, p := range m.prices[symbol] {
		if !p.Date.Before(since) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Volatility returns the records dated on or after since, oldest first.
func (m *Memory) Volatility(symbol string, since time.Time) []VolatilityRecord {
	symbol = normalize(symbol)
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []VolatilityRecord
	for _, v := range m.volatility[symbol] {
		if !v.Date.Before(since) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Chain rebuilds the stored option quotes of symbol as a chain.
func (m *Memory) Chain(symbol string) models.Chain {
	symbol = normalize(symbol)
	m.mu.RLock()
	defer m.mu.RUnlock()

	chain := make(models.Chain)
	for k, c := range m.options[symbol] {
		chain[k.expiration] = append(chain[k.expiration], c)
	}
	for exp := range chain {
		contracts := chain[exp]
		sort.Slice(contracts, func(i, j int) bool {
			if contracts[i].Strike != contracts[j].Strike {
				return contracts[i].Strike < contracts[j].Strike
			}
			return contracts[i].Type < contracts[j].Type
		})
	}
	return chain
}

// Snapshot returns everything stored for symbol within lookback of now.
// Option quotes are included only when they were refreshed in that window.
func (m *Memory) Snapshot(symbol string, lookback time.Duration) Snapshot {
	since := m.now().Add(-lookback)
	snap := Snapshot{
		Symbol:     normalize(symbol),
		Prices:     m.Prices(symbol, since),
		Volatility: m.Volatility(symbol, since),
	}

	m.mu.RLock()
	fresh := !m.optionsAt[snap.Symbol].Before(since)
	m.mu.RUnlock()
	if !fresh {
		return snap
	}
	chain := m.Chain(symbol)
	for _, exp := range chain.ExpirationDates() {
		snap.Options = append(snap.Options, chain[exp]...)
	}
	return snap
}

// AddToWatchlist adds or replaces symbol with the given refresh interval,
// marking it as updated now. frequency <= 0 uses DefaultUpdateFrequency.
func (m *Memory) AddToWatchlist(symbol string, frequency time.Duration) {
	if frequency <= 0 {
		frequency = DefaultUpdateFrequency
	}
	symbol = normalize(symbol)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchlist[symbol] = &WatchlistEntry{Symbol: symbol, LastUpdated: m.now(), UpdateFrequency: frequency}
}

// Watchlist returns the entries sorted by symbol.
func (m *Memory) Watchlist() []WatchlistEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]WatchlistEntry, 0, len(m.watchlist))
	for _, e := range m.watchlist {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// ShouldUpdate reports whether symbol is unknown or its refresh interval
// has elapsed at now.
func (m *Memory) ShouldUpdate(symbol string, now time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.watchlist[normalize(symbol)]
	if !ok {
		return true
	}
	return now.Sub(e.LastUpdated) > e.UpdateFrequency
}

// MarkUpdated records a successful refresh of symbol at t, adding it to the
// watchlist if needed.
func (m *Memory) MarkUpdated(symbol string, t time.Time) {
	symbol = normalize(symbol)
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.watchlist[symbol]
	if !ok {
		e = &WatchlistEntry{Symbol: symbol, UpdateFrequency: DefaultUpdateFrequency}
		m.watchlist[symbol] = e
	}
	e.LastUpdated = t
}
