package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bcdannyboy/optrisk/logger"
	"github.com/bcdannyboy/optrisk/models"
	"github.com/bcdannyboy/optrisk/pricing"
	"github.com/bcdannyboy/optrisk/probability"
	"github.com/bcdannyboy/optrisk/risk"
	"github.com/bcdannyboy/optrisk/scenario"
	"github.com/bcdannyboy/optrisk/screener"
	"github.com/gorilla/mux"
)

const (
	defaultExpiryCount = 3
	hvWindow           = 30
)

type marketSnapshot struct {
	ticker string
	price  float64
	chain  models.Chain
	hv30   float64
}

func normalizeTicker(ticker string) (string, error) {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if t == "" {
		return "", fmt.Errorf("ticker is required: %w", models.ErrInvalidParameter)
	}
	return t, nil
}

// fetch loads the quote and chain of ticker and, when withHV is set, the
// 30-day realised volatility. A missing history only zeroes the volatility.
func (s *Server) fetch(ctx context.Context, ticker string, maxExpirations int, withHV bool) (marketSnapshot, error) {
	ticker, err := normalizeTicker(ticker)
	if err != nil {
		return marketSnapshot{}, err
	}
	quote, err := s.provider.GetQuote(ctx, ticker)
	if err != nil {
		return marketSnapshot{}, err
	}
	chain, err := s.provider.GetOptionsChain(ctx, ticker, maxExpirations)
	if err != nil {
		return marketSnapshot{}, err
	}
	if chain.Len() == 0 {
		return marketSnapshot{}, fmt.Errorf("no options data found for %s: %w", ticker, models.ErrInsufficientData)
	}
	snap := marketSnapshot{ticker: ticker, price: quote.Price, chain: chain}
	if !withHV {
		return snap, nil
	}

	history, err := s.provider.GetHistoricalPrices(ctx, ticker, s.lookbackDays)
	if err != nil {
		logger.Warn.Printf("%s: no price history, HV30 unavailable: %v", ticker, err)
		return snap, nil
	}
	if s.store != nil {
		s.store.SavePrices(ticker, history)
	}
	if hv, err := probability.HistoricalVolatility(models.Closes(history), hvWindow); err == nil {
		snap.hv30 = hv
	} else {
		logger.Debug.Printf("%s: HV30 unavailable: %v", ticker, err)
	}
	return snap, nil
}

type analyzeRequest struct {
	Ticker         string  `json:"ticker"`
	MinChange      float64 `json:"min_change"`
	MaxChange      float64 `json:"max_change"`
	StepSize       float64 `json:"step_size"`
	MaxExpiryCount int     `json:"max_expiry_count"`
}

type analyzeResponse struct {
	Ticker       string                  `json:"ticker"`
	CurrentPrice float64                 `json:"current_price"`
	RiskFreeRate float64                 `json:"risk_free_rate"`
	Results      []models.ScenarioResult `json:"results"`
}

// AnalyzeHandler runs a scenario sweep over the ticker's chain.
func (s *Server) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	req := analyzeRequest{MaxExpiryCount: defaultExpiryCount}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, err := scenario.Grid(req.MinChange, req.MaxChange, req.StepSize); err != nil {
		writeError(w, err)
		return
	}

	snap, err := s.fetch(r.Context(), req.Ticker, req.MaxExpiryCount, false)
	if err != nil {
		writeError(w, err)
		return
	}
	rate := s.rates.RiskFreeRateWithLastKnown(r.Context())
	results, err := scenario.Sweep(snap.price, snap.chain, req.MinChange, req.MaxChange, req.StepSize, rate)
	if err != nil {
		writeError(w, err)
		return
	}
	logger.Info.Printf("Analysis complete for %s: %d scenarios", snap.ticker, len(results))
	writeJSON(w, http.StatusOK, analyzeResponse{
		Ticker:       snap.ticker,
		CurrentPrice: snap.price,
		RiskFreeRate: rate,
		Results:      results,
	})
}

type optionsResponse struct {
	Ticker       string                `json:"ticker"`
	StockPrice   float64               `json:"stock_price"`
	HV30         float64               `json:"hv30"`
	Summary      screener.ChainSummary `json:"summary"`
	OptionsChain models.Chain          `json:"options_chain"`
}

// OptionsHandler returns the ticker's chain with a summary, storing the
// quotes when a store is configured.
func (s *Server) OptionsHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := s.fetch(r.Context(), mux.Vars(r)["ticker"], s.maxExpirations, true)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.store != nil {
		s.store.SaveOptions(snap.ticker, snap.chain)
	}
	writeJSON(w, http.StatusOK, optionsResponse{
		Ticker:       snap.ticker,
		StockPrice:   snap.price,
		HV30:         snap.hv30,
		Summary:      screener.Summarize(snap.chain, snap.price),
		OptionsChain: snap.chain,
	})
}

type screenRequest struct {
	Ticker  string                    `json:"ticker"`
	Filters screener.FilterParameters `json:"filters"`
}

type screenResponse struct {
	Ticker   string         `json:"ticker"`
	Template string         `json:"template,omitempty"`
	Count    int            `json:"count"`
	Rows     []screener.Row `json:"rows"`
}

func (s *Server) rows(ctx context.Context, ticker string) ([]screener.Row, marketSnapshot, float64, error) {
	snap, err := s.fetch(ctx, ticker, s.maxExpirations, true)
	if err != nil {
		return nil, marketSnapshot{}, 0, err
	}
	rate := s.rates.RiskFreeRateWithLastKnown(ctx)
	rows, err := screener.Enrich(snap.chain, snap.price, snap.hv30, rate, s.now())
	return rows, snap, rate, err
}

// ScreenHandler filters the ticker's chain with ad hoc parameters. Omitted
// parameters do not filter.
func (s *Server) ScreenHandler(w http.ResponseWriter, r *http.Request) {
	req := screenRequest{Filters: screener.DefaultFilterParameters()}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := req.Filters.Validate(); err != nil {
		writeError(w, err)
		return
	}
	rows, snap, _, err := s.rows(r.Context(), req.Ticker)
	if err != nil {
		writeError(w, err)
		return
	}
	filtered := screener.ApplyAll(req.Filters, rows, s.now())
	writeJSON(w, http.StatusOK, screenResponse{Ticker: snap.ticker, Count: len(filtered), Rows: filtered})
}

// TemplatesHandler lists the available strategy templates.
func (s *Server) TemplatesHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	writeJSON(w, http.StatusOK, s.templates)
}

type applyRequest struct {
	Ticker string `json:"ticker"`
}

// ApplyTemplateHandler screens the ticker's chain with a named template.
func (s *Server) ApplyTemplateHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var req applyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.mu.RLock()
	_, ok := s.templates[name]
	s.mu.RUnlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("template %q not found", name), RequestID: w.Header().Get(requestIDHeader)})
		return
	}

	rows, snap, rate, err := s.rows(r.Context(), req.Ticker)
	if err != nil {
		writeError(w, err)
		return
	}
	s.mu.RLock()
	filtered, err := s.templates.Apply(name, rows, s.now(), rate)
	s.mu.RUnlock()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, screenResponse{Ticker: snap.ticker, Template: name, Count: len(filtered), Rows: filtered})
}

type saveTemplateRequest struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description"`
	Filters     screener.FilterParameters `json:"filters"`
	RiskMetrics []string                  `json:"risk_metrics"`
}

// SaveTemplateHandler adds or replaces a custom template for the lifetime of
// the server.
func (s *Server) SaveTemplateHandler(w http.ResponseWriter, r *http.Request) {
	req := saveTemplateRequest{Filters: screener.DefaultFilterParameters()}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, fmt.Errorf("template name is required: %w", models.ErrInvalidParameter))
		return
	}
	t := screener.Template{Name: name, Description: req.Description, Filters: req.Filters, RiskMetrics: req.RiskMetrics}
	if err := t.Validate(); err != nil {
		writeError(w, err)
		return
	}

	s.mu.Lock()
	s.templates[name] = t
	s.mu.Unlock()
	logger.Info.Printf("saved template %q", name)
	writeJSON(w, http.StatusCreated, t)
}

// MarketDataHandler returns what the store holds for symbol within the
// history lookback.
func (s *Server) MarketDataHandler(w http.ResponseWriter, r *http.Request) {
	symbol, err := normalizeTicker(mux.Vars(r)["symbol"])
	if err != nil {
		writeError(w, err)
		return
	}
	if s.store == nil {
		writeError(w, fmt.Errorf("no data store configured: %w", models.ErrInsufficientData))
		return
	}
	snap := s.store.Snapshot(symbol, time.Duration(s.lookbackDays)*24*time.Hour)
	if len(snap.Prices) == 0 && len(snap.Options) == 0 && len(snap.Volatility) == 0 {
		writeError(w, fmt.Errorf("no stored data for %s: %w", symbol, models.ErrInsufficientData))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type priceRequest struct {
	UnderlyingPrice float64           `json:"underlying_price"`
	Strike          float64           `json:"strike"`
	DaysToExpiry    float64           `json:"days_to_expiry"`
	Volatility      float64           `json:"volatility"`
	OptionType      models.OptionType `json:"option_type"`
	RiskFreeRate    *float64          `json:"risk_free_rate"`
	MarketPrice     float64           `json:"market_price"`
}

type priceResponse struct {
	Price             float64       `json:"price"`
	Greeks            models.Greeks `json:"greeks"`
	RiskFreeRate      float64       `json:"risk_free_rate"`
	ImpliedVolatility float64       `json:"implied_volatility,omitempty"`
}

// PriceHandler prices one contract and, given a market price, solves for
// its implied volatility.
func (s *Server) PriceHandler(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	rate := s.rates.RiskFreeRateWithLastKnown(r.Context())
	if req.RiskFreeRate != nil {
		rate = *req.RiskFreeRate
	}
	T := req.DaysToExpiry / pricing.DaysPerYear

	price, err := pricing.Price(req.UnderlyingPrice, req.Strike, T, rate, req.Volatility, req.OptionType)
	if err != nil {
		writeError(w, err)
		return
	}
	greeks, err := pricing.Greeks(req.UnderlyingPrice, req.Strike, T, rate, req.Volatility, req.OptionType)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := priceResponse{Price: price, Greeks: greeks, RiskFreeRate: rate}
	if req.MarketPrice > 0 {
		iv, err := pricing.ImpliedVolatility(req.MarketPrice, req.UnderlyingPrice, req.Strike, T, rate, req.OptionType)
		if err != nil {
			writeError(w, err)
			return
		}
		resp.ImpliedVolatility = iv
	}
	writeJSON(w, http.StatusOK, resp)
}

type riskRequest struct {
	Strategy        string            `json:"strategy"`
	Positions       []models.Position `json:"positions"`
	UnderlyingPrice float64           `json:"underlying_price"`
	DaysToExpiry    float64           `json:"days_to_expiry"`
	Volatility      float64           `json:"volatility"`
}

// RiskHandler computes per-unit metrics for one strategy structure.
func (s *Server) RiskHandler(w http.ResponseWriter, r *http.Request) {
	var req riskRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	kind, err := risk.ParseKind(req.Strategy)
	if err != nil {
		writeError(w, err)
		return
	}
	calc := risk.NewCalculator(s.rates.RiskFreeRateWithLastKnown(r.Context()))
	m, err := calc.MetricsForStrategy(kind, req.Positions, req.UnderlyingPrice, req.DaysToExpiry, req.Volatility)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type portfolioRequest struct {
	risk.PortfolioInput
	// Ticker fetches the price history when none is supplied.
	Ticker string `json:"ticker"`
}

// PortfolioHandler computes VaR, Kelly sizing, exposures and exits for a
// position set. Account size and risk fraction default to the configured
// values.
func (s *Server) PortfolioHandler(w http.ResponseWriter, r *http.Request) {
	var req portfolioRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	in := req.PortfolioInput
	if in.AccountSize == 0 {
		in.AccountSize = s.accountSize
	}
	if in.RiskFraction == 0 {
		in.RiskFraction = s.riskFraction
	}
	if len(in.History) == 0 && req.Ticker != "" {
		ticker, err := normalizeTicker(req.Ticker)
		if err != nil {
			writeError(w, err)
			return
		}
		history, err := s.provider.GetHistoricalPrices(r.Context(), ticker, s.lookbackDays)
		if err != nil {
			writeError(w, err)
			return
		}
		in.History = history
	}

	calc := risk.NewCalculator(s.rates.RiskFreeRateWithLastKnown(r.Context()))
	out, err := calc.Portfolio(in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
