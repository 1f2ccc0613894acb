package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/bcdannyboy/optrisk/models"
	"github.com/bcdannyboy/optrisk/pricing"
	"github.com/bcdannyboy/optrisk/probability"
)

const (
	// ConservativeKelly scales the raw Kelly fraction before sizing.
	ConservativeKelly = 0.5
	// DefaultRiskFraction is the share of the account put at risk per trade.
	DefaultRiskFraction = 0.01
	// ContractSize is the number of shares one option contract covers.
	// Premiums, values and VaR are per share; sizing is per contract.
	ContractSize = 100

	profitTargetFraction = 0.75
	volExitUp            = 1.2
	volExitDown          = 0.8
)

type Sizing struct {
	RiskBasedContracts  int     `json:"risk_based_contracts"`
	KellyBasedContracts int     `json:"kelly_based_contracts"`
	FinalContracts      int     `json:"final_contracts"`
	Multiplier          float64 `json:"multiplier"`
	RiskPerContract     float64 `json:"risk_per_contract"`
	MaxCapitalUsage     float64 `json:"max_capital_usage"`
}

type ExitPoints struct {
	ProfitTarget   float64 `json:"profit_target"`
	StopLoss       float64 `json:"stop_loss"`
	TimeExitDays   int     `json:"time_exit_days"`
	VolatilityHigh float64 `json:"volatility_exit_high"`
	VolatilityLow  float64 `json:"volatility_exit_low"`
}

type PortfolioInput struct {
	Strategy        Kind                `json:"strategy"`
	Positions       []models.Position   `json:"positions"`
	UnderlyingPrice float64             `json:"underlying_price"`
	Volatility      float64             `json:"volatility"`
	History         []models.PricePoint `json:"history"`
	AccountSize     float64             `json:"account_size"`
	RiskFraction    float64             `json:"risk_fraction"`
	// Simulations is the Monte Carlo path count; 0 uses the default.
	Simulations int    `json:"simulations,omitempty"`
	Seed        uint64 `json:"seed,omitempty"`
}

type PortfolioMetrics struct {
	ValueAtRisk95      float64    `json:"var_95"`
	ValueAtRisk99      float64    `json:"var_99"`
	ExpectedShortfall  float64    `json:"expected_shortfall_95"`
	Kelly              float64    `json:"kelly"`
	RiskAdjustedReturn float64    `json:"risk_adjusted_return"`
	GammaExposure      float64    `json:"gamma_exposure"`
	VannaExposure      float64    `json:"vanna_exposure"`
	CharmExposure      float64    `json:"charm_exposure"`
	SimulatedPoP       float64    `json:"simulated_probability_of_profit"`
	Sizing             *Sizing    `json:"sizing,omitempty"`
	Exits              ExitPoints `json:"exits"`
}

// Revalue prices the position set at a hypothetical spot, holding volatility
// and each leg's time to expiry fixed.
func (c *Calculator) Revalue(positions []models.Position, spot, sigma float64) (float64, error) {
	var value float64
	for _, p := range positions {
		px, err := pricing.Price(spot, p.Contract.Strike, p.Contract.Years(), c.RiskFreeRate, sigma, p.Contract.Type)
		if err != nil {
			return 0, err
		}
		value += p.Quantity * px
	}
	return value, nil
}

// Horizon is the time to the nearest leg expiry in years.
func Horizon(positions []models.Position) float64 {
	h := math.Inf(1)
	for _, p := range positions {
		h = math.Min(h, p.Contract.Years())
	}
	if math.IsInf(h, 1) {
		return 0
	}
	return h
}

// PnLAt values the positions at horizon years from now with the underlying
// at terminal, net of entry cost. Legs expiring by then pay intrinsic value.
func (c *Calculator) PnLAt(positions []models.Position, terminal, horizon, sigma float64) (float64, error) {
	value := 0.0
	for _, p := range positions {
		remaining := p.Contract.Years() - horizon
		if remaining <= 0 {
			value += p.Quantity * intrinsic(p.Contract, terminal)
			continue
		}
		px, err := pricing.Price(terminal, p.Contract.Strike, remaining, c.RiskFreeRate, sigma, p.Contract.Type)
		if err != nil {
			return 0, err
		}
		value += p.Quantity * px
	}
	return value - entryCost(positions), nil
}

func intrinsic(c models.OptionContract, spot float64) float64 {
	if c.Type == models.Call {
		return math.Max(spot-c.Strike, 0)
	}
	return math.Max(c.Strike-spot, 0)
}

// SimulatedProbabilityOfProfit estimates the chance the positions show a
// profit at the nearest expiry by Monte Carlo under the risk-neutral drift.
func (c *Calculator) SimulatedProbabilityOfProfit(positions []models.Position, S, sigma float64, paths int, seed uint64) (float64, error) {
	horizon := Horizon(positions)
	sim := probability.Simulation{Spot: S, Rate: c.RiskFreeRate, Sigma: sigma, Years: horizon, Paths: paths, Seed: seed}
	return sim.ProbabilityOfProfit(func(terminal float64) float64 {
		pnl, err := c.PnLAt(positions, terminal, horizon, sigma)
		if err != nil {
			return math.Inf(-1)
		}
		return pnl
	})
}

func entryCost(positions []models.Position) float64 {
	var cost float64
	for _, p := range positions {
		cost += p.Quantity * p.EntryPremium
	}
	return cost
}

// HistoricalPnL revalues the positions at every historical close.
func (c *Calculator) HistoricalPnL(positions []models.Position, history []models.PricePoint, sigma float64) (values, pnl []float64, err error) {
	if len(history) < 2 {
		return nil, nil, fmt.Errorf("%d historical closes, need at least 2: %w", len(history), models.ErrInsufficientData)
	}
	cost := entryCost(positions)
	values = make([]float64, 0, len(history))
	pnl = make([]float64, 0, len(history))
	for _, bar := range history {
		if bar.Close <= 0 {
			continue
		}
		v, err := c.Revalue(positions, bar.Close, sigma)
		if err != nil {
			return nil, nil, err
		}
		values = append(values, v)
		pnl = append(pnl, v-cost)
	}
	if len(pnl) < 2 {
		return nil, nil, fmt.Errorf("%d usable closes, need at least 2: %w", len(pnl), models.ErrInsufficientData)
	}
	return values, pnl, nil
}

// Exposures sums quantity-weighted gamma, vanna and charm at the current spot.
func (c *Calculator) Exposures(positions []models.Position, S, sigma float64) (gamma, vanna, charm float64, err error) {
	for _, p := range positions {
		g, err := pricing.Greeks(S, p.Contract.Strike, p.Contract.Years(), c.RiskFreeRate, sigma, p.Contract.Type)
		if err != nil {
			return 0, 0, 0, err
		}
		gamma += p.Quantity * g.Gamma
		vanna += p.Quantity * g.Vanna
		charm += p.Quantity * g.Charm
	}
	return gamma, vanna, charm, nil
}

func (c *Calculator) Portfolio(in PortfolioInput) (PortfolioMetrics, error) {
	if _, ok := variants[in.Strategy]; !ok {
		return PortfolioMetrics{}, fmt.Errorf("%q: %w", in.Strategy, ErrUnsupportedStrategy)
	}
	if len(in.Positions) == 0 {
		return PortfolioMetrics{}, fmt.Errorf("no positions: %w", models.ErrInvalidParameter)
	}
	if math.IsNaN(in.Volatility) || in.Volatility <= 0 {
		return PortfolioMetrics{}, fmt.Errorf("volatility %v: %w", in.Volatility, models.ErrInvalidParameter)
	}
	if math.IsNaN(in.UnderlyingPrice) || in.UnderlyingPrice <= 0 {
		return PortfolioMetrics{}, fmt.Errorf("underlying price %v: %w", in.UnderlyingPrice, models.ErrInvalidParameter)
	}

	values, pnl, err := c.HistoricalPnL(in.Positions, in.History, in.Volatility)
	if err != nil {
		return PortfolioMetrics{}, err
	}

	var out PortfolioMetrics
	if out.ValueAtRisk95, err = probability.ValueAtRisk(pnl, 0.95); err != nil {
		return PortfolioMetrics{}, err
	}
	if out.ValueAtRisk99, err = probability.ValueAtRisk(pnl, 0.99); err != nil {
		return PortfolioMetrics{}, err
	}
	if out.ExpectedShortfall, err = probability.ExpectedShortfall(pnl, 0.95); err != nil {
		return PortfolioMetrics{}, err
	}

	returns, err := probability.Returns(values)
	if err != nil {
		return PortfolioMetrics{}, err
	}
	out.Kelly = probability.KellyCriterion(returns)
	out.RiskAdjustedReturn = probability.RiskAdjustedReturn(returns)

	if out.GammaExposure, out.VannaExposure, out.CharmExposure, err = c.Exposures(in.Positions, in.UnderlyingPrice, in.Volatility); err != nil {
		return PortfolioMetrics{}, err
	}

	if out.SimulatedPoP, err = c.SimulatedProbabilityOfProfit(in.Positions, in.UnderlyingPrice, in.Volatility, in.Simulations, in.Seed); err != nil {
		return PortfolioMetrics{}, err
	}

	fraction := in.RiskFraction
	if fraction <= 0 {
		fraction = DefaultRiskFraction
	}
	if in.AccountSize > 0 {
		sizing, err := PositionSize(in.Strategy, out.ValueAtRisk95*ContractSize, out.Kelly, in.AccountSize, fraction, in.UnderlyingPrice)
		switch {
		case err == nil:
			out.Sizing = &sizing
		case !errors.Is(err, models.ErrInsufficientData):
			return PortfolioMetrics{}, err
		}
	}

	if out.Exits, err = c.OptimalExits(in.Positions, in.UnderlyingPrice, in.Volatility, out.ValueAtRisk99); err != nil {
		return PortfolioMetrics{}, err
	}
	return out, nil
}

// PositionSize combines VaR-based and Kelly-based sizing and applies the
// strategy's multiplier. varPerContract is in dollars per contract. A zero
// VaR leaves the risk-based size undefined. MaxCapitalUsage is the notional
// of the final size.
func PositionSize(kind Kind, varPerContract, kelly, accountSize, riskFraction, underlying float64) (Sizing, error) {
	v, ok := variants[kind]
	if !ok {
		return Sizing{}, fmt.Errorf("%q: %w", kind, ErrUnsupportedStrategy)
	}
	if accountSize <= 0 || riskFraction <= 0 || riskFraction > 1 {
		return Sizing{}, fmt.Errorf("account %v risk fraction %v: %w", accountSize, riskFraction, models.ErrInvalidParameter)
	}
	risk := math.Abs(varPerContract)
	if risk == 0 || math.IsNaN(risk) {
		return Sizing{}, fmt.Errorf("zero VaR per contract: %w", models.ErrInsufficientData)
	}

	riskBased := accountSize * riskFraction / risk
	kellyBased := math.Max(riskBased*kelly*ConservativeKelly, 0)
	final := math.Floor(math.Min(riskBased, kellyBased) * v.multiplier())

	return Sizing{
		RiskBasedContracts:  int(math.Floor(riskBased)),
		KellyBasedContracts: int(math.Floor(kellyBased)),
		FinalContracts:      int(final),
		Multiplier:          v.multiplier(),
		RiskPerContract:     risk,
		MaxCapitalUsage:     final * underlying * ContractSize,
	}, nil
}

// OptimalExits derives exit levels: a profit target at 75% of the net
// premium, a stop at VaR99, a time exit when half the premium has decayed at
// the current theta, and volatility exits 20% either side of sigma.
func (c *Calculator) OptimalExits(positions []models.Position, S, sigma, var99 float64) (ExitPoints, error) {
	premium := math.Abs(entryCost(positions))
	var theta float64
	for _, p := range positions {
		g, err := pricing.Greeks(S, p.Contract.Strike, p.Contract.Years(), c.RiskFreeRate, sigma, p.Contract.Type)
		if err != nil {
			return ExitPoints{}, err
		}
		theta += p.Quantity * g.Theta
	}
	exits := ExitPoints{
		ProfitTarget:   premium * profitTargetFraction,
		StopLoss:       var99,
		VolatilityHigh: sigma * volExitUp,
		VolatilityLow:  sigma * volExitDown,
	}
	if theta != 0 {
		exits.TimeExitDays = int(premium / (2 * math.Abs(theta)))
	}
	return exits, nil
}
