package models

// UnboundedLoss is the MaxLoss sentinel for undefined-risk strategies.
const UnboundedLoss = -1.0

type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"` // per calendar day
	Vega  float64 `json:"vega"`  // per 1 vol point
	Vanna float64 `json:"vanna"`
	Charm float64 `json:"charm"` // per calendar day
}

// ApproxGreeks are heuristic sensitivities used only when a quote cannot be
// priced. They are deliberately a different type from Greeks.
type ApproxGreeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
}

type Position struct {
	Contract     OptionContract `json:"contract"`
	Quantity     float64        `json:"quantity"`      // >0 long, <0 short
	EntryPremium float64        `json:"entry_premium"` // per share, always >= 0
}

func (p Position) Long() bool  { return p.Quantity > 0 }
func (p Position) Short() bool { return p.Quantity < 0 }

type RiskMetrics struct {
	Strategy            string    `json:"strategy"`
	ProbabilityOfProfit float64   `json:"probability_of_profit"`
	MaxProfit           float64   `json:"max_profit"`
	MaxLoss             float64   `json:"max_loss"`
	BreakEvenPoints     []float64 `json:"break_even_points"`
	RiskRewardRatio     float64   `json:"risk_reward_ratio"`
	ExpectedValue       float64   `json:"expected_value"`
	ThetaPerDay         float64   `json:"theta_per_day"`
	VegaExposure        float64   `json:"vega_exposure"`
}

func (m RiskMetrics) IsUnbounded() bool {
	return m.MaxLoss == UnboundedLoss
}

type ScenarioOption struct {
	Contract         OptionContract `json:"contract"`
	TheoreticalValue float64        `json:"theoretical_value"`
	ProfitPotential  float64        `json:"profit_potential"`
}

// ScenarioResult is one (change, expiration) bucket of a sweep.
type ScenarioResult struct {
	ChangePercent   float64          `json:"change_percent"`
	UnderlyingPrice float64          `json:"underlying_price"`
	Expiration      string           `json:"expiration"`
	Options         []ScenarioOption `json:"options"`
	Skipped         int              `json:"skipped"`
}
