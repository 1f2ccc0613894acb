package risk

import (
	"fmt"
	"math"

	"github.com/bcdannyboy/optrisk/models"
	"github.com/bcdannyboy/optrisk/pricing"
	"github.com/bcdannyboy/optrisk/probability"
)

// Calculator evaluates strategies under a single risk-free rate.
type Calculator struct {
	RiskFreeRate float64
}

func NewCalculator(riskFreeRate float64) *Calculator {
	return &Calculator{RiskFreeRate: riskFreeRate}
}

// MetricsForStrategy measures one unit of the structure: leg quantities must
// match in magnitude and money figures are per share. days is the time to the
// (front) expiry in calendar days.
func (c *Calculator) MetricsForStrategy(kind Kind, positions []models.Position, S, days, sigma float64) (models.RiskMetrics, error) {
	v, ok := variants[kind]
	if !ok {
		return models.RiskMetrics{}, fmt.Errorf("%q: %w", kind, ErrUnsupportedStrategy)
	}
	if math.IsNaN(S) || S <= 0 {
		return models.RiskMetrics{}, fmt.Errorf("underlying price %v: %w", S, models.ErrInvalidParameter)
	}
	if math.IsNaN(sigma) || sigma <= 0 {
		return models.RiskMetrics{}, fmt.Errorf("volatility %v: %w", sigma, models.ErrInvalidParameter)
	}
	if math.IsNaN(days) || days < 0 {
		return models.RiskMetrics{}, fmt.Errorf("days to expiry %v: %w", days, models.ErrInvalidParameter)
	}
	for _, p := range positions {
		if p.Contract.Strike <= 0 {
			return models.RiskMetrics{}, fmt.Errorf("strike %v: %w", p.Contract.Strike, models.ErrInvalidParameter)
		}
	}

	legs, err := v.shape(positions)
	if err != nil {
		return models.RiskMetrics{}, err
	}
	T := days / pricing.DaysPerYear
	m, err := v.evaluate(c, legs, S, T, sigma)
	if err != nil {
		return models.RiskMetrics{}, err
	}

	// Exposures use only the sign of each leg, consistent with the per-unit
	// money figures above.
	front := legs[0].Contract.Expiration
	for _, l := range legs {
		legT := T
		if kind == CalendarSpread && l.Contract.Expiration.After(front) {
			legT += l.Contract.Expiration.Sub(front).Hours() / 24 / pricing.DaysPerYear
		}
		g, err := pricing.Greeks(S, l.Contract.Strike, legT, c.RiskFreeRate, sigma, l.Contract.Type)
		if err != nil {
			return models.RiskMetrics{}, err
		}
		sign := math.Copysign(1, l.Quantity)
		m.ThetaPerDay += sign * g.Theta
		m.VegaExposure += sign * g.Vega
	}
	return m, nil
}

func (c *Calculator) price(S, K, T, sigma float64, optionType models.OptionType) (float64, error) {
	return pricing.Price(S, K, T, c.RiskFreeRate, sigma, optionType)
}

func (c *Calculator) probAbove(S, barrier, T, sigma float64) (float64, error) {
	return probability.ProbAbove(S, barrier, T, c.RiskFreeRate, sigma)
}

func (c *Calculator) probBelow(S, barrier, T, sigma float64) (float64, error) {
	return probability.ProbBelow(S, barrier, T, c.RiskFreeRate, sigma)
}

func (c *Calculator) probBetween(S, lower, upper, T, sigma float64) (float64, error) {
	return probability.ProbBetween(S, lower, upper, T, c.RiskFreeRate, sigma)
}
