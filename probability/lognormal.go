package probability

import (
	"fmt"
	"math"

	"github.com/bcdannyboy/optrisk/models"
	"gonum.org/v1/gonum/stat/distuv"
)

// ProbBelow is P(S_T < barrier) when S_T is lognormal with risk-neutral
// drift r - sigma^2/2. Note the minus sign: the pricing d1 uses r + sigma^2/2.
func ProbBelow(S, barrier, T, r, sigma float64) (float64, error) {
	if S <= 0 || math.IsNaN(S) {
		return 0, fmt.Errorf("spot %v: %w", S, models.ErrInvalidParameter)
	}
	if sigma <= 0 || math.IsNaN(sigma) {
		return 0, fmt.Errorf("volatility %v: %w", sigma, models.ErrInvalidParameter)
	}
	if barrier <= 0 {
		return 0, nil
	}
	if math.IsInf(barrier, 1) {
		return 1, nil
	}
	if T <= 0 {
		if S < barrier {
			return 1, nil
		}
		return 0, nil
	}
	z := (math.Log(barrier/S) - (r-0.5*sigma*sigma)*T) / (sigma * math.Sqrt(T))
	return distuv.UnitNormal.CDF(z), nil
}

func ProbAbove(S, barrier, T, r, sigma float64) (float64, error) {
	below, err := ProbBelow(S, barrier, T, r, sigma)
	if err != nil {
		return 0, err
	}
	return 1 - below, nil
}

// ProbBetween is P(lower < S_T < upper), zero when the range is empty.
func ProbBetween(S, lower, upper, T, r, sigma float64) (float64, error) {
	if lower >= upper {
		if _, err := ProbBelow(S, upper, T, r, sigma); err != nil {
			return 0, err
		}
		return 0, nil
	}
	hi, err := ProbBelow(S, upper, T, r, sigma)
	if err != nil {
		return 0, err
	}
	lo, err := ProbBelow(S, lower, T, r, sigma)
	if err != nil {
		return 0, err
	}
	return math.Max(0, hi-lo), nil
}
