package pricing

import (
	"math"

	"github.com/bcdannyboy/optrisk/models"
)

// Greeks returns the analytic Black-Scholes sensitivities. Theta and charm
// are per calendar day, vega per one volatility point. At T <= 0 only the
// intrinsic delta survives.
func Greeks(S, K, T, r, sigma float64, optionType models.OptionType) (models.Greeks, error) {
	if err := validate(S, K, sigma); err != nil {
		return models.Greeks{}, err
	}
	if T <= 0 {
		return expiredGreeks(S, K, optionType), nil
	}

	sqrtT := math.Sqrt(T)
	d1, d2 := d1d2(S, K, T, r, sigma)
	pdf := normPDF(d1)
	discount := K * math.Exp(-r*T)

	var delta, theta float64
	decay := -(S * pdf * sigma) / (2 * sqrtT)
	if optionType == models.Put {
		delta = normCDF(d1) - 1
		theta = decay + r*discount*normCDF(-d2)
	} else {
		delta = normCDF(d1)
		theta = decay - r*discount*normCDF(d2)
	}

	// dDelta/dtau is identical for calls and puts without dividends.
	dDeltaDTau := pdf * (2*r*T - d2*sigma*sqrtT) / (2 * T * sigma * sqrtT)

	return models.Greeks{
		Delta: delta,
		Gamma: pdf / (S * sigma * sqrtT),
		Theta: theta / DaysPerYear,
		Vega:  S * pdf * sqrtT / 100,
		Vanna: -pdf * d2 / sigma,
		Charm: -dDeltaDTau / DaysPerYear,
	}, nil
}

func expiredGreeks(S, K float64, optionType models.OptionType) models.Greeks {
	var g models.Greeks
	switch {
	case optionType == models.Call && S > K:
		g.Delta = 1
	case optionType == models.Put && S < K:
		g.Delta = -1
	}
	return g
}
