package pricing

import (
	"fmt"
	"math"

	"github.com/bcdannyboy/optrisk/models"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	maxIterations = 100
	epsilon       = 1e-8

	// DaysPerYear converts annualised theta and charm to calendar days.
	DaysPerYear = 365.0
)

func normCDF(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}

func normPDF(x float64) float64 {
	return distuv.UnitNormal.Prob(x)
}

func validate(S, K, sigma float64) error {
	switch {
	case math.IsNaN(S) || S <= 0:
		return fmt.Errorf("spot %v: %w", S, models.ErrInvalidParameter)
	case math.IsNaN(K) || K <= 0:
		return fmt.Errorf("strike %v: %w", K, models.ErrInvalidParameter)
	case math.IsNaN(sigma) || sigma <= 0:
		return fmt.Errorf("volatility %v: %w", sigma, models.ErrInvalidParameter)
	}
	return nil
}

func d1d2(S, K, T, r, sigma float64) (float64, float64) {
	sqrtT := math.Sqrt(T)
	d1 := (math.Log(S/K) + (r+0.5*sigma*sigma)*T) / (sigma * sqrtT)
	return d1, d1 - sigma*sqrtT
}

// Intrinsic is the exercise value of a European option at expiry.
func Intrinsic(S, K float64, optionType models.OptionType) float64 {
	if optionType == models.Put {
		return math.Max(K-S, 0)
	}
	return math.Max(S-K, 0)
}

// Price returns the Black-Scholes value of a European option. T is in years;
// T <= 0 yields intrinsic value.
func Price(S, K, T, r, sigma float64, optionType models.OptionType) (float64, error) {
	if err := validate(S, K, sigma); err != nil {
		return 0, err
	}
	if T <= 0 {
		return Intrinsic(S, K, optionType), nil
	}
	return price(S, K, T, r, sigma, optionType), nil
}

func price(S, K, T, r, sigma float64, optionType models.OptionType) float64 {
	d1, d2 := d1d2(S, K, T, r, sigma)
	discount := K * math.Exp(-r*T)
	var p float64
	if optionType == models.Put {
		p = discount*normCDF(-d2) - S*normCDF(-d1)
	} else {
		p = S*normCDF(d1) - discount*normCDF(d2)
	}
	return math.Max(p, 0)
}

// MustPrice is Price for inputs already validated by the caller.
func MustPrice(S, K, T, r, sigma float64, optionType models.OptionType) float64 {
	p, err := Price(S, K, T, r, sigma, optionType)
	if err != nil {
		panic(err)
	}
	return p
}

// ImpliedVolatility inverts Price with Newton-Raphson, falling back to
// bisection when vega collapses.
func ImpliedVolatility(target, S, K, T, r float64, optionType models.OptionType) (float64, error) {
	if err := validate(S, K, 1); err != nil {
		return 0, err
	}
	if T <= 0 {
		return 0, fmt.Errorf("implied volatility of an expired option: %w", models.ErrInvalidParameter)
	}

	discount := K * math.Exp(-r*T)
	lower, upper := math.Max(S-discount, 0), S
	if optionType == models.Put {
		lower, upper = math.Max(discount-S, 0), discount
	}
	if target <= lower || target >= upper {
		return 0, fmt.Errorf("price %.4f outside no-arbitrage bounds (%.4f, %.4f): %w",
			target, lower, upper, models.ErrInvalidParameter)
	}

	sigma := 0.5 // Initial guess
	for i := 0; i < maxIterations; i++ {
		diff := price(S, K, T, r, sigma, optionType) - target
		if math.Abs(diff) < epsilon {
			return sigma, nil
		}
		d1, _ := d1d2(S, K, T, r, sigma)
		vega := S * normPDF(d1) * math.Sqrt(T)
		if vega < epsilon {
			break
		}
		next := sigma - diff/vega
		if next <= 0 || next > 10 {
			break
		}
		sigma = next
	}

	lo, hi := 1e-6, 10.0
	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		if price(S, K, T, r, mid, optionType) > target {
			hi = mid
		} else {
			lo = mid
		}
		if hi-lo < epsilon {
			break
		}
	}
	return (lo + hi) / 2, nil
}
