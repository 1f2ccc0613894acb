// Package scenario revalues an options chain across a grid of hypothetical
// underlying moves.
package scenario

import (
	"fmt"
	"math"
	"sort"

	"github.com/bcdannyboy/optrisk/models"
	"github.com/bcdannyboy/optrisk/pricing"
)

const (
	gridTolerance = 1e-9
	// MaxGridPoints bounds a single sweep.
	MaxGridPoints = 10000
)

// Grid returns min, min+step, ... up to max inclusive. Points are computed
// as min + i*step so no rounding error accumulates.
func Grid(minPct, maxPct, stepPct float64) ([]float64, error) {
	for _, v := range []float64{minPct, maxPct, stepPct} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("grid bound %v: %w", v, models.ErrInvalidParameter)
		}
	}
	if minPct > maxPct {
		return nil, fmt.Errorf("min change %v above max change %v: %w", minPct, maxPct, models.ErrInvalidParameter)
	}
	if minPct == maxPct {
		return []float64{minPct}, nil
	}
	if stepPct <= 0 {
		return nil, fmt.Errorf("step %v does not reach %v from %v: %w", stepPct, maxPct, minPct, models.ErrInvalidParameter)
	}
	n := math.Floor((maxPct-minPct)/stepPct + gridTolerance)
	if n+1 > MaxGridPoints {
		return nil, fmt.Errorf("%v grid points exceed %d: %w", n+1, MaxGridPoints, models.ErrInvalidParameter)
	}
	grid := make([]float64, 0, int(n)+1)
	for i := 0; i <= int(n); i++ {
		grid = append(grid, minPct+float64(i)*stepPct)
	}
	return grid, nil
}

// ProfitPotential is the percentage move from the current option price to
// the theoretical value, 0 when the current price is not positive.
func ProfitPotential(theoretical, current float64) float64 {
	if current <= 0 {
		return 0
	}
	return (theoretical - current) / current * 100
}

// Sweep revalues every contract of chain at price*(1+change/100) for each
// change on the grid. Results are ordered by change, then expiration;
// options inside a bucket by profit potential, highest first. Contracts that
// are not valid quotes are counted in Skipped instead of being priced.
func Sweep(price float64, chain models.Chain, minPct, maxPct, stepPct, r float64) ([]models.ScenarioResult, error) {
	if math.IsNaN(price) || price <= 0 {
		return nil, fmt.Errorf("underlying price %v: %w", price, models.ErrInvalidParameter)
	}
	if chain.Len() == 0 {
		return nil, fmt.Errorf("empty options chain: %w", models.ErrInsufficientData)
	}
	grid, err := Grid(minPct, maxPct, stepPct)
	if err != nil {
		return nil, err
	}

	expirations := chain.ExpirationDates()
	results := make([]models.ScenarioResult, 0, len(grid)*len(expirations))
	for _, change := range grid {
		newPrice := math.Max(price*(1+change/100), 0)
		for _, exp := range expirations {
			bucket := models.ScenarioResult{
				ChangePercent:   change,
				UnderlyingPrice: newPrice,
				Expiration:      exp,
				Options:         make([]models.ScenarioOption, 0, len(chain[exp])),
			}
			for _, contract := range chain[exp] {
				opt, ok := revalue(contract, newPrice, r)
				if !ok {
					bucket.Skipped++
					continue
				}
				bucket.Options = append(bucket.Options, opt)
			}
			sort.SliceStable(bucket.Options, func(i, j int) bool {
				return bucket.Options[i].ProfitPotential > bucket.Options[j].ProfitPotential
			})
			results = append(results, bucket)
		}
	}
	return results, nil
}

func revalue(contract models.OptionContract, newPrice, r float64) (models.ScenarioOption, bool) {
	if !contract.Valid() {
		return models.ScenarioOption{}, false
	}
	// A move of -100% or worse leaves nothing to price; the underlying is
	// floored at zero so calls are worthless and puts pay the strike.
	var value float64
	if newPrice <= 0 {
		value = pricing.Intrinsic(0, contract.Strike, contract.Type)
	} else {
		v, err := pricing.Price(newPrice, contract.Strike, contract.Years(), r, contract.ImpliedVolatility, contract.Type)
		if err != nil {
			return models.ScenarioOption{}, false
		}
		value = v
	}
	current := contract.CurrentPrice()
	return models.ScenarioOption{
		Contract:         contract,
		TheoreticalValue: value,
		ProfitPotential:  ProfitPotential(value, current),
	}, true
}
