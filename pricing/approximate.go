package pricing

import (
	"math"

	"github.com/bcdannyboy/optrisk/models"
)

// ApproximateGreeks reproduces the exponential-decay heuristics used when a
// provider supplies no Greeks. The results are rough and must never be
// compared with Greeks.
func ApproximateGreeks(S, K, sigma float64, optionType models.OptionType) (models.ApproxGreeks, error) {
	if err := validate(S, K, sigma); err != nil {
		return models.ApproxGreeks{}, err
	}

	width := S * sigma
	bell := math.Exp(-(S - K) * (S - K) / (2 * width * width))

	var delta float64
	if optionType == models.Call {
		if S > K {
			delta = 0.7 + (S-K)/width*0.3
		} else {
			delta = 0.3 - (K-S)/width*0.3
		}
		delta = math.Max(0, math.Min(1, delta))
	} else {
		if S > K {
			delta = -0.3 + (S-K)/width*0.3
		} else {
			delta = -0.7 - (K-S)/width*0.3
		}
		delta = math.Max(-1, math.Min(0, delta))
	}

	return models.ApproxGreeks{
		Delta: delta,
		Gamma: 0.1 * bell,
		Theta: -S * sigma / math.Sqrt(DaysPerYear) * bell,
		Vega:  S * bell / 100,
	}, nil
}

