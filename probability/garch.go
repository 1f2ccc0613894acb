package probability

import (
	"fmt"
	"math"

	"github.com/bcdannyboy/optrisk/models"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// returnScale expresses returns in percent while fitting so the parameters
// are of a size the simplex search steps through sensibly.
const returnScale = 100

// minGARCHReturns is the shortest series FitGARCH11 accepts.
const minGARCHReturns = 30

// GARCH11 holds the parameters of sigma²ₜ = ω + α·r²ₜ₋₁ + β·sigma²ₜ₋₁ for
// daily log returns in percent.
type GARCH11 struct {
	Omega float64 `json:"omega"`
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
}

// Valid reports whether the process is positive and stationary.
func (g GARCH11) Valid() bool {
	return g.Omega > 0 && g.Alpha >= 0 && g.Beta >= 0 && g.Alpha+g.Beta < 1
}

// LogLikelihood is the Gaussian log-likelihood of the percent returns,
// starting from the unconditional variance.
func (g GARCH11) LogLikelihood(returns []float64) float64 {
	variance := g.Omega / (1 - g.Alpha - g.Beta)
	logLik := 0.0
	for i := 1; i < len(returns); i++ {
		variance = g.Omega + g.Alpha*returns[i-1]*returns[i-1] + g.Beta*variance
		logLik += -0.5*math.Log(2*math.Pi) - 0.5*math.Log(variance) - 0.5*returns[i]*returns[i]/variance
	}
	return logLik
}

// conditionalVariance runs the recursion through the last return and
// returns next day's variance.
func (g GARCH11) conditionalVariance(returns []float64) float64 {
	variance := g.Omega / (1 - g.Alpha - g.Beta)
	for _, r := range returns {
		variance = g.Omega + g.Alpha*r*r + g.Beta*variance
	}
	return variance
}

// FitGARCH11 estimates GARCH(1,1) on daily closes by maximum likelihood
// with a Nelder-Mead search started from a variance-targeted guess. A
// search that fails or ends below the guess returns the guess.
func FitGARCH11(closes []float64) (GARCH11, error) {
	g, _, err := fitGARCH11(closes)
	return g, err
}

func fitGARCH11(closes []float64) (GARCH11, []float64, error) {
	returns := logReturns(closes)
	if len(returns) < minGARCHReturns {
		return GARCH11{}, nil, fmt.Errorf("%d returns, need at least %d: %w", len(returns), minGARCHReturns, models.ErrInsufficientData)
	}
	scaled := make([]float64, len(returns))
	for i, r := range returns {
		scaled[i] = r * returnScale
	}

	sampleVar := stat.Variance(scaled, nil)
	if sampleVar <= 0 {
		return GARCH11{}, nil, fmt.Errorf("constant price series: %w", models.ErrInsufficientData)
	}
	guess := GARCH11{Omega: sampleVar * 0.1, Alpha: 0.1, Beta: 0.8}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			g := GARCH11{Omega: x[0], Alpha: x[1], Beta: x[2]}
			if !g.Valid() {
				return 1e10
			}
			return -g.LogLikelihood(scaled)
		},
	}
	result, err := optimize.Minimize(problem, []float64{guess.Omega, guess.Alpha, guess.Beta}, nil, &optimize.NelderMead{})
	if err != nil {
		return guess, scaled, nil
	}
	fit := GARCH11{Omega: result.X[0], Alpha: result.X[1], Beta: result.X[2]}
	if !fit.Valid() || fit.LogLikelihood(scaled) < guess.LogLikelihood(scaled) {
		return guess, scaled, nil
	}
	return fit, scaled, nil
}

// GARCHVolatility is the annualised one-day-ahead volatility forecast of a
// GARCH(1,1) fit to closes.
func GARCHVolatility(closes []float64) (float64, error) {
	g, scaled, err := fitGARCH11(closes)
	if err != nil {
		return 0, err
	}
	variance := g.conditionalVariance(scaled) / (returnScale * returnScale)
	return math.Sqrt(variance * TradingDaysPerYear), nil
}
