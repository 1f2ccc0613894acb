package risk

import (
	"math"

	"github.com/bcdannyboy/optrisk/models"
	"github.com/bcdannyboy/optrisk/pricing"
)

const bisectionIterations = 100

type calendar struct{}

func (calendar) multiplier() float64 { return 0.7 }

// shape returns [short front, long back].
func (calendar) shape(legs []models.Position) ([]models.Position, error) {
	if len(legs) != 2 {
		return nil, legError(CalendarSpread, "want two legs, got %d", len(legs))
	}
	front, back := legs[0], legs[1]
	if front.Long() {
		front, back = back, front
	}
	if !front.Short() || !back.Long() {
		return nil, legError(CalendarSpread, "want one short and one long leg")
	}
	if front.Contract.Type != back.Contract.Type || front.Contract.Strike != back.Contract.Strike {
		return nil, legError(CalendarSpread, "legs must share strike and option type")
	}
	if front.Contract.Expiration.IsZero() || !back.Contract.Expiration.After(front.Contract.Expiration) {
		return nil, legError(CalendarSpread, "long leg must expire after the short leg")
	}
	if back.EntryPremium <= front.EntryPremium {
		return nil, legError(CalendarSpread, "want a net debit, long premium %v short premium %v", back.EntryPremium, front.EntryPremium)
	}
	out := []models.Position{front, back}
	return out, sameSize(CalendarSpread, out)
}

// evaluate values the position at the front expiry, where the long leg still
// has gap years left. Peak value is at S = K; break-evens bracket it.
func (calendar) evaluate(c *Calculator, legs []models.Position, S, T, sigma float64) (models.RiskMetrics, error) {
	front, back := legs[0], legs[1]
	K := front.Contract.Strike
	optionType := front.Contract.Type
	gap := back.Contract.Expiration.Sub(front.Contract.Expiration).Hours() / 24 / pricing.DaysPerYear
	debit := back.EntryPremium - front.EntryPremium

	atExpiry := func(x float64) float64 {
		return pricing.MustPrice(x, K, gap, c.RiskFreeRate, sigma, optionType) - pricing.Intrinsic(x, K, optionType) - debit
	}
	maxProfit := atExpiry(K)

	m := models.RiskMetrics{
		Strategy:        string(CalendarSpread),
		MaxProfit:       maxProfit,
		MaxLoss:         debit,
		BreakEvenPoints: []float64{},
	}
	if debit != 0 {
		m.RiskRewardRatio = math.Abs(maxProfit / debit)
	}
	if maxProfit <= 0 {
		m.ExpectedValue = -debit
		return m, nil
	}

	lower, upper := 0.0, math.Inf(1)
	if lo := K * 1e-3; atExpiry(lo) < 0 {
		lower = bisect(atExpiry, lo, K)
		m.BreakEvenPoints = append(m.BreakEvenPoints, lower)
	}
	if hi := K * 10; atExpiry(hi) < 0 {
		upper = bisect(atExpiry, K, hi)
		m.BreakEvenPoints = append(m.BreakEvenPoints, upper)
	}
	pop, err := c.probBetween(S, lower, upper, T, sigma)
	if err != nil {
		return models.RiskMetrics{}, err
	}
	m.ProbabilityOfProfit = pop
	m.ExpectedValue = maxProfit*pop - debit*(1-pop)
	return m, nil
}

// bisect finds the sign change of f on [a, b]; f(a) and f(b) must differ in sign.
func bisect(f func(float64) float64, a, b float64) float64 {
	fa := f(a)
	for i := 0; i < bisectionIterations; i++ {
		mid := (a + b) / 2
		fm := f(mid)
		if math.Abs(fm) < 1e-10 || (b-a)/2 < 1e-10 {
			return mid
		}
		if (fm < 0) == (fa < 0) {
			a, fa = mid, fm
		} else {
			b = mid
		}
	}
	return (a + b) / 2
}
