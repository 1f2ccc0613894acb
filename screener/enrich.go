package screener

import (
	"fmt"
	"time"

	"github.com/bcdannyboy/optrisk/models"
	"github.com/bcdannyboy/optrisk/pricing"
)

// Enrich flattens a chain into rows, attaching Greeks computed at the
// contract's implied volatility. Quotes the kernel cannot price fall back to
// the approximate heuristics and are marked as such.
func Enrich(chain models.Chain, underlying, hv30, r float64, now time.Time) ([]Row, error) {
	if underlying <= 0 {
		return nil, fmt.Errorf("underlying price %v: %w", underlying, models.ErrInvalidParameter)
	}
	if chain.Len() == 0 {
		return nil, fmt.Errorf("empty options chain: %w", models.ErrInsufficientData)
	}

	rows := make([]Row, 0, chain.Len())
	for _, exp := range chain.ExpirationDates() {
		for _, c := range chain[exp] {
			row := Row{Contract: c, UnderlyingPrice: underlying, HV30: hv30, GreekSource: GreeksUnavailable}
			T := c.Years()
			if !c.Expiration.IsZero() {
				T = c.Expiration.Sub(now).Hours() / 24 / pricing.DaysPerYear
			}
			if c.Valid() {
				if g, err := pricing.Greeks(underlying, c.Strike, T, r, c.ImpliedVolatility, c.Type); err == nil {
					row.Greeks, row.GreekSource = g, GreeksExact
				}
			} else if a, err := pricing.ApproximateGreeks(underlying, c.Strike, c.ImpliedVolatility, c.Type); err == nil {
				row.Greeks = models.Greeks{Delta: a.Delta, Gamma: a.Gamma, Theta: a.Theta, Vega: a.Vega}
				row.GreekSource = GreeksApproximate
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}
