package screener

import (
	"math"
	"time"

	"github.com/bcdannyboy/optrisk/models"
)

// GreekSource records where a row's Greeks came from.
type GreekSource string

const (
	GreeksExact       GreekSource = "exact"
	GreeksApproximate GreekSource = "approximate"
	GreeksUnavailable GreekSource = "unavailable"
)

// Row is one contract normalised for screening.
type Row struct {
	Contract        models.OptionContract `json:"contract"`
	UnderlyingPrice float64               `json:"underlying_price"`
	HV30            float64               `json:"hv30"`
	Greeks          models.Greeks         `json:"greeks"`
	GreekSource     GreekSource           `json:"greek_source"`
	Metrics         map[string]float64    `json:"metrics,omitempty"`
}

// DTE is whole days from now to expiration, rounded down. Contracts without
// an absolute expiration fall back to DaysToExpiry.
func (r Row) DTE(now time.Time) float64 {
	if r.Contract.Expiration.IsZero() {
		return float64(r.Contract.DaysToExpiry)
	}
	return math.Floor(r.Contract.Expiration.Sub(now).Hours() / 24)
}

type Predicate interface {
	Name() string
	Match(Row) bool
}

type predicate struct {
	name  string
	match func(Row) bool
}

func (p predicate) Name() string     { return p.name }
func (p predicate) Match(r Row) bool { return p.match(r) }

func within(v, min, max float64) bool {
	return v >= min && v <= max
}

func Liquidity(minVolume, minOpenInterest float64) Predicate {
	return predicate{"liquidity", func(r Row) bool {
		return float64(r.Contract.Volume) >= minVolume && float64(r.Contract.OpenInterest) >= minOpenInterest
	}}
}

// Moneyness keeps rows whose strike/underlying ratio is in [min, max].
func Moneyness(min, max float64) Predicate {
	return predicate{"moneyness", func(r Row) bool {
		if r.UnderlyingPrice <= 0 {
			return false
		}
		return within(r.Contract.Strike/r.UnderlyingPrice, min, max)
	}}
}

// GreekRange bounds delta, gamma and theta. With absoluteDelta the delta
// range applies to |delta|. Rows without Greeks pass only unbounded ranges.
func GreekRange(p FilterParameters) Predicate {
	unbounded := math.IsInf(p.MinDelta, -1) && math.IsInf(p.MaxDelta, 1) &&
		math.IsInf(p.MinGamma, -1) && math.IsInf(p.MaxGamma, 1) &&
		math.IsInf(p.MinTheta, -1) && math.IsInf(p.MaxTheta, 1)
	return predicate{"greeks", func(r Row) bool {
		if r.GreekSource == GreeksUnavailable {
			return unbounded
		}
		delta := r.Greeks.Delta
		if p.AbsoluteDelta {
			delta = math.Abs(delta)
		}
		return within(delta, p.MinDelta, p.MaxDelta) &&
			within(r.Greeks.Gamma, p.MinGamma, p.MaxGamma) &&
			within(r.Greeks.Theta, p.MinTheta, p.MaxTheta)
	}}
}

// Volatility bounds implied volatility and IV/HV30. A row with no HV30 has
// no ratio and is excluded.
func Volatility(p FilterParameters) Predicate {
	return predicate{"volatility", func(r Row) bool {
		iv := r.Contract.ImpliedVolatility
		if !within(iv, p.MinIV, p.MaxIV) {
			return false
		}
		if r.HV30 <= 0 || math.IsNaN(r.HV30) {
			return false
		}
		return within(iv/r.HV30, p.MinHVRatio, p.MaxHVRatio)
	}}
}

// Spread keeps rows whose bid/ask width, relative to the underlying, is at
// most maxSpread.
func Spread(maxSpread float64) Predicate {
	return predicate{"spread", func(r Row) bool {
		if math.IsInf(maxSpread, 1) {
			return true
		}
		if r.UnderlyingPrice <= 0 {
			return false
		}
		return (r.Contract.Ask-r.Contract.Bid)/r.UnderlyingPrice <= maxSpread
	}}
}

func Expiration(minDTE, maxDTE float64, now time.Time) Predicate {
	return predicate{"expiration", func(r Row) bool {
		return within(r.DTE(now), minDTE, maxDTE)
	}}
}

func OfType(t models.OptionType) Predicate {
	return predicate{"type", func(r Row) bool {
		return r.Contract.Type == t
	}}
}

// And matches when every predicate does.
func And(preds ...Predicate) Predicate {
	return predicate{"and", func(r Row) bool {
		for _, p := range preds {
			if !p.Match(r) {
				return false
			}
		}
		return true
	}}
}

// Filter returns the rows matching every predicate, preserving input order.
func Filter(rows []Row, preds ...Predicate) []Row {
	all := And(preds...)
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if all.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Predicates expands p into the standard chain, narrowest first:
// type, liquidity, moneyness, greeks, volatility, spread, expiration.
func (p FilterParameters) Predicates(now time.Time) []Predicate {
	var preds []Predicate
	if p.OptionType != "" {
		if t, err := models.ParseOptionType(p.OptionType); err == nil {
			preds = append(preds, OfType(t))
		} else {
			preds = append(preds, predicate{"type", func(Row) bool { return false }})
		}
	}
	return append(preds,
		Liquidity(p.MinVolume, p.MinOpenInterest),
		Moneyness(p.MinStrikeRatio, p.MaxStrikeRatio),
		GreekRange(p),
		Volatility(p),
		Spread(p.MaxSpreadPercent),
		Expiration(p.MinDTE, p.MaxDTE, now),
	)
}

// ApplyAll filters rows by every dimension of p. Malformed ranges produce an
// empty result rather than an error.
func ApplyAll(p FilterParameters, rows []Row, now time.Time) []Row {
	return Filter(rows, p.Predicates(now)...)
}
