// Package screener filters option rows with composable predicates and named
// strategy templates.
package screener

import (
	"fmt"
	"math"

	"github.com/bcdannyboy/optrisk/models"
	"github.com/xhhuango/json"
)

// FilterParameters enumerates the recognised filter knobs. Start from
// DefaultFilterParameters: its bounds make every dimension a no-op. Ratios
// and the spread limit are fractions (0.05 = 5%).
type FilterParameters struct {
	MinVolume        float64 `json:"min_volume" yaml:"min_volume"`
	MinOpenInterest  float64 `json:"min_open_interest" yaml:"min_open_interest"`
	MinIV            float64 `json:"min_iv" yaml:"min_iv"`
	MaxIV            float64 `json:"max_iv" yaml:"max_iv"`
	MinDelta         float64 `json:"min_delta" yaml:"min_delta"`
	MaxDelta         float64 `json:"max_delta" yaml:"max_delta"`
	MinGamma         float64 `json:"min_gamma" yaml:"min_gamma"`
	MaxGamma         float64 `json:"max_gamma" yaml:"max_gamma"`
	MinTheta         float64 `json:"min_theta" yaml:"min_theta"`
	MaxTheta         float64 `json:"max_theta" yaml:"max_theta"`
	MinStrikeRatio   float64 `json:"min_strike_ratio" yaml:"min_strike_ratio"`
	MaxStrikeRatio   float64 `json:"max_strike_ratio" yaml:"max_strike_ratio"`
	MinDTE           float64 `json:"min_dte" yaml:"min_dte"`
	MaxDTE           float64 `json:"max_dte" yaml:"max_dte"`
	MaxSpreadPercent float64 `json:"max_spread_percent" yaml:"max_spread_percent"`
	MinHVRatio       float64 `json:"min_hv_ratio" yaml:"min_hv_ratio"`
	MaxHVRatio       float64 `json:"max_hv_ratio" yaml:"max_hv_ratio"`

	// AbsoluteDelta compares |delta| so one range serves calls and puts.
	AbsoluteDelta bool `json:"absolute_delta" yaml:"absolute_delta"`
	// OptionType is "call", "put" or empty for both.
	OptionType string `json:"option_type" yaml:"option_type"`
}

func DefaultFilterParameters() FilterParameters {
	inf := math.Inf(1)
	return FilterParameters{
		MaxIV:            inf,
		MinDelta:         math.Inf(-1),
		MaxDelta:         inf,
		MinGamma:         math.Inf(-1),
		MaxGamma:         inf,
		MinTheta:         math.Inf(-1),
		MaxTheta:         inf,
		MaxStrikeRatio:   inf,
		MaxDTE:           inf,
		MaxSpreadPercent: inf,
		MaxHVRatio:       inf,
	}
}

type bound struct {
	name     string
	min, max float64
}

func (p FilterParameters) ranges() []bound {
	return []bound{
		{"iv", p.MinIV, p.MaxIV},
		{"delta", p.MinDelta, p.MaxDelta},
		{"gamma", p.MinGamma, p.MaxGamma},
		{"theta", p.MinTheta, p.MaxTheta},
		{"strike_ratio", p.MinStrikeRatio, p.MaxStrikeRatio},
		{"dte", p.MinDTE, p.MaxDTE},
		{"hv_ratio", p.MinHVRatio, p.MaxHVRatio},
	}
}

// Validate reports malformed parameters. ApplyAll never calls it: a range
// with min above max simply matches nothing.
func (p FilterParameters) Validate() error {
	for _, b := range p.ranges() {
		if math.IsNaN(b.min) || math.IsNaN(b.max) {
			return fmt.Errorf("%s bound is NaN: %w", b.name, models.ErrInvalidParameter)
		}
		if b.min > b.max {
			return fmt.Errorf("min_%s %v above max_%s %v: %w", b.name, b.min, b.name, b.max, models.ErrInvalidParameter)
		}
	}
	if math.IsNaN(p.MaxSpreadPercent) || p.MaxSpreadPercent < 0 {
		return fmt.Errorf("max_spread_percent %v: %w", p.MaxSpreadPercent, models.ErrInvalidParameter)
	}
	if p.OptionType != "" {
		if _, err := models.ParseOptionType(p.OptionType); err != nil {
			return err
		}
	}
	return nil
}

// MarshalJSON omits infinite bounds, which JSON cannot carry. Decoding into
// a DefaultFilterParameters value restores them.
func (p FilterParameters) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{}
	put := func(key string, v float64) {
		if !math.IsInf(v, 0) {
			out[key] = v
		}
	}
	put("min_volume", p.MinVolume)
	put("min_open_interest", p.MinOpenInterest)
	put("min_iv", p.MinIV)
	put("max_iv", p.MaxIV)
	put("min_delta", p.MinDelta)
	put("max_delta", p.MaxDelta)
	put("min_gamma", p.MinGamma)
	put("max_gamma", p.MaxGamma)
	put("min_theta", p.MinTheta)
	put("max_theta", p.MaxTheta)
	put("min_strike_ratio", p.MinStrikeRatio)
	put("max_strike_ratio", p.MaxStrikeRatio)
	put("min_dte", p.MinDTE)
	put("max_dte", p.MaxDTE)
	put("max_spread_percent", p.MaxSpreadPercent)
	put("min_hv_ratio", p.MinHVRatio)
	put("max_hv_ratio", p.MaxHVRatio)
	if p.AbsoluteDelta {
		out["absolute_delta"] = true
	}
	if p.OptionType != "" {
		out["option_type"] = p.OptionType
	}
	return json.Marshal(out)
}
