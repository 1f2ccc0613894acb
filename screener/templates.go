package screener

import (
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/bcdannyboy/optrisk/models"
	"github.com/bcdannyboy/optrisk/probability"
	"gopkg.in/yaml.v2"
)

// Template is a named bundle of filter parameters, the per-row metrics to
// annotate survivors with, and the external data the strategy relies on.
type Template struct {
	Name         string           `json:"name" yaml:"name"`
	Description  string           `json:"description" yaml:"description"`
	Filters      FilterParameters `json:"filters" yaml:"filters"`
	RiskMetrics  []string         `json:"risk_metrics" yaml:"risk_metrics"`
	RequiredData []string         `json:"required_data" yaml:"required_data"`
}

type Templates map[string]Template

// metricFunc computes one annotation; ok is false when the row lacks the
// inputs, in which case the metric is omitted from the row.
type metricFunc func(row Row, now time.Time, r float64) (value float64, ok bool)

var metrics = map[string]metricFunc{
	"static_return":            staticReturn,
	"assigned_return":          assignedReturn,
	"annualized_return":        annualizedReturn,
	"break_even_price":         breakEvenPrice,
	"premium_to_cash_required": premiumToCash,
	"break_even_distance":      breakEvenDistance,
	"probability_of_profit":    shortProbabilityOfProfit,
	"max_loss":                 shortMaxLoss,
	"risk_reward_ratio":        shortRiskReward,
	"vega_risk":                func(row Row, _ time.Time, _ float64) (float64, bool) { return row.Greeks.Vega, row.GreekSource != GreeksUnavailable },
	"theta_decay_ratio":        thetaDecayRatio,
	"optimal_exit_dte":         optimalExitDTE,
	"iv_hv_ratio":              ivHVRatio,
}

// Metrics lists the annotation names templates may declare.
func Metrics() []string {
	names := make([]string, 0, len(metrics))
	for n := range metrics {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func DefaultTemplates() Templates {
	with := func(f func(*FilterParameters)) FilterParameters {
		p := DefaultFilterParameters()
		f(&p)
		return p
	}
	return Templates{
		"covered_call": {
			Name:        "Covered Call Scanner",
			Description: "Out-of-the-money calls with balanced premium and assignment risk",
			Filters: with(func(p *FilterParameters) {
				p.OptionType = "call"
				p.MinDelta, p.MaxDelta = 0.25, 0.35
				p.MinDTE, p.MaxDTE = 30, 45
				p.MinVolume, p.MinOpenInterest = 100, 500
				p.MaxSpreadPercent = 0.05
				p.MinStrikeRatio = 1.0
			}),
			RiskMetrics:  []string{"static_return", "assigned_return", "annualized_return", "break_even_price"},
			RequiredData: []string{"underlying_price", "dividend_dates"},
		},
		"cash_secured_put": {
			Name:        "Cash Secured Put Scanner",
			Description: "Put-selling opportunities with a good premium to risk ratio",
			Filters: with(func(p *FilterParameters) {
				p.OptionType = "put"
				p.AbsoluteDelta = true
				p.MinDelta, p.MaxDelta = 0.2, 0.3
				p.MinDTE, p.MaxDTE = 25, 45
				p.MinVolume = 100
				p.MaxSpreadPercent = 0.05
			}),
			RiskMetrics:  []string{"premium_to_cash_required", "annualized_return", "break_even_distance"},
			RequiredData: []string{"technical_levels", "earnings_dates"},
		},
		"iron_condor": {
			Name:        "Iron Condor Scanner",
			Description: "Short wings for range-bound underlyings with a high probability of profit",
			Filters: with(func(p *FilterParameters) {
				p.AbsoluteDelta = true
				p.MinDelta, p.MaxDelta = 0.15, 0.20
				p.MinDTE, p.MaxDTE = 25, 45
				p.MaxSpreadPercent = 0.05
			}),
			RiskMetrics:  []string{"probability_of_profit", "max_loss", "risk_reward_ratio"},
			RequiredData: []string{"historical_volatility", "earnings_dates"},
		},
		"calendar_spread": {
			Name:        "Calendar Spread Scanner",
			Description: "Near-the-money strikes for time decay with little directional risk",
			Filters: with(func(p *FilterParameters) {
				p.MinStrikeRatio, p.MaxStrikeRatio = 0.95, 1.05
				p.MinDTE, p.MaxDTE = 20, 60
				p.MinVolume = 50
				p.MaxSpreadPercent = 0.07
			}),
			RiskMetrics:  []string{"vega_risk", "theta_decay_ratio", "optimal_exit_dte"},
			RequiredData: []string{"term_structure", "historical_vol_by_expiration"},
		},
		"volatility_skew": {
			Name:        "Volatility Skew Scanner",
			Description: "Contracts whose implied volatility is rich against realised volatility",
			Filters: with(func(p *FilterParameters) {
				p.MinDTE, p.MaxDTE = 30, 60
				p.MinVolume = 100
				p.MaxSpreadPercent = 0.05
				p.MinHVRatio = 1.2
			}),
			RiskMetrics:  []string{"iv_hv_ratio", "vega_risk"},
			RequiredData: []string{"historical_volatility", "put_call_ratios"},
		},
	}
}

func (t Template) Validate() error {
	if err := t.Filters.Validate(); err != nil {
		return fmt.Errorf("template %q: %w", t.Name, err)
	}
	for _, m := range t.RiskMetrics {
		if _, ok := metrics[m]; !ok {
			return fmt.Errorf("template %q: unknown risk metric %q: %w", t.Name, m, models.ErrInvalidParameter)
		}
	}
	return nil
}

type templateFile struct {
	Templates map[string]yaml.MapSlice `yaml:"templates"`
}

// LoadTemplates overlays the templates defined in a YAML file on the
// defaults. Keys absent from the file keep their current values; a new
// template starts from DefaultFilterParameters.
func LoadTemplates(path string) (Templates, error) {
	templates := DefaultTemplates()
	if path == "" {
		return templates, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading templates file: %w", err)
	}
	if err := templates.Merge(data); err != nil {
		return nil, err
	}
	return templates, nil
}

func (ts Templates) Merge(data []byte) error {
	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing templates: %v: %w", err, models.ErrInvalidParameter)
	}
	for key, raw := range file.Templates {
		t, ok := ts[key]
		if !ok {
			t = Template{Name: key, Filters: DefaultFilterParameters()}
		}
		node, err := yaml.Marshal(raw)
		if err != nil {
			return err
		}
		if err := yaml.Unmarshal(node, &t); err != nil {
			return fmt.Errorf("template %q: %v: %w", key, err, models.ErrInvalidParameter)
		}
		if err := t.Validate(); err != nil {
			return err
		}
		ts[key] = t
	}
	return nil
}

func (ts Templates) Names() []string {
	names := make([]string, 0, len(ts))
	for n := range ts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Apply filters rows with the template's parameters and annotates the
// survivors with its declared metrics.
func (ts Templates) Apply(name string, rows []Row, now time.Time, r float64) ([]Row, error) {
	t, ok := ts[name]
	if !ok {
		return nil, fmt.Errorf("template %q not found: %w", name, models.ErrInvalidParameter)
	}
	filtered := ApplyAll(t.Filters, rows, now)
	for i := range filtered {
		annotated := make(map[string]float64, len(t.RiskMetrics))
		for k, v := range filtered[i].Metrics {
			annotated[k] = v
		}
		for _, m := range t.RiskMetrics {
			fn, ok := metrics[m]
			if !ok {
				continue
			}
			if v, ok := fn(filtered[i], now, r); ok {
				annotated[m] = v
			}
		}
		filtered[i].Metrics = annotated
	}
	return filtered, nil
}

// ApplyTemplate applies one of the default templates.
func ApplyTemplate(name string, rows []Row, now time.Time, r float64) ([]Row, error) {
	return DefaultTemplates().Apply(name, rows, now, r)
}

func premium(row Row) float64 { return row.Contract.Mid() }

func staticReturn(row Row, _ time.Time, _ float64) (float64, bool) {
	if row.UnderlyingPrice <= 0 {
		return 0, false
	}
	return premium(row) / row.UnderlyingPrice * 100, true
}

func assignedReturn(row Row, _ time.Time, _ float64) (float64, bool) {
	if row.UnderlyingPrice <= 0 {
		return 0, false
	}
	return (row.Contract.Strike - row.UnderlyingPrice + premium(row)) / row.UnderlyingPrice * 100, true
}

// annualizedReturn scales the premium yield on capital at risk (the
// underlying for calls, the strike for puts) to a 365-day year.
func annualizedReturn(row Row, now time.Time, _ float64) (float64, bool) {
	dte := row.DTE(now)
	capital := row.UnderlyingPrice
	if row.Contract.Type == models.Put {
		capital = row.Contract.Strike
	}
	if dte <= 0 || capital <= 0 {
		return 0, false
	}
	return premium(row) / capital * 365 / dte * 100, true
}

func breakEvenPrice(row Row, _ time.Time, _ float64) (float64, bool) {
	if row.Contract.Type == models.Put {
		return row.Contract.Strike - premium(row), true
	}
	return row.UnderlyingPrice - premium(row), true
}

func premiumToCash(row Row, _ time.Time, _ float64) (float64, bool) {
	if row.Contract.Strike <= 0 {
		return 0, false
	}
	return premium(row) / row.Contract.Strike * 100, true
}

func breakEvenDistance(row Row, _ time.Time, _ float64) (float64, bool) {
	if row.UnderlyingPrice <= 0 {
		return 0, false
	}
	be := row.Contract.Strike - premium(row)
	return (row.UnderlyingPrice - be) / row.UnderlyingPrice * 100, true
}

// shortProbabilityOfProfit treats the row as a short option held to expiry.
func shortProbabilityOfProfit(row Row, now time.Time, r float64) (float64, bool) {
	c := row.Contract
	T := row.DTE(now) / 365
	var (
		p   float64
		err error
	)
	if c.Type == models.Put {
		p, err = probability.ProbAbove(row.UnderlyingPrice, c.Strike-premium(row), T, r, c.ImpliedVolatility)
	} else {
		p, err = probability.ProbBelow(row.UnderlyingPrice, c.Strike+premium(row), T, r, c.ImpliedVolatility)
	}
	return p, err == nil
}

func shortMaxLoss(row Row, _ time.Time, _ float64) (float64, bool) {
	if row.Contract.Type == models.Call {
		return models.UnboundedLoss, true
	}
	return row.Contract.Strike - premium(row), true
}

func shortRiskReward(row Row, now time.Time, r float64) (float64, bool) {
	loss, _ := shortMaxLoss(row, now, r)
	if loss == models.UnboundedLoss || loss <= 0 {
		return 0, true
	}
	return premium(row) / loss, true
}

func thetaDecayRatio(row Row, _ time.Time, _ float64) (float64, bool) {
	p := premium(row)
	if row.GreekSource == GreeksUnavailable || p <= 0 {
		return 0, false
	}
	return math.Abs(row.Greeks.Theta) / p, true
}

// optimalExitDTE is the number of days until half the premium has decayed
// at the current theta.
func optimalExitDTE(row Row, _ time.Time, _ float64) (float64, bool) {
	if row.GreekSource == GreeksUnavailable || row.Greeks.Theta == 0 {
		return 0, false
	}
	return math.Floor(premium(row) / (2 * math.Abs(row.Greeks.Theta))), true
}

func ivHVRatio(row Row, _ time.Time, _ float64) (float64, bool) {
	if row.HV30 <= 0 {
		return 0, false
	}
	return row.Contract.ImpliedVolatility / row.HV30, true
}
