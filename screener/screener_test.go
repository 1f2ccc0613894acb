package screener

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/bcdannyboy/optrisk/models"
	"github.com/xhhuango/json"
)

var now = time.Date(2026, 1, 5, 15, 30, 0, 0, time.UTC)

func contract(strike float64, t models.OptionType, days int, volume, oi int64, bid, ask, iv float64) models.OptionContract {
	return models.OptionContract{
		Symbol:            "TEST",
		Strike:            strike,
		Type:              t,
		Expiration:        now.AddDate(0, 0, days),
		DaysToExpiry:      days,
		Volume:            volume,
		OpenInterest:      oi,
		Bid:               bid,
		Ask:               ask,
		ImpliedVolatility: iv,
	}
}

func sampleChain() models.Chain {
	near := now.AddDate(0, 0, 10).Format(models.DateLayout)
	far := now.AddDate(0, 0, 35).Format(models.DateLayout)
	return models.Chain{
		near: {
			contract(90, models.Put, 10, 300, 900, 0.20, 0.25, 0.32),
			contract(100, models.Call, 10, 1500, 4000, 2.00, 2.10, 0.25),
			contract(100, models.Put, 10, 1200, 3000, 1.80, 1.90, 0.27),
			contract(120, models.Call, 10, 5, 20, 0.01, 0.05, 0.40),
		},
		far: {
			contract(95, models.Put, 35, 400, 1200, 1.40, 1.50, 0.28),
			contract(105, models.Call, 35, 800, 2500, 1.10, 1.20, 0.24),
			contract(110, models.Call, 35, 600, 1500, 0.45, 0.50, 0.23),
			// crossed quote: cannot be priced exactly
			contract(100, models.Call, 35, 50, 100, 3.10, 3.00, 0.25),
		},
	}
}

func sampleRows(t *testing.T) []Row {
	t.Helper()
	rows, err := Enrich(sampleChain(), 100, 0.25, 0.05, now)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	return rows
}

func strikes(rows []Row) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.Contract.Strike
	}
	return out
}

func TestEnrichGreekSources(t *testing.T) {
	rows := sampleRows(t)
	if len(rows) != 8 {
		t.Fatalf("got %d rows, want 8", len(rows))
	}
	var exact, approx int
	for _, r := range rows {
		switch r.GreekSource {
		case GreeksExact:
			exact++
		case GreeksApproximate:
			approx++
			if r.Contract.Bid <= r.Contract.Ask {
				t.Errorf("valid quote %v marked approximate", r.Contract.Strike)
			}
		}
	}
	if exact != 7 || approx != 1 {
		t.Errorf("exact/approximate = %d/%d, want 7/1", exact, approx)
	}

	if _, err := Enrich(models.Chain{}, 100, 0.25, 0.05, now); !errors.Is(err, models.ErrInsufficientData) {
		t.Errorf("empty chain error = %v", err)
	}
	if _, err := Enrich(sampleChain(), 0, 0.25, 0.05, now); !errors.Is(err, models.ErrInvalidParameter) {
		t.Errorf("zero underlying error = %v", err)
	}
}

func TestFilterOrderIndependence(t *testing.T) {
	rows := sampleRows(t)
	preds := []Predicate{
		Liquidity(100, 500),
		Moneyness(0.9, 1.1),
		Expiration(7, 30, now),
	}
	orders := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}

	var want []float64
	for i, order := range orders {
		got := rows
		for _, idx := range order {
			got = Filter(got, preds[idx])
		}
		if i == 0 {
			want = strikes(got)
			if len(want) == 0 {
				t.Fatal("filters removed every row")
			}
			continue
		}
		if !reflect.DeepEqual(strikes(got), want) {
			t.Errorf("order %v gave %v, want %v", order, strikes(got), want)
		}
	}
	if !reflect.DeepEqual(strikes(Filter(rows, And(preds...))), want) {
		t.Error("And disagrees with sequential filtering")
	}
}

func TestApplyAllDefaultsAreNoOp(t *testing.T) {
	rows := sampleRows(t)
	if got := ApplyAll(DefaultFilterParameters(), rows, now); len(got) != len(rows) {
		t.Errorf("default parameters kept %d of %d rows", len(got), len(rows))
	}
}

func TestVolatilityRatioFailsClosed(t *testing.T) {
	rows := sampleRows(t)
	for i := range rows {
		rows[i].HV30 = 0
	}
	p := DefaultFilterParameters()
	if got := ApplyAll(p, rows, now); len(got) != 0 {
		t.Errorf("default bounds kept %d rows without HV30", len(got))
	}
	rows[1].HV30 = math.NaN()
	if Volatility(p).Match(rows[1]) {
		t.Error("NaN HV30 passed the volatility filter")
	}
	p.MinHVRatio, p.MaxHVRatio = 0.8, 1.2
	if got := ApplyAll(p, rows, now); len(got) != 0 {
		t.Errorf("rows without HV30 passed an active ratio bound: %v", strikes(got))
	}

	rows[0].HV30 = rows[0].Contract.ImpliedVolatility
	if got := ApplyAll(p, rows, now); len(got) != 1 {
		t.Errorf("ratio 1.0 row should pass, got %d rows", len(got))
	}
}

func TestMalformedRangeYieldsEmpty(t *testing.T) {
	rows := sampleRows(t)
	p := DefaultFilterParameters()
	p.MinDTE, p.MaxDTE = 40, 5
	if got := ApplyAll(p, rows, now); len(got) != 0 {
		t.Errorf("min>max kept %d rows", len(got))
	}
	if err := p.Validate(); !errors.Is(err, models.ErrInvalidParameter) {
		t.Errorf("Validate error = %v, want ErrInvalidParameter", err)
	}
	if err := DefaultFilterParameters().Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func TestSpreadIsRelativeToUnderlying(t *testing.T) {
	r := Row{Contract: contract(100, models.Call, 30, 10, 10, 1.0, 1.5, 0.3), UnderlyingPrice: 100}
	if !Spread(0.005).Match(r) {
		t.Error("0.5 wide on a 100 underlying is a 0.5% spread")
	}
	if Spread(0.004).Match(r) {
		t.Error("spread above the limit matched")
	}
}

func TestAbsoluteDelta(t *testing.T) {
	put := Row{Contract: contract(95, models.Put, 30, 10, 10, 1, 1.1, 0.3), Greeks: models.Greeks{Delta: -0.25}, GreekSource: GreeksExact}
	p := DefaultFilterParameters()
	p.MinDelta, p.MaxDelta = 0.2, 0.3
	if GreekRange(p).Match(put) {
		t.Error("signed delta -0.25 matched [0.2, 0.3]")
	}
	p.AbsoluteDelta = true
	if !GreekRange(p).Match(put) {
		t.Error("|delta| 0.25 did not match [0.2, 0.3]")
	}
	put.GreekSource = GreeksUnavailable
	if GreekRange(p).Match(put) {
		t.Error("row without Greeks matched a bounded delta range")
	}
}

func TestApplyTemplateAnnotates(t *testing.T) {
	rows := sampleRows(t)
	got, err := ApplyTemplate("calendar_spread", rows, now, 0.05)
	if err != nil {
		t.Fatalf("ApplyTemplate: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("calendar template matched nothing")
	}
	for _, r := range got {
		if r.Contract.Strike < 95 || r.Contract.Strike > 105 {
			t.Errorf("strike %v outside the template's moneyness band", r.Contract.Strike)
		}
		for _, m := range []string{"vega_risk", "theta_decay_ratio", "optimal_exit_dte"} {
			if _, ok := r.Metrics[m]; !ok {
				t.Errorf("strike %v missing metric %s", r.Contract.Strike, m)
			}
		}
	}
	for _, r := range rows {
		if r.Metrics != nil {
			t.Fatal("ApplyTemplate mutated its input rows")
		}
	}

	if _, err := ApplyTemplate("butterfly", rows, now, 0.05); !errors.Is(err, models.ErrInvalidParameter) {
		t.Errorf("unknown template error = %v", err)
	}
}

func TestDefaultTemplatesAreValid(t *testing.T) {
	for name, tmpl := range DefaultTemplates() {
		if err := tmpl.Validate(); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}

func TestMergeTemplates(t *testing.T) {
	ts := DefaultTemplates()
	doc := `
templates:
  covered_call:
    filters:
      min_volume: 250
  wide_puts:
    description: Liquid puts
    filters:
      option_type: put
      min_open_interest: 1000
    risk_metrics: [premium_to_cash_required]
`
	if err := ts.Merge([]byte(doc)); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	cc := ts["covered_call"]
	if cc.Filters.MinVolume != 250 {
		t.Errorf("covered_call min_volume = %v, want 250", cc.Filters.MinVolume)
	}
	if cc.Filters.MinOpenInterest != 500 || cc.Filters.MaxDTE != 45 {
		t.Errorf("override clobbered untouched keys: %+v", cc.Filters)
	}
	wp, ok := ts["wide_puts"]
	if !ok {
		t.Fatal("new template not added")
	}
	if !math.IsInf(wp.Filters.MaxIV, 1) || wp.Filters.OptionType != "put" {
		t.Errorf("new template filters = %+v", wp.Filters)
	}

	bad := "templates:\n  covered_call:\n    risk_metrics: [sharpe]\n"
	if err := DefaultTemplates().Merge([]byte(bad)); !errors.Is(err, models.ErrInvalidParameter) {
		t.Errorf("unknown metric error = %v", err)
	}
}

func TestFilterParametersJSON(t *testing.T) {
	p := DefaultFilterParameters()
	p.MinVolume = 100
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Contains(string(data), "max_iv") {
		t.Errorf("infinite bound serialised: %s", data)
	}
	back := DefaultFilterParameters()
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back != p {
		t.Errorf("round trip = %+v, want %+v", back, p)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleChain(), 100)
	if s.Contracts != 8 || s.Expirations != 2 {
		t.Errorf("contracts/expirations = %d/%d", s.Contracts, s.Expirations)
	}
	if s.ATMCall == nil || s.ATMCall.Strike != 100 || s.ATMPut == nil || s.ATMPut.Strike != 100 {
		t.Errorf("ATM call/put = %v/%v", s.ATMCall, s.ATMPut)
	}
	// puts 300+1200+400, calls 1500+5+800+600+50
	if want := 1900.0 / 2955.0; math.Abs(s.PutCallRatio-want) > 1e-12 {
		t.Errorf("put/call ratio = %v, want %v", s.PutCallRatio, want)
	}
	if s.IVSkew <= 0 {
		t.Errorf("put IV above call IV should give positive skew, got %v", s.IVSkew)
	}
	if s.ShortTermVolume != 3005 {
		t.Errorf("short-term volume = %d, want 3005", s.ShortTermVolume)
	}
	if empty := Summarize(models.Chain{}, 100); empty.PutCallRatio != 0 || empty.ATMCall != nil {
		t.Errorf("empty summary = %+v", empty)
	}
}
