package risk

import (
	"errors"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/bcdannyboy/optrisk/models"
	"github.com/bcdannyboy/optrisk/pricing"
)

func leg(optionType models.OptionType, strike, qty, premium float64) models.Position {
	return models.Position{
		Contract:     models.OptionContract{Strike: strike, Type: optionType, DaysToExpiry: 30, ImpliedVolatility: 0.2},
		Quantity:     qty,
		EntryPremium: premium,
	}
}

func ironCondorLegs() []models.Position {
	// Deliberately out of canonical order.
	return []models.Position{
		leg(models.Call, 105, -1, 2.0),
		leg(models.Put, 90, 1, 1.0),
		leg(models.Call, 110, 1, 1.0),
		leg(models.Put, 95, -1, 2.0),
	}
}

func TestIronCondorMetrics(t *testing.T) {
	c := NewCalculator(0.05)
	m, err := c.MetricsForStrategy(IronCondor, ironCondorLegs(), 100, 30, 0.2)
	if err != nil {
		t.Fatalf("MetricsForStrategy: %v", err)
	}
	if math.Abs(m.MaxProfit-2.0) > 1e-12 {
		t.Errorf("max profit = %v, want 2.0", m.MaxProfit)
	}
	if math.Abs(m.MaxLoss-3.0) > 1e-12 {
		t.Errorf("max loss = %v, want 3.0", m.MaxLoss)
	}
	want := []float64{93, 107}
	if len(m.BreakEvenPoints) != 2 || m.BreakEvenPoints[0] != want[0] || m.BreakEvenPoints[1] != want[1] {
		t.Errorf("break-evens = %v, want %v", m.BreakEvenPoints, want)
	}
	if m.ProbabilityOfProfit <= 0 || m.ProbabilityOfProfit >= 1 {
		t.Errorf("probability of profit %v outside (0,1)", m.ProbabilityOfProfit)
	}
	wantEV := 2*m.ProbabilityOfProfit - 3*(1-m.ProbabilityOfProfit)
	if math.Abs(m.ExpectedValue-wantEV) > 1e-12 {
		t.Errorf("expected value = %v, want %v", m.ExpectedValue, wantEV)
	}
	if m.ThetaPerDay <= 0 {
		t.Errorf("short premium structure should collect theta, got %v", m.ThetaPerDay)
	}
	if m.VegaExposure >= 0 {
		t.Errorf("short premium structure should be short vega, got %v", m.VegaExposure)
	}
}

func TestSingleLegStrategies(t *testing.T) {
	c := NewCalculator(0.05)
	cases := []struct {
		kind       Kind
		legs       []models.Position
		maxProfit  float64
		maxLoss    float64
		breakEvens []float64
	}{
		{CoveredCall, []models.Position{leg(models.Call, 105, -1, 2)}, 7, 98, []float64{98}},
		{CashSecuredPut, []models.Position{leg(models.Put, 95, -1, 1.5)}, 1.5, 93.5, []float64{93.5}},
		{NakedPut, []models.Position{leg(models.Put, 95, -1, 1.5)}, 1.5, 93.5, []float64{93.5}},
		{BullPutSpread, []models.Position{leg(models.Put, 90, 1, 0.5), leg(models.Put, 95, -1, 1.5)}, 1, 4, []float64{94}},
		{BearCallSpread, []models.Position{leg(models.Call, 105, -1, 1.5), leg(models.Call, 110, 1, 0.5)}, 1, 4, []float64{106}},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			m, err := c.MetricsForStrategy(tc.kind, tc.legs, 100, 30, 0.2)
			if err != nil {
				t.Fatalf("MetricsForStrategy: %v", err)
			}
			if math.Abs(m.MaxProfit-tc.maxProfit) > 1e-12 || math.Abs(m.MaxLoss-tc.maxLoss) > 1e-12 {
				t.Errorf("profit/loss = %v/%v, want %v/%v", m.MaxProfit, m.MaxLoss, tc.maxProfit, tc.maxLoss)
			}
			if len(m.BreakEvenPoints) != len(tc.breakEvens) || math.Abs(m.BreakEvenPoints[0]-tc.breakEvens[0]) > 1e-12 {
				t.Errorf("break-evens = %v, want %v", m.BreakEvenPoints, tc.breakEvens)
			}
			if m.Strategy != string(tc.kind) {
				t.Errorf("strategy = %q", m.Strategy)
			}
		})
	}
}

func TestNakedCallIsUnbounded(t *testing.T) {
	c := NewCalculator(0.05)
	m, err := c.MetricsForStrategy(NakedCall, []models.Position{leg(models.Call, 110, -1, 1)}, 100, 30, 0.2)
	if err != nil {
		t.Fatalf("MetricsForStrategy: %v", err)
	}
	if !m.IsUnbounded() {
		t.Errorf("max loss = %v, want unbounded sentinel", m.MaxLoss)
	}
	T := 30 / pricing.DaysPerYear
	fair := pricing.MustPrice(100, 110, T, 0.05, 0.2, models.Call)
	if want := 1 - fair*math.Exp(0.05*T); math.Abs(m.ExpectedValue-want) > 1e-12 {
		t.Errorf("expected value = %v, want %v", m.ExpectedValue, want)
	}
	if m.RiskRewardRatio != 0 {
		t.Errorf("risk/reward = %v, want 0 for unbounded loss", m.RiskRewardRatio)
	}
}

func TestCalendarSpreadBreakEvens(t *testing.T) {
	front := time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC)
	short := leg(models.Call, 100, -1, 2.0)
	short.Contract.Expiration = front
	long := leg(models.Call, 100, 1, 3.0)
	long.Contract.Expiration = front.AddDate(0, 0, 35)

	c := NewCalculator(0.05)
	m, err := c.MetricsForStrategy(CalendarSpread, []models.Position{long, short}, 100, 30, 0.2)
	if err != nil {
		t.Fatalf("MetricsForStrategy: %v", err)
	}
	if m.MaxLoss != 1.0 {
		t.Errorf("max loss = %v, want the 1.0 debit", m.MaxLoss)
	}
	if m.MaxProfit <= 0 {
		t.Fatalf("max profit = %v, want positive", m.MaxProfit)
	}
	if len(m.BreakEvenPoints) != 2 {
		t.Fatalf("break-evens = %v, want two", m.BreakEvenPoints)
	}
	lo, hi := m.BreakEvenPoints[0], m.BreakEvenPoints[1]
	if !(lo < 100 && 100 < hi) {
		t.Errorf("break-evens %v do not bracket the strike", m.BreakEvenPoints)
	}
	gap := 35 / pricing.DaysPerYear
	for _, be := range m.BreakEvenPoints {
		v := pricing.MustPrice(be, 100, gap, 0.05, 0.2, models.Call) - pricing.Intrinsic(be, 100, models.Call) - 1.0
		if math.Abs(v) > 1e-6 {
			t.Errorf("value at break-even %v = %v, want 0", be, v)
		}
	}

	credit := long
	credit.EntryPremium = 1.0
	_, err = c.MetricsForStrategy(CalendarSpread, []models.Position{credit, short}, 100, 30, 0.2)
	if !errors.Is(err, models.ErrInvalidParameter) {
		t.Errorf("credit calendar error = %v, want ErrInvalidParameter", err)
	}
}

func TestUnsupportedStrategy(t *testing.T) {
	_, err := ParseKind("butterfly")
	if !errors.Is(err, ErrUnsupportedStrategy) || !errors.Is(err, models.ErrInvalidParameter) {
		t.Errorf("ParseKind(butterfly) error = %v", err)
	}
	k, err := ParseKind(" Iron_Condor ")
	if err != nil || k != IronCondor {
		t.Errorf("ParseKind(Iron_Condor) = %v, %v", k, err)
	}

	c := NewCalculator(0.05)
	if _, err := c.MetricsForStrategy(Kind("strangle"), ironCondorLegs(), 100, 30, 0.2); !errors.Is(err, ErrUnsupportedStrategy) {
		t.Errorf("unknown kind error = %v", err)
	}
}

func TestLegShapeIsValidated(t *testing.T) {
	c := NewCalculator(0.05)
	cases := []struct {
		name string
		kind Kind
		legs []models.Position
	}{
		{"condor with three legs", IronCondor, ironCondorLegs()[:3]},
		{"covered call with long call", CoveredCall, []models.Position{leg(models.Call, 105, 1, 2)}},
		{"bull put inverted", BullPutSpread, []models.Position{leg(models.Put, 95, 1, 1.5), leg(models.Put, 90, -1, 0.5)}},
		{"ratio vertical", BearCallSpread, []models.Position{leg(models.Call, 105, -2, 1.5), leg(models.Call, 110, 1, 0.5)}},
		{"calendar without dates", CalendarSpread, []models.Position{leg(models.Call, 100, -1, 2), leg(models.Call, 100, 1, 3)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := c.MetricsForStrategy(tc.kind, tc.legs, 100, 30, 0.2); !errors.Is(err, models.ErrInvalidParameter) {
				t.Errorf("error = %v, want ErrInvalidParameter", err)
			}
		})
	}

	if _, err := c.MetricsForStrategy(IronCondor, ironCondorLegs(), 100, 30, 0); !errors.Is(err, models.ErrInvalidParameter) {
		t.Errorf("zero sigma error = %v", err)
	}
}

func TestPositionSize(t *testing.T) {
	s, err := PositionSize(IronCondor, -50, 0.4, 100000, 0.01, 100)
	if err != nil {
		t.Fatalf("PositionSize: %v", err)
	}
	if s.RiskBasedContracts != 20 || s.KellyBasedContracts != 4 || s.FinalContracts != 3 {
		t.Errorf("sizing = %+v, want 20/4/3", s)
	}
	if s.MaxCapitalUsage != 30000 {
		t.Errorf("max capital usage = %v, want 30000", s.MaxCapitalUsage)
	}

	s, err = PositionSize(CoveredCall, -50, -0.3, 100000, 0.01, 100)
	if err != nil {
		t.Fatalf("PositionSize: %v", err)
	}
	if s.FinalContracts != 0 {
		t.Errorf("negative Kelly should size to zero, got %d", s.FinalContracts)
	}

	if _, err := PositionSize(IronCondor, 0, 0.4, 100000, 0.01, 100); !errors.Is(err, models.ErrInsufficientData) {
		t.Errorf("zero VaR error = %v, want ErrInsufficientData", err)
	}

	if NakedCall.Multiplier() >= CoveredCall.Multiplier() || NakedPut.Multiplier() >= CashSecuredPut.Multiplier() {
		t.Error("undefined-risk strategies must carry a smaller multiplier")
	}
}

func history(closes ...float64) []models.PricePoint {
	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	out := make([]models.PricePoint, len(closes))
	for i, c := range closes {
		out[i] = models.PricePoint{Date: start.AddDate(0, 0, i), Close: c}
	}
	return out
}

func TestPortfolio(t *testing.T) {
	c := NewCalculator(0.05)
	closes := make([]float64, 0, 60)
	for i := 0; i < 60; i++ {
		closes = append(closes, 100+8*math.Sin(float64(i)/4))
	}
	in := PortfolioInput{
		Strategy:        CashSecuredPut,
		Positions:       []models.Position{leg(models.Put, 95, -1, 1.5)},
		UnderlyingPrice: 100,
		Volatility:      0.25,
		History:         history(closes...),
		AccountSize:     50000,
	}
	pm, err := c.Portfolio(in)
	if err != nil {
		t.Fatalf("Portfolio: %v", err)
	}
	if pm.ValueAtRisk99 > pm.ValueAtRisk95 {
		t.Errorf("VaR99 %v should be at least as extreme as VaR95 %v", pm.ValueAtRisk99, pm.ValueAtRisk95)
	}
	if pm.ExpectedShortfall > pm.ValueAtRisk95 {
		t.Errorf("expected shortfall %v above VaR95 %v", pm.ExpectedShortfall, pm.ValueAtRisk95)
	}
	if pm.GammaExposure >= 0 {
		t.Errorf("short put gamma exposure = %v, want negative", pm.GammaExposure)
	}
	if pm.Exits.ProfitTarget != 1.5*0.75 {
		t.Errorf("profit target = %v", pm.Exits.ProfitTarget)
	}
	// Closed form P(S_T > 93.5) is about 0.83.
	if pm.SimulatedPoP < 0.78 || pm.SimulatedPoP > 0.88 {
		t.Errorf("simulated PoP = %v, want about 0.83", pm.SimulatedPoP)
	}
	if pm.Exits.StopLoss != pm.ValueAtRisk99 {
		t.Errorf("stop loss = %v, want VaR99", pm.Exits.StopLoss)
	}

	if pm.Sizing == nil {
		t.Fatal("no sizing for a funded account")
	}
	budget := in.AccountSize * DefaultRiskFraction
	if want := math.Abs(pm.ValueAtRisk95) * ContractSize; math.Abs(pm.Sizing.RiskPerContract-want) > 1e-9 {
		t.Errorf("risk per contract = %v, want %v", pm.Sizing.RiskPerContract, want)
	}
	if risked := float64(pm.Sizing.RiskBasedContracts) * pm.Sizing.RiskPerContract; risked > budget || risked < budget-pm.Sizing.RiskPerContract {
		t.Errorf("%d contracts risk $%.2f against a $%.2f budget", pm.Sizing.RiskBasedContracts, risked, budget)
	}

	in.History = history(100)
	if _, err := c.Portfolio(in); !errors.Is(err, models.ErrInsufficientData) {
		t.Errorf("single close error = %v, want ErrInsufficientData", err)
	}
}

func TestPnLAtExpiry(t *testing.T) {
	c := NewCalculator(0.05)
	legs := []models.Position{leg(models.Put, 100, 1, 3), leg(models.Put, 95, -1, 1)}
	if h := Horizon(legs); math.Abs(h-30.0/365) > 1e-12 {
		t.Fatalf("Horizon = %v", h)
	}
	tests := []struct{ spot, want float64 }{
		{110, -2},
		{97, 1},
		{80, 3},
	}
	for _, tt := range tests {
		got, err := c.PnLAt(legs, tt.spot, Horizon(legs), 0.2)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("PnLAt(%v) = %v, want %v", tt.spot, got, tt.want)
		}
	}
}

func TestIdentifyVerticalSpreads(t *testing.T) {
	exp := "2026-01-16"
	put := func(strike, bid, ask float64) models.OptionContract {
		return models.OptionContract{
			Strike: strike, Type: models.Put, Bid: bid, Ask: ask, Volume: 100, OpenInterest: 500,
			ImpliedVolatility: 0.25, DaysToExpiry: 30,
		}
	}
	chain := models.Chain{exp: {
		put(85, 0.30, 0.35),
		put(90, 0.70, 0.80),
		put(95, 1.60, 1.70),
		put(100, 3.20, 3.30),
		{Strike: 100, Type: models.Call, Bid: 3, Ask: 3.1, ImpliedVolatility: 0.25, DaysToExpiry: 30},
	}}

	c := NewCalculator(0.05)
	spreads := c.IdentifyVerticalSpreads(chain, 100, BullPutSpread, 0.1)
	if len(spreads) == 0 {
		t.Fatal("no spreads identified")
	}
	for _, s := range spreads {
		if s.Short.Strike <= s.Long.Strike || s.Short.Type != models.Put {
			t.Errorf("bad pairing short %v long %v", s.Short.Strike, s.Long.Strike)
		}
		if s.ReturnOnRisk < 0.1 {
			t.Errorf("return on risk %v below minimum", s.ReturnOnRisk)
		}
	}
	if !sort.SliceIsSorted(spreads, func(i, j int) bool {
		return spreads[i].Metrics.ProbabilityOfProfit > spreads[j].Metrics.ProbabilityOfProfit
	}) {
		t.Error("spreads not ordered by probability of profit")
	}

	if got := c.IdentifyVerticalSpreads(chain, 100, IronCondor, 0); got != nil {
		t.Errorf("non-vertical kind returned %d spreads", len(got))
	}
}
