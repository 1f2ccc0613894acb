package risk

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/bcdannyboy/optrisk/models"
)

// ErrUnsupportedStrategy is returned for strategy names outside the closed set.
var ErrUnsupportedStrategy = fmt.Errorf("unsupported strategy: %w", models.ErrInvalidParameter)

type Kind string

const (
	CoveredCall    Kind = "covered_call"
	CashSecuredPut Kind = "cash_secured_put"
	NakedPut       Kind = "naked_put"
	NakedCall      Kind = "naked_call"
	BullPutSpread  Kind = "bull_put_spread"
	BearCallSpread Kind = "bear_call_spread"
	IronCondor     Kind = "iron_condor"
	CalendarSpread Kind = "calendar_spread"
)

// strategy is implemented once per Kind. shape validates the legs and
// returns them in canonical order; evaluate applies the variant's formulas.
type strategy interface {
	shape(legs []models.Position) ([]models.Position, error)
	evaluate(c *Calculator, legs []models.Position, S, T, sigma float64) (models.RiskMetrics, error)
	multiplier() float64
}

var variants = map[Kind]strategy{
	CoveredCall:    coveredCall{},
	CashSecuredPut: shortPut{kind: CashSecuredPut, sizing: 0.9},
	NakedPut:       shortPut{kind: NakedPut, sizing: 0.5},
	NakedCall:      nakedCall{},
	BullPutSpread:  vertical{optionType: models.Put},
	BearCallSpread: vertical{optionType: models.Call},
	IronCondor:     ironCondor{},
	CalendarSpread: calendar{},
}

func Kinds() []Kind {
	kinds := make([]Kind, 0, len(variants))
	for k := range variants {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := variants[k]; !ok {
		return "", fmt.Errorf("%q: %w", s, ErrUnsupportedStrategy)
	}
	return k, nil
}

// Multiplier is the position-sizing haircut for a strategy kind.
func (k Kind) Multiplier() float64 {
	if v, ok := variants[k]; ok {
		return v.multiplier()
	}
	return 0
}

func legError(kind Kind, format string, args ...interface{}) error {
	return fmt.Errorf("%s legs: %s: %w", kind, fmt.Sprintf(format, args...), models.ErrInvalidParameter)
}

func sameSize(kind Kind, legs []models.Position) error {
	for _, l := range legs {
		if l.Quantity == 0 || math.IsNaN(l.Quantity) {
			return legError(kind, "zero quantity")
		}
		if l.EntryPremium < 0 {
			return legError(kind, "negative premium %.4f", l.EntryPremium)
		}
		if math.Abs(l.Quantity) != math.Abs(legs[0].Quantity) {
			return legError(kind, "ratio structures are not supported")
		}
	}
	return nil
}

func split(legs []models.Position, optionType models.OptionType) (long, short []models.Position) {
	for _, l := range legs {
		if l.Contract.Type != optionType {
			continue
		}
		if l.Long() {
			long = append(long, l)
		} else {
			short = append(short, l)
		}
	}
	return long, short
}

type coveredCall struct{}

func (coveredCall) multiplier() float64 { return 1.0 }

func (coveredCall) shape(legs []models.Position) ([]models.Position, error) {
	if len(legs) != 1 || !legs[0].Short() || legs[0].Contract.Type != models.Call {
		return nil, legError(CoveredCall, "want exactly one short call")
	}
	return legs, sameSize(CoveredCall, legs)
}

// The underlying is assumed bought at S alongside the short call.
func (coveredCall) evaluate(c *Calculator, legs []models.Position, S, T, sigma float64) (models.RiskMetrics, error) {
	call := legs[0]
	premium := call.EntryPremium
	breakEven := S - premium
	pop, err := c.probAbove(S, breakEven, T, sigma)
	if err != nil {
		return models.RiskMetrics{}, err
	}
	return bounded(CoveredCall, (call.Contract.Strike-S)+premium, S-premium, pop, breakEven), nil
}

type shortPut struct {
	kind   Kind
	sizing float64
}

func (s shortPut) multiplier() float64 { return s.sizing }

func (s shortPut) shape(legs []models.Position) ([]models.Position, error) {
	if len(legs) != 1 || !legs[0].Short() || legs[0].Contract.Type != models.Put {
		return nil, legError(s.kind, "want exactly one short put")
	}
	return legs, sameSize(s.kind, legs)
}

// Loss is capped at strike - premium by the underlying's zero floor.
func (s shortPut) evaluate(c *Calculator, legs []models.Position, S, T, sigma float64) (models.RiskMetrics, error) {
	put := legs[0]
	premium := put.EntryPremium
	breakEven := put.Contract.Strike - premium
	pop, err := c.probAbove(S, breakEven, T, sigma)
	if err != nil {
		return models.RiskMetrics{}, err
	}
	return bounded(s.kind, premium, put.Contract.Strike-premium, pop, breakEven), nil
}

type nakedCall struct{}

func (nakedCall) multiplier() float64 { return 0.25 }

func (nakedCall) shape(legs []models.Position) ([]models.Position, error) {
	if len(legs) != 1 || !legs[0].Short() || legs[0].Contract.Type != models.Call {
		return nil, legError(NakedCall, "want exactly one short call")
	}
	return legs, sameSize(NakedCall, legs)
}

// Max loss is unbounded; expected value is the premium less the
// undiscounted risk-neutral expectation of the call payoff.
func (nakedCall) evaluate(c *Calculator, legs []models.Position, S, T, sigma float64) (models.RiskMetrics, error) {
	call := legs[0]
	premium := call.EntryPremium
	breakEven := call.Contract.Strike + premium
	pop, err := c.probBelow(S, breakEven, T, sigma)
	if err != nil {
		return models.RiskMetrics{}, err
	}
	fair, err := c.price(S, call.Contract.Strike, T, sigma, models.Call)
	if err != nil {
		return models.RiskMetrics{}, err
	}
	return models.RiskMetrics{
		Strategy:            string(NakedCall),
		ProbabilityOfProfit: pop,
		MaxProfit:           premium,
		MaxLoss:             models.UnboundedLoss,
		BreakEvenPoints:     []float64{breakEven},
		ExpectedValue:       premium - fair*math.Exp(c.RiskFreeRate*T),
	}, nil
}

type vertical struct{ optionType models.OptionType }

func (v vertical) kind() Kind {
	if v.optionType == models.Put {
		return BullPutSpread
	}
	return BearCallSpread
}

func (vertical) multiplier() float64 { return 0.9 }

// shape returns [short, long].
func (v vertical) shape(legs []models.Position) ([]models.Position, error) {
	kind := v.kind()
	if len(legs) != 2 {
		return nil, legError(kind, "want two legs, got %d", len(legs))
	}
	long, short := split(legs, v.optionType)
	if len(long) != 1 || len(short) != 1 {
		return nil, legError(kind, "want one short and one long %s", v.optionType)
	}
	ks, kl := short[0].Contract.Strike, long[0].Contract.Strike
	if v.optionType == models.Put && ks <= kl {
		return nil, legError(kind, "short put strike %.2f must be above long put strike %.2f", ks, kl)
	}
	if v.optionType == models.Call && ks >= kl {
		return nil, legError(kind, "short call strike %.2f must be below long call strike %.2f", ks, kl)
	}
	out := []models.Position{short[0], long[0]}
	return out, sameSize(kind, out)
}

func (v vertical) evaluate(c *Calculator, legs []models.Position, S, T, sigma float64) (models.RiskMetrics, error) {
	short, long := legs[0], legs[1]
	credit := short.EntryPremium - long.EntryPremium
	width := math.Abs(short.Contract.Strike - long.Contract.Strike)

	var breakEven, pop float64
	var err error
	if v.optionType == models.Put {
		breakEven = short.Contract.Strike - credit
		pop, err = c.probAbove(S, breakEven, T, sigma)
	} else {
		breakEven = short.Contract.Strike + credit
		pop, err = c.probBelow(S, breakEven, T, sigma)
	}
	if err != nil {
		return models.RiskMetrics{}, err
	}
	return bounded(v.kind(), credit, width-credit, pop, breakEven), nil
}

type ironCondor struct{}

func (ironCondor) multiplier() float64 { return 0.8 }

// shape returns [long put, short put, short call, long call].
func (ironCondor) shape(legs []models.Position) ([]models.Position, error) {
	if len(legs) != 4 {
		return nil, legError(IronCondor, "want four legs, got %d", len(legs))
	}
	longPuts, shortPuts := split(legs, models.Put)
	longCalls, shortCalls := split(legs, models.Call)
	if len(longPuts) != 1 || len(shortPuts) != 1 || len(longCalls) != 1 || len(shortCalls) != 1 {
		return nil, legError(IronCondor, "want one long and one short put and call")
	}
	lp, sp, sc, lc := longPuts[0], shortPuts[0], shortCalls[0], longCalls[0]
	if !(lp.Contract.Strike < sp.Contract.Strike && sp.Contract.Strike <= sc.Contract.Strike && sc.Contract.Strike < lc.Contract.Strike) {
		return nil, legError(IronCondor, "strikes %.2f/%.2f/%.2f/%.2f are not ordered long put < short put <= short call < long call",
			lp.Contract.Strike, sp.Contract.Strike, sc.Contract.Strike, lc.Contract.Strike)
	}
	out := []models.Position{lp, sp, sc, lc}
	return out, sameSize(IronCondor, out)
}

func (ironCondor) evaluate(c *Calculator, legs []models.Position, S, T, sigma float64) (models.RiskMetrics, error) {
	lp, sp, sc, lc := legs[0], legs[1], legs[2], legs[3]
	netCredit := sp.EntryPremium + sc.EntryPremium - lp.EntryPremium - lc.EntryPremium
	putWing := sp.Contract.Strike - lp.Contract.Strike
	callWing := lc.Contract.Strike - sc.Contract.Strike

	lower := sp.Contract.Strike - netCredit
	upper := sc.Contract.Strike + netCredit
	pop, err := c.probBetween(S, lower, upper, T, sigma)
	if err != nil {
		return models.RiskMetrics{}, err
	}
	return bounded(IronCondor, netCredit, math.Max(putWing, callWing)-netCredit, pop, lower, upper), nil
}

func bounded(kind Kind, maxProfit, maxLoss, pop float64, breakEvens ...float64) models.RiskMetrics {
	m := models.RiskMetrics{
		Strategy:            string(kind),
		ProbabilityOfProfit: pop,
		MaxProfit:           maxProfit,
		MaxLoss:             maxLoss,
		BreakEvenPoints:     breakEvens,
		ExpectedValue:       maxProfit*pop - maxLoss*(1-pop),
	}
	if maxLoss != 0 {
		m.RiskRewardRatio = math.Abs(maxProfit / maxLoss)
	}
	return m
}
