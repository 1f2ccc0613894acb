package probability

import (
	"fmt"
	"math"
	"sort"

	"github.com/bcdannyboy/optrisk/models"
	"gonum.org/v1/gonum/stat"
)

const TradingDaysPerYear = 252

// HistoricalVolatility is the annualised standard deviation of daily log
// returns over the last window bars. window <= 0 uses the whole series.
func HistoricalVolatility(closes []float64, window int) (float64, error) {
	if window > 0 && len(closes) > window+1 {
		closes = closes[len(closes)-window-1:]
	}
	returns := logReturns(closes)
	if len(returns) < 2 {
		return 0, fmt.Errorf("%d returns, need at least 2: %w", len(returns), models.ErrInsufficientData)
	}
	return stat.StdDev(returns, nil) * math.Sqrt(TradingDaysPerYear), nil
}

// RollingVolatility returns the annualised volatility of every trailing
// window of closes, oldest first.
func RollingVolatility(closes []float64, window int) []float64 {
	returns := logReturns(closes)
	if window < 2 || len(returns) < window {
		return nil
	}
	out := make([]float64, 0, len(returns)-window+1)
	for i := window; i <= len(returns); i++ {
		out = append(out, stat.StdDev(returns[i-window:i], nil)*math.Sqrt(TradingDaysPerYear))
	}
	return out
}

func logReturns(closes []float64) []float64 {
	var returns []float64
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			continue
		}
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}
	return returns
}

// Parkinson is the annualised high/low range estimator over the last days
// bars. Bars without a range are ignored.
func Parkinson(history []models.PricePoint, days int) (float64, error) {
	bars := lastBars(history, days)
	sum, n := 0.0, 0
	for _, b := range bars {
		if b.High <= 0 || b.Low <= 0 {
			continue
		}
		sum += math.Pow(math.Log(b.High/b.Low), 2)
		n++
	}
	if n == 0 {
		return 0, fmt.Errorf("no high/low bars: %w", models.ErrInsufficientData)
	}
	return math.Sqrt(sum/(4*float64(n)*math.Log(2))) * math.Sqrt(TradingDaysPerYear), nil
}

// GarmanKlass is the annualised open/high/low/close estimator.
func GarmanKlass(history []models.PricePoint, days int) (float64, error) {
	bars := lastBars(history, days)
	sum, n := 0.0, 0
	for _, b := range bars {
		if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
			continue
		}
		hl := 0.5 * math.Pow(math.Log(b.High/b.Low), 2)
		co := (2*math.Log(2) - 1) * math.Pow(math.Log(b.Close/b.Open), 2)
		sum += hl - co
		n++
	}
	if n == 0 || sum < 0 {
		return 0, fmt.Errorf("no OHLC bars: %w", models.ErrInsufficientData)
	}
	return math.Sqrt(sum / float64(n) * TradingDaysPerYear), nil
}

func ohlc(b models.PricePoint) bool {
	return b.Open > 0 && b.High > 0 && b.Low > 0 && b.Close > 0
}

func rogersSatchellTerm(b models.PricePoint) float64 {
	return math.Log(b.High/b.Close)*math.Log(b.High/b.Open) + math.Log(b.Low/b.Close)*math.Log(b.Low/b.Open)
}

// RogersSatchell is the annualised drift-independent OHLC estimator.
func RogersSatchell(history []models.PricePoint, days int) (float64, error) {
	sum, n := 0.0, 0
	for _, b := range lastBars(history, days) {
		if !ohlc(b) {
			continue
		}
		sum += rogersSatchellTerm(b)
		n++
	}
	if n == 0 || sum < 0 {
		return 0, fmt.Errorf("no OHLC bars: %w", models.ErrInsufficientData)
	}
	return math.Sqrt(sum / float64(n) * TradingDaysPerYear), nil
}

// YangZhang combines overnight, open-to-close and Rogers-Satchell variance
// and is robust to opening jumps. It needs at least three OHLC bars.
func YangZhang(history []models.PricePoint, days int) (float64, error) {
	var bars []models.PricePoint
	for _, b := range lastBars(history, days) {
		if ohlc(b) {
			bars = append(bars, b)
		}
	}
	n := len(bars)
	if n < 3 {
		return 0, fmt.Errorf("%d OHLC bars, need at least 3: %w", n, models.ErrInsufficientData)
	}

	overnight := make([]float64, 0, n-1)
	openClose := make([]float64, 0, n)
	rs := 0.0
	for i, b := range bars {
		if i > 0 {
			overnight = append(overnight, math.Log(b.Open/bars[i-1].Close))
		}
		openClose = append(openClose, math.Log(b.Close/b.Open))
		rs += rogersSatchellTerm(b)
	}
	rs /= float64(n)

	k := 0.34 / (1.34 + float64(n+1)/float64(n-1))
	variance := stat.Variance(overnight, nil) + k*stat.Variance(openClose, nil) + (1-k)*rs
	if variance < 0 {
		return 0, fmt.Errorf("negative Yang-Zhang variance: %w", models.ErrInsufficientData)
	}
	return math.Sqrt(variance * TradingDaysPerYear), nil
}

// Estimator is a realised-volatility estimator over the last days bars.
type Estimator func(history []models.PricePoint, days int) (float64, error)

// VolatilityTerms are the lookbacks of a realised-volatility term
// structure, in trading days.
var VolatilityTerms = []struct {
	Name string
	Days int
}{
	{"1w", 5},
	{"1m", 21},
	{"3m", 63},
	{"6m", 126},
}

// TermStructure evaluates est over every VolatilityTerms lookback the
// history is long enough for.
func TermStructure(history []models.PricePoint, est Estimator) map[string]float64 {
	out := make(map[string]float64)
	for _, term := range VolatilityTerms {
		if len(history) < term.Days {
			continue
		}
		if v, err := est(history, term.Days); err == nil && v > 0 {
			out[term.Name] = v
		}
	}
	return out
}

func lastBars(history []models.PricePoint, days int) []models.PricePoint {
	if days > 0 && len(history) > days {
		return history[len(history)-days:]
	}
	return history
}

// IVRank places current within the [min, max] range of a volatility
// series, in percent.
func IVRank(current float64, series []float64) (float64, error) {
	if len(series) == 0 {
		return 0, fmt.Errorf("empty volatility series: %w", models.ErrInsufficientData)
	}
	lo, hi := series[0], series[0]
	for _, v := range series[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi == lo {
		return 50, nil
	}
	return math.Max(0, math.Min(100, (current-lo)/(hi-lo)*100)), nil
}

// IVPercentile is the share of the series strictly below current, in percent.
func IVPercentile(current float64, series []float64) (float64, error) {
	if len(series) == 0 {
		return 0, fmt.Errorf("empty volatility series: %w", models.ErrInsufficientData)
	}
	s := make([]float64, len(series))
	copy(s, series)
	sort.Float64s(s)
	below := sort.SearchFloat64s(s, current)
	return float64(below) / float64(len(s)) * 100, nil
}
