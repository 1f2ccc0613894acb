package probability

import (
	"fmt"
	"math"
	"sort"

	"github.com/bcdannyboy/optrisk/models"
	"gonum.org/v1/gonum/stat"
)

func checkSample(values []float64, confidence float64) error {
	if len(values) < 2 {
		return fmt.Errorf("%d observations, need at least 2: %w", len(values), models.ErrInsufficientData)
	}
	if !(confidence > 0 && confidence < 1) {
		return fmt.Errorf("confidence %v: %w", confidence, models.ErrInvalidParameter)
	}
	return nil
}

func sorted(values []float64) []float64 {
	s := make([]float64, len(values))
	copy(s, values)
	sort.Float64s(s)
	return s
}

// ValueAtRisk returns the (1 - confidence) percentile of a P&L sample,
// interpolating linearly between the two nearest order statistics. Losses
// are negative, so VaR(0.99) <= VaR(0.95).
func ValueAtRisk(pnl []float64, confidence float64) (float64, error) {
	if err := checkSample(pnl, confidence); err != nil {
		return 0, err
	}
	// 1-0.95 is 0.05000000000000004 in binary; snap it back.
	p := math.Round((1-confidence)*1e9) / 1e9
	return percentile(sorted(pnl), p), nil
}

// percentile places p at rank p*(n-1) of the sorted sample.
func percentile(s []float64, p float64) float64 {
	h := p * float64(len(s)-1)
	lo := math.Floor(h)
	i := int(lo)
	if i+1 >= len(s) {
		return s[len(s)-1]
	}
	return s[i] + (h-lo)*(s[i+1]-s[i])
}

// ExpectedShortfall is the mean of the P&L values strictly below VaR. When
// nothing falls below it, VaR itself is returned.
func ExpectedShortfall(pnl []float64, confidence float64) (float64, error) {
	v, err := ValueAtRisk(pnl, confidence)
	if err != nil {
		return 0, err
	}
	var tail []float64
	for _, x := range pnl {
		if x < v {
			tail = append(tail, x)
		}
	}
	if len(tail) == 0 {
		return v, nil
	}
	return stat.Mean(tail, nil), nil
}
