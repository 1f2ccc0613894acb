package probability

import (
	"fmt"
	"math"

	"github.com/bcdannyboy/optrisk/models"
	"gonum.org/v1/gonum/stat"
)

// Returns converts a value series into bar-over-bar relative changes.
// Bars whose previous value is zero carry no return and are dropped.
func Returns(values []float64) ([]float64, error) {
	if len(values) < 2 {
		return nil, fmt.Errorf("%d observations, need at least 2: %w", len(values), models.ErrInsufficientData)
	}
	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		prev := values[i-1]
		if prev == 0 {
			continue
		}
		returns = append(returns, (values[i]-prev)/math.Abs(prev))
	}
	return returns, nil
}

// KellyCriterion computes
//
//	f* = p/avgLoss - (1-p)/avgWin
//
// from a return series. A zero average loss or a zero average win carries no
// usable edge signal and yields 0.
func KellyCriterion(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	var wins, losses []float64
	for _, r := range returns {
		switch {
		case r > 0:
			wins = append(wins, r)
		case r < 0:
			losses = append(losses, r)
		}
	}
	winProb := float64(len(wins)) / float64(len(returns))

	var avgWin, avgLoss float64
	if len(wins) > 0 {
		avgWin = stat.Mean(wins, nil)
	}
	if len(losses) > 0 {
		avgLoss = math.Abs(stat.Mean(losses, nil))
	}

	if avgLoss == 0 || avgWin == 0 {
		return 0
	}
	return winProb/avgLoss - (1-winProb)/avgWin
}

// RiskAdjustedReturn is mean/stddev of a return series, 0 when flat.
func RiskAdjustedReturn(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(returns, nil)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std
}
