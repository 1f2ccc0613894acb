package probability

import (
	"errors"
	"math"
	"testing"

	"github.com/bcdannyboy/optrisk/models"
)

func TestSimulationMatchesClosedForm(t *testing.T) {
	sim := Simulation{Spot: 100, Rate: 0.05, Sigma: 0.25, Years: 0.5, Paths: 40000, Seed: 42}
	got, err := sim.ProbabilityOfProfit(func(st float64) float64 { return st - 105 })
	if err != nil {
		t.Fatal(err)
	}
	want, err := ProbAbove(100, 105, 0.5, 0.05, 0.25)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-want) > 0.02 {
		t.Errorf("simulated P(S>105) = %.4f, closed form %.4f", got, want)
	}

	again, _ := sim.ProbabilityOfProfit(func(st float64) float64 { return st - 105 })
	if again != got {
		t.Errorf("same seed gave %v then %v", got, again)
	}
}

func TestSimulationRejectsBadInput(t *testing.T) {
	for _, sim := range []Simulation{
		{Spot: 0, Sigma: 0.2, Years: 1},
		{Spot: 100, Sigma: 0, Years: 1},
		{Spot: 100, Sigma: 0.2, Years: -1},
		{Spot: 100, Sigma: 0.2, Years: 1, Paths: -5},
	} {
		if _, err := sim.ProbabilityOfProfit(func(float64) float64 { return 1 }); !errors.Is(err, models.ErrInvalidParameter) {
			t.Errorf("%+v: err = %v, want ErrInvalidParameter", sim, err)
		}
	}
}
