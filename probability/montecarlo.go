package probability

import (
	"fmt"
	"math"
	"sync"

	"github.com/bcdannyboy/optrisk/models"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	DefaultSimulations = 10000
	simulationWorkers  = 4
)

// Simulation draws terminal prices of a geometric Brownian motion under the
// risk-neutral drift. Paths are split over a fixed number of workers, each
// seeded from Seed, so a given Seed always yields the same result.
type Simulation struct {
	Spot  float64
	Rate  float64
	Sigma float64
	Years float64
	Paths int
	Seed  uint64
}

func (s Simulation) validate() error {
	switch {
	case math.IsNaN(s.Spot) || s.Spot <= 0:
		return fmt.Errorf("spot %v: %w", s.Spot, models.ErrInvalidParameter)
	case math.IsNaN(s.Sigma) || s.Sigma <= 0:
		return fmt.Errorf("volatility %v: %w", s.Sigma, models.ErrInvalidParameter)
	case math.IsNaN(s.Years) || s.Years < 0:
		return fmt.Errorf("years %v: %w", s.Years, models.ErrInvalidParameter)
	case s.Paths < 0:
		return fmt.Errorf("paths %d: %w", s.Paths, models.ErrInvalidParameter)
	}
	return nil
}

// ProbabilityOfProfit is the share of simulated terminal prices at which
// pnl is positive.
func (s Simulation) ProbabilityOfProfit(pnl func(terminal float64) float64) (float64, error) {
	if err := s.validate(); err != nil {
		return 0, err
	}
	paths := s.Paths
	if paths == 0 {
		paths = DefaultSimulations
	}

	drift := (s.Rate - 0.5*s.Sigma*s.Sigma) * s.Years
	diffusion := s.Sigma * math.Sqrt(s.Years)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	per := (paths + simulationWorkers - 1) / simulationWorkers
	for w := 0; w < simulationWorkers; w++ {
		n := per
		if rest := paths - w*per; rest < n {
			n = rest
		}
		if n <= 0 {
			break
		}
		wg.Add(1)
		go func(worker, n int) {
			defer wg.Done()
			z := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(s.Seed + uint64(worker))}
			count := 0
			for i := 0; i < n; i++ {
				if pnl(s.Spot*math.Exp(drift+diffusion*z.Rand())) > 0 {
					count++
				}
			}
			mu.Lock()
			won += count
			mu.Unlock()
		}(w, n)
	}
	wg.Wait()
	return float64(won) / float64(paths), nil
}
