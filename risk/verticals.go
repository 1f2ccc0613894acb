package risk

import (
	"runtime"
	"sort"
	"sync"

	"github.com/bcdannyboy/optrisk/models"
)

const jobBatchSize = 1000

// VerticalSpread is a scored bull-put or bear-call candidate.
type VerticalSpread struct {
	Kind         Kind                  `json:"kind"`
	Expiration   string                `json:"expiration"`
	Short        models.OptionContract `json:"short"`
	Long         models.OptionContract `json:"long"`
	Credit       float64               `json:"credit"`
	ReturnOnRisk float64               `json:"return_on_risk"`
	Metrics      models.RiskMetrics    `json:"metrics"`
}

type spreadJob struct {
	expiration  string
	short, long models.OptionContract
}

// IdentifyVerticalSpreads pairs every two same-type contracts of an
// expiration into a credit vertical (short the strike nearer the money),
// keeps those whose return on risk is at least minReturnOnRisk and scores
// them with MetricsForStrategy at the short leg's implied volatility.
// Results are ordered by probability of profit, highest first.
func (c *Calculator) IdentifyVerticalSpreads(chain models.Chain, S float64, kind Kind, minReturnOnRisk float64) []VerticalSpread {
	optionType := models.Put
	switch kind {
	case BullPutSpread:
	case BearCallSpread:
		optionType = models.Call
	default:
		return nil
	}

	var jobs []spreadJob
	for _, exp := range chain.ExpirationDates() {
		var options []models.OptionContract
		for _, o := range chain[exp] {
			if o.Type == optionType && o.Valid() {
				options = append(options, o)
			}
		}
		for i := 0; i < len(options)-1; i++ {
			for j := i + 1; j < len(options); j++ {
				short, long := options[i], options[j]
				if (optionType == models.Put) != (short.Strike > long.Strike) {
					short, long = long, short
				}
				if short.Strike == long.Strike {
					continue
				}
				jobs = append(jobs, spreadJob{expiration: exp, short: short, long: long})
			}
		}
	}
	if len(jobs) == 0 {
		return nil
	}

	spreads := c.processSpreadJobs(jobs, kind, S, minReturnOnRisk, runtime.NumCPU())
	sort.SliceStable(spreads, func(i, j int) bool {
		if spreads[i].Metrics.ProbabilityOfProfit != spreads[j].Metrics.ProbabilityOfProfit {
			return spreads[i].Metrics.ProbabilityOfProfit > spreads[j].Metrics.ProbabilityOfProfit
		}
		if spreads[i].Expiration != spreads[j].Expiration {
			return spreads[i].Expiration < spreads[j].Expiration
		}
		return spreads[i].Short.Strike < spreads[j].Short.Strike
	})
	return spreads
}

func (c *Calculator) processSpreadJobs(jobs []spreadJob, kind Kind, S, minReturnOnRisk float64, numWorkers int) []VerticalSpread {
	var wg sync.WaitGroup
	jobChan := make(chan spreadJob, jobBatchSize)
	resultChan := make(chan VerticalSpread, jobBatchSize)

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobChan {
				if spread, ok := c.scoreSpread(j, kind, S, minReturnOnRisk); ok {
					resultChan <- spread
				}
			}
		}()
	}

	go func() {
		for _, j := range jobs {
			jobChan <- j
		}
		close(jobChan)
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	var spreads []VerticalSpread
	for s := range resultChan {
		spreads = append(spreads, s)
	}
	return spreads
}

func (c *Calculator) scoreSpread(j spreadJob, kind Kind, S, minReturnOnRisk float64) (VerticalSpread, bool) {
	credit := j.short.Bid - j.long.Ask
	width := j.short.Strike - j.long.Strike
	if width < 0 {
		width = -width
	}
	maxRisk := width - credit
	if credit <= 0 || maxRisk <= 0 {
		return VerticalSpread{}, false
	}
	ror := credit / maxRisk
	if ror < minReturnOnRisk {
		return VerticalSpread{}, false
	}

	legs := []models.Position{
		{Contract: j.short, Quantity: -1, EntryPremium: j.short.Bid},
		{Contract: j.long, Quantity: 1, EntryPremium: j.long.Ask},
	}
	m, err := c.MetricsForStrategy(kind, legs, S, float64(j.short.DaysToExpiry), j.short.ImpliedVolatility)
	if err != nil {
		return VerticalSpread{}, false
	}
	return VerticalSpread{
		Kind:         kind,
		Expiration:   j.expiration,
		Short:        j.short,
		Long:         j.long,
		Credit:       credit,
		ReturnOnRisk: ror,
		Metrics:      m,
	}, true
}
