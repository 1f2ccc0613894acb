package store

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/bcdannyboy/optrisk/logger"
	"github.com/bcdannyboy/optrisk/marketdata"
	"github.com/bcdannyboy/optrisk/models"
	"github.com/bcdannyboy/optrisk/probability"
	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"
)

const (
	hvWindow = 30
	// atmBand is the relative strike distance counted as at the money.
	atmBand = 0.02
)

// UpdateReport lists the outcome of one batch update.
type UpdateReport struct {
	Updated []string          `json:"updated"`
	Skipped []string          `json:"skipped"`
	Failed  map[string]string `json:"failed"`
}

// Err summarises the failures, or returns nil when every symbol succeeded.
func (r UpdateReport) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d symbols failed to update", len(r.Failed), len(r.Updated)+len(r.Failed))
}

// Updater refreshes stored data for symbols from a provider.
type Updater struct {
	Provider       marketdata.Provider
	Store          *Memory
	MaxExpirations int
	LookbackDays   int
	// Force ignores the watchlist refresh interval.
	Force bool
	// Progress receives the progress bar; nil means stderr.
	Progress io.Writer

	now func() time.Time
}

func NewUpdater(provider marketdata.Provider, store *Memory, maxExpirations, lookbackDays int) *Updater {
	return &Updater{
		Provider:       provider,
		Store:          store,
		MaxExpirations: maxExpirations,
		LookbackDays:   lookbackDays,
		now:            time.Now,
	}
}

// Update refreshes symbols one at a time, or the whole watchlist when
// symbols is empty. A failing symbol is recorded in the report and the
// batch carries on. Only a cancelled context stops the batch early.
func (u *Updater) Update(ctx context.Context, symbols []string) (UpdateReport, error) {
	if len(symbols) == 0 {
		for _, e := range u.Store.Watchlist() {
			symbols = append(symbols, e.Symbol)
		}
	}
	report := UpdateReport{Failed: make(map[string]string)}
	if len(symbols) == 0 {
		return report, nil
	}

	out := u.Progress
	if out == nil {
		out = os.Stderr
	}
	p := mpb.New(mpb.WithWidth(64), mpb.WithOutput(out))
	bar := p.AddBar(int64(len(symbols)),
		mpb.PrependDecorators(
			decor.Name("Updating"),
			decor.Percentage(decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.CountersNoUnit("(%d / %d)", decor.WCSyncSpace),
		),
	)
	defer p.Wait()

	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			bar.Abort(false)
			return report, err
		}
		symbol = normalize(symbol)
		now := u.now()
		if !u.Force && !u.Store.ShouldUpdate(symbol, now) {
			report.Skipped = append(report.Skipped, symbol)
			bar.Increment()
			continue
		}
		if err := u.updateSymbol(ctx, symbol, now); err != nil {
			logger.Error.Printf("Error updating data for %s: %v", symbol, err)
			report.Failed[symbol] = err.Error()
		} else {
			u.Store.MarkUpdated(symbol, now)
			report.Updated = append(report.Updated, symbol)
		}
		bar.Increment()
	}

	logger.Info.Printf("update complete: %d updated, %d skipped, %d failed", len(report.Updated), len(report.Skipped), len(report.Failed))
	return report, nil
}

func (u *Updater) updateSymbol(ctx context.Context, symbol string, now time.Time) error {
	quote, err := u.Provider.GetQuote(ctx, symbol)
	if err != nil {
		return err
	}
	chain, err := u.Provider.GetOptionsChain(ctx, symbol, u.MaxExpirations)
	if err != nil {
		return err
	}
	history, err := u.Provider.GetHistoricalPrices(ctx, symbol, u.LookbackDays)
	if err != nil {
		return err
	}

	closes := models.Closes(history)
	hv, err := probability.HistoricalVolatility(closes, hvWindow)
	if err != nil {
		return fmt.Errorf("historical volatility: %w", err)
	}
	rec := VolatilityRecord{
		Date:                 now.Truncate(24 * time.Hour),
		HistoricalVolatility: hv,
		UpdatedAt:            now,
	}
	estimators := []struct {
		name string
		est  probability.Estimator
		dst  *float64
	}{
		{"Parkinson", probability.Parkinson, &rec.Parkinson},
		{"Garman-Klass", probability.GarmanKlass, &rec.GarmanKlass},
		{"Rogers-Satchell", probability.RogersSatchell, &rec.RogersSatchell},
		{"Yang-Zhang", probability.YangZhang, &rec.YangZhang},
	}
	for _, e := range estimators {
		if v, err := e.est(history, hvWindow); err == nil {
			*e.dst = v
		} else {
			logger.Debug.Printf("%s: no %s volatility: %v", symbol, e.name, err)
		}
	}
	if v, err := probability.GARCHVolatility(closes); err == nil {
		rec.GARCH = v
	} else {
		logger.Debug.Printf("%s: no GARCH forecast: %v", symbol, err)
	}
	if iv, ok := atmVolatility(chain, quote.Price); ok {
		if rank, err := probability.IVRank(iv, probability.RollingVolatility(closes, hvWindow)); err == nil {
			rec.IVRank = rank
		} else {
			logger.Debug.Printf("%s: no IV rank: %v", symbol, err)
		}
	}

	u.Store.SaveOptions(symbol, chain)
	u.Store.SavePrices(symbol, history)
	u.Store.SaveVolatility(symbol, rec)
	logger.Verbose.Printf("%s: %d contracts, %d bars, HV30 %.4f, IV rank %.1f", symbol, chain.Len(), len(history), hv, rec.IVRank)
	return nil
}

// atmVolatility averages the implied volatility of the nearest expiration's
// contracts struck within atmBand of spot.
func atmVolatility(chain models.Chain, spot float64) (float64, bool) {
	if spot <= 0 {
		return 0, false
	}
	for _, exp := range chain.ExpirationDates() {
		sum, n := 0.0, 0
		for _, c := range chain[exp] {
			if c.ImpliedVolatility > 0 && math.Abs(c.Strike/spot-1) <= atmBand {
				sum += c.ImpliedVolatility
				n++
			}
		}
		if n > 0 {
			return sum / float64(n), true
		}
	}
	return 0, false
}
