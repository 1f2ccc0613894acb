// Package marketdata defines the data collaborator the core consumes and
// the wrappers every concrete provider is used through.
package marketdata

import (
	"context"

	"github.com/bcdannyboy/optrisk/models"
)

// Provider defines the interface for market data providers
type Provider interface {
	// GetQuote fetches the current quote for a symbol
	GetQuote(ctx context.Context, symbol string) (models.Quote, error)

	// GetOptionsChain fetches up to maxExpirations expirations of the chain,
	// nearest first. maxExpirations <= 0 means all.
	GetOptionsChain(ctx context.Context, symbol string, maxExpirations int) (models.Chain, error)

	// GetHistoricalPrices fetches daily bars covering lookbackDays calendar
	// days, oldest first
	GetHistoricalPrices(ctx context.Context, symbol string, lookbackDays int) ([]models.PricePoint, error)

	// Name returns the name of the provider (e.g. "tradier")
	Name() string
}
