// Package tradier implements marketdata.Provider over the Tradier REST API.
package tradier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/bcdannyboy/optrisk/models"
	"github.com/xhhuango/json"
)

const DefaultBaseURL = "https://api.tradier.com/v1"

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client

	now func() time.Time
}

func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		now:     time.Now,
	}
}

func (c *Client) Name() string {
	return "tradier"
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.BaseURL + path + "?" + query.Encode()
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	r.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	r.Header.Add("Accept", "application/json")

	resp, err := c.HTTP.Do(r)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	responseData, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response data: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(responseData)))
	}
	if err := json.Unmarshal(responseData, out); err != nil {
		return fmt.Errorf("failed to unmarshal response data: %w", err)
	}
	return nil
}

// GetQuote prices the symbol at its last trade, or the mid when it has not
// traded. Tradier quotes carry neither market cap nor beta, so both stay zero.
func (c *Client) GetQuote(ctx context.Context, symbol string) (models.Quote, error) {
	quotes := &Quotes{}
	if err := c.get(ctx, "/markets/quotes", url.Values{"symbols": {symbol}}, quotes); err != nil {
		return models.Quote{}, err
	}
	for _, q := range quotes.Quotes.Quote {
		if !strings.EqualFold(q.Symbol, symbol) {
			continue
		}
		price := (q.Bid + q.Ask) / 2
		if q.Last != nil && *q.Last > 0 {
			price = *q.Last
		}
		return models.Quote{Symbol: q.Symbol, Price: price, Volume: q.Volume}, nil
	}
	return models.Quote{}, fmt.Errorf("symbol %s not found", symbol)
}

// GetOptionsChain fetches the expirations list, then one chain request per
// expiration, nearest first.
func (c *Client) GetOptionsChain(ctx context.Context, symbol string, maxExpirations int) (models.Chain, error) {
	expirations := &OptionExpirations{}
	if err := c.get(ctx, "/markets/options/expirations", url.Values{"symbol": {symbol}, "includeAllRoots": {"true"}}, expirations); err != nil {
		return nil, err
	}
	if expirations.Expirations == nil || len(expirations.Expirations.Date) == 0 {
		return nil, fmt.Errorf("no option expirations for %s", symbol)
	}
	dates := append([]string(nil), expirations.Expirations.Date...)
	sort.Strings(dates)
	if maxExpirations > 0 && len(dates) > maxExpirations {
		dates = dates[:maxExpirations]
	}

	today := c.now()
	chain := make(models.Chain, len(dates))
	for _, expDate := range dates {
		expirationTime, err := time.Parse(models.DateLayout, expDate)
		if err != nil {
			return nil, fmt.Errorf("failed to parse expiration date: %w", err)
		}
		// options stop trading at the close, 16:00 New York
		expirationTime = expirationTime.Add(20 * time.Hour)

		optionChain := &OptionChain{}
		q := url.Values{"symbol": {symbol}, "expiration": {expDate}, "greeks": {"true"}}
		if err := c.get(ctx, "/markets/options/chains", q, optionChain); err != nil {
			return nil, err
		}
		if optionChain.Options == nil {
			continue
		}
		for _, o := range optionChain.Options.Option {
			chain[expDate] = append(chain[expDate], convertOption(o, expirationTime, today))
		}
	}
	return chain, nil
}

func convertOption(o Option, expiration, today time.Time) models.OptionContract {
	optionType, _ := models.ParseOptionType(o.OptionType)
	years := expiration.Sub(today).Hours() / 24 / 365
	if years < 0 {
		years = 0
	}
	c := models.OptionContract{
		Symbol:       o.Symbol,
		Underlying:   o.Underlying,
		Strike:       o.Strike,
		Expiration:   expiration,
		TimeToExpiry: years,
		DaysToExpiry: int(expiration.Sub(today).Hours() / 24),
		Type:         optionType,
		Bid:          o.Bid,
		Ask:          o.Ask,
		Volume:       o.Volume,
		OpenInterest: o.OpenInterest,
	}
	if o.Last != nil {
		c.Last = *o.Last
	}
	if g := o.Greeks; g != nil {
		c.Delta, c.Gamma, c.Theta, c.Vega = g.Delta, g.Gamma, g.Theta, g.Vega
		c.ImpliedVolatility = g.MidIv
		if c.ImpliedVolatility <= 0 {
			c.ImpliedVolatility = g.SmvVol
		}
	}
	return c
}

func (c *Client) GetHistoricalPrices(ctx context.Context, symbol string, lookbackDays int) ([]models.PricePoint, error) {
	end := c.now()
	start := end.AddDate(0, 0, -lookbackDays)
	q := url.Values{
		"symbol":   {symbol},
		"interval": {"daily"},
		"start":    {start.Format(models.DateLayout)},
		"end":      {end.Format(models.DateLayout)},
	}
	quoteHistory := &QuoteHistory{}
	if err := c.get(ctx, "/markets/history", q, quoteHistory); err != nil {
		return nil, err
	}
	if quoteHistory.History == nil {
		return nil, nil
	}
	history := make([]models.PricePoint, 0, len(quoteHistory.History.Day))
	for _, d := range quoteHistory.History.Day {
		date, err := time.Parse(models.DateLayout, d.Date)
		if err != nil {
			return nil, fmt.Errorf("failed to parse history date: %w", err)
		}
		history = append(history, models.PricePoint{
			Date: date, Open: d.Open, High: d.High, Low: d.Low, Close: d.Close, Volume: d.Volume,
		})
	}
	sort.Slice(history, func(i, j int) bool { return history[i].Date.Before(history[j].Date) })
	return history, nil
}
