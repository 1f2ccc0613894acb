package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

type OptionType int

const (
	Call OptionType = iota
	Put
)

func (t OptionType) String() string {
	if t == Put {
		return "put"
	}
	return "call"
}

func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "c":
		return Call, nil
	case "put", "p":
		return Put, nil
	}
	return Call, fmt.Errorf("option type %q: %w", s, ErrInvalidParameter)
}

func (t OptionType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *OptionType) UnmarshalText(b []byte) error {
	parsed, err := ParseOptionType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// OptionContract is a single quote as fetched from the provider. Greeks on
// the contract are informational; the pricing package is authoritative.
type OptionContract struct {
	Symbol            string     `json:"symbol"`
	Underlying        string     `json:"underlying"`
	Strike            float64    `json:"strike"`
	Expiration        time.Time  `json:"expiration"`
	TimeToExpiry      float64    `json:"time_to_expiry"`
	DaysToExpiry      int        `json:"days_to_expiry"`
	Type              OptionType `json:"option_type"`
	Bid               float64    `json:"bid"`
	Ask               float64    `json:"ask"`
	Last              float64    `json:"last"`
	Volume            int64      `json:"volume"`
	OpenInterest      int64      `json:"open_interest"`
	ImpliedVolatility float64    `json:"implied_volatility"`
	Delta             float64    `json:"delta"`
	Gamma             float64    `json:"gamma"`
	Theta             float64    `json:"theta"`
	Vega              float64    `json:"vega"`
}

func (c OptionContract) Mid() float64 {
	return (c.Bid + c.Ask) / 2
}

// CurrentPrice is the last traded price, falling back to the mid quote.
func (c OptionContract) CurrentPrice() float64 {
	if c.Last > 0 {
		return c.Last
	}
	return c.Mid()
}

// Years is TimeToExpiry, falling back to DaysToExpiry on a 365-day year.
func (c OptionContract) Years() float64 {
	if c.TimeToExpiry > 0 {
		return c.TimeToExpiry
	}
	return float64(c.DaysToExpiry) / 365
}

// Valid reports whether the quote can be priced.
func (c OptionContract) Valid() bool {
	return c.Strike > 0 && c.Bid <= c.Ask && c.ImpliedVolatility > 0 && c.Volume >= 0 && c.OpenInterest >= 0
}

// Chain groups contracts by expiration date (DateLayout).
type Chain map[string][]OptionContract

func (c Chain) ExpirationDates() []string {
	dates := make([]string, 0, len(c))
	for d := range c {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

func (c Chain) Len() int {
	n := 0
	for _, contracts := range c {
		n += len(contracts)
	}
	return n
}

// Quote is a spot snapshot. MarketCap and Beta are zero when the provider
// does not supply them.
type Quote struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Volume    int64   `json:"volume"`
	MarketCap float64 `json:"market_cap"`
	Beta      float64 `json:"beta"`
}

// PricePoint is one daily bar. Only Close is required.
type PricePoint struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open,omitempty"`
	High   float64   `json:"high,omitempty"`
	Low    float64   `json:"low,omitempty"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume,omitempty"`
}

func Closes(history []PricePoint) []float64 {
	closes := make([]float64, len(history))
	for i, p := range history {
		closes[i] = p.Close
	}
	return closes
}
