// Package treasury fetches the risk-free rate from the US Treasury
// fiscal-data API.
package treasury

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bcdannyboy/optrisk/logger"
	"github.com/bcdannyboy/optrisk/models"
	"github.com/xhhuango/json"
)

const DefaultURL = "https://api.fiscaldata.treasury.gov/services/api/fiscal_service/v2/accounting/od/avg_interest_rates"

type Client struct {
	httpClient *http.Client
	url        string

	mu            sync.Mutex
	lastKnownRate float64
	lastFetchTime time.Time
}

type Response struct {
	Data []Rate `json:"data"`
	Meta struct {
		Count int `json:"count"`
	} `json:"meta"`
}

type Rate struct {
	RecordDate            string `json:"record_date"`
	SecurityDesc          string `json:"security_desc"`
	AvgInterestRateAmount string `json:"avg_interest_rate_amt"`
}

// NewClient seeds the last known rate with fallback; nothing is fetched
// until the first call.
func NewClient(url string, fallback float64) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		url:           url,
		lastKnownRate: fallback,
	}
}

func (tc *Client) fetchRiskFreeRate(ctx context.Context) (float64, error) {
	u := tc.url + "?fields=avg_interest_rate_amt,record_date&filter=security_desc:eq:Treasury%20Bills&sort=-record_date&page[size]=1"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	resp, err := tc.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch Treasury rate: %v: %w", err, models.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("Treasury API returned status %d: %w", resp.StatusCode, models.ErrUpstreamUnavailable)
	}

	var treasuryResp Response
	if err := json.NewDecoder(resp.Body).Decode(&treasuryResp); err != nil {
		return 0, fmt.Errorf("failed to decode Treasury response: %v: %w", err, models.ErrUpstreamUnavailable)
	}
	if len(treasuryResp.Data) == 0 {
		return 0, fmt.Errorf("no Treasury rate data returned: %w", models.ErrUpstreamUnavailable)
	}

	// percentage string, "3.983" -> 0.03983
	rateStr := treasuryResp.Data[0].AvgInterestRateAmount
	rate, err := strconv.ParseFloat(rateStr, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse rate %s: %v: %w", rateStr, err, models.ErrUpstreamUnavailable)
	}
	return rate / 100.0, nil
}

// RiskFreeRate fetches the most recent Treasury Bill rate.
func (tc *Client) RiskFreeRate(ctx context.Context) (float64, error) {
	rate, err := tc.fetchRiskFreeRate(ctx)
	if err != nil {
		return 0, err
	}
	tc.mu.Lock()
	tc.lastKnownRate = rate
	tc.lastFetchTime = time.Now()
	tc.mu.Unlock()

	logger.Info.Printf("Fetched Treasury Bill rate: %.3f%%", rate*100)
	return rate, nil
}

// RiskFreeRateWithLastKnown falls back to the last successfully fetched rate,
// or the configured fallback, when the API is unavailable.
func (tc *Client) RiskFreeRateWithLastKnown(ctx context.Context) float64 {
	rate, err := tc.RiskFreeRate(ctx)
	if err == nil {
		return rate
	}
	logger.Warn.Printf("Treasury API failed, using last known rate: %v", err)

	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.lastKnownRate
}

// CacheInfo reports the cached rate and how old it is.
func (tc *Client) CacheInfo() (rate float64, age time.Duration, fetched bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.lastFetchTime.IsZero() {
		return tc.lastKnownRate, 0, false
	}
	return tc.lastKnownRate, time.Since(tc.lastFetchTime), true
}
