package tradier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bcdannyboy/optrisk/models"
)

func newTestClient(t *testing.T, routes map[string]string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization header = %q", got)
		}
		key := r.URL.Path
		if exp := r.URL.Query().Get("expiration"); exp != "" {
			key += "?" + exp
		}
		body, ok := routes[key]
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "secret")
	c.now = func() time.Time { return time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC) }
	return c
}

func TestGetQuote(t *testing.T) {
	c := newTestClient(t, map[string]string{
		"/markets/quotes": `{"quotes":{"quote":{"symbol":"SPY","last":471.25,"bid":471.2,"ask":471.3,"volume":52000000}}}`,
	})
	q, err := c.GetQuote(context.Background(), "SPY")
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if q.Price != 471.25 || q.Volume != 52000000 {
		t.Errorf("quote = %+v", q)
	}
	if q.MarketCap != 0 || q.Beta != 0 {
		t.Errorf("market cap and beta should be unset, got %+v", q)
	}
}

func TestGetQuoteUnmatched(t *testing.T) {
	c := newTestClient(t, map[string]string{
		"/markets/quotes": `{"quotes":{"unmatched_symbols":{"symbol":"NOPE"}}}`,
	})
	if _, err := c.GetQuote(context.Background(), "NOPE"); err == nil {
		t.Error("expected an error for an unmatched symbol")
	}
}

func TestGetOptionsChain(t *testing.T) {
	c := newTestClient(t, map[string]string{
		"/markets/options/expirations": `{"expirations":{"date":["2026-02-20","2026-01-16","2026-03-20"]}}`,
		"/markets/options/chains?2026-01-16": `{"options":{"option":[
			{"symbol":"SPY260116C00470000","underlying":"SPY","strike":470,"last":9.5,"bid":9.4,"ask":9.6,"volume":1200,"open_interest":8000,"option_type":"call","greeks":{"delta":0.55,"mid_iv":0.14}},
			{"symbol":"SPY260116P00470000","underlying":"SPY","strike":470,"last":null,"bid":7.9,"ask":8.1,"volume":900,"open_interest":6500,"option_type":"put","greeks":{"delta":-0.45,"mid_iv":0,"smv_vol":0.15}}
		]}}`,
		"/markets/options/chains?2026-02-20": `{"options":{"option":{"symbol":"SPY260220C00480000","underlying":"SPY","strike":480,"bid":8,"ask":8.3,"volume":10,"open_interest":100,"option_type":"call","greeks":null}}}`,
	})
	chain, err := c.GetOptionsChain(context.Background(), "SPY", 2)
	if err != nil {
		t.Fatalf("GetOptionsChain: %v", err)
	}
	dates := chain.ExpirationDates()
	if len(dates) != 2 || dates[0] != "2026-01-16" || dates[1] != "2026-02-20" {
		t.Fatalf("expirations = %v", dates)
	}

	near := chain["2026-01-16"]
	if len(near) != 2 {
		t.Fatalf("got %d contracts, want 2", len(near))
	}
	call, put := near[0], near[1]
	if call.Type != models.Call || call.ImpliedVolatility != 0.14 || call.Last != 9.5 {
		t.Errorf("call = %+v", call)
	}
	if put.Type != models.Put || put.ImpliedVolatility != 0.15 || put.Last != 0 {
		t.Errorf("put = %+v", put)
	}
	if call.DaysToExpiry != 11 || call.TimeToExpiry <= 0 {
		t.Errorf("days/years to expiry = %d/%v", call.DaysToExpiry, call.TimeToExpiry)
	}

	far := chain["2026-02-20"]
	if len(far) != 1 || far[0].Valid() {
		t.Errorf("single-object chain with no greeks = %+v", far)
	}
}

func TestGetHistoricalPrices(t *testing.T) {
	c := newTestClient(t, map[string]string{
		"/markets/history": `{"history":{"day":[
			{"date":"2026-01-02","open":470,"high":474,"low":468,"close":472,"volume":100},
			{"date":"2025-12-31","open":468,"high":471,"low":466,"close":470,"volume":90}
		]}}`,
	})
	history, err := c.GetHistoricalPrices(context.Background(), "SPY", 10)
	if err != nil {
		t.Fatalf("GetHistoricalPrices: %v", err)
	}
	if len(history) != 2 || history[0].Close != 470 || history[1].Close != 472 {
		t.Errorf("history = %+v", history)
	}
}

func TestUpstreamErrorStatus(t *testing.T) {
	c := newTestClient(t, map[string]string{})
	_, err := c.GetHistoricalPrices(context.Background(), "SPY", 10)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %v, want status 404", err)
	}
}
