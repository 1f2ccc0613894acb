package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bcdannyboy/optrisk/config"
	"github.com/bcdannyboy/optrisk/marketdata"
	"github.com/bcdannyboy/optrisk/models"
	"github.com/bcdannyboy/optrisk/store"
	"github.com/xhhuango/json"
)

func newTestServer(t *testing.T) (*httptest.Server, *marketdata.MockProvider) {
	t.Helper()
	mock := marketdata.NewMockProvider()
	mock.SetPrice("SPY", 100)
	mock.Failing["DOWN"] = true

	cfg := &config.Config{
		RiskFreeRate:        0.05,
		MaxExpirations:      2,
		HistoryLookbackDays: 60,
		AccountSize:         100000,
		RiskFraction:        0.01,
	}
	srv := NewServer(cfg, marketdata.NewThrottled(mock, 0), nil, nil, store.NewMemory())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, mock
}

func do(t *testing.T, ts *httptest.Server, method, path, body string, out interface{}) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s %s: %v", method, path, err)
		}
	}
	return resp
}

func TestAnalyze(t *testing.T) {
	ts, _ := newTestServer(t)

	var out analyzeResponse
	resp := do(t, ts, "POST", "/api/analyze",
		`{"ticker":"spy","min_change":-5,"max_change":5,"step_size":5,"max_expiry_count":2}`, &out)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get(requestIDHeader) == "" {
		t.Error("missing request id header")
	}
	if out.Ticker != "SPY" || out.CurrentPrice != 100 {
		t.Errorf("ticker %q price %v", out.Ticker, out.CurrentPrice)
	}
	// three price points across two expirations
	if len(out.Results) != 6 {
		t.Fatalf("got %d buckets, want 6", len(out.Results))
	}
	if out.Results[0].ChangePercent != -5 || math.Abs(out.Results[0].UnderlyingPrice-95) > 1e-9 {
		t.Errorf("first bucket = %v%% at %v", out.Results[0].ChangePercent, out.Results[0].UnderlyingPrice)
	}
}

func TestAnalyzeRejectsBadGrid(t *testing.T) {
	ts, mock := newTestServer(t)

	resp := do(t, ts, "POST", "/api/analyze", `{"ticker":"SPY","min_change":-5,"max_change":5,"step_size":0}`, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if mock.Calls() != 0 {
		t.Errorf("provider called %d times for an invalid request", mock.Calls())
	}
}

func TestUpstreamFailureIsBadGateway(t *testing.T) {
	ts, _ := newTestServer(t)

	var out errorResponse
	resp := do(t, ts, "GET", "/api/options/DOWN", "", &out)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
	if out.RequestID == "" || out.Error == "" {
		t.Errorf("error body = %+v", out)
	}
}

func TestOptionsThenMarketData(t *testing.T) {
	ts, _ := newTestServer(t)

	var opts optionsResponse
	if resp := do(t, ts, "GET", "/api/options/SPY", "", &opts); resp.StatusCode != http.StatusOK {
		t.Fatalf("options status = %d", resp.StatusCode)
	}
	if opts.Summary.Contracts != 36 || opts.Summary.Expirations != 2 {
		t.Errorf("summary = %d contracts, %d expirations; want 36, 2", opts.Summary.Contracts, opts.Summary.Expirations)
	}
	if opts.HV30 <= 0 {
		t.Errorf("HV30 = %v, want > 0", opts.HV30)
	}

	var snap store.Snapshot
	if resp := do(t, ts, "GET", "/api/v1/market_data/spy", "", &snap); resp.StatusCode != http.StatusOK {
		t.Fatalf("market data status = %d", resp.StatusCode)
	}
	if len(snap.Prices) == 0 || len(snap.Options) != 36 {
		t.Errorf("stored %d bars, %d options", len(snap.Prices), len(snap.Options))
	}

	if resp := do(t, ts, "GET", "/api/v1/market_data/QQQ", "", nil); resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("unknown symbol status = %d, want 422", resp.StatusCode)
	}
}

func TestScreen(t *testing.T) {
	ts, _ := newTestServer(t)

	var out screenResponse
	resp := do(t, ts, "POST", "/api/v1/screen", `{"ticker":"SPY","filters":{"min_volume":300}}`, &out)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	// strikes within two steps of spot, both types, two expirations
	if out.Count != 20 || len(out.Rows) != 20 {
		t.Errorf("count = %d, want 20", out.Count)
	}
	for _, r := range out.Rows {
		if r.Contract.Volume < 300 {
			t.Errorf("row with volume %d survived", r.Contract.Volume)
		}
	}

	resp = do(t, ts, "POST", "/api/v1/screen", `{"ticker":"SPY","filters":{"min_iv":0.5,"max_iv":0.1}}`, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("inverted range status = %d, want 400", resp.StatusCode)
	}
}

func TestTemplates(t *testing.T) {
	ts, _ := newTestServer(t)

	var list map[string]json.RawMessage
	if resp := do(t, ts, "GET", "/api/v1/templates", "", &list); resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	for _, name := range []string{"covered_call", "cash_secured_put", "iron_condor"} {
		if _, ok := list[name]; !ok {
			t.Errorf("template %s missing", name)
		}
	}

	if resp := do(t, ts, "POST", "/api/v1/templates/nope/apply", `{"ticker":"SPY"}`, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown template status = %d, want 404", resp.StatusCode)
	}

	resp := do(t, ts, "POST", "/api/v1/save_template",
		`{"name":"liquid_puts","filters":{"option_type":"put","min_volume":300},"risk_metrics":["static_return"]}`, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("save status = %d, want 201", resp.StatusCode)
	}

	var out screenResponse
	if resp := do(t, ts, "POST", "/api/v1/templates/liquid_puts/apply", `{"ticker":"SPY"}`, &out); resp.StatusCode != http.StatusOK {
		t.Fatalf("apply status = %d", resp.StatusCode)
	}
	if out.Count != 10 {
		t.Errorf("count = %d, want 10", out.Count)
	}
	for _, r := range out.Rows {
		if r.Contract.Type != models.Put {
			t.Errorf("call survived a put template: %s", r.Contract.Symbol)
		}
		if _, ok := r.Metrics["static_return"]; !ok {
			t.Errorf("%s missing static_return", r.Contract.Symbol)
		}
	}
}

func TestPrice(t *testing.T) {
	ts, _ := newTestServer(t)

	var out priceResponse
	resp := do(t, ts, "POST", "/api/v1/price",
		`{"underlying_price":100,"strike":100,"days_to_expiry":365,"volatility":0.2,"option_type":"call","risk_free_rate":0.05,"market_price":10.4506}`, &out)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if math.Abs(out.Price-10.4506) > 1e-3 {
		t.Errorf("price = %v, want 10.4506", out.Price)
	}
	if math.Abs(out.Greeks.Delta-0.6368) > 1e-3 {
		t.Errorf("delta = %v, want 0.6368", out.Greeks.Delta)
	}
	if math.Abs(out.ImpliedVolatility-0.2) > 1e-3 {
		t.Errorf("implied vol = %v, want 0.2", out.ImpliedVolatility)
	}

	resp = do(t, ts, "POST", "/api/v1/price", `{"underlying_price":100,"strike":100,"days_to_expiry":30,"volatility":0}`, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("zero volatility status = %d, want 400", resp.StatusCode)
	}
}

func TestRisk(t *testing.T) {
	ts, _ := newTestServer(t)

	var m models.RiskMetrics
	resp := do(t, ts, "POST", "/api/v1/risk",
		`{"strategy":"naked_call","positions":[{"contract":{"strike":110,"option_type":"call"},"quantity":-1,"entry_premium":1}],"underlying_price":100,"days_to_expiry":30,"volatility":0.2}`, &m)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !m.IsUnbounded() {
		t.Errorf("max loss = %v, want unbounded", m.MaxLoss)
	}
	if len(m.BreakEvenPoints) != 1 || m.BreakEvenPoints[0] != 111 {
		t.Errorf("break-evens = %v, want [111]", m.BreakEvenPoints)
	}

	resp = do(t, ts, "POST", "/api/v1/risk", `{"strategy":"butterfly","positions":[],"underlying_price":100,"days_to_expiry":30,"volatility":0.2}`, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unsupported strategy status = %d, want 400", resp.StatusCode)
	}
}

func TestPortfolioFetchesHistory(t *testing.T) {
	ts, _ := newTestServer(t)

	body := `{"strategy":"cash_secured_put","ticker":"SPY","underlying_price":100,"volatility":0.2,
		"positions":[{"contract":{"strike":95,"option_type":"put","days_to_expiry":30},"quantity":-1,"entry_premium":1.5}]}`
	var out struct {
		Exits struct {
			ProfitTarget float64 `json:"profit_target"`
		} `json:"exits"`
	}
	resp := do(t, ts, "POST", "/api/v1/portfolio", body, &out)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if math.Abs(out.Exits.ProfitTarget-1.125) > 1e-9 {
		t.Errorf("profit target = %v, want 1.125", out.Exits.ProfitTarget)
	}

	resp = do(t, ts, "POST", "/api/v1/portfolio", `{"strategy":"cash_secured_put","underlying_price":100,"volatility":0.2,
		"positions":[{"contract":{"strike":95,"option_type":"put","days_to_expiry":30},"quantity":-1,"entry_premium":1.5}]}`, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("no history status = %d, want 422", resp.StatusCode)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", models.ErrInvalidParameter), http.StatusBadRequest},
		{fmt.Errorf("x: %w", models.ErrInsufficientData), http.StatusUnprocessableEntity},
		{fmt.Errorf("x: %w", models.ErrUpstreamUnavailable), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	ts, _ := newTestServer(t)
	req, _ := http.NewRequest("GET", ts.URL+"/api/v1/templates", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get(requestIDHeader); got != "abc-123" {
		t.Errorf("request id = %q, want abc-123", got)
	}
}
