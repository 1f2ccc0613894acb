// Package api exposes the pricing, risk, scenario and screening engines over
// JSON HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bcdannyboy/optrisk/config"
	"github.com/bcdannyboy/optrisk/logger"
	"github.com/bcdannyboy/optrisk/marketdata"
	"github.com/bcdannyboy/optrisk/models"
	"github.com/bcdannyboy/optrisk/screener"
	"github.com/bcdannyboy/optrisk/store"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/xhhuango/json"
)

const requestIDHeader = "X-Request-ID"

// RateSource supplies the risk-free rate for a request.
type RateSource interface {
	RiskFreeRateWithLastKnown(ctx context.Context) float64
}

// FixedRate is a RateSource that never changes.
type FixedRate float64

func (f FixedRate) RiskFreeRateWithLastKnown(context.Context) float64 { return float64(f) }

// Server holds the collaborators shared by every handler.
type Server struct {
	provider marketdata.Provider
	rates    RateSource
	store    *store.Memory

	maxExpirations int
	lookbackDays   int
	accountSize    float64
	riskFraction   float64

	mu        sync.RWMutex
	templates screener.Templates

	now func() time.Time
}

// NewServer wires a server from configuration. A nil rates falls back to the
// configured fixed rate; a nil st disables the stored market data endpoint.
func NewServer(cfg *config.Config, provider marketdata.Provider, rates RateSource, templates screener.Templates, st *store.Memory) *Server {
	if rates == nil {
		rates = FixedRate(cfg.RiskFreeRate)
	}
	if templates == nil {
		templates = screener.DefaultTemplates()
	}
	return &Server{
		provider:       provider,
		rates:          rates,
		store:          st,
		maxExpirations: cfg.MaxExpirations,
		lookbackDays:   cfg.HistoryLookbackDays,
		accountSize:    cfg.AccountSize,
		riskFraction:   cfg.RiskFraction,
		templates:      templates,
		now:            time.Now,
	}
}

// Router registers every endpoint.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestID)

	// Scenario analysis endpoints
	r.HandleFunc("/api/analyze", s.AnalyzeHandler).Methods("POST")
	r.HandleFunc("/api/options/{ticker}", s.OptionsHandler).Methods("GET")

	// Screening endpoints
	r.HandleFunc("/api/v1/screen", s.ScreenHandler).Methods("POST")
	r.HandleFunc("/api/v1/templates", s.TemplatesHandler).Methods("GET")
	r.HandleFunc("/api/v1/templates/{name}/apply", s.ApplyTemplateHandler).Methods("POST")
	r.HandleFunc("/api/v1/save_template", s.SaveTemplateHandler).Methods("POST")
	r.HandleFunc("/api/v1/market_data/{symbol}", s.MarketDataHandler).Methods("GET")

	// Pricing and risk endpoints
	r.HandleFunc("/api/v1/price", s.PriceHandler).Methods("POST")
	r.HandleFunc("/api/v1/risk", s.RiskHandler).Methods("POST")
	r.HandleFunc("/api/v1/portfolio", s.PortfolioHandler).Methods("POST")
	return r
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, id)
		w.Header().Set("Access-Control-Allow-Origin", "*")

		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info.Printf("[%s] %s %s took %v", id, r.Method, r.URL.Path, time.Since(start))
	})
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error.Printf("request %s failed: %v", w.Header().Get(requestIDHeader), err)
	} else {
		logger.Debug.Printf("request %s rejected (%d): %v", w.Header().Get(requestIDHeader), status, err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), RequestID: w.Header().Get(requestIDHeader)})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		logger.Error.Printf("JSON encoding failed: %v", err)
		http.Error(w, "JSON encoding failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// decode reads a JSON body into v, which may be pre-filled with defaults.
func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %v: %w", err, models.ErrInvalidParameter)
	}
	return nil
}
