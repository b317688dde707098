package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/alim08/market_pulse/pkg/logger"
	"github.com/alim08/market_pulse/pkg/models"
	"github.com/alim08/market_pulse/pkg/validation"
	"go.uber.org/zap"
)

const (
	statusSuccess = "success"

	requestTypeCurrent    = "current"
	requestTypeHistorical = "historical"
)

// CurrentResponse is the body of GET /market-data?type=current. Market cap
// is only exposed through GraphQL.
type CurrentResponse struct {
	Price  float64       `json:"price"`
	Volume float64       `json:"volume"`
	Status string        `json:"status"`
	Source models.Source `json:"source"`
}

// HistoricalResponse is the body of GET /market-data?type=historical.
type HistoricalResponse struct {
	Quotes []models.Quote `json:"quotes"`
	Status string         `json:"status"`
	Source models.Source  `json:"source"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func newCurrentResponse(snap models.PriceSnapshot) CurrentResponse {
	return CurrentResponse{
		Price:  snap.Price,
		Volume: snap.Volume,
		Status: statusSuccess,
		Source: snap.Source,
	}
}

func newHistoricalResponse(series models.HistoricalSeries) HistoricalResponse {
	quotes := series.Quotes
	if quotes == nil {
		quotes = []models.Quote{}
	}
	return HistoricalResponse{Quotes: quotes, Status: statusSuccess, Source: series.Source}
}

// writeJSON writes a JSON response with proper headers
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Log.Error("JSON encoding error", zap.Error(err))
	}
}

// writeError writes an error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// marketDataHandler serves current or historical data. Upstream trouble
// never changes the status code; only an unknown type is rejected.
func (s *Server) marketDataHandler(w http.ResponseWriter, r *http.Request) {
	requestType := r.URL.Query().Get("type")
	if err := validation.ValidateVar("type", requestType, "required,oneof=current historical"); err != nil {
		logger.Log.Debug("rejected market data request",
			zap.String("type", validation.SanitizeString(requestType)),
			zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid request type")
		return
	}

	switch requestType {
	case requestTypeCurrent:
		writeJSON(w, http.StatusOK, newCurrentResponse(s.market.CurrentPrice(r.Context())))
	case requestTypeHistorical:
		writeJSON(w, http.StatusOK, newHistoricalResponse(s.market.HistoricalSeries(r.Context())))
	}
}

// healthHandler reports liveness plus the state of each optional tier. The
// market-data routes keep working without them, so it always answers 200.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks, _ := s.runChecks(ctx)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	})
}

// readyHandler fails while any configured dependency is unreachable.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks, ok := s.runChecks(ctx)
	status, code := "ready", http.StatusOK
	if !ok {
		status, code = "not ready", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

func (s *Server) runChecks(ctx context.Context) (map[string]string, bool) {
	checks := map[string]string{"redis": "disabled", "database": "disabled"}
	ok := true

	if s.redis != nil {
		checks["redis"] = "ok"
		if err := s.redis.Ping(ctx); err != nil {
			logger.Log.Warn("redis health check failed", zap.Error(err))
			checks["redis"] = "unavailable"
			ok = false
		}
	}
	if s.db != nil {
		checks["database"] = "ok"
		if err := s.db.HealthCheck(ctx); err != nil {
			logger.Log.Warn("database health check failed", zap.Error(err))
			checks["database"] = "unavailable"
			ok = false
		}
	}
	return checks, ok
}
