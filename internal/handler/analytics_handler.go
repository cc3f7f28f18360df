package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"insights-service/internal/analytics"
	"insights-service/internal/model"
	"insights-service/internal/util"
)

// summaryFilterKeys are the query parameters forwarded to the
// warehouse as equality filters.
var summaryFilterKeys = []string{"survey_id", "category", "region", "department"}

// AnalyticsHandler serves aggregated survey metrics and generated
// insights. Raw responses never leave the warehouse.
type AnalyticsHandler struct {
	analyticsService *analytics.Service
	logger           *zap.Logger
}

func NewAnalyticsHandler(analyticsService *analytics.Service, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		analyticsService: analyticsService,
		logger:           logger,
	}
}

// RegisterRoutes mounts the analytics endpoints. Overview takes the
// optional gate; everything else requires authentication.
func (h *AnalyticsHandler) RegisterRoutes(router chi.Router, gate, optionalGate func(http.Handler) http.Handler) {
	router.Route("/analytics", func(r chi.Router) {
		r.With(optionalGate).Get("/overview", h.Overview)

		r.Group(func(r chi.Router) {
			r.Use(gate)
			r.Get("/summary", h.Summary)
			r.Post("/query", h.Query)
		})
	})
	router.With(gate).Post("/insights", h.Insights)
}

// Summary returns the headline dashboard aggregates, filtered by query
// parameters.
func (h *AnalyticsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	filters := make(map[string]string)
	for _, key := range summaryFilterKeys {
		if value := r.URL.Query().Get(key); value != "" {
			filters[key] = value
		}
	}

	from, to, err := parseTimeWindow(r)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid time window")
		return
	}

	summary, err := h.analyticsService.Summary(ctx, filters, from, to)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to build summary")
		return
	}

	writeJSON(w, http.StatusOK, successResponse(summary, "Summary generated"))
	h.logger.Debug("Summary served via HTTP",
		util.Int("filters", len(filters)),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "Summary"),
	)
}

// Query runs one structured warehouse query.
func (h *AnalyticsHandler) Query(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var spec model.QuerySpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	result, err := h.analyticsService.Query(ctx, spec)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Query failed")
		return
	}

	writeJSON(w, http.StatusOK, successResponse(result, "Query executed"))
	h.logger.Debug("Query served via HTTP",
		util.String("measure", spec.Measure),
		util.Int("rows", len(result.Rows)),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "Query"),
	)
}

type insightsRequest struct {
	Focus string          `json:"focus"`
	Query model.QuerySpec `json:"query"`
}

// Insights queries the warehouse and asks the external model for
// narrative findings over the aggregates.
func (h *AnalyticsHandler) Insights(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req insightsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	findings, err := h.analyticsService.GenerateInsights(ctx, req.Focus, req.Query)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to generate insights")
		return
	}

	writeJSON(w, http.StatusOK, successResponse(findings, "Insights generated"))
	h.logger.Info("Insights served via HTTP",
		util.String("focus", req.Focus),
		util.Int("findings", len(findings)),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "Insights"),
	)
}

// Overview serves public headline numbers; a valid token personalizes
// the greeting but is never required.
func (h *AnalyticsHandler) Overview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	summary, err := h.analyticsService.Summary(ctx, nil, time.Time{}, time.Time{})
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to build overview")
		return
	}

	greeting := "Welcome"
	if claims := ClaimsFromContext(ctx); claims != nil {
		greeting = fmt.Sprintf("Welcome back, %s", claims.Email)
	}

	writeJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"greeting":        greeting,
		"total_responses": summary.TotalResponses,
		"average_score":   summary.AverageScore,
	}, "Overview generated"))
}

func parseTimeWindow(r *http.Request) (time.Time, time.Time, error) {
	var from, to time.Time

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return from, to, fmt.Errorf("invalid from timestamp: %w", err)
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return from, to, fmt.Errorf("invalid to timestamp: %w", err)
		}
		to = parsed
	}
	return from, to, nil
}

func (h *AnalyticsHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	writeJSON(w, statusCode, errorResponse(err, message))
}

func (h *AnalyticsHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, analytics.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, analytics.ErrInsightsUnavailable),
		errors.Is(err, analytics.ErrInsightsRejected):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
