// Package api exposes the pipeline over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	sentryerr "cloudtrail-sentry/internal/errors"
	"cloudtrail-sentry/internal/sentry"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves envelope evaluation, health and metrics.
type Handler struct {
	pipeline      *sentry.Pipeline
	gatherer      prometheus.Gatherer
	maxPayload    int64
	startTime     time.Time
	eventsTotal   atomic.Uint64
	alertsTotal   atomic.Uint64
	rejectedTotal atomic.Uint64
}

// NewHandler creates a Handler. gatherer backs /metrics; nil means the default registry.
func NewHandler(p *sentry.Pipeline, gatherer prometheus.Gatherer) *Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handler{
		pipeline:   p,
		gatherer:   gatherer,
		maxPayload: 1024 * 1024, // 1MB default
		startTime:  time.Now(),
	}
}

// WithMaxPayload sets the maximum request body size.
func (h *Handler) WithMaxPayload(size int64) *Handler {
	if size > 0 {
		h.maxPayload = size
	}
	return h
}

// Routes returns the handler's routes on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/evaluate", h.HandleEvaluate)
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// HandleEvaluate handles POST /v1/evaluate. The body is an EventBridge envelope or a
// bare CloudTrail record; the response is the pipeline result.
func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()

	// Limit request body size
	r.Body = http.MaxBytesReader(w, r.Body, h.maxPayload)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.rejectedTotal.Add(1)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "payload too large", requestID)
			return
		}
		respondError(w, http.StatusBadRequest, "failed to read request body", requestID)
		return
	}

	result, err := h.pipeline.HandleJSON(r.Context(), body)
	if err != nil {
		h.rejectedTotal.Add(1)
		message := "invalid envelope"
		if !errors.Is(err, sentryerr.ErrInvalidEnvelope) {
			message = sentryerr.SanitizeError(err).Error()
		}
		respondError(w, http.StatusBadRequest, message, requestID)
		return
	}

	h.eventsTotal.Add(1)
	if result.Interesting {
		h.alertsTotal.Add(1)
	}

	w.Header().Set("X-Request-Id", requestID)
	respondJSON(w, http.StatusOK, result)
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":         "healthy",
		"delivery":       h.pipeline.Delivers(),
		"events_total":   h.eventsTotal.Load(),
		"alerts_total":   h.alertsTotal.Load(),
		"rejected_total": h.rejectedTotal.Load(),
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
	}

	respondJSON(w, http.StatusOK, resp)
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

// respondError writes a JSON error response.
func respondError(w http.ResponseWriter, status int, message string, requestID string) {
	resp := map[string]any{
		"success":    false,
		"error":      message,
		"request_id": requestID,
	}
	respondJSON(w, status, resp)
}
