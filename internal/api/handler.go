package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/salesops/harrier/internal/aggregate"
	"github.com/salesops/harrier/internal/domain"
	"github.com/salesops/harrier/internal/fetch"
	"github.com/salesops/harrier/internal/health"
	"github.com/salesops/harrier/internal/ingest"
	"github.com/salesops/harrier/internal/report"
	"github.com/salesops/harrier/internal/validate"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	gw        domain.Gateway
	cache     domain.Cache
	bus       domain.EventBus
	fetcher   *fetch.Fetcher
	enricher  *aggregate.Enricher
	reports   *report.Service
	monitor   *health.Monitor
	inserter  *ingest.Inserter
	validator *validate.Engine
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(gw domain.Gateway, cache domain.Cache, bus domain.EventBus, fetcher *fetch.Fetcher, enricher *aggregate.Enricher, reports *report.Service, monitor *health.Monitor, inserter *ingest.Inserter, validator *validate.Engine, version string) *Handler {
	return &Handler{
		gw:        gw,
		cache:     cache,
		bus:       bus,
		fetcher:   fetcher,
		enricher:  enricher,
		reports:   reports,
		monitor:   monitor,
		inserter:  inserter,
		validator: validator,
		version:   version,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check gateway health
	if h.gw != nil {
		if err := h.gw.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// AnalyticsResponse is the response for GET /customers/analytics.
type AnalyticsResponse struct {
	Customers []domain.CustomerAnalytics `json:"customers"`
	RowCount  int                        `json:"rowCount"`
	Metadata  struct {
		FetchMs     int64  `json:"fetchMs"`
		AggregateMs int64  `json:"aggregateMs"`
		Version     string `json:"version"`
	} `json:"metadata"`
}

// CustomerAnalytics handles GET /customers/analytics requests. It fetches
// the matching sales history, folds it into per-customer analytics and
// enriches the result with auxiliary lookups.
func (h *Handler) CustomerAnalytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	opts := fetch.Options{
		Search:          r.URL.Query().Get("search"),
		SalespersonCode: r.URL.Query().Get("salesperson"),
	}

	fetchStart := time.Now()
	rows, err := h.fetcher.FetchSales(ctx, tenantID, opts)
	fetchMs := time.Since(fetchStart).Milliseconds()
	if err != nil {
		slog.Error("sales fetch failed", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": "failed to fetch sales history: " + err.Error(),
		})
		return
	}

	aggStart := time.Now()
	customers := aggregate.Aggregate(rows, time.Now().UTC())
	if h.enricher != nil {
		h.enricher.Enrich(ctx, tenantID, customers)
	}
	aggMs := time.Since(aggStart).Milliseconds()

	resp := AnalyticsResponse{
		Customers: customers,
		RowCount:  len(rows),
	}
	resp.Metadata.FetchMs = fetchMs
	resp.Metadata.AggregateMs = aggMs
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// RunReport handles POST /reports requests.
func (h *Handler) RunReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var cfg domain.ReportConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	dash, err := h.reports.Run(ctx, tenantID, cfg)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, dash)
}

// RefreshReport handles POST /reports/refresh requests: cache entries for
// every slice are invalidated before the report is re-run.
func (h *Handler) RefreshReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var cfg domain.ReportConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	dash, err := h.reports.Refresh(ctx, tenantID, cfg)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, dash)
}

// ImportRequest is the request body for POST /sales/import.
type ImportRequest struct {
	Rows  []domain.SalesRow `json:"rows"`
	Async bool              `json:"async,omitempty"`
}

// ImportSales handles POST /sales/import requests. Synchronous imports run
// the bulk inserter inline and return the full result. Async imports are
// queued on the event bus for the worker and return 202 with a job ID.
func (h *Handler) ImportSales(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Rows) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rows are required",
		})
		return
	}

	if req.Async {
		if h.bus == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "async import requires an event bus",
			})
			return
		}

		jobID := uuid.New().String()
		payload, err := json.Marshal(map[string]any{
			"jobId":    jobID,
			"tenantId": tenantID,
			"rows":     req.Rows,
		})
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to encode import job",
			})
			return
		}

		if err := h.bus.Publish(ctx, tenantID, domain.TopicSalesIngest, payload); err != nil {
			slog.Error("failed to queue import job", "tenant_id", tenantID, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "failed to queue import job",
			})
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]any{
			"jobId": jobID,
			"rows":  len(req.Rows),
		})
		return
	}

	result := h.inserter.BulkInsert(ctx, tenantID, req.Rows, nil)
	writeJSON(w, http.StatusOK, result)
}

// ConnectionStatus handles GET /connection/status requests.
func (h *Handler) ConnectionStatus(w http.ResponseWriter, r *http.Request) {
	if h.monitor == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "connection monitor not available",
		})
		return
	}

	writeJSON(w, http.StatusOK, h.monitor.Snapshot())
}

// ConnectionAlerts handles GET /connection/alerts requests.
func (h *Handler) ConnectionAlerts(w http.ResponseWriter, r *http.Request) {
	if h.monitor == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "connection monitor not available",
		})
		return
	}

	alerts := h.monitor.Alerts()
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// TestConnection handles POST /connection/test requests.
func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	if h.monitor == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "connection monitor not available",
		})
		return
	}

	latency, err := h.monitor.TestConnection(r.Context())
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":        false,
			"error":     err.Error(),
			"latencyMs": latency.Milliseconds(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"latencyMs": latency.Milliseconds(),
	})
}

// ListChecks handles GET /validation/checks requests.
func (h *Handler) ListChecks(w http.ResponseWriter, r *http.Request) {
	if h.validator == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "validation engine not available",
		})
		return
	}

	checks := h.validator.Checks()
	writeJSON(w, http.StatusOK, map[string]any{
		"checks": checks,
		"count":  len(checks),
	})
}

// CreateCheck handles POST /validation/checks requests. The expression is
// compiled before being accepted; a bad expression is rejected outright.
func (h *Handler) CreateCheck(w http.ResponseWriter, r *http.Request) {
	if h.validator == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "validation engine not available",
		})
		return
	}

	var check validate.Check
	if err := json.NewDecoder(r.Body).Decode(&check); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if check.Name == "" || check.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name and expression are required",
		})
		return
	}

	if err := h.validator.LoadCheck(check); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid check expression: " + err.Error(),
		})
		return
	}

	slog.Info("validation check created", "name", check.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"check":   check,
		"message": "Check loaded into the validation engine.",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
