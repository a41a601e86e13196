// Package report runs the six-slice sales analytics dashboard.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/salesops/harrier/internal/domain"
	"github.com/salesops/harrier/internal/gateway"
)

// Slice categories, used in cache keys and logs.
const (
	categoryChurn        = "churn"
	categoryNewCustomers = "new_customers"
	categoryProducts     = "products"
	categorySalespersons = "salespersons"
	categoryPredictive   = "predictive_churn"
	categoryValidation   = "validation"
)

// Service orchestrates the dashboard: six independent aggregate queries
// issued concurrently, each cached under a composite key, merged into a
// single result with a derived executive summary.
type Service struct {
	gw    domain.Gateway
	cache domain.Cache // nil disables slice caching
	ttl   time.Duration

	// generation invalidates in-flight runs: a run started before a
	// Refresh never overwrites the latest result.
	generation atomic.Int64

	mu   sync.Mutex
	last *domain.Dashboard
}

// NewService creates a report service. cache may be nil.
func NewService(gw domain.Gateway, cache domain.Cache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{gw: gw, cache: cache, ttl: ttl}
}

// Run executes all six slices concurrently and returns the merged
// dashboard. A failing slice never cancels its siblings; each carries its
// own error for per-widget degradation.
func (s *Service) Run(ctx context.Context, tenantID string, cfg domain.ReportConfig) (*domain.Dashboard, error) {
	if cfg.Year <= 0 {
		return nil, fmt.Errorf("year is required")
	}

	gen := s.generation.Load()
	params := domain.AggregateParams{
		Year:            cfg.Year,
		SalespersonCode: cfg.SalespersonCode,
	}
	if cfg.Monthly() {
		params.Month = cfg.Month
	} else if cfg.Week != domain.WholePeriodWeek {
		params.Week = cfg.Week
	}

	dash := &domain.Dashboard{Config: cfg, GeneratedAt: time.Now().UTC()}

	var wg sync.WaitGroup
	wg.Add(6)

	go func() {
		defer wg.Done()
		dash.Churn = runSlice[domain.ChurnRow](ctx, s, tenantID, categoryChurn, gateway.AggCustomerChurn, cfg, params)
	}()
	go func() {
		defer wg.Done()
		dash.NewCustomers = runSlice[domain.NewCustomerRow](ctx, s, tenantID, categoryNewCustomers, gateway.AggNewCustomers, cfg, params)
	}()
	go func() {
		defer wg.Done()
		dash.Products = runSlice[domain.ProductRow](ctx, s, tenantID, categoryProducts, gateway.AggProductPerformance, cfg, params)
	}()
	go func() {
		defer wg.Done()
		dash.Salespersons = runSlice[domain.SalespersonRow](ctx, s, tenantID, categorySalespersons, gateway.AggSalespersons, cfg, params)
	}()
	go func() {
		defer wg.Done()
		// Predictive churn has no monthly variant yet; the gating is
		// deliberate, not inferred.
		if cfg.Monthly() {
			dash.PredictiveChurn = domain.Slice[domain.PredictiveChurnRow]{Skipped: true}
			return
		}
		dash.PredictiveChurn = runSlice[domain.PredictiveChurnRow](ctx, s, tenantID, categoryPredictive, gateway.AggPredictiveChurn, cfg, params)
	}()
	go func() {
		defer wg.Done()
		dash.Validation = s.runValidation(ctx, tenantID, cfg, params)
	}()

	wg.Wait()

	// The summary needs all three of churn, new customers and products;
	// it tolerates any arrival order but never computes from partial data.
	if dash.Churn.OK() && dash.NewCustomers.OK() && dash.Products.OK() {
		dash.Summary = BuildSummary(dash.Churn.Data, dash.NewCustomers.Data, dash.Products.Data)
	}

	s.mu.Lock()
	if gen == s.generation.Load() {
		s.last = dash
	}
	s.mu.Unlock()

	return dash, nil
}

// Refresh invalidates all six cache entries and re-issues every query.
// Partial refresh of a single slice is not supported.
func (s *Service) Refresh(ctx context.Context, tenantID string, cfg domain.ReportConfig) (*domain.Dashboard, error) {
	s.generation.Add(1)

	if s.cache != nil {
		for _, category := range []string{
			categoryChurn, categoryNewCustomers, categoryProducts,
			categorySalespersons, categoryPredictive, categoryValidation,
		} {
			key := cacheKey(category, cfg)
			if err := s.cache.Delete(ctx, tenantID, key); err != nil {
				slog.Warn("failed to invalidate report cache", "key", key, "error", err)
			}
		}
	}

	return s.Run(ctx, tenantID, cfg)
}

// Last returns the most recent dashboard, or nil.
func (s *Service) Last() *domain.Dashboard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// runValidation wraps the data-quality slice with its fallback chain:
// primary call, then the fallback procedure, then an empty result.
// Validation is advisory and must never block the rest of the dashboard.
func (s *Service) runValidation(ctx context.Context, tenantID string, cfg domain.ReportConfig, params domain.AggregateParams) domain.Slice[domain.ValidationRow] {
	slice := runSlice[domain.ValidationRow](ctx, s, tenantID, categoryValidation, gateway.AggValidation, cfg, params)
	if slice.Err == nil {
		return slice
	}

	slog.Warn("primary validation failed, trying fallback", "error", slice.Err)
	slice = runSlice[domain.ValidationRow](ctx, s, tenantID, categoryValidation, gateway.AggValidationFallback, cfg, params)
	if slice.Err == nil {
		return slice
	}

	slog.Warn("fallback validation failed, returning empty result", "error", slice.Err)
	return domain.Slice[domain.ValidationRow]{}
}

// runSlice resolves one analytic slice: cache first, then the aggregate
// procedure, decoding the pre-shaped rows into the slice's row type.
func runSlice[T any](ctx context.Context, s *Service, tenantID, category, proc string, cfg domain.ReportConfig, params domain.AggregateParams) domain.Slice[T] {
	key := cacheKey(category, cfg)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, tenantID, key); err == nil && cached != nil {
			var data []T
			if err := json.Unmarshal(cached, &data); err == nil {
				return domain.Slice[T]{Data: data}
			}
		}
	}

	rows, err := s.gw.CallAggregate(ctx, tenantID, proc, params)
	if err != nil {
		slog.Error("aggregate query failed", "category", category, "procedure", proc, "error", err)
		return domain.Slice[T]{Err: err, Error: err.Error()}
	}

	data, err := decodeRows[T](rows)
	if err != nil {
		return domain.Slice[T]{Err: err, Error: err.Error()}
	}

	if s.cache != nil {
		if payload, err := json.Marshal(data); err == nil {
			_ = s.cache.Set(ctx, tenantID, key, payload, s.ttl)
		}
	}

	return domain.Slice[T]{Data: data}
}

// decodeRows converts the gateway's pre-shaped rows into typed slice rows.
func decodeRows[T any](rows []map[string]any) ([]T, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to encode aggregate rows: %w", err)
	}
	var data []T
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("failed to decode aggregate rows: %w", err)
	}
	return data, nil
}

// cacheKey builds the composite slice key: category, year, period and the
// effective salesperson.
func cacheKey(category string, cfg domain.ReportConfig) string {
	period := "all"
	if cfg.Monthly() {
		period = fmt.Sprintf("m%d", cfg.Month)
	} else if cfg.Week != domain.WholePeriodWeek {
		period = fmt.Sprintf("w%d", cfg.Week)
	}

	sp := cfg.SalespersonCode
	if sp == "" {
		sp = "all"
	}

	return fmt.Sprintf("report:%s:%d:%s:%s", category, cfg.Year, period, sp)
}
