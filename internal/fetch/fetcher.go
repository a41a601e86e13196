// Package fetch retrieves large sales row sets from the gateway in pages.
package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/salesops/harrier/internal/domain"
	"github.com/salesops/harrier/internal/health"
)

// PageError identifies which page of a batch fetch failed. Any page failure
// aborts the whole fetch; partial results are discarded and callers retry
// the whole operation, since a silently missing page would corrupt totals.
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("batch fetch failed at page %d: %v", e.Page, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

// Options narrows a fetch to a search term and/or salesperson.
type Options struct {
	Search          string
	SalespersonCode string
}

// Fetcher pages through sales history with a stable ordering key. The
// paging loop is strictly sequential: each page's range depends on the
// previous page having succeeded.
type Fetcher struct {
	gw      domain.Gateway
	monitor *health.Monitor // read, never awaited; nil disables throttling
	cfg     domain.FetcherConfig
}

// NewFetcher creates a batch fetcher. monitor may be nil.
func NewFetcher(gw domain.Gateway, monitor *health.Monitor, cfg domain.FetcherConfig) *Fetcher {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 100
	}
	if cfg.MinSearchLength <= 0 {
		cfg.MinSearchLength = 2
	}
	return &Fetcher{gw: gw, monitor: monitor, cfg: cfg}
}

// FetchSales returns the complete matching row set. A search term of at
// least MinSearchLength issues a single filtered query; filtered result
// sets are assumed small enough not to require paging. Otherwise the full
// table is paged until a short page or the page cap.
func (f *Fetcher) FetchSales(ctx context.Context, tenantID string, opts Options) ([]domain.SalesRow, error) {
	if len(opts.Search) >= f.cfg.MinSearchLength {
		return f.fetchFiltered(ctx, tenantID, opts)
	}
	return f.fetchPaged(ctx, tenantID, opts)
}

// fetchFiltered issues one OR-combined contains query across the three
// searchable text fields.
func (f *Fetcher) fetchFiltered(ctx context.Context, tenantID string, opts Options) ([]domain.SalesRow, error) {
	q := domain.SelectQuery{
		OrFilters: []domain.Filter{
			{Column: "customer_code", Op: domain.OpContains, Value: opts.Search},
			{Column: "customer_name", Op: domain.OpContains, Value: opts.Search},
			{Column: "search_name", Op: domain.OpContains, Value: opts.Search},
		},
		OrderBy: "customer_code",
	}
	if opts.SalespersonCode != "" {
		q.Filters = append(q.Filters, domain.Filter{
			Column: "salesperson_code", Op: domain.OpEq, Value: opts.SalespersonCode,
		})
	}

	start := time.Now()
	rows, err := f.gw.SelectSales(ctx, tenantID, q)
	f.record(time.Since(start), err == nil)
	if err != nil {
		return nil, &PageError{Page: 0, Err: err}
	}
	return rows, nil
}

// fetchPaged walks the full table in fixed-size pages ordered by customer
// code, stopping at a short page (end of data) or the hard page cap.
func (f *Fetcher) fetchPaged(ctx context.Context, tenantID string, opts Options) ([]domain.SalesRow, error) {
	var all []domain.SalesRow

	for page := 0; page < f.cfg.MaxPages; page++ {
		if page > 0 {
			f.pause(ctx)
		}

		q := domain.SelectQuery{
			OrderBy: "customer_code",
			Start:   page * f.cfg.PageSize,
			End:     (page+1)*f.cfg.PageSize - 1,
		}
		if opts.SalespersonCode != "" {
			q.Filters = append(q.Filters, domain.Filter{
				Column: "salesperson_code", Op: domain.OpEq, Value: opts.SalespersonCode,
			})
		}

		start := time.Now()
		rows, err := f.gw.SelectSales(ctx, tenantID, q)
		f.record(time.Since(start), err == nil)
		if err != nil {
			return nil, &PageError{Page: page, Err: err}
		}

		all = append(all, rows...)
		if len(rows) < f.cfg.PageSize {
			break
		}
	}

	return all, nil
}

// pause sleeps for the monitor's recommended inter-batch delay, bounded by
// the context.
func (f *Fetcher) pause(ctx context.Context) {
	if f.monitor == nil {
		return
	}
	delay := f.monitor.RecommendedBatchDelay()
	if delay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

func (f *Fetcher) record(latency time.Duration, ok bool) {
	if f.monitor != nil {
		f.monitor.Record(latency, ok)
	}
}
