package fetch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/salesops/harrier/internal/domain"
)

// pagedGateway serves a fixed-size table through SelectSales and records
// every query it receives.
type pagedGateway struct {
	totalRows int
	failPage  int // -1 disables failures
	pageSize  int
	queries   []domain.SelectQuery
}

func newPagedGateway(totalRows, pageSize int) *pagedGateway {
	return &pagedGateway{totalRows: totalRows, pageSize: pageSize, failPage: -1}
}

func (g *pagedGateway) SelectSales(ctx context.Context, tenantID string, q domain.SelectQuery) ([]domain.SalesRow, error) {
	g.queries = append(g.queries, q)

	if g.failPage >= 0 && q.Start == g.failPage*g.pageSize {
		return nil, errors.New("connection reset")
	}

	if len(q.OrFilters) > 0 {
		// Filtered query path returns a small fixed set.
		return make([]domain.SalesRow, 7), nil
	}

	if q.Start >= g.totalRows {
		return nil, nil
	}
	end := q.End + 1
	if end > g.totalRows {
		end = g.totalRows
	}
	rows := make([]domain.SalesRow, end-q.Start)
	for i := range rows {
		rows[i].CustomerCode = fmt.Sprintf("C-%06d", q.Start+i)
	}
	return rows, nil
}

func (g *pagedGateway) CallAggregate(ctx context.Context, tenantID string, name string, params domain.AggregateParams) ([]map[string]any, error) {
	return nil, nil
}

func (g *pagedGateway) InsertSales(ctx context.Context, tenantID string, rows []domain.SalesRow) error {
	return nil
}

func (g *pagedGateway) LookupChannels(ctx context.Context, tenantID string) (map[string]string, error) {
	return nil, nil
}

func (g *pagedGateway) CountSampleRequests(ctx context.Context, tenantID string) (map[string]int, error) {
	return nil, nil
}

func (g *pagedGateway) CountActivities(ctx context.Context, tenantID string) (map[string]int, error) {
	return nil, nil
}

func (g *pagedGateway) PoolStats() domain.PoolStats    { return domain.PoolStats{} }
func (g *pagedGateway) Ping(ctx context.Context) error { return nil }
func (g *pagedGateway) Close() error                   { return nil }

func newTestFetcher(gw domain.Gateway) *Fetcher {
	return NewFetcher(gw, nil, domain.FetcherConfig{
		PageSize:        1000,
		MaxPages:        100,
		MinSearchLength: 2,
	})
}

func TestFetchSalesPaging(t *testing.T) {
	ctx := context.Background()

	t.Run("StopsAtShortPage", func(t *testing.T) {
		gw := newPagedGateway(2500, 1000)
		f := newTestFetcher(gw)

		rows, err := f.FetchSales(ctx, "tenant-001", Options{})
		if err != nil {
			t.Fatalf("FetchSales failed: %v", err)
		}
		if len(rows) != 2500 {
			t.Errorf("expected 2500 rows, got %d", len(rows))
		}
		// Pages 0, 1, 2; the short third page ends the loop.
		if len(gw.queries) != 3 {
			t.Errorf("expected 3 page queries, got %d", len(gw.queries))
		}
	})

	t.Run("ExactPageBoundaryIssuesOneExtraQuery", func(t *testing.T) {
		gw := newPagedGateway(2000, 1000)
		f := newTestFetcher(gw)

		rows, err := f.FetchSales(ctx, "tenant-001", Options{})
		if err != nil {
			t.Fatalf("FetchSales failed: %v", err)
		}
		if len(rows) != 2000 {
			t.Errorf("expected 2000 rows, got %d", len(rows))
		}
		// Two full pages, then an empty page to detect the end.
		if len(gw.queries) != 3 {
			t.Errorf("expected 3 page queries, got %d", len(gw.queries))
		}
	})

	t.Run("PageCapBoundsRunawayTables", func(t *testing.T) {
		gw := newPagedGateway(1_000_000, 1000)
		f := newTestFetcher(gw)

		rows, err := f.FetchSales(ctx, "tenant-001", Options{})
		if err != nil {
			t.Fatalf("FetchSales failed: %v", err)
		}
		if len(rows) != 100_000 {
			t.Errorf("expected the 100-page cap (100000 rows), got %d", len(rows))
		}
		if len(gw.queries) != 100 {
			t.Errorf("expected exactly 100 queries, got %d", len(gw.queries))
		}
	})

	t.Run("PageErrorIdentifiesFailedPage", func(t *testing.T) {
		gw := newPagedGateway(10_000, 1000)
		gw.failPage = 3
		f := newTestFetcher(gw)

		rows, err := f.FetchSales(ctx, "tenant-001", Options{})
		if err == nil {
			t.Fatal("expected error")
		}
		// Partial results are discarded, never returned.
		if rows != nil {
			t.Errorf("expected nil rows on failure, got %d", len(rows))
		}

		var pageErr *PageError
		if !errors.As(err, &pageErr) {
			t.Fatalf("expected PageError, got %T", err)
		}
		if pageErr.Page != 3 {
			t.Errorf("expected failed page 3, got %d", pageErr.Page)
		}
	})

	t.Run("RowRangesAreContiguous", func(t *testing.T) {
		gw := newPagedGateway(2500, 1000)
		f := newTestFetcher(gw)

		if _, err := f.FetchSales(ctx, "tenant-001", Options{}); err != nil {
			t.Fatalf("FetchSales failed: %v", err)
		}

		for i, q := range gw.queries {
			wantStart := i * 1000
			wantEnd := wantStart + 999
			if q.Start != wantStart || q.End != wantEnd {
				t.Errorf("page %d: expected range [%d,%d], got [%d,%d]", i, wantStart, wantEnd, q.Start, q.End)
			}
			if q.OrderBy == "" {
				t.Errorf("page %d: paged query must carry a stable ordering key", i)
			}
		}
	})

	t.Run("SalespersonFilterOnEveryPage", func(t *testing.T) {
		gw := newPagedGateway(1500, 1000)
		f := newTestFetcher(gw)

		if _, err := f.FetchSales(ctx, "tenant-001", Options{SalespersonCode: "SP-9"}); err != nil {
			t.Fatalf("FetchSales failed: %v", err)
		}

		for i, q := range gw.queries {
			if len(q.Filters) != 1 || q.Filters[0].Value != "SP-9" {
				t.Errorf("page %d: expected salesperson filter, got %+v", i, q.Filters)
			}
		}
	})
}

func TestFetchSalesSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("SearchIssuesSingleFilteredQuery", func(t *testing.T) {
		gw := newPagedGateway(1_000_000, 1000)
		f := newTestFetcher(gw)

		rows, err := f.FetchSales(ctx, "tenant-001", Options{Search: "acme"})
		if err != nil {
			t.Fatalf("FetchSales failed: %v", err)
		}
		if len(gw.queries) != 1 {
			t.Fatalf("expected 1 query for search, got %d", len(gw.queries))
		}
		if len(rows) != 7 {
			t.Errorf("expected 7 filtered rows, got %d", len(rows))
		}

		q := gw.queries[0]
		if len(q.OrFilters) != 3 {
			t.Errorf("expected 3 OR filters across searchable fields, got %d", len(q.OrFilters))
		}
		for _, filter := range q.OrFilters {
			if filter.Op != domain.OpContains {
				t.Errorf("expected contains filter, got %s", filter.Op)
			}
		}
	})

	t.Run("ShortSearchFallsBackToPaging", func(t *testing.T) {
		gw := newPagedGateway(500, 1000)
		f := newTestFetcher(gw)

		rows, err := f.FetchSales(ctx, "tenant-001", Options{Search: "a"})
		if err != nil {
			t.Fatalf("FetchSales failed: %v", err)
		}
		if len(rows) != 500 {
			t.Errorf("expected full table (500 rows), got %d", len(rows))
		}
		if len(gw.queries[0].OrFilters) != 0 {
			t.Error("expected no search filters for a one-character term")
		}
	})

	t.Run("SearchFailureWrapsPageZero", func(t *testing.T) {
		gw := newPagedGateway(100, 1000)
		gw.failPage = 0
		f := newTestFetcher(gw)

		_, err := f.FetchSales(ctx, "tenant-001", Options{Search: "acme"})
		var pageErr *PageError
		if !errors.As(err, &pageErr) {
			t.Fatalf("expected PageError, got %T", err)
		}
		if pageErr.Page != 0 {
			t.Errorf("expected page 0, got %d", pageErr.Page)
		}
	})
}

func TestFetcherDefaults(t *testing.T) {
	f := NewFetcher(nil, nil, domain.FetcherConfig{})
	if f.cfg.PageSize != 1000 || f.cfg.MaxPages != 100 || f.cfg.MinSearchLength != 2 {
		t.Errorf("unexpected defaults: %+v", f.cfg)
	}
}

// The cap test above pages 100 times with no monitor attached; this guard
// keeps the suite fast if someone wires a monitor into newTestFetcher later.
func TestNoPauseWithoutMonitor(t *testing.T) {
	gw := newPagedGateway(5000, 1000)
	f := newTestFetcher(gw)

	start := time.Now()
	if _, err := f.FetchSales(context.Background(), "tenant-001", Options{}); err != nil {
		t.Fatalf("FetchSales failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("fetch without monitor should not throttle, took %v", elapsed)
	}
}
