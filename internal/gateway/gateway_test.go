package gateway

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/salesops/harrier/internal/domain"
)

const testTenant = "tenant-001"

func newTestGateway(t *testing.T) domain.Gateway {
	t.Helper()
	gw, err := New(domain.GatewayConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "harrier_test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create gateway: %v", err)
	}
	t.Cleanup(func() { gw.Close() })
	return gw
}

func salesRow(customer, salesperson, item, doc string, amount float64, date time.Time) domain.SalesRow {
	return domain.SalesRow{
		CustomerCode:    customer,
		CustomerName:    customer + " Inc",
		SalespersonCode: salesperson,
		ItemNo:          item,
		ItemDescription: "Description of " + item,
		Quantity:        1,
		Amount:          amount,
		PostingDate:     date,
		DocumentNo:      doc,
	}
}

func TestInsertAndSelect(t *testing.T) {
	gw := newTestGateway(t)
	ctx := context.Background()
	date := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)

	rows := []domain.SalesRow{
		salesRow("C-100", "SP-1", "ITEM-A", "DOC-1", 150, date),
		salesRow("C-100", "SP-1", "ITEM-B", "DOC-1", 80, date),
		salesRow("C-200", "SP-2", "ITEM-A", "DOC-2", 300, date.AddDate(0, 0, 1)),
	}
	if err := gw.InsertSales(ctx, testTenant, rows); err != nil {
		t.Fatalf("InsertSales failed: %v", err)
	}

	t.Run("SelectAll", func(t *testing.T) {
		got, err := gw.SelectSales(ctx, testTenant, domain.SelectQuery{OrderBy: "posting_date"})
		if err != nil {
			t.Fatalf("SelectSales failed: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 rows, got %d", len(got))
		}
		if got[0].CustomerCode != "C-100" || got[0].Amount != 150 {
			t.Errorf("unexpected first row: %+v", got[0])
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		got, err := gw.SelectSales(ctx, "other-tenant", domain.SelectQuery{})
		if err != nil {
			t.Fatalf("SelectSales failed: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected no rows for another tenant, got %d", len(got))
		}
	})

	t.Run("TenantIsRequired", func(t *testing.T) {
		if _, err := gw.SelectSales(ctx, "", domain.SelectQuery{}); err == nil {
			t.Error("expected error for empty tenant on select")
		}
		if err := gw.InsertSales(ctx, "", rows); err == nil {
			t.Error("expected error for empty tenant on insert")
		}
	})

	t.Run("EqFilter", func(t *testing.T) {
		got, err := gw.SelectSales(ctx, testTenant, domain.SelectQuery{
			Filters: []domain.Filter{{Column: "salesperson_code", Op: domain.OpEq, Value: "SP-2"}},
		})
		if err != nil {
			t.Fatalf("SelectSales failed: %v", err)
		}
		if len(got) != 1 || got[0].CustomerCode != "C-200" {
			t.Errorf("unexpected filtered rows: %+v", got)
		}
	})

	t.Run("ContainsOrFilters", func(t *testing.T) {
		// Case-insensitive substring across two columns, OR-combined.
		got, err := gw.SelectSales(ctx, testTenant, domain.SelectQuery{
			OrFilters: []domain.Filter{
				{Column: "customer_name", Op: domain.OpContains, Value: "c-200 INC"},
				{Column: "customer_code", Op: domain.OpContains, Value: "no-match"},
			},
		})
		if err != nil {
			t.Fatalf("SelectSales failed: %v", err)
		}
		if len(got) != 1 || got[0].CustomerCode != "C-200" {
			t.Errorf("unexpected search result: %+v", got)
		}
	})

	t.Run("RangePaging", func(t *testing.T) {
		got, err := gw.SelectSales(ctx, testTenant, domain.SelectQuery{
			OrderBy: "posting_date",
			Start:   1,
			End:     2,
		})
		if err != nil {
			t.Fatalf("SelectSales failed: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("expected 2 rows for range [1,2], got %d", len(got))
		}
	})

	t.Run("UnknownFilterOp", func(t *testing.T) {
		_, err := gw.SelectSales(ctx, testTenant, domain.SelectQuery{
			Filters: []domain.Filter{{Column: "amount", Op: "gt", Value: "1"}},
		})
		if err == nil {
			t.Error("expected error for unsupported filter op")
		}
	})
}

func TestInsertDuplicate(t *testing.T) {
	gw := newTestGateway(t)
	ctx := context.Background()
	date := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)

	rows := []domain.SalesRow{salesRow("C-100", "SP-1", "ITEM-A", "DOC-1", 150, date)}
	if err := gw.InsertSales(ctx, testTenant, rows); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	err := gw.InsertSales(ctx, testTenant, rows)
	if !domain.IsDuplicateKey(err) {
		t.Errorf("expected duplicate key error, got %v", err)
	}

	// A conflicting row rolls back the whole batch.
	batch := []domain.SalesRow{
		salesRow("C-300", "SP-1", "ITEM-C", "DOC-9", 50, date),
		salesRow("C-100", "SP-1", "ITEM-A", "DOC-1", 150, date),
	}
	if err := gw.InsertSales(ctx, testTenant, batch); !domain.IsDuplicateKey(err) {
		t.Fatalf("expected duplicate key error, got %v", err)
	}
	got, err := gw.SelectSales(ctx, testTenant, domain.SelectQuery{})
	if err != nil {
		t.Fatalf("SelectSales failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected the failed batch to be rolled back, got %d rows", len(got))
	}
}

func TestClassifyErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"SqliteUnique", errors.New("constraint failed: UNIQUE constraint failed: sales_transactions.tenant_id"), domain.ErrDuplicateKey},
		{"SqliteMissingTable", errors.New("SQL logic error: no such table: customer_channels"), domain.ErrMissingRelation},
		{"SqliteMissingColumn", errors.New("SQL logic error: no such column: channel_name"), domain.ErrMissingRelation},
		{"PostgresMissingRelation", errors.New(`relation "customer_channels" does not exist`), domain.ErrMissingRelation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyErr(tt.err); !errors.Is(got, tt.want) {
				t.Errorf("classifyErr(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	t.Run("NilPassesThrough", func(t *testing.T) {
		if classifyErr(nil) != nil {
			t.Error("expected nil")
		}
	})

	t.Run("UnknownErrorUnchanged", func(t *testing.T) {
		err := errors.New("disk I/O error")
		if got := classifyErr(err); got != err {
			t.Errorf("expected unchanged error, got %v", got)
		}
	})
}

func TestLookupsAndCounts(t *testing.T) {
	gw := newTestGateway(t)
	ctx := context.Background()

	sqlGw := gw.(*SQLGateway)
	mustExec := func(query string, args ...any) {
		t.Helper()
		if _, err := sqlGw.db.ExecContext(ctx, query, args...); err != nil {
			t.Fatalf("exec failed: %v", err)
		}
	}

	mustExec(`INSERT INTO customer_channels (tenant_id, customer_code, channel_name) VALUES (?, ?, ?)`,
		testTenant, "C-100", "Retail")
	mustExec(`INSERT INTO sample_requests (id, tenant_id, customer_code, requested_at) VALUES (?, ?, ?, ?)`,
		"sr-1", testTenant, "C-100", time.Now().UTC())
	mustExec(`INSERT INTO sample_requests (id, tenant_id, customer_code, requested_at) VALUES (?, ?, ?, ?)`,
		"sr-2", testTenant, "C-100", time.Now().UTC())
	mustExec(`INSERT INTO customer_activities (id, tenant_id, customer_code, activity_type, occurred_at) VALUES (?, ?, ?, ?, ?)`,
		"act-1", testTenant, "C-200", "visit", time.Now().UTC())

	channels, err := gw.LookupChannels(ctx, testTenant)
	if err != nil {
		t.Fatalf("LookupChannels failed: %v", err)
	}
	if channels["C-100"] != "Retail" {
		t.Errorf("unexpected channels: %v", channels)
	}

	samples, err := gw.CountSampleRequests(ctx, testTenant)
	if err != nil {
		t.Fatalf("CountSampleRequests failed: %v", err)
	}
	if samples["C-100"] != 2 {
		t.Errorf("expected 2 sample requests, got %v", samples)
	}

	activities, err := gw.CountActivities(ctx, testTenant)
	if err != nil {
		t.Fatalf("CountActivities failed: %v", err)
	}
	if activities["C-200"] != 1 {
		t.Errorf("expected 1 activity, got %v", activities)
	}
}

// seedReportData loads a fixture with known churn, growth and trend shapes
// for June 2026 (prior window: May 2026).
func seedReportData(t *testing.T, gw domain.Gateway) {
	t.Helper()
	may := time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC)
	june := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)

	rows := []domain.SalesRow{
		// C-OLD bought heavily in May, nothing in June: churned, high risk.
		salesRow("C-OLD", "SP-1", "ITEM-A", "DOC-10", 12000, may),
		// C-STAY is active in both windows.
		salesRow("C-STAY", "SP-1", "ITEM-A", "DOC-11", 1000, may),
		salesRow("C-STAY", "SP-1", "ITEM-A", "DOC-12", 5000, june),
		// C-NEW's first order falls inside June.
		salesRow("C-NEW", "SP-2", "ITEM-B", "DOC-13", 900, june),
		// ITEM-B collapsed from May to June.
		salesRow("C-STAY", "SP-1", "ITEM-B", "DOC-14", 1000, may),
		salesRow("C-STAY", "SP-1", "ITEM-B", "DOC-15", 100, june.AddDate(0, 0, 1)),
	}
	if err := gw.InsertSales(context.Background(), testTenant, rows); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

var juneParams = domain.AggregateParams{Year: 2026, Month: 6}

func TestCallAggregate(t *testing.T) {
	gw := newTestGateway(t)
	seedReportData(t, gw)
	ctx := context.Background()

	t.Run("CustomerChurn", func(t *testing.T) {
		rows, err := gw.CallAggregate(ctx, testTenant, AggCustomerChurn, juneParams)
		if err != nil {
			t.Fatalf("CallAggregate failed: %v", err)
		}
		if len(rows) != 1 {
			t.Fatalf("expected 1 churned customer, got %d", len(rows))
		}
		if rows[0]["customerCode"] != "C-OLD" || rows[0]["riskLevel"] != "high" {
			t.Errorf("unexpected churn row: %v", rows[0])
		}
	})

	t.Run("NewCustomers", func(t *testing.T) {
		rows, err := gw.CallAggregate(ctx, testTenant, AggNewCustomers, juneParams)
		if err != nil {
			t.Fatalf("CallAggregate failed: %v", err)
		}
		if len(rows) != 1 {
			t.Fatalf("expected 1 new customer, got %d", len(rows))
		}
		if rows[0]["customerCode"] != "C-NEW" || rows[0]["periodTurnover"] != 900.0 {
			t.Errorf("unexpected new customer row: %v", rows[0])
		}
	})

	t.Run("ProductPerformance", func(t *testing.T) {
		rows, err := gw.CallAggregate(ctx, testTenant, AggProductPerformance, juneParams)
		if err != nil {
			t.Fatalf("CallAggregate failed: %v", err)
		}

		trends := map[string]string{}
		for _, r := range rows {
			trends[r["itemNo"].(string)] = r["trendStatus"].(string)
		}
		if trends["ITEM-A"] != domain.ProductSurging {
			t.Errorf("expected ITEM-A surging, got %s", trends["ITEM-A"])
		}
		if trends["ITEM-B"] != domain.ProductDeclining {
			t.Errorf("expected ITEM-B declining, got %s", trends["ITEM-B"])
		}
	})

	t.Run("SalespersonPerformance", func(t *testing.T) {
		rows, err := gw.CallAggregate(ctx, testTenant, AggSalespersons, juneParams)
		if err != nil {
			t.Fatalf("CallAggregate failed: %v", err)
		}
		if len(rows) != 2 {
			t.Fatalf("expected 2 salespersons, got %d", len(rows))
		}
		// Ordered by turnover: SP-1 (5100 in June) before SP-2 (900).
		if rows[0]["salespersonCode"] != "SP-1" || rows[1]["salespersonCode"] != "SP-2" {
			t.Errorf("unexpected ordering: %v", rows)
		}
	})

	t.Run("PredictiveChurn", func(t *testing.T) {
		rows, err := gw.CallAggregate(ctx, testTenant, AggPredictiveChurn, juneParams)
		if err != nil {
			t.Fatalf("CallAggregate failed: %v", err)
		}
		if len(rows) != 1 {
			t.Fatalf("expected 1 flagged customer, got %d", len(rows))
		}
		if rows[0]["customerCode"] != "C-OLD" || rows[0]["churnProbability"] != 1.0 {
			t.Errorf("unexpected predictive row: %v", rows[0])
		}
		if rows[0]["signal"] != "no orders this period" {
			t.Errorf("unexpected signal: %v", rows[0]["signal"])
		}
	})

	t.Run("Validation", func(t *testing.T) {
		// One zero-amount artifact in the window.
		bad := salesRow("C-STAY", "SP-1", "ITEM-C", "DOC-99", 0, time.Date(2026, 6, 20, 0, 0, 0, 0, time.UTC))
		if err := gw.InsertSales(ctx, testTenant, []domain.SalesRow{bad}); err != nil {
			t.Fatalf("insert failed: %v", err)
		}

		rows, err := gw.CallAggregate(ctx, testTenant, AggValidation, juneParams)
		if err != nil {
			t.Fatalf("CallAggregate failed: %v", err)
		}
		byName := map[string]map[string]any{}
		for _, r := range rows {
			byName[r["checkName"].(string)] = r
		}
		if byName["zero_amount"]["failedCount"] != 1 || byName["zero_amount"]["status"] != "failed" {
			t.Errorf("unexpected zero_amount check: %v", byName["zero_amount"])
		}
		if byName["missing_customer_code"]["status"] != "ok" {
			t.Errorf("unexpected missing_customer_code check: %v", byName["missing_customer_code"])
		}
	})

	t.Run("ValidationFallback", func(t *testing.T) {
		rows, err := gw.CallAggregate(ctx, testTenant, AggValidationFallback, juneParams)
		if err != nil {
			t.Fatalf("CallAggregate failed: %v", err)
		}
		if len(rows) != 1 || rows[0]["status"] != "ok" {
			t.Errorf("unexpected fallback result: %v", rows)
		}
	})

	t.Run("UnknownProcedure", func(t *testing.T) {
		if _, err := gw.CallAggregate(ctx, testTenant, "no_such_procedure", juneParams); err == nil {
			t.Error("expected error for unknown procedure")
		}
	})

	t.Run("SalespersonScoping", func(t *testing.T) {
		params := juneParams
		params.SalespersonCode = "SP-2"
		rows, err := gw.CallAggregate(ctx, testTenant, AggNewCustomers, params)
		if err != nil {
			t.Fatalf("CallAggregate failed: %v", err)
		}
		if len(rows) != 1 || rows[0]["customerCode"] != "C-NEW" {
			t.Errorf("unexpected scoped result: %v", rows)
		}
	})
}

func TestPeriodBounds(t *testing.T) {
	t.Run("MonthTakesPrecedence", func(t *testing.T) {
		p, err := periodBounds(domain.AggregateParams{Year: 2026, Week: 10, Month: 6})
		if err != nil {
			t.Fatalf("periodBounds failed: %v", err)
		}
		want := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
		if !p.Start.Equal(want) {
			t.Errorf("expected June start, got %v", p.Start)
		}
		if !p.End.Equal(want.AddDate(0, 1, 0)) {
			t.Errorf("expected July end, got %v", p.End)
		}
	})

	t.Run("WholeYearWhenNoPeriod", func(t *testing.T) {
		p, err := periodBounds(domain.AggregateParams{Year: 2026})
		if err != nil {
			t.Fatalf("periodBounds failed: %v", err)
		}
		if p.End.Sub(p.Start) < 364*24*time.Hour {
			t.Errorf("expected a full year, got %v", p.End.Sub(p.Start))
		}
	})

	t.Run("PriorWindowHasEqualLength", func(t *testing.T) {
		p, err := periodBounds(domain.AggregateParams{Year: 2026, Week: 24})
		if err != nil {
			t.Fatalf("periodBounds failed: %v", err)
		}
		if p.Start.Sub(p.PriorStart) != p.End.Sub(p.Start) {
			t.Errorf("prior window length mismatch: %v vs %v", p.Start.Sub(p.PriorStart), p.End.Sub(p.Start))
		}
	})

	t.Run("IsoWeekOneContainsJanuaryFourth", func(t *testing.T) {
		start := isoWeekStart(2026, 1)
		jan4 := time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC)
		if jan4.Before(start) || !jan4.Before(start.AddDate(0, 0, 7)) {
			t.Errorf("January 4th must fall in ISO week 1, week starts %v", start)
		}
		if start.Weekday() != time.Monday {
			t.Errorf("ISO weeks start on Monday, got %s", start.Weekday())
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		if _, err := periodBounds(domain.AggregateParams{}); err == nil {
			t.Error("expected error for missing year")
		}
		if _, err := periodBounds(domain.AggregateParams{Year: 2026, Month: 13}); err == nil {
			t.Error("expected error for month 13")
		}
		if _, err := periodBounds(domain.AggregateParams{Year: 2026, Week: 54}); err == nil {
			t.Error("expected error for week 54")
		}
	})
}

func TestProductTrend(t *testing.T) {
	tests := []struct {
		name       string
		cur, prior float64
		want       string
	}{
		{"NoBaselineWithSales", 100, 0, domain.ProductSurging},
		{"NoBaselineNoSales", 0, 0, domain.ProductSteady},
		{"StrongGrowth", 130, 100, domain.ProductSurging},
		{"AtUpperThreshold", 125, 100, domain.ProductSteady},
		{"AtLowerThreshold", 75, 100, domain.ProductSteady},
		{"SharpDecline", 70, 100, domain.ProductDeclining},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := productTrend(tt.cur, tt.prior); got != tt.want {
				t.Errorf("productTrend(%.0f, %.0f) = %s, want %s", tt.cur, tt.prior, got, tt.want)
			}
		})
	}
}
