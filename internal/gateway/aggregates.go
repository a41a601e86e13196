package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/salesops/harrier/internal/domain"
)

// Named aggregate procedures. Callers address these by name through
// CallAggregate, the same way they would call a hosted RPC function.
const (
	AggCustomerChurn      = "customer_churn_analysis"
	AggNewCustomers       = "new_customer_analysis"
	AggProductPerformance = "product_performance"
	AggSalespersons       = "salesperson_performance"
	AggPredictiveChurn    = "predictive_churn"
	AggValidation         = "sales_data_validation"
	AggValidationFallback = "sales_data_validation_fallback"
)

// Churn risk thresholds on prior-period turnover.
const (
	churnRiskHigh   = 10000.0
	churnRiskMedium = 2500.0
)

// Product trend thresholds: +-25% period-over-period change.
const productTrendThreshold = 0.25

// CallAggregate invokes a named aggregate procedure and returns its rows.
// Period bounds are computed here and passed as query arguments, which keeps
// the SQL portable across drivers.
func (g *SQLGateway) CallAggregate(ctx context.Context, tenantID string, name string, params domain.AggregateParams) ([]map[string]any, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	p, err := periodBounds(params)
	if err != nil {
		return nil, err
	}

	switch name {
	case AggCustomerChurn:
		return g.customerChurn(ctx, tenantID, p, params.SalespersonCode)
	case AggNewCustomers:
		return g.newCustomers(ctx, tenantID, p, params.SalespersonCode)
	case AggProductPerformance:
		return g.productPerformance(ctx, tenantID, p, params.SalespersonCode)
	case AggSalespersons:
		return g.salespersonPerformance(ctx, tenantID, p)
	case AggPredictiveChurn:
		return g.predictiveChurn(ctx, tenantID, p, params.SalespersonCode)
	case AggValidation:
		return g.dataValidation(ctx, tenantID, p)
	case AggValidationFallback:
		return g.dataValidationFallback(ctx, tenantID, p)
	default:
		return nil, fmt.Errorf("unknown aggregate procedure: %s", name)
	}
}

// period holds the current reporting window and the equal-length window
// immediately before it.
type period struct {
	Start      time.Time
	End        time.Time
	PriorStart time.Time
}

// periodBounds resolves year/week/month into concrete time windows.
// Month takes precedence over week; week 0 means the whole year.
func periodBounds(params domain.AggregateParams) (period, error) {
	if params.Year <= 0 {
		return period{}, fmt.Errorf("year is required")
	}

	var start, end time.Time
	switch {
	case params.Month > 0:
		if params.Month > 12 {
			return period{}, fmt.Errorf("invalid month: %d", params.Month)
		}
		start = time.Date(params.Year, time.Month(params.Month), 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, 0)
	case params.Week > 0:
		if params.Week > 53 {
			return period{}, fmt.Errorf("invalid week: %d", params.Week)
		}
		start = isoWeekStart(params.Year, params.Week)
		end = start.AddDate(0, 0, 7)
	default:
		start = time.Date(params.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(1, 0, 0)
	}

	return period{
		Start:      start,
		End:        end,
		PriorStart: start.Add(-end.Sub(start)),
	}, nil
}

// isoWeekStart returns the Monday of the given ISO week.
// January 4th always falls in ISO week 1.
func isoWeekStart(year, week int) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	weekday := int(jan4.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	week1Monday := jan4.AddDate(0, 0, 1-weekday)
	return week1Monday.AddDate(0, 0, (week-1)*7)
}

func (g *SQLGateway) customerChurn(ctx context.Context, tenantID string, p period, salesperson string) ([]map[string]any, error) {
	query := `
		SELECT customer_code, MAX(customer_name), MAX(posting_date), SUM(amount)
		FROM sales_transactions
		WHERE tenant_id = ?
		  AND posting_date >= ? AND posting_date < ?
		  AND customer_code NOT IN (
			SELECT customer_code FROM sales_transactions
			WHERE tenant_id = ? AND posting_date >= ? AND posting_date < ?
		  )
	`
	args := []any{tenantID, p.PriorStart, p.Start, tenantID, p.Start, p.End}
	if salesperson != "" {
		query += " AND salesperson_code = ?"
		args = append(args, salesperson)
	}
	query += " GROUP BY customer_code ORDER BY SUM(amount) DESC"

	rows, err := g.db.QueryContext(ctx, g.rebind(query), args...)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var code, name string
		var lastOrder time.Time
		var turnover float64
		if err := rows.Scan(&code, &name, &lastOrder, &turnover); err != nil {
			return nil, err
		}

		risk := "low"
		switch {
		case turnover > churnRiskHigh:
			risk = "high"
		case turnover > churnRiskMedium:
			risk = "medium"
		}

		out = append(out, map[string]any{
			"customerCode":  code,
			"customerName":  name,
			"lastOrderDate": lastOrder,
			"priorTurnover": turnover,
			"riskLevel":     risk,
		})
	}
	return out, rows.Err()
}

func (g *SQLGateway) newCustomers(ctx context.Context, tenantID string, p period, salesperson string) ([]map[string]any, error) {
	query := `
		SELECT customer_code, MAX(customer_name), MIN(posting_date),
		       SUM(CASE WHEN posting_date >= ? AND posting_date < ? THEN amount ELSE 0 END)
		FROM sales_transactions
		WHERE tenant_id = ?
	`
	args := []any{p.Start, p.End, tenantID}
	if salesperson != "" {
		query += " AND salesperson_code = ?"
		args = append(args, salesperson)
	}
	query += `
		GROUP BY customer_code
		HAVING MIN(posting_date) >= ? AND MIN(posting_date) < ?
		ORDER BY 4 DESC
	`
	args = append(args, p.Start, p.End)

	rows, err := g.db.QueryContext(ctx, g.rebind(query), args...)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var code, name string
		var firstOrder time.Time
		var turnover float64
		if err := rows.Scan(&code, &name, &firstOrder, &turnover); err != nil {
			return nil, err
		}
		out = append(out, map[string]any{
			"customerCode":   code,
			"customerName":   name,
			"firstOrderDate": firstOrder,
			"periodTurnover": turnover,
		})
	}
	return out, rows.Err()
}

func (g *SQLGateway) productPerformance(ctx context.Context, tenantID string, p period, salesperson string) ([]map[string]any, error) {
	query := `
		SELECT item_no, MAX(item_description),
		       SUM(CASE WHEN posting_date >= ? AND posting_date < ? THEN amount ELSE 0 END) AS cur,
		       SUM(CASE WHEN posting_date >= ? AND posting_date < ? THEN amount ELSE 0 END) AS prior
		FROM sales_transactions
		WHERE tenant_id = ? AND posting_date >= ? AND posting_date < ?
		  AND item_no IS NOT NULL AND item_no != ''
	`
	args := []any{p.Start, p.End, p.PriorStart, p.Start, tenantID, p.PriorStart, p.End}
	if salesperson != "" {
		query += " AND salesperson_code = ?"
		args = append(args, salesperson)
	}
	query += " GROUP BY item_no ORDER BY 3 DESC"

	rows, err := g.db.QueryContext(ctx, g.rebind(query), args...)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var item, desc string
		var cur, prior float64
		if err := rows.Scan(&item, &desc, &cur, &prior); err != nil {
			return nil, err
		}
		out = append(out, map[string]any{
			"itemNo":          item,
			"itemDescription": desc,
			"periodTurnover":  cur,
			"priorTurnover":   prior,
			"trendStatus":     productTrend(cur, prior),
		})
	}
	return out, rows.Err()
}

// productTrend classifies period-over-period movement. A product with no
// prior baseline but current sales counts as surging.
func productTrend(cur, prior float64) string {
	if prior == 0 {
		if cur > 0 {
			return domain.ProductSurging
		}
		return domain.ProductSteady
	}
	change := (cur - prior) / prior
	switch {
	case change > productTrendThreshold:
		return domain.ProductSurging
	case change < -productTrendThreshold:
		return domain.ProductDeclining
	default:
		return domain.ProductSteady
	}
}

func (g *SQLGateway) salespersonPerformance(ctx context.Context, tenantID string, p period) ([]map[string]any, error) {
	query := `
		SELECT salesperson_code, SUM(amount),
		       COUNT(DISTINCT document_no), COUNT(DISTINCT customer_code)
		FROM sales_transactions
		WHERE tenant_id = ? AND posting_date >= ? AND posting_date < ?
		  AND salesperson_code IS NOT NULL AND salesperson_code != ''
		GROUP BY salesperson_code
		ORDER BY SUM(amount) DESC
	`

	rows, err := g.db.QueryContext(ctx, g.rebind(query), tenantID, p.Start, p.End)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var code string
		var turnover float64
		var orders, customers int
		if err := rows.Scan(&code, &turnover, &orders, &customers); err != nil {
			return nil, err
		}
		out = append(out, map[string]any{
			"salespersonCode": code,
			"turnover":        turnover,
			"orderCount":      orders,
			"customerCount":   customers,
		})
	}
	return out, rows.Err()
}

func (g *SQLGateway) predictiveChurn(ctx context.Context, tenantID string, p period, salesperson string) ([]map[string]any, error) {
	query := `
		SELECT customer_code, MAX(customer_name),
		       SUM(CASE WHEN posting_date >= ? AND posting_date < ? THEN amount ELSE 0 END) AS cur,
		       SUM(CASE WHEN posting_date >= ? AND posting_date < ? THEN amount ELSE 0 END) AS prior
		FROM sales_transactions
		WHERE tenant_id = ? AND posting_date >= ? AND posting_date < ?
	`
	args := []any{p.Start, p.End, p.PriorStart, p.Start, tenantID, p.PriorStart, p.End}
	if salesperson != "" {
		query += " AND salesperson_code = ?"
		args = append(args, salesperson)
	}
	query += " GROUP BY customer_code"

	rows, err := g.db.QueryContext(ctx, g.rebind(query), args...)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var code, name string
		var cur, prior float64
		if err := rows.Scan(&code, &name, &cur, &prior); err != nil {
			return nil, err
		}
		if prior <= 0 {
			continue
		}

		probability := 1 - cur/prior
		if probability < 0.5 {
			continue
		}
		if probability > 1 {
			probability = 1
		}

		signal := "declining turnover"
		if cur == 0 {
			signal = "no orders this period"
		}

		out = append(out, map[string]any{
			"customerCode":     code,
			"customerName":     name,
			"churnProbability": probability,
			"signal":           signal,
		})
	}
	return out, rows.Err()
}

// dataValidation runs the primary data-quality checks over the period.
func (g *SQLGateway) dataValidation(ctx context.Context, tenantID string, p period) ([]map[string]any, error) {
	query := `
		SELECT
		  COALESCE(SUM(CASE WHEN customer_code IS NULL OR customer_code = '' THEN 1 ELSE 0 END), 0),
		  COALESCE(SUM(CASE WHEN amount = 0 THEN 1 ELSE 0 END), 0),
		  COALESCE(SUM(CASE WHEN posting_date >= ? THEN 1 ELSE 0 END), 0)
		FROM sales_transactions
		WHERE tenant_id = ? AND posting_date >= ? AND posting_date < ?
	`

	var missingCustomer, zeroAmount, futureDate int
	err := g.db.QueryRowContext(ctx, g.rebind(query),
		time.Now().UTC().AddDate(0, 0, 1), tenantID, p.PriorStart, p.End,
	).Scan(&missingCustomer, &zeroAmount, &futureDate)
	if err != nil {
		return nil, classifyErr(err)
	}

	check := func(name string, failed int) map[string]any {
		status := "ok"
		if failed > 0 {
			status = "failed"
		}
		return map[string]any{
			"checkName":   name,
			"failedCount": failed,
			"status":      status,
		}
	}

	return []map[string]any{
		check("missing_customer_code", missingCustomer),
		check("zero_amount", zeroAmount),
		check("future_posting_date", futureDate),
	}, nil
}

// dataValidationFallback is the reduced check used when the primary
// validation call fails: row presence only.
func (g *SQLGateway) dataValidationFallback(ctx context.Context, tenantID string, p period) ([]map[string]any, error) {
	query := `
		SELECT COUNT(*) FROM sales_transactions
		WHERE tenant_id = ? AND posting_date >= ? AND posting_date < ?
	`

	var count int
	if err := g.db.QueryRowContext(ctx, g.rebind(query), tenantID, p.Start, p.End).Scan(&count); err != nil {
		return nil, classifyErr(err)
	}

	status := "ok"
	if count == 0 {
		status = "failed"
	}

	return []map[string]any{{
		"checkName":   "period_has_rows",
		"failedCount": boolToInt(count == 0),
		"status":      status,
	}}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
