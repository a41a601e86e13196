// Package gateway provides the remote data store adapter.
package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/salesops/harrier/internal/domain"
)

// SQLGateway implements domain.Gateway using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLGateway struct {
	db     *sql.DB
	driver string
}

// New creates a new gateway based on configuration.
func New(cfg domain.GatewayConfig) (domain.Gateway, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	gw := &SQLGateway{
		db:     db,
		driver: cfg.Driver,
	}

	if err := gw.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return gw, nil
}

func (g *SQLGateway) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := g.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

const salesColumns = `customer_code, customer_name, search_name, customer_type_code,
	salesperson_code, item_no, item_description, quantity, amount, posting_date, document_no`

// SelectSales runs a filtered row query with tenant isolation.
func (g *SQLGateway) SelectSales(ctx context.Context, tenantID string, q domain.SelectQuery) ([]domain.SalesRow, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	var sb strings.Builder
	args := []any{tenantID}

	sb.WriteString("SELECT " + salesColumns + " FROM sales_transactions WHERE tenant_id = ?")

	for _, f := range q.Filters {
		clause, arg, ok := buildPredicate(f)
		if !ok {
			return nil, fmt.Errorf("unsupported filter op: %s", f.Op)
		}
		sb.WriteString(" AND " + clause)
		if arg != nil {
			args = append(args, arg)
		}
	}

	if len(q.OrFilters) > 0 {
		clauses := make([]string, 0, len(q.OrFilters))
		for _, f := range q.OrFilters {
			clause, arg, ok := buildPredicate(f)
			if !ok {
				return nil, fmt.Errorf("unsupported filter op: %s", f.Op)
			}
			clauses = append(clauses, clause)
			if arg != nil {
				args = append(args, arg)
			}
		}
		sb.WriteString(" AND (" + strings.Join(clauses, " OR ") + ")")
	}

	if q.OrderBy != "" {
		sb.WriteString(" ORDER BY " + q.OrderBy)
	}

	if q.End > 0 || q.Start > 0 {
		sb.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, q.End-q.Start+1, q.Start)
	}

	rows, err := g.db.QueryContext(ctx, g.rebind(sb.String()), args...)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()

	var result []domain.SalesRow
	for rows.Next() {
		var r domain.SalesRow
		if err := rows.Scan(
			&r.CustomerCode, &r.CustomerName, &r.SearchName, &r.CustomerTypeCode,
			&r.SalespersonCode, &r.ItemNo, &r.ItemDescription,
			&r.Quantity, &r.Amount, &r.PostingDate, &r.DocumentNo,
		); err != nil {
			return nil, err
		}
		result = append(result, r)
	}

	return result, rows.Err()
}

// buildPredicate translates a Filter into a SQL clause. The bool result is
// false for unknown operators. not_null takes no argument.
func buildPredicate(f domain.Filter) (string, any, bool) {
	switch f.Op {
	case domain.OpEq:
		return f.Column + " = ?", f.Value, true
	case domain.OpNotNull:
		return f.Column + " IS NOT NULL", nil, true
	case domain.OpContains:
		// LOWER+LIKE keeps case-insensitive matching portable across drivers.
		return "LOWER(" + f.Column + ") LIKE '%' || LOWER(?) || '%'", f.Value, true
	default:
		return "", nil, false
	}
}

// InsertSales bulk-inserts rows in a single transaction. Any constraint
// violation rolls back the batch and surfaces as ErrDuplicateKey.
func (g *SQLGateway) InsertSales(ctx context.Context, tenantID string, rows []domain.SalesRow) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}
	if len(rows) == 0 {
		return nil
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return classifyErr(err)
	}

	query := g.rebind(`
		INSERT INTO sales_transactions (
			tenant_id, ` + salesColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		tx.Rollback()
		return classifyErr(err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			tenantID, r.CustomerCode, r.CustomerName, r.SearchName, r.CustomerTypeCode,
			r.SalespersonCode, r.ItemNo, r.ItemDescription,
			r.Quantity, r.Amount, r.PostingDate, r.DocumentNo,
		); err != nil {
			tx.Rollback()
			return classifyErr(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return classifyErr(err)
	}
	return nil
}

// LookupChannels returns customer_code -> channel name.
func (g *SQLGateway) LookupChannels(ctx context.Context, tenantID string) (map[string]string, error) {
	query := `SELECT customer_code, channel_name FROM customer_channels WHERE tenant_id = ?`

	rows, err := g.db.QueryContext(ctx, g.rebind(query), tenantID)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()

	channels := make(map[string]string)
	for rows.Next() {
		var code, name string
		if err := rows.Scan(&code, &name); err != nil {
			return nil, err
		}
		channels[code] = name
	}
	return channels, rows.Err()
}

// CountSampleRequests returns customer_code -> sample request count.
func (g *SQLGateway) CountSampleRequests(ctx context.Context, tenantID string) (map[string]int, error) {
	query := `SELECT customer_code, COUNT(*) FROM sample_requests WHERE tenant_id = ? GROUP BY customer_code`
	return g.countByCustomer(ctx, query, tenantID)
}

// CountActivities returns customer_code -> activity count.
func (g *SQLGateway) CountActivities(ctx context.Context, tenantID string) (map[string]int, error) {
	query := `SELECT customer_code, COUNT(*) FROM customer_activities WHERE tenant_id = ? GROUP BY customer_code`
	return g.countByCustomer(ctx, query, tenantID)
}

func (g *SQLGateway) countByCustomer(ctx context.Context, query string, tenantID string) (map[string]int, error) {
	rows, err := g.db.QueryContext(ctx, g.rebind(query), tenantID)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var code string
		var n int
		if err := rows.Scan(&code, &n); err != nil {
			return nil, err
		}
		counts[code] = n
	}
	return counts, rows.Err()
}

// PoolStats reports connection pool usage.
func (g *SQLGateway) PoolStats() domain.PoolStats {
	s := g.db.Stats()
	return domain.PoolStats{
		InUse:     s.InUse,
		Idle:      s.Idle,
		MaxOpen:   s.MaxOpenConnections,
		WaitCount: s.WaitCount,
	}
}

// Ping checks database connectivity.
func (g *SQLGateway) Ping(ctx context.Context) error {
	return g.db.PingContext(ctx)
}

// Close closes the database connection.
func (g *SQLGateway) Close() error {
	return g.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (g *SQLGateway) rebind(query string) string {
	if g.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
