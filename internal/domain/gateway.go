package domain

import (
	"context"
	"errors"
)

// Typed gateway errors. Driver-specific failures are classified into these
// sentinels so callers never inspect driver error strings themselves.
var (
	// ErrDuplicateKey marks a unique-constraint violation. Bulk insert
	// treats it as an idempotent success, not a failure.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrMissingRelation marks a query against a table or column that does
	// not exist. Enrichment lookups default instead of failing on it.
	ErrMissingRelation = errors.New("relation does not exist")
)

// IsDuplicateKey reports whether err is a unique-constraint conflict.
func IsDuplicateKey(err error) bool {
	return errors.Is(err, ErrDuplicateKey)
}

// IsMissingRelation reports whether err means the queried table or column
// is absent from the schema.
func IsMissingRelation(err error) bool {
	return errors.Is(err, ErrMissingRelation)
}

// FilterOp is a column predicate operator.
type FilterOp string

const (
	OpEq       FilterOp = "eq"
	OpNotNull  FilterOp = "not_null"
	OpContains FilterOp = "contains" // case-insensitive substring match
)

// Filter is a single column predicate.
type Filter struct {
	Column string
	Op     FilterOp
	Value  string
}

// SelectQuery describes a filtered row query against the gateway.
// Filters are combined with AND; OrFilters are combined with OR and
// ANDed against the rest.
type SelectQuery struct {
	Filters   []Filter
	OrFilters []Filter

	// OrderBy is the stable ordering key; required for paged queries.
	OrderBy string

	// Start and End select the inclusive row range [Start,End].
	Start int
	End   int
}

// AggregateParams parameterizes a named aggregate procedure call.
// Week and Month are mutually exclusive period selectors.
type AggregateParams struct {
	Year            int    `json:"year"`
	Week            int    `json:"week,omitempty"`
	Month           int    `json:"month,omitempty"`
	SalespersonCode string `json:"salespersonCode,omitempty"`
}

// PoolStats reports connection pool usage for the health monitor.
type PoolStats struct {
	InUse       int
	Idle        int
	MaxOpen     int
	WaitCount   int64
	InFlightSum int
}

// Usage returns pool utilisation in [0,1]. Zero when the pool is unbounded.
func (p PoolStats) Usage() float64 {
	if p.MaxOpen <= 0 {
		return 0
	}
	return float64(p.InUse) / float64(p.MaxOpen)
}

// Gateway is the remote data store: filtered row queries, named aggregate
// procedures returning pre-shaped rows, and bulk insert.
// All methods require tenantID for strict multi-tenancy isolation.
type Gateway interface {
	// SelectSales runs a filtered row query over sales history.
	SelectSales(ctx context.Context, tenantID string, q SelectQuery) ([]SalesRow, error)

	// CallAggregate invokes a named aggregate procedure and returns its
	// pre-shaped result rows.
	CallAggregate(ctx context.Context, tenantID string, name string, params AggregateParams) ([]map[string]any, error)

	// InsertSales bulk-inserts a batch of rows. A unique-constraint
	// violation anywhere in the batch surfaces as ErrDuplicateKey.
	InsertSales(ctx context.Context, tenantID string, rows []SalesRow) error

	// LookupChannels returns customer_code -> channel name.
	LookupChannels(ctx context.Context, tenantID string) (map[string]string, error)

	// CountSampleRequests returns customer_code -> sample request count.
	CountSampleRequests(ctx context.Context, tenantID string) (map[string]int, error)

	// CountActivities returns customer_code -> activity count.
	CountActivities(ctx context.Context, tenantID string) (map[string]int, error)

	// PoolStats reports connection pool usage.
	PoolStats() PoolStats

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// GatewayConfig holds configuration for gateway initialization.
type GatewayConfig struct {
	// Driver is the storage driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns int
	MaxIdleConns int
}
