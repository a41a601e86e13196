package domain

import (
	"time"
)

// WholePeriodWeek is the sentinel week value meaning "the whole period"
// rather than a specific ISO week.
const WholePeriodWeek = 0

// ReportConfig selects the reporting period for the dashboard.
// Monthly mode is active when Month is set and Week is not the
// whole-period sentinel; otherwise the report runs weekly.
type ReportConfig struct {
	Year            int    `json:"year"`
	Week            int    `json:"week"`
	Month           int    `json:"month,omitempty"`
	SalespersonCode string `json:"salespersonCode,omitempty"`
}

// Monthly reports whether the config selects monthly mode.
func (c ReportConfig) Monthly() bool {
	return c.Month > 0 && c.Week != WholePeriodWeek
}

// ChurnRow is one at-risk customer from the churn analysis.
type ChurnRow struct {
	CustomerCode  string    `json:"customerCode"`
	CustomerName  string    `json:"customerName"`
	LastOrderDate time.Time `json:"lastOrderDate"`
	PriorTurnover float64   `json:"priorTurnover"`
	RiskLevel     string    `json:"riskLevel"`
}

// NewCustomerRow is a customer whose first transaction falls in the period.
type NewCustomerRow struct {
	CustomerCode   string    `json:"customerCode"`
	CustomerName   string    `json:"customerName"`
	FirstOrderDate time.Time `json:"firstOrderDate"`
	PeriodTurnover float64   `json:"periodTurnover"`
}

// Product trend statuses reported by the product performance aggregate.
const (
	ProductSurging   = "surging"
	ProductDeclining = "declining"
	ProductSteady    = "steady"
)

// ProductRow is per-item performance for the period versus the prior period.
type ProductRow struct {
	ItemNo          string  `json:"itemNo"`
	ItemDescription string  `json:"itemDescription"`
	PeriodTurnover  float64 `json:"periodTurnover"`
	PriorTurnover   float64 `json:"priorTurnover"`
	TrendStatus     string  `json:"trendStatus"`
}

// SalespersonRow is per-salesperson performance for the period.
type SalespersonRow struct {
	SalespersonCode string  `json:"salespersonCode"`
	Turnover        float64 `json:"turnover"`
	OrderCount      int     `json:"orderCount"`
	CustomerCount   int     `json:"customerCount"`
}

// PredictiveChurnRow is a customer flagged by the predictive churn heuristic.
type PredictiveChurnRow struct {
	CustomerCode     string  `json:"customerCode"`
	CustomerName     string  `json:"customerName"`
	ChurnProbability float64 `json:"churnProbability"`
	Signal           string  `json:"signal"`
}

// ValidationRow is one data-quality check result.
type ValidationRow struct {
	CheckName   string `json:"checkName"`
	FailedCount int    `json:"failedCount"`
	Status      string `json:"status"`
}

// Summary severities.
const (
	SeverityLow    = "LOW"
	SeverityMedium = "MEDIUM"
	SeverityHigh   = "HIGH"
)

// ExecutiveSummary is derived once the churn, new-customer and product
// slices have all resolved.
type ExecutiveSummary struct {
	AtRiskCustomers int    `json:"atRiskCustomers"`
	NewCustomers    int    `json:"newCustomers"`
	NetProductTrend int    `json:"netProductTrend"`
	Severity        string `json:"severity"`
	Insight         string `json:"insight"`
}

// Slice carries one analytic slice's outcome. A slice can fail without
// affecting its siblings; Skipped marks a slice deliberately not issued.
type Slice[T any] struct {
	Data    []T    `json:"data,omitempty"`
	Err     error  `json:"-"`
	Error   string `json:"error,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
}

// OK reports whether the slice resolved with data and no error.
func (s Slice[T]) OK() bool {
	return s.Err == nil && !s.Skipped
}

// Dashboard is the full six-slice report plus the derived summary.
// Summary is nil unless churn, new customers and products all resolved.
type Dashboard struct {
	Config          ReportConfig              `json:"config"`
	Churn           Slice[ChurnRow]           `json:"churn"`
	NewCustomers    Slice[NewCustomerRow]     `json:"newCustomers"`
	Products        Slice[ProductRow]         `json:"products"`
	Salespersons    Slice[SalespersonRow]     `json:"salespersons"`
	PredictiveChurn Slice[PredictiveChurnRow] `json:"predictiveChurn"`
	Validation      Slice[ValidationRow]      `json:"validation"`
	Summary         *ExecutiveSummary         `json:"summary,omitempty"`
	GeneratedAt     time.Time                 `json:"generatedAt"`
}
