package report

import (
	"github.com/salesops/harrier/internal/domain"
)

// Executive summary thresholds.
const (
	atRiskHigh   = 20
	atRiskMedium = 10

	netTrendHigh = -10
)

// BuildSummary derives the executive summary from the three required
// slices. Callers must only invoke it once churn, new-customer and product
// data have all resolved.
func BuildSummary(churn []domain.ChurnRow, newcomers []domain.NewCustomerRow, products []domain.ProductRow) *domain.ExecutiveSummary {
	surging, declining := 0, 0
	for _, p := range products {
		switch p.TrendStatus {
		case domain.ProductSurging:
			surging++
		case domain.ProductDeclining:
			declining++
		}
	}

	summary := &domain.ExecutiveSummary{
		AtRiskCustomers: len(churn),
		NewCustomers:    len(newcomers),
		NetProductTrend: surging - declining,
	}

	switch {
	case summary.AtRiskCustomers > atRiskHigh:
		summary.Severity = domain.SeverityHigh
		summary.Insight = "at-risk customer count is critical - immediate action needed"
	case summary.NetProductTrend < netTrendHigh:
		summary.Severity = domain.SeverityHigh
		summary.Insight = "product portfolio is declining sharply"
	case summary.AtRiskCustomers > atRiskMedium:
		summary.Severity = domain.SeverityMedium
		summary.Insight = "churn risk is rising, review at-risk accounts"
	case summary.NetProductTrend < 0:
		summary.Severity = domain.SeverityMedium
		summary.Insight = "more products declining than surging"
	default:
		summary.Severity = domain.SeverityLow
		summary.Insight = "sales indicators are stable"
	}

	return summary
}
