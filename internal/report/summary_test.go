package report

import (
	"testing"

	"github.com/salesops/harrier/internal/domain"
)

func churnRows(n int) []domain.ChurnRow {
	return make([]domain.ChurnRow, n)
}

func productRows(surging, declining, steady int) []domain.ProductRow {
	var rows []domain.ProductRow
	for i := 0; i < surging; i++ {
		rows = append(rows, domain.ProductRow{TrendStatus: domain.ProductSurging})
	}
	for i := 0; i < declining; i++ {
		rows = append(rows, domain.ProductRow{TrendStatus: domain.ProductDeclining})
	}
	for i := 0; i < steady; i++ {
		rows = append(rows, domain.ProductRow{TrendStatus: domain.ProductSteady})
	}
	return rows
}

func TestBuildSummary(t *testing.T) {
	tests := []struct {
		name         string
		churn        []domain.ChurnRow
		products     []domain.ProductRow
		wantSeverity string
		wantNetTrend int
	}{
		{
			name:         "StableIndicators",
			churn:        churnRows(3),
			products:     productRows(2, 1, 5),
			wantSeverity: domain.SeverityLow,
			wantNetTrend: 1,
		},
		{
			name:         "ChurnAtMediumBoundaryStaysLow",
			churn:        churnRows(10),
			products:     productRows(1, 1, 0),
			wantSeverity: domain.SeverityLow,
			wantNetTrend: 0,
		},
		{
			name:         "ElevatedChurnIsMedium",
			churn:        churnRows(11),
			products:     productRows(1, 1, 0),
			wantSeverity: domain.SeverityMedium,
			wantNetTrend: 0,
		},
		{
			name:         "ChurnAtHighBoundaryStaysMedium",
			churn:        churnRows(20),
			products:     productRows(0, 0, 0),
			wantSeverity: domain.SeverityMedium,
			wantNetTrend: 0,
		},
		{
			name:         "CriticalChurnIsHigh",
			churn:        churnRows(21),
			products:     productRows(5, 0, 0),
			wantSeverity: domain.SeverityHigh,
			wantNetTrend: 5,
		},
		{
			name:         "NegativeNetTrendIsMedium",
			churn:        churnRows(0),
			products:     productRows(1, 3, 2),
			wantSeverity: domain.SeverityMedium,
			wantNetTrend: -2,
		},
		{
			name:         "SharpPortfolioDeclineIsHigh",
			churn:        churnRows(0),
			products:     productRows(0, 11, 0),
			wantSeverity: domain.SeverityHigh,
			wantNetTrend: -11,
		},
		{
			name:         "NetTrendAtHighBoundaryStaysMedium",
			churn:        churnRows(0),
			products:     productRows(0, 10, 0),
			wantSeverity: domain.SeverityMedium,
			wantNetTrend: -10,
		},
		{
			name:         "EmptySlices",
			churn:        nil,
			products:     nil,
			wantSeverity: domain.SeverityLow,
			wantNetTrend: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary := BuildSummary(tt.churn, []domain.NewCustomerRow{{}}, tt.products)
			if summary.Severity != tt.wantSeverity {
				t.Errorf("expected severity %s, got %s (%s)", tt.wantSeverity, summary.Severity, summary.Insight)
			}
			if summary.NetProductTrend != tt.wantNetTrend {
				t.Errorf("expected net trend %d, got %d", tt.wantNetTrend, summary.NetProductTrend)
			}
			if summary.AtRiskCustomers != len(tt.churn) {
				t.Errorf("expected %d at-risk customers, got %d", len(tt.churn), summary.AtRiskCustomers)
			}
			if summary.NewCustomers != 1 {
				t.Errorf("expected 1 new customer, got %d", summary.NewCustomers)
			}
			if summary.Insight == "" {
				t.Error("expected a non-empty insight")
			}
		})
	}
}
