// Package aggregate folds raw sales rows into per-customer analytics.
package aggregate

import (
	"sort"
	"time"

	"github.com/salesops/harrier/internal/domain"
)

// Trend threshold: +-10% relative change between the recent and previous
// six-month windows.
const trendThreshold = 0.10

// daysPerMonth converts elapsed days into months for frequency math.
const daysPerMonth = 30.44

// accumulator is the working state for one customer while folding.
type accumulator struct {
	rows  []domain.SalesRow
	total float64
}

// Aggregate folds rows into per-customer analytic records. Pure: the same
// rows and reference time always produce the same output. Records are
// ordered by total turnover descending.
func Aggregate(rows []domain.SalesRow, now time.Time) []domain.CustomerAnalytics {
	if len(rows) == 0 {
		return nil
	}

	// Window cutoffs are computed once per run, not per row, so every
	// customer in the batch sees the same boundary.
	recentCutoff := now.AddDate(0, -6, 0)
	previousCutoff := now.AddDate(0, -12, 0)

	byCustomer := make(map[string]*accumulator)
	order := make([]string, 0)
	for _, row := range rows {
		acc, ok := byCustomer[row.CustomerCode]
		if !ok {
			acc = &accumulator{}
			byCustomer[row.CustomerCode] = acc
			order = append(order, row.CustomerCode)
		}
		acc.rows = append(acc.rows, row)
		acc.total += row.Amount
	}

	out := make([]domain.CustomerAnalytics, 0, len(byCustomer))
	for _, code := range order {
		out = append(out, fold(code, byCustomer[code], recentCutoff, previousCutoff))
	}

	// Business convention: biggest customers first.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalTurnover > out[j].TotalTurnover
	})

	return out
}

// fold computes one customer's record from its accumulated rows.
func fold(code string, acc *accumulator, recentCutoff, previousCutoff time.Time) domain.CustomerAnalytics {
	txs := acc.rows
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].PostingDate.Before(txs[j].PostingDate)
	})

	first := txs[0]
	last := txs[len(txs)-1]

	var recent, previous float64
	docs := make(map[string]struct{})
	for _, tx := range txs {
		// The windows are disjoint and contiguous at the 6-month boundary.
		if tx.PostingDate.After(recentCutoff) {
			recent += tx.Amount
		} else if tx.PostingDate.After(previousCutoff) {
			previous += tx.Amount
		}

		// Rows without a document number still count toward turnover but
		// are excluded from the transaction count.
		if tx.DocumentNo != "" {
			docs[tx.DocumentNo] = struct{}{}
		}
	}

	txCount := len(docs)

	// Guard the frequency math against single-transaction and same-day
	// customers: at least one day elapsed, at least one transaction.
	days := last.PostingDate.Sub(first.PostingDate).Hours() / 24
	if days < 1 {
		days = 1
	}
	months := days / daysPerMonth

	countForMath := txCount
	if countForMath < 1 {
		countForMath = 1
	}

	return domain.CustomerAnalytics{
		CustomerCode:         code,
		CustomerName:         last.CustomerName,
		SalespersonCode:      last.SalespersonCode,
		TotalTurnover:        acc.total,
		FirstTransactionDate: first.PostingDate,
		LastTransactionDate:  last.PostingDate,
		RecentTurnover:       recent,
		PreviousTurnover:     previous,
		TotalTransactions:    txCount,
		TransactionFrequency: float64(countForMath) / months,
		AverageOrderValue:    acc.total / float64(countForMath),
		Trending:             ClassifyTrend(recent, previous),
	}
}

// ClassifyTrend buckets the change between the recent and previous windows.
// New activity with no baseline counts as up.
func ClassifyTrend(recent, previous float64) domain.Trend {
	if previous == 0 {
		if recent > 0 {
			return domain.TrendUp
		}
		return domain.TrendStable
	}

	change := (recent - previous) / previous
	switch {
	case change > trendThreshold:
		return domain.TrendUp
	case change < -trendThreshold:
		return domain.TrendDown
	default:
		return domain.TrendStable
	}
}
