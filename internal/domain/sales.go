// Package domain defines the core interfaces and types for Harrier.
package domain

import (
	"time"
)

// SalesRow is a single line of sales history as stored in the gateway.
// One document may span multiple line rows; document_no is the natural
// grouping key for order counting.
type SalesRow struct {
	CustomerCode     string    `json:"customer_code"`
	CustomerName     string    `json:"customer_name"`
	SearchName       string    `json:"search_name"`
	CustomerTypeCode string    `json:"customer_type_code"`
	SalespersonCode  string    `json:"salesperson_code"`
	ItemNo           string    `json:"item_no"`
	ItemDescription  string    `json:"item_description"`
	Quantity         float64   `json:"quantity"`
	Amount           float64   `json:"amount"`
	PostingDate      time.Time `json:"posting_date"`
	DocumentNo       string    `json:"document_no"`
}

// Trend classifies turnover movement between the recent and previous
// six-month windows.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// CustomerAnalytics is the derived per-customer record produced by the
// aggregation engine. Rebuilt from scratch on every fetch, never mutated
// incrementally.
type CustomerAnalytics struct {
	CustomerCode         string    `json:"customerCode"`
	CustomerName         string    `json:"customerName"`
	SalespersonCode      string    `json:"salespersonCode"`
	TotalTurnover        float64   `json:"totalTurnover"`
	FirstTransactionDate time.Time `json:"firstTransactionDate"`
	LastTransactionDate  time.Time `json:"lastTransactionDate"`

	// RecentTurnover covers the trailing 6 months, PreviousTurnover the
	// 6-12 month window. The two windows are disjoint and contiguous.
	RecentTurnover   float64 `json:"recentTurnover"`
	PreviousTurnover float64 `json:"previousTurnover"`

	// TotalTransactions counts distinct document numbers, not line rows.
	TotalTransactions    int     `json:"totalTransactions"`
	TransactionFrequency float64 `json:"transactionFrequency"`
	AverageOrderValue    float64 `json:"averageOrderValue"`
	Trending             Trend   `json:"trending"`

	// Enrichment from secondary lookups; defaults when the lookup is absent.
	ChannelName        string `json:"channelName,omitempty"`
	SampleRequestCount int    `json:"sampleRequestCount"`
	ActivityCount      int    `json:"activityCount"`
}
