// Benchmark tool for load-testing Harrier with sales transaction data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/sales.csv -url http://localhost:8080
//
// This tool:
//   1. Reads sales transaction data from a CSV export
//   2. Imports it through POST /sales/import in concurrent batches
//   3. Runs GET /customers/analytics against the imported data
//   4. Reports import throughput and analytics latency
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// SalesRecord represents a row from the sales CSV export.
type SalesRecord struct {
	CustomerCode    string  `json:"customer_code"`
	CustomerName    string  `json:"customer_name"`
	SalespersonCode string  `json:"salesperson_code,omitempty"`
	ItemNo          string  `json:"item_no"`
	ItemDescription string  `json:"item_description,omitempty"`
	Quantity        float64 `json:"quantity"`
	Amount          float64 `json:"amount"`
	PostingDate     string  `json:"posting_date"`
	DocumentNo      string  `json:"document_no"`
}

// ImportRequest is the Harrier import request format.
type ImportRequest struct {
	Rows []SalesRecord `json:"rows"`
}

// ImportResult is the Harrier import response format.
type ImportResult struct {
	SuccessCount  int     `json:"success_count"`
	ErrorCount    int     `json:"error_count"`
	RejectedCount int     `json:"rejected_count"`
	DurationMs    int64   `json:"duration_ms"`
	RowsPerSecond float64 `json:"rows_per_second"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	BatchesSent   int64
	RowsImported  int64
	RowsFailed    int64
	RowsRejected  int64
	TotalErrors   int64
	ImportTimeMs  int64
	AnalyticsRuns int64
	AnalyticsMs   int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to sales CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Harrier base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 100000, "Maximum rows to import (0 = all)")
	batchSize := flag.Int("batch", 500, "Rows per import request")
	workers := flag.Int("workers", 4, "Number of concurrent import workers")
	analyticsRuns := flag.Int("analytics", 5, "Analytics requests to time after import")
	verbose := flag.Bool("verbose", false, "Print each batch result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/sales.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║           HARRIER BENCHMARK - Sales Import & Analytics        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:     %s\n", *csvPath)
	fmt.Printf("Harrier URL:  %s\n", *baseURL)
	fmt.Printf("Tenant ID:    %s\n", *tenantID)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("Batch Size:   %d\n", *batchSize)
	fmt.Printf("Limit:        %d\n", *limit)
	fmt.Println()

	// Check Harrier is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Harrier not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Harrier is running:")
		fmt.Println("  cd harrier && go run cmd/harrier/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Harrier is healthy")

	// Read sales data
	fmt.Printf("\nReading sales data from %s...\n", *csvPath)
	records, err := readSalesCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d rows\n", len(records))

	// Run import benchmark
	fmt.Printf("\nImporting with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runImport(records, *baseURL, *tenantID, *batchSize, *workers, *verbose)
	importDuration := time.Since(startTime)

	// Time the analytics endpoint against the imported data
	fmt.Printf("\nTiming %d analytics runs...\n", *analyticsRuns)
	runAnalytics(metrics, *baseURL, *tenantID, *analyticsRuns)

	// Print results
	printResults(metrics, importDuration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readSalesCSV(path string, limit int) ([]SalesRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	col := func(record []string, name string) string {
		idx, ok := colIndex[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return record[idx]
	}

	var records []SalesRecord

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		quantity, _ := strconv.ParseFloat(col(record, "quantity"), 64)
		amount, _ := strconv.ParseFloat(col(record, "amount"), 64)

		records = append(records, SalesRecord{
			CustomerCode:    col(record, "customer_code"),
			CustomerName:    col(record, "customer_name"),
			SalespersonCode: col(record, "salesperson_code"),
			ItemNo:          col(record, "item_no"),
			ItemDescription: col(record, "item_description"),
			Quantity:        quantity,
			Amount:          amount,
			PostingDate:     col(record, "posting_date"),
			DocumentNo:      col(record, "document_no"),
		})

		if limit > 0 && len(records) >= limit {
			break
		}
	}

	return records, nil
}

func runImport(records []SalesRecord, baseURL, tenantID string, batchSize, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Create work channel of batches
	work := make(chan []SalesRecord, numWorkers*2)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 60 * time.Second}

			for batch := range work {
				start := time.Now()
				result, err := importBatch(client, baseURL, tenantID, batch)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ImportTimeMs, elapsed)
				atomic.AddInt64(&metrics.BatchesSent, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					atomic.AddInt64(&metrics.RowsFailed, int64(len(batch)))
					if verbose {
						fmt.Printf("ERROR: batch of %d -> %v\n", len(batch), err)
					}
					continue
				}

				atomic.AddInt64(&metrics.RowsImported, int64(result.SuccessCount))
				atomic.AddInt64(&metrics.RowsFailed, int64(result.ErrorCount))
				atomic.AddInt64(&metrics.RowsRejected, int64(result.RejectedCount))

				if verbose {
					fmt.Printf("✓ batch of %-5d | inserted: %-5d | rejected: %-4d | %d ms\n",
						len(batch), result.SuccessCount, result.RejectedCount, elapsed)
				}
			}
		}()
	}

	// Send batches
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		work <- records[start:end]
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func importBatch(client *http.Client, baseURL, tenantID string, batch []SalesRecord) (*ImportResult, error) {
	body, err := json.Marshal(ImportRequest{Rows: batch})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/sales/import", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result ImportResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func runAnalytics(metrics *Metrics, baseURL, tenantID string, runs int) {
	client := &http.Client{Timeout: 120 * time.Second}

	for i := 0; i < runs; i++ {
		req, err := http.NewRequest(http.MethodGet, baseURL+"/customers/analytics", nil)
		if err != nil {
			continue
		}
		req.Header.Set("X-Tenant-ID", tenantID)

		start := time.Now()
		resp, err := client.Do(req)
		elapsed := time.Since(start).Milliseconds()
		if err != nil {
			atomic.AddInt64(&metrics.TotalErrors, 1)
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			atomic.AddInt64(&metrics.AnalyticsRuns, 1)
			atomic.AddInt64(&metrics.AnalyticsMs, elapsed)
		}
	}
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 IMPORT STATISTICS\n")
	fmt.Printf("   Batches Sent:     %d\n", m.BatchesSent)
	fmt.Printf("   Rows Imported:    %d\n", m.RowsImported)
	fmt.Printf("   Rows Rejected:    %d\n", m.RowsRejected)
	fmt.Printf("   Rows Failed:      %d\n", m.RowsFailed)
	fmt.Printf("   Request Errors:   %d\n", m.TotalErrors)

	fmt.Printf("\n⏱️  IMPORT PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.RowsImported > 0 && duration.Seconds() > 0 {
		rps := float64(m.RowsImported) / duration.Seconds()
		fmt.Printf("   Throughput:       %.2f rows/sec\n", rps)
	}
	if m.BatchesSent > 0 {
		avgMs := float64(m.ImportTimeMs) / float64(m.BatchesSent)
		fmt.Printf("   Avg Batch:        %.2f ms\n", avgMs)
	}

	fmt.Printf("\n📈 ANALYTICS PERFORMANCE\n")
	if m.AnalyticsRuns > 0 {
		avgMs := float64(m.AnalyticsMs) / float64(m.AnalyticsRuns)
		fmt.Printf("   Runs:             %d\n", m.AnalyticsRuns)
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
	} else {
		fmt.Println("   No successful analytics runs")
	}

	fmt.Println()
}
