// Package ingest performs resilient bulk insertion of sales rows.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/salesops/harrier/internal/domain"
	"github.com/salesops/harrier/internal/health"
	"github.com/salesops/harrier/internal/validate"
)

// Retry backoff bounds, in milliseconds.
const (
	backoffBaseMs = 1000
	backoffCapMs  = 30000
)

// BatchInfo describes the batch a progress callback refers to.
type BatchInfo struct {
	Batch     int `json:"batch"`
	Batches   int `json:"batches"`
	BatchSize int `json:"batch_size"`
}

// ProgressFunc receives progress after every batch attempt resolves.
// current and total count rows, not batches.
type ProgressFunc func(current, total int, info BatchInfo)

// BatchError records one batch that exhausted its retries. SampleRow is the
// first row of the failed batch, kept for diagnostics.
type BatchError struct {
	Batch     int             `json:"batch"`
	Rows      int             `json:"rows"`
	Message   string          `json:"message"`
	SampleRow *domain.SalesRow `json:"sample_row,omitempty"`
}

// Result is the outcome of a bulk insert. The operation itself never fails;
// all failures are itemised here.
type Result struct {
	SuccessCount  int           `json:"success_count"`
	ErrorCount    int           `json:"error_count"`
	RejectedCount int           `json:"rejected_count"`
	Rejections    []Rejection   `json:"rejections,omitempty"`
	Errors        []BatchError  `json:"errors,omitempty"`
	Duration      time.Duration `json:"-"`
	DurationMs    int64         `json:"duration_ms"`
	RowsPerSecond float64       `json:"rows_per_second"`
}

// Rejection records a row dropped by validation before insertion.
type Rejection struct {
	Row        int                  `json:"row"`
	Violations []validate.Violation `json:"violations"`
}

// Inserter writes sales rows in monitor-sized batches with exponential
// backoff retries. Duplicate-key conflicts are treated as success: the rows
// are already present, so re-running an import is idempotent.
type Inserter struct {
	gw        domain.Gateway
	monitor   *health.Monitor  // nil disables adaptive sizing and pacing
	validator *validate.Engine // nil disables pre-insert validation
	cfg       domain.IngestConfig
}

// NewInserter creates a bulk inserter. monitor and validator may be nil.
func NewInserter(gw domain.Gateway, monitor *health.Monitor, validator *validate.Engine, cfg domain.IngestConfig) *Inserter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1000
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.TimeoutMs <= 0 {
		cfg.TimeoutMs = 30000
	}
	return &Inserter{gw: gw, monitor: monitor, validator: validator, cfg: cfg}
}

// BulkInsert writes rows in batches and reports the outcome. It never
// returns an error: per-batch failures are collected in the result so a bad
// batch cannot abort the rest of an import.
func (ins *Inserter) BulkInsert(ctx context.Context, tenantID string, rows []domain.SalesRow, progress ProgressFunc) *Result {
	started := time.Now()
	result := &Result{}

	rows = ins.filterValid(rows, result)
	total := len(rows)
	if total == 0 {
		result.Duration = time.Since(started)
		result.DurationMs = result.Duration.Milliseconds()
		return result
	}

	batchSize := ins.cfg.BatchSize
	if ins.monitor != nil {
		batchSize = ins.monitor.OptimalBatchSize(ins.cfg.BatchSize, ins.cfg.MaxBatchSize)
	}

	batches := (total + batchSize - 1) / batchSize
	slog.Info("starting bulk insert",
		"tenant_id", tenantID,
		"rows", total,
		"batch_size", batchSize,
		"batches", batches)

	done := 0
	for b := 0; b < batches; b++ {
		if b > 0 {
			ins.pause(ctx)
		}

		start := b * batchSize
		end := min(start+batchSize, total)
		batch := rows[start:end]

		if err := ins.insertBatch(ctx, tenantID, batch); err != nil {
			sample := batch[0]
			result.ErrorCount += len(batch)
			result.Errors = append(result.Errors, BatchError{
				Batch:     b,
				Rows:      len(batch),
				Message:   err.Error(),
				SampleRow: &sample,
			})
			slog.Error("batch failed after retries",
				"tenant_id", tenantID, "batch", b, "rows", len(batch), "error", err)
		} else {
			result.SuccessCount += len(batch)
		}

		done = end
		if progress != nil {
			progress(done, total, BatchInfo{Batch: b + 1, Batches: batches, BatchSize: len(batch)})
		}
	}

	result.Duration = time.Since(started)
	result.DurationMs = result.Duration.Milliseconds()
	if secs := result.Duration.Seconds(); secs > 0 {
		result.RowsPerSecond = float64(result.SuccessCount) / secs
	}

	slog.Info("bulk insert finished",
		"tenant_id", tenantID,
		"inserted", result.SuccessCount,
		"failed", result.ErrorCount,
		"rejected", result.RejectedCount,
		"duration_ms", result.DurationMs)

	return result
}

// insertBatch attempts one batch up to MaxAttempts times, each attempt under
// its own deadline. A duplicate-key conflict means the rows already exist
// and counts as success.
func (ins *Inserter) insertBatch(ctx context.Context, tenantID string, batch []domain.SalesRow) error {
	var lastErr error

	for attempt := 1; attempt <= ins.cfg.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(ins.cfg.TimeoutMs)*time.Millisecond)
		start := time.Now()
		err := ins.gw.InsertSales(attemptCtx, tenantID, batch)
		cancel()

		ins.record(time.Since(start), err == nil || domain.IsDuplicateKey(err))

		if err == nil {
			return nil
		}
		if domain.IsDuplicateKey(err) {
			slog.Debug("batch already present, treating as success", "tenant_id", tenantID)
			return nil
		}

		lastErr = err
		if attempt < ins.cfg.MaxAttempts {
			delay := backoffDelay(attempt)
			slog.Warn("batch insert failed, retrying",
				"tenant_id", tenantID, "attempt", attempt, "delay_ms", delay.Milliseconds(), "error", err)
			select {
			case <-ctx.Done():
				return fmt.Errorf("insert aborted: %w", ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("batch failed after %d attempts: %w", ins.cfg.MaxAttempts, lastErr)
}

// filterValid drops rows that fail validation, recording each rejection.
func (ins *Inserter) filterValid(rows []domain.SalesRow, result *Result) []domain.SalesRow {
	if ins.validator == nil || ins.validator.CheckCount() == 0 {
		return rows
	}

	valid := rows[:0:0]
	for i, row := range rows {
		if violations := ins.validator.Validate(row); len(violations) > 0 {
			result.RejectedCount++
			result.Rejections = append(result.Rejections, Rejection{Row: i, Violations: violations})
			continue
		}
		valid = append(valid, row)
	}
	return valid
}

func (ins *Inserter) pause(ctx context.Context) {
	if ins.monitor == nil {
		return
	}
	delay := ins.monitor.RecommendedBatchDelay()
	if delay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

func (ins *Inserter) record(latency time.Duration, ok bool) {
	if ins.monitor != nil {
		ins.monitor.Record(latency, ok)
	}
}

// backoffDelay returns the exponential retry delay for an attempt number
// starting at 1, capped at 30 seconds.
func backoffDelay(attempt int) time.Duration {
	ms := backoffBaseMs
	for i := 1; i < attempt; i++ {
		ms *= 2
		if ms >= backoffCapMs {
			return backoffCapMs * time.Millisecond
		}
	}
	return time.Duration(ms) * time.Millisecond
}
