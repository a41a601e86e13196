// Package worker provides async sales import processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/salesops/harrier/internal/domain"
	"github.com/salesops/harrier/internal/health"
	"github.com/salesops/harrier/internal/ingest"
)

// Worker processes sales import jobs asynchronously from the EventBus.
type Worker struct {
	bus      domain.EventBus
	inserter *ingest.Inserter
	monitor  *health.Monitor // nil disables the circuit breaker check

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string
}

// NewWorker creates a new async import worker.
func NewWorker(bus domain.EventBus, inserter *ingest.Inserter, monitor *health.Monitor) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		inserter: inserter,
		monitor:  monitor,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing import jobs for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicSalesIngest, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts a worker for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicSalesIngest, func(ctx context.Context, msg *domain.Message) error {
		return w.processImport(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicSalesIngest,
	)

	return nil
}

// handleMessage handles messages from the global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processImport(ctx, msg.TenantID, msg)
}

// ImportJob is the message payload for an async sales import.
type ImportJob struct {
	JobID    string            `json:"jobId"`
	TenantID string            `json:"tenantId"`
	Rows     []domain.SalesRow `json:"rows"`
}

// ImportOutcome is published after every processed job, deferred or not.
type ImportOutcome struct {
	JobID      string         `json:"jobId"`
	TenantID   string         `json:"tenantId"`
	Deferred   bool           `json:"deferred"`
	Reason     string         `json:"reason,omitempty"`
	Result     *ingest.Result `json:"result,omitempty"`
	DurationMs int64          `json:"durationMs"`
}

// processImport runs one import job through the bulk inserter.
func (w *Worker) processImport(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var job ImportJob
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		slog.Error("failed to parse import job",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if job.TenantID != "" {
		tenantID = job.TenantID
	}
	jobID := job.JobID
	if jobID == "" {
		jobID = msg.ID
	}

	slog.Debug("processing import job",
		"job_id", jobID,
		"tenant_id", tenantID,
		"rows", len(job.Rows),
	)

	// Defer rather than insert when the connection is in distress. The
	// outcome message lets the producer re-enqueue.
	if w.monitor != nil && w.monitor.ShouldActivateCircuitBreaker() {
		slog.Warn("circuit breaker active, deferring import job",
			"job_id", jobID,
			"tenant_id", tenantID,
		)
		w.publishOutcome(ctx, tenantID, &ImportOutcome{
			JobID:      jobID,
			TenantID:   tenantID,
			Deferred:   true,
			Reason:     "connection circuit breaker active",
			DurationMs: time.Since(start).Milliseconds(),
		})
		return nil
	}

	result := w.inserter.BulkInsert(ctx, tenantID, job.Rows, nil)

	w.publishOutcome(ctx, tenantID, &ImportOutcome{
		JobID:      jobID,
		TenantID:   tenantID,
		Result:     result,
		DurationMs: time.Since(start).Milliseconds(),
	})

	slog.Info("import job processed",
		"job_id", jobID,
		"tenant_id", tenantID,
		"inserted", result.SuccessCount,
		"failed", result.ErrorCount,
		"rejected", result.RejectedCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

func (w *Worker) publishOutcome(ctx context.Context, tenantID string, outcome *ImportOutcome) {
	payload, _ := json.Marshal(outcome)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicIngestResult, payload); err != nil {
		slog.Error("failed to publish import outcome",
			"job_id", outcome.JobID,
			"error", err,
		)
	}
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
