package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/salesops/harrier/internal/bus"
	"github.com/salesops/harrier/internal/domain"
	"github.com/salesops/harrier/internal/ingest"
)

// fakeGateway counts inserts and optionally fails them.
type fakeGateway struct {
	inserted atomic.Int64
	failWith error
}

func (g *fakeGateway) SelectSales(ctx context.Context, tenantID string, q domain.SelectQuery) ([]domain.SalesRow, error) {
	return nil, nil
}

func (g *fakeGateway) CallAggregate(ctx context.Context, tenantID string, name string, params domain.AggregateParams) ([]map[string]any, error) {
	return nil, nil
}

func (g *fakeGateway) InsertSales(ctx context.Context, tenantID string, rows []domain.SalesRow) error {
	if g.failWith != nil {
		return g.failWith
	}
	g.inserted.Add(int64(len(rows)))
	return nil
}

func (g *fakeGateway) LookupChannels(ctx context.Context, tenantID string) (map[string]string, error) {
	return nil, nil
}

func (g *fakeGateway) CountSampleRequests(ctx context.Context, tenantID string) (map[string]int, error) {
	return nil, nil
}

func (g *fakeGateway) CountActivities(ctx context.Context, tenantID string) (map[string]int, error) {
	return nil, nil
}

func (g *fakeGateway) PoolStats() domain.PoolStats { return domain.PoolStats{} }
func (g *fakeGateway) Ping(ctx context.Context) error { return nil }
func (g *fakeGateway) Close() error                   { return nil }

func testRows(n int) []domain.SalesRow {
	rows := make([]domain.SalesRow, n)
	for i := range rows {
		rows[i] = domain.SalesRow{
			CustomerCode: fmt.Sprintf("C-%03d", i),
			CustomerName: "Test Customer",
			ItemNo:       "ITEM-1",
			DocumentNo:   fmt.Sprintf("DOC-%03d", i),
			Quantity:     1,
			Amount:       100,
			PostingDate:  time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		}
	}
	return rows
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	gw := &fakeGateway{}
	inserter := ingest.NewInserter(gw, nil, nil, domain.IngestConfig{
		BatchSize:   100,
		MaxAttempts: 1,
	})

	worker := NewWorker(eventBus, inserter, nil)

	t.Run("StartAndStop", func(t *testing.T) {
		cfg := Config{
			TenantIDs: []string{"tenant-001"},
		}

		err := worker.Start(cfg)
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := worker.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}

		err = worker.Stop()
		if err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = worker.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessImportJob", func(t *testing.T) {
		w := NewWorker(eventBus, inserter, nil)

		cfg := Config{
			TenantIDs: []string{"tenant-test"},
		}
		w.Start(cfg)
		defer w.Stop()

		// Track outcome results
		var outcomeReceived atomic.Bool
		var outcomePayload []byte

		eventBus.Subscribe(context.Background(), "tenant-test", domain.TopicIngestResult, func(ctx context.Context, msg *domain.Message) error {
			outcomePayload = msg.Payload
			outcomeReceived.Store(true)
			return nil
		})

		// Allow subscriptions to be active
		time.Sleep(50 * time.Millisecond)

		job := ImportJob{
			JobID:    "job-001",
			TenantID: "tenant-test",
			Rows:     testRows(25),
		}

		payload, _ := json.Marshal(job)
		err := eventBus.Publish(context.Background(), "tenant-test", domain.TopicSalesIngest, payload)
		if err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		// Wait for processing
		time.Sleep(100 * time.Millisecond)

		if !outcomeReceived.Load() {
			t.Fatal("expected import outcome to be published")
		}

		var outcome ImportOutcome
		if err := json.Unmarshal(outcomePayload, &outcome); err != nil {
			t.Fatalf("failed to parse outcome: %v", err)
		}

		if outcome.JobID != "job-001" {
			t.Errorf("expected jobID 'job-001', got '%s'", outcome.JobID)
		}
		if outcome.Deferred {
			t.Error("expected job not to be deferred")
		}
		if outcome.Result == nil || outcome.Result.SuccessCount != 25 {
			t.Errorf("expected 25 inserted rows, got %+v", outcome.Result)
		}
		if gw.inserted.Load() != 25 {
			t.Errorf("expected gateway to receive 25 rows, got %d", gw.inserted.Load())
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		w := NewWorker(eventBus, inserter, nil)

		cfg := Config{
			TenantIDs: []string{"tenant-a", "tenant-b"},
		}
		w.Start(cfg)
		defer w.Stop()

		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions for 2 tenants, got %d", stats.SubscriptionCount)
		}
	})
}

func TestImportJobParsing(t *testing.T) {
	job := ImportJob{
		JobID:    "job-123",
		TenantID: "tenant-001",
		Rows:     testRows(3),
	}

	data, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var parsed ImportJob
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if parsed.JobID != job.JobID {
		t.Errorf("expected JobID '%s', got '%s'", job.JobID, parsed.JobID)
	}
	if len(parsed.Rows) != 3 {
		t.Errorf("expected 3 rows, got %d", len(parsed.Rows))
	}
	if parsed.Rows[0].CustomerCode != "C-000" {
		t.Errorf("unexpected first row: %+v", parsed.Rows[0])
	}
}
