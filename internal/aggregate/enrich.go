package aggregate

import (
	"context"
	"log/slog"

	"github.com/salesops/harrier/internal/domain"
)

// Enricher joins auxiliary lookups (channel names, sample request counts,
// activity counts) into aggregated records. The lookups are optional
// collaborators: a missing table or column defaults the field rather than
// failing the aggregation. Core financial aggregates never depend on them.
type Enricher struct {
	gw domain.Gateway
}

// NewEnricher creates an enricher over the gateway's secondary lookups.
func NewEnricher(gw domain.Gateway) *Enricher {
	return &Enricher{gw: gw}
}

// Enrich fills in channel names and auxiliary counts in place.
func (e *Enricher) Enrich(ctx context.Context, tenantID string, records []domain.CustomerAnalytics) {
	if e.gw == nil || len(records) == 0 {
		return
	}

	channels, ok := lookup("customer channels", func() (map[string]string, error) {
		return e.gw.LookupChannels(ctx, tenantID)
	})
	if ok {
		for i := range records {
			records[i].ChannelName = channels[records[i].CustomerCode]
		}
	}

	samples, ok := lookup("sample requests", func() (map[string]int, error) {
		return e.gw.CountSampleRequests(ctx, tenantID)
	})
	if ok {
		for i := range records {
			records[i].SampleRequestCount = samples[records[i].CustomerCode]
		}
	}

	activities, ok := lookup("customer activities", func() (map[string]int, error) {
		return e.gw.CountActivities(ctx, tenantID)
	})
	if ok {
		for i := range records {
			records[i].ActivityCount = activities[records[i].CustomerCode]
		}
	}
}

// lookup runs one optional secondary query. Absence of the relation is
// expected and logged at debug; any other failure is logged and the field
// keeps its zero value. Partial enrichment is acceptable.
func lookup[T any](what string, fn func() (T, error)) (T, bool) {
	result, err := fn()
	if err == nil {
		return result, true
	}

	var zero T
	if domain.IsMissingRelation(err) {
		slog.Debug("enrichment lookup absent", "lookup", what)
		return zero, false
	}
	slog.Warn("enrichment lookup failed", "lookup", what, "error", err)
	return zero, false
}
