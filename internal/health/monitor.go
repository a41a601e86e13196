// Package health provides the gateway connection health monitor.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/salesops/harrier/internal/domain"
)

// SystemTenant scopes monitor-originated bus traffic.
const SystemTenant = "_system"

// Rolling history and threshold constants.
const (
	historyCap      = 100
	errorRateWindow = 20

	criticalErrorRate = 50.0
	criticalLatencyMs = 10000.0

	// Two degraded condition pairs collapse into the same state; both are
	// kept so behavior at the 10-20% / 2000-5000ms boundary is unchanged.
	degradedErrorRate   = 20.0
	degradedLatencyMs   = 5000.0
	degradedErrorRateLo = 10.0
	degradedLatencyMsLo = 2000.0

	alertDedupWindow = 5 * time.Minute
	alertRetention   = time.Hour

	longQueryThreshold = 5 * time.Second
	maxLongRunning     = 10

	minBatchSize = 5
)

// Monitor periodically probes the gateway, keeps rolling latency and
// outcome histories, classifies connection health, and emits advisory
// batch-size and delay recommendations. It never blocks or cancels the
// operations that consult it.
type Monitor struct {
	gw    domain.Gateway
	bus   domain.EventBus
	cache domain.Cache // optional; enables cross-node alert dedup
	cfg   domain.MonitorConfig

	mu        sync.RWMutex
	latencies []time.Duration
	outcomes  []bool
	alerts    []domain.ConnectionAlert
	lastAlert map[string]time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitor creates a health monitor. bus and cache may be nil.
func NewMonitor(gw domain.Gateway, bus domain.EventBus, cache domain.Cache, cfg domain.MonitorConfig) *Monitor {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	return &Monitor{
		gw:        gw,
		bus:       bus,
		cache:     cache,
		cfg:       cfg,
		lastAlert: make(map[string]time.Time),
	}
}

// Start begins the probe loop. The loop stops when Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.cfg.ProbeInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.tick(ctx)
			}
		}
	}()

	slog.Info("connection health monitor started", "interval", m.cfg.ProbeInterval)
}

// Stop halts the probe loop.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	slog.Info("connection health monitor stopped")
}

// tick issues one probe and re-analyzes alert conditions.
func (m *Monitor) tick(ctx context.Context) {
	latency, err := m.probe(ctx)
	m.Record(latency, err == nil)
	if err != nil {
		slog.Warn("gateway probe failed", "error", err, "latency_ms", latency.Milliseconds())
	}
	m.analyze(ctx)
}

// probe measures one gateway round trip, bounded by the probe timeout.
func (m *Monitor) probe(ctx context.Context) (time.Duration, error) {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	start := time.Now()
	err := m.gw.Ping(probeCtx)
	return time.Since(start), err
}

// Record appends a request outcome to the rolling histories. Fetch and
// insert routines report their own request latencies through this as well.
func (m *Monitor) Record(latency time.Duration, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.latencies = append(m.latencies, latency)
	if len(m.latencies) > historyCap {
		m.latencies = m.latencies[1:]
	}

	m.outcomes = append(m.outcomes, ok)
	if len(m.outcomes) > historyCap {
		m.outcomes = m.outcomes[1:]
	}
}

// Metrics derives the current rolling metrics.
func (m *Monitor) Metrics() domain.ConnectionMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metricsLocked()
}

func (m *Monitor) metricsLocked() domain.ConnectionMetrics {
	var metrics domain.ConnectionMetrics
	metrics.SampleCount = len(m.latencies)

	if len(m.latencies) > 0 {
		var sum time.Duration
		for _, l := range m.latencies {
			sum += l
			if l > longQueryThreshold {
				metrics.LongRunningQueries++
			}
		}
		metrics.AverageResponseTimeMs = float64(sum.Milliseconds()) / float64(len(m.latencies))
	}

	// Error rate uses only the most recent samples: a shorter, more
	// reactive window than the latency average.
	window := m.outcomes
	if len(window) > errorRateWindow {
		window = window[len(window)-errorRateWindow:]
	}
	if len(window) > 0 {
		failures := 0
		for _, ok := range window {
			if !ok {
				failures++
			}
		}
		metrics.ErrorRate = float64(failures) / float64(len(window)) * 100
	}

	if m.gw != nil {
		metrics.ConnectionPoolUsage = m.gw.PoolStats().Usage()
	}

	return metrics
}

// Classify maps rolling metrics onto a health state. Pure and stateless:
// the state is recomputed from scratch each cycle and can jump in either
// direction without passing through intermediate states.
func Classify(m domain.ConnectionMetrics) domain.HealthState {
	if m.ErrorRate >= criticalErrorRate || m.AverageResponseTimeMs > criticalLatencyMs {
		return domain.HealthCritical
	}
	if m.ErrorRate > degradedErrorRate || m.AverageResponseTimeMs > degradedLatencyMs {
		return domain.HealthDegraded
	}
	if m.ErrorRate > degradedErrorRateLo || m.AverageResponseTimeMs > degradedLatencyMsLo {
		return domain.HealthDegraded
	}
	return domain.HealthHealthy
}

// Health returns the current health classification.
func (m *Monitor) Health() domain.HealthState {
	return Classify(m.Metrics())
}

// OptimalBatchSize scales the caller-supplied default down by health tier
// and resource pressure. Advisory only.
func (m *Monitor) OptimalBatchSize(defaultSize, maxSize int) int {
	metrics := m.Metrics()

	size := float64(defaultSize)
	switch Classify(metrics) {
	case domain.HealthCritical:
		size *= 0.3
	case domain.HealthDegraded:
		size *= 0.6
	}

	if metrics.ConnectionPoolUsage > 0.8 {
		size *= 0.7
	}
	if metrics.AverageResponseTimeMs > 3000 {
		size *= 0.8
	}

	result := int(size)
	if result < minBatchSize {
		result = minBatchSize
	}
	if maxSize > 0 && result > maxSize {
		result = maxSize
	}
	return result
}

// RecommendedBatchDelay returns the advisory pause between batches: a base
// delay per health tier plus up to 3s extra proportional to latency.
func (m *Monitor) RecommendedBatchDelay() time.Duration {
	metrics := m.Metrics()

	var base time.Duration
	switch Classify(metrics) {
	case domain.HealthCritical:
		base = 2000 * time.Millisecond
	case domain.HealthDegraded:
		base = 1000 * time.Millisecond
	default:
		base = 200 * time.Millisecond
	}

	extra := time.Duration(metrics.AverageResponseTimeMs/2) * time.Millisecond
	if extra > 3*time.Second {
		extra = 3 * time.Second
	}

	return base + extra
}

// ShouldActivateCircuitBreaker advises callers against starting new bulk
// work. Enforcement is the caller's responsibility.
func (m *Monitor) ShouldActivateCircuitBreaker() bool {
	metrics := m.Metrics()
	if Classify(metrics) == domain.HealthCritical {
		return true
	}
	if metrics.ErrorRate > criticalErrorRate {
		return true
	}
	if metrics.LongRunningQueries > maxLongRunning {
		return true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	criticalAlerts := 0
	cutoff := time.Now().Add(-alertRetention)
	for _, a := range m.alerts {
		if a.Severity == domain.AlertCritical && a.Timestamp.After(cutoff) {
			criticalAlerts++
		}
	}
	return criticalAlerts > 2
}

// TestConnection runs a manual probe bounded by the probe timeout and
// records the outcome.
func (m *Monitor) TestConnection(ctx context.Context) (time.Duration, error) {
	latency, err := m.probe(ctx)
	m.Record(latency, err == nil)
	return latency, err
}

// Snapshot exports the health view consumed by UI and ops tooling.
func (m *Monitor) Snapshot() domain.HealthSnapshot {
	metrics := m.Metrics()

	m.mu.RLock()
	alertCount := len(m.alerts)
	m.mu.RUnlock()

	return domain.HealthSnapshot{
		Health:               Classify(metrics),
		ResponseTimeMs:       metrics.AverageResponseTimeMs,
		ErrorRate:            metrics.ErrorRate,
		RecommendedBatchSize: m.OptimalBatchSize(m.cfg.DefaultBatchSize, 0),
		RecommendedDelayMs:   m.RecommendedBatchDelay().Milliseconds(),
		Alerts:               alertCount,
	}
}

// Alerts returns the unexpired alert list.
func (m *Monitor) Alerts() []domain.ConnectionAlert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.ConnectionAlert, len(m.alerts))
	copy(out, m.alerts)
	return out
}

// analyze evaluates alert thresholds, appends deduplicated alerts, prunes
// expired ones, and publishes new alerts to the bus.
func (m *Monitor) analyze(ctx context.Context) {
	metrics := m.Metrics()
	now := time.Now()

	var candidates []domain.ConnectionAlert

	if metrics.ConnectionPoolUsage > 0.8 {
		severity := domain.AlertWarning
		if metrics.ConnectionPoolUsage > 0.9 {
			severity = domain.AlertCritical
		}
		candidates = append(candidates, domain.ConnectionAlert{
			Type:     domain.AlertPoolExhaustion,
			Severity: severity,
			Message:  "connection pool usage is high",
		})
	}

	if metrics.AverageResponseTimeMs > degradedLatencyMs {
		severity := domain.AlertWarning
		if metrics.AverageResponseTimeMs > criticalLatencyMs {
			severity = domain.AlertCritical
		}
		candidates = append(candidates, domain.ConnectionAlert{
			Type:     domain.AlertHighLatency,
			Severity: severity,
			Message:  "average gateway latency is elevated",
		})
	}

	if metrics.ErrorRate > degradedErrorRate {
		severity := domain.AlertWarning
		if metrics.ErrorRate >= criticalErrorRate {
			severity = domain.AlertCritical
		}
		candidates = append(candidates, domain.ConnectionAlert{
			Type:     domain.AlertConnectionFailures,
			Severity: severity,
			Message:  "gateway requests are failing",
		})
	}

	if metrics.LongRunningQueries > maxLongRunning/2 {
		severity := domain.AlertWarning
		if metrics.LongRunningQueries > maxLongRunning {
			severity = domain.AlertCritical
		}
		candidates = append(candidates, domain.ConnectionAlert{
			Type:     domain.AlertResourcePressure,
			Severity: severity,
			Message:  "too many long-running queries",
		})
	}

	m.mu.Lock()

	// Prune alerts past retention on every analysis pass.
	cutoff := now.Add(-alertRetention)
	kept := m.alerts[:0]
	for _, a := range m.alerts {
		if a.Timestamp.After(cutoff) {
			kept = append(kept, a)
		}
	}
	m.alerts = kept

	var emitted []domain.ConnectionAlert
	for _, c := range candidates {
		if last, ok := m.lastAlert[c.Type]; ok && now.Sub(last) < alertDedupWindow {
			continue
		}
		m.lastAlert[c.Type] = now

		c.Timestamp = now
		c.Metrics = metrics
		m.alerts = append(m.alerts, c)
		emitted = append(emitted, c)
	}

	m.mu.Unlock()

	for _, a := range emitted {
		m.publishAlert(ctx, a)
	}
}

// publishAlert sends the alert to the bus, deduplicating across nodes
// through the cache counter when one is configured.
func (m *Monitor) publishAlert(ctx context.Context, alert domain.ConnectionAlert) {
	if m.cache != nil {
		count, err := m.cache.IncrementCounter(ctx, SystemTenant, "alert:"+alert.Type, alertDedupWindow)
		if err == nil && count > 1 {
			return // another node already raised this alert in the window
		}
	}

	slog.Warn("connection alert",
		"type", alert.Type,
		"severity", alert.Severity,
		"message", alert.Message,
		"error_rate", alert.Metrics.ErrorRate,
		"avg_latency_ms", alert.Metrics.AverageResponseTimeMs,
	)

	if m.bus == nil {
		return
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return
	}
	if err := m.bus.Publish(ctx, SystemTenant, domain.TopicConnectionAlert, payload); err != nil {
		slog.Error("failed to publish connection alert", "error", err)
	}
}
