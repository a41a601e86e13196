package domain

import (
	"time"
)

// HealthState classifies gateway connection health. It is recomputed from
// scratch on every tick, so transitions can jump in either direction.
type HealthState string

const (
	HealthHealthy  HealthState = "healthy"
	HealthDegraded HealthState = "degraded"
	HealthCritical HealthState = "critical"
)

// Alert types emitted by the connection health monitor.
const (
	AlertPoolExhaustion     = "pool_exhaustion"
	AlertHighLatency        = "high_latency"
	AlertConnectionFailures = "connection_failures"
	AlertResourcePressure   = "resource_pressure"
)

// Alert severities.
const (
	AlertWarning  = "warning"
	AlertCritical = "critical"
)

// ConnectionMetrics is a point-in-time view of the monitor's rolling state.
type ConnectionMetrics struct {
	AverageResponseTimeMs float64 `json:"averageResponseTimeMs"`
	// ErrorRate is the failure percentage over the last 20 samples only,
	// a shorter and more reactive window than the latency average.
	ErrorRate           float64 `json:"errorRate"`
	ConnectionPoolUsage float64 `json:"connectionPoolUsage"`
	SampleCount         int     `json:"sampleCount"`
	LongRunningQueries  int     `json:"longRunningQueries"`
}

// ConnectionAlert records a crossed threshold. Alerts are deduplicated by
// type within a 5-minute window and pruned after an hour.
type ConnectionAlert struct {
	Type      string            `json:"type"`
	Severity  string            `json:"severity"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
	Metrics   ConnectionMetrics `json:"metrics"`
}

// HealthSnapshot is the exported view consumed by UI and ops tooling.
type HealthSnapshot struct {
	Health               HealthState `json:"health"`
	ResponseTimeMs       float64     `json:"responseTime"`
	ErrorRate            float64     `json:"errorRate"`
	RecommendedBatchSize int         `json:"recommendedBatchSize"`
	RecommendedDelayMs   int64       `json:"recommendedDelay"`
	Alerts               int         `json:"alerts"`
}

// MonitorConfig holds connection health monitor settings.
type MonitorConfig struct {
	// ProbeInterval between health probes. Default 30s.
	ProbeInterval time.Duration

	// ProbeTimeout bounds the manual connection test. Default 10s.
	ProbeTimeout time.Duration

	// DefaultBatchSize is the caller-side default scaled by health tier.
	DefaultBatchSize int
}
