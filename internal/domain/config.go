package domain

import "time"

// Config holds the complete Harrier configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines backing services
	Tier Tier `json:"tier"`

	// Component configurations
	Gateway  GatewayConfig  `json:"gateway"`
	Cache    CacheConfig    `json:"cache"`
	EventBus EventBusConfig `json:"eventBus"`
	Monitor  MonitorConfig  `json:"monitor"`
	Fetcher  FetcherConfig  `json:"fetcher"`
	Ingest   IngestConfig   `json:"ingest"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// FetcherConfig holds batch fetcher settings.
type FetcherConfig struct {
	// PageSize rows per page when paging the full table.
	PageSize int `json:"pageSize"`

	// MaxPages is the safety cap against runaway paging.
	MaxPages int `json:"maxPages"`

	// MinSearchLength below which a search term falls back to full paging.
	MinSearchLength int `json:"minSearchLength"`
}

// IngestConfig holds bulk insert settings.
type IngestConfig struct {
	// BatchSize default, scaled down by the health monitor.
	BatchSize int `json:"batchSize"`

	// MaxBatchSize caps monitor recommendations.
	MaxBatchSize int `json:"maxBatchSize"`

	// MaxAttempts per batch before recording it as failed.
	MaxAttempts int `json:"maxAttempts"`

	// TimeoutMs bounds each batch attempt.
	TimeoutMs int `json:"timeoutMs"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Gateway: GatewayConfig{
			Driver:     "sqlite",
			SQLitePath: "./harrier.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			ReportTTL:    5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Monitor: MonitorConfig{
			ProbeInterval:    30 * time.Second,
			ProbeTimeout:     10 * time.Second,
			DefaultBatchSize: 500,
		},
		Fetcher: FetcherConfig{
			PageSize:        1000,
			MaxPages:        100,
			MinSearchLength: 2,
		},
		Ingest: IngestConfig{
			BatchSize:    500,
			MaxBatchSize: 1000,
			MaxAttempts:  3,
			TimeoutMs:    30000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "harrier",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Gateway = GatewayConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "harrier",
		MaxOpenConns: 20,
		MaxIdleConns: 5,
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       5 * time.Minute,
		ReportTTL:      5 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
