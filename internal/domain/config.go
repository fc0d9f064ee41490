package domain

import "time"

// Config holds the complete Gavel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines which backing services are wired in.
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Engine configurations
	Scoring ScoringConfig `json:"scoring"`
	Drift   DriftConfig   `json:"drift"`
	Proof   ProofConfig   `json:"proof"`

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

// ScoringConfig bounds the scoring worker pool.
type ScoringConfig struct {
	// MaxWorkers caps concurrent (statement, requirement) evaluations.
	MaxWorkers int `json:"maxWorkers"`
}

// DriftConfig holds drift grading policy and fan-out bounds.
type DriftConfig struct {
	Thresholds DriftThresholds `json:"thresholds"`

	// MaxConcurrent caps concurrent per-document drift projections during
	// a publish fan-out.
	MaxConcurrent int `json:"maxConcurrent"`
}

// ProofConfig holds attestation issuance policy.
type ProofConfig struct {
	// TTL is the attestation validity window.
	TTL time.Duration `json:"ttl"`

	// BucketSize is the width of the disclosed score buckets. Scores at or
	// above TopBucket disclose as ">=TopBucket".
	BucketSize float64 `json:"bucketSize"`
	TopBucket  float64 `json:"topBucket"`

	// SigningKeyHex is the hex-encoded Ed25519 seed. Empty means generate
	// an ephemeral key at startup.
	SigningKeyHex string `json:"-"`
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
	ExporterType string `json:"exporterType"` // stdout, otlp
	Endpoint     string `json:"endpoint"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + local LRU.
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis.
	TierPro Tier = "pro"
)

// DefaultConfig returns a default Community-tier configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./gavel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Scoring: ScoringConfig{
			MaxWorkers: 100,
		},
		Drift: DriftConfig{
			Thresholds:    DefaultDriftThresholds(),
			MaxConcurrent: 8,
		},
		Proof: ProofConfig{
			TTL:        90 * 24 * time.Hour,
			BucketSize: 10,
			TopBucket:  90,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "gavel",
		},
	}
}

// ProConfig returns a Pro-tier configuration.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "gavel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
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
