package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration, populated from the environment.
type Config struct {
	Venue     VenueConfig
	Books     BookConfig
	Governor  GovernorConfig
	Store     StoreConfig
	Analytics AnalyticsConfig
	Features  FeatureConfig
	Server    ServerConfig
	Log       LogConfig
}

// VenueConfig holds upstream venue endpoints.
type VenueConfig struct {
	WSBaseURL   string `envconfig:"VENUE_WS_URL" default:"wss://stream.binance.com:9443"`
	RestBaseURL string `envconfig:"VENUE_REST_URL" default:"https://api.binance.com"`
	// SnapshotLimit is the level count requested from the snapshot endpoint.
	SnapshotLimit int `envconfig:"VENUE_SNAPSHOT_LIMIT" default:"1000"`
}

// BookConfig governs the book state manager.
type BookConfig struct {
	// MaxSymbols caps concurrently tracked symbols; activation past the cap
	// fails with a capacity error rather than evicting.
	MaxSymbols         int           `envconfig:"BOOK_MAX_SYMBOLS" default:"20"`
	StalenessThreshold time.Duration `envconfig:"BOOK_STALENESS_THRESHOLD" default:"5s"`
	SnapshotRetries    int           `envconfig:"BOOK_SNAPSHOT_RETRIES" default:"3"`
	SnapshotRetryDelay time.Duration `envconfig:"BOOK_SNAPSHOT_RETRY_DELAY" default:"500ms"`
	TopLevels          int           `envconfig:"BOOK_TOP_LEVELS" default:"20"`
	PersistInterval    time.Duration `envconfig:"BOOK_PERSIST_INTERVAL" default:"1s"`
	ReconnectMinDelay  time.Duration `envconfig:"BOOK_RECONNECT_MIN_DELAY" default:"1s"`
	ReconnectMaxDelay  time.Duration `envconfig:"BOOK_RECONNECT_MAX_DELAY" default:"30s"`
}

// GovernorConfig bounds outbound snapshot/fallback request rate. Rate is set
// below the venue's published ceiling to absorb clock skew and concurrent
// callers.
type GovernorConfig struct {
	RequestsPerSecond float64       `envconfig:"GOVERNOR_RPS" default:"8"`
	Burst             int           `envconfig:"GOVERNOR_BURST" default:"4"`
	QueueTimeout      time.Duration `envconfig:"GOVERNOR_QUEUE_TIMEOUT" default:"30s"`
	QueueWarnDepth    int           `envconfig:"GOVERNOR_QUEUE_WARN_DEPTH" default:"16"`
}

// StoreConfig governs the embedded snapshot store.
type StoreConfig struct {
	Path          string        `envconfig:"STORE_PATH" default:"depthwatch.db"`
	Retention     time.Duration `envconfig:"STORE_RETENTION" default:"72h"`
	PruneInterval time.Duration `envconfig:"STORE_PRUNE_INTERVAL" default:"10m"`
}

// AnalyticsConfig carries the statistical thresholds. These are asserted
// operating points, not derived from labeled data; tune before relying on
// them for automated decisions.
type AnalyticsConfig struct {
	// Flow direction ratio thresholds.
	StrongFlowRatio   float64 `envconfig:"ANALYTICS_STRONG_FLOW_RATIO" default:"2.0"`
	ModerateFlowRatio float64 `envconfig:"ANALYTICS_MODERATE_FLOW_RATIO" default:"1.2"`

	// Volume profile.
	ValueAreaFraction float64 `envconfig:"ANALYTICS_VALUE_AREA_FRACTION" default:"0.70"`
	MaxProfileBins    int     `envconfig:"ANALYTICS_MAX_PROFILE_BINS" default:"200"`

	// Anomaly detection.
	ConfidenceFloor       float64 `envconfig:"ANALYTICS_CONFIDENCE_FLOOR" default:"0.6"`
	StuffingUpdateRate    float64 `envconfig:"ANALYTICS_STUFFING_UPDATE_RATE" default:"50"`
	StuffingMaxFillRatio  float64 `envconfig:"ANALYTICS_STUFFING_MAX_FILL_RATIO" default:"0.05"`
	IcebergRefillMultiple float64 `envconfig:"ANALYTICS_ICEBERG_REFILL_MULTIPLE" default:"5.0"`
	IcebergMinRefills     int     `envconfig:"ANALYTICS_ICEBERG_MIN_REFILLS" default:"3"`
	CrashDepthDropRatio   float64 `envconfig:"ANALYTICS_CRASH_DEPTH_DROP_RATIO" default:"0.5"`
	CrashSpreadMultiple   float64 `envconfig:"ANALYTICS_CRASH_SPREAD_MULTIPLE" default:"3.0"`
	CrashCancelRate       float64 `envconfig:"ANALYTICS_CRASH_CANCEL_RATE" default:"20"`

	// Liquidity.
	VacuumMedianFraction float64 `envconfig:"ANALYTICS_VACUUM_MEDIAN_FRACTION" default:"0.25"`
	AbsorptionMinRefills int     `envconfig:"ANALYTICS_ABSORPTION_MIN_REFILLS" default:"5"`
}

// FeatureConfig enumerates enabled analytics capabilities. Disabled
// components are never constructed; their endpoints answer not-found.
type FeatureConfig struct {
	OrderFlow     bool `envconfig:"FEATURE_ORDER_FLOW" default:"true"`
	VolumeProfile bool `envconfig:"FEATURE_VOLUME_PROFILE" default:"true"`
	Anomalies     bool `envconfig:"FEATURE_ANOMALIES" default:"true"`
	Liquidity     bool `envconfig:"FEATURE_LIQUIDITY" default:"true"`
	HealthScore   bool `envconfig:"FEATURE_HEALTH_SCORE" default:"true"`
}

// ServerConfig holds the downstream boundary listener settings.
type ServerConfig struct {
	ListenAddr string `envconfig:"SERVER_LISTEN_ADDR" default:":8086"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads a .env file if present, then maps environment variables onto a
// Config. Missing variables fall back to the struct tag defaults.
func Load() (*Config, error) {
	// .env is optional; production supplies real environment variables.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.Books.MaxSymbols <= 0 {
		return fmt.Errorf("BOOK_MAX_SYMBOLS must be positive, got %d", c.Books.MaxSymbols)
	}
	if c.Books.TopLevels <= 0 {
		return fmt.Errorf("BOOK_TOP_LEVELS must be positive, got %d", c.Books.TopLevels)
	}
	if c.Governor.RequestsPerSecond <= 0 {
		return fmt.Errorf("GOVERNOR_RPS must be positive, got %g", c.Governor.RequestsPerSecond)
	}
	if c.Analytics.ValueAreaFraction <= 0 || c.Analytics.ValueAreaFraction > 1 {
		return fmt.Errorf("ANALYTICS_VALUE_AREA_FRACTION must be in (0,1], got %g", c.Analytics.ValueAreaFraction)
	}
	if c.Analytics.ConfidenceFloor < 0 || c.Analytics.ConfidenceFloor > 1 {
		return fmt.Errorf("ANALYTICS_CONFIDENCE_FLOOR must be in [0,1], got %g", c.Analytics.ConfidenceFloor)
	}
	return nil
}
