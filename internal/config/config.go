package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Quarantine QuarantineConfig `yaml:"quarantine" mapstructure:"quarantine"`
	Enrichment EnrichmentConfig `yaml:"enrichment" mapstructure:"enrichment"`
	Provider   ProviderConfig   `yaml:"provider" mapstructure:"provider"`
	Worker     WorkerConfig     `yaml:"worker" mapstructure:"worker"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// PipelineConfig configures staging batch processing.
type PipelineConfig struct {
	BatchSize      int      `yaml:"batch_size" mapstructure:"batch_size"`
	Guard          string   `yaml:"guard" mapstructure:"guard"`
	LockFile       string   `yaml:"lock_file" mapstructure:"lock_file"`
	FuzzyThreshold float64  `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
	FreeProviders  []string `yaml:"free_providers" mapstructure:"free_providers"`
}

// QuarantineConfig configures review reprocessing.
type QuarantineConfig struct {
	ReprocessLimit int `yaml:"reprocess_limit" mapstructure:"reprocess_limit"`
}

// EnrichmentConfig configures the enrichment scheduler.
type EnrichmentConfig struct {
	StaleAfterDays    int            `yaml:"stale_after_days" mapstructure:"stale_after_days"`
	BatchLimit        int            `yaml:"batch_limit" mapstructure:"batch_limit"`
	DelayMs           int            `yaml:"delay_ms" mapstructure:"delay_ms"`
	ItemTimeoutSecs   int            `yaml:"item_timeout_secs" mapstructure:"item_timeout_secs"`
	FreshWindowHours  int            `yaml:"fresh_window_hours" mapstructure:"fresh_window_hours"`
	HealthWindowHours int            `yaml:"health_window_hours" mapstructure:"health_window_hours"`
	RequiredSources   []string       `yaml:"required_sources" mapstructure:"required_sources"`
	DefaultTTLHours   int            `yaml:"default_ttl_hours" mapstructure:"default_ttl_hours"`
	SourceTTLHours    map[string]int `yaml:"source_ttl_hours" mapstructure:"source_ttl_hours"`
}

// StaleAfter is the age after which a prospect is due for re-enrichment.
func (c EnrichmentConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterDays) * 24 * time.Hour
}

// Delay is the fixed pause between provider calls.
func (c EnrichmentConfig) Delay() time.Duration {
	return time.Duration(c.DelayMs) * time.Millisecond
}

// ItemTimeout bounds enrichment of a single prospect.
func (c EnrichmentConfig) ItemTimeout() time.Duration {
	return time.Duration(c.ItemTimeoutSecs) * time.Second
}

// FreshWindow is how recent every required source must be for a prospect to count as fresh.
func (c EnrichmentConfig) FreshWindow() time.Duration {
	return time.Duration(c.FreshWindowHours) * time.Hour
}

// HealthWindow is the lookback for the enrichment health check.
func (c EnrichmentConfig) HealthWindow() time.Duration {
	return time.Duration(c.HealthWindowHours) * time.Hour
}

// SourceTTLs converts per-source TTL hours to durations.
func (c EnrichmentConfig) SourceTTLs() map[string]time.Duration {
	out := make(map[string]time.Duration, len(c.SourceTTLHours))
	for src, h := range c.SourceTTLHours {
		out[src] = time.Duration(h) * time.Hour
	}
	return out
}

// ProviderConfig holds people-data provider settings.
type ProviderConfig struct {
	Key              string  `yaml:"key" mapstructure:"key"`
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
}

// WorkerConfig configures the long-running work loop.
type WorkerConfig struct {
	ProcessIntervalSecs   int `yaml:"process_interval_secs" mapstructure:"process_interval_secs"`
	ReprocessIntervalSecs int `yaml:"reprocess_interval_secs" mapstructure:"reprocess_interval_secs"`
	EnrichIntervalSecs    int `yaml:"enrich_interval_secs" mapstructure:"enrich_interval_secs"`
}

// MonitoringConfig configures periodic health checks and alerting.
type MonitoringConfig struct {
	WebhookURL              string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs       int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours     int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	QuarantineRateThreshold float64 `yaml:"quarantine_rate_threshold" mapstructure:"quarantine_rate_threshold"`
	StagingBacklogThreshold int     `yaml:"staging_backlog_threshold" mapstructure:"staging_backlog_threshold"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROSPECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("pipeline.batch_size", 100)
	v.SetDefault("pipeline.guard", "local")
	v.SetDefault("pipeline.lock_file", "prospect-pipeline.lock")
	v.SetDefault("pipeline.fuzzy_threshold", 0.8)
	v.SetDefault("pipeline.free_providers", []string{})
	v.SetDefault("quarantine.reprocess_limit", 100)
	v.SetDefault("enrichment.stale_after_days", 7)
	v.SetDefault("enrichment.batch_limit", 100)
	v.SetDefault("enrichment.delay_ms", 1000)
	v.SetDefault("enrichment.item_timeout_secs", 30)
	v.SetDefault("enrichment.fresh_window_hours", 24)
	v.SetDefault("enrichment.health_window_hours", 24)
	v.SetDefault("enrichment.required_sources", []string{"peopledata_person"})
	v.SetDefault("enrichment.default_ttl_hours", 168)
	v.SetDefault("provider.key", "")
	v.SetDefault("provider.base_url", "https://api.peopledata.io")
	v.SetDefault("provider.timeout_secs", 30)
	v.SetDefault("provider.max_attempts", 3)
	v.SetDefault("provider.initial_backoff_ms", 1000)
	v.SetDefault("provider.max_backoff_ms", 30000)
	v.SetDefault("provider.multiplier", 2.0)
	v.SetDefault("worker.process_interval_secs", 60)
	v.SetDefault("worker.reprocess_interval_secs", 900)
	v.SetDefault("worker.enrich_interval_secs", 3600)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.quarantine_rate_threshold", 0.25)
	v.SetDefault("monitoring.staging_backlog_threshold", 10000)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on and reports every
// problem at once.
func (c *Config) Validate(mode string) error {
	var problems []string
	need := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	storeChecks := func() {
		need(c.Store.Driver == "postgres" || c.Store.Driver == "sqlite",
			"store.driver must be postgres or sqlite")
		need(c.Store.DatabaseURL != "", "store.database_url is required")
	}
	pipelineChecks := func() {
		need(c.Pipeline.BatchSize >= 1 && c.Pipeline.BatchSize <= 10000,
			"pipeline.batch_size must be between 1 and 10000")
		need(c.Pipeline.FuzzyThreshold > 0 && c.Pipeline.FuzzyThreshold <= 1,
			"pipeline.fuzzy_threshold must be in (0, 1]")
		switch c.Pipeline.Guard {
		case "local", "advisory", "file":
		default:
			problems = append(problems, "pipeline.guard must be local, advisory, or file")
		}
		need(c.Pipeline.Guard != "advisory" || c.Store.Driver == "postgres",
			"pipeline.guard advisory requires store.driver postgres")
		need(c.Pipeline.Guard != "file" || c.Pipeline.LockFile != "",
			"pipeline.lock_file is required for the file guard")
	}
	enrichmentChecks := func() {
		need(c.Provider.Key != "", "provider.key is required")
		need(c.Enrichment.BatchLimit >= 1, "enrichment.batch_limit must be >= 1")
		need(c.Enrichment.DelayMs >= 0, "enrichment.delay_ms must be >= 0")
		need(c.Enrichment.StaleAfterDays >= 1, "enrichment.stale_after_days must be >= 1")
	}

	switch mode {
	case "migrate", "import", "quarantine", "stats":
		storeChecks()
	case "process":
		storeChecks()
		pipelineChecks()
	case "enrich":
		storeChecks()
		enrichmentChecks()
	case "work", "serve":
		storeChecks()
		pipelineChecks()
		enrichmentChecks()
		if mode == "serve" {
			need(c.Server.Port > 0, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
