// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Scraper    ScraperConfig    `mapstructure:"scraper"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Breaker    BreakerConfig    `mapstructure:"breaker"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Chaos      ChaosConfig      `mapstructure:"chaos"`
	Status     StatusConfig     `mapstructure:"status"`
	Storage    StorageConfig    `mapstructure:"storage"`
	DB         DBConfig         `mapstructure:"db"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ScraperConfig governs batch behavior.
type ScraperConfig struct {
	Concurrency     int    `mapstructure:"concurrency"`
	Identity        string `mapstructure:"identity"`
	MinDelayMs      int    `mapstructure:"min_delay_ms"`
	MaxDelayMs      int    `mapstructure:"max_delay_ms"`
	RetryFailures   bool   `mapstructure:"retry_failures"`
	SkipExisting    bool   `mapstructure:"skip_existing"`
	ValidateContent bool   `mapstructure:"validate_content"`
	SaveIntervalSec int    `mapstructure:"save_interval_seconds"`
}

// HTTPConfig configures HTTP client retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffUnitSec   int    `mapstructure:"backoff_unit_seconds"`
	RateLimitWaitSec int    `mapstructure:"rate_limit_wait_seconds"`
	Referer          string `mapstructure:"referer"`
}

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	FailureThreshold int `mapstructure:"failure_threshold"`
	ResetTimeoutSec  int `mapstructure:"reset_timeout_seconds"`
}

// CheckpointConfig sets checkpoint persistence behavior.
type CheckpointConfig struct {
	Path string `mapstructure:"path"`
}

// ChaosConfig optionally activates a fault-injection experiment at startup.
type ChaosConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Name        string   `mapstructure:"name"`
	Faults      []string `mapstructure:"faults"`
	Probability float64  `mapstructure:"probability"`
	DurationSec int      `mapstructure:"duration_seconds"`
}

// StatusConfig controls the read-only status HTTP server.
type StatusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// StorageConfig sets local output and the optional GCS mirror.
type StorageConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// DBConfig controls access to the relational database for the ETL loader.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for completion-event notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STATSCRAPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scraper.concurrency", 2)
	v.SetDefault("scraper.min_delay_ms", 3000)
	v.SetDefault("scraper.max_delay_ms", 8000)
	v.SetDefault("scraper.validate_content", true)
	v.SetDefault("scraper.save_interval_seconds", 30)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_unit_seconds", 5)
	v.SetDefault("http.rate_limit_wait_seconds", 60)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.reset_timeout_seconds", 60)
	v.SetDefault("checkpoint.path", "checkpoint.json")
	v.SetDefault("chaos.probability", 0.3)
	v.SetDefault("chaos.duration_seconds", 300)
	v.SetDefault("status.addr", ":8080")
	v.SetDefault("storage.output_dir", "fixtures")
	v.SetDefault("db.table", "fixtures")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Scraper.Concurrency <= 0 {
		return fmt.Errorf("scraper.concurrency must be > 0")
	}
	if c.Scraper.MinDelayMs < 0 || c.Scraper.MaxDelayMs < c.Scraper.MinDelayMs {
		return fmt.Errorf("scraper delay window is invalid: min=%d max=%d",
			c.Scraper.MinDelayMs, c.Scraper.MaxDelayMs)
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("breaker.failure_threshold must be > 0")
	}
	if c.Chaos.Enabled {
		if len(c.Chaos.Faults) == 0 {
			return fmt.Errorf("chaos.faults must name at least one fault when chaos is enabled")
		}
		if c.Chaos.Probability < 0 || c.Chaos.Probability > 1 {
			return fmt.Errorf("chaos.probability must be in [0,1]")
		}
	}
	if c.Status.Enabled && c.Status.Addr == "" {
		return fmt.Errorf("status.addr must be set when the status server is enabled")
	}
	return nil
}

// MinDelay returns the lower bound of the inter-request spacing window.
func (c Config) MinDelay() time.Duration {
	return time.Duration(c.Scraper.MinDelayMs) * time.Millisecond
}

// MaxDelay returns the upper bound of the inter-request spacing window.
func (c Config) MaxDelay() time.Duration {
	return time.Duration(c.Scraper.MaxDelayMs) * time.Millisecond
}

// HTTPTimeout returns the per-request timeout.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// BreakerResetTimeout returns the open-state hold duration.
func (c Config) BreakerResetTimeout() time.Duration {
	return time.Duration(c.Breaker.ResetTimeoutSec) * time.Second
}

// SaveInterval returns the checkpoint persistence gate.
func (c Config) SaveInterval() time.Duration {
	return time.Duration(c.Scraper.SaveIntervalSec) * time.Second
}

// ChaosDuration returns the experiment window length.
func (c Config) ChaosDuration() time.Duration {
	return time.Duration(c.Chaos.DurationSec) * time.Second
}
