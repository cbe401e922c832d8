package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	apperrors "github.com/zatekoja/kpitelemetry/pkg/errors"
	"github.com/zatekoja/kpitelemetry/pkg/validation"
)

// Config holds all application configuration
type Config struct {
	App           AppConfig           `koanf:"app"`
	Database      DatabaseConfig      `koanf:"database"`
	Redis         RedisConfig         `koanf:"redis"`
	OTEL          OTELConfig          `koanf:"otel"`
	Collector     CollectorConfig     `koanf:"collector"`
	Pipeline      PipelineConfig      `koanf:"pipeline"`
	Quality       QualityConfig       `koanf:"quality"`
	Sink          SinkConfig          `koanf:"sink"`
	SystemMonitor SystemMonitorConfig `koanf:"system_monitor"`
}

// AppConfig holds process-level settings
type AppConfig struct {
	Name        string `koanf:"name" validate:"required"`
	Environment string `koanf:"environment" validate:"required"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `koanf:"host" validate:"required"`
	Port     int    `koanf:"port" validate:"gt=0"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Database string `koanf:"database" validate:"required"`
	SSLMode  string `koanf:"sslmode"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string `koanf:"service_name"`
	ServiceVersion string `koanf:"service_version"`
	Endpoint       string `koanf:"endpoint"`
	Enabled        bool   `koanf:"enabled"`
}

// CollectorConfig controls batching of raw events into the sink.
type CollectorConfig struct {
	BatchSize     int           `koanf:"batch_size" validate:"gt=0"`
	FlushInterval time.Duration `koanf:"flush_interval" validate:"gt=0"`
	ShutdownGrace time.Duration `koanf:"shutdown_grace" validate:"gt=0"`
}

// PipelineConfig controls the processing loop and its self-monitoring alerts.
type PipelineConfig struct {
	BatchSize          int           `koanf:"batch_size" validate:"gt=0"`
	ProcessingInterval time.Duration `koanf:"processing_interval" validate:"gt=0"`
	LatencyThreshold   time.Duration `koanf:"latency_threshold" validate:"gt=0"`
	ErrorRateThreshold float64       `koanf:"error_rate_threshold" validate:"gte=0,lte=100"`
	QueueSizeThreshold int           `koanf:"queue_size_threshold" validate:"gt=0"`
	AggregationGrace   time.Duration `koanf:"aggregation_grace" validate:"gte=0"`
	Windows            []string      `koanf:"windows" validate:"min=1,dive,oneof=minute hour day week month"`
	Timezone           string        `koanf:"timezone" validate:"required"`
}

// QualityConfig controls the retrieval quality engine.
type QualityConfig struct {
	JudgmentCacheTTL time.Duration `koanf:"judgment_cache_ttl" validate:"gte=0"`
}

// SinkConfig controls the circuit breaker in front of the persistence sink.
type SinkConfig struct {
	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold" validate:"gt=0"`
	BreakerTimeout          time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
}

// SystemMonitorConfig controls periodic runtime sampling.
type SystemMonitorConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval" validate:"gt=0"`
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/kpitelemetry/config.yaml",
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "kpi-telemetry",
			Environment: "development",
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Database: "kpi_telemetry",
			SSLMode:  "disable",
		},
		Redis: RedisConfig{
			Enabled: true,
			Host:    "localhost",
			Port:    6379,
		},
		OTEL: OTELConfig{
			ServiceName:    "kpi-telemetry",
			ServiceVersion: "1.0.0",
		},
		Collector: CollectorConfig{
			BatchSize:     50,
			FlushInterval: 10 * time.Second,
			ShutdownGrace: 10 * time.Second,
		},
		Pipeline: PipelineConfig{
			BatchSize:          100,
			ProcessingInterval: 5 * time.Second,
			LatencyThreshold:   time.Second,
			ErrorRateThreshold: 5,
			QueueSizeThreshold: 1000,
			AggregationGrace:   time.Minute,
			Windows:            []string{"minute", "hour", "day", "week", "month"},
			Timezone:           "UTC",
		},
		Quality: QualityConfig{
			JudgmentCacheTTL: 5 * time.Minute,
		},
		Sink: SinkConfig{
			BreakerFailureThreshold: 5,
			BreakerTimeout:          30 * time.Second,
		},
		SystemMonitor: SystemMonitorConfig{
			Enabled:  true,
			Interval: 30 * time.Second,
		},
	}
}

// Load layers defaults, an optional YAML file and environment variables, in
// that order of precedence, and validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, apperrors.NewConfigurationError("failed to load defaults", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, apperrors.NewConfigurationError(fmt.Sprintf("failed to load config file %s", path), err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, apperrors.NewConfigurationError("failed to load environment variables", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, apperrors.NewConfigurationError("failed to process slice fields", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, apperrors.NewConfigurationError("failed to unmarshal configuration", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field rules and settings that need runtime lookups.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return apperrors.NewConfigurationError("invalid configuration", err)
	}
	if _, err := time.LoadLocation(c.Pipeline.Timezone); err != nil {
		return apperrors.NewConfigurationError(fmt.Sprintf("unknown pipeline timezone %q", c.Pipeline.Timezone), err)
	}
	return nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Location returns the pipeline's calendar location. Validate guarantees it loads.
func (c *PipelineConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"pipeline.windows",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		raw, ok := k.Get(path).(string)
		if !ok || raw == "" {
			continue
		}
		parts := strings.Split(raw, ",")
		values := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				values = append(values, p)
			}
		}
		if err := k.Set(path, values); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// legacyEnv keeps the variable names used by existing deployments.
var legacyEnv = map[string]string{
	"environment":          "app.environment",
	"db_host":              "database.host",
	"db_port":              "database.port",
	"db_user":              "database.user",
	"db_password":          "database.password",
	"db_name":              "database.database",
	"db_sslmode":           "database.sslmode",
	"otel_service_name":    "otel.service_name",
	"otel_service_version": "otel.service_version",
}

var sectionPrefixes = []string{
	"app_", "redis_", "otel_", "collector_", "pipeline_", "quality_", "sink_", "system_monitor_",
}

// envTransformFunc maps environment variable names to koanf paths, e.g.
// PIPELINE_BATCH_SIZE -> pipeline.batch_size. Unknown names are ignored.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)
	if path, ok := legacyEnv[key]; ok {
		return path
	}
	for _, prefix := range sectionPrefixes {
		if strings.HasPrefix(key, prefix) && len(key) > len(prefix) {
			return strings.TrimSuffix(prefix, "_") + "." + key[len(prefix):]
		}
	}
	return ""
}
