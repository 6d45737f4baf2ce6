// Package config loads flowguard settings from the environment.
package config

import (
	"context"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"
	logger "github.com/sirupsen/logrus"

	gferrors "github.com/vnykmshr/flowguard/pkg/common/errors"
	"github.com/vnykmshr/flowguard/pkg/datasource"
	"github.com/vnykmshr/flowguard/pkg/guard"
	"github.com/vnykmshr/flowguard/pkg/metrics"
	"github.com/vnykmshr/flowguard/pkg/stat"
)

// Prefix is prepended to every environment variable name.
const Prefix = "FLOWGUARD"

// Datasource kinds.
const (
	DatasourceNone  = "NONE"
	DatasourceFile  = "FILE"
	DatasourceRedis = "REDIS"
)

type Settings struct {
	// Sliding window geometry
	StatSampleCount int           `envconfig:"STAT_SAMPLE_COUNT" default:"2"`
	StatInterval    time.Duration `envconfig:"STAT_INTERVAL" default:"1s"`
	OccupyTimeout   time.Duration `envconfig:"OCCUPY_TIMEOUT" default:"500ms"`
	MaxResources    int           `envconfig:"MAX_RESOURCES" default:"6000"`
	MaxContexts     int           `envconfig:"MAX_CONTEXTS" default:"2000"`

	// Default warm-up cold factor for rules that leave it unset
	ColdFactor uint32 `envconfig:"COLD_FACTOR" default:"3"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"INFO"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	// Prometheus metrics
	MetricsEnabled   bool   `envconfig:"METRICS_ENABLED" default:"false"`
	MetricsNamespace string `envconfig:"METRICS_NAMESPACE" default:"flowguard"`

	// Rule source: NONE, FILE or REDIS
	Datasource string `envconfig:"DATASOURCE" default:"NONE"`

	// FILE datasource. RuleRefresh is a cron spec; empty disables refresh.
	RuleFile    string `envconfig:"RULE_FILE" default:""`
	RuleRefresh string `envconfig:"RULE_REFRESH" default:"@every 10s"`

	// REDIS datasource
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisKey      string `envconfig:"REDIS_KEY" default:"flowguard:rules"`
	RedisChannel  string `envconfig:"REDIS_CHANNEL" default:"flowguard:rules:updates"`
}

// NewSettings reads the environment and panics on malformed values.
func NewSettings() Settings {
	s, err := LoadSettings()
	if err != nil {
		panic(err)
	}
	return s
}

// LoadSettings reads the environment.
func LoadSettings() (Settings, error) {
	var s Settings
	if err := envconfig.Process(Prefix, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// StatConfig returns the node configuration described by s.
func (s Settings) StatConfig() stat.Config {
	cfg := stat.DefaultConfig()
	cfg.SampleCount = s.StatSampleCount
	cfg.Interval = s.StatInterval
	cfg.OccupyTimeout = s.OccupyTimeout
	cfg.MaxResources = s.MaxResources
	cfg.MaxContexts = s.MaxContexts
	return cfg
}

// GuardOptions translates s into options for guard.New. Metrics go to the
// Prometheus default registerer.
func (s Settings) GuardOptions() []guard.Option {
	opts := []guard.Option{
		guard.WithStatConfig(s.StatConfig()),
		guard.WithColdFactor(s.ColdFactor),
	}
	if s.MetricsEnabled {
		cfg := metrics.DefaultConfig()
		cfg.Namespace = s.MetricsNamespace
		opts = append(opts, guard.WithMetrics(cfg))
	}
	return opts
}

// ConfigureLogger applies LogLevel and LogFormat to l.
func (s Settings) ConfigureLogger(l *logger.Logger) error {
	level, err := logger.ParseLevel(s.LogLevel)
	if err != nil {
		return gferrors.NewValidationError("config", "logLevel", s.LogLevel, err.Error())
	}
	l.SetLevel(level)
	if strings.ToLower(s.LogFormat) == "json" {
		l.SetFormatter(&logger.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logger.FieldMap{
				logger.FieldKeyTime: "@timestamp",
				logger.FieldKeyMsg:  "@message",
			},
		})
	}
	return nil
}

// StartDatasource starts the rule source selected by Datasource, feeding
// loader. The returned function stops it.
func (s Settings) StartDatasource(ctx context.Context, loader datasource.RuleLoader, log logger.FieldLogger) (func(), error) {
	switch strings.ToUpper(s.Datasource) {
	case "", DatasourceNone:
		return func() {}, nil

	case DatasourceFile:
		src, err := datasource.NewFileSource(loader, datasource.FileConfig{
			Path:    s.RuleFile,
			Refresh: s.RuleRefresh,
			Logger:  log,
		})
		if err != nil {
			return nil, err
		}
		if err := src.Start(); err != nil {
			return nil, err
		}
		return func() { <-src.Stop().Done() }, nil

	case DatasourceRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     s.RedisAddr,
			Password: s.RedisPassword,
			DB:       s.RedisDB,
		})
		src, err := datasource.NewRedisSource(client, loader, datasource.RedisConfig{
			Key:     s.RedisKey,
			Channel: s.RedisChannel,
			Logger:  log,
		})
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		if err := src.Start(ctx); err != nil {
			_ = client.Close()
			return nil, err
		}
		return func() {
			_ = src.Close()
			_ = client.Close()
		}, nil
	}
	return nil, gferrors.NewValidationError("config", "datasource", s.Datasource, "unknown datasource").
		WithHint("use NONE, FILE or REDIS")
}
