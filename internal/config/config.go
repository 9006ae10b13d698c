// Package config loads process configuration from defaults, an optional YAML
// file and FABRIC_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/spf13/viper"

	"github.com/signalsfoundry/resource-fabric/internal/logging"
	"github.com/signalsfoundry/resource-fabric/internal/observability"
	"github.com/signalsfoundry/resource-fabric/model"
	"github.com/signalsfoundry/resource-fabric/timectrl"
)

// EnvPrefix prefixes every environment override, e.g. FABRIC_LOG_LEVEL.
const EnvPrefix = "FABRIC"

type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Routing  RoutingConfig  `mapstructure:"routing"`
	Transfer TransferConfig `mapstructure:"transfer"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RoutingConfig struct {
	Policy    string `mapstructure:"policy"`
	CacheSize int    `mapstructure:"cache_size"`
}

type TransferConfig struct {
	// DelayScale multiplies simulated hop and migration delays. 0 disables
	// them, 1 is real time.
	DelayScale float64 `mapstructure:"delay_scale"`
	// RateLimit caps admitted sends per second; 0 means unlimited.
	RateLimit float64 `mapstructure:"rate_limit"`
	// RateBurst is the limiter bucket size; defaults to 1 when a limit is set.
	RateBurst int `mapstructure:"rate_burst"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Exporter    string  `mapstructure:"exporter"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("routing.policy", "shortest")
	v.SetDefault("routing.cache_size", 256)
	v.SetDefault("transfer.delay_scale", 0.0)
	v.SetDefault("transfer.rate_limit", 0.0)
	v.SetDefault("transfer.rate_burst", 1)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "resource-fabric")
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Load reads configuration. An empty path skips the file layer.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks for out-of-range values.
func (c *Config) Validate() error {
	var errs []error
	if _, err := model.ParsePolicy(c.Routing.Policy); err != nil {
		errs = append(errs, fmt.Errorf("routing.policy: %w", err))
	}
	if c.Routing.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("routing.cache_size must be >= 0, got %d", c.Routing.CacheSize))
	}
	if c.Transfer.DelayScale < 0 {
		errs = append(errs, fmt.Errorf("transfer.delay_scale must be >= 0, got %v", c.Transfer.DelayScale))
	}
	if c.Transfer.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("transfer.rate_limit must be >= 0, got %v", c.Transfer.RateLimit))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_ratio must be between 0 and 1, got %v", c.Tracing.SampleRatio))
	}
	return errors.Join(errs...)
}

// Policy returns the configured default routing policy.
func (c *Config) Policy() model.RoutingPolicy {
	p, err := model.ParsePolicy(c.Routing.Policy)
	if err != nil {
		return model.PolicyShortest
	}
	return p
}

// Logging converts the log section into a logger config.
func (c *Config) Logging() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format}
}

// TracingConfig converts the tracing section for observability.InitTracing.
func (c *Config) TracingConfig() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     c.Tracing.Enabled,
		ServiceName: c.Tracing.ServiceName,
		Exporter:    c.Tracing.Exporter,
		Endpoint:    c.Tracing.Endpoint,
		SampleRatio: c.Tracing.SampleRatio,
	}
}

// DelayMode maps the delay scale onto a timectrl mode.
func (c *Config) DelayMode() timectrl.Mode {
	switch {
	case c.Transfer.DelayScale <= 0:
		return timectrl.Instant
	case c.Transfer.DelayScale == 1:
		return timectrl.RealTime
	default:
		return timectrl.Accelerated
	}
}

// Delay builds the transfer delay function over clk.
func (c *Config) Delay(clk clock.Clock) timectrl.DelayFunc {
	return timectrl.New(c.DelayMode(), clk, c.Transfer.DelayScale)
}
