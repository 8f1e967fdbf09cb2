package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/javanstorm/vmsession/internal/logging"
	"github.com/javanstorm/vmsession/internal/version"
	"github.com/javanstorm/vmsession/pkg/lifecycle"
)

// EnvPrefix prefixes environment overrides: VMSESSION_ENDPOINT,
// VMSESSION_SHUTDOWN_TIMEOUT, etc.
const EnvPrefix = "VMSESSION"

// DefaultEndpoint is empty: an endpoint must always be configured.
const DefaultEndpoint = ""

// Config holds all vmsession configuration.
type Config struct {
	// Endpoint is the hypervisor URL. Its scheme selects the backend.
	Endpoint string `mapstructure:"endpoint"`

	// SubnetPrefix selects which guest IPv4 address counts as reachable.
	SubnetPrefix string `mapstructure:"subnet_prefix"`

	// LaunchMode is one of gui, headless, sdl or separate.
	LaunchMode string `mapstructure:"launch_mode"`

	LaunchTimeout      time.Duration `mapstructure:"launch_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	RestoreTimeout     time.Duration `mapstructure:"restore_timeout"`
	SpawnPollInterval  time.Duration `mapstructure:"spawn_poll_interval"`
	UnlockPollInterval time.Duration `mapstructure:"unlock_poll_interval"`
	SettleDelay        time.Duration `mapstructure:"settle_delay"`
	ProbeInterval      time.Duration `mapstructure:"probe_interval"`

	// ProbeAttempts bounds the number of guest IP reads after a launch.
	ProbeAttempts int `mapstructure:"probe_attempts"`

	// BatchConcurrency bounds parallel work in LaunchAll and ShutdownAll.
	BatchConcurrency int `mapstructure:"batch_concurrency"`

	// LogLevel is a zap level name (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`

	// LogFormat is "json" or "console".
	LogFormat string `mapstructure:"log_format"`
}

// DefaultConfig returns a Config with the built-in defaults.
func DefaultConfig() *Config {
	opts := lifecycle.DefaultOptions()

	return &Config{
		Endpoint:           DefaultEndpoint,
		SubnetPrefix:       opts.SubnetPrefix,
		LaunchMode:         opts.LaunchMode,
		LaunchTimeout:      opts.LaunchTimeout,
		ShutdownTimeout:    opts.ShutdownTimeout,
		RestoreTimeout:     opts.RestoreTimeout,
		SpawnPollInterval:  opts.SpawnPollInterval,
		UnlockPollInterval: opts.UnlockPollInterval,
		SettleDelay:        opts.SettleDelay,
		ProbeInterval:      opts.ProbeInterval,
		ProbeAttempts:      opts.ProbeAttempts,
		BatchConcurrency:   opts.BatchConcurrency,
		LogLevel:           "info",
		LogFormat:          logging.FormatJSON,
	}
}

// Load reads configuration from defaults, an optional yaml file and the
// environment, in increasing order of precedence. With an empty configFile,
// config.yaml is looked up in the platform config directory; a missing file
// is not an error.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("endpoint", defaults.Endpoint)
	v.SetDefault("subnet_prefix", defaults.SubnetPrefix)
	v.SetDefault("launch_mode", defaults.LaunchMode)
	v.SetDefault("launch_timeout", defaults.LaunchTimeout)
	v.SetDefault("shutdown_timeout", defaults.ShutdownTimeout)
	v.SetDefault("restore_timeout", defaults.RestoreTimeout)
	v.SetDefault("spawn_poll_interval", defaults.SpawnPollInterval)
	v.SetDefault("unlock_poll_interval", defaults.UnlockPollInterval)
	v.SetDefault("settle_delay", defaults.SettleDelay)
	v.SetDefault("probe_interval", defaults.ProbeInterval)
	v.SetDefault("probe_attempts", defaults.ProbeAttempts)
	v.SetDefault("batch_concurrency", defaults.BatchConcurrency)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("log_format", defaults.LogFormat)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if paths, err := GetPaths(); err == nil {
			v.AddConfigPath(paths.ConfigDir)
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// LifecycleOptions maps the configuration onto lifecycle options.
func (c *Config) LifecycleOptions() lifecycle.Options {
	return lifecycle.Options{
		SubnetPrefix:       c.SubnetPrefix,
		LaunchMode:         c.LaunchMode,
		LaunchTimeout:      c.LaunchTimeout,
		ShutdownTimeout:    c.ShutdownTimeout,
		RestoreTimeout:     c.RestoreTimeout,
		SpawnPollInterval:  c.SpawnPollInterval,
		UnlockPollInterval: c.UnlockPollInterval,
		SettleDelay:        c.SettleDelay,
		ProbeInterval:      c.ProbeInterval,
		ProbeAttempts:      c.ProbeAttempts,
		BatchConcurrency:   c.BatchConcurrency,
	}
}

// Logger builds the logger described by LogLevel and LogFormat.
func (c *Config) Logger() (*zap.Logger, error) {
	return logging.New(logging.Options{Level: c.LogLevel, Format: c.LogFormat})
}

// NewLifecycle validates the configuration, builds its logger and connects
// to Endpoint. Non-fatal validation issues are logged as warnings.
func (c *Config) NewLifecycle(ctx context.Context) (*lifecycle.Lifecycle, error) {
	issues := c.Validate()
	if HasFatal(issues) {
		return nil, fmt.Errorf("invalid configuration:\n%s", FormatValidationErrors(issues))
	}

	logger, err := c.Logger()
	if err != nil {
		return nil, err
	}
	logger = logger.With(version.Fields()...)
	for _, issue := range issues {
		logger.Warn("configuration warning", zap.String("field", issue.Field), zap.String("message", issue.Message))
	}

	l, err := lifecycle.Open(ctx, c.Endpoint, logger, c.LifecycleOptions())
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", c.Endpoint, err)
	}
	return l, nil
}
