package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javanstorm/vmsession/pkg/hypervisor"
	"github.com/javanstorm/vmsession/pkg/hypervisor/memory"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Empty(t, cfg.Endpoint)
	assert.Equal(t, "10.0", cfg.SubnetPrefix)
	assert.Equal(t, hypervisor.LaunchModeHeadless, cfg.LaunchMode)
	assert.Equal(t, 2500*time.Millisecond, cfg.LaunchTimeout)
	assert.Equal(t, 25*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 25*time.Second, cfg.RestoreTimeout)
	assert.Equal(t, time.Second, cfg.SpawnPollInterval)
	assert.Equal(t, time.Second, cfg.UnlockPollInterval)
	assert.Equal(t, 3*time.Second, cfg.SettleDelay)
	assert.Equal(t, 3*time.Second, cfg.ProbeInterval)
	assert.Equal(t, 20, cfg.ProbeAttempts)

	errs := cfg.Validate()
	require.Len(t, errs, 1, FormatValidationErrors(errs))
	assert.Equal(t, "endpoint", errs[0].Field)
	assert.True(t, HasFatal(errs), "an unconfigured endpoint must not fall back to a backend")
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vmsession.yaml")
	content := `endpoint: memory://lab
subnet_prefix: "192.168"
shutdown_timeout: 40s
probe_attempts: 5
log_format: console
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	t.Setenv("VMSESSION_PROBE_ATTEMPTS", "7")
	t.Setenv("VMSESSION_SETTLE_DELAY", "500ms")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "memory://lab", cfg.Endpoint)
	assert.Equal(t, "192.168", cfg.SubnetPrefix)
	assert.Equal(t, 40*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 7, cfg.ProbeAttempts, "environment overrides the file")
	assert.Equal(t, 500*time.Millisecond, cfg.SettleDelay)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, 25*time.Second, cfg.RestoreTimeout, "unset keys keep defaults")
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("endpoint: [unterminated\n"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
		wantFatal bool
	}{
		{"missing endpoint", func(c *Config) { c.Endpoint = "" }, "endpoint", true},
		{"endpoint without scheme", func(c *Config) { c.Endpoint = "localhost" }, "endpoint", true},
		{"bad launch mode", func(c *Config) { c.LaunchMode = "vnc" }, "launch_mode", true},
		{"empty subnet", func(c *Config) { c.SubnetPrefix = "" }, "subnet_prefix", false},
		{"negative timeout", func(c *Config) { c.ShutdownTimeout = -time.Second }, "shutdown_timeout", true},
		{"zero interval", func(c *Config) { c.ProbeInterval = 0 }, "probe_interval", false},
		{"simulated endpoint", func(c *Config) { c.Endpoint = "memory://lab" }, "endpoint", false},
		{"zero probe attempts", func(c *Config) { c.ProbeAttempts = 0 }, "probe_attempts", false},
		{"negative probe attempts", func(c *Config) { c.ProbeAttempts = -1 }, "probe_attempts", true},
		{"zero batch concurrency", func(c *Config) { c.BatchConcurrency = 0 }, "batch_concurrency", false},
		{"negative batch concurrency", func(c *Config) { c.BatchConcurrency = -2 }, "batch_concurrency", true},
		{"long probe window", func(c *Config) { c.ProbeAttempts = 1000 }, "probe_attempts", false},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level", true},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log_format", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Endpoint = "vboxweb://lab-host:18083"
			require.Empty(t, cfg.Validate())
			tt.mutate(cfg)

			errs := cfg.Validate()
			require.Len(t, errs, 1, FormatValidationErrors(errs))
			assert.Equal(t, tt.wantField, errs[0].Field)
			assert.Equal(t, tt.wantFatal, errs[0].Fatal)
			assert.Equal(t, tt.wantFatal, HasFatal(errs))
		})
	}
}

func TestFormatValidationErrors(t *testing.T) {
	assert.Empty(t, FormatValidationErrors(nil))

	out := FormatValidationErrors([]ValidationError{
		{Field: "endpoint", Message: "hypervisor endpoint is required", Fatal: true},
		{Field: "subnet_prefix", Message: "empty subnet prefix matches any guest address"},
	})
	assert.Contains(t, out, "Error [endpoint]: hypervisor endpoint is required")
	assert.Contains(t, out, "Warning [subnet_prefix]")
}

func TestLifecycleOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProbeAttempts = 3
	cfg.SubnetPrefix = "172.16"

	opts := cfg.LifecycleOptions()
	assert.Equal(t, 3, opts.ProbeAttempts)
	assert.Equal(t, "172.16", opts.SubnetPrefix)
	assert.Equal(t, cfg.ShutdownTimeout, opts.ShutdownTimeout)
}

func TestNewLifecycle(t *testing.T) {
	memory.Host("config-test")
	t.Cleanup(func() { memory.Forget("config-test") })

	cfg := DefaultConfig()
	cfg.Endpoint = "memory://config-test"
	cfg.LogLevel = "error"

	l, err := cfg.NewLifecycle(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	assert.Equal(t, cfg.ProbeAttempts, l.Options().ProbeAttempts)

	cfg.LaunchMode = "vnc"
	_, err = cfg.NewLifecycle(context.Background())
	assert.ErrorContains(t, err, "launch_mode")

	_, err = DefaultConfig().NewLifecycle(context.Background())
	assert.ErrorContains(t, err, "endpoint")
}

func TestGetPaths(t *testing.T) {
	paths, err := GetPaths()
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(paths.ConfigDir))
	assert.Equal(t, "config.yaml", filepath.Base(paths.ConfigFile))
}
