package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/javanstorm/vmsession/internal/logging"
	"github.com/javanstorm/vmsession/pkg/hypervisor"
	"github.com/javanstorm/vmsession/pkg/hypervisor/memory"
)

// ValidationError represents a configuration issue.
type ValidationError struct {
	Field   string
	Message string
	Fatal   bool // true = can't proceed, false = defaults or the value are used anyway
}

// maxProbeWindow is the longest guest IP wait accepted without a warning.
const maxProbeWindow = 10 * time.Minute

// Validate checks the configuration. Returns a list of validation
// errors/warnings.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	if c.Endpoint == "" {
		errs = append(errs, ValidationError{Field: "endpoint", Message: "hypervisor endpoint is required", Fatal: true})
	} else if u, err := url.Parse(c.Endpoint); err != nil || u.Scheme == "" {
		errs = append(errs, ValidationError{Field: "endpoint", Message: fmt.Sprintf("%q is not a URL with a scheme", c.Endpoint), Fatal: true})
	} else if u.Scheme == memory.Scheme {
		errs = append(errs, ValidationError{
			Field:   "endpoint",
			Message: fmt.Sprintf("%q selects the in-process simulated hypervisor", c.Endpoint),
			Fatal:   false,
		})
	}

	if !hypervisor.ValidLaunchMode(c.LaunchMode) {
		errs = append(errs, ValidationError{
			Field:   "launch_mode",
			Message: fmt.Sprintf("unknown launch mode %q", c.LaunchMode),
			Fatal:   true,
		})
	}

	if c.SubnetPrefix == "" {
		errs = append(errs, ValidationError{
			Field:   "subnet_prefix",
			Message: "empty subnet prefix matches any guest address",
			Fatal:   false,
		})
	}

	durations := []struct {
		field string
		value time.Duration
	}{
		{"launch_timeout", c.LaunchTimeout},
		{"shutdown_timeout", c.ShutdownTimeout},
		{"restore_timeout", c.RestoreTimeout},
		{"spawn_poll_interval", c.SpawnPollInterval},
		{"unlock_poll_interval", c.UnlockPollInterval},
		{"settle_delay", c.SettleDelay},
		{"probe_interval", c.ProbeInterval},
	}
	for _, d := range durations {
		if d.value < 0 {
			errs = append(errs, ValidationError{Field: d.field, Message: fmt.Sprintf("negative duration %s", d.value), Fatal: true})
		} else if d.value == 0 {
			errs = append(errs, ValidationError{Field: d.field, Message: "zero duration, default is used", Fatal: false})
		}
	}

	errs = append(errs, validateCount("probe_attempts", c.ProbeAttempts)...)
	errs = append(errs, validateCount("batch_concurrency", c.BatchConcurrency)...)

	if w := c.SettleDelay + time.Duration(c.ProbeAttempts)*c.ProbeInterval; w > maxProbeWindow {
		errs = append(errs, ValidationError{
			Field:   "probe_attempts",
			Message: fmt.Sprintf("guest IP wait may take up to %s", w),
			Fatal:   false,
		})
	}

	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, ValidationError{Field: "log_level", Message: err.Error(), Fatal: true})
	}
	if c.LogFormat != logging.FormatJSON && c.LogFormat != logging.FormatConsole {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("unknown log format %q, expected %s or %s", c.LogFormat, logging.FormatJSON, logging.FormatConsole),
			Fatal:   true,
		})
	}

	return errs
}

// validateCount rejects negative counts and warns on zero, which
// lifecycle.Options replaces with its default.
func validateCount(field string, n int) []ValidationError {
	switch {
	case n < 0:
		return []ValidationError{{Field: field, Message: fmt.Sprintf("negative count %d", n), Fatal: true}}
	case n == 0:
		return []ValidationError{{Field: field, Message: "zero, default is used", Fatal: false}}
	}
	return nil
}

// HasFatal reports whether any issue prevents using the configuration.
func HasFatal(errs []ValidationError) bool {
	for _, e := range errs {
		if e.Fatal {
			return true
		}
	}
	return false
}

// FormatValidationErrors returns human-readable error summary.
func FormatValidationErrors(errors []ValidationError) string {
	if len(errors) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Configuration warnings:\n")
	for _, e := range errors {
		prefix := "Warning"
		if e.Fatal {
			prefix = "Error"
		}
		fmt.Fprintf(&b, "  %s [%s]: %s\n", prefix, e.Field, e.Message)
	}
	return b.String()
}
