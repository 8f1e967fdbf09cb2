// Package guestnet discovers a guest's IPv4 address from the properties its
// guest additions publish.
package guestnet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/javanstorm/vmsession/internal/poll"
	"github.com/javanstorm/vmsession/pkg/hypervisor"
)

// IPv4Key is matched against guest property names. Hypervisors prefix it
// with their own namespace, e.g. "/VirtualBox/GuestInfo/Net/0/V4/IP".
const IPv4Key = "GuestInfo/Net/0/V4/IP"

// Defaults for waiting on a freshly launched guest: 3s settle, then up to 20
// reads 3s apart.
const (
	DefaultSubnetPrefix = "10.0"
	DefaultSettleDelay  = 3 * time.Second
	DefaultInterval     = 3 * time.Second
	DefaultMaxAttempts  = 20
)

// Probe reads guest-reported network properties.
type Probe struct {
	logger *zap.Logger
}

// NewProbe creates a Probe.
func NewProbe(logger *zap.Logger) *Probe {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Probe{logger: logger.Named("guestnet")}
}

// ReadIPv4 enumerates m's guest properties once and returns the first
// IPv4Key value starting with subnetPrefix.
func (p *Probe) ReadIPv4(ctx context.Context, m hypervisor.Machine, subnetPrefix string) (string, bool, error) {
	props, err := m.GuestProperties(ctx, "")
	if err != nil {
		return "", false, fmt.Errorf("enumerate guest properties of %q: %w", m.Name(), err)
	}

	for _, prop := range props {
		if strings.Contains(prop.Name, IPv4Key) && strings.HasPrefix(prop.Value, subnetPrefix) {
			return prop.Value, true, nil
		}
	}
	return "", false, nil
}

// WaitForIPv4 calls ReadIPv4 up to maxAttempts times, interval apart, and
// returns the first address found. Enumeration errors count as a miss.
// The returned error is non-nil only if ctx is done first.
func (p *Probe) WaitForIPv4(ctx context.Context, m hypervisor.Machine, subnetPrefix string, maxAttempts int, interval time.Duration) (string, bool, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	logger := p.logger.With(zap.String("machine", m.Name()), zap.String("subnet_prefix", subnetPrefix))

	ip, err := poll.Until(ctx, poll.Bounded(interval, maxAttempts), func(ctx context.Context, attempt int) (string, bool, error) {
		ip, ok, err := p.ReadIPv4(ctx, m, subnetPrefix)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", false, ctxErr
			}
			logger.Warn("reading guest properties failed", zap.Int("attempt", attempt), zap.Error(err))
			return "", false, nil
		}
		if !ok {
			logger.Info("guest IPv4 not yet reported",
				zap.Int("attempt", attempt),
				zap.Int("attempts_left", maxAttempts-attempt),
			)
		}
		return ip, ok, nil
	})

	switch {
	case err == nil:
		return ip, true, nil
	case errors.Is(err, poll.ErrExhausted):
		return "", false, nil
	default:
		return "", false, err
	}
}
