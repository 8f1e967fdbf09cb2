package guestnet_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/javanstorm/vmsession/internal/testutil"
	"github.com/javanstorm/vmsession/pkg/guestnet"
	"github.com/javanstorm/vmsession/pkg/hypervisor"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubMachine serves one scripted property list per enumeration and repeats
// the last one once the script runs out.
type stubMachine struct {
	hypervisor.Machine

	mu     sync.Mutex
	script [][]hypervisor.GuestProperty
	errs   []error
	calls  int
}

func (m *stubMachine) Name() string { return "stub" }

func (m *stubMachine) GuestProperties(context.Context, string) ([]hypervisor.GuestProperty, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.calls
	m.calls++
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if len(m.script) == 0 {
		return nil, nil
	}
	return m.script[min(i, len(m.script)-1)], nil
}

func (m *stubMachine) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func ipProp(value string) hypervisor.GuestProperty {
	return hypervisor.GuestProperty{Name: "/VirtualBox/GuestInfo/Net/0/V4/IP", Value: value}
}

func TestReadIPv4(t *testing.T) {
	tests := []struct {
		name   string
		props  []hypervisor.GuestProperty
		prefix string
		want   string
		wantOK bool
	}{
		{
			name:   "match",
			props:  []hypervisor.GuestProperty{{Name: "/VirtualBox/GuestInfo/OS/Product", Value: "10.0"}, ipProp("10.0.5.12")},
			prefix: "10.0",
			want:   "10.0.5.12",
			wantOK: true,
		},
		{
			name:   "other subnet",
			props:  []hypervisor.GuestProperty{ipProp("192.168.1.4")},
			prefix: "10.0",
		},
		{
			name: "first match wins",
			props: []hypervisor.GuestProperty{
				{Name: "/VirtualBox/GuestInfo/Net/1/V4/IP", Value: "10.0.9.9"},
				ipProp("10.0.5.12"),
				ipProp("10.0.5.13"),
			},
			prefix: "10.0",
			want:   "10.0.5.12",
			wantOK: true,
		},
		{
			name:   "no properties",
			prefix: "10.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &stubMachine{script: [][]hypervisor.GuestProperty{tt.props}}

			ip, ok, err := guestnet.NewProbe(nil).ReadIPv4(context.Background(), m, tt.prefix)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ip)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, 1, m.count(), "one enumeration per read")
		})
	}
}

func TestReadIPv4Error(t *testing.T) {
	m := &stubMachine{errs: []error{hypervisor.ErrClosed}}

	_, ok, err := guestnet.NewProbe(nil).ReadIPv4(context.Background(), m, "10.0")
	assert.ErrorIs(t, err, hypervisor.ErrClosed)
	assert.False(t, ok)
}

func TestWaitForIPv4Exhausted(t *testing.T) {
	for _, attempts := range []int{1, 3, 20} {
		logger, logs := testutil.Logger(t)
		m := &stubMachine{script: [][]hypervisor.GuestProperty{{ipProp("172.16.0.2")}}}

		ip, ok, err := guestnet.NewProbe(logger).WaitForIPv4(context.Background(), m, "10.0", attempts, time.Millisecond)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, ip)
		assert.Equal(t, attempts, m.count())
		assert.Equal(t, attempts, testutil.Count(logs, "guest IPv4 not yet reported"))
	}
}

func TestWaitForIPv4StopsAtFirstMatch(t *testing.T) {
	logger, logs := testutil.Logger(t)
	m := &stubMachine{script: [][]hypervisor.GuestProperty{
		nil,
		nil,
		nil,
		{ipProp("10.0.5.12")},
	}}

	ip, ok, err := guestnet.NewProbe(logger).WaitForIPv4(context.Background(), m, "10.0", 20, time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "10.0.5.12", ip)
	assert.Equal(t, 4, m.count())
	assert.Equal(t, 3, testutil.Count(logs, "guest IPv4 not yet reported"))
	assert.Equal(t, int64(19), testutil.Field(logs, "guest IPv4 not yet reported", "attempts_left"))
}

func TestWaitForIPv4ToleratesErrors(t *testing.T) {
	logger, logs := testutil.Logger(t)
	m := &stubMachine{
		errs:   []error{errors.New("rpc reset")},
		script: [][]hypervisor.GuestProperty{{ipProp("10.0.0.7")}},
	}

	ip, ok, err := guestnet.NewProbe(logger).WaitForIPv4(context.Background(), m, "10.0", 5, time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.7", ip)
	assert.Equal(t, 2, m.count())
	assert.Equal(t, 1, testutil.Count(logs, "reading guest properties failed"))
}

func TestWaitForIPv4Cancelled(t *testing.T) {
	m := &stubMachine{}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok, err := guestnet.NewProbe(nil).WaitForIPv4(ctx, m, "10.0", 1000, 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ok)
	assert.Less(t, m.count(), 1000)
}
