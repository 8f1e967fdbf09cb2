package hypervisor

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// ConnectFunc opens a Client for a parsed endpoint.
type ConnectFunc func(ctx context.Context, endpoint *url.URL) (Client, error)

var (
	backends     = make(map[string]ConnectFunc)
	backendsLock sync.RWMutex
)

// Register adds a backend for an endpoint scheme.
// This should be called from init() functions in backend implementations.
func Register(scheme string, fn ConnectFunc) {
	backendsLock.Lock()
	defer backendsLock.Unlock()
	backends[strings.ToLower(scheme)] = fn
}

// Schemes returns the registered endpoint schemes in sorted order.
func Schemes() []string {
	backendsLock.RLock()
	defer backendsLock.RUnlock()

	schemes := make([]string, 0, len(backends))
	for s := range backends {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	return schemes
}

// Connect opens a Client for endpoint, dispatching on its URL scheme.
func Connect(ctx context.Context, endpoint string) (Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("connect: empty endpoint: %w", ErrInvalidArgument)
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("connect: parse endpoint %q: %w", endpoint, err)
	}

	backendsLock.RLock()
	fn, ok := backends[strings.ToLower(u.Scheme)]
	backendsLock.RUnlock()

	if !ok {
		return nil, fmt.Errorf("connect %q (available: %v): %w", endpoint, Schemes(), ErrUnsupportedEndpoint)
	}

	client, err := fn(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("connect %q: %w", endpoint, err)
	}
	return client, nil
}
