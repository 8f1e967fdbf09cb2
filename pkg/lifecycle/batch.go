package lifecycle

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LaunchAll launches every named machine in Options.LaunchMode, at most
// Options.BatchConcurrency at a time. Duplicate names are launched once.
// A failure does not stop the other launches; all failures are returned
// together.
func (l *Lifecycle) LaunchAll(ctx context.Context, names []string) (map[string]*LaunchResult, error) {
	results := make(map[string]*LaunchResult, len(names))
	var mu sync.Mutex

	err := l.batch(ctx, "launch", names, func(ctx context.Context, name string) error {
		res, err := l.Launch(ctx, name, "")
		if err != nil {
			return err
		}
		mu.Lock()
		results[name] = res
		mu.Unlock()
		return nil
	})
	return results, err
}

// ShutdownAll shuts down every named machine like LaunchAll launches them.
func (l *Lifecycle) ShutdownAll(ctx context.Context, names []string) error {
	return l.batch(ctx, "shutdown", names, l.Shutdown)
}

func (l *Lifecycle) batch(ctx context.Context, what string, names []string, fn func(context.Context, string) error) error {
	var (
		eg     errgroup.Group
		mu     sync.Mutex
		result *multierror.Error
		seen   = make(map[string]struct{}, len(names))
	)
	eg.SetLimit(l.opts.BatchConcurrency)

	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		name := name

		eg.Go(func() error {
			if err := fn(ctx, name); err != nil {
				mu.Lock()
				result = multierror.Append(result, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = eg.Wait()

	l.logger.Info("batch finished",
		zap.String("operation", what),
		zap.Int("machines", len(seen)),
		zap.Int("failed", failures(result)),
	)
	return result.ErrorOrNil()
}

func failures(err *multierror.Error) int {
	if err == nil {
		return 0
	}
	return len(err.Errors)
}
