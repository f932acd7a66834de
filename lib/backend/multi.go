package backend

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// maxFanOut limits the number of concurrent backend calls of the fallback implementations.
const maxFanOut = 16

// GetMultiple loads all given paths. It uses the backend's own IMultiGetter implementation if
// available, otherwise it fans out to Get and merges the results.
func GetMultiple(ctx context.Context, b IBackend, paths []string) (map[string][]byte, error) {
	if mg, ok := b.(IMultiGetter); ok {
		return mg.GetMultiple(ctx, paths)
	}

	var (
		mu      sync.Mutex
		records = make(map[string][]byte, len(paths))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFanOut)
	for _, p := range paths {
		g.Go(func() error {
			data, ok, err := b.Get(gctx, p)
			if err != nil || !ok {
				return err
			}
			mu.Lock()
			records[p] = data
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

// RemoveMultiple deletes all given paths. It uses the backend's own IMultiRemover implementation
// if available, otherwise it fans out to Remove.
func RemoveMultiple(ctx context.Context, b IBackend, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	if mr, ok := b.(IMultiRemover); ok {
		return mr.RemoveMultiple(ctx, paths)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFanOut)
	for _, p := range paths {
		g.Go(func() error {
			return b.Remove(gctx, p)
		})
	}
	return g.Wait()
}
