package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of products processed in parallel.
const DefaultConcurrency = 5

// workQueue runs per-product work with bounded parallelism. Work for the
// same product id never overlaps, across calls as well as within one.
type workQueue struct {
	limit int
	locks *keyedMutex
}

func newWorkQueue(limit int) *workQueue {
	if limit < 1 {
		limit = DefaultConcurrency
	}
	return &workQueue{limit: limit, locks: newKeyedMutex()}
}

// run calls fn for every distinct id. A failing id does not stop its
// siblings; all failures are joined. done, when set, is called after each
// id completes and is never called concurrently.
func (q *workQueue) run(ctx context.Context, ids []string, fn func(context.Context, string) error, done func(id string, err error)) error {
	var g errgroup.Group
	g.SetLimit(q.limit)

	var (
		mu   sync.Mutex
		errs []error
	)
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if err := ctx.Err(); err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			break
		}

		g.Go(func() error {
			unlock := q.locks.lock(id)
			err := fn(ctx, id)
			unlock()

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("product %s: %w", id, err))
			}
			if done != nil {
				done(id, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
