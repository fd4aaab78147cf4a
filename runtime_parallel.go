// SPDX-License-Identifier: AGPL-3.0-or-later
// © 2025 dex-go Contributors
// Part of dex-go — Licensed under AGPL-3.0-or-later.

package dex

import (
	"context"
	"fmt"
	goruntime "runtime"

	"golang.org/x/sync/errgroup"

	"github.com/dex-lang/dex-go/internal/envconfig"
)

func workerCount(concurrency, jobs int) int {
	workers := concurrency
	if workers <= 0 {
		workers = envconfig.NumParallel
	}
	if workers <= 0 {
		workers = goruntime.GOMAXPROCS(0)
	}
	if workers > jobs {
		workers = jobs
	}
	if workers <= 0 {
		workers = 1
	}
	return workers
}

type closer interface {
	Close()
}

// parallel runs op for every index with at most concurrency jobs in flight.
// Results keep input order. When any job fails the remaining jobs are
// skipped and every produced result is closed.
func parallel[R closer](ctx context.Context, n, concurrency int, label string, op func(int) (R, error)) ([]R, error) {
	results := make([]R, n)
	if n == 0 {
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerCount(concurrency, n))
	done := make([]bool, n)

	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := op(i)
			if err != nil {
				return fmt.Errorf("dex: %s job %d: %w", label, i, err)
			}
			results[i] = r
			done[i] = true
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		for i, r := range results {
			if done[i] {
				r.Close()
			}
		}
		return nil, err
	}
	return results, nil
}

// ParallelEval forks base once per source and evaluates each source into its
// own fork. The returned contexts are in input order and owned by the
// caller. When concurrency <= 0 the worker count defaults to
// DEX_NUM_PARALLEL, then to GOMAXPROCS.
func (rt *Runtime) ParallelEval(ctx context.Context, base *Context, sources []string, concurrency int) ([]*Context, error) {
	if base == nil {
		return nil, fmt.Errorf("dex: parallel_eval base context is nil")
	}
	if base.rt != rt {
		return nil, fmt.Errorf("dex: parallel_eval base context belongs to another runtime")
	}
	return parallel(ctx, len(sources), concurrency, "parallel_eval", func(i int) (*Context, error) {
		fork, err := base.Fork()
		if err != nil {
			return nil, err
		}
		if err := fork.Eval(sources[i]); err != nil {
			fork.Close()
			return nil, err
		}
		return fork, nil
	})
}

// ParallelCompile looks up each name in c and compiles it with cc. Lookups
// and compilations run concurrently; results are in input order.
func (rt *Runtime) ParallelCompile(ctx context.Context, c *Context, cc ExportCC, names []string, concurrency int) ([]*NativeFunction, error) {
	if c == nil {
		return nil, fmt.Errorf("dex: parallel_compile context is nil")
	}
	if c.rt != rt {
		return nil, fmt.Errorf("dex: parallel_compile context belongs to another runtime")
	}
	return parallel(ctx, len(names), concurrency, "parallel_compile", func(i int) (*NativeFunction, error) {
		atom, err := c.Lookup(names[i])
		if err != nil {
			return nil, err
		}
		return c.Compile(cc, atom)
	})
}
