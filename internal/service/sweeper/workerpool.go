package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/talx-hub/gopher-loyalty/internal/model"
)

type expireFunc func(ctx context.Context, id string, now time.Time) (int64, error)

type UnitSemaphore interface {
	Acquire(ctx context.Context, timeout time.Duration) error
	Release()
}

type outcome struct {
	err    error
	id     string
	amount int64
}

type workerPool struct {
	expire    expireFunc
	sema      UnitSemaphore
	waitGroup *sync.WaitGroup
	jobs      <-chan string
	results   chan<- outcome
	log       *slog.Logger
	now       time.Time
}

func (pool *workerPool) start(ctx context.Context, workerCount int) {
	for range workerCount {
		pool.waitGroup.Add(1)
		go pool.worker(ctx)
	}
}

func (pool *workerPool) worker(ctx context.Context) {
	defer pool.waitGroup.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-pool.jobs:
			if !ok {
				return
			}

			if err := pool.sema.Acquire(ctx, model.DefaultTimeout); err != nil {
				pool.log.With("unit", "semaphore").LogAttrs(ctx,
					slog.LevelWarn,
					"failed to acquire unit slot",
					slog.String("id", id),
					slog.Any(model.KeyLoggerError, err),
				)
				pool.results <- outcome{id: id, err: err}
				continue
			}
			amount, err := pool.expire(ctx, id, pool.now)
			pool.sema.Release()

			if err != nil && !errors.Is(err, context.Canceled) {
				pool.log.LogAttrs(ctx,
					slog.LevelError,
					"failed to expire",
					slog.String("id", id),
					slog.Any(model.KeyLoggerError, err),
				)
			}
			pool.results <- outcome{id: id, amount: amount, err: err}
		}
	}
}

// fanOut runs expire for every id on at most workerCount goroutines and collects
// one outcome per id. Different ids lock different rows, so units run in parallel.
func fanOut(ctx context.Context,
	ids []string, workerCount int, sema UnitSemaphore, log *slog.Logger, now time.Time, expire expireFunc,
) []outcome {
	jobs := make(chan string)
	results := make(chan outcome, len(ids))
	var wg sync.WaitGroup

	pool := &workerPool{
		expire:    expire,
		sema:      sema,
		waitGroup: &wg,
		jobs:      jobs,
		results:   results,
		log:       log,
		now:       now,
	}
	pool.start(ctx, min(max(workerCount, 1), len(ids)))

feed:
	for _, id := range ids {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- id:
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	out := make([]outcome, 0, len(ids))
	for r := range results {
		out = append(out, r)
	}
	return out
}
