package runner

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Runner fans work items out over a bounded pool of goroutines.
// A single Runner can drive any number of fan-outs; each fan-out joins on its own.
type Runner struct {
	workers int
	logger  *slog.Logger
}

// New creates a Runner with the given pool size. A non-positive size uses runtime.NumCPU().
func New(workers int, logger *slog.Logger) *Runner {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Runner{workers: workers, logger: logger}
}

// Workers returns the pool size.
func (r *Runner) Workers() int {
	return r.workers
}

// Each calls fn for every item concurrently and returns once every call has returned.
// A failing or panicking item never stops its siblings; its error is logged and
// included in the returned slice (nil when everything succeeded).
func Each[T any](r *Runner, items []T, fn func(T) error) []error {
	var (
		mu   sync.Mutex
		errs []error
	)

	g := new(errgroup.Group)
	g.SetLimit(r.workers)
	for _, item := range items {
		g.Go(func() error {
			if err := safeCall(fn, item); err != nil {
				r.logger.Warn("work item failed", "error", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			// Never return the error: errgroup would only keep the first one.
			return nil
		})
	}
	g.Wait()

	return errs
}

// Go is the non-blocking form of Each. It returns immediately; done is called
// exactly once, after the last item has finished, with the collected errors.
// done may be nil.
func Go[T any](r *Runner, items []T, fn func(T) error, done func(errs []error)) {
	go func() {
		errs := Each(r, items, fn)
		if done != nil {
			done(errs)
		}
	}()
}

// safeCall runs fn and converts a panic into an error.
func safeCall[T any](fn func(T) error, item T) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("work item panicked: %v", rec)
		}
	}()
	return fn(item)
}
