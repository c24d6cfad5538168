// Package forloop implements the for-iterator and parallel scheduler (spec
// §4.5): sequential and bounded-concurrency execution over an array,
// object, or loaded-content source, with source-order result and effect
// ordering regardless of completion order.
package forloop

import (
	"context"
	"sync"
	"time"

	"github.com/mlld-lang/mlld/core/invariant"
	"github.com/mlld-lang/mlld/core/value"
	"github.com/mlld-lang/mlld/internal/ports"
)

// Item is one iteration source element: an array element, or an
// object's (key, value) entry.
type Item struct {
	Index int
	Key   *string
	Value value.StructuredValue
}

// Options configures the scheduler (spec §4.5 `parallel(cap?, rate?)`).
type Options struct {
	Parallel bool
	Cap      int           // max concurrent bodies; 0 = all items at once
	Rate     float64       // max dispatch starts per second; 0 = unbounded
	Clock    ports.Clock   // nil => real time.Sleep
}

// Outcome is what one body invocation produced.
type Outcome struct {
	Item   Item
	Output value.StructuredValue
	Skip   bool // comprehension filter excluded this item (when-clause false)
}

// Body runs one iteration. A non-nil error is always fatal (guard `deny`,
// a propagating ExecutionError, etc.) and aborts the whole loop — errors
// a body wants to treat as plain data (a failed command's `{__error,
// __message}` capture) must already have been folded into Output by the
// caller before returning, per spec §4.5's "error-as-data capture inside
// loop bodies vs. guard deny being fatal" distinction.
type Body func(ctx context.Context, item Item) (value.StructuredValue, error)

// Run executes body once per item, honoring Options.Parallel/Cap/Rate,
// and returns outcomes in source order regardless of completion order
// using a semaphore+WaitGroup+indexed-results pattern generalized
// from fixed branch-count fan-out to an arbitrary iteration source.
func Run(ctx context.Context, items []Item, opts Options, body Body) ([]Outcome, error) {
	if !opts.Parallel || len(items) <= 1 {
		return runSequential(ctx, items, body)
	}
	return runParallel(ctx, items, opts, body)
}

func runSequential(ctx context.Context, items []Item, body Body) ([]Outcome, error) {
	out := make([]Outcome, len(items))
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := body(ctx, it)
		if err != nil {
			return nil, err
		}
		out[it.Index] = Outcome{Item: it, Output: v}
	}
	return out, nil
}

// runParallel uses a buffered semaphore to bound concurrency, a WaitGroup
// to join every goroutine, and an index-addressed results slice so
// completion order never leaks into the output; the first fatal error
// cancels the run context so outstanding bodies can stop early
// (fail-fast default).
func runParallel(parent context.Context, items []Item, opts Options, body Body) ([]Outcome, error) {
	concurrency := opts.Cap
	if concurrency <= 0 || concurrency > len(items) {
		concurrency = len(items)
	}

	runCtx, cancel := context.WithCancel(parent)
	defer cancel()

	type slot struct {
		outcome Outcome
		err     error
	}
	results := make([]slot, len(items))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var once sync.Once
	var firstErr error
	var mu sync.Mutex

	interval := time.Duration(0)
	if opts.Rate > 0 {
		interval = time.Duration(float64(time.Second) / opts.Rate)
	}

	for i, it := range items {
		if interval > 0 && i > 0 {
			if err := sleep(runCtx, opts.Clock, interval); err != nil {
				break
			}
		}

		wg.Add(1)
		item := it
		go func() {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-runCtx.Done():
				mu.Lock()
				results[item.Index] = slot{err: runCtx.Err()}
				mu.Unlock()
				return
			}
			defer func() { <-sem }()

			v, err := body(runCtx, item)

			mu.Lock()
			results[item.Index] = slot{outcome: Outcome{Item: item, Output: v}, err: err}
			mu.Unlock()

			if err != nil {
				once.Do(func() {
					firstErr = err
					cancel()
				})
			}
		}()
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	out := make([]Outcome, len(items))
	for _, s := range results {
		invariant.Invariant(s.err == nil, "result slot carries an error after firstErr check passed")
		out[s.outcome.Item.Index] = s.outcome
	}
	return out, nil
}

func sleep(ctx context.Context, clock ports.Clock, d time.Duration) error {
	if clock != nil {
		return clock.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
