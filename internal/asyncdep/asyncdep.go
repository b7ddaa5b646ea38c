// internal/asyncdep/asyncdep.go
package asyncdep

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/solatis/formkeeper/internal/hash"
	"github.com/solatis/formkeeper/internal/types"
)

/*
 * Memoized asynchronous field evaluation.
 *
 * An evaluator computes a renderer prop from the values of its declared
 * dependencies. Results are cached under a fingerprint of that sub-state, so
 * for a fixed dependency tuple the evaluator runs once for the cache's
 * lifetime. The cache only grows; its keys are bounded by the declared
 * evaluators times the distinct tuples actually seen.
 *
 * A miss returns Pending immediately and runs the evaluator on its own
 * goroutine. singleflight collapses concurrent misses for one key into a
 * single call, and the leader re-checks the cache so a miss racing a
 * completed evaluation does not run it twice.
 *
 * Failures (error, panic, timeout) never populate the value cache. They are
 * recorded per key and reported as Pending with Err set until the tuple
 * changes. With RetryFailed the next Evaluate for a failed key starts a fresh
 * attempt instead.
 *
 * Cache keys are namespaced by the evaluator's ID (field and prop key) so two
 * evaluators over the same dependencies do not read each other's results.
 */

// Result is the outcome of an Evaluate call.
type Result struct {
	Value   any
	Pending bool
	Err     error // last failure for this tuple, if any
}

// Options configures a Cache.
type Options struct {
	// Timeout bounds one evaluator call. Zero means no timeout.
	Timeout time.Duration
	// RetryFailed starts a new attempt for tuples whose last attempt failed.
	RetryFailed bool
	Logger      *slog.Logger
}

// Cache memoizes evaluator results for one controller.
type Cache struct {
	mu     sync.Mutex
	values map[string]any
	failed map[string]error
	closed bool

	flight singleflight.Group
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	timeout     time.Duration
	retryFailed bool
	logger      *slog.Logger
}

// New creates a cache. Evaluations run under a context derived from ctx and
// are cancelled by Close.
func New(ctx context.Context, opts Options) *Cache {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Cache{
		values:      make(map[string]any),
		failed:      make(map[string]error),
		ctx:         ctx,
		cancel:      cancel,
		timeout:     opts.Timeout,
		retryFailed: opts.RetryFailed,
		logger:      opts.Logger,
	}
}

// Evaluate returns the cached result for the sub-state of deps, or starts
// evaluator and returns Pending. onResolved, if non-nil, is called from the
// evaluation goroutine after a result or failure has been recorded.
func (c *Cache) Evaluate(id string, evaluator types.AsyncEvaluator, deps []string, state types.State, onResolved func()) Result {
	sub := state.Pick(deps)
	h, err := hash.Of(sub)
	if err != nil {
		c.logger.Warn("async dependency not hashable", "evaluator", id, "error", err)
		return Result{Pending: true, Err: err}
	}
	key := id + "#" + h

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Result{Pending: true, Err: types.ErrClosed}
	}
	if v, ok := c.values[key]; ok {
		c.mu.Unlock()
		recordHit(c.ctx, id)
		return Result{Value: v}
	}
	if ferr, ok := c.failed[key]; ok {
		if !c.retryFailed {
			c.mu.Unlock()
			return Result{Pending: true, Err: ferr}
		}
		delete(c.failed, key)
	}
	c.wg.Add(1)
	c.mu.Unlock()

	recordMiss(c.ctx, id)
	go func() {
		defer c.wg.Done()
		c.flight.Do(key, func() (any, error) {
			c.run(id, key, evaluator, sub, onResolved)
			return nil, nil
		})
	}()

	return Result{Pending: true}
}

// run invokes evaluator once for key and records the outcome.
func (c *Cache) run(id, key string, evaluator types.AsyncEvaluator, sub types.State, onResolved func()) {
	// A goroutine started before an earlier run for key finished lands here
	// after it; the recorded outcome stands.
	c.mu.Lock()
	_, done := c.values[key]
	if _, failed := c.failed[key]; failed && !c.retryFailed {
		done = true
	}
	c.mu.Unlock()
	if done {
		return
	}

	ctx := c.ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	value, err := invoke(ctx, evaluator, sub)
	recordDuration(c.ctx, id, time.Since(start))

	c.mu.Lock()
	if err != nil {
		c.failed[key] = err
	} else {
		c.values[key] = value
	}
	c.mu.Unlock()

	if err != nil {
		recordFailure(c.ctx, id)
		c.logger.Warn("async evaluation failed",
			"evaluator", id,
			"error", err)
	} else {
		c.logger.Debug("async evaluation resolved",
			"evaluator", id,
			"duration", time.Since(start))
	}

	if onResolved != nil {
		onResolved()
	}
}

// invoke calls evaluator, turning a panic into ErrAsyncPanic.
func invoke(ctx context.Context, evaluator types.AsyncEvaluator, sub types.State) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value, err = nil, fmt.Errorf("%w: %v", types.ErrAsyncPanic, r)
		}
	}()
	value, err = evaluator(ctx, sub)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return value, err
}

// Wait blocks until every evaluation started so far has finished.
func (c *Cache) Wait() {
	c.wg.Wait()
}

// Close cancels in-flight evaluations and waits for them to finish. Later
// Evaluate calls report ErrClosed.
func (c *Cache) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}
