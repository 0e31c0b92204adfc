package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

const (
	defaultTTL           = 5 * time.Second
	defaultMaxConcurrent = 5
)

// Config carries the tunables of the coalescing core. TTL and the volatile
// field list vary across deployments, so both are configuration rather than
// constants.
type Config struct {
	TTL            time.Duration `envconfig:"TTL" split_words:"true" default:"5s"`
	MaxConcurrent  int64         `envconfig:"MAX_CONCURRENT" split_words:"true" default:"5"`
	VolatileFields []string      `envconfig:"VOLATILE_FIELDS" split_words:"true"`
}

// Request describes one logical unit of deduplicatable work.
type Request struct {
	// Kind discriminates the operation family, e.g. an HTTP method or
	// "agent-query".
	Kind string
	// Key is the endpoint or normalized query the work targets.
	Key string
	// Payload is the structured request body, if any.
	Payload map[string]any
}

// UnitOfWork performs the real work once per fingerprint per in-flight window.
type UnitOfWork func(ctx context.Context) (any, error)

// Coalescer merges concurrent logically-identical requests into a single
// execution. All callers of the same fingerprint observe the same value or the
// same error; completed entries linger for the configured TTL and are then
// evicted so later identical requests run fresh.
type Coalescer struct {
	fingerprinter *Fingerprinter
	registry      *registry
	slots         *semaphore.Weighted
	ttl           time.Duration
	now           func() time.Time
}

func New(cfg Config) *Coalescer {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = defaultTTL
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}

	return &Coalescer{
		fingerprinter: NewFingerprinter(cfg.VolatileFields),
		registry:      newRegistry(),
		slots:         semaphore.NewWeighted(maxConcurrent),
		ttl:           ttl,
		now:           time.Now,
	}
}

// Run executes work at most once per fingerprint per in-flight window. When a
// live entry exists the caller attaches to it and awaits the owner's outcome;
// otherwise the caller becomes the owner, takes a concurrency slot, runs the
// work and publishes the result to every waiter.
func (c *Coalescer) Run(ctx context.Context, req Request, work UnitOfWork) (any, error) {
	if work == nil {
		return nil, fmt.Errorf("%w: unit of work is nil", ErrValidation)
	}
	if req.Kind == "" {
		return nil, fmt.Errorf("%w: request kind is empty", ErrValidation)
	}

	fingerprint := c.fingerprinter.Fingerprint(req.Kind, req.Key, req.Payload)

	e, owner, err := c.registry.lookupOrInsert(fingerprint, c.now())
	if err != nil {
		return nil, err
	}
	if !owner {
		log.Debug().
			Str("kind", req.Kind).
			Str("key", req.Key).
			Msg("coalescing onto in-flight execution")
		return e.handle.Await(ctx)
	}

	// Owner path. Every exit below must leave the handle terminal, or waiters
	// hang forever.
	if err := c.slots.Acquire(ctx, 1); err != nil {
		failErr := fmt.Errorf("%w: while waiting for execution slot: %v", ErrCancelled, err)
		e.handle.fail(failErr)
		c.registry.scheduleEvict(e, c.ttl)
		return nil, failErr
	}

	value, workErr := c.execute(ctx, e, work)

	if workErr != nil {
		failErr := c.classify(ctx, workErr)
		e.handle.fail(failErr)
		c.registry.scheduleEvict(e, c.ttl)
		return nil, failErr
	}

	e.handle.resolve(value)
	c.registry.scheduleEvict(e, c.ttl)
	return value, nil
}

// execute runs the unit of work while holding the owner's slot. A panicking
// work function still leaves the handle terminal and the slot released before
// the panic continues, so waiters and later callers never hang on a
// fingerprint whose owner died.
func (c *Coalescer) execute(ctx context.Context, e *entry, work UnitOfWork) (any, error) {
	defer c.slots.Release(1)
	defer func() {
		if r := recover(); r != nil {
			e.handle.fail(fmt.Errorf("%w: unit of work panicked: %v", ErrUpstream, r))
			c.registry.scheduleEvict(e, c.ttl)
			panic(r)
		}
	}()
	return work(ctx)
}

// Fingerprint exposes the configured fingerprint function, mainly for callers
// that log or index by deduplication key.
func (c *Coalescer) Fingerprint(req Request) string {
	return c.fingerprinter.Fingerprint(req.Kind, req.Key, req.Payload)
}

// InFlight reports the number of live registry entries.
func (c *Coalescer) InFlight() int {
	return c.registry.count()
}

// Close cancels pending eviction timers and rejects subsequent Run calls.
// Executions already in flight complete and release their waiters normally.
func (c *Coalescer) Close() {
	c.registry.close()
}

// classify folds a unit-of-work failure into one of the error kinds waiters
// are promised. Cancellation of the owner context counts as cancellation even
// when the work surfaced it as a wrapped error.
func (c *Coalescer) classify(ctx context.Context, err error) error {
	if errors.Is(err, ErrUpstream) || errors.Is(err, ErrCancelled) {
		return err
	}
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return fmt.Errorf("%w: %w", ErrUpstream, err)
}
