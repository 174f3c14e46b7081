// Package schemaclient caches one database client per tenant schema. The
// client carries the tenant's search path, so handing a request the right
// client is what enforces schema isolation. Construction is expensive
// (pool warm-up), so concurrent requests for the same tenant share one
// construction and the result is kept until idle or capacity pressure
// pushes it out.
package schemaclient

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"kopra/internal/platform/config"
	dErrors "kopra/pkg/domain-errors"
)

// Factory builds a database client scoped to one schema.
type Factory func(ctx context.Context, schemaName string) (*sql.DB, error)

const acquireRetries = 3

type entry struct {
	schema   string
	db       *sql.DB
	refCount int
	lastUsed time.Time
}

// Cache owns every live schema client.
type Cache struct {
	factory          Factory
	maxClients       int
	idleTTL          time.Duration
	sweepInterval    time.Duration
	constructTimeout time.Duration
	policy           config.BackpressurePolicy
	logger           *slog.Logger
	metrics          *Metrics

	group singleflight.Group

	mu              sync.Mutex
	entries         map[string]*entry
	reserved        int
	capacityWaiters []chan struct{}
	closed          bool

	done    chan struct{}
	sweeper sync.WaitGroup
}

type Option func(*Cache)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// New creates the cache and starts its idle sweeper.
func New(factory Factory, cfg config.CacheConfig, opts ...Option) *Cache {
	c := &Cache{
		factory:          factory,
		maxClients:       cfg.MaxClients,
		idleTTL:          cfg.IdleTTL,
		sweepInterval:    cfg.SweepInterval,
		constructTimeout: cfg.ConstructTimeout,
		policy:           cfg.Backpressure,
		entries:          make(map[string]*entry),
		done:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sweepInterval > 0 {
		c.sweeper.Add(1)
		go c.sweepLoop()
	}
	return c
}

// Acquire leases the client for schemaName, constructing it if needed.
// Concurrent misses for the same schema share a single construction; its
// failure is reported to every waiter and nothing is cached, so the next
// request starts clean. Cancelling ctx abandons the wait but never aborts
// a construction other waiters still depend on.
func (c *Cache) Acquire(ctx context.Context, schemaName string) (*Handle, error) {
	if schemaName == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "schema name is required")
	}

	for attempt := 0; attempt < acquireRetries; attempt++ {
		if h, ok := c.leaseExisting(schemaName); ok {
			return h, nil
		}

		ch := c.group.DoChan(schemaName, func() (any, error) {
			return nil, c.construct(ctx, schemaName)
		})

		select {
		case res := <-ch:
			if res.Err != nil {
				return nil, res.Err
			}
		case <-ctx.Done():
			// The leader keeps building on a detached context; other
			// waiters, or the next request, get the finished client.
			return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "acquire abandoned")
		}

		// The entry can be evicted between construction finishing and this
		// waiter taking its lease; loop and reconstruct if so.
		if h, ok := c.leaseExisting(schemaName); ok {
			return h, nil
		}
	}
	return nil, dErrors.New(dErrors.CodeUnavailable, "schema client kept disappearing before lease")
}

func (c *Cache) leaseExisting(schemaName string) (*Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[schemaName]
	if !ok {
		return nil, false
	}
	e.refCount++
	if c.metrics != nil {
		c.metrics.Hits.Inc()
	}
	return &Handle{schema: schemaName, db: e.db, cache: c}, true
}

// construct runs inside singleflight: exactly one per schema at a time.
// It is detached from the triggering request's context so that request's
// cancellation cannot fail the waiters behind it; the construct timeout
// bounds the work instead. Without a timeout the caller's deadline applies.
func (c *Cache) construct(callerCtx context.Context, schemaName string) error {
	ctx := callerCtx
	if c.constructTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(callerCtx), c.constructTimeout)
		defer cancel()
	}

	// A previous flight may have finished between this caller's missed
	// lookup and the new flight starting.
	c.mu.Lock()
	if _, ok := c.entries[schemaName]; ok {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.reserveSlot(ctx); err != nil {
		return err
	}

	db, err := c.factory(ctx, schemaName)
	if err != nil {
		c.mu.Lock()
		c.reserved--
		c.wakeCapacityWaiterLocked()
		c.mu.Unlock()
		if c.metrics != nil {
			c.metrics.ConstructFailures.Inc()
		}
		return dErrors.Wrap(err, dErrors.CodeClientConstruct, "build schema client")
	}

	c.mu.Lock()
	c.reserved--
	c.entries[schemaName] = &entry{schema: schemaName, db: db, lastUsed: time.Now()}
	size := len(c.entries)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.Constructed.Inc()
		c.metrics.ActiveClients.Set(float64(size))
	}
	if c.logger != nil {
		c.logger.Debug("schema client constructed", "schema", schemaName, "cached", size)
	}
	return nil
}

// reserveSlot claims capacity for a client under construction. When the
// cache is full it first tries to evict an idle client; failing that it
// applies the configured backpressure policy.
func (c *Cache) reserveSlot(ctx context.Context) error {
	c.mu.Lock()
	for {
		if c.closed {
			c.mu.Unlock()
			return dErrors.New(dErrors.CodeUnavailable, "schema client cache is closed")
		}
		if c.maxClients <= 0 || len(c.entries)+c.reserved < c.maxClients {
			c.reserved++
			c.mu.Unlock()
			return nil
		}
		if c.evictIdleLocked("capacity") {
			continue
		}

		if c.metrics != nil {
			c.metrics.Saturation.Inc()
		}
		if c.policy != config.BackpressureWait {
			c.mu.Unlock()
			return dErrors.New(dErrors.CodePoolSaturated, "schema client capacity reached")
		}

		waiter := make(chan struct{})
		c.capacityWaiters = append(c.capacityWaiters, waiter)
		c.mu.Unlock()

		select {
		case <-waiter:
			c.mu.Lock()
		case <-ctx.Done():
			c.dropCapacityWaiter(waiter)
			return dErrors.Wrap(ctx.Err(), dErrors.CodePoolSaturated, "timed out waiting for schema client capacity")
		}
	}
}

// evictIdleLocked removes the least recently used idle client. Callers hold mu.
func (c *Cache) evictIdleLocked(reason string) bool {
	var victim *entry
	for _, e := range c.entries {
		if e.refCount != 0 {
			continue
		}
		if victim == nil || e.lastUsed.Before(victim.lastUsed) {
			victim = e
		}
	}
	if victim == nil {
		return false
	}
	c.removeLocked(victim, reason)
	return true
}

// removeLocked drops the entry and closes its client off the lock path.
func (c *Cache) removeLocked(e *entry, reason string) {
	delete(c.entries, e.schema)
	size := len(c.entries)
	db := e.db
	go func() {
		_ = db.Close()
	}()
	if c.metrics != nil {
		c.metrics.Evicted.WithLabelValues(reason).Inc()
		c.metrics.ActiveClients.Set(float64(size))
	}
	if c.logger != nil {
		c.logger.Debug("schema client evicted", "schema", e.schema, "reason", reason)
	}
}

func (c *Cache) wakeCapacityWaiterLocked() {
	if len(c.capacityWaiters) == 0 {
		return
	}
	close(c.capacityWaiters[0])
	c.capacityWaiters = c.capacityWaiters[1:]
}

func (c *Cache) dropCapacityWaiter(waiter chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.capacityWaiters {
		if w == waiter {
			c.capacityWaiters = append(c.capacityWaiters[:i], c.capacityWaiters[i+1:]...)
			return
		}
	}
	// Already woken: pass the slot on so the signal is not lost.
	c.wakeCapacityWaiterLocked()
}

// releaseClient is called by Handle.Release. A client whose last lease goes
// away is handed to a capacity waiter immediately instead of idling.
func (c *Cache) releaseClient(schemaName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[schemaName]
	if !ok {
		return
	}
	e.refCount--
	if e.refCount > 0 {
		return
	}
	e.lastUsed = time.Now()
	if len(c.capacityWaiters) > 0 {
		c.removeLocked(e, "capacity")
		c.wakeCapacityWaiterLocked()
	}
}

func (c *Cache) sweepLoop() {
	defer c.sweeper.Done()
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweepIdle()
		case <-c.done:
			return
		}
	}
}

// sweepIdle evicts clients that have sat unused past the idle TTL.
func (c *Cache) sweepIdle() {
	cutoff := time.Now().Add(-c.idleTTL)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.refCount == 0 && e.lastUsed.Before(cutoff) {
			c.removeLocked(e, "idle")
		}
	}
}

// Len reports the number of cached clients. Used by health checks and tests.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the sweeper and closes every cached client. In-flight
// requests holding handles will fail; call this only during shutdown,
// after the HTTP server has drained.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for _, w := range c.capacityWaiters {
		close(w)
	}
	c.capacityWaiters = nil
	dbs := make([]*sql.DB, 0, len(c.entries))
	for _, e := range c.entries {
		dbs = append(dbs, e.db)
	}
	c.entries = make(map[string]*entry)
	c.mu.Unlock()

	close(c.done)
	c.sweeper.Wait()
	for _, db := range dbs {
		_ = db.Close()
	}
	if c.metrics != nil {
		c.metrics.ActiveClients.Set(0)
	}
}
