package schemaclient

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kopra/internal/platform/config"
	dErrors "kopra/pkg/domain-errors"
)

// stubDriver satisfies database/sql without a real database. Each opened
// *sql.DB is distinct, which is all the cache cares about.
type stubDriver struct{}

func (stubDriver) Open(string) (driver.Conn, error) { return stubConn{}, nil }

type stubConn struct{}

func (stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not implemented") }
func (stubConn) Close() error                        { return nil }
func (stubConn) Begin() (driver.Tx, error)           { return nil, errors.New("not implemented") }

var registerStub sync.Once

func newStubDB(t *testing.T) *sql.DB {
	t.Helper()
	registerStub.Do(func() { sql.Register("schemaclient-stub", stubDriver{}) })
	db, err := sql.Open("schemaclient-stub", "")
	require.NoError(t, err)
	return db
}

// testFactory counts constructions and can be told to fail or stall.
type testFactory struct {
	t         *testing.T
	mu        sync.Mutex
	calls     map[string]int
	fail      error
	delay     time.Duration
	started   chan struct{} // closed when a construction begins, if set
	proceed   chan struct{} // construction blocks on this, if set
	callTotal atomic.Int64
}

func newTestFactory(t *testing.T) *testFactory {
	return &testFactory{t: t, calls: make(map[string]int)}
}

func (f *testFactory) build(ctx context.Context, schemaName string) (*sql.DB, error) {
	f.mu.Lock()
	f.calls[schemaName]++
	started := f.started
	proceed := f.proceed
	fail := f.fail
	delay := f.delay
	f.mu.Unlock()
	f.callTotal.Add(1)

	if started != nil {
		close(started)
		f.mu.Lock()
		f.started = nil
		f.mu.Unlock()
	}
	if proceed != nil {
		<-proceed
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail != nil {
		return nil, fail
	}
	return newStubDB(f.t), nil
}

func (f *testFactory) callsFor(schema string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[schema]
}

func cacheConfig() config.CacheConfig {
	return config.CacheConfig{
		MaxClients:       100,
		IdleTTL:          10 * time.Minute,
		SweepInterval:    0, // tests trigger sweeps explicitly
		ConstructTimeout: 5 * time.Second,
		Backpressure:     config.BackpressureReject,
	}
}

func TestCache_AcquireReusesClient(t *testing.T) {
	ctx := context.Background()
	factory := newTestFactory(t)
	cache := New(factory.build, cacheConfig())
	defer cache.Close()

	h1, err := cache.Acquire(ctx, "tenant_majujaya")
	require.NoError(t, err)
	h2, err := cache.Acquire(ctx, "tenant_majujaya")
	require.NoError(t, err)

	assert.Same(t, h1.DB(), h2.DB(), "same schema must share one client")
	assert.Equal(t, 1, factory.callsFor("tenant_majujaya"))
	assert.Equal(t, "tenant_majujaya", h1.Schema())

	h3, err := cache.Acquire(ctx, "tenant_lain")
	require.NoError(t, err)
	assert.NotSame(t, h1.DB(), h3.DB(), "different schemas get different clients")

	h1.Release()
	h2.Release()
	h3.Release()
}

func TestCache_ConcurrentMissesShareOneConstruction(t *testing.T) {
	ctx := context.Background()
	factory := newTestFactory(t)
	factory.delay = 50 * time.Millisecond
	cache := New(factory.build, cacheConfig())
	defer cache.Close()

	const n = 32
	var wg sync.WaitGroup
	handles := make([]*Handle, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = cache.Acquire(ctx, "tenant_majujaya")
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, handles[0].DB(), handles[i].DB())
	}
	assert.Equal(t, 1, factory.callsFor("tenant_majujaya"), "all concurrent misses share one build")

	for _, h := range handles {
		h.Release()
	}
	assert.Equal(t, 1, cache.Len())
}

func TestCache_ConstructionFailurePropagatesAndLeavesNothingCached(t *testing.T) {
	ctx := context.Background()
	factory := newTestFactory(t)
	factory.fail = errors.New("connection refused")
	factory.delay = 20 * time.Millisecond
	cache := New(factory.build, cacheConfig())
	defer cache.Close()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = cache.Acquire(ctx, "tenant_majujaya")
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		assert.Truef(t, dErrors.HasCode(errs[i], dErrors.CodeClientConstruct), "waiter %d: %v", i, errs[i])
	}
	assert.Equal(t, 0, cache.Len(), "failed construction must not leave residue")

	// The next attempt retries cleanly.
	factory.mu.Lock()
	factory.fail = nil
	factory.mu.Unlock()
	h, err := cache.Acquire(ctx, "tenant_majujaya")
	require.NoError(t, err)
	h.Release()
}

func TestCache_AbandonedWaiterDoesNotAbortConstruction(t *testing.T) {
	factory := newTestFactory(t)
	factory.started = make(chan struct{})
	proceed := make(chan struct{})
	factory.proceed = proceed
	cache := New(factory.build, cacheConfig())
	defer cache.Close()

	started := factory.started

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := cache.Acquire(ctx, "tenant_majujaya")
		errCh <- err
	}()

	<-started
	cancel()
	err := <-errCh
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout), "abandoning waiter sees its own cancellation")

	// The construction it triggered still completes and serves others.
	close(proceed)
	h, err := cache.Acquire(context.Background(), "tenant_majujaya")
	require.NoError(t, err)
	assert.Equal(t, 1, factory.callsFor("tenant_majujaya"))
	h.Release()
}

func TestCache_IdleSweepEvictsOnlyUnused(t *testing.T) {
	ctx := context.Background()
	factory := newTestFactory(t)
	cfg := cacheConfig()
	cfg.IdleTTL = 10 * time.Millisecond
	cache := New(factory.build, cfg)
	defer cache.Close()

	held, err := cache.Acquire(ctx, "tenant_held")
	require.NoError(t, err)
	idle, err := cache.Acquire(ctx, "tenant_idle")
	require.NoError(t, err)
	idle.Release()

	time.Sleep(20 * time.Millisecond)
	cache.sweepIdle()

	assert.Equal(t, 1, cache.Len(), "held client survives the sweep")

	// Re-acquiring the evicted schema constructs a fresh client.
	again, err := cache.Acquire(ctx, "tenant_idle")
	require.NoError(t, err)
	assert.Equal(t, 2, factory.callsFor("tenant_idle"))
	again.Release()
	held.Release()
}

func TestCache_CapacityEvictsLRUIdle(t *testing.T) {
	ctx := context.Background()
	factory := newTestFactory(t)
	cfg := cacheConfig()
	cfg.MaxClients = 2
	cache := New(factory.build, cfg)
	defer cache.Close()

	hOld, err := cache.Acquire(ctx, "tenant_old")
	require.NoError(t, err)
	hOld.Release()
	time.Sleep(time.Millisecond)
	hNew, err := cache.Acquire(ctx, "tenant_new")
	require.NoError(t, err)
	hNew.Release()

	// Cap is reached; the oldest idle client makes room.
	h3, err := cache.Acquire(ctx, "tenant_third")
	require.NoError(t, err)
	defer h3.Release()

	assert.Equal(t, 2, cache.Len())
	_, err = cache.Acquire(ctx, "tenant_new")
	require.NoError(t, err)
	assert.Equal(t, 1, factory.callsFor("tenant_new"), "recently used client was kept")
	assert.Equal(t, 1, factory.callsFor("tenant_old"))
}

func TestCache_SaturationRejectsWhenAllHeld(t *testing.T) {
	ctx := context.Background()
	factory := newTestFactory(t)
	cfg := cacheConfig()
	cfg.MaxClients = 2
	cache := New(factory.build, cfg)
	defer cache.Close()

	h1, err := cache.Acquire(ctx, "tenant_a")
	require.NoError(t, err)
	h2, err := cache.Acquire(ctx, "tenant_b")
	require.NoError(t, err)

	_, err = cache.Acquire(ctx, "tenant_c")
	assert.True(t, dErrors.HasCode(err, dErrors.CodePoolSaturated))

	// Held tenants are unaffected by saturation.
	h1b, err := cache.Acquire(ctx, "tenant_a")
	require.NoError(t, err)
	h1b.Release()

	h1.Release()
	h2.Release()
}

func TestCache_WaitPolicyBlocksUntilCapacity(t *testing.T) {
	ctx := context.Background()
	factory := newTestFactory(t)
	cfg := cacheConfig()
	cfg.MaxClients = 1
	cfg.Backpressure = config.BackpressureWait
	cache := New(factory.build, cfg)
	defer cache.Close()

	h1, err := cache.Acquire(ctx, "tenant_a")
	require.NoError(t, err)

	acquired := make(chan error, 1)
	go func() {
		h, err := cache.Acquire(ctx, "tenant_b")
		if err == nil {
			h.Release()
		}
		acquired <- err
	}()

	select {
	case <-acquired:
		t.Fatal("acquire should block while capacity is held")
	case <-time.After(50 * time.Millisecond):
	}

	h1.Release()
	select {
	case err := <-acquired:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken after release")
	}
}

func TestCache_WaitPolicyHonorsContext(t *testing.T) {
	factory := newTestFactory(t)
	cfg := cacheConfig()
	cfg.MaxClients = 1
	cfg.Backpressure = config.BackpressureWait
	cfg.ConstructTimeout = 0 // let the caller's deadline drive the wait
	cache := New(factory.build, cfg)
	defer cache.Close()

	h1, err := cache.Acquire(context.Background(), "tenant_a")
	require.NoError(t, err)
	defer h1.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = cache.Acquire(ctx, "tenant_b")
	assert.True(t, dErrors.HasCode(err, dErrors.CodePoolSaturated))
}

func TestCache_CloseRefusesFurtherAcquires(t *testing.T) {
	factory := newTestFactory(t)
	cache := New(factory.build, cacheConfig())
	h, err := cache.Acquire(context.Background(), "tenant_a")
	require.NoError(t, err)
	h.Release()

	cache.Close()
	_, err = cache.Acquire(context.Background(), "tenant_a")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	assert.Equal(t, 0, cache.Len())
}

func TestCache_ManySchemasConcurrently(t *testing.T) {
	ctx := context.Background()
	factory := newTestFactory(t)
	cache := New(factory.build, cacheConfig())
	defer cache.Close()

	const schemas = 10
	const perSchema = 8
	var wg sync.WaitGroup
	var failures atomic.Int64
	for s := 0; s < schemas; s++ {
		schema := fmt.Sprintf("tenant_%02d", s)
		for i := 0; i < perSchema; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				h, err := cache.Acquire(ctx, schema)
				if err != nil {
					failures.Add(1)
					return
				}
				time.Sleep(time.Millisecond)
				h.Release()
			}()
		}
	}
	wg.Wait()

	assert.Zero(t, failures.Load())
	assert.Equal(t, int64(schemas), factory.callTotal.Load(), "one construction per schema")
	assert.Equal(t, schemas, cache.Len())
}
