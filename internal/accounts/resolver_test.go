package accounts

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/aarelay/internal/adapter/metrics"
	"github.com/pscheid92/aarelay/internal/domain"
)

var (
	testFactory = common.HexToAddress("0x9406Cc6185a346906296840746125a0E44976454")
	testOwner   = common.HexToAddress("0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf")
	testAccount = common.HexToAddress("0xaAaAaAaaAaAaAaaAaAAAAAAAAaaaAaAaAaaAaaAa")
)

type fakeSource struct {
	calls atomic.Int32
	addr  common.Address
	err   error
	salt  *big.Int
}

func (f *fakeSource) SmartAccountAddress(_ context.Context, _ common.Address, salt *big.Int) (common.Address, error) {
	f.calls.Add(1)
	f.salt = salt
	return f.addr, f.err
}

type fakeShared struct {
	mu      sync.Mutex
	entries map[string]common.Address
	getErr  error
	setErr  error
}

func newFakeShared() *fakeShared {
	return &fakeShared{entries: make(map[string]common.Address)}
}

func (f *fakeShared) Get(_ context.Context, key string) (common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return common.Address{}, f.getErr
	}
	addr, ok := f.entries[key]
	if !ok {
		return common.Address{}, domain.ErrAddressNotFound
	}
	return addr, nil
}

func (f *fakeShared) Set(_ context.Context, key string, addr common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.entries[key] = addr
	return nil
}

func newTestResolver(source AddressSource, shared domain.AddressCache, clock clockwork.Clock) (*Resolver, *metrics.CacheMetrics) {
	m := metrics.NewCacheMetrics(prometheus.NewRegistry())
	r := NewResolver(source, shared, Config{Factory: testFactory, Salt: big.NewInt(0), TTL: time.Hour}, clock, m)
	return r, m
}

func TestResolve_ChainThenMemory(t *testing.T) {
	source := &fakeSource{addr: testAccount}
	shared := newFakeShared()
	r, m := newTestResolver(source, shared, clockwork.NewFakeClock())
	ctx := context.Background()

	addr, err := r.Resolve(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, testAccount, addr)
	assert.Equal(t, 0, source.salt.Sign())

	addr, err = r.Resolve(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, testAccount, addr)

	assert.Equal(t, int32(1), source.calls.Load())
	assert.Equal(t, testAccount, shared.entries[cacheKey(testFactory, testOwner, big.NewInt(0))])
	assert.InDelta(t, 1, testutil.ToFloat64(m.Hits.WithLabelValues(layerMemory)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Misses.WithLabelValues(layerShared)), 0)
}

func TestResolve_SharedHit(t *testing.T) {
	source := &fakeSource{addr: testAccount}
	shared := newFakeShared()
	shared.entries[cacheKey(testFactory, testOwner, big.NewInt(0))] = testAccount
	r, m := newTestResolver(source, shared, clockwork.NewFakeClock())

	addr, err := r.Resolve(context.Background(), testOwner)
	require.NoError(t, err)
	assert.Equal(t, testAccount, addr)
	assert.Equal(t, int32(0), source.calls.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(m.Hits.WithLabelValues(layerShared)), 0)
}

func TestResolve_SharedFailureFallsBackToChain(t *testing.T) {
	source := &fakeSource{addr: testAccount}
	shared := newFakeShared()
	shared.getErr = errors.New("connection refused")
	shared.setErr = errors.New("connection refused")
	r, _ := newTestResolver(source, shared, clockwork.NewFakeClock())

	addr, err := r.Resolve(context.Background(), testOwner)
	require.NoError(t, err)
	assert.Equal(t, testAccount, addr)
	assert.Equal(t, int32(1), source.calls.Load())
}

func TestResolve_WithoutSharedCache(t *testing.T) {
	source := &fakeSource{addr: testAccount}
	r, _ := newTestResolver(source, nil, clockwork.NewFakeClock())

	addr, err := r.Resolve(context.Background(), testOwner)
	require.NoError(t, err)
	assert.Equal(t, testAccount, addr)
}

func TestResolve_SourceError(t *testing.T) {
	upstream := errors.New("execution reverted")
	source := &fakeSource{err: upstream}
	r, _ := newTestResolver(source, newFakeShared(), clockwork.NewFakeClock())

	_, err := r.Resolve(context.Background(), testOwner)
	assert.ErrorIs(t, err, upstream)

	_, err = r.Resolve(context.Background(), testOwner)
	require.Error(t, err)
	assert.Equal(t, int32(2), source.calls.Load(), "errors must not be cached")
}

func TestResolve_ZeroAddressRejected(t *testing.T) {
	r, _ := newTestResolver(&fakeSource{}, nil, clockwork.NewFakeClock())

	_, err := r.Resolve(context.Background(), testOwner)
	assert.Error(t, err)
}

func TestResolve_MemoryExpires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := &fakeSource{addr: testAccount}
	r, _ := newTestResolver(source, nil, clock)
	ctx := context.Background()

	_, err := r.Resolve(ctx, testOwner)
	require.NoError(t, err)

	clock.Advance(time.Hour + time.Second)

	_, err = r.Resolve(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, int32(2), source.calls.Load())
}

func TestResolve_ConcurrentLookupsCollapse(t *testing.T) {
	source := &fakeSource{addr: testAccount}
	r, _ := newTestResolver(source, nil, clockwork.NewFakeClock())

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			addr, err := r.Resolve(context.Background(), testOwner)
			assert.NoError(t, err)
			assert.Equal(t, testAccount, addr)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), source.calls.Load())
}

// gatedSource blocks every lookup until release is closed.
type gatedSource struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (g *gatedSource) SmartAccountAddress(ctx context.Context, _ common.Address, _ *big.Int) (common.Address, error) {
	if g.calls.Add(1) == 1 {
		close(g.started)
	}
	select {
	case <-g.release:
		return testAccount, nil
	case <-ctx.Done():
		return common.Address{}, ctx.Err()
	}
}

func TestResolve_FirstCallerCancelDoesNotFailOthers(t *testing.T) {
	source := &gatedSource{started: make(chan struct{}), release: make(chan struct{})}
	r, _ := newTestResolver(source, nil, clockwork.NewFakeClock())

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() {
		_, err := r.Resolve(firstCtx, testOwner)
		firstDone <- err
	}()
	<-source.started

	type result struct {
		addr common.Address
		err  error
	}
	secondDone := make(chan result, 1)
	go func() {
		addr, err := r.Resolve(context.Background(), testOwner)
		secondDone <- result{addr, err}
	}()

	cancelFirst()
	assert.ErrorIs(t, <-firstDone, context.Canceled)

	close(source.release)
	second := <-secondDone
	require.NoError(t, second.err)
	assert.Equal(t, testAccount, second.addr)
	assert.Equal(t, int32(1), source.calls.Load())
}

func TestResolve_SaltIsPartOfKey(t *testing.T) {
	assert.NotEqual(t,
		cacheKey(testFactory, testOwner, big.NewInt(0)),
		cacheKey(testFactory, testOwner, big.NewInt(1)),
	)
	assert.Equal(t,
		"smart_account:0x9406Cc6185a346906296840746125a0E44976454:0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf:0",
		cacheKey(testFactory, testOwner, big.NewInt(0)),
	)
}

func TestStartEvictionTimer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r, _ := newTestResolver(&fakeSource{addr: testAccount}, nil, clock)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := r.Resolve(ctx, testOwner)
	require.NoError(t, err)
	require.Equal(t, 1, r.mem.size())

	stop := r.StartEvictionTimer(time.Minute)
	defer stop()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(time.Hour + time.Minute)

	assert.Eventually(t, func() bool { return r.mem.size() == 0 }, 2*time.Second, 10*time.Millisecond)
}
