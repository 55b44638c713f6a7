package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/pscheid92/aarelay/internal/adapter/metrics"
	"github.com/pscheid92/aarelay/internal/domain"
)

const (
	layerMemory = "memory"
	layerShared = "redis"

	// lookupTimeout bounds a shared lookup once it no longer follows any single caller.
	lookupTimeout = 15 * time.Second
)

// AddressSource computes counterfactual addresses, usually via the account factory.
type AddressSource interface {
	SmartAccountAddress(ctx context.Context, owner common.Address, salt *big.Int) (common.Address, error)
}

// Config selects the factory and salt the addresses are derived for.
type Config struct {
	Factory common.Address
	Salt    *big.Int
	TTL     time.Duration
}

type Resolver struct {
	source  AddressSource
	shared  domain.AddressCache
	mem     *memoryCache
	factory common.Address
	salt    *big.Int
	clock   clockwork.Clock
	metrics *metrics.CacheMetrics
	group   singleflight.Group
}

// NewResolver builds a resolver. shared and m may be nil.
func NewResolver(source AddressSource, shared domain.AddressCache, cfg Config, clock clockwork.Clock, m *metrics.CacheMetrics) *Resolver {
	salt := cfg.Salt
	if salt == nil {
		salt = new(big.Int)
	}
	return &Resolver{
		source:  source,
		shared:  shared,
		mem:     newMemoryCache(cfg.TTL, clock),
		factory: cfg.Factory,
		salt:    new(big.Int).Set(salt),
		clock:   clock,
		metrics: m,
	}
}

// Resolve returns the smart-account address of owner.
func (r *Resolver) Resolve(ctx context.Context, owner common.Address) (common.Address, error) {
	key := r.cacheKey(owner)

	if addr, ok := r.mem.get(key); ok {
		r.hit(layerMemory)
		return addr, nil
	}
	r.miss(layerMemory)

	// Waiters share one lookup, so it runs detached from whichever caller started it.
	ch := r.group.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()

		if addr, ok := r.mem.get(key); ok {
			return addr, nil
		}
		if addr, ok := r.getShared(ctx, key); ok {
			r.mem.set(key, addr)
			return addr, nil
		}

		addr, err := r.source.SmartAccountAddress(ctx, owner, r.salt)
		if err != nil {
			return common.Address{}, fmt.Errorf("failed to resolve smart account of %s: %w", owner.Hex(), err)
		}
		if addr == (common.Address{}) {
			return common.Address{}, fmt.Errorf("factory returned zero address for %s", owner.Hex())
		}

		r.mem.set(key, addr)
		r.setShared(ctx, key, addr)
		return addr, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return common.Address{}, res.Err
		}
		return res.Val.(common.Address), nil
	case <-ctx.Done():
		return common.Address{}, fmt.Errorf("failed to resolve smart account of %s: %w", owner.Hex(), ctx.Err())
	}
}

// StartEvictionTimer periodically drops expired memory entries.
// Returns a stop function that should be deferred.
func (r *Resolver) StartEvictionTimer(interval time.Duration) func() {
	ticker := r.clock.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.Chan():
				if evicted := r.mem.evictExpired(); evicted > 0 {
					slog.Debug("Evicted expired smart account cache entries", "count", evicted, "remaining", r.mem.size())
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() {
		close(done)
	}
}

func (r *Resolver) getShared(ctx context.Context, key string) (common.Address, bool) {
	if r.shared == nil {
		return common.Address{}, false
	}

	addr, err := r.shared.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrAddressNotFound) {
			slog.Warn("Shared address cache GET failed", "key", key, "error", err)
		}
		r.miss(layerShared)
		return common.Address{}, false
	}
	r.hit(layerShared)
	return addr, true
}

func (r *Resolver) setShared(ctx context.Context, key string, addr common.Address) {
	if r.shared == nil {
		return
	}
	if err := r.shared.Set(ctx, key, addr); err != nil {
		slog.Warn("Failed to populate shared address cache", "key", key, "error", err)
	}
}

func (r *Resolver) cacheKey(owner common.Address) string {
	return cacheKey(r.factory, owner, r.salt)
}

func cacheKey(factory, owner common.Address, salt *big.Int) string {
	return "smart_account:" + factory.Hex() + ":" + owner.Hex() + ":" + salt.String()
}

func (r *Resolver) hit(layer string) {
	if r.metrics != nil {
		r.metrics.Hits.WithLabelValues(layer).Inc()
	}
}

func (r *Resolver) miss(layer string) {
	if r.metrics != nil {
		r.metrics.Misses.WithLabelValues(layer).Inc()
	}
}
