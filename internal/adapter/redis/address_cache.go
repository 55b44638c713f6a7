package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/aarelay/internal/domain"
)

var _ domain.AddressCache = (*AddressCache)(nil)

// AddressCache stores resolved smart-account addresses as hex strings.
// Counterfactual addresses never change for a given (factory, owner, salt),
// so the TTL only bounds memory use.
type AddressCache struct {
	rdb goredis.Cmdable
	ttl time.Duration
}

func NewAddressCache(rdb goredis.Cmdable, ttl time.Duration) *AddressCache {
	return &AddressCache{rdb: rdb, ttl: ttl}
}

func (c *AddressCache) Get(ctx context.Context, key string) (common.Address, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return common.Address{}, domain.ErrAddressNotFound
	}
	if err != nil {
		return common.Address{}, fmt.Errorf("redis address cache GET failed: %w", err)
	}

	if !common.IsHexAddress(val) {
		return common.Address{}, fmt.Errorf("corrupt cached address under %q", key)
	}
	return common.HexToAddress(val), nil
}

func (c *AddressCache) Set(ctx context.Context, key string, addr common.Address) error {
	if err := c.rdb.Set(ctx, key, addr.Hex(), c.ttl).Err(); err != nil {
		return fmt.Errorf("redis address cache SET failed: %w", err)
	}
	return nil
}
