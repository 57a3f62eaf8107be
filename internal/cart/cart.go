// Package cart keeps per-customer carts in a Redis hash so an abandoned
// cart just expires.
package cart

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/modakita/go-fashion-storefront/internal/redisx"
)

var ErrInvalidQty = errors.New("quantity must be positive")

type Store struct {
	Redis *redis.Client
}

func key(customerID string) string {
	return fmt.Sprintf(redisx.KeyCart, customerID)
}

// Add merges quantities: adding the same product twice accumulates. A
// merge result at or below zero removes the line.
func (s *Store) Add(ctx context.Context, customerID, productID string, qty int) error {
	if qty == 0 {
		return ErrInvalidQty
	}
	k := key(customerID)
	n, err := s.Redis.HIncrBy(ctx, k, productID, int64(qty)).Result()
	if err != nil {
		return errors.Wrap(err, "cart add")
	}
	if n <= 0 {
		return s.Redis.HDel(ctx, k, productID).Err()
	}
	return s.Redis.Expire(ctx, k, redisx.TTLCart).Err()
}

func (s *Store) Remove(ctx context.Context, customerID, productID string) error {
	return s.Redis.HDel(ctx, key(customerID), productID).Err()
}

// Items returns product_id -> qty for the whole cart.
func (s *Store) Items(ctx context.Context, customerID string) (map[string]int, error) {
	raw, err := s.Redis.HGetAll(ctx, key(customerID)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "cart read")
	}
	out := make(map[string]int, len(raw))
	for pid, v := range raw {
		qty, err := strconv.Atoi(v)
		if err != nil || qty <= 0 {
			continue
		}
		out[pid] = qty
	}
	return out, nil
}

func (s *Store) Clear(ctx context.Context, customerID string) error {
	return s.Redis.Del(ctx, key(customerID)).Err()
}
