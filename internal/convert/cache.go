/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package convert

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Cached wraps a Provider with a Redis rate cache. Rates expire after the
// configured TTL; any cache failure falls through to the underlying
// provider, so the cache can only ever serve a recent rate faster, never
// block a conversion.
type Cached struct {
	provider Provider
	client   *redis.Client
	ttl      time.Duration
	prefix   string
}

func NewCached(provider Provider, client *redis.Client, ttl time.Duration) *Cached {
	return &Cached{
		provider: provider,
		client:   client,
		ttl:      ttl,
		prefix:   "rate:",
	}
}

func (c *Cached) IsSupported(symbol string) bool {
	return c.provider.IsSupported(symbol)
}

func (c *Cached) Convert(ctx context.Context, amount decimal.Decimal, fromSymbol, toSymbol string) (Result, error) {
	key := c.rateKey(fromSymbol, toSymbol)

	cached, err := c.client.Get(ctx, key).Result()
	if err == nil {
		rate, parseErr := decimal.NewFromString(cached)
		if parseErr == nil {
			return Result{Value: amount.Mul(rate), Rate: rate}, nil
		}
		zap.L().Warn("Discarding unparseable cached rate",
			zap.String("key", key), zap.String("value", cached))
	} else if !errors.Is(err, redis.Nil) {
		zap.L().Warn("Rate cache read failed, falling through to provider",
			zap.String("key", key), zap.Error(err))
	}

	result, err := c.provider.Convert(ctx, amount, fromSymbol, toSymbol)
	if err != nil {
		return Result{}, err
	}

	if err := c.client.Set(ctx, key, result.Rate.String(), c.ttl).Err(); err != nil {
		zap.L().Warn("Rate cache write failed",
			zap.String("key", key), zap.Error(err))
	}
	return result, nil
}

func (c *Cached) rateKey(fromSymbol, toSymbol string) string {
	return c.prefix + fromSymbol + ":" + toSymbol
}
