// Package cache holds the exchange-rate cache used by the background rate
// updater: a redis-backed implementation for installs that run one, and a
// noop fallback so the rest of the system never checks for nil.
package cache

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RateCache stores the most recently fetched exchange rates keyed by
// currency code.
type RateCache interface {
	Get(ctx context.Context) (map[string]decimal.Decimal, bool, error)
	Set(ctx context.Context, rates map[string]decimal.Decimal, ttl time.Duration) error
}

type NoopRateCache struct{}

func (NoopRateCache) Get(context.Context) (map[string]decimal.Decimal, bool, error) {
	return nil, false, nil
}

func (NoopRateCache) Set(context.Context, map[string]decimal.Decimal, time.Duration) error {
	return nil
}
