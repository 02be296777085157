package rollup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/civicpulse/fundraise-monitor/internal/domain"
	"github.com/civicpulse/fundraise-monitor/internal/pkg/logger"
)

// CachedGateway wraps a gateway with a short-TTL redis cache. The cache
// is strictly best-effort: a miss, a marshal failure, or a down redis
// all fall through to the inner gateway and never fail the request.
type CachedGateway struct {
	inner interface {
		Gateway
		FilteredGateway
	}
	rdb *redis.Client
	ttl time.Duration
}

// NewCachedGateway wraps inner with a redis response cache.
func NewCachedGateway(inner interface {
	Gateway
	FilteredGateway
}, rdb *redis.Client, ttl time.Duration) *CachedGateway {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &CachedGateway{inner: inner, rdb: rdb, ttl: ttl}
}

func cacheKey(kind string, q Query, f Filter) string {
	return fmt.Sprintf("rollup:%s:%s:%s:%s:%s:%s:%s",
		kind, q.OrganizationID, q.StartDate, q.EndDate, q.Timezone, f.CampaignID, f.CreativeID)
}

// getCached loads and unmarshals a cached value into dest, returning
// false on any miss or error.
func (c *CachedGateway) getCached(ctx context.Context, key string, dest interface{}) bool {
	if c.rdb == nil {
		return false
	}
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		logger.Warn("rollup cache entry corrupt, refetching", "key", key)
		return false
	}
	return true
}

func (c *CachedGateway) putCached(ctx context.Context, key string, v interface{}) {
	if c.rdb == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logger.Warn("rollup cache write failed", "key", key, "error", err.Error())
	}
}

func (c *CachedGateway) FetchDailyRollup(ctx context.Context, q Query) ([]domain.DailyRollupRow, error) {
	key := cacheKey("daily", q, Filter{})

	var cached []domain.DailyRollupRow
	if c.getCached(ctx, key, &cached) {
		return cached, nil
	}

	rows, err := c.inner.FetchDailyRollup(ctx, q)
	if err != nil {
		return nil, err
	}
	c.putCached(ctx, key, rows)
	return rows, nil
}

func (c *CachedGateway) FetchPeriodSummary(ctx context.Context, q Query) (*domain.PeriodSummary, error) {
	key := cacheKey("period", q, Filter{})

	var cached domain.PeriodSummary
	if c.getCached(ctx, key, &cached) {
		return &cached, nil
	}

	summary, err := c.inner.FetchPeriodSummary(ctx, q)
	if err != nil {
		return nil, err
	}
	c.putCached(ctx, key, summary)
	return summary, nil
}

func (c *CachedGateway) FetchDailyRollupFiltered(ctx context.Context, q Query, f Filter) ([]domain.DailyRollupRow, error) {
	key := cacheKey("daily", q, f)

	var cached []domain.DailyRollupRow
	if c.getCached(ctx, key, &cached) {
		return cached, nil
	}

	rows, err := c.inner.FetchDailyRollupFiltered(ctx, q, f)
	if err != nil {
		return nil, err
	}
	c.putCached(ctx, key, rows)
	return rows, nil
}

func (c *CachedGateway) FetchPeriodSummaryFiltered(ctx context.Context, q Query, f Filter) (*domain.PeriodSummary, error) {
	key := cacheKey("period", q, f)

	var cached domain.PeriodSummary
	if c.getCached(ctx, key, &cached) {
		return &cached, nil
	}

	summary, err := c.inner.FetchPeriodSummaryFiltered(ctx, q, f)
	if err != nil {
		return nil, err
	}
	c.putCached(ctx, key, summary)
	return summary, nil
}
