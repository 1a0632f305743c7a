package profit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CacheMetrics observes the profit view cache.
type CacheMetrics struct {
	hits   *prometheus.CounterVec
	misses *prometheus.CounterVec
	build  *prometheus.HistogramVec
}

// NewCacheMetrics registers the cache collectors on reg. Collectors already
// registered by an earlier call are reused.
func NewCacheMetrics(reg prometheus.Registerer) (*CacheMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &CacheMetrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devicehub_profit_cache_hits_total",
			Help: "Number of profit view cache hits.",
		}, []string{"view"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devicehub_profit_cache_miss_total",
			Help: "Number of profit view cache misses.",
		}, []string{"view"}),
		build: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "devicehub_profit_view_build_duration_seconds",
			Help:    "Duration required to build profit views.",
			Buckets: prometheus.DefBuckets,
		}, []string{"view"}),
	}
	var err error
	if m.hits, err = registerCounter(reg, m.hits); err != nil {
		return nil, err
	}
	if m.misses, err = registerCounter(reg, m.misses); err != nil {
		return nil, err
	}
	if err := reg.Register(m.build); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, fmt.Errorf("profit cache metrics: unexpected collector type %T", already.ExistingCollector)
		}
		m.build = existing
	}
	return m, nil
}

func registerCounter(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("profit cache metrics: unexpected collector type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return c, nil
}

func (m *CacheMetrics) hit(view string) {
	if m == nil {
		return
	}
	m.hits.WithLabelValues(view).Inc()
}

func (m *CacheMetrics) miss(view string) {
	if m == nil {
		return
	}
	m.misses.WithLabelValues(view).Inc()
}

func (m *CacheMetrics) observe(view string, d time.Duration) {
	if m == nil {
		return
	}
	m.build.WithLabelValues(view).Observe(d.Seconds())
}

// Cache stores rendered views in redis. Concurrent misses for the same key
// share one build.
type Cache struct {
	client  *redis.Client
	ttl     time.Duration
	metrics *CacheMetrics
	group   singleflight.Group
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration, metrics *CacheMetrics) *Cache {
	return &Cache{client: client, ttl: ttl, metrics: metrics}
}

// ViewKey is the key of the profit view of one sale. The fingerprint changes
// with every input, so stale views are never read back.
func ViewKey(saleID int64, fingerprint string) string {
	return salePrefix(saleID) + fingerprint
}

func salePrefix(saleID int64) string {
	return "profit:sale:" + strconv.FormatInt(saleID, 10) + ":"
}

// FetchJSON loads a cached value into dest or builds it with loader.
func (c *Cache) FetchJSON(ctx context.Context, view, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("profit cache: loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return roundTrip(value, dest)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		c.metrics.hit(view)
		return json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		return err
	}
	c.metrics.miss(view)

	ch := c.group.DoChan(key, func() (any, error) {
		start := time.Now()
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		c.metrics.observe(view, time.Since(start))
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return nil, err
		}
		return raw, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		return json.Unmarshal(res.Val.([]byte), dest)
	}
}

// Forget drops every cached view of the given sales.
func (c *Cache) Forget(ctx context.Context, saleIDs ...int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	for _, id := range saleIDs {
		iter := c.client.Scan(ctx, 0, salePrefix(id)+"*", 100).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return err
		}
		if len(keys) == 0 {
			continue
		}
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return err
		}
	}
	return nil
}

func roundTrip(value, dest any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
