package profit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *CacheMetrics, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	metrics, err := NewCacheMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return NewCache(client, time.Minute, metrics), metrics, mr
}

func TestSaleViewIsCachedUntilInputsChange(t *testing.T) {
	cache, metrics, mr := newTestCache(t)
	ctx := context.Background()
	in := baseInput()

	first, err := cache.SaleView(ctx, 42, in)
	require.NoError(t, err)
	require.Equal(t, "150", first.Summary.NetProfit.String())
	require.True(t, mr.Exists("profit:sale:42:"+in.Fingerprint()))

	second, err := cache.SaleView(ctx, 42, in)
	require.NoError(t, err)
	require.Equal(t, first.Fingerprint, second.Fingerprint)
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.hits.WithLabelValues("sale")))
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.misses.WithLabelValues("sale")))

	in.ShippingCost = d("30")
	changed, err := cache.SaleView(ctx, 42, in)
	require.NoError(t, err)
	require.Equal(t, "140", changed.Summary.NetProfit.String())
	require.NotEqual(t, first.Fingerprint, changed.Fingerprint)
}

func TestForgetDropsViewsOfOneSale(t *testing.T) {
	cache, _, mr := newTestCache(t)
	ctx := context.Background()
	in := baseInput()

	_, err := cache.SaleView(ctx, 4, in)
	require.NoError(t, err)
	_, err = cache.SaleView(ctx, 42, in)
	require.NoError(t, err)

	require.NoError(t, cache.Forget(ctx, 4, 404))
	require.False(t, mr.Exists(ViewKey(4, in.Fingerprint())))
	require.True(t, mr.Exists(ViewKey(42, in.Fingerprint())))

	var nilCache *Cache
	require.NoError(t, nilCache.Forget(ctx, 1))
}

func TestFetchJSONDoesNotCacheErrors(t *testing.T) {
	cache, _, mr := newTestCache(t)
	ctx := context.Background()
	boom := errors.New("boom")

	var out map[string]int
	err := cache.FetchJSON(ctx, "sale", "k", &out, func(context.Context) (any, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	require.False(t, mr.Exists("k"))

	err = cache.FetchJSON(ctx, "sale", "k", &out, func(context.Context) (any, error) { return map[string]int{"n": 1}, nil })
	require.NoError(t, err)
	require.Equal(t, 1, out["n"])
}

func TestNilCacheComputesDirectly(t *testing.T) {
	var cache *Cache
	view, err := cache.SaleView(context.Background(), 1, baseInput())
	require.NoError(t, err)
	require.Equal(t, "120", view.Summary.TotalCost.String())

	bad := baseInput()
	bad.CommissionRate = d("101")
	_, err = cache.SaleView(context.Background(), 1, bad)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestCacheMetricsReuseRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCacheMetrics(reg)
	require.NoError(t, err)
	second, err := NewCacheMetrics(reg)
	require.NoError(t, err)
	require.Same(t, first.hits, second.hits)
}
