package dashboard

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	calls    atomic.Int32
	salesFor map[string]SalesTotals
	costFor  map[string]decimal.Decimal
	stockErr error
}

func (r *stubRepo) Stock(ctx context.Context) (Stock, error) {
	r.calls.Add(1)
	if r.stockErr != nil {
		return Stock{}, r.stockErr
	}
	return Stock{Devices: 3, ByType: map[string]int64{"Mobile": 2, "Laptop": 1}, Value: decimal.NewFromInt(540)}, nil
}

func (r *stubRepo) Sales(ctx context.Context, from, to time.Time) (SalesTotals, error) {
	return r.salesFor[from.Format(time.DateOnly)+"/"+to.Format(time.DateOnly)], nil
}

func (r *stubRepo) TechnicianCost(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	return r.costFor[from.Format(time.DateOnly)+"/"+to.Format(time.DateOnly)], nil
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		salesFor: map[string]SalesTotals{
			"2025-06-01/2025-07-01": {Count: 2, Devices: 3, Amount: decimal.NewFromInt(900)},
			"2025-01-01/2026-01-01": {Count: 10, Devices: 14, Amount: decimal.NewFromInt(5200)},
		},
		costFor: map[string]decimal.Decimal{
			"2025-06-01/2025-07-01": decimal.NewFromInt(75),
			"2025-01-01/2026-01-01": decimal.RequireFromString("610.50"),
		},
	}
}

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestSummaryBuildsMonthAndYear(t *testing.T) {
	svc := NewService(newStubRepo(), nil, time.UTC)
	summary, err := svc.Summary(context.Background(), time.Date(2025, 6, 18, 22, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, "2025-06-18", summary.AsOf)
	assert.Equal(t, int64(3), summary.Stock.Devices)
	assert.Equal(t, "2025-06-01", summary.Monthly.From)
	assert.Equal(t, "2025-06-30", summary.Monthly.To)
	assert.Equal(t, "825", summary.Monthly.Net.String())
	assert.Equal(t, "2025-12-31", summary.Yearly.To)
	assert.Equal(t, "4589.5", summary.Yearly.Net.String())
	assert.Equal(t, int64(14), summary.Yearly.Sales.Devices)
}

func TestSummaryIsCachedUntilBump(t *testing.T) {
	client, mr := newRedis(t)
	repo := newStubRepo()
	svc := NewService(repo, NewCache(client, time.Hour), time.UTC)
	svc.now = func() time.Time { return time.Date(2025, 6, 18, 9, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	require.NoError(t, svc.Warm(ctx))
	require.True(t, mr.Exists("dashboard:summary:2025-06-18:1"))
	_, err := svc.Summary(ctx, time.Time{})
	require.NoError(t, err)
	require.Equal(t, int32(1), repo.calls.Load())

	require.NoError(t, svc.Invalidate(ctx))
	_, err = svc.Summary(ctx, time.Time{})
	require.NoError(t, err)
	require.Equal(t, int32(2), repo.calls.Load())
	require.True(t, mr.Exists("dashboard:summary:2025-06-18:2"))
}

func TestSummaryPropagatesErrors(t *testing.T) {
	client, mr := newRedis(t)
	repo := newStubRepo()
	repo.stockErr = errors.New("boom")
	svc := NewService(repo, NewCache(client, time.Hour), time.UTC)

	_, err := svc.Summary(context.Background(), time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC))
	require.ErrorContains(t, err, "stock: boom")
	require.False(t, mr.Exists("dashboard:summary:2025-06-18:1"))
}
