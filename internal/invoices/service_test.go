package invoices

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/devicehub/devicehub/internal/platform/httpx"
)

type memoryRepo struct {
	counters map[int]int
	invoices []Invoice
	failNext bool
}

type memoryTx struct {
	repo     *memoryRepo
	counters map[int]int
	pending  []Invoice
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{counters: make(map[int]int)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{repo: r, counters: make(map[int]int)}
	for y, n := range r.counters {
		tx.counters[y] = n
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.counters = tx.counters
	r.invoices = append(r.invoices, tx.pending...)
	return nil
}

func (r *memoryRepo) PeekSequence(ctx context.Context, year int) (int, error) {
	return r.counters[year] + 1, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Invoice, error) {
	for _, inv := range r.invoices {
		if inv.ID == id {
			return inv, nil
		}
	}
	return Invoice{}, fmt.Errorf("invoice %d: %w", id, ErrNotFound)
}

func (r *memoryRepo) List(ctx context.Context, limit, offset int) ([]Invoice, int, error) {
	return r.invoices, len(r.invoices), nil
}

func (tx *memoryTx) NextSequence(ctx context.Context, year int) (int, error) {
	tx.counters[year]++
	return tx.counters[year], nil
}

func (tx *memoryTx) Insert(ctx context.Context, inv Invoice) (int64, error) {
	if tx.repo.failNext {
		tx.repo.failNext = false
		return 0, errors.New("insert failed")
	}
	inv.ID = int64(len(tx.repo.invoices) + len(tx.pending) + 1)
	tx.pending = append(tx.pending, inv)
	return inv.ID, nil
}

type plainMoney struct{}

func (plainMoney) Format(d decimal.Decimal) string { return "EUR " + d.StringFixed(2) }

func validRequest() CreateRequest {
	return CreateRequest{
		ClientCode:    "C-1",
		ClientName:    "Refurb Outlet",
		ClientAddress: "Main St 1",
		ClientCity:    "Rotterdam",
		ClientCountry: "NL",
		ShippingCost:  dec("10"),
		Items:         []ItemInput{{Description: "Pixel 6", Quantity: 1, UnitPrice: dec("100"), VAT: dec("21")}},
	}
}

func newTestService(repo *memoryRepo) *Service {
	svc := NewService(repo, nil, plainMoney{}, time.UTC)
	svc.now = func() time.Time { return time.Date(2025, 6, 3, 15, 0, 0, 0, time.UTC) }
	return svc
}

func TestCreateNumbersInvoicesPerYear(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	next, err := svc.NextNumber(ctx)
	require.NoError(t, err)
	require.Equal(t, "INV-2025-00001", next)

	first, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)
	require.Equal(t, "INV-2025-00001", first.Number)
	require.Equal(t, "2025-06-03", first.Date.Format(time.DateOnly))
	require.Equal(t, "EUR 131.00", first.Formatted["total"])

	req := validRequest()
	req.Date = "2024-12-30"
	older, err := svc.Create(ctx, req)
	require.NoError(t, err)
	require.Equal(t, "INV-2024-00001", older.Number)

	second, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)
	require.Equal(t, "INV-2025-00002", second.Number)

	got, err := svc.Get(ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, second.Number, got.Number)
}

func TestCreateFailureDoesNotConsumeNumber(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	repo.failNext = true
	_, err := svc.Create(ctx, validRequest())
	require.Error(t, err)

	inv, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)
	require.Equal(t, "INV-2025-00001", inv.Number)
}

func TestCreateValidatesRequest(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	ctx := context.Background()

	req := validRequest()
	req.ClientName = ""
	_, err := svc.Create(ctx, req)
	require.ErrorIs(t, err, httpx.ErrValidation)

	req = validRequest()
	req.Items = nil
	_, err = svc.Create(ctx, req)
	require.ErrorIs(t, err, httpx.ErrValidation)

	req = validRequest()
	req.Items[0].Quantity = 0
	_, err = svc.Create(ctx, req)
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Get(ctx, 9)
	require.ErrorIs(t, err, ErrNotFound)
}
