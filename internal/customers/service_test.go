package customers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	customers map[int64]Customer
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{customers: make(map[int64]Customer)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (*Customer, error) {
	c, ok := r.customers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (r *memoryRepo) List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	var out []Customer
	for _, c := range r.customers {
		out = append(out, c)
	}
	return out, len(out), nil
}

func (r *memoryRepo) Create(ctx context.Context, customer Customer) (int64, error) {
	for _, c := range r.customers {
		if c.Email != nil && customer.Email != nil && *c.Email == *customer.Email {
			return 0, ErrAlreadyExists
		}
	}
	r.nextID++
	customer.ID = r.nextID
	r.customers[customer.ID] = customer
	return customer.ID, nil
}

func (r *memoryRepo) Update(ctx context.Context, id int64, updates map[string]any) error {
	c, ok := r.customers[id]
	if !ok {
		return ErrNotFound
	}
	if v, ok := updates["name"]; ok {
		c.Name = v.(string)
	}
	if v, ok := updates["commission_rate"]; ok {
		c.CommissionRate = v.(decimal.NullDecimal)
	}
	if v, ok := updates["is_active"]; ok {
		c.IsActive = v.(bool)
	}
	r.customers[id] = c
	return nil
}

func (r *memoryRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.customers[id]; !ok {
		return ErrNotFound
	}
	delete(r.customers, id)
	return nil
}

func strPtr(s string) *string { return &s }

func TestCreateCustomerNormalizesEmail(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	c, err := svc.Create(context.Background(), CreateCustomerRequest{
		Name:           " Refurb Outlet ",
		Email:          strPtr(" Sales@Outlet.Example "),
		CommissionRate: decimal.NewNullDecimal(decimal.NewFromInt(12)),
	})
	require.NoError(t, err)
	assert.Equal(t, "Refurb Outlet", c.Name)
	assert.Equal(t, "sales@outlet.example", *c.Email)
	assert.True(t, c.IsActive)

	_, err = svc.Create(context.Background(), CreateCustomerRequest{Name: "Dup", Email: strPtr("sales@outlet.example")})
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestCreateCustomerRejectsBadRate(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	_, err := svc.Create(context.Background(), CreateCustomerRequest{
		Name:           "Broker",
		CommissionRate: decimal.NewNullDecimal(decimal.NewFromInt(101)),
	})
	require.ErrorIs(t, err, ErrInvalidRate)

	_, err = svc.Create(context.Background(), CreateCustomerRequest{Name: "Broker", Email: strPtr("not-an-email")})
	require.Error(t, err)
}

func TestUpdateCustomerRate(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	c, err := svc.Create(context.Background(), CreateCustomerRequest{Name: "Broker"})
	require.NoError(t, err)
	fallback := decimal.NewFromInt(5)
	assert.True(t, fallback.Equal(c.EffectiveCommission(fallback)))

	rate := decimal.RequireFromString("7.5")
	updated, err := svc.Update(context.Background(), c.ID, UpdateCustomerRequest{CommissionRate: &rate})
	require.NoError(t, err)
	assert.True(t, rate.Equal(updated.EffectiveCommission(fallback)))

	updated, err = svc.Update(context.Background(), c.ID, UpdateCustomerRequest{ClearRate: true})
	require.NoError(t, err)
	assert.False(t, updated.CommissionRate.Valid)

	_, err = svc.Update(context.Background(), 99, UpdateCustomerRequest{Name: strPtr("x")})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteCustomerEndpoint(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	c, err := svc.Create(context.Background(), CreateCustomerRequest{Name: "Broker"})
	require.NoError(t, err)

	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	router := chi.NewRouter()
	router.Route("/customers", h.MountRoutes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/customers/1", strings.NewReader(`{"confirm":false}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, repo.customers, c.ID)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/customers/1", strings.NewReader(`{"confirm":true}`)))
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/customers/1", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}
