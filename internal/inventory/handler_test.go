package inventory

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type stubService struct {
	ServicePort
	listFn   func(ctx context.Context, filter ListFilter) ([]Device, error)
	deleteFn func(ctx context.Context, id int64, confirm bool) error
	statusFn func(ctx context.Context, id int64, update StatusUpdate) (Device, error)
}

func (s *stubService) List(ctx context.Context, filter ListFilter) ([]Device, error) {
	return s.listFn(ctx, filter)
}

func (s *stubService) Delete(ctx context.Context, id int64, confirm bool) error {
	return s.deleteFn(ctx, id, confirm)
}

func (s *stubService) UpdateStatus(ctx context.Context, id int64, update StatusUpdate) (Device, error) {
	return s.statusFn(ctx, id, update)
}

func newTestRouter(svc ServicePort) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	r.Route("/devices", h.MountRoutes)
	return r
}

func TestListParsesFilters(t *testing.T) {
	var got ListFilter
	svc := &stubService{listFn: func(ctx context.Context, filter ListFilter) ([]Device, error) {
		got = filter
		return nil, nil
	}}
	req := httptest.NewRequest(http.MethodGet, "/devices/?status=ready+for+sale&type=Mobile&q=iphone&page=3&per_page=10", nil)
	rr := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, StatusReadyForSale, got.Status)
	require.Equal(t, DeviceMobile, got.DeviceType)
	require.Equal(t, "iphone", got.Search)
	require.Equal(t, 10, got.Limit)
	require.Equal(t, 20, got.Offset)
	require.JSONEq(t, `{"devices":[],"page":3,"per_page":10}`, rr.Body.String())
}

func TestDeletePassesConfirmation(t *testing.T) {
	var confirmed bool
	svc := &stubService{deleteFn: func(ctx context.Context, id int64, confirm bool) error {
		require.EqualValues(t, 12, id)
		confirmed = confirm
		if !confirm {
			return ErrConfirmation
		}
		return nil
	}}

	rr := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/devices/12", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/devices/12", strings.NewReader(`{"confirm":true}`)))
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.True(t, confirmed)

	rr = httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/devices/abc", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpdateStatusMapsErrors(t *testing.T) {
	svc := &stubService{statusFn: func(ctx context.Context, id int64, update StatusUpdate) (Device, error) {
		return Device{}, ErrNotFound
	}}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/devices/5/status", strings.NewReader(`{"status":"Reserved"}`))
	newTestRouter(svc).ServeHTTP(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}
