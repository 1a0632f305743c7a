package invoices

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(svc ServicePort) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	r.Route("/invoices", h.MountRoutes)
	return r
}

func TestInvoiceRoutes(t *testing.T) {
	router := newTestRouter(newTestService(newMemoryRepo()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/invoices/next-number", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"invoice_number":"INV-2025-00001"}`, rr.Body.String())

	body := `{"client_code":"C-1","client_name":"Refurb Outlet","client_address":"Main St 1","client_city":"Rotterdam",
		"client_country":"NL","shipping_cost":"10","items":[{"description":"Pixel 6","quantity":2,"unit_price":"50","vat":"21"}]}`
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/invoices/", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Contains(t, rr.Body.String(), `"invoice_number":"INV-2025-00001"`)
	require.Contains(t, rr.Body.String(), `"total":"131"`)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/invoices/",
		strings.NewReader(strings.Replace(body, `"unit_price":"50"`, `"unit_price":"-5"`, 1))))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/invoices/1", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/invoices/7", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}
