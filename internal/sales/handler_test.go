package sales

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/devicehub/devicehub/internal/profit"
)

type stubService struct {
	ServicePort
	listFn    func(ctx context.Context, filter ListFilter) ([]Sale, int, error)
	returnFn  func(ctx context.Context, id int64, req ReturnRequest) (Sale, error)
	restockFn func(ctx context.Context, id int64) (RestockResult, error)
	deleteFn  func(ctx context.Context, req DeleteBatchRequest) (DeleteResult, error)
	profitFn  func(ctx context.Context, id int64) (profit.View, error)
}

func (s *stubService) List(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	return s.listFn(ctx, filter)
}

func (s *stubService) Return(ctx context.Context, id int64, req ReturnRequest) (Sale, error) {
	return s.returnFn(ctx, id, req)
}

func (s *stubService) Restock(ctx context.Context, id int64) (RestockResult, error) {
	return s.restockFn(ctx, id)
}

func (s *stubService) DeleteBatch(ctx context.Context, req DeleteBatchRequest) (DeleteResult, error) {
	return s.deleteFn(ctx, req)
}

func (s *stubService) Profit(ctx context.Context, id int64) (profit.View, error) {
	return s.profitFn(ctx, id)
}

func newTestRouter(svc ServicePort) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	r.Route("/sales", h.MountRoutes)
	return r
}

func serve(svc ServicePort, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rr := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rr, httptest.NewRequest(method, target, reader))
	return rr
}

func TestListRoutesFixStatus(t *testing.T) {
	var seen []ListFilter
	svc := &stubService{listFn: func(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
		seen = append(seen, filter)
		return nil, 0, nil
	}}

	rr := serve(svc, http.MethodGet, "/sales/history?status=returned", "")
	require.Equal(t, http.StatusOK, rr.Code)
	rr = serve(svc, http.MethodGet, "/sales/returns?q=%20SHP", "")
	require.Equal(t, http.StatusOK, rr.Code)
	rr = serve(svc, http.MethodGet, "/sales/?status=returned", "")
	require.Equal(t, http.StatusOK, rr.Code)
	rr = serve(svc, http.MethodGet, "/sales/?status=lost", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	require.Len(t, seen, 3)
	require.Equal(t, StatusDelivered, seen[0].Status)
	require.Equal(t, StatusReturned, seen[1].Status)
	require.Equal(t, " SHP", seen[1].Search)
	require.Equal(t, StatusReturned, seen[2].Status)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
}

func TestReturnEndpoint(t *testing.T) {
	var captured ReturnRequest
	svc := &stubService{returnFn: func(ctx context.Context, id int64, req ReturnRequest) (Sale, error) {
		captured = req
		sale := Sale{ID: id}
		if _, err := (Delivered{}).Return(req.Platform, req.Reason, clock); err != nil {
			return Sale{}, err
		}
		sale.setState(Returned{Platform: req.Platform, Reason: req.Reason, At: clock})
		return sale, nil
	}}

	rr := serve(svc, http.MethodPatch, "/sales/4/status", `{"status":"returned","platform":"eBay","reason":"dead pixel"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, ReturnRequest{Platform: "eBay", Reason: "dead pixel"}, captured)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Equal(t, "returned", out["status"])
	require.Equal(t, "eBay", out["return_platform"])

	rr = serve(svc, http.MethodPatch, "/sales/4/status", `{"status":"returned","platform":"eBay"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(svc, http.MethodPatch, "/sales/4/status", `{"status":"delivered"}`)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = serve(svc, http.MethodPatch, "/sales/abc/status", `{"status":"returned"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRestockEndpointMapsErrors(t *testing.T) {
	svc := &stubService{restockFn: func(ctx context.Context, id int64) (RestockResult, error) {
		switch id {
		case 1:
			return RestockResult{Ref: "r-1", SaleID: 1, DeviceIDs: []int64{5, 6}}, nil
		case 2:
			return RestockResult{}, ErrNotReturned
		default:
			return RestockResult{}, ErrNotFound
		}
	}}

	rr := serve(svc, http.MethodPost, "/sales/1/restock", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var out RestockResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Equal(t, []int64{5, 6}, out.DeviceIDs)

	require.Equal(t, http.StatusConflict, serve(svc, http.MethodPost, "/sales/2/restock", "").Code)
	require.Equal(t, http.StatusNotFound, serve(svc, http.MethodPost, "/sales/3/restock", "").Code)
}

func TestDeleteBatchEndpoint(t *testing.T) {
	svc := &stubService{deleteFn: func(ctx context.Context, req DeleteBatchRequest) (DeleteResult, error) {
		if !req.Confirm {
			return DeleteResult{}, ErrConfirmation
		}
		return DeleteResult{Deleted: []int64{1}, Failed: []BatchFailure{{ID: 2, Reason: "not found"}}}, ErrPartialBatch
	}}

	rr := serve(svc, http.MethodDelete, "/sales/", `{"ids":[1,2]}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(svc, http.MethodDelete, "/sales/", `{"ids":[1,2],"confirm":true}`)
	require.Equal(t, http.StatusMultiStatus, rr.Code)
	var out DeleteResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Equal(t, []int64{1}, out.Deleted)
	require.Equal(t, "not found", out.Failed[0].Reason)
}

func TestProfitEndpointInvalidInput(t *testing.T) {
	svc := &stubService{profitFn: func(ctx context.Context, id int64) (profit.View, error) {
		return profit.View{}, profit.ErrInvalidInput
	}}
	rr := serve(svc, http.MethodGet, "/sales/8/profit", "")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}
