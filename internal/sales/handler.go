package sales

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/devicehub/devicehub/internal/inventory"
	"github.com/devicehub/devicehub/internal/platform/httpx"
	"github.com/devicehub/devicehub/internal/profit"
	"github.com/devicehub/devicehub/internal/shared"
)

// ServicePort is the behaviour the HTTP layer needs.
type ServicePort interface {
	Create(ctx context.Context, req CreateSaleRequest) (Sale, error)
	Get(ctx context.Context, id int64) (Sale, error)
	List(ctx context.Context, filter ListFilter) ([]Sale, int, error)
	Return(ctx context.Context, id int64, req ReturnRequest) (Sale, error)
	Restock(ctx context.Context, id int64) (RestockResult, error)
	DeleteBatch(ctx context.Context, req DeleteBatchRequest) (DeleteResult, error)
	PurgeDelivered(ctx context.Context, req PurgeRequest) (int64, error)
	Invoice(ctx context.Context, id int64) (Invoice, error)
	Profit(ctx context.Context, id int64) (profit.View, error)
}

// Handler wires HTTP endpoints for sales.
type Handler struct {
	logger  *slog.Logger
	service ServicePort
}

// NewHandler constructs the sales handler.
func NewHandler(logger *slog.Logger, service ServicePort) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers sale routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list(""))
	r.Post("/", h.create)
	r.Delete("/", h.deleteBatch)
	r.Get("/history", h.list(StatusDelivered))
	r.Delete("/history", h.purgeHistory)
	r.Get("/returns", h.list(StatusReturned))
	r.Get("/{id}", h.get)
	r.Patch("/{id}/status", h.returnSale)
	r.Post("/{id}/restock", h.restock)
	r.Get("/{id}/invoice", h.invoice)
	r.Get("/{id}/profit", h.profit)
}

func (h *Handler) list(fixed Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := ListFilter{Status: fixed, Search: q.Get("q")}
		if raw := q.Get("status"); raw != "" && fixed == "" {
			status, err := ParseStatus(raw)
			if err != nil {
				h.writeError(w, "parse status", err)
				return
			}
			filter.Status = status
		}
		page, perPage := shared.PageFromQuery(q)
		filter.Limit = perPage
		filter.Offset = (page - 1) * perPage

		sales, total, err := h.service.List(r.Context(), filter)
		if err != nil {
			h.writeError(w, "list sales", err)
			return
		}
		if sales == nil {
			sales = []Sale{}
		}
		httpx.JSON(w, http.StatusOK, map[string]any{
			"sales":      sales,
			"pagination": shared.NewPagination(page, perPage, total),
		})
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "decode sale", err)
		return
	}
	sale, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, "create sale", err)
		return
	}
	h.logger.Info("sale created", slog.Int64("sale_id", sale.ID), slog.Int("items", len(sale.Items)))
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.writeError(w, "parse id", err)
		return
	}
	sale, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, "get sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

type statusPatch struct {
	Status   string `json:"status"`
	Platform string `json:"platform"`
	Reason   string `json:"reason"`
}

func (h *Handler) returnSale(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.writeError(w, "parse id", err)
		return
	}
	var patch statusPatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		h.writeError(w, "decode status", err)
		return
	}
	status, err := ParseStatus(patch.Status)
	if err != nil {
		h.writeError(w, "parse status", err)
		return
	}
	if status != StatusReturned {
		h.writeError(w, "return sale", ErrInvalidTransition)
		return
	}
	sale, err := h.service.Return(r.Context(), id, ReturnRequest{Platform: patch.Platform, Reason: patch.Reason})
	if err != nil {
		h.writeError(w, "return sale", err)
		return
	}
	h.logger.Info("sale returned", slog.Int64("sale_id", id), slog.String("platform", sale.ReturnPlatform))
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) restock(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.writeError(w, "parse id", err)
		return
	}
	result, err := h.service.Restock(r.Context(), id)
	if err != nil {
		h.writeError(w, "restock sale", err)
		return
	}
	h.logger.Info("sale restocked", slog.Int64("sale_id", id), slog.String("ref", result.Ref), slog.Int("devices", len(result.DeviceIDs)))
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) deleteBatch(w http.ResponseWriter, r *http.Request) {
	var req DeleteBatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "decode batch", err)
		return
	}
	result, err := h.service.DeleteBatch(r.Context(), req)
	if errors.Is(err, ErrPartialBatch) {
		httpx.JSON(w, http.StatusMultiStatus, result)
		return
	}
	if err != nil {
		h.writeError(w, "delete sales", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) purgeHistory(w http.ResponseWriter, r *http.Request) {
	var req PurgeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "decode purge", err)
		return
	}
	n, err := h.service.PurgeDelivered(r.Context(), req)
	if err != nil {
		h.writeError(w, "purge sales", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": n})
}

func (h *Handler) invoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.writeError(w, "parse id", err)
		return
	}
	inv, err := h.service.Invoice(r.Context(), id)
	if err != nil {
		h.writeError(w, "invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) profit(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.writeError(w, "parse id", err)
		return
	}
	view, err := h.service.Profit(r.Context(), id)
	if err != nil {
		h.writeError(w, "profit", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotReturned), errors.Is(err, inventory.ErrDuplicateIMEI):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfirmation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, profit.ErrInvalidInput):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable Entity", err.Error())
	default:
		if !errors.Is(err, httpx.ErrValidation) {
			h.logger.Error(op, slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}
