package customers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/devicehub/devicehub/internal/platform/httpx"
	"github.com/devicehub/devicehub/internal/shared"
)

type ServicePort interface {
	Create(ctx context.Context, req CreateCustomerRequest) (*Customer, error)
	Update(ctx context.Context, id int64, req UpdateCustomerRequest) (*Customer, error)
	Get(ctx context.Context, id int64) (*Customer, error)
	List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error)
	Delete(ctx context.Context, id int64, confirm bool) error
}

type Handler struct {
	logger  *slog.Logger
	service ServicePort
}

func NewHandler(logger *slog.Logger, service ServicePort) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var req ListCustomersRequest
	if raw := q.Get("is_active"); raw != "" {
		val, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "is_active must be a boolean")
			return
		}
		req.IsActive = &val
	}
	if search := q.Get("search"); search != "" {
		req.Search = &search
	}
	page, perPage := shared.PageFromQuery(q)
	req.Limit = perPage
	req.Offset = (page - 1) * perPage

	customers, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.writeError(w, "list customers", err)
		return
	}
	if customers == nil {
		customers = []Customer{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"customers":  customers,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.writeError(w, "parse id", err)
		return
	}
	customer, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, "get customer", err)
		return
	}
	httpx.JSON(w, http.StatusOK, customer)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "decode customer", err)
		return
	}
	customer, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, "create customer", err)
		return
	}
	h.logger.Info("customer created", slog.Int64("customer_id", customer.ID))
	httpx.JSON(w, http.StatusCreated, customer)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.writeError(w, "parse id", err)
		return
	}
	var req UpdateCustomerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "decode customer", err)
		return
	}
	customer, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		h.writeError(w, "update customer", err)
		return
	}
	httpx.JSON(w, http.StatusOK, customer)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.writeError(w, "parse id", err)
		return
	}
	confirm, err := httpx.DecodeConfirmation(r)
	if err != nil {
		h.writeError(w, "decode confirmation", err)
		return
	}
	if err := h.service.Delete(r.Context(), id, confirm); err != nil {
		h.writeError(w, "delete customer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyExists):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrInvalidRate), errors.Is(err, ErrConfirmation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		if !errors.Is(err, httpx.ErrValidation) {
			h.logger.Error(op, slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}
