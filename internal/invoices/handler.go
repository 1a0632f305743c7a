package invoices

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/devicehub/devicehub/internal/platform/httpx"
	"github.com/devicehub/devicehub/internal/shared"
)

// ServicePort is the behaviour the HTTP layer needs.
type ServicePort interface {
	NextNumber(ctx context.Context) (string, error)
	Create(ctx context.Context, req CreateRequest) (Invoice, error)
	Get(ctx context.Context, id int64) (Invoice, error)
	List(ctx context.Context, limit, offset int) ([]Invoice, int, error)
}

// Handler wires HTTP endpoints for invoices.
type Handler struct {
	logger  *slog.Logger
	service ServicePort
}

// NewHandler constructs the invoices handler.
func NewHandler(logger *slog.Logger, service ServicePort) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/next-number", h.nextNumber)
	r.Get("/{id}", h.get)
}

func (h *Handler) nextNumber(w http.ResponseWriter, r *http.Request) {
	number, err := h.service.NextNumber(r.Context())
	if err != nil {
		h.writeError(w, "next invoice number", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"invoice_number": number})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "decode invoice", err)
		return
	}
	inv, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, "create invoice", err)
		return
	}
	h.logger.Info("invoice issued", slog.String("number", inv.Number), slog.String("total", inv.Total.String()))
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.writeError(w, "parse id", err)
		return
	}
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, "get invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageFromQuery(r.URL.Query())
	invs, total, err := h.service.List(r.Context(), perPage, (page-1)*perPage)
	if err != nil {
		h.writeError(w, "list invoices", err)
		return
	}
	if invs == nil {
		invs = []Invoice{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"invoices":   invs,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidInput):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable Entity", err.Error())
	default:
		if !errors.Is(err, httpx.ErrValidation) {
			h.logger.Error(op, slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}
