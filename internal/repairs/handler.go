package repairs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/devicehub/devicehub/internal/platform/httpx"
)

// ServicePort is the behaviour the HTTP layer needs.
type ServicePort interface {
	ListCostTables(ctx context.Context, kind CostKind) ([]CostTable, error)
	GetCostTable(ctx context.Context, kind CostKind, model string) (CostTable, error)
	Lookup(ctx context.Context, model string) (CostTable, CostTable, error)
	UpsertCostTable(ctx context.Context, kind CostKind, req UpsertCostTableRequest) (CostTable, error)
	DeleteCostTable(ctx context.Context, kind CostKind, model string) error
	Confirm(ctx context.Context, req ConfirmRepairRequest) (Record, error)
	ListRepairs(ctx context.Context, filter ListFilter) ([]Record, error)
}

// Handler serves repair and cost table endpoints.
type Handler struct {
	logger  *slog.Logger
	service ServicePort
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service ServicePort) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes attaches routes under /repairs.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listRepairs)
	r.Post("/", h.confirm)
	r.Get("/components", h.components)
	r.Get("/lookup/{model}", h.lookup)
	r.Route("/costs/{kind}", func(r chi.Router) {
		r.Get("/", h.listCosts)
		r.Put("/", h.upsertCosts)
		r.Get("/{model}", h.getCosts)
		r.Delete("/{model}", h.deleteCosts)
	})
}

func (h *Handler) components(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"components": Components()})
}

func (h *Handler) listRepairs(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		TechnicianEmail: r.URL.Query().Get("technician"),
		Status:          PaymentStatus(r.URL.Query().Get("status")),
	}
	records, err := h.service.ListRepairs(r.Context(), filter)
	if err != nil {
		h.writeError(w, "list repairs", err)
		return
	}
	if records == nil {
		records = []Record{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"repairs": records})
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRepairRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "decode repair", err)
		return
	}
	rec, err := h.service.Confirm(r.Context(), req)
	if err != nil {
		h.writeError(w, "confirm repair", err)
		return
	}
	h.logger.Info("repair confirmed", slog.Int64("repair_id", rec.ID), slog.Int64("device_id", rec.DeviceID), slog.String("technician", rec.Technician.Email))
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) {
	model, _ := url.PathUnescape(chi.URLParam(r, "model"))
	material, technician, err := h.service.Lookup(r.Context(), model)
	if err != nil {
		h.writeError(w, "lookup costs", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"model":            material.Model,
		"material_cost":    material.Costs,
		"technician_cost":  technician.Costs,
		"components_total": material.Costs.Len(),
	})
}

func (h *Handler) listCosts(w http.ResponseWriter, r *http.Request) {
	kind, err := ParseCostKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.writeError(w, "parse kind", err)
		return
	}
	tables, err := h.service.ListCostTables(r.Context(), kind)
	if err != nil {
		h.writeError(w, "list cost tables", err)
		return
	}
	if tables == nil {
		tables = []CostTable{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func (h *Handler) getCosts(w http.ResponseWriter, r *http.Request) {
	kind, err := ParseCostKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.writeError(w, "parse kind", err)
		return
	}
	model, _ := url.PathUnescape(chi.URLParam(r, "model"))
	table, err := h.service.GetCostTable(r.Context(), kind, model)
	if err != nil {
		h.writeError(w, "get cost table", err)
		return
	}
	httpx.JSON(w, http.StatusOK, table)
}

func (h *Handler) upsertCosts(w http.ResponseWriter, r *http.Request) {
	kind, err := ParseCostKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.writeError(w, "parse kind", err)
		return
	}
	var req UpsertCostTableRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "decode cost table", err)
		return
	}
	table, err := h.service.UpsertCostTable(r.Context(), kind, req)
	if err != nil {
		h.writeError(w, "upsert cost table", err)
		return
	}
	httpx.JSON(w, http.StatusOK, table)
}

func (h *Handler) deleteCosts(w http.ResponseWriter, r *http.Request) {
	kind, err := ParseCostKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.writeError(w, "parse kind", err)
		return
	}
	model, _ := url.PathUnescape(chi.URLParam(r, "model"))
	if err := h.service.DeleteCostTable(r.Context(), kind, model); err != nil {
		h.writeError(w, "delete cost table", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyRepaired):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrUnknownComponent), errors.Is(err, ErrInvalidCost), errors.Is(err, ErrKeySetMismatch),
		errors.Is(err, ErrInvalidTechnician), errors.Is(err, ErrInvalidKind):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrMissingCost):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable Entity", err.Error())
	default:
		if !errors.Is(err, httpx.ErrValidation) {
			h.logger.Error(op, slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}
