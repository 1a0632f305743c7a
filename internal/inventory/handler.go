package inventory

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
	Create(ctx context.Context, input DeviceInput) (Device, error)
	Get(ctx context.Context, id int64) (Device, error)
	List(ctx context.Context, filter ListFilter) ([]Device, error)
	Update(ctx context.Context, id int64, input DeviceInput) (Device, error)
	UpdateStatus(ctx context.Context, id int64, update StatusUpdate) (Device, error)
	Delete(ctx context.Context, id int64, confirm bool) error
}

// Handler wires HTTP endpoints for stock devices.
type Handler struct {
	logger  *slog.Logger
	service ServicePort
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service ServicePort) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers device routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/statuses", h.statuses)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Patch("/{id}/status", h.updateStatus)
	r.Delete("/{id}", h.delete)
}

func (h *Handler) statuses(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"statuses": Statuses()})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{DeviceType: DeviceType(q.Get("type")), Search: q.Get("q")}
	if raw := q.Get("status"); raw != "" {
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

	devices, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, "list devices", err)
		return
	}
	if devices == nil {
		devices = []Device{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"devices": devices, "page": page, "per_page": perPage})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input DeviceInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.writeError(w, "decode device", err)
		return
	}
	dev, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.writeError(w, "create device", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, dev)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.writeError(w, "parse id", err)
		return
	}
	dev, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, "get device", err)
		return
	}
	httpx.JSON(w, http.StatusOK, dev)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.writeError(w, "parse id", err)
		return
	}
	var input DeviceInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.writeError(w, "decode device", err)
		return
	}
	dev, err := h.service.Update(r.Context(), id, input)
	if err != nil {
		h.writeError(w, "update device", err)
		return
	}
	httpx.JSON(w, http.StatusOK, dev)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.writeError(w, "parse id", err)
		return
	}
	var update StatusUpdate
	if err := httpx.DecodeJSON(r, &update); err != nil {
		h.writeError(w, "decode status", err)
		return
	}
	dev, err := h.service.UpdateStatus(r.Context(), id, update)
	if err != nil {
		h.writeError(w, "update status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, dev)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
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
		h.writeError(w, "delete device", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateIMEI):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrReasonMissing), errors.Is(err, ErrInvalidPrice),
		errors.Is(err, ErrConfirmation), errors.Is(err, ErrUnknownModel):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		if !errors.Is(err, httpx.ErrValidation) {
			h.logger.Error(op, slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}
