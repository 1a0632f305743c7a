package catalog

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/devicehub/devicehub/internal/inventory"
	"github.com/devicehub/devicehub/internal/platform/httpx"
)

// ServicePort is the behaviour the HTTP layer needs.
type ServicePort interface {
	List(ctx context.Context, search string) ([]TypeGroup, error)
	Create(ctx context.Context, req CreateRequest) (Entry, error)
	DeleteModel(ctx context.Context, e Entry) error
}

// Handler wires HTTP endpoints for the model catalog.
type Handler struct {
	logger  *slog.Logger
	service ServicePort
}

// NewHandler constructs the catalog handler.
func NewHandler(logger *slog.Logger, service ServicePort) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Delete("/{type}/{brand}/{model}", h.deleteModel)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.List(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeError(w, "list catalog", err)
		return
	}
	if groups == nil {
		groups = []TypeGroup{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"types": groups})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "decode model", err)
		return
	}
	entry, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, "register model", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) deleteModel(w http.ResponseWriter, r *http.Request) {
	var parts [3]string
	for i, name := range []string{"type", "brand", "model"} {
		v, err := url.PathUnescape(chi.URLParam(r, name))
		if err != nil {
			h.writeError(w, "parse model path", httpx.ErrValidation)
			return
		}
		parts[i] = v
	}
	entry := Entry{DeviceType: inventory.DeviceType(parts[0]), Brand: parts[1], Model: parts[2]}
	if err := h.service.DeleteModel(r.Context(), entry); err != nil {
		h.writeError(w, "delete model", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrBlank):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		if !errors.Is(err, httpx.ErrValidation) {
			h.logger.Error(op, slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}
