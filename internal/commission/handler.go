package commission

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/devicehub/devicehub/internal/platform/httpx"
)

// ServicePort is the behaviour the HTTP layer needs.
type ServicePort interface {
	Current(ctx context.Context) (Setting, error)
	Update(ctx context.Context, req UpdateRequest) (Setting, error)
}

// Handler serves GET and PUT /commission.
type Handler struct {
	logger  *slog.Logger
	service ServicePort
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service ServicePort) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.get)
	r.Put("/", h.put)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	setting, err := h.service.Current(r.Context())
	if err != nil {
		h.logger.Error("load commission", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, setting)
}

func (h *Handler) put(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	setting, err := h.service.Update(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidRate) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		h.logger.Error("update commission", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("commission updated", slog.String("value", setting.Value.String()))
	httpx.JSON(w, http.StatusOK, setting)
}
