package payouts

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/devicehub/devicehub/internal/platform/httpx"
	"github.com/devicehub/devicehub/internal/repairs"
)

// ServicePort is the behaviour the HTTP layer needs.
type ServicePort interface {
	ListUnpaid(ctx context.Context) ([]Item, error)
	ListPaid(ctx context.Context) ([]Item, error)
	GroupUnpaid(ctx context.Context) ([]TechnicianGroup, error)
	Ledger(ctx context.Context) ([]LedgerEntry, error)
	TechnicianInvoice(ctx context.Context, email string) (TechnicianGroup, error)
	PayBatch(ctx context.Context, req PayRequest, idempotencyKey string) (PayResult, error)
	PurgePaid(ctx context.Context) (int64, error)
	PurgeLedger(ctx context.Context) (int64, error)
}

// Handler wires HTTP endpoints for technician payouts.
type Handler struct {
	logger  *slog.Logger
	service ServicePort
}

// NewHandler constructs the payouts handler.
func NewHandler(logger *slog.Logger, service ServicePort) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers payout routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/unpaid", h.listItems(h.service.ListUnpaid))
	r.Get("/paid", h.listItems(h.service.ListPaid))
	r.Delete("/paid", h.purge("purge paid", h.service.PurgePaid))
	r.Get("/by-technician", h.byTechnician)
	r.Get("/ledger", h.ledger)
	r.Delete("/ledger", h.purge("purge ledger", h.service.PurgeLedger))
	r.Get("/invoice/{email}", h.invoice)
	r.Put("/pay", h.pay)
}

func (h *Handler) listItems(fetch func(context.Context) ([]Item, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := fetch(r.Context())
		if err != nil {
			h.writeError(w, "list payouts", err)
			return
		}
		if items == nil {
			items = []Item{}
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
	}
}

func (h *Handler) byTechnician(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.GroupUnpaid(r.Context())
	if err != nil {
		h.writeError(w, "group payouts", err)
		return
	}
	if groups == nil {
		groups = []TechnicianGroup{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (h *Handler) ledger(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Ledger(r.Context())
	if err != nil {
		h.writeError(w, "payout ledger", err)
		return
	}
	if entries == nil {
		entries = []LedgerEntry{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) invoice(w http.ResponseWriter, r *http.Request) {
	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil {
		h.writeError(w, "parse email", httpx.ErrValidation)
		return
	}
	group, err := h.service.TechnicianInvoice(r.Context(), email)
	if err != nil {
		h.writeError(w, "technician invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, group)
}

func (h *Handler) pay(w http.ResponseWriter, r *http.Request) {
	var req PayRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "decode pay batch", err)
		return
	}
	result, err := h.service.PayBatch(r.Context(), req, r.Header.Get("Idempotency-Key"))
	if errors.Is(err, ErrPartialBatch) {
		status := http.StatusMultiStatus
		if len(result.Paid) == 0 {
			status = http.StatusConflict
		}
		h.logger.Warn("pay batch partially applied", slog.Int("paid", len(result.Paid)), slog.Int("failed", len(result.Failed)))
		httpx.JSON(w, status, result)
		return
	}
	if err != nil {
		h.writeError(w, "pay batch", err)
		return
	}
	h.logger.Info("pay batch applied", slog.String("batch_ref", result.BatchRef), slog.Int("paid", len(result.Paid)))
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) purge(op string, run func(context.Context) (int64, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		confirm, err := httpx.DecodeConfirmation(r)
		if err != nil {
			h.writeError(w, op, err)
			return
		}
		if !confirm {
			h.writeError(w, op, ErrConfirmation)
			return
		}
		n, err := run(r.Context())
		if err != nil {
			h.writeError(w, op, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"deleted": n})
	}
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrConfirmation), errors.Is(err, repairs.ErrInvalidTechnician):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		if !errors.Is(err, httpx.ErrValidation) {
			h.logger.Error(op, slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}
