package payouts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/devicehub/devicehub/internal/repairs"
	"github.com/devicehub/devicehub/internal/shared"
)

const idempotencyModule = "payouts.pay"

// IdempotencyPort guards pay batches against resubmission.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Options tunes retention windows.
type Options struct {
	PaidRetention time.Duration
	LedgerWindow  time.Duration
	Location      *time.Location
}

// Service coordinates payout operations.
type Service struct {
	repo        RepositoryPort
	idempotency IdempotencyPort
	audit       AuditPort
	opts        Options
	now         func() time.Time
}

// NewService builds Service. Zero windows default to 14 and 90 days.
func NewService(repo RepositoryPort, idempotency IdempotencyPort, audit AuditPort, opts Options) *Service {
	if opts.PaidRetention <= 0 {
		opts.PaidRetention = 14 * 24 * time.Hour
	}
	if opts.LedgerWindow <= 0 {
		opts.LedgerWindow = 90 * 24 * time.Hour
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Service{
		repo:        repo,
		idempotency: idempotency,
		audit:       audit,
		opts:        opts,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ListUnpaid returns every repair still owed to a technician.
func (s *Service) ListUnpaid(ctx context.Context) ([]Item, error) {
	return s.repo.ListItems(ctx, ItemFilter{Status: repairs.PaymentUnpaid})
}

// ListPaid returns repairs paid within the retention window.
func (s *Service) ListPaid(ctx context.Context) ([]Item, error) {
	return s.repo.ListItems(ctx, ItemFilter{Status: repairs.PaymentPaid, PaidSince: s.now().Add(-s.opts.PaidRetention)})
}

// GroupUnpaid groups unpaid repairs by technician.
func (s *Service) GroupUnpaid(ctx context.Context) ([]TechnicianGroup, error) {
	items, err := s.ListUnpaid(ctx)
	if err != nil {
		return nil, err
	}
	return GroupByTechnician(items), nil
}

// Ledger returns payments of the trailing window grouped by technician and
// payment day.
func (s *Service) Ledger(ctx context.Context) ([]LedgerEntry, error) {
	lines, err := s.repo.ListLedger(ctx, s.now().Add(-s.opts.LedgerWindow))
	if err != nil {
		return nil, err
	}
	return BuildLedger(lines, s.opts.Location), nil
}

// TechnicianInvoice sums what one technician is currently owed.
func (s *Service) TechnicianInvoice(ctx context.Context, email string) (TechnicianGroup, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return TechnicianGroup{}, fmt.Errorf("%w: technician email required", repairs.ErrInvalidTechnician)
	}
	items, err := s.repo.ListItems(ctx, ItemFilter{Status: repairs.PaymentUnpaid, TechnicianEmail: email})
	if err != nil {
		return TechnicianGroup{}, err
	}
	groups := GroupByTechnician(items)
	if len(groups) == 0 {
		return TechnicianGroup{}, fmt.Errorf("unpaid repairs of %s: %w", email, ErrNotFound)
	}
	return groups[0], nil
}

// PayBatch marks the repairs of the requested devices as paid with one shared
// payment time and batch reference. Ids without a repair or already paid are
// reported in Failed and never re-stamped. A non-strict batch pays the rest
// and returns ErrPartialBatch alongside the result; a strict batch pays
// nothing when any id fails.
func (s *Service) PayBatch(ctx context.Context, req PayRequest, idempotencyKey string) (PayResult, error) {
	if err := shared.Validate(req); err != nil {
		return PayResult{}, err
	}
	ids := uniqueIDs(req.DeviceIDs)

	guarded := false
	if idempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, idempotencyKey, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return PayResult{}, ErrDuplicate
			}
			return PayResult{}, fmt.Errorf("idempotency: %w", err)
		}
		guarded = true
	}

	paidAt := s.now()
	result := PayResult{BatchRef: uuid.NewString(), Paid: []int64{}, Failed: []Failure{}, Total: decimal.Zero}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		found, err := tx.LockItems(ctx, ids)
		if err != nil {
			return err
		}
		var payable []Item
		for _, id := range ids {
			item, ok := found[id]
			switch {
			case !ok:
				result.Failed = append(result.Failed, Failure{DeviceID: id, Reason: ReasonNotFound})
			case item.PaymentStatus == repairs.PaymentPaid:
				result.Failed = append(result.Failed, Failure{DeviceID: id, Reason: ReasonAlreadyPaid})
			default:
				payable = append(payable, item)
			}
		}
		if len(payable) == 0 || (req.Strict && len(result.Failed) > 0) {
			return nil
		}
		payIDs := make([]int64, len(payable))
		lines := make([]LedgerLine, len(payable))
		for i, item := range payable {
			payIDs[i] = item.DeviceID
			lines[i] = LedgerLine{
				BatchRef:   result.BatchRef,
				RepairID:   item.RepairID,
				DeviceID:   item.DeviceID,
				IMEI:       item.IMEI,
				Model:      item.Model,
				Technician: item.Technician.Normalize(),
				Amount:     item.TechnicianCost,
				PaidAt:     paidAt,
			}
		}
		n, err := tx.MarkPaid(ctx, payIDs, paidAt, result.BatchRef)
		if err != nil {
			return err
		}
		if n != int64(len(payIDs)) {
			return fmt.Errorf("mark paid: %d of %d repairs changed", n, len(payIDs))
		}
		if err := tx.InsertLedger(ctx, lines); err != nil {
			return err
		}
		result.Paid = payIDs
		for _, item := range payable {
			result.Total = result.Total.Add(item.TechnicianCost)
		}
		return nil
	})
	if err != nil {
		if guarded {
			_ = s.idempotency.Delete(ctx, idempotencyKey, idempotencyModule)
		}
		return PayResult{}, fmt.Errorf("pay batch: %w", err)
	}
	if len(result.Paid) == 0 {
		if guarded {
			_ = s.idempotency.Delete(ctx, idempotencyKey, idempotencyModule)
		}
		result.BatchRef = ""
		return result, ErrPartialBatch
	}

	result.PaidAt = &paidAt
	s.record(ctx, "payout.pay", result.BatchRef, map[string]any{
		"devices": result.Paid,
		"failed":  len(result.Failed),
		"total":   result.Total.String(),
	})
	if len(result.Failed) > 0 {
		return result, ErrPartialBatch
	}
	return result, nil
}

// PurgePaid removes paid repairs older than the retention window.
func (s *Service) PurgePaid(ctx context.Context) (int64, error) {
	n, err := s.repo.PurgePaid(ctx, s.now().Add(-s.opts.PaidRetention))
	if err != nil {
		return 0, fmt.Errorf("purge paid: %w", err)
	}
	if n > 0 {
		s.record(ctx, "payout.purge_paid", "repairs", map[string]any{"deleted": n})
	}
	return n, nil
}

// PurgeLedger removes ledger lines older than the ledger window.
func (s *Service) PurgeLedger(ctx context.Context) (int64, error) {
	n, err := s.repo.PurgeLedger(ctx, s.now().Add(-s.opts.LedgerWindow))
	if err != nil {
		return 0, fmt.Errorf("purge ledger: %w", err)
	}
	if n > 0 {
		s.record(ctx, "payout.purge_ledger", "payout_ledger", map[string]any{"deleted": n})
	}
	return n, nil
}

func (s *Service) record(ctx context.Context, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "payouts", EntityID: entityID, Meta: meta})
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
