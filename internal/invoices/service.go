package invoices

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/devicehub/devicehub/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Formatter renders amounts for display.
type Formatter interface {
	Format(amount decimal.Decimal) string
}

// Service issues and reads invoices.
type Service struct {
	repo  Repository
	audit AuditPort
	money Formatter
	loc   *time.Location
	now   func() time.Time
}

// NewService builds Service. audit and money may be nil; a nil loc means UTC.
func NewService(repo Repository, audit AuditPort, money Formatter, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, audit: audit, money: money, loc: loc, now: time.Now}
}

// NextNumber previews the number the next invoice will get.
func (s *Service) NextNumber(ctx context.Context) (string, error) {
	year := s.now().In(s.loc).Year()
	seq, err := s.repo.PeekSequence(ctx, year)
	if err != nil {
		return "", fmt.Errorf("peek invoice number: %w", err)
	}
	return FormatNumber(year, seq), nil
}

// Create computes and stores an invoice. The number is claimed inside the
// same transaction, so numbers are gapless per year.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Invoice, error) {
	if err := shared.Validate(req); err != nil {
		return Invoice{}, err
	}
	now := s.now().In(s.loc)
	date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	if req.Date != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, req.Date, s.loc)
		if err != nil {
			return Invoice{}, fmt.Errorf("%w: date %q", ErrInvalidInput, req.Date)
		}
		date = parsed
	}
	inv, err := Compute(req, date)
	if err != nil {
		return Invoice{}, err
	}
	inv.CreatedAt = now.UTC()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.NextSequence(ctx, date.Year())
		if err != nil {
			return err
		}
		inv.Number = FormatNumber(date.Year(), seq)
		id, err := tx.Insert(ctx, inv)
		if err != nil {
			return err
		}
		inv.ID = id
		return nil
	})
	if err != nil {
		return Invoice{}, fmt.Errorf("create invoice: %w", err)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Action:   "invoice.create",
			Entity:   "invoices",
			EntityID: inv.Number,
			Meta:     map[string]any{"client": inv.Client.Code, "total": inv.Total.String()},
		})
	}
	return s.format(inv), nil
}

// Get returns one invoice.
func (s *Service) Get(ctx context.Context, id int64) (Invoice, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	return s.format(inv), nil
}

// List returns a page of invoices, newest first, and the total count.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Invoice, int, error) {
	invs, total, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	for i := range invs {
		invs[i] = s.format(invs[i])
	}
	return invs, total, nil
}

func (s *Service) format(inv Invoice) Invoice {
	if s.money == nil {
		return inv
	}
	inv.Formatted = map[string]string{
		"articles": s.money.Format(inv.Articles),
		"vat":      s.money.Format(inv.VATTotal),
		"shipping": s.money.Format(inv.Shipping),
		"total":    s.money.Format(inv.Total),
	}
	return inv
}
