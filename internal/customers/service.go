package customers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/devicehub/devicehub/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

type Service struct {
	repo  Repository
	audit AuditPort
}

func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

var hundred = decimal.NewFromInt(100)

func validRate(rate decimal.Decimal) bool {
	return !rate.IsNegative() && !rate.GreaterThan(hundred)
}

func (s *Service) Create(ctx context.Context, req CreateCustomerRequest) (*Customer, error) {
	if err := shared.Validate(req); err != nil {
		return nil, err
	}
	if req.CommissionRate.Valid && !validRate(req.CommissionRate.Decimal) {
		return nil, ErrInvalidRate
	}
	customer := Customer{
		Name:           strings.TrimSpace(req.Name),
		Email:          normalizeEmail(req.Email),
		Phone:          req.Phone,
		CommissionRate: req.CommissionRate,
		IsActive:       true,
		Notes:          req.Notes,
	}

	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		id, err = repo.Create(ctx, customer)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	customer.ID = id
	s.record(ctx, "customer.create", id, nil)
	return &customer, nil
}

func (s *Service) Update(ctx context.Context, id int64, req UpdateCustomerRequest) (*Customer, error) {
	if err := shared.Validate(req); err != nil {
		return nil, err
	}
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}

	updates := make(map[string]any)
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		updates["email"] = normalizeEmail(req.Email)
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	switch {
	case req.ClearRate:
		updates["commission_rate"] = decimal.NullDecimal{}
	case req.CommissionRate != nil:
		if !validRate(*req.CommissionRate) {
			return nil, ErrInvalidRate
		}
		updates["commission_rate"] = decimal.NewNullDecimal(*req.CommissionRate)
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}
	if len(updates) == 0 {
		return existing, nil
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		return repo.Update(ctx, id, updates)
	})
	if err != nil {
		return nil, fmt.Errorf("update customer: %w", err)
	}
	s.record(ctx, "customer.update", id, map[string]any{"fields": len(updates)})
	return s.repo.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id int64) (*Customer, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	if err := shared.Validate(req); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, req)
}

// Delete removes a customer. Past sales keep the customer name they were
// recorded with.
func (s *Service) Delete(ctx context.Context, id int64, confirm bool) error {
	if !confirm {
		return ErrConfirmation
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		return repo.Delete(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	s.record(ctx, "customer.delete", id, nil)
	return nil
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "customers", EntityID: strconv.FormatInt(id, 10), Meta: meta})
}

func normalizeEmail(email *string) *string {
	if email == nil {
		return nil
	}
	v := strings.ToLower(strings.TrimSpace(*email))
	if v == "" {
		return nil
	}
	return &v
}
