// Package commission stores the platform-wide commission percentage applied
// to sales whose customer has no rate of its own.
package commission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/devicehub/devicehub/internal/platform/db"
	"github.com/devicehub/devicehub/internal/shared"
)

// ErrInvalidRate is returned for values outside 0..100.
var ErrInvalidRate = errors.New("commission: value must be within 0..100")

var hundred = decimal.NewFromInt(100)

// Setting is the stored commission.
type Setting struct {
	Value     decimal.Decimal `json:"commission_value"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
}

// UpdateRequest is the body of PUT /commission.
type UpdateRequest struct {
	Value decimal.NullDecimal `json:"commission_value"`
}

// Store reads and replaces the setting. Replace returns the previous value.
type Store interface {
	Load(ctx context.Context) (Setting, bool, error)
	Replace(ctx context.Context, value decimal.Decimal) (previous Setting, existed bool, err error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service exposes the setting with a configured fallback.
type Service struct {
	store    Store
	audit    AuditPort
	fallback decimal.Decimal
}

// NewService builds Service. fallback is used until a value is stored.
func NewService(store Store, audit AuditPort, fallback decimal.Decimal) *Service {
	return &Service{store: store, audit: audit, fallback: fallback}
}

// Current returns the stored value or the fallback.
func (s *Service) Current(ctx context.Context) (Setting, error) {
	setting, ok, err := s.store.Load(ctx)
	if err != nil {
		return Setting{}, fmt.Errorf("load commission: %w", err)
	}
	if !ok {
		return Setting{Value: s.fallback}, nil
	}
	return setting, nil
}

// Rate is Current without metadata, for callers that only need the number.
func (s *Service) Rate(ctx context.Context) (decimal.Decimal, error) {
	setting, err := s.Current(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return setting.Value, nil
}

// Update stores a new value and audits the change.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (Setting, error) {
	if !req.Value.Valid {
		return Setting{}, fmt.Errorf("%w: commission_value is required", ErrInvalidRate)
	}
	value := req.Value.Decimal
	if value.IsNegative() || value.GreaterThan(hundred) {
		return Setting{}, fmt.Errorf("%w: got %s", ErrInvalidRate, value)
	}
	previous, existed, err := s.store.Replace(ctx, value)
	if err != nil {
		return Setting{}, fmt.Errorf("store commission: %w", err)
	}
	if !existed {
		previous.Value = s.fallback
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Action:   "commission.update",
			Entity:   "commission_settings",
			EntityID: "1",
			Meta:     map[string]any{"previous": previous.Value.String(), "new": value.String()},
		})
	}
	return s.Current(ctx)
}

// PGStore keeps the setting in the single-row commission_settings table.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (p *PGStore) Load(ctx context.Context) (Setting, bool, error) {
	var (
		s  Setting
		at time.Time
	)
	err := p.pool.QueryRow(ctx, `SELECT platform_commission, updated_at FROM commission_settings WHERE id = 1`).Scan(&s.Value, &at)
	if errors.Is(err, pgx.ErrNoRows) {
		return Setting{}, false, nil
	}
	if err != nil {
		return Setting{}, false, err
	}
	s.UpdatedAt = &at
	return s, true, nil
}

func (p *PGStore) Replace(ctx context.Context, value decimal.Decimal) (Setting, bool, error) {
	var (
		previous Setting
		existed  bool
	)
	err := db.WithTx(ctx, p.pool, func(tx pgx.Tx) error {
		var at time.Time
		err := tx.QueryRow(ctx, `SELECT platform_commission, updated_at FROM commission_settings WHERE id = 1 FOR UPDATE`).Scan(&previous.Value, &at)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return err
		default:
			existed = true
			previous.UpdatedAt = &at
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO commission_settings (id, platform_commission, updated_at) VALUES (1, $1, NOW())
			ON CONFLICT (id) DO UPDATE SET platform_commission = EXCLUDED.platform_commission, updated_at = NOW()`, value)
		return err
	})
	return previous, existed, err
}
