package customers

import (
	"time"

	"github.com/shopspring/decimal"
)

type Customer struct {
	ID             int64               `json:"id"`
	Name           string              `json:"name"`
	Email          *string             `json:"email,omitempty"`
	Phone          *string             `json:"phone,omitempty"`
	CommissionRate decimal.NullDecimal `json:"commission_rate"`
	IsActive       bool                `json:"is_active"`
	Notes          *string             `json:"notes,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// EffectiveCommission returns the customer's own rate, or fallback when none
// is set.
func (c Customer) EffectiveCommission(fallback decimal.Decimal) decimal.Decimal {
	if c.CommissionRate.Valid {
		return c.CommissionRate.Decimal
	}
	return fallback
}
