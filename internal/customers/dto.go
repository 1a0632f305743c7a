package customers

import "github.com/shopspring/decimal"

type CreateCustomerRequest struct {
	Name           string              `json:"name" validate:"required,max=200"`
	Email          *string             `json:"email,omitempty" validate:"omitempty,email"`
	Phone          *string             `json:"phone,omitempty" validate:"omitempty,max=50"`
	CommissionRate decimal.NullDecimal `json:"commission_rate"`
	Notes          *string             `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

type UpdateCustomerRequest struct {
	Name           *string          `json:"name,omitempty" validate:"omitempty,max=200"`
	Email          *string          `json:"email,omitempty" validate:"omitempty,email"`
	Phone          *string          `json:"phone,omitempty" validate:"omitempty,max=50"`
	CommissionRate *decimal.Decimal `json:"commission_rate,omitempty"`
	ClearRate      bool             `json:"clear_commission_rate,omitempty"`
	IsActive       *bool            `json:"is_active,omitempty"`
	Notes          *string          `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

type ListCustomersRequest struct {
	IsActive *bool   `json:"is_active,omitempty"`
	Search   *string `json:"search,omitempty"`
	Limit    int     `json:"limit" validate:"gte=0,lte=1000"`
	Offset   int     `json:"offset" validate:"gte=0"`
}
