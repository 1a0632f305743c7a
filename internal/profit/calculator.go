// Package profit derives cost and profit figures for sold devices.
package profit

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/devicehub/devicehub/internal/repairs"
)

// ErrInvalidInput reports a price, cost or rate the calculator refuses to use.
var ErrInvalidInput = errors.New("profit: invalid computation input")

var hundred = decimal.NewFromInt(100)

// RepairCosts carries the two cost maps of a repair.
type RepairCosts struct {
	Materials repairs.CostMap
	Labor     repairs.CostMap
}

// FromRepairInfo returns nil when info is nil.
func FromRepairInfo(info *repairs.RepairInfo) *RepairCosts {
	if info == nil {
		return nil
	}
	return &RepairCosts{Materials: info.Materials, Labor: info.Labor}
}

// Input holds everything Calculate needs. Zero values of the optional amounts
// mean "absent" and count as 0. SoldPrice must be set.
type Input struct {
	ArrivalPrice   decimal.Decimal
	SoldPrice      decimal.NullDecimal
	ShippingCost   decimal.Decimal
	CommissionRate decimal.Decimal
	Repair         *RepairCosts
}

// Breakdown is the unrounded result of a calculation.
type Breakdown struct {
	CommissionAmount      decimal.Decimal `json:"commission_amount"`
	AmountAfterCommission decimal.Decimal `json:"amount_after_commission"`
	AmountAfterShipping   decimal.Decimal `json:"amount_after_shipping"`
	CostOfComponents      decimal.Decimal `json:"cost_of_components"`
	TechnicianCost        decimal.Decimal `json:"technician_cost"`
	TotalCost             decimal.Decimal `json:"total_cost"`
	NetProfit             decimal.Decimal `json:"net_profit"`
}

// Calculate computes commission, costs and net profit.
//
// With repair costs present the technician cost is counted in the total cost
// and subtracted from the amount after shipping together with the arrival
// price.
func Calculate(in Input) (Breakdown, error) {
	if err := in.validate(); err != nil {
		return Breakdown{}, err
	}
	sold := in.SoldPrice.Decimal

	var out Breakdown
	out.CommissionAmount = sold.Mul(in.CommissionRate).Div(hundred)
	out.AmountAfterCommission = sold.Sub(out.CommissionAmount)
	out.AmountAfterShipping = out.AmountAfterCommission.Sub(in.ShippingCost)

	if in.Repair == nil {
		out.CostOfComponents = decimal.Zero
		out.TechnicianCost = decimal.Zero
		out.TotalCost = in.ArrivalPrice.Add(in.ShippingCost)
		out.NetProfit = out.AmountAfterShipping.Sub(in.ArrivalPrice)
		return out, nil
	}

	out.CostOfComponents = in.Repair.Materials.Sum()
	out.TechnicianCost = in.Repair.Labor.Sum()
	out.TotalCost = in.ArrivalPrice.Add(out.CostOfComponents).Add(out.TechnicianCost).Add(in.ShippingCost)
	out.NetProfit = out.AmountAfterShipping.Sub(in.ArrivalPrice).Sub(out.TechnicianCost)
	return out, nil
}

func (in Input) validate() error {
	if !in.SoldPrice.Valid {
		return fmt.Errorf("%w: sold price is required", ErrInvalidInput)
	}
	if in.SoldPrice.Decimal.IsNegative() {
		return fmt.Errorf("%w: sold price %s is negative", ErrInvalidInput, in.SoldPrice.Decimal)
	}
	if in.ArrivalPrice.IsNegative() {
		return fmt.Errorf("%w: arrival price %s is negative", ErrInvalidInput, in.ArrivalPrice)
	}
	if in.ShippingCost.IsNegative() {
		return fmt.Errorf("%w: shipping cost %s is negative", ErrInvalidInput, in.ShippingCost)
	}
	if in.CommissionRate.IsNegative() || in.CommissionRate.GreaterThan(hundred) {
		return fmt.Errorf("%w: commission rate %s outside 0..100", ErrInvalidInput, in.CommissionRate)
	}
	if in.Repair != nil && !in.Repair.Materials.SameKeys(in.Repair.Labor) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, repairs.ErrKeySetMismatch)
	}
	return nil
}

// Summary is the display form of a Breakdown.
type Summary struct {
	TotalCost        decimal.Decimal `json:"total_cost"`
	NetProfit        decimal.Decimal `json:"net_profit"`
	CostOfComponents decimal.Decimal `json:"cost_of_components"`
	TechnicianCost   decimal.Decimal `json:"technician_cost"`
}

// Rounded returns the four headline figures rounded to cents.
func (b Breakdown) Rounded() Summary {
	return Summary{
		TotalCost:        b.TotalCost.Round(2),
		NetProfit:        b.NetProfit.Round(2),
		CostOfComponents: b.CostOfComponents.Round(2),
		TechnicianCost:   b.TechnicianCost.Round(2),
	}
}

// Line is one sold device as seen by the calculator.
type Line struct {
	ArrivalPrice decimal.Decimal
	SalePrice    decimal.Decimal
	Repair       *repairs.RepairInfo
}

// ForSale folds the lines of a sale into a single Input. The custom total,
// when set, replaces the sum of line prices. Repair maps of all lines are
// merged by component.
func ForSale(lines []Line, shipping, commissionRate decimal.Decimal, customTotal decimal.NullDecimal) Input {
	in := Input{ShippingCost: shipping, CommissionRate: commissionRate}
	total := decimal.Zero
	for _, line := range lines {
		in.ArrivalPrice = in.ArrivalPrice.Add(line.ArrivalPrice)
		total = total.Add(line.SalePrice)
		if line.Repair == nil {
			continue
		}
		if in.Repair == nil {
			in.Repair = &RepairCosts{}
		}
		in.Repair.Materials = in.Repair.Materials.Merge(line.Repair.Materials)
		in.Repair.Labor = in.Repair.Labor.Merge(line.Repair.Labor)
	}
	if customTotal.Valid {
		in.SoldPrice = customTotal
	} else if len(lines) > 0 {
		in.SoldPrice = decimal.NewNullDecimal(total)
	}
	return in
}
