package sales

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/devicehub/devicehub/internal/customers"
	"github.com/devicehub/devicehub/internal/inventory"
	"github.com/devicehub/devicehub/internal/profit"
	"github.com/devicehub/devicehub/internal/shared"
)

// CustomerLookup resolves the buyer of a sale.
type CustomerLookup interface {
	Get(ctx context.Context, id int64) (*customers.Customer, error)
}

// RateSource supplies the platform commission.
type RateSource interface {
	Rate(ctx context.Context) (decimal.Decimal, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Invalidator drops cached aggregates that depend on sales.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Service coordinates sale operations.
type Service struct {
	repo      RepositoryPort
	customers CustomerLookup
	rates     RateSource
	audit     AuditPort
	profits   *profit.Cache
	money     *Money
	summaries Invalidator
	now       func() time.Time
}

// Deps groups Service collaborators. Audit, Profits and Summaries may be nil.
type Deps struct {
	Repo      RepositoryPort
	Customers CustomerLookup
	Rates     RateSource
	Audit     AuditPort
	Profits   *profit.Cache
	Money     *Money
	Summaries Invalidator
}

// NewService builds Service.
func NewService(deps Deps) *Service {
	return &Service{
		repo:      deps.Repo,
		customers: deps.Customers,
		rates:     deps.Rates,
		audit:     deps.Audit,
		profits:   deps.Profits,
		money:     deps.Money,
		summaries: deps.Summaries,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create finalizes a sale: the selected stock devices are snapshotted into
// line items and removed from stock in the same transaction.
func (s *Service) Create(ctx context.Context, req CreateSaleRequest) (Sale, error) {
	if err := shared.Validate(req); err != nil {
		return Sale{}, err
	}
	shipment := strings.TrimSpace(req.ShipmentNumber)
	if shipment == "" {
		return Sale{}, fmt.Errorf("%w: shipment number is required", ErrValidation)
	}
	if req.ShippingCost.IsNegative() {
		return Sale{}, fmt.Errorf("%w: shipping cost must be >= 0", ErrValidation)
	}
	if req.CustomTotalPrice.Valid && req.CustomTotalPrice.Decimal.IsNegative() {
		return Sale{}, fmt.Errorf("%w: custom total price must be >= 0", ErrValidation)
	}
	ids := make([]int64, len(req.Items))
	prices := make(map[int64]decimal.Decimal, len(req.Items))
	for i, item := range req.Items {
		if _, dup := prices[item.DeviceID]; dup {
			return Sale{}, fmt.Errorf("%w: device %d listed twice", ErrValidation, item.DeviceID)
		}
		if item.SalePrice.IsNegative() {
			return Sale{}, fmt.Errorf("%w: sale price of device %d must be >= 0", ErrValidation, item.DeviceID)
		}
		ids[i] = item.DeviceID
		prices[item.DeviceID] = item.SalePrice
	}

	customer, err := s.customers.Get(ctx, req.CustomerID)
	if err != nil {
		if errors.Is(err, customers.ErrNotFound) {
			return Sale{}, fmt.Errorf("customer %d: %w", req.CustomerID, ErrNotFound)
		}
		return Sale{}, fmt.Errorf("get customer: %w", err)
	}
	rate, err := s.commissionFor(ctx, customer, req.CommissionRate)
	if err != nil {
		return Sale{}, err
	}

	customerID := customer.ID
	sale := Sale{
		CustomerID:       &customerID,
		CustomerName:     customer.Name,
		ShipmentNumber:   shipment,
		ShippingCost:     req.ShippingCost,
		CommissionRate:   rate,
		CustomTotalPrice: req.CustomTotalPrice,
		SoldAt:           s.now(),
	}
	sale.setState(Delivered{})

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		devices, err := tx.LockDevices(ctx, ids)
		if err != nil {
			if errors.Is(err, inventory.ErrNotFound) {
				return fmt.Errorf("%w: %v", ErrNotFound, err)
			}
			return err
		}
		total := decimal.Zero
		sale.Items = make([]LineItem, 0, len(devices))
		for i, dev := range devices {
			if !dev.Available() {
				return fmt.Errorf("%w: device %d is %s", ErrValidation, dev.ID, dev.Status)
			}
			item := snapshot(dev, i+1, prices[dev.ID])
			total = total.Add(item.SalePrice)
			sale.Items = append(sale.Items, item)
		}
		sale.TotalPrice = total
		if _, err := tx.DeleteDevices(ctx, ids); err != nil {
			return err
		}
		id, err := tx.InsertSale(ctx, sale)
		if err != nil {
			return err
		}
		sale.ID = id
		return nil
	})
	if err != nil {
		return Sale{}, fmt.Errorf("create sale: %w", err)
	}
	s.recordChange(ctx, "sale.create", sale.ID, map[string]any{"items": len(sale.Items), "total": sale.TotalPrice.String()})
	return sale, nil
}

func (s *Service) commissionFor(ctx context.Context, customer *customers.Customer, explicit decimal.NullDecimal) (decimal.Decimal, error) {
	var rate decimal.Decimal
	switch {
	case explicit.Valid:
		rate = explicit.Decimal
	case customer.CommissionRate.Valid:
		rate = customer.CommissionRate.Decimal
	default:
		global, err := s.rates.Rate(ctx)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("load commission: %w", err)
		}
		rate = global
	}
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return decimal.Decimal{}, fmt.Errorf("%w: commission rate %s outside 0..100", ErrValidation, rate)
	}
	return rate, nil
}

func snapshot(dev inventory.Device, position int, price decimal.Decimal) LineItem {
	return LineItem{
		Position:     position,
		DeviceID:     dev.ID,
		DeviceType:   string(dev.DeviceType),
		Brand:        dev.Brand,
		Model:        dev.Model,
		Condition:    dev.Condition,
		Grade:        dev.Grade,
		Color:        dev.Color,
		Memory:       dev.Memory,
		IMEI:         dev.IMEI,
		Info:         dev.Info,
		ArrivalPrice: dev.ArrivalPrice,
		SalePrice:    price,
		RepairInfo:   dev.RepairInfo,
	}
}

// Get returns one sale.
func (s *Service) Get(ctx context.Context, id int64) (Sale, error) {
	return s.repo.Get(ctx, id)
}

// List returns sales matching filter with the total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	return s.repo.List(ctx, filter)
}

// Return records that a delivered sale came back. Nothing is persisted when
// platform or reason is blank or the sale is already returned.
func (s *Service) Return(ctx context.Context, id int64, req ReturnRequest) (Sale, error) {
	var sale Sale
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockSale(ctx, id)
		if err != nil {
			return err
		}
		delivered, ok := current.State().(Delivered)
		if !ok {
			return fmt.Errorf("%w: sale %d is already %s", ErrInvalidTransition, id, current.Status)
		}
		returned, err := delivered.Return(req.Platform, req.Reason, s.now())
		if err != nil {
			return err
		}
		current.setState(returned)
		sale = current
		return tx.UpdateState(ctx, current)
	})
	if err != nil {
		return Sale{}, fmt.Errorf("return sale: %w", err)
	}
	s.recordChange(ctx, "sale.return", id, map[string]any{"platform": sale.ReturnPlatform, "reason": sale.ReturnReason})
	return sale, nil
}

// Restock puts every device of a returned sale back into stock as Ready for
// Sale and deletes the sale, all in one transaction.
func (s *Service) Restock(ctx context.Context, id int64) (RestockResult, error) {
	result := RestockResult{Ref: uuid.NewString(), SaleID: id}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.LockSale(ctx, id)
		if err != nil {
			return err
		}
		if _, ok := sale.State().(Returned); !ok {
			return fmt.Errorf("%w: sale %d is %s", ErrNotReturned, id, sale.Status)
		}
		for _, item := range sale.Items {
			devID, err := tx.InsertDevice(ctx, restocked(item))
			if err != nil {
				return fmt.Errorf("restock device %d: %w", item.DeviceID, err)
			}
			result.DeviceIDs = append(result.DeviceIDs, devID)
		}
		return tx.DeleteSale(ctx, id)
	})
	if err != nil {
		return RestockResult{}, fmt.Errorf("restock sale: %w", err)
	}
	_ = s.profits.Forget(ctx, id)
	s.recordChange(ctx, "sale.restock", id, map[string]any{"ref": result.Ref, "devices": result.DeviceIDs})
	return result, nil
}

func restocked(item LineItem) inventory.Device {
	return inventory.Device{
		ID:           item.DeviceID,
		DeviceType:   inventory.DeviceType(item.DeviceType),
		Brand:        item.Brand,
		Model:        item.Model,
		Condition:    item.Condition,
		Grade:        item.Grade,
		Color:        item.Color,
		Memory:       item.Memory,
		IMEI:         item.IMEI,
		Info:         item.Info,
		ArrivalPrice: item.ArrivalPrice,
		Status:       inventory.StatusReadyForSale,
		RepairInfo:   item.RepairInfo,
	}
}

// DeleteBatch deletes sales by id. Ids that do not exist are reported back;
// the others are deleted.
func (s *Service) DeleteBatch(ctx context.Context, req DeleteBatchRequest) (DeleteResult, error) {
	if err := shared.Validate(req); err != nil {
		return DeleteResult{}, err
	}
	if !req.Confirm {
		return DeleteResult{}, ErrConfirmation
	}
	ids := uniqueIDs(req.IDs)
	result := DeleteResult{Deleted: []int64{}, Failed: []BatchFailure{}}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, id := range ids {
			if err := tx.DeleteSale(ctx, id); err != nil {
				if errors.Is(err, ErrNotFound) {
					result.Failed = append(result.Failed, BatchFailure{ID: id, Reason: "not found"})
					continue
				}
				return err
			}
			result.Deleted = append(result.Deleted, id)
		}
		return nil
	})
	if err != nil {
		return DeleteResult{}, fmt.Errorf("delete sales: %w", err)
	}
	_ = s.profits.Forget(ctx, result.Deleted...)
	for _, id := range result.Deleted {
		s.recordChange(ctx, "sale.delete", id, nil)
	}
	if len(result.Failed) > 0 {
		return result, ErrPartialBatch
	}
	return result, nil
}

// PurgeDelivered deletes delivered sales sold between two dates, both
// inclusive.
func (s *Service) PurgeDelivered(ctx context.Context, req PurgeRequest) (int64, error) {
	if err := shared.Validate(req); err != nil {
		return 0, err
	}
	if !req.Confirm {
		return 0, ErrConfirmation
	}
	from, _ := time.Parse(time.DateOnly, req.From)
	to, _ := time.Parse(time.DateOnly, req.To)
	if to.Before(from) {
		return 0, fmt.Errorf("%w: to is before from", ErrValidation)
	}
	var n int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		n, err = tx.DeleteDeliveredBetween(ctx, from, to.AddDate(0, 0, 1))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("purge delivered sales: %w", err)
	}
	s.recordChange(ctx, "sale.purge", 0, map[string]any{"from": req.From, "to": req.To, "deleted": n})
	return n, nil
}

// Invoice renders the printable invoice of a sale.
func (s *Service) Invoice(ctx context.Context, id int64) (Invoice, error) {
	sale, err := s.repo.Get(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	return BuildInvoice(sale, s.money), nil
}

// Profit returns the cost and profit breakdown of a sale.
func (s *Service) Profit(ctx context.Context, id int64) (profit.View, error) {
	sale, err := s.repo.Get(ctx, id)
	if err != nil {
		return profit.View{}, err
	}
	return s.profits.SaleView(ctx, sale.ID, ProfitInput(sale))
}

// ProfitInput converts a sale into calculator input.
func ProfitInput(sale Sale) profit.Input {
	lines := make([]profit.Line, len(sale.Items))
	for i, item := range sale.Items {
		lines[i] = profit.Line{ArrivalPrice: item.ArrivalPrice, SalePrice: item.SalePrice, Repair: item.RepairInfo}
	}
	return profit.ForSale(lines, sale.ShippingCost, sale.CommissionRate, sale.CustomTotalPrice)
}

// recordChange audits a write and drops cached summaries.
func (s *Service) recordChange(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.summaries != nil {
		_ = s.summaries.Invalidate(ctx)
	}
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "sales", EntityID: strconv.FormatInt(id, 10), Meta: meta})
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
