package sales

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/devicehub/devicehub/internal/repairs"
)

var (
	ErrNotFound          = errors.New("sales: record not found")
	ErrValidation        = errors.New("sales: validation failed")
	ErrInvalidTransition = errors.New("sales: invalid status transition")
	ErrNotReturned       = errors.New("sales: only returned sales can be restocked")
	ErrConfirmation      = errors.New("sales: destructive action requires confirm")
	ErrPartialBatch      = errors.New("sales: some ids in the batch did not apply")
)

// Status is the persisted form of a sale's state.
type Status string

const (
	StatusDelivered Status = "delivered"
	StatusReturned  Status = "returned"
)

// ParseStatus accepts the two known statuses case-insensitively.
func ParseStatus(raw string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusDelivered:
		return StatusDelivered, nil
	case StatusReturned:
		return StatusReturned, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrValidation, raw)
}

// State is the lifecycle position of a sale. The concrete types are Delivered
// and Returned; only Delivered can move, and only to Returned.
type State interface {
	Status() Status
	sealed()
}

// Delivered is the initial state.
type Delivered struct{}

// Returned is terminal. Its metadata is kept exactly as supplied.
type Returned struct {
	Platform string
	Reason   string
	At       time.Time
}

func (Delivered) Status() Status { return StatusDelivered }
func (Returned) Status() Status  { return StatusReturned }
func (Delivered) sealed()        {}
func (Returned) sealed()         {}

// Return moves a delivered sale to Returned. Platform and reason must be
// non-blank.
func (Delivered) Return(platform, reason string, at time.Time) (Returned, error) {
	missing := make([]string, 0, 2)
	if strings.TrimSpace(platform) == "" {
		missing = append(missing, "platform")
	}
	if strings.TrimSpace(reason) == "" {
		missing = append(missing, "reason")
	}
	if len(missing) > 0 {
		return Returned{}, fmt.Errorf("%w: return requires %s", ErrValidation, strings.Join(missing, " and "))
	}
	return Returned{Platform: platform, Reason: reason, At: at}, nil
}

// LineItem is the snapshot of a stock device taken when it was sold.
type LineItem struct {
	ID           int64               `json:"id"`
	Position     int                 `json:"position"`
	DeviceID     int64               `json:"device_id"`
	DeviceType   string              `json:"device_type"`
	Brand        string              `json:"brand"`
	Model        string              `json:"model"`
	Condition    string              `json:"condition"`
	Grade        string              `json:"grade"`
	Color        string              `json:"color"`
	Memory       string              `json:"memory"`
	IMEI         string              `json:"imei,omitempty"`
	Info         string              `json:"info,omitempty"`
	ArrivalPrice decimal.Decimal     `json:"arrival_price"`
	SalePrice    decimal.Decimal     `json:"sale_price"`
	RepairInfo   *repairs.RepairInfo `json:"repair_info,omitempty"`
}

// Sale groups devices sold to one customer in one shipment.
type Sale struct {
	ID               int64               `json:"id"`
	CustomerID       *int64              `json:"customer_id,omitempty"`
	CustomerName     string              `json:"customer_name"`
	ShipmentNumber   string              `json:"shipment_number"`
	Items            []LineItem          `json:"items"`
	ShippingCost     decimal.Decimal     `json:"shipping_cost"`
	CommissionRate   decimal.Decimal     `json:"commission_rate"`
	CustomTotalPrice decimal.NullDecimal `json:"custom_total_price"`
	TotalPrice       decimal.Decimal     `json:"total_price"`
	Status           Status              `json:"status"`
	ReturnPlatform   string              `json:"return_platform,omitempty"`
	ReturnReason     string              `json:"return_reason,omitempty"`
	ReturnedAt       *time.Time          `json:"returned_at,omitempty"`
	SoldAt           time.Time           `json:"sold_at"`
}

// State rebuilds the typed state from the persisted columns.
func (s Sale) State() State {
	if s.Status == StatusReturned {
		r := Returned{Platform: s.ReturnPlatform, Reason: s.ReturnReason}
		if s.ReturnedAt != nil {
			r.At = *s.ReturnedAt
		}
		return r
	}
	return Delivered{}
}

// setState writes a state back onto the persisted columns.
func (s *Sale) setState(state State) {
	s.Status = state.Status()
	switch st := state.(type) {
	case Returned:
		at := st.At
		s.ReturnPlatform = st.Platform
		s.ReturnReason = st.Reason
		s.ReturnedAt = &at
	case Delivered:
		s.ReturnPlatform = ""
		s.ReturnReason = ""
		s.ReturnedAt = nil
	}
}

// SoldPrice is the custom total when set, otherwise the recorded total.
func (s Sale) SoldPrice() decimal.Decimal {
	if s.CustomTotalPrice.Valid {
		return s.CustomTotalPrice.Decimal
	}
	return s.TotalPrice
}

// CreateItem selects one stock device and its price.
type CreateItem struct {
	DeviceID  int64           `json:"device_id" validate:"required,gt=0"`
	SalePrice decimal.Decimal `json:"sale_price"`
}

// CreateSaleRequest finalizes a sale from stock.
type CreateSaleRequest struct {
	CustomerID       int64               `json:"customer_id" validate:"required,gt=0"`
	ShipmentNumber   string              `json:"shipment_number" validate:"required,max=100"`
	ShippingCost     decimal.Decimal     `json:"shipping_cost"`
	CommissionRate   decimal.NullDecimal `json:"commission_rate"`
	CustomTotalPrice decimal.NullDecimal `json:"custom_total_price"`
	Items            []CreateItem        `json:"items" validate:"required,min=1,dive"`
}

// ReturnRequest carries return metadata.
type ReturnRequest struct {
	Platform string `json:"platform"`
	Reason   string `json:"reason"`
}

// DeleteBatchRequest deletes sales by id.
type DeleteBatchRequest struct {
	IDs     []int64 `json:"ids" validate:"required,min=1,dive,gt=0"`
	Confirm bool    `json:"confirm"`
}

// PurgeRequest deletes delivered sales sold within [From, To].
type PurgeRequest struct {
	From    string `json:"from" validate:"required,datetime=2006-01-02"`
	To      string `json:"to" validate:"required,datetime=2006-01-02"`
	Confirm bool   `json:"confirm"`
}

// BatchFailure names an id that did not apply and why.
type BatchFailure struct {
	ID     int64  `json:"id"`
	Reason string `json:"reason"`
}

// DeleteResult reports a delete-by-id batch.
type DeleteResult struct {
	Deleted []int64        `json:"deleted"`
	Failed  []BatchFailure `json:"failed"`
}

// RestockResult reports a restock-from-return.
type RestockResult struct {
	Ref       string  `json:"ref"`
	SaleID    int64   `json:"sale_id"`
	DeviceIDs []int64 `json:"device_ids"`
}

// ListFilter narrows sale listings.
type ListFilter struct {
	Status Status
	Search string
	Limit  int
	Offset int
}
