package inventory

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/devicehub/devicehub/internal/repairs"
)

// Status is the lifecycle position of a stock device.
type Status string

const (
	StatusReadyForSale  Status = "Ready for Sale"
	StatusToBeRepaired  Status = "To Be Repaired"
	StatusReserved      Status = "Reserved"
	StatusRepaired      Status = "Repaired"
	StatusDefectivePart Status = "Defective Part"
	StatusNotRepairable Status = "Not Repairable"
)

var statuses = []Status{
	StatusReadyForSale,
	StatusToBeRepaired,
	StatusReserved,
	StatusRepaired,
	StatusDefectivePart,
	StatusNotRepairable,
}

// Statuses lists every known status.
func Statuses() []Status {
	out := make([]Status, len(statuses))
	copy(out, statuses)
	return out
}

// ParseStatus matches raw case-insensitively against the known statuses.
func ParseStatus(raw string) (Status, error) {
	for _, s := range statuses {
		if strings.EqualFold(string(s), strings.TrimSpace(raw)) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

// needsReason reports whether moving into s must carry a reason.
func (s Status) needsReason() bool {
	return s == StatusDefectivePart || s == StatusNotRepairable
}

// DeviceType groups stock by kind of hardware.
type DeviceType string

const (
	DeviceMobile DeviceType = "Mobile"
	DeviceTablet DeviceType = "Tablet"
	DeviceLaptop DeviceType = "Laptop"
)

var (
	ErrNotFound      = errors.New("inventory: device not found")
	ErrDuplicateIMEI = errors.New("inventory: imei already in stock")
	ErrInvalidStatus = errors.New("inventory: unknown status")
	ErrReasonMissing = errors.New("inventory: status requires a reason")
	ErrNotAvailable  = errors.New("inventory: device not available for sale")
	ErrConfirmation  = errors.New("inventory: destructive action requires confirm")
	ErrInvalidPrice  = errors.New("inventory: arrival price must be >= 0")
	ErrUnknownModel  = errors.New("inventory: model not in catalog")
)

// Device is one unit held in stock.
type Device struct {
	ID           int64               `json:"id"`
	DeviceType   DeviceType          `json:"device_type"`
	Brand        string              `json:"brand"`
	Model        string              `json:"model"`
	Condition    string              `json:"condition"`
	Grade        string              `json:"grade"`
	Color        string              `json:"color"`
	Memory       string              `json:"memory"`
	IMEI         string              `json:"imei,omitempty"`
	Info         string              `json:"info,omitempty"`
	ArrivalPrice decimal.Decimal     `json:"arrival_price"`
	Status       Status              `json:"status"`
	StatusReason string              `json:"status_reason,omitempty"`
	RepairInfo   *repairs.RepairInfo `json:"repair_info,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// Available reports whether the device may be moved into a sale.
func (d Device) Available() bool {
	return d.Status == StatusReadyForSale || d.Status == StatusRepaired
}

// DeviceInput is the editable part of a device.
type DeviceInput struct {
	DeviceType   DeviceType      `json:"device_type" validate:"required,oneof=Mobile Tablet Laptop"`
	Brand        string          `json:"brand" validate:"required,max=80"`
	Model        string          `json:"model" validate:"required,max=120"`
	Condition    string          `json:"condition" validate:"max=40"`
	Grade        string          `json:"grade" validate:"omitempty,oneof=A+ A B C D"`
	Color        string          `json:"color" validate:"max=40"`
	Memory       string          `json:"memory" validate:"max=40"`
	IMEI         string          `json:"imei" validate:"omitempty,max=32"`
	Info         string          `json:"info" validate:"max=1000"`
	ArrivalPrice decimal.Decimal `json:"arrival_price"`
	Status       string          `json:"status"`
}

// StatusUpdate moves a device to another status. Grade is applied when set.
type StatusUpdate struct {
	Status string `json:"status" validate:"required"`
	Grade  string `json:"grade" validate:"omitempty,oneof=A+ A B C D"`
	Reason string `json:"reason" validate:"max=500"`
}

// ListFilter narrows device listings.
type ListFilter struct {
	Status     Status
	DeviceType DeviceType
	Search     string
	Limit      int
	Offset     int
}

func (in DeviceInput) apply(dev *Device) error {
	if in.ArrivalPrice.IsNegative() {
		return fmt.Errorf("%w: got %s", ErrInvalidPrice, in.ArrivalPrice)
	}
	dev.DeviceType = in.DeviceType
	dev.Brand = strings.TrimSpace(in.Brand)
	dev.Model = strings.TrimSpace(in.Model)
	dev.Condition = strings.TrimSpace(in.Condition)
	dev.Grade = in.Grade
	dev.Color = strings.TrimSpace(in.Color)
	dev.Memory = strings.TrimSpace(in.Memory)
	dev.IMEI = strings.TrimSpace(in.IMEI)
	dev.Info = strings.TrimSpace(in.Info)
	dev.ArrivalPrice = in.ArrivalPrice
	return nil
}
