package repairs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrNotFound          = errors.New("repairs: record not found")
	ErrUnknownComponent  = errors.New("repairs: unknown component")
	ErrInvalidCost       = errors.New("repairs: invalid cost")
	ErrKeySetMismatch    = errors.New("repairs: material and technician costs cover different components")
	ErrMissingCost       = errors.New("repairs: cost reference missing")
	ErrInvalidTechnician = errors.New("repairs: technician name and email required")
	ErrAlreadyRepaired   = errors.New("repairs: device already carries repair info")
	ErrInvalidKind       = errors.New("repairs: unknown cost table kind")
)

// PaymentStatus tracks whether the technician has been paid for a repair.
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

// Technician identifies who performed a repair. Email is the stable key.
type Technician struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Normalize trims whitespace and lowercases the email.
func (t Technician) Normalize() Technician {
	return Technician{
		Name:  strings.TrimSpace(t.Name),
		Email: strings.ToLower(strings.TrimSpace(t.Email)),
	}
}

// RepairInfo records one repair event attached to a device.
type RepairInfo struct {
	ID            int64         `json:"id,omitempty"`
	Materials     CostMap       `json:"repair_components"`
	Labor         CostMap       `json:"technician_cost_by_component"`
	Technician    Technician    `json:"technician"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`
	RepairedAt    time.Time     `json:"repaired_at"`
	Notes         string        `json:"notes,omitempty"`
}

// Validate enforces the structural invariants of a repair record.
func (r RepairInfo) Validate() error {
	if r.Materials.Len() == 0 {
		return fmt.Errorf("%w: at least one component required", ErrInvalidCost)
	}
	if !r.Materials.SameKeys(r.Labor) {
		return ErrKeySetMismatch
	}
	tech := r.Technician.Normalize()
	if tech.Name == "" || tech.Email == "" {
		return ErrInvalidTechnician
	}
	switch r.PaymentStatus {
	case PaymentUnpaid:
		if r.PaidAt != nil {
			return fmt.Errorf("%w: unpaid repair has a payment date", ErrInvalidCost)
		}
	case PaymentPaid:
		if r.PaidAt == nil {
			return fmt.Errorf("%w: paid repair requires a payment date", ErrInvalidCost)
		}
	default:
		return fmt.Errorf("repairs: unknown payment status %q", r.PaymentStatus)
	}
	return nil
}

// MaterialCost sums the replaced component costs.
func (r RepairInfo) MaterialCost() decimal.Decimal {
	return r.Materials.Sum()
}

// TechnicianCost sums the labor owed to the technician.
func (r RepairInfo) TechnicianCost() decimal.Decimal {
	return r.Labor.Sum()
}

// Fingerprint identifies the cost-relevant content of the repair. It changes
// whenever a component, amount or technician changes.
func (r RepairInfo) Fingerprint() string {
	payload, _ := json.Marshal(struct {
		Materials CostMap `json:"m"`
		Labor     CostMap `json:"l"`
		Email     string  `json:"e"`
	}{r.Materials, r.Labor, r.Technician.Normalize().Email})
	sum := blake2b.Sum256(payload)
	return fmt.Sprintf("%x", sum[:8])
}

// CostKind selects one of the two cost reference tables.
type CostKind string

const (
	CostKindMaterial   CostKind = "material"
	CostKindTechnician CostKind = "technician"
)

// ParseCostKind validates a kind coming from a URL.
func ParseCostKind(raw string) (CostKind, error) {
	switch CostKind(strings.ToLower(raw)) {
	case CostKindMaterial:
		return CostKindMaterial, nil
	case CostKindTechnician:
		return CostKindTechnician, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, raw)
}

// CostTable lists the reference cost per component for one device model.
type CostTable struct {
	Kind      CostKind  `json:"kind"`
	Model     string    `json:"model"`
	Costs     CostMap   `json:"costs"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpsertCostTableRequest replaces the costs for a model.
type UpsertCostTableRequest struct {
	Model string  `json:"model" validate:"required,max=120"`
	Costs CostMap `json:"costs"`
}

// ConfirmRepairRequest is submitted by a technician once the work is done.
type ConfirmRepairRequest struct {
	DeviceID   int64       `json:"device_id" validate:"required,gt=0"`
	Components []Component `json:"components" validate:"required,min=1,unique"`
	Technician Technician  `json:"technician"`
	Notes      string      `json:"notes" validate:"max=500"`
}

// DeviceRef is the slice of a stock record the repair flow needs.
type DeviceRef struct {
	ID        int64
	IMEI      string
	Model     string
	HasRepair bool
}

// Record is a stored repair, linked to the device it was performed on.
type Record struct {
	RepairInfo
	DeviceID int64  `json:"device_id"`
	IMEI     string `json:"imei,omitempty"`
	Model    string `json:"model"`
}
