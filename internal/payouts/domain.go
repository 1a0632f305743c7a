// Package payouts tracks what technicians are owed for repairs and records
// when they are paid.
package payouts

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/devicehub/devicehub/internal/repairs"
)

var (
	ErrNotFound     = errors.New("payouts: nothing found")
	ErrPartialBatch = errors.New("payouts: some ids in the batch were not paid")
	ErrConfirmation = errors.New("payouts: destructive action requires confirm")
	ErrDuplicate    = errors.New("payouts: batch already submitted")
)

// Failure reasons reported per device id.
const (
	ReasonNotFound    = "not found"
	ReasonAlreadyPaid = "already paid"
)

// Item is one repair as seen by payroll.
type Item struct {
	RepairID       int64                 `json:"repair_id"`
	DeviceID       int64                 `json:"device_id"`
	IMEI           string                `json:"imei,omitempty"`
	Model          string                `json:"model"`
	Technician     repairs.Technician    `json:"technician"`
	Labor          repairs.CostMap       `json:"technician_cost_by_component"`
	TechnicianCost decimal.Decimal       `json:"total_technician_cost"`
	PaymentStatus  repairs.PaymentStatus `json:"payment_status"`
	PaidAt         *time.Time            `json:"paid_at,omitempty"`
	BatchRef       string                `json:"batch_ref,omitempty"`
	RepairedAt     time.Time             `json:"repaired_at"`
}

// PayRequest marks the repairs of the listed devices as paid. Strict batches
// are all or nothing.
type PayRequest struct {
	DeviceIDs []int64 `json:"device_ids" validate:"required,min=1,max=500,dive,gt=0"`
	Strict    bool    `json:"strict"`
}

// Failure names a device id that was not paid and why.
type Failure struct {
	DeviceID int64  `json:"device_id"`
	Reason   string `json:"reason"`
}

// PayResult reports a pay batch.
type PayResult struct {
	BatchRef string          `json:"batch_ref,omitempty"`
	PaidAt   *time.Time      `json:"paid_at,omitempty"`
	Paid     []int64         `json:"paid"`
	Failed   []Failure       `json:"failed"`
	Total    decimal.Decimal `json:"total"`
}

// TechnicianGroup sums the repairs of one technician.
type TechnicianGroup struct {
	Technician repairs.Technician `json:"technician"`
	Count      int                `json:"count"`
	Total      decimal.Decimal    `json:"total"`
	Items      []Item             `json:"items"`
}

// LedgerLine is one paid repair kept for the payout history.
type LedgerLine struct {
	ID         int64              `json:"id"`
	BatchRef   string             `json:"batch_ref"`
	RepairID   int64              `json:"repair_id"`
	DeviceID   int64              `json:"device_id"`
	IMEI       string             `json:"imei,omitempty"`
	Model      string             `json:"model"`
	Technician repairs.Technician `json:"-"`
	Amount     decimal.Decimal    `json:"amount"`
	PaidAt     time.Time          `json:"paid_at"`
}

// LedgerEntry groups the payments made to one technician on one day.
type LedgerEntry struct {
	Technician  repairs.Technician `json:"technician"`
	PaymentDate string             `json:"payment_date"`
	Total       decimal.Decimal    `json:"total"`
	Lines       []LedgerLine       `json:"lines"`
}

// GroupByTechnician groups items by technician email. The display name is the
// first one seen for the email. Groups are ordered by name, then email.
func GroupByTechnician(items []Item) []TechnicianGroup {
	index := make(map[string]int)
	var groups []TechnicianGroup
	for _, item := range items {
		tech := item.Technician.Normalize()
		pos, ok := index[tech.Email]
		if !ok {
			pos = len(groups)
			index[tech.Email] = pos
			groups = append(groups, TechnicianGroup{Technician: tech, Total: decimal.Zero})
		}
		g := &groups[pos]
		g.Count++
		g.Total = g.Total.Add(item.TechnicianCost)
		g.Items = append(g.Items, item)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := strings.ToLower(groups[i].Technician.Name), strings.ToLower(groups[j].Technician.Name)
		if a != b {
			return a < b
		}
		return groups[i].Technician.Email < groups[j].Technician.Email
	})
	return groups
}

// BuildLedger groups ledger lines by technician email and calendar day of
// payment in loc. Newest days come first.
func BuildLedger(lines []LedgerLine, loc *time.Location) []LedgerEntry {
	if loc == nil {
		loc = time.UTC
	}
	type key struct{ email, day string }
	index := make(map[key]int)
	var entries []LedgerEntry
	for _, line := range lines {
		tech := line.Technician.Normalize()
		k := key{email: tech.Email, day: line.PaidAt.In(loc).Format(time.DateOnly)}
		pos, ok := index[k]
		if !ok {
			pos = len(entries)
			index[k] = pos
			entries = append(entries, LedgerEntry{Technician: tech, PaymentDate: k.day, Total: decimal.Zero})
		}
		e := &entries[pos]
		e.Total = e.Total.Add(line.Amount)
		e.Lines = append(e.Lines, line)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].PaymentDate != entries[j].PaymentDate {
			return entries[i].PaymentDate > entries[j].PaymentDate
		}
		return entries[i].Technician.Email < entries[j].Technician.Email
	})
	return entries
}
