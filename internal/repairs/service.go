package repairs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/devicehub/devicehub/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Invalidator drops cached aggregates that depend on repair costs.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Service manages cost reference tables and repair confirmations.
type Service struct {
	repo      Repository
	audit     AuditPort
	summaries Invalidator
	now       func() time.Time
}

// NewService builds Service. audit and summaries may be nil.
func NewService(repo Repository, audit AuditPort, summaries Invalidator) *Service {
	return &Service{repo: repo, audit: audit, summaries: summaries, now: func() time.Time { return time.Now().UTC() }}
}

// ListCostTables returns every model's costs for kind.
func (s *Service) ListCostTables(ctx context.Context, kind CostKind) ([]CostTable, error) {
	return s.repo.ListCostTables(ctx, kind)
}

// GetCostTable returns the costs of one model.
func (s *Service) GetCostTable(ctx context.Context, kind CostKind, model string) (CostTable, error) {
	model = normalizeModel(model)
	if model == "" {
		return CostTable{}, ErrNotFound
	}
	return s.repo.GetCostTable(ctx, kind, model)
}

// Lookup returns the material and technician tables of a model, as used when
// a technician fills in a repair.
func (s *Service) Lookup(ctx context.Context, model string) (material, technician CostTable, err error) {
	material, err = s.GetCostTable(ctx, CostKindMaterial, model)
	if err != nil {
		return CostTable{}, CostTable{}, fmt.Errorf("material costs: %w", err)
	}
	technician, err = s.GetCostTable(ctx, CostKindTechnician, model)
	if err != nil {
		return CostTable{}, CostTable{}, fmt.Errorf("technician costs: %w", err)
	}
	return material, technician, nil
}

// UpsertCostTable replaces the stored costs of a model.
func (s *Service) UpsertCostTable(ctx context.Context, kind CostKind, req UpsertCostTableRequest) (CostTable, error) {
	if err := shared.Validate(req); err != nil {
		return CostTable{}, err
	}
	model := normalizeModel(req.Model)
	if req.Costs.Len() == 0 {
		return CostTable{}, fmt.Errorf("%w: at least one component cost required", ErrInvalidCost)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.ReplaceCostTable(ctx, kind, model, req.Costs)
	})
	if err != nil {
		return CostTable{}, fmt.Errorf("replace %s costs for %s: %w", kind, model, err)
	}
	s.record(ctx, "cost_table.replace", string(kind)+":"+model, map[string]any{"components": req.Costs.Len()})
	return CostTable{Kind: kind, Model: model, Costs: req.Costs, UpdatedAt: s.now()}, nil
}

// DeleteCostTable removes the costs of a model.
func (s *Service) DeleteCostTable(ctx context.Context, kind CostKind, model string) error {
	model = normalizeModel(model)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteCostTable(ctx, kind, model)
	})
	if err != nil {
		return err
	}
	s.record(ctx, "cost_table.delete", string(kind)+":"+model, nil)
	return nil
}

// Confirm records a finished repair on a stock device. Costs are taken from
// the reference tables of the device model so both maps share one key set.
func (s *Service) Confirm(ctx context.Context, req ConfirmRepairRequest) (Record, error) {
	if err := shared.Validate(req); err != nil {
		return Record{}, err
	}
	for _, c := range req.Components {
		if !c.Valid() {
			return Record{}, fmt.Errorf("%w: %q", ErrUnknownComponent, string(c))
		}
	}
	tech := req.Technician.Normalize()
	if tech.Name == "" || tech.Email == "" {
		return Record{}, ErrInvalidTechnician
	}

	var rec Record
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		device, err := tx.LockDevice(ctx, req.DeviceID)
		if err != nil {
			return err
		}
		if device.HasRepair {
			return fmt.Errorf("device %d: %w", device.ID, ErrAlreadyRepaired)
		}
		materialTable, err := tx.GetCostTable(ctx, CostKindMaterial, device.Model)
		if err != nil {
			return costLookupErr(CostKindMaterial, device.Model, err)
		}
		laborTable, err := tx.GetCostTable(ctx, CostKindTechnician, device.Model)
		if err != nil {
			return costLookupErr(CostKindTechnician, device.Model, err)
		}
		materials, missing := materialTable.Costs.Pick(req.Components)
		if len(missing) > 0 {
			return fmt.Errorf("%w: no material cost for %s on %s", ErrMissingCost, joinComponents(missing), device.Model)
		}
		labor, missing := laborTable.Costs.Pick(req.Components)
		if len(missing) > 0 {
			return fmt.Errorf("%w: no technician cost for %s on %s", ErrMissingCost, joinComponents(missing), device.Model)
		}

		rec = Record{
			RepairInfo: RepairInfo{
				Materials:     materials,
				Labor:         labor,
				Technician:    tech,
				PaymentStatus: PaymentUnpaid,
				RepairedAt:    s.now(),
				Notes:         strings.TrimSpace(req.Notes),
			},
			DeviceID: device.ID,
			IMEI:     device.IMEI,
			Model:    device.Model,
		}
		if err := rec.Validate(); err != nil {
			return err
		}
		id, err := tx.InsertRepair(ctx, rec)
		if err != nil {
			return err
		}
		rec.ID = id
		if err := tx.RecordCost(ctx, rec); err != nil {
			return err
		}
		return tx.AttachToDevice(ctx, device.ID, rec.RepairInfo)
	})
	if err != nil {
		return Record{}, fmt.Errorf("confirm repair: %w", err)
	}
	if s.summaries != nil {
		_ = s.summaries.Invalidate(ctx)
	}
	s.record(ctx, "repair.confirm", strconv.FormatInt(rec.ID, 10), map[string]any{
		"device_id":       rec.DeviceID,
		"technician":      rec.Technician.Email,
		"technician_cost": rec.TechnicianCost().String(),
	})
	return rec, nil
}

// ListRepairs lists stored repairs.
func (s *Service) ListRepairs(ctx context.Context, filter ListFilter) ([]Record, error) {
	return s.repo.ListRepairs(ctx, filter)
}

func (s *Service) record(ctx context.Context, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "repairs", EntityID: entityID, Meta: meta})
}

func costLookupErr(kind CostKind, model string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: no %s cost table for model %s", ErrMissingCost, kind, model)
	}
	return err
}

func joinComponents(cs []Component) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}

func normalizeModel(model string) string {
	return strings.TrimSpace(model)
}
