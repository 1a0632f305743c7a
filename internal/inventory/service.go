package inventory

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/devicehub/devicehub/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ModelCatalog reports whether a type, brand and model combination is
// registered.
type ModelCatalog interface {
	Has(ctx context.Context, deviceType DeviceType, brand, model string) (bool, error)
}

// Invalidator drops cached aggregates that depend on stock.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Deps groups Service collaborators. Audit, Catalog and Summaries may be nil.
type Deps struct {
	Repo      RepositoryPort
	Audit     AuditPort
	Catalog   ModelCatalog
	Summaries Invalidator
}

// Service coordinates stock operations.
type Service struct {
	repo      RepositoryPort
	audit     AuditPort
	catalog   ModelCatalog
	summaries Invalidator
}

// NewService builds Service.
func NewService(deps Deps) *Service {
	return &Service{repo: deps.Repo, audit: deps.Audit, catalog: deps.Catalog, summaries: deps.Summaries}
}

// Create adds a device to stock. Status defaults to Ready for Sale.
func (s *Service) Create(ctx context.Context, input DeviceInput) (Device, error) {
	if err := shared.Validate(input); err != nil {
		return Device{}, err
	}
	dev := Device{Status: StatusReadyForSale}
	if input.Status != "" {
		status, err := ParseStatus(input.Status)
		if err != nil {
			return Device{}, err
		}
		dev.Status = status
	}
	if err := input.apply(&dev); err != nil {
		return Device{}, err
	}
	if err := s.checkModel(ctx, dev); err != nil {
		return Device{}, err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.Insert(ctx, dev)
		if err != nil {
			return err
		}
		dev.ID = id
		return nil
	})
	if err != nil {
		return Device{}, fmt.Errorf("create device: %w", err)
	}
	s.record(ctx, "device.create", dev.ID, map[string]any{"model": dev.Model, "status": dev.Status})
	return dev, nil
}

// Get returns one device.
func (s *Service) Get(ctx context.Context, id int64) (Device, error) {
	return s.repo.Get(ctx, id)
}

// List returns devices matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Device, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	return s.repo.List(ctx, filter)
}

// Update replaces the editable attributes of a device. Status and repair
// info are left alone unless input.Status is set.
func (s *Service) Update(ctx context.Context, id int64, input DeviceInput) (Device, error) {
	if err := shared.Validate(input); err != nil {
		return Device{}, err
	}
	var dev Device
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		before := current
		if err := input.apply(&current); err != nil {
			return err
		}
		if current.DeviceType != before.DeviceType || current.Brand != before.Brand || current.Model != before.Model {
			if err := s.checkModel(ctx, current); err != nil {
				return err
			}
		}
		if input.Status != "" {
			status, err := ParseStatus(input.Status)
			if err != nil {
				return err
			}
			if status.needsReason() && current.StatusReason == "" {
				return fmt.Errorf("%w: %s", ErrReasonMissing, status)
			}
			current.Status = status
		}
		dev = current
		return tx.Update(ctx, current)
	})
	if err != nil {
		return Device{}, fmt.Errorf("update device: %w", err)
	}
	s.record(ctx, "device.update", id, nil)
	return dev, nil
}

// UpdateStatus moves a device to another status, optionally regrading it.
// Defective Part and Not Repairable require a reason.
func (s *Service) UpdateStatus(ctx context.Context, id int64, update StatusUpdate) (Device, error) {
	if err := shared.Validate(update); err != nil {
		return Device{}, err
	}
	status, err := ParseStatus(update.Status)
	if err != nil {
		return Device{}, err
	}
	reason := strings.TrimSpace(update.Reason)
	if status.needsReason() && reason == "" {
		return Device{}, fmt.Errorf("%w: %s", ErrReasonMissing, status)
	}

	var (
		dev      Device
		previous Status
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		previous = current.Status
		current.Status = status
		current.StatusReason = reason
		if update.Grade != "" {
			current.Grade = update.Grade
		}
		dev = current
		return tx.Update(ctx, current)
	})
	if err != nil {
		return Device{}, fmt.Errorf("update device status: %w", err)
	}
	s.record(ctx, "device.status", id, map[string]any{"from": previous, "to": status, "reason": reason})
	return dev, nil
}

// Delete removes a device from stock. confirm must be true.
func (s *Service) Delete(ctx context.Context, id int64, confirm bool) error {
	if !confirm {
		return ErrConfirmation
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	s.record(ctx, "device.delete", id, nil)
	return nil
}

// checkModel rejects devices whose model is missing from the catalog.
func (s *Service) checkModel(ctx context.Context, dev Device) error {
	if s.catalog == nil {
		return nil
	}
	ok, err := s.catalog.Has(ctx, dev.DeviceType, dev.Brand, dev.Model)
	if err != nil {
		return fmt.Errorf("catalog lookup: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s %s %s", ErrUnknownModel, dev.DeviceType, dev.Brand, dev.Model)
	}
	return nil
}

// record audits a write. Writes other than status moves change stock totals
// and drop cached summaries.
func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.summaries != nil && action != "device.status" {
		_ = s.summaries.Invalidate(ctx)
	}
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "devices", EntityID: strconv.FormatInt(id, 10), Meta: meta})
}
