package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/devicehub/devicehub/internal/inventory"
	"github.com/devicehub/devicehub/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages the model catalog.
type Service struct {
	repo  Repository
	audit AuditPort
}

// NewService builds Service. audit may be nil.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// List returns the catalog nested by type and brand, keeping models whose
// brand or name contains search.
func (s *Service) List(ctx context.Context, search string) ([]TypeGroup, error) {
	entries, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	search = strings.TrimSpace(search)
	kept := entries[:0]
	for _, e := range entries {
		if e.matches(search) {
			kept = append(kept, e)
		}
	}
	return Group(kept), nil
}

// Create registers a model.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Entry, error) {
	if err := shared.Validate(req); err != nil {
		return Entry{}, err
	}
	e := req.entry()
	if e.Brand == "" || e.Model == "" {
		return Entry{}, ErrBlank
	}
	if err := s.repo.Insert(ctx, e); err != nil {
		return Entry{}, fmt.Errorf("register %s %s: %w", e.Brand, e.Model, err)
	}
	s.record(ctx, "catalog.create", e)
	return e, nil
}

// DeleteModel removes one model. Stock already holding it is left alone.
func (s *Service) DeleteModel(ctx context.Context, e Entry) error {
	e.Brand = strings.TrimSpace(e.Brand)
	e.Model = strings.TrimSpace(e.Model)
	ok, err := s.repo.Delete(ctx, e)
	if err != nil {
		return fmt.Errorf("delete model: %w", err)
	}
	if !ok {
		return fmt.Errorf("%s %s %s: %w", e.DeviceType, e.Brand, e.Model, ErrNotFound)
	}
	s.record(ctx, "catalog.delete", e)
	return nil
}

// Has reports whether the model is registered. Brand and model compare
// case-insensitively.
func (s *Service) Has(ctx context.Context, deviceType inventory.DeviceType, brand, model string) (bool, error) {
	return s.repo.Exists(ctx, Entry{DeviceType: deviceType, Brand: strings.TrimSpace(brand), Model: strings.TrimSpace(model)})
}

func (s *Service) record(ctx context.Context, action string, e Entry) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "device_models",
		EntityID: string(e.DeviceType) + "/" + e.Brand + "/" + e.Model,
	})
}
